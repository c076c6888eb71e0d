package auth

import (
	"context"
	"sync"
)

type userKey struct{}

// WithUser returns a copy of ctx carrying u as the signed-in user.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the user stored by WithUser.
func UserFrom(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey{}).(User)
	return u, ok
}

// OwnerID returns the signed-in user's id, or "".
func OwnerID(ctx context.Context) string {
	u, _ := UserFrom(ctx)
	return u.ID
}

// ContextOwner resolves the owner from the request context.
type ContextOwner struct{}

func (ContextOwner) OwnerID(ctx context.Context) string { return OwnerID(ctx) }

// Event is an authentication state change seen by a client.
type Event int

const (
	SignedIn Event = iota + 1
	SignedOut
)

func (e Event) String() string {
	switch e {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	}
	return "unknown"
}

// Notifier fans auth events out to subscribers synchronously, in
// subscription order.
type Notifier struct {
	mu   sync.Mutex
	subs []func(context.Context, Event)
}

// Subscribe registers fn for every later Publish.
func (n *Notifier) Subscribe(fn func(context.Context, Event)) {
	n.mu.Lock()
	n.subs = append(n.subs, fn)
	n.mu.Unlock()
}

// Publish calls every subscriber with e.
func (n *Notifier) Publish(ctx context.Context, e Event) {
	n.mu.Lock()
	subs := make([]func(context.Context, Event), len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()
	for _, fn := range subs {
		fn(ctx, e)
	}
}
