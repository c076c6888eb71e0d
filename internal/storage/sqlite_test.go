package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/jobtrack/internal/auth"
	"github.com/kalambet/jobtrack/internal/jobs"
	"github.com/kalambet/jobtrack/internal/profile"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	for _, idx := range []string{"idx_jobs_user_date_applied", "idx_sessions_expires_at"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestParseMigrationVersion(t *testing.T) {
	v, err := parseMigrationVersion("012_add_things.sql")
	if err != nil || v != 12 {
		t.Errorf("parseMigrationVersion = %d, %v; want 12", v, err)
	}
	if _, err := parseMigrationVersion("init.sql"); err == nil {
		t.Error("expected error for unnumbered migration")
	}
}

// --- Jobs ---

func testRow(owner, company string, applied jobs.Date) jobs.Row {
	f := jobs.FormData{
		CompanyName:   company,
		PositionTitle: "Engineer",
		Location:      "Remote",
		DateApplied:   applied,
		Status:        jobs.StatusApplied,
	}
	return jobs.ToRow(owner, f)
}

func TestInsertAndGetJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	row := testRow("alice", "Acme", jobs.NewDate(2025, time.March, 1))
	row.FollowUpDate = jobs.NewDate(2025, time.March, 10).Ptr()
	cl := "http://x/files/cl.pdf"
	row.CoverLetterURL = &cl

	saved, err := s.InsertJob(ctx, row)
	if err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	if saved.ID == "" || saved.CreatedAt.IsZero() || !saved.CreatedAt.Equal(saved.UpdatedAt) {
		t.Errorf("InsertJob did not assign id/timestamps: %+v", saved)
	}

	got, err := s.GetJob(ctx, "alice", saved.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.CompanyName != "Acme" || got.Status != jobs.StatusApplied || got.Location != "Remote" {
		t.Errorf("GetJob = %+v", got)
	}
	if got.DateApplied.String() != "2025-03-01" {
		t.Errorf("DateApplied = %s", got.DateApplied)
	}
	if got.FollowUpDate == nil || got.FollowUpDate.String() != "2025-03-10" {
		t.Errorf("FollowUpDate = %v", got.FollowUpDate)
	}
	if got.CoverLetterURL == nil || *got.CoverLetterURL != cl {
		t.Errorf("CoverLetterURL = %v", got.CoverLetterURL)
	}
	if !got.CreatedAt.Equal(saved.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, saved.CreatedAt)
	}

	if _, err := s.GetJob(ctx, "bob", saved.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJob by other owner = %v, want ErrNotFound", err)
	}
}

func TestNullableColumns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	saved, err := s.InsertJob(ctx, testRow("alice", "Acme", jobs.NewDate(2025, 1, 1)))
	if err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	got, err := s.GetJob(ctx, "alice", saved.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.FollowUpDate != nil {
		t.Errorf("FollowUpDate = %v, want nil", got.FollowUpDate)
	}
	if got.CoverLetterURL != nil {
		t.Errorf("CoverLetterURL = %q, want nil", *got.CoverLetterURL)
	}
}

func TestListJobsOrderAndScope(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, r := range []jobs.Row{
		testRow("alice", "Middle", jobs.NewDate(2025, 2, 1)),
		testRow("alice", "Newest", jobs.NewDate(2025, 3, 1)),
		testRow("alice", "Oldest", jobs.NewDate(2024, 12, 1)),
		testRow("bob", "Bob's", jobs.NewDate(2025, 4, 1)),
	} {
		if _, err := s.InsertJob(ctx, r); err != nil {
			t.Fatalf("InsertJob: %v", err)
		}
	}

	list, err := s.ListJobs(ctx, "alice")
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	want := []string{"Newest", "Middle", "Oldest"}
	if len(list) != len(want) {
		t.Fatalf("len = %d, want %d", len(list), len(want))
	}
	for i, name := range want {
		if list[i].CompanyName != name {
			t.Errorf("list[%d] = %s, want %s", i, list[i].CompanyName, name)
		}
	}

	empty, err := s.ListJobs(ctx, "carol")
	if err != nil {
		t.Fatalf("ListJobs(carol): %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("ListJobs(carol) = %#v, want empty slice", empty)
	}
}

func TestReplaceJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	saved, err := s.InsertJob(ctx, testRow("alice", "Acme", jobs.NewDate(2025, 1, 1)))
	if err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	next := testRow("alice", "Acme Corp", jobs.NewDate(2025, 1, 2))
	next.ID = saved.ID
	next.Status = jobs.StatusOffer

	if _, err := s.ReplaceJob(ctx, "bob", next); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ReplaceJob by other owner = %v, want ErrNotFound", err)
	}

	updated, err := s.ReplaceJob(ctx, "alice", next)
	if err != nil {
		t.Fatalf("ReplaceJob: %v", err)
	}
	if !updated.UpdatedAt.After(saved.UpdatedAt) {
		t.Errorf("UpdatedAt did not advance: %v -> %v", saved.UpdatedAt, updated.UpdatedAt)
	}
	if !updated.CreatedAt.Equal(saved.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", saved.CreatedAt, updated.CreatedAt)
	}

	got, _ := s.GetJob(ctx, "alice", saved.ID)
	if got.CompanyName != "Acme Corp" || got.Status != jobs.StatusOffer || got.DateApplied.String() != "2025-01-02" {
		t.Errorf("stored row = %+v", got)
	}
	if !got.UpdatedAt.Equal(updated.UpdatedAt) {
		t.Errorf("stored UpdatedAt = %v, want %v", got.UpdatedAt, updated.UpdatedAt)
	}

	// A second replace in quick succession still advances updated_at.
	again, err := s.ReplaceJob(ctx, "alice", next)
	if err != nil {
		t.Fatalf("second ReplaceJob: %v", err)
	}
	if !again.UpdatedAt.After(updated.UpdatedAt) {
		t.Errorf("UpdatedAt did not advance on second replace")
	}
}

func TestReplaceMissingJob(t *testing.T) {
	s := openTestStore(t)
	row := testRow("alice", "Ghost", jobs.NewDate(2025, 1, 1))
	row.ID = "does-not-exist"
	if _, err := s.ReplaceJob(context.Background(), "alice", row); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReplaceJob(missing) = %v, want ErrNotFound", err)
	}
}

func TestDeleteJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	saved, _ := s.InsertJob(ctx, testRow("alice", "Acme", jobs.NewDate(2025, 1, 1)))

	if err := s.DeleteJob(ctx, "bob", saved.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteJob by other owner = %v, want ErrNotFound", err)
	}
	if err := s.DeleteJob(ctx, "alice", saved.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if err := s.DeleteJob(ctx, "alice", saved.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteJob = %v, want ErrNotFound", err)
	}
}

// --- Users, sessions and profiles ---

func testUser(id, email string) auth.User {
	now := time.Now().UTC().Truncate(time.Second)
	return auth.User{ID: id, Email: email, PasswordHash: "hash", FullName: "Ada Lovelace", CreatedAt: now, UpdatedAt: now}
}

func TestUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, testUser("u1", "ada@example.com")); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.CreateUser(ctx, testUser("u2", "ada@example.com")); !errors.Is(err, auth.ErrEmailTaken) {
		t.Errorf("duplicate CreateUser = %v, want ErrEmailTaken", err)
	}

	u, err := s.UserByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("UserByEmail: %v", err)
	}
	if u.ID != "u1" || u.PasswordHash != "hash" || u.FullName != "Ada Lovelace" {
		t.Errorf("UserByEmail = %+v", u)
	}
	if _, err := s.UserByID(ctx, "nope"); !errors.Is(err, auth.ErrNoUser) {
		t.Errorf("UserByID(nope) = %v, want ErrNoUser", err)
	}
}

func TestSessions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.CreateUser(ctx, testUser("u1", "ada@example.com"))

	now := time.Now().UTC()
	live := auth.Session{Token: "live", UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	stale := auth.Session{Token: "stale", UserID: "u1", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	for _, sess := range []auth.Session{live, stale} {
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}

	got, err := s.SessionByToken(ctx, "live")
	if err != nil {
		t.Fatalf("SessionByToken: %v", err)
	}
	if got.UserID != "u1" || !got.ExpiresAt.Equal(live.ExpiresAt.Truncate(time.Microsecond)) {
		t.Errorf("SessionByToken = %+v", got)
	}

	n, err := s.DeleteExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d sessions, want 1", n)
	}
	if _, err := s.SessionByToken(ctx, "stale"); !errors.Is(err, auth.ErrInvalidSession) {
		t.Errorf("stale session still present: %v", err)
	}

	if err := s.DeleteSession(ctx, "live"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if err := s.DeleteSession(ctx, "live"); !errors.Is(err, auth.ErrInvalidSession) {
		t.Errorf("second DeleteSession = %v", err)
	}
}

func TestProfiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.CreateUser(ctx, testUser("u1", "ada@example.com"))

	p, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.Email != "ada@example.com" || p.FullName != "Ada Lovelace" {
		t.Errorf("GetProfile = %+v", p)
	}

	avatar := "http://x/a.png"
	p, err = s.UpdateProfile(ctx, "u1", profile.Update{AvatarURL: &avatar})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if p.AvatarURL != avatar || p.FullName != "Ada Lovelace" {
		t.Errorf("UpdateProfile = %+v", p)
	}

	if _, err := s.GetProfile(ctx, "nope"); !errors.Is(err, profile.ErrNotFound) {
		t.Errorf("GetProfile(nope) = %v", err)
	}
	if _, err := s.UpdateProfile(ctx, "nope", profile.Update{AvatarURL: &avatar}); !errors.Is(err, profile.ErrNotFound) {
		t.Errorf("UpdateProfile(nope) = %v", err)
	}
}
