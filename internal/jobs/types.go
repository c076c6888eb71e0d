// Package jobs defines the job application record and its storage mapping.
package jobs

import (
	"fmt"
	"strings"
	"time"
)

// Status is the stage of an application. Any status may change to any other.
type Status string

const (
	StatusWishlist  Status = "Wishlist"
	StatusApplied   Status = "Applied"
	StatusInterview Status = "Interview"
	StatusOffer     Status = "Offer"
	StatusRejected  Status = "Rejected"
	StatusArchived  Status = "Archived"
)

var statuses = []Status{
	StatusWishlist,
	StatusApplied,
	StatusInterview,
	StatusOffer,
	StatusRejected,
	StatusArchived,
}

// Statuses returns every status in display order.
func Statuses() []Status {
	out := make([]Status, len(statuses))
	copy(out, statuses)
	return out
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus matches s case-insensitively against the known statuses.
func ParseStatus(s string) (Status, error) {
	for _, known := range statuses {
		if strings.EqualFold(strings.TrimSpace(s), string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Job is one tracked application as the application sees it.
type Job struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"userId"`
	CompanyName    string    `json:"companyName"`
	PositionTitle  string    `json:"positionTitle"`
	Location       string    `json:"location"`
	EmailUsed      string    `json:"emailUsed"`
	DateApplied    Date      `json:"dateApplied"`
	Source         string    `json:"source"`
	Status         Status    `json:"status"`
	FollowUpDate   *Date     `json:"followUpDate,omitempty"`
	Notes          string    `json:"notes"`
	CVURL          string    `json:"cvUrl"`
	CoverLetterURL string    `json:"coverLetterUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// FormData is the user-editable part of a Job. Create and update both send
// the full form; there is no partial patch.
type FormData struct {
	CompanyName    string `json:"companyName"`
	PositionTitle  string `json:"positionTitle"`
	Location       string `json:"location"`
	EmailUsed      string `json:"emailUsed"`
	DateApplied    Date   `json:"dateApplied"`
	Source         string `json:"source"`
	Status         Status `json:"status"`
	FollowUpDate   *Date  `json:"followUpDate,omitempty"`
	Notes          string `json:"notes"`
	CVURL          string `json:"cvUrl"`
	CoverLetterURL string `json:"coverLetterUrl,omitempty"`
}

// Row is the storage representation of a Job.
type Row struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	CompanyName    string    `json:"company_name"`
	PositionTitle  string    `json:"position_title"`
	Location       string    `json:"location"`
	EmailUsed      string    `json:"email_used"`
	DateApplied    Date      `json:"date_applied"`
	Source         string    `json:"source"`
	Status         Status    `json:"status"`
	FollowUpDate   *Date     `json:"follow_up_date"`
	Notes          string    `json:"notes"`
	CVURL          string    `json:"cv_url"`
	CoverLetterURL *string   `json:"cover_letter_url"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ValidationError reports a form field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Validate checks the fields required before a form reaches storage.
func (f FormData) Validate() error {
	if strings.TrimSpace(f.CompanyName) == "" {
		return &ValidationError{Field: "companyName", Message: "is required"}
	}
	if strings.TrimSpace(f.PositionTitle) == "" {
		return &ValidationError{Field: "positionTitle", Message: "is required"}
	}
	if f.DateApplied.IsZero() {
		return &ValidationError{Field: "dateApplied", Message: "is required"}
	}
	if !f.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("must be one of %v", statuses)}
	}
	return nil
}
