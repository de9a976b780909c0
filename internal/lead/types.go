package lead

import (
	"context"
	"time"
)

// StatusNew is assigned to leads created without a status.
const StatusNew = "NEW"

// Lead is a sales opportunity owned by one identity.
type Lead struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	Status        string     `json:"status"`
	OwnerID       string     `json:"owner_id"`
	Customer      string     `json:"customer"`
	ContactPerson string     `json:"contact_person"`
	ContactNumber string     `json:"contact_number"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"-"`
}

// History records one status change. Rows are never updated or removed.
type History struct {
	ID             string    `json:"id"`
	LeadID         string    `json:"lead_id"`
	ChangedByID    string    `json:"changed_by_id"`
	OldStatus      string    `json:"old_status"`
	NewStatus      string    `json:"new_status"`
	Notes          string    `json:"notes,omitempty"`
	MeetingDetails string    `json:"meeting_details,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Detail is a lead with its history, oldest first.
type Detail struct {
	Lead
	History []History `json:"history"`
}

// Changes is a partial update. Nil fields are left untouched. Notes and
// MeetingDetails only travel with a status change.
type Changes struct {
	Title          *string
	Email          *string
	Phone          *string
	Status         *string
	OwnerID        *string
	Customer       *string
	ContactPerson  *string
	ContactNumber  *string
	Notes          string
	MeetingDetails string
}

// CreateInput carries the fields accepted when creating a lead.
type CreateInput struct {
	Title         string
	Email         string
	Phone         string
	Status        string
	OwnerID       string
	Customer      string
	ContactPerson string
	ContactNumber string
}

// StatusChange is the notification emitted after a status transition commits.
type StatusChange struct {
	LeadID      string    `json:"lead_id"`
	OwnerID     string    `json:"owner_id"`
	OldStatus   string    `json:"old_status"`
	NewStatus   string    `json:"new_status"`
	ChangedByID string    `json:"changed_by_id"`
	At          time.Time `json:"at"`
}

// Filter narrows ListLeads. A blank OwnerID lists every lead.
type Filter struct {
	OwnerID string
}

// MutateFunc computes the next state of a lead from its current, locked
// state. A non-nil History is appended in the same transaction.
type MutateFunc func(current Lead) (Lead, *History, error)

// Store persists leads and their history. Missing or deleted leads yield
// auth.ErrNotFound.
type Store interface {
	CreateLead(ctx context.Context, l *Lead) error
	FindLead(ctx context.Context, id string) (Lead, error)
	ListLeads(ctx context.Context, f Filter) ([]Lead, error)
	ListHistory(ctx context.Context, leadID string) ([]History, error)
	// Transition reads the lead, applies fn and writes the result plus any
	// history entry atomically. Either both writes land or neither does.
	Transition(ctx context.Context, id string, fn MutateFunc) (Lead, error)
	DeleteLead(ctx context.Context, id string, at time.Time) error
}
