package library

import (
	"context"
	"time"
)

const (
	EventLoanIssued   = "loan.issued"
	EventLoanReturned = "loan.returned"
	EventBookAdded    = "book.added"
	EventBookRemoved  = "book.removed"
	EventCopiesSet    = "book.copies_set"
)

// Event announces a committed change. AvailableCopies is the count after the
// change, so consumers can refresh a cached entry without re-reading.
type Event struct {
	Type            string    `json:"type"`
	BookID          int64     `json:"book_id"`
	LoanID          int64     `json:"loan_id,omitempty"`
	StudentID       string    `json:"student_id,omitempty"`
	AvailableCopies int       `json:"available_copies"`
	TotalCopies     int       `json:"total_copies"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// EventSink receives events after their transaction commits.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }
