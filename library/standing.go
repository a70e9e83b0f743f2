package library

import "time"

// Standing is the display status of a loan, derived from dates on read.
type Standing string

const (
	StandingActive   Standing = "active"
	StandingOverdue  Standing = "overdue"
	StandingReturned Standing = "returned"
)

// Classify derives a loan's standing at now. A returned loan is Returned
// whatever its dates; an issued loan is Overdue once now is past its due
// time. Admin and student views both call this so they cannot disagree.
func Classify(loan *Loan, now time.Time) Standing {
	if loan.Status == LoanReturned {
		return StandingReturned
	}
	if now.After(loan.DueAt) {
		return StandingOverdue
	}
	return StandingActive
}

// Label is the badge text for s.
func (s Standing) Label() string {
	switch s {
	case StandingActive:
		return "Active"
	case StandingOverdue:
		return "Overdue"
	case StandingReturned:
		return "Returned"
	}
	return string(s)
}
