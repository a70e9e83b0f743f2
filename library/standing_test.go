package library

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestClassify(t *testing.T) {
	returnedAt := day("2025-01-05")
	tests := []struct {
		name string
		loan Loan
		now  time.Time
		want Standing
	}{
		{"past due", Loan{Status: LoanIssued, DueAt: day("2025-01-10")}, day("2025-01-11"), StandingOverdue},
		{"before due", Loan{Status: LoanIssued, DueAt: day("2025-01-10")}, day("2025-01-09"), StandingActive},
		{"exactly due", Loan{Status: LoanIssued, DueAt: day("2025-01-10")}, day("2025-01-10"), StandingActive},
		{"returned late", Loan{Status: LoanReturned, DueAt: day("2025-01-10"), ReturnedAt: &returnedAt}, day("2025-03-01"), StandingReturned},
		{"returned early", Loan{Status: LoanReturned, DueAt: day("2025-01-10"), ReturnedAt: &returnedAt}, day("2025-01-01"), StandingReturned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(&tt.loan, tt.now))
		})
	}
}

func TestStandingLabel(t *testing.T) {
	assert.Equal(t, "Overdue", StandingOverdue.Label())
	assert.Equal(t, "Active", StandingActive.Label())
	assert.Equal(t, "Returned", StandingReturned.Label())
}
