package library

import "time"

// Role is the authoritative role of a user, kept in the user_roles relation
// rather than on the profile so a user cannot edit their own privileges.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

// LoanStatus is the stored state of a loan row.
type LoanStatus string

const (
	LoanIssued   LoanStatus = "issued"
	LoanReturned LoanStatus = "returned"
)

// Book represents catalog metadata and the current copy counts of a title.
// AvailableCopies is only ever changed by the Reconciler.
type Book struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Category        string    `json:"category"`
	Summary         string    `json:"summary"`
	CoverURL        string    `json:"cover_url"`
	EbookURL        string    `json:"ebook_url"`
	Price           float64   `json:"price"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	Deleted         bool      `json:"deleted"`
	CreatedAt       time.Time `json:"created_at"`
}

// Issuable reports whether a new loan could be opened against the book.
func (b *Book) Issuable() bool {
	return !b.Deleted && b.AvailableCopies > 0
}

// BookSpec is what an admin supplies when adding a title.
type BookSpec struct {
	Title       string
	Author      string
	Category    string
	Summary     string
	CoverURL    string
	EbookURL    string
	Price       float64
	TotalCopies int
}

// Profile is a directory record. ClassLevel is 0 for admins.
type Profile struct {
	ID         string    `json:"id"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email"`
	ClassLevel int       `json:"class_level"`
	Role       Role      `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
}

// StudentProfile carries the directory fields for a new student.
type StudentProfile struct {
	FullName   string
	ClassLevel int
}

// Credentials are handed straight to the AuthProvider.
type Credentials struct {
	Email    string
	Password string
}

// Loan is one issue event. Returned loans are kept as history.
type Loan struct {
	ID         int64      `json:"id"`
	BookID     int64      `json:"book_id"`
	StudentID  string     `json:"student_id"`
	IssuedBy   string     `json:"issued_by"`
	IssuedAt   time.Time  `json:"issued_at"`
	DueAt      time.Time  `json:"due_at"`
	Status     LoanStatus `json:"status"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	RequestKey string     `json:"request_key,omitempty"`
}

// LoanView joins a loan with the names the dashboards display.
type LoanView struct {
	Loan
	BookTitle   string `json:"book_title"`
	StudentName string `json:"student_name"`
	ClassLevel  int    `json:"class_level"`
}

// IssueRequest asks the Reconciler to lend one copy of BookID to StudentID.
// RequestKey makes retries safe: a second call with the same key returns the
// first loan instead of lending another copy.
type IssueRequest struct {
	BookID     int64
	StudentID  string
	DueInDays  int
	IssuedBy   string
	RequestKey string
}

// Discrepancy is a book whose available count disagrees with the ledger.
type Discrepancy struct {
	BookID          int64  `json:"book_id"`
	Title           string `json:"title"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
	IssuedLoans     int    `json:"issued_loans"`
}

// Expected is the available count the ledger implies.
func (d Discrepancy) Expected() int { return d.TotalCopies - d.IssuedLoans }
