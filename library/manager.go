package library

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LibraryManager is a thin façade over the Database, the auth provider and
// the Reconciler, keeping CLI code simple.
type LibraryManager struct {
	db   *Database
	auth *LocalAuth
	rec  *Reconciler
}

// NewLibraryManager opens (or creates) the SQLite database at dbPath.
func NewLibraryManager(dbPath string, policy Policy, log *zap.Logger, opts ...Option) (*LibraryManager, error) {
	db, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	auth := NewLocalAuth(db)
	return &LibraryManager{
		db:   db,
		auth: auth,
		rec:  NewReconciler(db, auth, policy, log, opts...),
	}, nil
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

func (lm *LibraryManager) Database() *Database     { return lm.db }
func (lm *LibraryManager) Reconciler() *Reconciler { return lm.rec }

// ------------------ Sessions ------------------

// Login checks credentials and returns the caller's directory record.
func (lm *LibraryManager) Login(ctx context.Context, email, password string) (*Profile, error) {
	id, err := lm.auth.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return lm.db.GetProfile(ctx, id)
}

// RequireAdmin is the admin gate for catalog and directory writes.
func (lm *LibraryManager) RequireAdmin(ctx context.Context, userID string) error {
	return lm.rec.Authorize(ctx, userID, RoleAdmin)
}

// RoleOf resolves a user's role through the same check RequireAdmin uses.
func (lm *LibraryManager) RoleOf(ctx context.Context, userID string) (Role, error) {
	return lm.rec.ResolveRole(ctx, userID)
}

func (lm *LibraryManager) HasAdmin(ctx context.Context) (bool, error) { return lm.db.HasAdmin(ctx) }

func (lm *LibraryManager) ResetPassword(ctx context.Context, userID, password string) error {
	return lm.auth.ResetPassword(ctx, userID, password)
}

// ------------------ Book helpers ------------------

func (lm *LibraryManager) AddBook(ctx context.Context, spec BookSpec) (*Book, error) {
	return lm.rec.AddBook(ctx, spec)
}

func (lm *LibraryManager) GetBook(ctx context.Context, id int64) (*Book, error) {
	return lm.db.GetBook(ctx, id)
}

func (lm *LibraryManager) ListBooks(ctx context.Context, includeDeleted bool) ([]*Book, error) {
	return lm.db.ListBooks(ctx, includeDeleted)
}

func (lm *LibraryManager) SearchBooks(ctx context.Context, q string) ([]*Book, error) {
	return lm.db.SearchBooks(ctx, q)
}

func (lm *LibraryManager) RemoveBook(ctx context.Context, id int64) error {
	return lm.rec.RemoveBook(ctx, id)
}

func (lm *LibraryManager) SetTotalCopies(ctx context.Context, id int64, total int) (*Book, error) {
	return lm.rec.SetTotalCopies(ctx, id, total)
}

// ------------------ Directory helpers ------------------

func (lm *LibraryManager) RegisterStudent(ctx context.Context, p StudentProfile, c Credentials) (*Profile, error) {
	return lm.rec.RegisterStudent(ctx, p, c)
}

func (lm *LibraryManager) RegisterAdmin(ctx context.Context, name string, c Credentials) (*Profile, error) {
	return lm.rec.RegisterAdmin(ctx, name, c)
}

func (lm *LibraryManager) GetProfile(ctx context.Context, id string) (*Profile, error) {
	return lm.db.GetProfile(ctx, id)
}

// FindUser accepts either a user id or a login email.
func (lm *LibraryManager) FindUser(ctx context.Context, ref string) (*Profile, error) {
	if strings.Contains(ref, "@") {
		return lm.db.ProfileByEmail(ctx, ref)
	}
	return lm.db.GetProfile(ctx, ref)
}

func (lm *LibraryManager) ListStudents(ctx context.Context) ([]*Profile, error) {
	return lm.db.ListStudents(ctx)
}

// ------------------ Circulation ------------------

func (lm *LibraryManager) IssueBook(ctx context.Context, req IssueRequest) (*Loan, error) {
	return lm.rec.IssueBook(ctx, req)
}

func (lm *LibraryManager) ReturnBook(ctx context.Context, loanID int64) (*Loan, error) {
	return lm.rec.ReturnBook(ctx, loanID)
}

func (lm *LibraryManager) ActiveLoans(ctx context.Context) ([]*LoanView, error) {
	return lm.db.ActiveLoans(ctx)
}

func (lm *LibraryManager) LoansForStudent(ctx context.Context, studentID string, activeOnly bool) ([]*LoanView, error) {
	return lm.db.LoansForStudent(ctx, studentID, activeOnly)
}

func (lm *LibraryManager) LoansForBook(ctx context.Context, bookID int64) ([]*LoanView, error) {
	return lm.db.LoansForBook(ctx, bookID)
}

// ------------------ Consistency ------------------

func (lm *LibraryManager) Audit(ctx context.Context) ([]Discrepancy, error) { return lm.rec.Audit(ctx) }

func (lm *LibraryManager) Repair(ctx context.Context, bookID int64) (*Book, error) {
	return lm.rec.Repair(ctx, bookID)
}

// ------------------ Utilities ------------------

// PrettyBook formats a book for lists.
func PrettyBook(b *Book) string {
	state := fmt.Sprintf("%d/%d", b.AvailableCopies, b.TotalCopies)
	if b.Deleted {
		state = "removed"
	}
	return fmt.Sprintf("%-5d %-30s %-25s %-15s %-9s", b.ID, truncate(b.Title, 30), truncate(b.Author, 25), truncate(b.Category, 15), state)
}

// PrettyLoan formats a loan for lists, with its standing at now.
func PrettyLoan(l *LoanView, now time.Time) string {
	return fmt.Sprintf("%-6d %-30s %-22s %-6d %-12s %-9s",
		l.ID, truncate(l.BookTitle, 30), truncate(l.StudentName, 22), l.ClassLevel,
		l.DueAt.Format("2006-01-02"), Classify(&l.Loan, now).Label())
}

func truncate(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength-3] + "..."
}
