package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Policy holds the lending rules an operator may tune.
type Policy struct {
	MinDueDays int
	MaxDueDays int

	// AllowDuplicateLoans lets one student hold several issued copies of the
	// same title at once.
	AllowDuplicateLoans bool
	// AllowRemoveWithLoans lets RemoveBook hide a title that still has copies
	// out. Outstanding loans stay returnable either way.
	AllowRemoveWithLoans bool
}

// DefaultPolicy is a 1 to 30 day loan period with both safety checks on.
func DefaultPolicy() Policy {
	return Policy{MinDueDays: 1, MaxDueDays: 30}
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithEvents publishes committed changes to sink.
func WithEvents(sink EventSink) Option {
	return func(r *Reconciler) { r.events = sink }
}

// WithMetrics counts operations on m.
func WithMetrics(m *Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// Reconciler is the only writer of available_copies and loan status. Every
// mutation runs in one immediate transaction, so for a given book the issue
// and return paths are serialized by the store.
type Reconciler struct {
	db      *Database
	auth    AuthProvider
	policy  Policy
	log     *zap.Logger
	events  EventSink
	metrics *Metrics
	now     func() time.Time
}

// NewReconciler wires the ledger to its store and identity provider.
func NewReconciler(db *Database, auth AuthProvider, policy Policy, log *zap.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		db:     db,
		auth:   auth,
		policy: policy,
		log:    log,
		events: NopSink{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the rules in force.
func (r *Reconciler) Policy() Policy { return r.policy }

// stamp is the current time as stored: UTC, whole seconds.
func (r *Reconciler) stamp() time.Time {
	return r.now().UTC().Truncate(time.Second)
}

// ResolveRole asks the identity provider for userID's role.
func (r *Reconciler) ResolveRole(ctx context.Context, userID string) (Role, error) {
	return r.auth.ResolveRole(ctx, userID)
}

// Authorize is the single role check used by every admin and student flow.
func (r *Reconciler) Authorize(ctx context.Context, userID string, want Role) error {
	role, err := r.ResolveRole(ctx, userID)
	if err != nil {
		return err
	}
	if role != want {
		return fmt.Errorf("user %s is %s, need %s: %w", userID, role, want, ErrInvalidRole)
	}
	return nil
}

// IssueBook lends one copy of req.BookID to req.StudentID. The copy is taken
// with a conditional decrement, so among concurrent requests for the last
// copy exactly one wins and the rest get ErrOutOfStock.
func (r *Reconciler) IssueBook(ctx context.Context, req IssueRequest) (loan *Loan, err error) {
	defer func() { r.metrics.observe("issue", err) }()

	if req.DueInDays < r.policy.MinDueDays || req.DueInDays > r.policy.MaxDueDays {
		return nil, fmt.Errorf("due in %d days, allowed %d-%d: %w",
			req.DueInDays, r.policy.MinDueDays, r.policy.MaxDueDays, ErrInvalidRange)
	}
	if err := r.Authorize(ctx, req.IssuedBy, RoleAdmin); err != nil {
		return nil, fmt.Errorf("issuer: %w", err)
	}
	if err := r.Authorize(ctx, req.StudentID, RoleStudent); err != nil {
		return nil, fmt.Errorf("borrower: %w", err)
	}

	now := r.stamp()
	var (
		replayed  bool
		available int
		total     int
	)
	err = r.db.withTx(ctx, "issue book", func(tx *sql.Tx) error {
		if req.RequestKey != "" {
			prior, err := loanByRequestKey(ctx, tx, req.RequestKey)
			switch {
			case err == nil:
				if prior.BookID != req.BookID || prior.StudentID != req.StudentID || prior.IssuedBy != req.IssuedBy ||
					!prior.DueAt.Equal(prior.IssuedAt.AddDate(0, 0, req.DueInDays)) {
					return fmt.Errorf("request %q already used for loan %d: %w", req.RequestKey, prior.ID, ErrConflict)
				}
				loan, replayed = prior, true
				return nil
			case !errors.Is(err, ErrNotFound):
				return err
			}
		}

		book, err := getBook(ctx, tx, req.BookID)
		if err != nil {
			return err
		}
		if book.Deleted {
			return fmt.Errorf("book %d has been removed: %w", book.ID, ErrNotFound)
		}
		if !r.policy.AllowDuplicateLoans {
			held, err := hasIssuedLoan(ctx, tx, book.ID, req.StudentID)
			if err != nil {
				return err
			}
			if held {
				return fmt.Errorf("book %d, student %s: %w", book.ID, req.StudentID, ErrDuplicateLoan)
			}
		}

		ok, err := takeCopy(ctx, tx, book.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("book %d: %w", book.ID, ErrOutOfStock)
		}

		l := &Loan{
			BookID:     book.ID,
			StudentID:  req.StudentID,
			IssuedBy:   req.IssuedBy,
			IssuedAt:   now,
			DueAt:      now.AddDate(0, 0, req.DueInDays),
			Status:     LoanIssued,
			RequestKey: req.RequestKey,
		}
		if l.ID, err = insertLoan(ctx, tx, l); err != nil {
			return err
		}
		loan = l
		available, total = book.AvailableCopies-1, book.TotalCopies
		return nil
	})
	if err != nil {
		r.log.Warn("Issue rejected",
			zap.Int64("book_id", req.BookID),
			zap.String("student_id", req.StudentID),
			zap.String("kind", Kind(err)),
			zap.Error(err))
		return nil, err
	}

	if replayed {
		r.log.Info("Issue replayed", zap.Int64("loan_id", loan.ID), zap.String("request_key", req.RequestKey))
		return loan, nil
	}

	r.log.Info("Book issued",
		zap.Int64("loan_id", loan.ID),
		zap.Int64("book_id", loan.BookID),
		zap.String("student_id", loan.StudentID),
		zap.Time("due_at", loan.DueAt),
		zap.Int("available_copies", available))
	r.publish(ctx, Event{
		Type:            EventLoanIssued,
		BookID:          loan.BookID,
		LoanID:          loan.ID,
		StudentID:       loan.StudentID,
		AvailableCopies: available,
		TotalCopies:     total,
		OccurredAt:      now,
	})
	return loan, nil
}

// ReturnBook closes an issued loan and gives its copy back. A second return
// of the same loan fails with ErrAlreadyReturned and changes nothing.
func (r *Reconciler) ReturnBook(ctx context.Context, loanID int64) (loan *Loan, err error) {
	defer func() { r.metrics.observe("return", err) }()

	now := r.stamp()
	var book *Book
	err = r.db.withTx(ctx, "return book", func(tx *sql.Tx) error {
		l, err := getLoan(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if l.Status == LoanReturned {
			return fmt.Errorf("loan %d: %w", loanID, ErrAlreadyReturned)
		}

		at := now
		if at.Before(l.IssuedAt) {
			at = l.IssuedAt
		}
		ok, err := markReturned(ctx, tx, l.ID, at)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("loan %d: %w", loanID, ErrAlreadyReturned)
		}

		released, err := releaseCopy(ctx, tx, l.BookID)
		if err != nil {
			return err
		}
		if !released {
			r.log.Error("Return found no copy out; available count left at total",
				zap.Int64("loan_id", l.ID), zap.Int64("book_id", l.BookID))
		}
		if book, err = getBook(ctx, tx, l.BookID); err != nil {
			return err
		}

		l.Status = LoanReturned
		l.ReturnedAt = &at
		loan = l
		return nil
	})
	if err != nil {
		r.log.Warn("Return rejected", zap.Int64("loan_id", loanID), zap.String("kind", Kind(err)), zap.Error(err))
		return nil, err
	}

	r.log.Info("Book returned",
		zap.Int64("loan_id", loan.ID),
		zap.Int64("book_id", loan.BookID),
		zap.Int("available_copies", book.AvailableCopies))
	r.publish(ctx, Event{
		Type:            EventLoanReturned,
		BookID:          loan.BookID,
		LoanID:          loan.ID,
		StudentID:       loan.StudentID,
		AvailableCopies: book.AvailableCopies,
		TotalCopies:     book.TotalCopies,
		OccurredAt:      *loan.ReturnedAt,
	})
	return loan, nil
}

// AddBook creates a title with every copy available.
func (r *Reconciler) AddBook(ctx context.Context, spec BookSpec) (book *Book, err error) {
	defer func() { r.metrics.observe("add_book", err) }()

	spec.Title = strings.TrimSpace(spec.Title)
	spec.Author = strings.TrimSpace(spec.Author)
	spec.Category = strings.TrimSpace(spec.Category)
	switch {
	case spec.Title == "" || spec.Author == "":
		return nil, fmt.Errorf("title and author are required: %w", ErrInvalidRange)
	case spec.TotalCopies < 0:
		return nil, fmt.Errorf("total copies %d: %w", spec.TotalCopies, ErrInvalidRange)
	case spec.Price < 0:
		return nil, fmt.Errorf("price %.2f: %w", spec.Price, ErrInvalidRange)
	}

	now := r.stamp()
	err = r.db.withTx(ctx, "add book", func(tx *sql.Tx) error {
		id, err := r.db.insertBook(ctx, tx, spec, now)
		if err != nil {
			return err
		}
		book, err = getBook(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("Book added", zap.Int64("book_id", book.ID), zap.String("title", book.Title), zap.Int("total_copies", book.TotalCopies))
	r.publish(ctx, Event{
		Type:            EventBookAdded,
		BookID:          book.ID,
		AvailableCopies: book.AvailableCopies,
		TotalCopies:     book.TotalCopies,
		OccurredAt:      now,
	})
	return book, nil
}

// RemoveBook soft-deletes a title. Titles with copies out are rejected with
// ErrOutstandingLoans unless the policy allows it.
func (r *Reconciler) RemoveBook(ctx context.Context, bookID int64) (err error) {
	defer func() { r.metrics.observe("remove_book", err) }()

	var book *Book
	err = r.db.withTx(ctx, "remove book", func(tx *sql.Tx) error {
		b, err := getBook(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if b.Deleted {
			return fmt.Errorf("book %d already removed: %w", bookID, ErrNotFound)
		}
		out, err := countIssued(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if out > 0 {
			if !r.policy.AllowRemoveWithLoans {
				return fmt.Errorf("book %d has %d copies on loan: %w", bookID, out, ErrOutstandingLoans)
			}
			r.log.Warn("Removing book with copies on loan", zap.Int64("book_id", bookID), zap.Int("issued", out))
		}
		book = b
		return markBookDeleted(ctx, tx, bookID)
	})
	if err != nil {
		return err
	}

	r.log.Info("Book removed", zap.Int64("book_id", bookID))
	r.publish(ctx, Event{
		Type:            EventBookRemoved,
		BookID:          bookID,
		AvailableCopies: book.AvailableCopies,
		TotalCopies:     book.TotalCopies,
		OccurredAt:      r.stamp(),
	})
	return nil
}

// SetTotalCopies changes how many copies a title owns. The available count
// is recomputed from the ledger, so the total can never drop below the
// copies currently out.
func (r *Reconciler) SetTotalCopies(ctx context.Context, bookID int64, total int) (book *Book, err error) {
	defer func() { r.metrics.observe("set_copies", err) }()

	if total < 0 {
		return nil, fmt.Errorf("total copies %d: %w", total, ErrInvalidRange)
	}
	err = r.db.withTx(ctx, "set copies", func(tx *sql.Tx) error {
		b, err := getBook(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if b.Deleted {
			return fmt.Errorf("book %d has been removed: %w", bookID, ErrNotFound)
		}
		out, err := countIssued(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if total < out {
			return fmt.Errorf("book %d has %d copies on loan, cannot own %d: %w", bookID, out, total, ErrInvalidRange)
		}
		if err := setCopies(ctx, tx, bookID, total, total-out); err != nil {
			return err
		}
		book, err = getBook(ctx, tx, bookID)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("Copies updated", zap.Int64("book_id", bookID), zap.Int("total_copies", book.TotalCopies),
		zap.Int("available_copies", book.AvailableCopies))
	r.publish(ctx, Event{
		Type:            EventCopiesSet,
		BookID:          bookID,
		AvailableCopies: book.AvailableCopies,
		TotalCopies:     book.TotalCopies,
		OccurredAt:      r.stamp(),
	})
	return book, nil
}

// RegisterStudent creates the account through the AuthProvider, then the
// directory record with the student role.
func (r *Reconciler) RegisterStudent(ctx context.Context, profile StudentProfile, creds Credentials) (p *Profile, err error) {
	defer func() { r.metrics.observe("register_student", err) }()

	if !validClassLevel(profile.ClassLevel) {
		return nil, fmt.Errorf("class level %d, allowed %d-%d: %w", profile.ClassLevel, MinClassLevel, MaxClassLevel, ErrInvalidRange)
	}
	return r.register(ctx, strings.TrimSpace(profile.FullName), profile.ClassLevel, RoleStudent, creds)
}

// RegisterAdmin creates an administrator account.
func (r *Reconciler) RegisterAdmin(ctx context.Context, fullName string, creds Credentials) (p *Profile, err error) {
	defer func() { r.metrics.observe("register_admin", err) }()
	return r.register(ctx, strings.TrimSpace(fullName), 0, RoleAdmin, creds)
}

// register writes the account, profile and role in one transaction when the
// provider shares the ledger's store. Other providers own their accounts, so
// only the profile write is transactional here.
func (r *Reconciler) register(ctx context.Context, name string, class int, role Role, creds Credentials) (*Profile, error) {
	if name == "" {
		return nil, fmt.Errorf("full name is required: %w", ErrInvalidRange)
	}
	attrs := map[string]string{
		"full_name": name,
		"role":      string(role),
	}

	var p *Profile
	if staged, ok := r.auth.(stagedAuth); ok && staged.store() == r.db {
		acc, err := staged.stageAccount(creds.Email, creds.Password, attrs)
		if err != nil {
			return nil, err
		}
		p = newProfile(acc.id, name, acc.email, class, role, r.stamp())
		err = r.db.withTx(ctx, "register", func(tx *sql.Tx) error {
			if err := insertAccount(ctx, tx, acc); err != nil {
				return err
			}
			return r.db.insertProfile(ctx, tx, p)
		})
		if err != nil {
			return nil, err
		}
	} else {
		id, err := r.auth.CreateAccount(ctx, creds.Email, creds.Password, attrs)
		if err != nil {
			return nil, err
		}
		p = newProfile(id, name, normalizeEmail(creds.Email), class, role, r.stamp())
		if err := r.db.createProfile(ctx, p); err != nil {
			return nil, err
		}
	}

	r.log.Info("User registered", zap.String("user_id", p.ID), zap.String("role", string(role)), zap.Int("class_level", class))
	return p, nil
}

// Audit lists books whose available count disagrees with the ledger.
func (r *Reconciler) Audit(ctx context.Context) ([]Discrepancy, error) {
	return discrepancies(ctx, r.db.db)
}

// Repair resets a book's available count from the ledger.
func (r *Reconciler) Repair(ctx context.Context, bookID int64) (book *Book, err error) {
	defer func() { r.metrics.observe("repair", err) }()

	var before int
	err = r.db.withTx(ctx, "repair", func(tx *sql.Tx) error {
		b, err := getBook(ctx, tx, bookID)
		if err != nil {
			return err
		}
		out, err := countIssued(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if out > b.TotalCopies {
			return fmt.Errorf("book %d has %d loans for %d copies: %w", bookID, out, b.TotalCopies, ErrInvalidRange)
		}
		before = b.AvailableCopies
		if err := setCopies(ctx, tx, bookID, b.TotalCopies, b.TotalCopies-out); err != nil {
			return err
		}
		book, err = getBook(ctx, tx, bookID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if before != book.AvailableCopies {
		r.log.Warn("Available copies repaired", zap.Int64("book_id", bookID),
			zap.Int("was", before), zap.Int("now", book.AvailableCopies))
	}
	return book, nil
}

func (r *Reconciler) publish(ctx context.Context, ev Event) {
	if err := r.events.Publish(ctx, ev); err != nil {
		r.log.Error("Failed to publish event", zap.String("type", ev.Type), zap.Int64("book_id", ev.BookID), zap.Error(err))
	}
}
