package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const loanColumns = `l.id,l.book_id,l.student_id,l.issued_by,l.issued_at,l.due_at,l.status,l.returned_at,COALESCE(l.request_key,'')`

func scanLoan(row rowScanner, extra ...any) (*Loan, error) {
	var (
		l        Loan
		returned sql.NullTime
	)
	dest := []any{&l.ID, &l.BookID, &l.StudentID, &l.IssuedBy, &l.IssuedAt, &l.DueAt, &l.Status, &returned, &l.RequestKey}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if returned.Valid {
		t := returned.Time
		l.ReturnedAt = &t
	}
	return &l, nil
}

func getLoan(ctx context.Context, q querier, id int64) (*Loan, error) {
	l, err := scanLoan(q.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM issued_books l WHERE l.id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("loan %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get loan", err)
	}
	return l, nil
}

func loanByRequestKey(ctx context.Context, q querier, key string) (*Loan, error) {
	l, err := scanLoan(q.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM issued_books l WHERE l.request_key=?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get loan by key", err)
	}
	return l, nil
}

// GetLoan fetches a single loan row.
func (d *Database) GetLoan(ctx context.Context, id int64) (*Loan, error) {
	return getLoan(ctx, d.db, id)
}

// LoansForBook returns the issue history of a book, newest first.
func (d *Database) LoansForBook(ctx context.Context, bookID int64) ([]*LoanView, error) {
	return d.queryLoanViews(ctx, "loans for book", `WHERE l.book_id=?`, bookID)
}

// LoansForStudent returns a student's loans, newest first. With activeOnly
// set only issued loans are returned.
func (d *Database) LoansForStudent(ctx context.Context, studentID string, activeOnly bool) ([]*LoanView, error) {
	where := `WHERE l.student_id=?`
	if activeOnly {
		where += ` AND l.status='issued'`
	}
	return d.queryLoanViews(ctx, "loans for student", where, studentID)
}

// ActiveLoans returns every issued loan across the library.
func (d *Database) ActiveLoans(ctx context.Context) ([]*LoanView, error) {
	return d.queryLoanViews(ctx, "active loans", `WHERE l.status='issued'`)
}

func (d *Database) queryLoanViews(ctx context.Context, op, where string, args ...any) ([]*LoanView, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+loanColumns+`, b.title, p.full_name, p.class_level
        FROM issued_books l
        JOIN books b ON b.id = l.book_id
        JOIN profiles p ON p.id = l.student_id
        `+where+`
        ORDER BY l.issued_at DESC, l.id DESC`, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	views := []*LoanView{}
	for rows.Next() {
		var v LoanView
		l, err := scanLoan(rows, &v.BookTitle, &v.StudentName, &v.ClassLevel)
		if err != nil {
			return nil, storeErr(op, err)
		}
		v.Loan = *l
		views = append(views, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return views, nil
}

func countIssued(ctx context.Context, q querier, bookID int64) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM issued_books WHERE book_id=? AND status='issued'`, bookID).Scan(&n); err != nil {
		return 0, storeErr("count issued", err)
	}
	return n, nil
}

func hasIssuedLoan(ctx context.Context, q querier, bookID int64, studentID string) (bool, error) {
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM issued_books WHERE book_id=? AND student_id=? AND status='issued')`,
		bookID, studentID).Scan(&exists); err != nil {
		return false, storeErr("check held loan", err)
	}
	return exists, nil
}

func insertLoan(ctx context.Context, tx *sql.Tx, l *Loan) (int64, error) {
	key := sql.NullString{String: l.RequestKey, Valid: l.RequestKey != ""}
	res, err := tx.ExecContext(ctx, `INSERT INTO issued_books(book_id,student_id,issued_by,issued_at,due_at,status,request_key)
        VALUES(?,?,?,?,?,?,?)`, l.BookID, l.StudentID, l.IssuedBy, l.IssuedAt, l.DueAt, l.Status, key)
	if err != nil {
		return 0, storeErr("insert loan", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeErr("insert loan", err)
	}
	return id, nil
}

// markReturned closes an issued loan. It reports false when the loan was not
// in the issued state.
func markReturned(ctx context.Context, tx *sql.Tx, loanID int64, at time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE issued_books SET status='returned', returned_at=? WHERE id=? AND status='issued'`, at, loanID)
	if err != nil {
		return false, storeErr("mark returned", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("mark returned", err)
	}
	return n == 1, nil
}

// discrepancies lists books whose available count differs from
// total_copies minus issued loans.
func discrepancies(ctx context.Context, q querier) ([]Discrepancy, error) {
	rows, err := q.QueryContext(ctx, `SELECT b.id, b.title, b.total_copies, b.available_copies, COUNT(l.id)
        FROM books b
        LEFT JOIN issued_books l ON l.book_id = b.id AND l.status='issued'
        GROUP BY b.id
        HAVING b.available_copies != b.total_copies - COUNT(l.id)
        ORDER BY b.id`)
	if err != nil {
		return nil, storeErr("audit", err)
	}
	defer rows.Close()

	var out []Discrepancy
	for rows.Next() {
		var d Discrepancy
		if err := rows.Scan(&d.BookID, &d.Title, &d.TotalCopies, &d.AvailableCopies, &d.IssuedLoans); err != nil {
			return nil, storeErr("audit", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("audit", err)
	}
	return out, nil
}
