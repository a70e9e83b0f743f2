package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const bookColumns = `id,title,author,category,summary,cover_url,ebook_url,price,total_copies,available_copies,deleted,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*Book, error) {
	var b Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Category, &b.Summary, &b.CoverURL, &b.EbookURL,
		&b.Price, &b.TotalCopies, &b.AvailableCopies, &b.Deleted, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func getBook(ctx context.Context, q querier, id int64) (*Book, error) {
	b, err := scanBook(q.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("book %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get book", err)
	}
	return b, nil
}

// GetBook returns the book including soft-deleted ones, so loan history can
// still name the title.
func (d *Database) GetBook(ctx context.Context, id int64) (*Book, error) {
	return getBook(ctx, d.db, id)
}

// ListBooks returns the catalog ordered by title. Removed books are hidden
// unless includeDeleted is set.
func (d *Database) ListBooks(ctx context.Context, includeDeleted bool) ([]*Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books`
	if !includeDeleted {
		query += ` WHERE deleted=0`
	}
	query += ` ORDER BY title, id`
	return d.queryBooks(ctx, "list books", query)
}

// SearchBooks matches the query against title, author and category of the
// visible catalog. Results are in title order; there is no ranking.
func (d *Database) SearchBooks(ctx context.Context, q string) ([]*Book, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []*Book{}, nil
	}
	pattern := "%" + likeEscaper.Replace(q) + "%"
	return d.queryBooks(ctx, "search books", `SELECT `+bookColumns+` FROM books
        WHERE deleted=0 AND (title LIKE ? ESCAPE '\' OR author LIKE ? ESCAPE '\' OR category LIKE ? ESCAPE '\')
        ORDER BY title, id`, pattern, pattern, pattern)
}

// likeEscaper makes LIKE wildcards in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (d *Database) queryBooks(ctx context.Context, op, query string, args ...any) ([]*Book, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	books := []*Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return books, nil
}

func (d *Database) insertBook(ctx context.Context, tx *sql.Tx, spec BookSpec, now time.Time) (int64, error) {
	res, err := tx.StmtContext(ctx, d.insertBookStmt).ExecContext(ctx,
		spec.Title, spec.Author, spec.Category, spec.Summary, spec.CoverURL, spec.EbookURL,
		spec.Price, spec.TotalCopies, spec.TotalCopies, now)
	if err != nil {
		return 0, storeErr("insert book", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeErr("insert book", err)
	}
	return id, nil
}

// takeCopy decrements available_copies only if a copy is left. It reports
// false when the conditional update matched no row.
func takeCopy(ctx context.Context, tx *sql.Tx, bookID int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE books SET available_copies = available_copies - 1
        WHERE id=? AND deleted=0 AND available_copies > 0`, bookID)
	if err != nil {
		return false, storeErr("take copy", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("take copy", err)
	}
	return n == 1, nil
}

// releaseCopy increments available_copies, never past total_copies. It
// reports false when the count was already at total.
func releaseCopy(ctx context.Context, tx *sql.Tx, bookID int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE books SET available_copies = MIN(available_copies + 1, total_copies)
        WHERE id=? AND available_copies < total_copies`, bookID)
	if err != nil {
		return false, storeErr("release copy", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("release copy", err)
	}
	return n == 1, nil
}

func setCopies(ctx context.Context, tx *sql.Tx, bookID int64, total, available int) error {
	if _, err := tx.ExecContext(ctx, `UPDATE books SET total_copies=?, available_copies=? WHERE id=?`,
		total, available, bookID); err != nil {
		return storeErr("set copies", err)
	}
	return nil
}

func markBookDeleted(ctx context.Context, tx *sql.Tx, bookID int64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE books SET deleted=1 WHERE id=?`, bookID); err != nil {
		return storeErr("remove book", err)
	}
	return nil
}
