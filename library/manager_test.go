package library

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

func newManager(t *testing.T) *LibraryManager {
	dir := t.TempDir()
	mgr, err := NewLibraryManager(filepath.Join(dir, "lib.db"), DefaultPolicy(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("mgr: %v", err)
	}
	mgr.auth.cost = bcrypt.MinCost
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestLoginReturnsProfile(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()

	admin, err := mgr.RegisterAdmin(ctx, "Librarian", Credentials{Email: "lib@school.test", Password: "open-sesame"})
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}

	p, err := mgr.Login(ctx, "  LIB@school.test ", "open-sesame")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if p.ID != admin.ID || p.Role != RoleAdmin {
		t.Fatalf("got %+v, want admin %s", p, admin.ID)
	}

	if _, err := mgr.Login(ctx, "lib@school.test", "wrong-pass"); Kind(err) != "Unauthenticated" {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := mgr.Login(ctx, "nobody@school.test", "open-sesame"); Kind(err) != "Unauthenticated" {
		t.Fatalf("unknown email: got %v", err)
	}
}

func TestRequireAdmin(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()

	if ok, _ := mgr.HasAdmin(ctx); ok {
		t.Fatalf("fresh database should have no admin")
	}
	admin, err := mgr.RegisterAdmin(ctx, "Librarian", Credentials{Email: "lib@school.test", Password: "open-sesame"})
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	student, err := mgr.RegisterStudent(ctx, StudentProfile{FullName: "Pupil", ClassLevel: 3},
		Credentials{Email: "pupil@school.test", Password: "pupil-pass"})
	if err != nil {
		t.Fatalf("register student: %v", err)
	}

	if err := mgr.RequireAdmin(ctx, admin.ID); err != nil {
		t.Fatalf("admin rejected: %v", err)
	}
	if err := mgr.RequireAdmin(ctx, student.ID); Kind(err) != "InvalidRole" {
		t.Fatalf("student: got %v", err)
	}
	if ok, _ := mgr.HasAdmin(ctx); !ok {
		t.Fatalf("admin not recorded")
	}
}

func TestResetPassword(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()

	p, err := mgr.RegisterStudent(ctx, StudentProfile{FullName: "Forgetful", ClassLevel: 2},
		Credentials{Email: "f@school.test", Password: "old-pass"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := mgr.ResetPassword(ctx, p.ID, "new-pass"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := mgr.Login(ctx, "f@school.test", "old-pass"); err == nil {
		t.Fatalf("old password still accepted")
	}
	if _, err := mgr.Login(ctx, "f@school.test", "new-pass"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	if err := mgr.ResetPassword(ctx, "missing", "new-pass"); Kind(err) != "NotFound" {
		t.Fatalf("missing user: got %v", err)
	}
	if err := mgr.ResetPassword(ctx, p.ID, "abc"); Kind(err) != "InvalidRange" {
		t.Fatalf("short password: got %v", err)
	}
}

func TestPrettyLoan(t *testing.T) {
	due := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	l := &LoanView{
		Loan:        Loan{ID: 7, Status: LoanIssued, DueAt: due},
		BookTitle:   "A Very Long Title That Will Not Fit In The Column",
		StudentName: "Ada",
		ClassLevel:  4,
	}
	line := PrettyLoan(l, due.AddDate(0, 0, 1))
	if !strings.Contains(line, "2025-01-10") || !strings.Contains(line, "Overdue") {
		t.Fatalf("unexpected line %q", line)
	}
	if !strings.Contains(line, "...") {
		t.Fatalf("title not truncated: %q", line)
	}
}

func TestPrettyBookRemoved(t *testing.T) {
	line := PrettyBook(&Book{ID: 1, Title: "Gone", Author: "X", TotalCopies: 2, AvailableCopies: 2, Deleted: true})
	if !strings.Contains(line, "removed") {
		t.Fatalf("unexpected line %q", line)
	}
	line = PrettyBook(&Book{ID: 2, Title: "Here", Author: "Y", TotalCopies: 3, AvailableCopies: 1})
	if !strings.Contains(line, "1/3") {
		t.Fatalf("unexpected line %q", line)
	}
}
