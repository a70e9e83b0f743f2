package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"library-lending/library"
)

func newLoanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loan",
		Short: "Issue and return books",
	}
	cmd.AddCommand(
		newLoanIssueCmd(a),
		newLoanReturnCmd(a),
		newLoanListCmd(a),
		newLoanHistoryCmd(a),
	)
	return cmd
}

func newLoanIssueCmd(a *app) *cobra.Command {
	var (
		days int
		key  string
	)
	cmd := &cobra.Command{
		Use:   "issue BOOK_ID STUDENT",
		Short: "Lend one copy of a book to a student",
		Long: "Lend one copy of a book to a student. STUDENT is an id or a login email.\n" +
			"Pass --key to make a retried request return the original loan.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			bookID, err := parseID("book", args[0])
			if err != nil {
				return err
			}
			admin, err := a.requireAdmin(ctx)
			if err != nil {
				return err
			}
			student, err := a.mgr.FindUser(ctx, args[1])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("days") {
				days = a.cfg.DefaultDueDays
			}

			loan, err := a.mgr.IssueBook(ctx, library.IssueRequest{
				BookID:     bookID,
				StudentID:  student.ID,
				DueInDays:  days,
				IssuedBy:   admin.ID,
				RequestKey: key,
			})
			if err != nil {
				return fmt.Errorf("error issuing book: %w", err)
			}
			book, err := a.mgr.GetBook(ctx, bookID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loan %d: '%s' issued to %s, due %s\n",
				loan.ID, book.Title, student.FullName, loan.DueAt.Local().Format("2006-01-02"))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "loan period in days (default $LENDING_DEFAULT_DUE_DAYS)")
	cmd.Flags().StringVar(&key, "key", "", "idempotency key for retries")
	return cmd
}

func newLoanReturnCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "return LOAN_ID",
		Short: "Record the return of a loan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			loanID, err := parseID("loan", args[0])
			if err != nil {
				return err
			}
			if _, err := a.requireAdmin(ctx); err != nil {
				return err
			}
			loan, err := a.mgr.ReturnBook(ctx, loanID)
			if err != nil {
				return fmt.Errorf("error returning book: %w", err)
			}
			late := ""
			if loan.ReturnedAt.After(loan.DueAt) {
				late = " (late)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loan %d returned%s.\n", loan.ID, late)
			return nil
		},
	}
}

func newLoanListCmd(a *app) *cobra.Command {
	var overdueOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List books currently on loan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, err := a.requireAdmin(ctx); err != nil {
				return err
			}
			loans, err := a.mgr.ActiveLoans(ctx)
			if err != nil {
				return err
			}
			now := time.Now()
			if overdueOnly {
				kept := loans[:0]
				for _, l := range loans {
					if library.Classify(&l.Loan, now) == library.StandingOverdue {
						kept = append(kept, l)
					}
				}
				loans = kept
			}
			if len(loans) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No loans to show.")
				return nil
			}
			printLoans(cmd, loans, now)
			return nil
		},
	}
	cmd.Flags().BoolVar(&overdueOnly, "overdue", false, "only overdue loans")
	return cmd
}

func newLoanHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history BOOK_ID",
		Short: "Show every loan of a title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			bookID, err := parseID("book", args[0])
			if err != nil {
				return err
			}
			if _, err := a.requireAdmin(ctx); err != nil {
				return err
			}
			if _, err := a.mgr.GetBook(ctx, bookID); err != nil {
				return err
			}
			loans, err := a.mgr.LoansForBook(ctx, bookID)
			if err != nil {
				return err
			}
			if len(loans) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "This book has never been issued.")
				return nil
			}
			printLoans(cmd, loans, time.Now())
			return nil
		},
	}
}

func printLoans(cmd *cobra.Command, loans []*library.LoanView, now time.Time) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-6s %-30s %-22s %-6s %-12s %-9s\n", "Loan", "Book", "Student", "Class", "Due", "Status")
	fmt.Fprintln(out, strings.Repeat("-", 90))
	for _, l := range loans {
		fmt.Fprintln(out, library.PrettyLoan(l, now))
	}
}
