package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"library-lending/library"
)

func newInitAdminCmd(a *app) *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "init-admin",
		Short: "Create the first administrator account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			exists, err := a.mgr.HasAdmin(ctx)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("an administrator already exists: %w", library.ErrConflict)
			}
			password, err := readNewPassword(email)
			if err != nil {
				return err
			}
			p, err := a.mgr.RegisterAdmin(ctx, name, library.Credentials{Email: email, Password: password})
			if err != nil {
				return fmt.Errorf("error creating administrator: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created administrator %s (ID: %s)\n", p.FullName, p.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newStudentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "student",
		Short: "Manage students",
	}
	cmd.AddCommand(
		newStudentRegisterCmd(a),
		newStudentListCmd(a),
		newStudentLoansCmd(a),
		newStudentResetPasswordCmd(a),
	)
	return cmd
}

func newStudentRegisterCmd(a *app) *cobra.Command {
	var (
		profile library.StudentProfile
		email   string
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a student account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, err := a.requireAdmin(ctx); err != nil {
				return err
			}
			password, err := readNewPassword(email)
			if err != nil {
				return err
			}
			p, err := a.mgr.RegisterStudent(ctx, profile, library.Credentials{Email: email, Password: password})
			if err != nil {
				return fmt.Errorf("error registering student: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s, class %d (ID: %s)\n", p.FullName, p.ClassLevel, p.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&profile.FullName, "name", "", "full name")
	cmd.Flags().IntVar(&profile.ClassLevel, "class", 0, fmt.Sprintf("class level %d-%d", library.MinClassLevel, library.MaxClassLevel))
	cmd.Flags().StringVar(&email, "email", "", "login email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("class")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newStudentListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered students",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, err := a.requireAdmin(ctx); err != nil {
				return err
			}
			students, err := a.mgr.ListStudents(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(students) == 0 {
				fmt.Fprintln(out, "No students registered.")
				return nil
			}
			fmt.Fprintf(out, "%-36s %-25s %-30s %-5s\n", "ID", "Name", "Email", "Class")
			fmt.Fprintln(out, strings.Repeat("-", 99))
			for _, s := range students {
				fmt.Fprintf(out, "%-36s %-25s %-30s %-5d\n", s.ID, truncateString(s.FullName, 25), truncateString(s.Email, 30), s.ClassLevel)
			}
			return nil
		},
	}
}

// newStudentLoansCmd shows a student their own loans. Admins name the
// student by id or email.
func newStudentLoansCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "loans [STUDENT]",
		Short: "Show a student's loans",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			me, err := a.login(ctx)
			if err != nil {
				return err
			}

			role, err := a.mgr.RoleOf(ctx, me.ID)
			if err != nil {
				return err
			}
			target := me
			switch role {
			case library.RoleAdmin:
				if len(args) == 0 {
					return fmt.Errorf("name a student: %w", library.ErrInvalidRange)
				}
				if target, err = a.mgr.FindUser(ctx, args[0]); err != nil {
					return err
				}
			case library.RoleStudent:
				if len(args) == 1 && args[0] != me.ID && !strings.EqualFold(args[0], me.Email) {
					return fmt.Errorf("students may only view their own loans: %w", library.ErrInvalidRole)
				}
			default:
				return fmt.Errorf("user %s has role %q: %w", me.ID, role, library.ErrInvalidRole)
			}

			loans, err := a.mgr.LoansForStudent(ctx, target.ID, !all)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(loans) == 0 {
				fmt.Fprintf(out, "%s has no loans.\n", target.FullName)
				return nil
			}
			printLoans(cmd, loans, time.Now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include returned loans")
	return cmd
}

func newStudentResetPasswordCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password STUDENT",
		Short: "Set a new password for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.requireAdmin(ctx); err != nil {
				return err
			}
			user, err := a.mgr.FindUser(ctx, args[0])
			if err != nil {
				return err
			}
			password, err := readNewPassword(user.Email)
			if err != nil {
				return err
			}
			if err := a.mgr.ResetPassword(ctx, user.ID, password); err != nil {
				return fmt.Errorf("error resetting password: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password successfully reset for %s (ID: %s)\n", user.FullName, user.ID)
			return nil
		},
	}
}
