package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"library-lending/config"
	"library-lending/events"
	"library-lending/library"
	"library-lending/logger"
)

// app is the state shared by every command once flags are parsed.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	mgr      *library.LibraryManager
	registry *prometheus.Registry
	broker   brokerHealth
	closers  []func() error

	dbPath   string
	logLevel string
	asEmail  string
}

func main() {
	a := &app{}
	err := newRootCmd(a).Execute()
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "lendingctl",
		Short:         "School library lending ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return a.open()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (default $LENDING_DB_PATH or library.db)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.asEmail, "as", os.Getenv("LENDING_USER"), "email of the acting user")

	root.AddCommand(
		newInitAdminCmd(a),
		newBookCmd(a),
		newStudentCmd(a),
		newLoanCmd(a),
		newAuditCmd(a),
		newServeMetricsCmd(a),
	)
	return root
}

func (a *app) open() error {
	a.cfg = config.Load()
	if a.dbPath != "" {
		a.cfg.DBPath = a.dbPath
	}
	if a.logLevel != "" {
		a.cfg.LogLevel = a.logLevel
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.NewLogger(a.cfg.ServiceName, a.cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.log = log
	a.closers = append(a.closers, func() error { _ = log.Sync(); return nil })

	var sink library.EventSink = library.NopSink{}
	if a.cfg.AMQPURL != "" {
		pub, err := events.NewPublisher(a.cfg.AMQPURL, log)
		if err != nil {
			log.Warn("Event publishing disabled", zap.Error(err))
		} else {
			sink = pub
			a.closers = append(a.closers, pub.Close)
		}
		// nil after a failed dial, which /health reports as down.
		a.broker = pub
	}

	a.registry = prometheus.NewRegistry()
	policy := library.Policy{
		MinDueDays:           a.cfg.MinDueDays,
		MaxDueDays:           a.cfg.MaxDueDays,
		AllowDuplicateLoans:  a.cfg.AllowDuplicateLoans,
		AllowRemoveWithLoans: a.cfg.AllowRemoveWithLoans,
	}
	mgr, err := library.NewLibraryManager(a.cfg.DBPath, policy, log,
		library.WithEvents(sink), library.WithMetrics(library.NewMetrics(a.registry)))
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}
	a.mgr = mgr
	a.closers = append(a.closers, mgr.Close)
	return nil
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// login authenticates the --as user. The password comes from
// LENDING_PASSWORD when set, otherwise from a masked prompt.
func (a *app) login(ctx context.Context) (*library.Profile, error) {
	email := strings.TrimSpace(a.asEmail)
	if email == "" {
		return nil, errors.New("no acting user: pass --as or set LENDING_USER")
	}
	password := os.Getenv("LENDING_PASSWORD")
	if password == "" {
		var err error
		password, err = readPassword(fmt.Sprintf("Password for %s: ", email))
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
	}
	return a.mgr.Login(ctx, email, password)
}

func (a *app) requireAdmin(ctx context.Context) (*library.Profile, error) {
	p, err := a.login(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.mgr.RequireAdmin(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// readPassword securely reads a password with masking
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println() // Add newline after password input
	return strings.TrimSpace(string(bytePassword)), nil
}

// readNewPassword prompts twice for a password being set.
func readNewPassword(who string) (string, error) {
	if pw := os.Getenv("LENDING_NEW_PASSWORD"); pw != "" {
		return pw, nil
	}
	first, err := readPassword(fmt.Sprintf("New password for %s: ", who))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	second, err := readPassword("Repeat password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	return first, nil
}

// exitCode follows sysexits: 75 for retryable store failures, 77 for
// permission problems, 65 for rejected input, 1 otherwise.
func exitCode(err error) int {
	switch library.Kind(err) {
	case "StoreUnavailable":
		return 75
	case "InvalidRole", "Unauthenticated":
		return 77
	case "NotFound", "OutOfStock", "InvalidRange", "AlreadyReturned", "DuplicateLoan", "OutstandingLoans", "Conflict":
		return 65
	}
	return 1
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
