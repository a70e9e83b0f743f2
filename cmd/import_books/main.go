package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"library-lending/config"
	"library-lending/library"
	"library-lending/logger"
)

func main() {
	if err := newImportCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newImportCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "import_books FILE.csv",
		Short: "Load catalog titles from CSV",
		Long: "Load catalog titles from CSV with columns\n" +
			"title,author,category,total_copies[,price,summary]. A header row is skipped.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			log, err := logger.NewLogger("import_books", cfg.LogLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("error reading books file: %w", err)
			}
			defer f.Close()

			specs, parseErrs := parseBooks(f)
			for _, perr := range parseErrs {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v, skipping\n", perr)
			}

			manager, err := library.NewLibraryManager(cfg.DBPath, library.DefaultPolicy(), log)
			if err != nil {
				return fmt.Errorf("error opening database: %w", err)
			}
			defer manager.Close()

			return importBooks(cmd, manager, specs, log, len(parseErrs))
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default $LENDING_DB_PATH or library.db)")
	return cmd
}

func importBooks(cmd *cobra.Command, manager *library.LibraryManager, specs []library.BookSpec, log *zap.Logger, errorCount int) error {
	out := cmd.OutOrStdout()
	successCount := 0
	for _, spec := range specs {
		fmt.Fprintf(out, "Importing: %s by %s... ", spec.Title, spec.Author)
		b, err := manager.AddBook(cmd.Context(), spec)
		if err != nil {
			fmt.Fprintf(out, "ERROR - %v\n", err)
			errorCount++
			continue
		}
		fmt.Fprintf(out, "SUCCESS (ID: %d)\n", b.ID)
		successCount++
	}

	fmt.Fprintf(out, "\nImport complete!\n")
	fmt.Fprintf(out, "Successfully imported: %d books\n", successCount)
	fmt.Fprintf(out, "Errors: %d\n", errorCount)
	log.Info("Import finished", zap.Int("imported", successCount), zap.Int("errors", errorCount))
	if errorCount > 0 {
		return fmt.Errorf("%d row(s) not imported", errorCount)
	}
	return nil
}

// parseBooks reads catalog rows. Bad rows are reported and skipped so one
// typo does not block the rest of the file.
func parseBooks(r io.Reader) ([]library.BookSpec, []error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		specs []library.BookSpec
		errs  []error
	)
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "title") {
			continue
		}
		spec, err := parseRecord(record)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		specs = append(specs, spec)
	}
	return specs, errs
}

func parseRecord(record []string) (library.BookSpec, error) {
	if len(record) < 4 {
		return library.BookSpec{}, fmt.Errorf("want at least 4 columns, got %d", len(record))
	}
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}
	copies, err := strconv.Atoi(record[3])
	if err != nil {
		return library.BookSpec{}, fmt.Errorf("total_copies %q is not a number", record[3])
	}
	spec := library.BookSpec{
		Title:       record[0],
		Author:      record[1],
		Category:    record[2],
		TotalCopies: copies,
	}
	if len(record) > 4 && record[4] != "" {
		if spec.Price, err = strconv.ParseFloat(record[4], 64); err != nil {
			return library.BookSpec{}, fmt.Errorf("price %q is not a number", record[4])
		}
	}
	if len(record) > 5 {
		spec.Summary = record[5]
	}
	return spec, nil
}
