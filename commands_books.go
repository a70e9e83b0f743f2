package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"library-lending/library"
)

func newBookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Manage the catalog",
	}
	cmd.AddCommand(
		newBookAddCmd(a),
		newBookListCmd(a),
		newBookShowCmd(a),
		newBookSearchCmd(a),
		newBookRemoveCmd(a),
		newBookSetCopiesCmd(a),
	)
	return cmd
}

func newBookAddCmd(a *app) *cobra.Command {
	var spec library.BookSpec
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a title with its number of copies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, err := a.requireAdmin(ctx); err != nil {
				return err
			}
			b, err := a.mgr.AddBook(ctx, spec)
			if err != nil {
				return fmt.Errorf("error adding book: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added book ID %d with %d copies.\n", b.ID, b.TotalCopies)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&spec.Title, "title", "", "title")
	f.StringVar(&spec.Author, "author", "", "author")
	f.StringVar(&spec.Category, "category", "", "category")
	f.StringVar(&spec.Summary, "summary", "", "short summary")
	f.StringVar(&spec.CoverURL, "cover-url", "", "cover image URL")
	f.StringVar(&spec.EbookURL, "ebook-url", "", "e-book URL")
	f.Float64Var(&spec.Price, "price", 0, "price")
	f.IntVar(&spec.TotalCopies, "copies", 1, "number of physical copies")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}

func newBookListCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			books, err := a.mgr.ListBooks(cmd.Context(), all)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(books) == 0 {
				fmt.Fprintln(out, "No books in library.")
				return nil
			}
			printBooks(out, books)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include removed titles")
	return cmd
}

func newBookShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show BOOK_ID",
		Short: "Show one title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("book", args[0])
			if err != nil {
				return err
			}
			b, err := a.mgr.GetBook(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:        %d\n", b.ID)
			fmt.Fprintf(out, "Title:     %s\n", b.Title)
			fmt.Fprintf(out, "Author:    %s\n", b.Author)
			fmt.Fprintf(out, "Category:  %s\n", b.Category)
			fmt.Fprintf(out, "Copies:    %d of %d available\n", b.AvailableCopies, b.TotalCopies)
			if b.Price > 0 {
				fmt.Fprintf(out, "Price:     %.2f\n", b.Price)
			}
			if b.Summary != "" {
				fmt.Fprintf(out, "Summary:   %s\n", b.Summary)
			}
			if b.CoverURL != "" {
				fmt.Fprintf(out, "Cover:     %s\n", b.CoverURL)
			}
			if b.EbookURL != "" {
				fmt.Fprintf(out, "E-book:    %s\n", b.EbookURL)
			}
			if b.Deleted {
				fmt.Fprintln(out, "Status:    removed from catalog")
			} else if !b.Issuable() {
				fmt.Fprintln(out, "Status:    all copies on loan")
			}
			return nil
		},
	}
}

func newBookSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search QUERY",
		Short: "Search titles, authors and categories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			books, err := a.mgr.SearchBooks(cmd.Context(), query)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(books) == 0 {
				fmt.Fprintf(out, "No books found matching '%s'.\n", query)
				return nil
			}
			fmt.Fprintf(out, "Found %d book(s) matching '%s':\n", len(books), query)
			printBooks(out, books)
			return nil
		},
	}
}

func newBookRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove BOOK_ID",
		Short: "Remove a title from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID("book", args[0])
			if err != nil {
				return err
			}
			if _, err := a.requireAdmin(ctx); err != nil {
				return err
			}
			if err := a.mgr.RemoveBook(ctx, id); err != nil {
				return fmt.Errorf("error removing book: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed book ID %d.\n", id)
			return nil
		},
	}
}

func newBookSetCopiesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-copies BOOK_ID TOTAL",
		Short: "Change how many copies a title owns",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID("book", args[0])
			if err != nil {
				return err
			}
			total, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid copy count: %s", args[1])
			}
			if _, err := a.requireAdmin(ctx); err != nil {
				return err
			}
			b, err := a.mgr.SetTotalCopies(ctx, id, total)
			if err != nil {
				return fmt.Errorf("error updating copies: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Book ID %d now has %d copies, %d available.\n", b.ID, b.TotalCopies, b.AvailableCopies)
			return nil
		},
	}
}

func printBooks(out io.Writer, books []*library.Book) {
	fmt.Fprintf(out, "%-5s %-30s %-25s %-15s %-9s\n", "ID", "Title", "Author", "Category", "Copies")
	fmt.Fprintln(out, strings.Repeat("-", 88))
	for _, b := range books {
		fmt.Fprintln(out, library.PrettyBook(b))
	}
}

func parseID(what, s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s ID: %s", what, s)
	}
	return id, nil
}
