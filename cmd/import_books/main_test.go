package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"library-lending/library"
)

const sample = `title,author,category,total_copies,price,summary
The Hobbit,J.R.R. Tolkien,Fantasy,3,9.99,"There and back again"
1984,George Orwell,Fiction,2
Broken Row,Nobody
Animal Farm,George Orwell,Fiction,many
Romeo and Juliet,William Shakespeare,Drama,1,cheap
`

func TestParseBooks(t *testing.T) {
	specs, errs := parseBooks(strings.NewReader(sample))

	require.Len(t, specs, 2)
	assert.Equal(t, library.BookSpec{
		Title: "The Hobbit", Author: "J.R.R. Tolkien", Category: "Fantasy",
		TotalCopies: 3, Price: 9.99, Summary: "There and back again",
	}, specs[0])
	assert.Equal(t, "1984", specs[1].Title)
	assert.Equal(t, 2, specs[1].TotalCopies)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0].Error(), "line 4")
	assert.Contains(t, errs[1].Error(), "line 5")
	assert.Contains(t, errs[2].Error(), "line 6")
}

func TestParseBooksWithoutHeader(t *testing.T) {
	specs, errs := parseBooks(strings.NewReader("Emma,Jane Austen,Classic,1\n"))
	assert.Empty(t, errs)
	require.Len(t, specs, 1)
	assert.Equal(t, "Emma", specs[0].Title)
}

func TestImportBooks(t *testing.T) {
	manager, err := library.NewLibraryManager(filepath.Join(t.TempDir(), "import.db"), library.DefaultPolicy(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer manager.Close()

	specs := []library.BookSpec{
		{Title: "Dune", Author: "Frank Herbert", Category: "SF", TotalCopies: 2},
		{Title: "", Author: "Anonymous", TotalCopies: 1},
	}
	cmd := newImportCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())

	err = importBooks(cmd, manager, specs, zaptest.NewLogger(t), 0)
	assert.Error(t, err)
	assert.Contains(t, out.String(), "Successfully imported: 1 books")

	books, err := manager.ListBooks(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, 2, books[0].AvailableCopies)
}
