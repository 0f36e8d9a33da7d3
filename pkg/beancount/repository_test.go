package beancount

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shunichi-ikebuchi/beanquery/pkg/pathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) (*FileSystemRepository, string) {
	t.Helper()
	root := t.TempDir()
	return NewFileSystemRepository(pathutil.New(pathutil.Config{LedgerRoot: root})), root
}

func TestFileSystemRepositoryAppendEntry(t *testing.T) {
	repo, root := newTestRepository(t)

	txn := &Transaction{
		Date:      date("2024-03-15"),
		Flag:      "*",
		Narration: "Lunch",
		Postings: []Posting{
			{Account: "Expenses:Food", Units: NewAmount("800", "JPY")},
			{Account: "Assets:Cash", Units: NewAmount("-800", "JPY")},
		},
	}
	require.NoError(t, repo.AppendEntry(txn, "imported"))
	require.NoError(t, repo.AppendEntry(&Note{Date: date("2024-03-20"), Account: "Assets:Cash", Comment: "Checked"}))

	assert.True(t, repo.MonthFileExists("2024-03"))
	assert.False(t, repo.MonthFileExists("2024-04"))
	assert.FileExists(t, filepath.Join(root, "2024", "2024-03.beancount"))

	content, err := repo.ReadMonthFile("2024-03")
	require.NoError(t, err)
	assert.Contains(t, content, "; Beancount file for 2024-03")
	assert.Contains(t, content, "; imported\n2024-03-15 * \"Lunch\"")

	missing, err := repo.ReadMonthFile("2024-05")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestFileSystemRepositoryGetMonthFilesInYear(t *testing.T) {
	repo, _ := newTestRepository(t)

	for _, month := range []string{"2024-02", "2024-01", "2023-12"} {
		require.NoError(t, repo.EnsureMonthFile(month))
	}

	months, err := repo.GetMonthFilesInYear("2024")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01", "2024-02"}, months)

	none, err := repo.GetMonthFilesInYear("2020")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFileSystemRepositoryLoadAll(t *testing.T) {
	repo, root := newTestRepository(t)

	require.NoError(t, repo.AppendEntry(&Transaction{
		Date:      date("2024-02-01"),
		Flag:      "*",
		Narration: "February",
		Postings: []Posting{
			{Account: "Expenses:Food", Units: NewAmount("100", "JPY")},
			{Account: "Assets:Cash", Units: NewAmount("-100", "JPY")},
		},
	}))
	require.NoError(t, repo.AppendEntry(&Open{Date: date("2024-01-01"), Account: "Assets:Cash"}))

	// Files under dot directories are ignored.
	hidden := filepath.Join(root, ".beanquery")
	require.NoError(t, os.MkdirAll(hidden, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(hidden, "broken.beancount"), []byte("2024-01-01 open bad\n"), 0644))

	entries, err := repo.LoadAll()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, KindOpen, entries[0].Kind())
	assert.Equal(t, "February", entries[1].(*Transaction).Narration)
}

func TestFileSystemRepositoryLoadAllMissingRoot(t *testing.T) {
	repo := NewFileSystemRepository(pathutil.New(pathutil.Config{
		LedgerRoot: filepath.Join(t.TempDir(), "missing"),
	}))

	entries, err := repo.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileSystemRepositoryLoadAllParseError(t *testing.T) {
	repo, root := newTestRepository(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.beancount"), []byte("2024-01-01 open bad\n"), 0644))

	_, err := repo.LoadAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.beancount:1")
}
