package storage

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveAndOpen(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save("reports/job-1.csv", []byte("email,name\n"))
	require.NoError(t, err)
	require.Equal(t, "reports/job-1.csv", name)

	file, err := store.Open(name)
	require.NoError(t, err)
	defer file.Close()
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	require.Equal(t, "email,name\n", string(data))
}

func TestLocalStorageRejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../outside.csv", []byte("x"))
	require.Error(t, err)

	_, err = store.Open("/etc/passwd")
	require.Error(t, err)
}

func TestLocalStorageSweep(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	_, err = store.Save("reports/stale.csv", []byte("old"))
	require.NoError(t, err)
	stalePath := dir + "/reports/stale.csv"
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stalePath, old, old))

	_, err = store.Save("reports/fresh.csv", []byte("new"))
	require.NoError(t, err)

	deleted, err := store.Sweep(24 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	_, err = store.Open("reports/stale.csv")
	require.Error(t, err)
	file, err := store.Open("reports/fresh.csv")
	require.NoError(t, err)
	file.Close()
}
