package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tlsforge/acmecore/acme/keys"
	"github.com/tlsforge/acmecore/acme/resources"
)

func testRecord(t *testing.T) *Record {
	t.Helper()
	key, err := keys.NewRSAKey(2048)
	require.NoError(t, err)

	return &Record{
		DirectoryURL: "https://acme.test/directory",
		AccountURL:   "https://acme.test/acct/1",
		Account:      resources.Account{Status: resources.AccountValid},
		KeyPEM:       keys.RSAKeyToPEM(key),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "account.json")

	rec := testRecord(t)
	require.NoError(t, Save(path, rec))
	require.True(t, Exists(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, rec.DirectoryURL, loaded.DirectoryURL)
	require.Equal(t, rec.AccountURL, loaded.AccountURL)

	signer, err := loaded.Signer()
	require.NoError(t, err)
	require.NotNil(t, signer)
}

func TestSaveLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "account.json")

	require.NoError(t, Save(path, testRecord(t)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "account.json", entries[0].Name())
}

func TestSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "account.json")

	first := testRecord(t)
	first.AccountURL = "https://acme.test/acct/first"
	require.NoError(t, Save(path, first))

	second := testRecord(t)
	second.AccountURL = "https://acme.test/acct/second"
	require.NoError(t, Save(path, second))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://acme.test/acct/second", loaded.AccountURL)
}

// TestCrashBetweenWriteAndRenameLeavesOriginalIntact simulates a process
// that dies after writing its temp file but before the rename: the original
// record at path must still load cleanly, and the stray temp file (inert
// leftover, not a torn write) must not be mistaken for it.
func TestCrashBetweenWriteAndRenameLeavesOriginalIntact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "account.json")

	original := testRecord(t)
	original.AccountURL = "https://acme.test/acct/original"
	require.NoError(t, Save(path, original))

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	require.NoError(t, err)
	_, err = tmp.Write([]byte("{not valid json, simulating a torn write"))
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://acme.test/acct/original", loaded.AccountURL)
}

func TestLoadRejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "account.json")

	oversized := make([]byte, maxLoadBytes+1)
	for i := range oversized {
		oversized[i] = 'a'
	}
	require.NoError(t, os.WriteFile(path, oversized, 0600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
