// Package store implements the durable, on-disk account record: the RSA
// account key, the server-assigned account URL used as the JWS kid, the
// last-known server Account object, and the directory URL the record was
// created against. Saves are atomic: a crash between writing and renaming
// must never leave a corrupt or partial file in place of a good one.
package store

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tlsforge/acmecore/acme/keys"
	"github.com/tlsforge/acmecore/acme/resources"
	"github.com/tlsforge/acmecore/acmeerr"
)

// maxLoadBytes caps how much of a store file Load will read, guarding
// against a truncated or adversarially large file on disk.
const maxLoadBytes = 1 << 20 // 1 MiB

// Record is the persisted shape of an ACME account: everything the engine
// needs to resume using an already-registered account without talking to
// the server again (beyond normal protocol traffic).
type Record struct {
	// DirectoryURL is the ACME directory this account was registered
	// against, so Load can detect a mismatched directory.
	DirectoryURL string `json:"directoryUrl"`
	// AccountURL is the server-assigned account location, used as the JWS
	// kid for every subsequent signed request.
	AccountURL string `json:"accountUrl"`
	// AcceptedTermsURL is the terms-of-service URL the account agreed to,
	// if any.
	AcceptedTermsURL string `json:"acceptedTermsUrl,omitempty"`
	// Account is the last-known server Account object.
	Account resources.Account `json:"account"`
	// KeyPEM is the account's RSA private key, PKCS#1 PEM encoded.
	KeyPEM []byte `json:"keyPem"`
}

// Signer parses and returns the record's account key.
func (r *Record) Signer() (*rsa.PrivateKey, error) {
	key, err := keys.PEMToRSAKey(r.KeyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", acmeerr.CryptoError, err)
	}
	return key, nil
}

// Save durably persists rec to path: it writes to the sibling temp file
// "<path>.tmp.<pid>" with mode 0600, fsyncs the file, renames the temp file
// over path, then fsyncs the containing directory. A crash at any point before the rename leaves the
// original file (or no file) in place; a crash after the rename leaves the
// new content in place. There is no window in which path can observe a
// partially written file.
func Save(path string, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("%w: record must not be nil", acmeerr.ConfigError)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal record: %s", acmeerr.IoError, err)
	}

	dir := filepath.Dir(path)
	tmpPath := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %s", acmeerr.IoError, err)
	}
	// Any return before the rename must clean up the temp file.
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: chmod temp file: %s", acmeerr.IoError, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write temp file: %s", acmeerr.IoError, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: fsync temp file: %s", acmeerr.IoError, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %s", acmeerr.IoError, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: rename temp file into place: %s", acmeerr.IoError, err)
	}

	// The rename succeeded: the temp path no longer exists, so the
	// deferred os.Remove is a harmless no-op from here.
	if dirFile, err := os.Open(dir); err == nil {
		_ = dirFile.Sync()
		dirFile.Close()
	}

	return nil
}

// Load reads and parses the record at path, capping the read at
// maxLoadBytes.
func Load(path string) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %s", acmeerr.IoError, path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxLoadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %s", acmeerr.IoError, path, err)
	}
	if len(data) > maxLoadBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d byte limit", acmeerr.IoError, path, maxLoadBytes)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %s", acmeerr.IoError, path, err)
	}
	return &rec, nil
}

// Exists reports whether a store file is already present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
