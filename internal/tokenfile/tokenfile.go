// Package tokenfile reads and writes account files. An account file stores the
// OAuth2 token of one signed-in identity-provider account together with the
// account's display metadata, so listing known accounts never needs the network.
// Leaf package: imported by identity/ only.
package tokenfile

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/oauth2"
)

// FilePerms restricts account files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the accounts directory.
const DirPerms = 0o700

// fileSuffix marks account files inside the accounts directory.
const fileSuffix = ".json"

// Account is the display metadata cached alongside a token.
type Account struct {
	HomeAccountID string `json:"home_account_id,omitempty"`
	Username      string `json:"username,omitempty"`
	Name          string `json:"name,omitempty"`
}

// File is the on-disk format. Files without a "token" field are rejected;
// the user has to sign in again.
type File struct {
	Token   *oauth2.Token `json:"token"`
	Account Account       `json:"account"`
}

// FileName returns the file name used for an account. The name is a hash of
// the home account ID so that arbitrary IDs never leak into paths.
func FileName(homeAccountID string) string {
	h := sha256.Sum256([]byte(homeAccountID))
	return fmt.Sprintf("account-%x%s", h[:12], fileSuffix)
}

// Load reads an account file. Returns (nil, nil) if the file does not exist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if f.Token == nil {
		return nil, fmt.Errorf("tokenfile: %s missing token field (sign in again)", path)
	}

	return &f, nil
}

// Save writes an account file atomically (write-to-temp + rename) with 0600
// permissions. Never logs token values.
func Save(path string, f *File) error {
	if f == nil || f.Token == nil {
		return fmt.Errorf("tokenfile: refusing to save %s without a token", path)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".account-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// UpdateToken replaces the token in an existing account file and keeps the
// account metadata. Used after a silent refresh.
func UpdateToken(path string, tok *oauth2.Token) error {
	f, err := Load(path)
	if err != nil {
		return fmt.Errorf("reading account for token update: %w", err)
	}

	if f == nil {
		return fmt.Errorf("no account file at %s", path)
	}

	f.Token = tok

	return Save(path, f)
}

// Remove deletes an account file. Missing files are not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return nil
}

// Entry pairs a loaded account file with its path.
type Entry struct {
	Path string
	File *File
}

// List loads every account file in dir, sorted by username then home account
// ID. Unreadable files are skipped and reported through skip (may be nil).
// A missing directory yields an empty list.
func List(dir string, skip func(path string, err error)) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", dir, err)
	}

	var out []Entry

	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), fileSuffix) || strings.HasPrefix(de.Name(), ".") {
			continue
		}

		path := filepath.Join(dir, de.Name())

		f, loadErr := Load(path)
		if loadErr != nil {
			if skip != nil {
				skip(path, loadErr)
			}

			continue
		}

		if f == nil {
			continue
		}

		out = append(out, Entry{Path: path, File: f})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].File.Account, out[j].File.Account
		if a.Username != b.Username {
			return a.Username < b.Username
		}

		return a.HomeAccountID < b.HomeAccountID
	})

	return out, nil
}
