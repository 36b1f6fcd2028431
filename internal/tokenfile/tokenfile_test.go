package tokenfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		TokenType:    "Bearer",
		Expiry:       time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	f, err := Load("/nonexistent/path/account.json")
	assert.Nil(t, f)
	assert.NoError(t, err)
}

func TestSaveLoad_RoundTripKeepsAccount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account.json")

	require.NoError(t, Save(path, &File{
		Token:   testToken(),
		Account: Account{HomeAccountID: "oid.tid", Username: "alice@example.com", Name: "Alice"},
	}))

	f, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "access-123", f.Token.AccessToken)
	assert.Equal(t, "refresh-456", f.Token.RefreshToken)
	assert.Equal(t, "alice@example.com", f.Account.Username)
	assert.Equal(t, "Alice", f.Account.Name)
	assert.Equal(t, "oid.tid", f.Account.HomeAccountID)
}

func TestSave_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "account.json")

	require.NoError(t, Save(path, &File{Token: testToken()}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())
}

func TestSave_RejectsMissingToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account.json")

	err := Save(path, &File{})
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoad_MissingTokenField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"account":{"username":"a"}}`), 0o600))

	f, err := Load(path)
	assert.Nil(t, f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing token field")
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json}`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestUpdateToken_KeepsAccount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account.json")
	require.NoError(t, Save(path, &File{Token: testToken(), Account: Account{Username: "bob"}}))

	require.NoError(t, UpdateToken(path, &oauth2.Token{AccessToken: "new", RefreshToken: "r2"}))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "new", f.Token.AccessToken)
	assert.Equal(t, "bob", f.Account.Username)
}

func TestUpdateToken_MissingFile(t *testing.T) {
	err := UpdateToken(filepath.Join(t.TempDir(), "absent.json"), testToken())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no account file")
}

func TestRemove_MissingIsNotError(t *testing.T) {
	assert.NoError(t, Remove(filepath.Join(t.TempDir(), "absent.json")))
}

func TestList_SortedAndSkipsCorrupt(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, Save(filepath.Join(dir, FileName("z")), &File{Token: testToken(), Account: Account{HomeAccountID: "z", Username: "zed@example.com"}}))
	require.NoError(t, Save(filepath.Join(dir, FileName("a")), &File{Token: testToken(), Account: Account{HomeAccountID: "a", Username: "amy@example.com"}}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("nope"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	var skipped []string

	entries, err := List(dir, func(path string, _ error) { skipped = append(skipped, filepath.Base(path)) })
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "amy@example.com", entries[0].File.Account.Username)
	assert.Equal(t, "zed@example.com", entries[1].File.Account.Username)
	assert.Equal(t, []string{"broken.json"}, skipped)
}

func TestList_MissingDir(t *testing.T) {
	entries, err := List(filepath.Join(t.TempDir(), "absent"), nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileName_Deterministic(t *testing.T) {
	assert.Equal(t, FileName("abc"), FileName("abc"))
	assert.NotEqual(t, FileName("abc"), FileName("abd"))
	assert.Contains(t, FileName("abc"), "account-")
}
