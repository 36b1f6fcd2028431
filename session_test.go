package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/screener-go/internal/sessions"
	"github.com/tonimelisma/screener-go/internal/testsrv"
)

func TestSession_CreateListCurrent(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")

	id := strings.TrimSpace(h.mustRun(t, "session", "create", "Backend hires"))
	require.NotEmpty(t, id)
	assert.Equal(t, id, h.srv.Active("guest"))

	list := h.mustRun(t, "session", "list")
	assert.Contains(t, list, "Backend hires")
	assert.Contains(t, list, "*  "+id)

	current := h.mustRun(t, "session", "current")
	assert.Equal(t, id+"\n", current)
}

func TestSession_ListJSON(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")
	older := h.srv.SeedSession("guest", "Older")
	newer := h.srv.SeedSession("guest", "Newer")

	out := h.mustRun(t, "--json", "session", "list")

	var got []sessionJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)

	byID := map[string]sessionJSON{}
	for _, s := range got {
		byID[s.ID] = s
	}

	assert.Equal(t, "Older", byID[older].Name)
	assert.False(t, byID[older].Active)
	assert.True(t, byID[newer].Active)
}

func TestSession_ListEmpty(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")

	// Asking for the active session creates one on the service.
	out := h.mustRun(t, "--json", "session", "list")

	var got []sessionJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.True(t, got[0].Active)
}

func TestSession_CreateBlankNameNeverCallsService(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")

	_, stderr, err := h.run(t, "", "session", "create", "   ")
	require.Error(t, err)

	var verr *sessions.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Contains(t, stderr, "Could not create session")
	assert.Zero(t, h.srv.TotalCalls())
}

func TestSession_Use(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")
	first := h.srv.SeedSession("guest", "First")
	h.srv.SeedSession("guest", "Second")

	_, stderr, err := h.run(t, "", "session", "use", first)
	require.NoError(t, err)

	assert.Equal(t, first, h.srv.Active("guest"))
	assert.Contains(t, stderr, "Switched to session")
}

func TestSession_Rename(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")
	id := h.srv.SeedSession("guest", "Draft")

	h.mustRun(t, "session", "rename", id, "  Final  ")

	assert.Equal(t, []string{"Final"}, h.srv.SessionNames("guest"))
}

func TestSession_DeleteDeclined(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")
	id := h.srv.SeedSession("guest", "Keep me")

	_, stderr, err := h.run(t, "n\n", "session", "delete", id)
	require.NoError(t, err, "declining is not an error")

	assert.Contains(t, stderr, `Delete session "Keep me" and its 0 files? [y/N]`)
	assert.Contains(t, stderr, "Session not deleted")
	assert.Zero(t, h.srv.Calls(testsrv.RouteDelete))
	assert.Equal(t, []string{"Keep me"}, h.srv.SessionNames("guest"))
}

func TestSession_DeleteActiveConfirmed(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")
	h.srv.SeedSession("guest", "Keep")
	drop := h.srv.SeedSession("guest", "Drop")
	require.Equal(t, drop, h.srv.Active("guest"))

	_, stderr, err := h.run(t, "yes\n", "session", "delete", drop)
	require.NoError(t, err)

	assert.Contains(t, stderr, "Deleted session Drop")
	assert.Equal(t, 1, h.srv.Calls(testsrv.RouteDelete))

	// The service picks a fresh active session once the old one is gone.
	active := h.srv.Active("guest")
	assert.NotEmpty(t, active)
	assert.NotEqual(t, drop, active)

	names := h.srv.SessionNames("guest")
	assert.Contains(t, names, "Keep")
	assert.NotContains(t, names, "Drop")
}

func TestSession_DeleteInactiveConfirmed(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")
	drop := h.srv.SeedSession("guest", "Drop")
	keep := h.srv.SeedSession("guest", "Keep")

	_, _, err := h.run(t, "y\n", "session", "delete", drop)
	require.NoError(t, err)

	assert.Equal(t, keep, h.srv.Active("guest"))
	assert.Equal(t, []string{"Keep"}, h.srv.SessionNames("guest"))
}

func TestSession_DeleteYesSkipsPrompt(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")
	h.srv.SeedSession("guest", "Stay")
	id := h.srv.SeedSession("guest", "Gone")

	_, stderr, err := h.run(t, "", "session", "delete", "--yes", id)
	require.NoError(t, err)

	assert.NotContains(t, stderr, "[y/N]")
	assert.Equal(t, 1, h.srv.Calls(testsrv.RouteDelete))
	assert.NotContains(t, h.srv.SessionNames("guest"), "Gone")
}

func TestSession_Files(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")
	id := h.srv.SeedSession("guest", "Screening")

	h.mustRun(t, "upload", h.writeResume(t, "alice.pdf", "alice"), h.writeResume(t, "bob.txt", "bob"))

	out := h.mustRun(t, "session", "files", id)
	assert.Contains(t, out, "raw_resumes/alice.pdf")
	assert.Contains(t, out, "raw_resumes/bob.txt")

	filtered := h.mustRun(t, "--json", "session", "files", "--prefix", "raw_resumes/a", id)

	var files []string
	require.NoError(t, json.Unmarshal([]byte(filtered), &files))
	assert.Equal(t, []string{"raw_resumes/alice.pdf"}, files)
}

func TestSession_FilesJSONEmptyIsArray(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")
	id := h.srv.SeedSession("guest", "Empty")

	out := h.mustRun(t, "--json", "session", "files", id)
	assert.Equal(t, "[]\n", out)
}

func TestSession_ServiceFailureReportedOnce(t *testing.T) {
	t.Parallel()

	h := newCLIHarness(t, "")
	h.srv.FailNext(testsrv.RouteCreate, 500, "storage offline")

	_, stderr, err := h.run(t, "", "session", "create", "Anything")
	require.Error(t, err)

	var shown reportedError
	assert.ErrorAs(t, err, &shown)
	assert.Equal(t, 1, strings.Count(stderr, "Could not create session"))
	assert.Contains(t, stderr, "storage offline")
}

func TestPromptConfirmer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"Y\n", true},
		{" yes \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yes", true},
		{"nope\n", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer

			confirm := promptConfirmer(strings.NewReader(tt.input), &out)

			got, err := confirm.Confirm(context.Background(), sessions.Session{ID: "s1", Name: "Batch", FileCount: 3})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), `Delete session "Batch" and its 3 files?`)
		})
	}
}

func TestPromptConfirmer_FallsBackToID(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	_, err := promptConfirmer(strings.NewReader("n\n"), &out).Confirm(context.Background(), sessions.Session{ID: "s1"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"s1"`)
}

func TestPromptConfirmer_ReadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("terminal gone")

	got, err := promptConfirmer(iotest.ErrReader(boom), &bytes.Buffer{}).Confirm(context.Background(), sessions.Session{ID: "s1"})
	require.ErrorIs(t, err, boom)
	assert.False(t, got)
}
