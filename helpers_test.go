package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/screener-go/internal/testsrv"
)

// cliHarness runs the real command tree against a fake service with an
// isolated data directory.
type cliHarness struct {
	srv     *testsrv.Server
	dir     string
	cfgPath string
}

func newCLIHarness(t *testing.T, extraTOML string) *cliHarness {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")

	content := fmt.Sprintf("data_dir = %q\n", filepath.Join(dir, "data")) + extraTOML
	if !strings.Contains(extraTOML, "[identity]") {
		content += "\n[identity]\ninteractive_fallback = false\n"
	}

	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	return &cliHarness{srv: testsrv.New(t), dir: dir, cfgPath: cfgPath}
}

// run executes one command line and returns stdout and stderr.
func (h *cliHarness) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	return h.runContext(context.Background(), stdin, args...)
}

func (h *cliHarness) runContext(ctx context.Context, stdin string, args ...string) (string, string, error) {
	cmd := newRootCmd()

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", h.cfgPath, "--api-url", h.srv.URL()}, args...))

	err := cmd.ExecuteContext(ctx)

	return stdout.String(), stderr.String(), err
}

// mustRun is run that fails the test on error.
func (h *cliHarness) mustRun(t *testing.T, args ...string) string {
	t.Helper()

	stdout, stderr, err := h.run(t, "", args...)
	require.NoError(t, err, "stderr: %s", stderr)

	return stdout
}

// writeResume creates a file in the harness directory and returns its path.
func (h *cliHarness) writeResume(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}
