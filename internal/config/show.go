package config

import (
	"fmt"
	"io"
	"strings"
)

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. Powers the "config show" command.
func RenderEffective(cfg *Config, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration\n\n")
	ew.printf("data_dir = %q\n\n", dataDir(cfg))

	ew.printf("[service]\n")
	ew.printf("  api_url            = %q\n", cfg.Service.APIURL)
	ew.printf("  anonymous_identity = %q\n\n", cfg.Service.AnonymousIdentity)

	ew.printf("[identity]\n")
	ew.printf("  client_id            = %q\n", cfg.Identity.ClientID)
	ew.printf("  tenant               = %q\n", cfg.Identity.Tenant)
	ew.printf("  scopes               = [%s]\n", joinQuoted(cfg.Identity.Scopes))
	ew.printf("  interactive_fallback = %t\n\n", cfg.Identity.InteractiveFallback)

	ew.printf("[session]\n")
	ew.printf("  heartbeat_interval = %q\n\n", cfg.Session.HeartbeatInterval)

	ew.printf("[transfers]\n")
	ew.printf("  parallel_uploads = %d\n", cfg.Transfers.ParallelUploads)
	ew.printf("  upload_patterns  = [%s]\n\n", joinQuoted(cfg.Transfers.UploadPatterns))

	ew.printf("[logging]\n")
	ew.printf("  log_level = %q\n\n", cfg.Logging.LogLevel)

	ew.printf("[network]\n")
	ew.printf("  connect_timeout = %q\n", cfg.Network.ConnectTimeout)
	ew.printf("  data_timeout    = %q\n", cfg.Network.DataTimeout)
	ew.printf("  max_retries     = %d\n", cfg.Network.MaxRetries)

	if cfg.Network.UserAgent != "" {
		ew.printf("  user_agent      = %q\n", cfg.Network.UserAgent)
	}

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}

	return strings.Join(quoted, ", ")
}
