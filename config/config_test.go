package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "otcdeskd.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[auth]
admin_token = "secret"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8645", cfg.ListenAddress)
	require.Equal(t, "otcdesk.db", cfg.DatabasePath)
	require.Equal(t, "otcdesk-audit.db", cfg.AuditDatabasePath)
	require.Equal(t, "info", cfg.LogLevel)
	require.EqualValues(t, 600, cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, 20, cfg.RateLimit.Burst)
	require.Equal(t, "otcdeskd", cfg.Otel.ServiceName)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
listen = ":9000"
database = "/var/lib/otcdesk/desk.db"
audit_database = "/var/lib/otcdesk/audit.db"
log_level = "debug"

[auth]
admin_token = "secret"

[rate_limit]
requests_per_minute = 120
burst = 5

[otel]
enabled = true
endpoint = "collector:4318"
insecure = true
service_name = "otcdeskd-staging"

[[feeds]]
name = "native-usd"
endpoint = "https://oracle.example.com/native"
feed_id = "`+strings.Repeat("12", 32)+`"
interval_secs = 15
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, "debug", cfg.LogLevel)
	require.True(t, cfg.Otel.Enabled)
	require.Len(t, cfg.Feeds, 1)
	require.EqualValues(t, 15, cfg.Feeds[0].IntervalSecs)

	id, err := cfg.Feeds[0].DecodedFeedID()
	require.NoError(t, err)
	require.Equal(t, byte(0x12), id[0])
}

func TestLoadRequiresAdminToken(t *testing.T) {
	path := writeConfig(t, `listen = ":9000"`)
	_, err := Load(path)
	require.ErrorContains(t, err, "admin_token")
}

func TestLoadRejectsSharedDatabasePaths(t *testing.T) {
	path := writeConfig(t, `
database = "same.db"
audit_database = "same.db"

[auth]
admin_token = "secret"
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "must differ")
}

func TestLoadRejectsBadFeeds(t *testing.T) {
	missingEndpoint := writeConfig(t, `
[auth]
admin_token = "secret"

[[feeds]]
name = "broken"
feed_id = "`+strings.Repeat("ab", 32)+`"
`)
	_, err := Load(missingEndpoint)
	require.ErrorContains(t, err, "endpoint required")

	shortID := writeConfig(t, `
[auth]
admin_token = "secret"

[[feeds]]
name = "short"
endpoint = "https://oracle.example.com"
feed_id = "abcd"
`)
	_, err = Load(shortID)
	require.ErrorContains(t, err, "feed_id")

	duplicate := writeConfig(t, `
[auth]
admin_token = "secret"

[[feeds]]
name = "a"
endpoint = "https://oracle.example.com/a"
feed_id = "`+strings.Repeat("cd", 32)+`"

[[feeds]]
name = "b"
endpoint = "https://oracle.example.com/b"
feed_id = "`+strings.Repeat("cd", 32)+`"
`)
	_, err = Load(duplicate)
	require.ErrorContains(t, err, "duplicate feed_id")
}
