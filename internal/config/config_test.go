package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
http:
  timeout_seconds: 45
  max_retries: 4
  backoff_initial_ms: 100
  backoff_max_ms: 500
  max_body_bytes: 1048576
  user_agent: harvest-agent
storage:
  backend: gcs
  gcs_bucket: bills-archive
db:
  dsn: postgres://localhost/lexharvest
pubsub:
  project_id: civic
  topic_name: bill-records
extraction:
  endpoint: http://extractor:8000/extract
ops:
  enabled: true
  port: 9191
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 45*time.Second, cfg.HTTPTimeout())
	require.Equal(t, int64(1048576), cfg.HTTP.MaxBodyBytes)
	require.Equal(t, "gcs", cfg.Storage.Backend)
	require.Equal(t, "bills-archive", cfg.Storage.GCSBucket)
	require.Equal(t, "bill-records", cfg.PubSub.TopicName)
	require.Equal(t, 9191, cfg.Ops.Port)
	require.False(t, cfg.Logging.Development)

	initial, max := cfg.Backoff()
	require.Equal(t, 100*time.Millisecond, initial)
	require.Equal(t, 500*time.Millisecond, max)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, int64(200<<20), cfg.HTTP.MaxBodyBytes)
	require.Equal(t, "local", cfg.Storage.Backend)
	require.True(t, cfg.Logging.Development)
}

func TestValidateRejectsBadBackend(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Storage.Backend = "s3"
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresBucketForGCS(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Storage.Backend = "gcs"
	cfg.Storage.GCSBucket = ""
	require.Error(t, cfg.Validate())
}
