package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("RANGECLOUD_CLOUDDIRECTORY", "/srv/cloud")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, "/srv/cloud", cfg.CloudDirectory)
	assert.Equal(t, DefaultPublicHTTPPort, cfg.PublicHTTPPort)
	assert.Equal(t, DefaultPrivateHTTPPort, cfg.PrivateHTTPPort)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitPerSecond)
	assert.Equal(t, int64(-1), cfg.FileStoreMaxSize)
	assert.Equal(t, int64(-1), cfg.MaxReportLength)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadParsesFileWithStringNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configuration.json")
	doc := `{
  "cloudDirectory": "/srv/cloud",
  "publicHttpPort": "9080",
  "privateHttpPort": 9443,
  "rateLimitPerSecond": "2.5",
  "fileStoreMaxSize": "1000",
  "fileStoreMaxFileSize": "100Mi",
  "logging": {"level": "debug"}
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9080, cfg.PublicHTTPPort)
	assert.Equal(t, 9443, cfg.PrivateHTTPPort)
	assert.Equal(t, 2.5, cfg.RateLimitPerSecond)
	assert.Equal(t, int64(1000), cfg.FileStoreMaxSize)
	assert.Equal(t, int64(100*1024*1024), cfg.FileStoreMaxFileSize)
	// Level is normalized to uppercase.
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestLoadRejectsMissingCloudDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configuration.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"publicHttpPort": 8080}`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configuration.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"cloudDirectory":"/srv/cloud","publicHttpPort":70000}`), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDirectoryLayoutHelpers(t *testing.T) {
	cfg := GetDefaultConfig("/srv/cloud")

	assert.Equal(t, "/srv/cloud/etc", cfg.EtcDir())
	assert.Equal(t, "/srv/cloud/store", cfg.StoreDir())
	assert.Equal(t, "/srv/cloud/etc/users.json", cfg.UsersFile())
	assert.Equal(t, "/srv/cloud/etc/configuration.json", cfg.ConfigFile())
	assert.Equal(t, "/srv/cloud/cert/server/server.cert.pem", cfg.ServerCertFile())
	assert.Equal(t, "/srv/cloud/cert/server/server.key.pem", cfg.ServerKeyFile())
	assert.Equal(t, "/srv/cloud/cert/ca/ca-chain.cert.pem", cfg.CACertFile())

	cfg.FileStore = "/mnt/blobs"
	assert.Equal(t, "/mnt/blobs", cfg.StoreDir())

	cfg.PublicKey = "/etc/ssl/server.pem"
	assert.Equal(t, "/etc/ssl/server.pem", cfg.ServerCertFile())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "configuration.json")
	cfg := GetDefaultConfig("/srv/cloud")
	cfg.SenderEmailAddress = "cloud@example.com"

	require.NoError(t, Save(cfg, path))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.CloudDirectory, loaded.CloudDirectory)
	assert.Equal(t, cfg.SenderEmailAddress, loaded.SenderEmailAddress)
	assert.Equal(t, cfg.RateLimitPerSecond, loaded.RateLimitPerSecond)
}
