package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/rgwbridge/pkg/bridge"
	"github.com/objectfs/rgwbridge/pkg/errors"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.Global.LogLevel != "INFO" {
		t.Errorf("Expected LogLevel to be INFO, got %s", cfg.Global.LogLevel)
	}
	if cfg.Bridge.TimeUnit != "milliseconds" {
		t.Errorf("Expected milliseconds, got %s", cfg.Bridge.TimeUnit)
	}
	if cfg.Bridge.Ownership.Policy != "root" {
		t.Errorf("Expected root ownership, got %s", cfg.Bridge.Ownership.Policy)
	}
	if n, err := cfg.IOBufferBytes(); err != nil || n != 16*1024*1024 {
		t.Errorf("Expected 16MB io buffer, got %d (%v)", n, err)
	}
	if cfg.Backend.Type != BackendMemory {
		t.Errorf("Expected memory backend, got %s", cfg.Backend.Type)
	}
	if cfg.Backend.S3.PageSize != 1000 {
		t.Errorf("Expected S3 page size 1000, got %d", cfg.Backend.S3.PageSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default configuration should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Configuration)
		field  string
	}{
		{
			name:   "invalid log level",
			mutate: func(c *Configuration) { c.Global.LogLevel = "LOUD" },
			field:  "Configuration.Global.LogLevel",
		},
		{
			name:   "invalid time unit",
			mutate: func(c *Configuration) { c.Bridge.TimeUnit = "minutes" },
			field:  "Configuration.Bridge.TimeUnit",
		},
		{
			name:   "invalid ownership policy",
			mutate: func(c *Configuration) { c.Bridge.Ownership.Policy = "nobody" },
			field:  "Configuration.Bridge.Ownership.Policy",
		},
		{
			name:   "invalid backend",
			mutate: func(c *Configuration) { c.Backend.Type = "nfs" },
			field:  "Configuration.Backend.Type",
		},
		{
			name:   "bucket with slash",
			mutate: func(c *Configuration) { c.Mount.Bucket = "a/b" },
			field:  "Configuration.Mount.Bucket",
		},
		{
			name:   "unparseable io buffer",
			mutate: func(c *Configuration) { c.Bridge.IOBufferSize = "huge" },
			field:  "bridge.io_buffer_size",
		},
		{
			name:   "zero io buffer",
			mutate: func(c *Configuration) { c.Bridge.IOBufferSize = "0" },
			field:  "bridge.io_buffer_size",
		},
		{
			name:   "s3 without user",
			mutate: func(c *Configuration) { c.Backend.Type = BackendS3 },
			field:  "mount.user_id",
		},
		{
			name: "librgw without keys",
			mutate: func(c *Configuration) {
				c.Backend.Type = BackendLibRGW
				c.Mount.UserID = "testid"
			},
			field: "mount",
		},
		{
			name: "metrics enabled without port",
			mutate: func(c *Configuration) {
				c.Monitoring.Metrics.Enabled = true
				c.Monitoring.Metrics.Port = 0
			},
			field: "monitoring.metrics.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeConfigValidation), "got %v", err)

			var be *errors.BridgeError
			require.ErrorAs(t, err, &be)
			field, _ := be.Param("field")
			assert.Equal(t, tt.field, field)
		})
	}
}

func TestValidate_CompleteS3(t *testing.T) {
	cfg := NewDefault()
	cfg.Backend.Type = BackendS3
	cfg.Mount = MountConfig{UserID: "testid", AccessKey: "AKIA", SecretKey: "secret"}
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	content := `
global:
  log_level: DEBUG
  log_format: json
mount:
  user_id: testid
  access_key: AKIAEXAMPLE
  secret_key: secret
  bucket: warehouse
bridge:
  time_unit: seconds
  ownership:
    policy: fixed
    uid: 1000
    gid: 100
  io_buffer_size: 4MB
backend:
  type: s3
  s3:
    region: eu-west-1
    endpoint: http://rgw.local:7480
    force_path_style: true
    page_size: 250
    request_timeout: 10s
monitoring:
  metrics:
    enabled: true
    port: 9200
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := NewDefault()
	require.NoError(t, cfg.LoadFromFile(path))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "DEBUG", cfg.Global.LogLevel)
	assert.Equal(t, "warehouse", cfg.Mount.Bucket)
	assert.Equal(t, "http://rgw.local:7480", cfg.Backend.S3.Endpoint)
	assert.True(t, cfg.Backend.S3.ForcePathStyle)
	assert.Equal(t, 250, cfg.Backend.S3.PageSize)
	assert.Equal(t, 10*time.Second, cfg.Backend.S3.RequestTimeout)
	assert.Equal(t, "eu-west-1", cfg.Backend.S3.Region)
	assert.Equal(t, "/metrics", cfg.Monitoring.Metrics.Path, "unset keys keep defaults")

	unit, err := cfg.TimeUnit()
	require.NoError(t, err)
	assert.Equal(t, bridge.Seconds, unit)
	assert.Equal(t, bridge.Ownership{Policy: bridge.OwnerFixed, UID: 1000, GID: 100}, cfg.Ownership())

	n, err := cfg.IOBufferBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(4*1024*1024), n)
}

func TestLoadFromFile_Errors(t *testing.T) {
	cfg := NewDefault()

	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigLoad))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("global: [unclosed"), 0o600))
	err = cfg.LoadFromFile(bad)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigLoad))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RGWBRIDGE_LOG_LEVEL", "WARN")
	t.Setenv("RGWBRIDGE_USER_ID", "envuser")
	t.Setenv("RGWBRIDGE_ACCESS_KEY", "AK")
	t.Setenv("RGWBRIDGE_SECRET_KEY", "SK")
	t.Setenv("RGWBRIDGE_BACKEND", "librgw")
	t.Setenv("RGWBRIDGE_TIME_UNIT", "seconds")
	t.Setenv("RGWBRIDGE_S3_FORCE_PATH_STYLE", "TRUE")
	t.Setenv("RGWBRIDGE_METRICS_PORT", "9300")
	t.Setenv("RGWBRIDGE_LIBRGW_ARGS", "--name client.rgw --conf /etc/ceph/ceph.conf")

	cfg := NewDefault()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "WARN", cfg.Global.LogLevel)
	assert.Equal(t, "envuser", cfg.Mount.UserID)
	assert.Equal(t, BackendLibRGW, cfg.Backend.Type)
	assert.Equal(t, "seconds", cfg.Bridge.TimeUnit)
	assert.True(t, cfg.Backend.S3.ForcePathStyle)
	assert.Equal(t, 9300, cfg.Monitoring.Metrics.Port)
	assert.Equal(t, []string{"--name", "client.rgw", "--conf", "/etc/ceph/ceph.conf"}, cfg.Backend.LibRGW.Args)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv_BadPort(t *testing.T) {
	t.Setenv("RGWBRIDGE_METRICS_PORT", "http")
	err := NewDefault().LoadFromEnv()
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))
}

func TestApplyProperties(t *testing.T) {
	cfg := NewDefault()
	err := cfg.ApplyProperties(map[string]string{
		PropUserID:       "testid",
		PropAccessKey:    "AK",
		PropSecretKey:    "SK",
		PropIOBufferSize: "8388608",
		"fs.defaultFS":   "rgw://bucket",
	})
	require.NoError(t, err)
	assert.Equal(t, MountConfig{UserID: "testid", AccessKey: "AK", SecretKey: "SK"}, cfg.Mount)
	n, err := cfg.IOBufferBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(8*1024*1024), n)

	err = cfg.ApplyProperties(map[string]string{"fs.ceph.rgw.userId": "typo"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))
}

func TestSaveToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bridge.yaml")
	cfg := NewDefault()
	cfg.Mount.UserID = "saved"
	cfg.Backend.Memory.PageSize = 7
	require.NoError(t, cfg.SaveToFile(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "user_id: saved"))

	loaded := NewDefault()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, "saved", loaded.Mount.UserID)
	assert.Equal(t, 7, loaded.Backend.Memory.PageSize)
	assert.Equal(t, cfg.Backend.S3.RequestTimeout, loaded.Backend.S3.RequestTimeout)
}

func TestLoggerConfig(t *testing.T) {
	cfg := NewDefault()
	cfg.Global.LogFile = "/var/log/rgwbridge.log"

	lc := cfg.LoggerConfig()
	assert.Equal(t, "INFO", lc.Level)
	assert.Equal(t, "/var/log/rgwbridge.log", lc.File)
	assert.Equal(t, int64(100), lc.MaxSizeMB)
}
