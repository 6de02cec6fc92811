package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"github.com/objectfs/rgwbridge/internal/storage/s3"
	"github.com/objectfs/rgwbridge/pkg/bridge"
	"github.com/objectfs/rgwbridge/pkg/errors"
	"github.com/objectfs/rgwbridge/pkg/utils"
)

// Backend types
const (
	BackendMemory = "memory"
	BackendS3     = "s3"
	BackendLibRGW = "librgw"
)

// Properties understood by ApplyProperties.
const (
	PropUserID       = "fs.ceph.rgw.userid"
	PropAccessKey    = "fs.ceph.rgw.access.key"
	PropSecretKey    = "fs.ceph.rgw.secret.key"
	PropIOBufferSize = "fs.ceph.rgw.io.buffer.size"
	propPrefix       = "fs.ceph.rgw."
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Mount      MountConfig      `yaml:"mount"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	Backend    BackendConfig    `yaml:"backend"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// GlobalConfig represents process-wide settings
type GlobalConfig struct {
	LogLevel      string `yaml:"log_level" validate:"oneof=DEBUG INFO WARN ERROR"`
	LogFile       string `yaml:"log_file"`
	LogFormat     string `yaml:"log_format" validate:"oneof=text json"`
	LogMaxSizeMB  int64  `yaml:"log_max_size_mb" validate:"gte=0"`
	LogMaxBackups int    `yaml:"log_max_backups" validate:"gte=0"`
}

// MountConfig holds the identity a session mounts as.
type MountConfig struct {
	UserID    string `yaml:"user_id"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	// Bucket, when set, makes relative paths resolve inside this bucket.
	Bucket string `yaml:"bucket" validate:"excludes=/"`
}

// BridgeConfig represents bridge behavior settings
type BridgeConfig struct {
	TimeUnit     string          `yaml:"time_unit" validate:"oneof=milliseconds seconds"`
	Ownership    OwnershipConfig `yaml:"ownership"`
	IOBufferSize string          `yaml:"io_buffer_size" validate:"required"`
}

// OwnershipConfig selects the owner of directories created by mkdir.
type OwnershipConfig struct {
	Policy string `yaml:"policy" validate:"oneof=root process fixed"`
	UID    uint32 `yaml:"uid"`
	GID    uint32 `yaml:"gid"`
}

// BackendConfig selects and configures the native library
type BackendConfig struct {
	Type   string       `yaml:"type" validate:"oneof=memory s3 librgw"`
	S3     s3.Config    `yaml:"s3"`
	LibRGW LibRGWConfig `yaml:"librgw"`
	Memory MemoryConfig `yaml:"memory"`
}

// LibRGWConfig represents librgw settings
type LibRGWConfig struct {
	// Args are passed to librgw_create; empty means the single "NULL"
	// placeholder argument.
	Args []string `yaml:"args"`
}

// MemoryConfig represents the in-memory library settings
type MemoryConfig struct {
	PageSize      int `yaml:"page_size" validate:"gte=0"`
	MaxWriteChunk int `yaml:"max_write_chunk" validate:"gte=0"`
}

// MonitoringConfig represents monitoring settings
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port" validate:"gte=0,lte=65535"`
	Path      string `yaml:"path" validate:"startswith=/"`
	Namespace string `yaml:"namespace" validate:"required"`
}

var validate = validator.New()

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:      "INFO",
			LogFormat:     "text",
			LogMaxSizeMB:  100,
			LogMaxBackups: 5,
		},
		Bridge: BridgeConfig{
			TimeUnit:     bridge.Milliseconds.String(),
			Ownership:    OwnershipConfig{Policy: string(bridge.OwnerRoot)},
			IOBufferSize: "16MB",
		},
		Backend: BackendConfig{
			Type:   BackendMemory,
			S3:     *s3.NewDefaultConfig(),
			Memory: MemoryConfig{PageSize: 64},
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:   false,
				Port:      9102,
				Path:      "/metrics",
				Namespace: "rgwbridge",
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to read config file").
			WithComponent("config").
			WithParam("file", filename).
			WithCause(err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to parse config file").
			WithComponent("config").
			WithParam("file", filename).
			WithCause(err)
	}

	return nil
}

// LoadFromEnv applies RGWBRIDGE_* environment overrides
func (c *Configuration) LoadFromEnv() error {
	str := map[string]*string{
		"RGWBRIDGE_LOG_LEVEL":         &c.Global.LogLevel,
		"RGWBRIDGE_LOG_FILE":          &c.Global.LogFile,
		"RGWBRIDGE_LOG_FORMAT":        &c.Global.LogFormat,
		"RGWBRIDGE_USER_ID":           &c.Mount.UserID,
		"RGWBRIDGE_ACCESS_KEY":        &c.Mount.AccessKey,
		"RGWBRIDGE_SECRET_KEY":        &c.Mount.SecretKey,
		"RGWBRIDGE_BUCKET":            &c.Mount.Bucket,
		"RGWBRIDGE_TIME_UNIT":         &c.Bridge.TimeUnit,
		"RGWBRIDGE_OWNERSHIP":         &c.Bridge.Ownership.Policy,
		"RGWBRIDGE_IO_BUFFER_SIZE":    &c.Bridge.IOBufferSize,
		"RGWBRIDGE_BACKEND":           &c.Backend.Type,
		"RGWBRIDGE_S3_REGION":         &c.Backend.S3.Region,
		"RGWBRIDGE_S3_ENDPOINT":       &c.Backend.S3.Endpoint,
		"RGWBRIDGE_S3_STORAGE_CLASS":  &c.Backend.S3.StorageClass,
		"RGWBRIDGE_METRICS_NAMESPACE": &c.Monitoring.Metrics.Namespace,
	}
	for key, dst := range str {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}

	if val := os.Getenv("RGWBRIDGE_S3_FORCE_PATH_STYLE"); val != "" {
		c.Backend.S3.ForcePathStyle = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("RGWBRIDGE_S3_CARGOSHIP"); val != "" {
		c.Backend.S3.EnableCargoShipOptimization = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("RGWBRIDGE_METRICS_ENABLED"); val != "" {
		c.Monitoring.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("RGWBRIDGE_METRICS_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return errors.NewError(errors.ErrCodeInvalidConfig, "invalid metrics port").
				WithComponent("config").
				WithParam("RGWBRIDGE_METRICS_PORT", val).
				WithCause(err)
		}
		c.Monitoring.Metrics.Port = port
	}
	if val := os.Getenv("RGWBRIDGE_LIBRGW_ARGS"); val != "" {
		c.Backend.LibRGW.Args = strings.Fields(val)
	}

	return nil
}

// ApplyProperties applies fs.ceph.rgw.* properties. Keys outside that
// prefix are ignored; unknown keys inside it are rejected.
func (c *Configuration) ApplyProperties(props map[string]string) error {
	for key, val := range props {
		switch key {
		case PropUserID:
			c.Mount.UserID = val
		case PropAccessKey:
			c.Mount.AccessKey = val
		case PropSecretKey:
			c.Mount.SecretKey = val
		case PropIOBufferSize:
			c.Bridge.IOBufferSize = val
		default:
			if strings.HasPrefix(key, propPrefix) {
				return errors.NewError(errors.ErrCodeInvalidConfig, "unknown property").
					WithComponent("config").
					WithParam("key", key)
			}
		}
	}
	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.NewError(errors.ErrCodeConfigSave, "failed to marshal config").WithCause(err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0o750); err != nil {
		return errors.NewError(errors.ErrCodeConfigSave, "failed to create config directory").
			WithParam("file", filename).
			WithCause(err)
	}

	// Credentials may be present, so the file is private to the owner.
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return errors.NewError(errors.ErrCodeConfigSave, "failed to write config file").
			WithParam("file", filename).
			WithCause(err)
	}

	return nil
}

// Validate checks struct tags and the cross-field rules.
func (c *Configuration) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	if _, err := c.IOBufferBytes(); err != nil {
		return invalid("bridge.io_buffer_size", err.Error())
	}

	if c.Backend.Type != BackendMemory {
		if c.Mount.UserID == "" {
			return invalid("mount.user_id", "required for the "+c.Backend.Type+" backend")
		}
		if c.Mount.AccessKey == "" || c.Mount.SecretKey == "" {
			return invalid("mount", "access_key and secret_key are required for the "+c.Backend.Type+" backend")
		}
	}

	if c.Monitoring.Metrics.Enabled && c.Monitoring.Metrics.Port == 0 {
		return invalid("monitoring.metrics.port", "must be set when metrics are enabled")
	}

	return nil
}

func invalid(field, msg string) error {
	return errors.NewError(errors.ErrCodeConfigValidation, msg).
		WithComponent("config").
		WithParam("field", field)
}

// formatValidationError reports the first failing field.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return invalid(e.Namespace(), fmt.Sprintf("validation failed on '%s' tag (value: %v)", e.Tag(), e.Value()))
	}
	return errors.NewError(errors.ErrCodeConfigValidation, "validation failed").WithCause(err)
}

// IOBufferBytes returns the parsed io_buffer_size.
func (c *Configuration) IOBufferBytes() (int64, error) {
	n, err := utils.ParseBytes(c.Bridge.IOBufferSize)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return n, nil
}

// TimeUnit returns the configured timestamp unit.
func (c *Configuration) TimeUnit() (bridge.TimeUnit, error) {
	return bridge.ParseTimeUnit(c.Bridge.TimeUnit)
}

// Ownership returns the configured mkdir ownership.
func (c *Configuration) Ownership() bridge.Ownership {
	return bridge.Ownership{
		Policy: bridge.OwnershipPolicy(c.Bridge.Ownership.Policy),
		UID:    c.Bridge.Ownership.UID,
		GID:    c.Bridge.Ownership.GID,
	}
}

// LoggerConfig returns the settings for utils.NewLogger.
func (c *Configuration) LoggerConfig() utils.LoggerConfig {
	return utils.LoggerConfig{
		Level:      c.Global.LogLevel,
		Format:     c.Global.LogFormat,
		File:       c.Global.LogFile,
		MaxSizeMB:  c.Global.LogMaxSizeMB,
		MaxBackups: c.Global.LogMaxBackups,
	}
}
