package s3

import (
	"time"

	"github.com/objectfs/rgwbridge/internal/circuit"
	"github.com/objectfs/rgwbridge/pkg/retry"
)

// Storage classes accepted by StorageClass.
const (
	TierStandard    = "STANDARD"
	TierStandardIA  = "STANDARD_IA"
	TierOneZoneIA   = "ONEZONE_IA"
	TierGlacier     = "GLACIER"
	TierDeepArchive = "DEEP_ARCHIVE"
	TierIntelligent = "INTELLIGENT_TIERING"
)

// Config represents S3 native library configuration
type Config struct {
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`

	// Performance settings
	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// PageSize is the MaxKeys of each listing request, which is also the
	// number of entries delivered per Readdir call.
	PageSize int `yaml:"page_size"`

	// StorageClass applied to objects written through the library.
	StorageClass string `yaml:"storage_class"`

	// CargoShip optimization settings
	EnableCargoShipOptimization bool `yaml:"enable_cargoship_optimization"`
	Concurrency                 int  `yaml:"concurrency"`

	// Retry governs retries of throttled or failed backend requests.
	Retry retry.Config `yaml:"retry"`

	// Circuit stops requests for a while after repeated store failures.
	Circuit circuit.Config `yaml:"circuit_breaker"`
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Region:         "us-east-1",
		MaxRetries:     3,
		RequestTimeout: 30 * time.Second,
		PageSize:       1000,
		StorageClass:   TierStandard,
		Concurrency:    8,
		Retry:          retry.DefaultConfig(),
		Circuit:        circuit.DefaultConfig(),
	}
}

func (c *Config) applyDefaults() {
	d := NewDefaultConfig()
	if c.Region == "" {
		c.Region = d.Region
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.PageSize <= 0 || c.PageSize > 1000 {
		c.PageSize = d.PageSize
	}
	if c.StorageClass == "" {
		c.StorageClass = d.StorageClass
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
}
