package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"media-forge/internal/logging"
	"media-forge/internal/workers"
)

// DefaultConfigFile is read when MEDIAFORGE_CONFIG is not set and the file
// exists in the working directory.
const DefaultConfigFile = "mediaforge.yaml"

// ByteSize is a size in bytes that also accepts humanized strings such as
// "25MiB" or "200 MB" in YAML and environment variables.
type ByteSize int64

// UnmarshalYAML accepts integers and humanized size strings.
func (b *ByteSize) UnmarshalYAML(n *yaml.Node) error {
	v, err := parseSize(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*b = ByteSize(v)
	return nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

func parseSize(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("size %q is negative", raw)
		}
		return n, nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", raw, err)
	}
	return int64(n), nil
}

// Config holds all application configuration.
type Config struct {
	Port            string `yaml:"port"`
	MetricsPort     string `yaml:"metrics_port"`
	MetricsEnabled  bool   `yaml:"metrics_enabled"`
	LogHealthChecks bool   `yaml:"log_health_checks"`
	TempDir         string `yaml:"temp_dir"`

	// Input normalization bounds.
	MinResolution int     `yaml:"min_resolution"`
	MaxResolution int     `yaml:"max_resolution"`
	MaxFrames     int     `yaml:"max_frames"`
	MaxFPS        float64 `yaml:"max_fps"`

	// Output size envelope.
	UploadSizeLimit ByteSize `yaml:"upload_size_limit"`
	AbortSizeLimit  ByteSize `yaml:"abort_size_limit"`
	SoftSizeLimit   ByteSize `yaml:"soft_size_limit"`

	MaxDownloadSize ByteSize      `yaml:"max_download_size"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`

	// QueueCapacity bounds concurrent jobs; 0 disables gating.
	QueueCapacity   int `yaml:"queue_capacity"`
	VipsConcurrency int `yaml:"vips_concurrency"`

	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`

	// Source is the YAML file the config was read from, if any.
	Source string `yaml:"-"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:            "8080",
		MetricsPort:     "9090",
		MetricsEnabled:  true,
		LogHealthChecks: true,
		TempDir:         filepath.Join(os.TempDir(), "media-forge"),
		MinResolution:   100,
		MaxResolution:   1920,
		MaxFrames:       1024,
		MaxFPS:          30,
		UploadSizeLimit: 25 * humanize.MiByte,
		AbortSizeLimit:  200 * humanize.MiByte,
		MaxDownloadSize: 100 * humanize.MiByte,
		RequestTimeout:  10 * time.Minute,
		QueueCapacity:   workers.ForCPU(8),
		VipsConcurrency: workers.ForCPU(4),
		FFmpegPath:      "ffmpeg",
		FFprobePath:     "ffprobe",
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and environment variables, in increasing precedence.
// It does not touch the filesystem beyond reading path.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
		cfg.Source = path
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigPath returns the YAML file to read, or "" for none.
func ConfigPath() string {
	if p := os.Getenv("MEDIAFORGE_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}
	return ""
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.MetricsPort = getEnv("METRICS_PORT", c.MetricsPort)
	c.MetricsEnabled = getEnvBool("METRICS_ENABLED", c.MetricsEnabled)
	c.LogHealthChecks = getEnvBool("LOG_HEALTH_CHECKS", c.LogHealthChecks)
	c.TempDir = getEnv("TEMP_DIR", c.TempDir)
	c.FFmpegPath = getEnv("FFMPEG_PATH", c.FFmpegPath)
	c.FFprobePath = getEnv("FFPROBE_PATH", c.FFprobePath)

	c.MinResolution = getEnvInt("MIN_RESOLUTION", c.MinResolution)
	c.MaxResolution = getEnvInt("MAX_RESOLUTION", c.MaxResolution)
	c.MaxFrames = getEnvInt("MAX_FRAMES", c.MaxFrames)
	c.MaxFPS = getEnvFloat("MAX_FPS", c.MaxFPS)
	c.QueueCapacity = workers.FromEnv("QUEUE_CAPACITY", c.QueueCapacity)
	c.VipsConcurrency = workers.FromEnv("VIPS_CONCURRENCY", c.VipsConcurrency)
	c.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout)

	var errs []error
	for _, s := range []struct {
		key string
		dst *ByteSize
	}{
		{"UPLOAD_SIZE_LIMIT", &c.UploadSizeLimit},
		{"ABORT_SIZE_LIMIT", &c.AbortSizeLimit},
		{"SOFT_SIZE_LIMIT", &c.SoftSizeLimit},
		{"MAX_DOWNLOAD_SIZE", &c.MaxDownloadSize},
	} {
		raw := os.Getenv(s.key)
		if raw == "" {
			continue
		}
		v, err := parseSize(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.key, err))
			continue
		}
		*s.dst = ByteSize(v)
	}
	return errors.Join(errs...)
}

// Validate checks that the settings are usable together.
func (c *Config) Validate() error {
	var errs []error
	if c.UploadSizeLimit <= 0 {
		errs = append(errs, errors.New("UPLOAD_SIZE_LIMIT must be positive"))
	}
	if c.AbortSizeLimit < c.UploadSizeLimit {
		errs = append(errs, fmt.Errorf("ABORT_SIZE_LIMIT (%s) must be at least UPLOAD_SIZE_LIMIT (%s)", c.AbortSizeLimit, c.UploadSizeLimit))
	}
	if c.SoftSizeLimit > c.UploadSizeLimit {
		errs = append(errs, fmt.Errorf("SOFT_SIZE_LIMIT (%s) must not exceed UPLOAD_SIZE_LIMIT (%s)", c.SoftSizeLimit, c.UploadSizeLimit))
	}
	if c.MinResolution < 1 || c.MaxResolution < c.MinResolution {
		errs = append(errs, fmt.Errorf("resolution range %d..%d is invalid", c.MinResolution, c.MaxResolution))
	}
	if c.MaxFrames < 1 {
		errs = append(errs, errors.New("MAX_FRAMES must be positive"))
	}
	if c.MaxFPS <= 0 {
		errs = append(errs, errors.New("MAX_FPS must be positive"))
	}
	if c.TempDir == "" {
		errs = append(errs, errors.New("TEMP_DIR must not be empty"))
	}
	return errors.Join(errs...)
}

func (c *Config) log() {
	if c.Source != "" {
		logging.Info("  Config file:         %s", c.Source)
	}
	logging.Info("  PORT:                %s", c.Port)
	logging.Info("  METRICS_PORT:        %s", c.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", c.MetricsEnabled)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", c.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())
	logging.Info("  TEMP_DIR:            %s", c.TempDir)
	logging.Info("  MIN_RESOLUTION:      %d", c.MinResolution)
	logging.Info("  MAX_RESOLUTION:      %d", c.MaxResolution)
	logging.Info("  MAX_FRAMES:          %d", c.MaxFrames)
	logging.Info("  MAX_FPS:             %s", humanize.Ftoa(c.MaxFPS))
	logging.Info("  UPLOAD_SIZE_LIMIT:   %s", c.UploadSizeLimit)
	logging.Info("  ABORT_SIZE_LIMIT:    %s", c.AbortSizeLimit)
	if c.SoftSizeLimit > 0 {
		logging.Info("  SOFT_SIZE_LIMIT:     %s", c.SoftSizeLimit)
	} else {
		logging.Info("  SOFT_SIZE_LIMIT:     (upload limit)")
	}
	logging.Info("  MAX_DOWNLOAD_SIZE:   %s", c.MaxDownloadSize)
	logging.Info("  REQUEST_TIMEOUT:     %v", c.RequestTimeout)
	if c.QueueCapacity == 0 {
		logging.Info("  QUEUE_CAPACITY:      0 (gating disabled)")
	} else {
		logging.Info("  QUEUE_CAPACITY:      %d", c.QueueCapacity)
	}
	logging.Info("  VIPS_CONCURRENCY:    %d", c.VipsConcurrency)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logging.Warn("Invalid number for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
