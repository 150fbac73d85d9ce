package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"github.com/kelseyhightower/envconfig"
)

// envPrefix is the prefix for environment overrides, e.g. TABLODL_LOG_LEVEL.
const envPrefix = "tablodl"

// DefaultExtensions are the file extensions considered video files by the
// upload and validate operations.
var DefaultExtensions = []string{".mp4", ".mkv", ".avi", ".mov", ".m4v", ".mpg", ".mpeg"}

// Duration wraps time.Duration so TOML values and env values like "6h"
// decode through the same text path.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}

	*d = Duration(parsed)

	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// ByteSize is a byte count that accepts humanized strings such as "1MiB".
type ByteSize uint64

func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := humanize.ParseBytes(string(text))
	if err != nil {
		return err
	}

	*b = ByteSize(parsed)

	return nil
}

func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(humanize.IBytes(uint64(b))), nil
}

// Config is the resolved process configuration. Values come from the TOML
// config file, then TABLODL_* environment variables, then command flags,
// in increasing precedence. Core components receive it already resolved
// and never read configuration sources themselves.
type Config struct {
	Devices   DevicesConfig   `toml:"devices"`
	Paths     PathsConfig     `toml:"paths"`
	Sync      SyncConfig      `toml:"sync"`
	Match     MatchConfig     `toml:"match"`
	Download  DownloadConfig  `toml:"download"`
	Upload    UploadConfig    `toml:"upload"`
	Serve     ServeConfig     `toml:"serve"`
	Cleanup   CleanupConfig   `toml:"cleanup"`
	Notify    NotifyConfig    `toml:"notify"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Log       LogConfig       `toml:"log"`
}

type DevicesConfig struct {
	// IPs are static device addresses. When empty and Discovery is on, the
	// association server is queried instead.
	IPs       []string `toml:"ips" split_words:"true"`
	Discovery bool     `toml:"discovery" split_words:"true"`
	Timeout   Duration `toml:"timeout" split_words:"true"`
}

type PathsConfig struct {
	DataDir     string `toml:"data_dir" split_words:"true"`
	DownloadDir string `toml:"download_dir" split_words:"true"`
	// DBPath defaults to {data_dir}/catalog.db.
	DBPath string `toml:"db_path" envconfig:"DB_PATH"`
}

type SyncConfig struct {
	Concurrency int `toml:"concurrency" split_words:"true"`
}

type MatchConfig struct {
	MinSimilarity float64 `toml:"min_similarity" split_words:"true"`
}

type DownloadConfig struct {
	Timeout         Duration `toml:"timeout" split_words:"true"`
	Validate        bool     `toml:"validate" split_words:"true"`
	MinSize         ByteSize `toml:"min_size" split_words:"true"`
	DeleteOriginals bool     `toml:"delete_originals" split_words:"true"`
}

type UploadConfig struct {
	Provider    string   `toml:"provider" split_words:"true"`
	Dir         string   `toml:"dir" split_words:"true"`
	Extensions  []string `toml:"extensions" split_words:"true"`
	Concurrency int      `toml:"concurrency" split_words:"true"`
	NewestOnly  bool     `toml:"newest_only" split_words:"true"`
	Timeout     Duration `toml:"timeout" split_words:"true"`

	Putio PutioConfig `toml:"putio"`
	S3    S3Config    `toml:"s3"`
}

type PutioConfig struct {
	Token        string `toml:"token" split_words:"true"`
	ParentFolder string `toml:"parent_folder" split_words:"true"`
}

type S3Config struct {
	Bucket          string `toml:"bucket" split_words:"true"`
	Prefix          string `toml:"prefix" split_words:"true"`
	Region          string `toml:"region" split_words:"true"`
	AccessKeyID     string `toml:"access_key_id" envconfig:"ACCESS_KEY_ID"`
	SecretAccessKey string `toml:"secret_access_key" envconfig:"SECRET_ACCESS_KEY"`
}

type ServeConfig struct {
	BindAddress     string   `toml:"bind_address" split_words:"true"`
	Username        string   `toml:"username" split_words:"true"`
	Password        string   `toml:"password" split_words:"true"`
	SyncInterval    Duration `toml:"sync_interval" split_words:"true"`
	Follow          []string `toml:"follow" split_words:"true"`
	AutoUpload      bool     `toml:"auto_upload" split_words:"true"`
	ReadTimeout     Duration `toml:"read_timeout" split_words:"true"`
	WriteTimeout    Duration `toml:"write_timeout" split_words:"true"`
	IdleTimeout     Duration `toml:"idle_timeout" split_words:"true"`
	ShutdownTimeout Duration `toml:"shutdown_timeout" split_words:"true"`
}

type CleanupConfig struct {
	// Retention of 0 disables cleanup entirely.
	Retention Duration `toml:"retention" split_words:"true"`
	Interval  Duration `toml:"interval" split_words:"true"`
}

type NotifyConfig struct {
	DiscordWebhookURL string `toml:"discord_webhook_url" envconfig:"DISCORD_WEBHOOK_URL"`
	JellyfinURL       string `toml:"jellyfin_url" envconfig:"JELLYFIN_URL"`
	JellyfinToken     string `toml:"jellyfin_token" envconfig:"JELLYFIN_TOKEN"`
}

type TelemetryConfig struct {
	Enabled bool `toml:"enabled" split_words:"true"`
	// Exporter is "prometheus" (pull, serve mode) or "otlp" (push).
	Exporter     string `toml:"exporter" split_words:"true"`
	OTLPEndpoint string `toml:"otlp_endpoint" envconfig:"OTLP_ENDPOINT"`
}

type LogConfig struct {
	Level  string `toml:"level" split_words:"true"`
	Format string `toml:"format" split_words:"true"`
}

// Default returns the configuration before any source is applied.
// Defaults live here rather than in envconfig tags so that file values
// survive the env pass.
func Default() *Config {
	return &Config{
		Devices: DevicesConfig{
			Discovery: true,
			Timeout:   Duration(10 * time.Second),
		},
		Paths: PathsConfig{
			DataDir:     "~/.local/share/tablodl",
			DownloadDir: "~/Videos/Tablo",
		},
		Sync:  SyncConfig{Concurrency: 4},
		Match: MatchConfig{MinSimilarity: 0.5},
		Download: DownloadConfig{
			Timeout:  Duration(2 * time.Hour),
			Validate: true,
			MinSize:  ByteSize(1 << 20),
		},
		Upload: UploadConfig{
			Provider:    "putio",
			Extensions:  append([]string(nil), DefaultExtensions...),
			Concurrency: 2,
			Timeout:     Duration(1 * time.Hour),
		},
		Serve: ServeConfig{
			BindAddress:     "0.0.0.0:9091",
			SyncInterval:    Duration(6 * time.Hour),
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			IdleTimeout:     Duration(5 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
		},
		Cleanup: CleanupConfig{
			Interval: Duration(1 * time.Hour),
		},
		Telemetry: TelemetryConfig{
			Exporter:     "prometheus",
			OTLPEndpoint: "localhost:4317",
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// DefaultPath is the config file location used when --config is not given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}

	return filepath.Join(home, ".config", "tablodl", "config.toml")
}

// Load resolves the configuration from the file at path (skipped when the
// file does not exist) and the environment. Flag overrides are applied by
// the command layer on top of the returned value.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	cfg.normalize()

	return cfg, nil
}

func (c *Config) normalize() {
	c.Paths.DataDir = expandPath(c.Paths.DataDir)
	c.Paths.DownloadDir = expandPath(c.Paths.DownloadDir)

	if c.Paths.DBPath == "" {
		c.Paths.DBPath = filepath.Join(c.Paths.DataDir, "catalog.db")
	} else {
		c.Paths.DBPath = expandPath(c.Paths.DBPath)
	}

	if c.Upload.Dir == "" {
		c.Upload.Dir = c.Paths.DownloadDir
	} else {
		c.Upload.Dir = expandPath(c.Upload.Dir)
	}

	if len(c.Upload.Extensions) == 0 {
		c.Upload.Extensions = append([]string(nil), DefaultExtensions...)
	}

	for i, ext := range c.Upload.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}

		c.Upload.Extensions[i] = ext
	}
}

// Validate checks invariants that all operations rely on. Upload provider
// credentials are checked separately by ValidateUpload so read-only
// operations never demand cloud credentials.
func (c *Config) Validate() error {
	if c.Paths.DownloadDir == "" {
		return fmt.Errorf("paths.download_dir must be set")
	}

	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("sync.concurrency must be at least 1, got %d", c.Sync.Concurrency)
	}

	if c.Upload.Concurrency < 1 {
		return fmt.Errorf("upload.concurrency must be at least 1, got %d", c.Upload.Concurrency)
	}

	if c.Match.MinSimilarity <= 0 || c.Match.MinSimilarity > 1 {
		return fmt.Errorf("match.min_similarity must be in (0, 1], got %g", c.Match.MinSimilarity)
	}

	switch c.Upload.Provider {
	case "putio", "s3":
	case "":
		return fmt.Errorf("upload.provider must be set")
	default:
		return fmt.Errorf("invalid upload provider: %s", c.Upload.Provider)
	}

	switch c.Telemetry.Exporter {
	case "prometheus", "otlp":
	default:
		return fmt.Errorf("invalid telemetry exporter: %s", c.Telemetry.Exporter)
	}

	return nil
}

// ValidateUpload checks that the selected upload provider carries the
// credentials it needs. Called right before a cloud client is built.
func (c *Config) ValidateUpload() error {
	switch c.Upload.Provider {
	case "putio":
		if c.Upload.Putio.Token == "" {
			return fmt.Errorf("upload.putio.token is required for the putio provider")
		}
	case "s3":
		if c.Upload.S3.Bucket == "" || c.Upload.S3.Region == "" {
			return fmt.Errorf("upload.s3.bucket and upload.s3.region are required for the s3 provider")
		}
	default:
		return fmt.Errorf("invalid upload provider: %s", c.Upload.Provider)
	}

	return nil
}

// EnsureDirectories creates the directories the process writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.DownloadDir} {
		if dir == "" {
			continue
		}

		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating directory %s: %w", dir, err)
		}
	}

	return nil
}

// VideoExtension reports whether name has one of the configured video
// extensions.
func (c *Config) VideoExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range c.Upload.Extensions {
		if ext == want {
			return true
		}
	}

	return false
}

func expandPath(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}

	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}

	return path
}
