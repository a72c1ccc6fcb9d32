package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Cache     CacheConfig
	Redis     RedisConfig
	S3        S3Config
	Upload    UploadConfig
	YTDLP     YTDLPConfig
	Watermark WatermarkConfig
}

type ServerConfig struct {
	APIKey          string        `envconfig:"API_KEY" default:"test-api-key"`
	Host            string        `envconfig:"HOST" default:"127.0.0.1"`
	Port            int           `envconfig:"PORT" default:"3000"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"15s"`
	AutoSyncVideos  bool          `envconfig:"AUTO_SYNC_VIDEOS" default:"false"`
}

type BrowserConfig struct {
	Type            string        `envconfig:"BROWSER_TYPE" default:"puppeteer"`
	ExecutablePath  string        `envconfig:"BROWSER_EXECUTABLE_PATH"`
	Args            string        `envconfig:"BROWSER_ARGS" default:"[]"`
	ViewportWidth   int           `envconfig:"BROWSER_VIEWPORT_WIDTH" default:"1920"`
	ViewportHeight  int           `envconfig:"BROWSER_VIEWPORT_HEIGHT" default:"1080"`
	ViewportScale   float64       `envconfig:"BROWSER_VIEWPORT_SCALE" default:"1"`
	Timeout         time.Duration `envconfig:"BROWSER_TIMEOUT" default:"30s"`
	WaitUntil       string        `envconfig:"BROWSER_WAIT_UNTIL" default:"load"`
	Headless        bool          `envconfig:"BROWSER_HEADLESS" default:"true"`
	Dumpio          bool          `envconfig:"BROWSER_DUMPIO" default:"false"`
	MaxConcurrency  int           `envconfig:"BROWSER_MAX_CONCURRENCY" default:"3"`
	MaxPagesPerSlot int           `envconfig:"BROWSER_MAX_PAGES_PER_BROWSER" default:"30"`
	TTL             time.Duration `envconfig:"BROWSER_TTL" default:"30m"`
	SweepInterval   time.Duration `envconfig:"BROWSER_SWEEP_INTERVAL" default:"5m"`
}

// ParsedArgs decodes the BROWSER_ARGS JSON array into extra chromium flags.
func (c BrowserConfig) ParsedArgs() ([]string, error) {
	if c.Args == "" {
		return nil, nil
	}
	var args []string
	if err := json.Unmarshal([]byte(c.Args), &args); err != nil {
		return nil, fmt.Errorf("BROWSER_ARGS must be a JSON array: %w", err)
	}
	return args, nil
}

type CacheConfig struct {
	TTL time.Duration `envconfig:"CACHE_TTL" default:"1h"`
}

type RedisConfig struct {
	Enabled   bool   `envconfig:"REDIS_ENABLED" default:"false"`
	URL       string `envconfig:"REDIS_URL" default:"redis://localhost:6379"`
	Password  string `envconfig:"REDIS_PASSWORD"`
	KeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"mediagate:"`
}

type S3Config struct {
	Endpoint        string `envconfig:"S3_ENDPOINT"`
	Bucket          string `envconfig:"S3_BUCKET"`
	Region          string `envconfig:"S3_REGION" default:"us-east-1"`
	AccessKeyID     string `envconfig:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	KeyPrefix       string `envconfig:"S3_KEY_PREFIX" default:"videos/"`
	CDNURL          string `envconfig:"S3_CDN_URL"`
	PathStyle       bool   `envconfig:"S3_PATH_STYLE" default:"true"`
	UseSSL          bool   `envconfig:"S3_USE_SSL" default:"true"`
}

// Configured reports whether enough settings are present to talk to storage.
func (c S3Config) Configured() bool {
	return c.Endpoint != "" && c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

type UploadConfig struct {
	MaxSizeMB              int64         `envconfig:"UPLOAD_MAX_SIZE_MB" default:"500"`
	Timeout                time.Duration `envconfig:"UPLOAD_TIMEOUT" default:"5m"`
	MaxConcurrent          int           `envconfig:"UPLOAD_MAX_CONCURRENT" default:"2"`
	MaxConcurrentDownloads int64         `envconfig:"UPLOAD_MAX_CONCURRENT_DOWNLOADS" default:"2"`
	StuckTimeout           time.Duration `envconfig:"UPLOAD_STUCK_TIMEOUT" default:"30m"`
	MaxRetries             int           `envconfig:"UPLOAD_MAX_RETRIES" default:"3"`
	TempDir                string        `envconfig:"UPLOAD_TEMP_DIR" default:"/tmp/mediagate"`
	UserAgent              string        `envconfig:"UPLOAD_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"`
}

func (c UploadConfig) MaxSizeBytes() int64 {
	return c.MaxSizeMB * 1024 * 1024
}

type YTDLPConfig struct {
	ConcurrentFragments int    `envconfig:"YTDLP_CONCURRENT_FRAGMENTS" default:"4"`
	Downloader          string `envconfig:"YTDLP_DOWNLOADER" default:"native"`
	Aria2cConnections   int    `envconfig:"YTDLP_ARIA2C_CONNECTIONS" default:"4"`
	Retries             int    `envconfig:"YTDLP_RETRIES" default:"3"`
	FragmentRetries     int    `envconfig:"YTDLP_FRAGMENT_RETRIES" default:"5"`
	SocketTimeout       int    `envconfig:"YTDLP_SOCKET_TIMEOUT" default:"20"`
}

type WatermarkConfig struct {
	Enabled  bool    `envconfig:"WATERMARK_ENABLED" default:"false"`
	Text     string  `envconfig:"WATERMARK_TEXT"`
	FontSize int     `envconfig:"WATERMARK_FONTSIZE" default:"24"`
	Opacity  float64 `envconfig:"WATERMARK_OPACITY" default:"0.5"`
	Position string  `envconfig:"WATERMARK_POSITION" default:"bottomright"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	// MAX_CONCURRENT_DOWNLOADS is the short alias for the same knob; the
	// UPLOAD_-prefixed name wins when both are set.
	if os.Getenv("UPLOAD_MAX_CONCURRENT_DOWNLOADS") == "" {
		if raw := os.Getenv("MAX_CONCURRENT_DOWNLOADS"); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("MAX_CONCURRENT_DOWNLOADS must be a positive integer, got %q", raw)
			}
			cfg.Upload.MaxConcurrentDownloads = n
		}
	}
	return &cfg, nil
}
