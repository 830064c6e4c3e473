package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/drydock-pm/drydock/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the given env files from the working directory, or from the
// nearest parent directory holding a go.mod when none exist in the working directory.
func LoadEnv(envFiles []string) (int, error) {
	existingFiles := existing(envFiles, "")
	if len(existingFiles) == 0 {
		if root := moduleRoot(); root != "" {
			existingFiles = existing(envFiles, root)
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

func existing(envFiles []string, dir string) []string {
	out := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		path := file
		if dir != "" {
			path = filepath.Join(dir, file)
		}
		if fs.FileExists(path) {
			out = append(out, path)
		}
	}
	return out
}

func moduleRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts        string `env:"-"`
	Name        string `env:"DB_NAME" envDefault:"drydock"`
	Host        string `env:"DB_HOST" envDefault:"localhost"`
	Port        string `env:"DB_PORT" envDefault:"5432"`
	User        string `env:"DB_USER" envDefault:"postgres"`
	Password    string `env:"DB_PASSWORD" envDefault:"postgres"`
	AutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"false"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type LokiOptions struct {
	AppName string `env:"LOKI_APP_NAME" envDefault:"drydock"`
	LogPath string `env:"LOG_PATH" envDefault:"./logs/app.log"`
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"drydock"`
}

type RateLimitOptions struct {
	Enabled   bool   `env:"RATE_LIMIT_ENABLED" envDefault:"false"`
	GlobalRPS int    `env:"RATE_LIMIT_GLOBAL_RPS" envDefault:"1000"`
	Storage   string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
	RedisURL  string `env:"RATE_LIMIT_REDIS_URL"`
}

func (r *RateLimitOptions) Validate() error {
	if r.GlobalRPS < 1 {
		return fmt.Errorf("rate limit GlobalRPS must be positive, got %d", r.GlobalRPS)
	}
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	if r.Storage == "redis" && r.RedisURL == "" {
		return fmt.Errorf("rate limit RedisURL is required when Storage is 'redis'")
	}
	return nil
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

// WorkItemIDOptions tunes the DD/MM/YY/NNN allocator and the legacy id migration.
type WorkItemIDOptions struct {
	TimeZone       string `env:"WORKITEM_ID_TIMEZONE" envDefault:"Local"`
	FallbackPrefix string `env:"WORKITEM_ID_FALLBACK_PREFIX" envDefault:"WI"`
	InsertRetries  int    `env:"WORKITEM_ID_INSERT_RETRIES" envDefault:"5"`
	BackupDir      string `env:"WORKITEM_ID_BACKUP_DIR" envDefault:"backups"`
	ProgressEvery  int    `env:"WORKITEM_ID_PROGRESS_EVERY" envDefault:"10"`
	SampleSize     int    `env:"WORKITEM_ID_SAMPLE_SIZE" envDefault:"5"`

	location *time.Location
}

// Location is the time zone whose calendar days form allocation buckets.
func (o *WorkItemIDOptions) Location() *time.Location {
	if o.location == nil {
		return time.Local
	}
	return o.location
}

func (o *WorkItemIDOptions) Validate() error {
	name := strings.TrimSpace(o.TimeZone)
	if name == "" {
		name = "Local"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("invalid WORKITEM_ID_TIMEZONE=%q: %w", o.TimeZone, err)
	}
	o.location = loc

	prefix := strings.TrimSpace(o.FallbackPrefix)
	if prefix == "" {
		return fmt.Errorf("WORKITEM_ID_FALLBACK_PREFIX must not be empty")
	}
	if strings.ContainsAny(prefix, "/0123456789") {
		return fmt.Errorf("WORKITEM_ID_FALLBACK_PREFIX must not contain digits or '/', got %q", o.FallbackPrefix)
	}
	o.FallbackPrefix = prefix

	if o.InsertRetries < 1 {
		return fmt.Errorf("WORKITEM_ID_INSERT_RETRIES must be positive, got %d", o.InsertRetries)
	}
	if o.ProgressEvery < 1 {
		return fmt.Errorf("WORKITEM_ID_PROGRESS_EVERY must be positive, got %d", o.ProgressEvery)
	}
	if o.SampleSize < 0 {
		return fmt.Errorf("WORKITEM_ID_SAMPLE_SIZE must be non-negative, got %d", o.SampleSize)
	}
	return nil
}

// WorkItemIDsFromEnv reads and validates only the work item id options, for
// tools that run without a database or log file.
func WorkItemIDsFromEnv() (WorkItemIDOptions, error) {
	if _, err := LoadEnv([]string{".env", ".env.local"}); err != nil {
		return WorkItemIDOptions{}, err
	}
	var opts WorkItemIDOptions
	if err := env.Parse(&opts); err != nil {
		return WorkItemIDOptions{}, err
	}
	if err := opts.Validate(); err != nil {
		return WorkItemIDOptions{}, fmt.Errorf("work item id configuration error: %w", err)
	}
	return opts, nil
}

type Configuration struct {
	Database      DatabaseOptions
	Loki          LokiOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	RateLimit     RateLimitOptions
	WorkItemIDs   WorkItemIDOptions

	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	Origin           string `env:"ORIGIN" envDefault:"http://localhost:3200"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	// Browser origins allowed to call the API; empty disables CORS handling.
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	// The server looks for this header on each request and generates a uuidv4 when it is absent.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.WorkItemIDs.Validate(); err != nil {
		return fmt.Errorf("work item id configuration error: %w", err)
	}
	if c.RateLimit.Enabled {
		if err := c.RateLimit.Validate(); err != nil {
			return fmt.Errorf("rate limit configuration error: %w", err)
		}
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.Loki.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
