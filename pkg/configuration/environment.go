package configuration

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		panic(err)
	}
	return c
})

// Use returns the process-wide configuration, loading it on first access.
func Use() *Configuration {
	return singleton()
}

func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fs.FileExists(file) {
			existingFiles = append(existingFiles, file)
		}
	}
	if len(existingFiles) == 0 {
		return 0, nil
	}
	return len(existingFiles), godotenv.Load(existingFiles...)
}

type HelpdeskOptions struct {
	BaseURL     string `env:"HELPDESK_BASE_URL"`
	APIKey      string `env:"HELPDESK_API_KEY"`
	WorkspaceID int64  `env:"HELPDESK_WORKSPACE_ID" envDefault:"0"`
}

func (h *HelpdeskOptions) Validate() error {
	if h.BaseURL == "" {
		return fmt.Errorf("HELPDESK_BASE_URL is required")
	}
	if h.APIKey == "" {
		return fmt.Errorf("HELPDESK_API_KEY is required")
	}
	return nil
}

type RateLimitOptions struct {
	// Rolling window: Requests calls per Period, matching the platform's
	// published quota.
	Requests     int64         `env:"HELPDESK_RATE_LIMIT_REQUESTS" envDefault:"50"`
	Period       time.Duration `env:"HELPDESK_RATE_LIMIT_PERIOD" envDefault:"60s"`
	MaxWait      time.Duration `env:"HELPDESK_RATE_LIMIT_MAX_WAIT" envDefault:"120s"`
	PollInterval time.Duration `env:"HELPDESK_RATE_LIMIT_POLL_INTERVAL" envDefault:"100ms"`
}

func (r *RateLimitOptions) Validate() error {
	if r.Requests <= 0 {
		return fmt.Errorf("rate limit Requests must be positive, got %d", r.Requests)
	}
	if r.Period <= 0 {
		return fmt.Errorf("rate limit Period must be positive, got %s", r.Period)
	}
	return nil
}

type ResolverOptions struct {
	// SimilarityThreshold is the 0..1 edit-distance ratio a fuzzy candidate
	// must clear. Policy choice, not a platform constant.
	SimilarityThreshold float64 `env:"RESOLVER_SIMILARITY_THRESHOLD" envDefault:"0.85"`
}

func (r *ResolverOptions) Validate() error {
	if r.SimilarityThreshold <= 0 || r.SimilarityThreshold > 1 {
		return fmt.Errorf("resolver SimilarityThreshold must be in (0, 1], got %v", r.SimilarityThreshold)
	}
	return nil
}

type Configuration struct {
	Helpdesk  HelpdeskOptions
	RateLimit RateLimitOptions
	Resolver  ResolverOptions

	MaxRetries    int    `env:"HELPDESK_MAX_RETRIES" envDefault:"3"`
	CheckManagers bool   `env:"BATCH_CHECK_MANAGERS" envDefault:"true"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"error"`

	logger *logrus.Logger
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

func (c *Configuration) Validate() error {
	if err := c.Helpdesk.Validate(); err != nil {
		return err
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	return c.Resolver.Validate()
}

func (c *Configuration) load(envFiles []string) error {
	if _, err := LoadEnv(envFiles); err != nil {
		return err
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(c.LogrusLogLevel())
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	c.logger = logger
	return nil
}
