// Package config loads client configuration from the environment.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Config is the fully resolved client configuration.
type Config interface {
	APIConfig
	FeedConfig
	StorageConfig
}

type APIConfig interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
}

type FeedConfig interface {
	GetFeedPostsPerSource() int
	GetFeedDisplayCap() int
	GetFeedFanOutLimit() int
}

type StorageConfig interface {
	GetCredentialsPath() string
}

type envConfig struct {
	BaseURL        string        `env:"CAMPUSLINK_API_URL" envDefault:"https://api.campuslink.app/v1"`
	RequestTimeout time.Duration `env:"CAMPUSLINK_REQUEST_TIMEOUT" envDefault:"30s"`

	FeedPostsPerSource int `env:"CAMPUSLINK_FEED_POSTS_PER_SOURCE" envDefault:"10"`
	FeedDisplayCap     int `env:"CAMPUSLINK_FEED_DISPLAY_CAP" envDefault:"50"`
	FeedFanOutLimit    int `env:"CAMPUSLINK_FEED_FANOUT_LIMIT" envDefault:"4"`

	CredentialsPath string `env:"CAMPUSLINK_CREDENTIALS_PATH"`
}

var _ Config = (*envConfig)(nil)

// New parses configuration from the environment, applying defaults.
func New() (Config, error) {
	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "[config.New] parse environment")
	}
	if cfg.CredentialsPath == "" {
		cfg.CredentialsPath = defaultCredentialsPath()
	}
	return &cfg, nil
}

func defaultCredentialsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "campuslink", "credentials.json")
}

func (c *envConfig) GetBaseURL() string               { return c.BaseURL }
func (c *envConfig) GetRequestTimeout() time.Duration { return c.RequestTimeout }
func (c *envConfig) GetFeedPostsPerSource() int       { return c.FeedPostsPerSource }
func (c *envConfig) GetFeedDisplayCap() int           { return c.FeedDisplayCap }
func (c *envConfig) GetFeedFanOutLimit() int          { return c.FeedFanOutLimit }
func (c *envConfig) GetCredentialsPath() string       { return c.CredentialsPath }
