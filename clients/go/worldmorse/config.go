package worldmorse

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds client settings read from the environment.
type Config struct {
	URL            string        `env:"WORLDMORSE_URL" envDefault:"http://localhost:8080"`
	Callsign       string        `env:"WORLDMORSE_CALLSIGN"`
	Channel        string        `env:"WORLDMORSE_CHANNEL" envDefault:"7.050"`
	PollInterval   time.Duration `env:"WORLDMORSE_POLL_INTERVAL" envDefault:"3s"`
	RequestTimeout time.Duration `env:"WORLDMORSE_REQUEST_TIMEOUT" envDefault:"5s"`
	RecentLimit    int           `env:"WORLDMORSE_RECENT_LIMIT" envDefault:"200"`
	Dot            time.Duration `env:"WORLDMORSE_DOT" envDefault:"100ms"`

	PingInterval      time.Duration `env:"WORLDMORSE_PING_INTERVAL" envDefault:"20s"`
	ReconnectInterval time.Duration `env:"WORLDMORSE_RECONNECT_INTERVAL" envDefault:"5s"`
	ViewCap           int           `env:"WORLDMORSE_VIEW_CAP" envDefault:"1000"`
}

// LoadConfig parses the WORLDMORSE_* environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SyncOptions derives syncer options from the config.
func (c Config) SyncOptions() SyncOptions {
	return SyncOptions{
		PollInterval:      c.PollInterval,
		RecentLimit:       c.RecentLimit,
		PingInterval:      c.PingInterval,
		ReconnectInterval: c.ReconnectInterval,
		ViewCap:           c.ViewCap,
	}
}
