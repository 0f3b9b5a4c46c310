package internal

import "time"

// Config is the lobby server configuration, populated from the
// environment. The port range is the fixed pool reserved for ephemeral
// game servers; both bounds are inclusive.
type Config struct {
	Host         string `env:"HOST,default=0.0.0.0"`
	Port         int    `env:"PORT,default=17048"`
	DatabaseAddr string `env:"DATABASE_ADDR,default=127.0.0.1:17047"`
	LogLevel     string `env:"LOG_LEVEL,default=INFO"`

	ReadTimeout     time.Duration `env:"READ_TIMEOUT,default=30s"`
	DatabaseTimeout time.Duration `env:"DATABASE_TIMEOUT,default=5s"`
	DatabaseRetries int           `env:"DATABASE_RETRIES,default=3"`
	DatabaseBackoff time.Duration `env:"DATABASE_BACKOFF,default=200ms"`

	PortRangeMin    int           `env:"PORT_RANGE_MIN,default=10100"`
	PortRangeMax    int           `env:"PORT_RANGE_MAX,default=11000"`
	PortWaitTimeout time.Duration `env:"PORT_WAIT_TIMEOUT,default=10s"`

	MatchTokenSecret   string        `env:"MATCH_TOKEN_SECRET,required=true"`
	MatchTokenDuration time.Duration `env:"MATCH_TOKEN_DURATION,default=2h"`
	GamesDir           string        `env:"GAMES_DIR,default=./uploaded_games"`

	BufferSize      int           `env:"BUFFER_SIZE,default=64"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=10s"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`
}

// DatabaseConfig configures the standalone database collaborator.
type DatabaseConfig struct {
	Host           string `env:"DB_HOST,default=0.0.0.0"`
	Port           int    `env:"DB_PORT,default=17047"`
	LogLevel       string `env:"DB_LOG_LEVEL,default=INFO"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/lobby-db"`
	SeedFile       string `env:"SEED_FILE"`
}
