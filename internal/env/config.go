package env

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"go.uber.org/zap"

	"github.com/luma/anidb/client"
	"github.com/luma/anidb/transport"
)

type Config struct {
	Host      string `toml:"host" env:"ANIDB_HOST"`
	Port      int    `toml:"port" env:"ANIDB_PORT"`
	LocalPort int    `toml:"local_port" env:"ANIDB_LOCAL_PORT"`
	Reuseport bool   `toml:"reuseport" env:"ANIDB_REUSEPORT"`

	User string `toml:"user" env:"ANIDB_USER"`
	Pass string `toml:"pass" env:"ANIDB_PASS"`

	ClientName    string `toml:"client_name" env:"ANIDB_CLIENT_NAME"`
	ClientVersion int    `toml:"client_version" env:"ANIDB_CLIENT_VERSION"`
	Encoding      string `toml:"encoding" env:"ANIDB_ENCODING"`

	MinInterval time.Duration `toml:"min_interval" env:"ANIDB_MIN_INTERVAL"`
	Timeout     time.Duration `toml:"timeout" env:"ANIDB_TIMEOUT"`
	Retries     int           `toml:"retries" env:"ANIDB_RETRIES"`

	// CacheFile persists lookups between runs, empty disables the cache
	CacheFile string `toml:"cache_file" env:"ANIDB_CACHE_FILE"`

	LogLevel  string `toml:"log_level" env:"ANIDB_LOG_LEVEL"`
	Trace     bool   `toml:"trace" env:"ANIDB_TRACE"`
	HTTPAddr  string `toml:"http_addr" env:"ANIDB_HTTP_ADDR"`
	DebugHTTP bool   `toml:"debug_http" env:"ANIDB_DEBUG_HTTP"`
}

var DefaultConfig = Config{
	Host:          transport.DefaultHost,
	Port:          transport.DefaultPort,
	ClientName:    client.DefaultClientName,
	ClientVersion: client.DefaultClientVersion,
	Encoding:      client.DefaultEncoding,
	MinInterval:   transport.DefaultMinInterval,
	Timeout:       client.DefaultTimeout,
	Retries:       client.DefaultRetries,
	LogLevel:      "info",
	HTTPAddr:      "127.0.0.1:7362",
}

// LoadConfig layers the configuration: DefaultConfig, then the TOML file at
// path if one is given, then the environment (including .env.local). Only
// values that are set override the layer below.
func LoadConfig(ctx context.Context, path string) (*Config, error) {
	config := DefaultConfig

	if path != "" {
		var file Config
		if _, err := toml.DecodeFile(path, &file); err != nil {
			return nil, fmt.Errorf("Failed to load config %s: %w", path, err)
		}

		overlay(&config, &file)
	}

	if err := godotenv.Load(".env.local"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("Failed to load .env.local: %w", err)
	}

	var fromEnv Config
	if err := envconfig.Process(ctx, &fromEnv); err != nil {
		return nil, err
	}

	overlay(&config, &fromEnv)

	return &config, nil
}

// overlay copies every non-zero field of src onto dst.
func overlay(dst, src *Config) {
	d := reflect.ValueOf(dst).Elem()
	s := reflect.ValueOf(src).Elem()

	for i := 0; i < s.NumField(); i++ {
		if !s.Field(i).IsZero() {
			d.Field(i).Set(s.Field(i))
		}
	}
}

func (c *Config) TransportOptions(log *zap.Logger) transport.Options {
	return transport.Options{
		Host:        c.Host,
		Port:        c.Port,
		LocalPort:   c.LocalPort,
		Reuseport:   c.Reuseport,
		MinInterval: c.MinInterval,
		Trace:       c.Trace,
		Log:         log,
	}
}

func (c *Config) ClientOptions(log *zap.Logger) client.Options {
	return client.Options{
		Transport:     c.TransportOptions(log.Named("transport")),
		ClientName:    c.ClientName,
		ClientVersion: c.ClientVersion,
		Timeout:       c.Timeout,
		Retries:       c.Retries,
		Log:           log,
	}
}

// Redacted is the config without its secrets, for logging.
func (c Config) Redacted() Config {
	if c.Pass != "" {
		c.Pass = "***"
	}

	return c
}
