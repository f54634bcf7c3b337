package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// HTTPPort is the public HTTP port. It is not configurable.
const HTTPPort = 3000

// Config contains runtime configuration required by the service.
type Config struct {
	HTTPAddr         string // bind host for the public server
	HTTPMaxBodyBytes int64

	SocketHost string // relay listener host, also dialled by the HTTP side
	SocketPort int

	RelayBufferSize   int
	RelayReadTimeout  time.Duration
	RelayDialTimeout  time.Duration
	RelayWriteTimeout time.Duration

	StorageFile string
	StaticRoot  string

	LogLevel  string
	LogFormat string

	DBURL string // optional; enables the Postgres mirror
}

// HTTPListenAddr is host:port for the public server.
func (c Config) HTTPListenAddr() string {
	return net.JoinHostPort(c.HTTPAddr, strconv.Itoa(HTTPPort))
}

// RelayAddr is host:port of the relay listener.
func (c Config) RelayAddr() string {
	return net.JoinHostPort(c.SocketHost, strconv.Itoa(c.SocketPort))
}

func defaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", "0.0.0.0")
	v.SetDefault("HTTP_MAX_BODY_BYTES", 64*1024)
	v.SetDefault("SOCKET_HOST", "127.0.0.1")
	v.SetDefault("SOCKET_PORT", 5000)
	v.SetDefault("RELAY_BUFFER_SIZE", 1024)
	v.SetDefault("RELAY_READ_TIMEOUT", 5*time.Second)
	v.SetDefault("RELAY_DIAL_TIMEOUT", 2*time.Second)
	v.SetDefault("RELAY_WRITE_TIMEOUT", 2*time.Second)
	v.SetDefault("STORAGE_FILE", "storage/data.json")
	v.SetDefault("STATIC_ROOT", ".")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("DB_URL", "")
}

// Load reads configuration from defaults, an optional .env file and the environment.
// Environment variables win over .env.
func Load() (Config, error) {
	return load(".env")
}

func load(envFile string) (Config, error) {
	v := viper.New()
	defaults(v)

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("read %s: %w", envFile, err)
			}
		}
	}
	v.AutomaticEnv()

	cfg := Config{
		HTTPAddr:          v.GetString("HTTP_ADDR"),
		HTTPMaxBodyBytes:  v.GetInt64("HTTP_MAX_BODY_BYTES"),
		SocketHost:        v.GetString("SOCKET_HOST"),
		SocketPort:        v.GetInt("SOCKET_PORT"),
		RelayBufferSize:   v.GetInt("RELAY_BUFFER_SIZE"),
		RelayReadTimeout:  v.GetDuration("RELAY_READ_TIMEOUT"),
		RelayDialTimeout:  v.GetDuration("RELAY_DIAL_TIMEOUT"),
		RelayWriteTimeout: v.GetDuration("RELAY_WRITE_TIMEOUT"),
		StorageFile:       v.GetString("STORAGE_FILE"),
		StaticRoot:        v.GetString("STATIC_ROOT"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		LogFormat:         v.GetString("LOG_FORMAT"),
		DBURL:             v.GetString("DB_URL"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SocketHost == "" {
		return errors.New("SOCKET_HOST required")
	}
	if c.SocketPort <= 0 || c.SocketPort > 65535 {
		return fmt.Errorf("SOCKET_PORT out of range: %d", c.SocketPort)
	}
	if c.RelayBufferSize <= 0 {
		return errors.New("RELAY_BUFFER_SIZE must be positive")
	}
	if c.HTTPMaxBodyBytes <= 0 {
		return errors.New("HTTP_MAX_BODY_BYTES must be positive")
	}
	if c.RelayDialTimeout <= 0 || c.RelayWriteTimeout <= 0 {
		return errors.New("RELAY_DIAL_TIMEOUT and RELAY_WRITE_TIMEOUT must be positive")
	}
	if c.StorageFile == "" {
		return errors.New("STORAGE_FILE required")
	}
	if c.StaticRoot == "" {
		return errors.New("STATIC_ROOT required")
	}
	return nil
}
