package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	StaticPath    string        `mapstructure:"static_path"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	PongWait      time.Duration `mapstructure:"pong_wait"`
	WriteWait     time.Duration `mapstructure:"write_wait"`
	SendBuffer    int           `mapstructure:"send_buffer"`
	MaxMessageLen int           `mapstructure:"max_message_len"`
	Secret        string        `mapstructure:"secret"`

	Admission AdmissionConfig `mapstructure:"admission"`
	Auth      AuthConfig      `mapstructure:"auth"`
	History   HistoryConfig   `mapstructure:"history"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
}

type AdmissionConfig struct {
	// Driver is one of memory, redis, postgres.
	Driver          string `mapstructure:"driver"`
	DefaultCapacity int    `mapstructure:"default_capacity"`
	// Rooms seeds per-room capacities at startup. The postgres driver only
	// admits into rooms that exist.
	Rooms map[string]int `mapstructure:"rooms"`
}

type AuthConfig struct {
	// Driver is one of hmac, redis.
	Driver string `mapstructure:"driver"`
	Secret string `mapstructure:"secret"`
}

type HistoryConfig struct {
	// Driver is one of memory, postgres.
	Driver string `mapstructure:"driver"`
	Limit  int    `mapstructure:"limit"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("max_message_len", 2000)
	v.SetDefault("secret", "change-me")

	v.SetDefault("admission.driver", "memory")
	v.SetDefault("admission.default_capacity", 10)
	v.SetDefault("auth.driver", "hmac")
	v.SetDefault("auth.secret", "change-me")
	v.SetDefault("history.driver", "memory")
	v.SetDefault("history.limit", 200)
	v.SetDefault("redis.addr", "localhost:6379")
}

// Load reads config/config.<CONFIG_ENV>.yaml. VOICE_* variables override
// file values, e.g. VOICE_ADMISSION_DRIVER=redis.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("VOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("admission", cfg.Admission.Driver).Str("auth", cfg.Auth.Driver).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.PingPeriod >= c.PongWait {
		errs = append(errs, fmt.Errorf("ping_period %s must be shorter than pong_wait %s", c.PingPeriod, c.PongWait))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, errors.New("send_buffer must be positive"))
	}
	switch c.Admission.Driver {
	case "memory", "redis":
	case "postgres":
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("admission.driver=postgres requires postgres.dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown admission driver %q", c.Admission.Driver))
	}
	switch c.Auth.Driver {
	case "hmac":
		if c.Auth.Secret == "" {
			errs = append(errs, errors.New("auth.driver=hmac requires auth.secret"))
		}
	case "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown auth driver %q", c.Auth.Driver))
	}
	switch c.History.Driver {
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("history.driver=postgres requires postgres.dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown history driver %q", c.History.Driver))
	}
	return errors.Join(errs...)
}
