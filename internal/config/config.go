package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Cache struct {
		SkillTTL string `yaml:"skill_ttl"`
	} `yaml:"cache"`
	Lock struct {
		TTL string `yaml:"ttl"`
	} `yaml:"lock"`
	Email struct {
		URL     string `yaml:"url"`
		APIKey  string `yaml:"api_key"`
		Timeout string `yaml:"timeout"`
	} `yaml:"email"`
	Webhook struct {
		Secret string `yaml:"secret"`
	} `yaml:"webhook"`
	Notifications struct {
		LinkBase string `yaml:"link_base"`
	} `yaml:"notifications"`
}

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Log.Level = "info"
	cfg.Cache.SkillTTL = "10m"
	cfg.Lock.TTL = "2m"
	cfg.Email.Timeout = "10s"
	cfg.Notifications.LinkBase = "/student/challenges"
	return cfg
}

// Load reads YAML config from path on top of the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment if present.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func applyEnv(cfg *Config) {
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Postgres.URL, "POSTGRES_URL")
	setString(&cfg.SQLite.Path, "SQLITE_PATH")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		if db, err := strconv.Atoi(raw); err == nil {
			cfg.Redis.DB = db
		}
	}
	setString(&cfg.Email.URL, "EMAIL_URL")
	setString(&cfg.Email.APIKey, "EMAIL_API_KEY")
	setString(&cfg.Webhook.Secret, "WEBHOOK_SECRET")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
