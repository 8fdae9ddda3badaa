package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port         string `yaml:"port"`
		AuthorityURL string `yaml:"authority_url"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	NATS struct {
		URL  string `yaml:"url"`
		Name string `yaml:"name"`
	} `yaml:"nats"`
	Quiz struct {
		TTL            string `yaml:"ttl"`
		TotalQuestions int    `yaml:"total_questions"`
	} `yaml:"quiz"`
	Engine struct {
		Countdown   string `yaml:"countdown"`
		Question    string `yaml:"question"`
		Explanation string `yaml:"explanation"`
		Final       string `yaml:"final"`
		RPCTimeout  string `yaml:"rpc_timeout"`
	} `yaml:"engine"`
	Lobby struct {
		Resync string `yaml:"resync"`
	} `yaml:"lobby"`
	Round struct {
		Window string `yaml:"window"`
		// Every and Anchor describe a recurring schedule used when no
		// Postgres rounds table is configured.
		Every  string `yaml:"every"`
		Anchor string `yaml:"anchor"`
	} `yaml:"round"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load reads YAML config from path and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv lets deployment secrets and endpoints come from the environment
// (or a .env file loaded beforehand) instead of the YAML file.
func applyEnv(cfg *Config) {
	override(&cfg.Redis.Addr, "REDIS_ADDR")
	override(&cfg.Redis.Password, "REDIS_PASSWORD")
	override(&cfg.Postgres.URL, "POSTGRES_URL")
	override(&cfg.NATS.URL, "NATS_URL")
	override(&cfg.Server.AuthorityURL, "AUTHORITY_URL")
	override(&cfg.Log.Level, "LOG_LEVEL")
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		if db, err := strconv.Atoi(raw); err == nil {
			cfg.Redis.DB = db
		}
	}
}

func override(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
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
