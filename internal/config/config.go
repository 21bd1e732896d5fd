package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

type Config struct {
	Env        string `yaml:"env"`
	HTTPServer `yaml:"http_server"`
	Postgres   `yaml:"postgres"`
	Redis      `yaml:"redis"`
	Shortener  `yaml:"shortener"`
	RateLimit  `yaml:"rate_limit"`
}

type HTTPServer struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
}

var defaultHTTPServer = HTTPServer{
	Port:           8080,
	ReadTimeout:    5 * time.Second,
	WriteTimeout:   10 * time.Second,
	IdleTimeout:    time.Minute,
	MaxHeaderBytes: 1 << 20,
}

func (s *HTTPServer) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type Postgres struct {
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	DB              string        `yaml:"db"`
	SSLMode         string        `yaml:"sslmode"`
	MigrationsPath  string        `yaml:"migrations_path"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
}

var defaultPostgres = Postgres{
	Host:            "localhost",
	Port:            5432,
	SSLMode:         "disable",
	MigrationsPath:  "file://migrations",
	ConnMaxIdleTime: 5 * time.Minute,
	ConnMaxLifetime: 30 * time.Minute,
	MaxIdleConns:    5,
	MaxOpenConns:    25,
}

func (p *Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

type Redis struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	KeyPrefix   string        `yaml:"key_prefix"`
}

var defaultRedis = Redis{
	Addr:        "localhost:6379",
	DialTimeout: 5 * time.Second,
	KeyPrefix:   "tinylink:",
}

type Shortener struct {
	BaseURL            string        `yaml:"base_url"`
	Alphabet           string        `yaml:"alphabet"`
	CodeLength         int           `yaml:"code_length"`
	MaxURLLength       int           `yaml:"max_url_length"`
	DefaultExpiryDays  int           `yaml:"default_expiry_days"`
	MaxExpiryDays      int           `yaml:"max_expiry_days"`
	CacheTTL           time.Duration `yaml:"cache_ttl"`
	EventQueueSize     int           `yaml:"event_queue_size"`
	EventWorkers       int           `yaml:"event_workers"`
	EventBatchSize     int           `yaml:"event_batch_size"`
	EventFlushInterval time.Duration `yaml:"event_flush_interval"`
	BlacklistedDomains []string      `yaml:"blacklisted_domains"`
}

var defaultShortener = Shortener{
	BaseURL:            "http://localhost:8080",
	Alphabet:           "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789",
	CodeLength:         7,
	MaxURLLength:       2048,
	DefaultExpiryDays:  365,
	MaxExpiryDays:      3650,
	CacheTTL:           time.Hour,
	EventQueueSize:     10000,
	EventWorkers:       4,
	EventBatchSize:     100,
	EventFlushInterval: 5 * time.Second,
}

type RateLimit struct {
	Resolve RateLimitRule `yaml:"resolve"`
	Mutate  RateLimitRule `yaml:"mutate"`
}

type RateLimitRule struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

var defaultRateLimit = RateLimit{
	Resolve: RateLimitRule{MaxRequests: 60, Window: time.Minute},
	Mutate:  RateLimitRule{MaxRequests: 10, Window: time.Minute},
}

func Load(path string) (*Config, error) {
	const op = "config.Load"

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open config file: %w", op, err)
	}
	defer f.Close()

	var cfg Config
	setDefaults(&cfg)

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to decode config file: %w", op, err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Env = EnvDev
	cfg.HTTPServer = defaultHTTPServer
	cfg.Postgres = defaultPostgres
	cfg.Redis = defaultRedis
	cfg.Shortener = defaultShortener
	cfg.RateLimit = defaultRateLimit
}
