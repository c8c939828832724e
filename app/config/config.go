// Package config reads settings from INKWELL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
)

const (
	DriverBadger = "badger"
	DriverMySQL  = "mysql"
)

type Config struct {
	Addr     string
	DBDriver string
	DBPath   string
	MySQL    *MySQLConfig
	Redis    RedisConfig
	CacheTTL time.Duration
	Kafka    KafkaConfig

	OutboxInterval time.Duration
	JWTSecret      string
	StorageTimeout time.Duration

	CommentsAutoApprove      bool
	CommentsRequirePublished bool
	HardDelete               bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis address was configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// MySQLConfig builds a go-sql-driver DSN.
type MySQLConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
	Params   map[string]string
}

func NewMySQLConfig() *MySQLConfig {
	return &MySQLConfig{
		Host:     "localhost",
		Port:     3306,
		Username: "root",
		Database: "inkwell",
		Params:   map[string]string{"charset": "utf8mb4"},
	}
}

func (c *MySQLConfig) WithHost(host string, port int) *MySQLConfig {
	c.Host = host
	c.Port = port
	return c
}

func (c *MySQLConfig) WithCredentials(username, password string) *MySQLConfig {
	c.Username = username
	c.Password = password
	return c
}

func (c *MySQLConfig) WithDatabase(database string) *MySQLConfig {
	c.Database = database
	return c
}

func (c *MySQLConfig) WithParam(key, value string) *MySQLConfig {
	c.Params[key] = value
	return c
}

// DSN formats the connection string. Times are parsed into time.Time and
// kept in UTC.
func (c *MySQLConfig) DSN() string {
	cfg := mysqldriver.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	// Report matched rows, not changed rows, so an update that rewrites
	// identical values is not mistaken for a missing row.
	cfg.ClientFoundRows = true
	if len(c.Params) > 0 {
		cfg.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN()
}

// Load reads the environment. Unset keys fall back to defaults; malformed
// values are reported together.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	r := reader{getenv: getenv}

	cfg := &Config{
		Addr:     r.str("INKWELL_ADDR", ":8080"),
		DBDriver: strings.ToLower(r.str("INKWELL_DB_DRIVER", DriverBadger)),
		DBPath:   r.str("INKWELL_DB_PATH", "data/inkwell.db"),
		MySQL: NewMySQLConfig().
			WithHost(r.str("INKWELL_MYSQL_HOST", "localhost"), r.integer("INKWELL_MYSQL_PORT", 3306)).
			WithCredentials(r.str("INKWELL_MYSQL_USER", "root"), r.str("INKWELL_MYSQL_PASSWORD", "")).
			WithDatabase(r.str("INKWELL_MYSQL_DATABASE", "inkwell")),
		Redis: RedisConfig{
			Addr:     r.str("INKWELL_REDIS_ADDR", ""),
			Password: r.str("INKWELL_REDIS_PASSWORD", ""),
			DB:       r.integer("INKWELL_REDIS_DB", 0),
		},
		CacheTTL: r.duration("INKWELL_CACHE_TTL", 5*time.Minute),
		Kafka: KafkaConfig{
			Brokers: r.list("INKWELL_KAFKA_BROKERS"),
			Topic:   r.str("INKWELL_KAFKA_TOPIC", "inkwell.moderation"),
		},
		OutboxInterval:           r.duration("INKWELL_OUTBOX_INTERVAL", time.Second),
		JWTSecret:                r.str("INKWELL_JWT_SECRET", ""),
		StorageTimeout:           r.duration("INKWELL_STORAGE_TIMEOUT", 5*time.Second),
		CommentsAutoApprove:      r.boolean("INKWELL_COMMENTS_AUTO_APPROVE", false),
		CommentsRequirePublished: r.boolean("INKWELL_COMMENTS_REQUIRE_PUBLISHED", false),
		HardDelete:               r.boolean("INKWELL_HARD_DELETE", false),
	}

	if cfg.DBDriver != DriverBadger && cfg.DBDriver != DriverMySQL {
		r.fail("INKWELL_DB_DRIVER", fmt.Errorf("must be %q or %q", DriverBadger, DriverMySQL))
	}
	if cfg.StorageTimeout <= 0 {
		r.fail("INKWELL_STORAGE_TIMEOUT", errors.New("must be positive"))
	}
	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}
	return cfg, nil
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) fail(key string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return n
}

func (r *reader) boolean(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return d
}

func (r *reader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(r.str(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
