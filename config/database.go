package config

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DBConfig holds the PostgreSQL settings for the accounts store (env prefix DB_).
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"hakim"`
	Password string `env:"PASSWORD" envDefault:"hakim"`
	Name     string `env:"NAME"     envDefault:"hakim_identity"`
	// SSLMode is passed through as sslmode; production deployments use require or verify-full.
	SSLMode         string        `env:"SSL_MODE"          envDefault:"disable"`
	MaxConns        int           `env:"MAX_CONNS"         envDefault:"25"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	// ConnectAttempts bounds the startup ping loop while Postgres comes up.
	ConnectAttempts int `env:"CONNECT_ATTEMPTS" envDefault:"5"`

	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// DSN renders a postgres:// URL with credentials escaped.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	if mode := strings.TrimSpace(c.SSLMode); mode != "" {
		q := u.Query()
		q.Set("sslmode", mode)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Sanitize applies pool defaults.
func (c *DBConfig) Sanitize() {
	if c.MaxConns <= 0 {
		c.MaxConns = 25
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnectAttempts < 1 {
		c.ConnectAttempts = 1
	}
}

// RedisConfig holds the Redis settings for sessions and login attempts (env prefix REDIS_).
// URI may be host:port or a redis:// / rediss:// URL.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
	PoolSize           int      `env:"POOL_SIZE"            envDefault:"0"`
	ClientName         string   `env:"CLIENT_NAME"          envDefault:"hakim-identity"`
}
