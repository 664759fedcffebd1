// Package config provides configuration loading for the registry server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Role is the cluster role of this node.
type Role string

const (
	RoleStandalone Role = "standalone"
	RoleWriter     Role = "writer"
	RoleFollower   Role = "follower"
)

// Config holds all configuration for the registry node.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Cluster ClusterConfig `mapstructure:"cluster"`
	Store   StoreConfig   `mapstructure:"store"`
	Auth    AuthConfig    `mapstructure:"auth"`
	SMTP    SMTPConfig    `mapstructure:"smtp"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// ServerConfig holds HTTP server configuration. The peer port carries the
// cluster-local endpoints (/db, /pull, /pull-db, /get-db) and metrics.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	PeerPort     int           `mapstructure:"peer_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PublicURL    string        `mapstructure:"public_url"`
}

// ClusterConfig holds replica topology configuration.
type ClusterConfig struct {
	Role Role `mapstructure:"role"`
	// WriterAddr is the base URL of the writer's public port, used by
	// followers when forwarding writes.
	WriterAddr string `mapstructure:"writer_addr"`
	// WriterPeerAddr is the base URL of the writer's cluster port, used
	// for MetaDB snapshot pulls.
	WriterPeerAddr string `mapstructure:"writer_peer_addr"`
	// RemoteMount is the writer's data directory on the shared volume,
	// pulled from by followers; the commit log lives under its .log
	// subdirectory (legacy REMOTE_MOUNT_POINT).
	RemoteMount string `mapstructure:"remote_mount"`
	// Peers lists follower peer-port base URLs for push-notify.
	Peers []string `mapstructure:"peers"`
	// RequestTimeout bounds every outbound cluster HTTP call.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// StoreConfig holds on-disk layout configuration.
type StoreConfig struct {
	// BaseDir is the node's data root: metadata.db, data/ and index/ live
	// underneath it.
	BaseDir string `mapstructure:"base_dir"`
}

// MetaDBPath returns the MetaStore backing file path.
func (c StoreConfig) MetaDBPath() string { return filepath.Join(c.BaseDir, "metadata.db") }

// DataDir returns the DocStore working tree path.
func (c StoreConfig) DataDir() string { return filepath.Join(c.BaseDir, "data") }

// IndexDir returns the full-text index path.
func (c StoreConfig) IndexDir() string { return filepath.Join(c.BaseDir, "index") }

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// SMTPConfig holds outbound mail configuration.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// Enabled reports whether a mail transport is configured.
func (c SMTPConfig) Enabled() bool { return c.Host != "" }

// RedisConfig holds Redis configuration. Redis is optional; it backs rate
// limiting and notification dedupe when present.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// Enabled reports whether Redis is configured.
func (c RedisConfig) Enabled() bool { return c.Host != "" }

// Load reads configuration from files and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/grundbuch")

	v.SetEnvPrefix("GRUNDBUCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Explicit binds for nested keys set through the environment.
	v.BindEnv("cluster.role", "GRUNDBUCH_CLUSTER_ROLE")
	v.BindEnv("cluster.writer_addr", "GRUNDBUCH_CLUSTER_WRITER_ADDR")
	v.BindEnv("cluster.writer_peer_addr", "GRUNDBUCH_CLUSTER_WRITER_PEER_ADDR")
	v.BindEnv("cluster.remote_mount", "GRUNDBUCH_CLUSTER_REMOTE_MOUNT")
	v.BindEnv("store.base_dir", "GRUNDBUCH_STORE_BASE_DIR")
	v.BindEnv("smtp.host", "GRUNDBUCH_SMTP_HOST")
	v.BindEnv("smtp.user", "GRUNDBUCH_SMTP_USER")
	v.BindEnv("smtp.password", "GRUNDBUCH_SMTP_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we use defaults and env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Orchestrators set REMOTE_MOUNT_POINT on followers to the writer's
	// shared volume; it overrides the config-file value when present.
	if mp := os.Getenv("REMOTE_MOUNT_POINT"); mp != "" {
		cfg.Cluster.RemoteMount = mp
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Cluster.Role {
	case RoleStandalone, RoleWriter:
	case RoleFollower:
		if c.Cluster.WriterAddr == "" {
			return fmt.Errorf("cluster.writer_addr is required for role follower")
		}
	default:
		return fmt.Errorf("unknown cluster role %q", c.Cluster.Role)
	}
	return nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.peer_port", 8081)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.public_url", "http://localhost:8080")

	v.SetDefault("cluster.role", "standalone")
	v.SetDefault("cluster.remote_mount", "/mnt/data/files")
	v.SetDefault("cluster.request_timeout", "30s")

	v.SetDefault("store.base_dir", "/var/lib/grundbuch")

	v.SetDefault("auth.session_ttl", "30m")

	v.SetDefault("smtp.port", 587)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
}
