package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Cron    CronConfig    `mapstructure:"cron"`
	Client  ClientConfig  `mapstructure:"client"`
	Tenancy TenancyConfig `mapstructure:"tenancy"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	// DSNTemplate builds a per-tenant DSN under database-per-tenant
	// isolation; %s is replaced by the tenant identifier. Empty means all
	// tenants share DSN (row-level isolation).
	DSNTemplate     string        `mapstructure:"dsn_template"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type SyncConfig struct {
	// Policy is "version_strict" or "last_write_wins".
	Policy    string        `mapstructure:"policy"`
	BatchSize int           `mapstructure:"batch_size"`
	PeerID    string        `mapstructure:"peer_id"`
	PeerURL   string        `mapstructure:"peer_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type CronConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	SyncCycle string `mapstructure:"sync_cycle"`
}

type ClientConfig struct {
	// ConfigPath is where the device key and leased node id persist; empty
	// means the per-user default location.
	ConfigPath string `mapstructure:"config_path"`
	ServerURL  string `mapstructure:"server_url"`
}

type TenancyConfig struct {
	// Mode is "row" (shared store, tenant column) or "database" (one store
	// per tenant via db.dsn_template).
	Mode   string `mapstructure:"mode"`
	Header string `mapstructure:"header"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "file:shuttle-bridge.db?_pragma=foreign_keys(1)")
	v.SetDefault("db.dsn_template", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("sync.policy", "version_strict")
	v.SetDefault("sync.batch_size", 500)
	v.SetDefault("sync.peer_id", "server")
	v.SetDefault("sync.peer_url", "")
	v.SetDefault("sync.timeout", "15s")
	v.SetDefault("cron.enabled", false)
	v.SetDefault("cron.sync_cycle", "@every 30s")
	v.SetDefault("client.config_path", "")
	v.SetDefault("client.server_url", "http://127.0.0.1:8080")
	v.SetDefault("tenancy.mode", "row")
	v.SetDefault("tenancy.header", "X-Tenant")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
