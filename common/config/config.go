package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

func loadEnvString(key string, result *string) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	*result = s
}

func loadEnvUint(key string, result *uint) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return
	}
	*result = uint(n)
}

func loadEnvBool(key string, result *bool) {
	s, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return
	}
	*result = b
}

/* Configuration */

/* PgSQL Configuration */
type pgSqlConfig struct {
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Database string `json:"database"`
	SslMode  string `json:"ssl_mode"`
	User     string `json:"user"`
	Password string `json:"password"`
}

func (p pgSqlConfig) ConnStr() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s", p.Host, p.Port, p.User, p.Password, p.Database, p.SslMode)
}

func defaultPgSql() pgSqlConfig {
	return pgSqlConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "hiddencash",
		User:     "",
		Password: "",
		SslMode:  "disable",
	}
}

func (p *pgSqlConfig) loadFromEnv() {
	loadEnvString("POSTGRES_HOST", &p.Host)
	loadEnvUint("POSTGRES_PORT", &p.Port)
	loadEnvString("POSTGRES_DB_NAME", &p.Database)
	loadEnvString("POSTGRES_SSLMODE", &p.SslMode)
	loadEnvString("POSTGRES_USERNAME", &p.User)
	loadEnvString("POSTGRES_PASSWORD", &p.Password)
}

/* Listen Configuration */

type listenConfig struct {
	Host string `json:"host"`
	Port uint   `json:"port"`
}

func (l listenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

func defaultListenConfig() listenConfig {
	return listenConfig{
		Host: "127.0.0.1",
		Port: 8080,
	}
}

func (l *listenConfig) loadFromEnv() {
	loadEnvString("LISTEN_HOST", &l.Host)
	loadEnvUint("LISTEN_PORT", &l.Port)
}

/* Render service (headless-browser proxy) configuration */

type RenderConfig struct {
	BaseURL string
	APIKey  string
	// WaitMillis is the final render wait the service applies server-side.
	WaitMillis uint
	// Timeout caps one rendered-page request. The scripted waits alone add
	// up to ~20s, so this must stay generous.
	Timeout time.Duration
}

func (r *RenderConfig) loadFromEnv() {
	loadEnvString("RENDER_BASE_URL", &r.BaseURL)
	loadEnvString("RENDER_API_KEY", &r.APIKey)
	loadEnvUint("RENDER_WAIT_MS", &r.WaitMillis)
	if s := getEnv("RENDER_TIMEOUT_SECONDS", ""); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			r.Timeout = time.Duration(n) * time.Second
		}
	}
}

func defaultRenderConfig() RenderConfig {
	return RenderConfig{
		BaseURL:    "https://api.zenrows.com/v1/",
		APIKey:     "",
		WaitMillis: 10000,
		Timeout:    90 * time.Second,
	}
}

/* Entitlement ledger configuration */

type EntitlementConfig struct {
	BaseURL string
	APIKey  string
}

func (e *EntitlementConfig) loadFromEnv() {
	loadEnvString("REVENUECAT_BASE_URL", &e.BaseURL)
	loadEnvString("REVENUECAT_API_KEY", &e.APIKey)
}

func defaultEntitlementConfig() EntitlementConfig {
	return EntitlementConfig{
		BaseURL: "https://api.revenuecat.com/v1",
		APIKey:  "",
	}
}

/* Push delivery configuration */

type PushConfig struct {
	ExpoURL string
}

func (p *PushConfig) loadFromEnv() {
	loadEnvString("EXPO_PUSH_URL", &p.ExpoURL)
}

func defaultPushConfig() PushConfig {
	return PushConfig{
		ExpoURL: "https://exp.host/--/api/v2/push/send",
	}
}

/* Drip scheduler configuration */

type DripConfig struct {
	// CronSpec is a robfig/cron expression, e.g. "@every 6h".
	CronSpec string
	Enabled  bool
}

func (d *DripConfig) loadFromEnv() {
	loadEnvString("DRIP_CRON_SPEC", &d.CronSpec)
	loadEnvBool("DRIP_ENABLED", &d.Enabled)
}

func defaultDripConfig() DripConfig {
	return DripConfig{
		CronSpec: "@every 6h",
		Enabled:  true,
	}
}

type NatsConfig struct {
	Host     string
	Port     uint
	Username string
	Password string
	Enabled  bool
}

func (c *NatsConfig) loadFromEnv() {
	c.Host = getEnv("NATS_HOST", "localhost")

	if portStr := getEnv("NATS_PORT", "4222"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			c.Port = uint(port)
		} else {
			c.Port = 4222
		}
	} else {
		c.Port = 4222
	}

	c.Username = getEnv("NATS_USER", "")
	c.Password = getEnv("NATS_PASSWORD", "")
	loadEnvBool("NATS_ENABLED", &c.Enabled)
}

func (c *NatsConfig) URL() string {
	return fmt.Sprintf("nats://%s:%d", c.Host, c.Port)
}

func defaultNatsConfig() NatsConfig {
	return NatsConfig{
		Host:     "localhost",
		Port:     4222,
		Username: "",
		Password: "",
		Enabled:  true,
	}
}

type redisConfig struct {
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	// Enabled false drops the run lock and entitlement cache, which a
	// single-instance dev setup can live without.
	Enabled bool `json:"enabled"`
}

func (r *redisConfig) loadFromEnv() {
	loadEnvString("REDIS_HOST", &r.Host)
	loadEnvUint("REDIS_PORT", &r.Port)
	loadEnvString("REDIS_PASSWORD", &r.Password)
	loadEnvBool("REDIS_ENABLED", &r.Enabled)

	if dbStr := getEnv("REDIS_DB", "0"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			r.DB = db
		}
	}
}

func defaultRedisConfig() redisConfig {
	return redisConfig{
		Host:     "localhost",
		Port:     6379,
		Password: "",
		DB:       0,
		Enabled:  true,
	}
}

type Config struct {
	Listen      listenConfig
	PgSql       pgSqlConfig
	Nats        NatsConfig
	Redis       redisConfig
	Render      RenderConfig
	Entitlement EntitlementConfig
	Push        PushConfig
	Drip        DripConfig
}

func (c *Config) LoadFromEnv() {
	c.Listen.loadFromEnv()
	c.PgSql.loadFromEnv()
	c.Nats.loadFromEnv()
	c.Redis.loadFromEnv()
	c.Render.loadFromEnv()
	c.Entitlement.loadFromEnv()
	c.Push.loadFromEnv()
	c.Drip.loadFromEnv()
}

func DefaultConfig() Config {
	return Config{
		Listen:      defaultListenConfig(),
		PgSql:       defaultPgSql(),
		Nats:        defaultNatsConfig(),
		Redis:       defaultRedisConfig(),
		Render:      defaultRenderConfig(),
		Entitlement: defaultEntitlementConfig(),
		Push:        defaultPushConfig(),
		Drip:        defaultDripConfig(),
	}
}
