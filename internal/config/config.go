package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/posgate/internal/security/keyring"
	"github.com/dropDatabas3/posgate/internal/webhook"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
		Version  string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Storage struct {
		Driver   string `yaml:"driver"` // memory | postgres
		DSN      string `yaml:"dsn"`
		Migrate  bool   `yaml:"migrate"`
		Postgres struct {
			MaxConns        int32         `yaml:"max_conns"`
			MinConns        int32         `yaml:"min_conns"`
			ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	// Redis opcional: si Addr está vacío, pending states y rate limit quedan en memoria.
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`

	Security struct {
		// base64 o hex de 32 bytes. Preferir env SECRETBOX_MASTER_KEY.
		SecretBoxMasterKey string `yaml:"secretbox_master_key"`
	} `yaml:"security"`

	Square struct {
		Enabled      bool     `yaml:"enabled"`
		ClientID     string   `yaml:"client_id"`
		ClientSecret string   `yaml:"client_secret"`
		RedirectURL  string   `yaml:"redirect_url"`
		Scopes       []string `yaml:"scopes"`
		Sandbox      bool     `yaml:"sandbox"`
		BaseURL      string   `yaml:"base_url"` // override (tests / proxies)
	} `yaml:"square"`

	Webhook struct {
		// secure | insecure_explicit
		Mode            string        `yaml:"mode"`
		SignatureKey    string        `yaml:"signature_key"`
		NotificationURL string        `yaml:"notification_url"`
		DedupeMax       int           `yaml:"dedupe_max"`
		DedupeEvict     int           `yaml:"dedupe_evict"`
		Workers         int           `yaml:"workers"`
		QueueSize       int           `yaml:"queue_size"`
		ProcessTimeout  time.Duration `yaml:"process_timeout"`
	} `yaml:"webhook"`

	Vault struct {
		RefreshAhead   time.Duration `yaml:"refresh_ahead"`
		RefreshTimeout time.Duration `yaml:"refresh_timeout"`
	} `yaml:"vault"`

	OAuth struct {
		StateTTL        time.Duration `yaml:"state_ttl"`
		ExchangeTimeout time.Duration `yaml:"exchange_timeout"`
		HTTPTimeout     time.Duration `yaml:"http_timeout"`
	} `yaml:"oauth"`

	Scheduler struct {
		Enabled     bool          `yaml:"enabled"`
		Period      time.Duration `yaml:"period"`
		Concurrency int           `yaml:"concurrency"`
		RunOnStart  bool          `yaml:"run_on_start"`
	} `yaml:"scheduler"`

	Session struct {
		Issuer     string        `yaml:"issuer"`
		AccessTTL  time.Duration `yaml:"access_ttl"`
		RefreshTTL time.Duration `yaml:"refresh_ttl"`
	} `yaml:"session"`

	Rate struct {
		Enabled     bool          `yaml:"enabled"`
		Window      time.Duration `yaml:"window"`
		MaxRequests int           `yaml:"max_requests"`
	} `yaml:"rate"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

// Default devuelve la config con todos los defaults aplicados.
func Default() *Config {
	c := &Config{}
	c.Scheduler.Enabled = true
	c.Metrics.Enabled = true
	c.Square.Enabled = true
	c.setDefaults()
	return c
}

// Load lee el YAML (path vacío => sólo defaults), aplica overrides de env y
// valida. Un path inexistente es error.
func Load(path string) (*Config, error) {
	c := Default()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	c.setDefaults()
	c.applyEnvOverrides()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// sane defaults (sólo completa lo vacío)
func (c *Config) setDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 20 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "posgate:"
	}
	if c.Webhook.Mode == "" {
		c.Webhook.Mode = webhook.Secure.String()
	}
	if c.Webhook.DedupeMax == 0 {
		c.Webhook.DedupeMax = 1000
	}
	if c.Webhook.DedupeEvict == 0 {
		c.Webhook.DedupeEvict = 500
	}
	if c.Webhook.Workers == 0 {
		c.Webhook.Workers = 4
	}
	if c.Webhook.QueueSize == 0 {
		c.Webhook.QueueSize = 256
	}
	if c.Webhook.ProcessTimeout == 0 {
		c.Webhook.ProcessTimeout = 30 * time.Second
	}
	if c.Vault.RefreshAhead == 0 {
		c.Vault.RefreshAhead = 24 * time.Hour
	}
	if c.Vault.RefreshTimeout == 0 {
		c.Vault.RefreshTimeout = 30 * time.Second
	}
	if c.OAuth.StateTTL == 0 {
		c.OAuth.StateTTL = 10 * time.Minute
	}
	if c.OAuth.ExchangeTimeout == 0 {
		c.OAuth.ExchangeTimeout = 30 * time.Second
	}
	if c.OAuth.HTTPTimeout == 0 {
		c.OAuth.HTTPTimeout = 10 * time.Second
	}
	if c.Scheduler.Period == 0 {
		c.Scheduler.Period = 7 * 24 * time.Hour
	}
	if c.Scheduler.Concurrency == 0 {
		c.Scheduler.Concurrency = 4
	}
	if c.Session.Issuer == "" {
		c.Session.Issuer = "posgate"
	}
	if c.Session.AccessTTL == 0 {
		c.Session.AccessTTL = 15 * time.Minute
	}
	if c.Session.RefreshTTL == 0 {
		c.Session.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.Rate.Window == 0 {
		c.Rate.Window = time.Minute
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 60
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

func getEnvCSV(key string) ([]string, bool) {
	s, ok := getEnvStr(key)
	if !ok {
		return nil, false
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, true
}

// applyEnvOverrides pisa el YAML con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("POSGATE_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	} else if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("POSGATE_LOG_LEVEL"); ok {
		c.App.LogLevel = v
	}

	// SERVER
	if v, ok := getEnvStr("POSGATE_ADDR"); ok {
		c.Server.Addr = v
	} else if v, ok := getEnvStr("PORT"); ok {
		c.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v, ok := getEnvDur("POSGATE_SHUTDOWN_TIMEOUT"); ok {
		c.Server.ShutdownTimeout = v
	}

	// STORAGE
	if v, ok := getEnvStr("POSGATE_STORAGE_DRIVER"); ok {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("POSGATE_STORAGE_DSN"); ok {
		c.Storage.DSN = v
	} else if v, ok := getEnvStr("DATABASE_URL"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvBool("POSGATE_STORAGE_MIGRATE"); ok {
		c.Storage.Migrate = v
	}
	if v, ok := getEnvInt("POSGATE_POSTGRES_MAX_CONNS"); ok {
		c.Storage.Postgres.MaxConns = int32(v)
	}

	// REDIS
	if v, ok := getEnvStr("POSGATE_REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := getEnvStr("POSGATE_REDIS_PASSWORD"); ok {
		c.Redis.Password = v
	}
	if v, ok := getEnvInt("POSGATE_REDIS_DB"); ok {
		c.Redis.DB = v
	}

	// SECURITY
	if v, ok := getEnvStr("SECRETBOX_MASTER_KEY"); ok {
		c.Security.SecretBoxMasterKey = v
	}

	// SQUARE
	if v, ok := getEnvBool("SQUARE_ENABLED"); ok {
		c.Square.Enabled = v
	}
	if v, ok := getEnvStr("SQUARE_CLIENT_ID"); ok {
		c.Square.ClientID = v
	}
	if v, ok := getEnvStr("SQUARE_CLIENT_SECRET"); ok {
		c.Square.ClientSecret = v
	}
	if v, ok := getEnvStr("SQUARE_REDIRECT_URL"); ok {
		c.Square.RedirectURL = v
	}
	if v, ok := getEnvCSV("SQUARE_SCOPES"); ok && len(v) > 0 {
		c.Square.Scopes = v
	}
	if v, ok := getEnvBool("SQUARE_SANDBOX"); ok {
		c.Square.Sandbox = v
	}
	if v, ok := getEnvStr("SQUARE_BASE_URL"); ok {
		c.Square.BaseURL = v
	}

	// WEBHOOK
	if v, ok := getEnvStr("POSGATE_WEBHOOK_MODE"); ok {
		c.Webhook.Mode = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := getEnvStr("SQUARE_WEBHOOK_SIGNATURE_KEY"); ok {
		c.Webhook.SignatureKey = v
	}
	if v, ok := getEnvStr("SQUARE_WEBHOOK_NOTIFICATION_URL"); ok {
		c.Webhook.NotificationURL = v
	}
	if v, ok := getEnvInt("POSGATE_WEBHOOK_WORKERS"); ok {
		c.Webhook.Workers = v
	}

	// VAULT / OAUTH / SCHEDULER
	if v, ok := getEnvDur("POSGATE_REFRESH_AHEAD"); ok {
		c.Vault.RefreshAhead = v
	}
	if v, ok := getEnvDur("POSGATE_OAUTH_STATE_TTL"); ok {
		c.OAuth.StateTTL = v
	}
	if v, ok := getEnvBool("POSGATE_SCHEDULER_ENABLED"); ok {
		c.Scheduler.Enabled = v
	}
	if v, ok := getEnvDur("POSGATE_SCHEDULER_PERIOD"); ok {
		c.Scheduler.Period = v
	}
	if v, ok := getEnvBool("POSGATE_SCHEDULER_RUN_ON_START"); ok {
		c.Scheduler.RunOnStart = v
	}

	// SESSION
	if v, ok := getEnvStr("POSGATE_SESSION_ISSUER"); ok {
		c.Session.Issuer = v
	}
	if v, ok := getEnvDur("POSGATE_SESSION_ACCESS_TTL"); ok {
		c.Session.AccessTTL = v
	}
	if v, ok := getEnvDur("POSGATE_SESSION_REFRESH_TTL"); ok {
		c.Session.RefreshTTL = v
	}

	// RATE
	if v, ok := getEnvBool("POSGATE_RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvDur("POSGATE_RATE_WINDOW"); ok {
		c.Rate.Window = v
	}
	if v, ok := getEnvInt("POSGATE_RATE_MAX_REQUESTS"); ok {
		c.Rate.MaxRequests = v
	}

	// METRICS
	if v, ok := getEnvBool("POSGATE_METRICS_ENABLED"); ok {
		c.Metrics.Enabled = v
	}
}

// WebhookMode devuelve el modo ya parseado. Llamar después de Validate.
func (c *Config) WebhookMode() webhook.Mode {
	m, _ := webhook.ParseMode(c.Webhook.Mode)
	return m
}

// IsProd true si App.Env es prod/production.
func (c *Config) IsProd() bool {
	e := strings.ToLower(c.App.Env)
	return e == "prod" || e == "production"
}

// Validate corre una vez al arranque. Devuelve todos los problemas juntos.
func (c *Config) Validate() error {
	var errs []error

	if _, err := keyring.Parse(c.Security.SecretBoxMasterKey); err != nil {
		errs = append(errs, fmt.Errorf("SECRETBOX_MASTER_KEY: %w", err))
	}

	switch c.Storage.Driver {
	case "memory", "mem":
	case "postgres", "pg":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage: postgres requiere dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage: driver desconocido %q", c.Storage.Driver))
	}

	mode, err := webhook.ParseMode(c.Webhook.Mode)
	switch {
	case err != nil:
		errs = append(errs, err)
	case mode == webhook.Secure && strings.TrimSpace(c.Webhook.SignatureKey) == "":
		errs = append(errs, fmt.Errorf("SQUARE_WEBHOOK_SIGNATURE_KEY: %w", webhook.ErrMissingSecret))
	case mode == webhook.InsecureExplicit && strings.TrimSpace(c.Webhook.SignatureKey) != "":
		errs = append(errs, webhook.ErrUnexpectedSecret)
	case mode == webhook.InsecureExplicit && c.IsProd():
		errs = append(errs, errors.New("webhook: insecure_explicit no está permitido en prod"))
	}

	if c.Square.Enabled {
		if c.Square.ClientID == "" || c.Square.ClientSecret == "" {
			errs = append(errs, errors.New("square: SQUARE_CLIENT_ID y SQUARE_CLIENT_SECRET son requeridos"))
		}
	}

	if c.Webhook.DedupeEvict <= 0 || c.Webhook.DedupeEvict > c.Webhook.DedupeMax {
		errs = append(errs, fmt.Errorf("webhook: dedupe_evict (%d) debe estar en (0, dedupe_max=%d]", c.Webhook.DedupeEvict, c.Webhook.DedupeMax))
	}

	for name, d := range map[string]time.Duration{
		"vault.refresh_ahead":    c.Vault.RefreshAhead,
		"vault.refresh_timeout":  c.Vault.RefreshTimeout,
		"oauth.state_ttl":        c.OAuth.StateTTL,
		"oauth.exchange_timeout": c.OAuth.ExchangeTimeout,
		"scheduler.period":       c.Scheduler.Period,
		"session.access_ttl":     c.Session.AccessTTL,
		"session.refresh_ttl":    c.Session.RefreshTTL,
		"rate.window":            c.Rate.Window,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s: duración negativa (%s)", name, d))
		}
	}
	if c.Session.RefreshTTL <= c.Session.AccessTTL {
		errs = append(errs, errors.New("session: refresh_ttl debe ser mayor que access_ttl"))
	}

	return errors.Join(errs...)
}

// Redacted devuelve una copia sin secretos (para print-config y logs).
func (c *Config) Redacted() Config {
	cp := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	cp.Security.SecretBoxMasterKey = mask(cp.Security.SecretBoxMasterKey)
	cp.Square.ClientSecret = mask(cp.Square.ClientSecret)
	cp.Webhook.SignatureKey = mask(cp.Webhook.SignatureKey)
	cp.Redis.Password = mask(cp.Redis.Password)
	if cp.Storage.DSN != "" {
		cp.Storage.DSN = "***"
	}
	return cp
}
