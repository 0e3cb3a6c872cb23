package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

type RoleDefinition struct {
	Name        string   `json:"name" validate:"required"`
	Level       int      `json:"level" validate:"gte=0"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type AdminConfig struct {
	Username string   `json:"username" envconfig:"ADMIN_USER" validate:"required"`
	Email    string   `json:"email" envconfig:"ADMIN_MAIL" validate:"required"`
	Password string   `json:"password" envconfig:"ADMIN_PASS" validate:"required"`
	Roles    []string `json:"roles" validate:"required,min=1,dive,required"`
}

// HostingConfig describes the hosting provider API used by the admin
// application actions.
type HostingConfig struct {
	Domain   string   `json:"domain" envconfig:"PA_DOMAIN"`
	Username string   `json:"username" envconfig:"PA_USERNAME"`
	Token    string   `json:"token" envconfig:"PA_TOKEN"`
	APIBase  string   `json:"api_base" envconfig:"PA_API_BASE"`
	Timeout  Duration `json:"timeout" envconfig:"PA_TIMEOUT"`
}

// Enabled reports whether all credentials needed by the hosting API are set.
func (h HostingConfig) Enabled() bool {
	return h.Domain != "" && h.Username != "" && h.Token != ""
}

type SMTPConfig struct {
	Enabled    bool   `json:"enabled" envconfig:"SMTP_ENABLED"`
	SenderName string `json:"sender_name" envconfig:"SMTP_SENDER_NAME"`
	Server     string `json:"server" envconfig:"SMTP_SERVER"`
	Username   string `json:"username" envconfig:"SMTP_USER"`
	Password   string `json:"password" envconfig:"SMTP_PASS"`
	Port       int    `json:"port" envconfig:"SMTP_PORT"`
	UseSSL     bool   `json:"use_ssl" envconfig:"SMTP_USE_SSL"`
	UseTLS     bool   `json:"use_tls" envconfig:"SMTP_USE_TLS"`
}

type Config struct {
	App struct {
		Name         string `json:"name" envconfig:"APP_NAME"`
		Title        string `json:"title" envconfig:"APP_TITLE"`
		Dir          string `json:"dir" envconfig:"APP_DIR"`
		ThemesDir    string `json:"themes_dir" envconfig:"APP_THEMES_DIR"`
		DefaultTheme string `json:"default_theme" envconfig:"APP_DEFAULT_THEME"`
		DefaultRole  string `json:"default_role" envconfig:"APP_DEFAULT_ROLE" validate:"required"`
	} `json:"app"`
	Server struct {
		Host      string `json:"host" envconfig:"SERVER_HOST"`
		Port      int    `json:"port" envconfig:"SERVER_PORT" validate:"gt=0,lte=65535"`
		Subpath   string `json:"subpath" envconfig:"SERVER_SUBPATH"`
		JWTSecret string `json:"jwtSecret" envconfig:"JWT_SECRET" validate:"required"`
		// Requests per minute per client IP; 0 disables the limiter.
		RateLimit int `json:"rate_limit" envconfig:"SERVER_RATE_LIMIT"`
	} `json:"server"`
	Database struct {
		Driver string `json:"driver" envconfig:"DATABASE_DRIVER" validate:"oneof=sqlite postgres mysql"`
		DSN    string `json:"dsn" envconfig:"DATABASE_DSN" validate:"required"`
	} `json:"database"`
	Redis struct {
		Addr     string `json:"addr" envconfig:"REDIS_ADDR"`
		Password string `json:"password" envconfig:"REDIS_PASSWORD"`
		DB       int    `json:"db" envconfig:"REDIS_DB"`
	} `json:"redis"`
	Admin   AdminConfig      `json:"admin"`
	Roles   []RoleDefinition `json:"roles" validate:"required,min=1,dive"`
	Hosting HostingConfig    `json:"hosting"`
	SMTP    SMTPConfig       `json:"smtp"`
}

// Duration is a time.Duration that unmarshals from "10s"-style JSON strings.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.Decode(s)
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	c := &Config{}
	c.App.Name = "gatehouse"
	c.App.Title = "Gatehouse"
	c.App.Dir = "."
	c.App.ThemesDir = "static/themes/css"
	c.App.DefaultTheme = "united"
	c.App.DefaultRole = "member"
	c.Server.Host = "0.0.0.0"
	c.Server.Port = 5025
	c.Server.RateLimit = 120
	c.Database.Driver = "sqlite"
	c.Database.DSN = "db/app.db"
	c.Redis.Addr = "localhost:6379"
	c.Admin = AdminConfig{
		Username: "admin",
		Email:    "admin@127.0.0.1",
		Password: "admin",
		Roles:    []string{"owner", "admin", "member"},
	}
	c.Roles = []RoleDefinition{
		{Name: "guest", Level: 1, Description: "Guest", Permissions: []string{}},
		{Name: "member", Level: 5, Description: "Member", Permissions: []string{"view_ucp"}},
		{Name: "admin", Level: 100, Description: "Administrator", Permissions: []string{"view_acp", "add_admin"}},
		{Name: "owner", Level: 1000, Description: "Owner", Permissions: []string{"view_acp", "remove_admin"}},
	}
	c.Hosting.APIBase = "https://www.pythonanywhere.com/api/v0/user/"
	c.Hosting.Timeout = Duration(10 * time.Second)
	c.SMTP.Port = 587
	c.SMTP.UseTLS = true
	return c
}

var validate = validator.New()

// LoadConfig reads the JSON file at path on top of Default, then applies
// environment overrides. A missing file is an error; an empty path skips
// the file and uses defaults plus environment.
func LoadConfig(path string) (*Config, error) {
	c := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(raw, c); err != nil {
			return nil, fmt.Errorf("invalid config format: %w", err)
		}
	}
	if err := envconfig.Process("", c); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks struct constraints and cross-field references between the
// admin account, the default role and the role definitions.
func (c *Config) Validate() error {
	if c.Server.JWTSecret == "" {
		return errors.New("jwtSecret must be set in config")
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := make(map[string]bool, len(c.Roles))
	for _, r := range c.Roles {
		if seen[r.Name] {
			return fmt.Errorf("duplicate role definition %q", r.Name)
		}
		seen[r.Name] = true
	}
	if !seen[c.App.DefaultRole] {
		return fmt.Errorf("default role %q is not defined", c.App.DefaultRole)
	}
	for _, name := range c.Admin.Roles {
		if !seen[name] {
			return fmt.Errorf("admin role %q is not defined", name)
		}
	}
	return nil
}
