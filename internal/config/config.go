// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package config loads Keyward settings from defaults, an optional YAML file,
// KEYWARD_* environment variables and command-line flags, in that order of
// increasing precedence.
package config

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix is stripped from environment variable names. A double
// underscore separates nesting levels: KEYWARD_MAIL__API__KEY is mail.api.key.
const EnvPrefix = "KEYWARD_"

// Config is the complete process configuration.
type Config struct {
	PublicURL string         `koanf:"public_url"`
	Company   string         `koanf:"company"`
	Database  DatabaseConfig `koanf:"database"`
	Sessions  SessionsConfig `koanf:"sessions"`
	Tokens    TokensConfig   `koanf:"tokens"`
	Mail      MailConfig     `koanf:"mail"`
	HTTP      HTTPConfig     `koanf:"http"`
	Metrics   MetricsConfig  `koanf:"metrics"`
	Log       LogConfig      `koanf:"log"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MaxConns       int32  `koanf:"max_conns"`
	ConnectRetries uint64 `koanf:"connect_retries"`
	AutoMigrate    bool   `koanf:"auto_migrate"`
}

// SessionsConfig holds session lifetimes.
type SessionsConfig struct {
	ShortTTL time.Duration `koanf:"short_ttl"`
	LongTTL  time.Duration `koanf:"long_ttl"`
}

// TokensConfig holds emailed token settings.
type TokensConfig struct {
	Length          int           `koanf:"length"`
	VerificationTTL time.Duration `koanf:"verification_ttl"`
	ResetTTL        time.Duration `koanf:"reset_ttl"`
}

// MailConfig selects the email driver.
type MailConfig struct {
	Driver    string              `koanf:"driver"`
	Sender    string              `koanf:"sender"`
	API       MailAPIConfig       `koanf:"api"`
	SMTP      MailSMTPConfig      `koanf:"smtp"`
	Templates MailTemplatesConfig `koanf:"templates"`
}

// MailAPIConfig configures the template API driver.
type MailAPIConfig struct {
	URL         string        `koanf:"url"`
	TemplateURL string        `koanf:"template_url"`
	Key         string        `koanf:"key"`
	Timeout     time.Duration `koanf:"timeout"`
}

// MailSMTPConfig configures the SMTP driver.
type MailSMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// MailTemplatesConfig names the template keys for each account email.
type MailTemplatesConfig struct {
	Verification  string `koanf:"verification"`
	ResetPassword string `koanf:"reset_password"`
}

// HTTPConfig configures the public API server.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	SecureCookies   bool          `koanf:"secure_cookies"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Defaults returns the built-in values for every key.
func Defaults() map[string]any {
	return map[string]any{
		"public_url":                    "http://localhost:1234",
		"company":                       "Keyward",
		"database.url":                  "",
		"database.max_conns":            int32(0),
		"database.connect_retries":      uint64(5),
		"database.auto_migrate":         false,
		"sessions.short_ttl":            time.Hour,
		"sessions.long_ttl":             30 * 24 * time.Hour,
		"tokens.length":                 8,
		"tokens.verification_ttl":       time.Hour,
		"tokens.reset_ttl":              time.Hour,
		"mail.driver":                   "log",
		"mail.sender":                   "noreply@localhost",
		"mail.api.url":                  "",
		"mail.api.template_url":         "",
		"mail.api.key":                  "",
		"mail.api.timeout":              10 * time.Second,
		"mail.smtp.host":                "",
		"mail.smtp.port":                587,
		"mail.smtp.username":            "",
		"mail.smtp.password":            "",
		"mail.templates.verification":   "email-verification",
		"mail.templates.reset_password": "reset-password",
		"http.addr":                     ":1234",
		"http.request_timeout":          30 * time.Second,
		"http.shutdown_timeout":         10 * time.Second,
		"http.cors_origins":             []string{},
		"http.secure_cookies":           false,
		"metrics.addr":                  "127.0.0.1:9100",
		"log.format":                    "json",
		"log.level":                     "info",
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"database-url": "database.url",
	"auto-migrate": "database.auto_migrate",
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"public-url":   "public_url",
	"mail-driver":  "mail.driver",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// BindFlags registers the flags Load understands on fs. Flag defaults are
// empty; an unset flag never overrides a lower layer.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.Bool("auto-migrate", false, "apply pending migrations before serving")
	fs.String("http-addr", "", "public API listen address")
	fs.String("metrics-addr", "", "metrics/health listen address (empty keeps the configured value)")
	fs.String("public-url", "", "base URL used in emailed links")
	fs.String("mail-driver", "", "email driver: api, smtp or log")
	fs.String("log-format", "", "log format: json or text")
	fs.String("log-level", "", "log level: debug, info, warn or error")
}

// envKey maps KEYWARD_MAIL__API__KEY to mail.api.key.
func envKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)), "__", ".")
}

// listKeys hold comma-separated lists when set from the environment.
var listKeys = map[string]bool{
	"http.cors_origins": true,
}

// envValue maps a variable to its key and splits list values.
func envValue(name, value string) (string, any) {
	key := envKey(name)
	if !listKeys[key] {
		return key, value
	}
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return key, items
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDurationHook reads bare integers as seconds, so short_ttl: 3600
// and KEYWARD_SESSIONS__SHORT_TTL=3600 both mean one hour. Strings with a
// unit fall through to the standard duration parser.
func secondsToDurationHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case time.Duration:
		return v, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case uint64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return time.Duration(n) * time.Second, nil
		}
	}
	return data, nil
}

func decoderConfig(out *Config) *mapstructure.DecoderConfig {
	return &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.DecodeHookFuncType(secondsToDurationHook),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           out,
	}
}

// Load builds a Config. path may be empty; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "defaults").Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "file").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "env").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag:           "koanf",
		DecoderConfig: decoderConfig(&cfg),
	}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "unmarshal").Wrap(err)
	}
	return &cfg, nil
}
