// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Storage backends.
const (
	BackendFile  = "file"
	BackendBbolt = "bbolt"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config is the server and CLI configuration. Flags may override any field
// after Load.
type Config struct {
	// AdminPassword seeds the credential record on first run only.
	AdminPassword  string   `env:"PLATEDASH_ADMIN_PASSWORD"`
	DataDir        string   `env:"PLATEDASH_DATA_DIR"        envDefault:"./data"`
	StoreBackend   string   `env:"PLATEDASH_STORE_BACKEND"   envDefault:"file"`
	Listen         string   `env:"PLATEDASH_LISTEN"          envDefault:":8080"`
	TrustedProxies []string `env:"PLATEDASH_TRUSTED_PROXIES" envSeparator:","`
	LogFormat      string   `env:"PLATEDASH_LOG_FORMAT"      envDefault:"json"`

	// AlertWebhook receives security alerts as JSON POSTs when set.
	AlertWebhook       string `env:"PLATEDASH_ALERT_WEBHOOK"`
	AlertWebhookHeader string `env:"PLATEDASH_ALERT_WEBHOOK_HEADER"`
}

// Load parses the environment into a Config with defaults applied.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks field values that env parsing cannot.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendFile, BackendBbolt:
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalid, c.StoreBackend)
	}
	if c.DataDir == "" {
		return fmt.Errorf("%w: data directory is required", ErrInvalid)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.LogFormat)
	}
	if c.AlertWebhook != "" {
		u, err := url.Parse(c.AlertWebhook)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: alert webhook must be an http(s) URL", ErrInvalid)
		}
	}
	if _, err := c.ParseTrustedProxies(); err != nil {
		return err
	}
	return nil
}

// StorePath returns the credential store location for the configured backend.
func (c Config) StorePath() string {
	if c.StoreBackend == BackendBbolt {
		return filepath.Join(c.DataDir, "credentials.db")
	}
	return filepath.Join(c.DataDir, "credentials.json")
}

// ParseTrustedProxies parses TrustedProxies as CIDR prefixes. A bare address
// is taken as a single-host prefix.
func (c Config) ParseTrustedProxies() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: trusted proxy %q: %v", ErrInvalid, raw, err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: trusted proxy %q: %v", ErrInvalid, raw, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}
