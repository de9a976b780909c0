// Package config loads process configuration from defaults overlaid with
// LEADTRACK_* environment variables.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"golang.org/x/crypto/bcrypt"

	"leadtrack.io/internal/auth"
	"leadtrack.io/internal/lead"
)

const EnvPrefix = "LEADTRACK_"

// Config is read once at startup and treated as immutable.
type Config struct {
	PGDSN    string
	HTTPAddr string
	GRPCAddr string

	AuthSecret      string
	AuthIssuer      string
	AccessTTL       time.Duration
	RefreshDays     int
	BcryptCost      int
	LogLevel        string
	LoginBurst      int
	LoginPerSec     float64
	CORSOrigins     []string
	TrustedProxies  []netip.Prefix
	PhoneRegion     string
	ShutdownTimeout time.Duration
}

func defaults() map[string]any {
	return map[string]any{
		"pg.dsn":               "",
		"http.addr":            ":8080",
		"grpc.addr":            ":9090",
		"auth.secret":          "",
		"auth.issuer":          auth.DefaultIssuer,
		"auth.access_ttl":      auth.DefaultAccessTTL.String(),
		"auth.refresh_days":    auth.DefaultRefreshDays,
		"auth.bcrypt_cost":     auth.DefaultBcryptCost,
		"log.level":            "info",
		"rate.login_burst":     10,
		"rate.login_per_sec":   1.0,
		"cors.origins":         "",
		"http.trusted_proxies": "",
		"phone.region":         lead.DefaultPhoneRegion,
		"shutdown.timeout":     "10s",
	}
}

// envKey maps LEADTRACK_AUTH_ACCESS_TTL to auth.access_ttl: the first
// underscore separates the section from the key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, key, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + key
}

// Load reads defaults and the environment and validates the result.
func Load() (Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: defaults: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("config: env: %w", err)
	}

	cfg := Config{
		PGDSN:           strings.TrimSpace(k.String("pg.dsn")),
		HTTPAddr:        k.String("http.addr"),
		GRPCAddr:        k.String("grpc.addr"),
		AuthSecret:      k.String("auth.secret"),
		AuthIssuer:      k.String("auth.issuer"),
		AccessTTL:       k.Duration("auth.access_ttl"),
		RefreshDays:     k.Int("auth.refresh_days"),
		BcryptCost:      k.Int("auth.bcrypt_cost"),
		LogLevel:        strings.ToLower(k.String("log.level")),
		LoginBurst:      k.Int("rate.login_burst"),
		LoginPerSec:     k.Float64("rate.login_per_sec"),
		CORSOrigins:     splitList(k.String("cors.origins")),
		PhoneRegion:     strings.ToUpper(k.String("phone.region")),
		ShutdownTimeout: k.Duration("shutdown.timeout"),
	}
	proxies, err := parsePrefixes(splitList(k.String("http.trusted_proxies")))
	if err != nil {
		return Config{}, err
	}
	cfg.TrustedProxies = proxies
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.AuthSecret, validation.Required.Error("LEADTRACK_AUTH_SECRET is required")),
		validation.Field(&c.HTTPAddr, validation.Required),
		validation.Field(&c.AccessTTL, validation.Min(time.Second)),
		validation.Field(&c.RefreshDays, validation.Min(1)),
		validation.Field(&c.BcryptCost, validation.Min(bcrypt.MinCost), validation.Max(bcrypt.MaxCost)),
		validation.Field(&c.LogLevel, validation.In("trace", "debug", "info", "warn", "error")),
		validation.Field(&c.LoginBurst, validation.Min(1)),
		validation.Field(&c.LoginPerSec, validation.Min(0.001)),
		validation.Field(&c.PhoneRegion, validation.Length(2, 2)),
	)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// parsePrefixes accepts CIDR ranges and bare addresses.
func parsePrefixes(raw []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, r := range raw {
		if p, err := netip.ParsePrefix(r); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(r)
		if err != nil {
			return nil, fmt.Errorf("config: http.trusted_proxies: invalid address %q", r)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
