package auth

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"
)

// AppConfig is the file-and-flags backed Config implementation. Flags win
// over the config file, the file wins over defaults.
type AppConfig struct {
	SigningKey      string `koanf:"signing_key"`
	TokenExpiration string `koanf:"token_expiration"`
	BcryptCost      int    `koanf:"bcrypt_cost"`
	ListenAddr      string `koanf:"listen_addr"`
	DatabaseDSN     string `koanf:"database_dsn"`
}

var _ Config = (*AppConfig)(nil)

// DefaultConfig returns the baseline configuration before any file or flag
// overrides are applied.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		TokenExpiration: "7d",
		BcryptCost:      DefaultBcryptCost,
		ListenAddr:      ":8080",
		DatabaseDSN:     "file:auth.db?cache=shared",
	}
}

func (c *AppConfig) GetSigningKey() string      { return c.SigningKey }
func (c *AppConfig) GetTokenExpiration() string { return c.TokenExpiration }
func (c *AppConfig) GetBcryptCost() int         { return c.BcryptCost }
func (c *AppConfig) GetListenAddr() string      { return c.ListenAddr }
func (c *AppConfig) GetDatabaseDSN() string     { return c.DatabaseDSN }

// Validate checks that the configuration can actually run an auth service.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.SigningKey) == "" {
		return ConfigurationError("signing_key is required")
	}

	if _, err := ParseExpiry(c.TokenExpiration); err != nil {
		return err
	}

	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return ConfigurationError("bcrypt_cost out of range")
	}

	if strings.TrimSpace(c.ListenAddr) == "" {
		return ConfigurationError("listen_addr is required")
	}

	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return ConfigurationError("database_dsn is required")
	}

	return nil
}

// LoadConfig layers defaults, an optional YAML file, and command line flags
// into an AppConfig. Flag names use dashes; config keys use underscores.
func LoadConfig(path string, flags *pflag.FlagSet) (*AppConfig, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, ConfigurationError("could not read config file: " + err.Error())
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, ConfigurationError("could not read flags: " + err.Error())
		}
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, ConfigurationError("could not unmarshal config: " + err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
