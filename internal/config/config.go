// Package config handles loading and managing invoicefinder configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// GoogleConfig holds Google Workspace credentials and delegation settings.
type GoogleConfig struct {
	CredentialsFile string   `toml:"credentials_file"` // Service account JSON key file
	AdminEmail      string   `toml:"admin_email"`      // Workspace admin impersonated for Directory API calls
	Domain          string   `toml:"domain"`           // Workspace domain for full-domain mailbox enumeration
	Mailboxes       []string `toml:"mailboxes"`        // Explicit mailbox list; skips domain enumeration
	RateLimitQPS    int      `toml:"rate_limit_qps"`

	// CredentialsJSON carries the key material directly, read from
	// GOOGLE_SERVICE_ACCOUNT_JSON in deployments without a key file.
	CredentialsJSON string `toml:"-"`
}

// UserCredential is one login the HTTP API accepts.
type UserCredential struct {
	Email    string `toml:"email"`
	Password string `toml:"password"`
}

// AuthConfig holds login credentials, session settings and scope mappings.
type AuthConfig struct {
	Users         []UserCredential `toml:"users"`
	SessionSecret string           `toml:"session_secret"`
	SessionHours  int              `toml:"session_hours"`
	ScopeMappings string           `toml:"scope_mappings"` // user:groupEmail:groupName,...
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	BindAddr        string   `toml:"bind_addr"`
	APIPort         int      `toml:"api_port"`
	CORSOrigins     []string `toml:"cors_origins"`
	CORSCredentials bool     `toml:"cors_credentials"`
	CORSMaxAge      int      `toml:"cors_max_age"`
}

// SearchConfig tunes the federated search fan-out.
type SearchConfig struct {
	Strategy          string `toml:"strategy"`   // "smart" (default) or "legacy"
	BatchSize         int    `toml:"batch_size"` // Mailboxes searched concurrently per batch
	MaxResults        int    `toml:"max_results"`
	DetailConcurrency int    `toml:"detail_concurrency"`
}

// DownloadConfig holds attachment download settings.
type DownloadConfig struct {
	FallbackMailbox string `toml:"fallback_mailbox"` // Used when the client omits the mailbox
}

// Config represents the invoicefinder configuration.
type Config struct {
	Google   GoogleConfig   `toml:"google"`
	Auth     AuthConfig     `toml:"auth"`
	Server   ServerConfig   `toml:"server"`
	Search   SearchConfig   `toml:"search"`
	Download DownloadConfig `toml:"download"`

	// Computed at load time, not from the config file
	HomeDir string `toml:"-"`
}

// DefaultHome returns the default invoicefinder home directory.
// Respects the INVOICEFINDER_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("INVOICEFINDER_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".invoicefinder"
	}
	return filepath.Join(home, ".invoicefinder")
}

// Load reads the configuration from the specified file.
// If path is empty, uses the default location (~/.invoicefinder/config.toml).
// Secrets may also arrive via environment variables, which take precedence
// over file values so deployments never need key material on disk.
func Load(path string) (*Config, error) {
	homeDir := DefaultHome()

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := &Config{
		HomeDir: homeDir,
		Google: GoogleConfig{
			RateLimitQPS: 5,
		},
		Auth: AuthConfig{
			SessionHours: 12,
		},
		Server: ServerConfig{
			BindAddr: "127.0.0.1",
			APIPort:  8080,
		},
		Search: SearchConfig{
			Strategy:          "smart",
			BatchSize:         20,
			MaxResults:        50,
			DetailConcurrency: 10,
		},
	}

	// Config file is optional - use defaults if not present
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	cfg.applyEnv()

	cfg.Google.CredentialsFile = expandPath(cfg.Google.CredentialsFile)

	return cfg, nil
}

// applyEnv overlays environment variables onto the loaded configuration.
func (c *Config) applyEnv() {
	if v := os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"); v != "" {
		c.Google.CredentialsJSON = v
	}
	if v := os.Getenv("GOOGLE_CREDENTIALS_PATH"); v != "" {
		c.Google.CredentialsFile = v
	}
	if v := os.Getenv("GOOGLE_ADMIN_EMAIL"); v != "" {
		c.Google.AdminEmail = v
	}
	if v := os.Getenv("GOOGLE_DOMAIN"); v != "" {
		c.Google.Domain = v
	}
	if v := os.Getenv("GOOGLE_MAILBOXES"); v != "" {
		c.Google.Mailboxes = splitList(v)
	}
	if v := os.Getenv("USER_SCOPE_MAPPINGS"); v != "" {
		c.Auth.ScopeMappings = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		c.Auth.SessionSecret = v
	}
	if email := os.Getenv("AUTH_USER"); email != "" {
		c.Auth.Users = append(c.Auth.Users, UserCredential{
			Email:    email,
			Password: os.Getenv("AUTH_PASSWORD"),
		})
	}
}

// ServiceAccountJSON returns the service account key material, preferring
// the inline value over the key file.
func (c *Config) ServiceAccountJSON() ([]byte, error) {
	if c.Google.CredentialsJSON != "" {
		return []byte(c.Google.CredentialsJSON), nil
	}
	if c.Google.CredentialsFile != "" {
		data, err := os.ReadFile(c.Google.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("google credentials not configured")
}

// splitList splits a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
