package cli

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultProfile = "default"

// UserConfig represents ~/.tablesheet/config.yaml.
type UserConfig struct {
	CurrentProfile string             `yaml:"current-profile" json:"current_profile"`
	Profiles       map[string]Profile `yaml:"profiles" json:"profiles"`
}

// Profile is a named server connection.
type Profile struct {
	Host   string `yaml:"host,omitempty" json:"host,omitempty"`
	Token  string `yaml:"token,omitempty" json:"token,omitempty"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// ActiveProfile returns the profile named by override, or the current profile
// when override is empty. A missing current profile yields an empty Profile;
// a missing override is an error.
func (c *UserConfig) ActiveProfile(override string) (Profile, error) {
	if override != "" {
		p, ok := c.Profiles[override]
		if !ok {
			return Profile{}, fmt.Errorf("profile %q not found", override)
		}
		return p, nil
	}
	return c.Profiles[c.profileName()], nil
}

func (c *UserConfig) profileName() string {
	if c.CurrentProfile == "" {
		return defaultProfile
	}
	return c.CurrentProfile
}

// ConfigDir returns the path to ~/.tablesheet/.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tablesheet")
}

// ConfigPath returns the path to ~/.tablesheet/config.yaml.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// LoadUserConfig reads ~/.tablesheet/config.yaml.
func LoadUserConfig() (*UserConfig, error) {
	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg UserConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{}
	}
	return &cfg, nil
}

// loadOrEmptyConfig is LoadUserConfig with a fresh config when none exists yet.
func loadOrEmptyConfig() *UserConfig {
	cfg, err := LoadUserConfig()
	if err != nil {
		return &UserConfig{CurrentProfile: defaultProfile, Profiles: map[string]Profile{}}
	}
	return cfg
}

// SaveUserConfig writes ~/.tablesheet/config.yaml with owner-only permissions.
func SaveUserConfig(cfg *UserConfig) error {
	if err := os.MkdirAll(ConfigDir(), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(ConfigPath(), data, 0o600)
}

// saveToken stores token in the named profile, or the current one when name
// is empty, keeping the profile's other fields. It returns the profile name.
func saveToken(name, token string) (string, error) {
	cfg := loadOrEmptyConfig()
	if name == "" {
		name = cfg.profileName()
		cfg.CurrentProfile = name
	}
	p := cfg.Profiles[name]
	p.Token = token
	cfg.Profiles[name] = p
	if err := SaveUserConfig(cfg); err != nil {
		return "", fmt.Errorf("save config: %w", err)
	}
	return name, nil
}

// validateHostURL accepts an http(s) origin without path, query or fragment.
func validateHostURL(host string) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return fmt.Errorf("invalid host %q: host URL cannot be empty", host)
	}
	u, err := url.Parse(host)
	if err != nil {
		return fmt.Errorf("invalid host %q: %w", host, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid host %q: scheme must be http or https", host)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid host %q: missing host", host)
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("invalid host %q: host must not include a path", host)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid host %q: host must not include query or fragment", host)
	}
	return nil
}
