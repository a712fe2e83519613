// Package config holds runtime settings for the chatlink client: the set of
// named server environments and the tunables of the connection lifecycle.
//
// Settings are resolved as defaults -> JSON file (optional) -> command-line
// flags, where later sources take precedence over earlier ones.
package config

import (
	"fmt"
	"time"
)

// Environment is one named deployment target. Every environment fixes the
// auth base URL, the hub URL, the media base URL and the tenant id; the
// TrustedHosts list feeds the TLS diagnostics allow-list.
type Environment struct {
	Name         string
	AuthBaseURL  string
	HubURL       string
	MediaBaseURL string
	TenantID     string
	TrustedHosts []string
}

// Config holds runtime settings for the chatlink client.
//
// Units: intervals are time.Durations (e.g. 30*time.Second).
type Config struct {
	Environment       string
	HeartbeatInterval time.Duration
	BackgroundGrace   time.Duration
	StatusAddr        string
	DBPath            string
	CredentialPath    string
	CompressTargetKB  int

	environments map[string]Environment
}

// LoadDefaults populates c with the built-in environments and sensible
// lifecycle defaults.
func (c *Config) LoadDefaults() {
	c.Environment = "QA"
	c.HeartbeatInterval = 30 * time.Second
	c.BackgroundGrace = 25 * time.Second
	c.StatusAddr = "127.0.0.1:8750"
	c.DBPath = "chatlink.db"
	c.CredentialPath = ""
	c.CompressTargetKB = 200

	c.environments = map[string]Environment{
		"QA": {
			Name:         "QA",
			AuthBaseURL:  "https://qa-auth.chatlink.example",
			HubURL:       "wss://qa-hub.chatlink.example/hub",
			MediaBaseURL: "https://qa-media.chatlink.example",
			TenantID:     "qa-tenant",
			TrustedHosts: []string{"qa-auth.chatlink.example", "qa-hub.chatlink.example"},
		},
		"Development": {
			Name:         "Development",
			AuthBaseURL:  "https://dev-auth.chatlink.example",
			HubURL:       "wss://dev-hub.chatlink.example/hub",
			MediaBaseURL: "https://dev-media.chatlink.example",
			TenantID:     "dev-tenant",
			TrustedHosts: []string{"dev-auth.chatlink.example", "dev-hub.chatlink.example"},
		},
		// IP and host-header variants exist for TLS testing against
		// development machines that have no DNS entry.
		"DevelopmentIP": {
			Name:         "DevelopmentIP",
			AuthBaseURL:  "https://10.0.10.21:8443",
			HubURL:       "wss://10.0.10.21:8443/hub",
			MediaBaseURL: "https://10.0.10.21:8443",
			TenantID:     "dev-tenant",
			TrustedHosts: []string{"10.0.10.21"},
		},
		"DevelopmentHost": {
			Name:         "DevelopmentHost",
			AuthBaseURL:  "https://devbox.local:8443",
			HubURL:       "wss://devbox.local:8443/hub",
			MediaBaseURL: "https://devbox.local:8443",
			TenantID:     "dev-tenant",
			TrustedHosts: []string{"devbox.local"},
		},
	}
}

// Env resolves the currently selected environment.
func (c *Config) Env() (Environment, error) {
	env, ok := c.environments[c.Environment]
	if !ok {
		return Environment{}, fmt.Errorf("unknown environment %q", c.Environment)
	}
	return env, nil
}

// EnvironmentNames lists the configured environment names.
func (c *Config) EnvironmentNames() []string {
	names := make([]string, 0, len(c.environments))
	for name := range c.environments {
		names = append(names, name)
	}
	return names
}

// SetEnvironment switches the selected environment, validating the name.
func (c *Config) SetEnvironment(name string) error {
	if _, ok := c.environments[name]; !ok {
		return fmt.Errorf("unknown environment %q", name)
	}
	c.Environment = name
	return nil
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
