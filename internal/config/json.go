package config

import (
	"encoding/json"
	"os"
	"time"

	"chatlink/internal/flagx"
	"chatlink/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "30s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config (which uses time.Duration).
type JsonConfig struct {
	Environment       string            `json:"environment"`
	HeartbeatInterval timex.Duration    `json:"heartbeat_interval"`
	BackgroundGrace   timex.Duration    `json:"background_grace"`
	StatusAddr        string            `json:"status_addr"`
	DBPath            string            `json:"db_path"`
	CredentialPath    string            `json:"credential_path"`
	CompressTargetKB  int               `json:"compress_target_kb"`
	Environments      []JsonEnvironment `json:"environments"`
}

// JsonEnvironment allows a config file to add or override a named
// environment.
type JsonEnvironment struct {
	Name         string   `json:"name"`
	AuthBaseURL  string   `json:"auth_base_url"`
	HubURL       string   `json:"hub_url"`
	MediaBaseURL string   `json:"media_base_url"`
	TenantID     string   `json:"tenant_id"`
	TrustedHosts []string `json:"trusted_hosts"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Intended usage is: defaults -> parseJson -> parseFlags, where later stages
// override earlier ones. Panics on read or unmarshal errors (caller should
// recover if desired).
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	applyJson(cfg, &jc)
}

func applyJson(cfg *Config, jc *JsonConfig) {
	if jc.Environment != "" {
		cfg.Environment = jc.Environment
	}
	if jc.HeartbeatInterval.Duration != 0 {
		cfg.HeartbeatInterval = time.Duration(jc.HeartbeatInterval.Duration)
	}
	if jc.BackgroundGrace.Duration != 0 {
		cfg.BackgroundGrace = time.Duration(jc.BackgroundGrace.Duration)
	}
	if jc.StatusAddr != "" {
		cfg.StatusAddr = jc.StatusAddr
	}
	if jc.DBPath != "" {
		cfg.DBPath = jc.DBPath
	}
	if jc.CredentialPath != "" {
		cfg.CredentialPath = jc.CredentialPath
	}
	if jc.CompressTargetKB != 0 {
		cfg.CompressTargetKB = jc.CompressTargetKB
	}
	for _, je := range jc.Environments {
		if je.Name == "" {
			continue
		}
		cfg.environments[je.Name] = Environment{
			Name:         je.Name,
			AuthBaseURL:  je.AuthBaseURL,
			HubURL:       je.HubURL,
			MediaBaseURL: je.MediaBaseURL,
			TenantID:     je.TenantID,
			TrustedHosts: je.TrustedHosts,
		}
	}
}
