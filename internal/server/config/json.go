package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/intunedeploy/internal/flagx"
	"github.com/dmitrijs2005/intunedeploy/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for the wait limits, which allows
// parsing both string values such as "5m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, set fields are copied into the
// runtime Config, so a partial JSON file only overrides what it mentions.
type JsonConfig struct {
	EndpointAddr      string         `json:"endpoint_addr"`
	GraphBaseURL      string         `json:"graph_base_url"`
	AuthorityBase     string         `json:"authority_base"`
	TenantID          string         `json:"tenant_id"`
	ClientID          string         `json:"client_id"`
	ClientSecret      string         `json:"client_secret"`
	Scope             string         `json:"scope"`
	DatabaseDSN       string         `json:"database_dsn"`
	StorageURITimeout timex.Duration `json:"storage_uri_timeout"`
	CommitTimeout     timex.Duration `json:"commit_timeout"`
	PublishTimeout    timex.Duration `json:"publish_timeout"`
	BlockSize         int64          `json:"block_size"`
	Concurrency       int            `json:"concurrency"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config command-line
// flags; if neither is set, no JSON file is loaded. An unreadable or invalid
// file panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.EndpointAddr != "" {
		config.EndpointAddr = c.EndpointAddr
	}
	if c.GraphBaseURL != "" {
		config.GraphBaseURL = c.GraphBaseURL
	}
	if c.AuthorityBase != "" {
		config.AuthorityBase = c.AuthorityBase
	}
	if c.TenantID != "" {
		config.TenantID = c.TenantID
	}
	if c.ClientID != "" {
		config.ClientID = c.ClientID
	}
	if c.ClientSecret != "" {
		config.ClientSecret = c.ClientSecret
	}
	if c.Scope != "" {
		config.Scope = c.Scope
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.StorageURITimeout.Duration != 0 {
		config.StorageURITimeout = c.StorageURITimeout.Duration
	}
	if c.CommitTimeout.Duration != 0 {
		config.CommitTimeout = c.CommitTimeout.Duration
	}
	if c.PublishTimeout.Duration != 0 {
		config.PublishTimeout = c.PublishTimeout.Duration
	}
	if c.BlockSize != 0 {
		config.BlockSize = c.BlockSize
	}
	if c.Concurrency != 0 {
		config.Concurrency = c.Concurrency
	}
}
