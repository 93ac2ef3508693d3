// Package config handles configuration for the deployment server,
// including defaults, JSON overlay, environment variables, and
// command-line flags.
package config

import "time"

// Config holds runtime settings for the deployment server.
//
// Fields:
//   - EndpointAddr: bind address for the HTTP API.
//   - GraphBaseURL: Microsoft Graph endpoint for app management calls.
//   - AuthorityBase: Entra ID authority used for the client-credentials grant.
//   - TenantID / ClientID / ClientSecret: app registration credentials.
//   - Scope: OAuth2 scope requested for Graph tokens.
//   - DatabaseDSN: PostgreSQL DSN for the run history store; empty disables it.
//   - StorageURITimeout / CommitTimeout / PublishTimeout: pipeline wait limits.
//   - BlockSize / Concurrency: block blob upload tuning.
type Config struct {
	EndpointAddr      string
	GraphBaseURL      string
	AuthorityBase     string
	TenantID          string
	ClientID          string
	ClientSecret      string
	Scope             string
	DatabaseDSN       string
	StorageURITimeout time.Duration
	CommitTimeout     time.Duration
	PublishTimeout    time.Duration
	BlockSize         int64
	Concurrency       int
}

// LoadDefaults populates Config with development defaults. Credentials have
// no defaults and must come from the environment, JSON, or flags.
func (c *Config) LoadDefaults() {
	c.EndpointAddr = ":8080"
	c.GraphBaseURL = "https://graph.microsoft.com/beta"
	c.AuthorityBase = "https://login.microsoftonline.com"
	c.Scope = "https://graph.microsoft.com/.default"
	c.DatabaseDSN = ""
	c.StorageURITimeout = 300 * time.Second
	c.CommitTimeout = 600 * time.Second
	c.PublishTimeout = 900 * time.Second
	c.BlockSize = 4 * 1024 * 1024
	c.Concurrency = 4
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment, and finally command-line
// flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
