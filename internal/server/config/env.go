package config

import "os"

// parseEnv overlays credentials and the history DSN from the environment.
// Secrets are expected here rather than on the command line so they do not
// show up in process listings.
//
// Variables:
//
//	GRAPH_TENANT_ID      Entra ID tenant
//	GRAPH_CLIENT_ID      app registration client id
//	GRAPH_CLIENT_SECRET  app registration client secret
//	DATABASE_DSN         PostgreSQL DSN for the run history store
func parseEnv(config *Config) {
	if v := os.Getenv("GRAPH_TENANT_ID"); v != "" {
		config.TenantID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_ID"); v != "" {
		config.ClientID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_SECRET"); v != "" {
		config.ClientSecret = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		config.DatabaseDSN = v
	}
}
