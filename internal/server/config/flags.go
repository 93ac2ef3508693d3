package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/intunedeploy/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN for the run history store
//	-g string   Microsoft Graph base URL
//	-t string   Entra ID tenant id
//	-i string   app registration client id
//	-s string   app registration client secret
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-g", "-t", "-i", "-s"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.GraphBaseURL, "g", config.GraphBaseURL, "Microsoft Graph base URL")
	fs.StringVar(&config.TenantID, "t", config.TenantID, "tenant id")
	fs.StringVar(&config.ClientID, "i", config.ClientID, "client id")
	fs.StringVar(&config.ClientSecret, "s", config.ClientSecret, "client secret")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
