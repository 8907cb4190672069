package config

import (
	"github.com/m-mizutani/lookout/pkg/infra/sqlite"
	"github.com/urfave/cli/v3"
)

// State holds state store configuration
type State struct {
	DBPath string
}

// Flags returns CLI flags for state store configuration
func (c *State) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db-path",
			Usage:       "Path to the SQLite state database",
			Value:       "lookout.db",
			Destination: &c.DBPath,
			Sources:     cli.EnvVars("LOOKOUT_DB_PATH"),
		},
	}
}

// Configure opens the state store at the configured path.
func (c *State) Configure() (*sqlite.Store, error) {
	return sqlite.New(c.DBPath)
}
