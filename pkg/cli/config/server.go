package config

import "github.com/urfave/cli/v3"

// Server holds status server configuration
type Server struct {
	Enabled bool
	Addr    string
}

// Flags returns CLI flags for status server configuration
func (c *Server) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "status-server",
			Usage:       "Enable the status HTTP server",
			Value:       false,
			Destination: &c.Enabled,
			Sources:     cli.EnvVars("LOOKOUT_STATUS_SERVER"),
		},
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Status server address",
			Value:       "localhost:8080",
			Destination: &c.Addr,
			Sources:     cli.EnvVars("LOOKOUT_ADDR"),
		},
	}
}
