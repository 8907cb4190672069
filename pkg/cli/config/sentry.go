package config

import (
	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lookout/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// Sentry holds error tracking configuration. Capture is disabled when no
// DSN is given.
type Sentry struct {
	DSN string
	Env string
}

// Flags returns CLI flags for Sentry configuration
func (c *Sentry) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sentry-dsn",
			Usage:       "Sentry DSN for error tracking (disabled if empty)",
			Destination: &c.DSN,
			Sources:     cli.EnvVars("LOOKOUT_SENTRY_DSN"),
		},
		&cli.StringFlag{
			Name:        "sentry-env",
			Usage:       "Sentry environment name",
			Value:       "production",
			Destination: &c.Env,
			Sources:     cli.EnvVars("LOOKOUT_SENTRY_ENV"),
		},
	}
}

// Configure initializes the Sentry SDK. Returns false when capture is
// disabled.
func (c *Sentry) Configure() (bool, error) {
	if c.DSN == "" {
		return false, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         c.DSN,
		Environment: c.Env,
		Release:     types.Version,
	}); err != nil {
		return false, goerr.Wrap(err, "failed to initialize sentry",
			goerr.T(types.TagConfig))
	}

	return true, nil
}
