package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lookout/pkg/domain/types"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// Watch holds the path to the watch configuration file.
type Watch struct {
	Path string
}

// Flags returns CLI flags for the watch configuration
func (c *Watch) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to the watch configuration file (TOML)",
			Required:    true,
			Destination: &c.Path,
			Sources:     cli.EnvVars("LOOKOUT_CONFIG"),
		},
	}
}

// Load reads and validates the watch configuration.
func (c *Watch) Load() (*WatchConfig, error) {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config file",
			goerr.T(types.TagConfig),
			goerr.V("path", c.Path))
	}

	cfg, err := ParseWatchConfig(data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load config file",
			goerr.T(types.TagConfig),
			goerr.V("path", c.Path))
	}
	return cfg, nil
}

// WatchConfig is the decoded watch configuration. Secrets never appear in
// the file itself; fields named *_env hold the names of environment
// variables to resolve at startup.
type WatchConfig struct {
	PollIntervalSeconds   int      `toml:"poll_interval_seconds"`
	WatchKeywords         []string `toml:"watch_keywords"`
	WatchSources          []string `toml:"watch_sources"` // optional source allow-list for matching
	RecordUnmatchedAsSeen *bool    `toml:"record_unmatched_as_seen"`

	Sources struct {
		GitHub      *GitHubSource      `toml:"github"`
		HuggingFace *HuggingFaceSource `toml:"huggingface"`
		ModelScope  *ModelScopeSource  `toml:"modelscope"`
	} `toml:"sources"`

	Notify struct {
		Slack   *SlackNotify   `toml:"slack"`
		WeLink  *WeLinkNotify  `toml:"welink"`
		Email   *EmailNotify   `toml:"email"`
		Webhook *WebhookNotify `toml:"webhook"`
	} `toml:"notify"`
}

// GitHubSource configures repository polling. Issues and Pulls default to
// true when omitted.
type GitHubSource struct {
	Repos    []string `toml:"repos"`
	Issues   *bool    `toml:"issues"`
	Pulls    *bool    `toml:"pulls"`
	TokenEnv string   `toml:"token_env"`
}

type HuggingFaceSource struct {
	Orgs     []string `toml:"orgs"`
	TokenEnv string   `toml:"token_env"`
}

type ModelScopeSource struct {
	Orgs []string `toml:"orgs"`
}

type SlackNotify struct {
	WebhookEnv string `toml:"webhook_env"`
}

type WeLinkNotify struct {
	WebhookEnv string   `toml:"webhook_env"`
	IsAtAll    bool     `toml:"is_at_all"`
	AtAccounts []string `toml:"at_accounts"`
}

type EmailNotify struct {
	SMTPHost    string   `toml:"smtp_host"`
	SMTPPort    int      `toml:"smtp_port"`
	UserEnv     string   `toml:"user_env"`
	PasswordEnv string   `toml:"password_env"`
	ToList      []string `toml:"to_list"`
	UseTLS      *bool    `toml:"use_tls"`
}

type WebhookNotify struct {
	URLEnv    string `toml:"url_env"`
	SecretEnv string `toml:"secret_env"`
}

// ParseWatchConfig decodes TOML data and applies defaults.
func ParseWatchConfig(data []byte) (*WatchConfig, error) {
	var cfg WatchConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse TOML",
			goerr.T(types.TagConfig))
	}

	if cfg.PollIntervalSeconds <= 0 {
		cfg.PollIntervalSeconds = 300
	}
	if len(cfg.WatchKeywords) == 0 {
		return nil, goerr.New("watch_keywords must not be empty",
			goerr.T(types.TagConfig))
	}

	if gh := cfg.Sources.GitHub; gh != nil && len(gh.Repos) == 0 {
		return nil, goerr.New("sources.github.repos must not be empty",
			goerr.T(types.TagConfig))
	}

	return &cfg, nil
}

// RecordUnmatched reports whether events without rule matches should be
// recorded as seen. Defaults to true.
func (c *WatchConfig) RecordUnmatched() bool {
	if c.RecordUnmatchedAsSeen == nil {
		return true
	}
	return *c.RecordUnmatchedAsSeen
}

// ResolveEnv returns the value of the named environment variable, or an
// empty string when the name is empty or unset.
func ResolveEnv(envName string) string {
	if envName == "" {
		return ""
	}
	return os.Getenv(envName)
}
