package cli

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lookout/pkg/cli/config"
)

func parseConfig(t *testing.T, data string) *config.WatchConfig {
	t.Helper()
	cfg, err := config.ParseWatchConfig([]byte(data))
	gt.NoError(t, err)
	return cfg
}

func TestBuildSources(t *testing.T) {
	cfg := parseConfig(t, `
watch_keywords = ["deepseek"]

[sources.github]
repos = ["deepseek-ai/DeepSeek-V3", "deepseek-ai/DeepSeek-Coder"]
pulls = false

[sources.huggingface]
orgs = ["deepseek-ai"]

[sources.modelscope]
orgs = ["deepseek-ai", "qwen"]
`)

	sources, err := buildSources(cfg)
	gt.NoError(t, err)

	var keys []string
	for _, s := range sources {
		keys = append(keys, s.Key())
	}
	gt.Value(t, keys).Equal([]string{
		"github:deepseek-ai/DeepSeek-V3:issues",
		"github:deepseek-ai/DeepSeek-Coder:issues",
		"huggingface:deepseek-ai:models",
		"modelscope:deepseek-ai:models",
		"modelscope:qwen:models",
	})
}

func TestBuildSourcesInvalidRepo(t *testing.T) {
	cfg := parseConfig(t, `
watch_keywords = ["deepseek"]

[sources.github]
repos = ["not-a-repo"]
`)

	_, err := buildSources(cfg)
	gt.Error(t, err)
}

func TestBuildSourcesNoneConfigured(t *testing.T) {
	cfg := parseConfig(t, `watch_keywords = ["deepseek"]`)

	_, err := buildSources(cfg)
	gt.Error(t, err)
}

func TestBuildNotifiers(t *testing.T) {
	t.Setenv("TEST_SLACK_URL", "https://hooks.slack.example.com/T000/B000/xxx")
	t.Setenv("TEST_WELINK_URL", "https://open.welink.example.com/robot/send?token=abc")
	t.Setenv("TEST_WEBHOOK_URL", "https://alerts.example.com/hook")
	t.Setenv("TEST_WEBHOOK_SECRET", "s3cret")

	cfg := parseConfig(t, `
watch_keywords = ["deepseek"]

[notify.slack]
webhook_env = "TEST_SLACK_URL"

[notify.welink]
webhook_env = "TEST_WELINK_URL"
is_at_all = true

[notify.email]
smtp_host = "smtp.example.com"
user_env = "TEST_SMTP_USER"
password_env = "TEST_SMTP_PASSWORD"
to_list = ["oncall@example.com"]

[notify.webhook]
url_env = "TEST_WEBHOOK_URL"
secret_env = "TEST_WEBHOOK_SECRET"
`)

	notifiers, err := buildNotifiers(cfg)
	gt.NoError(t, err)

	var channels []string
	for _, n := range notifiers {
		channels = append(channels, n.Channel())
	}
	gt.Value(t, channels).Equal([]string{"slack", "welink", "email", "webhook"})
}

func TestBuildNotifiersMissingSecret(t *testing.T) {
	cfg := parseConfig(t, `
watch_keywords = ["deepseek"]

[notify.slack]
webhook_env = "TEST_UNSET_SLACK_URL"
`)

	_, err := buildNotifiers(cfg)
	gt.Error(t, err)
}

func TestBuildNotifiersNoneConfigured(t *testing.T) {
	cfg := parseConfig(t, `watch_keywords = ["deepseek"]`)

	notifiers, err := buildNotifiers(cfg)
	gt.NoError(t, err)
	gt.Value(t, len(notifiers)).Equal(0)
}
