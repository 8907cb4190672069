package cli

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lookout/pkg/cli/config"
	"github.com/m-mizutani/lookout/pkg/domain/interfaces"
	"github.com/m-mizutani/lookout/pkg/domain/types"
	"github.com/m-mizutani/lookout/pkg/infra/httpclient"
	"github.com/m-mizutani/lookout/pkg/infra/notify"
	"github.com/m-mizutani/lookout/pkg/infra/source/github"
	"github.com/m-mizutani/lookout/pkg/infra/source/huggingface"
	"github.com/m-mizutani/lookout/pkg/infra/source/modelscope"
)

// buildSources assembles the poll sources declared in the watch
// configuration. Source order here is the per-cycle iteration order.
func buildSources(cfg *config.WatchConfig) ([]interfaces.Source, error) {
	var sources []interfaces.Source

	if gh := cfg.Sources.GitHub; gh != nil {
		client := github.NewClient(config.ResolveEnv(gh.TokenEnv))

		issues := gh.Issues == nil || *gh.Issues
		pulls := gh.Pulls == nil || *gh.Pulls

		for _, repo := range gh.Repos {
			if issues {
				src, err := github.NewIssuesSource(repo, client)
				if err != nil {
					return nil, err
				}
				sources = append(sources, src)
			}
			if pulls {
				src, err := github.NewPullsSource(repo, client)
				if err != nil {
					return nil, err
				}
				sources = append(sources, src)
			}
		}
	}

	if hf := cfg.Sources.HuggingFace; hf != nil {
		hc := httpclient.New()
		token := config.ResolveEnv(hf.TokenEnv)
		for _, org := range hf.Orgs {
			sources = append(sources, huggingface.NewModelsSource(org, token, hc))
		}
	}

	if ms := cfg.Sources.ModelScope; ms != nil {
		hc := httpclient.New()
		for _, org := range ms.Orgs {
			sources = append(sources, modelscope.NewModelsSource(org, hc))
		}
	}

	if len(sources) == 0 {
		return nil, goerr.New("no sources configured",
			goerr.T(types.TagConfig))
	}

	return sources, nil
}

// buildNotifiers assembles the notification channels declared in the watch
// configuration. Secrets are resolved from the environment here, never read
// from the file itself.
func buildNotifiers(cfg *config.WatchConfig) ([]interfaces.Notifier, error) {
	var notifiers []interfaces.Notifier

	if sl := cfg.Notify.Slack; sl != nil {
		url := config.ResolveEnv(sl.WebhookEnv)
		if url == "" {
			return nil, goerr.New("slack webhook URL is not set",
				goerr.T(types.TagConfig),
				goerr.V("env", sl.WebhookEnv))
		}
		notifiers = append(notifiers, notify.NewSlack(url))
	}

	if wl := cfg.Notify.WeLink; wl != nil {
		url := config.ResolveEnv(wl.WebhookEnv)
		if url == "" {
			return nil, goerr.New("welink webhook URL is not set",
				goerr.T(types.TagConfig),
				goerr.V("env", wl.WebhookEnv))
		}
		var opts []notify.WeLinkOption
		if wl.IsAtAll {
			opts = append(opts, notify.WithAtAll())
		}
		if len(wl.AtAccounts) > 0 {
			opts = append(opts, notify.WithAtAccounts(wl.AtAccounts...))
		}
		notifiers = append(notifiers, notify.NewWeLink(url, opts...))
	}

	if em := cfg.Notify.Email; em != nil {
		useTLS := em.UseTLS == nil || *em.UseTLS
		n, err := notify.NewEmail(notify.EmailConfig{
			SMTPHost: em.SMTPHost,
			SMTPPort: em.SMTPPort,
			Username: config.ResolveEnv(em.UserEnv),
			Password: config.ResolveEnv(em.PasswordEnv),
			To:       em.ToList,
			UseTLS:   useTLS,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}

	if wh := cfg.Notify.Webhook; wh != nil {
		url := config.ResolveEnv(wh.URLEnv)
		if url == "" {
			return nil, goerr.New("webhook URL is not set",
				goerr.T(types.TagConfig),
				goerr.V("env", wh.URLEnv))
		}
		var opts []notify.WebhookOption
		if secret := config.ResolveEnv(wh.SecretEnv); secret != "" {
			opts = append(opts, notify.WithSigningSecret(secret))
		}
		notifiers = append(notifiers, notify.NewWebhook(url, opts...))
	}

	// Zero notifiers is allowed. Alerts are still recorded, just not
	// delivered; the caller warns about it.
	return notifiers, nil
}
