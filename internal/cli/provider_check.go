// Package cli holds the non-server subcommands.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/mrlokans/gatekeeper/internal/config"
	"github.com/mrlokans/gatekeeper/internal/identity"
	"github.com/mrlokans/gatekeeper/internal/scheduler"
)

var errCheckFailed = errors.New("provider check failed")

// ProviderCheckCommand validates the configuration and pings the identity provider.
type ProviderCheckCommand struct {
	Config  *config.Config
	Timeout time.Duration
	Out     io.Writer
}

func NewProviderCheckCommand(cfg *config.Config) *ProviderCheckCommand {
	return &ProviderCheckCommand{Config: cfg, Out: os.Stdout}
}

func (cmd *ProviderCheckCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("provider-check", flag.ContinueOnError)

	fs.StringVar(&cmd.Config.Identity.URL, "url", cmd.Config.Identity.URL, "Identity provider Auth API root (IDENTITY_URL)")
	fs.StringVar(&cmd.Config.Identity.APIKey, "key", cmd.Config.Identity.APIKey, "Identity provider public API key (IDENTITY_API_KEY)")
	fs.StringVar(&cmd.Config.Identity.SiteURL, "site-url", cmd.Config.Identity.SiteURL, "Public origin of this app (SITE_URL)")
	fs.DurationVar(&cmd.Timeout, "timeout", 5*time.Second, "Timeout for the provider health request")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s provider-check [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Validate the configuration and check that the identity provider is reachable.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s provider-check\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s provider-check -url https://<project>.supabase.co/auth/v1 -key <anon-key>\n", os.Args[0])
	}

	return fs.Parse(args)
}

// Run prints one line per check and fails if any check fails. Warnings do
// not fail the command.
func (cmd *ProviderCheckCommand) Run(ctx context.Context) error {
	cfg := cmd.Config
	failed := false

	report := func(ok bool, format string, args ...any) {
		mark := "ok  "
		if !ok {
			mark = "FAIL"
			failed = true
		}
		fmt.Fprintf(cmd.Out, "[%s] %s\n", mark, fmt.Sprintf(format, args...))
	}
	warn := func(format string, args ...any) {
		fmt.Fprintf(cmd.Out, "[warn] %s\n", fmt.Sprintf(format, args...))
	}

	report(cfg.Identity.URL != "", "identity URL: %s", valueOrUnset(cfg.Identity.URL))
	report(cfg.Identity.APIKey != "", "identity API key: %s", maskKey(cfg.Identity.APIKey))

	site, err := url.Parse(cfg.Identity.SiteURL)
	siteOK := err == nil && site.Scheme != "" && site.Host != ""
	report(siteOK, "site URL: %s (callback %s)", valueOrUnset(cfg.Identity.SiteURL), cfg.Identity.CallbackURL())
	if siteOK && site.Scheme != "https" && cfg.Auth.SecureCookies {
		warn("AUTH_SECURE_COOKIES is on but SITE_URL is not https; browsers will drop the session cookie")
	}

	if cfg.Auth.SessionSecret == "" {
		warn("AUTH_SESSION_SECRET is empty; sessions will not survive a restart")
	}
	if cfg.Maintenance.Schedule != "" {
		err := scheduler.ValidateSchedule(cfg.Maintenance.Schedule)
		report(err == nil, "maintenance schedule: %q", cfg.Maintenance.Schedule)
	}

	if cfg.Identity.IsConfigured() {
		timeout := cmd.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client := identity.NewClient(identity.Config{
			BaseURL: cfg.Identity.URL,
			APIKey:  cfg.Identity.APIKey,
			Timeout: timeout,
		})

		hctx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		err := client.Health(hctx)
		cancel()
		if err != nil {
			report(false, "provider health: %v", err)
		} else {
			report(true, "provider health: reachable in %s", time.Since(start).Round(time.Millisecond))
		}
	}

	if failed {
		return errCheckFailed
	}
	return nil
}

func valueOrUnset(v string) string {
	if v == "" {
		return "(not set)"
	}
	return v
}

// maskKey keeps only the last four characters of an API key.
func maskKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 4:
		return "****"
	}
	return "****" + key[len(key)-4:]
}
