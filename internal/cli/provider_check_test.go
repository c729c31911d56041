package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/gatekeeper/internal/config"
	"github.com/mrlokans/gatekeeper/internal/identity/identitytest"
)

func newCheck(cfg *config.Config) (*ProviderCheckCommand, *bytes.Buffer) {
	out := &bytes.Buffer{}
	cmd := NewProviderCheckCommand(cfg)
	cmd.Out = out
	return cmd, out
}

func TestProviderCheck_Reachable(t *testing.T) {
	provider := identitytest.NewProvider()
	t.Cleanup(provider.Close)

	cmd, out := newCheck(&config.Config{
		Identity: config.Identity{URL: provider.URL(), APIKey: identitytest.APIKey, SiteURL: "https://app.example.com"},
		Auth:     config.Auth{SessionSecret: "secret", SecureCookies: true},
	})

	require.NoError(t, cmd.Run(context.Background()))
	assert.Contains(t, out.String(), "[ok  ] provider health: reachable")
	assert.Contains(t, out.String(), "https://app.example.com/auth/callback")
	assert.NotContains(t, out.String(), identitytest.APIKey)
	assert.NotContains(t, out.String(), "[warn]")
}

func TestProviderCheck_Unreachable(t *testing.T) {
	provider := identitytest.NewProvider()
	provider.Close()

	cmd, out := newCheck(&config.Config{
		Identity: config.Identity{URL: provider.URL(), APIKey: "anon-key", SiteURL: "https://app.example.com"},
	})

	assert.ErrorIs(t, cmd.Run(context.Background()), errCheckFailed)
	assert.Contains(t, out.String(), "[FAIL] provider health")
}

func TestProviderCheck_NotConfigured(t *testing.T) {
	cmd, out := newCheck(&config.Config{
		Identity:    config.Identity{SiteURL: "http://localhost:8188"},
		Auth:        config.Auth{SecureCookies: true},
		Maintenance: config.Maintenance{Schedule: "not a schedule"},
	})

	assert.ErrorIs(t, cmd.Run(context.Background()), errCheckFailed)
	output := out.String()
	assert.Contains(t, output, "[FAIL] identity URL: (not set)")
	assert.Contains(t, output, "[FAIL] identity API key: (not set)")
	assert.Contains(t, output, "[FAIL] maintenance schedule")
	assert.Contains(t, output, "AUTH_SECURE_COOKIES is on")
	assert.Contains(t, output, "AUTH_SESSION_SECRET is empty")
	assert.NotContains(t, output, "provider health")
}

func TestProviderCheck_FlagsOverrideConfig(t *testing.T) {
	cmd, _ := newCheck(&config.Config{})

	require.NoError(t, cmd.ParseFlags([]string{"-url", "https://p.example.co/auth/v1", "-key", "k", "-timeout", "2s"}))

	assert.Equal(t, "https://p.example.co/auth/v1", cmd.Config.Identity.URL)
	assert.Equal(t, "k", cmd.Config.Identity.APIKey)
	assert.Equal(t, "2s", cmd.Timeout.String())
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "(not set)", maskKey(""))
	assert.Equal(t, "****", maskKey("abc"))
	assert.Equal(t, "****6789", maskKey("123456789"))
}
