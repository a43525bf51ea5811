package internal

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ValidateConfig())
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, KnownProviders, cfg.ProviderOrder)
	assert.Empty(t, cfg.Credentials(), "no tokens means no configured providers")
}

func TestLoadFrom_File(t *testing.T) {
	fsys := afero.NewMemMapFs()
	content := `
providers:
  realdebrid: rd-token
  premiumize: pm-token
provider_order: [premiumize, realdebrid]
poll_interval: 5s
probe_concurrency: 4
log:
  level: debug
`
	require.NoError(t, afero.WriteFile(fsys, "/etc/onedl/onedl.yaml", []byte(content), 0600))

	cfg, err := LoadFrom(fsys, "/etc/onedl/onedl.yaml")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 4, cfg.ProbeConcurrency)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format, "defaults fill keys the file leaves out")
	assert.Equal(t, []ProviderCredential{
		{Name: ProviderPremiumize, Token: "pm-token"},
		{Name: ProviderRealDebrid, Token: "rd-token"},
	}, cfg.Credentials())
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	t.Setenv("ONEDL_PROVIDERS_ALLDEBRID", "ad-env")
	t.Setenv("TORBOX_TOKEN", "tb-legacy")
	t.Setenv("ONEDL_POLL_INTERVAL", "1s")

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/cfg.yaml", []byte("providers:\n  alldebrid: ad-file\n"), 0600))

	cfg, err := LoadFrom(fsys, "/cfg.yaml")
	require.NoError(t, err)

	assert.Equal(t, "ad-env", cfg.Providers.AllDebrid)
	assert.Equal(t, "tb-legacy", cfg.Providers.TorBox)
	assert.Equal(t, time.Second, cfg.PollInterval)
}

func TestLoadFrom_MissingExplicitFile(t *testing.T) {
	_, err := LoadFrom(afero.NewMemMapFs(), "/nope/onedl.yaml")
	assert.Error(t, err)
}

func TestLoadFrom_NoFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(afero.NewMemMapFs(), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Timeout, cfg.Timeout)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero_poll_interval", func(c *Config) { c.PollInterval = 0 }},
		{"zero_timeout", func(c *Config) { c.Timeout = 0 }},
		{"negative_retries", func(c *Config) { c.MaxRetries = -1 }},
		{"too_many_probes", func(c *Config) { c.ProbeConcurrency = 17 }},
		{"unknown_provider", func(c *Config) { c.ProviderOrder = []string{"debridlink"} }},
		{"bad_proxy", func(c *Config) { c.Proxy = "ftp://proxy:21" }},
		{"bad_log_format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.ValidateConfig())
		})
	}
}

func TestCredentials_OrderAndExclusion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProviderOrder = []string{ProviderTorBox}
	cfg.Providers = ProvidersConfig{
		RealDebrid: "rd",
		AllDebrid:  "  ",
		TorBox:     "tb",
	}

	creds := cfg.Credentials()
	require.Len(t, creds, 2)
	assert.Equal(t, ProviderTorBox, creds[0].Name)
	assert.Equal(t, ProviderRealDebrid, creds[1].Name)
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "****", MaskToken("abcd"))
	assert.Equal(t, "******7890", MaskToken("1234567890"))
	assert.Equal(t, "", MaskToken(""))
}

func TestWriteDefaultConfig(t *testing.T) {
	fsys := afero.NewMemMapFs()
	path := "/home/user/.config/onedl/onedl.yaml"

	require.NoError(t, WriteDefaultConfig(fsys, path))

	data, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "poll_interval: 3s")
	assert.Contains(t, string(data), "realdebrid:")

	cfg, err := LoadFrom(fsys, path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)

	assert.Error(t, WriteDefaultConfig(fsys, path), "existing files are not overwritten")
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"512", 512},
		{"100B", 100},
		{"1K", 1024},
		{"1kb", 1024},
		{"1.5K", 1536},
		{"2MB", 2 << 20},
		{" 1G ", 1 << 30},
	}
	for _, tt := range tests {
		got, err := ParseByteSize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"-1K", "fast", "1X"} {
		_, err := ParseByteSize(bad)
		assert.Error(t, err, bad)
	}
}
