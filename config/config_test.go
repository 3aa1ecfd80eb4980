package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aponysus/simplecall/call"
	"github.com/aponysus/simplecall/classify"
	"github.com/aponysus/simplecall/observe"
)

const sample = `
conditions: [null_response]
profiles:
  lists: [empty_collection]
  everything: [null, empty]
max_concurrency: 4
recover_panics: true
log_level: warn
circuit:
  enabled: true
  threshold: 3
  cooldown: 5s
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, []classify.Condition{classify.NullResponse}, cfg.Conditions)
	assert.Equal(t, []classify.Condition{classify.EmptyCollection}, cfg.Profiles["lists"])
	assert.Equal(t, []classify.Condition{classify.NullResponse, classify.EmptyCollection}, cfg.Profiles["everything"])
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.True(t, cfg.RecoverPanics)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.Circuit.Enabled)
	assert.Equal(t, 3, cfg.Circuit.Threshold)
	assert.Equal(t, 5*time.Second, cfg.Circuit.Cooldown)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown key":        "retries: 3\n",
		"unknown condition":  "conditions: [sometimes]\n",
		"negative limit":     "max_concurrency: -1\n",
		"bad level":          "log_level: loud\n",
		"negative threshold": "circuit: {threshold: -2}\n",
		"bad cooldown":       "circuit: {cooldown: soon}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simplecall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvMaxConcurrency, "9")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9, cfg.MaxConcurrency)
}

func TestLoad_BadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simplecall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	t.Setenv(EnvMaxConcurrency, "many")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	l, err := Config{}.Logger()
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(-1))

	l, err = Config{LogLevel: "warn"}.Logger()
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(1))
	assert.False(t, l.Core().Enabled(0))

	_, err = Config{LogLevel: "debug", Development: true}.Logger()
	require.NoError(t, err)
}

func TestFactoryOptions(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	opts := cfg.FactoryOptions(nil)
	assert.True(t, opts.Conditions.Has(classify.NullResponse))
	assert.Equal(t, 4, opts.MaxConcurrency)
	assert.True(t, opts.RecoverPanics)
	require.NotNil(t, opts.Breakers)
	assert.NotNil(t, opts.Breakers.Get("http://svc"))

	set, ok := opts.Profiles.Get("lists")
	require.True(t, ok)
	assert.True(t, set.Has(classify.EmptyCollection))
	_, ok = opts.Profiles.Get(classify.ProfileStrict)
	assert.True(t, ok, "builtins are kept")
}

func TestNewFactory(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	cfg.LogLevel = ""

	obs := observe.BaseObserver{}
	f, err := cfg.NewFactory(call.WithObserver(obs))
	require.NoError(t, err)
	assert.True(t, f.Conditions().Has(classify.NullResponse))
	assert.Equal(t, obs, f.Observer())
	assert.Contains(t, f.Profiles().Names(), "everything")
}
