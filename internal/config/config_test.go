package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, defaultMaxChannels, cfg.Streaming.MaxChannels)
	assert.Equal(t, defaultBasePort, cfg.Streaming.BasePort)
	assert.Equal(t, defaultMulticastBase, cfg.Streaming.MulticastBase)
	assert.Equal(t, "udp", cfg.Streaming.DefaultEncap)
	assert.Equal(t, "h264", cfg.Transcode.Codec)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"streaming": {
			"max_channels": 10,
			"base_port": 6000,
			"multicast_base": "239.5.5",
			"_readme": "comment keys are ignored"
		},
		"transcode": {
			"codec": "h265",
			"preset": "slow"
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Streaming.MaxChannels)
	assert.Equal(t, 6000, cfg.Streaming.BasePort)
	assert.Equal(t, "239.5.5", cfg.Streaming.MulticastBase)
	assert.Equal(t, "h265", cfg.Transcode.Codec)
	assert.Equal(t, "slow", cfg.Transcode.Preset)
	// untouched keys still fall back to defaults
	assert.Equal(t, "192k", cfg.Transcode.ABitrate)
}

func TestValidate_RejectsMaxChannelsOver254(t *testing.T) {
	cfg := defaultConfigForTest()
	cfg.Streaming.MaxChannels = 255
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownCodec(t *testing.T) {
	cfg := defaultConfigForTest()
	cfg.Transcode.Codec = "vp9"
	assert.ErrorContains(t, cfg.Validate(), "unknown codec")
}

func TestValidate_RejectsBadBitrateLiteral(t *testing.T) {
	cfg := defaultConfigForTest()
	cfg.Transcode.VBitrate = "8 megabits"
	assert.Error(t, cfg.Validate())
}

func TestValidate_AcceptsPassthroughBitrate(t *testing.T) {
	cfg := defaultConfigForTest()
	cfg.Streaming.DefaultBitrate = ""
	cfg.Transcode.VBitrate = "8M"
	assert.NoError(t, cfg.Validate())
}

func TestGlobalSettings_ProjectsStreamingAndTranscode(t *testing.T) {
	cfg := defaultConfigForTest()
	gs := cfg.GlobalSettings()

	assert.Equal(t, cfg.Streaming.MaxChannels, gs.MaxChannels)
	assert.Equal(t, cfg.Streaming.MulticastBase, gs.MulticastBase)
	assert.Equal(t, cfg.Transcode.Codec, string(gs.DefaultProfile.Codec))
}

func defaultConfigForTest() *Config {
	cfg, err := Load(filepath.Join("testdata-missing", "missing.json"))
	if err != nil {
		panic(err)
	}
	return cfg
}
