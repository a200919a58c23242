package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryanchriswhite/framerelay/internal/codec"
	"github.com/bryanchriswhite/framerelay/internal/transform"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadReceiverFull(t *testing.T) {
	path := writeConfig(t, "transform.json", `{
		"alpha": 45,
		"ox": 0.4,
		"oy": 0.6,
		"width": 0.8,
		"height": 0.7,
		"interpolation": "nearest",
		"display_port": 0,
		"window": true,
		"max_message_size": 1048576
	}`)

	cfg, err := LoadReceiver(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, transform.Params{Alpha: 45, OX: 0.4, OY: 0.6, Width: 0.8, Height: 0.7}, cfg.Transform)
	assert.Equal(t, "nearest", cfg.Interpolation)
	assert.Equal(t, 0, cfg.DisplayPort)
	assert.True(t, cfg.Window)
	assert.Equal(t, uint32(1048576), cfg.MaxMessageSize)
	assert.Equal(t, DefaultReceiverHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "0.0.0.0:9999", cfg.Addr())
	assert.Equal(t, path, cfg.Path)
}

func TestLoadReceiverDefaults(t *testing.T) {
	path := writeConfig(t, "empty.json", `{}`)

	cfg, err := LoadReceiver(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, transform.DefaultParams(), cfg.Transform)
	assert.Equal(t, transform.DefaultInterpolation, cfg.Interpolation)
	assert.Equal(t, DefaultDisplayPort, cfg.DisplayPort)
	assert.False(t, cfg.Window)
	assert.Equal(t, codec.DefaultMaxMessageSize, cfg.MaxMessageSize)
}

func TestLoadReceiverRangeFallback(t *testing.T) {
	path := writeConfig(t, "bad-ranges.json", `{
		"alpha": -30,
		"ox": 1.5,
		"oy": -0.1,
		"width": 0,
		"height": 2
	}`)

	cfg, err := LoadReceiver(viper.New(), path)
	require.NoError(t, err)

	d := transform.DefaultParams()
	assert.Equal(t, -30.0, cfg.Transform.Alpha)
	assert.Equal(t, d.OX, cfg.Transform.OX)
	assert.Equal(t, d.OY, cfg.Transform.OY)
	assert.Equal(t, d.Width, cfg.Transform.Width)
	assert.Equal(t, d.Height, cfg.Transform.Height)
}

func TestLoadReceiverErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{name: "no path", path: func(t *testing.T) string { return "" }},
		{name: "missing file", path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.json") }},
		{name: "broken json", path: func(t *testing.T) string { return writeConfig(t, "broken.json", `{"alpha": `) }},
		{name: "non-numeric alpha", path: func(t *testing.T) string { return writeConfig(t, "alpha.json", `{"alpha": "left"}`) }},
		{name: "non-numeric width", path: func(t *testing.T) string { return writeConfig(t, "width.json", `{"width": [1]}`) }},
		{name: "unknown interpolation", path: func(t *testing.T) string { return writeConfig(t, "interp.json", `{"interpolation": "lanczos"}`) }},
		{name: "non-boolean window", path: func(t *testing.T) string { return writeConfig(t, "window.json", `{"window": "sometimes"}`) }},
		{name: "bad port", path: func(t *testing.T) string { return writeConfig(t, "port.json", `{"port": 70000}`) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadReceiver(viper.New(), tt.path(t))
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestLoadReceiverFlagOverride(t *testing.T) {
	path := writeConfig(t, "transform.json", `{"port": 7000}`)

	v := viper.New()
	v.Set("port", 7100)
	v.Set("host", "127.0.0.1")

	cfg, err := LoadReceiver(v, path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7100", cfg.Addr())
}

func TestLoadReceiverYAML(t *testing.T) {
	path := writeConfig(t, "transform.yaml", "alpha: 90\nwidth: 0.5\n")

	cfg, err := LoadReceiver(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 90.0, cfg.Transform.Alpha)
	assert.Equal(t, 0.5, cfg.Transform.Width)
}

func TestLoadProducer(t *testing.T) {
	v := viper.New()
	v.Set("fps", 25)
	v.Set("source", "FFmpeg")

	cfg, err := LoadProducer(v, "")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.Addr())
	assert.Equal(t, 40*time.Millisecond, cfg.Interval())
	assert.Equal(t, "ffmpeg", cfg.Source)
	assert.Equal(t, DefaultDevice, cfg.Device)
	assert.Equal(t, DefaultInputFormat, cfg.InputFormat)
	assert.Equal(t, DefaultCaptureWidth, cfg.CaptureWidth)
	assert.Equal(t, time.Duration(0), cfg.WriteTimeout)
}

func TestLoadProducerDefaultsToCamera(t *testing.T) {
	cfg, err := LoadProducer(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg", cfg.Source)
	assert.Equal(t, "/dev/video0", cfg.Device)
}

func TestLoadProducerErrors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  interface{}
	}{
		{name: "zero fps", key: "fps", val: 0},
		{name: "port out of range", key: "port", val: -1},
		{name: "bad capture width", key: "capture_width", val: "wide"},
		{name: "bad write timeout", key: "write_timeout", val: "soon"},
		{name: "empty host", key: "host", val: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.val)
			_, err := LoadProducer(v, "")
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}
