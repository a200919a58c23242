package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/bryanchriswhite/framerelay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRootHasCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["receiver"])
	assert.True(t, names["producer"])
	assert.True(t, names["config"])
}

func TestConfigShowReceiver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transform.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"alpha": 45, "ox": 2}`), 0o644))

	var buf bytes.Buffer
	require.NoError(t, runConfigShow(&buf, path, "receiver", "json"))

	var cfg config.ReceiverConfig
	require.NoError(t, json.Unmarshal(buf.Bytes(), &cfg))
	assert.Equal(t, 45.0, cfg.Transform.Alpha)
	assert.Equal(t, 0.5, cfg.Transform.OX)
	assert.Equal(t, config.DefaultPort, cfg.Port)
}

func TestConfigShowProducerYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runConfigShow(&buf, "", "producer", "yaml"))

	var cfg map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &cfg))
	assert.Equal(t, config.DefaultProducerHost, cfg["host"])
	assert.Equal(t, config.DefaultFPS, cfg["fps"])
}

func TestConfigShowErrors(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, runConfigShow(&buf, "", "receiver", "yaml"), config.ErrConfig)
	assert.Error(t, runConfigShow(&buf, "", "sideways", "yaml"))
	assert.Error(t, runConfigShow(&buf, "", "producer", "toml"))
}

func TestReceiverRequiresConfig(t *testing.T) {
	cmd := newReceiverCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestProducerRejectsUnknownSource(t *testing.T) {
	cmd := standalone(newProducerCmd())
	cmd.SetArgs([]string{"--source", "webcam", "--log-level", "error"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestReceiverFlags(t *testing.T) {
	cmd := newReceiverCmd()
	for _, name := range []string{"config", "host", "port", "display-port", "window", "interpolation"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "flag %s", name)
	}
	assert.Equal(t, "false", cmd.Flags().Lookup("window").DefValue)
}
