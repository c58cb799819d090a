// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := []byte(`
mqtt:
  addr: broker.example:1883
  client_id: obu-train1
obu:
  train_id: TRAIN1
  rbc_id: RBC1
  total_sections: 12
keys:
  k1: 111
  k2: 222
  k3: 333
`)
	require.NoError(t, os.WriteFile(path, contents, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "broker.example:1883", cfg.MQTT.Addr)
	assert.Equal(t, "obu-train1", cfg.MQTT.ClientID)
	assert.Equal(t, "TRAIN1", cfg.OBU.TrainID)
	assert.Equal(t, "RBC1", cfg.OBU.RBCID)
	assert.Equal(t, 12, cfg.OBU.TotalSections)
	assert.Equal(t, uint64(111), cfg.Keys.K1)

	// Fields absent from the file keep their Default() values because
	// Unmarshal only overwrites keys present in the viper tree.
	assert.NotEmpty(t, cfg.AMQP.URL)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mqtt:\n  addr: file.example:1883\n"), 0o600))

	t.Setenv("ETCSOBU_MQTT_ADDR", "env.example:1883")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env.example:1883", cfg.MQTT.Addr)
}

func TestConfigFileExistsFalseForMissingPath(t *testing.T) {
	assert.False(t, ConfigFileExists(filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestConfigFileExistsTrueForPresentPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mqtt:\n  addr: x\n"), 0o600))
	assert.True(t, ConfigFileExists(path))
}
