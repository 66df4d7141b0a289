package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, float32(0.5), cfg.MinConfidence)
	require.Equal(t, 500, cfg.SampleIntervalMS)
	require.Equal(t, ":8088", cfg.HTTPPort)
}

func TestLoadConfigFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "ppecam.json")
	require.NoError(t, os.WriteFile(fn, []byte(`{"personDetectorURL":"http://example.com/person","fileSampleCount":25}`), 0644))

	cfg, err := LoadConfig(fn)
	require.NoError(t, err)
	require.Equal(t, "http://example.com/person", cfg.PersonDetectorURL)
	require.Equal(t, 25, cfg.FileSampleCount)
	// Unset fields keep their defaults
	require.Equal(t, 80, cfg.JPEGQuality)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestLoadVocabulary(t *testing.T) {
	cfg := Default()
	v, err := cfg.LoadVocabulary()
	require.NoError(t, err)
	require.Equal(t, "sitesafety", v.Name)

	cfg.Vocabulary = "cleanroom"
	v, err = cfg.LoadVocabulary()
	require.NoError(t, err)
	require.Equal(t, "cleanroom", v.Name)

	cfg.RequiredClasses = []string{"mask"}
	v, err = cfg.LoadVocabulary()
	require.NoError(t, err)
	require.Equal(t, []string{"mask"}, v.Required)

	cfg.RequiredClasses = []string{"jetpack"}
	_, err = cfg.LoadVocabulary()
	require.Error(t, err)
}
