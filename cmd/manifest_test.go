package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
year: 2025
events:
  - name: 5000m
    urls:
      - https://track.example/results/5000m-men
      - https://track.example/results/5000m-women
  - name: 10000m
    urls:
      - https://track.example/results/10000m-men
      - https://track.example/results/5000m-men
`), 0o644))

	m, err := loadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, 2025, m.Year)
	require.Len(t, m.Events, 2)

	urls := m.AllURLs()
	assert.Equal(t, []string{
		"https://track.example/results/5000m-men",
		"https://track.example/results/5000m-women",
		"https://track.example/results/10000m-men",
	}, urls, "duplicates collapse, order is preserved")
}

func TestLoadManifestEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.yaml")
	require.NoError(t, os.WriteFile(path, []byte("year: 2025\nevents: []\n"), 0o644))

	_, err := loadManifest(path)
	assert.Error(t, err)
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := loadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
