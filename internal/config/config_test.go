package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fasst.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadValidCRCWManifest(t *testing.T) {
	path := writeManifest(t, `
alloc:
  - tag: circular
    capacity: 1048576
pool:
  - name: default
table:
  - requestType: 1
    buckets: 1024
    concurrentRead: true
    concurrentWrite: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Table, 1)
	assert.EqualValues(t, 1, cfg.Table[0].RequestType)
	assert.True(t, cfg.Table[0].ConcurrentRead)
}

func TestLoadRejectsNonCRCWTable(t *testing.T) {
	path := writeManifest(t, `
table:
  - requestType: 2
    buckets: 64
    concurrentRead: true
    concurrentWrite: false
`)
	_, err := Load(path)
	assert.Error(t, err, "only CRCW mode is supported")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
