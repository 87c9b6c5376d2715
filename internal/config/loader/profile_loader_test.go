package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProfile = `
providers:
  - id: trend
    kind: trend
    weight: 0.35
    params:
      fast: 12
      slow: 26
  - id: momentum
    kind: momentum
    weight: 0.25
  - id: volatility
    kind: volatility
    weight: 0.25
  - id: sentiment
    kind: sentiment
    weight: 0.15
`

func writeProfile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestProfileLoaderReadsProviders(t *testing.T) {
	path := writeProfile(t, t.TempDir(), sampleProfile)
	l, err := NewProfileLoader(path)
	require.NoError(t, err)
	defer l.Close()

	snap := l.Snapshot()
	require.Len(t, snap.Providers, 4)
	assert.Equal(t, "trend", snap.Providers[0].ID)
	assert.Equal(t, 12.0, snap.Providers[0].Params["fast"])
	assert.Equal(t, map[string]float64{
		"trend": 0.35, "momentum": 0.25, "volatility": 0.25, "sentiment": 0.15,
	}, snap.Weights())
	assert.EqualValues(t, 1, snap.Version)
}

func TestProfileLoaderRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no providers":     "providers: []\n",
		"missing id":       "providers:\n  - kind: trend\n    weight: 0.5\n",
		"duplicate id":     "providers:\n  - id: a\n    kind: trend\n    weight: 0.5\n  - id: a\n    kind: momentum\n    weight: 0.5\n",
		"weight too large": "providers:\n  - id: a\n    kind: trend\n    weight: 1.5\n",
		"zero weight":      "providers:\n  - id: a\n    kind: trend\n    weight: 0\n",
	}
	for name, body := range cases {
		path := writeProfile(t, t.TempDir(), body)
		_, err := NewProfileLoader(path)
		assert.Error(t, err, name)
	}
}

func TestProfileLoaderHotReload(t *testing.T) {
	dir := t.TempDir()
	path := writeProfile(t, dir, sampleProfile)
	l, err := NewProfileLoader(path)
	require.NoError(t, err)
	defer l.Close()
	require.NoError(t, l.Watch())

	updates := make(chan Snapshot, 4)
	l.Subscribe(func(s Snapshot) { updates <- s })

	// Subscribe delivers the current snapshot first.
	select {
	case snap := <-updates:
		assert.EqualValues(t, 1, snap.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	require.NoError(t, os.WriteFile(path, []byte(`
providers:
  - id: trend
    kind: trend
    weight: 0.9
`), 0o644))

	select {
	case snap := <-updates:
		assert.EqualValues(t, 2, snap.Version)
		assert.Equal(t, 0.9, snap.Weights()["trend"])
	case <-time.After(3 * time.Second):
		t.Fatal("no reload snapshot after file change")
	}
}

func TestProfileLoaderKeepsSnapshotOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := writeProfile(t, dir, sampleProfile)
	l, err := NewProfileLoader(path)
	require.NoError(t, err)
	defer l.Close()
	require.NoError(t, l.Watch())

	require.NoError(t, os.WriteFile(path, []byte("providers: [\n"), 0o644))
	time.Sleep(300 * time.Millisecond)

	snap := l.Snapshot()
	assert.Len(t, snap.Providers, 4)
	assert.EqualValues(t, 1, snap.Version)
}
