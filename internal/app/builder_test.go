package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	qcfg "quorum/internal/config"
	"quorum/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	price float64
}

func (s *staticSource) CurrentPrice(context.Context, string) (float64, error) {
	return s.price, nil
}

func (s *staticSource) Microstructure(context.Context, string) (*market.Microstructure, error) {
	return &market.Microstructure{Volume5m: 1e7, Bid: 99.99, Ask: 100.01}, nil
}

func (s *staticSource) Klines(context.Context, string, string, int) ([]market.Candle, error) {
	return nil, nil
}

func testConfig(t *testing.T) *qcfg.Config {
	t.Helper()
	dir := t.TempDir()
	profile := filepath.Join(dir, "providers.yaml")
	require.NoError(t, os.WriteFile(profile, []byte(`
providers:
  - id: trend
    kind: trend
    weight: 0.4
  - id: momentum
    kind: momentum
    weight: 0.3
  - id: volatility
    kind: volatility
    weight: 0.3
`), 0o644))

	cfgPath := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
providers:
  profile_path: %s
store:
  path: %s
`, profile, filepath.Join(dir, "quorum.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))

	cfg, err := qcfg.Load(cfgPath)
	require.NoError(t, err)
	return cfg
}

func TestBuilderAssemblesApp(t *testing.T) {
	cfg := testConfig(t)
	a, err := NewAppBuilder(cfg, WithMarketSource(&staticSource{price: 100})).Build()
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Engine())
	assert.NotNil(t, a.httpSrv)
	assert.NotNil(t, a.tracker)
	assert.False(t, a.breaker.Active())
}

func TestBuilderRunsCycleWithFakeSource(t *testing.T) {
	cfg := testConfig(t)
	a, err := NewAppBuilder(cfg, WithMarketSource(&staticSource{price: 100})).Build()
	require.NoError(t, err)
	defer a.Close()

	result, err := a.Engine().RunDecisionCycle(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Decision.Action)
}

func TestBuilderRejectsMissingProfile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Providers.ProfilePath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := NewAppBuilder(cfg, WithMarketSource(&staticSource{price: 100})).Build()
	require.Error(t, err)
}

func TestBuilderRejectsBadTrackingWindow(t *testing.T) {
	cfg := testConfig(t)
	cfg.Shadow.TrackingWindow = "never"
	_, err := NewAppBuilder(cfg, WithMarketSource(&staticSource{price: 100})).Build()
	require.Error(t, err)
}
