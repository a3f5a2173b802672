package backtest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadStrategies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strategies.yaml")
	content := `strategies:
  - tag: conservative
    ai_signal: true
    warmup_bars: 30
    confidence_threshold: 0.85
    stop_loss: 0.015
    take_profit: 0.04
    position_pct: 0.05
  - tag: sparse
    ai_signal: true
  - tag: ""
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	strategies, err := LoadStrategies(path)
	if err != nil {
		t.Fatalf("LoadStrategies returned error: %v", err)
	}
	if len(strategies) != 2 {
		t.Fatalf("strategies=%d, expected 2 (empty tag skipped)", len(strategies))
	}

	cons := strategies["conservative"]
	if cons.WarmupBars != 30 || cons.ConfidenceThreshold != 0.85 || cons.StopLoss != 0.015 {
		t.Fatalf("conservative=%+v, expected file values", cons)
	}

	// Unset fields fall back to the defaults.
	sparse := strategies["sparse"]
	def := DefaultStrategy("sparse")
	if sparse.WarmupBars != def.WarmupBars || sparse.StopLoss != def.StopLoss ||
		sparse.TakeProfit != def.TakeProfit || sparse.PositionPct != def.PositionPct {
		t.Fatalf("sparse=%+v, expected default backfill", sparse)
	}
}

func TestLoadStrategiesMissingFile(t *testing.T) {
	if _, err := LoadStrategies(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("missing file returned no error")
	}
}

func TestLoadStrategiesInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("strategies: {not: [valid"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadStrategies(path); err == nil {
		t.Fatalf("invalid yaml returned no error")
	}
}

func TestDefaultStrategy(t *testing.T) {
	def := DefaultStrategy("x")
	if def.Tag != "x" || !def.AISignal {
		t.Fatalf("default=%+v, expected AI strategy tagged x", def)
	}
	if def.WarmupBars != 20 || def.ConfidenceThreshold != 0.7 || def.StopLoss != 0.02 || def.TakeProfit != 0.06 {
		t.Fatalf("default=%+v, expected standard exit rules", def)
	}
}
