package backtest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StrategyConfig describes one backtest strategy preset.
type StrategyConfig struct {
	Tag                 string  `yaml:"tag"`
	AISignal            bool    `yaml:"ai_signal"`
	WarmupBars          int     `yaml:"warmup_bars"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	StopLoss            float64 `yaml:"stop_loss"`
	TakeProfit          float64 `yaml:"take_profit"`
	PositionPct         float64 `yaml:"position_pct"`
}

type strategyFile struct {
	Strategies []StrategyConfig `yaml:"strategies"`
}

// DefaultStrategy is used when a requested tag has no preset: AI-driven
// entries above 0.7 confidence, 2%/6% exit rules, 20-bar warm-up.
func DefaultStrategy(tag string) StrategyConfig {
	return StrategyConfig{
		Tag:                 tag,
		AISignal:            true,
		WarmupBars:          20,
		ConfidenceThreshold: 0.7,
		StopLoss:            0.02,
		TakeProfit:          0.06,
		PositionPct:         0.1,
	}
}

// LoadStrategies reads strategy presets from a YAML file keyed by tag.
func LoadStrategies(path string) (map[string]StrategyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file strategyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse strategy config: %w", err)
	}

	out := make(map[string]StrategyConfig, len(file.Strategies))
	for _, s := range file.Strategies {
		if s.Tag == "" {
			continue
		}
		def := DefaultStrategy(s.Tag)
		if s.WarmupBars <= 0 {
			s.WarmupBars = def.WarmupBars
		}
		if s.ConfidenceThreshold <= 0 {
			s.ConfidenceThreshold = def.ConfidenceThreshold
		}
		if s.StopLoss <= 0 {
			s.StopLoss = def.StopLoss
		}
		if s.TakeProfit <= 0 {
			s.TakeProfit = def.TakeProfit
		}
		if s.PositionPct <= 0 {
			s.PositionPct = def.PositionPct
		}
		out[s.Tag] = s
	}
	return out, nil
}
