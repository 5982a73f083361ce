package risk

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Limits bound what a source channel is allowed to trade. A zero field
// in a channel entry inherits the default; a zero default disables that
// check entirely.
type Limits struct {
	MaxLeverage   float64 `yaml:"max_leverage"`
	MaxRiskPct    float64 `yaml:"max_risk_pct"`
	MinConfidence float64 `yaml:"min_confidence"`
	MaxOpenOrders int     `yaml:"max_open_orders"`
}

// limitsFile is the on-disk YAML layout.
type limitsFile struct {
	Default  Limits            `yaml:"default"`
	Channels map[string]Limits `yaml:"channels"`
}

// loadLimits reads and parses the limits file.
func loadLimits(path string) (limitsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return limitsFile{}, fmt.Errorf("read limits file: %w", err)
	}

	var file limitsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return limitsFile{}, fmt.Errorf("parse limits file: %w", err)
	}
	return file, nil
}

// merged overlays a channel entry on the defaults, field by field.
func merged(defaults, channel Limits) Limits {
	out := defaults
	if channel.MaxLeverage > 0 {
		out.MaxLeverage = channel.MaxLeverage
	}
	if channel.MaxRiskPct > 0 {
		out.MaxRiskPct = channel.MaxRiskPct
	}
	if channel.MinConfidence > 0 {
		out.MinConfidence = channel.MinConfidence
	}
	if channel.MaxOpenOrders > 0 {
		out.MaxOpenOrders = channel.MaxOpenOrders
	}
	return out
}
