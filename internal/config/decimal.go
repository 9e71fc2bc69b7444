package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Decimal reads money amounts from YAML without a float round trip.
type Decimal struct {
	decimal.Decimal
}

func parseDecimal(raw string) (Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Decimal{Decimal: decimal.Zero}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return Decimal{}, fmt.Errorf("invalid amount %q", raw)
	}
	return Decimal{Decimal: d}, nil
}

func (d *Decimal) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: amount must be a scalar", node.Line)
	}
	parsed, err := parseDecimal(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = parsed
	return nil
}

func (d Decimal) MarshalYAML() (any, error) {
	return d.Decimal.String(), nil
}
