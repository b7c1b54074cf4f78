package rules

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/erp/reconciler/internal/domain/fee"
	"gopkg.in/yaml.v3"
)

// feeFile is the on-disk shape of a fee rule seed file. Rule sets use the
// same field names as the API; rates and amounts may be numbers or quoted
// strings, instants are RFC 3339.
type feeFile struct {
	RuleSets []any `yaml:"rule_sets"`
}

// ParseFeeRuleSets decodes and validates a fee rule seed file
func ParseFeeRuleSets(data []byte) ([]fee.RuleSet, error) {
	var file feeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("rules: parse fee rules: %w", err)
	}
	if len(file.RuleSets) == 0 {
		return nil, fmt.Errorf("%w: file has no rule_sets", fee.ErrInvalidRuleSet)
	}

	// decimal.Decimal and time.Time know JSON, so the YAML tree is
	// re-encoded and decoded strictly through encoding/json
	raw, err := json.Marshal(file.RuleSets)
	if err != nil {
		return nil, fmt.Errorf("rules: re-encode fee rules: %w", err)
	}
	var sets []fee.RuleSet
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sets); err != nil {
		return nil, fmt.Errorf("rules: decode fee rules: %w", err)
	}

	for i, rs := range sets {
		if err := rs.Validate(); err != nil {
			return nil, fmt.Errorf("rules: rule set %d (%s): %w", i, rs.Marketplace, err)
		}
	}
	return sets, nil
}

// LoadFeeRuleSets reads a fee rule seed file. An empty path returns the
// built-in defaults.
func LoadFeeRuleSets(path string) ([]fee.RuleSet, error) {
	if path == "" {
		return fee.DefaultRuleSets(), nil
	}
	data, err := readRuleFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFeeRuleSets(data)
}
