package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseRuleSet decodes a YAML rule set document and validates every
// condition it declares.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var ruleset RuleSet
	if err := yaml.Unmarshal(data, &ruleset); err != nil {
		return nil, fmt.Errorf("failed to decode rule set: %w", err)
	}
	if ruleset.Name == "" {
		return nil, fmt.Errorf("rule set has no name")
	}
	if err := ruleset.Validate(); err != nil {
		return nil, err
	}
	return &ruleset, nil
}

// LoadRuleSet reads and parses a rule set from a YAML file.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule set file %s: %w", path, err)
	}
	ruleset, err := ParseRuleSet(data)
	if err != nil {
		return nil, fmt.Errorf("rule set file %s: %w", path, err)
	}
	return ruleset, nil
}
