package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ValueList is a string list that remembers whether it was declared as a
// scalar or a list. matches_value treats a scalar as exact equality and a
// list as a set of glob patterns, so the declaration shape is significant.
type ValueList struct {
	Values []string `json:"values"`
	Scalar bool     `json:"-"`
}

// Value declares a ValueList from a single scalar.
func Value(v string) ValueList {
	return ValueList{Values: []string{v}, Scalar: true}
}

// Values declares a ValueList from an explicit list.
func Values(vs ...string) ValueList {
	return ValueList{Values: vs}
}

// Empty reports whether no values were declared.
func (v ValueList) Empty() bool {
	return len(v.Values) == 0
}

// UnmarshalYAML accepts either a scalar or a sequence of scalars.
func (v *ValueList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		v.Values = []string{node.Value}
		v.Scalar = true
		return nil
	case yaml.SequenceNode:
		v.Scalar = false
		v.Values = make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("value list items must be scalars, got %v at line %d", item.Kind, item.Line)
			}
			v.Values = append(v.Values, item.Value)
		}
		return nil
	default:
		return fmt.Errorf("expected scalar or list at line %d", node.Line)
	}
}

// MarshalYAML renders scalars back as scalars.
func (v ValueList) MarshalYAML() (any, error) {
	if v.Scalar && len(v.Values) == 1 {
		return v.Values[0], nil
	}
	return v.Values, nil
}

// Scalar is an optional scalar with an explicit unset sentinel, used by the
// value_exact and is_not matchers where "0" and "unset" must be distinct.
type Scalar struct {
	value string
	set   bool
}

// NewScalar declares a set scalar from any printable value.
func NewScalar(v any) Scalar {
	return Scalar{value: fmt.Sprint(v), set: true}
}

// IsSet reports whether the scalar was declared.
func (s Scalar) IsSet() bool { return s.set }

// String returns the canonical string form of the scalar.
func (s Scalar) String() string { return s.value }

// UnmarshalYAML accepts any scalar node, preserving its literal text.
func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected scalar at line %d", node.Line)
	}
	s.value = node.Value
	s.set = true
	return nil
}

// MarshalYAML renders the scalar's literal text; unset marshals as null.
func (s Scalar) MarshalYAML() (any, error) {
	if !s.set {
		return nil, nil
	}
	return s.value, nil
}
