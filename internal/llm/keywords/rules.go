package keywords

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Metric names accepted in rule files.
const (
	MetricPrimaryScore  = "primary_score"
	MetricGazeScore     = "gaze_score"
	MetricTotalScore    = "total_score"
	MetricConcentration = "concentration"
	MetricStability     = "stability"
	MetricBlink         = "blink"
	MetricViolations    = "violations"
	MetricMultiFace     = "multi_face"
)

var knownMetrics = map[string]bool{
	MetricPrimaryScore:  true,
	MetricGazeScore:     true,
	MetricTotalScore:    true,
	MetricConcentration: true,
	MetricStability:     true,
	MetricBlink:         true,
	MetricViolations:    true,
	MetricMultiFace:     true,
}

// Rules is the keyword rule set loaded from YAML.
type Rules struct {
	Strengths  []Rule   `yaml:"strengths"`
	Weaknesses []Rule   `yaml:"weaknesses"`
	Defaults   Defaults `yaml:"defaults"`
}

// Rule attaches Keyword when Metric falls inside [Min, Max]. Unset bounds are open.
type Rule struct {
	Keyword string   `yaml:"keyword"`
	Metric  string   `yaml:"metric"`
	Min     *float64 `yaml:"min"`
	Max     *float64 `yaml:"max"`
}

// Defaults are used when no rule of a group matched.
type Defaults struct {
	Strengths         []string `yaml:"strengths"`
	Weaknesses        []string `yaml:"weaknesses"`
	CopyingWeaknesses []string `yaml:"copying_weaknesses"`
}

// DefaultRules returns the embedded rule set.
func DefaultRules() Rules {
	rules, err := Parse(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded keyword rules: %v", err))
	}
	return rules
}

// LoadFile reads rules from path. An empty path yields the embedded rules.
func LoadFile(path string) (Rules, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRules(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read keyword rules %s: %w", path, err)
	}
	rules, err := Parse(raw)
	if err != nil {
		return Rules{}, fmt.Errorf("parse keyword rules %s: %w", path, err)
	}
	return rules, nil
}

// Parse decodes and validates a YAML rule document.
func Parse(raw []byte) (Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return Rules{}, err
	}
	if err := rules.validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

func (r Rules) validate() error {
	check := func(group string, list []Rule) error {
		for i, rule := range list {
			if strings.TrimSpace(rule.Keyword) == "" {
				return fmt.Errorf("%s[%d]: keyword is required", group, i)
			}
			if !knownMetrics[rule.Metric] {
				return fmt.Errorf("%s[%d]: unknown metric %q", group, i, rule.Metric)
			}
			if rule.Min == nil && rule.Max == nil {
				return fmt.Errorf("%s[%d]: min or max is required", group, i)
			}
			if rule.Min != nil && rule.Max != nil && *rule.Min > *rule.Max {
				return fmt.Errorf("%s[%d]: min exceeds max", group, i)
			}
		}
		return nil
	}
	if err := check("strengths", r.Strengths); err != nil {
		return err
	}
	return check("weaknesses", r.Weaknesses)
}

func (r Rule) matches(value float64) bool {
	if r.Min != nil && value < *r.Min {
		return false
	}
	if r.Max != nil && value > *r.Max {
		return false
	}
	return true
}
