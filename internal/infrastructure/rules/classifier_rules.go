package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/domain/payment"
	"gopkg.in/yaml.v3"
)

// ErrRuleFileNotFound is returned when a configured rule file is missing
var ErrRuleFileNotFound = errors.New("rules: rule file not found")

// classifierFile is the on-disk shape of a custom classification rule file
type classifierFile struct {
	Rules []classifierRule `yaml:"rules"`
}

type classifierRule struct {
	Name        string   `yaml:"name"`
	Kind        string   `yaml:"kind,omitempty"`
	Pattern     string   `yaml:"pattern"`
	Tags        []string `yaml:"tags"`
	Priority    int      `yaml:"priority,omitempty"`
	Marketplace string   `yaml:"marketplace,omitempty"`
	// When is an optional CEL guard
	When string `yaml:"when,omitempty"`
}

// ParseClassifierRules decodes a rule file. Unknown fields are rejected so
// a typo does not silently disable a guard.
func ParseClassifierRules(data []byte) ([]payment.Rule, error) {
	var file classifierFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("rules: parse classifier rules: %w", err)
	}

	out := make([]payment.Rule, 0, len(file.Rules))
	for i, fr := range file.Rules {
		r := payment.Rule{
			Name:     fr.Name,
			Kind:     payment.RuleKind(strings.ToLower(fr.Kind)),
			Pattern:  fr.Pattern,
			Tags:     fr.Tags,
			Priority: fr.Priority,
		}
		if fr.Marketplace != "" {
			m, err := marketplace.ParseMarketplace(fr.Marketplace)
			if err != nil {
				return nil, fmt.Errorf("rules: rule %d (%s): %w", i, fr.Name, err)
			}
			r.Marketplace = m
		}
		if strings.TrimSpace(fr.When) != "" {
			g, err := NewCELGuard(fr.When)
			if err != nil {
				return nil, fmt.Errorf("rules: rule %d (%s): %w", i, fr.Name, err)
			}
			r.Guard = g
		}
		// compile early so the error names the file position
		if _, err := r.Compile(); err != nil {
			return nil, fmt.Errorf("rules: rule %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// LoadClassifierRules reads a custom rule file
func LoadClassifierRules(path string) ([]payment.Rule, error) {
	data, err := readRuleFile(path)
	if err != nil {
		return nil, err
	}
	return ParseClassifierRules(data)
}

// LoadClassifier builds the payment classifier: custom rules from path, when
// set, ahead of the built-in ones
func LoadClassifier(path string) (*payment.Classifier, error) {
	if path == "" {
		return payment.MustDefaultClassifier(), nil
	}
	custom, err := LoadClassifierRules(path)
	if err != nil {
		return nil, err
	}
	return payment.NewClassifier(custom, payment.BuiltinRules())
}

func readRuleFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRuleFileNotFound, path)
		}
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	return data, nil
}
