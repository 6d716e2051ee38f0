package eligibility

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed default_policy.yaml
var defaultPolicy []byte

type policyFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	ID         string   `yaml:"id"`
	Kind       Kind     `yaml:"kind"`
	Categories []string `yaml:"categories"`
	Roles      []string `yaml:"roles"`
	Methods    []string `yaml:"methods"`
	Min        string   `yaml:"min"`
	Max        string   `yaml:"max"`
	MinTotal   string   `yaml:"min_total"`
	Type       string   `yaml:"type"`
	Percentage string   `yaml:"percentage"`
	Amount     string   `yaml:"amount"`
}

func DefaultPolicy() []Rule {
	rules, err := ParsePolicy(defaultPolicy)
	if err != nil {
		panic(fmt.Sprintf("eligibility: default policy: %v", err))
	}
	return rules
}

func LoadPolicy(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data)
}

func ParsePolicy(data []byte) ([]Rule, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Rules))
	rules := make([]Rule, 0, len(f.Rules))
	for i, spec := range f.Rules {
		if spec.ID == "" {
			return nil, fmt.Errorf("rule #%d: id required", i+1)
		}
		if _, dup := seen[spec.ID]; dup {
			return nil, fmt.Errorf("rule %q: duplicate id", spec.ID)
		}
		seen[spec.ID] = struct{}{}

		r, err := spec.toRule()
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", spec.ID, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func (s ruleSpec) toRule() (Rule, error) {
	methods, err := parseMethods(s.Methods)
	if err != nil {
		return nil, err
	}

	switch s.Kind {
	case KindCategoryRestriction:
		if len(s.Categories) == 0 {
			return nil, fmt.Errorf("categories required")
		}
		return CategoryRestriction{ID: s.ID, Categories: s.Categories, Methods: methods}, nil

	case KindRoleRestriction:
		if len(s.Roles) == 0 {
			return nil, fmt.Errorf("roles required")
		}
		return RoleRestriction{ID: s.ID, Roles: s.Roles, Methods: methods}, nil

	case KindTotalThreshold:
		minV, err := optionalDecimal(s.Min, "min")
		if err != nil {
			return nil, err
		}
		maxV, err := optionalDecimal(s.Max, "max")
		if err != nil {
			return nil, err
		}
		if minV == nil && maxV == nil {
			return nil, fmt.Errorf("min or max required")
		}
		if minV != nil && maxV != nil && minV.GreaterThan(*maxV) {
			return nil, fmt.Errorf("min greater than max")
		}
		return TotalThreshold{ID: s.ID, Methods: methods, Min: minV, Max: maxV}, nil

	case KindMandatoryAdvance:
		return s.toMandatoryAdvance(methods)

	default:
		return nil, fmt.Errorf("unknown kind %q", s.Kind)
	}
}

func (s ruleSpec) toMandatoryAdvance(methods []Method) (Rule, error) {
	minTotal, err := optionalDecimal(s.MinTotal, "min_total")
	if err != nil {
		return nil, err
	}
	r := MandatoryAdvance{
		ID:         s.ID,
		Methods:    methods,
		Categories: s.Categories,
		MinTotal:   minTotal,
		Type:       AdvanceType(s.Type),
	}

	switch r.Type {
	case AdvanceFull:
		return r, nil
	case AdvancePartial:
	default:
		return nil, fmt.Errorf("unknown advance type %q", s.Type)
	}

	amount, err := optionalDecimal(s.Amount, "amount")
	if err != nil {
		return nil, err
	}
	if amount != nil {
		if !amount.IsPositive() {
			return nil, fmt.Errorf("amount must be positive")
		}
		r.Amount = amount
		return r, nil
	}

	pct, err := optionalDecimal(s.Percentage, "percentage")
	if err != nil {
		return nil, err
	}
	if pct == nil {
		return nil, fmt.Errorf("partial advance needs percentage or amount")
	}
	if !pct.IsPositive() || pct.GreaterThan(hundred) {
		return nil, fmt.Errorf("percentage must be in (0, 100]")
	}
	r.Percentage = *pct
	return r, nil
}

func parseMethods(raw []string) ([]Method, error) {
	out := make([]Method, 0, len(raw))
	for _, s := range raw {
		m, ok := ParseMethod(s)
		if !ok {
			return nil, fmt.Errorf("unknown method %q", s)
		}
		out = append(out, m)
	}
	return out, nil
}

func optionalDecimal(s, field string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &d, nil
}
