package eligibility

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const RoleGuest = "guest"

// Context is the only input of the engine and is never persisted.
type Context struct {
	OrderTotal    decimal.Decimal
	Categories    []string
	UserID        string
	Role          string
	Authenticated bool
}

// NewContext lower-cases, deduplicates and sorts categories so equal carts
// produce equal contexts. Anonymous callers always evaluate as guests.
func NewContext(total decimal.Decimal, categories []string, userID, role string, authenticated bool) Context {
	seen := make(map[string]struct{}, len(categories))
	norm := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		norm = append(norm, c)
	}
	sort.Strings(norm)

	role = strings.ToLower(strings.TrimSpace(role))
	if !authenticated || role == "" {
		role = RoleGuest
	}

	return Context{
		OrderTotal:    total,
		Categories:    norm,
		UserID:        userID,
		Role:          role,
		Authenticated: authenticated,
	}
}

func (c Context) HasAnyCategory(categories []string) bool {
	for _, want := range categories {
		if containsFold(c.Categories, strings.TrimSpace(want)) {
			return true
		}
	}
	return false
}

type Effect string

const (
	EffectRestrict Effect = "restrict"
	EffectAdvance  Effect = "advance"
)

type AppliedRule struct {
	RuleID string `json:"rule_id"`
	Kind   Kind   `json:"kind"`
	Method Method `json:"method"`
	Effect Effect `json:"effect"`
}

type Verdict struct {
	Method       Method              `json:"method"`
	Status       Status              `json:"status"`
	AppliedRules []AppliedRule       `json:"applied_rules"`
	Advance      *AdvanceRequirement `json:"advance_requirement"`
}

type Result struct {
	Verdicts []Verdict
}

func (r Result) Verdict(m Method) (Verdict, bool) {
	for _, v := range r.Verdicts {
		if v.Method == m {
			return v, true
		}
	}
	return Verdict{}, false
}

func (r Result) IsAllowed(m Method) bool {
	v, ok := r.Verdict(m)
	return ok && v.Status == StatusAllowed
}

func (r Result) Allowed() []Method {
	return r.filter(func(v Verdict) bool { return v.Status == StatusAllowed })
}

func (r Result) Restricted() []Method {
	return r.filter(func(v Verdict) bool { return v.Status == StatusRestricted })
}

func (r Result) AdvanceMethods() []Method {
	return r.filter(func(v Verdict) bool { return v.Advance != nil })
}

// AppliedRules flattens the audit in verdict order.
func (r Result) AppliedRules() []AppliedRule {
	out := make([]AppliedRule, 0, len(r.Verdicts))
	for _, v := range r.Verdicts {
		out = append(out, v.AppliedRules...)
	}
	return out
}

func (r Result) filter(keep func(Verdict) bool) []Method {
	out := make([]Method, 0, len(r.Verdicts))
	for _, v := range r.Verdicts {
		if keep(v) {
			out = append(out, v.Method)
		}
	}
	return out
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Methods        []Verdict `json:"methods"`
		Allowed        []Method  `json:"allowed_methods"`
		Restricted     []Method  `json:"restricted_methods"`
		AdvanceMethods []Method  `json:"advance_methods"`
	}{
		Methods:        r.Verdicts,
		Allowed:        r.Allowed(),
		Restricted:     r.Restricted(),
		AdvanceMethods: r.AdvanceMethods(),
	})
}

// Engine decides payment-method eligibility. It holds no mutable state and
// performs no I/O, so preview and checkout share one instance.
type Engine struct {
	rules   []Rule
	methods []Method
}

func NewEngine(rules []Rule, methods ...Method) *Engine {
	if len(methods) == 0 {
		methods = SupportedMethods
	}
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].tier() < sorted[j].tier() })

	return &Engine{
		rules:   sorted,
		methods: append([]Method(nil), methods...),
	}
}

func (e *Engine) Methods() []Method {
	return append([]Method(nil), e.methods...)
}

func (e *Engine) Evaluate(c Context) Result {
	verdicts := make([]Verdict, 0, len(e.methods))
	for _, m := range e.methods {
		verdicts = append(verdicts, e.evaluateMethod(c, m))
	}
	return Result{Verdicts: verdicts}
}

// Rules are already ordered category, role, threshold, advance; the first
// blocking rule ends the fold for that method.
func (e *Engine) evaluateMethod(c Context, m Method) Verdict {
	var (
		best   *AdvanceRequirement
		bestBy Rule
	)

	for _, rule := range e.rules {
		switch r := rule.(type) {
		case CategoryRestriction:
			if covers(r.Methods, m) && c.HasAnyCategory(r.Categories) {
				return restricted(m, r)
			}
		case RoleRestriction:
			if covers(r.Methods, m) && containsFold(r.Roles, c.Role) {
				return restricted(m, r)
			}
		case TotalThreshold:
			if covers(r.Methods, m) && r.excludes(c.OrderTotal) {
				return restricted(m, r)
			}
		case MandatoryAdvance:
			req, ok := r.requirement(c, m)
			if ok && (best == nil || req.Amount.GreaterThan(best.Amount)) {
				best, bestBy = &req, r
			}
		}
	}

	v := Verdict{Method: m, Status: StatusAllowed, AppliedRules: []AppliedRule{}}
	if best != nil {
		v.Advance = best
		v.AppliedRules = append(v.AppliedRules, AppliedRule{
			RuleID: bestBy.RuleID(),
			Kind:   bestBy.Kind(),
			Method: m,
			Effect: EffectAdvance,
		})
	}
	return v
}

func restricted(m Method, r Rule) Verdict {
	return Verdict{
		Method: m,
		Status: StatusRestricted,
		AppliedRules: []AppliedRule{{
			RuleID: r.RuleID(),
			Kind:   r.Kind(),
			Method: m,
			Effect: EffectRestrict,
		}},
	}
}
