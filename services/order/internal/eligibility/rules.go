package eligibility

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindCategoryRestriction Kind = "category_restriction"
	KindRoleRestriction     Kind = "role_restriction"
	KindTotalThreshold      Kind = "total_threshold"
	KindMandatoryAdvance    Kind = "mandatory_advance"
)

// Rule is a closed set of variants; the engine switches on the concrete type.
type Rule interface {
	RuleID() string
	Kind() Kind
	tier() int
}

// CategoryRestriction blocks Methods when any cart category is listed.
// Empty Methods means every method.
type CategoryRestriction struct {
	ID         string
	Categories []string
	Methods    []Method
}

// RoleRestriction blocks Methods for the listed roles ("guest" for anonymous).
type RoleRestriction struct {
	ID      string
	Roles   []string
	Methods []Method
}

// TotalThreshold blocks Methods when the total is below Min or above Max.
type TotalThreshold struct {
	ID      string
	Methods []Method
	Min     *decimal.Decimal
	Max     *decimal.Decimal
}

// MandatoryAdvance attaches an upfront payment to otherwise allowed Methods.
// Partial advances use Amount when set, Percentage otherwise.
type MandatoryAdvance struct {
	ID         string
	Methods    []Method
	Categories []string
	MinTotal   *decimal.Decimal
	Type       AdvanceType
	Percentage decimal.Decimal
	Amount     *decimal.Decimal
}

func (r CategoryRestriction) RuleID() string { return r.ID }
func (r CategoryRestriction) Kind() Kind     { return KindCategoryRestriction }
func (r CategoryRestriction) tier() int      { return 0 }

func (r RoleRestriction) RuleID() string { return r.ID }
func (r RoleRestriction) Kind() Kind     { return KindRoleRestriction }
func (r RoleRestriction) tier() int      { return 1 }

func (r TotalThreshold) RuleID() string { return r.ID }
func (r TotalThreshold) Kind() Kind     { return KindTotalThreshold }
func (r TotalThreshold) tier() int      { return 2 }

func (r MandatoryAdvance) RuleID() string { return r.ID }
func (r MandatoryAdvance) Kind() Kind     { return KindMandatoryAdvance }
func (r MandatoryAdvance) tier() int      { return 3 }

func (r TotalThreshold) excludes(total decimal.Decimal) bool {
	if r.Min != nil && total.LessThan(*r.Min) {
		return true
	}
	return r.Max != nil && total.GreaterThan(*r.Max)
}

var hundred = decimal.NewFromInt(100)

func (r MandatoryAdvance) requirement(c Context, m Method) (AdvanceRequirement, bool) {
	if !covers(r.Methods, m) {
		return AdvanceRequirement{}, false
	}
	if len(r.Categories) > 0 && !c.HasAnyCategory(r.Categories) {
		return AdvanceRequirement{}, false
	}
	if r.MinTotal != nil && c.OrderTotal.LessThan(*r.MinTotal) {
		return AdvanceRequirement{}, false
	}

	total := c.OrderTotal
	if r.Type == AdvanceFull {
		return FullRequirement(total), true
	}

	if r.Amount != nil {
		amount := decimal.Min(*r.Amount, total)
		pct := decimal.Zero
		if total.IsPositive() {
			pct = amount.Mul(hundred).Div(total).Round(2)
		}
		return AdvanceRequirement{Type: AdvancePartial, Amount: amount, Percentage: pct}, true
	}

	amount := total.Mul(r.Percentage).Div(hundred).Round(2)
	return AdvanceRequirement{Type: AdvancePartial, Amount: amount, Percentage: r.Percentage}, true
}

func covers(methods []Method, m Method) bool {
	if len(methods) == 0 {
		return true
	}
	for _, x := range methods {
		if x == m {
			return true
		}
	}
	return false
}

func containsFold(values []string, v string) bool {
	for _, x := range values {
		if strings.EqualFold(strings.TrimSpace(x), v) {
			return true
		}
	}
	return false
}
