package eligibility

import "github.com/shopspring/decimal"

type Method string

const (
	MethodCashOnDelivery Method = "cash_on_delivery"
	MethodAdvancePayment Method = "advance_payment"
	MethodOnlineCard     Method = "online_card"
)

// SupportedMethods is also the order verdicts are reported in.
var SupportedMethods = []Method{MethodCashOnDelivery, MethodAdvancePayment, MethodOnlineCard}

func ParseMethod(s string) (Method, bool) {
	for _, m := range SupportedMethods {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

type Status string

const (
	StatusAllowed    Status = "ALLOWED"
	StatusRestricted Status = "RESTRICTED"
)

type AdvanceType string

const (
	AdvancePartial AdvanceType = "partial"
	AdvanceFull    AdvanceType = "full"
)

type AdvanceRequirement struct {
	Type       AdvanceType     `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
}

func (a AdvanceRequirement) Equal(b AdvanceRequirement) bool {
	return a.Type == b.Type && a.Amount.Equal(b.Amount) && a.Percentage.Equal(b.Percentage)
}

// FullRequirement is what an advance-only method falls back to when no rule
// set a smaller amount.
func FullRequirement(total decimal.Decimal) AdvanceRequirement {
	return AdvanceRequirement{Type: AdvanceFull, Amount: total, Percentage: decimal.NewFromInt(100)}
}
