package listing

import "github.com/shopspring/decimal"

// Classify decides how one observation relates to the stored state. An
// unknown-to-known or known-to-unknown price transition is never a drop.
func Classify(isNew bool, priorTotal, newTotal *decimal.Decimal) Verdict {
	if isNew {
		return VerdictNew
	}
	if priorTotal != nil && newTotal != nil && newTotal.LessThan(*priorTotal) {
		return VerdictPriceDrop
	}
	return VerdictUnchanged
}
