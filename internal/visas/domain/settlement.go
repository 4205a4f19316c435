package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// SettlementInput carries everything the settlement calculation needs.
// Money is in fils (minor units); the agent's profit share is in basis
// points (20% = 2000).
type SettlementInput struct {
	Status            Status
	SellingPriceFils  int64
	TotalExpensesFils int64
	OwningAgentID     uuid.UUID
	ProfitShareBps    int64
	SellingAgentID    *uuid.UUID
	CommissionFils    *int64
}

// Settlement is the settlement-of-record produced at sale time. Profit may
// be negative: loss-making sales are accepted and surfaced, and the owning
// agent carries their share of the loss as negative earnings.
type Settlement struct {
	ProfitFils        int64
	AgentEarningsFils int64
	// CrossAgentSale is true when a different agent sold the visa; the
	// commission is then recorded both as an expense against the visa and
	// as that agent's earnings.
	CrossAgentSale bool
	CommissionFils int64
}

// ValidateSettlement checks the sale preconditions and the selling-agent /
// commission pairing. Returns every violated condition.
func ValidateSettlement(in SettlementInput) []string {
	var reasons []string

	if in.Status != StatusListedForSale {
		reasons = append(reasons,
			fmt.Sprintf("visa status is %s; only a visa listed for sale can be sold", in.Status))
	}
	if in.SellingPriceFils <= 0 {
		reasons = append(reasons, "selling price must be positive")
	}

	crossAgent := in.SellingAgentID != nil && *in.SellingAgentID != in.OwningAgentID
	switch {
	case crossAgent && in.CommissionFils == nil:
		reasons = append(reasons, "selling commission is required when a different agent sells the visa")
	case crossAgent && *in.CommissionFils <= 0:
		reasons = append(reasons, "selling commission must be positive")
	case !crossAgent && in.CommissionFils != nil:
		reasons = append(reasons, "selling commission requires a selling agent different from the owning agent")
	}

	return reasons
}

// Settle computes the settlement-of-record. Callers must have checked
// ValidateSettlement first. The later commission expense does not feed back
// into Profit or AgentEarnings; those are fixed at the moment of sale.
func Settle(in SettlementInput) Settlement {
	profit := in.SellingPriceFils - in.TotalExpensesFils

	s := Settlement{
		ProfitFils:        profit,
		AgentEarningsFils: ShareOf(profit, in.ProfitShareBps),
	}

	if in.SellingAgentID != nil && *in.SellingAgentID != in.OwningAgentID && in.CommissionFils != nil {
		s.CrossAgentSale = true
		s.CommissionFils = *in.CommissionFils
	}

	return s
}

// ShareOf applies a basis-point share to an amount of fils, rounding half
// up on the minor unit. Negative amounts round half away from zero so a
// loss splits symmetrically to a gain.
func ShareOf(amountFils int64, shareBps int64) int64 {
	product := amountFils * shareBps
	if product >= 0 {
		return (product + 5000) / 10000
	}
	return (product - 5000) / 10000
}
