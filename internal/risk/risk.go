// Package risk maps an account balance to its position-sizing bracket.
//
// The bracket table is fixed and non-overlapping; lookup is pure.
package risk

import "signal-engine/internal/model"

// bracket pairs an exclusive upper balance bound with its profile.
type bracket struct {
	below   float64
	profile model.RiskProfile
}

var brackets = []bracket{
	{below: 100, profile: model.RiskProfile{
		MaxTrades: 1, MinLot: 0.01, MaxLot: 0.02,
		TargetProfitUSD: 1.5, StopLossUSD: 1.0, PartialTakeProfitUSD: 0.75,
	}},
	{below: 500, profile: model.RiskProfile{
		MaxTrades: 2, MinLot: 0.02, MaxLot: 0.05,
		TargetProfitUSD: 4.0, StopLossUSD: 2.5, PartialTakeProfitUSD: 2.0,
	}},
	{below: 2000, profile: model.RiskProfile{
		MaxTrades: 3, MinLot: 0.05, MaxLot: 0.1,
		TargetProfitUSD: 10.0, StopLossUSD: 6.0, PartialTakeProfitUSD: 5.0,
	}},
}

// top applies to every balance at or above the last bracket bound.
var top = model.RiskProfile{
	MaxTrades: 5, MinLot: 0.1, MaxLot: 0.3,
	TargetProfitUSD: 25.0, StopLossUSD: 15.0, PartialTakeProfitUSD: 10.0,
}

// ProfileForBalance returns the risk profile for balance.
func ProfileForBalance(balance float64) model.RiskProfile {
	for _, b := range brackets {
		if balance < b.below {
			return b.profile
		}
	}
	return top
}
