package model

// AccountPosture is the latest account state reported by the data source.
// It is replaced wholesale on every refresh that yields account data.
type AccountPosture struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	FreeMargin float64 `json:"margin_free"`
	Leverage   int     `json:"leverage"`
}

// RiskProfile is the position-sizing bracket derived from an account balance.
type RiskProfile struct {
	MaxTrades            int     `json:"max_trades"`
	MinLot               float64 `json:"min_lot"`
	MaxLot               float64 `json:"max_lot"`
	TargetProfitUSD      float64 `json:"target_profit_usd"`
	StopLossUSD          float64 `json:"stop_loss_usd"`
	PartialTakeProfitUSD float64 `json:"partial_take_profit_usd"`
}
