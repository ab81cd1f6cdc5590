package entity

import (
	"github.com/shopspring/decimal"
)

// Round is one completed crash-game round, normalized from the upstream
// envelope. Wagers keep the upstream order.
type Round struct {
	ID         int64           `json:"id"`
	CrashPoint decimal.Decimal `json:"crash"`
	Salt       string          `json:"salt"`
	HashRound  string          `json:"hashRound"`
	Wagers     []Wager         `json:"bets"`
}

type Wager struct {
	UserID         int64            `json:"userId"`
	UserName       string           `json:"userName"`
	DepositAmount  decimal.Decimal  `json:"depositAmount"`
	WithdrawAmount decimal.Decimal  `json:"withdrawAmount"`
	Coefficient    decimal.Decimal  `json:"coefficient"`
	// AutoCoefficient is absent when the player had no auto-cashout set.
	AutoCoefficient *decimal.Decimal `json:"coefficientAuto"`
	// UsedItems is 1 when the deposit contained at least one non-monetary item.
	UsedItems int `json:"itemsUsed"`
}
