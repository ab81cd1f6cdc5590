package fetcher

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/Hikita1337/crashfeed/internal/entity"
)

type envelope struct {
	Data *roundPayload `json:"data"`
}

type roundPayload struct {
	ID        int64           `json:"id"`
	Crash     decimal.Decimal `json:"crash"`
	Salt      string          `json:"salt"`
	HashRound string          `json:"hashRound"`
	Bets      []betPayload    `json:"bets"`
}

type betPayload struct {
	User struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"user"`
	Deposit struct {
		Amount decimal.Decimal   `json:"amount"`
		Items  []json.RawMessage `json:"items"`
	} `json:"deposit"`
	Withdraw struct {
		Amount decimal.Decimal `json:"amount"`
	} `json:"withdraw"`
	Coefficient     decimal.Decimal  `json:"coefficient"`
	CoefficientAuto *decimal.Decimal `json:"coefficientAuto"`
}

func normalize(p *roundPayload) *entity.Round {
	round := &entity.Round{
		ID:         p.ID,
		CrashPoint: p.Crash,
		Salt:       p.Salt,
		HashRound:  p.HashRound,
		Wagers:     make([]entity.Wager, 0, len(p.Bets)),
	}

	for _, bet := range p.Bets {
		used := 0
		if len(bet.Deposit.Items) > 0 {
			used = 1
		}
		round.Wagers = append(round.Wagers, entity.Wager{
			UserID:          bet.User.ID,
			UserName:        bet.User.Name,
			DepositAmount:   bet.Deposit.Amount,
			WithdrawAmount:  bet.Withdraw.Amount,
			Coefficient:     bet.Coefficient,
			AutoCoefficient: bet.CoefficientAuto,
			UsedItems:       used,
		})
	}

	return round
}
