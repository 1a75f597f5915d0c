// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"os"
	"time"
)

// Genesis represents the genesis file, including the economic policy every
// node on the network must agree on to fold blocks identically.
type Genesis struct {
	Date           time.Time          `json:"date"`
	ChainID        uint16             `json:"chain_id"`         // The chain id represents an unique id for this running instance.
	TransPerBlock  uint16             `json:"trans_per_block"`  // The maximum number of transactions that can be in a block.
	Difficulty     uint16             `json:"difficulty"`       // How difficult it needs to be to solve the work problem.
	MiningReward   float64            `json:"mining_reward"`    // Reward for mining a block.
	BaseValue      float64            `json:"base_value"`       // Starting value of every item on the ledger.
	PenaltyBase    float64            `json:"penalty_base"`     // Penalty rate charged at zero demand.
	PenaltyStep    float64            `json:"penalty_step"`     // Penalty rate added per unit of demand.
	PenaltyCap     float64            `json:"penalty_cap"`      // Ceiling on the penalty rate.
	ValueIncrement float64            `json:"value_increment"`  // Fixed value growth applied per penalty payment.
	Balances       map[string]float64 `json:"balances"`         // Opening balances in credits.
}

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// PenaltyRate calculates the rate charged for requesting an item that is
// already held, based on how many times the item has been requested while
// reserved. The rate grows with demand up to the cap.
func (g Genesis) PenaltyRate(demand int) float64 {
	rate := g.PenaltyBase + g.PenaltyStep*float64(demand)
	if rate > g.PenaltyCap {
		rate = g.PenaltyCap
	}

	return rate
}

// PenaltyAmount calculates the credits charged for requesting an item that
// is already held. The charge is always based on the item's base value so a
// run of penalties can't compound.
func (g Genesis) PenaltyAmount(demand int) float64 {
	return g.PenaltyRate(demand) * g.BaseValue
}
