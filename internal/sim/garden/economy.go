package garden

import (
	"errors"
	"fmt"

	"crystalpets.ai/internal/sim/progression"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrMaxTier           = errors.New("max tier reached")
)

// Ledger holds the player's coins. Harvest income arrives as fractional coins; whole coins are
// credited once the remainder adds up.
type Ledger struct {
	coins int64
	frac  float64
}

func NewLedger(coins int64) *Ledger { return &Ledger{coins: coins} }

func (l *Ledger) Balance() int64 { return l.coins }

func (l *Ledger) Credit(n int64) {
	if n > 0 {
		l.coins += n
	}
}

// Earn converts harvested HP into coins at rate coins per HP and returns the whole coins credited.
func (l *Ledger) Earn(hp, rate float64) int64 {
	if hp <= 0 || rate <= 0 {
		return 0
	}
	l.frac += hp * rate
	whole := int64(l.frac)
	l.frac -= float64(whole)
	l.coins += whole
	return whole
}

func (l *Ledger) Debit(n int64) error {
	if n < 0 {
		return fmt.Errorf("debit %d: negative amount", n)
	}
	if n > l.coins {
		return fmt.Errorf("debit %d with balance %d: %w", n, l.coins, ErrInsufficientFunds)
	}
	l.coins -= n
	return nil
}

type UpgradeReceipt struct {
	Tier     int     `json:"tier"`
	Paid     int64   `json:"paid"`
	Capacity float64 `json:"capacity"`
	NextCost int64   `json:"next_cost"`
	Balance  int64   `json:"balance"`
}

// Shop sells tier upgrades: it charges the ledger first and only then raises the tier.
type Shop struct {
	Ledger      *Ledger
	Progression *progression.Progression
	// MaxTier caps upgrades; 0 means uncapped.
	MaxTier int
}

func (s *Shop) BuyUpgrade() (UpgradeReceipt, error) {
	tier := s.Progression.CurrentTier()
	if s.MaxTier > 0 && tier >= s.MaxTier {
		return UpgradeReceipt{}, fmt.Errorf("tier %d: %w", tier, ErrMaxTier)
	}
	cost := s.Progression.UpgradeCost()
	if err := s.Ledger.Debit(cost); err != nil {
		return UpgradeReceipt{}, fmt.Errorf("upgrade to tier %d: %w", tier+1, err)
	}
	change := s.Progression.Upgrade()
	return UpgradeReceipt{
		Tier:     change.Tier,
		Paid:     cost,
		Capacity: change.Capacity,
		NextCost: change.Cost,
		Balance:  s.Ledger.Balance(),
	}, nil
}
