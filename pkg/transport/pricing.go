package transport

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Priority is the service level chosen by the customer.
type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "ALTA"
)

var ErrUnknownPriority = errors.New("unknown priority")

// ParsePriority accepts NORMAL/ALTA (and "high") case-insensitively.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NORMAL", "":
		return PriorityNormal, nil
	case "ALTA", "HIGH":
		return PriorityHigh, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPriority, s)
}

// Rank orders priorities for the queue; lower runs first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	default:
		return 2
	}
}

// Label renders the priority with its emoji.
func (p Priority) Label() string {
	if p == PriorityHigh {
		return "⚡ Alta"
	}
	return "🕒 Normal"
}

const (
	DefaultPricePerMillion  = 0.60
	DefaultHighSurcharge    = 0.20
	DefaultMinimumSilver    = 10_000_000
	silverPerMillion        = 1_000_000
	minimumPricePerMillion  = 0.01
	maximumPricePerMillion  = 1000
	maximumSurchargeAllowed = 5.0
)

// Pricing holds the tariff: reais per million silver, the high priority surcharge
// and the minimum accepted load.
type Pricing struct {
	PricePerMillion float64
	HighSurcharge   float64
	MinimumSilver   int64
}

// DefaultPricing returns R$ 0,60 per million, +20% for ALTA, 10M minimum.
func DefaultPricing() Pricing {
	return Pricing{
		PricePerMillion: DefaultPricePerMillion,
		HighSurcharge:   DefaultHighSurcharge,
		MinimumSilver:   DefaultMinimumSilver,
	}
}

// Validate rejects tariffs that would produce free, negative or unrepresentable fees.
func (p Pricing) Validate() error {
	if !finite(p.PricePerMillion) || !finite(p.HighSurcharge) {
		return fmt.Errorf("pricing must be a finite number: price=%v surcharge=%v", p.PricePerMillion, p.HighSurcharge)
	}
	if p.PricePerMillion < minimumPricePerMillion || p.PricePerMillion > maximumPricePerMillion {
		return fmt.Errorf("price per million must be between %.2f and %.0f, got %.4f", minimumPricePerMillion, float64(maximumPricePerMillion), p.PricePerMillion)
	}
	if p.HighSurcharge < 0 || p.HighSurcharge > maximumSurchargeAllowed {
		return fmt.Errorf("high priority surcharge out of range: %.2f", p.HighSurcharge)
	}
	if p.MinimumSilver < 0 {
		return fmt.Errorf("minimum silver must not be negative: %d", p.MinimumSilver)
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// RatePerMillion returns the reais charged per million silver for prio.
func (p Pricing) RatePerMillion(prio Priority) float64 {
	if prio == PriorityHigh {
		return p.PricePerMillion * (1 + p.HighSurcharge)
	}
	return p.PricePerMillion
}

// Fee computes the PIX amount for silver at prio.
func (p Pricing) Fee(silver int64, prio Priority) Cents {
	return FromReais(float64(silver) / silverPerMillion * p.RatePerMillion(prio))
}

// Quote is the priced view of a request.
type Quote struct {
	Silver   int64
	Priority Priority
	Rate     float64
	Fee      Cents
}

// Quote validates silver against the minimum and prices it.
func (p Pricing) Quote(silver int64, prio Priority) (Quote, error) {
	if silver <= 0 {
		return Quote{}, fmt.Errorf("%w: %d", ErrInvalidAmount, silver)
	}
	if silver < p.MinimumSilver {
		return Quote{}, fmt.Errorf("%w: %s < %s", ErrBelowMinimum, FormatSilver(silver), FormatSilver(p.MinimumSilver))
	}
	return Quote{
		Silver:   silver,
		Priority: prio,
		Rate:     p.RatePerMillion(prio),
		Fee:      p.Fee(silver, prio),
	}, nil
}
