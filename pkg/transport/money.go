package transport

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Cents is an amount of Brazilian reais expressed in centavos.
type Cents int64

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrBelowMinimum  = errors.New("amount below minimum")
)

var ptBR = message.NewPrinter(language.BrazilianPortuguese)

// FromReais rounds a float amount of reais half away from zero into centavos.
func FromReais(v float64) Cents {
	if v < 0 {
		return -FromReais(-v)
	}
	return Cents(int64(v*100 + 0.5 + 1e-9))
}

// Reais returns the amount as a float, for display math only.
func (c Cents) Reais() float64 { return float64(c) / 100 }

// String renders c as "R$ 1.234,56".
func (c Cents) String() string { return FormatBRL(c) }

// FormatBRL renders an amount with pt-BR grouping and two decimals.
func FormatBRL(c Cents) string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	reais := int64(c) / 100
	centavos := int64(c) % 100
	return sign + "R$ " + ptBR.Sprintf("%d", reais) + "," + fmt.Sprintf("%02d", centavos)
}

// ParseBRL accepts "40,32", "40.32", "1.234,56", "R$ 10" and similar.
func ParseBRL(raw string) (Cents, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, fracPart := s, ""
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		sep := lastComma
		if lastDot > lastComma {
			sep = lastDot
		}
		intPart, fracPart = s[:sep], s[sep+1:]
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
		}
		intPart, fracPart = s[:lastComma], s[lastComma+1:]
	case lastDot >= 0:
		// a single dot followed by one or two digits is a decimal point, otherwise grouping
		if strings.Count(s, ".") == 1 && len(s)-lastDot-1 <= 2 {
			intPart, fracPart = s[:lastDot], s[lastDot+1:]
		}
	}
	intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > 2 || !allDigits(intPart) || !allDigits(fracPart) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	for len(fracPart) < 2 {
		fracPart += "0"
	}
	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil || whole > (math.MaxInt64-99)/100 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	frac, _ := strconv.ParseInt(fracPart, 10, 64)
	c := Cents(whole*100 + frac)
	if negative {
		c = -c
	}
	return c, nil
}

// ParseRate reads a decimal price or percentage such as "0,65", "R$ 0.70" or "20%".
// NaN, infinities and out-of-range exponents are rejected.
func ParseRate(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, "R$"), "%"))
	s = strings.Replace(s, ",", ".", 1)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return v, nil
}

// ParseSilver reads an in-game silver amount such as "50.000.000", "50,000,000" or "50M"
// and enforces minimum when it is positive.
func ParseSilver(raw string, minimum int64) (int64, error) {
	s := strings.TrimSpace(raw)
	multiplier := int64(1)
	if strings.HasSuffix(strings.ToUpper(s), "M") {
		multiplier = 1_000_000
		s = strings.TrimSpace(s[:len(s)-1])
	}
	s = strings.NewReplacer(".", "", ",", "", " ", "", "_", "").Replace(s)
	if s == "" || !allDigits(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v > math.MaxInt64/multiplier {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	v *= multiplier
	if minimum > 0 && v < minimum {
		return v, fmt.Errorf("%w: %s < %s", ErrBelowMinimum, FormatSilver(v), FormatSilver(minimum))
	}
	return v, nil
}

// FormatSilver renders silver with pt-BR thousands separators: 10.000.000.
func FormatSilver(v int64) string {
	return ptBR.Sprintf("%d", v)
}

// ApproxSilver renders the public, rounded form used in history posts: ~18.0M.
func ApproxSilver(v int64) string {
	return fmt.Sprintf("~%.1fM", float64(v)/1_000_000)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
