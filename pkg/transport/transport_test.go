package transport

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHappyPathIsReachable(t *testing.T) {
	path := []Status{
		StatusOpen,
		StatusAwaitingPayment,
		StatusPaid,
		StatusDeposited,
		StatusInTransit,
		StatusDelivered,
		StatusConcluded,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.Truef(t, CanTransition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
	}
	assert.True(t, StatusConcluded.Terminal())
}

func TestTerminalStatusesHaveNoExit(t *testing.T) {
	for _, terminal := range []Status{StatusConcluded, StatusCancelled, StatusRejected} {
		for _, to := range AllStatuses {
			assert.Falsef(t, CanTransition(terminal, to), "%s -> %s", terminal, to)
		}
		assert.Empty(t, terminal.Next())
	}
}

func TestCheckTransition(t *testing.T) {
	err := CheckTransition(StatusDeposited, StatusCancelled)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StatusDeposited, te.From)
	assert.Equal(t, StatusCancelled, te.To)

	assert.ErrorIs(t, CheckTransition("BOGUS", StatusPaid), ErrUnknownStatus)
	assert.NoError(t, CheckTransition(StatusAwaitingPayment, StatusRejected))
}

func TestNoSkippingSteps(t *testing.T) {
	assert.False(t, CanTransition(StatusAwaitingPayment, StatusDeposited))
	assert.False(t, CanTransition(StatusPaid, StatusInTransit))
	assert.False(t, CanTransition(StatusInTransit, StatusConcluded))
	assert.False(t, CanTransition(StatusPaid, StatusPaid))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" pago ")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, s)

	_, err = ParseStatus("LOST")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestBucketsCoverEveryStatusOnce(t *testing.T) {
	seen := map[Status]Bucket{}
	for _, b := range Buckets {
		for _, s := range b.Statuses() {
			prev, dup := seen[s]
			require.Falsef(t, dup, "%s counted in %s and %s", s, prev, b)
			seen[s] = b
		}
	}
	assert.Len(t, seen, len(AllStatuses))

	b, ok := ParseBucket("pagos")
	require.True(t, ok)
	assert.ElementsMatch(t, []Status{StatusPaid, StatusDeposited}, b.Statuses())
}

func TestPricingFee(t *testing.T) {
	p := DefaultPricing()
	cases := []struct {
		silver int64
		prio   Priority
		want   Cents
	}{
		{10_000_000, PriorityNormal, 600},
		{50_000_000, PriorityNormal, 3000},
		{350_000_000, PriorityNormal, 21000},
		{10_000_000, PriorityHigh, 720},
		{50_000_000, PriorityHigh, 3600},
		{18_500_000, PriorityNormal, 1110},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, p.Fee(tc.silver, tc.prio), "%d %s", tc.silver, tc.prio)
	}
}

func TestQuoteEnforcesMinimum(t *testing.T) {
	p := DefaultPricing()
	_, err := p.Quote(9_999_999, PriorityNormal)
	assert.ErrorIs(t, err, ErrBelowMinimum)

	_, err = p.Quote(0, PriorityNormal)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	q, err := p.Quote(100_000_000, PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, Cents(7200), q.Fee)
	assert.InDelta(t, 0.72, q.Rate, 1e-9)
}

func TestPricingValidate(t *testing.T) {
	assert.NoError(t, DefaultPricing().Validate())
	assert.Error(t, Pricing{PricePerMillion: 0}.Validate())
	assert.Error(t, Pricing{PricePerMillion: 1, HighSurcharge: -0.1}.Validate())

	for _, bad := range []Pricing{
		{PricePerMillion: math.NaN(), HighSurcharge: 0.2},
		{PricePerMillion: math.Inf(1), HighSurcharge: 0.2},
		{PricePerMillion: 0.6, HighSurcharge: math.NaN()},
		{PricePerMillion: 0.6, HighSurcharge: math.Inf(1)},
		{PricePerMillion: 1e300, HighSurcharge: 0.2},
	} {
		assert.Errorf(t, bad.Validate(), "pricing %+v", bad)
	}
}

func TestParseSilver(t *testing.T) {
	v, err := ParseSilver("50.000.000", DefaultMinimumSilver)
	require.NoError(t, err)
	assert.EqualValues(t, 50_000_000, v)

	v, err = ParseSilver("18M", DefaultMinimumSilver)
	require.NoError(t, err)
	assert.EqualValues(t, 18_000_000, v)

	v, err = ParseSilver("5,000,000", DefaultMinimumSilver)
	assert.ErrorIs(t, err, ErrBelowMinimum)
	assert.EqualValues(t, 5_000_000, v)

	_, err = ParseSilver("muito", DefaultMinimumSilver)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	for _, huge := range []string{"18446744073720M", "9223372036855M", "99999999999999999999"} {
		_, err = ParseSilver(huge, DefaultMinimumSilver)
		assert.ErrorIsf(t, err, ErrInvalidAmount, "input %q", huge)
	}
	v, err = ParseSilver("9223372036854M", DefaultMinimumSilver)
	require.NoError(t, err)
	assert.EqualValues(t, int64(9_223_372_036_854_000_000), v)
}

func TestParseBRL(t *testing.T) {
	cases := map[string]Cents{
		"40,32":       4032,
		"40.32":       4032,
		"R$ 10":       1000,
		"1.234,56":    123456,
		"1,234.56":    123456,
		"1.234":       123400,
		"0,5":         50,
		"  R$ 6,00  ": 600,
	}
	for in, want := range cases {
		got, err := ParseBRL(in)
		require.NoErrorf(t, err, "input %q", in)
		assert.Equalf(t, want, got, "input %q", in)
	}
	for _, bad := range []string{"", "abc", "1,2,3", "10,123", "92233720368547758", "922337203685477580,00"} {
		_, err := ParseBRL(bad)
		assert.ErrorIsf(t, err, ErrInvalidAmount, "input %q", bad)
	}
}

func TestParseRate(t *testing.T) {
	cases := map[string]float64{"0,65": 0.65, "R$ 0.70": 0.70, "20%": 20, " 1 ": 1}
	for in, want := range cases {
		got, err := ParseRate(in)
		require.NoErrorf(t, err, "input %q", in)
		assert.InDeltaf(t, want, got, 1e-9, "input %q", in)
	}
	for _, bad := range []string{"", "abc", "NaN", "Inf", "-inf", "1e400"} {
		_, err := ParseRate(bad)
		assert.ErrorIsf(t, err, ErrInvalidAmount, "input %q", bad)
	}
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "R$ 6,00", FormatBRL(600))
	assert.Equal(t, "R$ 1.234,56", FormatBRL(123456))
	assert.Equal(t, "-R$ 0,05", FormatBRL(-5))
	assert.Equal(t, "10.000.000", FormatSilver(10_000_000))
	assert.Equal(t, "~18.5M", ApproxSilver(18_500_000))
}

func TestTicketNaming(t *testing.T) {
	n := TicketNumberFor(42)
	assert.EqualValues(t, 1042, n)
	assert.Equal(t, "#1042", FormatTicket(n))
	assert.Equal(t, "ticket-1042", ChannelName(n))

	got, ok := ParseChannelTicket("🎫ticket-1042")
	require.True(t, ok)
	assert.EqualValues(t, 1042, got)

	got, ok = ParseChannelTicket("ticket-transport-0007")
	require.True(t, ok)
	assert.EqualValues(t, 7, got)

	_, ok = ParseChannelTicket("general")
	assert.False(t, ok)
}

func TestShortfall(t *testing.T) {
	tr := &Transport{Fee: 3000, Received: 2500}
	assert.Equal(t, Cents(500), tr.Shortfall())
	tr.Received = 3100
	assert.Zero(t, tr.Shortfall())
	assert.Equal(t, "? → Caerleon", (&Transport{}).Route())
}
