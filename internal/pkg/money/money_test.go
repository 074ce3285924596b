package money

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromString(t *testing.T) {
	d, err := FromString("1234.56")
	require.NoError(t, err)
	assert.Equal(t, "1234.56", d.StringFixed(2))

	_, err = FromString("not-a-number")
	assert.Error(t, err)
}

func TestRoundCents(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.005", "1.01"},
		{"1.004", "1.00"},
		{"1.995", "2.00"},
		{"0", "0.00"},
		{"1200", "1200.00"},
	}
	for _, tc := range tests {
		got := RoundCents(MustFromString(tc.in))
		assert.Equal(t, tc.want, got.StringFixed(2), "RoundCents(%s)", tc.in)
	}
}

func TestApplyMonthlyRate(t *testing.T) {
	rate := MustFromString("0.20")

	after := ApplyMonthlyRate(MustFromString("1000.00"), rate)
	assert.True(t, after.Equal(MustFromString("1200.00")))

	after = ApplyMonthlyRate(decimal.Zero, rate)
	assert.True(t, after.IsZero())

	// Round-half-up at the cent boundary: 33.33 * 1.2 = 39.996 -> 40.00.
	after = ApplyMonthlyRate(MustFromString("33.33"), rate)
	assert.Equal(t, "40.00", after.StringFixed(2))
}

func TestWithinTolerance(t *testing.T) {
	tol := MustFromString("0.01")
	assert.True(t, WithinTolerance(MustFromString("100.00"), MustFromString("100.01"), tol))
	assert.False(t, WithinTolerance(MustFromString("100.00"), MustFromString("100.02"), tol))
}

func TestAddMonths(t *testing.T) {
	loc := time.UTC

	tests := []struct {
		name string
		in   time.Time
		n    int
		want time.Time
	}{
		{
			name: "plain month",
			in:   time.Date(2025, time.March, 15, 10, 30, 0, 0, loc),
			n:    1,
			want: time.Date(2025, time.April, 15, 10, 30, 0, 0, loc),
		},
		{
			name: "jan 31 clamps to feb 28 in a non-leap year",
			in:   time.Date(2025, time.January, 31, 0, 0, 0, 0, loc),
			n:    1,
			want: time.Date(2025, time.February, 28, 0, 0, 0, 0, loc),
		},
		{
			name: "jan 31 clamps to feb 29 in a leap year",
			in:   time.Date(2024, time.January, 31, 0, 0, 0, 0, loc),
			n:    1,
			want: time.Date(2024, time.February, 29, 0, 0, 0, 0, loc),
		},
		{
			name: "may 31 clamps to jun 30",
			in:   time.Date(2025, time.May, 31, 12, 0, 0, 0, loc),
			n:    1,
			want: time.Date(2025, time.June, 30, 12, 0, 0, 0, loc),
		},
		{
			name: "december rolls into next year",
			in:   time.Date(2025, time.December, 31, 0, 0, 0, 0, loc),
			n:    2,
			want: time.Date(2026, time.February, 28, 0, 0, 0, 0, loc),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AddMonths(tc.in, tc.n))
		})
	}
}
