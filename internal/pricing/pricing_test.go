package pricing

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrice_PaidTicket(t *testing.T) {
	calc := NewCalculator(DefaultPolicy())

	b, err := calc.Price(10000, 3)

	require.NoError(t, err)
	assert.Equal(t, int64(30000), b.Subtotal)
	assert.Equal(t, int64(1500), b.PlatformFee)
	assert.Equal(t, int64(2250), b.VAT)
	assert.Equal(t, int64(33750), b.Total)
	assert.False(t, b.Free())
}

func TestPrice_FreeTicketHasNoFees(t *testing.T) {
	calc := NewCalculator(DefaultPolicy())

	b, err := calc.Price(0, 5)

	require.NoError(t, err)
	assert.Zero(t, b.Subtotal)
	assert.Zero(t, b.PlatformFee)
	assert.Zero(t, b.VAT)
	assert.Zero(t, b.Total)
	assert.True(t, b.Free())
}

func TestPrice_RoundsHalfUp(t *testing.T) {
	calc := NewCalculator(DefaultPolicy())

	// 5% of 30 = 1.5 -> 2, 7.5% of 30 = 2.25 -> 2
	b, err := calc.Price(30, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.PlatformFee)
	assert.Equal(t, int64(2), b.VAT)
	assert.Equal(t, int64(34), b.Total)

	// 7.5% of 20 = 1.5 -> 2
	b, err = calc.Price(20, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.PlatformFee)
	assert.Equal(t, int64(2), b.VAT)
}

func TestPrice_Invalid(t *testing.T) {
	calc := NewCalculator(DefaultPolicy())

	_, err := calc.Price(-1, 1)
	assert.True(t, errors.Is(err, ErrInvalidPrice))

	_, err = calc.Price(100, 0)
	assert.True(t, errors.Is(err, ErrInvalidPrice))
}

func TestPrice_RejectsOverflow(t *testing.T) {
	calc := NewCalculator(DefaultPolicy())

	_, err := calc.Price(math.MaxInt64/2, 3)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	// the subtotal fits but subtotal * bps does not
	_, err = calc.Price(math.MaxInt64/100, 1)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	b, err := calc.Price(MaxUnitPrice, DefaultMaxQuantity)
	require.NoError(t, err)
	assert.Positive(t, b.Total)
	assert.Equal(t, b.Subtotal+b.PlatformFee+b.VAT, b.Total)
}

func TestPrice_CustomPolicy(t *testing.T) {
	calc := NewCalculator(Policy{PlatformFeeBps: 1000, VATBps: 0, MaxQuantity: 4, Currency: "USD"})

	b, err := calc.Price(999, 2)

	require.NoError(t, err)
	assert.Equal(t, int64(1998), b.Subtotal)
	assert.Equal(t, int64(200), b.PlatformFee)
	assert.Zero(t, b.VAT)
	assert.Equal(t, "USD", b.Currency)
}
