package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"matchcore/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestValidate_RejectsNonPositiveQuantity(t *testing.T) {
	o := &domain.Order{OrderType: domain.Market, Quantity: dec("0")}
	assert.ErrorIs(t, domain.Validate(o), domain.ErrInvalidQuantity)
}

func TestValidate_LimitRequiresPrice(t *testing.T) {
	o := &domain.Order{OrderType: domain.Limit, Quantity: dec("1")}
	assert.ErrorIs(t, domain.Validate(o), domain.ErrMissingPrice)
}

func TestValidate_MarketForbidsPrice(t *testing.T) {
	o := &domain.Order{OrderType: domain.Market, Quantity: dec("1"), HasPrice: true, Price: dec("10")}
	assert.ErrorIs(t, domain.Validate(o), domain.ErrPriceForbidden)
}

func TestValidate_IOCAndFOKPriceOptional(t *testing.T) {
	ioc := &domain.Order{OrderType: domain.IOC, Quantity: dec("1")}
	assert.NoError(t, domain.Validate(ioc))

	fok := &domain.Order{OrderType: domain.FOK, Quantity: dec("1"), HasPrice: true, Price: dec("5")}
	assert.NoError(t, domain.Validate(fok))
}

func TestValidate_NonPositivePriceRejected(t *testing.T) {
	o := &domain.Order{OrderType: domain.Limit, Quantity: dec("1"), HasPrice: true, Price: dec("0")}
	assert.ErrorIs(t, domain.Validate(o), domain.ErrInvalidPrice)
}

func TestRemainingQuantity_NeverNegative(t *testing.T) {
	o := domain.Order{Quantity: dec("10"), FilledQuantity: dec("15")}
	assert.True(t, o.RemainingQuantity().IsZero())
}

func TestComputeFees_ExactDecimalArithmetic(t *testing.T) {
	makerFee, takerFee := domain.ComputeFees(dec("100.50"), dec("3"), dec("0.001"), dec("0.002"))
	assert.True(t, makerFee.Equal(dec("0.3015")), "maker fee: got %s", makerFee)
	assert.True(t, takerFee.Equal(dec("0.603")), "taker fee: got %s", takerFee)
}

func TestIsMarketable(t *testing.T) {
	assert.True(t, (&domain.Order{OrderType: domain.Market}).IsMarketable())
	assert.True(t, (&domain.Order{OrderType: domain.IOC}).IsMarketable())
	assert.True(t, (&domain.Order{OrderType: domain.FOK}).IsMarketable())
	assert.False(t, (&domain.Order{OrderType: domain.Limit}).IsMarketable())
}
