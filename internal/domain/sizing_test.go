package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polycopy/engine/internal/domain"
)

func TestCopySize(t *testing.T) {
	rc := domain.RiskConfig{
		CopyRatio:       0.1,
		MinPositionSize: 1,
		MaxPositionSize: 100,
	}

	tests := []struct {
		name     string
		observed float64
		want     float64
	}{
		{"scales by ratio", 500, 50},
		{"clamps to minimum", 2, 1},
		{"clamps to maximum", 5000, 100},
		{"exactly minimum", 10, 1},
		{"exactly maximum", 1000, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.CopySize(tt.observed, rc))
		})
	}
}

func TestCopyPrice(t *testing.T) {
	tests := []struct {
		name     string
		observed float64
		slippage float64
		want     float64
	}{
		{"applies slippage upward", 0.50, 0.01, 0.505},
		{"zero slippage keeps price", 0.42, 0, 0.42},
		{"caps at one", 0.995, 0.01, 1.0},
		{"at the cap already", 1.0, 0.05, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, domain.CopyPrice(tt.observed, tt.slippage), 1e-9)
		})
	}
}

func TestValidateTrade(t *testing.T) {
	valid := domain.Trade{
		TransactionID: "0xtx",
		MarketID:      "0xcond",
		Outcome:       "Yes",
		Side:          domain.SideBuy,
		Size:          10,
		Price:         0.5,
	}
	assert.NoError(t, domain.ValidateTrade(valid))

	tests := []struct {
		name   string
		mutate func(*domain.Trade)
	}{
		{"missing transaction id", func(tr *domain.Trade) { tr.TransactionID = "" }},
		{"zero size", func(tr *domain.Trade) { tr.Size = 0 }},
		{"negative size", func(tr *domain.Trade) { tr.Size = -5 }},
		{"zero price", func(tr *domain.Trade) { tr.Price = 0 }},
		{"price above one", func(tr *domain.Trade) { tr.Price = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := valid
			tt.mutate(&tr)
			err := domain.ValidateTrade(tr)
			assert.Error(t, err)
			assert.Equal(t, domain.FailInvalidTradeData, domain.ClassifyFailure(err))
		})
	}
}

func TestRiskConfigValidate(t *testing.T) {
	assert.NoError(t, domain.DefaultRiskConfig().Validate())

	bad := domain.DefaultRiskConfig()
	bad.CopyRatio = 0
	assert.Error(t, bad.Validate())

	inverted := domain.DefaultRiskConfig()
	inverted.MinPositionSize = 200
	assert.Error(t, inverted.Validate())

	negSlippage := domain.DefaultRiskConfig()
	negSlippage.SlippageTolerance = -0.01
	assert.Error(t, negSlippage.Validate())
}

func TestNormalizeWallet(t *testing.T) {
	assert.Equal(t, domain.Wallet("0xabcdef"), domain.NormalizeWallet("  0xABCdef "))
	assert.Equal(t, domain.NormalizeWallet("0xABC"), domain.NormalizeWallet("0xabc"))
}

func TestClassifyFailure(t *testing.T) {
	wrapped := domain.NewFailure(domain.FailExchangeRejected, assert.AnError)
	assert.Equal(t, domain.FailExchangeRejected, domain.ClassifyFailure(wrapped))
	assert.Equal(t, domain.FailInternal, domain.ClassifyFailure(assert.AnError))
	assert.ErrorIs(t, wrapped, assert.AnError)
}
