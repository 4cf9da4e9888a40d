package config_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"matchcore/internal/config"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func validConfig() config.Config {
	return config.Config{
		Symbols: []config.SymbolConfig{
			{Symbol: "BTC-USD", MakerFee: dec("0.001"), TakerFee: dec("0.002")},
		},
		Persistence: config.PersistenceConfig{DataDir: "./data"},
		Broadcast:   config.BroadcastConfig{DepthLevels: 10},
	}
}

func TestValidate_RequiresAtLeastOneSymbol(t *testing.T) {
	cfg := validConfig()
	cfg.Symbols = nil
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsDuplicateSymbols(t *testing.T) {
	cfg := validConfig()
	cfg.Symbols = append(cfg.Symbols, cfg.Symbols[0])
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNegativeFees(t *testing.T) {
	cfg := validConfig()
	cfg.Symbols[0].MakerFee = dec("-0.001")
	assert.Error(t, cfg.Validate())
}

func TestValidate_RequiresDataDir(t *testing.T) {
	cfg := validConfig()
	cfg.Persistence.DataDir = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_RequiresPositiveDepthLevels(t *testing.T) {
	cfg := validConfig()
	cfg.Broadcast.DepthLevels = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}
