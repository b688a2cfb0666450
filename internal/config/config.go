package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database   DatabaseConfig
	Validation ValidationConfig
	Tax        TaxConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// ValidationConfig carries the repair and reconciliation tolerances.
//
// The values are hand-tuned against observed registrar statements, not
// derived. Treat them as calibration constants.
type ValidationConfig struct {
	// AmountResidual is the relative tolerance for |amount| vs |units|*nav.
	AmountResidual float64 `mapstructure:"amount_residual"`
	// UnitsTolerance is the absolute tolerance for unit/balance comparisons.
	UnitsTolerance float64 `mapstructure:"units_tolerance"`
	// NAVMin and NAVMax bound the plausible per-unit price range.
	NAVMin float64 `mapstructure:"nav_min"`
	NAVMax float64 `mapstructure:"nav_max"`
	// SubsetPoolCap caps the candidate pool for size>=3 subset search.
	SubsetPoolCap int `mapstructure:"subset_pool_cap"`
	// SubsetMaxSize is the largest excluded-subset size tried.
	SubsetMaxSize int `mapstructure:"subset_max_size"`
	// HoldingsDrift is the relative drift above which holding units are
	// reset from the latest transaction balance.
	HoldingsDrift float64 `mapstructure:"holdings_drift"`
}

// TaxConfig carries Indian capital-gains parameters.
type TaxConfig struct {
	LongTermDays       int     `mapstructure:"long_term_days"`
	EquitySTCGRate     float64 `mapstructure:"equity_stcg_rate"`
	EquityLTCGRate     float64 `mapstructure:"equity_ltcg_rate"`
	LTCGExemption      float64 `mapstructure:"ltcg_exemption"`
	DefaultSlabPct     float64 `mapstructure:"default_slab_pct"`
	STTRate            float64 `mapstructure:"stt_rate"`
	StampDutyRate      float64 `mapstructure:"stamp_duty_rate"`
	EquityHybridPct    float64 `mapstructure:"equity_hybrid_pct"`
	UrgencyWindowDays  int     `mapstructure:"urgency_window_days"`
	DefaultExitLoadPct float64 `mapstructure:"default_exit_load_pct"`
}

// Load reads configuration from file and env. Env var overrides use prefix FAMFOLIOZ_.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "famfolioz", "famfolioz.db"))

	v.SetDefault("validation.amount_residual", 0.01)
	v.SetDefault("validation.units_tolerance", 0.01)
	v.SetDefault("validation.nav_min", 1.0)
	v.SetDefault("validation.nav_max", 100000.0)
	v.SetDefault("validation.subset_pool_cap", 50)
	v.SetDefault("validation.subset_max_size", 4)
	v.SetDefault("validation.holdings_drift", 0.001)

	v.SetDefault("tax.long_term_days", 365)
	v.SetDefault("tax.equity_stcg_rate", 0.20)
	v.SetDefault("tax.equity_ltcg_rate", 0.125)
	v.SetDefault("tax.ltcg_exemption", 125000.0)
	v.SetDefault("tax.default_slab_pct", 30.0)
	v.SetDefault("tax.stt_rate", 0.001)
	v.SetDefault("tax.stamp_duty_rate", 0.00005)
	v.SetDefault("tax.equity_hybrid_pct", 65.0)
	v.SetDefault("tax.urgency_window_days", 300)
	v.SetDefault("tax.default_exit_load_pct", 1.0)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("FAMFOLIOZ_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "famfolioz"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("FAMFOLIOZ")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Default returns the built-in configuration without touching disk or env.
// Tests and library callers use this.
func Default() Config {
	return Config{
		Validation: ValidationConfig{
			AmountResidual: 0.01,
			UnitsTolerance: 0.01,
			NAVMin:         1.0,
			NAVMax:         100000.0,
			SubsetPoolCap:  50,
			SubsetMaxSize:  4,
			HoldingsDrift:  0.001,
		},
		Tax: TaxConfig{
			LongTermDays:       365,
			EquitySTCGRate:     0.20,
			EquityLTCGRate:     0.125,
			LTCGExemption:      125000.0,
			DefaultSlabPct:     30.0,
			STTRate:            0.001,
			StampDutyRate:      0.00005,
			EquityHybridPct:    65.0,
			UrgencyWindowDays:  300,
			DefaultExitLoadPct: 1.0,
		},
	}
}
