package domain

import "fmt"

// RiskConfig bounds every replica order. One instance per deployment; the
// executor takes it per call so a per-user override slots in later.
type RiskConfig struct {
	CopyRatio         float64 // fraction of the observed size to copy
	MinPositionSize   float64 // shares
	MaxPositionSize   float64 // shares
	SlippageTolerance float64 // 0.01 = willing to pay 1% over the observed price
}

// DefaultRiskConfig mirrors the deployment defaults.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		CopyRatio:         0.1,
		MinPositionSize:   1,
		MaxPositionSize:   100,
		SlippageTolerance: 0.01,
	}
}

// Validate rejects configurations that could produce unbounded or inverted orders.
func (rc RiskConfig) Validate() error {
	if rc.CopyRatio <= 0 {
		return fmt.Errorf("risk config: copy ratio must be > 0, got %v", rc.CopyRatio)
	}
	if rc.MinPositionSize < 0 {
		return fmt.Errorf("risk config: min position size must be >= 0, got %v", rc.MinPositionSize)
	}
	if rc.MinPositionSize > rc.MaxPositionSize {
		return fmt.Errorf("risk config: min %v exceeds max %v", rc.MinPositionSize, rc.MaxPositionSize)
	}
	if rc.SlippageTolerance < 0 {
		return fmt.Errorf("risk config: slippage tolerance must be >= 0, got %v", rc.SlippageTolerance)
	}
	return nil
}
