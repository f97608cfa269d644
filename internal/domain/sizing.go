package domain

// sizing.go — pure replica-order math. No I/O, no state.

// CopySize scales the observed size by the copy ratio and clamps it into
// [MinPositionSize, MaxPositionSize].
func CopySize(observedSize float64, rc RiskConfig) float64 {
	size := observedSize * rc.CopyRatio
	if size < rc.MinPositionSize {
		size = rc.MinPositionSize
	}
	if size > rc.MaxPositionSize {
		size = rc.MaxPositionSize
	}
	return size
}

// CopyPrice returns the limit price for the replica order. Replica orders
// are always buys — the product only acquires exposure, never shorts — so
// the slippage tolerance is applied upward to improve the odds of a fill.
// The result is capped at 1.0 since outcomes are probability-priced.
func CopyPrice(observedPrice, slippageTolerance float64) float64 {
	price := observedPrice * (1 + slippageTolerance)
	if price > 1.0 {
		price = 1.0
	}
	return price
}

// ValidateTrade rejects trades whose data cannot produce a sensible order.
func ValidateTrade(t Trade) error {
	if t.TransactionID == "" {
		return NewFailure(FailInvalidTradeData, errMissingTxID)
	}
	if t.Size <= 0 {
		return NewFailure(FailInvalidTradeData, errNonPositiveSize)
	}
	if t.Price <= 0 || t.Price > 1 {
		return NewFailure(FailInvalidTradeData, errPriceOutOfRange)
	}
	return nil
}

var (
	errMissingTxID     = fieldError("missing transaction id")
	errNonPositiveSize = fieldError("size must be > 0")
	errPriceOutOfRange = fieldError("price must be in (0, 1]")
)

type fieldError string

func (e fieldError) Error() string { return string(e) }
