package engine

import "errors"

// Per-asset execution failures. These never abort the rest of a decision
// batch; they are reported inline on the asset's ExecutionResult.
var (
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrPositionNotFound = errors.New("position not found")
	ErrUnknownSignal    = errors.New("unknown signal")
	ErrNoMarketPrice    = errors.New("no market price")
)
