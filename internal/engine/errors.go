package engine

import "errors"

// Standard engine-level errors. The API layer maps these to transport
// responses; collaborator failures keep their own sentinels
// (marketdata.ErrMarketData, signal.ErrAnalysis).
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrPositionNotFound      = errors.New("position not found")
	ErrPositionAlreadyOpen   = errors.New("position already open for symbol")
	ErrPositionLimitExceeded = errors.New("position limit exceeded")
	ErrInternalFault         = errors.New("internal fault")
)
