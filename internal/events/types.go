package events

// Event enumerates high-level topics inside the platform core.
type Event string

const (
	EventPositionOpened    Event = "position.opened"
	EventPositionClosed    Event = "position.closed"
	EventTradeAppended     Event = "trade.appended"
	EventBacktestCompleted Event = "backtest.completed"
	EventCreditCharged     Event = "credit.charged"
)
