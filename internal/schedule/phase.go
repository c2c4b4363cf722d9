package schedule

// Phase is one of the four points in a trading day's lifecycle at which the
// engine is invoked.
type Phase int

const (
	PhaseWillOpen Phase = iota
	PhaseOpen
	PhaseWhileOpen
	PhaseClose
)

func (p Phase) String() string {
	switch p {
	case PhaseWillOpen:
		return "will_open"
	case PhaseOpen:
		return "open"
	case PhaseWhileOpen:
		return "while_open"
	case PhaseClose:
		return "close"
	}
	return "unknown"
}

// Handlers are the per-phase callbacks a scheduler drives. Any nil handler
// is skipped.
type Handlers struct {
	MarketWillOpen  func()
	MarketOpen      func()
	WhileMarketOpen func()
	MarketClose     func()
}

func (h Handlers) fire(p Phase) {
	var f func()
	switch p {
	case PhaseWillOpen:
		f = h.MarketWillOpen
	case PhaseOpen:
		f = h.MarketOpen
	case PhaseWhileOpen:
		f = h.WhileMarketOpen
	case PhaseClose:
		f = h.MarketClose
	}
	if f != nil {
		f()
	}
}
