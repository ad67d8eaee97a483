package live

import (
	"github.com/DC0618/nvda-rsi-20-65/internal/indicator"
	"github.com/DC0618/nvda-rsi-20-65/internal/model"
)

// BarUpdate is emitted for every bar the engine processes.
type BarUpdate struct {
	Symbol   string             `json:"symbol"`
	Bar      model.Bar          `json:"bar"`
	RSI      float64            `json:"rsi"`
	Equity   float64            `json:"equity"`
	Long     bool               `json:"long"`
	Snapshot indicator.Snapshot `json:"-"`
}

// Observer receives the driver's side-channel events. Implementations are
// called on the driver goroutine and must not block.
type Observer interface {
	OnBar(BarUpdate)
	OnTrade(model.TradeEvent)
}

// PollOutcome classifies one iteration of the polling loop.
type PollOutcome int

const (
	PollBar     PollOutcome = iota // new bar processed
	PollStale                      // same (or older) timestamp as the last bar
	PollEmpty                      // source had no data
	PollError                      // source returned an error
	PollInvalid                    // bar dropped for a malformed price
)

func (o PollOutcome) String() string {
	switch o {
	case PollBar:
		return "bar"
	case PollStale:
		return "stale"
	case PollEmpty:
		return "empty"
	case PollError:
		return "error"
	case PollInvalid:
		return "invalid"
	}
	return "unknown"
}

// PollObserver is optionally implemented by observers that track loop health.
type PollObserver interface {
	OnPoll(PollOutcome)
}

// MultiObserver fans events out to every member in order.
type MultiObserver []Observer

func (m MultiObserver) OnBar(u BarUpdate) {
	for _, o := range m {
		o.OnBar(u)
	}
}

func (m MultiObserver) OnTrade(ev model.TradeEvent) {
	for _, o := range m {
		o.OnTrade(ev)
	}
}

func (m MultiObserver) OnPoll(out PollOutcome) {
	for _, o := range m {
		if po, ok := o.(PollObserver); ok {
			po.OnPoll(out)
		}
	}
}

// nopObserver is used when the driver has no observer configured.
type nopObserver struct{}

func (nopObserver) OnBar(BarUpdate)          {}
func (nopObserver) OnTrade(model.TradeEvent) {}
