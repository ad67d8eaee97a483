package notification

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/live"
	"github.com/DC0618/nvda-rsi-20-65/internal/model"
)

const sendTimeout = 10 * time.Second

// Alerter turns fills into alerts and delivers them off the driver
// goroutine. Bars are ignored.
type Alerter struct {
	n      Notifier
	symbol string
	ch     chan Alert

	// OnFailure, if set, is called for every failed delivery.
	OnFailure func(error)

	closeOnce sync.Once
	done      chan struct{}
}

var _ live.Observer = (*Alerter)(nil)

// NewAlerter creates an alerter with a queue of queueSize pending alerts.
// Start it with Run and stop it with Close.
func NewAlerter(n Notifier, symbol string, queueSize int) *Alerter {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Alerter{
		n:      n,
		symbol: symbol,
		ch:     make(chan Alert, queueSize),
		done:   make(chan struct{}),
	}
}

func (a *Alerter) OnBar(live.BarUpdate) {}

// OnTrade queues an alert for the fill. A full queue drops it.
func (a *Alerter) OnTrade(ev model.TradeEvent) {
	defer func() {
		if recover() != nil {
			log.Printf("[notify] alert after close dropped: %s", ev.Side)
		}
	}()
	select {
	case a.ch <- TradeAlert(a.symbol, ev):
	default:
		log.Printf("[notify] queue full, alert dropped: %s %s", ev.Side, ev.Time.Format(time.RFC3339))
	}
}

// Run delivers queued alerts until Close is called and the queue is empty.
func (a *Alerter) Run() {
	defer close(a.done)
	for alert := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := a.n.Send(ctx, alert)
		cancel()
		if err != nil {
			log.Printf("[notify] send %q failed: %v", alert.Title, err)
			if a.OnFailure != nil {
				a.OnFailure(err)
			}
		}
	}
}

// Close stops accepting alerts and waits for Run to deliver the rest.
func (a *Alerter) Close() {
	a.closeOnce.Do(func() { close(a.ch) })
	<-a.done
}

// TradeAlert formats a fill. Stop-loss exits are raised as warnings.
func TradeAlert(symbol string, ev model.TradeEvent) Alert {
	alert := Alert{Level: AlertInfo, Time: ev.Time, Symbol: symbol, Trade: &ev}
	price := model.FormatFixed(ev.Price, 4)

	if !ev.IsExit() {
		alert.Title = fmt.Sprintf("%s BUY @ %s", symbol, price)
		alert.Message = fmt.Sprintf("RSI %s, %s shares", model.FormatFixed(ev.RSI, 2), model.FormatFixed(ev.Shares, 4))
		return alert
	}

	if ev.Reason == model.ReasonStop {
		alert.Level = AlertWarning
	}
	alert.Title = fmt.Sprintf("%s SELL (%s) @ %s", symbol, ev.Reason, price)
	alert.Message = fmt.Sprintf("return %s%%, RSI %s, cash %s",
		model.FormatFixed(ev.ReturnPct, 3), model.FormatFixed(ev.RSI, 2), model.FormatFixed(ev.Cash, 2))
	return alert
}
