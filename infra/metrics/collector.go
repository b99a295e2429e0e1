package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mergeeats/core/core/events"
	"github.com/mergeeats/core/internal/eventbus"
)

var (
	acceptRaces = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_accept_attempts_total",
		Help: "Partner accept attempts by result",
	}, []string{"result"})
	offerSweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delivery_offer_sweeps_total",
		Help: "Offer broadcasts including radius widenings",
	})
)

// StartEventCollector subscribes to the event bus and derives contention
// metrics from dispatch events. It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus) {
	if bus == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				switch e := ev.(type) {
				case events.OfferEvent:
					offerSweeps.Inc()
				case events.AcceptEvent:
					if e.Won {
						acceptRaces.WithLabelValues("won").Inc()
					} else {
						acceptRaces.WithLabelValues("lost").Inc()
					}
				}
			}
		}
	}()
}
