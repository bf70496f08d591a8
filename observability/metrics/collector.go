package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"nhbmarket/core/events"
	"nhbmarket/native/market"
)

// Collector satisfies events.Emitter, counting marketplace events by type and
// tracking the number of open listings, then fanning the event out to an
// optional inner emitter.
type Collector struct {
	inner        events.Emitter
	eventsTotal  *prometheus.CounterVec
	openListings prometheus.Gauge
}

// NewCollector registers the marketplace collectors on the registry and
// returns a collector wrapping the supplied inner emitter. A nil inner
// emitter discards events after counting.
func NewCollector(reg prometheus.Registerer, inner events.Emitter) *Collector {
	if inner == nil {
		inner = events.NoopEmitter{}
	}
	c := &Collector{
		inner: inner,
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nhbmarket",
			Name:      "events_total",
			Help:      "Marketplace state transitions by event type.",
		}, []string{"type"}),
		openListings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nhbmarket",
			Name:      "open_listings",
			Help:      "Listings currently active.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.eventsTotal, c.openListings)
	}
	return c
}

// Emit implements events.Emitter.
func (c *Collector) Emit(evt events.Event) {
	if c == nil || evt == nil {
		return
	}
	eventType := evt.EventType()
	if eventType != "" {
		c.eventsTotal.WithLabelValues(eventType).Inc()
	}
	switch eventType {
	case market.EventTypeListingCreated:
		c.openListings.Inc()
	case market.EventTypeListingCancelled, market.EventTypePurchase, market.EventTypeAuctionEnded:
		c.openListings.Dec()
	}
	c.inner.Emit(evt)
}
