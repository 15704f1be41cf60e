package observability

import (
	"strconv"

	"otcdesk/core/events"
	"otcdesk/core/types"
	"otcdesk/native/otc"
)

type payloadCarrier interface {
	Event() *types.Event
}

// EventRecorder mirrors engine events into Prometheus counters and keeps the
// price gauges current. It satisfies events.Emitter and is meant to sit next
// to the audit journal in a MultiEmitter.
type EventRecorder struct {
	metrics *DeskMetrics
}

// NewEventRecorder returns a recorder bound to the process metrics.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{metrics: Desk()}
}

// Emit implements events.Emitter.
func (r *EventRecorder) Emit(evt events.Event) {
	if r == nil || evt == nil {
		return
	}
	r.metrics.RecordEvent(evt.EventType())
	if evt.EventType() != otc.EventTypePricesUpdated {
		return
	}
	carrier, ok := evt.(payloadCarrier)
	if !ok || carrier.Event() == nil {
		return
	}
	attrs := carrier.Event().Attributes
	price, err := strconv.ParseUint(attrs["priceUsd"], 10, 64)
	if err != nil {
		return
	}
	r.metrics.RecordPrice(attrs["asset"], attrs["source"], price)
}
