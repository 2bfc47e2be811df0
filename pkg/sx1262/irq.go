package sx1262

import "fmt"

// EventKind classifies a decoded interrupt event.
type EventKind int

const (
	EventTxDone EventKind = iota
	EventRxDone
	EventTimeout
	EventCrcError
	EventHeaderError
	EventPreambleDetected
	EventSyncWordValid
	EventOther
)

func (k EventKind) String() string {
	switch k {
	case EventTxDone:
		return "TxDone"
	case EventRxDone:
		return "RxDone"
	case EventTimeout:
		return "Timeout"
	case EventCrcError:
		return "CrcError"
	case EventHeaderError:
		return "HeaderError"
	case EventPreambleDetected:
		return "PreambleDetected"
	case EventSyncWordValid:
		return "SyncWordValid"
	default:
		return "Other"
	}
}

// Event is a decoded interrupt delivered on the diagnostic channel. Raw is
// the full 2-byte IRQ status the event was decoded from; multiple bits may
// be set in one status read.
type Event struct {
	Kind EventKind
	Raw  uint16
}

func (e Event) String() string {
	return fmt.Sprintf("%s (raw 0x%04X)", e.Kind, e.Raw)
}

// irqReading is what OnEdge hands to the dispatcher: the latched status, or
// the error that prevented reading it.
type irqReading struct {
	raw uint16
	err error
}

// OnEdge is invoked by the host's interrupt or polling mechanism on a rising
// edge of DIO1. It performs only the minimum bus work allowed in an
// interrupt-adjacent context: read and clear the IRQ status register. The
// decoded reading is handed to the dispatcher goroutine through an ordered
// queue; all follow-up protocol work (buffer reads, re-arming) happens
// there.
func (r *Radio) OnEdge() {
	raw, err := r.dev.GetIrqStatus()
	if err == nil && raw != 0 {
		err = r.dev.ClearIrqStatus(raw)
	}
	if err == nil && raw == 0 {
		// Spurious edge, nothing latched.
		return
	}

	select {
	case r.irqCh <- irqReading{raw: raw, err: err}:
	default:
		// Queue full: the dispatcher is badly behind. Dropping would
		// reorder recovery, so record it loudly.
		r.log("sx1262: irq queue full, dropping status 0x%04X", raw)
	}
}

// surfaceEvents pushes one diagnostic Event per interesting bit in raw.
// Delivery is best effort; the channel never blocks the dispatcher.
func (r *Radio) surfaceEvents(raw uint16) {
	bits := []struct {
		mask uint16
		kind EventKind
	}{
		{IrqRxDone, EventRxDone},
		{IrqTxDone, EventTxDone},
		{IrqTimeout, EventTimeout},
		{IrqCrcErr, EventCrcError},
		{IrqHeaderErr, EventHeaderError},
		{IrqPreambleDetected, EventPreambleDetected},
		{IrqSyncWordValid, EventSyncWordValid},
	}
	known := uint16(0)
	for _, b := range bits {
		known |= b.mask
		if raw&b.mask != 0 {
			r.emitEvent(Event{Kind: b.kind, Raw: raw})
		}
	}
	if raw&^known != 0 {
		r.emitEvent(Event{Kind: EventOther, Raw: raw})
	}
}

func (r *Radio) emitEvent(e Event) {
	select {
	case r.evCh <- e:
	default:
		r.log("sx1262: event channel full, dropping %s", e)
	}
}
