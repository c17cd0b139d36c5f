package modem

import (
	"fmt"
	"log/slog"
	"sync"

	"i4.energy/across/wifigw/at"
)

// Event is anything the driver reports to observers.
type Event interface {
	Kind() string
}

// LineSent is published after a command line has been written and flushed.
type LineSent struct {
	Line string `json:"line"`
}

// LineReceived is published for every non-blank line read from the module,
// before indication filtering.
type LineReceived struct {
	Line string `json:"line"`
}

// IndicationReceived is published for every parsed asynchronous indication.
type IndicationReceived struct {
	at.Indication
}

// HTTPData carries one chunk of an HTTP response body.
type HTTPData struct {
	Chunk string `json:"chunk"`
}

func (LineSent) Kind() string           { return "line_sent" }
func (LineReceived) Kind() string       { return "line_received" }
func (IndicationReceived) Kind() string { return "indication" }
func (HTTPData) Kind() string           { return "http_data" }

// Observer receives driver events. Observers run synchronously on the
// goroutine that produced the event and must not call back into the Modem.
type Observer func(Event)

type observerEntry struct {
	id int
	fn Observer
}

// observers is an ordered fan-out list. A panicking observer is logged and
// skipped; the remaining observers are still notified.
type observers struct {
	mu     sync.RWMutex
	nextID int
	list   []observerEntry
	logger *slog.Logger
}

func (o *observers) add(fn Observer) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	id := o.nextID
	o.list = append(o.list, observerEntry{id: id, fn: fn})

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, e := range o.list {
			if e.id == id {
				o.list = append(o.list[:i:i], o.list[i+1:]...)
				return
			}
		}
	}
}

func (o *observers) publish(ev Event) {
	o.mu.RLock()
	list := o.list
	o.mu.RUnlock()

	for _, e := range list {
		o.call(e, ev)
	}
}

func (o *observers) call(e observerEntry, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("observer panicked", "event", ev.Kind(), "observer", e.id, "panic", fmt.Sprint(r))
		}
	}()
	e.fn(ev)
}

// Subscribe registers fn for every future event and returns a function that
// removes it again. Observers are notified in subscription order.
func (m *Modem) Subscribe(fn Observer) (unsubscribe func()) {
	return m.observers.add(fn)
}

// Indications returns a read-only channel that receives asynchronous
// indications (WiFi up/down, socket data pending, resets). The channel is
// buffered; indications are dropped when it is not consumed fast enough.
func (m *Modem) Indications() <-chan at.Indication {
	return m.indChan
}

func (m *Modem) queueIndication(ev Event) {
	ind, ok := ev.(IndicationReceived)
	if !ok {
		return
	}
	select {
	case m.indChan <- ind.Indication:
	default:
		m.logger.Warn("indication channel full, dropping", "code", ind.Code, "description", ind.Description)
	}
}
