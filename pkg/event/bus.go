package event

import (
	"errors"
	"fmt"
)

// EventBus routes an Event onto one of three physical channels by type.
type EventBus struct {
	progress chan<- Event
	control  chan<- Event
	monitor  chan<- Event
}

var (
	errNilBus          = errors.New("event: bus is nil")
	errUnknownEvent    = errors.New("event: unknown type")
	errUnboundProgress = errors.New("event: progress channel not bound")
	errUnboundControl  = errors.New("event: control channel not bound")
	errUnboundMonitor  = errors.New("event: monitor channel not bound")
)

// NewEventBus builds a bus over caller-owned channels, leaving buffering and
// consumption strategy entirely up to the caller.
func NewEventBus(progress, control, monitor chan<- Event) *EventBus {
	return &EventBus{
		progress: progress,
		control:  control,
		monitor:  monitor,
	}
}

// Emit routes evt to the channel its type maps to.
func (b *EventBus) Emit(evt Event) error {
	if b == nil {
		return errNilBus
	}
	normalized := normalizeEvent(evt)
	if err := normalized.Validate(); err != nil {
		return err
	}

	ch, ok := channelForType(normalized.Type)
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownEvent, normalized.Type)
	}

	switch ch {
	case ChannelProgress:
		return b.dispatch(b.progress, normalized, errUnboundProgress)
	case ChannelControl:
		return b.dispatch(b.control, normalized, errUnboundControl)
	case ChannelMonitor:
		return b.dispatch(b.monitor, normalized, errUnboundMonitor)
	default:
		return fmt.Errorf("%w: %s", errUnknownEvent, normalized.Type)
	}
}

func (b *EventBus) dispatch(ch chan<- Event, evt Event, errUnbound error) error {
	if ch == nil {
		return errUnbound
	}
	ch <- evt
	return nil
}
