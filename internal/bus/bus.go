// Package bus delivers analysis and pattern events to subscribers.
// Community tier runs on in-process channels; Pro tier runs on NATS so
// alert consumers can live outside the process.
package bus

import (
	"fmt"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// New creates the event bus for the configured tier. An empty type
// defaults to the channel bus so tests and the seed tool need no
// broker.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
