package frame

import (
	"github.com/pithecene-io/framehub/bus"
	"github.com/pithecene-io/framehub/log"
	"github.com/pithecene-io/framehub/types"
)

// CommandRelay forwards app:commandSent events into one frame as
// app:commandReceived direct messages.
type CommandRelay struct {
	service string
	outbox  *Outbox
	bus     *bus.Bus
	logger  *log.Logger
	unsubs  []bus.Unsubscribe
}

// NewCommandRelay creates a relay targeting the frame registered as service.
func NewCommandRelay(b *bus.Bus, service string, outbox *Outbox, logger *log.Logger) *CommandRelay {
	return &CommandRelay{
		service: service,
		outbox:  outbox,
		bus:     b,
		logger:  log.OrNop(logger),
	}
}

// Start subscribes the relay. The outbox is flushed when the target frame
// publishes system:iframeReady.
func (r *CommandRelay) Start() {
	tag := "relay:" + r.service
	r.unsubs = append(r.unsubs,
		bus.On(r.bus, tag, r.forward),
		bus.On(r.bus, tag, func(p types.FrameReadyPayload, _ types.Envelope) error {
			if p.Service == r.service {
				r.outbox.MarkLoaded()
			}
			return nil
		}),
	)
}

func (r *CommandRelay) forward(p types.CommandSentPayload, _ types.Envelope) error {
	msg := types.NewDirect(types.EventAppCommandReceived, types.CommandReceivedPayload{
		SenderName: p.SenderName,
		Command:    p.Command,
	})
	queued, err := r.outbox.Post(msg)
	if err != nil {
		return err
	}
	r.logger.Info("command relayed", map[string]any{
		"service": r.service,
		"sender":  p.SenderName,
		"queued":  queued,
	})
	return nil
}

// Stop removes the relay's subscriptions.
func (r *CommandRelay) Stop() {
	for _, u := range r.unsubs {
		u()
	}
	r.unsubs = nil
}
