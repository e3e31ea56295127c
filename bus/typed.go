package bus

import "github.com/pithecene-io/framehub/types"

// On subscribes fn to the event that P describes. Data is decoded into P
// before fn runs; a decode failure counts as a subscriber failure.
//
// P must be a catalogued payload type; RawPayload has no fixed event name.
func On[P types.Payload](b *Bus, tag string, fn func(P, types.Envelope) error) Unsubscribe {
	var zero P
	return b.Subscribe(zero.EventName(), func(data any, env types.Envelope) error {
		p, err := types.DecodeAs[P](data)
		if err != nil {
			return err
		}
		return fn(p, env)
	}, tag)
}
