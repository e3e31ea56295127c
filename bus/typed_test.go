package bus

import (
	"testing"

	"github.com/pithecene-io/framehub/types"
)

func TestOn_DecodesPayload(t *testing.T) {
	b := New(nil)
	var got types.FilterChangedPayload
	var sender string

	On(b, "typed", func(p types.FilterChangedPayload, env types.Envelope) error {
		got, sender = p, env.Sender
		return nil
	})

	res := b.Publish(types.EventCSPlayerFilterChanged, map[string]any{"csxuName": "unit-A"}, "csPlayer")

	if res.Delivered != 1 {
		t.Fatalf("Result = %+v", res)
	}
	if got.CSXUName != "unit-A" || sender != "csPlayer" {
		t.Errorf("got %+v from %q", got, sender)
	}
}

func TestOn_DecodeFailureCountsAsFailure(t *testing.T) {
	b := New(nil)
	called := false
	On(b, "typed", func(types.PauseDagPayload, types.Envelope) error {
		called = true
		return nil
	})

	res := b.Publish(types.EventAirflowPauseDag, map[string]any{"paused": "not-a-bool"}, "")

	if called {
		t.Error("handler ran despite decode failure")
	}
	if res.Failed != 1 {
		t.Errorf("Result = %+v, want one failure", res)
	}
}
