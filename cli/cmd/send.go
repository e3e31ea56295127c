package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framehub/cli/render"
	"github.com/pithecene-io/framehub/transport"
	"github.com/pithecene-io/framehub/types"
)

// SendCommand returns the send command.
func SendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Act as a frame and send one message to a serve slot",
		Description: `Connects to a frame slot, sends one orchestration envelope (or a
legacy direct message with --legacy) and optionally prints what the host
sends back. The slot disconnects any frame already connected.

Examples:
  framehub send --addr 127.0.0.1:7301 --event csPlayer:packageChanged --data '{"packageName":"pkg"}'
  framehub send --addr 127.0.0.1:7301 --legacy --event csPlayer:filterChanged --data '{"csxuName":"unit"}'
  framehub send --addr 127.0.0.1:7301 --event system:iframeReady --wait 30s`,
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{Name: "addr", Required: true, Usage: "Slot address, host:port"},
			&cli.StringFlag{Name: "event", Required: true, Usage: "Event name"},
			&cli.StringFlag{Name: "data", Usage: "JSON payload"},
			&cli.StringFlag{Name: "sender", Value: "framehub-cli", Usage: "Envelope sender"},
			&cli.BoolFlag{Name: "legacy", Usage: "Send a {type, data} direct message instead of an envelope"},
			&cli.DurationFlag{Name: "wait", Usage: "Print host messages for this long after sending"},
		),
		Action: sendAction,
	}
}

func sendAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	msg, err := buildMessage(types.EventName(c.String("event")), c.String("data"), c.String("sender"), c.Bool("legacy"), time.Now())
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	client, err := transport.Dial(c.Context, c.String("addr"))
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if err := client.Send(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	if err := r.Render(msg); err != nil {
		return err
	}

	wait := c.Duration("wait")
	if wait <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(c.Context, wait)
	defer cancel()
	return client.Receive(ctx, func(m *types.Message) error {
		return r.Render(m)
	})
}

// buildMessage builds the wire message for send. Legacy messages are limited
// to the two direct selection shapes the host accepts.
func buildMessage(name types.EventName, raw, sender string, legacy bool, now time.Time) (*types.Message, error) {
	if name == "" {
		return nil, fmt.Errorf("--event is required")
	}
	data, err := parseData(raw)
	if err != nil {
		return nil, err
	}
	if legacy {
		msg := types.NewDirect(name, data)
		if !msg.IsLegacySelection() {
			return nil, fmt.Errorf("--legacy supports %s and %s, got %s",
				types.EventCSPlayerFilterChanged, types.EventCSPlayerPackageChanged, name)
		}
		return msg, nil
	}
	return types.NewEnvelope(name, data, sender, now), nil
}
