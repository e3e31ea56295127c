package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framehub/transport"
	"github.com/pithecene-io/framehub/types"
)

// StubCommand returns the stub command.
func StubCommand() *cli.Command {
	return &cli.Command{
		Name:  "stub",
		Usage: "Run a test-stub frame that prints forwarded commands",
		Description: `Connects to a frame slot as a minimal frame: announces readiness,
optionally sends legacy selection messages, then prints every
app:commandReceived message until interrupted.

Examples:
  framehub stub --addr 127.0.0.1:7301 --service csPlayer
  framehub stub --addr 127.0.0.1:7301 --csxu facter --package pycs`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Required: true, Usage: "Slot address, host:port"},
			&cli.StringFlag{Name: "service", Value: types.SenderTestStub, Usage: "Service name announced in system:iframeReady"},
			&cli.StringFlag{Name: "csxu", Usage: "Send a legacy csPlayer:filterChanged with this unit"},
			&cli.StringFlag{Name: "package", Usage: "Send a legacy csPlayer:packageChanged with this package"},
		},
		Action: stubAction,
	}
}

func stubAction(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := transport.Dial(ctx, c.String("addr"))
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	for _, msg := range stubGreeting(c.String("service"), c.String("csxu"), c.String("package"), time.Now()) {
		if err := client.Send(msg); err != nil {
			return fmt.Errorf("send %s: %w", msg.Type, err)
		}
	}
	fmt.Fprintf(os.Stderr, "stub connected to %s; waiting for commands\n", c.String("addr"))

	return runStub(ctx, client, c.App.Writer)
}

// stubGreeting returns the messages a stub sends after connecting: the ready
// announcement, then any legacy selections.
func stubGreeting(service, csxu, pkg string, now time.Time) []*types.Message {
	msgs := []*types.Message{
		types.NewEnvelope(types.EventFrameReady, types.FrameReadyPayload{Service: service}, service, now),
	}
	if csxu != "" {
		msgs = append(msgs, types.NewDirect(types.EventCSPlayerFilterChanged, map[string]any{"csxuName": csxu}))
	}
	if pkg != "" {
		msgs = append(msgs, types.NewDirect(types.EventCSPlayerPackageChanged, map[string]any{"packageName": pkg}))
	}
	return msgs
}

// runStub prints forwarded commands until the connection or ctx ends.
func runStub(ctx context.Context, client *transport.Client, out io.Writer) error {
	return client.Receive(ctx, func(m *types.Message) error {
		line, ok := describeStubMessage(m)
		if !ok {
			return nil
		}
		_, err := fmt.Fprintln(out, line)
		return err
	})
}

// describeStubMessage formats a host message for the stub's output.
// Messages the stub does not understand are skipped.
func describeStubMessage(m *types.Message) (string, bool) {
	switch {
	case types.EventName(m.Type) == types.EventAppCommandReceived:
		p, err := types.DecodeAs[types.CommandReceivedPayload](m.Data)
		if err != nil {
			return "", false
		}
		return fmt.Sprintf("Received From App: [%s] %s", p.SenderName, p.Command), true
	case m.IsEnvelope():
		return fmt.Sprintf("Received %s from %s: %v", m.EventName, m.Sender, m.Data), true
	default:
		return "", false
	}
}
