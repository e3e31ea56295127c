package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pithecene-io/framehub/bus"
	"github.com/pithecene-io/framehub/cli/render"
	"github.com/pithecene-io/framehub/orchestra"
	"github.com/pithecene-io/framehub/types"
)

const stdinHelp = `commands:
  publish <event> [json]          publish on the bus as the dashboard
  send <service> <event> [json]   send an envelope to a frame
  command <sender> <text>         publish app:commandSent
  state                           print the selection state
  status                          print frame status
  log                             print the bus event log
  clear                           clear the selection state
  quit                            stop the session`

// publishResult is printed after publish and command lines.
type publishResult struct {
	Event       types.EventName `json:"event"`
	Subscribers int             `json:"subscribers"`
	Delivered   int             `json:"delivered"`
	Failed      int             `json:"failed"`
}

// sendResult is printed after send lines.
type sendResult struct {
	Service string          `json:"service"`
	Event   types.EventName `json:"event"`
	Result  string          `json:"result"`
}

type stdinError struct {
	Error string `json:"error"`
}

// runStdinCommands executes one console command per input line against hub.
// Work that touches the session runs on the event loop. It returns true when
// the user asked to quit, false on end of input or cancellation.
func runStdinCommands(ctx context.Context, in io.Reader, out io.Writer, hub *orchestra.Context) (bool, error) {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	r := render.NewRendererWithWriter(render.FormatJSON, true, out)
	for {
		select {
		case <-ctx.Done():
			return false, nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return false, err
				default:
					return false, nil
				}
			}
			quit, err := execLine(ctx, hub, r, line)
			if err != nil {
				if rerr := r.Render(stdinError{Error: err.Error()}); rerr != nil {
					return false, rerr
				}
			}
			if quit {
				return true, nil
			}
		}
	}
}

// execLine runs one console line. Returned errors are reported to the user,
// not fatal.
func execLine(ctx context.Context, hub *orchestra.Context, r *render.Renderer, line string) (bool, error) {
	verb, rest := splitWord(strings.TrimSpace(line))
	switch verb {
	case "":
		return false, nil
	case "quit", "exit":
		return true, nil
	case "help":
		_, err := fmt.Fprintln(r.Writer(), stdinHelp)
		return false, err

	case "publish":
		name, raw := splitWord(rest)
		if name == "" {
			return false, fmt.Errorf("usage: publish <event> [json]")
		}
		data, err := parseData(raw)
		if err != nil {
			return false, err
		}
		return false, publishAndReport(ctx, hub, r, types.EventName(name), data)

	case "command":
		sender, text := splitWord(rest)
		if sender == "" || text == "" {
			return false, fmt.Errorf("usage: command <sender> <text>")
		}
		payload := types.CommandSentPayload{SenderName: sender, Command: text}
		return false, publishAndReport(ctx, hub, r, types.EventAppCommandSent, payload)

	case "send":
		service, tail := splitWord(rest)
		name, raw := splitWord(tail)
		if service == "" || name == "" {
			return false, fmt.Errorf("usage: send <service> <event> [json]")
		}
		data, err := parseData(raw)
		if err != nil {
			return false, err
		}
		res, err := hub.Send(ctx, service, types.EventName(name), data)
		if err != nil {
			return false, err
		}
		return false, r.Render(sendResult{Service: service, Event: types.EventName(name), Result: res.String()})

	case "state":
		return false, r.Render(hub.State.Get())
	case "status":
		return false, r.Render(hub.Frames.Status())
	case "log":
		return false, r.Render(hub.Bus.EventLog())
	case "clear":
		if err := hub.Loop.Wait(ctx, func() { hub.State.Clear() }); err != nil {
			return false, err
		}
		return false, r.Render(hub.State.Get())

	default:
		return false, fmt.Errorf("unknown command %q (try help)", verb)
	}
}

func publishAndReport(ctx context.Context, hub *orchestra.Context, r *render.Renderer, name types.EventName, data any) error {
	var res bus.Result
	if err := hub.Loop.Wait(ctx, func() {
		res = hub.Bus.Publish(name, data, types.SenderDashboard)
	}); err != nil {
		return err
	}
	return r.Render(publishResult{
		Event:       name,
		Subscribers: res.Subscribers,
		Delivered:   res.Delivered,
		Failed:      res.Failed,
	})
}

// splitWord returns the first whitespace-delimited word and the trimmed rest.
func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

// parseData decodes an optional JSON argument. Empty input is nil data.
func parseData(raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("invalid JSON data: %w", err)
	}
	return v, nil
}
