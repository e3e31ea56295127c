package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framehub/cli/render"
	"github.com/pithecene-io/framehub/types"
)

// EventsCommand returns the events command.
func EventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "List the registered orchestration events",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "service",
				Usage: "Only events in this service namespace",
			},
			&cli.StringFlag{
				Name:  "category",
				Usage: "Only events of this category: command, notification, system",
			},
		),
		Action: eventsAction,
	}
}

func eventsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	category := types.Category(c.String("category"))
	switch category {
	case "", types.CategoryCommand, types.CategoryNotification, types.CategorySystem:
	default:
		return cli.Exit(fmt.Sprintf("invalid --category %q (must be command, notification, or system)", category), 2)
	}

	return r.Render(filterEvents(types.Catalog(), c.String("service"), category))
}

// filterEvents keeps catalog entries matching service and category.
// Empty filters match everything. The result is never nil.
func filterEvents(all []types.EventInfo, service string, category types.Category) []types.EventInfo {
	out := make([]types.EventInfo, 0, len(all))
	for _, e := range all {
		if service != "" && e.Service != service {
			continue
		}
		if category != "" && e.Category != category {
			continue
		}
		out = append(out, e)
	}
	return out
}

// toEventNames converts configured names. Empty input stays nil so that
// consumers fall back to the whole catalog.
func toEventNames(names []string) []types.EventName {
	if len(names) == 0 {
		return nil
	}
	out := make([]types.EventName, len(names))
	for i, n := range names {
		out[i] = types.EventName(n)
	}
	return out
}
