package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framehub/cli/config"
	"github.com/pithecene-io/framehub/cli/render"
	"github.com/pithecene-io/framehub/journal"
)

// journalWarningThreshold is the record count above which an unlimited query
// prints a hint on a TTY.
const journalWarningThreshold = 500

// JournalCommand returns the journal command.
func JournalCommand() *cli.Command {
	return &cli.Command{
		Name:  "journal",
		Usage: "Read archived bus traffic",
		Description: `Reads records written by serve's journal, oldest first.
Storage settings follow serve: flags, then framehub.yaml.

Examples:
  framehub journal --journal-backend fs --journal-path ./journal --session abc
  framehub journal --service csPlayer --since 1h --limit 20`,
		Flags: append(ReadOnlyFlags(),
			ConfigFlag,
			&cli.StringFlag{Name: "journal-backend", Usage: "Journal storage: fs, s3"},
			&cli.StringFlag{Name: "journal-path", Usage: "Journal directory (fs) or bucket/prefix (s3)"},
			&cli.StringFlag{Name: "journal-region", Usage: "AWS region for the s3 journal"},
			&cli.StringFlag{Name: "journal-endpoint", Usage: "Custom S3 endpoint (MinIO, R2)"},
			&cli.BoolFlag{Name: "journal-s3-path-style", Usage: "Use path-style S3 addressing"},
			&cli.StringFlag{Name: "journal-dataset", Value: journal.DefaultDataset, Usage: "Journal dataset name"},
			&cli.StringFlag{Name: "session", Usage: "Only records from this session"},
			&cli.StringFlag{Name: "service", Usage: "Only records for this service"},
			&cli.StringFlag{Name: "event", Usage: "Only records for this event name"},
			&cli.DurationFlag{Name: "since", Usage: "Only records newer than this age, e.g. 30m"},
			&cli.IntFlag{Name: "limit", Usage: "Keep only the newest N records (0 = all)"},
		),
		Action: journalAction,
	}
}

func journalAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	jc := configVal(cfg, func(c *config.Config) config.JournalConfig { return c.Journal })
	storage := journal.StorageConfig{
		Backend:      resolveString(c, "journal-backend", jc.Backend),
		Path:         resolveString(c, "journal-path", jc.Path),
		Region:       resolveString(c, "journal-region", jc.Region),
		Endpoint:     resolveString(c, "journal-endpoint", jc.Endpoint),
		UsePathStyle: resolveBool(c, "journal-s3-path-style", jc.S3PathStyle),
	}
	switch storage.Backend {
	case journal.BackendFS, journal.BackendS3:
	case "":
		return cli.Exit("--journal-backend is required (fs or s3)", 2)
	default:
		return cli.Exit(fmt.Sprintf("--journal-backend must be fs or s3, got %q", storage.Backend), 2)
	}
	if c.Int("limit") < 0 {
		return cli.Exit("--limit must be >= 0", 2)
	}

	factory, err := journal.NewStoreFactory(c.Context, storage)
	if err != nil {
		return err
	}
	ds, err := journal.NewDataset(resolveString(c, "journal-dataset", jc.Dataset), factory)
	if err != nil {
		return err
	}

	filter := journal.Filter{
		Session:   c.String("session"),
		Service:   c.String("service"),
		EventName: c.String("event"),
		Limit:     c.Int("limit"),
	}
	if since := c.Duration("since"); since > 0 {
		filter.Since = time.Now().Add(-since)
	}

	records, err := journal.Query(c.Context, ds, filter)
	if errors.Is(err, journal.ErrNoRecords) {
		return r.Render([]journal.Record{})
	}
	if err != nil {
		return err
	}
	if len(records) > journalWarningThreshold && filter.Limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d records. Consider using --limit to reduce output.\n\n", len(records))
	}
	return r.Render(records)
}
