package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framehub/cli/config"
	"github.com/pithecene-io/framehub/cli/render"
	"github.com/pithecene-io/framehub/content"
	"github.com/pithecene-io/framehub/log"
)

// ContentCommand returns the content command with subcommands.
func ContentCommand() *cli.Command {
	return &cli.Command{
		Name:  "content",
		Usage: "Fetch remote content shown beside frames",
		Subcommands: []*cli.Command{
			contentPyPICommand(),
			contentOrgCommand(),
		},
	}
}

func contentFlags() []cli.Flag {
	return append(ReadOnlyFlags(),
		ConfigFlag,
		&cli.DurationFlag{
			Name:  "timeout",
			Value: content.DefaultTimeout,
			Usage: "Per-request timeout",
		},
	)
}

func contentPyPICommand() *cli.Command {
	return &cli.Command{
		Name:      "pypi",
		Usage:     "Show PyPI metadata for a package",
		ArgsUsage: "<package>",
		Flags: append(contentFlags(),
			&cli.StringFlag{
				Name:  "pypi-url",
				Value: content.DefaultPyPIBaseURL,
				Usage: "PyPI base URL",
			},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: framehub content pypi <package>", 2)
			}
			r, client, err := contentSetup(c)
			if err != nil {
				return err
			}
			info, err := client.FetchPackage(c.Context, c.Args().First())
			if err != nil {
				return fmt.Errorf("fetch %s: %w", c.Args().First(), err)
			}
			return r.Render(info)
		},
	}
}

func contentOrgCommand() *cli.Command {
	return &cli.Command{
		Name:      "org",
		Usage:     "Show the sections of an org-mode document on GitHub",
		ArgsUsage: "<github-url>",
		Flags:     contentFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: framehub content org <github-url>", 2)
			}
			r, client, err := contentSetup(c)
			if err != nil {
				return err
			}
			sections, err := client.FetchOrg(c.Context, c.Args().First())
			if err != nil {
				return fmt.Errorf("fetch %s: %w", c.Args().First(), err)
			}
			if sections == nil {
				sections = []content.Section{}
			}
			return r.Render(sections)
		},
	}
}

func contentSetup(c *cli.Context) (*render.Renderer, *content.Client, error) {
	r, err := render.NewRenderer(c)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), 2)
	}

	cc := configVal(cfg, func(c *config.Config) config.ContentConfig { return c.Content })
	pypiURL := cc.PyPIURL
	if c.Command.HasName("pypi") {
		pypiURL = resolveString(c, "pypi-url", cc.PyPIURL)
	}

	// Retry warnings go to stderr; results go to stdout.
	logger := log.NewLoggerWithWriter(&log.SessionMeta{Host: "cli"}, os.Stderr, log.ParseLevel("warn"))
	client := content.New(content.Config{
		PyPIBaseURL: pypiURL,
		Timeout:     resolveDuration(c, "timeout", cc.Timeout.Duration),
		Logger:      logger,
	})
	return r, client, nil
}
