package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/koustreak/filegate/internal/archive"
	"github.com/koustreak/filegate/internal/config"
	"github.com/koustreak/filegate/internal/filestore"
	"github.com/koustreak/filegate/internal/logger"
	"github.com/koustreak/filegate/internal/metrics"
	"github.com/koustreak/filegate/internal/paging"
	"github.com/koustreak/filegate/internal/server"
)

func pageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "page",
			Usage: "Page number, starting at 1",
			Value: 1,
		},
		&cli.IntFlag{
			Name:  "page-size",
			Usage: "Objects per page (defaults to the configured page size)",
		},
		&cli.StringFlag{
			Name:  "sort",
			Usage: "Page order: store or newest",
			Value: "store",
		},
	}
}

func main() {
	app := &cli.App{
		Name:  "filegate",
		Usage: "Object store file service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				EnvVars: []string{"FILEGATE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "bucket",
				Usage: "Bucket to serve, overriding the configuration",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address, overriding the configuration",
					},
				},
				Action: runServe,
			},
			{
				Name:   "ls",
				Usage:  "Print one page of the bucket listing as JSON",
				Flags:  pageFlags(),
				Action: runList,
			},
			{
				Name:  "export",
				Usage: "Write one page of the bucket as a zip archive",
				Flags: append(pageFlags(), &cli.StringFlag{
					Name:    "out",
					Aliases: []string{"o"},
					Usage:   "Output file (default files-page-N.zip)",
				}),
				Action: runExport,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		stop()
		logger.Global().ErrorWith("filegate failed", err, nil)
		os.Exit(1)
	}
}

// setup loads configuration, applies flag overrides, installs the global
// logger and opens the store. The caller closes the store.
func setup(c *cli.Context, obs filestore.Observer) (*config.Config, filestore.Store, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Merge(flagOverrides(c))
	logger.SetGlobal(logger.New(cfg.Logging.Logger()))

	store, err := server.OpenStore(c.Context, &cfg.Store, obs)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

// flagOverrides collects the command-line settings that win over file and
// environment values.
func flagOverrides(c *cli.Context) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Addr: c.String("addr")},
		Store:  filestore.Config{Bucket: c.String("bucket")},
	}
}

func pageRequest(c *cli.Context, cfg *config.Config) (paging.PageRequest, error) {
	order, err := paging.ParseOrder(c.String("sort"))
	if err != nil {
		return paging.PageRequest{}, err
	}
	req := paging.PageRequest{
		Page:     c.Int("page"),
		PageSize: c.Int("page-size"),
		Order:    order,
	}
	if req.PageSize == 0 {
		req.PageSize = cfg.Pagination.DefaultPageSize
	}
	return req, req.Validate()
}

func runServe(c *cli.Context) error {
	m := metrics.New()
	cfg, store, err := setup(c, m.Storage)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := cfg.Convert.EnsureScratchDir(); err != nil {
		return fmt.Errorf("scratch dir: %w", err)
	}

	if err := store.Ping(c.Context); err != nil {
		logger.Global().WarnWith("store not reachable at startup", err, map[string]any{"bucket": cfg.Store.Bucket})
	}

	return server.New(cfg, store, m, logger.Global()).Run(c.Context)
}

func runList(c *cli.Context) error {
	cfg, store, err := setup(c, nil)
	if err != nil {
		return err
	}
	defer store.Close()
	req, err := pageRequest(c, cfg)
	if err != nil {
		return err
	}

	res, err := paging.New(store, cfg.Store.BatchSize).ListPage(c.Context, cfg.Store.Bucket, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func runExport(c *cli.Context) error {
	cfg, store, err := setup(c, nil)
	if err != nil {
		return err
	}
	defer store.Close()
	req, err := pageRequest(c, cfg)
	if err != nil {
		return err
	}

	out := c.String("out")
	if out == "" {
		out = fmt.Sprintf("files-page-%d.zip", req.Page)
	}

	var f *os.File
	exporter := archive.New(store, paging.New(store, cfg.Store.BatchSize))
	res, err := exporter.ExportPage(c.Context, cfg.Store.Bucket, req, func() (io.Writer, error) {
		created, cerr := os.Create(out)
		if cerr != nil {
			return nil, cerr
		}
		f = created
		return f, nil
	})
	if f != nil {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		if f != nil {
			_ = os.Remove(out)
		}
		return err
	}

	logger.Global().InfoWith("page exported", map[string]any{
		"file":    out,
		"entries": res.Entries,
		"bytes":   res.Bytes,
	})
	return nil
}
