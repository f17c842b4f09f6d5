package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/vortikal/vxsearch/internal/bootstrap"
	"github.com/vortikal/vxsearch/internal/config"
	"github.com/vortikal/vxsearch/internal/domain/search/querystring"
	"github.com/vortikal/vxsearch/internal/domain/search/request"
	"github.com/vortikal/vxsearch/internal/domain/search/result"
	logpkg "github.com/vortikal/vxsearch/internal/logger"
	batchuc "github.com/vortikal/vxsearch/internal/usecase/batch"
	"github.com/vortikal/vxsearch/internal/version"
)

const defaultTimeout = 30 * time.Second

func main() {
	app := &cli.App{
		Name:    "vxctl",
		Usage:   "Query and load a local vxsearch index",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Usage:   "Configuration environment (config/<env>.yaml)",
				EnvVars: []string{"ENV"},
				Value:   "local",
			},
			&cli.StringFlag{
				Name:    "token",
				Aliases: []string{"t"},
				Usage:   "Auth token to search as; empty searches anonymously",
				EnvVars: []string{"VXSEARCH_TOKEN"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Timeout for the whole command",
				Value: defaultTimeout,
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Run a ranked search and print the result page as JSON",
				ArgsUsage: "[condition...]",
				Flags:     requestFlags(),
				Action:    searchAction,
			},
			{
				Name:      "dump",
				Usage:     "Print every matching resource as JSON lines",
				ArgsUsage: "[condition...]",
				Flags:     requestFlags(),
				Action:    dumpAction,
			},
			{
				Name:      "load",
				Usage:     "Index resources from JSON lines (file argument or stdin)",
				ArgsUsage: "[file]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Resources per index batch",
						Value: batchuc.MaxBatchSize,
					},
				},
				Action: loadAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "vxctl:", err)
		os.Exit(1)
	}
}

func requestFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "query",
			Aliases: []string{"q"},
			Usage:   "Condition in name:value form (also ~, >, >=, <, <=); repeatable, ANDed",
		},
		&cli.StringFlag{
			Name:    "sort",
			Aliases: []string{"s"},
			Usage:   "Sort keys as name[:asc|:desc],...",
		},
		&cli.IntFlag{
			Name:  "cursor",
			Usage: "Number of matches to skip",
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"l"},
			Usage:   "Maximum number of results (0 uses the configured default)",
		},
		&cli.StringFlag{
			Name:  "fields",
			Usage: "Comma separated properties to print; empty prints all",
		},
	}
}

// session is an engine opened for one command.
type session struct {
	cfg    config.Config
	engine *bootstrap.Engine
	logger *zap.Logger
}

func openSession(c *cli.Context) (*session, error) {
	env := c.String("env")
	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logpkg.NewLogger(env, "vxctl", cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	engine, err := bootstrap.New(c.Context, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	return &session{cfg: cfg, engine: engine, logger: logger}, nil
}

func (s *session) close() {
	if err := s.engine.Close(); err != nil {
		s.logger.Warn("Close engine", zap.Error(err))
	}
	_ = s.logger.Sync()
}

// request assembles a search request from flags and positional conditions.
func (s *session) request(c *cli.Context, unbounded bool) (request.Request, error) {
	v := url.Values{}
	for _, q := range append(c.StringSlice("query"), c.Args().Slice()...) {
		v.Add("q", q)
	}
	if sort := c.String("sort"); sort != "" {
		v.Set("sort", sort)
	}
	if cursor := c.Int("cursor"); cursor != 0 {
		v.Set("cursor", strconv.Itoa(cursor))
	}
	limits := querystring.Limits{Default: s.cfg.Search.DefaultPageSize, Max: s.cfg.Search.MaxPageSize}
	// Dumps default to the hit cap and accept any explicit limit.
	if unbounded {
		limits = querystring.Limits{Default: s.cfg.Search.MaxHits}
	}
	if limit := c.Int("limit"); limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	if fields := c.String("fields"); fields != "" {
		v.Set("fields", fields)
	}
	return querystring.ParseRequest(v, s.engine.Schema, limits)
}

type pageOutput struct {
	Total int              `json:"total"`
	Items []resourceOutput `json:"items"`
}

type resourceOutput struct {
	URI        string                 `json:"uri"`
	Properties map[string]interface{} `json:"properties"`
}

func toOutput(ps result.PropertySet) resourceOutput {
	return resourceOutput{URI: ps.URI(), Properties: ps.Properties()}
}

func searchAction(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	req, err := s.request(c, false)
	if err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	page, err := s.engine.Search.Execute(ctx, c.String("token"), req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := pageOutput{Total: page.Total(), Items: make([]resourceOutput, 0, page.Len())}
	for _, ps := range page.Items() {
		out.Items = append(out.Items, toOutput(ps))
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}

func dumpAction(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	req, err := s.request(c, true)
	if err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	w := bufio.NewWriter(c.App.Writer)
	enc := json.NewEncoder(w)
	count := 0
	err = s.engine.Search.IterateMatching(ctx, c.String("token"), req, func(ps result.PropertySet) (bool, error) {
		count++
		return true, enc.Encode(toOutput(ps))
	})
	if flushErr := w.Flush(); err == nil {
		err = flushErr
	}
	if err != nil {
		return fmt.Errorf("dump failed after %d resources: %w", count, err)
	}
	s.logger.Debug("Dump finished", zap.Int("count", count))
	return nil
}

func loadAction(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	var in io.Reader = os.Stdin
	if path := c.Args().First(); path != "" && path != "-" {
		f, err := os.Open(path) //nolint:gosec // operator-supplied input file
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	svc := batchuc.New(s.engine.Index, s.engine.Schema, s.logger).WithMaxBatchSize(c.Int("batch-size"))
	sum, err := svc.LoadJSONLines(ctx, in)
	if err != nil {
		return fmt.Errorf("load failed after %d resources: %w", sum.Indexed, err)
	}

	s.logger.Info("Load finished", zap.Int("indexed", sum.Indexed), zap.Int("failed", sum.Failed))
	fmt.Fprintf(c.App.Writer, "indexed %d, failed %d\n", sum.Indexed, sum.Failed)
	if sum.Failed > 0 {
		return cli.Exit("some resources were rejected", 2)
	}
	return nil
}
