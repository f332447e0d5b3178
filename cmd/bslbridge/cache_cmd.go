package main

import (
	"fmt"
	"time"

	"github.com/bslbridge/bslbridge/internal/cache"
	"github.com/bslbridge/bslbridge/internal/output"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

func cacheCmd() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear the engine result cache",
		Subcommands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "Show cache entry counts and sizes",
				Action: runCacheStatsCmd,
			},
			{
				Name:   "clear",
				Usage:  "Remove all cached engine results",
				Action: runCacheClearCmd,
			},
		},
	}
}

func openCache(c *cli.Context) (*env, *cache.Cache, error) {
	e, err := loadEnv(c)
	if err != nil {
		return nil, nil, err
	}
	// --no-cache disables reuse during analysis, not inspection.
	rc, err := cache.New(e.cfg.Cache.Dir, time.Duration(e.cfg.Cache.TTL)*time.Hour, true)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}
	return e, rc, nil
}

func runCacheStatsCmd(c *cli.Context) error {
	e, rc, err := openCache(c)
	if err != nil {
		return err
	}
	stats, err := rc.Stats()
	if err != nil {
		return err
	}

	formatter, err := e.formatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	age := func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return time.Since(t).Round(time.Second).String()
	}
	rows := [][]string{
		{"Directory", stats.Dir},
		{"Entries", fmt.Sprintf("%d", stats.Entries)},
		{"Expired", fmt.Sprintf("%d", stats.Expired)},
		{"Size", fmt.Sprintf("%d bytes", stats.Bytes)},
		{"Oldest", age(stats.Oldest)},
		{"Newest", age(stats.Newest)},
	}
	return formatter.Output(output.NewTable("Cache", []string{"Property", "Value"}, rows, nil, stats))
}

func runCacheClearCmd(c *cli.Context) error {
	e, rc, err := openCache(c)
	if err != nil {
		return err
	}
	if err := rc.Clear(); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	color.Green("Cleared %s", e.cfg.Cache.Dir)
	return nil
}
