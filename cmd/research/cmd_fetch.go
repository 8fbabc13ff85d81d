package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cliffyan/go-research-assistant/internal/app"
)

// fetchCmd 抓取文章页面
var fetchCmd = &cobra.Command{
	Use:   "fetch URL...",
	Short: "Fetch article pages and extract readable text",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFetch,
}

func runFetch(cmd *cobra.Command, args []string) error {
	f, closeBrowser := app.Fetcher(cfg, logger)
	defer closeBrowser()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	pages := f.FetchAll(ctx, args)
	if err := newRenderer(cmd.OutOrStdout()).JSON(pages); err != nil {
		return err
	}

	failed := 0
	for _, p := range pages {
		if p.Error != "" {
			failed++
		}
	}
	if failed == len(pages) {
		return fmt.Errorf("all %d pages failed to fetch", failed)
	}
	return nil
}
