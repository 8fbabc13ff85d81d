package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cliffyan/go-research-assistant/internal/app"
	"github.com/cliffyan/go-research-assistant/internal/render"
	"github.com/cliffyan/go-research-assistant/internal/research"
)

var jsonOutput bool

// searchCmd 搜索文章
var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search research articles",
	Long: `Search research articles and render them as cards.

With a query argument the search runs once. Without one, each line read
from stdin starts a new search; only the most recent search is rendered
and results of older searches that arrive late are dropped.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	client, err := app.ResearchClient(cfg, app.CLITokenSource(cfg, logger), logger)
	if err != nil {
		return err
	}

	out := newRenderer(cmd.OutOrStdout())
	tracker := research.NewTracker()

	if len(args) > 0 {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		res, _ := tracker.Run(ctx, client, strings.Join(args, " "))
		return show(out, res)
	}
	return searchLoop(cmd.Context(), cmd.InOrStdin(), out, tracker, client)
}

// searchLoop 每行输入提交一次搜索，只渲染最新的结果
func searchLoop(ctx context.Context, in io.Reader, out *render.Renderer, tracker *research.Tracker, s research.Searcher) error {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		showErr error
	)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}

		ticket := tracker.Submit(query)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			res := s.Search(sctx, query)
			if !tracker.IsCurrent(ticket) {
				logger.Debug("⏭️ Dropping stale results", zap.String("query", query))
				return
			}

			mu.Lock()
			defer mu.Unlock()
			if err := show(out, res); err != nil && showErr == nil {
				showErr = err
			}
		}()
	}

	wg.Wait()
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read queries: %w", err)
	}
	return showErr
}

func show(out *render.Renderer, res research.Result) error {
	if res.Outcome != research.OutcomeParsed {
		logger.Warn("⚠️ Showing fallback result", zap.String("outcome", string(res.Outcome)))
	}
	if jsonOutput {
		return out.JSON(res)
	}
	return out.Results(res.Query, res.Articles)
}

func newRenderer(w io.Writer) *render.Renderer {
	width := 0
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil {
		width = cols
	}
	return render.New(w, width, plain || os.Getenv("NO_COLOR") != "")
}
