package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ifuryst/contentsync/internal/client"
	"github.com/ifuryst/contentsync/internal/config"
	"github.com/ifuryst/contentsync/internal/runner"
	"github.com/ifuryst/contentsync/pkg/logger"
	"github.com/ifuryst/contentsync/pkg/util"
)

var (
	runServerURL string
	runLimit     int
	runIDs       string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process stuck queue items one by one through a running server",
	Long: `Run lists the stuck items of a server queue, or the items given with --ids,
and asks the server to process them one at a time. Press Ctrl+C to stop after
the current item.`,
	RunE: runQueue,
}

func init() {
	runCmd.Flags().StringVar(&runServerURL, "server", "", "server base URL (default from config)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "maximum number of stuck items (default from config)")
	runCmd.Flags().StringVar(&runIDs, "ids", "", "comma separated queue item ids instead of the stuck list")
}

func runQueue(*cobra.Command, []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Sync()

	baseURL := runServerURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	limit := runLimit
	if limit <= 0 {
		limit = cfg.Queue.StuckLimit
	}

	itemTimeout := config.Duration(cfg.Queue.ItemTimeout)
	c := client.New(baseURL, itemTimeout)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ids, err := runTargets(ctx, c, limit)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No stuck queue items.")
		return nil
	}

	counts, err := c.Counts(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue counts: %w", err)
	}

	mirror := runner.NewStatusMirror()
	r := runner.New(c, itemTimeout, appLogger, mirror)
	r.Counters().Reset(runner.Counters{
		Scheduled: counts.Scheduled,
		Completed: counts.Completed,
		Failed:    counts.Failed,
	})

	// The run gets its own context so that Ctrl+C lets the current item finish
	if err := r.Start(context.Background(), ids); err != nil {
		return err
	}
	appLogger.Info("Processing queue items", zap.String("server", baseURL), zap.Int("items", len(ids)))

	select {
	case <-r.Done():
	case <-ctx.Done():
		if _, err := r.Stop(); err != nil && !errors.Is(err, runner.ErrNotRunning) {
			return err
		}
		fmt.Println("Stopping after the current item...")
		<-r.Done()
	}

	printRun(r, mirror, ids)
	return nil
}

func runTargets(ctx context.Context, c *client.Client, limit int) ([]uint, error) {
	if runIDs == "" {
		ids, err := c.Stuck(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list stuck items: %w", err)
		}
		return ids, nil
	}

	parsed, err := util.ParseIDs(runIDs)
	if err != nil {
		return nil, fmt.Errorf("invalid --ids: %w", err)
	}
	ids := make([]uint, 0, len(parsed))
	for _, id := range parsed {
		if id <= 0 {
			return nil, fmt.Errorf("invalid --ids: %d is not a queue item id", id)
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func printRun(r *runner.Runner, mirror *runner.StatusMirror, ids []uint) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Item", "Status", "Message"})

	messages := make(map[uint]string, len(ids))
	for _, entry := range r.Log() {
		messages[entry.ItemID] = entry.Message
	}
	for _, id := range ids {
		status := "Remaining"
		if s, ok := mirror.Status(id); ok {
			status = runner.Label(s)
		}
		t.AppendRow(table.Row{strconv.FormatUint(uint64(id), 10), status, messages[id]})
	}
	t.Render()

	counters := r.Counters().Counters()
	fmt.Printf("\n%s\n", r.Summary().Text)
	fmt.Printf("Scheduled: %d  Completed: %d  Failed: %d\n", counters.Scheduled, counters.Completed, counters.Failed)
}
