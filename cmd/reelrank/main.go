package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"reelrank/internal/api"
	"reelrank/internal/cmdlog"
	"reelrank/internal/config"
	"reelrank/internal/ingest"
	"reelrank/internal/jobs"
	"reelrank/internal/metrics"
	"reelrank/internal/model"
	"reelrank/internal/recommend"
	"reelrank/internal/schedule"
	"reelrank/internal/store"
	"reelrank/internal/theme"
	"reelrank/internal/util"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	var run func() error
	switch cmd {
	case "init":
		run = cmdInit
	case "record":
		run = cmdRecord
	case "rank":
		run = cmdRank
	case "stats":
		run = cmdStats
	case "profile":
		run = cmdProfile
	case "catalog":
		run = cmdCatalog
	case "rescore":
		run = cmdRescore
	case "reset":
		run = cmdReset
	case "serve":
		run = cmdServe
	default:
		printHelp()
		return
	}
	if err := cmdlog.Run(cmd, run); err != nil {
		fail(err)
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: reelrank <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./reelrank.yaml")
	fmt.Println("  record      Record one interaction event, or NDJSON events with -file")
	fmt.Println("  rank        Rank candidates (personalized, trending, discovery)")
	fmt.Println("  stats       Show an item's performance aggregate (-users adds per-user records)")
	fmt.Println("  profile     Show a user's derived preference profile")
	fmt.Println("  catalog     Import item metadata from NDJSON")
	fmt.Println("  rescore     Recompute trending scores against the current time")
	fmt.Println("  reset       Delete all interaction data")
	fmt.Println("  serve       Run the HTTP API, metrics and rescore loop")
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

// openInput opens path, with "-" meaning stdin.
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func cmdInit() error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", defaultConfigPath, "path to write config")
	_ = fs.Parse(os.Args[2:])
	if err := config.Save(*path, config.Default()); err != nil {
		return err
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
	return nil
}

func cmdRecord() error {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	cfgPath := configFlag(fs)
	user := fs.String("user", "", "user id")
	item := fs.String("item", "", "item id")
	kind := fs.String("kind", "view", "view, like, share or comment")
	watch := fs.Float64("watch", -1, "watch duration in seconds (views only)")
	file := fs.String("file", "", "NDJSON file of events ('-' for stdin)")
	_ = fs.Parse(os.Args[2:])
	a, err := openApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	if *file != "" {
		in, err := openInput(*file)
		if err != nil {
			return err
		}
		defer in.Close()
		res, err := ingest.Events(ctx, a.ledger, in)
		fmt.Printf("accepted=%d rejected=%d\n", res.Accepted, res.Rejected)
		return err
	}
	ev := model.InteractionEvent{UserID: *user, ItemID: *item, Kind: model.InteractionKind(strings.ToLower(*kind))}
	if *watch >= 0 {
		ev.WatchDurationSeconds = watch
	}
	if err := a.ledger.RecordEvent(ctx, ev); err != nil {
		return err
	}
	p, err := a.ledger.Performance(ctx, ev.ItemID)
	if err != nil {
		return err
	}
	return printJSON(p)
}

func cmdRank() error {
	fs := flag.NewFlagSet("rank", flag.ExitOnError)
	cfgPath := configFlag(fs)
	mode := fs.String("mode", recommend.ModeTrending, "personalized, trending or discovery")
	user := fs.String("user", "", "user id (personalized)")
	count := fs.Int("count", 10, "max items")
	candidates := fs.String("candidates", "", "JSON array of candidate items ('-' for stdin)")
	ids := fs.String("ids", "", "comma-separated candidate ids resolved from the catalog")
	_ = fs.Parse(os.Args[2:])
	a, err := openApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	var items []model.Item
	if *candidates != "" {
		in, err := openInput(*candidates)
		if err != nil {
			return err
		}
		defer in.Close()
		b, err := io.ReadAll(in)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(b, &items); err != nil {
			return fmt.Errorf("decode candidates: %w", err)
		}
	}
	for _, id := range util.SplitAndTrim(*ids) {
		it, err := a.store.Item(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				fmt.Println("skip (not in catalog):", id)
				continue
			}
			return err
		}
		items = append(items, it)
	}

	var out []model.Item
	switch *mode {
	case recommend.ModePersonalized:
		if *user == "" {
			return errors.New("-user is required for personalized ranking")
		}
		out = a.ranker.Personalized(ctx, *user, items, *count)
	case recommend.ModeTrending:
		out = a.ranker.Trending(ctx, items, *count)
	case recommend.ModeDiscovery:
		out = a.ranker.Discovery(ctx, items, *count)
	default:
		return fmt.Errorf("unknown mode %q", *mode)
	}
	for i, it := range out {
		fmt.Printf("%2d. %s type=%s author=%s\n", i+1, it.ID, it.ContentType, it.AuthorID)
	}
	return nil
}

func cmdStats() error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	cfgPath := configFlag(fs)
	item := fs.String("item", "", "item id (empty lists every item)")
	users := fs.Bool("users", false, "with -item, also list the per-user records")
	_ = fs.Parse(os.Args[2:])
	a, err := openApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()
	if *item != "" {
		p, err := a.ledger.Performance(ctx, *item)
		if err != nil {
			return err
		}
		if !*users {
			return printJSON(p)
		}
		recs, err := a.ledger.RecordsForItem(ctx, *item)
		if err != nil {
			return err
		}
		return printJSON(struct {
			Performance model.ItemPerformance     `json:"performance"`
			Records     []model.InteractionRecord `json:"records"`
		}{p, recs})
	}
	ids, err := a.store.ItemIDs(ctx)
	if err != nil {
		return err
	}
	perf, err := a.store.Performances(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		p := perf[id]
		fmt.Printf("%s views=%d likes=%d shares=%d comments=%d avgWatch=%.1fs trending=%.3f hot=%v\n",
			id, p.TotalViews, p.TotalLikes, p.TotalShares, p.TotalComments, p.AverageWatchTimeSeconds, p.TrendingScore, p.IsTrending)
	}
	return nil
}

func cmdProfile() error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	cfgPath := configFlag(fs)
	user := fs.String("user", "", "user id")
	_ = fs.Parse(os.Args[2:])
	if *user == "" {
		return errors.New("-user is required")
	}
	a, err := openApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	p, err := a.ranker.Profile(context.Background(), *user)
	if err != nil {
		return err
	}
	if err := printJSON(p); err != nil {
		return err
	}
	if next, ok := schedule.NextActiveWindow(time.Now().UTC(), p.ActiveHours); ok {
		fmt.Println("Next active window:", next.Format(time.RFC3339))
	}
	return nil
}

func cmdCatalog() error {
	fs := flag.NewFlagSet("catalog", flag.ExitOnError)
	cfgPath := configFlag(fs)
	file := fs.String("file", "-", "NDJSON file of items ('-' for stdin)")
	_ = fs.Parse(os.Args[2:])
	a, err := openApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	in, err := openInput(*file)
	if err != nil {
		return err
	}
	defer in.Close()
	res, err := ingest.Items(context.Background(), a.store, in)
	fmt.Printf("accepted=%d rejected=%d\n", res.Accepted, res.Rejected)
	return err
}

func cmdRescore() error {
	fs := flag.NewFlagSet("rescore", flag.ExitOnError)
	cfgPath := configFlag(fs)
	_ = fs.Parse(os.Args[2:])
	a, err := openApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	n, err := jobs.RunRescoreOnce(context.Background(), a.ledger)
	if err != nil {
		return err
	}
	fmt.Println("Trending items:", n)
	return nil
}

func cmdReset() error {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	cfgPath := configFlag(fs)
	yes := fs.Bool("yes", false, "confirm deletion of all data")
	_ = fs.Parse(os.Args[2:])
	if !*yes {
		return errors.New("refusing to reset without -yes")
	}
	a, err := openApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.store.Reset(context.Background()); err != nil {
		return err
	}
	fmt.Println("All interaction data deleted.")
	return nil
}

func cmdServe() error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := configFlag(fs)
	addr := fs.String("addr", "", "listen address (overrides config)")
	_ = fs.Parse(os.Args[2:])
	a, err := openApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	if *addr != "" {
		a.cfg.Server.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.cfg.Metrics.Addr != "" && a.cfg.Metrics.Addr != a.cfg.Server.Addr {
		metrics.StartServer(a.cfg.Metrics.Addr)
	}
	srv := api.New(a.ledger, a.ranker, a.store, api.Options{
		RequestsPerSecond: a.cfg.Server.RequestsPerSecond,
		Burst:             a.cfg.Server.Burst,
		Logger:            a.logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx, a.cfg.Server.Addr) })
	if a.cfg.Rescore.Interval > 0 {
		g.Go(func() error {
			if err := jobs.RunRescoreLoop(gctx, a.ledger, a.cfg.Rescore.Interval); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
