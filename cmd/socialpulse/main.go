package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"socialpulse/internal/analyze"
	"socialpulse/internal/analytics"
	"socialpulse/internal/cmdlog"
	"socialpulse/internal/collect"
	"socialpulse/internal/config"
	"socialpulse/internal/jobmon"
	"socialpulse/internal/jobs"
	"socialpulse/internal/metrics"
	"socialpulse/internal/model"
	"socialpulse/internal/quota"
	"socialpulse/internal/snsapi"
	"socialpulse/internal/store/analyticsdb"
	"socialpulse/internal/theme"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "track":
		cmdTrack()
	case "collect":
		cmdCollect()
	case "run":
		cmdRun()
	case "status":
		cmdStatus()
	case "quota":
		cmdQuota()
	case "report":
		cmdReport()
	default:
		printHelp()
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: socialpulse <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./socialpulse.yaml")
	fmt.Println("  track       Register an account or post to collect")
	fmt.Println("  collect     Run one collection pass (accounts|posts|comments|all)")
	fmt.Println("  run         Run the scheduled collection loop")
	fmt.Println("  status      Show job statuses of a running instance")
	fmt.Println("  quota       Show quota status of a running instance")
	fmt.Println("  report      Show per-post sentiment breakdown")
}

// app bundles the wired collection stack for one process.
type app struct {
	cfg    config.Config
	db     *analyticsdb.DB
	mon    *jobmon.Registry
	ledger *quota.Ledger
	disp   *analyze.Dispatcher
	svc    *collect.Service
}

func buildApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if cfg.Credentials.APIToken == "" {
		fmt.Println("warning: missing SNS_API_TOKEN; API calls will fail")
	}
	db, err := analyticsdb.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, db: db, mon: jobmon.NewRegistry(), ledger: quota.NewLedger(cfg.Quota)}
	var dispatch collect.Dispatcher
	if cfg.Analysis.Endpoint != "" {
		a.disp = analyze.NewDispatcher(db, analyze.NewHTTPAnalyzer(cfg.Analysis.Endpoint, cfg.Analysis.APIKey), cfg.Analysis.Workers, cfg.Analysis.QueueSize)
		dispatch = a.disp
	}
	client := snsapi.NewHTTPClient(cfg.Credentials.APIToken)
	a.svc = collect.NewService(db, client, a.ledger, a.mon, dispatch, cfg.Collection)
	return a, nil
}

func (a *app) close() {
	if a.disp != nil {
		a.disp.Close()
	}
	_ = a.db.Close()
}

func cmdInit() {
	out := flag.NewFlagSet("init", flag.ExitOnError)
	path := out.String("path", "./socialpulse.yaml", "path to write config")
	_ = out.Parse(os.Args[2:])
	cfg := config.Default()
	if err := config.Save(*path, cfg); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
}

func cmdTrack() {
	fs := flag.NewFlagSet("track", flag.ExitOnError)
	cfgPath := fs.String("config", "./socialpulse.yaml", "config path")
	kind := fs.String("type", "post", "account or post")
	id := fs.String("id", "", "local id")
	ref := fs.String("ref", "", "external API reference")
	name := fs.String("name", "", "display name/title")
	account := fs.String("account", "", "owning account id (posts only)")
	_ = fs.Parse(os.Args[2:])
	if *id == "" || *ref == "" {
		fmt.Println("error: -id and -ref are required")
		os.Exit(1)
	}
	err := cmdlog.Run("track", func() error {
		a, err := buildApp(*cfgPath)
		if err != nil {
			return err
		}
		defer a.close()
		ctx := context.Background()
		switch *kind {
		case "account":
			return a.db.UpsertAccount(ctx, model.Account{ID: *id, ExternalRef: *ref, Name: *name, CreatedAt: time.Now().UTC()})
		case "post":
			return a.db.UpsertPost(ctx, model.Post{ID: *id, AccountID: *account, ExternalRef: *ref, Title: *name, PublishedAt: time.Now().UTC()})
		default:
			return fmt.Errorf("unknown type %q", *kind)
		}
	})
	if err != nil {
		os.Exit(1)
	}
	fmt.Printf("tracking %s %s -> %s\n", *kind, *id, *ref)
}

func cmdCollect() {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	cfgPath := fs.String("config", "./socialpulse.yaml", "config path")
	target := fs.String("target", "all", "accounts|posts|comments|all")
	id := fs.String("id", "", "collect a single account/post id")
	_ = fs.Parse(os.Args[2:])
	err := cmdlog.Run("collect", func() error {
		a, err := buildApp(*cfgPath)
		if err != nil {
			return err
		}
		defer a.close()
		ctx := context.Background()
		if err := runCollect(ctx, a.svc, *target, *id); err != nil {
			return err
		}
		printJobs(a.mon.GetAll())
		return nil
	})
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func runCollect(ctx context.Context, svc *collect.Service, target, id string) error {
	switch target {
	case "accounts":
		if id != "" {
			return svc.CollectAccountMetricsByID(ctx, id)
		}
		return svc.CollectAccountMetrics(ctx)
	case "posts":
		if id != "" {
			return svc.CollectPostMetricsByID(ctx, id)
		}
		return svc.CollectPostMetrics(ctx)
	case "comments":
		if id != "" {
			n, err := svc.CollectPostCommentsByID(ctx, id)
			fmt.Printf("new comments: %d\n", n)
			return err
		}
		return svc.CollectPostComments(ctx)
	case "all":
		return jobs.RunCollectionOnce(ctx, svc)
	default:
		return fmt.Errorf("unknown target %q", target)
	}
}

func printJobs(all map[string]model.JobStatus) {
	for name, st := range all {
		fmt.Printf("%s state=%s processed=%d/%d", name, st.State, st.Processed, st.Total)
		if st.LastError != "" {
			fmt.Printf(" error=%s", st.LastError)
		}
		fmt.Println()
	}
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./socialpulse.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	a, err := buildApp(*cfgPath)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	defer a.close()
	theme.PrintBanner()
	metrics.StartServer(a.cfg.Metrics.Addr, a.mon, a.ledger)
	interval := time.Duration(a.cfg.Schedule.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	_ = jobs.RunCollectionLoop(ctx, a.svc, interval, a.cfg.Schedule.QuietHours)
}

func cmdStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addr := fs.String("addr", "localhost:9090", "metrics address of a running instance")
	_ = fs.Parse(os.Args[2:])
	fetchAndPrint("http://" + *addr + "/jobs")
}

func cmdQuota() {
	fs := flag.NewFlagSet("quota", flag.ExitOnError)
	addr := fs.String("addr", "localhost:9090", "metrics address of a running instance")
	_ = fs.Parse(os.Args[2:])
	fetchAndPrint("http://" + *addr + "/quota")
}

func fetchAndPrint(url string) {
	resp, err := http.Get(url)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
}

func cmdReport() {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	cfgPath := fs.String("config", "./socialpulse.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	err := cmdlog.Run("report", func() error {
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			return err
		}
		db, err := analyticsdb.Open(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		counts, err := db.SentimentCounts(context.Background())
		if err != nil {
			return err
		}
		b := analytics.SentimentBreakdown(counts)
		for _, postID := range analytics.SortedPostIDs(b) {
			row := b[postID]
			fmt.Printf("%s positive=%d negative=%d neutral=%d pending=%d\n",
				postID, row[model.SentimentPositive], row[model.SentimentNegative],
				row[model.SentimentNeutral], row[""])
		}
		return nil
	})
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}
