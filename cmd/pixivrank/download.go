package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pixivrank/pkg/auth"
	"pixivrank/pkg/cache"
	"pixivrank/pkg/config"
	"pixivrank/pkg/logger"
	"pixivrank/pkg/pixiv"
	"pixivrank/pkg/scheduler"
	"pixivrank/pkg/scraper"
	"pixivrank/pkg/ui"
	"pixivrank/pkg/ui/tui"
)

var (
	// Download command flags
	dateFlag       string
	monthFlag      string
	yearFlag       string
	tagFlags       []string
	blockFlags     []string
	nowordFlags    []string
	blockGroupFlag string
	orientation    string
	workType       string
	maxWorks       int
	pages          int
	mode           string
	content        string
	interval       time.Duration
	workers        int
	retryFailed    bool
	singleImage    bool
	outputDir      string
	cacheDir       string
	cookie         string
	cookieFile     string
	accountName    string
	resumeRun      bool
	forceRestart   bool
	useTUI         bool
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the filtered ranking for a day, month or year",
	Long: `Download every ranked work that passes the tag rules.

Without --date, --month or --year yesterday's ranking is fetched. A month
or a year is processed one month at a time, and a year run writes all of
its works into a single directory.

Credentials are looked up in this order:
  - --cookie or the cookie in the configuration
  - the cookie file (--cookie-file, default cookie/pixiv.txt)
  - the stored account (use 'pixivrank auth login' to store one)`,
	Example: `  # Yesterday's daily ranking, keeping works tagged 初音ミク
  pixivrank download --tag 初音ミク

  # All of March 2024, blocking AI works and works tagged both VOCALOID and ボカロ.
  # R-18 works are kept only when they are also tagged safe.
  pixivrank download --month 202403 --tag 初音ミク --block AI --block-group "[VOCALOID,ボカロ][R-18,safe)"

  # Only single-page landscape illustrations, at most 20 per day
  pixivrank download --date 20240301 --orientation landscape --type illust --max 20

  # Resume an interrupted year run in the terminal UI
  pixivrank download --year 2023 --resume --tui`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if code := runDownload(cmd); code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	f := downloadCmd.Flags()
	f.StringVarP(&dateFlag, "date", "d", "", "ranking date (YYYYMMDD)")
	f.StringVarP(&monthFlag, "month", "m", "", "every day of a month (YYYYMM)")
	f.StringVarP(&yearFlag, "year", "y", "", "every day of a year (YYYY)")
	f.StringSliceVarP(&tagFlags, "tag", "t", nil, "keep works with any of these tags (repeatable, comma separated)")
	f.StringSliceVar(&blockFlags, "block", nil, "drop works with any of these tags")
	f.StringSliceVar(&nowordFlags, "noword", nil, "drop works whose tags contain any of these words")
	f.StringVar(&blockGroupFlag, "block-group", "", "group rules: [a,b] blocks works with every tag, [a,b) blocks works with a but not b")
	f.StringVar(&orientation, "orientation", "", "landscape, portrait, square, desktop, nomanga or any")
	f.StringVar(&workType, "type", "", "illust, manga or ugoira")
	f.IntVar(&maxWorks, "max", 0, "keep at most this many works per day (0 = no limit)")
	f.IntVar(&pages, "pages", 0, "ranking pages to read per day")
	f.StringVar(&mode, "mode", "", "ranking mode (daily, weekly, monthly, ...)")
	f.StringVar(&content, "content", "", "ranking content (all, illust, manga, ugoira)")
	f.DurationVar(&interval, "interval", 0, "minimum gap between requests")
	f.IntVarP(&workers, "workers", "w", 0, "concurrent downloads")
	f.BoolVar(&retryFailed, "retry-failed", false, "retry works that failed in an earlier run")
	f.BoolVar(&singleImage, "single-image", false, "download only the first page of multi-page works")
	f.StringVarP(&outputDir, "output", "o", "", "output directory")
	f.StringVar(&cacheDir, "cache-dir", "", "ranking cache directory")
	f.StringVar(&cookie, "cookie", "", "pixiv cookie header")
	f.StringVar(&cookieFile, "cookie-file", "", "file holding the cookie header or a browser export")
	f.StringVarP(&accountName, "account", "a", "", "use a specific stored account")
	f.BoolVar(&resumeRun, "resume", false, "resume from the last checkpoint")
	f.BoolVar(&forceRestart, "force-restart", false, "discard an existing checkpoint")
	f.BoolVar(&useTUI, "tui", false, "show the full-screen run monitor")
}

// downloadFlags collects the flags the user actually set
func downloadFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	set := func(name string, v interface{}) {
		if cmd.Flags().Changed(name) {
			flags[name] = v
		}
	}

	set("date", dateFlag)
	set("month", monthFlag)
	set("year", yearFlag)
	set("tag", tagFlags)
	set("block", blockFlags)
	set("noword", nowordFlags)
	set("block-group", blockGroupFlag)
	set("orientation", orientation)
	set("type", workType)
	set("max", maxWorks)
	set("pages", pages)
	set("mode", mode)
	set("content", content)
	set("interval", interval)
	set("workers", workers)
	set("retry-failed", retryFailed)
	set("single-image", singleImage)
	set("output", outputDir)
	set("cache-dir", cacheDir)
	set("cookie", cookie)
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return flags
}

// runDownload returns the process exit code; deferred cleanup runs first
func runDownload(cmd *cobra.Command) int {
	cfg, err := config.Load(configFile, downloadFlags(cmd))
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return 1
	}
	if cmd.Flags().Changed("cookie-file") {
		cfg.Pixiv.CookieFile = cookieFile
	}
	if cmd.Root().PersistentFlags().Changed("notifications") {
		cfg.Notifications.Enabled = notifications
	}

	// The monitor owns the screen: prints are muted and log lines go to its
	// log panel
	var log logger.Logger
	var sink *tui.LogSink
	if useTUI {
		ui.SetQuietMode(true)
		sink = tui.NewLogSink(256)
		panel := cfg.Logging
		panel.Format = "json"
		log, err = logger.NewWithWriter(&panel, sink)
	} else {
		log, err = logger.New(&cfg.Logging)
	}
	if err != nil {
		ui.PrintError("Failed to initialize logger", err.Error())
		return 1
	}
	logger.SetLogger(log)
	log.WithField("version", version).Info("pixivrank starting")

	if err := resolveCookie(cfg, log); err != nil {
		ui.PrintError("Failed to load credentials", err.Error())
		return 1
	}

	plan, err := scraper.PlanFromConfig(cfg, time.Now())
	if err != nil {
		ui.PrintError("Invalid ranking selection", err.Error())
		return 1
	}
	plan.Resume = resumeRun
	plan.ForceRestart = forceRestart

	ui.PrintInfo("Ranking", fmt.Sprintf("%s/%s, %s", plan.Mode, plan.Content, plan.Period))
	ui.PrintRuleSummary(plan.Rules.Summary())

	store, err := cache.Open(cfg.Cache.Directory, cache.OptionsFrom(cfg.Cache), log)
	if err != nil {
		ui.PrintError("Failed to open ranking cache", err.Error())
		return 1
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	notifier := ui.NewNotifier(cfg.Notifications)
	sched := scheduler.New(cfg.Scheduler, log)

	var terminal *tui.TUI
	var reporter scraper.Reporter
	if useTUI {
		terminal = tui.NewTUI(sched.Stats, sink, cancel)
		reporter = terminal
	} else {
		reporter = ui.NewConsole(ui.Out, verbose)
	}

	sched.OnTrip(func(s scheduler.Stats) {
		log.WithField("consecutive_429", s.ConsecutiveLimits).Error("Rate-limit breaker tripped")
		notifier.RateLimit("RATE LIMITED", "pixiv kept answering 429, stopping the run")
		if terminal != nil {
			terminal.Tripped(s)
		}
	})
	sched.Start()
	defer sched.Stop()

	s, err := scraper.New(cfg, scraper.Deps{
		Client:    pixiv.NewClient(cfg.Pixiv, log),
		Scheduler: sched,
		Cache:     store,
		Reporter:  reporter,
		Logger:    log,
	})
	if err != nil {
		ui.PrintError("Failed to initialize scraper", err.Error())
		return 1
	}

	var summary scraper.Summary
	if terminal != nil {
		summary, err = runWithTUI(ctx, s, plan, terminal)
	} else {
		summary, err = s.Run(ctx, plan)
	}

	if err != nil {
		log.WithError(err).Error("Run failed")
		if errors.Is(err, scraper.ErrCheckpointExists) {
			ui.PrintWarning("An unfinished run was found for this selection")
			fmt.Fprintln(os.Stderr, "  pixivrank download ... --resume          continue where it stopped")
			fmt.Fprintln(os.Stderr, "  pixivrank download ... --force-restart   start over")
			return 1
		}
		printSummary(summary)
		notifier.Error("RUN FAILED", err.Error())
		ui.PrintError("Run failed", err.Error())
		return 1
	}

	printSummary(summary)
	notifier.Complete("RUN COMPLETE", fmt.Sprintf("%d works downloaded", summary.Completed))
	log.WithFields(map[string]interface{}{
		"run_id":    summary.RunID,
		"completed": summary.Completed,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
	}).Info("Run completed")
	return 0
}

// runWithTUI drives the pipeline and the monitor together; the monitor stays
// up after the run until the user quits it.
func runWithTUI(ctx context.Context, s *scraper.Scraper, plan scraper.Plan, terminal *tui.TUI) (scraper.Summary, error) {
	g, gctx := errgroup.WithContext(ctx)

	var summary scraper.Summary
	var runErr error
	g.Go(func() error {
		summary, runErr = s.Run(gctx, plan)
		terminal.Done(runErr)
		return nil
	})
	g.Go(terminal.Start)

	if err := g.Wait(); err != nil {
		return summary, fmt.Errorf("terminal UI failed: %w", err)
	}
	ui.SetQuietMode(quiet || logLevel == "error")
	return summary, runErr
}

// resolveCookie fills cfg.Pixiv.Cookie from the first source that has one
func resolveCookie(cfg *config.Config, log logger.Logger) error {
	source := "configuration"

	switch {
	case accountName != "":
		manager, err := auth.NewManager()
		if err != nil {
			return err
		}
		account, err := manager.Retrieve(accountName)
		if err != nil {
			return err
		}
		applyAccount(cfg, account)
		source = "account " + account.Name

	case cfg.Pixiv.Cookie != "":
		c, err := auth.ParseCookie(cfg.Pixiv.Cookie)
		if err != nil {
			return err
		}
		cfg.Pixiv.Cookie = c

	default:
		if c, err := auth.LoadCookieFile(cfg.Pixiv.CookieFile); err == nil && c != "" {
			cfg.Pixiv.Cookie = c
			source = cfg.Pixiv.CookieFile
			break
		}
		if manager, err := auth.NewManager(); err == nil {
			if account, err := manager.RetrieveDefault(); err == nil {
				applyAccount(cfg, account)
				source = "account " + account.Name
				break
			}
		}
		source = ""
	}

	if source == "" {
		log.Warn("No pixiv cookie found, continuing logged out")
		ui.PrintWarning("No pixiv cookie found", "R-18 rankings and some works need a login, see 'pixivrank auth login'")
		return nil
	}

	log.WithField("source", source).Info("Using pixiv cookie")
	ui.PrintInfo("Credentials", source)
	if !auth.HasSessionID(cfg.Pixiv.Cookie) {
		ui.PrintWarning("Cookie has no "+auth.SessionCookie, "requests will be made logged out")
	}
	return nil
}

func applyAccount(cfg *config.Config, account *auth.Account) {
	cfg.Pixiv.Cookie = account.Cookie
	if account.UserAgent != "" {
		cfg.Pixiv.UserAgent = account.UserAgent
	}
}

func printSummary(s scraper.Summary) {
	if s.Batches == 0 && s.Total == 0 {
		return
	}
	ui.PrintHighlight("[RUN SUMMARY]")
	ui.PrintInfo("Dates", fmt.Sprintf("%d (%d resumed)", s.Dates, s.ResumedDates))
	ui.PrintInfo("Candidates", fmt.Sprint(s.Candidates))
	ui.PrintInfo("Downloaded", fmt.Sprint(s.Completed))
	ui.PrintInfo("Skipped", fmt.Sprint(s.Skipped))
	ui.PrintInfo("Failed", fmt.Sprint(s.Failed))
	if s.Aborted > 0 {
		ui.PrintInfo("Not attempted", fmt.Sprint(s.Aborted))
	}
	if s.Tripped {
		ui.PrintWarning("Stopped by the rate-limit breaker", "rerun later to pick up the rest")
	}
	ui.PrintInfo("Duration", ui.FormatDuration(s.Duration))
}
