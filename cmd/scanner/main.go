package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"BandScanner/internal/cache"
	"BandScanner/internal/config"
	"BandScanner/internal/fetcher"
	"BandScanner/internal/ingestor"
	"BandScanner/internal/notifier"
	"BandScanner/internal/resultstore"
	"BandScanner/internal/scanner"
	"BandScanner/internal/scheduler"
	"BandScanner/internal/universe"
)

func main() {
	symbolFlag := flag.String("symbol", "", "analyze a single symbol, print the result as JSON, and exit")
	forceFlag := flag.Bool("force", false, "run a fresh analysis in -symbol mode even without a stored result")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] BandScanner starting...")

	if err := godotenv.Load(); err == nil {
		log.Println("[INFO] loaded environment from .env")
	}

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Init fetcher
	var f fetcher.Fetcher
	if cfg.DataSource.Provider == "rest" {
		f = fetcher.NewRESTFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, cfg.Proxy)
	} else {
		f = fetcher.NewYahooFetcher(cfg.Proxy)
	}
	log.Printf("[INFO] data source: %s", f.Name())

	// Init price cache
	if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0755); err != nil {
		log.Fatalf("[FATAL] create data dir: %v", err)
	}
	priceCache, err := cache.Open(cfg.Database.SQLitePath)
	if err != nil {
		log.Fatalf("[FATAL] open price cache: %v", err)
	}
	defer priceCache.Close()

	// Init result store
	store, err := resultstore.Open(cfg.Results.Dir)
	if err != nil {
		log.Fatalf("[FATAL] open result store: %v", err)
	}

	// Init ingestor and scanner
	g := ingestor.New(priceCache, f)
	g.HistoryYears = cfg.Scan.HistoryYears
	sc := scanner.New(g, store, scanner.Config{
		Concurrency:   cfg.Scan.Concurrency,
		BatchSize:     cfg.Scan.BatchSize,
		BatchCooldown: time.Duration(cfg.Scan.BatchCooldownMS) * time.Millisecond,
		ChartTail:     cfg.Scan.ChartTailBars,
	})

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One-shot single-symbol mode
	if *symbolFlag != "" {
		runSingle(ctx, sc, strings.ToUpper(*symbolFlag), *forceFlag)
		return
	}

	// Init universe provider
	uni := universe.NewProvider(priceCache.DB(), cfg.Universe.SymbolsFile)

	// Init notifier
	var n notifier.Notifier = notifier.Noop{}
	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		n = tn
	} else {
		log.Println("[INFO] no Telegram credentials, notifications disabled")
	}

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, sc, uni, n)
	if err := sched.RegisterAll(cfg.Schedule.ScanCron); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram command polling
	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing scan now")
		go sched.RunScanNow()
	}

	log.Println("[INFO] BandScanner is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	log.Println("[INFO] BandScanner stopped")
}

func runSingle(ctx context.Context, sc *scanner.Scanner, symbol string, force bool) {
	res, err := sc.Analyze(ctx, symbol, force)
	if errors.Is(err, scanner.ErrNeedsForce) {
		log.Fatalf("[FATAL] no stored result for %s; rerun with -force to analyze it now", symbol)
	}
	if err != nil {
		log.Fatalf("[FATAL] analyze %s: %v", symbol, err)
	}
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		log.Fatalf("[FATAL] encode result: %v", err)
	}
	fmt.Println(string(out))
}
