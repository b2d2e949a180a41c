package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"BandScanner/internal/notifier"
	"BandScanner/internal/resultstore"
	"BandScanner/internal/scanner"
	"BandScanner/internal/universe"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the daily scan cron task and serves user commands.
type Scheduler struct {
	Cron     *cron.Cron
	Scanner  *scanner.Scanner
	Universe *universe.Provider
	Notifier notifier.Notifier
	Ctx      context.Context

	running atomic.Bool
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, sc *scanner.Scanner, uni *universe.Provider, n notifier.Notifier) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Scanner:  sc,
		Universe: uni,
		Notifier: n,
		Ctx:      ctx,
	}
}

// RegisterAll registers the daily scan task.
func (s *Scheduler) RegisterAll(scanCron string) error {
	if _, err := s.Cron.AddFunc(scanCron, s.scanTask); err != nil {
		return fmt.Errorf("register scan task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[INFO] scheduler stopped")
}

// RunScanNow executes the scan task immediately (for manual trigger / RUN_ON_START).
func (s *Scheduler) RunScanNow() {
	s.scanTask()
}

func (s *Scheduler) scanTask() {
	if !s.running.CompareAndSwap(false, true) {
		log.Println("[WARN] scan already in progress, skipping trigger")
		return
	}
	defer s.running.Store(false)

	log.Println("[INFO] running full universe scan")
	symbols, err := s.Universe.Symbols(s.Ctx)
	if err != nil {
		log.Printf("[ERROR] load universe: %v", err)
		s.trySend(fmt.Sprintf("❌ scan aborted, universe unavailable: %v", err))
		return
	}

	sum, err := s.Scanner.ScanAll(s.Ctx, symbols)
	if err != nil {
		log.Printf("[ERROR] scan run: %v", err)
		s.trySend(fmt.Sprintf("❌ scan failed: %v", err))
		return
	}
	s.trySend(notifier.FormatScanReport(sum))
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	switch fields[0] {
	case "/scan":
		go s.scanTask()
		return "scan started"
	case "/latest":
		sum, err := s.Scanner.Store.LoadLatest()
		if errors.Is(err, resultstore.ErrNotFound) {
			return "no completed scan yet"
		}
		if err != nil {
			return fmt.Sprintf("load latest: %v", err)
		}
		return notifier.FormatScanReport(sum)
	case "/analyze":
		if len(fields) < 2 {
			return "usage: /analyze SYMBOL"
		}
		symbol := strings.ToUpper(fields[1])
		res, err := s.Scanner.Analyze(s.Ctx, symbol, true)
		if err != nil {
			return fmt.Sprintf("analyze %s: %v", symbol, err)
		}
		return notifier.FormatSymbolResult(res)
	default:
		return "commands:\n• /scan\n• /latest\n• /analyze SYMBOL"
	}
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
