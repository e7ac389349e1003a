// Package worker runs the periodic background pattern scan.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/sentinel/internal/detect"
	"github.com/opensource-finance/sentinel/internal/domain"
)

// ScanWorker runs full-graph pattern scans on a fixed interval,
// caches the latest result and publishes an event when patterns are
// found. Scans never run on the transaction approval path.
type ScanWorker struct {
	detector *detect.Detector
	cache    domain.Cache
	bus      domain.EventBus

	interval    time.Duration
	scanTimeout time.Duration
	cacheTTL    time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScanWorker creates a scan worker. Cache and bus are optional.
func NewScanWorker(detector *detect.Detector, cache domain.Cache, bus domain.EventBus, cfg domain.ScanConfig) *ScanWorker {
	interval := time.Duration(cfg.IntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	scanTimeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if scanTimeout <= 0 {
		scanTimeout = time.Minute
	}
	cacheTTL := time.Duration(cfg.CacheTTLSecs) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ScanWorker{
		detector:    detector,
		cache:       cache,
		bus:         bus,
		interval:    interval,
		scanTimeout: scanTimeout,
		cacheTTL:    cacheTTL,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the scan loop. An initial scan runs immediately so
// the pattern cache is warm before the first tick.
func (w *ScanWorker) Start() {
	w.wg.Add(1)
	go w.run()

	slog.Info("scan worker started",
		"interval", w.interval,
		"scan_timeout", w.scanTimeout,
	)
}

func (w *ScanWorker) run() {
	defer w.wg.Done()

	w.scanOnce()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.scanOnce()
		}
	}
}

// scanOnce runs a single bounded scan. Failures are logged and the
// loop carries on; a broken scan must not kill the worker.
func (w *ScanWorker) scanOnce() {
	start := time.Now()

	ctx, cancel := context.WithTimeout(w.ctx, w.scanTimeout)
	defer cancel()

	patterns, err := w.detector.Scan(ctx)
	if err != nil {
		slog.Error("pattern scan failed",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}

	encoded, err := json.Marshal(patterns)
	if err != nil {
		slog.Error("failed to encode scan result", "error", err)
		return
	}

	if w.cache != nil {
		if err := w.cache.Set(ctx, domain.CacheKeyPatterns, encoded, w.cacheTTL); err != nil {
			slog.Warn("failed to cache scan result", "error", err)
		}
	}

	if w.bus != nil && len(patterns) > 0 {
		if err := w.bus.Publish(ctx, domain.TopicPatternDetected, encoded); err != nil {
			slog.Error("failed to publish pattern event", "error", err)
		}
	}

	slog.Info("pattern scan completed",
		"patterns", len(patterns),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Stop cancels the scan loop and waits for an in-flight scan to
// finish.
func (w *ScanWorker) Stop() error {
	w.cancel()
	w.wg.Wait()

	slog.Info("scan worker stopped")
	return nil
}
