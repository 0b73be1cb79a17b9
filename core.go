package treebeard

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/treebeardhq/treebeard-go/internal/buffer"
	"github.com/treebeardhq/treebeard-go/internal/caller"
	"github.com/treebeardhq/treebeard-go/internal/exporter"
	"github.com/treebeardhq/treebeard-go/internal/runtimeinfo"
	"github.com/treebeardhq/treebeard-go/pkg/logger"
)

// newExporter is a seam for tests to capture batches without a network.
var newExporter = exporter.New

// Core is the batching/delivery engine. One instance exists per process; it
// owns the buffers, the flush scheduler, and the delivery backend.
type Core struct {
	cfg  Config
	diag *logger.Logger
	exp  exporter.Exporter
	caps runtimeinfo.Capabilities
	host runtimeinfo.Facts

	logs    *buffer.Buffer[LogEntry]
	objects *buffer.Buffer[RegisteredObject]

	tracesMu sync.Mutex
	traces   map[traceKey]*TraceRecord

	flushMu sync.Mutex // serializes drain-and-send cycles
	flushCh chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup

	sigCh         chan os.Signal
	stdlogRestore func()
	shutdownOnce  sync.Once
}

var (
	instanceMu sync.Mutex
	instance   *Core
)

// Init validates cfg and constructs the process-wide engine. Initialization
// happens at most once: a second call is a no-op that returns the first
// instance. This is the only entry point that fails loudly; everything else
// degrades to diagnostics.
func Init(cfg Config) (*Core, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance != nil {
		instance.diag.Warn("treebeard already initialized, ignoring second Init")
		return instance, nil
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	diag := logger.New(cfg.DiagLevel)

	caps := runtimeinfo.Detect()
	if cfg.CommitSHA == "" && caps.HasProcessEnv {
		cfg.CommitSHA = getEnv("TREEBEARD_COMMIT_SHA", os.Getenv("GIT_SHA"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DeliveryTimeout)
	defer cancel()

	exp, err := newExporter(ctx, exporter.Config{
		Endpoint:       cfg.Endpoint,
		APIKey:         cfg.APIKey,
		ProjectName:    cfg.ProjectName,
		Timeout:        cfg.DeliveryTimeout,
		RetryMax:       cfg.RetryMax,
		RetryBaseDelay: cfg.RetryBaseDelay,
		Diag:           diag,
	})
	if err != nil {
		return nil, &ConfigurationError{Key: "Endpoint", Reason: err.Error()}
	}

	c := &Core{
		cfg:     cfg,
		diag:    diag,
		exp:     exp,
		caps:    caps,
		host:    runtimeinfo.Describe(ctx),
		logs:    buffer.New[LogEntry](cfg.BatchSize),
		objects: buffer.New[RegisteredObject](16),
		traces:  make(map[traceKey]*TraceRecord),
		flushCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}

	c.wg.Add(1)
	go c.flushLoop()

	if c.caps.CanHandleSignals {
		c.installSignalHook()
	}
	if cfg.CaptureStdLog {
		c.captureStdLog()
	}

	diag.Debug("treebeard initialized",
		"project", cfg.ProjectName,
		"endpoint", cfg.Endpoint,
		"batch_size", cfg.BatchSize,
	)

	instance = c
	return c, nil
}

// GetInstance returns the engine, or nil before Init. All methods are
// nil-receiver safe, so GetInstance().Log(...) before Init is a silent
// no-op rather than a panic.
func GetInstance() *Core {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	return instance
}

// ResetForTesting tears the singleton down so tests can initialize from a
// clean slate. Production code has no reason to call this.
func ResetForTesting() {
	instanceMu.Lock()
	c := instance
	instance = nil
	instanceMu.Unlock()

	if c != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	}
}

// Log appends a structured entry stamped with the ambient trace scope.
// Never blocks on the network and never fails into the caller.
func (c *Core) Log(ctx context.Context, level Level, msg string, fields Fields) {
	c.emit(ctx, level, msg, fields, caller.Resolve(1))
}

// LogError normalizes err into structured metadata and logs it at error
// severity.
func (c *Core) LogError(ctx context.Context, msg string, err error, fields Fields) {
	if c == nil {
		return
	}
	enriched := make(Fields, len(fields)+3)
	for k, v := range fields {
		enriched[k] = v
	}
	if err != nil {
		enriched["error_message"] = err.Error()
		enriched["error_type"] = errorType(err)
	}
	enriched["stack"] = string(debug.Stack())
	c.emit(ctx, LevelError, msg, enriched, caller.Resolve(1))
}

// emit is the single construction point for log entries. frame is resolved
// by the public wrappers so skip depths stay correct.
func (c *Core) emit(ctx context.Context, level Level, msg string, fields Fields, frame caller.Frame) {
	if c == nil {
		return
	}

	entry := LogEntry{
		Level:     level,
		Message:   msg,
		Fields:    fields,
		Timestamp: time.Now(),
		Caller:    frame,
	}

	if ctx != nil {
		if tc, ok := TraceContextFrom(ctx); ok {
			entry.TraceID = tc.TraceID
			entry.SpanID = tc.SpanID
			if corr := tc.correlationSnapshot(); corr != nil {
				merged := make(Fields, len(fields)+len(corr))
				for k, v := range corr {
					merged[k] = v
				}
				for k, v := range fields {
					merged[k] = v
				}
				entry.Fields = merged
			}
		}
	}

	c.append(entry)
}

func (c *Core) append(entry LogEntry) {
	n := c.logs.Append(entry)
	if n+c.objects.Len() >= c.cfg.BatchSize {
		c.requestFlush()
	}
}

// requestFlush nudges the scheduler. Delivery always runs out-of-line from
// the call that crossed the threshold.
func (c *Core) requestFlush() {
	select {
	case c.flushCh <- struct{}{}:
	default:
	}
}

// Flush drains the buffers and delivers the snapshot, splitting it into
// requests of at most BatchSize entries. The returned error reports dropped
// batches for shutdown accounting and tests; the scheduler only logs it.
func (c *Core) Flush(ctx context.Context) error {
	if c == nil {
		return nil
	}

	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	logs := c.logs.Drain()
	objects := c.objects.Drain()
	if len(logs) == 0 && len(objects) == 0 {
		return nil
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.DeliveryTimeout)
		defer cancel()
	}

	var firstErr error
	for len(logs) > 0 || len(objects) > 0 {
		chunk := logs
		if len(chunk) > c.cfg.BatchSize {
			chunk = chunk[:c.cfg.BatchSize]
		}
		logs = logs[len(chunk):]

		// Objects fill whatever the log chunk left of the request budget.
		objChunk := objects
		if room := c.cfg.BatchSize - len(chunk); len(objChunk) > room {
			objChunk = objChunk[:room]
		}
		objects = objects[len(objChunk):]

		batch := c.buildBatch(chunk, objChunk)

		if err := c.exp.Export(ctx, batch); err != nil {
			c.diag.Error("dropping batch", err,
				"logs", len(batch.Logs),
				"objects", len(batch.Objects),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (c *Core) buildBatch(logs []LogEntry, objects []RegisteredObject) *exporter.Batch {
	batch := &exporter.Batch{
		ProjectName: c.cfg.ProjectName,
		SDKVersion:  Version,
		CommitSHA:   c.cfg.CommitSHA,
		Host:        c.host,
		Logs:        make([]exporter.LogEntry, 0, len(logs)),
	}

	for _, e := range logs {
		batch.Logs = append(batch.Logs, exporter.LogEntry{
			Timestamp: e.Timestamp.UnixMilli(),
			Level:     string(e.Level),
			Message:   e.Message,
			Props:     e.Fields,
			File:      e.Caller.File,
			Line:      e.Caller.Line,
			Function:  e.Caller.Function,
			TraceID:   e.TraceID,
			SpanID:    e.SpanID,
		})
	}
	for _, o := range objects {
		batch.Objects = append(batch.Objects, exporter.Object{
			Name:         o.Name,
			ID:           o.ID,
			Fields:       o.Fields,
			RegisteredAt: o.RegisteredAt.UnixMilli(),
		})
	}
	return batch
}

func (c *Core) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.Flush(context.Background())
		case <-c.flushCh:
			_ = c.Flush(context.Background())
		case <-c.stopCh:
			return
		}
	}
}

// Shutdown stops the scheduler, performs one final flush bounded by
// ShutdownTimeout, and releases installed hooks. Idempotent; logging after
// Shutdown still buffers but nothing restarts delivery.
func (c *Core) Shutdown(ctx context.Context) error {
	if c == nil {
		return nil
	}

	c.shutdownOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()

		if c.sigCh != nil {
			signal.Stop(c.sigCh)
			close(c.sigCh)
		}
		if c.stdlogRestore != nil {
			c.stdlogRestore()
		}

		flushCtx, cancel := context.WithTimeout(ctx, c.cfg.ShutdownTimeout)
		defer cancel()

		if err := c.Flush(flushCtx); err != nil {
			c.diag.Error("final flush incomplete", err)
		}
		if err := c.exp.Close(flushCtx); err != nil {
			c.diag.Warn("exporter close failed", "error", err.Error())
		}
		c.diag.Debug("treebeard shut down")
	})
	return nil
}

// installSignalHook flushes pending telemetry on SIGINT/SIGTERM, then
// re-delivers the signal so the host's default handling proceeds.
func (c *Core) installSignalHook() {
	c.sigCh = make(chan os.Signal, 1)
	signal.Notify(c.sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig, ok := <-c.sigCh
		if !ok {
			return
		}
		c.diag.Info("received signal, flushing", "signal", sig.String())
		_ = c.Shutdown(context.Background())
		if p, err := os.FindProcess(os.Getpid()); err == nil {
			_ = p.Signal(sig)
		}
	}()
}

// captureStdLog redirects the standard library's default logger into the
// engine for the lifetime of the instance.
func (c *Core) captureStdLog() {
	prev := log.Writer()
	prevFlags := log.Flags()
	log.SetFlags(0)
	log.SetOutput(stdlogWriter{c})
	c.stdlogRestore = func() {
		log.SetOutput(prev)
		log.SetFlags(prevFlags)
	}
}

type stdlogWriter struct {
	c *Core
}

func (w stdlogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg != "" {
		w.c.emit(context.Background(), LevelInfo, msg, Fields{"source": "stdlog"}, caller.Unknown)
	}
	return len(p), nil
}

func errorType(err error) string {
	t := fmt.Sprintf("%T", err)
	return strings.TrimPrefix(t, "*")
}
