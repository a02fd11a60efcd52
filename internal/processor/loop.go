package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"Mist/internal/journal"
	"Mist/internal/ledger"
	"Mist/internal/logger"
)

// IntentSource discovers and fetches intents.
type IntentSource interface {
	IntentEvents(ctx context.Context, eventType string, cursor ledger.EventCursor) ([]ledger.ObjectID, ledger.EventCursor, error)
	GetIntent(ctx context.Context, id ledger.ObjectID) (*ledger.Intent, error)
}

// Status is a snapshot of the loop's progress.
type Status struct {
	Cycles    uint64            `json:"cycles"`     // Cycles counts completed poll cycles
	LastCycle time.Time         `json:"last_cycle"` // LastCycle is when the last cycle finished
	LastError string            `json:"last_error"` // LastError is the last cycle-level error, if any
	Pending   int               `json:"pending"`    // Pending is the queue length after the last cycle
	Outcomes  map[string]uint64 `json:"outcomes"`   // Outcomes counts results by kind since start
}

// CycleReport summarizes one poll cycle.
type CycleReport struct {
	Discovered int          // Discovered counts newly queued intents
	Processed  int          // Processed counts intents run through the pipeline
	Outcomes   map[Kind]int // Outcomes counts results by kind
	Err        error        // Err is a cycle-level failure; intents still queued are retried
}

// LoopConfig wires a loop.
type LoopConfig struct {
	Source    IntentSource     // Source discovers and fetches intents
	Journal   *journal.Journal // Journal persists the cursor, queue and outcomes
	Pipeline  *Pipeline        // Pipeline processes one intent
	Metrics   *Metrics         // Metrics is optional
	EventType string           // EventType is the intent creation event type
	Interval  time.Duration    // Interval is the time between cycles
}

// Loop polls the ledger and processes pending intents one at a time.
type Loop struct {
	cfg LoopConfig

	mu     sync.Mutex
	status Status
}

// NewLoop creates a poll loop.
func NewLoop(cfg LoopConfig) *Loop {
	return &Loop{
		cfg:    cfg,
		status: Status{Outcomes: make(map[string]uint64)},
	}
}

// Run polls at the configured interval until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		l.PollOnce(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce runs one cycle: discover new intents, then process every queued
// intent in discovery order. Per-intent failures never abort the cycle.
func (l *Loop) PollOnce(ctx context.Context) CycleReport {
	start := time.Now()
	report := CycleReport{Outcomes: make(map[Kind]int)}

	discovered, err := l.discover(ctx)
	report.Discovered = discovered

	if err != nil {
		report.Err = err
		logger.Warn("intent discovery failed", "error", err)
	}

	pending, err := l.cfg.Journal.Pending()
	if err != nil {
		report.Err = errors.Join(report.Err, fmt.Errorf("read queue:\n%w", err))
		l.finish(report, 0)

		return report
	}

	for _, id := range pending {
		if ctx.Err() != nil {
			break
		}

		kind := l.processOne(ctx, id)
		report.Processed++
		report.Outcomes[kind]++
	}

	remaining, _ := l.cfg.Journal.Pending()
	l.finish(report, len(remaining))

	if report.Processed > 0 || report.Discovered > 0 {
		logger.Info("poll cycle",
			"discovered", report.Discovered,
			"processed", report.Processed,
			"pending", len(remaining),
			logger.Timed(start),
		)
	}

	return report
}

// discover pulls new intent events into the queue and advances the cursor.
// Intents are queued before the cursor moves so a crash cannot skip them.
func (l *Loop) discover(ctx context.Context) (int, error) {
	cursor, err := l.cfg.Journal.Cursor()
	if err != nil {
		return 0, fmt.Errorf("read cursor:\n%w", err)
	}

	ids, next, queryErr := l.cfg.Source.IntentEvents(ctx, l.cfg.EventType, cursor)

	added, err := l.cfg.Journal.Enqueue(ids)
	if err != nil {
		return 0, fmt.Errorf("enqueue intents:\n%w", err)
	}

	if next != cursor {
		if err := l.cfg.Journal.SetCursor(next); err != nil {
			return added, fmt.Errorf("save cursor:\n%w", err)
		}
	}

	return added, queryErr
}

func (l *Loop) processOne(ctx context.Context, id ledger.ObjectID) Kind {
	start := time.Now()

	var res Result

	intent, err := l.cfg.Source.GetIntent(ctx, id)
	if err != nil {
		res = Result{Kind: Classify(err), Err: fmt.Errorf("fetch intent:\n%w", err)}

		if res.Kind == Consumed {
			logger.Info("intent no longer on ledger", "intent", id.Short())
		} else {
			logger.Warn("intent fetch failed", "intent", id.Short(), "error", err)
		}
	} else {
		res = l.cfg.Pipeline.Process(ctx, intent)
	}

	outcome := journal.Outcome{
		Kind:     uint8(res.Kind),
		Terminal: res.Kind.Terminal(),
		TxDigest: res.TxDigest,
		Detail:   res.Detail(),
	}

	if _, err := l.cfg.Journal.Record(id, outcome); err != nil {
		logger.Error("journal record failed", "intent", id.Short(), "error", err)
	}

	if l.cfg.Metrics != nil {
		l.cfg.Metrics.observeIntent(res.Kind, time.Since(start))
	}

	l.mu.Lock()
	l.status.Outcomes[res.Kind.String()]++
	l.mu.Unlock()

	return res.Kind
}

func (l *Loop) finish(report CycleReport, pending int) {
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.observeCycle()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.status.Cycles++
	l.status.LastCycle = time.Now()
	l.status.Pending = pending
	l.status.LastError = ""

	if report.Err != nil {
		l.status.LastError = report.Err.Error()
	}
}

// Status returns a copy of the loop's progress.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.status
	s.Outcomes = make(map[string]uint64, len(l.status.Outcomes))

	for k, v := range l.status.Outcomes {
		s.Outcomes[k] = v
	}

	return s
}
