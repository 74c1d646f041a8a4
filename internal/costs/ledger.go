package costs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"litchat/internal/models"
)

// Sink persists cost records. Persistence failures are logged and swallowed;
// accounting never blocks or fails a user-facing request.
type Sink interface {
	SaveCostRecord(ctx context.Context, rec models.CostRecord) error
}

type Pricing struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

type Totals struct {
	Records          int     `json:"records"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// Ledger records per-call model spend. Records are priced synchronously,
// aggregated in memory, and handed to the sink on a background worker so
// callers return immediately.
type Ledger struct {
	pricing Pricing
	sink    Sink
	log     *zap.Logger
	now     func() time.Time

	mu         sync.Mutex
	global     Totals
	perSession map[string]Totals

	queue   chan models.CostRecord
	closing chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewLedger(pricing Pricing, sink Sink, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Ledger{
		pricing:    pricing,
		sink:       sink,
		log:        log,
		now:        time.Now,
		perSession: make(map[string]Totals),
		queue:      make(chan models.CostRecord, 256),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	go l.drain()
	return l
}

// Record prices and books one model call. Never blocks: when the persistence
// queue is full the record is still aggregated in memory and the durable
// copy is dropped with a warning.
func (l *Ledger) Record(sessionID string, op models.OperationKind, info string, model string, promptTokens, completionTokens int) models.CostRecord {
	rec := models.CostRecord{
		SessionID:        sessionID,
		Operation:        op,
		Provider:         info,
		Model:            model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		CostUSD:          l.price(promptTokens, completionTokens),
		Timestamp:        l.now(),
	}

	l.mu.Lock()
	l.global = addTotals(l.global, rec)
	if sessionID != "" {
		l.perSession[sessionID] = addTotals(l.perSession[sessionID], rec)
	}
	l.mu.Unlock()

	if l.sink != nil {
		select {
		case l.queue <- rec:
		default:
			l.log.Warn("cost record queue full, dropping durable copy",
				zap.String("session_id", sessionID),
				zap.String("operation", string(op)))
		}
	}
	return rec
}

// SessionTotals reports the in-memory aggregate for one session.
func (l *Ledger) SessionTotals(sessionID string) Totals {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perSession[sessionID]
}

// GlobalTotals reports the in-memory aggregate across all sessions.
func (l *Ledger) GlobalTotals() Totals {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.global
}

// Close stops the background writer after flushing queued records. The queue
// channel is never closed, so a straggling Record after Close still
// aggregates in memory and at worst loses its durable copy.
func (l *Ledger) Close() {
	l.once.Do(func() {
		close(l.closing)
		<-l.done
	})
}

func (l *Ledger) drain() {
	defer close(l.done)
	for {
		select {
		case rec := <-l.queue:
			l.persist(rec)
		case <-l.closing:
			for {
				select {
				case rec := <-l.queue:
					l.persist(rec)
				default:
					return
				}
			}
		}
	}
}

func (l *Ledger) persist(rec models.CostRecord) {
	if l.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := l.sink.SaveCostRecord(ctx, rec)
	cancel()
	if err != nil {
		l.log.Warn("cost record persist failed",
			zap.String("session_id", rec.SessionID),
			zap.String("operation", string(rec.Operation)),
			zap.Error(err))
	}
}

func (l *Ledger) price(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*l.pricing.PromptPer1K +
		float64(completionTokens)/1000*l.pricing.CompletionPer1K
}

func addTotals(t Totals, rec models.CostRecord) Totals {
	t.Records++
	t.PromptTokens += rec.PromptTokens
	t.CompletionTokens += rec.CompletionTokens
	t.CostUSD += rec.CostUSD
	return t
}
