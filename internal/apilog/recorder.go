package apilog

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/suPer8Hu/ai-roleplay/internal/ai"
	"github.com/suPer8Hu/ai-roleplay/internal/metrics"
)

type Recorder interface {
	Record(ctx context.Context, entry *APILog) error
}

type DBRecorder struct {
	db *gorm.DB
}

func NewDBRecorder(db *gorm.DB) *DBRecorder {
	return &DBRecorder{db: db}
}

func (r *DBRecorder) Record(ctx context.Context, entry *APILog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// Publisher is satisfied by *rabbitmq.Publisher.
type Publisher interface {
	PublishJSON(ctx context.Context, v any) error
}

// QueueRecorder hands rows to the worker through the message queue.
type QueueRecorder struct {
	pub Publisher
}

func NewQueueRecorder(pub Publisher) *QueueRecorder {
	return &QueueRecorder{pub: pub}
}

func (r *QueueRecorder) Record(ctx context.Context, entry *APILog) error {
	return r.pub.PublishJSON(ctx, entry)
}

// Call identifies one external request.
type Call struct {
	Type     APIType
	Provider string
	Endpoint string
	UserID   uint64
}

// Tracker turns finished external calls into ApiLog rows and metrics.
// A nil *Tracker is valid and only drops the rows.
type Tracker struct {
	rec   Recorder
	log   zerolog.Logger
	clock func() time.Time
}

func NewTracker(rec Recorder, log zerolog.Logger) *Tracker {
	return &Tracker{rec: rec, log: log, clock: time.Now}
}

const maxErrorLen = 500

// Observe records a call that started at start. Recording failures are logged, never returned.
func (t *Tracker) Observe(ctx context.Context, call Call, start time.Time, tokens int, callErr error) {
	if t == nil {
		return
	}
	latency := t.clock().Sub(start)
	status := "success"
	if callErr != nil {
		status = "error"
	}
	metrics.RecordExternalCall(string(call.Type), call.Provider, status, latency.Seconds(), tokens)

	info := requestFrom(ctx)
	entry := &APILog{
		RequestID:  info.requestID,
		UserID:     call.UserID,
		APIType:    call.Type,
		Provider:   call.Provider,
		Endpoint:   call.Endpoint,
		StatusCode: statusCodeFor(callErr),
		Tokens:     tokens,
		LatencyMS:  latency.Milliseconds(),
		Success:    callErr == nil,
		CreatedAt:  start,
	}
	if entry.UserID == 0 {
		entry.UserID = info.userID
	}
	if callErr != nil {
		msg := callErr.Error()
		if len(msg) > maxErrorLen {
			msg = msg[:maxErrorLen]
		}
		entry.Error = msg
	}

	if t.rec == nil {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := t.rec.Record(wctx, entry); err != nil {
		metrics.RecordAPILogDrop()
		t.log.Warn().Err(err).
			Str("api_type", string(call.Type)).
			Str("provider", call.Provider).
			Msg("api log not recorded")
	}
}

func statusCodeFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusBadGateway
	}
}

type namedEmbedder interface {
	ai.Embedder
	Name() string
}

type trackedEmbedder struct {
	inner ai.Embedder
	name  string
	t     *Tracker
}

// TrackEmbedder wraps e so every Embed call is recorded as an embedding call.
func (t *Tracker) TrackEmbedder(e ai.Embedder) ai.Embedder {
	name := "embedder"
	if n, ok := e.(namedEmbedder); ok {
		name = n.Name()
	}
	return &trackedEmbedder{inner: e, name: name, t: t}
}

func (e *trackedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	out, err := e.inner.Embed(ctx, texts)
	e.t.Observe(ctx, Call{Type: TypeEmbedding, Provider: e.name, Endpoint: "embeddings"}, start, 0, err)
	return out, err
}
