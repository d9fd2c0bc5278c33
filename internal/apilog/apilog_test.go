package apilog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(gormsqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&APILog{}))
	return db
}

type capturePublisher struct {
	got []any
	err error
}

func (p *capturePublisher) PublishJSON(ctx context.Context, v any) error {
	p.got = append(p.got, v)
	return p.err
}

func TestTracker_WritesRowsToDatabase(t *testing.T) {
	db := openTestDB(t)
	tr := NewTracker(NewDBRecorder(db), zerolog.Nop())

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tr.clock = func() time.Time { return base.Add(250 * time.Millisecond) }

	ctx := WithRequest(context.Background(), "req-1", 7)
	tr.Observe(ctx, Call{Type: TypeLLM, Provider: "ollama", Endpoint: "/api/chat"}, base, 42, nil)
	tr.Observe(ctx, Call{Type: TypeTTS, Provider: "dashscope", UserID: 9}, base, 0, fmt.Errorf("wrap: %w", context.DeadlineExceeded))

	var rows []APILog
	require.NoError(t, db.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)

	assert.Equal(t, "req-1", rows[0].RequestID)
	assert.Equal(t, uint64(7), rows[0].UserID)
	assert.Equal(t, TypeLLM, rows[0].APIType)
	assert.Equal(t, 42, rows[0].Tokens)
	assert.Equal(t, int64(250), rows[0].LatencyMS)
	assert.True(t, rows[0].Success)
	assert.Equal(t, 200, rows[0].StatusCode)

	assert.Equal(t, uint64(9), rows[1].UserID)
	assert.False(t, rows[1].Success)
	assert.Equal(t, 504, rows[1].StatusCode)
	assert.Contains(t, rows[1].Error, "deadline")
}

func TestTracker_QueueRecorderAndFailures(t *testing.T) {
	pub := &capturePublisher{}
	tr := NewTracker(NewQueueRecorder(pub), zerolog.Nop())

	tr.Observe(context.Background(), Call{Type: TypeSTT, Provider: "openai"}, time.Now(), 0, errors.New(strings.Repeat("x", 800)))
	require.Len(t, pub.got, 1)
	entry := pub.got[0].(*APILog)
	assert.Len(t, entry.Error, maxErrorLen)
	assert.Equal(t, 502, entry.StatusCode)

	// publish failures are swallowed
	pub.err = errors.New("broker down")
	tr.Observe(context.Background(), Call{Type: TypeSTT, Provider: "openai"}, time.Now(), 0, nil)
	assert.Len(t, pub.got, 2)

	var nilTracker *Tracker
	nilTracker.Observe(context.Background(), Call{Type: TypeLLM}, time.Now(), 0, nil)
}

type stubEmbedder struct{ err error }

func (stubEmbedder) Name() string { return "stub" }

func (e stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestTracker_TrackEmbedder(t *testing.T) {
	pub := &capturePublisher{}
	tr := NewTracker(NewQueueRecorder(pub), zerolog.Nop())

	vecs, err := tr.TrackEmbedder(stubEmbedder{}).Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)

	_, err = tr.TrackEmbedder(stubEmbedder{err: errors.New("quota")}).Embed(context.Background(), []string{"a"})
	require.Error(t, err)

	require.Len(t, pub.got, 2)
	first := pub.got[0].(*APILog)
	assert.Equal(t, TypeEmbedding, first.APIType)
	assert.Equal(t, "stub", first.Provider)
	assert.True(t, first.Success)
	assert.False(t, pub.got[1].(*APILog).Success)
}
