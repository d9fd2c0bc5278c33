package chat

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/suPer8Hu/ai-roleplay/internal/ai"
	"github.com/suPer8Hu/ai-roleplay/internal/apilog"
	"github.com/suPer8Hu/ai-roleplay/internal/apperr"
	"github.com/suPer8Hu/ai-roleplay/internal/knowledge"
	"github.com/suPer8Hu/ai-roleplay/internal/memory"
	"github.com/suPer8Hu/ai-roleplay/internal/models"
	"github.com/suPer8Hu/ai-roleplay/internal/role"
	"github.com/suPer8Hu/ai-roleplay/internal/speech"
	"github.com/suPer8Hu/ai-roleplay/internal/store/objectstore"
)

type recordingProvider struct {
	mu    sync.Mutex
	last  []ai.Message
	calls int
	reply string
	err   error
}

func (p *recordingProvider) Chat(ctx context.Context, messages []ai.Message) (ai.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	// copy to avoid mutations
	p.last = append([]ai.Message(nil), messages...)
	if p.err != nil {
		return ai.Completion{}, p.err
	}
	reply := p.reply
	if reply == "" {
		reply = "ok"
	}
	return ai.Completion{Content: reply, PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}, nil
}

type streamingProvider struct {
	recordingProvider
	chunks []string
}

func (p *streamingProvider) StreamChat(ctx context.Context, messages []ai.Message) (<-chan string, <-chan error) {
	out := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)
		for _, c := range p.chunks {
			out <- c
		}
	}()
	return out, errs
}

type failingSynth struct{}

func (failingSynth) Name() string { return "broken" }
func (failingSynth) Synthesize(context.Context, string, speech.Options) (*speech.Audio, error) {
	return nil, errors.New("tts down")
}

type failingTranscriber struct{}

func (failingTranscriber) Name() string { return "broken" }
func (failingTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return "", errors.New("stt down")
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(gormsqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &role.Role{}, &Session{}, &Message{},
		&knowledge.Snippet{}, &AudioFile{}, &Feedback{}, &apilog.APILog{},
	))
	return db
}

type fixture struct {
	db    *gorm.DB
	svc   *Service
	repo  *Repo
	roles *role.Service
	prov  ai.Provider
	alice uint64
	bob   uint64
}

type fixtureOpts struct {
	window    int
	prov      ai.Provider
	tts       speech.Synthesizer
	stt       speech.Transcriber
	objects   objectstore.Store
	store     memory.ContextStore
	lookupErr error
}

func newFixture(t *testing.T, o fixtureOpts) *fixture {
	t.Helper()
	db := openTestDB(t)
	if o.window == 0 {
		o.window = 20
	}
	if o.prov == nil {
		o.prov = &recordingProvider{}
	}
	reg := ai.NewRegistry()
	prov := o.prov
	lookupErr := o.lookupErr
	reg.Register("fake", func(ctx context.Context, model string) (ai.Provider, error) {
		if lookupErr != nil {
			return nil, lookupErr
		}
		return prov, nil
	})

	roles := role.NewService(role.NewRepo(db), role.DefaultTemplates())
	repo := NewRepo(db)
	svc := NewService(Deps{
		Repo:      repo,
		Roles:     roles,
		Knowledge: knowledge.NewLexicalRetriever(knowledge.NewRepo(db)),
		Registry:  reg,
		Memory:    memory.New(o.store, o.window, 0, zerolog.Nop()),
		STT:       o.stt,
		TTS:       o.tts,
		Objects:   o.objects,
		Tracker:   apilog.NewTracker(apilog.NewDBRecorder(db), zerolog.Nop()),
		Log:       zerolog.Nop(),
	}, Options{Provider: "fake", Model: "default", TopK: 3, Threshold: 0.05})

	f := &fixture{db: db, svc: svc, repo: repo, roles: roles, prov: prov}
	f.alice = seedUser(t, db, "alice")
	f.bob = seedUser(t, db, "bob")
	return f
}

func seedUser(t *testing.T, db *gorm.DB, name string) uint64 {
	t.Helper()
	u := &models.User{Username: name, Email: name + "@example.com", PasswordHash: "x", Status: models.UserActive}
	require.NoError(t, db.Create(u).Error)
	return u.ID
}

func (f *fixture) roleID(t *testing.T, key string) uint64 {
	t.Helper()
	r, _, err := f.roles.CreateFromTemplate(context.Background(), key)
	require.NoError(t, err)
	return r.ID
}

func (f *fixture) session(t *testing.T, sid string) Session {
	t.Helper()
	var s Session
	require.NoError(t, f.db.Where("session_id = ?", sid).First(&s).Error)
	return s
}

func TestSendMessage_WritesUserAndAssistant(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	rid := f.roleID(t, "socrates")

	res, err := f.svc.SendMessage(context.Background(), SendInput{UserID: f.alice, RoleID: &rid, Content: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, 7, res.TokensUsed)
	assert.True(t, res.NewSession)
	assert.NotZero(t, res.MessageID)
	assert.Len(t, res.SessionID, 26)

	var msgs []Message
	require.NoError(t, f.db.Where("session_id = ?", res.SessionID).Order("id ASC").Find(&msgs).Error)
	require.Len(t, msgs, 2)
	assert.Equal(t, MessageUser, msgs[0].Type)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, MessageAssistant, msgs[1].Type)
	assert.Equal(t, 7, msgs[1].TokensUsed)

	sess := f.session(t, res.SessionID)
	assert.Equal(t, 1, sess.MessageCount)
	assert.Equal(t, 7, sess.TotalTokens)
	assert.NotNil(t, sess.LastMessageAt)
	assert.Equal(t, rid, sess.RoleID)
	assert.Equal(t, "Hello", sess.Title)

	var logs []apilog.APILog
	require.NoError(t, f.db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, apilog.TypeLLM, logs[0].APIType)
	assert.True(t, logs[0].Success)
	assert.Equal(t, 7, logs[0].Tokens)
}

func TestSendMessage_UsesContextWindow(t *testing.T) {
	prov := &recordingProvider{}
	window := 3
	f := newFixture(t, fixtureOpts{window: window, prov: prov})
	rid := f.roleID(t, "socrates")
	ctx := context.Background()

	first, err := f.svc.SendMessage(ctx, SendInput{UserID: f.alice, RoleID: &rid, Content: "one"})
	require.NoError(t, err)
	for _, c := range []string{"two", "three"} {
		_, err := f.svc.SendMessage(ctx, SendInput{UserID: f.alice, SessionID: first.SessionID, Content: c})
		require.NoError(t, err)
	}
	_, err = f.svc.SendMessage(ctx, SendInput{UserID: f.alice, SessionID: first.SessionID, Content: "new"})
	require.NoError(t, err)

	// system prompt + window most recent messages
	require.Len(t, prov.last, window+1)
	assert.Equal(t, ai.RoleSystem, prov.last[0].Role)
	tpl, _ := f.roles.Template("socrates")
	assert.Equal(t, tpl.SystemPrompt, prov.last[0].Content)
	last := prov.last[len(prov.last)-1]
	assert.Equal(t, ai.RoleUser, last.Role)
	assert.Equal(t, "new", last.Content)
	assert.Equal(t, ai.RoleAssistant, prov.last[len(prov.last)-2].Role)
}

func TestSendMessage_AliceSocratesScenario(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	first, err := f.svc.SendMessage(ctx, SendInput{UserID: f.alice, RoleKey: "socrates", Content: "hello"})
	require.NoError(t, err)
	require.NotEmpty(t, first.SessionID)

	second, err := f.svc.SendMessage(ctx, SendInput{UserID: f.alice, RoleKey: "socrates", SessionID: first.SessionID, Content: "continue"})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.False(t, second.NewSession)

	var count int64
	require.NoError(t, f.db.Model(&Session{}).Where("user_id = ?", f.alice).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	sess := f.session(t, first.SessionID)
	assert.Equal(t, 2, sess.MessageCount)
	assert.Equal(t, 14, sess.TotalTokens)
}

func TestSendMessage_LLMFailureKeepsUserMessage(t *testing.T) {
	prov := &recordingProvider{err: errors.New("connection refused")}
	f := newFixture(t, fixtureOpts{prov: prov})
	rid := f.roleID(t, "harry_potter")

	_, err := f.svc.SendMessage(context.Background(), SendInput{UserID: f.alice, RoleID: &rid, Content: "Expelliarmus!"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindLLMUnavailable, apperr.KindOf(err))
	assert.NotContains(t, apperr.MessageOf(err), "connection refused")

	var msgs []Message
	require.NoError(t, f.db.Find(&msgs).Error)
	require.Len(t, msgs, 1)
	assert.Equal(t, MessageUser, msgs[0].Type)

	var logs []apilog.APILog
	require.NoError(t, f.db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
}

func TestSendMessage_SessionResolution(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()
	socrates := f.roleID(t, "socrates")
	holmes := f.roleID(t, "sherlock_holmes")

	res, err := f.svc.SendMessage(ctx, SendInput{UserID: f.alice, RoleID: &socrates, Content: "hi"})
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, SendInput{UserID: f.bob, RoleID: &socrates, SessionID: res.SessionID, Content: "hijack"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.svc.SendMessage(ctx, SendInput{UserID: f.alice, RoleID: &holmes, SessionID: res.SessionID, Content: "wrong role"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.SendMessage(ctx, SendInput{UserID: f.alice, SessionID: "01HZZZZZZZZZZZZZZZZZZZZZZZ", Content: "ghost"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.svc.SendMessage(ctx, SendInput{UserID: f.alice, Content: "no role"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.SendMessage(ctx, SendInput{UserID: f.alice, RoleKey: "gandalf", Content: "hello"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.svc.SendMessage(ctx, SendInput{UserID: f.alice, RoleID: &socrates, Content: "   "})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	again, err := f.svc.SendMessage(ctx, SendInput{UserID: f.alice, SessionID: res.SessionID, Content: "role omitted"})
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, again.SessionID)

	require.NoError(t, f.svc.DeleteSession(ctx, f.alice, res.SessionID))
	_, err = f.svc.SendMessage(ctx, SendInput{UserID: f.alice, SessionID: res.SessionID, Content: "after delete"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSendMessage_SplicesKnowledge(t *testing.T) {
	prov := &recordingProvider{}
	f := newFixture(t, fixtureOpts{prov: prov})
	rid := f.roleID(t, "harry_potter")
	require.NoError(t, f.db.Create(&knowledge.Snippet{
		RoleID: rid, Title: "Wand", Content: "Harry's wand is holly with a phoenix feather core",
		ContentType: knowledge.ContentText, IsActive: true,
	}).Error)

	res, err := f.svc.SendMessage(context.Background(), SendInput{UserID: f.alice, RoleID: &rid, Content: "What is your wand made of?"})
	require.NoError(t, err)
	require.Len(t, res.RAGContext, 1)
	assert.Equal(t, "Wand", res.RAGContext[0].Title)
	assert.Contains(t, prov.last[0].Content, "phoenix feather core")

	var reply Message
	require.NoError(t, f.db.First(&reply, res.MessageID).Error)
	require.Len(t, reply.RAGContext, 1)

	res, err = f.svc.SendMessage(context.Background(), SendInput{UserID: f.alice, SessionID: res.SessionID, Content: "Quidditch?"})
	require.NoError(t, err)
	assert.Empty(t, res.RAGContext)
	assert.NotContains(t, prov.last[0].Content, "Reference material")
}

func TestSendMessage_IdempotencyKey(t *testing.T) {
	prov := &recordingProvider{}
	f := newFixture(t, fixtureOpts{prov: prov})
	rid := f.roleID(t, "socrates")
	ctx := context.Background()

	first, err := f.svc.SendMessage(ctx, SendInput{UserID: f.alice, RoleID: &rid, Content: "start"})
	require.NoError(t, err)

	in := SendInput{UserID: f.alice, SessionID: first.SessionID, Content: "once", IdempotencyKey: "k-1"}
	a, err := f.svc.SendMessage(ctx, in)
	require.NoError(t, err)
	b, err := f.svc.SendMessage(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, a.MessageID, b.MessageID)
	assert.Equal(t, 2, prov.calls)
	assert.Equal(t, 2, f.session(t, first.SessionID).MessageCount)

	// a failed attempt keeps the user message; the retry generates the reply without a duplicate
	prov.err = errors.New("timeout")
	retry := SendInput{UserID: f.alice, SessionID: first.SessionID, Content: "twice", IdempotencyKey: "k-2"}
	_, err = f.svc.SendMessage(ctx, retry)
	require.Error(t, err)
	prov.err = nil
	c, err := f.svc.SendMessage(ctx, retry)
	require.NoError(t, err)
	assert.NotZero(t, c.MessageID)

	var users int64
	require.NoError(t, f.db.Model(&Message{}).Where("session_id = ? AND type = ?", first.SessionID, MessageUser).Count(&users).Error)
	assert.Equal(t, int64(3), users)
}

func TestSendMessage_IdempotentRetryAfterInterleavedTurn(t *testing.T) {
	prov := &recordingProvider{}
	f := newFixture(t, fixtureOpts{prov: prov})
	rid := f.roleID(t, "socrates")
	ctx := context.Background()

	first, err := f.svc.SendMessage(ctx, SendInput{UserID: f.alice, RoleID: &rid, Content: "start"})
	require.NoError(t, err)

	turnA := SendInput{UserID: f.alice, SessionID: first.SessionID, Content: "question A", IdempotencyKey: "k-A"}
	prov.err = errors.New("timeout")
	_, err = f.svc.SendMessage(ctx, turnA)
	require.Error(t, err)
	prov.err = nil

	prov.reply = "answer to B"
	b, err := f.svc.SendMessage(ctx, SendInput{UserID: f.alice, SessionID: first.SessionID, Content: "question B", IdempotencyKey: "k-B"})
	require.NoError(t, err)

	prov.reply = "answer to A"
	calls := prov.calls
	a, err := f.svc.SendMessage(ctx, turnA)
	require.NoError(t, err)
	assert.Equal(t, calls+1, prov.calls)
	assert.Equal(t, "answer to A", a.Content)
	assert.NotEqual(t, b.MessageID, a.MessageID)

	var reply Message
	require.NoError(t, f.db.First(&reply, a.MessageID).Error)
	var question Message
	require.NoError(t, f.db.Where("idempotency_key = ?", "k-A").First(&question).Error)
	require.NotNil(t, reply.ReplyToID)
	assert.Equal(t, question.ID, *reply.ReplyToID)

	// both keys now replay their own reply
	again, err := f.svc.SendMessage(ctx, turnA)
	require.NoError(t, err)
	assert.Equal(t, a.MessageID, again.MessageID)
	againB, err := f.svc.SendMessage(ctx, SendInput{UserID: f.alice, SessionID: first.SessionID, Content: "question B", IdempotencyKey: "k-B"})
	require.NoError(t, err)
	assert.Equal(t, b.MessageID, againB.MessageID)
	assert.Equal(t, "answer to B", againB.Content)
}

func TestSendMessage_ProviderLookupFailureLeavesNoSession(t *testing.T) {
	f := newFixture(t, fixtureOpts{lookupErr: errors.New("no api key")})
	rid := f.roleID(t, "socrates")

	_, err := f.svc.SendMessage(context.Background(), SendInput{UserID: f.alice, RoleID: &rid, Content: "hello"})
	assert.Equal(t, apperr.KindLLMUnavailable, apperr.KindOf(err))

	var sessions, msgs int64
	require.NoError(t, f.db.Model(&Session{}).Count(&sessions).Error)
	require.NoError(t, f.db.Model(&Message{}).Count(&msgs).Error)
	assert.Zero(t, sessions)
	assert.Zero(t, msgs)
}

// listStore is an in-memory ContextStore with the same append semantics as redis.
type listStore struct {
	mu    sync.Mutex
	lists map[string][]string
}

func newListStore() *listStore { return &listStore{lists: map[string][]string{}} }

func listKey(userID uint64, sessionID string) string {
	return strconv.FormatUint(userID, 10) + ":" + sessionID
}

func (s *listStore) AppendContext(ctx context.Context, userID uint64, sessionID string, maxLen int, ttl time.Duration, items ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := listKey(userID, sessionID)
	cur, ok := s.lists[k]
	if !ok {
		return nil
	}
	cur = append(cur, items...)
	if len(cur) > maxLen {
		cur = cur[len(cur)-maxLen:]
	}
	s.lists[k] = cur
	return nil
}

func (s *listStore) ReplaceContext(ctx context.Context, userID uint64, sessionID string, ttl time.Duration, items ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[listKey(userID, sessionID)] = append([]string(nil), items...)
	return nil
}

func (s *listStore) RecentContext(ctx context.Context, userID uint64, sessionID string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.lists[listKey(userID, sessionID)]
	if len(cur) > limit {
		cur = cur[len(cur)-limit:]
	}
	return append([]string(nil), cur...), nil
}

func (s *listStore) ClearContext(ctx context.Context, userID uint64, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lists, listKey(userID, sessionID))
	return nil
}

func TestClearContext_StartsFreshHistory(t *testing.T) {
	for name, store := range map[string]memory.ContextStore{"database only": nil, "with cache": newListStore()} {
		t.Run(name, func(t *testing.T) {
			prov := &recordingProvider{}
			f := newFixture(t, fixtureOpts{prov: prov, store: store})
			rid := f.roleID(t, "socrates")
			ctx := context.Background()

			first, err := f.svc.SendMessage(ctx, SendInput{UserID: f.alice, RoleID: &rid, Content: "my secret is 42"})
			require.NoError(t, err)
			_, err = f.svc.SendMessage(ctx, SendInput{UserID: f.alice, SessionID: first.SessionID, Content: "remember it"})
			require.NoError(t, err)
			require.Len(t, prov.last, 4)

			require.NoError(t, f.svc.ClearContext(ctx, f.alice, first.SessionID))

			_, err = f.svc.SendMessage(ctx, SendInput{UserID: f.alice, SessionID: first.SessionID, Content: "after clear"})
			require.NoError(t, err)
			require.Len(t, prov.last, 2)
			assert.Equal(t, ai.RoleSystem, prov.last[0].Role)
			assert.Equal(t, "after clear", prov.last[1].Content)

			_, err = f.svc.SendMessage(ctx, SendInput{UserID: f.alice, SessionID: first.SessionID, Content: "and then"})
			require.NoError(t, err)
			require.Len(t, prov.last, 4)
			for _, m := range prov.last {
				assert.NotContains(t, m.Content, "secret")
			}

			// stored messages are still listed
			msgs, err := f.svc.ListMessages(ctx, f.alice, first.SessionID, 0, 0)
			require.NoError(t, err)
			assert.Len(t, msgs, 8)
		})
	}
}

func TestSendMessage_WithAudio(t *testing.T) {
	store, err := objectstore.NewLocal(t.TempDir(), "/media", zerolog.Nop())
	require.NoError(t, err)
	f := newFixture(t, fixtureOpts{tts: speech.MockSynthesizer{}, objects: store})
	rid := f.roleID(t, "sherlock_holmes")

	res, err := f.svc.SendMessage(context.Background(), SendInput{UserID: f.alice, RoleID: &rid, Content: "Elementary?", WithAudio: true, AudioFormat: "wav"})
	require.NoError(t, err)
	require.NotEmpty(t, res.AudioURL)
	assert.True(t, strings.HasPrefix(res.AudioURL, "/media/audio/response/"))

	var af AudioFile
	require.NoError(t, f.db.Where("message_id = ?", res.MessageID).First(&af).Error)
	assert.Equal(t, AudioCompleted, af.Status)
	assert.Equal(t, AudioResponse, af.Type)
	assert.Positive(t, af.SizeBytes)
	assert.Positive(t, af.DurationMS)

	var reply Message
	require.NoError(t, f.db.First(&reply, res.MessageID).Error)
	assert.Equal(t, res.AudioURL, reply.AudioURL)
}

func TestSendMessage_TTSFailureDegradesToText(t *testing.T) {
	store, err := objectstore.NewLocal(t.TempDir(), "/media", zerolog.Nop())
	require.NoError(t, err)
	f := newFixture(t, fixtureOpts{tts: failingSynth{}, objects: store})
	rid := f.roleID(t, "sherlock_holmes")

	res, err := f.svc.SendMessage(context.Background(), SendInput{UserID: f.alice, RoleID: &rid, Content: "Speak!", WithAudio: true})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)
	assert.Empty(t, res.AudioURL)

	var af AudioFile
	require.NoError(t, f.db.Where("message_id = ?", res.MessageID).First(&af).Error)
	assert.Equal(t, AudioFailed, af.Status)
	assert.Contains(t, af.Error, "tts down")
}

func TestStartStream(t *testing.T) {
	prov := &streamingProvider{chunks: []string{"Know ", "thyself."}}
	f := newFixture(t, fixtureOpts{prov: prov})
	rid := f.roleID(t, "socrates")

	st, err := f.svc.StartStream(context.Background(), SendInput{UserID: f.alice, RoleID: &rid, Content: "advice?"})
	require.NoError(t, err)
	assert.True(t, st.NewSession)

	var got []string
	for c := range st.Chunks {
		got = append(got, c)
	}
	out := <-st.Done
	require.NoError(t, out.Err)
	assert.Equal(t, []string{"Know ", "thyself."}, got)
	assert.Equal(t, "Know thyself.", out.Result.Content)
	assert.Equal(t, st.SessionID, out.Result.SessionID)

	var reply Message
	require.NoError(t, f.db.First(&reply, out.Result.MessageID).Error)
	assert.Equal(t, "Know thyself.", reply.Content)

	_, err = f.svc.StartStream(context.Background(), SendInput{UserID: f.alice, Content: "no role"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestStartStream_FallsBackToChat(t *testing.T) {
	prov := &recordingProvider{reply: "whole reply"}
	f := newFixture(t, fixtureOpts{prov: prov})
	rid := f.roleID(t, "socrates")

	st, err := f.svc.StartStream(context.Background(), SendInput{UserID: f.alice, RoleID: &rid, Content: "hi"})
	require.NoError(t, err)
	var got []string
	for c := range st.Chunks {
		got = append(got, c)
	}
	out := <-st.Done
	require.NoError(t, out.Err)
	assert.Equal(t, []string{"whole reply"}, got)
	assert.Equal(t, 7, out.Result.TokensUsed)
}

func TestTranscribe(t *testing.T) {
	f := newFixture(t, fixtureOpts{stt: speech.MockTranscriber{}})
	ctx := context.Background()

	tr, err := f.svc.Transcribe(ctx, f.alice, []byte("RIFF....WAVEfmt "), "clip.wav", "wav")
	require.NoError(t, err)
	assert.NotEmpty(t, tr.Text)
	var af AudioFile
	require.NoError(t, f.db.First(&af, tr.AudioFileID).Error)
	assert.Equal(t, AudioCompleted, af.Status)
	assert.Equal(t, AudioInput, af.Type)

	_, err = f.svc.Transcribe(ctx, f.alice, nil, "clip.wav", "wav")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	t.Run("provider failure", func(t *testing.T) {
		broken := newFixture(t, fixtureOpts{stt: failingTranscriber{}})
		_, err := broken.svc.Transcribe(ctx, broken.alice, []byte("abc"), "clip.wav", "wav")
		assert.Equal(t, apperr.KindSTTUnavailable, apperr.KindOf(err))
		var failed AudioFile
		require.NoError(t, broken.db.Last(&failed).Error)
		assert.Equal(t, AudioFailed, failed.Status)
	})
}

func TestSynthesize(t *testing.T) {
	f := newFixture(t, fixtureOpts{tts: speech.MockSynthesizer{}})
	ctx := context.Background()

	audio, err := f.svc.Synthesize(ctx, f.alice, "Hello there", "alloy", "wav")
	require.NoError(t, err)
	assert.Equal(t, "wav", audio.Format)
	assert.NotEmpty(t, audio.Data)

	_, err = f.svc.Synthesize(ctx, f.alice, "Hello", "", "midi")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = f.svc.Synthesize(ctx, f.alice, "", "", "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	t.Run("provider failure", func(t *testing.T) {
		broken := newFixture(t, fixtureOpts{tts: failingSynth{}})
		_, err := broken.svc.Synthesize(ctx, broken.alice, "Hello", "", "")
		assert.Equal(t, apperr.KindTTSUnavailable, apperr.KindOf(err))
	})
}

func TestSessions_ManageAndList(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()
	socrates := f.roleID(t, "socrates")
	holmes := f.roleID(t, "sherlock_holmes")

	a, err := f.svc.SendMessage(ctx, SendInput{UserID: f.alice, RoleID: &socrates, Content: "a"})
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, SendInput{UserID: f.alice, RoleID: &holmes, Content: "b"})
	require.NoError(t, err)

	all, err := f.svc.ListSessions(ctx, f.alice, nil, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	only, err := f.svc.ListSessions(ctx, f.alice, &socrates, 0)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, a.SessionID, only[0].SessionID)

	title := "Dialogue on virtue"
	archived := SessionArchived
	updated, err := f.svc.UpdateSession(ctx, f.alice, a.SessionID, SessionUpdate{Title: &title, Status: &archived})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, SessionArchived, updated.Status)

	deleted := SessionDeleted
	_, err = f.svc.UpdateSession(ctx, f.alice, a.SessionID, SessionUpdate{Status: &deleted})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	msgs, err := f.svc.ListMessages(ctx, f.alice, a.SessionID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, MessageAssistant, msgs[0].Type)

	_, err = f.svc.ListMessages(ctx, f.bob, a.SessionID, 0, 0)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(f.svc.ClearContext(ctx, f.bob, a.SessionID)))
	require.NoError(t, f.svc.ClearContext(ctx, f.alice, a.SessionID))

	require.NoError(t, f.svc.DeleteSession(ctx, f.alice, a.SessionID))
	all, err = f.svc.ListSessions(ctx, f.alice, nil, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	_, err = f.svc.GetSession(ctx, f.alice, a.SessionID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSubmitFeedback(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()
	rid := f.roleID(t, "socrates")

	res, err := f.svc.SendMessage(ctx, SendInput{UserID: f.alice, RoleID: &rid, Content: "hi"})
	require.NoError(t, err)

	five := 5
	fb, err := f.svc.SubmitFeedback(ctx, f.alice, FeedbackInput{RoleID: rid, MessageID: &res.MessageID, Type: FeedbackRating, Rating: &five, Comment: "wise"})
	require.NoError(t, err)
	assert.NotZero(t, fb.ID)

	_, err = f.svc.SubmitFeedback(ctx, f.alice, FeedbackInput{RoleID: rid, Type: FeedbackRating})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	six := 6
	_, err = f.svc.SubmitFeedback(ctx, f.alice, FeedbackInput{RoleID: rid, Type: FeedbackLike, Rating: &six})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.SubmitFeedback(ctx, f.alice, FeedbackInput{RoleID: rid, Type: "meh"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.SubmitFeedback(ctx, f.bob, FeedbackInput{RoleID: rid, MessageID: &res.MessageID, Type: FeedbackDislike})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.svc.SubmitFeedback(ctx, f.alice, FeedbackInput{RoleID: 9999, Type: FeedbackLike})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
