package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/suPer8Hu/ai-roleplay/internal/ai"
	"github.com/suPer8Hu/ai-roleplay/internal/apilog"
	"github.com/suPer8Hu/ai-roleplay/internal/apperr"
	"github.com/suPer8Hu/ai-roleplay/internal/common"
	"github.com/suPer8Hu/ai-roleplay/internal/knowledge"
	"github.com/suPer8Hu/ai-roleplay/internal/memory"
	"github.com/suPer8Hu/ai-roleplay/internal/metrics"
	"github.com/suPer8Hu/ai-roleplay/internal/role"
	"github.com/suPer8Hu/ai-roleplay/internal/speech"
	"github.com/suPer8Hu/ai-roleplay/internal/store/objectstore"
)

const (
	maxContentLen        = 4000
	maxIdempotencyKeyLen = 128
	maxSpeechTextLen     = 2000
)

// RoleResolver is satisfied by *role.Service.
type RoleResolver interface {
	ForChat(ctx context.Context, viewerID, id uint64) (*role.Role, error)
	ResolveByKey(ctx context.Context, viewerID uint64, key string) (*role.Role, error)
}

// Retriever is satisfied by *knowledge.Service and the knowledge retrievers.
type Retriever interface {
	Retrieve(ctx context.Context, roleID uint64, query string, topK int, threshold float64) ([]knowledge.Hit, error)
}

type Deps struct {
	Repo      *Repo
	Roles     RoleResolver
	Knowledge Retriever
	Registry  *ai.Registry
	Memory    *memory.Memory
	STT       speech.Transcriber
	TTS       speech.Synthesizer
	Objects   objectstore.Store
	Tracker   *apilog.Tracker
	Log       zerolog.Logger
}

type Options struct {
	Provider  string
	Model     string
	TopK      int
	Threshold float64
}

type Service struct {
	repo      *Repo
	roles     RoleResolver
	knowledge Retriever
	registry  *ai.Registry
	memory    *memory.Memory
	stt       speech.Transcriber
	tts       speech.Synthesizer
	objects   objectstore.Store
	tracker   *apilog.Tracker
	log       zerolog.Logger
	opts      Options
}

func NewService(d Deps, opts Options) *Service {
	if opts.Provider == "" {
		opts.Provider = "ollama"
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	mem := d.Memory
	if mem == nil {
		mem = memory.New(nil, 20, 0, d.Log)
	}
	return &Service{
		repo:      d.Repo,
		roles:     d.Roles,
		knowledge: d.Knowledge,
		registry:  d.Registry,
		memory:    mem,
		stt:       d.STT,
		tts:       d.TTS,
		objects:   d.Objects,
		tracker:   d.Tracker,
		log:       d.Log,
		opts:      opts,
	}
}

type SendInput struct {
	UserID uint64
	// RoleID or RoleKey names the role; both may be empty when SessionID is set.
	RoleID         *uint64
	RoleKey        string
	SessionID      string
	Content        string
	IdempotencyKey string
	WithAudio      bool
	Voice          string
	AudioFormat    string
}

type SendResult struct {
	Content    string   `json:"content"`
	SessionID  string   `json:"session_id"`
	TokensUsed int      `json:"tokens_used"`
	MessageID  uint64   `json:"message_id"`
	NewSession bool     `json:"new_session"`
	AudioURL   string   `json:"audio_url,omitempty"`
	RAGContext []RAGRef `json:"rag_context"`
}

type turn struct {
	in       SendInput
	session  *Session
	role     *role.Role
	created  bool
	userMsg  *Message
	hits     []knowledge.Hit
	prompt   []ai.Message
	provider ai.Provider
}

// SendMessage runs one chat turn: resolve session, store the user message,
// load history, retrieve knowledge, call the model, store the reply and
// optionally synthesize it. An LLM failure stores no reply.
func (s *Service) SendMessage(ctx context.Context, in SendInput) (*SendResult, error) {
	t, replay, err := s.prepare(ctx, in)
	if err != nil {
		metrics.RecordChatTurn("rejected")
		return nil, err
	}
	if replay != nil {
		metrics.RecordChatTurn("replayed")
		return replay, nil
	}

	start := time.Now()
	comp, err := t.provider.Chat(ctx, t.prompt)
	if err == nil && strings.TrimSpace(comp.Content) == "" {
		err = errors.New("empty completion")
	}
	s.tracker.Observe(ctx, s.llmCall(t), start, comp.TotalTokens, err)
	if err != nil {
		return nil, s.llmFailed(t, err)
	}
	return s.finish(context.WithoutCancel(ctx), t, comp)
}

// Stream is a turn whose reply is delivered incrementally. Chunks is closed
// before Done receives the outcome.
type Stream struct {
	SessionID  string
	NewSession bool
	Chunks     <-chan string
	Done       <-chan StreamOutcome
}

type StreamOutcome struct {
	Result *SendResult
	Err    error
}

// StartStream validates and prepares the turn synchronously, then streams the
// reply. Providers without streaming support deliver the reply as one chunk.
func (s *Service) StartStream(ctx context.Context, in SendInput) (*Stream, error) {
	t, replay, err := s.prepare(ctx, in)
	if err != nil {
		metrics.RecordChatTurn("rejected")
		return nil, err
	}

	chunks := make(chan string, 16)
	done := make(chan StreamOutcome, 1)
	st := &Stream{Chunks: chunks, Done: done}
	if replay != nil {
		st.SessionID = replay.SessionID
	} else {
		st.SessionID = t.session.SessionID
		st.NewSession = t.created
	}

	go func() {
		defer close(done)
		defer close(chunks)

		if replay != nil {
			metrics.RecordChatTurn("replayed")
			chunks <- replay.Content
			done <- StreamOutcome{Result: replay}
			return
		}

		emit := func(c string) {
			select {
			case chunks <- c:
			case <-ctx.Done():
			}
		}

		start := time.Now()
		var comp ai.Completion
		var err error
		if sp, ok := t.provider.(ai.StreamProvider); ok {
			pChunks, pErrs := sp.StreamChat(ctx, t.prompt)
			comp.Content, err = ai.Collect(pChunks, pErrs, emit)
		} else {
			comp, err = t.provider.Chat(ctx, t.prompt)
			if err == nil {
				emit(comp.Content)
			}
		}
		if err == nil && strings.TrimSpace(comp.Content) == "" {
			err = errors.New("empty completion")
		}
		s.tracker.Observe(ctx, s.llmCall(t), start, comp.TotalTokens, err)
		if err != nil {
			done <- StreamOutcome{Err: s.llmFailed(t, err)}
			return
		}

		res, err := s.finish(context.WithoutCancel(ctx), t, comp)
		done <- StreamOutcome{Result: res, Err: err}
	}()

	return st, nil
}

func (s *Service) llmCall(t *turn) apilog.Call {
	return apilog.Call{
		Type:     apilog.TypeLLM,
		Provider: ai.ProviderName(t.provider),
		Endpoint: t.session.Model,
		UserID:   t.in.UserID,
	}
}

func (s *Service) llmFailed(t *turn, err error) error {
	metrics.RecordChatTurn("llm_error")
	s.log.Warn().Err(err).
		Str("session_id", t.session.SessionID).
		Str("provider", t.session.Provider).
		Msg("llm call failed")
	return apperr.Wrap(apperr.KindLLMUnavailable, "language model unavailable", err)
}

// prepare runs every step before the model call. replay is set when the
// idempotency key matches a turn that already has a reply.
func (s *Service) prepare(ctx context.Context, in SendInput) (t *turn, replay *SendResult, err error) {
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" {
		return nil, nil, apperr.Validation("content required")
	}
	if utf8.RuneCountInString(in.Content) > maxContentLen {
		return nil, nil, apperr.Validation(fmt.Sprintf("content longer than %d characters", maxContentLen))
	}
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if len(in.IdempotencyKey) > maxIdempotencyKeyLen {
		return nil, nil, apperr.Validation("idempotency key too long")
	}

	sess, r, created, err := s.resolveSession(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	t = &turn{in: in, session: sess, role: r, created: created}

	if in.IdempotencyKey != "" && !created {
		prev, err := s.repo.GetMessageByIdempotencyKey(ctx, in.UserID, sess.SessionID, in.IdempotencyKey)
		switch {
		case err == nil:
			reply, err := s.repo.ReplyTo(ctx, sess.SessionID, prev.ID)
			if err == nil {
				return nil, replayResult(sess, reply), nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, err
			}
			// the earlier attempt stored the user message but no reply; generate it now
			t.userMsg = prev
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, nil, err
		}
	}

	// pick provider/model for this session
	t.provider, err = s.registry.Get(ctx, sess.Provider, sess.Model)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindLLMUnavailable, "language model unavailable", err)
	}
	if created {
		if err := s.repo.CreateSession(ctx, sess); err != nil {
			return nil, nil, fmt.Errorf("create session: %w", err)
		}
	}

	if t.userMsg == nil {
		userMsg := &Message{
			SessionID: sess.SessionID,
			UserID:    in.UserID,
			Type:      MessageUser,
			Content:   in.Content,
		}
		if in.IdempotencyKey != "" {
			key := in.IdempotencyKey
			userMsg.IdempotencyKey = &key
		}
		if err := s.repo.InsertUserMessage(ctx, userMsg); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, nil, apperr.Conflict("a message with this idempotency key is already being processed")
			}
			return nil, nil, fmt.Errorf("store user message: %w", err)
		}
		t.userMsg = userMsg
		s.memory.Append(ctx, in.UserID, sess.SessionID, ai.Message{Role: ai.RoleUser, Content: userMsg.Content})
	}

	history, err := s.memory.Recent(ctx, in.UserID, sess.SessionID, func(ctx context.Context, limit int) ([]ai.Message, error) {
		desc, err := s.repo.ListRecentMessagesDesc(ctx, in.UserID, sess.SessionID, sess.ContextResetAfterID, limit)
		if err != nil {
			return nil, err
		}
		return toProviderMessages(desc), nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load history: %w", err)
	}

	t.hits = s.retrieve(ctx, in.UserID, r.ID, in.Content)
	t.prompt = BuildPrompt(r.SystemPrompt, t.hits, history)
	return t, nil, nil
}

// retrieve degrades to no reference material when the lookup fails.
func (s *Service) retrieve(ctx context.Context, userID, roleID uint64, query string) []knowledge.Hit {
	if s.knowledge == nil {
		return nil
	}
	hits, err := s.knowledge.Retrieve(ctx, roleID, query, s.opts.TopK, s.opts.Threshold)
	if err != nil {
		s.log.Warn().Err(err).Uint64("role_id", roleID).Uint64("user_id", userID).Msg("knowledge lookup failed")
		return nil
	}
	return hits
}

func (s *Service) finish(ctx context.Context, t *turn, comp ai.Completion) (*SendResult, error) {
	replyTo := t.userMsg.ID
	reply := &Message{
		SessionID:  t.session.SessionID,
		UserID:     t.in.UserID,
		Type:       MessageAssistant,
		Content:    comp.Content,
		TokensUsed: comp.TotalTokens,
		RAGContext: datatypes.JSONSlice[RAGRef](ragRefs(t.hits)),
		ReplyToID:  &replyTo,
	}
	if err := s.repo.InsertAssistantMessage(ctx, reply); err != nil {
		metrics.RecordChatTurn("error")
		return nil, fmt.Errorf("store assistant message: %w", err)
	}
	s.memory.Append(ctx, t.in.UserID, t.session.SessionID, ai.Message{Role: ai.RoleAssistant, Content: reply.Content})

	res := &SendResult{
		Content:    reply.Content,
		SessionID:  t.session.SessionID,
		TokensUsed: reply.TokensUsed,
		MessageID:  reply.ID,
		NewSession: t.created,
		RAGContext: ragRefs(t.hits),
	}
	if res.RAGContext == nil {
		res.RAGContext = []RAGRef{}
	}
	if t.in.WithAudio {
		voice := t.role.Voice.Data()
		opts := speech.Options{Voice: t.in.Voice, Format: t.in.AudioFormat}
		if opts.Voice == "" {
			opts.Voice = voice.Name
		}
		if opts.Format == "" {
			opts.Format = voice.Format
		}
		res.AudioURL = s.attachSpeech(ctx, t.in.UserID, reply, opts)
	}
	metrics.RecordChatTurn("ok")
	return res, nil
}

func replayResult(sess *Session, reply *Message) *SendResult {
	refs := []RAGRef(reply.RAGContext)
	if refs == nil {
		refs = []RAGRef{}
	}
	return &SendResult{
		Content:    reply.Content,
		SessionID:  sess.SessionID,
		TokensUsed: reply.TokensUsed,
		MessageID:  reply.ID,
		AudioURL:   reply.AudioURL,
		RAGContext: refs,
	}
}

// resolveSession reuses a session owned by the user or builds a new one.
// A new session is returned unsaved; prepare stores it once the provider resolves.
// A session of another user, or a deleted one, is NOT_FOUND; a session bound
// to a different role than the one requested is VALIDATION.
func (s *Service) resolveSession(ctx context.Context, in SendInput) (*Session, *role.Role, bool, error) {
	if in.SessionID != "" {
		sess, err := s.ownedSession(ctx, in.UserID, in.SessionID)
		if err != nil {
			return nil, nil, false, err
		}
		if in.RoleID != nil || in.RoleKey != "" {
			requested, err := s.requestedRole(ctx, in)
			if err != nil {
				return nil, nil, false, err
			}
			if requested.ID != sess.RoleID {
				return nil, nil, false, apperr.Validation("session belongs to a different role")
			}
		}
		r, err := s.roles.ForChat(ctx, in.UserID, sess.RoleID)
		if err != nil {
			return nil, nil, false, err
		}
		return sess, r, false, nil
	}

	if in.RoleID == nil && in.RoleKey == "" {
		return nil, nil, false, apperr.Validation("role_id required when session_id is empty")
	}
	r, err := s.requestedRole(ctx, in)
	if err != nil {
		return nil, nil, false, err
	}
	sid, err := common.NewULID()
	if err != nil {
		return nil, nil, false, err
	}
	sess := &Session{
		SessionID: sid,
		UserID:    in.UserID,
		RoleID:    r.ID,
		Title:     sessionTitle(in.Content),
		Provider:  s.opts.Provider,
		Model:     s.opts.Model,
		Status:    SessionActive,
	}
	return sess, r, true, nil
}

func (s *Service) requestedRole(ctx context.Context, in SendInput) (*role.Role, error) {
	if in.RoleID != nil {
		return s.roles.ForChat(ctx, in.UserID, *in.RoleID)
	}
	return s.roles.ResolveByKey(ctx, in.UserID, in.RoleKey)
}

func (s *Service) ownedSession(ctx context.Context, userID uint64, sessionID string) (*Session, error) {
	sess, err := s.repo.GetSessionBySessionID(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("session not found")
		}
		return nil, err
	}
	// hide existence
	if sess.UserID != userID || sess.Status == SessionDeleted {
		return nil, apperr.NotFound("session not found")
	}
	return sess, nil
}

// attachSpeech synthesizes a reply and links the stored clip to it.
// Failures are recorded on the audio row and logged; the reply stays text-only.
func (s *Service) attachSpeech(ctx context.Context, userID uint64, msg *Message, opts speech.Options) string {
	format, ok := speech.NormalizeFormat(opts.Format)
	if !ok {
		format = "mp3"
	}
	opts.Format = format

	af := &AudioFile{
		MessageID: &msg.ID,
		UserID:    userID,
		Type:      AudioResponse,
		Format:    format,
		Status:    AudioProcessing,
	}
	if err := s.repo.CreateAudioFile(ctx, af); err != nil {
		s.log.Warn().Err(err).Uint64("message_id", msg.ID).Msg("audio row not created, replying with text only")
		return ""
	}
	fail := func(err error) string {
		s.log.Warn().Err(err).Uint64("message_id", msg.ID).Msg("tts failed, replying with text only")
		if uerr := s.repo.UpdateAudioFile(ctx, af.ID, map[string]any{
			"status": AudioFailed,
			"error":  truncate(err.Error(), 500),
		}); uerr != nil {
			s.log.Warn().Err(uerr).Uint64("audio_file_id", af.ID).Msg("audio row not updated")
		}
		return ""
	}

	audio, err := s.synthesize(ctx, userID, msg.Content, opts)
	if err != nil {
		return fail(err)
	}
	if s.objects == nil {
		return fail(errors.New("object storage not configured"))
	}
	key := objectstore.NewKey("audio/response", audio.Format, time.Now())
	url, err := s.objects.Put(ctx, key, audio.Data, audio.ContentType())
	if err != nil {
		return fail(fmt.Errorf("store audio: %w", err))
	}

	if err := s.repo.UpdateAudioFile(ctx, af.ID, map[string]any{
		"status":      AudioCompleted,
		"file_url":    url,
		"object_key":  key,
		"format":      audio.Format,
		"size_bytes":  int64(len(audio.Data)),
		"duration_ms": speech.DurationMS(audio),
	}); err != nil {
		s.log.Warn().Err(err).Uint64("audio_file_id", af.ID).Msg("audio row not updated")
	}
	if err := s.repo.SetMessageAudioURL(ctx, msg.ID, url); err != nil {
		s.log.Warn().Err(err).Uint64("message_id", msg.ID).Msg("message audio url not stored")
	}
	msg.AudioURL = url
	return url
}

func (s *Service) synthesize(ctx context.Context, userID uint64, text string, opts speech.Options) (*speech.Audio, error) {
	if s.tts == nil {
		return nil, errors.New("speech synthesis not configured")
	}
	start := time.Now()
	audio, err := s.tts.Synthesize(ctx, text, opts)
	s.tracker.Observe(ctx, apilog.Call{Type: apilog.TypeTTS, Provider: s.tts.Name(), Endpoint: "synthesize", UserID: userID}, start, 0, err)
	if err != nil {
		return nil, err
	}
	if audio == nil || len(audio.Data) == 0 {
		return nil, speech.ErrEmptyAudio
	}
	return audio, nil
}

// Synthesize converts text to speech for the caller.
func (s *Service) Synthesize(ctx context.Context, userID uint64, text, voice, format string) (*speech.Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("content required")
	}
	if utf8.RuneCountInString(text) > maxSpeechTextLen {
		return nil, apperr.Validation(fmt.Sprintf("content longer than %d characters", maxSpeechTextLen))
	}
	f, ok := speech.NormalizeFormat(format)
	if !ok {
		return nil, apperr.Validation("unsupported audio format")
	}
	audio, err := s.synthesize(ctx, userID, text, speech.Options{Voice: strings.TrimSpace(voice), Format: f})
	if err != nil {
		s.log.Warn().Err(err).Uint64("user_id", userID).Msg("tts failed")
		return nil, apperr.Wrap(apperr.KindTTSUnavailable, "speech synthesis unavailable", err)
	}
	return audio, nil
}

type Transcript struct {
	Text        string `json:"text"`
	AudioFileID uint64 `json:"audio_file_id"`
	AudioURL    string `json:"audio_url,omitempty"`
}

// Transcribe records the uploaded clip and converts it to text.
func (s *Service) Transcribe(ctx context.Context, userID uint64, audio []byte, filename, format string) (*Transcript, error) {
	if len(audio) == 0 {
		return nil, apperr.Validation("audio file is empty")
	}
	if s.stt == nil {
		return nil, apperr.Wrap(apperr.KindSTTUnavailable, "speech recognition unavailable", errors.New("not configured"))
	}

	af := &AudioFile{
		UserID:    userID,
		Type:      AudioInput,
		Format:    format,
		SizeBytes: int64(len(audio)),
		Status:    AudioProcessing,
	}
	if s.objects != nil {
		key := objectstore.NewKey("audio/input", format, time.Now())
		url, err := s.objects.Put(ctx, key, audio, speech.ContentTypeFor(format))
		if err != nil {
			s.log.Warn().Err(err).Uint64("user_id", userID).Msg("input audio not stored")
		} else {
			af.FileURL, af.ObjectKey = url, key
		}
	}
	if err := s.repo.CreateAudioFile(ctx, af); err != nil {
		return nil, fmt.Errorf("create audio row: %w", err)
	}

	start := time.Now()
	text, err := s.stt.Transcribe(ctx, audio, filename)
	s.tracker.Observe(ctx, apilog.Call{Type: apilog.TypeSTT, Provider: s.stt.Name(), Endpoint: "transcribe", UserID: userID}, start, 0, err)
	if err != nil {
		s.log.Warn().Err(err).Uint64("user_id", userID).Msg("stt failed")
		if uerr := s.repo.UpdateAudioFile(ctx, af.ID, map[string]any{"status": AudioFailed, "error": truncate(err.Error(), 500)}); uerr != nil {
			s.log.Warn().Err(uerr).Uint64("audio_file_id", af.ID).Msg("audio row not updated")
		}
		return nil, apperr.Wrap(apperr.KindSTTUnavailable, "speech recognition unavailable", err)
	}
	if err := s.repo.UpdateAudioFile(ctx, af.ID, map[string]any{"status": AudioCompleted}); err != nil {
		s.log.Warn().Err(err).Uint64("audio_file_id", af.ID).Msg("audio row not updated")
	}
	return &Transcript{Text: strings.TrimSpace(text), AudioFileID: af.ID, AudioURL: af.FileURL}, nil
}

func (s *Service) ListSessions(ctx context.Context, userID uint64, roleID *uint64, limit int) ([]Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListSessions(ctx, userID, roleID, limit)
}

func (s *Service) GetSession(ctx context.Context, userID uint64, sessionID string) (*Session, error) {
	return s.ownedSession(ctx, userID, sessionID)
}

type SessionUpdate struct {
	Title  *string
	Status *SessionStatus
}

func (s *Service) UpdateSession(ctx context.Context, userID uint64, sessionID string, in SessionUpdate) (*Session, error) {
	sess, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" || utf8.RuneCountInString(title) > 200 {
			return nil, apperr.Validation("title must be 1-200 characters")
		}
		fields["title"] = title
	}
	if in.Status != nil {
		if *in.Status != SessionActive && *in.Status != SessionArchived {
			return nil, apperr.Validation("status must be active or archived")
		}
		fields["status"] = *in.Status
	}
	if len(fields) == 0 {
		return sess, nil
	}
	if err := s.repo.UpdateSession(ctx, sess.SessionID, fields); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return s.repo.GetSessionBySessionID(ctx, sess.SessionID)
}

// DeleteSession soft-deletes the session and drops its short-term memory.
func (s *Service) DeleteSession(ctx context.Context, userID uint64, sessionID string) error {
	sess, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateSession(ctx, sess.SessionID, map[string]any{"status": SessionDeleted}); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := s.memory.Clear(ctx, userID, sess.SessionID); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.SessionID).Msg("short-term memory clear failed")
	}
	return nil
}

func (s *Service) ListMessages(ctx context.Context, userID uint64, sessionID string, limit int, beforeID uint64) ([]Message, error) {
	if _, err := s.ownedSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListMessages(ctx, userID, sessionID, limit, beforeID)
}

// ClearContext starts the model's context afresh: later turns only see
// messages stored after this call. Stored messages stay listed.
func (s *Service) ClearContext(ctx context.Context, userID uint64, sessionID string) error {
	sess, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	lastID, err := s.repo.LastMessageID(ctx, sess.SessionID)
	if err != nil {
		return fmt.Errorf("find last message: %w", err)
	}
	if err := s.repo.UpdateSession(ctx, sess.SessionID, map[string]any{"context_reset_after_id": lastID}); err != nil {
		return fmt.Errorf("reset context: %w", err)
	}
	return s.memory.Clear(ctx, userID, sess.SessionID)
}

type FeedbackInput struct {
	RoleID    uint64
	MessageID *uint64
	Type      FeedbackType
	Rating    *int
	Reason    string
	Comment   string
}

func (s *Service) SubmitFeedback(ctx context.Context, userID uint64, in FeedbackInput) (*Feedback, error) {
	switch in.Type {
	case FeedbackLike, FeedbackDislike:
	case FeedbackRating:
		if in.Rating == nil {
			return nil, apperr.Validation("rating required")
		}
	default:
		return nil, apperr.Validation("type must be like, dislike or rating")
	}
	if in.Rating != nil && (*in.Rating < 1 || *in.Rating > 5) {
		return nil, apperr.Validation("rating must be between 1 and 5")
	}
	if utf8.RuneCountInString(in.Comment) > 2000 {
		return nil, apperr.Validation("comment too long")
	}
	if _, err := s.roles.ForChat(ctx, userID, in.RoleID); err != nil {
		return nil, err
	}
	if in.MessageID != nil {
		msg, err := s.repo.GetMessage(ctx, *in.MessageID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.NotFound("message not found")
			}
			return nil, err
		}
		if msg.UserID != userID {
			return nil, apperr.NotFound("message not found")
		}
	}

	fb := &Feedback{
		UserID:    userID,
		RoleID:    in.RoleID,
		MessageID: in.MessageID,
		Type:      in.Type,
		Rating:    in.Rating,
		Reason:    truncate(strings.TrimSpace(in.Reason), 100),
		Comment:   strings.TrimSpace(in.Comment),
	}
	if err := s.repo.CreateFeedback(ctx, fb); err != nil {
		return nil, fmt.Errorf("create feedback: %w", err)
	}
	return fb, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
