package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/lessonflow/internal/config"
	"github.com/stemsi/lessonflow/internal/engine"
	"github.com/stemsi/lessonflow/internal/model"
	ws "github.com/stemsi/lessonflow/internal/websocket"
)

// ErrSessionNotOpen means the learner has no live player for the lesson.
var ErrSessionNotOpen = errors.New("lesson session is not open")

const subscriberBuffer = 64

// LessonLoader returns lesson documents.
type LessonLoader interface {
	Load(ctx context.Context, id uuid.UUID) (model.LessonDocument, error)
}

// BookmarkStore reads and writes persisted bookmarks.
type BookmarkStore interface {
	BookmarkWriter
	Get(ctx context.Context, lessonID uuid.UUID, learnerID string) (*model.Bookmark, error)
}

// CompletionStore reads persisted completions.
type CompletionStore interface {
	Get(ctx context.Context, lessonID uuid.UUID, learnerID string) (*model.LessonCompletion, error)
}

// PlayerService keeps one live engine.Player per learner and lesson.
type PlayerService struct {
	lessons     LessonLoader
	bookmarks   BookmarkStore
	completions CompletionStore
	rdb         *redis.Client
	engine      config.EngineConfig
	production  bool
	idle        time.Duration
	clock       func() time.Time
	log         zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(
	lessons LessonLoader,
	bookmarks BookmarkStore,
	completions CompletionStore,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *PlayerService {
	return &PlayerService{
		lessons:     lessons,
		bookmarks:   bookmarks,
		completions: completions,
		rdb:         rdb,
		engine:      cfg.Engine,
		production:  cfg.IsProduction(),
		idle:        cfg.SessionIdleTimeout,
		clock:       time.Now,
		log:         log.With().Str("component", "player_service").Logger(),
		sessions:    make(map[string]*session),
	}
}

type session struct {
	mu       sync.Mutex
	key      string
	lessonID uuid.UUID
	learner  Learner
	player   *engine.Player
	title    string
	audioURL string
	timer    *time.Timer
	lastSeen time.Time
	closed   bool
	// completedBefore is fixed when the session opens.
	completedBefore bool
	// sockets counts attached stream connections; guarded by PlayerService.mu.
	sockets int

	subMu   sync.Mutex
	subs    map[int]chan ws.Message
	nextSub int
	log     zerolog.Logger
}

func sessionKey(learnerID string, lessonID uuid.UUID) string {
	return learnerID + "|" + lessonID.String()
}

// publish never blocks; a slow subscriber loses events.
func (s *session) publish(event ws.Event, data any) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- ws.Message{Event: event, Data: data}:
		default:
			s.log.Warn().Int("subscriber", id).Str("event", string(event)).Msg("Subscriber buffer full, dropping event")
		}
	}
}

func (s *session) publishAll(msgs []ws.Message) {
	for _, m := range msgs {
		s.publish(m.Event, m.Data)
	}
}

// Opened is the result of opening a lesson.
type Opened struct {
	Title               string                `json:"title"`
	AudioURL            string                `json:"audio_url,omitempty"`
	Lesson              engine.RenderedLesson `json:"lesson"`
	State               engine.State          `json:"state"`
	Resumed             bool                  `json:"resumed"`
	PreviouslyCompleted bool                  `json:"previously_completed"`
}

// Open starts, or rejoins, the learner's session for a lesson.
func (s *PlayerService) Open(ctx context.Context, learner Learner, lessonID uuid.UUID) (*Opened, error) {
	if sess := s.lookup(learner.ID, lessonID); sess != nil {
		if opened, ok := s.rejoin(sess); ok {
			return opened, nil
		}
	}

	doc, err := s.lessons.Load(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	blocks, err := engine.Assemble(doc, engine.AssembleOptions{Premium: learner.Premium})
	if err != nil {
		return nil, err
	}

	sess := &session{
		key:      sessionKey(learner.ID, lessonID),
		lessonID: lessonID,
		learner:  learner,
		title:    doc.Title,
		audioURL: doc.AudioURL,
		lastSeen: s.clock(),
		subs:     make(map[int]chan ws.Message),
		log: s.log.With().
			Str("lesson_id", lessonID.String()).
			Str("learner_id", learner.ID).
			Logger(),
	}
	outbox := newRedisOutbox(s.rdb, s.bookmarks, lessonID.String(), learner.ID, sess.publish, s.clock, s.log)

	player, err := engine.NewPlayer(blocks, outbox, s.playerOptions(learner, lessonID, hasAudio(doc, blocks)))
	if err != nil {
		return nil, err
	}
	sess.player = player

	resumed := s.restore(ctx, sess)
	opened := &Opened{
		Title:    doc.Title,
		AudioURL: doc.AudioURL,
		Lesson:   player.Render(),
		State:    player.Snapshot(),
		Resumed:  resumed,
	}
	sess.completedBefore = s.completedBefore(ctx, sess)
	opened.PreviouslyCompleted = sess.completedBefore

	s.mu.Lock()
	if existing, ok := s.sessions[sess.key]; ok && !existing.isClosed() {
		s.mu.Unlock()
		// Lost a race with a concurrent Open; join the winner.
		return s.Open(ctx, learner, lessonID)
	}
	s.sessions[sess.key] = sess
	s.mu.Unlock()

	sess.log.Info().Int("blocks", len(blocks)).Bool("resumed", resumed).Msg("Lesson session opened")
	return opened, nil
}

func (s *PlayerService) rejoin(sess *session) (*Opened, bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return nil, false
	}
	sess.lastSeen = s.clock()
	return &Opened{
		Title:    sess.title,
		AudioURL: sess.audioURL,
		Lesson:   sess.player.Render(),
		State:    sess.player.Snapshot(),
		Resumed:  true,

		PreviouslyCompleted: sess.completedBefore,
	}, true
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// hasAudio reports whether the lesson carries a narration track, either on
// the document or through a podcast block.
func hasAudio(doc model.LessonDocument, blocks []model.Block) bool {
	if doc.AudioURL != "" {
		return true
	}
	for _, b := range blocks {
		if b.Type == model.BlockPodcastSync {
			return true
		}
	}
	return false
}

func (s *PlayerService) playerOptions(learner Learner, lessonID uuid.UUID, audio bool) engine.Options {
	e := s.engine
	return engine.Options{
		LessonID:   lessonID.String(),
		LearnerID:  learner.ID,
		HasAudio:   audio,
		Production: s.production,
		Thresholds: engine.Thresholds{
			Completion:    e.CompletionThreshold,
			NoInteractive: e.NoInteractiveThreshold,
		},
		Loader: engine.LoaderConfig{
			Enabled:           e.LazyLoading,
			PreloadOffset:     e.PreloadOffset,
			InitialEager:      e.InitialEagerBlocks,
			PlaceholderHeight: e.PlaceholderHeight,
		},
		Sync: engine.SyncConfig{
			Tolerance:   e.CutPointTolerance,
			ResumeDelay: e.AudioResumeDelay,
			AutoScroll:  e.AudioAutoScroll,
		},
		XP: engine.XPTable{
			Quiz:           e.XPQuiz,
			FillBlank:      e.XPFillBlank,
			Sandbox:        e.XPSandbox,
			LessonComplete: e.XPLessonComplete,
		},
		Clock: s.clock,
		Log:   s.log,
	}
}

// restore prefers the live Redis bookmark over the persisted one.
func (s *PlayerService) restore(ctx context.Context, sess *session) bool {
	b, err := loadLiveBookmark(ctx, s.rdb, sess.lessonID.String(), sess.learner.ID)
	if err != nil {
		sess.log.Warn().Err(err).Msg("Failed to read live bookmark")
	}
	if b == nil && s.bookmarks != nil {
		b, err = s.bookmarks.Get(ctx, sess.lessonID, sess.learner.ID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			sess.log.Warn().Err(err).Msg("Failed to read bookmark")
		}
	}
	if b == nil {
		return false
	}
	sess.player.Restore(*b)
	return true
}

// completedBefore checks PostgreSQL, then the Redis marker covering
// completions the worker has not persisted yet.
func (s *PlayerService) completedBefore(ctx context.Context, sess *session) bool {
	if s.completions != nil {
		c, err := s.completions.Get(ctx, sess.lessonID, sess.learner.ID)
		if err != nil {
			sess.log.Warn().Err(err).Msg("Failed to read completion record")
		}
		if c != nil {
			return true
		}
	}
	key := config.CacheKey.LearnerCompletedKey(sess.lessonID.String(), sess.learner.ID)
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		sess.log.Warn().Err(err).Msg("Failed to read completed marker")
	}
	return n > 0
}

func (s *PlayerService) lookup(learnerID string, lessonID uuid.UUID) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionKey(learnerID, lessonID)]
}

// with runs fn on the learner's live player under the session lock, then
// arms the audio resume timer if the player asked for one.
func (s *PlayerService) with(learner Learner, lessonID uuid.UUID, fn func(p *engine.Player) error) error {
	sess := s.lookup(learner.ID, lessonID)
	if sess == nil {
		return ErrSessionNotOpen
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return ErrSessionNotOpen
	}
	sess.lastSeen = s.clock()
	if err := fn(sess.player); err != nil {
		return err
	}
	s.armResume(sess)
	return nil
}

func (s *PlayerService) armResume(sess *session) {
	at, ok := sess.player.ResumeAt()
	if !ok {
		return
	}
	if sess.timer != nil {
		sess.timer.Stop()
	}
	sess.timer = time.AfterFunc(at.Sub(s.clock()), func() {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		if sess.closed {
			return
		}
		sess.publishAll(UpdateMessages(sess.player.Poll(s.clock())))
		if _, pending := sess.player.ResumeAt(); pending {
			s.armResume(sess)
		}
	})
}

func (s *PlayerService) update(learner Learner, lessonID uuid.UUID, fn func(p *engine.Player) (engine.Update, error)) (engine.Update, error) {
	var u engine.Update
	err := s.with(learner, lessonID, func(p *engine.Player) error {
		var err error
		u, err = fn(p)
		return err
	})
	return u, err
}

// Complete records a block completion.
func (s *PlayerService) Complete(ctx context.Context, learner Learner, lessonID uuid.UUID, index int, data model.CompletionData) (engine.Update, error) {
	return s.update(learner, lessonID, func(p *engine.Player) (engine.Update, error) {
		return p.CompleteBlock(ctx, index, data)
	})
}

// Progress records the consumption percentage.
func (s *PlayerService) Progress(ctx context.Context, learner Learner, lessonID uuid.UUID, pct, scrollOffset float64) (engine.Update, error) {
	return s.update(learner, lessonID, func(p *engine.Player) (engine.Update, error) {
		return p.RecordProgress(ctx, pct, scrollOffset)
	})
}

// Viewport reports a block entering the viewport.
func (s *PlayerService) Viewport(learner Learner, lessonID uuid.UUID, index int) (engine.Update, error) {
	return s.update(learner, lessonID, func(p *engine.Player) (engine.Update, error) {
		return p.EnterViewport(index)
	})
}

func (s *PlayerService) Play(learner Learner, lessonID uuid.UUID) (engine.Update, error) {
	return s.update(learner, lessonID, func(p *engine.Player) (engine.Update, error) {
		return p.Play()
	})
}

func (s *PlayerService) Pause(learner Learner, lessonID uuid.UUID) (engine.Update, error) {
	return s.update(learner, lessonID, func(p *engine.Player) (engine.Update, error) {
		return p.Pause()
	})
}

func (s *PlayerService) Tick(ctx context.Context, learner Learner, lessonID uuid.UUID, t float64) (engine.Update, error) {
	return s.update(learner, lessonID, func(p *engine.Player) (engine.Update, error) {
		return p.Tick(ctx, t)
	})
}

func (s *PlayerService) Seek(ctx context.Context, learner Learner, lessonID uuid.UUID, t float64) (engine.Update, error) {
	return s.update(learner, lessonID, func(p *engine.Player) (engine.Update, error) {
		return p.Seek(ctx, t)
	})
}

// Retry re-renders a block that failed to render.
func (s *PlayerService) Retry(learner Learner, lessonID uuid.UUID, index int) (engine.RenderedBlock, error) {
	var rb engine.RenderedBlock
	err := s.with(learner, lessonID, func(p *engine.Player) error {
		var err error
		rb, err = p.RetryBlock(index)
		return err
	})
	return rb, err
}

// State returns a snapshot of the live session.
func (s *PlayerService) State(learner Learner, lessonID uuid.UUID) (engine.State, error) {
	var st engine.State
	err := s.with(learner, lessonID, func(p *engine.Player) error {
		st = p.Snapshot()
		return nil
	})
	return st, err
}

// Render returns the current view of the lesson.
func (s *PlayerService) Render(learner Learner, lessonID uuid.UUID) (engine.RenderedLesson, error) {
	var rl engine.RenderedLesson
	err := s.with(learner, lessonID, func(p *engine.Player) error {
		rl = p.Render()
		return nil
	})
	return rl, err
}

// Subscribe streams asynchronous events of the session until cancel is
// called or the session closes.
func (s *PlayerService) Subscribe(learner Learner, lessonID uuid.UUID) (<-chan ws.Message, func(), error) {
	sess := s.lookup(learner.ID, lessonID)
	if sess == nil || sess.isClosed() {
		return nil, nil, ErrSessionNotOpen
	}

	ch := make(chan ws.Message, subscriberBuffer)
	sess.subMu.Lock()
	id := sess.nextSub
	sess.nextSub++
	sess.subs[id] = ch
	sess.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			sess.subMu.Lock()
			defer sess.subMu.Unlock()
			if c, ok := sess.subs[id]; ok {
				delete(sess.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel, nil
}

// Exit stops playback, persists the bookmark synchronously and drops the
// session. A failed bookmark write is logged, never surfaced.
func (s *PlayerService) Exit(ctx context.Context, learner Learner, lessonID uuid.UUID) error {
	s.mu.Lock()
	key := sessionKey(learner.ID, lessonID)
	sess, ok := s.sessions[key]
	if ok {
		delete(s.sessions, key)
	}
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotOpen
	}
	s.close(ctx, sess)
	return nil
}

// Connect attaches a stream connection to the live session. Each device
// streaming the same lesson calls it once and Disconnect when it goes away.
func (s *PlayerService) Connect(learner Learner, lessonID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionKey(learner.ID, lessonID)]
	if !ok {
		return ErrSessionNotOpen
	}
	sess.sockets++
	return nil
}

// Disconnect detaches a stream connection. The session exits only when the
// last connection is gone; it reports whether it did.
func (s *PlayerService) Disconnect(ctx context.Context, learner Learner, lessonID uuid.UUID) (bool, error) {
	s.mu.Lock()
	key := sessionKey(learner.ID, lessonID)
	sess, ok := s.sessions[key]
	if ok {
		if sess.sockets > 0 {
			sess.sockets--
		}
		if sess.sockets > 0 {
			s.mu.Unlock()
			sess.log.Debug().Int("connections", sess.sockets).Msg("Connection detached, session kept")
			return false, nil
		}
		delete(s.sessions, key)
	}
	s.mu.Unlock()
	if !ok {
		return false, ErrSessionNotOpen
	}
	s.close(ctx, sess)
	return true, nil
}

func (s *PlayerService) close(ctx context.Context, sess *session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return
	}
	if sess.timer != nil {
		sess.timer.Stop()
	}
	if err := sess.player.Exit(ctx); err != nil {
		sess.log.Error().Err(err).Msg("Failed to persist bookmark on exit")
	}
	sess.closed = true

	sess.subMu.Lock()
	for id, ch := range sess.subs {
		delete(sess.subs, id)
		close(ch)
	}
	sess.subMu.Unlock()

	sess.log.Info().Msg("Lesson session closed")
}

// Active returns the number of live sessions.
func (s *PlayerService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// EvictIdle closes sessions untouched for longer than the idle timeout.
func (s *PlayerService) EvictIdle(ctx context.Context) int {
	cutoff := s.clock().Add(-s.idle)

	s.mu.Lock()
	var stale []*session
	for key, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.lastSeen.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			stale = append(stale, sess)
			delete(s.sessions, key)
		}
	}
	s.mu.Unlock()

	for _, sess := range stale {
		s.close(ctx, sess)
	}
	return len(stale)
}

// Shutdown closes every session, persisting each bookmark.
func (s *PlayerService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	all := make([]*session, 0, len(s.sessions))
	for key, sess := range s.sessions {
		all = append(all, sess)
		delete(s.sessions, key)
	}
	s.mu.Unlock()

	for _, sess := range all {
		s.close(ctx, sess)
	}
	if len(all) > 0 {
		s.log.Info().Int("count", len(all)).Msg("Closed live sessions")
	}
}

// StartJanitor evicts idle sessions until ctx is cancelled. Call in a goroutine.
func (s *PlayerService) StartJanitor(ctx context.Context) {
	interval := s.idle / 2
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(context.Background()); n > 0 {
				s.log.Info().Int("evicted", n).Msg("Evicted idle sessions")
			}
		}
	}
}
