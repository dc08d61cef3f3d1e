package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/lessonflow/internal/model"
)

var (
	ErrNoBlocks          = errors.New("lesson has no blocks")
	ErrDuplicateBlockID  = errors.New("duplicate block id")
	ErrBlockOutOfRange   = errors.New("block index out of range")
	ErrSectionLocked     = errors.New("section is locked")
	ErrAlreadyAnswered   = errors.New("block was already answered and does not allow retry")
	ErrPlayerClosed      = errors.New("player is closed")
	ErrNothingToRetry    = errors.New("block has not failed to render")
	ErrInvalidPercentage = errors.New("percentage must be a finite number")
)

// Outbox is every point where the engine writes outward. Everything except
// SaveBookmarkNow is fire-and-forget: implementations log and swallow their
// own failures.
type Outbox interface {
	BlockCompleted(ctx context.Context, index int, data model.CompletionData)
	ProgressUpdated(ctx context.Context, p model.ProgressUpdate)
	AwardXP(ctx context.Context, amount int, reason string)
	ShowNotification(ctx context.Context, message string, severity model.Severity)
	SaveBookmark(ctx context.Context, b model.Bookmark)
	SaveBookmarkNow(ctx context.Context, b model.Bookmark) error
	LessonCompleted(ctx context.Context, c model.LessonCompletion)
}

// XPTable is the XP granted per correctly answered block type and per
// completed lesson.
type XPTable struct {
	Quiz           int
	FillBlank      int
	Sandbox        int
	LessonComplete int
}

func (x XPTable) forType(t model.BlockType) int {
	switch t {
	case model.BlockQuiz:
		return x.Quiz
	case model.BlockFillBlank:
		return x.FillBlank
	case model.BlockSandbox:
		return x.Sandbox
	}
	return 0
}

// Options configures a Player.
type Options struct {
	LessonID   string
	LearnerID  string
	HasAudio   bool
	Production bool

	Thresholds Thresholds
	Loader     LoaderConfig
	Sync       SyncConfig
	XP         XPTable

	Clock func() time.Time
	Log   zerolog.Logger
}

// Update describes what changed as the result of one Player call.
type Update struct {
	Verdict   *Verdict              `json:"verdict,omitempty"`
	Unlocked  []string              `json:"unlocked,omitempty"`
	Mounted   []int                 `json:"mounted,omitempty"`
	Progress  *model.ProgressUpdate `json:"progress,omitempty"`
	XP        int                   `json:"xp,omitempty"`
	Completed bool                  `json:"completed,omitempty"`
	Tail      []RenderedBlock       `json:"tail,omitempty"`
	Audio     []AudioEvent          `json:"audio,omitempty"`
}

// Player runs one learner through one lesson. It is the single entry point
// for completion events and derives every piece of state from them. A
// Player is not safe for concurrent use.
type Player struct {
	opts   Options
	outbox Outbox
	log    zerolog.Logger

	blocks []model.Block
	owner  []int
	gate   *Gate
	acct   *Accountant
	loader *Loader
	sync   *Synchronizer

	answered map[int]bool
	awarded  map[int]bool
	failed   map[int]bool
	tail     []model.Block

	lastIndex    int
	scrollOffset float64
	closed       bool
}

// NewPlayer segments blocks and wires the state machines together.
func NewPlayer(blocks []model.Block, outbox Outbox, opts Options) (*Player, error) {
	if len(blocks) == 0 {
		return nil, ErrNoBlocks
	}
	ids := make(map[string]struct{}, len(blocks))
	for _, b := range blocks {
		if _, dup := ids[b.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateBlockID, b.ID)
		}
		ids[b.ID] = struct{}{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	sections := Segment(blocks)
	p := &Player{
		opts:   opts,
		outbox: outbox,
		log: opts.Log.With().
			Str("component", "player").
			Str("lesson_id", opts.LessonID).
			Str("learner_id", opts.LearnerID).
			Logger(),
		blocks:   blocks,
		owner:    ownerIndex(sections),
		gate:     NewGate(sections),
		acct:     NewAccountant(blocks, opts.Thresholds),
		loader:   NewLoader(len(blocks), opts.Loader),
		answered: make(map[int]bool),
		awarded:  make(map[int]bool),
		failed:   make(map[int]bool),
	}
	p.sync = NewSynchronizer(BuildTimeline(sections), opts.Sync, p.gate.Answered)
	return p, nil
}

// Sections returns the gated section list.
func (p *Player) Sections() []Section {
	return p.gate.Sections()
}

func (p *Player) section(index int) Section {
	return p.gate.Sections()[p.owner[index]]
}

func (p *Player) check(index int) error {
	if p.closed {
		return ErrPlayerClosed
	}
	if index < 0 || index >= len(p.blocks) {
		return ErrBlockOutOfRange
	}
	return nil
}

// Restore resumes from a bookmark. The bookmarked block is mounted even if
// it sits behind a gate, so the learner lands where they left off once the
// gate reopens.
func (p *Player) Restore(b model.Bookmark) {
	if b.BlockIndex < 0 || b.BlockIndex >= len(p.blocks) {
		return
	}
	p.lastIndex = b.BlockIndex
	p.scrollOffset = b.ScrollPosition
	p.loader.Enter(b.BlockIndex)
}

// CompleteBlock is the single completion entry point.
func (p *Player) CompleteBlock(ctx context.Context, index int, data model.CompletionData) (Update, error) {
	var u Update
	if err := p.check(index); err != nil {
		return u, err
	}
	b := p.blocks[index]
	sec := p.section(index)
	if !sec.Visible() {
		return u, ErrSectionLocked
	}
	if b.Type.Interactive() && p.answered[index] && !b.Config.AllowRetry {
		return u, ErrAlreadyAnswered
	}

	data, verdict, err := Grade(b, data)
	switch {
	case errors.Is(err, model.ErrInvalidContent) && b.Type.Interactive():
		// A broken block counts as attempted so it can never strand the
		// learner behind its gate. It is graded wrong and earns nothing.
		p.log.Warn().Err(err).Str("block_id", b.ID).Int("index", index).Msg("Ungradable block content")
		data.Correct = model.Bool(false)
		verdict = Verdict{Correct: data.Correct, Ungradable: true}
	case err != nil:
		return u, err
	}
	if b.Type.Interactive() {
		p.answered[index] = true
		u.Verdict = &verdict
	}

	p.acct.MarkComplete(index)
	p.outbox.BlockCompleted(ctx, index, data)

	if sec.IsGate() {
		unlocked, err := p.gate.OnGateAnswered(sec.ID, data.WasCorrect())
		if err != nil {
			return u, err
		}
		// Visibility is settled; only now may the loader mount.
		for _, si := range unlocked {
			s := p.gate.Sections()[si]
			u.Unlocked = append(u.Unlocked, s.ID)
			u.Mounted = append(u.Mounted, p.loader.Enter(s.Start)...)
		}
		p.sync.OnGateAnswered(sec.ID, p.opts.Clock())
	}

	if index > p.lastIndex {
		p.lastIndex = index
	}
	if data.ScrollOffset > 0 {
		p.scrollOffset = data.ScrollOffset
	}

	switch {
	case verdict.Ungradable:
		p.outbox.ShowNotification(ctx, "Soal ini tidak dapat dinilai, materi berikutnya tetap terbuka.", model.SeverityWarning)
	case b.Type.Interactive():
		u.XP = p.notifyInteractive(ctx, index, b, data)
	}

	prog := p.acct.Progress()
	u.Progress = &prog
	p.outbox.ProgressUpdated(ctx, prog)

	// A completed lesson keeps no bookmark.
	if p.acct.Evaluate() {
		p.complete(ctx, &u)
	} else if !p.acct.Done() {
		p.outbox.SaveBookmark(ctx, p.bookmark())
	}
	return u, nil
}

func (p *Player) notifyInteractive(ctx context.Context, index int, b model.Block, data model.CompletionData) int {
	correct := data.WasCorrect()
	switch {
	case b.Type == model.BlockSandbox:
		p.outbox.ShowNotification(ctx, "Latihan kode selesai!", model.SeveritySuccess)
	case correct:
		p.outbox.ShowNotification(ctx, "Jawaban benar!", model.SeveritySuccess)
	default:
		p.outbox.ShowNotification(ctx, "Jawaban belum tepat, materi berikutnya tetap terbuka.", model.SeverityInfo)
	}

	if !correct || p.awarded[index] {
		return 0
	}
	amount := p.opts.XP.forType(b.Type)
	if amount <= 0 {
		return 0
	}
	p.awarded[index] = true
	p.outbox.AwardXP(ctx, amount, fmt.Sprintf("%s:%s", b.Type, b.ID))
	return amount
}

// RecordProgress reports the scroll/consumption percentage.
func (p *Player) RecordProgress(ctx context.Context, pct, scrollOffset float64) (Update, error) {
	var u Update
	if p.closed {
		return u, ErrPlayerClosed
	}
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return u, ErrInvalidPercentage
	}
	if scrollOffset > 0 {
		p.scrollOffset = scrollOffset
	}
	if p.acct.RecordProgress(pct) {
		p.complete(ctx, &u)
	} else if scrollOffset > 0 && !p.acct.Done() {
		p.outbox.SaveBookmark(ctx, p.bookmark())
	}
	return u, nil
}

func (p *Player) complete(ctx context.Context, u *Update) {
	base := len(p.blocks)
	p.tail = []model.Block{
		{
			ID:   "synthetic-checkpoint",
			Type: model.BlockProgressCheckpoint,
			Content: model.MustContent(model.ProgressCheckpointContent{
				Title:   "Pelajaran selesai",
				Message: "Kamu telah menyelesaikan seluruh materi ini.",
			}),
			Config: model.BlockConfig{Synthetic: true},
		},
		{
			ID:   "synthetic-cta",
			Type: model.BlockCallToAction,
			Content: model.MustContent(model.CallToActionContent{
				Title:       "Lanjutkan belajar",
				Text:        "Pilih pelajaran berikutnya.",
				ButtonLabel: "Lihat pelajaran",
				URL:         "/lessons",
			}),
			Config: model.BlockConfig{Synthetic: true},
		},
	}

	rc := p.renderContext()
	for i, b := range p.tail {
		u.Tail = append(u.Tail, renderBlock(rc, base+i, b))
	}
	u.Completed = true

	p.log.Info().Float64("percentage", p.acct.Percentage()).Msg("Lesson completed")
	if p.opts.XP.LessonComplete > 0 {
		p.outbox.AwardXP(ctx, p.opts.XP.LessonComplete, "lesson_complete")
		u.XP += p.opts.XP.LessonComplete
	}
	p.outbox.ShowNotification(ctx, "Selamat, pelajaran selesai!", model.SeveritySuccess)
	p.outbox.LessonCompleted(ctx, model.LessonCompletion{
		LessonID:    p.opts.LessonID,
		LearnerID:   p.opts.LearnerID,
		Percentage:  p.acct.Percentage(),
		CompletedAt: p.opts.Clock(),
	})
}

// EnterViewport reports that block index scrolled into view.
func (p *Player) EnterViewport(index int) (Update, error) {
	var u Update
	if err := p.check(index); err != nil {
		return u, err
	}
	if !p.section(index).Visible() {
		return u, ErrSectionLocked
	}
	u.Mounted = p.loader.Enter(index)
	if index > p.lastIndex {
		p.lastIndex = index
	}
	return u, nil
}

// Play starts or resumes audio playback.
func (p *Player) Play() (Update, error) {
	if err := p.audioReady(); err != nil {
		return Update{}, err
	}
	ev, err := p.sync.Play()
	return Update{Audio: ev}, err
}

// Pause is a user-initiated pause.
func (p *Player) Pause() (Update, error) {
	if err := p.audioReady(); err != nil {
		return Update{}, err
	}
	return Update{Audio: p.sync.Pause()}, nil
}

// Tick feeds an elapsed-time report from the audio element.
func (p *Player) Tick(ctx context.Context, t float64) (Update, error) {
	if err := p.audioReady(); err != nil {
		return Update{}, err
	}
	return p.audioUpdate(ctx, p.sync.Tick(t)), nil
}

// Seek moves playback to t.
func (p *Player) Seek(ctx context.Context, t float64) (Update, error) {
	if err := p.audioReady(); err != nil {
		return Update{}, err
	}
	return p.audioUpdate(ctx, p.sync.Seek(t)), nil
}

// Poll performs a pending automatic resume once its deadline has passed.
func (p *Player) Poll(now time.Time) Update {
	if p.closed || !p.opts.HasAudio {
		return Update{}
	}
	return Update{Audio: p.sync.Poll(now)}
}

// ResumeAt exposes the pending automatic resume deadline.
func (p *Player) ResumeAt() (time.Time, bool) {
	return p.sync.ResumeAt()
}

func (p *Player) audioReady() error {
	if p.closed {
		return ErrPlayerClosed
	}
	if !p.opts.HasAudio {
		return ErrNoAudio
	}
	return nil
}

func (p *Player) audioUpdate(ctx context.Context, events []AudioEvent) Update {
	for _, ev := range events {
		if ev.Kind == AudioStateChanged && ev.Reason == PauseQuiz {
			p.outbox.ShowNotification(ctx, "Jawab pertanyaan berikut untuk melanjutkan audio.", model.SeverityInfo)
		}
	}
	return Update{Audio: events}
}

// Exit stops playback and persists the bookmark synchronously. A completed
// lesson has no bookmark to save. The player is unusable afterwards.
func (p *Player) Exit(ctx context.Context) error {
	if p.closed {
		return nil
	}
	p.sync.Stop()
	p.closed = true
	if p.acct.Done() {
		return nil
	}
	return p.outbox.SaveBookmarkNow(ctx, p.bookmark())
}

func (p *Player) bookmark() model.Bookmark {
	return model.Bookmark{
		LessonID:       p.opts.LessonID,
		LearnerID:      p.opts.LearnerID,
		BlockIndex:     p.lastIndex,
		ScrollPosition: p.scrollOffset,
		Timestamp:      p.opts.Clock().UnixMilli(),
	}
}

// playback adapts the Synchronizer to PlaybackController.
type playback struct {
	p *Player
}

func (pc playback) CurrentTime() float64 { return pc.p.sync.CurrentTime() }
func (pc playback) State() PlaybackState { return pc.p.sync.State() }
func (pc playback) Seek(t float64) []AudioEvent {
	return pc.p.sync.Seek(t)
}

func (p *Player) renderContext() RenderContext {
	rc := RenderContext{
		Production: p.opts.Production,
		Completed:  p.acct.IsComplete,
	}
	if p.opts.HasAudio {
		rc.Playback = playback{p: p}
	}
	return rc
}

// RenderedSection is the view of one section.
type RenderedSection struct {
	ID              string          `json:"id"`
	Type            SectionType     `json:"type"`
	Visible         bool            `json:"visible"`
	PrecedingQuizID string          `json:"preceding_quiz_id,omitempty"`
	IsLastQuiz      bool            `json:"is_last_quiz"`
	IsLastInGroup   bool            `json:"is_last_in_group"`
	UnlockHint      bool            `json:"unlock_hint"`
	Highlighted     bool            `json:"highlighted"`
	Blocks          []RenderedBlock `json:"blocks"`
}

// RenderedLesson is the full view handed to a client.
type RenderedLesson struct {
	LessonID  string               `json:"lesson_id"`
	Sections  []RenderedSection    `json:"sections"`
	Tail      []RenderedBlock      `json:"tail,omitempty"`
	Progress  model.ProgressUpdate `json:"progress"`
	Completed bool                 `json:"completed"`
	Audio     *AudioSnapshot       `json:"audio,omitempty"`
}

// Render builds the view. Hidden sections carry no blocks; unmounted blocks
// are placeholders.
func (p *Player) Render() RenderedLesson {
	rc := p.renderContext()
	sections := p.gate.Sections()
	out := RenderedLesson{
		LessonID:  p.opts.LessonID,
		Sections:  make([]RenderedSection, 0, len(sections)),
		Progress:  p.acct.Progress(),
		Completed: p.acct.Done(),
	}

	for i, s := range sections {
		rs := RenderedSection{
			ID:              s.ID,
			Type:            s.Type,
			Visible:         s.Visible(),
			PrecedingQuizID: s.PrecedingQuizID,
			IsLastQuiz:      s.IsLastQuiz,
			IsLastInGroup:   s.IsLastInGroup,
			Highlighted:     p.sync.ActiveSection() == s.ID,
		}
		if s.IsGate() && s.IsLastInGroup && i+1 < len(sections) && !p.gate.Answered(s.ID) {
			rs.UnlockHint = true
		}
		if s.Visible() {
			for j := range s.Blocks {
				rs.Blocks = append(rs.Blocks, p.renderAt(rc, s.Start+j))
			}
		}
		out.Sections = append(out.Sections, rs)
	}

	for i, b := range p.tail {
		out.Tail = append(out.Tail, renderBlock(rc, len(p.blocks)+i, b))
	}
	if p.opts.HasAudio {
		snap := p.audioSnapshot()
		out.Audio = &snap
	}
	return out
}

func (p *Player) renderAt(rc RenderContext, index int) RenderedBlock {
	b := p.blocks[index]
	if !p.loader.Mounted(index) {
		return RenderedBlock{
			Index:       index,
			ID:          b.ID,
			Type:        b.Type,
			Placeholder: p.loader.placeholder(),
			Completed:   p.acct.IsComplete(index),
		}
	}
	rb := renderBlock(rc, index, b)
	if rb.Error != nil {
		if !p.failed[index] {
			p.log.Error().
				Int("block_index", index).
				Str("block_type", string(b.Type)).
				Str("detail", rb.Error.Detail).
				Msg("Block render failed")
		}
		p.failed[index] = true
	} else {
		delete(p.failed, index)
	}
	return rb
}

// RetryBlock re-renders a single block that previously failed.
func (p *Player) RetryBlock(index int) (RenderedBlock, error) {
	if err := p.check(index); err != nil {
		return RenderedBlock{}, err
	}
	if !p.failed[index] {
		return RenderedBlock{}, ErrNothingToRetry
	}
	if !p.section(index).Visible() {
		return RenderedBlock{}, ErrSectionLocked
	}
	p.loader.Enter(index)
	return p.renderAt(p.renderContext(), index), nil
}

// AudioSnapshot is the observable playback state.
type AudioSnapshot struct {
	State         PlaybackState `json:"state"`
	Reason        PauseReason   `json:"reason,omitempty"`
	CurrentTime   float64       `json:"current_time"`
	Display       string        `json:"display"`
	ActiveSection string        `json:"active_section,omitempty"`
	CutPoints     []CutPoint    `json:"cut_points"`
}

func (p *Player) audioSnapshot() AudioSnapshot {
	return AudioSnapshot{
		State:         p.sync.State(),
		Reason:        p.sync.Reason(),
		CurrentTime:   p.sync.CurrentTime(),
		Display:       FormatTime(p.sync.CurrentTime()),
		ActiveSection: p.sync.ActiveSection(),
		CutPoints:     p.sync.Timeline().CutPoints,
	}
}

// State is a read-only summary of the player.
type State struct {
	LessonID       string               `json:"lesson_id"`
	Completed      []int                `json:"completed_blocks"`
	QuizCompletion map[string]bool      `json:"quiz_completion"`
	Visible        []string             `json:"visible_sections"`
	Mounted        []int                `json:"mounted_blocks"`
	Progress       model.ProgressUpdate `json:"progress"`
	Percentage     float64              `json:"percentage"`
	LessonComplete bool                 `json:"lesson_complete"`
	Bookmark       model.Bookmark       `json:"bookmark"`
	Audio          *AudioSnapshot       `json:"audio,omitempty"`
}

func (p *Player) Snapshot() State {
	st := State{
		LessonID:       p.opts.LessonID,
		Completed:      p.acct.CompletedIndices(),
		QuizCompletion: p.gate.Completion(),
		Mounted:        p.loader.Visible(),
		Progress:       p.acct.Progress(),
		Percentage:     p.acct.Percentage(),
		LessonComplete: p.acct.Done(),
		Bookmark:       p.bookmark(),
	}
	for _, s := range p.gate.Sections() {
		if s.Visible() {
			st.Visible = append(st.Visible, s.ID)
		}
	}
	if p.opts.HasAudio {
		snap := p.audioSnapshot()
		st.Audio = &snap
	}
	return st
}

// Blocks returns the lesson blocks, excluding synthetic tail blocks.
func (p *Player) Blocks() []model.Block {
	return p.blocks
}
