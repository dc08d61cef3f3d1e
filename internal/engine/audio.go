package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	ErrNoAudio         = errors.New("lesson has no audio track")
	ErrQuizPauseActive = errors.New("playback is paused until the gate is answered")
)

// PlaybackState is the Synchronizer state.
type PlaybackState string

const (
	StateIdle    PlaybackState = "idle"
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
)

// PauseReason qualifies StatePaused.
type PauseReason string

const (
	PauseNone PauseReason = ""
	PauseUser PauseReason = "user"
	PauseQuiz PauseReason = "quiz"
)

// CutPoint is an authored moment where playback must stop for a gate.
type CutPoint struct {
	Time            float64 `json:"time"`
	GatingSectionID string  `json:"gating_section_id"`
}

// Window is the [Start, End) span of playback that belongs to a section.
type Window struct {
	SectionID string  `json:"section_id"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

func (w Window) contains(t float64) bool {
	return t >= w.Start && t < w.End
}

// SyncConfig configures the Synchronizer.
type SyncConfig struct {
	// Tolerance, in seconds, for cut-point detection and stale ticks.
	Tolerance   float64
	ResumeDelay time.Duration
	AutoScroll  bool
}

var DefaultSyncConfig = SyncConfig{
	Tolerance:   1,
	ResumeDelay: 2 * time.Second,
	AutoScroll:  true,
}

// AudioEventKind names what an AudioEvent reports.
type AudioEventKind string

const (
	AudioStateChanged AudioEventKind = "audio_state"
	AudioHighlight    AudioEventKind = "highlight"
	AudioScrollTo     AudioEventKind = "scroll_to"
)

// AudioEvent is emitted by the Synchronizer on every observable change.
type AudioEvent struct {
	Kind      AudioEventKind `json:"kind"`
	State     PlaybackState  `json:"state,omitempty"`
	Reason    PauseReason    `json:"reason,omitempty"`
	SectionID string         `json:"section_id,omitempty"`
	Time      float64        `json:"time"`
}

// Timeline holds what the Synchronizer needs to know about a lesson.
type Timeline struct {
	Windows   []Window   `json:"windows"`
	CutPoints []CutPoint `json:"cut_points"`
}

// BuildTimeline derives section windows from block startTime/endTime and a
// cut-point for every gate. A gate's cut time is its own pauseAt, falling
// back to the end of the content section right before it.
func BuildTimeline(sections []Section) Timeline {
	var tl Timeline
	for i, s := range sections {
		if w, ok := sectionWindow(s); ok {
			tl.Windows = append(tl.Windows, w)
		}
		if !s.IsGate() {
			continue
		}
		cfg := s.Blocks[0].Config
		switch {
		case cfg.PauseAt != nil:
			tl.CutPoints = append(tl.CutPoints, CutPoint{Time: *cfg.PauseAt, GatingSectionID: s.ID})
		case i > 0 && !sections[i-1].IsGate():
			if w, ok := sectionWindow(sections[i-1]); ok {
				tl.CutPoints = append(tl.CutPoints, CutPoint{Time: w.End, GatingSectionID: s.ID})
			}
		}
	}
	sort.SliceStable(tl.CutPoints, func(a, b int) bool {
		return tl.CutPoints[a].Time < tl.CutPoints[b].Time
	})
	return tl
}

func sectionWindow(s Section) (Window, bool) {
	w := Window{SectionID: s.ID, Start: math.Inf(1), End: math.Inf(-1)}
	for _, b := range s.Blocks {
		if b.Config.StartTime != nil && *b.Config.StartTime < w.Start {
			w.Start = *b.Config.StartTime
		}
		if b.Config.EndTime != nil && *b.Config.EndTime > w.End {
			w.End = *b.Config.EndTime
		}
	}
	if math.IsInf(w.Start, 0) || math.IsInf(w.End, 0) || w.End <= w.Start {
		return Window{}, false
	}
	return w, true
}

// Synchronizer maps playback time onto sections. It pauses at cut-points
// and resumes only after the gate it paused for is answered.
type Synchronizer struct {
	cfg      SyncConfig
	timeline Timeline
	answered func(sectionID string) bool

	state   PlaybackState
	reason  PauseReason
	current float64
	fired   []bool

	waitingOn string
	holdAt    float64
	resumeAt  time.Time

	// active is the highlighted section; scroll fires once per change.
	active string
}

// NewSynchronizer builds a Synchronizer. answered reports whether a gate has
// already been attempted; cut-points of answered gates are skipped.
func NewSynchronizer(tl Timeline, cfg SyncConfig, answered func(string) bool) *Synchronizer {
	if answered == nil {
		answered = func(string) bool { return false }
	}
	return &Synchronizer{
		cfg:      cfg,
		timeline: tl,
		answered: answered,
		state:    StateIdle,
		fired:    make([]bool, len(tl.CutPoints)),
	}
}

func (s *Synchronizer) State() PlaybackState  { return s.state }
func (s *Synchronizer) Reason() PauseReason   { return s.reason }
func (s *Synchronizer) CurrentTime() float64  { return s.current }
func (s *Synchronizer) ActiveSection() string { return s.active }
func (s *Synchronizer) Timeline() Timeline    { return s.timeline }

// ResumeAt returns the pending automatic resume deadline, if any.
func (s *Synchronizer) ResumeAt() (time.Time, bool) {
	return s.resumeAt, !s.resumeAt.IsZero()
}

// Play starts or resumes playback. A quiz pause cannot be left this way.
func (s *Synchronizer) Play() ([]AudioEvent, error) {
	switch {
	case s.state == StatePlaying:
		return nil, nil
	case s.state == StatePaused && s.reason == PauseQuiz:
		return nil, ErrQuizPauseActive
	}
	return []AudioEvent{s.transition(StatePlaying, PauseNone)}, nil
}

// Pause is a user pause. It is a no-op unless playing.
func (s *Synchronizer) Pause() []AudioEvent {
	if s.state != StatePlaying {
		return nil
	}
	return []AudioEvent{s.transition(StatePaused, PauseUser)}
}

// Stop returns to idle and cancels any pending resume.
func (s *Synchronizer) Stop() []AudioEvent {
	s.resumeAt = time.Time{}
	s.waitingOn = ""
	if s.state == StateIdle {
		return nil
	}
	return []AudioEvent{s.transition(StateIdle, PauseNone)}
}

// Tick handles a time-update from the audio element. Ticks may arrive
// duplicated or out of order: a step back within the tolerance is stale
// and ignored, a larger step back is a seek.
func (s *Synchronizer) Tick(t float64) []AudioEvent {
	if math.IsNaN(t) || t < 0 {
		return nil
	}
	switch {
	case t == s.current:
		return nil
	case t < s.current && s.current-t <= s.cfg.Tolerance:
		return nil
	}
	return s.moveTo(t)
}

// Seek jumps to t. Moving back re-arms the cut-points ahead of t; moving
// forward is treated like playback and may cross a cut-point.
func (s *Synchronizer) Seek(t float64) []AudioEvent {
	if math.IsNaN(t) || t < 0 {
		return nil
	}
	return s.moveTo(t)
}

func (s *Synchronizer) moveTo(t float64) []AudioEvent {
	if s.state == StatePaused && s.reason == PauseQuiz {
		// Held at the gate until playback resumes.
		t = math.Min(t, s.holdAt)
	}
	prev := s.current
	s.current = t

	if t < prev {
		for i, cp := range s.timeline.CutPoints {
			if cp.Time > t {
				s.fired[i] = false
			}
		}
	}

	var events []AudioEvent
	if t > prev && s.state == StatePlaying {
		for i, cp := range s.timeline.CutPoints {
			if s.fired[i] || s.answered(cp.GatingSectionID) {
				continue
			}
			if prev < cp.Time && t >= cp.Time-s.cfg.Tolerance {
				// Later cut-points stay ahead of current so the next
				// forward move crosses them again.
				s.current = math.Min(t, cp.Time)
				s.fired[i] = true
				s.waitingOn = cp.GatingSectionID
				s.holdAt = cp.Time
				ev := s.transition(StatePaused, PauseQuiz)
				ev.SectionID = cp.GatingSectionID
				events = append(events, ev)
				break
			}
		}
	}

	return append(events, s.highlight(s.current)...)
}

// OnGateAnswered schedules the automatic resume when the answered gate is
// the one playback is paused for. It reports whether a resume is pending.
func (s *Synchronizer) OnGateAnswered(sectionID string, now time.Time) bool {
	if s.state != StatePaused || s.reason != PauseQuiz || s.waitingOn != sectionID {
		return false
	}
	s.resumeAt = now.Add(s.cfg.ResumeDelay)
	return true
}

// Poll performs the pending resume once its deadline has passed.
func (s *Synchronizer) Poll(now time.Time) []AudioEvent {
	if s.resumeAt.IsZero() || now.Before(s.resumeAt) {
		return nil
	}
	s.resumeAt = time.Time{}
	s.waitingOn = ""
	if s.state != StatePaused || s.reason != PauseQuiz {
		return nil
	}
	return []AudioEvent{s.transition(StatePlaying, PauseNone)}
}

func (s *Synchronizer) transition(state PlaybackState, reason PauseReason) AudioEvent {
	s.state = state
	s.reason = reason
	return AudioEvent{Kind: AudioStateChanged, State: state, Reason: reason, Time: s.current}
}

func (s *Synchronizer) highlight(t float64) []AudioEvent {
	id := ""
	for _, w := range s.timeline.Windows {
		if w.contains(t) {
			id = w.SectionID
			break
		}
	}
	if id == s.active {
		return nil
	}

	s.active = id
	events := []AudioEvent{{Kind: AudioHighlight, SectionID: id, Time: t}}
	if id != "" && s.cfg.AutoScroll {
		events = append(events, AudioEvent{Kind: AudioScrollTo, SectionID: id, Time: t})
	}
	return events
}

// FormatTime renders seconds as mm:ss, truncating fractions.
func FormatTime(sec float64) string {
	if math.IsNaN(sec) || math.IsInf(sec, 0) || sec < 0 {
		return "00:00"
	}
	total := int64(sec)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
