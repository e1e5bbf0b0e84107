package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"photovoice/internal/billing"
	"photovoice/internal/jobs"
	"photovoice/internal/media"
	"photovoice/internal/script"
	"photovoice/internal/upstream/dubber"
)

// InputMode selects which of the three mutually exclusive audio sources is
// authoritative for the session.
type InputMode string

const (
	ModeTypedText InputMode = "typed-text"
	ModeUpload    InputMode = "uploaded-file"
	ModeRecording InputMode = "recorded-clip"
)

func ParseMode(value string) (InputMode, error) {
	switch m := InputMode(strings.ToLower(strings.TrimSpace(value))); m {
	case ModeTypedText, ModeUpload, ModeRecording:
		return m, nil
	default:
		return "", fmt.Errorf("unknown input mode %q", value)
	}
}

var (
	ErrNotFound             = errors.New("session not found")
	ErrResolutionInFlight   = errors.New("an audio resolution is already in flight")
	ErrSubmissionInFlight   = errors.New("a submission is already in flight")
	ErrWrongModeForArtifact = errors.New("artifact mode does not accept direct audio payloads")
)

// VoiceSettings are the prosody parameters sent with every synthesis job.
type VoiceSettings struct {
	Voice   string
	Speed   float64
	Pitch   float64
	Volume  float64
	Emotion string
}

func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{Voice: "ava", Speed: 1, Pitch: 1, Volume: 1}
}

// State is one screen session: the script draft, the active input mode,
// the artifact slots, and the two job controllers. All artifact slots are
// exclusively owned here; callers mutate them only through State methods
// or, for the synthesized slot, through an in-flight audio resolution.
type State struct {
	ID        string
	CreatedAt time.Time

	Speech *jobs.Controller[dubber.SpeechRequest, dubber.SpeechResult]
	Video  *jobs.Controller[dubber.RenderRequest, dubber.RenderResult]

	mu          sync.Mutex
	doc         *script.Document
	mode        InputMode
	tier        billing.Tier
	voice       VoiceSettings
	upload      *media.Artifact
	recording   *media.Artifact
	synthesized *media.Artifact
	image       *media.Artifact
	resolving   bool
	submitting  bool
}

// Factory builds session states wired to the remote dubbing service.
type Factory struct {
	Client       *dubber.Client
	PollInterval time.Duration
	PollTimeout  time.Duration
	Observer     jobs.ObserverFunc
}

func (f Factory) New() *State {
	return &State{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Speech: jobs.New(jobs.KindSpeechSynthesis, dubber.SpeechJobs{Client: f.Client},
			f.PollInterval, f.PollTimeout,
			jobs.WithObserver[dubber.SpeechRequest, dubber.SpeechResult](f.Observer)),
		Video: jobs.New(jobs.KindVideoRender, dubber.VideoJobs{Client: f.Client},
			f.PollInterval, f.PollTimeout,
			jobs.WithObserver[dubber.RenderRequest, dubber.RenderResult](f.Observer)),
		doc:   script.NewDocument(),
		mode:  ModeTypedText,
		tier:  billing.TierStandard,
		voice: DefaultVoiceSettings(),
	}
}

func (s *State) Mode() InputMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches the active input mode. The mode being left has its
// artifact cleared, and leaving typed text abandons any synthesis still in
// flight.
func (s *State) SetMode(mode InputMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == s.mode {
		return
	}
	s.clearModeArtifactLocked(s.mode)
	s.mode = mode
}

func (s *State) Tier() billing.Tier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tier
}

func (s *State) SetTier(tier billing.Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tier = tier
}

func (s *State) Voice() VoiceSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voice
}

func (s *State) SetVoice(voice VoiceSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voice = voice
}

// ReplaceScript swaps the whole draft for the parse of a wire string.
func (s *State) ReplaceScript(wire string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.SetText(wire)
}

func (s *State) InsertPause(runePos int, seconds float64) script.Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.InsertPause(runePos, seconds)
}

func (s *State) DeleteMarker(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.DeleteMarker(id)
}

func (s *State) ScriptWire() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Serialize()
}

func (s *State) CharacterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.CharacterCount()
}

// PutAudio replaces the artifact slot for a direct-payload mode. Typed
// text has no direct payload; its slot is fed by synthesis.
func (s *State) PutAudio(mode InputMode, artifact *media.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch mode {
	case ModeUpload:
		s.upload = artifact
	case ModeRecording:
		s.recording = artifact
	default:
		return ErrWrongModeForArtifact
	}
	return nil
}

// DeleteAudio clears the active mode's artifact.
func (s *State) DeleteAudio() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearModeArtifactLocked(s.mode)
}

func (s *State) PutImage(artifact *media.Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = artifact
}

func (s *State) DeleteImage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = nil
}

// Image returns the session's image artifact. The pointer is live; only
// the submission path mutates it, guarded by the submission flag.
func (s *State) Image() *media.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image
}

// ActiveAudio returns the artifact for the active mode, nil when none
// exists yet.
func (s *State) ActiveAudio() *media.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modeArtifactLocked(s.mode)
}

// Synthesized returns the cached synthesis artifact when its fingerprint
// matches, nil otherwise.
func (s *State) Synthesized(fingerprint string) *media.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.synthesized != nil && s.synthesized.Fingerprint == fingerprint {
		return s.synthesized
	}
	return nil
}

// SetSynthesized stores a fresh synthesis result, replacing any stale one.
func (s *State) SetSynthesized(artifact *media.Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synthesized = artifact
}

// ActiveDuration is the measured duration of the active mode's artifact,
// nil until measured.
func (s *State) ActiveDuration() *float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.modeArtifactLocked(s.mode)
	if a == nil {
		return nil
	}
	return a.DurationSeconds
}

// BeginResolution marks an audio resolution in flight; a second concurrent
// resolution for the same session is rejected.
func (s *State) BeginResolution() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolving {
		return ErrResolutionInFlight
	}
	s.resolving = true
	return nil
}

func (s *State) EndResolution() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolving = false
}

// BeginSubmission marks a render submission in flight so the caller can
// disable the submit action.
func (s *State) BeginSubmission() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return ErrSubmissionInFlight
	}
	s.submitting = true
	return nil
}

func (s *State) EndSubmission() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
}

func (s *State) SubmissionInFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

func (s *State) modeArtifactLocked(mode InputMode) *media.Artifact {
	switch mode {
	case ModeTypedText:
		return s.synthesized
	case ModeUpload:
		return s.upload
	case ModeRecording:
		return s.recording
	default:
		return nil
	}
}

func (s *State) clearModeArtifactLocked(mode InputMode) {
	switch mode {
	case ModeTypedText:
		s.synthesized = nil
		s.Speech.Reset()
	case ModeUpload:
		s.upload = nil
	case ModeRecording:
		s.recording = nil
	}
}

// Store keeps live sessions in memory, keyed by uuid.
type Store struct {
	factory Factory

	mu       sync.Mutex
	sessions map[string]*State
}

func NewStore(factory Factory) *Store {
	return &Store{
		factory:  factory,
		sessions: make(map[string]*State),
	}
}

func (s *Store) Create() *State {
	state := s.factory.New()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[state.ID] = state
	return state
}

func (s *Store) Get(id string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return state, nil
}

// Delete drops the session and abandons any jobs it still had in flight.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	state, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	state.Speech.Reset()
	state.Video.Reset()
	return nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
