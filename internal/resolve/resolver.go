package resolve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"photovoice/internal/jobs"
	"photovoice/internal/media"
	"photovoice/internal/session"
	"photovoice/internal/upstream/dubber"
)

var ErrNoAudioSource = errors.New("active input mode has no audio to resolve")

// Resolver reconciles the three mutually exclusive audio sources into one
// canonical byte payload. Typed text synthesizes on demand and caches the
// result by fingerprint; uploads and recordings already hold local bytes.
type Resolver struct {
	fetcher media.Fetcher
}

func New(fetcher media.Fetcher) *Resolver {
	return &Resolver{fetcher: fetcher}
}

// Resolve produces the session's canonical audio artifact, materialized to
// local bytes. It is idempotent given stable inputs: a second call with
// the same text, voice and mode reuses the cached artifact without
// re-running synthesis or re-fetching. Only one resolution may be in
// flight per session.
func (r *Resolver) Resolve(ctx context.Context, s *session.State) (*media.Artifact, error) {
	if err := s.BeginResolution(); err != nil {
		return nil, err
	}
	defer s.EndResolution()

	var artifact *media.Artifact
	switch mode := s.Mode(); mode {
	case session.ModeTypedText:
		synthesized, err := r.synthesize(ctx, s)
		if err != nil {
			return nil, err
		}
		artifact = synthesized
	case session.ModeUpload, session.ModeRecording:
		artifact = s.ActiveAudio()
		if artifact == nil {
			return nil, fmt.Errorf("%w: mode %s", ErrNoAudioSource, mode)
		}
	default:
		return nil, fmt.Errorf("%w: unknown mode %s", ErrNoAudioSource, mode)
	}

	// Only synthesized artifacts can still hold a remote locator here;
	// this is the single network step of resolution proper.
	if err := media.Materialize(ctx, r.fetcher, artifact); err != nil {
		return nil, err
	}
	return artifact, nil
}

func (r *Resolver) synthesize(ctx context.Context, s *session.State) (*media.Artifact, error) {
	wire := s.ScriptWire()
	if s.CharacterCount() == 0 {
		return nil, fmt.Errorf("%w: no text typed", ErrNoAudioSource)
	}
	voice := s.Voice()
	fingerprint := Fingerprint(wire, voice)

	if cached := s.Synthesized(fingerprint); cached != nil {
		return cached, nil
	}

	// The cached artifact is stale or absent; abandon any previous
	// synthesis job and run a fresh one to completion.
	if s.Speech.State() != jobs.StateIdle {
		s.Speech.Reset()
	}
	if _, err := s.Speech.Submit(ctx, dubber.SpeechRequest{
		Text:    wire,
		Voice:   voice.Voice,
		Speed:   voice.Speed,
		Pitch:   voice.Pitch,
		Volume:  voice.Volume,
		Emotion: voice.Emotion,
	}); err != nil {
		return nil, err
	}
	result, err := s.Speech.Await(ctx)
	if err != nil {
		return nil, err
	}

	artifact := &media.Artifact{
		Origin:          media.OriginSynthesis,
		Name:            "synthesized.wav",
		RemoteURL:       result.AudioURL,
		DurationSeconds: result.DurationSeconds,
		Fingerprint:     fingerprint,
	}
	s.SetSynthesized(artifact)
	return artifact, nil
}

// Fingerprint ties a synthesis result to the exact canonical text and
// voice settings it was rendered from.
func Fingerprint(wire string, voice session.VoiceSettings) string {
	h := sha256.New()
	h.Write([]byte(wire))
	h.Write([]byte{0})
	h.Write([]byte(voice.Voice))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(voice.Speed, 'f', -1, 64)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(voice.Pitch, 'f', -1, 64)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(voice.Volume, 'f', -1, 64)))
	h.Write([]byte{0})
	h.Write([]byte(voice.Emotion))
	return hex.EncodeToString(h.Sum(nil))
}
