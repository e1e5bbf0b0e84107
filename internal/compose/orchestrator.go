package compose

import (
	"context"
	"errors"
	"fmt"

	"photovoice/internal/jobs"
	"photovoice/internal/media"
	"photovoice/internal/session"
	"photovoice/internal/upstream/dubber"
)

var (
	ErrNoImage       = errors.New("an image is required before submitting a render")
	ErrNoAudioInput  = errors.New("typed text or an audio artifact is required before submitting a render")
	ErrScriptTooLong = errors.New("typed text exceeds the character quota")
)

// AudioResolver produces the session's canonical audio payload.
type AudioResolver interface {
	Resolve(ctx context.Context, s *session.State) (*media.Artifact, error)
}

// Orchestrator turns current session state into one remote video-render
// job: validate, resolve audio, materialize the image, submit.
type Orchestrator struct {
	resolver       AudioResolver
	fetcher        media.Fetcher
	characterQuota int
}

func New(resolver AudioResolver, fetcher media.Fetcher, characterQuota int) *Orchestrator {
	return &Orchestrator{
		resolver:       resolver,
		fetcher:        fetcher,
		characterQuota: characterQuota,
	}
}

// Submit runs the full submission sequence and returns the remote render
// job id; the caller polls the video controller for completion. Only one
// submission may run per session at a time, and a failed submission leaves
// resolved artifacts intact so retrying skips work already done.
func (o *Orchestrator) Submit(ctx context.Context, s *session.State) (string, error) {
	if err := s.BeginSubmission(); err != nil {
		return "", err
	}
	defer s.EndSubmission()

	// Preconditions, checked before any network call.
	image := s.Image()
	if image == nil {
		return "", ErrNoImage
	}
	if err := o.validateAudioPresent(s); err != nil {
		return "", err
	}

	audio, err := o.resolver.Resolve(ctx, s)
	if err != nil {
		return "", err
	}

	if err := media.Materialize(ctx, o.fetcher, image); err != nil {
		return "", err
	}

	// A render the user already walked away from (completed or failed)
	// does not block a fresh submission.
	switch s.Video.State() {
	case jobs.StateCompleted, jobs.StateFailed:
		s.Video.Reset()
	}

	jobID, err := s.Video.Submit(ctx, dubber.RenderRequest{
		ImageBytes: image.Bytes,
		ImageName:  image.Name,
		AudioBytes: audio.Bytes,
		AudioName:  audio.Name,
		Quality:    string(s.Tier()),
	})
	if err != nil {
		return "", err
	}
	return jobID, nil
}

func (o *Orchestrator) validateAudioPresent(s *session.State) error {
	if s.Mode() == session.ModeTypedText {
		count := s.CharacterCount()
		if count == 0 && s.ActiveAudio() == nil {
			return ErrNoAudioInput
		}
		if o.characterQuota > 0 && count > o.characterQuota {
			return fmt.Errorf("%w: %d > %d", ErrScriptTooLong, count, o.characterQuota)
		}
		return nil
	}
	if s.ActiveAudio() == nil {
		return ErrNoAudioInput
	}
	return nil
}
