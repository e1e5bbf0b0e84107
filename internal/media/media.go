package media

import (
	"context"
	"errors"
	"fmt"
)

// Origin records which user action produced an artifact.
type Origin string

const (
	OriginUpload    Origin = "uploaded-file"
	OriginRecording Origin = "recorded-clip"
	OriginSynthesis Origin = "synthesized"
	OriginGallery   Origin = "gallery"
)

var (
	ErrNoArtifact = errors.New("no media artifact present")
	ErrNoPayload  = errors.New("media artifact has neither bytes nor a remote locator")
)

// Artifact is one in-memory audio or image asset. Exactly one of Bytes and
// RemoteURL is populated at any time; materialization converts the latter
// into the former. Artifacts are owned by session state and replaced
// wholesale, never shared.
type Artifact struct {
	Origin          Origin
	Name            string
	Bytes           []byte
	RemoteURL       string
	DurationSeconds *float64
	// Fingerprint ties a synthesized artifact to the exact text and voice
	// settings it was rendered from.
	Fingerprint string
}

func (a *Artifact) HasBytes() bool {
	return a != nil && len(a.Bytes) > 0
}

func (a *Artifact) IsRemote() bool {
	return a != nil && len(a.Bytes) == 0 && a.RemoteURL != ""
}

// Fetcher turns a remote locator into bytes.
type Fetcher interface {
	FetchAsset(ctx context.Context, url string) ([]byte, error)
}

// Materialize ensures the artifact holds a local byte payload, fetching its
// remote locator if needed. On fetch failure the artifact is left
// untouched, so it stays re-fetchable on retry.
func Materialize(ctx context.Context, fetcher Fetcher, a *Artifact) error {
	if a == nil {
		return ErrNoArtifact
	}
	if a.HasBytes() {
		return nil
	}
	if a.RemoteURL == "" {
		return ErrNoPayload
	}
	payload, err := fetcher.FetchAsset(ctx, a.RemoteURL)
	if err != nil {
		return fmt.Errorf("materialize %s artifact: %w", a.Origin, err)
	}
	if len(payload) == 0 {
		return fmt.Errorf("materialize %s artifact: empty payload", a.Origin)
	}
	a.Bytes = payload
	a.RemoteURL = ""
	return nil
}
