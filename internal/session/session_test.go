package session

import (
	"testing"
	"time"

	"photovoice/internal/billing"
	"photovoice/internal/jobs"
	"photovoice/internal/media"
	"photovoice/internal/upstream/dubber"
)

func newTestFactory() Factory {
	return Factory{
		Client:       dubber.New("http://dubber.invalid", "k", nil),
		PollInterval: time.Millisecond,
		PollTimeout:  time.Second,
	}
}

func TestFactoryDefaults(t *testing.T) {
	s := newTestFactory().New()
	if s.ID == "" {
		t.Fatal("missing session id")
	}
	if s.Mode() != ModeTypedText {
		t.Fatalf("unexpected default mode: %s", s.Mode())
	}
	if s.Tier() != billing.TierStandard {
		t.Fatalf("unexpected default tier: %s", s.Tier())
	}
	if s.Speech.State() != jobs.StateIdle || s.Video.State() != jobs.StateIdle {
		t.Fatal("controllers not idle")
	}
}

func TestSetModeClearsAbandonedArtifact(t *testing.T) {
	s := newTestFactory().New()
	s.SetMode(ModeUpload)
	if err := s.PutAudio(ModeUpload, &media.Artifact{Origin: media.OriginUpload, Bytes: []byte("x")}); err != nil {
		t.Fatalf("PutAudio() error = %v", err)
	}

	s.SetMode(ModeRecording)
	if s.ActiveAudio() != nil {
		t.Fatal("recording mode inherited an artifact")
	}
	s.SetMode(ModeUpload)
	if s.ActiveAudio() != nil {
		t.Fatal("upload artifact survived the mode switch away")
	}
}

func TestSetModeAwayFromTypedTextResetsSynthesis(t *testing.T) {
	s := newTestFactory().New()
	s.SetSynthesized(&media.Artifact{Origin: media.OriginSynthesis, Fingerprint: "fp", Bytes: []byte("x")})

	s.SetMode(ModeUpload)
	s.SetMode(ModeTypedText)
	if s.Synthesized("fp") != nil {
		t.Fatal("synthesized artifact survived the mode switch away")
	}
}

func TestSynthesizedCacheIsFingerprintKeyed(t *testing.T) {
	s := newTestFactory().New()
	s.SetSynthesized(&media.Artifact{Origin: media.OriginSynthesis, Fingerprint: "fp-1", Bytes: []byte("x")})

	if s.Synthesized("fp-1") == nil {
		t.Fatal("expected cache hit for matching fingerprint")
	}
	if s.Synthesized("fp-2") != nil {
		t.Fatal("expected cache miss for stale fingerprint")
	}
}

func TestPutAudioRejectsTypedTextMode(t *testing.T) {
	s := newTestFactory().New()
	if err := s.PutAudio(ModeTypedText, &media.Artifact{}); err == nil {
		t.Fatal("expected error for typed-text mode")
	}
}

func TestSubmissionAndResolutionFlags(t *testing.T) {
	s := newTestFactory().New()

	if err := s.BeginSubmission(); err != nil {
		t.Fatalf("BeginSubmission() error = %v", err)
	}
	if !s.SubmissionInFlight() {
		t.Fatal("submission flag not set")
	}
	if err := s.BeginSubmission(); err == nil {
		t.Fatal("expected second submission to be rejected")
	}
	s.EndSubmission()
	if err := s.BeginSubmission(); err != nil {
		t.Fatalf("BeginSubmission() after end error = %v", err)
	}
	s.EndSubmission()

	if err := s.BeginResolution(); err != nil {
		t.Fatalf("BeginResolution() error = %v", err)
	}
	if err := s.BeginResolution(); err == nil {
		t.Fatal("expected second resolution to be rejected")
	}
	s.EndResolution()
}

func TestStoreLifecycle(t *testing.T) {
	store := NewStore(newTestFactory())
	s := store.Create()

	got, err := store.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if store.Len() != 1 {
		t.Fatalf("unexpected store size: %d", store.Len())
	}
	if err := store.Delete(s.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(s.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(s.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	if mode, err := ParseMode(" Uploaded-File "); err != nil || mode != ModeUpload {
		t.Fatalf("got %q, %v", mode, err)
	}
	if _, err := ParseMode("telepathy"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
