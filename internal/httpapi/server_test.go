package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"photovoice/internal/compose"
	"photovoice/internal/config"
	"photovoice/internal/media"
	"photovoice/internal/model"
	"photovoice/internal/session"
	"photovoice/internal/upstream/dubber"
)

type stubResolver struct {
	artifact *media.Artifact
	err      error
}

func (s *stubResolver) Resolve(_ context.Context, _ *session.State) (*media.Artifact, error) {
	return s.artifact, s.err
}

type stubOrchestrator struct {
	jobID string
	err   error
	calls int
}

func (s *stubOrchestrator) Submit(_ context.Context, _ *session.State) (string, error) {
	s.calls++
	return s.jobID, s.err
}

type stubUpstream struct{ err error }

func (s stubUpstream) CheckHealth(context.Context) error { return s.err }

type testHarness struct {
	handler http.Handler
	store   *session.Store
}

func newHarness(t *testing.T, resolver AudioResolver, orchestrator SubmissionService) *testHarness {
	t.Helper()
	cfg := config.Config{
		MaxUploadBytes: 1024 * 1024,
		CharacterQuota: 40,
		DubberBaseURL:  "http://dubber.invalid",
	}
	store := session.NewStore(session.Factory{
		Client:       dubber.New(cfg.DubberBaseURL, "k", nil),
		PollInterval: time.Millisecond,
		PollTimeout:  time.Second,
	})
	if resolver == nil {
		resolver = &stubResolver{}
	}
	if orchestrator == nil {
		orchestrator = &stubOrchestrator{jobID: "vr-1"}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewServer(cfg, logger, Dependencies{
		Store:        store,
		Resolver:     resolver,
		Orchestrator: orchestrator,
		Upstream:     stubUpstream{},
	})
	return &testHarness{handler: handler, store: store}
}

func (h *testHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func (h *testHarness) createSession(t *testing.T) model.SessionResponse {
	t.Helper()
	w := h.do(t, http.MethodPost, "/v1/sessions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: status %d body %s", w.Code, w.Body.String())
	}
	var resp model.SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %s: %v", w.Body.String(), err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, nil, nil)
	w := h.do(t, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("unexpected response: %d %s", w.Code, w.Body.String())
	}
}

func TestCreateSessionDefaults(t *testing.T) {
	h := newHarness(t, nil, nil)
	sess := h.createSession(t)
	if sess.ID == "" {
		t.Fatal("missing session id")
	}
	if sess.Mode != "typed-text" || sess.Tier != "standard" {
		t.Fatalf("unexpected defaults: %s/%s", sess.Mode, sess.Tier)
	}
	// No duration known yet, so the estimate is the standard minimum.
	if sess.EstimatedCredits != 5 {
		t.Fatalf("unexpected estimate: %d", sess.EstimatedCredits)
	}
	if sess.SpeechJob.State != "idle" || sess.VideoJob.State != "idle" {
		t.Fatal("controllers not idle on a fresh session")
	}
}

func TestScriptEditingWithPauses(t *testing.T) {
	h := newHarness(t, nil, nil)
	sess := h.createSession(t)
	base := "/v1/sessions/" + sess.ID

	w := h.do(t, http.MethodPut, base+"/script", model.ScriptRequest{Text: "Hello world"})
	if w.Code != http.StatusOK {
		t.Fatalf("put script: %d %s", w.Code, w.Body.String())
	}

	w = h.do(t, http.MethodPost, base+"/script/pauses", model.PauseRequest{Position: 11, Seconds: 0.5})
	if w.Code != http.StatusOK {
		t.Fatalf("insert pause: %d %s", w.Code, w.Body.String())
	}
	pause := decodeJSON[model.PauseResponse](t, w)
	if pause.Script != "Hello world<#0.5#>" || pause.Seconds != 0.5 || pause.MarkerID == "" {
		t.Fatalf("unexpected pause response: %+v", pause)
	}

	w = h.do(t, http.MethodPut, base+"/script", model.ScriptRequest{Text: pause.Script + "again"})
	if w.Code != http.StatusOK {
		t.Fatalf("put script: %d %s", w.Code, w.Body.String())
	}
	script := decodeJSON[model.ScriptResponse](t, w)
	if script.Script != "Hello world<#0.5#>again" {
		t.Fatalf("unexpected script: %q", script.Script)
	}
	if script.CharacterCount != 16 {
		t.Fatalf("unexpected character count: %d", script.CharacterCount)
	}
}

func TestDeletePauseMarker(t *testing.T) {
	h := newHarness(t, nil, nil)
	sess := h.createSession(t)
	base := "/v1/sessions/" + sess.ID

	_ = h.do(t, http.MethodPut, base+"/script", model.ScriptRequest{Text: "ab"})
	w := h.do(t, http.MethodPost, base+"/script/pauses", model.PauseRequest{Position: 1, Seconds: 1.0})
	pause := decodeJSON[model.PauseResponse](t, w)

	w = h.do(t, http.MethodDelete, base+"/script/pauses/"+pause.MarkerID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete pause: %d %s", w.Code, w.Body.String())
	}
	script := decodeJSON[model.ScriptResponse](t, w)
	if script.Script != "ab" {
		t.Fatalf("unexpected script after delete: %q", script.Script)
	}

	w = h.do(t, http.MethodDelete, base+"/script/pauses/"+pause.MarkerID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown marker, got %d", w.Code)
	}
}

func TestScriptQuotaEnforced(t *testing.T) {
	h := newHarness(t, nil, nil)
	sess := h.createSession(t)

	long := strings.Repeat("a", 41)
	w := h.do(t, http.MethodPut, "/v1/sessions/"+sess.ID+"/script", model.ScriptRequest{Text: long})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "script_too_long") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func (h *testHarness) uploadAudio(t *testing.T, sessionID, mode, duration string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("mode", mode)
	if duration != "" {
		_ = writer.WriteField("duration_seconds", duration)
	}
	part, _ := writer.CreateFormFile("file", "clip.mp3")
	_, _ = part.Write([]byte("mp3-bytes"))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+sessionID+"/audio", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func TestUploadAudioDrivesEstimates(t *testing.T) {
	h := newHarness(t, nil, nil)
	sess := h.createSession(t)
	base := "/v1/sessions/" + sess.ID

	w := h.uploadAudio(t, sess.ID, "uploaded-file", "12")
	if w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	resp := decodeJSON[model.SessionResponse](t, w)
	if resp.Mode != "uploaded-file" || resp.Audio == nil || resp.Audio.Origin != "uploaded-file" {
		t.Fatalf("unexpected session after upload: %+v", resp)
	}
	if resp.EstimatedCredits != 12 {
		t.Fatalf("standard estimate: got %d want 12", resp.EstimatedCredits)
	}

	w = h.do(t, http.MethodPut, base+"/tier", model.TierRequest{Tier: "high-quality"})
	estimate := decodeJSON[model.EstimateResponse](t, w)
	if estimate.EstimatedCredits != 24 {
		t.Fatalf("high-quality estimate: got %d want 24", estimate.EstimatedCredits)
	}

	// A short clip on the fast tier hits the minimum-charge floor.
	w = h.uploadAudio(t, sess.ID, "uploaded-file", "4")
	if w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	w = h.do(t, http.MethodPut, base+"/tier", model.TierRequest{Tier: "fast"})
	estimate = decodeJSON[model.EstimateResponse](t, w)
	if estimate.EstimatedCredits != 3 {
		t.Fatalf("fast estimate: got %d want 3", estimate.EstimatedCredits)
	}
}

func TestSwitchingModeClearsAudio(t *testing.T) {
	h := newHarness(t, nil, nil)
	sess := h.createSession(t)
	base := "/v1/sessions/" + sess.ID

	if w := h.uploadAudio(t, sess.ID, "uploaded-file", "12"); w.Code != http.StatusOK {
		t.Fatalf("upload: %d", w.Code)
	}
	w := h.do(t, http.MethodPut, base+"/mode", model.ModeRequest{Mode: "typed-text"})
	resp := decodeJSON[model.SessionResponse](t, w)
	if resp.Audio != nil {
		t.Fatalf("audio artifact survived mode switch: %+v", resp.Audio)
	}
}

func TestSubmitRenderWithoutImageFailsBeforeAnyJob(t *testing.T) {
	// Run the real orchestrator so the precondition path is exercised
	// through the API.
	orchestrator := compose.New(&stubResolver{}, dubber.New("http://dubber.invalid", "k", nil), 40)
	h := newHarness(t, nil, orchestrator)
	sess := h.createSession(t)
	base := "/v1/sessions/" + sess.ID

	if w := h.uploadAudio(t, sess.ID, "uploaded-file", "12"); w.Code != http.StatusOK {
		t.Fatalf("upload: %d", w.Code)
	}
	w := h.do(t, http.MethodPost, base+"/render", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}

	resp := decodeJSON[model.SessionResponse](t, h.do(t, http.MethodGet, base+"/", nil))
	if resp.SpeechJob.State != "idle" || resp.VideoJob.State != "idle" {
		t.Fatalf("a controller left idle after failed validation: %+v", resp)
	}
}

func TestSubmitRenderReturnsJobID(t *testing.T) {
	orchestrator := &stubOrchestrator{jobID: "vr-77"}
	h := newHarness(t, nil, orchestrator)
	sess := h.createSession(t)

	w := h.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/render", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeJSON[model.RenderSubmitResponse](t, w)
	if resp.JobID != "vr-77" {
		t.Fatalf("unexpected job id: %q", resp.JobID)
	}
	if orchestrator.calls != 1 {
		t.Fatalf("expected 1 orchestrator call, got %d", orchestrator.calls)
	}
}

func TestRenderStatusWithoutJobIs404(t *testing.T) {
	h := newHarness(t, nil, nil)
	sess := h.createSession(t)

	w := h.do(t, http.MethodGet, "/v1/sessions/"+sess.ID+"/render", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSynthesizeRequiresTypedTextMode(t *testing.T) {
	h := newHarness(t, nil, nil)
	sess := h.createSession(t)

	if w := h.uploadAudio(t, sess.ID, "recorded-clip", "8"); w.Code != http.StatusOK {
		t.Fatalf("upload: %d", w.Code)
	}
	w := h.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/speech", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSynthesizeReturnsArtifactAndEstimate(t *testing.T) {
	duration := 8.0
	resolver := &stubResolver{artifact: &media.Artifact{
		Origin:          media.OriginSynthesis,
		Name:            "synthesized.wav",
		Bytes:           []byte("wav"),
		DurationSeconds: &duration,
	}}
	h := newHarness(t, resolver, nil)
	sess := h.createSession(t)
	base := "/v1/sessions/" + sess.ID

	_ = h.do(t, http.MethodPut, base+"/script", model.ScriptRequest{Text: "Hello"})
	w := h.do(t, http.MethodPost, base+"/speech", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("synthesize: %d %s", w.Code, w.Body.String())
	}
	resp := decodeJSON[model.SpeechResponse](t, w)
	if resp.Audio.Origin != "synthesized" || resp.Audio.Source != "local" {
		t.Fatalf("unexpected artifact: %+v", resp.Audio)
	}
	if resp.EstimatedCredits != 8 {
		t.Fatalf("unexpected estimate: %d", resp.EstimatedCredits)
	}
}

func TestMutationsRejectedDuringSubmission(t *testing.T) {
	h := newHarness(t, nil, nil)
	sess := h.createSession(t)
	state, err := h.store.Get(sess.ID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if err := state.BeginSubmission(); err != nil {
		t.Fatalf("BeginSubmission: %v", err)
	}
	defer state.EndSubmission()

	w := h.do(t, http.MethodPut, "/v1/sessions/"+sess.ID+"/mode", model.ModeRequest{Mode: "uploaded-file"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if w := h.uploadAudio(t, sess.ID, "uploaded-file", ""); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for upload, got %d", w.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	h := newHarness(t, nil, nil)
	sess := h.createSession(t)

	w := h.do(t, http.MethodDelete, "/v1/sessions/"+sess.ID+"/", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	w = h.do(t, http.MethodGet, "/v1/sessions/"+sess.ID+"/", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestSubmissionConflictMapsTo409(t *testing.T) {
	orchestrator := &stubOrchestrator{err: session.ErrSubmissionInFlight}
	h := newHarness(t, nil, orchestrator)
	sess := h.createSession(t)

	w := h.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/render", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUpstreamFailureMapsToBadGateway(t *testing.T) {
	orchestrator := &stubOrchestrator{err: &dubber.Error{StatusCode: 503, Body: "overloaded"}}
	h := newHarness(t, nil, orchestrator)
	sess := h.createSession(t)

	w := h.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/render", nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "upstream_request_failed") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestReadyzReportsUpstreamFailure(t *testing.T) {
	cfg := config.Config{MaxUploadBytes: 1, CharacterQuota: 1, DubberBaseURL: "http://dubber.invalid"}
	store := session.NewStore(session.Factory{Client: dubber.New(cfg.DubberBaseURL, "k", nil)})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewServer(cfg, logger, Dependencies{
		Store:        store,
		Resolver:     &stubResolver{},
		Orchestrator: &stubOrchestrator{},
		Upstream:     stubUpstream{err: errors.New("down")},
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
