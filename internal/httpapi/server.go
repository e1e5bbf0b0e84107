package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"photovoice/internal/billing"
	"photovoice/internal/compose"
	"photovoice/internal/config"
	"photovoice/internal/jobs"
	"photovoice/internal/media"
	"photovoice/internal/model"
	"photovoice/internal/resolve"
	"photovoice/internal/session"
	"photovoice/internal/upstream/dubber"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type SubmissionService interface {
	Submit(ctx context.Context, s *session.State) (string, error)
}

type AudioResolver interface {
	Resolve(ctx context.Context, s *session.State) (*media.Artifact, error)
}

type UpstreamChecker interface {
	CheckHealth(ctx context.Context) error
}

type MetricsObserver interface {
	ObserveHTTP(route, method string, status int, duration time.Duration)
}

type Dependencies struct {
	Store          *session.Store
	Resolver       AudioResolver
	Orchestrator   SubmissionService
	Upstream       UpstreamChecker
	Metrics        MetricsObserver
	MetricsHandler http.Handler
}

type server struct {
	cfg          config.Config
	logger       *slog.Logger
	store        *session.Store
	resolver     AudioResolver
	orchestrator SubmissionService
	upstream     UpstreamChecker
	metrics      MetricsObserver
	metricsRoute http.Handler
}

type ctxKey string

const (
	requestIDHeader  = "X-Request-Id"
	requestIDContext = ctxKey("request_id")
	maxJSONBodyBytes = 1 << 20
)

func NewServer(cfg config.Config, logger *slog.Logger, deps Dependencies) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Store == nil || deps.Resolver == nil || deps.Orchestrator == nil || deps.Upstream == nil {
		panic("httpapi: all dependencies are required")
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		store:        deps.Store,
		resolver:     deps.Resolver,
		orchestrator: deps.Orchestrator,
		upstream:     deps.Upstream,
		metrics:      deps.Metrics,
		metricsRoute: deps.MetricsHandler,
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metricsRoute != nil {
		r.Handle("/metrics", s.metricsRoute)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Put("/script", s.handlePutScript)
			r.Post("/script/pauses", s.handleInsertPause)
			r.Delete("/script/pauses/{markerID}", s.handleDeletePause)
			r.Put("/mode", s.handlePutMode)
			r.Put("/tier", s.handlePutTier)
			r.Put("/voice", s.handlePutVoice)
			r.Post("/audio", s.handlePostAudio)
			r.Delete("/audio", s.handleDeleteAudio)
			r.Post("/image", s.handlePostImage)
			r.Delete("/image", s.handleDeleteImage)
			r.Get("/estimate", s.handleEstimate)
			r.Post("/speech", s.handleSynthesize)
			r.Post("/speech/reset", s.handleResetSpeech)
			r.Post("/render", s.handleSubmitRender)
			r.Get("/render", s.handleRenderStatus)
			r.Post("/render/reset", s.handleResetRender)
		})
	})

	return r
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{OK: true})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.upstream.CheckHealth(ctx); err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "not_ready", "dubbing service check failed", detailsForError(err))
		return
	}
	writeJSON(w, http.StatusOK, model.ReadyResponse{OK: true, ServiceName: "PhotoVoice"})
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	state := s.store.Create()
	writeJSON(w, http.StatusCreated, s.sessionResponse(state))
}

func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	state, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.sessionResponse(state))
}

func (s *server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(chi.URLParam(r, "sessionID")); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handlePutScript(w http.ResponseWriter, r *http.Request) {
	state, ok := s.session(w, r)
	if !ok {
		return
	}
	var req model.ScriptRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	state.ReplaceScript(req.Text)
	if count := state.CharacterCount(); count > s.cfg.CharacterQuota {
		s.writeError(w, r, http.StatusBadRequest, "script_too_long",
			fmt.Sprintf("script has %d characters, quota is %d", count, s.cfg.CharacterQuota), nil)
		return
	}
	writeJSON(w, http.StatusOK, s.scriptResponse(state))
}

func (s *server) handleInsertPause(w http.ResponseWriter, r *http.Request) {
	state, ok := s.session(w, r)
	if !ok {
		return
	}
	var req model.PauseRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	marker := state.InsertPause(req.Position, req.Seconds)
	writeJSON(w, http.StatusOK, model.PauseResponse{
		MarkerID: marker.ID,
		Seconds:  marker.Seconds,
		Script:   state.ScriptWire(),
	})
}

func (s *server) handleDeletePause(w http.ResponseWriter, r *http.Request) {
	state, ok := s.session(w, r)
	if !ok {
		return
	}
	if !state.DeleteMarker(chi.URLParam(r, "markerID")) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "pause marker not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, s.scriptResponse(state))
}

func (s *server) handlePutMode(w http.ResponseWriter, r *http.Request) {
	state, ok := s.session(w, r)
	if !ok || !s.rejectDuringSubmission(w, r, state) {
		return
	}
	var req model.ModeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	mode, err := session.ParseMode(req.Mode)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	state.SetMode(mode)
	writeJSON(w, http.StatusOK, s.sessionResponse(state))
}

func (s *server) handlePutTier(w http.ResponseWriter, r *http.Request) {
	state, ok := s.session(w, r)
	if !ok {
		return
	}
	var req model.TierRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	tier, err := billing.ParseTier(req.Tier)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	state.SetTier(tier)
	writeJSON(w, http.StatusOK, s.estimateResponse(state))
}

func (s *server) handlePutVoice(w http.ResponseWriter, r *http.Request) {
	state, ok := s.session(w, r)
	if !ok {
		return
	}
	var req model.VoiceSettings
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Voice) == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "voice is required", nil)
		return
	}
	if req.Speed <= 0 || req.Pitch <= 0 || req.Volume <= 0 {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "speed, pitch and volume must be > 0", nil)
		return
	}
	state.SetVoice(session.VoiceSettings{
		Voice:   strings.TrimSpace(req.Voice),
		Speed:   req.Speed,
		Pitch:   req.Pitch,
		Volume:  req.Volume,
		Emotion: strings.TrimSpace(req.Emotion),
	})
	writeJSON(w, http.StatusOK, s.sessionResponse(state))
}

func (s *server) handlePostAudio(w http.ResponseWriter, r *http.Request) {
	state, ok := s.session(w, r)
	if !ok || !s.rejectDuringSubmission(w, r, state) {
		return
	}

	payload, header, form, err := s.readMultipartFile(w, r, "file")
	if err != nil {
		s.handleMultipartReadError(w, r, err)
		return
	}
	defer cleanupMultipartForm(form)

	mode, err := session.ParseMode(r.FormValue("mode"))
	if err != nil || mode == session.ModeTypedText {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request",
			"mode must be uploaded-file or recorded-clip", nil)
		return
	}

	artifact := &media.Artifact{
		Origin: media.OriginUpload,
		Name:   header.Filename,
		Bytes:  payload,
	}
	if mode == session.ModeRecording {
		artifact.Origin = media.OriginRecording
	}
	if raw := strings.TrimSpace(r.FormValue("duration_seconds")); raw != "" {
		duration, err := strconv.ParseFloat(raw, 64)
		if err != nil || duration < 0 {
			s.writeError(w, r, http.StatusBadRequest, "invalid_request", "duration_seconds must be a non-negative number", nil)
			return
		}
		if duration > billing.MaxDurationSeconds {
			duration = billing.MaxDurationSeconds
		}
		artifact.DurationSeconds = &duration
	}

	state.SetMode(mode)
	if err := state.PutAudio(mode, artifact); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionResponse(state))
}

func (s *server) handleDeleteAudio(w http.ResponseWriter, r *http.Request) {
	state, ok := s.session(w, r)
	if !ok || !s.rejectDuringSubmission(w, r, state) {
		return
	}
	state.DeleteAudio()
	writeJSON(w, http.StatusOK, s.sessionResponse(state))
}

func (s *server) handlePostImage(w http.ResponseWriter, r *http.Request) {
	state, ok := s.session(w, r)
	if !ok || !s.rejectDuringSubmission(w, r, state) {
		return
	}

	// A gallery pick arrives as JSON carrying a remote locator; an upload
	// arrives as multipart bytes.
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req model.ImageURLRequest
		if !s.decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.URL) == "" {
			s.writeError(w, r, http.StatusBadRequest, "invalid_request", "url is required", nil)
			return
		}
		state.PutImage(&media.Artifact{
			Origin:    media.OriginGallery,
			Name:      strings.TrimSpace(req.Name),
			RemoteURL: strings.TrimSpace(req.URL),
		})
		writeJSON(w, http.StatusOK, s.sessionResponse(state))
		return
	}

	payload, header, form, err := s.readMultipartFile(w, r, "file")
	if err != nil {
		s.handleMultipartReadError(w, r, err)
		return
	}
	defer cleanupMultipartForm(form)

	state.PutImage(&media.Artifact{
		Origin: media.OriginUpload,
		Name:   header.Filename,
		Bytes:  payload,
	})
	writeJSON(w, http.StatusOK, s.sessionResponse(state))
}

func (s *server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	state, ok := s.session(w, r)
	if !ok || !s.rejectDuringSubmission(w, r, state) {
		return
	}
	state.DeleteImage()
	writeJSON(w, http.StatusOK, s.sessionResponse(state))
}

func (s *server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	state, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.estimateResponse(state))
}

func (s *server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	state, ok := s.session(w, r)
	if !ok {
		return
	}
	if state.Mode() != session.ModeTypedText {
		s.writeError(w, r, http.StatusConflict, "wrong_mode", "synthesis requires the typed-text mode", nil)
		return
	}
	if count := state.CharacterCount(); count > s.cfg.CharacterQuota {
		s.writeError(w, r, http.StatusBadRequest, "script_too_long",
			fmt.Sprintf("script has %d characters, quota is %d", count, s.cfg.CharacterQuota), nil)
		return
	}

	artifact, err := s.resolver.Resolve(r.Context(), state)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.SpeechResponse{
		Audio:            *artifactSummary(artifact),
		EstimatedCredits: billing.Estimate(artifact.DurationSeconds, state.Tier()),
	})
}

func (s *server) handleResetSpeech(w http.ResponseWriter, r *http.Request) {
	state, ok := s.session(w, r)
	if !ok {
		return
	}
	state.Speech.Reset()
	state.SetSynthesized(nil)
	writeJSON(w, http.StatusOK, s.sessionResponse(state))
}

func (s *server) handleSubmitRender(w http.ResponseWriter, r *http.Request) {
	state, ok := s.session(w, r)
	if !ok {
		return
	}
	jobID, err := s.orchestrator.Submit(r.Context(), state)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, model.RenderSubmitResponse{JobID: jobID})
}

// handleRenderStatus advances the video job by one poll tick and reports
// it; the client drives polling by calling this on its own cadence.
func (s *server) handleRenderStatus(w http.ResponseWriter, r *http.Request) {
	state, ok := s.session(w, r)
	if !ok {
		return
	}
	snap, err := state.Video.PollOnce(r.Context())
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	resp := model.RenderStatusResponse{JobSnapshot: jobSnapshot(snap)}
	if snap.State == jobs.StateCompleted {
		if out, err := state.Video.Output(); err == nil {
			resp.VideoURL = out.VideoURL
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleResetRender(w http.ResponseWriter, r *http.Request) {
	state, ok := s.session(w, r)
	if !ok {
		return
	}
	state.Video.Reset()
	writeJSON(w, http.StatusOK, s.sessionResponse(state))
}

func (s *server) session(w http.ResponseWriter, r *http.Request) (*session.State, bool) {
	state, err := s.store.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeMappedError(w, r, err)
		return nil, false
	}
	return state, true
}

func (s *server) rejectDuringSubmission(w http.ResponseWriter, r *http.Request, state *session.State) bool {
	if state.SubmissionInFlight() {
		s.writeError(w, r, http.StatusConflict, "submission_in_progress",
			"session state is locked while a render submission is in flight", nil)
		return false
	}
	return true
}

func (s *server) sessionResponse(state *session.State) model.SessionResponse {
	voice := state.Voice()
	return model.SessionResponse{
		ID:             state.ID,
		CreatedAt:      state.CreatedAt.Format(time.RFC3339),
		Mode:           string(state.Mode()),
		Tier:           string(state.Tier()),
		Voice:          model.VoiceSettings(voice),
		Script:         state.ScriptWire(),
		CharacterCount: state.CharacterCount(),
		CharacterQuota: s.cfg.CharacterQuota,
		Audio:          artifactSummary(state.ActiveAudio()),
		Image:          artifactSummary(state.Image()),
		SpeechJob:      jobSnapshot(state.Speech.Snapshot()),
		VideoJob:       jobSnapshot(state.Video.Snapshot()),
		EstimatedCredits: billing.Estimate(
			state.ActiveDuration(), state.Tier()),
		SubmissionInProgress: state.SubmissionInFlight(),
	}
}

func (s *server) scriptResponse(state *session.State) model.ScriptResponse {
	return model.ScriptResponse{
		Script:         state.ScriptWire(),
		CharacterCount: state.CharacterCount(),
		CharacterQuota: s.cfg.CharacterQuota,
	}
}

func (s *server) estimateResponse(state *session.State) model.EstimateResponse {
	tier := state.Tier()
	duration := state.ActiveDuration()
	return model.EstimateResponse{
		Tier:             string(tier),
		DurationSeconds:  duration,
		EstimatedCredits: billing.Estimate(duration, tier),
		MinimumCharge:    billing.MinimumCharge(tier),
	}
}

func artifactSummary(a *media.Artifact) *model.ArtifactSummary {
	if a == nil {
		return nil
	}
	source := "remote"
	if a.HasBytes() {
		source = "local"
	}
	return &model.ArtifactSummary{
		Origin:          string(a.Origin),
		Name:            a.Name,
		Source:          source,
		DurationSeconds: a.DurationSeconds,
	}
}

func jobSnapshot(snap jobs.Snapshot) model.JobSnapshot {
	return model.JobSnapshot{
		Kind:     string(snap.Kind),
		State:    string(snap.State),
		JobID:    snap.JobID,
		Attempts: snap.Attempts,
		Error:    snap.Error,
	}
}

func (s *server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() { _ = r.Body.Close() }()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return false
	}
	if err := ensureBodyFullyConsumed(decoder); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return false
	}
	return true
}

func (s *server) readMultipartFile(w http.ResponseWriter, r *http.Request, field string) ([]byte, *multipart.FileHeader, *multipart.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(minInt64(s.cfg.MaxUploadBytes, 8<<20)); err != nil {
		return nil, nil, nil, err
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, nil, r.MultipartForm, err
	}
	defer func() { _ = file.Close() }()
	payload, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, r.MultipartForm, err
	}
	if len(payload) == 0 {
		return nil, nil, r.MultipartForm, fmt.Errorf("multipart field %q is empty", field)
	}
	return payload, header, r.MultipartForm, nil
}

func (s *server) handleMultipartReadError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", fmt.Sprintf("request exceeds %d bytes", s.cfg.MaxUploadBytes), nil)
		return
	}
	if strings.Contains(strings.ToLower(err.Error()), "no such file") || strings.Contains(strings.ToLower(err.Error()), "missing") {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "multipart field 'file' is required", nil)
		return
	}
	s.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid multipart form data", nil)
}

func (s *server) handleJSONDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", "JSON body too large", nil)
		return
	}
	s.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
}

func (s *server) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	message := "request failed"
	details := detailsForError(err)

	var dubberErr *dubber.Error
	switch {
	case errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
		code = "not_found"
		message = "session not found"
	case errors.Is(err, compose.ErrNoImage),
		errors.Is(err, compose.ErrNoAudioInput),
		errors.Is(err, compose.ErrScriptTooLong),
		errors.Is(err, resolve.ErrNoAudioSource),
		errors.Is(err, session.ErrWrongModeForArtifact):
		status = http.StatusBadRequest
		code = "invalid_state"
		message = err.Error()
	case errors.Is(err, session.ErrSubmissionInFlight),
		errors.Is(err, session.ErrResolutionInFlight),
		errors.Is(err, jobs.ErrJobInFlight),
		errors.Is(err, jobs.ErrJobFinished):
		status = http.StatusConflict
		code = "conflict"
		message = err.Error()
	case errors.Is(err, jobs.ErrNoJob):
		status = http.StatusNotFound
		code = "no_job"
		message = "no job has been submitted"
	case errors.As(err, &dubberErr):
		status = http.StatusBadGateway
		code = "upstream_request_failed"
		message = "dubbing service request failed"
	case errors.Is(err, jobs.ErrPollTimeout), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		code = "timeout"
		message = "request timed out"
	case errors.Is(err, context.Canceled):
		status = 499
		code = "canceled"
		message = "request canceled"
	}

	s.writeError(w, r, status, code, message, details)
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	if rid := requestIDFromContext(r.Context()); rid != "" {
		w.Header().Set(requestIDHeader, rid)
	}
	writeJSON(w, status, model.ErrorResponse{
		Error:     model.APIError{Code: code, Message: message, Details: details},
		RequestID: requestIDFromContext(r.Context()),
	})
}

func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = newRequestID()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDContext, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		duration := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, duration)
		}

		s.logger.Info("http_request",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "request_id", requestIDFromContext(r.Context()), "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func ensureBodyFullyConsumed(decoder *json.Decoder) error {
	var extra any
	if err := decoder.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("multiple JSON values")
		}
		return err
	}
	return nil
}

func cleanupMultipartForm(form *multipart.Form) {
	if form != nil {
		_ = form.RemoveAll()
	}
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContext).(string)
	return value
}

func newRequestID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

func detailsForError(err error) map[string]any {
	if err == nil {
		return nil
	}
	details := map[string]any{"error": err.Error()}
	var dubberErr *dubber.Error
	if errors.As(err, &dubberErr) {
		details["upstream_status"] = dubberErr.StatusCode
		if dubberErr.Body != "" {
			details["upstream_body"] = dubberErr.Body
		}
	}
	return details
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
