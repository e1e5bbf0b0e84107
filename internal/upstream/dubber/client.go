package dubber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"photovoice/internal/jobs"
)

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

// Client talks to the remote dubbing service: speech-synthesis and
// video-render job submission/polling plus raw asset fetches.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	observer   ObserverFunc
}

type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("dubber request failed with status %d", e.StatusCode)
}

type SpeechRequest struct {
	Text    string  `json:"text"`
	Voice   string  `json:"voice"`
	Speed   float64 `json:"speed"`
	Pitch   float64 `json:"pitch"`
	Volume  float64 `json:"volume"`
	Emotion string  `json:"emotion,omitempty"`
}

// SpeechResult is the completed output of a synthesis job. The duration is
// reported by the service when it has measured the rendered audio.
type SpeechResult struct {
	AudioURL        string
	DurationSeconds *float64
}

type RenderRequest struct {
	ImageBytes []byte
	ImageName  string
	AudioBytes []byte
	AudioName  string
	Quality    string
}

type RenderResult struct {
	VideoURL string
}

func WithObserver(observer ObserverFunc) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

func New(baseURL, apiKey string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Client) SubmitSpeech(ctx context.Context, reqPayload SpeechRequest) (string, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("speech_submit", statusCode, time.Since(started)) }()

	payload, err := json.Marshal(reqPayload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/speech/synthesize", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	respBody, status, err := c.do(req)
	statusCode = status
	if err != nil {
		return "", err
	}
	return parseJobID(respBody)
}

func (c *Client) PollSpeech(ctx context.Context, jobID string) (jobs.PollResult[SpeechResult], error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("speech_poll", statusCode, time.Since(started)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/speech/jobs/"+jobID, nil)
	if err != nil {
		return jobs.PollResult[SpeechResult]{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	respBody, status, err := c.do(req)
	statusCode = status
	if err != nil {
		return jobs.PollResult[SpeechResult]{}, err
	}

	var parsed struct {
		Status          string   `json:"status"`
		AudioURL        string   `json:"audio_url"`
		DurationSeconds *float64 `json:"duration_seconds"`
		Error           string   `json:"error"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return jobs.PollResult[SpeechResult]{}, fmt.Errorf("invalid speech poll response: %w", err)
	}

	result := jobs.PollResult[SpeechResult]{Status: normalizeStatus(parsed.Status), Reason: parsed.Error}
	if result.Status == jobs.StatusCompleted {
		if parsed.AudioURL == "" {
			return jobs.PollResult[SpeechResult]{}, fmt.Errorf("speech job completed without audio_url")
		}
		result.Output = SpeechResult{AudioURL: parsed.AudioURL, DurationSeconds: parsed.DurationSeconds}
	}
	return result, nil
}

func (c *Client) SubmitRender(ctx context.Context, reqPayload RenderRequest) (string, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("render_submit", statusCode, time.Since(started)) }()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("quality", reqPayload.Quality); err != nil {
		return "", err
	}
	if err := writeFilePart(writer, "image", reqPayload.ImageName, "image.png", reqPayload.ImageBytes); err != nil {
		return "", err
	}
	if err := writeFilePart(writer, "audio", reqPayload.AudioName, "audio.wav", reqPayload.AudioBytes); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/video/render", bytes.NewReader(body.Bytes()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	respBody, status, err := c.do(req)
	statusCode = status
	if err != nil {
		return "", err
	}
	return parseJobID(respBody)
}

func (c *Client) PollRender(ctx context.Context, jobID string) (jobs.PollResult[RenderResult], error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("render_poll", statusCode, time.Since(started)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/video/jobs/"+jobID, nil)
	if err != nil {
		return jobs.PollResult[RenderResult]{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	respBody, status, err := c.do(req)
	statusCode = status
	if err != nil {
		return jobs.PollResult[RenderResult]{}, err
	}

	var parsed struct {
		Status   string `json:"status"`
		VideoURL string `json:"video_url"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return jobs.PollResult[RenderResult]{}, fmt.Errorf("invalid render poll response: %w", err)
	}

	result := jobs.PollResult[RenderResult]{Status: normalizeStatus(parsed.Status), Reason: parsed.Error}
	if result.Status == jobs.StatusCompleted {
		if parsed.VideoURL == "" {
			return jobs.PollResult[RenderResult]{}, fmt.Errorf("render job completed without video_url")
		}
		result.Output = RenderResult{VideoURL: parsed.VideoURL}
	}
	return result, nil
}

// FetchAsset downloads a remote locator's bytes, used to materialize
// artifacts before submission.
func (c *Client) FetchAsset(ctx context.Context, url string) ([]byte, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("asset_fetch", statusCode, time.Since(started)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	respBody, status, err := c.do(req)
	statusCode = status
	if err != nil {
		return nil, err
	}
	return respBody, nil
}

// CheckHealth pings the dubbing service; readiness checks use it.
func (c *Client) CheckHealth(ctx context.Context) error {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("health", statusCode, time.Since(started)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	_, status, err := c.do(req)
	statusCode = status
	return err
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, &Error{StatusCode: resp.StatusCode, Body: truncateBody(string(respBody))}
	}
	return respBody, resp.StatusCode, nil
}

func (c *Client) observe(endpoint string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer(endpoint, status, duration)
	}
}

// SpeechJobs and VideoJobs adapt the client to the generic controller's
// Remote interface, one per job kind.
type SpeechJobs struct {
	Client *Client
}

func (r SpeechJobs) Submit(ctx context.Context, payload SpeechRequest) (string, error) {
	return r.Client.SubmitSpeech(ctx, payload)
}

func (r SpeechJobs) Poll(ctx context.Context, jobID string) (jobs.PollResult[SpeechResult], error) {
	return r.Client.PollSpeech(ctx, jobID)
}

type VideoJobs struct {
	Client *Client
}

func (r VideoJobs) Submit(ctx context.Context, payload RenderRequest) (string, error) {
	return r.Client.SubmitRender(ctx, payload)
}

func (r VideoJobs) Poll(ctx context.Context, jobID string) (jobs.PollResult[RenderResult], error) {
	return r.Client.PollRender(ctx, jobID)
}

func parseJobID(data []byte) (string, error) {
	var parsed struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("invalid job submission response: %w", err)
	}
	if parsed.JobID == "" {
		return "", fmt.Errorf("missing job_id in submission response")
	}
	return parsed.JobID, nil
}

func normalizeStatus(status string) jobs.RemoteStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "succeeded", "success", "done":
		return jobs.StatusCompleted
	case "failed", "error", "cancelled", "canceled":
		return jobs.StatusFailed
	default:
		// Pending, processing, queued and anything unrecognized all mean
		// "not ready yet".
		return jobs.StatusPending
	}
}

func writeFilePart(writer *multipart.Writer, field, name, fallback string, payload []byte) error {
	if name == "" {
		name = fallback
	}
	part, err := writer.CreateFormFile(field, name)
	if err != nil {
		return err
	}
	_, err = part.Write(payload)
	return err
}

func truncateBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4096 {
		return s
	}
	return s[:4096] + "..."
}
