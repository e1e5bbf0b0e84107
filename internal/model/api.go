package model

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id,omitempty"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}

type ReadyResponse struct {
	OK          bool   `json:"ok"`
	ServiceName string `json:"service_name,omitempty"`
}

type VoiceSettings struct {
	Voice   string  `json:"voice"`
	Speed   float64 `json:"speed"`
	Pitch   float64 `json:"pitch"`
	Volume  float64 `json:"volume"`
	Emotion string  `json:"emotion,omitempty"`
}

// ArtifactSummary describes a media artifact without exposing its payload.
type ArtifactSummary struct {
	Origin          string   `json:"origin"`
	Name            string   `json:"name,omitempty"`
	Source          string   `json:"source"` // "local" or "remote"
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
}

type JobSnapshot struct {
	Kind     string `json:"kind"`
	State    string `json:"state"`
	JobID    string `json:"job_id,omitempty"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

type SessionResponse struct {
	ID                   string           `json:"id"`
	CreatedAt            string           `json:"created_at"`
	Mode                 string           `json:"mode"`
	Tier                 string           `json:"tier"`
	Voice                VoiceSettings    `json:"voice"`
	Script               string           `json:"script"`
	CharacterCount       int              `json:"character_count"`
	CharacterQuota       int              `json:"character_quota"`
	Audio                *ArtifactSummary `json:"audio,omitempty"`
	Image                *ArtifactSummary `json:"image,omitempty"`
	SpeechJob            JobSnapshot      `json:"speech_job"`
	VideoJob             JobSnapshot      `json:"video_job"`
	EstimatedCredits     int              `json:"estimated_credits"`
	SubmissionInProgress bool             `json:"submission_in_progress"`
}

type ScriptRequest struct {
	Text string `json:"text"`
}

type ScriptResponse struct {
	Script         string `json:"script"`
	CharacterCount int    `json:"character_count"`
	CharacterQuota int    `json:"character_quota"`
}

type PauseRequest struct {
	Position int     `json:"position"`
	Seconds  float64 `json:"seconds"`
}

type PauseResponse struct {
	MarkerID string  `json:"marker_id"`
	Seconds  float64 `json:"seconds"`
	Script   string  `json:"script"`
}

type ModeRequest struct {
	Mode string `json:"mode"`
}

type TierRequest struct {
	Tier string `json:"tier"`
}

type ImageURLRequest struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

type EstimateResponse struct {
	Tier             string   `json:"tier"`
	DurationSeconds  *float64 `json:"duration_seconds,omitempty"`
	EstimatedCredits int      `json:"estimated_credits"`
	MinimumCharge    int      `json:"minimum_charge"`
}

type SpeechResponse struct {
	Audio            ArtifactSummary `json:"audio"`
	EstimatedCredits int             `json:"estimated_credits"`
}

type RenderSubmitResponse struct {
	JobID string `json:"job_id"`
}

type RenderStatusResponse struct {
	JobSnapshot
	VideoURL string `json:"video_url,omitempty"`
}
