package models

import (
	"time"

	"github.com/google/uuid"
)

type TaskKind string

const (
	TaskKindGenerate TaskKind = "generate"
	TaskKindFetch    TaskKind = "fetch"
)

type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Platforms a generation task renders, in the order results are reported.
var Platforms = []string{"youtube_shorts", "tiktok", "instagram_reels", "facebook_reels"}

// VideoSpec describes a single platform video inside a generation task.
type VideoSpec struct {
	Platform    string `json:"platform"`
	ChannelName string `json:"channel_name,omitempty"`
	RowNumber   int    `json:"row_number,omitempty"`
	VideoTitle  string `json:"video_title"`
	Script      string `json:"script"`
	Keywords    string `json:"keywords"`
	Description string `json:"description"`
	AudioURL    string `json:"audio_url"`
}

// FetchSpec describes a media fetch task: grab the target URL with the
// downloader binary and deliver it in the requested container format.
type FetchSpec struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

// GenerateRequest is the array-format job payload, shared by the HTTP API
// and the AMQP intake.
type GenerateRequest struct {
	Videos             []VideoSpec `json:"videos"`
	ChannelName        string      `json:"channel_name"`
	RowNumber          int         `json:"row_number"`
	SheetID            string      `json:"sheet_id"`
	WebhookCallbackURL string      `json:"webhook_callback_url"`
}

type Task struct {
	ID          string            `json:"task_id"`
	Kind        TaskKind          `json:"kind"`
	Status      TaskStatus        `json:"status"`
	ChannelName string            `json:"channel_name,omitempty"`
	RowNumber   int               `json:"row_number,omitempty"`
	SheetID     string            `json:"sheet_id,omitempty"`
	WebhookURL  string            `json:"-"`
	Videos      []VideoSpec       `json:"-"`
	Fetch       *FetchSpec        `json:"fetch,omitempty"`
	VideoURLs   map[string]string `json:"video_urls,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   time.Time         `json:"started_at,omitzero"`
	FinishedAt  time.Time         `json:"finished_at,omitzero"`
}

// NewGenerateTask builds a queued generation task from a request, applying
// the same fallbacks the upstream sheet automation relies on.
func NewGenerateTask(req GenerateRequest) *Task {
	channel := req.ChannelName
	if channel == "" {
		channel = "Unknown"
	}
	sheet := req.SheetID
	if sheet == "" {
		sheet = "unknown"
	}

	return &Task{
		ID:          uuid.NewString(),
		Kind:        TaskKindGenerate,
		Status:      TaskQueued,
		ChannelName: channel,
		RowNumber:   req.RowNumber,
		SheetID:     sheet,
		WebhookURL:  req.WebhookCallbackURL,
		Videos:      req.Videos,
		CreatedAt:   time.Now(),
	}
}

func NewFetchTask(spec FetchSpec, webhookURL string) *Task {
	return &Task{
		ID:         uuid.NewString(),
		Kind:       TaskKindFetch,
		Status:     TaskQueued,
		WebhookURL: webhookURL,
		Fetch:      &spec,
		CreatedAt:  time.Now(),
	}
}

// WebhookVideo is a single per-platform entry in a completion callback.
type WebhookVideo struct {
	Platform string `json:"platform"`
	VideoURL string `json:"video_url"`
}

// WebhookPayload is posted to the task's callback URL when it finishes.
type WebhookPayload struct {
	Status      string         `json:"status"`
	TaskID      string         `json:"task_id"`
	RowNumber   int            `json:"row_number,omitempty"`
	SheetID     string         `json:"sheet_id,omitempty"`
	ChannelName string         `json:"channel_name,omitempty"`
	Videos      []WebhookVideo `json:"videos,omitempty"`
	Error       string         `json:"error,omitempty"`
}
