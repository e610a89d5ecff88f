package transcribe

import (
	"context"

	"github.com/snarg/audiocast/internal/transcript"
)

// Request describes audio to recognize. AudioURL must be fetchable by the
// provider without further authentication.
type Request struct {
	AudioURL string
	Locale   string
	UserID   string
	// RequiredCredits triggers a balance check before any provider call
	// when positive.
	RequiredCredits int64
}

// SyncProvider returns the complete transcript in one call.
type SyncProvider interface {
	Name() string
	Recognize(ctx context.Context, req Request) (*transcript.Result, error)
}

// AsyncProvider accepts a task and is polled for its status.
type AsyncProvider interface {
	Name() string
	Submit(ctx context.Context, req Request) (taskID string, err error)
	Status(ctx context.Context, taskID string) (*TaskStatus, error)
}

type TaskState string

const (
	TaskWaiting   TaskState = "waiting"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// TaskStatus is one poll result. Markup holds the provider's transcript text
// once the task succeeded; Err explains a failed task.
type TaskStatus struct {
	State    TaskState
	Markup   string
	Duration float64
	Err      error
}
