package services

import (
	"context"
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrTypeTimeout  ErrorType = "timeout"
	ErrTypeTool     ErrorType = "tool"
	ErrTypeProvider ErrorType = "provider"
	ErrTypeStorage  ErrorType = "storage"
	ErrTypeWebhook  ErrorType = "webhook"
	ErrTypeSystem   ErrorType = "system"
)

type JobError struct {
	Type   ErrorType
	TaskID string
	Op     string
	Err    error
}

func (e *JobError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("[%s] task=%s op=%s: %v", e.Type, e.TaskID, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] op=%s: %v", e.Type, e.Op, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

func newJobError(errType ErrorType, taskID, op string, err error) error {
	return &JobError{
		Type:   errType,
		TaskID: taskID,
		Op:     op,
		Err:    err,
	}
}

// classify maps an error onto the taxonomy for metric labels. Context
// expiry always wins over whatever error it provoked downstream.
func classify(err error) (ErrorType, string) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrTypeTimeout, "run"
	}

	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Type, jobErr.Op
	}
	return ErrTypeSystem, "run"
}
