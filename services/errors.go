package services

import (
	"errors"
	"fmt"
)

// Workflow error codes returned by the engines. The HTTP layer maps these to
// status codes; the engines never write user-facing messages themselves.
const (
	CodeTemplateMissing        = "TEMPLATE_MISSING"
	CodeStageNotStarted        = "STAGE_NOT_STARTED"
	CodeStageAlreadyCompleted  = "STAGE_ALREADY_COMPLETED"
	CodePhotoRequired          = "PHOTO_REQUIRED"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeDuplicateActiveRequest = "DUPLICATE_ACTIVE_REQUEST"
	CodeAlreadyReviewed        = "ALREADY_REVIEWED"
	CodeNotFound               = "NOT_FOUND"
	CodeOperationFailed        = "OPERATION_FAILED"
)

// WorkflowError is a typed failure from a workflow engine operation
type WorkflowError struct {
	Code    string
	Message string
}

func (e *WorkflowError) Error() string {
	return e.Message
}

// ErrorCode extracts the workflow error code from an error, or empty string
// if the error is not a WorkflowError
func ErrorCode(err error) string {
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr.Code
	}
	return ""
}

// IsCode reports whether err is a WorkflowError with the given code
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}

func errTemplateMissing(category string) *WorkflowError {
	return &WorkflowError{
		Code:    CodeTemplateMissing,
		Message: fmt.Sprintf("no process template found for service category %q", category),
	}
}

func errStageNotStarted(stageID uint) *WorkflowError {
	return &WorkflowError{
		Code:    CodeStageNotStarted,
		Message: fmt.Sprintf("stage %d has not been started", stageID),
	}
}

func errStageAlreadyCompleted(stageID uint) *WorkflowError {
	return &WorkflowError{
		Code:    CodeStageAlreadyCompleted,
		Message: fmt.Sprintf("stage %d is already completed", stageID),
	}
}

func errPhotoRequired(stageID uint) *WorkflowError {
	return &WorkflowError{
		Code:    CodePhotoRequired,
		Message: fmt.Sprintf("stage %d requires at least one photo before completion", stageID),
	}
}

func errUnauthorized(action string) *WorkflowError {
	return &WorkflowError{
		Code:    CodeUnauthorized,
		Message: fmt.Sprintf("actor is not permitted to %s", action),
	}
}

func errDuplicateActiveRequest(bookingID, serviceID uint) *WorkflowError {
	return &WorkflowError{
		Code:    CodeDuplicateActiveRequest,
		Message: fmt.Sprintf("a pending addon request for service %d already exists on booking %d", serviceID, bookingID),
	}
}

func errAlreadyReviewed(requestID uint) *WorkflowError {
	return &WorkflowError{
		Code:    CodeAlreadyReviewed,
		Message: fmt.Sprintf("addon request %d has already been reviewed", requestID),
	}
}

func errNotFound(entity string, id uint) *WorkflowError {
	return &WorkflowError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %d not found", entity, id),
	}
}

func errOperationFailed(err error) *WorkflowError {
	return &WorkflowError{
		Code:    CodeOperationFailed,
		Message: fmt.Sprintf("operation failed: %v", err),
	}
}
