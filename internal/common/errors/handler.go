// internal/common/errors/handler.go
package errors

// ErrorHandler normalizes, logs and counts errors on their way to the user.
type ErrorHandler struct {
	logger   Logger
	recorder Recorder
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// Recorder receives one call per handled error.
type Recorder interface {
	RecordError(code ErrorCode)
}

func NewErrorHandler(logger Logger, recorder Recorder) *ErrorHandler {
	return &ErrorHandler{logger: logger, recorder: recorder}
}

// Handle returns the StandardError to render for err. Fields are added to
// the log entry.
func (h *ErrorHandler) Handle(err error, fields map[string]interface{}) *StandardError {
	stdErr := Normalize(err)
	if stdErr == nil {
		return nil
	}

	h.logError(stdErr, fields)
	if h.recorder != nil {
		h.recorder.RecordError(stdErr.Code)
	}
	return stdErr
}

func (h *ErrorHandler) logError(stdErr *StandardError, extra map[string]interface{}) {
	fields := map[string]interface{}{
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"errorCategory": GetErrorCategory(stdErr.Code),
		"status":        stdErr.HTTPStatus(),
	}
	for k, v := range stdErr.Metadata {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}

	// Client mistakes are expected traffic.
	if stdErr.HTTPStatus() < 500 {
		h.logger.Warn("request rejected", fields)
		return
	}
	h.logger.Error("request failed", fields)
}
