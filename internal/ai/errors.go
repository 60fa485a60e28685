package ai

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
)

// ErrCompletionTimeout 调用上游超时，可由调用方重试
var ErrCompletionTimeout = errors.New("ai: completion timed out")

// APIError 上游返回的错误，Kind 与 Message 会原样展示给用户
type APIError struct {
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[%s]%s", e.Kind, e.Message)
}

var statusCodePattern = regexp.MustCompile(`status code: (\d{3})`)

// classify 把 SDK 错误归类为 APIError；SDK 只暴露错误文本，按其中的 HTTP 状态码映射类型
func classify(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	kind := "api_error"
	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		kind = kindForStatus(code)
	}
	return &APIError{Kind: kind, Message: err.Error()}
}

func kindForStatus(code int) string {
	switch {
	case code == http.StatusBadRequest:
		return "invalid_request_error"
	case code == http.StatusUnauthorized:
		return "authentication_error"
	case code == http.StatusForbidden:
		return "permission_error"
	case code == http.StatusNotFound:
		return "not_found_error"
	case code == http.StatusTooManyRequests:
		return "rate_limit_error"
	case code >= 500:
		return "server_error"
	default:
		return "api_error"
	}
}
