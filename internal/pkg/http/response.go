package http

// 错误码：前三位为 HTTP 状态码
const (
	CodeInvalidSignature = 40001
	CodeInvalidRequest   = 40002
	CodeInvalidPath      = 40003
	CodeNotFound         = 40401
	CodeNotReady         = 50301
	CodeInternal         = 50000
)

// ErrorResponse 错误响应（所有API共用）
type ErrorResponse struct {
	Code    int    `json:"code"`             // 错误码（非0表示错误）
	Message string `json:"message"`          // 错误消息
	Detail  string `json:"detail,omitempty"` // 错误详情（可选）
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string, detail ...string) *ErrorResponse {
	resp := &ErrorResponse{
		Code:    code,
		Message: message,
	}
	if len(detail) > 0 && detail[0] != "" {
		resp.Detail = detail[0]
	}
	return resp
}
