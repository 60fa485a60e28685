package model

// WebhookResponse webhook 处理结果，Code 为 0 表示请求已受理
type WebhookResponse struct {
	Code   int `json:"code"`
	Events int `json:"events"`
	Failed int `json:"failed"`
}
