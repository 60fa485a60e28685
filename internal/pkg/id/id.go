package id

import (
	"strings"

	"github.com/google/uuid"
)

// New 生成新的UUID（string格式），用作问答记录 ID
func New() string {
	return uuid.NewString()
}

// Short 生成 8 位十六进制随机后缀，拼接在时间戳之后避免同一毫秒内冲突
func Short() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
