// Package userkey 将消息平台的用户 ID 派生为不可逆、可安全用作路径段的用户键
package userkey

import (
	"crypto/sha256"
	"encoding/hex"
)

// platformPrefix 与历史数据保持一致的命名空间前缀
const platformPrefix = "line_"

// Size 用户键长度（十六进制字符数）
const Size = sha256.Size * 2

// Key 用户键
type Key string

// Derive 由平台用户 ID 派生用户键，空字符串同样参与哈希
func Derive(platformUserID string) Key {
	sum := sha256.Sum256([]byte(platformPrefix + platformUserID))
	return Key(hex.EncodeToString(sum[:]))
}

// String 实现 fmt.Stringer
func (k Key) String() string {
	return string(k)
}

// Valid 判断字符串是否为合法的用户键（64 位小写十六进制）
func Valid(s string) bool {
	if len(s) != Size {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
