package contract

import (
	"path"
	"strings"
)

// NormalizeFileID 规范化路径，统一为跨平台稳定的 FileID。
// 规则：
// - 使用正斜杠分隔符
// - 清理多余分隔符与路径片段（.、..）
// - 保留相对/绝对语义，不做隐式绝对化
func NormalizeFileID(p string) FileID {
	return FileID(path.Clean(strings.ReplaceAll(p, "\\", "/")))
}

// PathKey 返回用于跨来源比较的路径键：分隔符与大小写不敏感，去掉前导 "./" 与 "/"。
// 归档日志使用反斜杠键，语料枚举使用正斜杠，二者经 PathKey 后可直接比较。
func PathKey(p string) string {
	s := strings.ToLower(string(NormalizeFileID(strings.TrimSpace(p))))
	s = strings.TrimLeft(s, "/")
	if s == "." {
		return ""
	}
	return s
}
