package contract

import (
	"errors"

	"sitemend/pkg/dom"
)

// 错误分类（哨兵）。除 I/O 外均不终止单个文档，任何错误都不终止整批。
var (
	// ErrParse: 输入不是可解析的标记文本；该文档跳过并计入报告。
	ErrParse = dom.ErrParse
	// ErrReferenceNotFound: 参考文档或其子树不可得；对应修复跳过，其余照常。
	ErrReferenceNotFound = errors.New("reference not found")
	// ErrStrategySkipped: 修复策略找不到锚点（非致命）。
	ErrStrategySkipped = errors.New("strategy skipped")
	// ErrNetwork: 远端参考重试耗尽；按 ErrReferenceNotFound 处理。
	ErrNetwork = errors.New("network error")
	// ErrIOWrite: 写回失败；仅该文档失败。
	ErrIOWrite = errors.New("write failed")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvalidInput: 输入或配置不合法。
	ErrInvalidInput = errors.New("invalid input")
	// ErrResponseInvalid: 上游响应无法解码。
	ErrResponseInvalid = errors.New("response invalid")
	// ErrRateLimited: 上游限流（HTTP 429）。
	ErrRateLimited = errors.New("rate limited")
)
