package contract

import (
	"context"
	"io"
)

// Reader: 语料枚举抽象。
// 约束：
// 1) 流式读取，按文档回调；
// 2) FileID 为相对根的规范路径，稳定且去平台差异化；
// 3) 不做业务解析，仅提供字节流；
// 4) 不在内部起并发。
type Reader interface {
	Iterate(ctx context.Context, roots []string, yield func(fileID FileID, r io.ReadCloser) error) error
}
