package contract

import (
	"context"
	"io"
)

// Writer: 将完整的文档字节持久化到目标位置（原地回写）。
// 约束：
//  1. 同一 FileID 单写者；
//  2. 调用方先在内存中序列化完整文本，再单次调用 Write（无部分写）；
//  3. ctx 取消需尽快返回；
//  4. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id FileID, r io.Reader) error
}
