package contract

import "context"

// Fetcher: 远端参考文档获取能力（HTTP 或无头浏览器）。
// 返回 UTF-8 标记文本；HTTP 失败应实现 UpstreamError 以便按状态码决定重试。
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ArchiveLoader: 归档日志加载器（容错、尽力而为）。
type ArchiveLoader interface {
	Load(ctx context.Context) ([]ContentItem, error)
}

// Generator: 当归档与远端参考均无内容时的占位内容生成器。
type Generator interface {
	Generate(ctx context.Context, meta PageMeta) ([]ContentBlock, error)
}
