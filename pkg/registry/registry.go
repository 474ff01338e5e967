package registry

import (
	"bytes"
	"encoding/json"

	"sitemend/pkg/contract"
	ajl "sitemend/plugins/archive/jsonlog"
	fch "sitemend/plugins/fetcher/chrome"
	fht "sitemend/plugins/fetcher/http"
	goa "sitemend/plugins/generator/openai"
	gtp "sitemend/plugins/generator/template"
	rfs "sitemend/plugins/reader/filesystem"
	wfs "sitemend/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// NewFetcher 工厂签名：接收原样 JSON Options。
type NewFetcher func(raw json.RawMessage) (contract.Fetcher, error)

// NewArchive 工厂签名：接收原样 JSON Options。
type NewArchive func(raw json.RawMessage) (contract.ArchiveLoader, error)

// NewGenerator 工厂签名：接收原样 JSON Options。
type NewGenerator func(raw json.RawMessage) (contract.Generator, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 语料目录枚举
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 原地回写（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}

// Fetcher 工厂注册表。
var Fetcher = map[string]NewFetcher{
	"http":   func(raw json.RawMessage) (contract.Fetcher, error) { return fht.New(raw) },
	"chrome": func(raw json.RawMessage) (contract.Fetcher, error) { return fch.New(raw) },
}

// Archive 工厂注册表。
var Archive = map[string]NewArchive{
	// jsonlog: 改写进度日志 {file, tag, id, original}
	"jsonlog": func(raw json.RawMessage) (contract.ArchiveLoader, error) { return ajl.New(raw) },
}

// Generator 工厂注册表。
var Generator = map[string]NewGenerator{
	"template": func(raw json.RawMessage) (contract.Generator, error) { return gtp.New(raw) },
	"openai":   func(raw json.RawMessage) (contract.Generator, error) { return goa.New(raw) },
}
