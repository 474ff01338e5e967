package config

import (
	"encoding/json"

	"sitemend/internal/layout"
	"sitemend/internal/palette"
	"sitemend/internal/reconcile"
	"sitemend/internal/reference"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 语料根为当前目录，原地回写；
// - 本地参考模式，远端抓取器与归档、生成器留空（按需启用）；
// - 布局约定、色板与去噪参数展开为完整默认值，便于编辑；
// - 各组件选项给出全部键。
func DefaultTemplateConfig() Config {
	d := Defaults()
	ro := reference.DefaultOptions()
	backoff := make([]int, 0, len(ro.Backoff))
	for _, b := range ro.Backoff {
		backoff = append(backoff, int(b.Milliseconds()))
	}
	cfg := Config{
		Inputs:      []string{"."},
		Concurrency: d.Concurrency,
		MaxPasses:   d.MaxPasses,
		Protected:   d.Protected,
		Report:      "sitemend-report.json",
		Logging:     Logging{Level: "info"},
		Layout:      layout.Default(),
		Palette:     palette.Default(),
		Reconcile:   reconcile.DefaultOptions(),
		Reference: Reference{
			Mode:      ModeLocal,
			HomeFile:  "",
			BaseURL:   "",
			Attempts:  ro.Attempts,
			BackoffMS: backoff,
			SpacingMS: int(ro.Spacing.Milliseconds()),
			CacheSize: ro.CacheSize,
		},
		Components: d.Components,
	}
	// Options：包含所有键（值可为空/默认），确保键存在。
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": ["wp-content", "wp-includes", "wp-json", "node_modules", ".git"],
  "extensions": [".html", ".htm"],
  "exclude": []
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "root": "",
  "atomic": true,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	cfg.Options.Fetcher = json.RawMessage(`{
  "user_agent": "",
  "timeout_seconds": 30,
  "max_bytes": 0,
  "extra_headers": {}
}`)
	cfg.Options.Archive = json.RawMessage(`{
  "path": "rewrite_progress.json",
  "key": "rewritten",
  "strip_prefix": ""
}`)
	cfg.Options.Generator = json.RawMessage(`{
  "sections": null,
  "level": 2
}`)
	return cfg
}
