package config

import (
	"encoding/json"

	"sitemend/internal/layout"
	"sitemend/internal/palette"
	"sitemend/internal/reconcile"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Inputs: 语料根；恰好一个目录或文件。
	Inputs      []string `json:"inputs"`
	Concurrency int      `json:"concurrency"`
	MaxPasses   int      `json:"max_passes"`
	// Protected: doublestar 模式；命中的文档原样保留。nil 表示沿用默认，空数组表示不保护。
	Protected []string `json:"protected"`
	// Report: JSON 报告输出路径；为空时不落盘。
	Report  string  `json:"report"`
	Logging Logging `json:"logging"`

	Layout    layout.Convention `json:"layout"`
	Palette   palette.Palette   `json:"palette"`
	Reconcile reconcile.Options `json:"reconcile"`
	Reference Reference         `json:"reference"`

	// 组件名选择（空则使用默认名；fetcher/archive/generator 为空表示不启用）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
}

// Reference: 参考文档解析配置。
type Reference struct {
	// Mode: local（默认，仅本地首页）或 remote（允许向线上站点取参考）。
	Mode string `json:"mode"`
	// HomeFile: 本地参考首页；为空时取语料根下的 index.html。
	HomeFile  string `json:"home_file"`
	BaseURL   string `json:"base_url"`
	Attempts  int    `json:"attempts"`
	BackoffMS []int  `json:"backoff_ms"`
	SpacingMS int    `json:"spacing_ms"`
	CacheSize int    `json:"cache_size"`
}

// Reference 模式名。
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader    string `json:"reader"`
	Writer    string `json:"writer"`
	Fetcher   string `json:"fetcher"`
	Archive   string `json:"archive"`
	Generator string `json:"generator"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader    json.RawMessage `json:"reader"`
	Writer    json.RawMessage `json:"writer"`
	Fetcher   json.RawMessage `json:"fetcher"`
	Archive   json.RawMessage `json:"archive"`
	Generator json.RawMessage `json:"generator"`
}
