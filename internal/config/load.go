package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	"sitemend/internal/engine"
	"sitemend/internal/layout"
)

// DefaultProtected: 首页与顶层服务页默认不做任何修改。
var DefaultProtected = []string{
	"index.html",
	"services/seo/index.html",
	"services/paid-search/index.html",
	"services/creative/index.html",
	"services/hubspot/index.html",
}

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：Inputs 不设默认（必须由文件/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		Concurrency: 4,
		MaxPasses:   engine.DefaultOptions().MaxPasses,
		Protected:   cloneStrings(DefaultProtected),
		Logging:     Logging{Level: "info"},
		Reference:   Reference{Mode: ModeLocal},
		Layout:      layout.Default(),
		Components: Components{
			Reader: "fs",
			Writer: "fs",
		},
	}
}

// Load 从文件路径或原始字节解析 Config（严格拒绝未知字段）。
// 路径以 .yaml/.yml 结尾、或原始字节不以 '{' 开头时按 YAML 解析，
// YAML 先转换为 JSON，再走与 JSON 相同的严格解码。
func Load(path string, raw []byte) (Config, error) {
	var cfg Config
	data := raw
	switch {
	case len(raw) > 0:
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		data = b
	default:
		return cfg, errors.New("no config source provided")
	}
	if isYAML(path, data) {
		js, err := yamlToJSON(data)
		if err != nil {
			return cfg, fmt.Errorf("config yaml: %w", err)
		}
		data = js
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func isYAML(path string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	case ".json":
		return false
	}
	t := bytes.TrimSpace(data)
	return len(t) > 0 && t[0] != '{'
}

// yamlToJSON: yaml.v3 解码为通用值后转为 JSON；非字符串键报错。
func yamlToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	if v == nil {
		return []byte("{}"), nil
	}
	norm, err := jsonable(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(norm)
}

func jsonable(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			n, err := jsonable(x)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", k)
			}
			n, err := jsonable(x)
			if err != nil {
				return nil, err
			}
			out[ks] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			n, err := jsonable(x)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return v, nil
	}
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON/整段子结构为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	if over.MaxPasses != 0 {
		out.MaxPasses = over.MaxPasses
	}
	// 特殊：空数组具有语义（不保护任何文档），nil 视为未覆盖。
	if over.Protected != nil {
		out.Protected = cloneStrings(over.Protected)
		if out.Protected == nil {
			out.Protected = []string{}
		}
	}
	if strings.TrimSpace(over.Report) != "" {
		out.Report = strings.TrimSpace(over.Report)
	}
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}

	// 子结构：非零即整体替换，缺省字段由各包 WithDefaults 补齐
	if !isZero(over.Layout) {
		out.Layout = over.Layout.WithDefaults()
	}
	if !isZero(over.Palette) {
		out.Palette = over.Palette
	}
	if !isZero(over.Reconcile) {
		out.Reconcile = over.Reconcile
	}
	out.Reference = mergeReference(out.Reference, over.Reference)

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}
	if over.Components.Fetcher != "" {
		out.Components.Fetcher = over.Components.Fetcher
	}
	if over.Components.Archive != "" {
		out.Components.Archive = over.Components.Archive
	}
	if over.Components.Generator != "" {
		out.Components.Generator = over.Components.Generator
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	if len(over.Options.Fetcher) > 0 {
		out.Options.Fetcher = cloneRaw(over.Options.Fetcher)
	}
	if len(over.Options.Archive) > 0 {
		out.Options.Archive = cloneRaw(over.Options.Archive)
	}
	if len(over.Options.Generator) > 0 {
		out.Options.Generator = cloneRaw(over.Options.Generator)
	}
	return out
}

func mergeReference(out, over Reference) Reference {
	if m := strings.TrimSpace(over.Mode); m != "" {
		out.Mode = strings.ToLower(m)
	}
	if over.HomeFile != "" {
		out.HomeFile = over.HomeFile
	}
	if over.BaseURL != "" {
		out.BaseURL = over.BaseURL
	}
	if over.Attempts != 0 {
		out.Attempts = over.Attempts
	}
	if len(over.BackoffMS) > 0 {
		out.BackoffMS = append([]int(nil), over.BackoffMS...)
	}
	if over.SpacingMS != 0 {
		out.SpacingMS = over.SpacingMS
	}
	if over.CacheSize != 0 {
		out.CacheSize = over.CacheSize
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 SITEMEND_；集合之外的键忽略。
// 支持：INPUTS, CONCURRENCY, MAX_PASSES, PROTECTED, REPORT, LOG_LEVEL,
// REFERENCE_{MODE,HOME_FILE,BASE_URL,ATTEMPTS,SPACING_MS}, COMPONENTS_*, OPTIONS_*_JSON
func EnvOverlay(environ []string) (Config, error) {
	const prefix = "SITEMEND_"
	var over Config
	for _, kv := range environ {
		if !strings.HasPrefix(kv, prefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(prefix) {
			continue
		}
		key := strings.TrimPrefix(kv[:eq], prefix)
		val := kv[eq+1:]
		tv := strings.TrimSpace(val)
		switch key {
		case "INPUTS":
			if val != "" {
				over.Inputs = splitComma(val)
			}
		case "CONCURRENCY":
			if v, err := atoi(val); err == nil {
				over.Concurrency = v
			}
		case "MAX_PASSES":
			if v, err := atoi(val); err == nil {
				over.MaxPasses = v
			}
		case "PROTECTED":
			// 显式空值关闭保护
			over.Protected = splitComma(val)
			if over.Protected == nil {
				over.Protected = []string{}
			}
		case "REPORT":
			over.Report = tv
		case "LOG_LEVEL":
			over.Logging.Level = tv
		case "REFERENCE_MODE":
			over.Reference.Mode = tv
		case "REFERENCE_HOME_FILE":
			over.Reference.HomeFile = tv
		case "REFERENCE_BASE_URL":
			over.Reference.BaseURL = tv
		case "REFERENCE_ATTEMPTS":
			if v, err := atoi(val); err == nil {
				over.Reference.Attempts = v
			}
		case "REFERENCE_SPACING_MS":
			if v, err := atoi(val); err == nil {
				over.Reference.SpacingMS = v
			}
		case "COMPONENTS_READER":
			over.Components.Reader = tv
		case "COMPONENTS_WRITER":
			over.Components.Writer = tv
		case "COMPONENTS_FETCHER":
			over.Components.Fetcher = tv
		case "COMPONENTS_ARCHIVE":
			over.Components.Archive = tv
		case "COMPONENTS_GENERATOR":
			over.Components.Generator = tv
		case "OPTIONS_READER_JSON", "OPTIONS_WRITER_JSON", "OPTIONS_FETCHER_JSON", "OPTIONS_ARCHIVE_JSON", "OPTIONS_GENERATOR_JSON":
			// 原样 JSON；空值视为未设置，避免清空现有配置
			if tv == "" {
				continue
			}
			if !json.Valid([]byte(tv)) {
				return over, fmt.Errorf("env %s%s: invalid json", prefix, key)
			}
			raw := json.RawMessage(tv)
			switch key {
			case "OPTIONS_READER_JSON":
				over.Options.Reader = raw
			case "OPTIONS_WRITER_JSON":
				over.Options.Writer = raw
			case "OPTIONS_FETCHER_JSON":
				over.Options.Fetcher = raw
			case "OPTIONS_ARCHIVE_JSON":
				over.Options.Archive = raw
			case "OPTIONS_GENERATOR_JSON":
				over.Options.Generator = raw
			}
		}
	}
	return over, nil
}

func isZero(v any) bool { return reflect.ValueOf(v).IsZero() }

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func atoi(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
