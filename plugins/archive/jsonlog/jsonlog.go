// Package jsonlog 读取改写进度日志中保存的原始片段。
//
// 日志为 {"rewritten":[{file, tag, id, original}, ...]} 或裸数组；
// file 键可能使用反斜杠；文件编码通常为 UTF-8，偶见 windows-1252。
// 加载尽力而为：单条记录缺字段时跳过，不使整次加载失败。
package jsonlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"sitemend/pkg/contract"
)

// Options: 日志位置与记录容器键。
type Options struct {
	Path string `json:"path"`
	// Key: 记录数组所在的顶层键，默认 rewritten；文件为裸数组时忽略。
	Key string `json:"key"`
	// StripPrefix: 去掉 file 键的前导目录（如站点导出目录名），使其相对语料根。
	StripPrefix string `json:"strip_prefix"`
}

// Loader 实现 contract.ArchiveLoader。
type Loader struct {
	path   string
	key    string
	prefix string
	read   func(string) ([]byte, error)
}

// New 构造加载器；Path 为必填。
func New(raw json.RawMessage) (*Loader, error) {
	var opts Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("jsonlog options: %w", err)
		}
	}
	if strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("jsonlog: %w: path required", contract.ErrInvalidInput)
	}
	if opts.Key == "" {
		opts.Key = "rewritten"
	}
	return &Loader{
		path:   opts.Path,
		key:    opts.Key,
		prefix: contract.PathKey(opts.StripPrefix),
		read:   os.ReadFile,
	}, nil
}

var _ contract.ArchiveLoader = (*Loader)(nil)

type record struct {
	File     string          `json:"file"`
	Tag      string          `json:"tag"`
	ID       json.RawMessage `json:"id"`
	Original string          `json:"original"`
}

// Load 读取并解码全部记录。
func (l *Loader) Load(ctx context.Context) ([]contract.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := l.read(l.path)
	if err != nil {
		return nil, fmt.Errorf("archive read: %w", err)
	}
	b, err = toUTF8(b)
	if err != nil {
		return nil, fmt.Errorf("archive decode: %v: %w", err, contract.ErrInvalidInput)
	}
	recs, err := l.records(b)
	if err != nil {
		return nil, err
	}
	out := make([]contract.ContentItem, 0, len(recs))
	for i, r := range recs {
		file := l.relative(r.File)
		text := strings.TrimSpace(r.Original)
		if file == "" || text == "" {
			continue
		}
		tag := strings.ToLower(strings.TrimSpace(r.Tag))
		kind, level := contract.KindFromTag(tag)
		seq, ok := sequence(r.ID)
		if !ok {
			seq = int64(i)
		}
		out = append(out, contract.ContentItem{
			SourceFile: file,
			Kind:       kind,
			Level:      level,
			Tag:        tag,
			Sequence:   seq,
			Text:       text,
		})
	}
	return out, nil
}

func (l *Loader) records(b []byte) ([]record, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var recs []record
		if err := json.Unmarshal(b, &recs); err != nil {
			return nil, fmt.Errorf("archive json: %v: %w", err, contract.ErrInvalidInput)
		}
		return recs, nil
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(b, &top); err != nil {
		return nil, fmt.Errorf("archive json: %v: %w", err, contract.ErrInvalidInput)
	}
	raw, ok := top[l.key]
	if !ok {
		return nil, fmt.Errorf("archive json: missing %q: %w", l.key, contract.ErrInvalidInput)
	}
	var recs []record
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("archive json %q: %v: %w", l.key, err, contract.ErrInvalidInput)
	}
	return recs, nil
}

// relative 规范化 file 键并去掉配置的前导目录。
func (l *Loader) relative(file string) string {
	k := contract.PathKey(file)
	if l.prefix != "" {
		if k == l.prefix {
			return ""
		}
		k = strings.TrimPrefix(k, l.prefix+"/")
	}
	return k
}

// sequence: id 可为数字或数字字符串。
func sequence(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var n json.Number
	if raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, false
		}
		n = json.Number(strings.TrimSpace(s))
	} else {
		n = json.Number(raw)
	}
	if v, err := n.Int64(); err == nil {
		return v, true
	}
	if f, err := strconv.ParseFloat(string(n), 64); err == nil {
		return int64(f), true
	}
	return 0, false
}

var bom = []byte{0xEF, 0xBB, 0xBF}

// toUTF8 去掉 BOM；非法 UTF-8 按 windows-1252 解码。
func toUTF8(b []byte) ([]byte, error) {
	b = bytes.TrimPrefix(b, bom)
	if utf8.Valid(b) {
		return b, nil
	}
	return charmap.Windows1252.NewDecoder().Bytes(b)
}
