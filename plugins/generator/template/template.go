// Package template 以固定模板生成占位内容；相同 PageMeta 总得到相同输出。
package template

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sitemend/pkg/contract"
)

// Section 为一个标题加一段正文；{title} 与 {description} 在生成时替换。
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Options: 模板段落。
type Options struct {
	Sections []Section `json:"sections"`
	Level    int       `json:"level"` // 标题级别，默认 2
}

// DefaultSections 默认模板：概述段与联系段。
var DefaultSections = []Section{
	{Heading: "Overview", Body: "{description}"},
	{Heading: "Get in Touch", Body: "Contact our team to learn more about {title}."},
}

// Generator 实现 contract.Generator。
type Generator struct {
	sections []Section
	level    int
}

// New 构造模板生成器。
func New(raw json.RawMessage) (*Generator, error) {
	var opts Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("template generator options: %w", err)
		}
	}
	if opts.Sections == nil {
		opts.Sections = DefaultSections
	}
	if opts.Level == 0 {
		opts.Level = 2
	}
	if opts.Level < 1 || opts.Level > 6 {
		return nil, fmt.Errorf("template generator: %w: level %d", contract.ErrInvalidInput, opts.Level)
	}
	return &Generator{sections: opts.Sections, level: opts.Level}, nil
}

var _ contract.Generator = (*Generator)(nil)

// Generate 按模板展开；标题为空的段落只输出正文，展开后为空的正文被省略。
func (g *Generator) Generate(ctx context.Context, meta contract.PageMeta) ([]contract.ContentBlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		return nil, fmt.Errorf("template generator: %w: page title required", contract.ErrInvalidInput)
	}
	desc := strings.TrimSpace(meta.Description)
	if desc == "" {
		desc = title
	}
	rep := strings.NewReplacer("{title}", title, "{description}", desc)

	var out []contract.ContentBlock
	for _, s := range g.sections {
		if h := strings.TrimSpace(rep.Replace(s.Heading)); h != "" {
			out = append(out, contract.ContentBlock{Kind: contract.BlockHeading, Level: g.level, Text: h})
		}
		if b := strings.TrimSpace(rep.Replace(s.Body)); b != "" {
			out = append(out, contract.ContentBlock{Kind: contract.BlockParagraph, Text: b})
		}
	}
	return out, nil
}
