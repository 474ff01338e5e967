package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"sitemend/pkg/contract"
)

// Options: 最小必需配置。
type Options struct {
	BaseURL        string   `json:"base_url"`        // 例如 https://api.openai.com/v1
	Model          string   `json:"model"`           // 为空则使用默认
	APIKeyEnv      string   `json:"api_key_env"`     // 优先从环境变量读取
	APIKey         string   `json:"api_key"`         // 明文传入（不推荐，按需用于测试）
	TimeoutSeconds int      `json:"timeout_seconds"` // 可选 client 级超时（秒）
	Temperature    *float64 `json:"temperature,omitempty"`
	// SystemPrompt 覆盖默认系统提示。
	SystemPrompt string `json:"system_prompt"`
	// MaxBlocks 限制返回块数量，默认 12。
	MaxBlocks int `json:"max_blocks"`
	// 第三方兼容（最小）：
	EndpointPath       string            `json:"endpoint_path"`        // 覆盖默认 /chat/completions；可为完整 URL（以 http 开头）
	DisableDefaultAuth bool              `json:"disable_default_auth"` // 关闭默认 Authorization: Bearer 注入
	ExtraHeaders       map[string]string `json:"extra_headers"`        // 追加/覆盖请求头
}

const defaultSystemPrompt = "You write concise, factual marketing page copy. " +
	"Return only JSON matching the schema: an ordered list of blocks, each a heading (level 2 or 3), " +
	"a paragraph, or a list of short items. Do not invent statistics, prices or client names."

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model == "" {
		o.Model = "gpt-4.1-mini"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.EndpointPath == "" {
		o.EndpointPath = "/chat/completions"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
	if o.SystemPrompt == "" {
		o.SystemPrompt = defaultSystemPrompt
	}
	if o.MaxBlocks <= 0 {
		o.MaxBlocks = 12
	}
}

// Client 通过 OpenAI 兼容的 chat completions 接口生成内容块。
type Client struct {
	url         string
	apiKey      string
	temp        *float64
	model       string
	system      string
	maxBlocks   int
	extraH      map[string]string
	disableAuth bool
	do          func(*http.Request) (*http.Response, error)
}

// New 从原样 JSON 选项构造客户端。
func New(raw json.RawMessage) (*Client, error) {
	var opts Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("openai options: %w", err)
		}
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" && opts.APIKeyEnv != "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" && !opts.DisableDefaultAuth {
		return nil, fmt.Errorf("openai: %w: missing api key", contract.ErrInvalidInput)
	}
	hc := &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second}
	// endpoint_path 允许为完整 URL
	fullURL := opts.EndpointPath
	if !(strings.HasPrefix(fullURL, "http://") || strings.HasPrefix(fullURL, "https://")) {
		fullURL = strings.TrimRight(opts.BaseURL, "/") + "/" + strings.TrimLeft(opts.EndpointPath, "/")
	}
	return &Client{
		url:         fullURL,
		apiKey:      key,
		temp:        opts.Temperature,
		model:       opts.Model,
		system:      opts.SystemPrompt,
		maxBlocks:   opts.MaxBlocks,
		extraH:      opts.ExtraHeaders,
		disableAuth: opts.DisableDefaultAuth,
		do:          hc.Do,
	}, nil
}

var _ contract.Generator = (*Client)(nil)

type oaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaReq struct {
	Model          string            `json:"model"`
	Messages       []oaMessage       `json:"messages"`
	Temperature    *float64          `json:"temperature,omitempty"`
	ResponseFormat *oaResponseFormat `json:"response_format,omitempty"`
}

type oaResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type oaResponseFormat struct {
	Type       string        `json:"type"`
	JSONSchema *oaJSONSchema `json:"json_schema,omitempty"`
}

type oaJSONSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict,omitempty"`
}

// blockSchema 约束模型输出为 {"blocks":[...]}。
var blockSchema = json.RawMessage(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["blocks"],
  "properties": {
    "blocks": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["kind", "level", "text", "items"],
        "properties": {
          "kind": {"type": "string", "enum": ["heading", "paragraph", "list"]},
          "level": {"type": "integer"},
          "text": {"type": "string"},
          "items": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`)

// upstreamError 实现 net.Error，用于将 HTTP 上游 5xx/408 映射为网络类错误，便于分类。
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string           { return fmt.Sprintf("openai upstream %d: %s", e.status, e.msg) }
func (e upstreamError) Timeout() bool           { return e.status == http.StatusRequestTimeout }
func (e upstreamError) Temporary() bool         { return e.status/100 == 5 }
func (e upstreamError) UpstreamStatus() int     { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

func (c *Client) userPrompt(meta contract.PageMeta) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page path: %s\n", meta.FileID)
	fmt.Fprintf(&b, "Page title: %s\n", meta.Title)
	if meta.Description != "" {
		fmt.Fprintf(&b, "Page description: %s\n", meta.Description)
	}
	fmt.Fprintf(&b, "Write at most %d blocks of body copy for this page.", c.maxBlocks)
	return b.String()
}

// Generate: 单次调用，同步返回；不做重试。
func (c *Client) Generate(ctx context.Context, meta contract.PageMeta) ([]contract.ContentBlock, error) {
	if strings.TrimSpace(meta.Title) == "" {
		return nil, fmt.Errorf("openai: %w: page title required", contract.ErrInvalidInput)
	}
	body, err := json.Marshal(&oaReq{
		Model: c.model,
		Messages: []oaMessage{
			{Role: "system", Content: c.system},
			{Role: "user", Content: c.userPrompt(meta)},
		},
		Temperature:    c.temp,
		ResponseFormat: &oaResponseFormat{Type: "json_schema", JSONSchema: &oaJSONSchema{Name: "page_blocks", Schema: blockSchema, Strict: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode: %v: %w", err, contract.ErrInvalidInput)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %v: %w", err, contract.ErrInvalidInput)
	}
	if !c.disableAuth {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.extraH {
		if k == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", contract.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, contract.ErrRateLimited
	}
	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		msg := strings.TrimSpace(string(slurp))
		if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode/100 == 5 {
			return nil, upstreamError{status: resp.StatusCode, msg: msg}
		}
		return nil, fmt.Errorf("openai upstream %d: %w", resp.StatusCode, contract.ErrInvalidInput)
	}
	var or oaResp
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return nil, fmt.Errorf("decode: %w", contract.ErrResponseInvalid)
	}
	if len(or.Choices) == 0 || or.Choices[0].Message.Content == "" {
		return nil, contract.ErrResponseInvalid
	}
	return c.decodeBlocks(or.Choices[0].Message.Content)
}

type wireBlock struct {
	Kind  string   `json:"kind"`
	Level int      `json:"level"`
	Text  string   `json:"text"`
	Items []string `json:"items"`
}

// decodeBlocks 校验并规范化模型输出；无效块丢弃，全部无效时报 ErrResponseInvalid。
func (c *Client) decodeBlocks(content string) ([]contract.ContentBlock, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimSuffix(strings.TrimPrefix(content, "```"), "```")
	var wire struct {
		Blocks []wireBlock `json:"blocks"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &wire); err != nil {
		return nil, fmt.Errorf("decode blocks: %v: %w", err, contract.ErrResponseInvalid)
	}
	var out []contract.ContentBlock
	for _, w := range wire.Blocks {
		if len(out) == c.maxBlocks {
			break
		}
		text := strings.TrimSpace(w.Text)
		switch contract.BlockKind(strings.ToLower(strings.TrimSpace(w.Kind))) {
		case contract.BlockHeading:
			if text == "" {
				continue
			}
			lvl := w.Level
			if lvl < 2 || lvl > 6 {
				lvl = 2
			}
			out = append(out, contract.ContentBlock{Kind: contract.BlockHeading, Level: lvl, Text: text})
		case contract.BlockParagraph:
			if text == "" {
				continue
			}
			out = append(out, contract.ContentBlock{Kind: contract.BlockParagraph, Text: text})
		case contract.BlockList:
			var items []string
			for _, it := range w.Items {
				if it = strings.TrimSpace(it); it != "" {
					items = append(items, it)
				}
			}
			if len(items) == 0 {
				continue
			}
			out = append(out, contract.ContentBlock{Kind: contract.BlockList, Items: items})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no usable blocks: %w", contract.ErrResponseInvalid)
	}
	return out, nil
}
