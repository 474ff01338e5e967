package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"sitemend/pkg/contract"
)

// DefaultUserAgent 桌面 Chrome 120；部分主机对非浏览器 UA 返回 403。
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const defaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// Options: 最小必需配置。
type Options struct {
	UserAgent      string            `json:"user_agent"`
	TimeoutSeconds int               `json:"timeout_seconds"` // client 级超时（秒），默认 30
	MaxBytes       int64             `json:"max_bytes"`       // 响应体上限，默认 8MiB
	ExtraHeaders   map[string]string `json:"extra_headers"`
}

func (o *Options) defaults() {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 30
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = 8 << 20
	}
}

// Client 通过 HTTP GET 获取参考文档，并按响应声明的字符集转为 UTF-8。
type Client struct {
	ua       string
	extraH   map[string]string
	maxBytes int64
	do       func(*nethttp.Request) (*nethttp.Response, error)
}

// New 从原样 JSON 选项构造客户端。
func New(raw json.RawMessage) (*Client, error) {
	var opts Options
	if len(raw) > 0 {
		dec := json.NewDecoder(strings.NewReader(string(raw)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("http fetcher options: %w", err)
		}
	}
	opts.defaults()
	hc := &nethttp.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second}
	return &Client{ua: opts.UserAgent, extraH: opts.ExtraHeaders, maxBytes: opts.MaxBytes, do: hc.Do}, nil
}

var _ contract.Fetcher = (*Client)(nil)

// upstreamError 承载非 2xx 状态；实现 net.Error 以便 5xx/408 归类为网络错误。
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string           { return fmt.Sprintf("fetch upstream %d: %s", e.status, e.msg) }
func (e upstreamError) Timeout() bool           { return e.status == nethttp.StatusRequestTimeout }
func (e upstreamError) Temporary() bool         { return e.status/100 == 5 }
func (e upstreamError) UpstreamStatus() int     { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

var _ net.Error = upstreamError{}

// Fetch: 单次 GET；重试与间隔由调用方负责。
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %v: %w", err, contract.ErrInvalidInput)
	}
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Accept", defaultAccept)
	for k, v := range c.extraH {
		if k == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
		return nil, fmt.Errorf("%w: %w", contract.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, upstreamError{status: resp.StatusCode, msg: strings.TrimSpace(string(slurp))}
	}
	body, err := charset.NewReader(io.LimitReader(resp.Body, c.maxBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("charset: %v: %w", err, contract.ErrResponseInvalid)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: read body: %w", contract.ErrNetwork, err)
	}
	return b, nil
}
