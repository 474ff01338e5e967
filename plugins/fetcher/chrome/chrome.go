package chrome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"sitemend/pkg/contract"
)

// Options: 无头浏览器抓取配置。
type Options struct {
	ExecPath       string `json:"exec_path"`       // 为空时由 chromedp 自动查找
	UserAgent      string `json:"user_agent"`      // 为空时沿用浏览器默认
	TimeoutSeconds int    `json:"timeout_seconds"` // 单页超时，默认 45
	WaitSelector   string `json:"wait_selector"`   // 默认 body
	NoSandbox      bool   `json:"no_sandbox"`      // 容器内运行时需要
}

func (o *Options) defaults() {
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 45
	}
	if strings.TrimSpace(o.WaitSelector) == "" {
		o.WaitSelector = "body"
	}
}

// Browser 以无头 Chrome 渲染页面后返回 <html> 的 outerHTML。
// 分配器在首次 Fetch 时启动，Close 释放；每次 Fetch 使用独立标签页。
type Browser struct {
	opts Options

	once        sync.Once
	allocCtx    context.Context
	allocCancel context.CancelFunc
	mu          sync.Mutex
	closed      bool
}

// New 从原样 JSON 选项构造浏览器抓取器（未启动浏览器）。
func New(raw json.RawMessage) (*Browser, error) {
	var opts Options
	if len(raw) > 0 {
		dec := json.NewDecoder(strings.NewReader(string(raw)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("chrome fetcher options: %w", err)
		}
	}
	opts.defaults()
	return &Browser{opts: opts}, nil
}

var _ contract.Fetcher = (*Browser)(nil)

func (b *Browser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if b.opts.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true), chromedp.Flag("disable-setuid-sandbox", true))
	}
	if b.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.opts.ExecPath))
	}
	if b.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.opts.UserAgent))
	}
	return opts
}

func (b *Browser) allocator() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("chrome fetcher closed: %w", contract.ErrInvalidInput)
	}
	b.once.Do(func() {
		b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), b.allocatorOptions()...)
	})
	return b.allocCtx, nil
}

// Fetch 导航到 url，等待选择器就绪后读取整页标记。
func (b *Browser) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	alloc, err := b.allocator()
	if err != nil {
		return nil, err
	}
	tabCtx, cancelTab := chromedp.NewContext(alloc)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, time.Duration(b.opts.TimeoutSeconds)*time.Second)
	defer cancelTimeout()
	// 调用方取消时同步关闭标签页
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var html string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(b.opts.WaitSelector),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: chrome timeout: %s", contract.ErrNetwork, url)
		}
		return nil, fmt.Errorf("%w: chrome fetch: %w", contract.ErrNetwork, err)
	}
	return []byte(html), nil
}

// Close 终止浏览器进程；可重复调用。
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.allocCancel != nil {
		b.allocCancel()
		b.allocCancel = nil
	}
	return nil
}
