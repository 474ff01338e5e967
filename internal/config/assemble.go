package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sitemend/internal/diag"
	"sitemend/internal/engine"
	"sitemend/internal/reconcile"
	"sitemend/internal/reference"
	"sitemend/internal/runner"
	"sitemend/pkg/contract"
	"sitemend/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
	if len(cfg.Inputs) > 1 {
		return errors.New("config: exactly one corpus root is supported")
	}
	if strings.TrimSpace(cfg.Inputs[0]) == "" {
		return errors.New("config: input path cannot be empty")
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	if cfg.MaxPasses < 1 {
		return errors.New("config: max_passes must be >= 1")
	}
	if _, err := runner.ProtectedBy(cfg.Protected); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for _, ms := range cfg.Reference.BackoffMS {
		if ms < 0 {
			return errors.New("config: reference.backoff_ms must be >= 0")
		}
	}
	if cfg.Reference.Attempts < 0 || cfg.Reference.SpacingMS < 0 || cfg.Reference.CacheSize < 0 {
		return errors.New("config: reference limits must be >= 0")
	}

	d := Defaults()
	if name := effName(cfg.Components.Reader, d.Components.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Components.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	// 可选组件：为空表示不启用
	if name := cfg.Components.Fetcher; name != "" && registry.Fetcher[name] == nil {
		return fmt.Errorf("config: fetcher %q not registered", name)
	}
	if name := cfg.Components.Archive; name != "" && registry.Archive[name] == nil {
		return fmt.Errorf("config: archive %q not registered", name)
	}
	if name := cfg.Components.Generator; name != "" && registry.Generator[name] == nil {
		return fmt.Errorf("config: generator %q not registered", name)
	}

	switch mode := effName(cfg.Reference.Mode, ModeLocal); mode {
	case ModeLocal:
	case ModeRemote:
		u, err := url.Parse(cfg.Reference.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config: remote mode requires an http(s) reference.base_url, got %q", cfg.Reference.BaseURL)
		}
		if cfg.Components.Fetcher == "" {
			return errors.New("config: remote mode requires components.fetcher")
		}
	default:
		return fmt.Errorf("config: unknown reference.mode %q", mode)
	}
	return nil
}

// Assembled 为一次运行装配好的组件；Close 释放需要关闭的组件（如无头浏览器）。
type Assembled struct {
	Components runner.Components
	Settings   runner.Settings
	Engine     *engine.Engine
	// ArchiveItems: 实际加载的归档片段数（加载失败时为 0）。
	ArchiveItems int

	closers []io.Closer
}

// Close 依次关闭组件，返回第一个错误。
func (a *Assembled) Close() error {
	if a == nil {
		return nil
	}
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// Assemble 构造 Components、Settings 与修复引擎。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
// 归档加载尽力而为：失败只记录告警，引擎在无归档的情况下继续运行。
func Assemble(ctx context.Context, cfg Config, logger *diag.Logger) (*Assembled, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	root := filepath.Clean(cfg.Inputs[0])
	corpusDir := root
	if st, err := os.Stat(root); err == nil && !st.IsDir() {
		corpusDir = filepath.Dir(root)
	}

	d := Defaults()
	out := &Assembled{}
	fail := func(err error) (*Assembled, error) {
		_ = out.Close()
		return nil, err
	}

	r, err := registry.Reader[effName(cfg.Components.Reader, d.Components.Reader)](cfg.Options.Reader)
	if err != nil {
		return fail(fmt.Errorf("reader: %w", err))
	}
	wn := effName(cfg.Components.Writer, d.Components.Writer)
	wraw := cfg.Options.Writer
	if wn == "fs" {
		if wraw, err = injectRoot(wraw, corpusDir); err != nil {
			return fail(fmt.Errorf("writer: %w", err))
		}
	}
	w, err := registry.Writer[wn](wraw)
	if err != nil {
		return fail(fmt.Errorf("writer: %w", err))
	}

	var fetcher contract.Fetcher
	remote := effName(cfg.Reference.Mode, ModeLocal) == ModeRemote
	if remote {
		fetcher, err = registry.Fetcher[cfg.Components.Fetcher](cfg.Options.Fetcher)
		if err != nil {
			return fail(fmt.Errorf("fetcher: %w", err))
		}
		if c, ok := fetcher.(io.Closer); ok {
			out.closers = append(out.closers, c)
		}
	}

	var archive []contract.ContentItem
	if name := cfg.Components.Archive; name != "" {
		loader, err := registry.Archive[name](cfg.Options.Archive)
		if err != nil {
			return fail(fmt.Errorf("archive: %w", err))
		}
		items, err := loader.Load(ctx)
		switch {
		case err == nil:
			archive = items
		case ctx.Err() != nil:
			return fail(ctx.Err())
		default:
			logger.WarnWith("config", string(diag.Classify(err)), "archive load failed; continuing without archive: "+err.Error(), "", "", nil)
		}
	}

	var gen contract.Generator
	if name := cfg.Components.Generator; name != "" {
		if gen, err = registry.Generator[name](cfg.Options.Generator); err != nil {
			return fail(fmt.Errorf("generator: %w", err))
		}
	}

	ref := cfg.Reference
	home := ref.HomeFile
	if home == "" {
		home = filepath.Join(corpusDir, "index.html")
	}
	ropts := reference.Options{
		HomeFile:  home,
		BaseURL:   ref.BaseURL,
		Attempts:  ref.Attempts,
		Spacing:   time.Duration(ref.SpacingMS) * time.Millisecond,
		CacheSize: ref.CacheSize,
	}
	for _, ms := range ref.BackoffMS {
		ropts.Backoff = append(ropts.Backoff, time.Duration(ms)*time.Millisecond)
	}
	resolver, err := reference.New(cfg.Layout, ropts, reference.Deps{Fetcher: fetcher, Logger: logger})
	if err != nil {
		return fail(err)
	}

	eng := engine.New(engine.Options{MaxPasses: cfg.MaxPasses, Remote: remote}, engine.Deps{
		Convention: cfg.Layout,
		Palette:    cfg.Palette,
		Reconciler: reconcile.New(cfg.Reconcile),
		Resolver:   resolver,
		Generator:  gen,
		Archive:    archive,
		Logger:     logger,
	})

	isProt, err := runner.ProtectedBy(cfg.Protected)
	if err != nil {
		return fail(err)
	}

	out.Components = runner.Components{Reader: r, Processor: eng, Writer: w}
	out.Settings = runner.Settings{
		Inputs:      []string{root},
		Concurrency: cfg.Concurrency,
		IsProtected: isProt,
	}
	out.Engine = eng
	out.ArchiveItems = len(archive)
	return out, nil
}

// injectRoot: fs writer 未指定 root 时原地回写到语料目录。
func injectRoot(raw json.RawMessage, dir string) (json.RawMessage, error) {
	m := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: writer options: %v", contract.ErrInvalidInput, err)
		}
	}
	if v, ok := m["root"]; ok {
		var s string
		if json.Unmarshal(v, &s) == nil && strings.TrimSpace(s) != "" {
			return raw, nil
		}
	}
	b, err := json.Marshal(dir)
	if err != nil {
		return nil, err
	}
	m["root"] = b
	return json.Marshal(m)
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
