package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"sitemend/internal/diag"
	"sitemend/internal/engine"
	"sitemend/pkg/contract"
)

// - 单点并发：仅此层管理并发；引擎与各组件均为同步实现。
// - 文档隔离：单个文档的任何失败只记入报告，不取消其余文档。
// - 仅在文档变化且非预演时写回。

// Processor 单文档修复能力（engine.Engine 实现）。
type Processor interface {
	Process(ctx context.Context, id contract.FileID, src []byte) (engine.Outcome, error)
}

// Components 聚合运行所需的组件。
type Components struct {
	Reader    contract.Reader
	Processor Processor
	Writer    contract.Writer
}

// Settings 运行期配置。
type Settings struct {
	Inputs      []string
	Concurrency int
	// DryRun: 只分类与内存修复，不写回。
	DryRun bool
	// IsProtected: 命中的文档直接跳过（可为空）。
	IsProtected func(contract.FileID) bool
}

// ProtectedBy 由 doublestar 模式构造受保护判定；模式与路径键均按小写比较。
func ProtectedBy(patterns []string) (func(contract.FileID) bool, error) {
	var pats []string
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimLeft(strings.ReplaceAll(strings.TrimSpace(p), "\\", "/"), "/"))
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: protected pattern %q", contract.ErrInvalidInput, p)
		}
		pats = append(pats, p)
	}
	return func(id contract.FileID) bool {
		key := contract.PathKey(string(id))
		for _, p := range pats {
			if ok, _ := doublestar.Match(p, key); ok {
				return true
			}
		}
		return false
	}, nil
}

// Run 枚举 → 并发处理 → 按需写回，返回汇总报告。
// 仅枚举失败或 ctx 取消返回错误；此时报告仍包含已完成的文档。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (*Report, error) {
	if err := sanity(comp, &set); err != nil {
		return nil, fmt.Errorf("sanity: %w", err)
	}
	rep := newReport(set.DryRun)
	runStart := time.Now()
	mode := "repair"
	if set.DryRun {
		mode = "check"
	}
	if t := diag.GetTerminal(); t != nil {
		t.RunStart(set.Concurrency, mode)
	}
	rtimer := logger.StartWithKV("runner", "run", "", "", map[string]string{
		"concurrency": fmt.Sprint(set.Concurrency), "mode": mode,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(set.Concurrency)

	iterErr := comp.Reader.Iterate(gctx, set.Inputs, func(id contract.FileID, rc io.ReadCloser) error {
		if err := gctx.Err(); err != nil {
			_ = rc.Close()
			return err
		}
		if set.IsProtected != nil && set.IsProtected(id) {
			_ = rc.Close()
			rep.add(DocResult{FileID: string(id), Status: StatusProtected})
			diag.IncOp("runner", "document", string(StatusProtected))
			return nil
		}
		src, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			rep.add(DocResult{FileID: string(id), Status: StatusReadError, Error: err.Error()})
			logger.ErrorWith("reader", string(diag.Classify(err)), "read failed: "+err.Error(), nil, string(id), "")
			diag.IncError("reader", string(diag.Classify(err)))
			return nil
		}
		g.Go(func() error {
			rep.add(one(gctx, comp, set, logger, id, src))
			return nil
		})
		return nil
	})
	waitErr := g.Wait()
	rep.finish(time.Since(runStart))

	var err error
	switch {
	case ctx.Err() != nil:
		err = fmt.Errorf("run cancelled: %w", ctx.Err())
	case iterErr != nil:
		err = fmt.Errorf("reader iterate: %w", iterErr)
	case waitErr != nil:
		err = fmt.Errorf("worker: %w", waitErr)
	}
	if t := diag.GetTerminal(); t != nil {
		t.RunFinish(err == nil, time.Since(runStart))
	}
	if err != nil {
		code := diag.Classify(err)
		logger.Error("runner", string(code), "run failed: "+err.Error(), &runStart)
		diag.IncError("runner", string(code))
		return rep, err
	}
	rtimer.FinishKV("run", int64(len(rep.Documents)), map[string]string{
		"repaired": fmt.Sprint(rep.Counts[StatusRepaired]), "failed": fmt.Sprint(rep.Failed()),
	})
	return rep, nil
}

// one 处理单个文档；所有失败都转为报告状态。
func one(ctx context.Context, comp Components, set Settings, logger *diag.Logger, id contract.FileID, src []byte) DocResult {
	start := time.Now()
	res := DocResult{FileID: string(id)}
	t := diag.GetTerminal()
	if t != nil {
		t.FileStart(string(id), -1)
		defer func() { t.FileFinish(string(res.Status), time.Since(start)) }()
	}
	out, err := comp.Processor.Process(ctx, id, src)
	res.fill(out)
	t.FileFindings(len(out.Initial))
	if err != nil {
		res.Error = err.Error()
		res.Status = StatusRepairError
		if errors.Is(err, contract.ErrParse) {
			res.Status = StatusParseError
		}
		diag.IncError("runner", string(diag.Classify(err)))
		return res
	}
	switch {
	case !out.Changed:
		res.Status = StatusUnchanged
	case set.DryRun:
		res.Status = StatusWouldRepair
	default:
		wtimer := logger.StartWith("writer", "write", string(id), "")
		if werr := comp.Writer.Write(ctx, id, bytes.NewReader(out.Output)); werr != nil {
			res.Status = StatusWriteError
			res.Error = fmt.Errorf("writer write: %w", werr).Error()
			code := diag.Classify(werr)
			logger.ErrorWith("writer", string(code), "write failed", &start, string(id), "")
			diag.IncError("writer", string(code))
			return res
		}
		wtimer.Finish("write", int64(len(out.Output)))
		res.Status = StatusRepaired
	}
	diag.IncOp("runner", "document", string(res.Status))
	diag.ObserveDuration("runner", "document", time.Since(start).Milliseconds())
	return res
}

func sanity(c Components, s *Settings) error {
	if c.Reader == nil || c.Processor == nil || (c.Writer == nil && !s.DryRun) {
		return errors.New("runner: missing components")
	}
	if s.Concurrency < 1 {
		s.Concurrency = 1
	}
	if len(s.Inputs) == 0 {
		return errors.New("runner: empty inputs")
	}
	return nil
}

// Report 批次汇总。Documents 按 FileID 排序。
type Report struct {
	DryRun     bool                        `json:"dry_run"`
	DurationMS int64                       `json:"duration_ms"`
	Counts     map[Status]int              `json:"counts"`
	Applied    map[contract.DefectKind]int `json:"applied"`
	Skipped    map[contract.DefectKind]int `json:"skipped"`
	Remaining  map[contract.DefectKind]int `json:"remaining"`
	Documents  []DocResult                 `json:"documents"`

	mu sync.Mutex
}
