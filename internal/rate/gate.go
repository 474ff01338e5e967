package rate

import (
	"context"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"

	"sitemend/pkg/contract"
)

// LimitKey: 限流分组键（例如远端主机）。
type LimitKey string

// Limits: 每分组的限额配置。0 表示该维度不启用。
type Limits struct {
	RPM     int           // requests per minute
	Spacing time.Duration // 相邻两次放行的最小间隔
}

// Ask: 一次放行申请。
type Ask struct {
	Key      LimitKey
	Requests int // 默认为 1；必须 >=1
}

// Gate: 限流闸门（并发安全）。
type Gate interface {
	// Wait: 阻塞直到额度可用或 ctx 取消。
	Wait(ctx context.Context, a Ask) error
	// Try: 非阻塞尝试；不足时返回 false 且不消耗额度。
	Try(a Ask) bool
}

// Snapshoter: 可选诊断接口。
type Snapshoter interface {
	Snapshot(key LimitKey) (rpmAvail int)
}

// NewGate: 从静态配置构造闸门；clk 为空则使用 time.Now（仅影响 Try/Snapshot）。
// fallback 用于未配置的 key；零值表示不限额。
func NewGate(m map[LimitKey]Limits, fallback Limits, clk func() time.Time) Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &gate{clk: clk, fallback: fallback, m: make(map[LimitKey]*entry, len(m))}
	for k, lim := range m {
		g.m[k] = newEntry(lim)
	}
	return g
}

type gate struct {
	clk      func() time.Time
	fallback Limits
	mu       sync.Mutex
	m        map[LimitKey]*entry
}

type entry struct {
	lim Limits
	req *xrate.Limiter // RPM 维度
	gap *xrate.Limiter // 间隔维度
}

func newEntry(lim Limits) *entry {
	e := &entry{lim: lim}
	if lim.RPM > 0 {
		e.req = xrate.NewLimiter(xrate.Limit(float64(lim.RPM)/60.0), lim.RPM)
	}
	if lim.Spacing > 0 {
		e.gap = xrate.NewLimiter(xrate.Every(lim.Spacing), 1)
	}
	return e
}

func (e *entry) limiters() []*xrate.Limiter {
	var out []*xrate.Limiter
	if e.req != nil {
		out = append(out, e.req)
	}
	if e.gap != nil {
		out = append(out, e.gap)
	}
	return out
}

func (g *gate) get(key LimitKey) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.m[key]
	if e == nil {
		e = newEntry(g.fallback)
		g.m[key] = e
	}
	return e
}

func (g *gate) Try(a Ask) bool {
	if a.Requests <= 0 {
		return false
	}
	e := g.get(a.Key)
	now := g.clk()
	var taken []*xrate.Reservation
	for _, l := range e.limiters() {
		r := l.ReserveN(now, a.Requests)
		if !r.OK() || r.DelayFrom(now) > 0 {
			r.CancelAt(now)
			for _, t := range taken {
				t.CancelAt(now)
			}
			return false
		}
		taken = append(taken, r)
	}
	return true
}

func (g *gate) Wait(ctx context.Context, a Ask) error {
	if a.Requests <= 0 {
		return contract.ErrInvalidInput
	}
	e := g.get(a.Key)
	for _, l := range e.limiters() {
		// 间隔维度突发为 1：多请求申请逐个放行
		n := a.Requests
		if l == e.gap {
			for i := 0; i < n; i++ {
				if err := l.Wait(ctx); err != nil {
					return err
				}
			}
			continue
		}
		if err := l.WaitN(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot: 返回当前可用请求数的“向下取整”估值（仅诊断）；未启用 RPM 时为 0。
func (g *gate) Snapshot(key LimitKey) (rpmAvail int) {
	e := g.get(key)
	if e.req == nil {
		return 0
	}
	v := e.req.TokensAt(g.clk())
	if v < 0 {
		return 0
	}
	return int(v)
}

// 接口断言（可选）。
var _ Gate = (*gate)(nil)
var _ Snapshoter = (*gate)(nil)
