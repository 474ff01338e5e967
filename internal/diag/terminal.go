package diag

import (
    "fmt"
    "io"
    "os"
    "path/filepath"
    "strings"
    "sync"
    "time"

    "github.com/mattn/go-isatty"
)

// Terminal: 终端信息提示（非日志）。
// - 输出到提供的 io.Writer（默认建议 stderr）。
// - TTY: 单行 \r 覆盖；非 TTY: 关键节点分行打印。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
    w       io.Writer
    enabled bool
    isTTY   bool

    // 运行期最小状态
    concurrency int
    mode        string
    filesDone   int
    runStart    time.Time
    // 按文档状态计数（repaired/unchanged/protected/…）
    byStatus map[string]int

    // 当前文档
    curFileID   string // 短名（父目录/基名 + 截断）
    findings    int
    passesDone  int
    passesTotal int
    errCount    int

    // 输出控制
    lastLen   int
    lastFlush time.Time

    mu sync.Mutex
}

// 进程级终端（可选，全局设置后供 runner 旁路调用）。
var (
    termMu sync.RWMutex
    term   *Terminal
)

// SetTerminal 设置全局终端指针（nil 可清除）。
func SetTerminal(t *Terminal) { termMu.Lock(); term = t; termMu.Unlock() }

// GetTerminal 返回全局终端（可能为 nil）。
func GetTerminal() *Terminal { termMu.RLock(); defer termMu.RUnlock(); return term }

// NewTerminal 构造终端提示器。
// enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
    if w == nil {
        w = os.Stderr
    }
    t := &Terminal{w: w, enabled: enabled}
    // CI 环境视为非 TTY
    if os.Getenv("CI") != "" {
        t.isTTY = false
    } else if f, ok := w.(*os.File); ok {
        t.isTTY = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
    }
    return t
}

// RunStart: 记录运行上下文（并发、模式）。
func (t *Terminal) RunStart(concurrency int, mode string) {
    if t == nil { return }
    t.mu.Lock()
    defer t.mu.Unlock()
    if !t.enabled { return }
    t.concurrency = concurrency
    t.mode = mode
    t.filesDone = 0
    t.byStatus = make(map[string]int)
    t.runStart = time.Now()
    // 起始提示
    if t.isTTY {
        t.println(fmt.Sprintf("[run] 并发=%d | 模式=%s | 等待任务…", concurrency, safe(mode)))
    } else {
        t.println(fmt.Sprintf("[run] 并发=%d | 模式=%s", concurrency, safe(mode)))
    }
}

// FileStart: 标记当前文档与首轮缺陷数（未知时传负数）。
func (t *Terminal) FileStart(fileID string, findings int) {
    if t == nil { return }
    t.mu.Lock()
    defer t.mu.Unlock()
    if !t.enabled { return }
    t.curFileID = shortenBase(fileID, 48)
    t.findings = findings
    t.passesDone = 0
    t.passesTotal = 0
    t.errCount = 0
    if !t.isTTY { // 非 TTY 打点一行；缺陷数未知（<0）时只打文件名
        if findings < 0 {
            t.println(fmt.Sprintf("[file] %s", t.curFileID))
        } else {
            t.println(fmt.Sprintf("[file] %s | 缺陷=%d", t.curFileID, findings))
        }
    }
}

// FileFindings: 处理后补记当前文档的首轮缺陷数。
func (t *Terminal) FileFindings(findings int) {
    if t == nil { return }
    t.mu.Lock()
    defer t.mu.Unlock()
    t.findings = findings
}

// FileProgress: 修复轮次进度（≥100ms 节流）。
func (t *Terminal) FileProgress(done, total, skipped int) {
    if t == nil { return }
    t.mu.Lock()
    defer t.mu.Unlock()
    if !t.enabled || !t.isTTY { return }
    t.passesDone = done
    t.passesTotal = total
    t.errCount = skipped
    // 节流：100ms
    now := time.Now()
    if now.Sub(t.lastFlush) < 100*time.Millisecond {
        return
    }
    t.lastFlush = now
    // 单行覆盖
    line := fmt.Sprintf("[file] %s | 轮次 %d/%d | 跳过 %d | 并发 %d | 用时 %s",
        t.curFileID, t.passesDone, t.passesTotal, t.errCount, t.concurrency, formatSince(t.runStart))
    t.printInline(line)
}

// FileFinish: 完成当前文档（立即刷新并换行；FilesDone++）。status 例如 repaired/unchanged/fail。
func (t *Terminal) FileFinish(status string, dur time.Duration) {
    if t == nil { return }
    t.mu.Lock()
    defer t.mu.Unlock()
    if !t.enabled { return }
    t.filesDone++
    if status == "" {
        status = "done"
    }
    if t.byStatus == nil {
        t.byStatus = make(map[string]int)
    }
    t.byStatus[status]++
    // 先清掉可能的行尾
    if t.isTTY && t.lastLen > 0 {
        t.printInline("")
    }
    t.println(fmt.Sprintf("[%s] %s | 缺陷 %d | 总用时 %s",
        safe(status), t.curFileID, t.findings, formatDur(dur)))
}

// RunFinish: 结束总览。
func (t *Terminal) RunFinish(ok bool, dur time.Duration) {
    if t == nil { return }
    t.mu.Lock()
    defer t.mu.Unlock()
    if !t.enabled { return }
    tag := "ok"
    if !ok {
        tag = "fail"
    }
    line := fmt.Sprintf("[%s] 全部完成 | 文件 %d", tag, t.filesDone)
    if n := t.byStatus["repaired"] + t.byStatus["would_repair"]; n > 0 {
        line += fmt.Sprintf(" | 修复 %d", n)
    }
    if n := t.byStatus["protected"]; n > 0 {
        line += fmt.Sprintf(" | 受保护 %d", n)
    }
    if n := t.failed(); n > 0 {
        line += fmt.Sprintf(" | 失败 %d", n)
    }
    t.println(line + " | 总用时 " + formatDur(dur))
}

// failed 统计以 _error 结尾的状态。
func (t *Terminal) failed() int {
    n := 0
    for s, c := range t.byStatus {
        if strings.HasSuffix(s, "_error") {
            n += c
        }
    }
    return n
}

// 内部输出工具
func (t *Terminal) println(s string) {
    if t == nil || !t.enabled { return }
    if _, err := io.WriteString(t.w, s+"\n"); err != nil {
        // 写失败即禁用
        t.enabled = false
    }
    t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
    if t == nil || !t.enabled { return }
    // 组装：\r + 内容 + 清尾空格
    // 清尾：若新行比旧短，填充空格覆盖
    pad := 0
    if l := visLen(s); t.lastLen > l {
        pad = t.lastLen - l
    }
    var b strings.Builder
    b.WriteByte('\r')
    b.WriteString(s)
    if pad > 0 {
        b.WriteString(strings.Repeat(" ", pad))
    }
    if _, err := io.WriteString(t.w, b.String()); err != nil {
        t.enabled = false
        return
    }
    t.lastLen = visLen(s)
}

// shortenBase: 取基名并按可见宽度截断（尾部省略号）。
// 基名为 index.* 时带上父目录，便于区分页面。
func shortenBase(s string, max int) string {
    if max <= 0 { return "" }
    clean := filepath.ToSlash(strings.TrimSpace(s))
    base := filepath.Base(clean)
    if strings.HasPrefix(base, "index.") {
        if dir := filepath.Base(filepath.Dir(clean)); dir != "." && dir != "/" {
            base = dir + "/" + base
        }
    }
    if base == "" { return "" }
    if visLen(base) <= max { return base }
    // 预留 1 个字符给省略号
    cut := max - 1
    if cut < 1 { cut = 1 }
    // 简单按 rune 截断
    rs := []rune(base)
    if len(rs) <= cut { return string(rs) }
    return string(rs[:cut]) + "…"
}

func visLen(s string) int { return len([]rune(s)) }

func safe(s string) string {
    // 避免换行等控制字符污染终端
    s = strings.ReplaceAll(s, "\n", " ")
    s = strings.ReplaceAll(s, "\r", " ")
    return s
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
    if d < time.Second {
        ms := d.Milliseconds()
        if ms <= 0 { ms = 0 }
        return fmt.Sprintf("%dms", ms)
    }
    // 秒，保留 1 位小数
    s := float64(d.Milliseconds()) / 1000.0
    return fmt.Sprintf("%.1fs", s)
}
