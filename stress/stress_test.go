package stress

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	cfgpkg "sitemend/internal/config"
	"sitemend/internal/runner"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

const (
	pages     = 300
	titleOnly = `<div class="fusion-fullwidth fullwidth-box" style="--awb-background-color:#051334;"><div class="fusion-builder-row fusion-row"><div class="fusion-layout-column"><div class="fusion-column-wrapper"><div class="fusion-title title"><h1 class="title-heading-left" style="color:#ffffff !important;">%s</h1></div></div></div></div></div>`
)

func page(title, header string) string {
	return `<html><head><title>` + title + ` - Digital Growth Studios</title></head><body>` +
		`<div class="fusion-tb-header">` + header + `</div>` +
		`<main id="main"><div class="fusion-row"><section id="content" class="full-width"><div class="post-content">` +
		fmt.Sprintf(titleOnly, title) + `</div></section></div></main><div class="fusion-tb-footer"><p>f</p></div></body></html>`
}

// buildCorpus 生成 pages 个只剩标题 Section 的页面及对应归档。
func buildCorpus(t *testing.T) (root, archive string) {
	t.Helper()
	dir := t.TempDir()
	root = filepath.Join(dir, "site")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte(page("Home", `<nav><a href="/">Home</a></nav>`)), 0o644); err != nil {
		t.Fatalf("write home: %v", err)
	}
	type rec struct {
		File     string `json:"file"`
		Tag      string `json:"tag"`
		ID       int    `json:"id"`
		Original string `json:"original"`
	}
	var recs []rec
	for i := 0; i < pages; i++ {
		rel := filepath.Join("p", fmt.Sprintf("%03d", i), "index.html")
		full := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		header := `<nav>m</nav>`
		if i%3 == 0 {
			header = ""
		}
		if err := os.WriteFile(full, []byte(page(fmt.Sprintf("Page %d", i), header)), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		key := strings.ReplaceAll(rel, string(filepath.Separator), `\`)
		recs = append(recs,
			rec{File: key, Tag: "h2", ID: 1, Original: fmt.Sprintf("Heading %d", i)},
			rec{File: key, Tag: "p", ID: 2, Original: fmt.Sprintf("Body copy for page %d.", i)},
		)
	}
	b, err := json.Marshal(map[string]any{"rewritten": recs})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	archive = filepath.Join(dir, "progress.json")
	if err := os.WriteFile(archive, b, 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return root, archive
}

func runOnce(t *testing.T, conc int) (*runner.Report, time.Duration) {
	t.Helper()
	root, archive := buildCorpus(t)
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Inputs = []string{root}
	cfg.Concurrency = conc
	cfg.Logging.Level = "error"
	cfg.Components.Archive = "jsonlog"
	cfg.Options.Archive = json.RawMessage(fmt.Sprintf(`{"path":%q}`, archive))

	a, err := cfgpkg.Assemble(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	defer a.Close()
	start := time.Now()
	rep, err := runner.Run(context.Background(), a.Components, a.Settings, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return rep, time.Since(start)
}

// TestStress 在不同并发度下批量修复并记录延迟统计。
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("short 模式跳过压力测试")
	}
	levels := []int{1, 8, 16, 32, 64}
	for _, conc := range levels {
		t.Run(fmt.Sprintf("concurrency_%d", conc), func(t *testing.T) {
			const runs = 3
			latencies := make([]time.Duration, 0, runs)
			for i := 0; i < runs; i++ {
				rep, dur := runOnce(t, conc)
				if got := rep.Counts[runner.StatusRepaired]; got != pages {
					t.Fatalf("run %d: 修复 %d 个，期望 %d（%s）", i, got, pages, rep.Summary())
				}
				if rep.Failed() != 0 {
					t.Fatalf("run %d: 存在失败文档：%s", i, rep.Summary())
				}
				latencies = append(latencies, dur)
			}
			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
			var total time.Duration
			for _, d := range latencies {
				total += d
			}
			avg := total / time.Duration(len(latencies))
			idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
			if idx < 0 {
				idx = 0
			}
			t.Logf("并发%d 文档%d 平均%v 95%%延迟%v", conc, pages, avg, latencies[idx])
		})
	}
}
