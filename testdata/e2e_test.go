package testdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "sitemend/internal/config"
	"sitemend/internal/layout"
	"sitemend/internal/runner"
	"sitemend/pkg/contract"
)

// copyCorpus 把 files/site 复制到临时目录（运行会原地回写）。
func copyCorpus(t *testing.T) string {
	t.Helper()
	dst := filepath.Join(t.TempDir(), "site")
	src := filepath.Join("files", "site")
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(src, p)
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(p, target)
	})
	require.NoError(t, err, "复制语料失败")
	return dst
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func baseConfig(root string) cfgpkg.Config {
	abs, _ := filepath.Abs(filepath.Join("files", "rewrite_progress.json"))
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Inputs = []string{root}
	cfg.Concurrency = 3
	cfg.Logging.Level = "error"
	cfg.Components.Archive = "jsonlog"
	cfg.Options.Archive = json.RawMessage(fmt.Sprintf(`{"path":%q,"key":"rewritten","strip_prefix":"site"}`, abs))
	return cfg
}

func runCorpus(t *testing.T, cfg cfgpkg.Config, dryRun bool) *runner.Report {
	t.Helper()
	a, err := cfgpkg.Assemble(context.Background(), cfg, nil)
	require.NoError(t, err, "装配失败")
	defer a.Close()
	set := a.Settings
	set.DryRun = dryRun
	rep, err := runner.Run(context.Background(), a.Components, set, nil)
	require.NoError(t, err, "运行失败")
	return rep
}

func status(t *testing.T, rep *runner.Report, id string) runner.DocResult {
	t.Helper()
	d, ok := rep.Doc(id)
	require.True(t, ok, "报告缺少 %s", id)
	return d
}

func read(t *testing.T, root, rel string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(b)
}

// snapshot 读取语料全部文件内容。
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	require.NoError(t, filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		out[filepath.ToSlash(rel)] = read(t, root, filepath.ToSlash(rel))
		return nil
	}))
	return out
}

// E2E-01: 完整运行：归档恢复、页头恢复、属性修正、受保护与排除目录
func TestE2ERepair(t *testing.T) {
	root := copyCorpus(t)
	rep := runCorpus(t, baseConfig(root), false)

	assert.Len(t, rep.Documents, 5, "wp-content 应被排除")
	assert.Equal(t, runner.StatusProtected, status(t, rep, "index.html").Status)
	assert.Equal(t, runner.StatusUnchanged, status(t, rep, "about/index.html").Status)
	assert.Zero(t, rep.Failed())

	post := status(t, rep, "blog/post/index.html")
	assert.Equal(t, runner.StatusRepaired, post.Status)
	assert.Equal(t, []contract.DefectKind{contract.DefectContentMissing}, post.Applied)
	html := read(t, root, "blog/post/index.html")
	assert.Contains(t, html, layout.MarkRestoreArchive)
	assert.Contains(t, html, "Five Lessons From Last Quarter")
	assert.Contains(t, html, "Growth is a habit, not a campaign.")
	assert.Less(t, strings.Index(html, "Growth is a habit"), strings.Index(html, "Measure what matters."), "按序号排列")
	assert.NotContains(t, html, "Paid Search", "导航标签应被去噪")
	assert.NotContains(t, html, "Unrelated page.")

	work := status(t, rep, "work/index.html")
	assert.Equal(t, runner.StatusRepaired, work.Status)
	assert.Equal(t, []contract.DefectKind{contract.DefectBrokenAttributeSyntax, contract.DefectEmptyHeader}, work.Applied)
	html = read(t, root, "work/index.html")
	assert.Contains(t, html, `<h2 class="lead">`)
	assert.Contains(t, html, `<a href="/about/">About</a>`, "页头来自首页")

	draft := status(t, rep, "draft/index.html")
	assert.Equal(t, runner.StatusUnchanged, draft.Status)
	assert.Equal(t, []contract.DefectKind{contract.DefectContentMissing}, draft.Skipped)
	assert.Equal(t, []contract.DefectKind{contract.DefectContentMissing}, draft.Remaining)

	assert.Equal(t, "<html><body>cache</body></html>\n", read(t, root, "wp-content/cache/page.html"))
}

// E2E-02: 二次运行无变化
func TestE2EIdempotent(t *testing.T) {
	root := copyCorpus(t)
	cfg := baseConfig(root)
	runCorpus(t, cfg, false)
	before := snapshot(t, root)

	rep := runCorpus(t, cfg, false)
	assert.Zero(t, rep.Counts[runner.StatusRepaired], "二次运行不应再修复")
	assert.Equal(t, before, snapshot(t, root))
}

// E2E-03: 预演不写回
func TestE2ECheck(t *testing.T) {
	root := copyCorpus(t)
	before := snapshot(t, root)
	rep := runCorpus(t, baseConfig(root), true)

	assert.True(t, rep.DryRun)
	assert.Equal(t, 2, rep.Counts[runner.StatusWouldRepair])
	assert.Equal(t, before, snapshot(t, root), "预演不得修改任何文件")
}

// E2E-04: 无归档时由模板生成占位内容；归档缺失只告警
func TestE2EGeneratorFallback(t *testing.T) {
	root := copyCorpus(t)
	cfg := baseConfig(root)
	cfg.Options.Archive = json.RawMessage(`{"path":"files/missing.json"}`)
	cfg.Components.Generator = "template"

	rep := runCorpus(t, cfg, false)
	draft := status(t, rep, "draft/index.html")
	assert.Equal(t, runner.StatusRepaired, draft.Status)
	html := read(t, root, "draft/index.html")
	assert.Contains(t, html, layout.MarkRestoreGenerated)
	assert.Contains(t, html, "Get in Touch")
	assert.Contains(t, html, "Draft", "占位内容使用页面标题")
}

// E2E-05: 空保护列表时首页也参与处理
func TestE2ENoProtection(t *testing.T) {
	root := copyCorpus(t)
	cfg := baseConfig(root)
	cfg.Protected = []string{}
	rep := runCorpus(t, cfg, true)
	assert.Equal(t, runner.StatusUnchanged, status(t, rep, "index.html").Status)
	assert.Zero(t, rep.Counts[runner.StatusProtected])
}
