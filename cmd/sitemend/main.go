package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	cfgpkg "sitemend/internal/config"
	"sitemend/internal/diag"
	"sitemend/internal/runner"
)

var runnerRun = runner.Run

// 退出码：0 成功；1 运行失败；3 配置/装配失败。
const (
	exitOK     = 0
	exitRun    = 1
	exitConfig = 3
)

// exitError 携带退出码，由 execute 统一映射。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(format string, a ...any) error {
	return &exitError{code: exitConfig, err: fmt.Errorf(format, a...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// flags 为全局旗标；零值表示不覆盖配置。
type flags struct {
	config      string
	concurrency int
	maxPasses   int
	report      string
	logLevel    string
	remote      string
	status      bool
	failOnError bool
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）。
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "提示：.env 解析失败（已跳过）：%v\n", err)
	}
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if !errors.Is(ee.err, context.Canceled) {
			fmt.Fprintf(stderr, "错误: %v\n", ee.err)
		}
		return ee.code
	}
	// cobra 自身的参数/旗标错误视为配置错误
	fmt.Fprintf(stderr, "错误: %v\n", err)
	return exitConfig
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:           "sitemend",
		Short:         "修复静态站点导出中的结构缺陷并恢复丢失的内容",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.config, "config", "", "配置文件路径（JSON/YAML）；缺省读取 ./sitemend.json 或 ./sitemend.yaml（若存在）")
	pf.IntVar(&f.concurrency, "concurrency", 0, "并发度（覆盖配置）")
	pf.IntVar(&f.maxPasses, "max-passes", 0, "单文档修复轮次上限（覆盖配置）")
	pf.StringVar(&f.report, "report", "", "JSON 报告输出路径；\"-\" 表示标准输出（覆盖配置）")
	pf.StringVar(&f.logLevel, "log-level", "", "日志级别 debug|info|warn|error（覆盖配置）")
	pf.StringVar(&f.remote, "remote", "", "启用远端参考并指定线上站点根 URL（覆盖配置）")
	pf.BoolVar(&f.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	pf.BoolVar(&f.failOnError, "fail-on-error", false, "任一文档失败时以退出码 1 结束")

	root.AddCommand(
		&cobra.Command{
			Use:   "run [root]",
			Short: "分类并修复语料，原地回写变化的文档",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCorpus(cmd.Context(), f, args, false, stdout, stderr)
			},
		},
		&cobra.Command{
			Use:   "check [root]",
			Short: "只分类与内存修复，报告将会变化的文档，不写回",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCorpus(cmd.Context(), f, args, true, stdout, stderr)
			},
		},
		&cobra.Command{
			Use:   "init-config [dir]",
			Short: "在目录中生成默认配置 sitemend.json 与 .env 模板（已存在则跳过）",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				dir := "."
				if len(args) == 1 {
					dir = args[0]
				}
				return initConfig(dir, stderr)
			},
		},
	)
	return root
}

// loadConfig 合并优先级：CLI > ENV(.env) > 配置文件 > 默认值。
func loadConfig(f flags, args []string, stderr io.Writer) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()

	var raw []byte
	if s := os.Getenv("SITEMEND_CONFIG_JSON"); s != "" {
		raw = []byte(s)
	}
	path := f.config
	if path == "" {
		path = os.Getenv("SITEMEND_CONFIG_FILE")
	}
	if path == "" {
		for _, cand := range []string{"sitemend.json", "sitemend.yaml", "sitemend.yml"} {
			if _, err := os.Stat(cand); err == nil {
				path = cand
				break
			}
		}
	}
	if path != "" || len(raw) > 0 {
		base, err := cfgpkg.Load(path, raw)
		if err != nil {
			return cfg, configErr("配置解析失败: %w", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, configErr("环境变量解析失败: %w", err)
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	var overCLI cfgpkg.Config
	overCLI.Concurrency = f.concurrency
	overCLI.MaxPasses = f.maxPasses
	overCLI.Report = f.report
	overCLI.Logging.Level = f.logLevel
	if u := strings.TrimSpace(f.remote); u != "" {
		overCLI.Reference.Mode = cfgpkg.ModeRemote
		overCLI.Reference.BaseURL = u
		if cfg.Components.Fetcher == "" {
			overCLI.Components.Fetcher = "http"
		}
	}
	if len(args) > 0 {
		overCLI.Inputs = args
	}
	cfg = cfgpkg.Merge(cfg, overCLI)
	if len(cfg.Inputs) == 0 {
		cfg.Inputs = []string{"."}
	}

	if err := cfgpkg.Validate(cfg); err != nil {
		_ = dumpConfig(stderr, cfg)
		return cfg, configErr("配置校验失败: %w", err)
	}
	return cfg, nil
}

// dumpConfig 校验失败时输出合并后的生效配置，便于排查来源。
func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "生效配置:\n%s\n", b)
	return err
}

func runCorpus(ctx context.Context, f flags, args []string, dryRun bool, stdout, stderr io.Writer) error {
	start := time.Now()
	corrID := uuid.NewString()

	cfg, err := loadConfig(f, args, stderr)
	if err != nil {
		return err
	}
	logger := diag.NewLogger(corrID, cfg.Logging.Level)
	defer logger.Close()

	mode := "run"
	if dryRun {
		mode = "check"
	}
	logger.DebugStart("config", "effective", "", "", map[string]string{
		"mode":        mode,
		"input":       cfg.Inputs[0],
		"concurrency": fmt.Sprint(cfg.Concurrency),
		"max_passes":  fmt.Sprint(cfg.MaxPasses),
		"protected":   fmt.Sprint(len(cfg.Protected)),
		"reference":   cfg.Reference.Mode,
		"base_url":    cfg.Reference.BaseURL,
		"reader":      cfg.Components.Reader,
		"writer":      cfg.Components.Writer,
		"fetcher":     cfg.Components.Fetcher,
		"archive":     cfg.Components.Archive,
		"generator":   cfg.Components.Generator,
	})

	asm, err := cfgpkg.Assemble(ctx, cfg, logger)
	if err != nil {
		logger.Error("cli", string(diag.Classify(err)), "assemble failed: "+err.Error(), &start)
		return configErr("装配失败: %w", err)
	}
	defer asm.Close()
	set := asm.Settings
	set.DryRun = dryRun

	term := diag.NewTerminal(stderr, f.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)

	rep, runErr := runnerRun(ctx, asm.Components, set, logger)
	if rep != nil {
		fmt.Fprintln(stdout, rep.Summary())
		if dryRun {
			for _, d := range rep.Documents {
				if d.Status == runner.StatusWouldRepair {
					fmt.Fprintf(stdout, "would repair: %s %v\n", d.FileID, d.Applied)
				}
			}
		}
		if err := writeReport(cfg.Report, rep, stdout); err != nil {
			logger.Error("cli", string(diag.Classify(err)), "report write failed: "+err.Error(), &start)
			if runErr == nil {
				runErr = fmt.Errorf("report: %w", err)
			}
		}
	}
	if runErr != nil {
		diag.IncOp("cli", "run", "error")
		return &exitError{code: exitRun, err: runErr}
	}
	diag.IncOp("cli", "run", "success")
	diag.ObserveDuration("cli", "run", time.Since(start).Milliseconds())
	if f.failOnError && rep.Failed() > 0 {
		return &exitError{code: exitRun, err: fmt.Errorf("%d document(s) failed", rep.Failed())}
	}
	return nil
}

// writeReport: path 为空不输出；"-" 写标准输出；否则覆盖写文件。
func writeReport(path string, rep *runner.Report, stdout io.Writer) error {
	switch strings.TrimSpace(path) {
	case "":
		return nil
	case "-":
		return rep.WriteJSON(stdout)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := rep.WriteJSON(fh); err != nil {
		_ = fh.Close()
		return err
	}
	return fh.Close()
}

func initConfig(dir string, stderr io.Writer) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return configErr("生成默认配置失败: %w", err)
	}
	if err := writeConfig(filepath.Join(dir, "sitemend.json"), cfgpkg.DefaultTemplateConfig()); err != nil {
		if errors.Is(err, os.ErrExist) {
			fmt.Fprintf(stderr, "提示：%s 已存在（已跳过）\n", filepath.Join(dir, "sitemend.json"))
		} else {
			return configErr("生成默认配置失败: %w", err)
		}
	}
	if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
		fmt.Fprintf(stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
	}
	return nil
}

// writeConfig 不覆盖已存在文件。
func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer fh.Close()
	_, err = fh.Write(append(b, '\n'))
	return err
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	env := map[string]string{
		"SITEMEND_CONFIG_FILE":            "",
		"SITEMEND_CONFIG_JSON":            "",
		"SITEMEND_INPUTS":                 "",
		"SITEMEND_CONCURRENCY":            "",
		"SITEMEND_MAX_PASSES":             "",
		"SITEMEND_REPORT":                 "",
		"SITEMEND_LOG_LEVEL":              "",
		"SITEMEND_REFERENCE_MODE":         "",
		"SITEMEND_REFERENCE_BASE_URL":     "",
		"SITEMEND_REFERENCE_HOME_FILE":    "",
		"SITEMEND_COMPONENTS_FETCHER":     "",
		"SITEMEND_COMPONENTS_ARCHIVE":     "",
		"SITEMEND_COMPONENTS_GENERATOR":   "",
		"SITEMEND_OPTIONS_ARCHIVE_JSON":   "",
		"SITEMEND_OPTIONS_FETCHER_JSON":   "",
		"SITEMEND_OPTIONS_GENERATOR_JSON": "",
		"OPENAI_API_KEY":                  "",
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return godotenv.Write(env, path)
}
