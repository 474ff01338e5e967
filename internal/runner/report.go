package runner

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"sitemend/internal/engine"
	"sitemend/pkg/contract"
)

// Status 单文档最终状态。
type Status string

const (
	StatusRepaired    Status = "repaired"
	StatusUnchanged   Status = "unchanged"
	StatusWouldRepair Status = "would_repair"
	StatusProtected   Status = "protected"
	StatusParseError  Status = "parse_error"
	StatusReadError   Status = "read_error"
	StatusRepairError Status = "repair_error"
	StatusWriteError  Status = "write_error"
)

// Failed 报告该状态是否为失败。
func (s Status) Failed() bool {
	switch s {
	case StatusParseError, StatusReadError, StatusRepairError, StatusWriteError:
		return true
	}
	return false
}

// DocResult 单文档记录。
type DocResult struct {
	FileID    string                `json:"file_id"`
	Status    Status                `json:"status"`
	Applied   []contract.DefectKind `json:"applied,omitempty"`
	Skipped   []contract.DefectKind `json:"skipped,omitempty"`
	Remaining []contract.DefectKind `json:"remaining,omitempty"`
	Error     string                `json:"error,omitempty"`
}

func (d *DocResult) fill(out engine.Outcome) {
	for _, a := range out.Applied() {
		d.Applied = append(d.Applied, a.Kind)
	}
	for _, a := range out.Skipped() {
		d.Skipped = append(d.Skipped, a.Kind)
	}
	for _, f := range out.Remaining {
		d.Remaining = append(d.Remaining, f.Kind)
	}
}

func newReport(dryRun bool) *Report {
	return &Report{
		DryRun:    dryRun,
		Counts:    make(map[Status]int),
		Applied:   make(map[contract.DefectKind]int),
		Skipped:   make(map[contract.DefectKind]int),
		Remaining: make(map[contract.DefectKind]int),
	}
}

func (r *Report) add(d DocResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Counts[d.Status]++
	for _, k := range d.Applied {
		r.Applied[k]++
	}
	for _, k := range d.Skipped {
		r.Skipped[k]++
	}
	for _, k := range d.Remaining {
		r.Remaining[k]++
	}
	r.Documents = append(r.Documents, d)
}

func (r *Report) finish(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.DurationMS = d.Milliseconds()
	sort.Slice(r.Documents, func(i, j int) bool { return r.Documents[i].FileID < r.Documents[j].FileID })
}

// Failed 返回失败文档数。
func (r *Report) Failed() int {
	n := 0
	for s, c := range r.Counts {
		if s.Failed() {
			n += c
		}
	}
	return n
}

// Doc 按 FileID 查找文档记录。
func (r *Report) Doc(id string) (DocResult, bool) {
	for _, d := range r.Documents {
		if d.FileID == id {
			return d, true
		}
	}
	return DocResult{}, false
}

// WriteJSON 以缩进 JSON 写出报告。
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("report encode: %w", err)
	}
	return nil
}

// Summary 单行汇总。
func (r *Report) Summary() string {
	order := []Status{StatusRepaired, StatusWouldRepair, StatusUnchanged, StatusProtected,
		StatusParseError, StatusReadError, StatusRepairError, StatusWriteError}
	var parts []string
	for _, s := range order {
		if c := r.Counts[s]; c > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", s, c))
		}
	}
	if len(parts) == 0 {
		return "documents=0"
	}
	return fmt.Sprintf("documents=%d %s", len(r.Documents), strings.Join(parts, " "))
}
