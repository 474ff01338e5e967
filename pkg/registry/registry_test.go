package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"sitemend/pkg/contract"
)

// TestStrictUnmarshal 验证严格解码逻辑。
func TestStrictUnmarshal(t *testing.T) {
	type opt struct {
		A int `json:"a"`
	}
	var o opt
	if err := strictUnmarshal(nil, &o); err != nil || o.A != 0 {
		t.Fatalf("nil 输入失败: %v", err)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1}`), &o); err != nil || o.A != 1 {
		t.Fatalf("合法 JSON 解析失败: %v", err)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1,"b":2}`), &o); err == nil {
		t.Fatalf("未知字段应报错")
	}
}

// TestFactories 遍历注册表入口。
func TestFactories(t *testing.T) {
	t.Run("reader", func(t *testing.T) {
		if _, err := Reader["fs"](json.RawMessage(`{}`)); err != nil {
			t.Fatalf("reader: %v", err)
		}
		if _, err := Reader["fs"](json.RawMessage(`{"x":1}`)); err == nil {
			t.Fatalf("reader 未对未知字段报错")
		}
		if _, err := Reader["fs"](json.RawMessage(`{"exclude":["a/[b"]}`)); !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("reader 未拒绝非法排除模式: %v", err)
		}
	})
	t.Run("writer", func(t *testing.T) {
		tmp := t.TempDir()
		raw := json.RawMessage([]byte(fmt.Sprintf(`{"root":%q}`, tmp)))
		if _, err := Writer["fs"](raw); err != nil {
			t.Fatalf("writer: %v", err)
		}
		bad := json.RawMessage([]byte(fmt.Sprintf(`{"root":%q,"x":1}`, tmp)))
		if _, err := Writer["fs"](bad); err == nil {
			t.Fatalf("writer 未对未知字段报错")
		}
		if _, err := Writer["fs"](json.RawMessage(`{}`)); !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("writer 缺少 root 未报错: %v", err)
		}
	})
	t.Run("fetcher", func(t *testing.T) {
		if _, err := Fetcher["http"](json.RawMessage(`{}`)); err != nil {
			t.Fatalf("http: %v", err)
		}
		f, err := Fetcher["chrome"](json.RawMessage(`{"no_sandbox":true}`))
		if err != nil {
			t.Fatalf("chrome: %v", err)
		}
		if c, ok := f.(io.Closer); !ok {
			t.Fatalf("chrome 应实现 io.Closer")
		} else {
			_ = c.Close()
		}
	})
	t.Run("archive", func(t *testing.T) {
		if _, err := Archive["jsonlog"](json.RawMessage(`{}`)); !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("jsonlog 缺少 path 未报错: %v", err)
		}
		if _, err := Archive["jsonlog"](json.RawMessage(`{"path":"progress.json"}`)); err != nil {
			t.Fatalf("jsonlog: %v", err)
		}
	})
	t.Run("generator-template", func(t *testing.T) {
		if _, err := Generator["template"](json.RawMessage(`{}`)); err != nil {
			t.Fatalf("template: %v", err)
		}
	})
	t.Run("generator-openai", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		if _, err := Generator["openai"](json.RawMessage(`{}`)); !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("openai 未按预期报错: %v", err)
		}
	})
}
