package rate

import (
	"net/url"
	"strings"
)

// KeyForURL 返回按远端主机分组的限流键；无法解析时退回整串。
func KeyForURL(raw string) LimitKey {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return LimitKey("remote:" + strings.ToLower(strings.TrimSpace(raw)))
	}
	return LimitKey("remote:" + strings.ToLower(u.Host))
}
