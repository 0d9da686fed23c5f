package middleware

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/huangang/erpsettings/internal/services"
)

const maxAuditBody = 2000

var sensitiveKeys = []string{"password", "secret", "token", "api_key"}

// AuditLog records write requests (POST/PUT/DELETE) to system_logs.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != "POST" && method != "PUT" && method != "DELETE" {
			c.Next()
			return
		}

		var body string
		if strings.HasPrefix(c.ContentType(), "multipart/") {
			body = "[multipart]"
		} else if c.Request.Body != nil {
			raw, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(raw))
			body = maskSensitiveFields(raw)
		}

		c.Next()

		actor := ActorFromContext(c)
		status := c.Writer.Status()
		module, action := parseRouteInfo(c.FullPath(), method)

		services.LogInfo(module, action, formatAuditMessage(actor.Username, method, c.Request.URL.Path, status),
			services.LogMeta{UserID: actor.UserID, RequestID: actor.RequestID, IP: actor.IP, UserAgent: actor.UserAgent},
			map[string]interface{}{
				"method": method,
				"path":   c.Request.URL.Path,
				"status": status,
				"body":   body,
				"audit":  true,
			})
	}
}

// parseRouteInfo derives module and action from a gin route pattern.
// "/api/settings/module/:module/reset" gives ("settings", "module.reset");
// a pattern ending in a parameter gets the method verb appended, so
// "/api/settings/system/:category" gives ("settings", "system.update").
func parseRouteInfo(fullPath, method string) (module, action string) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(fullPath, "/api/"), "/"), "/")
	module = parts[0]
	if module == "" {
		return "unknown", verbOf(method)
	}

	var static []string
	endsWithParam := false
	for _, p := range parts[1:] {
		endsWithParam = strings.HasPrefix(p, ":") || strings.HasPrefix(p, "*")
		if !endsWithParam {
			static = append(static, p)
		}
	}
	if len(static) == 0 || endsWithParam {
		static = append(static, verbOf(method))
	}
	return module, strings.Join(static, ".")
}

func verbOf(method string) string {
	switch method {
	case "POST", "PUT":
		return "update"
	case "DELETE":
		return "delete"
	}
	return strings.ToLower(method)
}

func formatAuditMessage(username, method, path string, status int) string {
	if username == "" {
		username = "anonymous"
	}
	outcome := "OK"
	if status < 200 || status >= 300 {
		outcome = "Failed"
	}
	return "[Audit] " + username + " " + method + " " + path + " -> " + outcome
}

// maskSensitiveFields renders a JSON body with credential values replaced.
// Bodies that are not JSON objects are not recorded.
func maskSensitiveFields(raw []byte) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ""
	}
	var doc map[string]interface{}
	if err := sonic.Unmarshal(raw, &doc); err != nil {
		return "[unparsed body]"
	}
	maskValues(doc)
	out, err := sonic.MarshalString(doc)
	if err != nil {
		return "[unparsed body]"
	}
	if len(out) > maxAuditBody {
		out = truncateUTF8(out, maxAuditBody) + "...[truncated]"
	}
	return out
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func maskValues(m map[string]interface{}) {
	for k, v := range m {
		if isSensitive(k) {
			m[k] = "***"
			continue
		}
		switch child := v.(type) {
		case map[string]interface{}:
			maskValues(child)
		case []interface{}:
			for _, item := range child {
				if obj, ok := item.(map[string]interface{}); ok {
					maskValues(obj)
				}
			}
		}
	}
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
