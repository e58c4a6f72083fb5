package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/tessera/api/internal/response"
)

const maxJSONBody = 1 << 20

// Sanitizer strips HTML from JSON request bodies and query strings before they reach handlers.
// Fields whose name contains "password" are left untouched.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer creates a Sanitizer that removes all markup.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Middleware rewrites the query string and, for JSON requests, the body.
func (s *Sanitizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			q := r.URL.Query()
			for key, values := range q {
				for i, v := range values {
					values[i] = s.text(key, v)
				}
				q[key] = values
			}
			r.URL.RawQuery = q.Encode()
		}

		if r.Body != nil && isJSON(r.Header.Get("Content-Type")) {
			raw, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody+1))
			_ = r.Body.Close()
			if err != nil {
				response.BadRequest(w, "invalid request body")
				return
			}
			if len(raw) > maxJSONBody {
				response.TooLarge(w, "request body too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(s.body(raw)))
			r.ContentLength = -1
		}

		next.ServeHTTP(w, r)
	})
}

// body sanitizes raw, returning it unchanged when it is not valid JSON so that the handler can
// report the decode error itself.
func (s *Sanitizer) body(raw []byte) []byte {
	if len(bytes.TrimSpace(raw)) == 0 {
		return raw
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	out, err := json.Marshal(s.walk("", v))
	if err != nil {
		return raw
	}
	return out
}

func (s *Sanitizer) walk(key string, v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return s.text(key, t)
	case map[string]interface{}:
		for k, child := range t {
			t[k] = s.walk(k, child)
		}
		return t
	case []interface{}:
		for i, child := range t {
			t[i] = s.walk(key, child)
		}
		return t
	default:
		return v
	}
}

func (s *Sanitizer) text(key, v string) string {
	if strings.Contains(strings.ToLower(key), "password") || !strings.ContainsAny(v, "<>") {
		return v
	}
	return s.policy.Sanitize(v)
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && (mt == "application/json" || strings.HasSuffix(mt, "+json"))
}
