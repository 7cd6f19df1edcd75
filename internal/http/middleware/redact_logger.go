// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger. It never logs
// bodies, and it scrubs credentials that commonly leak into query strings and
// headers of this service's clients: GitHub tokens, OpenAI-style API keys,
// bearer tokens, and email addresses.
//
// Usage:
//
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"X-GitHub-Token"},
//	}))
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
// MaskHeaders lists extra header names (case-insensitive) whose values are
// replaced with "[REDACTED]", on top of Authorization, Cookie, Set-Cookie and
// Sec-WebSocket-Key.
type RedactOptions struct {
	MaskHeaders []string
}

var (
	githubTokenRE = regexp.MustCompile(`\b(?:gh[pousr]_[A-Za-z0-9]{20,}|github_pat_[A-Za-z0-9_]{20,})\b`)
	apiKeyRE      = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{16,}\b`)
	bearerRE      = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._\-]+`)
	emailRE       = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	secretParamRE = regexp.MustCompile(`(?i)\b(token|access_token|api_key|apikey|key)=[^&\s]+`)
)

// redact scrubs s. Token patterns run before the generic key=value rule so
// the replacement names what was removed.
func redact(s string) string {
	if s == "" {
		return s
	}
	s = githubTokenRE.ReplaceAllString(s, "[REDACTED:github_token]")
	s = apiKeyRE.ReplaceAllString(s, "[REDACTED:api_key]")
	s = bearerRE.ReplaceAllString(s, "Bearer [REDACTED]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	s = secretParamRE.ReplaceAllString(s, "$1=[REDACTED]")
	return s
}

// RedactingLogger logs one structured line per request and attaches a
// request-scoped logger (see LoggerFrom) carrying the request ID, method and
// route. Level is info, warn for 4xx, and error for 5xx or Gin errors.
// Upgraded WebSocket requests log when the connection closes.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization":     {},
		"cookie":            {},
		"set-cookie":        {},
		"sec-websocket-key": {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redact(strings.Join(vv, ", "))
		}

		lg := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Logger()
		c.Set(loggerKey, &lg)

		c.Next()

		status := c.Writer.Status()
		ev := lg.Info()
		switch {
		case len(c.Errors) > 0 || status >= 500:
			ev = lg.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = lg.Warn()
		}
		ev.
			Str("query", redact(c.Request.URL.RawQuery)).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
