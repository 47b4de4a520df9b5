// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the optional Idempotency-Key header on mutating
// requests. A valid key is stashed in the Gin context; when the lookup reports
// that the same (user, kind, key) was already accepted, the request is marked
// as a replay so the handler can answer the benign duplicate without touching
// the store, and the rate limiter lets it through.
//
// Keys sent in the JSON body are not visible here; the services detect those
// duplicates themselves.
package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client-generated key for a mutation.
const HeaderIdempotencyKey = "Idempotency-Key"

// Operation kinds passed to IdempotencyLookup.
const (
	KindSubmit = "submit"
	KindEdit   = "edit"
	KindDelete = "delete"
)

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// GetIdempotencyKey returns the validated header key, if any.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the header key was already accepted earlier.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Defaults to ^[A-Za-z0-9._~\-:]+$,
	// which admits the keys generated by the client package.
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether key was already accepted for the user
// and operation kind. Errors are treated as a miss.
type IdempotencyLookup func(ctx context.Context, userID, kind, key string) (bool, error)

// KindFor maps a request method to the operation kind it performs. Safe
// methods map to "".
func KindFor(method string) string {
	switch method {
	case http.MethodPost:
		return KindSubmit
	case http.MethodPut, http.MethodPatch:
		return KindEdit
	case http.MethodDelete:
		return KindDelete
	default:
		return ""
	}
}

// IdempotencyValidator validates and stashes the Idempotency-Key header and
// marks replays found by lookup. Requests without the header pass through
// untouched; a malformed key is answered 400.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "bad_idempotency_key",
				"message": "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		kind := KindFor(c.Request.Method)
		uid := userIDFromCtx(c)
		if lookup != nil && kind != "" && uid != "" {
			if seen, err := lookup(c.Request.Context(), uid, kind, key); err == nil && seen {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// userIDFromCtx returns the identity set by Auth, or "".
func userIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
