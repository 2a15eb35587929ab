// Package privacylog keeps key material out of logs and replaces account
// identifiers with per-process fingerprints.
package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
)

const redactedValue = "[REDACTED]"

type treatment int

const (
	keep treatment = iota
	redact
	fingerprint
)

var (
	bootNonce = randomNonce()

	// secretKeyParts redact any key containing them.
	secretKeyParts = []string{
		"mnemonic", "seed", "private", "password", "passphrase",
		"secret", "token", "auth", "key_aes", "key_hmac",
	}
	// identifierKeys are logged as fingerprints; so is every *_address key.
	identifierKeys = map[string]struct{}{
		"user_id":        {},
		"sub_user_id":    {},
		"parent_user_id": {},
		"address":        {},
		"wallet_id":      {},
		"wallet_uuid":    {},
	}
)

func classify(key string) treatment {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, part := range secretKeyParts {
		if strings.Contains(k, part) {
			return redact
		}
	}
	if _, ok := identifierKeys[k]; ok || strings.HasSuffix(k, "_address") {
		return fingerprint
	}
	return keep
}

// SanitizingHandler rewrites every attribute before passing the record on.
type SanitizingHandler struct {
	next slog.Handler
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(SanitizeAttr(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SanitizingHandler{next: h.next.WithAttrs(sanitizeAll(attrs))}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name)}
}

// SanitizeAttr redacts secrets, fingerprints identifiers under a "_fp"
// key, and descends into groups.
func SanitizeAttr(attr slog.Attr) slog.Attr {
	key := strings.TrimSpace(attr.Key)
	v := attr.Value.Resolve()
	switch classify(key) {
	case redact:
		return slog.String(key, redactedValue)
	case fingerprint:
		return slog.String(fingerprintKey(key), FingerprintID(v.String()))
	}
	if v.Kind() == slog.KindGroup {
		return slog.Attr{Key: key, Value: slog.GroupValue(sanitizeAll(v.Group())...)}
	}
	return slog.Attr{Key: key, Value: v}
}

// SanitizeArgs applies SanitizeAttr rules to alternating key/value args,
// for callers that build argument lists before picking a logger.
func SanitizeArgs(args ...any) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, 0, len(args))
	for len(args) > 0 {
		key, ok := args[0].(string)
		if !ok || len(args) == 1 {
			out = append(out, args[0])
			args = args[1:]
			continue
		}
		if classify(key) == keep {
			out = append(out, key, args[1])
		} else {
			attr := SanitizeAttr(slog.Any(key, args[1]))
			out = append(out, attr.Key, attr.Value.String())
		}
		args = args[2:]
	}
	return out
}

// FingerprintID hashes value with a nonce chosen at process start, so the
// same identifier correlates within one run only.
func FingerprintID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(trimmed + "|" + bootNonce))
	return "fp_" + hex.EncodeToString(sum[:8])
}

func sanitizeAll(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, SanitizeAttr(attr))
	}
	return out
}

func fingerprintKey(key string) string {
	if strings.HasSuffix(strings.ToLower(key), "_fp") {
		return key
	}
	return key + "_fp"
}

func randomNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "fallback_nonce"
	}
	return hex.EncodeToString(buf)
}
