package client

import (
	"context"
	"log/slog"
	"strings"

	"github.com/vitalvas/contactsig/canonical"
	"github.com/vitalvas/contactsig/outcome"
	"github.com/vitalvas/contactsig/request"
	"github.com/vitalvas/contactsig/signature"
)

// Attempt identifies one pass through the signing pipeline. Retries of the
// same payload get a new Attempt with a new ID.
type Attempt struct {
	// ID is a UUIDv7 unique to the attempt.
	ID string

	// Number counts attempts for one Register call, starting at 1.
	Number int
}

// Observer is notified at fixed points of every attempt. Implementations
// must be safe for concurrent use and must not retain the arguments.
type Observer interface {
	// PreSign is called with the encoded payload before it is signed.
	PreSign(ctx context.Context, attempt Attempt, enc canonical.Encoded)

	// PreSend is called with the assembled request before it goes out.
	PreSend(ctx context.Context, attempt Attempt, req *request.SignedRequest, material signature.Material)

	// PostResponse is called with the classified response, or with the
	// transport error when no response arrived.
	PostResponse(ctx context.Context, attempt Attempt, result outcome.Outcome, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) PreSign(context.Context, Attempt, canonical.Encoded) {}

func (NopObserver) PreSend(context.Context, Attempt, *request.SignedRequest, signature.Material) {}

func (NopObserver) PostResponse(context.Context, Attempt, outcome.Outcome, error) {}

// Hooks is an Observer built from optional functions.
type Hooks struct {
	OnPreSign      func(ctx context.Context, attempt Attempt, enc canonical.Encoded)
	OnPreSend      func(ctx context.Context, attempt Attempt, req *request.SignedRequest, material signature.Material)
	OnPostResponse func(ctx context.Context, attempt Attempt, result outcome.Outcome, err error)
}

func (h Hooks) PreSign(ctx context.Context, attempt Attempt, enc canonical.Encoded) {
	if h.OnPreSign != nil {
		h.OnPreSign(ctx, attempt, enc)
	}
}

func (h Hooks) PreSend(ctx context.Context, attempt Attempt, req *request.SignedRequest, material signature.Material) {
	if h.OnPreSend != nil {
		h.OnPreSend(ctx, attempt, req, material)
	}
}

func (h Hooks) PostResponse(ctx context.Context, attempt Attempt, result outcome.Outcome, err error) {
	if h.OnPostResponse != nil {
		h.OnPostResponse(ctx, attempt, result, err)
	}
}

// signaturePrefix is how much of a signature LogObserver prints.
const signaturePrefix = 20

// LogObserver writes each pipeline step to a slog.Logger. Bodies and the
// signing payload are logged at debug level. The secret key is never
// logged and the bearer token is redacted.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver returns a LogObserver writing to logger, or to
// slog.Default when logger is nil.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}

	return &LogObserver{logger: logger}
}

func (o *LogObserver) PreSign(ctx context.Context, attempt Attempt, enc canonical.Encoded) {
	o.logger.DebugContext(ctx, "signing payload",
		attemptAttr(attempt),
		slog.String("send_body", string(enc.Send)),
		slog.String("canonical_body", string(enc.Canonical)),
	)
}

func (o *LogObserver) PreSend(ctx context.Context, attempt Attempt, req *request.SignedRequest, material signature.Material) {
	header := req.Header()

	attrs := []any{
		attemptAttr(attempt),
		slog.String("method", req.Method()),
		slog.String("url", req.URL()),
		slog.Int64("timestamp", material.Timestamp),
		slog.String("authorization", "Bearer "+request.Redact(bearerToken(header.Get(request.HeaderAuthorization)))),
		slog.String("signature", truncate(header.Get(request.HeaderSignature), signaturePrefix)),
	}

	if v := header.Get(request.HeaderOrigin); v != "" {
		attrs = append(attrs, slog.String("origin", v))
	}

	if v := header.Get(request.HeaderReferer); v != "" {
		attrs = append(attrs, slog.String("referer", v))
	}

	o.logger.InfoContext(ctx, "sending request", attrs...)
	o.logger.DebugContext(ctx, "signing material",
		attemptAttr(attempt),
		slog.String("signing_payload", string(material.Payload)),
	)
}

func (o *LogObserver) PostResponse(ctx context.Context, attempt Attempt, result outcome.Outcome, err error) {
	if err != nil {
		o.logger.WarnContext(ctx, "request failed", attemptAttr(attempt), slog.Any("error", err))
		return
	}

	level := slog.LevelInfo
	if !result.OK() {
		level = slog.LevelWarn
	}

	o.logger.Log(ctx, level, "response received",
		attemptAttr(attempt),
		slog.Int("status", result.StatusCode),
		slog.String("outcome", result.Kind.String()),
	)
	o.logger.DebugContext(ctx, "response body",
		attemptAttr(attempt),
		slog.String("body", string(result.Raw)),
	)
}

func attemptAttr(a Attempt) slog.Attr {
	return slog.Group("attempt", slog.String("id", a.ID), slog.Int("number", a.Number))
}

func bearerToken(authorization string) string {
	if token, ok := strings.CutPrefix(authorization, "Bearer "); ok {
		return token
	}

	return authorization
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
