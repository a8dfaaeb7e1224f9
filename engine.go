package jobauth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pyjobs/jobauth/jwt"
	"github.com/pyjobs/jobauth/keyset"
)

// Engine verifies and issues tokens. Build one with New().…Build(ctx).
type Engine struct {
	config     Config
	logger     *zap.Logger
	static     *keyset.Set
	remote     *keyset.Remote
	verifier   *jwt.Verifier
	issuer     *jwt.Issuer
	audit      *auditDispatcher
	metrics    *Metrics
	ownedRedis *redis.Client

	closed    atomic.Bool
	closeOnce sync.Once
}

// Close stops the key refresh loop, drains the audit buffer, and releases the Redis
// client the engine dialled itself. Further Verify and Issue calls fail with ErrEngineClosed.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if e.remote != nil {
			e.remote.Close()
		}
		e.audit.Close()
		if e.ownedRedis != nil {
			_ = e.ownedRedis.Close()
		}
	})
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the configuration the engine was built with.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Verify authenticates token for the configured audience.
//
// Verify may return any jwt verification error, or ErrEngineClosed.
// Verify performs no I/O and can be used concurrently.
func (e *Engine) Verify(ctx context.Context, token string) (*jwt.Claims, error) {
	return e.VerifyAudience(ctx, token, e.config.Token.Audience)
}

// VerifyAudience authenticates token for audience.
func (e *Engine) VerifyAudience(ctx context.Context, token, audience string) (*jwt.Claims, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
	}
	claims, err := e.verifier.Verify(token, audience)
	if !start.IsZero() {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}

	if err != nil {
		reason := jwt.Reason(err)
		e.metrics.Inc(verifyFailureMetric(err))
		e.logger.Debug("token rejected", zap.String("reason", reason))
		e.audit.tokenRejected(ctx, audience, err)
		return nil, err
	}

	e.metrics.Inc(MetricVerifySuccess)
	e.audit.tokenVerified(ctx, claims)
	return claims, nil
}

func verifyFailureMetric(err error) MetricID {
	switch {
	case errors.Is(err, jwt.ErrUnknownKey):
		return MetricVerifyUnknownKey
	case errors.Is(err, jwt.ErrAlgorithmMismatch):
		return MetricVerifyAlgorithmMismatch
	case errors.Is(err, jwt.ErrInvalidSignature):
		return MetricVerifyInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return MetricVerifyExpired
	case errors.Is(err, jwt.ErrAudienceMismatch):
		return MetricVerifyAudienceMismatch
	case errors.Is(err, jwt.ErrIssuerNotAllowed):
		return MetricVerifyIssuerNotAllowed
	default:
		return MetricVerifyMalformed
	}
}

// Issue signs a token for subject with the configured audience and TTL.
func (e *Engine) Issue(ctx context.Context, subject string) (string, jwt.Claims, error) {
	return e.IssueWith(ctx, subject, jwt.IssueOptions{})
}

// IssueWith signs a token for subject, overriding audience or TTL when set in opts.
//
// IssueWith returns ErrIssuerDisabled when no signing key is configured.
func (e *Engine) IssueWith(ctx context.Context, subject string, opts jwt.IssueOptions) (string, jwt.Claims, error) {
	if e.closed.Load() {
		return "", jwt.Claims{}, ErrEngineClosed
	}
	if e.issuer == nil {
		return "", jwt.Claims{}, ErrIssuerDisabled
	}

	token, claims, err := e.issuer.IssueWith(subject, opts)
	if err != nil {
		e.metrics.Inc(MetricIssueFailure)
		e.logger.Error("token signing failed", zap.Error(err))
		e.audit.issueFailed(ctx, subject, err)
		return "", jwt.Claims{}, err
	}

	e.metrics.Inc(MetricIssueSuccess)
	e.audit.tokenIssued(ctx, claims, e.issuer.PublicKey().KeyID)
	return token, claims, nil
}

// CanIssue reports whether a signing key is configured.
func (e *Engine) CanIssue() bool {
	return e != nil && e.issuer != nil
}

// SigningKey returns the public half of the signing key, if issuing is enabled.
func (e *Engine) SigningKey() (keyset.VerificationKey, bool) {
	if e == nil || e.issuer == nil {
		return keyset.VerificationKey{}, false
	}
	return e.issuer.PublicKey(), true
}

// RefreshKeys re-fetches the JWKS document and swaps it in. With static keys it is a no-op.
// A failed refresh keeps the current keys.
func (e *Engine) RefreshKeys(ctx context.Context) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if e.remote == nil {
		return nil
	}
	return e.remote.Refresh(ctx)
}

// KeySet returns the verification keys currently in use.
func (e *Engine) KeySet() *keyset.Set {
	if e.remote != nil {
		return e.remote.Snapshot()
	}
	return e.static
}

// Ready reports whether at least one verification key is loaded.
func (e *Engine) Ready() bool {
	return !e.closed.Load() && e.KeySet().Len() > 0
}

// JWKS renders the keys this engine vouches for: the signing key's public half when
// issuing is enabled, otherwise the verification set.
func (e *Engine) JWKS() ([]byte, error) {
	if e.issuer != nil {
		return keyset.MarshalJWKS(e.issuer.PublicKey())
	}
	return keyset.MarshalJWKS(e.KeySet().Keys()...)
}

func (e *Engine) recordRefresh(res keyset.RefreshResult) {
	e.audit.keySetRefreshed(res)
	if res.Err != nil {
		e.metrics.Inc(MetricKeySetRefreshFailure)
		return
	}
	e.metrics.Inc(MetricKeySetRefreshSuccess)
	e.metrics.Add(MetricKeySetEntrySkipped, uint64(res.Skipped))
}
