package jobauth

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pyjobs/jobauth/jwt"
	"github.com/pyjobs/jobauth/keyset"
)

// auditDispatcher records token lifecycle outcomes as AuditEvents and hands them to a
// sink from one goroutine, in submission order. A nil dispatcher records nothing.
type auditDispatcher struct {
	sink       AuditSink
	queue      chan AuditEvent
	dropIfFull bool
	now        func() time.Time
	logger     *zap.Logger

	stop       chan struct{}
	finished   chan struct{}
	stopOnce   sync.Once
	closing    atomic.Bool
	dropped    atomic.Uint64
	sinkPanics atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, now func() time.Time, logger *zap.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &auditDispatcher{
		sink:       sink,
		queue:      make(chan AuditEvent, size),
		dropIfFull: cfg.DropIfFull,
		now:        now,
		logger:     logger,
		stop:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
	go d.loop()
	return d
}

// tokenIssued records a signed token. kid is the signing key's id, empty for a default key.
func (d *auditDispatcher) tokenIssued(ctx context.Context, claims jwt.Claims, kid string) {
	if d == nil {
		return
	}
	d.emit(ctx, AuditEvent{
		EventType: AuditTokenIssued,
		Subject:   claims.Subject,
		Issuer:    claims.Issuer,
		KeyID:     kid,
		Success:   true,
		Metadata: map[string]string{
			"audience":   claims.Audience,
			"expires_at": claims.ExpiresAt.UTC().Format(time.RFC3339),
		},
	})
}

func (d *auditDispatcher) issueFailed(ctx context.Context, subject string, err error) {
	if d == nil {
		return
	}
	d.emit(ctx, AuditEvent{
		EventType: AuditTokenIssued,
		Subject:   subject,
		Error:     err.Error(),
	})
}

func (d *auditDispatcher) tokenVerified(ctx context.Context, claims *jwt.Claims) {
	if d == nil {
		return
	}
	d.emit(ctx, AuditEvent{
		EventType: AuditTokenVerified,
		Subject:   claims.Subject,
		Issuer:    claims.Issuer,
		Success:   true,
		Metadata:  map[string]string{"audience": claims.Audience},
	})
}

// tokenRejected records a failed verification with its stable reason only, never the
// wrapped error detail.
func (d *auditDispatcher) tokenRejected(ctx context.Context, audience string, err error) {
	if d == nil {
		return
	}
	d.emit(ctx, AuditEvent{
		EventType: AuditTokenRejected,
		Error:     jwt.Reason(err),
		Metadata:  map[string]string{"audience": audience},
	})
}

func (d *auditDispatcher) keySetRefreshed(res keyset.RefreshResult) {
	if d == nil {
		return
	}
	meta := map[string]string{
		"url":         res.URL,
		"duration_ms": strconv.FormatInt(res.Duration.Milliseconds(), 10),
	}
	if res.Err != nil {
		d.emit(context.Background(), AuditEvent{
			EventType: AuditKeySetRefreshFail,
			Error:     res.Err.Error(),
			Metadata:  meta,
		})
		return
	}
	meta["keys"] = strconv.Itoa(res.Keys)
	meta["skipped"] = strconv.Itoa(res.Skipped)
	d.emit(context.Background(), AuditEvent{
		EventType: AuditKeySetRefreshed,
		Success:   true,
		Metadata:  meta,
	})
}

// emit stamps event with an ID and timestamp when missing and queues it. With DropIfFull
// a full queue drops and counts the event; otherwise emit waits for room or for ctx.
func (d *auditDispatcher) emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now().UTC()
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

func (d *auditDispatcher) loop() {
	defer close(d.finished)
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *auditDispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		default:
			return
		}
	}
}

// deliver isolates the loop from a panicking sink; the event is lost and counted.
func (d *auditDispatcher) deliver(event AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.sinkPanics.Add(1)
			d.logger.Error("audit sink panicked",
				zap.String("event_type", event.EventType),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Close stops accepting events and returns once everything already queued is delivered.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)
	})
	<-d.finished
}

// Dropped counts events lost to a full queue or a panicking sink.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load() + d.sinkPanics.Load()
}
