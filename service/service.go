package service

import (
	"context"
	"time"

	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/metrics"
	"github.com/layer-3/certify/ports"
	"go.uber.org/zap"
)

// Deps bundles the collaborators shared by the services.
type Deps struct {
	Store     ports.Store
	Ledger    ports.Ledger
	Tokenizer ports.Tokenizer
	Events    ports.EventPublisher
	Logger    *zap.Logger
	Metrics   *metrics.Collector
}

func (d Deps) logger(name string) *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger.With(zap.String("service", name))
}

// auditor writes audit entries and mirrors them onto the event bus.
type auditor struct {
	store  ports.Store
	events ports.EventPublisher
	logger *zap.Logger
}

func newAuditor(d Deps, logger *zap.Logger) auditor {
	return auditor{store: d.Store, events: d.Events, logger: logger}
}

// record writes e outside of any transaction. Failing to audit never fails
// the operation being audited.
func (a auditor) record(ctx context.Context, e *core.AuditEntry) {
	ctx = context.WithoutCancel(ctx)
	if err := a.store.AppendAudit(ctx, e); err != nil {
		a.logger.Error("failed to write audit entry",
			zap.String("action", e.Action),
			zap.String("result", string(e.Result)),
			zap.Error(err))
		return
	}
	a.publish(ctx, e)
}

// publish announces an entry that has already been committed.
func (a auditor) publish(ctx context.Context, e *core.AuditEntry) {
	if a.events == nil {
		return
	}
	if err := a.events.PublishAudit(ctx, e); err != nil {
		a.logger.Warn("failed to publish audit event", zap.String("action", e.Action), zap.Error(err))
	}
}

// requireRole is the common guard for operations restricted to roles.
func requireRole(c *core.Capability, now time.Time, roles ...core.Role) error {
	if err := c.Validate(core.CapabilitySession, now); err != nil {
		return err
	}
	if !c.HasRole(roles...) {
		return core.ErrForbidden
	}
	return nil
}
