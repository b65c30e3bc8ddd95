// Package engine is the façade that drives the seven domain components as
// one process: submit a command, fold the resulting events into the right
// bounded context's projection, publish them to the durable loopback log,
// and materialize the projection to disk on export. An external CLI is the
// only intended caller; nothing here parses flags or touches a terminal.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/hardware"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/natsid"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/org"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pki"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/seed"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/infra/eventbus"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/infra/ioc"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/infra/projection"
)

// Engine owns one organization's projections, its durable event log, its
// hardware token provider, and the projection writer. One Engine serializes
// every command that touches its projections; parallelism exists only
// across independent organizations, which share no state.
type Engine struct {
	cfg ioc.EngineConfig

	bus      *eventbus.Bus
	writer   *projection.Writer
	hardware hardware.TokenProvider

	pkiProj  *pki.Projection
	natsProj *natsid.Projection
	eventSeq int
}

// New wires an Engine from a ContainerBuilder that has already had
// WithEnvFile/WithHardwareProvider/WithEventBus/WithProjectionWriter called
// on it, the same chained-builder shape `bootstrap` or any other CLI entry
// point uses before resolving an Engine.
func New(b *ioc.ContainerBuilder) (*Engine, error) {
	c := b.Build()

	var cfg ioc.EngineConfig
	if err := c.Resolve(&cfg); err != nil {
		return nil, fmt.Errorf("engine: resolve EngineConfig: %w", err)
	}

	var bus *eventbus.Bus
	if err := c.Resolve(&bus); err != nil {
		return nil, fmt.Errorf("engine: resolve event bus: %w", err)
	}

	var writer *projection.Writer
	if err := c.Resolve(&writer); err != nil {
		return nil, fmt.Errorf("engine: resolve projection writer: %w", err)
	}

	var hw hardware.TokenProvider
	if err := c.Resolve(&hw); err != nil {
		return nil, fmt.Errorf("engine: resolve hardware provider: %w", err)
	}

	return &Engine{
		cfg:      cfg,
		bus:      bus,
		writer:   writer,
		hardware: hw,
		pkiProj:  pki.NewProjection(),
		natsProj: natsid.NewProjection(),
	}, nil
}

// Close releases the event bus connection and the projection directory
// lock. Safe to call once, at process shutdown.
func (e *Engine) Close() {
	if e.bus != nil {
		e.bus.Close()
	}
	if e.writer != nil {
		_ = e.writer.Close()
	}
}

// Hardware exposes the resolved hardware.TokenProvider for a caller (the
// ProvisionYubiKeySlot command path) that needs to drive it directly before
// submitting the resulting command.
func (e *Engine) Hardware() hardware.TokenProvider {
	return e.hardware
}

// PkiProjection exposes the engine's own pki.Projection as the
// org.OrgContextPort/org.PersonContextPort pair MirrorOperator/
// MirrorAccount/MirrorUser expect, so a caller resolves organization/unit/
// person references through the port the same way any other downstream
// context would rather than reaching into pki internals.
func (e *Engine) PkiProjection() *pki.Projection {
	return e.pkiProj
}

// Submit validates cmd against the PKI aggregate's current projection,
// publishes every resulting event to the durable log, and folds them into
// the projection. No suspension occurs inside Handle itself: the only
// suspension points here are the event-bus publish acknowledgment.
func (e *Engine) Submit(ctx context.Context, cmd pki.Command) ([]pki.Event, error) {
	events, err := pki.Handle(cmd, e.pkiProj)
	if err != nil {
		return nil, err
	}

	for _, ev := range events {
		if _, err := e.bus.Append(ctx, "pki", ev); err != nil {
			return nil, fmt.Errorf("engine: publish event %s: %w", ev.Kind, err)
		}
		e.pkiProj.Fold(ev)
	}

	if err := e.writer.AppendAudit("operations.log", fmt.Sprintf("%s %T correlation=%s events=%d",
		common.TimeOf(cmd.Identity().MessageID).Format(time.RFC3339), cmd, cmd.Identity().CorrelationID, len(events))); err != nil {
		slog.WarnContext(ctx, "audit log append failed", "err", err)
	}

	return events, nil
}

// SubmitNatsIdentity is Submit's analogue for the natsid bounded context:
// it never imports pki's or org's internal types, only the
// published-language references their commands carry.
func (e *Engine) SubmitNatsIdentity(cmd natsid.Command) ([]natsid.Event, error) {
	events, err := natsid.Handle(cmd, e.natsProj)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		e.natsProj.Fold(ev)
	}
	return events, nil
}

// MirrorOperator mints the NatsOperator for orgID, resolving the
// organization's published-language reference through orgPort rather than
// reaching into pki's internal Projection type directly — the engine passes
// its own pkiProj, which satisfies org.OrgContextPort, but any other
// implementation (a future remote resolver, a test double) works the same
// way.
func (e *Engine) MirrorOperator(orgPort org.OrgContextPort, orgID uuid.UUID, operatorSeed seed.Seed) ([]natsid.Event, error) {
	ref, ok := orgPort.Organization(orgID)
	if !ok {
		return nil, common.NewErrNotFound("Organization", orgID)
	}
	return e.SubmitNatsIdentity(natsid.CreateOperator{
		MsgID:  common.NewRootMessageIdentity(),
		OrgRef: ref,
		Seed:   operatorSeed,
	})
}

// MirrorAccount mints the NatsAccount for unitID, signed by operatorID.
func (e *Engine) MirrorAccount(orgPort org.OrgContextPort, unitID uuid.UUID, operatorID string, operatorSeed, accountSeed seed.Seed, limits natsid.Limits) ([]natsid.Event, error) {
	ref, ok := orgPort.Unit(unitID)
	if !ok {
		return nil, common.NewErrNotFound("OrganizationUnit", unitID)
	}
	return e.SubmitNatsIdentity(natsid.CreateAccount{
		MsgID:        common.NewRootMessageIdentity(),
		UnitRef:      ref,
		OperatorID:   operatorID,
		OperatorSeed: operatorSeed,
		Seed:         accountSeed,
		Limits:       limits,
	})
}

// MirrorUser mints the NatsUser for personID, signed by accountID.
func (e *Engine) MirrorUser(personPort org.PersonContextPort, personID uuid.UUID, accountID string, accountSeed, userSeed seed.Seed, perms natsid.Permissions) ([]natsid.Event, error) {
	ref, ok := personPort.Person(personID)
	if !ok {
		return nil, common.NewErrNotFound("Person", personID)
	}
	return e.SubmitNatsIdentity(natsid.CreateUser{
		MsgID:       common.NewRootMessageIdentity(),
		PersonRef:   ref,
		AccountID:   accountID,
		AccountSeed: accountSeed,
		Seed:        userSeed,
		Permissions: perms,
	})
}

// Export materializes both projections to disk and returns the resulting
// manifest, retrying the write with exponential backoff.
// A write that ultimately fails emits no ManifestExported event;
// the caller decides whether to surface ProjectionWriteFailed to the
// aggregate's next command.
func (e *Engine) Export(ctx context.Context) (projection.Manifest, error) {
	var manifest projection.Manifest

	op := func() error {
		var err error
		manifest, err = e.writer.Materialize(e.pkiProj, e.natsProj)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		slog.ErrorContext(ctx, "projection export failed after retries", "err", err)
		return projection.Manifest{}, fmt.Errorf("engine: materialize projection: %w", err)
	}

	// ReadAll replays the whole stream from the beginning every time (a fresh
	// pull consumer with DeliverAll), so only the tail past what a previous
	// Export already wrote is new.
	events, err := e.bus.ReadAll(ctx, "pki")
	if err == nil && len(events) > e.eventSeq {
		fresh := events[e.eventSeq:]
		_ = e.writer.AppendEventLog(e.eventSeq, fresh)
		e.eventSeq += len(fresh)
	}

	if _, err := e.Submit(ctx, pki.ExportManifest{
		MsgID:          common.NewRootMessageIdentity(),
		TargetPath:     e.cfg.ProjectionRoot,
		ManifestSHA256: manifest.ManifestSHA256,
	}); err != nil {
		return projection.Manifest{}, fmt.Errorf("engine: record manifest export: %w", err)
	}

	if err := e.writer.AppendAudit("access.log", fmt.Sprintf("%s export root=%s manifest=%s entries=%d",
		time.Now().UTC().Format(time.RFC3339), e.cfg.ProjectionRoot, manifest.ManifestSHA256, len(manifest.Entries))); err != nil {
		slog.WarnContext(ctx, "audit log append failed", "err", err)
	}

	return manifest, nil
}
