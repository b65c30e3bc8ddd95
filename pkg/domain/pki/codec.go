package pki

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
)

// DecodePayload reconstructs the typed payload for kind from its canonical
// JSON encoding. The event bus and projection loader both go through this
// rather than unmarshaling into `any`, since Event.Payload must come back as
// the same concrete struct Fold's type switch expects.
func DecodePayload(kind EventKind, raw []byte) (any, error) {
	switch kind {
	case EventOrganizationCreated:
		var p OrganizationCreatedPayload
		return p, json.Unmarshal(raw, &p)
	case EventUnitAdded:
		var p UnitAddedPayload
		return p, json.Unmarshal(raw, &p)
	case EventPersonCreated:
		var p PersonCreatedPayload
		return p, json.Unmarshal(raw, &p)
	case EventLocationCreated:
		var p LocationCreatedPayload
		return p, json.Unmarshal(raw, &p)
	case EventRootCAKeyGenerated, EventIntermediateCAKeyGenerated, EventPersonalKeyGenerated:
		var p KeyGeneratedPayload
		return p, json.Unmarshal(raw, &p)
	case EventCertificateIssued:
		var p CertificateIssuedPayload
		return p, json.Unmarshal(raw, &p)
	case EventYubiKeyDeviceRegistered:
		var p YubiKeyDeviceRegisteredPayload
		return p, json.Unmarshal(raw, &p)
	case EventYubiKeyDeviceAssigned:
		var p YubiKeyDeviceAssignedPayload
		return p, json.Unmarshal(raw, &p)
	case EventSlotProvisioned:
		var p SlotProvisionedPayload
		return p, json.Unmarshal(raw, &p)
	case EventSlotCleared:
		var p SlotClearedPayload
		return p, json.Unmarshal(raw, &p)
	case EventDelegationCreated:
		var p DelegationCreatedPayload
		return p, json.Unmarshal(raw, &p)
	case EventDelegationRevoked:
		var p DelegationRevokedPayload
		return p, json.Unmarshal(raw, &p)
	case EventDelegationCascadeRevoked:
		var p DelegationCascadeRevokedPayload
		return p, json.Unmarshal(raw, &p)
	case EventManifestExported:
		var p ManifestExportedPayload
		return p, json.Unmarshal(raw, &p)
	case EventProjectionWriteFailed:
		var p ProjectionWriteFailedPayload
		return p, json.Unmarshal(raw, &p)
	default:
		return nil, fmt.Errorf("pki: decode payload: unknown event kind %q", kind)
	}
}

// ParseMessageIdentity rebuilds a MessageIdentity from its three string UUIDs,
// as read back off the wire.
func ParseMessageIdentity(correlationID, causationID, messageID string) (common.MessageIdentity, error) {
	corr, err := uuid.Parse(correlationID)
	if err != nil {
		return common.MessageIdentity{}, fmt.Errorf("pki: parse correlation id: %w", err)
	}
	caus, err := uuid.Parse(causationID)
	if err != nil {
		return common.MessageIdentity{}, fmt.Errorf("pki: parse causation id: %w", err)
	}
	msg, err := uuid.Parse(messageID)
	if err != nil {
		return common.MessageIdentity{}, fmt.Errorf("pki: parse message id: %w", err)
	}
	return common.MessageIdentity{CorrelationID: corr, CausationID: caus, MessageID: msg}, nil
}

// ParseEventID parses an event's own UUIDv7 identifier as read back off the wire.
func ParseEventID(id string) (uuid.UUID, error) {
	return uuid.Parse(id)
}
