package pki

import (
	"time"

	"github.com/google/uuid"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/hardware"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/org"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pkicrypto"
)

// Command is satisfied by every input to Handle; every command carries a
// MessageIdentity.
type Command interface {
	Identity() common.MessageIdentity
}

// BootstrapOrganization creates the organization. Handle emits only
// OrganizationCreated for it: MasterSeed is carried on the command but is
// not read, and no master-seed event is recorded.
type BootstrapOrganization struct {
	MsgID             common.MessageIdentity
	Name              string
	DisplayName       string
	PassphraseWitness string // a hash of the passphrase, never the passphrase itself
	MasterSeed        [32]byte
}

func (c BootstrapOrganization) Identity() common.MessageIdentity { return c.MsgID }

// AddOrganizationUnit adds a unit under an existing organization.
type AddOrganizationUnit struct {
	MsgID     common.MessageIdentity
	ParentOrg uuid.UUID
	Name      string
	UnitType  org.UnitType
}

func (c AddOrganizationUnit) Identity() common.MessageIdentity { return c.MsgID }

// AddPerson adds a person to an organization, optionally with a contact location.
type AddPerson struct {
	MsgID common.MessageIdentity
	Org   uuid.UUID
	Unit  uuid.UUID
	Input org.PersonInput
}

func (c AddPerson) Identity() common.MessageIdentity { return c.MsgID }

// GenerateRootCA derives and issues the organization's self-signed root CA.
type GenerateRootCA struct {
	MsgID common.MessageIdentity
	Org   uuid.UUID
	Algo  pkicrypto.Algorithm
	Seed  [32]byte
}

func (c GenerateRootCA) Identity() common.MessageIdentity { return c.MsgID }

// GenerateIntermediateCA derives and issues an intermediate CA for a unit,
// signed by the organization's root key. IssuerKeyID names the root
// CryptoKey already recorded in the projection; IssuerSeed re-derives that
// key's private material (never itself stored in the projection) so Handle
// can sign without touching disk or hardware.
type GenerateIntermediateCA struct {
	MsgID       common.MessageIdentity
	UnitID      uuid.UUID
	Algo        pkicrypto.Algorithm
	Seed        [32]byte
	IssuerKeyID uuid.UUID
	IssuerSeed  [32]byte
}

func (c GenerateIntermediateCA) Identity() common.MessageIdentity { return c.MsgID }

// PermissionKeyGen is the delegated permission that authorizes key
// generation on someone's behalf.
const PermissionKeyGen = "key-gen"

// GeneratePersonalKey derives and issues a leaf certificate for a person,
// signed by a unit's intermediate CA. IssuerKeyID/IssuerSeed work the same
// way as in GenerateIntermediateCA. RequestedBy names the person invoking
// the command: nil means the root operator (ungated); anyone else must hold
// an active key-gen delegation at the command instant.
type GeneratePersonalKey struct {
	MsgID       common.MessageIdentity
	PersonID    uuid.UUID
	Purposes    []string
	Algo        pkicrypto.Algorithm
	Seed        [32]byte
	SANs        []string
	IssuerKeyID uuid.UUID
	IssuerSeed  [32]byte
	RequestedBy *uuid.UUID
}

func (c GeneratePersonalKey) Identity() common.MessageIdentity { return c.MsgID }

// RegisterYubiKeyDevice records a physical device before any slot on it can
// be provisioned.
type RegisterYubiKeyDevice struct {
	MsgID      common.MessageIdentity
	Serial     string
	Firmware   string
	FormFactor string
}

func (c RegisterYubiKeyDevice) Identity() common.MessageIdentity { return c.MsgID }

// AssignYubiKeyDevice hands a registered device to a person; assigning an
// already-owned device transfers it.
type AssignYubiKeyDevice struct {
	MsgID    common.MessageIdentity
	Serial   string
	PersonID uuid.UUID
}

func (c AssignYubiKeyDevice) Identity() common.MessageIdentity { return c.MsgID }

// ProvisionYubiKeySlot binds a software/hardware-generated key to a PIV slot.
type ProvisionYubiKeySlot struct {
	MsgID  common.MessageIdentity
	Serial string
	Tag    hardware.SlotTag
	KeyID  uuid.UUID
}

func (c ProvisionYubiKeySlot) Identity() common.MessageIdentity { return c.MsgID }

// ClearYubiKeySlot releases a slot's key binding, taking it back to empty
// without resetting the rest of the device (the reset_piv transition resets
// every slot at once; this one targets a single slot).
type ClearYubiKeySlot struct {
	MsgID  common.MessageIdentity
	Serial string
	Tag    hardware.SlotTag
}

func (c ClearYubiKeySlot) Identity() common.MessageIdentity { return c.MsgID }

// Delegate grants a permission subset from one person to another.
type Delegate struct {
	MsgID       common.MessageIdentity
	Delegator   uuid.UUID
	Delegate    uuid.UUID
	Permissions []string
	Parent      *uuid.UUID
	ExpiresAt   *time.Time
}

func (c Delegate) Identity() common.MessageIdentity { return c.MsgID }

// RevokeDelegation revokes a delegation and triggers the cascade revocation
// of every delegation chained beneath it.
type RevokeDelegation struct {
	MsgID        common.MessageIdentity
	DelegationID uuid.UUID
	RevokerID    uuid.UUID
	Reason       string
}

func (c RevokeDelegation) Identity() common.MessageIdentity { return c.MsgID }

// ExportManifest records that the projection has already been written to
// disk at TargetPath with the given manifest hash. The write itself happens
// outside Handle (Handle performs no I/O); ManifestSHA256 is computed by the
// caller's actual write and carried in here as a fact to record, not
// something Handle derives.
type ExportManifest struct {
	MsgID                  common.MessageIdentity
	TargetPath             string
	ManifestSHA256         string
	IncludePrivateMaterial bool // must be false; validated in Handle
}

func (c ExportManifest) Identity() common.MessageIdentity { return c.MsgID }
