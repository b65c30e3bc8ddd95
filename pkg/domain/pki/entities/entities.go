// Package entities holds the PKI bounded context's own entities: keys,
// certificates, delegations, and the trust-graph edges between them.
// CryptoKey, Certificate and Delegation embed common.BaseEntity, use a typed
// status enum, and mutate only through pointer-receiver methods that call
// Touch(); YubiKeyDevice (keyed by serial) and TrustLink do not embed
// BaseEntity.
package entities

import (
	"time"

	"github.com/google/uuid"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pkicrypto"
)

// StorageKind is where a CryptoKey's private material actually lives.
type StorageKind string

const (
	StorageKindSoftware StorageKind = "software"
	StorageKindYubiKey  StorageKind = "yubikey"
	StorageKindHSM      StorageKind = "hsm"
)

// HardwareLocation identifies the (serial, slot) pair a yubikey-storage-kind
// key is bound to.
type HardwareLocation struct {
	Serial string
	Slot   string
}

// KeyPurpose enumerates what a CryptoKey may be used for.
type KeyPurpose string

const (
	KeyPurposeSigning    KeyPurpose = "signing"
	KeyPurposeEncryption KeyPurpose = "encryption"
	KeyPurposeAuth       KeyPurpose = "authentication"
)

// CryptoKey is an issued key pair's metadata; private material never lives
// here. Private key material is never written into the projection.
type CryptoKey struct {
	common.BaseEntity
	OwnerPersonID *uuid.UUID // nil for CA keys with no individual owner
	Algorithm     pkicrypto.Algorithm
	Purposes      []KeyPurpose
	Fingerprint   string
	StorageKind   StorageKind
	Hardware      *HardwareLocation // non-nil only when StorageKind == StorageKindYubiKey
	Revoked       bool
	RevokedAt     *time.Time
}

// NewCryptoKey records freshly generated key metadata.
func NewCryptoKey(ownerPersonID *uuid.UUID, algo pkicrypto.Algorithm, purposes []KeyPurpose, fingerprint string, storageKind StorageKind) CryptoKey {
	return CryptoKey{
		BaseEntity:    common.NewBaseEntity(),
		OwnerPersonID: ownerPersonID,
		Algorithm:     algo,
		Purposes:      purposes,
		Fingerprint:   fingerprint,
		StorageKind:   storageKind,
	}
}

// Revoke marks the key revoked; fingerprint uniqueness only
// applies to active keys, so a revoked fingerprint may later be reused only
// by a brand-new key (never by reactivating this one).
func (k *CryptoKey) Revoke(at time.Time) {
	k.Revoked = true
	k.RevokedAt = &at
	k.Touch(at)
}

// CertType mirrors pkicrypto.CertType at the entity layer so this package
// does not need to import pkicrypto's signing internals beyond the type.
type CertType = pkicrypto.CertType

// CertStatus is the certificate lifecycle state.
type CertStatus string

const (
	CertStatusPending   CertStatus = "pending"
	CertStatusActive    CertStatus = "active"
	CertStatusRevoked   CertStatus = "revoked"
	CertStatusExpired   CertStatus = "expired"
	CertStatusSuspended CertStatus = "suspended"
)

// Certificate is the issued X.509 certificate's metadata and references.
type Certificate struct {
	common.BaseEntity
	SubjectDN    string
	IssuerDN     string
	CertType     CertType
	NotBefore    time.Time
	NotAfter     time.Time
	SANs         []string
	KeyUsage     []string
	Status       CertStatus
	SignerKeyID  uuid.UUID
	SubjectKeyID uuid.UUID
	DER          []byte
}

// NewCertificate records a freshly issued certificate.
func NewCertificate(subjectDN, issuerDN string, certType CertType, notBefore, notAfter time.Time, sans []string, keyUsage []string, signerKeyID, subjectKeyID uuid.UUID, der []byte) Certificate {
	return Certificate{
		BaseEntity:   common.NewBaseEntity(),
		SubjectDN:    subjectDN,
		IssuerDN:     issuerDN,
		CertType:     certType,
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		SANs:         sans,
		KeyUsage:     keyUsage,
		Status:       CertStatusActive,
		SignerKeyID:  signerKeyID,
		SubjectKeyID: subjectKeyID,
		DER:          der,
	}
}

// ExpiredAt reports whether the certificate is expired at instant t, using
// a half-open interval: NotAfter itself counts as expired.
func (c Certificate) ExpiredAt(t time.Time) bool {
	return !t.Before(c.NotAfter)
}

// Revoke transitions the certificate to revoked.
func (c *Certificate) Revoke(at time.Time) {
	c.Status = CertStatusRevoked
	c.Touch(at)
}

// DelegationStatus is the lifecycle of a Delegation.
type DelegationStatus string

const (
	DelegationStatusActive  DelegationStatus = "active"
	DelegationStatusRevoked DelegationStatus = "revoked"
	DelegationStatusExpired DelegationStatus = "expired"
)

// Delegation is a time-bounded grant of a permission subset from one person
// to another. ParentDelegationID is nil for a root-level grant
// bounded only by organizational role.
type Delegation struct {
	common.BaseEntity
	DelegatorPersonID  uuid.UUID
	DelegatePersonID   uuid.UUID
	Permissions        []string
	ParentDelegationID *uuid.UUID
	ExpiresAt          *time.Time
	Status             DelegationStatus
	RevokedReason      string
}

// NewDelegation creates an active Delegation.
func NewDelegation(delegator, delegate uuid.UUID, permissions []string, parent *uuid.UUID, expiresAt *time.Time) Delegation {
	return Delegation{
		BaseEntity:         common.NewBaseEntity(),
		DelegatorPersonID:  delegator,
		DelegatePersonID:   delegate,
		Permissions:        permissions,
		ParentDelegationID: parent,
		ExpiresAt:          expiresAt,
		Status:             DelegationStatusActive,
	}
}

// ActiveAt reports whether the delegation is in force at instant t.
func (d Delegation) ActiveAt(t time.Time) bool {
	if d.Status != DelegationStatusActive {
		return false
	}
	if d.ExpiresAt != nil && !t.Before(*d.ExpiresAt) {
		return false
	}
	return true
}

// Revoke marks the delegation revoked with a reason (direct revocation or
// cascade).
func (d *Delegation) Revoke(reason string, at time.Time) {
	d.Status = DelegationStatusRevoked
	d.RevokedReason = reason
	d.Touch(at)
}

// YubiKeyDevice is a registered hardware token, identified by its serial
// rather than a UUID: the serial is what the physical device reports and
// what every PIV operation is addressed by.
type YubiKeyDevice struct {
	Serial        string
	Firmware      string
	FormFactor    string
	OwnerPersonID *uuid.UUID
	RegisteredAt  time.Time
	Revoked       bool
}

// AssignTo hands the device to a person; a later AssignTo transfers it.
func (d *YubiKeyDevice) AssignTo(personID uuid.UUID) {
	d.OwnerPersonID = &personID
}

// TrustRelation enumerates the edge kinds used in the trust graph.
type TrustRelation string

const (
	RelationEmployedBy TrustRelation = "employed_by"
	RelationOwnedBy    TrustRelation = "owned_by"
	RelationSigns      TrustRelation = "signs"
	RelationAssignedTo TrustRelation = "assigned_to"
)

// TrustLink is a verified, witnessed edge between two entities in the trust
// graph. Evidence is either a signature witness (a fingerprint)
// or a domain event reference (an event ID), never both.
type TrustLink struct {
	SourceID uuid.UUID
	TargetID uuid.UUID
	Relation TrustRelation
	Evidence Evidence
}

// Evidence is the witness backing a TrustLink.
type Evidence struct {
	SignatureFingerprint string     // set when the edge is witnessed by a signature
	EventID              *uuid.UUID // set when the edge is witnessed by a domain event
}

// KeyReference is the published-language form of a CryptoKey.
type KeyReference struct {
	ID          uuid.UUID
	Fingerprint string
	Algorithm   pkicrypto.Algorithm
	StorageKind StorageKind
}

// Reference projects a CryptoKey to its published-language form.
func (k CryptoKey) Reference() KeyReference {
	return KeyReference{ID: k.GetID(), Fingerprint: k.Fingerprint, Algorithm: k.Algorithm, StorageKind: k.StorageKind}
}

// CertificateReference is the published-language form of a Certificate.
type CertificateReference struct {
	ID        uuid.UUID
	SubjectDN string
	CertType  CertType
	Status    CertStatus
}

// Reference projects a Certificate to its published-language form.
func (c Certificate) Reference() CertificateReference {
	return CertificateReference{ID: c.GetID(), SubjectDN: c.SubjectDN, CertType: c.CertType, Status: c.Status}
}

// TrustChainReference is the published-language form of a verified chain
// (a verified trust chain, exposed across context boundaries).
type TrustChainReference struct {
	Fingerprints []string
	VerifiedAt   time.Time
}

// PendingCRLArtifact is an intentionally unpopulated placeholder: CRL/OCSP
// publication is out of scope, but a future CRL generator needs a concrete
// projection slot to write to without the engine itself depending on
// OCSP/CRL networking.
type PendingCRLArtifact struct {
	IssuerCertID uuid.UUID
	GeneratedAt  time.Time
	DER          []byte
}
