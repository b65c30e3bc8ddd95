// Package hardware implements the abstract PIV-slot hardware token port. It
// is the only permitted path to a hardware-resident private key — every
// operation that touches key material on a device goes through the
// TokenProvider interface.
package hardware

import (
	"context"
	"crypto"
	"time"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pkicrypto"
)

// SlotTag is one of the four PIV slots this engine provisions.
type SlotTag string

const (
	SlotAuthentication SlotTag = "9A"
	SlotSignature      SlotTag = "9C"
	SlotKeyManagement  SlotTag = "9D"
	SlotCardAuth       SlotTag = "9E"
)

// PinPolicy mirrors the PIV pin-policy byte: how often the PIN is required
// before an operation that uses the slot's key.
type PinPolicy string

const (
	PinPolicyNever  PinPolicy = "never"
	PinPolicyOnce   PinPolicy = "once"
	PinPolicyAlways PinPolicy = "always"
)

// TouchPolicy mirrors the PIV touch-policy byte.
type TouchPolicy string

const (
	TouchPolicyNever  TouchPolicy = "never"
	TouchPolicyAlways TouchPolicy = "always"
	TouchPolicyCached TouchPolicy = "cached"
)

// SlotState is the two-state machine for a PivSlot:
// Empty -> (GenerateInSlot|ImportCertificate) -> Occupied -> (ClearSlot) -> Empty,
// and Occupied -> (ResetPIV of device) -> Empty. No other transitions exist.
type SlotState string

const (
	SlotEmpty    SlotState = "empty"
	SlotOccupied SlotState = "occupied"
)

// Device describes one enumerated hardware token.
type Device struct {
	Serial            string
	Firmware          string
	FormFactor        string
	SlotsOccupiedMask uint8
}

// Slot is the current state of one PIV slot on one device.
type Slot struct {
	Serial        string
	Tag           SlotTag
	State         SlotState
	OccupiedKeyID string // empty when State == SlotEmpty
	Purpose       string
	PinPolicy     PinPolicy
	TouchPolicy   TouchPolicy
}

// AttestationChain is the vendor-signed proof that a key was generated on,
// and never left, the device's secure element.
type AttestationChain struct {
	Serial      string
	Tag         SlotTag
	Certificate []byte // DER, signed by the device's attestation intermediate
	VendorChain [][]byte
	AttestedAt  time.Time
}

// PinVerifyResult is the outcome of VerifyPIN: success, or the number of
// retries remaining before the device's PIN locks (until UnblockPIN or
// ResetPIV clears the lock).
type PinVerifyResult struct {
	OK               bool
	RetriesRemaining int
	Locked           bool
}

// TokenProvider is the polymorphic hardware capability port. Two
// implementations are required: a real PC/SC-backed one
// (pkg/infra/hardware/pcsc) and an in-memory mock for tests
// (pkg/infra/hardware/mock) that enforces identical pre-conditions.
// GenerateInSlot hands back only the public half; the private key never
// leaves the device, and signing goes through Sign with a PIN.
type TokenProvider interface {
	ListDevices(ctx context.Context) ([]Device, error)
	GenerateInSlot(ctx context.Context, serial string, tag SlotTag, algo pkicrypto.Algorithm, pinPolicy PinPolicy, touchPolicy TouchPolicy) (crypto.PublicKey, error)
	ImportCertificate(ctx context.Context, serial string, tag SlotTag, certDER []byte, pin string) error
	Sign(ctx context.Context, serial string, tag SlotTag, message []byte, pin string) ([]byte, error)
	VerifyPIN(ctx context.Context, serial string, pin string) (PinVerifyResult, error)
	ChangePIN(ctx context.Context, serial string, oldPIN string, newPIN string) error
	ChangePUK(ctx context.Context, serial string, oldPUK string, newPUK string) error
	UnblockPIN(ctx context.Context, serial string, puk string, newPIN string) error
	ResetPIV(ctx context.Context, serial string) error
	ClearSlot(ctx context.Context, serial string, tag SlotTag) error
	Attest(ctx context.Context, serial string, tag SlotTag) (AttestationChain, error)
}

// DefaultOperationTimeout bounds how long a single hardware operation may
// run before it is reported as a timeout with no event emitted.
const DefaultOperationTimeout = 30 * time.Second

// WithTimeout wraps ctx with DefaultOperationTimeout unless ctx already
// carries an earlier deadline.
func WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < DefaultOperationTimeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultOperationTimeout)
}

// CheckTimeout translates a context cancellation into the domain's
// HardwareTimeout rejection; any other error passes through unchanged.
func CheckTimeout(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return common.NewErrHardwareTimeout(op)
	}
	return err
}
