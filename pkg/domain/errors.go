package common

import "fmt"

// Rejection is returned by the aggregate instead of an emitted event vector.
// It is a typed error struct (Kind plus message) so callers can branch on
// rejection category without string-matching error text.
type Rejection struct {
	Kind    string
	message string
}

func (r *Rejection) Error() string {
	return r.message
}

func newRejection(kind, message string) error {
	return &Rejection{Kind: kind, message: message}
}

// Input / invariant errors
func NewErrInvariantViolation(which string) error {
	return newRejection("InvariantViolation", fmt.Sprintf("invariant violated: %s", which))
}

func NewErrNotFound(entity string, id fmt.Stringer) error {
	return newRejection("NotFound", fmt.Sprintf("%s not found: %s", entity, id))
}

func NewErrStateInapplicable(current, requested string) error {
	return newRejection("StateInapplicable", fmt.Sprintf("cannot go from %s to %s", current, requested))
}

func NewErrDuplicateAggregate(entity, discriminant string) error {
	return newRejection("DuplicateAggregate", fmt.Sprintf("%s already exists for %s", entity, discriminant))
}

func NewErrInsufficientDelegatorPermissions() error {
	return newRejection("InsufficientDelegatorPermissions", "delegator lacks the requested permissions")
}

// Chain errors, each identifying the offending certificate fingerprint.
func NewErrChainInvalid(reason, fingerprint string) error {
	return newRejection("ChainInvalid", fmt.Sprintf("%s: %s", reason, fingerprint))
}

// NewErrEmptyChain is returned by chain verification given a zero-length chain.
func NewErrEmptyChain() error {
	return newRejection("EmptyChain", "certificate chain is empty")
}

// NewErrExpired identifies the certificate whose NotAfter the verification
// instant has reached or passed (the interval is half-open: NotAfter itself
// counts as expired).
func NewErrExpired(fingerprint string, expiredAt fmt.Stringer) error {
	return newRejection("Expired", fmt.Sprintf("certificate expired at %s: %s", expiredAt, fingerprint))
}

// NewErrNotYetValid identifies a certificate whose NotBefore is still ahead
// of the verification instant.
func NewErrNotYetValid(fingerprint string) error {
	return newRejection("NotYetValid", fmt.Sprintf("certificate not yet valid: %s", fingerprint))
}

// NewErrInvalidSignature identifies a certificate whose signature does not
// verify against its claimed issuer's public key.
func NewErrInvalidSignature(fingerprint string) error {
	return newRejection("InvalidSignature", fmt.Sprintf("invalid signature: %s", fingerprint))
}

// NewErrIssuerMismatch identifies a certificate whose issuer DN does not
// equal its parent's subject DN.
func NewErrIssuerMismatch(fingerprint string) error {
	return newRejection("IssuerMismatch", fmt.Sprintf("issuer does not match parent subject: %s", fingerprint))
}

// NewErrRootNotSelfSigned is returned when the final element of a chain is
// not self-signed.
func NewErrRootNotSelfSigned(fingerprint string) error {
	return newRejection("RootNotSelfSigned", fmt.Sprintf("root certificate is not self-signed: %s", fingerprint))
}

// NewErrUntrustedRoot is returned when the final element of a chain,
// although self-signed, is absent from the trusted-roots set.
func NewErrUntrustedRoot(fingerprint string) error {
	return newRejection("UntrustedRoot", fmt.Sprintf("root is not in the trusted set: %s", fingerprint))
}

// NewErrUnsupportedAlgorithm identifies a certificate signed with an OID
// outside {Ed25519, ECDSA-P256, ECDSA-P384, RSA-SHA256, RSA-SHA512}.
func NewErrUnsupportedAlgorithm(fingerprint string) error {
	return newRejection("UnsupportedAlgorithm", fmt.Sprintf("unsupported signature algorithm: %s", fingerprint))
}

// Delegation errors
func NewErrSelfDelegationNotAllowed() error {
	return newRejection("SelfDelegationNotAllowed", "delegator and delegate must differ")
}

func NewErrCircularDelegationDetected() error {
	return newRejection("CircularDelegationDetected", "delegation would introduce a cycle")
}

func NewErrDelegateNotFound(id fmt.Stringer) error {
	return newRejection("DelegateNotFound", fmt.Sprintf("delegate not found: %s", id))
}

func NewErrUnauthorizedRevocation() error {
	return newRejection("UnauthorizedRevocation", "revoker is neither the delegator nor root")
}

// Hardware errors
func NewErrDeviceNotFound(serial string) error {
	return newRejection("DeviceNotFound", fmt.Sprintf("device not found: %s", serial))
}

func NewErrPinVerificationFailed(retriesRemaining int) error {
	return newRejection("PinVerificationFailed", fmt.Sprintf("pin verification failed, %d retries remaining", retriesRemaining))
}

func NewErrPinLocked() error {
	return newRejection("PinLocked", "pin retries exhausted")
}

func NewErrSlotOccupied(serial, slot string) error {
	return newRejection("SlotOccupied", fmt.Sprintf("slot %s/%s is occupied", serial, slot))
}

func NewErrHardwareTimeout(op string) error {
	return newRejection("HardwareTimeout", fmt.Sprintf("hardware operation timed out: %s", op))
}

// Persistence errors
func NewErrProjectionWriteFailed(reason string) error {
	return newRejection("ProjectionWriteFailed", reason)
}

func NewErrManifestChecksumMismatch(path string) error {
	return newRejection("ManifestChecksumMismatch", path)
}

func NewErrProjectionLocked(path string) error {
	return newRejection("ProjectionLocked", path)
}

// Input errors
func NewErrInvalidInput(message string) error {
	return newRejection("InvalidInput", message)
}

// RejectionKind extracts the typed kind from an error for callers that branch
// on rejection category instead of matching error strings.
func RejectionKind(err error) (string, bool) {
	r, ok := err.(*Rejection)
	if !ok {
		return "", false
	}
	return r.Kind, true
}

// Is reports whether err is a Rejection of the given kind.
func Is(err error, kind string) bool {
	k, ok := RejectionKind(err)
	return ok && k == kind
}
