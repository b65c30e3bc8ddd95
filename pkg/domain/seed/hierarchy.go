// Package seed implements the deterministic key-derivation hierarchy: one
// passphrase plus an organization salt produces a 256-bit master seed, and
// the master seed fans out into an unbounded, labeled tree of 256-bit child
// seeds via recursive HKDF.
package seed

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	// SeedLength is the size in bytes of every master and child seed (256 bits).
	SeedLength = 32

	// MinPassphraseEntropyBits is the rough lower bound this engine accepts.
	// DeriveMasterSeed rejects a passphrase below this threshold with
	// ErrWeakPassphrase before any KDF work is spent on it.
	MinPassphraseEntropyBits = 60
)

// KdfParams controls the Argon2id master-seed derivation. Defaults satisfy
// memory >= 1 GiB, iterations >= 10, parallelism 4.
type KdfParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultKdfParams returns the production floor for master-seed derivation.
func DefaultKdfParams() KdfParams {
	return KdfParams{
		MemoryKiB:   1 << 20, // 1 GiB
		Iterations:  10,
		Parallelism: 4,
	}
}

// ErrWeakPassphrase is returned when the operator-supplied passphrase is
// estimated to carry too little entropy to safely seed every key in the
// organization.
type ErrWeakPassphrase struct {
	EstimatedBits float64
}

func (e *ErrWeakPassphrase) Error() string {
	return fmt.Sprintf("passphrase entropy estimate %.1f bits is below the %d bit floor", e.EstimatedBits, MinPassphraseEntropyBits)
}

// ErrKdfParameterBudget is returned when the configured Argon2id parameters
// exceed what this host can service (e.g. a constrained air-gapped machine).
type ErrKdfParameterBudget struct {
	Reason string
}

func (e *ErrKdfParameterBudget) Error() string {
	return fmt.Sprintf("kdf parameter budget exceeded: %s", e.Reason)
}

// Seed is a derived 256-bit secret. It is never logged and callers are
// expected to zero it via Zero once consumed by a key constructor.
type Seed [SeedLength]byte

// Zero overwrites the seed in place. Call this as soon as a seed has been
// consumed by a key constructor; do not retain seeds beyond the command that
// derived them.
func (s *Seed) Zero() {
	for i := range s {
		s[i] = 0
	}
}

// Equal performs a constant-time comparison, used only by tests asserting
// determinism — never by any authorization decision.
func (s Seed) Equal(other Seed) bool {
	return subtle.ConstantTimeCompare(s[:], other[:]) == 1
}

// MasterSeedSalt builds the Argon2id salt for an organization.
func MasterSeedSalt(orgID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("cim-keys-v1-organization-%s", orgID.String()))
}

// DeriveMasterSeed runs Argon2id over the passphrase with the organization's
// salt. Same (passphrase, orgID) always yields the same seed. Params are
// taken as given: the production floor (DefaultKdfParams) is enforced where
// the engine is configured, not here, so tests and constrained hosts can
// derive with cheaper parameters deliberately. Zero-valued parameters are
// unusable and rejected outright.
func DeriveMasterSeed(passphrase string, orgID uuid.UUID, params KdfParams) (Seed, error) {
	if params.MemoryKiB == 0 {
		return Seed{}, &ErrKdfParameterBudget{Reason: "memory must be positive"}
	}
	if params.Iterations == 0 {
		return Seed{}, &ErrKdfParameterBudget{Reason: "iterations must be positive"}
	}
	if params.Parallelism == 0 {
		return Seed{}, &ErrKdfParameterBudget{Reason: "parallelism must be positive"}
	}
	if bits := estimateEntropyBits(passphrase); bits < MinPassphraseEntropyBits {
		return Seed{}, &ErrWeakPassphrase{EstimatedBits: bits}
	}

	salt := MasterSeedSalt(orgID)
	out := argon2.IDKey([]byte(passphrase), salt, params.Iterations, params.MemoryKiB, params.Parallelism, SeedLength)

	var s Seed
	copy(s[:], out)
	return s, nil
}

// DeriveChild derives the child seed at the given slash-separated label path
// (e.g. "root-ca/intermediate-engineering/nats-server-prod-01") using the
// parent seed as HKDF-SHA256 input key material and the path segment as info.
// Discovering a child does not reveal its parent: HKDF's extract step is
// one-way.
func DeriveChild(parent Seed, label string) (Seed, error) {
	if label == "" {
		return Seed{}, fmt.Errorf("derive child: empty label")
	}

	r := hkdf.New(sha256.New, parent[:], nil, []byte(label))
	var out Seed
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return Seed{}, fmt.Errorf("derive child %q: %w", label, err)
	}
	return out, nil
}

// DerivePath walks a full slash-separated path from the master seed,
// recursively deriving one HKDF level per segment.
func DerivePath(master Seed, path string) (Seed, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	current := master
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		next, err := DeriveChild(current, seg)
		if err != nil {
			return Seed{}, err
		}
		current = next
	}
	return current, nil
}

// estimateEntropyBits is a conservative Shannon-style estimate over the
// passphrase's observed character classes and length; it is intentionally
// simple — this engine errs toward rejecting borderline passphrases rather
// than modeling a full dictionary-attack cost function.
func estimateEntropyBits(passphrase string) float64 {
	if passphrase == "" {
		return 0
	}

	var hasLower, hasUpper, hasDigit, hasSpace, hasOther bool
	for _, r := range passphrase {
		switch {
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case r == ' ':
			hasSpace = true
		default:
			hasOther = true
		}
	}

	poolSize := 0.0
	if hasLower {
		poolSize += 26
	}
	if hasUpper {
		poolSize += 26
	}
	if hasDigit {
		poolSize += 10
	}
	if hasSpace {
		poolSize += 1
	}
	if hasOther {
		poolSize += 32
	}
	if poolSize == 0 {
		return 0
	}

	bitsPerChar := math.Log2(poolSize)
	return bitsPerChar * float64(len([]rune(passphrase)))
}
