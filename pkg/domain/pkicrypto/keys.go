// Package pkicrypto implements pure cryptographic primitives. Nothing in
// this package performs I/O — every operation is a function from inputs to
// outputs: deterministic keygen, CSR building, certificate issuance, NKey
// construction, and JWT signing.
package pkicrypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/chacha20"

	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/seed"
)

// Algorithm enumerates the supported key algorithms.
type Algorithm string

const (
	AlgorithmEd25519   Algorithm = "Ed25519"
	AlgorithmECDSAP256 Algorithm = "ECDSA-P256"
	AlgorithmECDSAP384 Algorithm = "ECDSA-P384"
	AlgorithmRSA2048   Algorithm = "RSA2048"
	AlgorithmRSA4096   Algorithm = "RSA4096"
)

// KeyPair is the output of GenerateKeyPair: a signer plus its public key.
type KeyPair struct {
	Algorithm Algorithm
	Private   crypto.Signer
	Public    crypto.PublicKey
}

// GenerateKeyPair deterministically derives a key pair from a 32-byte seed.
// The same (algo, seed) always produces byte-identical keys.
//
// Ed25519 is generated directly from the seed (its native construction).
// ECDSA and RSA need a full randomness *stream*, not just 32 bytes of
// entropy, so for those algorithms the seed keys a ChaCha20 keystream and
// the key material is derived off that stream directly: a scalar for ECDSA,
// a prime search for RSA.
func GenerateKeyPair(algo Algorithm, s seed.Seed) (KeyPair, error) {
	switch algo {
	case AlgorithmEd25519:
		priv := ed25519.NewKeyFromSeed(s[:])
		return KeyPair{Algorithm: algo, Private: priv, Public: priv.Public()}, nil

	case AlgorithmECDSAP256:
		priv := ecdsaKeyFromStream(elliptic.P256(), s)
		return KeyPair{Algorithm: algo, Private: priv, Public: &priv.PublicKey}, nil

	case AlgorithmECDSAP384:
		priv := ecdsaKeyFromStream(elliptic.P384(), s)
		return KeyPair{Algorithm: algo, Private: priv, Public: &priv.PublicKey}, nil

	case AlgorithmRSA2048:
		priv, err := rsaKeyFromStream(s, 2048)
		if err != nil {
			return KeyPair{}, fmt.Errorf("generate rsa2048: %w", err)
		}
		return KeyPair{Algorithm: algo, Private: priv, Public: &priv.PublicKey}, nil

	case AlgorithmRSA4096:
		priv, err := rsaKeyFromStream(s, 4096)
		if err != nil {
			return KeyPair{}, fmt.Errorf("generate rsa4096: %w", err)
		}
		return KeyPair{Algorithm: algo, Private: priv, Public: &priv.PublicKey}, nil

	default:
		return KeyPair{}, fmt.Errorf("unsupported algorithm: %s", algo)
	}
}

// ecdsaKeyFromStream derives the private scalar straight off the seed's
// keystream rather than going through ecdsa.GenerateKey, whose consumption
// of the reader is deliberately randomized by the standard library and so
// cannot reproduce a key from a fixed seed. Oversampling the curve order by
// 64 bits before reducing mod N-1 keeps the scalar bias negligible.
func ecdsaKeyFromStream(curve elliptic.Curve, s seed.Seed) *ecdsa.PrivateKey {
	params := curve.Params()
	buf := make([]byte, (params.N.BitLen()+7)/8+8)
	if _, err := io.ReadFull(seededReader(s), buf); err != nil {
		panic(err) // the keystream never runs dry
	}

	one := big.NewInt(1)
	k := new(big.Int).SetBytes(buf)
	k.Mod(k, new(big.Int).Sub(params.N, one))
	k.Add(k, one)

	priv := &ecdsa.PrivateKey{D: k}
	priv.PublicKey.Curve = curve
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(k.Bytes())
	return priv
}

// rsaKeyFromStream searches the seed's keystream for two primes and builds
// the RSA key by hand, for the same reason ecdsaKeyFromStream exists:
// rsa.GenerateKey randomizes its reads and cannot reproduce a key from a
// fixed seed. big.Int.ProbablyPrime's witness selection is itself a pure
// function of the candidate, so the whole search replays identically.
func rsaKeyFromStream(s seed.Seed, bits int) (*rsa.PrivateKey, error) {
	stream := seededReader(s)
	one := big.NewInt(1)
	e := big.NewInt(65537)

	for {
		p, err := primeFromStream(stream, bits/2)
		if err != nil {
			return nil, err
		}
		q, err := primeFromStream(stream, bits/2)
		if err != nil {
			return nil, err
		}
		if p.Cmp(q) == 0 {
			continue
		}

		n := new(big.Int).Mul(p, q)
		if n.BitLen() != bits {
			continue
		}

		phi := new(big.Int).Mul(new(big.Int).Sub(p, one), new(big.Int).Sub(q, one))
		d := new(big.Int).ModInverse(e, phi)
		if d == nil {
			continue
		}

		priv := &rsa.PrivateKey{
			PublicKey: rsa.PublicKey{N: n, E: int(e.Int64())},
			D:         d,
			Primes:    []*big.Int{p, q},
		}
		priv.Precompute()
		return priv, nil
	}
}

// primeFromStream draws fixed-width odd candidates with the top two bits set
// (so p*q always reaches the full modulus width) until one passes
// ProbablyPrime's Baillie-PSW plus Miller-Rabin rounds.
func primeFromStream(stream io.Reader, bits int) (*big.Int, error) {
	buf := make([]byte, bits/8)
	for {
		if _, err := io.ReadFull(stream, buf); err != nil {
			return nil, fmt.Errorf("read prime candidate: %w", err)
		}
		buf[0] |= 0xc0
		buf[len(buf)-1] |= 1
		cand := new(big.Int).SetBytes(buf)
		if cand.ProbablyPrime(20) {
			return cand, nil
		}
	}
}

// seededReader returns a deterministic io.Reader keyed by s, used only to
// feed key-generation algorithms that need a random stream rather than a
// fixed-size seed. The nonce is fixed at zero: the seed itself is never
// reused across two different key-generation calls (each path in the seed
// hierarchy is unique), so key/nonce reuse within ChaCha20 is not a concern
// here.
func seededReader(s seed.Seed) io.Reader {
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(s[:], nonce[:])
	if err != nil {
		panic(err) // only fails on malformed key/nonce length, both fixed above
	}
	return &chachaReader{cipher: c}
}

type chachaReader struct {
	cipher *chacha20.Cipher
}

func (r *chachaReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	r.cipher.XORKeyStream(p, p)
	return len(p), nil
}

// Sign produces a signature over message using the correct convention for
// the key pair's algorithm: Ed25519 signs the message directly (it hashes
// internally), ECDSA and RSA sign a SHA-256 digest of the message. ECDSA
// signing consumes nonce entropy, so signatures are not byte-stable across
// calls; verification, not signature bytes, is the stable surface here.
func Sign(kp KeyPair, message []byte) ([]byte, error) {
	if kp.Algorithm == AlgorithmEd25519 {
		return kp.Private.Sign(nil, message, crypto.Hash(0))
	}
	digest := sha256.Sum256(message)
	return kp.Private.Sign(rand.Reader, digest[:], crypto.SHA256)
}

// Fingerprint returns the 64-character lowercase hex SHA-256 of a public
// key's DER (SubjectPublicKeyInfo) encoding.
func Fingerprint(pub crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:]), nil
}
