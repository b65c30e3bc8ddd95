package pkicrypto

import (
	"bytes"
	"crypto"
	"fmt"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"golang.org/x/crypto/ssh"

	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/seed"
)

// MarshalSSHPublicKey renders pub in OpenSSH authorized_keys format, one of
// the three end-entity key encodings this engine supports alongside X.509
// and OpenPGP.
func MarshalSSHPublicKey(pub crypto.PublicKey) ([]byte, error) {
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("convert to ssh public key: %w", err)
	}
	return ssh.MarshalAuthorizedKey(sshPub), nil
}

// OpenPGPPublicIdentity derives a person's OpenPGP identity (an EdDSA
// primary key with an encryption subkey) from their key seed and returns the
// armored public entity. Key material and signature timestamps both come
// from the seed's keystream and createdAt, so the same inputs always armor
// to the same bytes. The private halves stay re-derivable from the seed
// hierarchy and are discarded here: only the public block ever reaches the
// projection.
func OpenPGPPublicIdentity(name, email string, s seed.Seed, createdAt time.Time) ([]byte, error) {
	// The caller's seed also keys that person's X.509 key pair; a labeled
	// child keeps the OpenPGP keystream distinct from GenerateKeyPair's.
	pgpSeed, err := seed.DeriveChild(s, "openpgp")
	if err != nil {
		return nil, fmt.Errorf("derive openpgp seed: %w", err)
	}
	cfg := &packet.Config{
		Rand:      seededReader(pgpSeed),
		Time:      func() time.Time { return createdAt },
		Algorithm: packet.PubKeyAlgoEdDSA,
	}

	entity, err := openpgp.NewEntity(name, "", email, cfg)
	if err != nil {
		return nil, fmt.Errorf("derive openpgp identity: %w", err)
	}
	// Self-certifications are signed on the private serialization path; run
	// it into a discarded buffer before emitting the public block.
	var discard bytes.Buffer
	if err := entity.SerializePrivate(&discard, cfg); err != nil {
		return nil, fmt.Errorf("sign openpgp identity: %w", err)
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return nil, fmt.Errorf("open armor writer: %w", err)
	}
	if err := entity.Serialize(w); err != nil {
		return nil, fmt.Errorf("serialize openpgp public entity: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close armor writer: %w", err)
	}
	return buf.Bytes(), nil
}
