package pkicrypto

import (
	"fmt"

	"github.com/nats-io/jwt/v2"
	"github.com/nats-io/nkeys"

	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/seed"
)

// NatsRole is the NKey role prefix for a NATS identity: operator, account, or user.
type NatsRole string

const (
	NatsRoleOperator NatsRole = "Operator"
	NatsRoleAccount  NatsRole = "Account"
	NatsRoleUser     NatsRole = "User"
)

func prefixByteFor(role NatsRole) (nkeys.PrefixByte, error) {
	switch role {
	case NatsRoleOperator:
		return nkeys.PrefixByteOperator, nil
	case NatsRoleAccount:
		return nkeys.PrefixByteAccount, nil
	case NatsRoleUser:
		return nkeys.PrefixByteUser, nil
	default:
		return 0, fmt.Errorf("unknown nats role: %s", role)
	}
}

// NKeyFromSeed deterministically builds a role-prefixed Ed25519 NATS NKey
// from a 32-byte seed.
func NKeyFromSeed(s seed.Seed, role NatsRole) (nkeys.KeyPair, error) {
	prefix, err := prefixByteFor(role)
	if err != nil {
		return nil, err
	}
	kp, err := nkeys.FromRawSeed(prefix, s[:])
	if err != nil {
		return nil, fmt.Errorf("build %s nkey: %w", role, err)
	}
	return kp, nil
}

// SignJWT signs arbitrary NATS JWT claims with the given signing NKey and
// returns the compact JWS serialization, header alg = ed25519-nkey (jwt/v2's
// only supported algorithm).
func SignJWT(claims jwt.Claims, signingKey nkeys.KeyPair) (string, error) {
	token, err := claims.Encode(signingKey)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return token, nil
}
