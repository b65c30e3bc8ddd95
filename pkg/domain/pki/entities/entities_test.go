package entities_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pki/entities"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pkicrypto"
)

// TestCertificate_ExpiredAtHalfOpenInterval is boundary
// behavior: a certificate whose not_after equals the verification instant
// is considered expired.
func TestCertificate_ExpiredAtHalfOpenInterval(t *testing.T) {
	notAfter := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cert := entities.NewCertificate("CN=leaf", "CN=intermediate", pkicrypto.CertTypeLeaf,
		notAfter.Add(-90*24*time.Hour), notAfter, []string{"leaf.example"}, nil, uuid.New(), uuid.New(), nil)

	require.True(t, cert.ExpiredAt(notAfter))
	require.False(t, cert.ExpiredAt(notAfter.Add(-time.Second)))
}

func TestDelegation_ActiveAtRespectsExpiryAndStatus(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	d := entities.NewDelegation(uuid.New(), uuid.New(), []string{"sign"}, nil, &expires)
	require.True(t, d.ActiveAt(time.Now()))
	require.False(t, d.ActiveAt(expires.Add(time.Minute)))

	d.Revoke("testing", time.Now())
	require.False(t, d.ActiveAt(time.Now()))
	require.Equal(t, entities.DelegationStatusRevoked, d.Status)
}

func TestCryptoKey_RevokeSetsTimestamp(t *testing.T) {
	k := entities.NewCryptoKey(nil, pkicrypto.AlgorithmEd25519, []entities.KeyPurpose{entities.KeyPurposeSigning}, "deadbeef", entities.StorageKindSoftware)
	require.False(t, k.Revoked)
	at := time.Now()
	k.Revoke(at)
	require.True(t, k.Revoked)
	require.Equal(t, at, *k.RevokedAt)
}
