package trust_test

import (
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pkicrypto"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/seed"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/trust"
)

func issueTestChain(t *testing.T, now time.Time, intermediateNotAfter time.Time) (*x509.Certificate, *x509.Certificate, *x509.Certificate) {
	t.Helper()

	rootKP, err := pkicrypto.GenerateKeyPair(pkicrypto.AlgorithmEd25519, derivedSeed(t, "root"))
	require.NoError(t, err)
	rootCert, _, err := pkicrypto.SignCert(pkicrypto.Template{
		CertType:  pkicrypto.CertTypeRoot,
		Subject:   pkixName("Test Root CA"),
		NotBefore: now.Add(-24 * time.Hour),
	}, rootKP.Public, rootKP.Private, nil)
	require.NoError(t, err)

	interKP, err := pkicrypto.GenerateKeyPair(pkicrypto.AlgorithmEd25519, derivedSeed(t, "intermediate"))
	require.NoError(t, err)
	interTemplate := pkicrypto.Template{
		CertType:  pkicrypto.CertTypeIntermediate,
		Subject:   pkixName("Test Intermediate CA"),
		NotBefore: now.Add(-12 * time.Hour),
	}
	if !intermediateNotAfter.IsZero() {
		interTemplate.Validity = intermediateNotAfter.Sub(interTemplate.NotBefore)
	}
	interCert, _, err := pkicrypto.SignCert(interTemplate, interKP.Public, rootKP.Private, rootCert)
	require.NoError(t, err)

	leafKP, err := pkicrypto.GenerateKeyPair(pkicrypto.AlgorithmEd25519, derivedSeed(t, "leaf"))
	require.NoError(t, err)
	leafCert, _, err := pkicrypto.SignCert(pkicrypto.Template{
		CertType:  pkicrypto.CertTypeLeaf,
		Subject:   pkixName("alice@example.org"),
		SANs:      []string{"alice.example.org"},
		NotBefore: now.Add(-1 * time.Hour),
	}, leafKP.Public, interKP.Private, interCert)
	require.NoError(t, err)

	return leafCert, interCert, rootCert
}

func derivedSeed(t *testing.T, label string) seed.Seed {
	t.Helper()
	master, err := seed.DeriveMasterSeed("correct horse battery staple for chain tests", fixedOrgID, testKdfParams())
	require.NoError(t, err)
	s, err := seed.DerivePath(master, label)
	require.NoError(t, err)
	return s
}

func TestVerifyChain_EmptyChain(t *testing.T) {
	_, err := trust.VerifyChain(nil, nil, time.Now())
	require.Error(t, err)
	kind, ok := rejectionKind(err)
	require.True(t, ok)
	require.Equal(t, "EmptyChain", kind)
}

func TestVerifyChain_Success(t *testing.T) {
	now := time.Now().UTC()
	leaf, inter, root := issueTestChain(t, now, time.Time{})

	rootFP, err := pkicrypto.Fingerprint(root.PublicKey)
	require.NoError(t, err)

	verified, err := trust.VerifyChain([]*x509.Certificate{leaf, inter, root}, map[string]*x509.Certificate{rootFP: root}, now)
	require.NoError(t, err)
	require.Len(t, verified.Fingerprints, 3)
	require.Len(t, verified.Links, 2)
}

func TestVerifyChain_ExpiredIntermediate(t *testing.T) {
	now := time.Now().UTC()
	leaf, inter, root := issueTestChain(t, now, now.Add(-1*24*time.Hour))

	rootFP, err := pkicrypto.Fingerprint(root.PublicKey)
	require.NoError(t, err)

	_, err = trust.VerifyChain([]*x509.Certificate{leaf, inter, root}, map[string]*x509.Certificate{rootFP: root}, now)
	require.Error(t, err)
	kind, ok := rejectionKind(err)
	require.True(t, ok)
	require.Equal(t, "Expired", kind)
}

func TestVerifyChain_UntrustedRoot(t *testing.T) {
	now := time.Now().UTC()
	leaf, inter, root := issueTestChain(t, now, time.Time{})

	_, err := trust.VerifyChain([]*x509.Certificate{leaf, inter, root}, map[string]*x509.Certificate{}, now)
	require.Error(t, err)
	kind, ok := rejectionKind(err)
	require.True(t, ok)
	require.Equal(t, "UntrustedRoot", kind)
}
