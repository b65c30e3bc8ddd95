package pkicrypto_test

import (
	"crypto/ed25519"
	"crypto/x509/pkix"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pkicrypto"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/seed"
)

var testOrgID = uuid.MustParse("11111111-1111-1111-1111-111111111111")

// testKdfParams keeps this package's tests fast: the production cost of
// seed.DefaultKdfParams() is not re-paid here on every key-generation test;
// the floor itself is enforced by the engine config's Validate and is
// covered there.
func testKdfParams() seed.KdfParams {
	return seed.KdfParams{MemoryKiB: 1024, Iterations: 10, Parallelism: 4}
}

func testSeed(t *testing.T, label string) seed.Seed {
	t.Helper()
	master, err := seed.DeriveMasterSeed("correct horse battery staple zebra", testOrgID, testKdfParams())
	require.NoError(t, err)
	child, err := seed.DeriveChild(master, label)
	require.NoError(t, err)
	return child
}

func TestGenerateKeyPair_DeterministicAcrossAlgorithms(t *testing.T) {
	for _, algo := range []pkicrypto.Algorithm{
		pkicrypto.AlgorithmEd25519,
		pkicrypto.AlgorithmECDSAP256,
		pkicrypto.AlgorithmECDSAP384,
	} {
		algo := algo
		t.Run(string(algo), func(t *testing.T) {
			s := testSeed(t, "root-ca")

			kp1, err := pkicrypto.GenerateKeyPair(algo, s)
			require.NoError(t, err)
			kp2, err := pkicrypto.GenerateKeyPair(algo, s)
			require.NoError(t, err)

			fp1, err := pkicrypto.Fingerprint(kp1.Public)
			require.NoError(t, err)
			fp2, err := pkicrypto.Fingerprint(kp2.Public)
			require.NoError(t, err)
			require.Equal(t, fp1, fp2)
			require.Len(t, fp1, 64)
		})
	}
}

func TestGenerateKeyPair_DifferentSeedsDiffer(t *testing.T) {
	kp1, err := pkicrypto.GenerateKeyPair(pkicrypto.AlgorithmEd25519, testSeed(t, "root-ca"))
	require.NoError(t, err)
	kp2, err := pkicrypto.GenerateKeyPair(pkicrypto.AlgorithmEd25519, testSeed(t, "intermediate-ca"))
	require.NoError(t, err)

	fp1, err := pkicrypto.Fingerprint(kp1.Public)
	require.NoError(t, err)
	fp2, err := pkicrypto.Fingerprint(kp2.Public)
	require.NoError(t, err)
	require.NotEqual(t, fp1, fp2)
}

func TestGenerateKeyPair_UnsupportedAlgorithmErrors(t *testing.T) {
	_, err := pkicrypto.GenerateKeyPair(pkicrypto.Algorithm("DSA"), testSeed(t, "root-ca"))
	require.Error(t, err)
}

func TestSign_Ed25519VerifiesWithStandardLibrary(t *testing.T) {
	kp, err := pkicrypto.GenerateKeyPair(pkicrypto.AlgorithmEd25519, testSeed(t, "person"))
	require.NoError(t, err)

	sig, err := pkicrypto.Sign(kp, []byte("bootstrap organization"))
	require.NoError(t, err)

	pub := kp.Public.(ed25519.PublicKey)
	require.True(t, ed25519.Verify(pub, []byte("bootstrap organization"), sig))
}

func TestSignCert_RootIsSelfSignedAndCA(t *testing.T) {
	kp, err := pkicrypto.GenerateKeyPair(pkicrypto.AlgorithmEd25519, testSeed(t, "root-ca"))
	require.NoError(t, err)

	notBefore := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cert, der, err := pkicrypto.SignCert(pkicrypto.Template{
		CertType:  pkicrypto.CertTypeRoot,
		Subject:   pkix.Name{CommonName: "Acme Root CA", Organization: []string{"Acme"}},
		NotBefore: notBefore,
	}, kp.Public, kp.Private, nil)
	require.NoError(t, err)
	require.NotEmpty(t, der)
	require.True(t, cert.IsCA)
	require.Equal(t, 1, cert.MaxPathLen)
	require.Equal(t, notBefore.Add(pkicrypto.RootValidity), cert.NotAfter)

	require.NoError(t, pkicrypto.VerifyCertSignature(cert, kp.Public))
}

func TestSignCert_IntermediateChainsToRoot(t *testing.T) {
	rootKP, err := pkicrypto.GenerateKeyPair(pkicrypto.AlgorithmEd25519, testSeed(t, "root-ca"))
	require.NoError(t, err)
	notBefore := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rootCert, _, err := pkicrypto.SignCert(pkicrypto.Template{
		CertType:  pkicrypto.CertTypeRoot,
		Subject:   pkix.Name{CommonName: "Acme Root CA"},
		NotBefore: notBefore,
	}, rootKP.Public, rootKP.Private, nil)
	require.NoError(t, err)

	interKP, err := pkicrypto.GenerateKeyPair(pkicrypto.AlgorithmEd25519, testSeed(t, "intermediate-ca"))
	require.NoError(t, err)
	interCert, _, err := pkicrypto.SignCert(pkicrypto.Template{
		CertType:  pkicrypto.CertTypeIntermediate,
		Subject:   pkix.Name{CommonName: "Engineering Intermediate CA"},
		NotBefore: notBefore,
	}, interKP.Public, rootKP.Private, rootCert)
	require.NoError(t, err)

	require.True(t, interCert.IsCA)
	require.Equal(t, 0, interCert.MaxPathLen)
	require.NoError(t, pkicrypto.VerifyCertSignature(interCert, rootKP.Public))
}

func TestSignCert_LeafRequiresSAN(t *testing.T) {
	kp, err := pkicrypto.GenerateKeyPair(pkicrypto.AlgorithmEd25519, testSeed(t, "person"))
	require.NoError(t, err)

	_, _, err = pkicrypto.SignCert(pkicrypto.Template{
		CertType:  pkicrypto.CertTypeLeaf,
		Subject:   pkix.Name{CommonName: "Jane Doe"},
		NotBefore: time.Now().UTC(),
	}, kp.Public, kp.Private, nil)
	require.Error(t, err)
}

func TestSignCert_SameInputsProduceByteIdenticalSerial(t *testing.T) {
	kp, err := pkicrypto.GenerateKeyPair(pkicrypto.AlgorithmEd25519, testSeed(t, "root-ca"))
	require.NoError(t, err)
	notBefore := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cert1, der1, err := pkicrypto.SignCert(pkicrypto.Template{
		CertType:  pkicrypto.CertTypeRoot,
		Subject:   pkix.Name{CommonName: "Acme Root CA"},
		NotBefore: notBefore,
	}, kp.Public, kp.Private, nil)
	require.NoError(t, err)

	cert2, der2, err := pkicrypto.SignCert(pkicrypto.Template{
		CertType:  pkicrypto.CertTypeRoot,
		Subject:   pkix.Name{CommonName: "Acme Root CA"},
		NotBefore: notBefore,
	}, kp.Public, kp.Private, nil)
	require.NoError(t, err)

	require.Equal(t, cert1.SerialNumber, cert2.SerialNumber)
	require.Equal(t, der1, der2)
}

// TestSignCert_ECDSAIssuerProducesByteIdenticalDER pins down the signature
// nonce: ECDSA signing draws randomness, so without issuer-keyed entropy
// re-running the same issuance would emit a different DER each run even
// though the key pair and serial are already deterministic.
func TestSignCert_ECDSAIssuerProducesByteIdenticalDER(t *testing.T) {
	kp, err := pkicrypto.GenerateKeyPair(pkicrypto.AlgorithmECDSAP256, testSeed(t, "root-ca"))
	require.NoError(t, err)
	notBefore := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	template := pkicrypto.Template{
		CertType:  pkicrypto.CertTypeRoot,
		Subject:   pkix.Name{CommonName: "Acme Root CA"},
		NotBefore: notBefore,
	}
	_, der1, err := pkicrypto.SignCert(template, kp.Public, kp.Private, nil)
	require.NoError(t, err)
	_, der2, err := pkicrypto.SignCert(template, kp.Public, kp.Private, nil)
	require.NoError(t, err)

	require.Equal(t, der1, der2)
}

func TestNKeyFromSeed_RoleDeterminesPrefixAndIsDeterministic(t *testing.T) {
	s := testSeed(t, "nats-operator")

	kp1, err := pkicrypto.NKeyFromSeed(s, pkicrypto.NatsRoleOperator)
	require.NoError(t, err)
	pub1, err := kp1.PublicKey()
	require.NoError(t, err)
	require.Equal(t, byte('O'), pub1[0])

	kp2, err := pkicrypto.NKeyFromSeed(s, pkicrypto.NatsRoleOperator)
	require.NoError(t, err)
	pub2, err := kp2.PublicKey()
	require.NoError(t, err)
	require.Equal(t, pub1, pub2)
}

func TestNKeyFromSeed_UnknownRoleErrors(t *testing.T) {
	_, err := pkicrypto.NKeyFromSeed(testSeed(t, "nats-user"), pkicrypto.NatsRole("Cluster"))
	require.Error(t, err)
}

func TestMarshalSSHPublicKey_ProducesAuthorizedKeysLine(t *testing.T) {
	kp, err := pkicrypto.GenerateKeyPair(pkicrypto.AlgorithmEd25519, testSeed(t, "person"))
	require.NoError(t, err)

	line, err := pkicrypto.MarshalSSHPublicKey(kp.Public)
	require.NoError(t, err)
	require.Contains(t, string(line), "ssh-ed25519")
}

func TestOpenPGPPublicIdentity_ArmoredAndDeterministic(t *testing.T) {
	s := testSeed(t, "person")
	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	armored1, err := pkicrypto.OpenPGPPublicIdentity("Jane Doe", "jane@example.com", s, createdAt)
	require.NoError(t, err)
	require.Contains(t, string(armored1), "BEGIN PGP PUBLIC KEY BLOCK")

	armored2, err := pkicrypto.OpenPGPPublicIdentity("Jane Doe", "jane@example.com", s, createdAt)
	require.NoError(t, err)
	require.Equal(t, armored1, armored2)
}
