package pkicrypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"math/big"
	"time"

	"golang.org/x/crypto/chacha20"
)

// CertType is the two-tier root/intermediate/leaf taxonomy enforced by
// path-length and key-usage constraints in SignCert.
type CertType string

const (
	CertTypeRoot         CertType = "root"
	CertTypeIntermediate CertType = "intermediate"
	CertTypeLeaf         CertType = "leaf"
)

// Default validity windows, chosen as fixed defaults rather than
// configurable knobs.
const (
	RootValidity         = 20 * 365 * 24 * time.Hour
	IntermediateValidity = 3 * 365 * 24 * time.Hour
	LeafValidity         = 90 * 24 * time.Hour
)

// Template describes the certificate an operator wants issued; SignCert fills
// in the keyUsage/extendedKeyUsage/basicConstraints bits from CertType.
type Template struct {
	CertType    CertType
	Subject     pkix.Name
	SANs        []string
	NotBefore   time.Time
	Validity    time.Duration // zero means "use the CertType default"
	ExtKeyUsage []x509.ExtKeyUsage
}

// BuildCSR produces a DER-encoded PKCS#10 certificate signing request signed
// by signerPrivate over the given subject and SANs. Signature entropy is
// derived from the signer key, not system randomness, so the same request
// inputs always serialize to the same bytes.
func BuildCSR(subject pkix.Name, sans []string, signerPrivate crypto.Signer) ([]byte, error) {
	tmpl := &x509.CertificateRequest{
		Subject:            subject,
		DNSNames:           sans,
		SignatureAlgorithm: signatureAlgorithmFor(signerPrivate),
	}
	entropy, err := signatureEntropy(signerPrivate, []byte(subject.String()), time.Time{})
	if err != nil {
		return nil, fmt.Errorf("derive csr entropy: %w", err)
	}
	return x509.CreateCertificateRequest(entropy, tmpl, signerPrivate)
}

// SignCert issues an X.509 certificate from template, signed by the issuer.
// When template.CertType is root, parent must be nil (self-signed).
// The returned certificate enforces path-length constraints: intermediates
// are pathLen:0 (signing-only, no server/client EKU), roots are pathLen:1.
func SignCert(template Template, subjectPublic crypto.PublicKey, issuerPrivate crypto.Signer, parent *x509.Certificate) (*x509.Certificate, []byte, error) {
	serial, err := serialFor(subjectPublic, template.NotBefore)
	if err != nil {
		return nil, nil, fmt.Errorf("generate serial: %w", err)
	}

	notBefore := template.NotBefore
	if notBefore.IsZero() {
		notBefore = time.Now().UTC()
	}
	validity := template.Validity
	if validity == 0 {
		validity = defaultValidityFor(template.CertType)
	}

	certTmpl := &x509.Certificate{
		SerialNumber:       serial,
		Subject:            template.Subject,
		DNSNames:           template.SANs,
		NotBefore:          notBefore,
		NotAfter:           notBefore.Add(validity),
		SignatureAlgorithm: signatureAlgorithmFor(issuerPrivate),
	}

	switch template.CertType {
	case CertTypeRoot:
		certTmpl.IsCA = true
		certTmpl.BasicConstraintsValid = true
		certTmpl.MaxPathLen = 1
		certTmpl.MaxPathLenZero = false
		certTmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	case CertTypeIntermediate:
		certTmpl.IsCA = true
		certTmpl.BasicConstraintsValid = true
		certTmpl.MaxPathLen = 0
		certTmpl.MaxPathLenZero = true
		certTmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	case CertTypeLeaf:
		certTmpl.IsCA = false
		certTmpl.BasicConstraintsValid = true
		certTmpl.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment
		if len(template.ExtKeyUsage) > 0 {
			certTmpl.ExtKeyUsage = template.ExtKeyUsage
		} else {
			certTmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth}
		}
		if len(template.SANs) == 0 {
			return nil, nil, fmt.Errorf("leaf certificate requires at least one SAN")
		}
	default:
		return nil, nil, fmt.Errorf("unknown cert type: %s", template.CertType)
	}

	parentCert := parent
	signingKey := issuerPrivate
	if template.CertType == CertTypeRoot {
		if parent != nil {
			return nil, nil, fmt.Errorf("root certificate must be self-signed: parent must be nil")
		}
		certTmpl.Issuer = template.Subject
		parentCert = certTmpl
	}

	subjectDER, err := x509.MarshalPKIXPublicKey(subjectPublic)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal subject public key: %w", err)
	}
	entropy, err := signatureEntropy(signingKey, subjectDER, notBefore)
	if err != nil {
		return nil, nil, fmt.Errorf("derive signing entropy: %w", err)
	}

	der, err := x509.CreateCertificate(entropy, certTmpl, parentCert, subjectPublic, signingKey)
	if err != nil {
		return nil, nil, fmt.Errorf("create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, fmt.Errorf("parse issued certificate: %w", err)
	}
	return cert, der, nil
}

// VerifyCertSignature checks that child was signed by a key matching
// parentPublic, dispatching on the child's own SignatureAlgorithm OID.
// The check goes straight to CheckSignature over the child's TBS bytes
// rather than CheckSignatureFrom, which would also demand CA basic
// constraints and a key-usage bitmap on the synthetic parent holder.
func VerifyCertSignature(child *x509.Certificate, parentPublic crypto.PublicKey) error {
	holder := x509.Certificate{PublicKey: parentPublic}
	if err := holder.CheckSignature(child.SignatureAlgorithm, child.RawTBSCertificate, child.Signature); err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	return nil
}

func defaultValidityFor(t CertType) time.Duration {
	switch t {
	case CertTypeRoot:
		return RootValidity
	case CertTypeIntermediate:
		return IntermediateValidity
	default:
		return LeafValidity
	}
}

// signatureEntropy derives the randomness the x509 signing path consumes
// from the issuer's own private key plus the subject material being signed,
// in place of crypto/rand. ECDSA signing draws a nonce from this reader, so
// with system randomness re-running the same issuance would produce a
// different DER each time; keying the stream with the private key keeps the
// nonce secret (the RFC 6979 construction) while making issuance replay
// byte-identical.
func signatureEntropy(issuerPrivate crypto.Signer, subjectDER []byte, notBefore time.Time) (io.Reader, error) {
	keyDER, err := x509.MarshalPKCS8PrivateKey(issuerPrivate)
	if err != nil {
		return nil, fmt.Errorf("marshal issuer private key: %w", err)
	}
	h := sha256.New()
	h.Write(keyDER)
	h.Write(subjectDER)
	h.Write([]byte(notBefore.UTC().Format(time.RFC3339Nano)))

	var key [32]byte
	copy(key[:], h.Sum(nil))
	return &restartingReader{key: key}, nil
}

// restartingReader fills every Read from the start of the same keystream.
// The standard library's signing paths deliberately vary how many bytes they
// probe off their randomness source, so a plain stream would hand different
// nonce bytes to otherwise identical signing calls; restarting per Read
// makes the drawn bytes independent of the read pattern. The per-message
// digest mixed in by the signer keeps nonces distinct across messages.
type restartingReader struct {
	key [32]byte
}

func (r *restartingReader) Read(p []byte) (int, error) {
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(r.key[:], nonce[:])
	if err != nil {
		return 0, err
	}
	for i := range p {
		p[i] = 0
	}
	c.XORKeyStream(p, p)
	return len(p), nil
}

// serialFor derives a 128-bit serial from the subject's own public key and
// the certificate's NotBefore: never sequential (it is the SHA-256 of
// unpredictable key material, not a counter), yet deterministic, so
// replaying the same command against the same seed hierarchy issues a
// byte-identical certificate rather than a fresh random one every run.
func serialFor(subjectPublic crypto.PublicKey, notBefore time.Time) (*big.Int, error) {
	der, err := x509.MarshalPKIXPublicKey(subjectPublic)
	if err != nil {
		return nil, fmt.Errorf("marshal subject public key: %w", err)
	}
	h := sha256.New()
	h.Write(der)
	h.Write([]byte(notBefore.UTC().Format(time.RFC3339Nano)))
	sum := h.Sum(nil)
	return new(big.Int).SetBytes(sum[:16]), nil
}

func signatureAlgorithmFor(signer crypto.Signer) x509.SignatureAlgorithm {
	switch pub := signer.Public().(type) {
	case ed25519.PublicKey:
		return x509.PureEd25519
	case *ecdsa.PublicKey:
		switch pub.Curve.Params().BitSize {
		case 384:
			return x509.ECDSAWithSHA384
		default:
			return x509.ECDSAWithSHA256
		}
	case *rsa.PublicKey:
		return x509.SHA256WithRSA
	default:
		return x509.UnknownSignatureAlgorithm
	}
}
