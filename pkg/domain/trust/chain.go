// Package trust is the trust graph engine: certificate chain
// verification, delegation permission propagation, and revocation cascade
// queries. It reads the aggregate's projected state through narrow
// interfaces but owns no state of its own — the trust graph is always a
// view over the projection, never a second source of truth.
package trust

import (
	"crypto/x509"
	"time"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pki/entities"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pkicrypto"
)

// supportedSignatureAlgorithms is the set VerifyChain accepts; any other OID
// on a certificate in the chain yields UnsupportedAlgorithm.
var supportedSignatureAlgorithms = map[x509.SignatureAlgorithm]bool{
	x509.PureEd25519:     true,
	x509.ECDSAWithSHA256: true,
	x509.ECDSAWithSHA384: true,
	x509.SHA256WithRSA:   true,
	x509.SHA512WithRSA:   true,
}

// TrustLink is one verified edge in a VerifiedTrustChain: child signed by
// parent, both identified by fingerprint.
type TrustLink struct {
	ChildFingerprint  string
	ParentFingerprint string
}

// VerifiedTrustChain is the result of a successful VerifyChain call.
type VerifiedTrustChain struct {
	Fingerprints []string // leaf-to-root order, matching the input chain
	VerifiedAt   time.Time
	Links        []TrustLink
}

// VerifyChain checks an ordered chain [leaf, intermediate?, root] against
// trustedRoots at instant at, per the five checks of the trust graph engine:
// non-empty chain, adjacent issuer/subject + signature + validity-window
// checks, root self-signature, and trusted-root membership.
func VerifyChain(chain []*x509.Certificate, trustedRoots map[string]*x509.Certificate, at time.Time) (VerifiedTrustChain, error) {
	if len(chain) == 0 {
		return VerifiedTrustChain{}, common.NewErrEmptyChain()
	}

	fingerprints := make([]string, len(chain))
	for i, cert := range chain {
		fp, err := pkicrypto.Fingerprint(cert.PublicKey)
		if err != nil {
			return VerifiedTrustChain{}, common.NewErrInvalidInput("fingerprint chain member: " + err.Error())
		}
		fingerprints[i] = fp

		if !supportedSignatureAlgorithms[cert.SignatureAlgorithm] {
			return VerifiedTrustChain{}, common.NewErrUnsupportedAlgorithm(fp)
		}
		if at.Before(cert.NotBefore) {
			return VerifiedTrustChain{}, common.NewErrNotYetValid(fp)
		}
		// Half-open interval: NotAfter itself counts as expired.
		if !at.Before(cert.NotAfter) {
			return VerifiedTrustChain{}, common.NewErrExpired(fp, stampString(cert.NotAfter))
		}
	}

	var links []TrustLink
	for i := 0; i < len(chain)-1; i++ {
		child, parent := chain[i], chain[i+1]
		childFP, parentFP := fingerprints[i], fingerprints[i+1]

		if child.Issuer.String() != parent.Subject.String() {
			return VerifiedTrustChain{}, common.NewErrIssuerMismatch(childFP)
		}
		if err := pkicrypto.VerifyCertSignature(child, parent.PublicKey); err != nil {
			return VerifiedTrustChain{}, common.NewErrInvalidSignature(childFP)
		}
		links = append(links, TrustLink{ChildFingerprint: childFP, ParentFingerprint: parentFP})
	}

	root := chain[len(chain)-1]
	rootFP := fingerprints[len(fingerprints)-1]
	if root.Issuer.String() != root.Subject.String() {
		return VerifiedTrustChain{}, common.NewErrRootNotSelfSigned(rootFP)
	}
	if err := pkicrypto.VerifyCertSignature(root, root.PublicKey); err != nil {
		return VerifiedTrustChain{}, common.NewErrRootNotSelfSigned(rootFP)
	}
	if _, trusted := trustedRoots[rootFP]; !trusted {
		return VerifiedTrustChain{}, common.NewErrUntrustedRoot(rootFP)
	}

	return VerifiedTrustChain{Fingerprints: fingerprints, VerifiedAt: at, Links: links}, nil
}

type stampString time.Time

func (s stampString) String() string { return time.Time(s).Format(time.RFC3339) }

// CertTypeOf reports the entities.CertType a verified chain member
// corresponds to by position: index 0 is always a leaf, the last index is
// always a root, anything between is an intermediate.
func CertTypeOf(index, length int) entities.CertType {
	switch {
	case length == 1:
		return entities.CertType(pkicrypto.CertTypeRoot)
	case index == 0:
		return entities.CertType(pkicrypto.CertTypeLeaf)
	case index == length-1:
		return entities.CertType(pkicrypto.CertTypeRoot)
	default:
		return entities.CertType(pkicrypto.CertTypeIntermediate)
	}
}
