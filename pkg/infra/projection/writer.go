// Package projection materializes a folded event log to the on-disk
// directory tree: canonical JSON per entity, a manifest of every file's
// SHA-256, and the append-only event/audit logs. Re-materializing the same
// projection state always produces byte-identical output.
package projection

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/natsid"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pki"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pki/entities"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pkicrypto"
)

// ManifestEntry records one written file's path (relative to the
// projection root), size, and SHA-256 digest.
type ManifestEntry struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Manifest is the top-level manifest.json: every entry plus a self-
// referential hash of the entries themselves, so tampering with the
// manifest after the fact is detectable.
type Manifest struct {
	Version        int             `json:"version"`
	Entries        []ManifestEntry `json:"entries"`
	ManifestSHA256 string          `json:"manifest_sha256"`
}

// RelationshipEdge is one edge of domain/relationships.json.
type RelationshipEdge struct {
	Source   uuid.UUID `json:"source"`
	Relation string    `json:"relation"`
	Target   uuid.UUID `json:"target"`
}

// Writer materializes projection state to a directory rooted at Root. It
// holds the root directory's advisory lock for its own lifetime: a second
// Writer opening the same root fails with ErrProjectionLocked.
type Writer struct {
	Root string
	lock *flock.Flock
}

// NewWriter opens (and locks) the projection directory at root, creating it
// if absent.
func NewWriter(root string) (*Writer, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("projection: create root: %w", err)
	}

	lock := flock.New(filepath.Join(root, ".manifest.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("projection: acquire lock: %w", err)
	}
	if !locked {
		return nil, common.NewErrProjectionLocked(root)
	}

	return &Writer{Root: root, lock: lock}, nil
}

// Close releases the projection directory's advisory lock.
func (w *Writer) Close() error {
	return w.lock.Unlock()
}

// Materialize writes every domain/keys/certificates/nats file the folded
// projections describe, then writes manifest.json last, so a reader never
// observes a manifest referencing files that don't yet exist. pkiProj and
// natsProj may each be nil if that context has not yet produced any events.
func (w *Writer) Materialize(pkiProj *pki.Projection, natsProj *natsid.Projection) (Manifest, error) {
	var entries []ManifestEntry

	record := func(relPath string, data []byte) error {
		full := filepath.Join(w.Root, relPath)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("projection: mkdir for %s: %w", relPath, err)
		}
		if err := os.WriteFile(full, data, 0o644); err != nil {
			return fmt.Errorf("projection: write %s: %w", relPath, err)
		}
		sum := sha256.Sum256(data)
		entries = append(entries, ManifestEntry{
			Path:   filepath.ToSlash(relPath),
			SHA256: hex.EncodeToString(sum[:]),
			Size:   int64(len(data)),
		})
		return nil
	}

	if pkiProj != nil {
		if err := w.writeDomain(pkiProj, record); err != nil {
			return Manifest{}, err
		}
		if err := w.writeKeys(pkiProj, record); err != nil {
			return Manifest{}, err
		}
		if err := w.writeCertificates(pkiProj, record); err != nil {
			return Manifest{}, err
		}
	}
	if natsProj != nil {
		if err := w.writeNats(natsProj, pkiProj, record); err != nil {
			return Manifest{}, err
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	manifest := Manifest{Version: 1, Entries: entries}
	coverBytes, err := Canonical(struct {
		Version int             `json:"version"`
		Entries []ManifestEntry `json:"entries"`
	}{manifest.Version, manifest.Entries})
	if err != nil {
		return Manifest{}, err
	}
	sum := sha256.Sum256(coverBytes)
	manifest.ManifestSHA256 = hex.EncodeToString(sum[:])

	manifestBytes, err := Canonical(manifest)
	if err != nil {
		return Manifest{}, err
	}
	if err := os.WriteFile(filepath.Join(w.Root, "manifest.json"), manifestBytes, 0o644); err != nil {
		return Manifest{}, fmt.Errorf("projection: write manifest.json: %w", err)
	}

	return manifest, nil
}

type recordFunc func(relPath string, data []byte) error

func (w *Writer) writeDomain(p *pki.Projection, record recordFunc) error {
	for _, o := range sortedOrgs(p) {
		data, err := Canonical(o)
		if err != nil {
			return err
		}
		if err := record("domain/organization.json", data); err != nil {
			return err
		}
		break // exactly one organization per bootstrap
	}

	for _, id := range sortedUUIDKeys(unitIDs(p)) {
		u := p.Units[id]
		data, err := Canonical(u)
		if err != nil {
			return err
		}
		if err := record(filepath.Join("domain", "units", id.String()+".json"), data); err != nil {
			return err
		}
	}

	for _, id := range sortedUUIDKeys(personIDs(p)) {
		person := p.People[id]
		data, err := Canonical(person)
		if err != nil {
			return err
		}
		if err := record(filepath.Join("domain", "people", id.String()+".json"), data); err != nil {
			return err
		}
	}

	for _, id := range sortedUUIDKeys(locationIDs(p)) {
		loc := p.Locations[id]
		data, err := Canonical(loc)
		if err != nil {
			return err
		}
		if err := record(filepath.Join("domain", "locations", id.String()+".json"), data); err != nil {
			return err
		}
	}

	edges := relationshipEdges(p)
	data, err := Canonical(edges)
	if err != nil {
		return err
	}
	return record(filepath.Join("domain", "relationships.json"), data)
}

func (w *Writer) writeKeys(p *pki.Projection, record recordFunc) error {
	for _, id := range sortedUUIDKeys(keyIDs(p)) {
		key := p.Keys[id]

		metadata, err := Canonical(key)
		if err != nil {
			return err
		}
		if err := record(filepath.Join("keys", id.String(), "metadata.json"), metadata); err != nil {
			return err
		}

		if certID, ok := p.CertBySubjectKeyID[id]; ok {
			cert := p.Certificates[certID]
			parsed, err := x509.ParseCertificate(cert.DER)
			if err != nil {
				continue
			}
			if pub, err := publicKeyPEM(cert.DER); err == nil {
				if err := record(filepath.Join("keys", id.String(), "public.pem"), pub); err != nil {
					return err
				}
			}

			// SSH and OpenPGP encodings are only meaningful for a person's own
			// key, not a CA's signing key: no one authenticates over SSH or
			// signs email as an intermediate CA.
			if key.OwnerPersonID != nil {
				if sshPub, err := pkicrypto.MarshalSSHPublicKey(parsed.PublicKey); err == nil {
					if err := record(filepath.Join("keys", id.String(), "public.ssh"), sshPub); err != nil {
						return err
					}
				}
				if pgpPub, ok := p.OpenPGPByKey[id]; ok {
					if err := record(filepath.Join("keys", id.String(), "public.pgp"), pgpPub); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (w *Writer) writeCertificates(p *pki.Projection, record recordFunc) error {
	for _, id := range sortedUUIDKeys(certIDs(p)) {
		cert := p.Certificates[id]
		certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.DER})

		dir := certTypeDir(cert.CertType)
		if err := record(filepath.Join("certificates", dir, id.String(), "cert.pem"), certPEM); err != nil {
			return err
		}

		if cert.CertType != pkicrypto.CertTypeRoot {
			chain := w.buildChain(p, cert)
			if err := record(filepath.Join("certificates", dir, id.String(), "chain.pem"), chain); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildChain walks SignerKeyID back to the root, concatenating PEM blocks
// child-to-root.
func (w *Writer) buildChain(p *pki.Projection, leaf entities.Certificate) []byte {
	var out []byte
	cur := leaf
	seen := map[uuid.UUID]bool{}
	for {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cur.DER})...)
		certID, ok := p.CertBySubjectKeyID[cur.SignerKeyID]
		if !ok || seen[certID] {
			break
		}
		seen[certID] = true
		next, ok := p.Certificates[certID]
		if !ok || next.GetID() == cur.GetID() {
			break
		}
		cur = next
	}
	return out
}

func (w *Writer) writeNats(p *natsid.Projection, pkiProj *pki.Projection, record recordFunc) error {
	for _, pub := range sortedStringKeys(operatorKeys(p)) {
		op := p.Operators[pub]
		if err := record(filepath.Join("nats", "operator", "operator.jwt"), []byte(op.JWT)); err != nil {
			return err
		}
		if err := record(filepath.Join("nats", "operator", "operator.pub"), []byte(pub)); err != nil {
			return err
		}
	}

	for _, pub := range sortedStringKeys(accountKeys(p)) {
		acct := p.Accounts[pub]
		dir := filepath.Join("nats", "accounts", acct.UnitID.String())
		if err := record(filepath.Join(dir, "account.jwt"), []byte(acct.JWT)); err != nil {
			return err
		}
		if err := record(filepath.Join(dir, "account.pub"), []byte(pub)); err != nil {
			return err
		}
		if err := record(filepath.Join(dir, "resolver.conf"), accountResolverConf(acct, unitIntermediateFingerprint(pkiProj, acct.UnitID))); err != nil {
			return err
		}
	}

	for _, pub := range sortedStringKeys(userKeys(p)) {
		user := p.Users[pub]
		dir := filepath.Join("nats", "users", user.PersonID.String())
		if err := record(filepath.Join(dir, "user.jwt"), []byte(user.JWT)); err != nil {
			return err
		}
		if err := record(filepath.Join(dir, "user.pub"), []byte(pub)); err != nil {
			return err
		}
		if err := record(filepath.Join(dir, "user.creds"), user.CredsFile); err != nil {
			return err
		}
	}
	return nil
}

// accountResolverConf renders the `nats-server` resolver_preload stanza a
// target system drops into its own account-resolver directory, keyed by the
// account's own signing NKey public identifier the way `nsc generate
// resolver-config` does for a directory resolver. certFingerprint, when
// non-empty, documents which intermediate CA certificate this unit's PKI
// identity is issued under, so an operator cross-referencing the NATS and
// PKI trees doesn't have to guess the mapping.
func accountResolverConf(acct natsid.NatsAccount, certFingerprint string) []byte {
	var fpLine string
	if certFingerprint != "" {
		fpLine = fmt.Sprintf("# unit intermediate CA fingerprint: %s\n", certFingerprint)
	}
	return []byte(fmt.Sprintf(
		"# generated for unit %s; drop into the server's resolver_preload directory\n"+
			"%s"+
			"resolver_preload: {\n  %s: %q\n}\n",
		acct.UnitID, fpLine, acct.SigningNKeyPublic, acct.JWT,
	))
}

// unitIntermediateFingerprint resolves the fingerprint of unitID's
// intermediate CA key through PkiContextPort, the anti-corruption port a downstream
// context (here, the NATS resolver config) uses to read PKI references
// without importing pki/entities types directly. Returns "" if the unit has
// no intermediate CA key yet (e.g. natsProj was materialized before pkiProj
// finished bootstrapping).
func unitIntermediateFingerprint(pkiProj *pki.Projection, unitID uuid.UUID) string {
	if pkiProj == nil {
		return ""
	}
	keyID, ok := pkiProj.UnitIntermediateKey[unitID]
	if !ok {
		return ""
	}

	var keyPort pki.PkiContextPort = pkiProj
	key, ok := keyPort.Key(keyID)
	if !ok {
		return ""
	}
	return key.Fingerprint
}

func publicKeyPEM(certDER []byte) ([]byte, error) {
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("projection: parse certificate for public key: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("projection: marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

func certTypeDir(t entities.CertType) string {
	switch t {
	case pkicrypto.CertTypeRoot:
		return "root-ca"
	case pkicrypto.CertTypeIntermediate:
		return "intermediate-ca"
	default:
		return "leaf"
	}
}
