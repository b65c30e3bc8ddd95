package projection

import (
	"sort"

	"github.com/google/uuid"

	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/natsid"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/org"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pki"
)

func sortedUUIDKeys(keys []uuid.UUID) []uuid.UUID {
	out := append([]uuid.UUID{}, keys...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func sortedStringKeys(keys []string) []string {
	out := append([]string{}, keys...)
	sort.Strings(out)
	return out
}

func sortedOrgs(p *pki.Projection) []org.Organization {
	var out []org.Organization
	for _, o := range p.Organizations {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetID().String() < out[j].GetID().String() })
	return out
}

func unitIDs(p *pki.Projection) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Units))
	for id := range p.Units {
		ids = append(ids, id)
	}
	return ids
}

func personIDs(p *pki.Projection) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.People))
	for id := range p.People {
		ids = append(ids, id)
	}
	return ids
}

func locationIDs(p *pki.Projection) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Locations))
	for id := range p.Locations {
		ids = append(ids, id)
	}
	return ids
}

func keyIDs(p *pki.Projection) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Keys))
	for id := range p.Keys {
		ids = append(ids, id)
	}
	return ids
}

func certIDs(p *pki.Projection) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Certificates))
	for id := range p.Certificates {
		ids = append(ids, id)
	}
	return ids
}

func operatorKeys(p *natsid.Projection) []string {
	keys := make([]string, 0, len(p.Operators))
	for k := range p.Operators {
		keys = append(keys, k)
	}
	return keys
}

func accountKeys(p *natsid.Projection) []string {
	keys := make([]string, 0, len(p.Accounts))
	for k := range p.Accounts {
		keys = append(keys, k)
	}
	return keys
}

func userKeys(p *natsid.Projection) []string {
	keys := make([]string, 0, len(p.Users))
	for k := range p.Users {
		keys = append(keys, k)
	}
	return keys
}

// relationshipEdges derives domain/relationships.json's edges from the
// projection's own index maps: every person is employed_by their unit,
// every unit is owned_by its organization, every personal key is owned_by
// its person, and every issued certificate is signed by its issuer's.
func relationshipEdges(p *pki.Projection) []RelationshipEdge {
	var edges []RelationshipEdge

	for _, personID := range sortedUUIDKeys(personIDs(p)) {
		if unitID, ok := p.PersonUnit[personID]; ok {
			edges = append(edges, RelationshipEdge{Source: personID, Relation: "employed_by", Target: unitID})
		}
	}

	for _, unitID := range sortedUUIDKeys(unitIDs(p)) {
		unit := p.Units[unitID]
		edges = append(edges, RelationshipEdge{Source: unitID, Relation: "owned_by", Target: unit.ParentOrgID})
	}

	for _, keyID := range sortedUUIDKeys(keyIDs(p)) {
		if owner := p.Keys[keyID].OwnerPersonID; owner != nil {
			edges = append(edges, RelationshipEdge{Source: keyID, Relation: "owned_by", Target: *owner})
		}
	}

	for _, certID := range sortedUUIDKeys(certIDs(p)) {
		cert := p.Certificates[certID]
		if signerCertID, ok := p.CertBySubjectKeyID[cert.SignerKeyID]; ok && signerCertID != certID {
			edges = append(edges, RelationshipEdge{Source: signerCertID, Relation: "signs", Target: certID})
		}
	}

	return edges
}
