// Package pki is the PKI aggregate: commands, the Handle entry point, and
// the anti-corruption port downstream contexts use to resolve PKI
// references.
package pki

import (
	"github.com/google/uuid"

	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pki/entities"
)

// PkiContextPort is the anti-corruption port a downstream context (NATS)
// takes at construction to resolve key/certificate references without
// importing pki/entities directly.
type PkiContextPort interface {
	Key(id uuid.UUID) (entities.KeyReference, bool)
	Certificate(id uuid.UUID) (entities.CertificateReference, bool)
}
