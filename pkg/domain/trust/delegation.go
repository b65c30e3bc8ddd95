package trust

import (
	"time"

	"github.com/google/uuid"

	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pki/entities"
)

// DelegationProjection is the minimal slice of the PKI projection the
// delegation queries below need, kept as its own small interface so this
// package never imports pki directly: pki consults Permissions during
// command validation, so the dependency must run pki -> trust only.
type DelegationProjection interface {
	DelegationByID(id uuid.UUID) (entities.Delegation, bool)
	DelegationsByDelegate(personID uuid.UUID) []entities.Delegation
}

// Permissions computes the permission set a delegate holds at instant t: the
// union of every delegation's own permission set where that delegation names
// personID as delegate and is active (and, transitively, every ancestor of
// that delegation is active) at t. A delegation whose chain has been broken
// by an ancestor's revocation contributes nothing, even before its own
// explicit DelegationCascadeRevoked event lands, since revocation cascades
// are emitted synchronously by the aggregate that authorized the revocation.
func Permissions(proj DelegationProjection, personID uuid.UUID, t time.Time) []string {
	seen := make(map[string]struct{})
	var out []string

	for _, d := range proj.DelegationsByDelegate(personID) {
		if !d.ActiveAt(t) {
			continue
		}
		if !ancestryActiveAt(proj, d, t) {
			continue
		}
		for _, p := range d.Permissions {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
	}

	return out
}

// ancestryActiveAt walks d's ParentDelegationID chain and reports whether
// every ancestor is still active at t. A delegation with no parent is
// bounded only by organizational role and is vacuously fully ancestored.
func ancestryActiveAt(proj DelegationProjection, d entities.Delegation, t time.Time) bool {
	current := d
	for current.ParentDelegationID != nil {
		parent, ok := proj.DelegationByID(*current.ParentDelegationID)
		if !ok || !parent.ActiveAt(t) {
			return false
		}
		current = parent
	}
	return true
}
