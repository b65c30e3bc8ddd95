package org

import "github.com/google/uuid"

// OrgContextPort is the anti-corruption port a downstream context (NATS,
// PKI) takes at construction to resolve organization/unit references without
// importing this package's internal entity types.
type OrgContextPort interface {
	Organization(id uuid.UUID) (OrganizationReference, bool)
	Unit(id uuid.UUID) (OrganizationUnitReference, bool)
}

// PersonContextPort resolves person references for downstream contexts.
type PersonContextPort interface {
	Person(id uuid.UUID) (PersonReference, bool)
}

// OrganizationUnitReference is the published-language form of an
// OrganizationUnit.
type OrganizationUnitReference struct {
	ID       uuid.UUID
	Name     string
	UnitType UnitType
}

// Reference projects an OrganizationUnit to its published-language form.
func (u OrganizationUnit) Reference() OrganizationUnitReference {
	return OrganizationUnitReference{ID: u.GetID(), Name: u.Name, UnitType: u.UnitType}
}
