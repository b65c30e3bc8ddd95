// Package org holds the Organization bounded context: the organization
// itself, its units, its people, and the locations linked to them by edges
// in the trust graph rather than by embedding.
package org

import (
	"time"

	"github.com/google/uuid"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
)

// Organization is the root entity of this bounded context.
type Organization struct {
	common.BaseEntity
	Name        string
	DisplayName string
}

// NewOrganization creates the organization from a bootstrap command.
func NewOrganization(name, displayName string) Organization {
	return Organization{
		BaseEntity:  common.NewBaseEntity(),
		Name:        name,
		DisplayName: displayName,
	}
}

// Rename is the only mutation allowed on Organization.
func (o *Organization) Rename(displayName string, at time.Time) {
	o.DisplayName = displayName
	o.Touch(at)
}

// UnitType classifies an OrganizationUnit for downstream NATS-account mapping.
type UnitType string

const (
	UnitTypeDepartment UnitType = "department"
	UnitTypeTeam       UnitType = "team"
	UnitTypeSite       UnitType = "site"
)

// OrganizationUnit is a sub-division of an Organization, one-to-one with a
// future NatsAccount.
type OrganizationUnit struct {
	common.BaseEntity
	ParentOrgID uuid.UUID
	Name        string
	UnitType    UnitType
}

// NewOrganizationUnit constructs a unit under parentOrgID.
func NewOrganizationUnit(parentOrgID uuid.UUID, name string, unitType UnitType) OrganizationUnit {
	return OrganizationUnit{
		BaseEntity:  common.NewBaseEntity(),
		ParentOrgID: parentOrgID,
		Name:        name,
		UnitType:    unitType,
	}
}

// Person is a human member of the organization. Never hard-deleted:
// Deactivate flips Active to false and leaves the record in place so past
// certificates and delegations remain attributable.
type Person struct {
	common.BaseEntity
	LegalName string
	Active    bool
}

// NewPerson constructs an active Person.
func NewPerson(legalName string) Person {
	return Person{
		BaseEntity: common.NewBaseEntity(),
		LegalName:  legalName,
		Active:     true,
	}
}

// Deactivate marks a person inactive without removing their record.
func (p *Person) Deactivate(at time.Time) {
	p.Active = false
	p.Touch(at)
}

// LocationKind enumerates the contact-location kinds a Location may have.
type LocationKind string

const (
	LocationKindPhysical LocationKind = "physical"
	LocationKindEmail    LocationKind = "email"
	LocationKindPhone    LocationKind = "phone"
	LocationKindVirtual  LocationKind = "virtual"
)

// Location is an independent aggregate linked to people/units only via
// TrustLink edges, never embedded.
type Location struct {
	common.BaseEntity
	Kind    LocationKind
	Address string
}

// NewLocation constructs a Location.
func NewLocation(kind LocationKind, address string) Location {
	return Location{
		BaseEntity: common.NewBaseEntity(),
		Kind:       kind,
		Address:    address,
	}
}

// PersonReference is the published-language value object other bounded
// contexts (NATS, PKI) use to refer to a Person without importing this
// package's internal type.
type PersonReference struct {
	ID          uuid.UUID
	DisplayName string
	Active      bool
}

// Reference projects a Person to its published-language form.
func (p Person) Reference() PersonReference {
	return PersonReference{ID: p.GetID(), DisplayName: p.LegalName, Active: p.Active}
}

// OrganizationReference is the published-language form of an Organization.
type OrganizationReference struct {
	ID          uuid.UUID
	DisplayName string
}

// Reference projects an Organization to its published-language form.
func (o Organization) Reference() OrganizationReference {
	return OrganizationReference{ID: o.GetID(), DisplayName: o.DisplayName}
}

// LocationReference is the published-language form of a Location.
type LocationReference struct {
	ID      uuid.UUID
	Kind    LocationKind
	Address string
}

// Reference projects a Location to its published-language form.
func (l Location) Reference() LocationReference {
	return LocationReference{ID: l.GetID(), Kind: l.Kind, Address: l.Address}
}

// PersonInput is the caller-supplied payload of an AddPerson command,
// carrying an optional contact location to create alongside the person.
type PersonInput struct {
	LegalName      string
	ContactKind    LocationKind
	ContactAddress string
}

// CreatedAt exposes the UUIDv7-encoded creation instant of any BaseEntity,
// convenient for projection file ordering, which is by entity id and
// therefore already time-ordered.
func CreatedAt(e common.Entity) time.Time {
	return common.TimeOf(e.GetID())
}
