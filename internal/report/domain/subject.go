package domain

import (
	"strings"
	"time"
)

type SubjectKind string

const (
	SubjectOrganisation SubjectKind = "organisation"
	SubjectIndividual   SubjectKind = "individual"
)

// Subject is the organisation or individual a report is about.
type Subject struct {
	Kind SubjectKind

	// Organisation fields.
	BusinessNumber string

	// Individual fields.
	GivenName   string
	FamilyName  string
	DateOfBirth *time.Time

	// TitleReference scopes land-title-by-reference searches to one
	// registered title.
	TitleReference string

	// Address scopes land-title-by-address and property searches.
	Address string
}

func NewOrganisation(businessNumber string) Subject {
	return Subject{
		Kind:           SubjectOrganisation,
		BusinessNumber: normalizeBusinessNumber(businessNumber),
	}
}

func NewIndividual(givenName, familyName string, dateOfBirth *time.Time) Subject {
	return Subject{
		Kind:        SubjectIndividual,
		GivenName:   strings.TrimSpace(givenName),
		FamilyName:  strings.TrimSpace(familyName),
		DateOfBirth: dateOfBirth,
	}
}

// Key derives the cache key for this subject. Organisations key on the
// business number. Individuals key on a normalized name composite, scoped
// by date of birth when available so two people sharing a name do not
// collide once a birth date is known.
func (s Subject) Key() string {
	if s.Kind == SubjectOrganisation {
		return normalizeBusinessNumber(s.BusinessNumber)
	}
	parts := []string{
		normalizeNamePart(s.FamilyName),
		normalizeNamePart(s.GivenName),
	}
	if s.DateOfBirth != nil {
		parts = append(parts, s.DateOfBirth.Format("2006-01-02"))
	}
	return strings.Join(parts, "|")
}

// SearchLabel is the human-readable label stored on snapshots and used as a
// secondary lookup key for individuals.
func (s Subject) SearchLabel() string {
	if s.Kind == SubjectOrganisation {
		return normalizeBusinessNumber(s.BusinessNumber)
	}
	label := strings.TrimSpace(s.GivenName + " " + s.FamilyName)
	if s.DateOfBirth != nil {
		label += " (" + s.DateOfBirth.Format("2006-01-02") + ")"
	}
	return label
}

// BusinessNumberOrNil returns the business number for storage, nil for
// individual subjects that have none.
func (s Subject) BusinessNumberOrNil() *string {
	if s.Kind != SubjectOrganisation {
		return nil
	}
	number := normalizeBusinessNumber(s.BusinessNumber)
	if number == "" {
		return nil
	}
	return &number
}

func normalizeBusinessNumber(raw string) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
}

func normalizeNamePart(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}
