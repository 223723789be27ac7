package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SubjectType is the entity tag every authorizable entity carries.
type SubjectType string

const (
	SubjectAll               SubjectType = "all"
	SubjectUser              SubjectType = "User"
	SubjectCompany           SubjectType = "Company"
	SubjectProgramme         SubjectType = "Programme"
	SubjectProgrammeTransfer SubjectType = "ProgrammeTransfer"
	SubjectProgrammeCertify  SubjectType = "ProgrammeCertify"
	SubjectInventoryRecord   SubjectType = "InventoryRecord"
)

// Entity is anything that can be authorized against. A bare SubjectType is an
// Entity too and stands for "any instance of this type".
type Entity interface {
	SubjectType() SubjectType
}

func (s SubjectType) SubjectType() SubjectType { return s }

func (*User) SubjectType() SubjectType              { return SubjectUser }
func (*Company) SubjectType() SubjectType           { return SubjectCompany }
func (*Programme) SubjectType() SubjectType         { return SubjectProgramme }
func (*ProgrammeTransfer) SubjectType() SubjectType { return SubjectProgrammeTransfer }
func (*ProgrammeCertify) SubjectType() SubjectType  { return SubjectProgrammeCertify }
func (*InventoryRecord) SubjectType() SubjectType   { return SubjectInventoryRecord }

// ParseSubjectType resolves a wire name to a SubjectType.
func ParseSubjectType(s string) (SubjectType, error) {
	switch st := SubjectType(s); st {
	case SubjectAll, SubjectUser, SubjectCompany, SubjectProgramme,
		SubjectProgrammeTransfer, SubjectProgrammeCertify, SubjectInventoryRecord:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown subject %q", ErrInvalidInput, s)
}

// IsType reports whether e is a type-level subject rather than an instance.
func IsType(e Entity) bool {
	_, ok := e.(SubjectType)
	return ok
}

// DecodeEntity builds the subject of a query from its wire form. An empty or
// null instance yields the type-level subject.
func DecodeEntity(st SubjectType, instance json.RawMessage) (Entity, error) {
	if _, err := ParseSubjectType(string(st)); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(instance)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || st == SubjectAll {
		return st, nil
	}
	var e Entity
	switch st {
	case SubjectUser:
		e = &User{}
	case SubjectCompany:
		e = &Company{}
	case SubjectProgramme:
		e = &Programme{}
	case SubjectProgrammeTransfer:
		e = &ProgrammeTransfer{}
	case SubjectProgrammeCertify:
		e = &ProgrammeCertify{}
	case SubjectInventoryRecord:
		e = &InventoryRecord{}
	}
	if err := json.Unmarshal(trimmed, e); err != nil {
		return nil, fmt.Errorf("%w: decode %s instance: %v", ErrInvalidInput, st, err)
	}
	return e, nil
}
