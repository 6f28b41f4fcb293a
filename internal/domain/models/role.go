// internal/domain/models/role.go
package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// RoleKind enumerates the variants of Role, lowest rank first.
type RoleKind int

const (
	KindStudent RoleKind = iota
	KindClassAdmin
	KindCenterAdmin
	KindGlobalAdmin
)

// Stored role strings.
const (
	roleGlobalAdmin      = "admin"
	roleCenterAdmin      = "center-admin"
	roleStudent          = "student"
	roleClassAdminPrefix = "admin-"
)

// Role is the tagged union GlobalAdmin | CenterAdmin | ClassAdmin(name) | Student.
// ClassName is only meaningful for KindClassAdmin.
//
// In storage it is a single string ("admin", "center-admin", "student",
// "admin-<className>"); Role implements the BSON and JSON value codecs so
// callers never parse that string themselves.
type Role struct {
	Kind      RoleKind
	ClassName string
}

func GlobalAdmin() Role { return Role{Kind: KindGlobalAdmin} }
func CenterAdmin() Role { return Role{Kind: KindCenterAdmin} }
func Student() Role     { return Role{Kind: KindStudent} }

// ClassAdmin returns the role administering the named class.
func ClassAdmin(className string) Role {
	return Role{Kind: KindClassAdmin, ClassName: className}
}

// ParseRole decodes a stored role string. Unknown values decode as Student
// so a corrupted document never grants privileges.
func ParseRole(s string) Role {
	s = strings.TrimSpace(s)
	switch {
	case s == roleGlobalAdmin:
		return GlobalAdmin()
	case s == roleCenterAdmin:
		return CenterAdmin()
	case strings.HasPrefix(s, roleClassAdminPrefix) && len(s) > len(roleClassAdminPrefix):
		return ClassAdmin(s[len(roleClassAdminPrefix):])
	default:
		return Student()
	}
}

// ParseRoleStrict is ParseRole for untrusted input: unknown strings are an error.
func ParseRoleStrict(s string) (Role, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == roleGlobalAdmin, s == roleCenterAdmin, s == roleStudent:
		return ParseRole(s), nil
	case strings.HasPrefix(s, roleClassAdminPrefix) && strings.TrimSpace(s[len(roleClassAdminPrefix):]) != "":
		return ParseRole(s), nil
	}
	return Role{}, fmt.Errorf("unknown role %q", s)
}

// String returns the stored form of the role.
func (r Role) String() string {
	switch r.Kind {
	case KindGlobalAdmin:
		return roleGlobalAdmin
	case KindCenterAdmin:
		return roleCenterAdmin
	case KindClassAdmin:
		return roleClassAdminPrefix + r.ClassName
	case KindStudent:
		return roleStudent
	}
	return roleStudent
}

// IsClassAdminOf reports whether r administers the named class (case-insensitive).
func (r Role) IsClassAdminOf(className string) bool {
	return r.Kind == KindClassAdmin && strings.EqualFold(r.ClassName, className)
}

// IsAdmin reports whether r is any admin variant.
func (r Role) IsAdmin() bool {
	return r.Kind != KindStudent
}

// Equal compares roles; class names compare case-insensitively.
func (r Role) Equal(o Role) bool {
	if r.Kind != o.Kind {
		return false
	}
	return r.Kind != KindClassAdmin || strings.EqualFold(r.ClassName, o.ClassName)
}

func (r Role) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(r.String())
}

func (r *Role) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t == bsontype.Null || t == bsontype.Undefined {
		*r = Student()
		return nil
	}
	s, ok := bson.RawValue{Type: t, Value: data}.StringValueOK()
	if !ok {
		return fmt.Errorf("role: expected string, got %s", t)
	}
	*r = ParseRole(s)
	return nil
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRoleStrict(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
