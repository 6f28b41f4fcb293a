// Package classname parses and canonicalizes class names.
//
// A standard class name is COURSE-LETTER where COURSE is one of
// 1eso..4eso, 1bach, 2bach and LETTER is A..G (case-insensitive).
// Anything else that is non-empty is a custom group name.
package classname

import (
	"regexp"
	"strings"

	"github.com/dalemusser/centerhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
)

var standardPattern = regexp.MustCompile(`(?i)^([1-4]eso|[12]bach)-([A-G])$`)

// Courses lists the standard courses in display order.
var Courses = []string{"1eso", "2eso", "3eso", "4eso", "1bach", "2bach"}

// Letters lists the standard section letters.
var Letters = []string{"A", "B", "C", "D", "E", "F", "G"}

// ParseStandard splits a standard name into canonical course ("4eso") and
// letter ("B"). ok is false for custom names.
func ParseStandard(name string) (course, letter string, ok bool) {
	m := standardPattern.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return "", "", false
	}
	return strings.ToLower(m[1]), strings.ToUpper(m[2]), true
}

// IsStandard reports whether name matches the standard pattern.
func IsStandard(name string) bool {
	_, _, ok := ParseStandard(name)
	return ok
}

// Standard builds the canonical standard name from its parts.
func Standard(course, letter string) string {
	return strings.ToLower(strings.TrimSpace(course)) + "-" + strings.ToUpper(strings.TrimSpace(letter))
}

// Fold returns the comparison key used for case-insensitive uniqueness.
func Fold(name string) string {
	return text.Fold(strings.TrimSpace(name))
}

// MemberKey returns the (course, className) pair that member users store
// for the class. Definitions written before Course/Section were recorded
// are derived from the name.
func MemberKey(cd models.ClassDefinition) (course, className string) {
	if cd.Course != "" && cd.Section != "" {
		return cd.Course, cd.Section
	}
	if c, l, ok := ParseStandard(cd.Name); ok {
		return c, l
	}
	return models.CourseManagement, cd.Name
}

// Define fills the derived fields of a class definition from its name.
// Standard names are canonicalized.
func Define(cd models.ClassDefinition) models.ClassDefinition {
	if c, l, ok := ParseStandard(cd.Name); ok {
		cd.Name = Standard(c, l)
		cd.Kind = models.ClassStandard
		cd.Course, cd.Section = c, l
	} else {
		cd.Name = strings.TrimSpace(cd.Name)
		cd.Kind = models.ClassCustom
		cd.Course, cd.Section = models.CourseManagement, cd.Name
	}
	cd.NameCI = Fold(cd.Name)
	return cd
}
