package auth

import "strings"

// RequirementKind selects how a Requirement's permissions are combined.
type RequirementKind int

const (
	RequireOne RequirementKind = iota
	RequireAnyOf
	RequireAllOf
)

func (k RequirementKind) String() string {
	switch k {
	case RequireOne:
		return "single"
	case RequireAnyOf:
		return "any"
	case RequireAllOf:
		return "all"
	default:
		return "unknown"
	}
}

// Requirement is the permission a handler demands before it runs.
type Requirement struct {
	Kind        RequirementKind
	Permissions []string
}

// Require demands a single permission.
func Require(permission string) Requirement {
	return Requirement{Kind: RequireOne, Permissions: []string{permission}}
}

// RequireAny demands at least one of permissions.
func RequireAny(permissions ...string) Requirement {
	return Requirement{Kind: RequireAnyOf, Permissions: permissions}
}

// RequireAll demands every one of permissions.
func RequireAll(permissions ...string) Requirement {
	return Requirement{Kind: RequireAllOf, Permissions: permissions}
}

func (r Requirement) String() string {
	return r.Kind.String() + "(" + strings.Join(r.Permissions, ",") + ")"
}

// Decision is the outcome of evaluating a Requirement. Granted is
// required ∩ effective and Missing is required − Granted, both in the order
// the permissions were required with duplicates removed.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Granted []string `json:"granted"`
	Missing []string `json:"missing"`
}

func decide(kind RequirementKind, required []string, granted func(string) bool) Decision {
	d := Decision{Granted: []string{}, Missing: []string{}}
	for _, p := range dedupeStrings(required) {
		if granted(p) {
			d.Granted = append(d.Granted, p)
		} else {
			d.Missing = append(d.Missing, p)
		}
	}
	switch kind {
	case RequireAnyOf:
		d.Allowed = len(d.Granted) > 0
	default:
		// RequireOne with an empty list has nothing to grant.
		d.Allowed = len(d.Missing) == 0 && (kind == RequireAllOf || len(d.Granted) > 0)
	}
	return d
}
