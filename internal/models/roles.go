package models

// Staff roles mirror the hospital's organizational roles: ordinary department
// staff (admin), department leads (core) bound to one department, and the
// system-wide super role. Patients never drive engine transitions directly.
const (
	RolePatient = "patient"
	RoleAdmin   = "admin"
	RoleCore    = "core"
	RoleSuper   = "super"
)

func ValidRole(role string) bool {
	switch role {
	case RolePatient, RoleAdmin, RoleCore, RoleSuper:
		return true
	}
	return false
}
