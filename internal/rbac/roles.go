package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleAdmin    = "admin"
	RoleGestor   = "gestor"   // heads of department: reports, sweeps, workflow administration
	RoleServidor = "servidor" // registers and moves protocols
	RoleAuditor  = "auditor"  // read-only access to audit trail and reports
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RoleAdmin, RoleGestor, RoleServidor, RoleAuditor:
		return true
	default:
		return false
	}
}
