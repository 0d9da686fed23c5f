package services

// PermissionAll grants every permission.
const PermissionAll = "*"

// Actor is the caller of an orchestrator operation together with the
// request metadata recorded in history rows.
type Actor struct {
	UserID      *uint
	Username    string
	Permissions []string
	IP          string
	UserAgent   string
	RequestID   string
}

// SystemActor is used by the CLI and the backup scheduler.
func SystemActor() Actor {
	return Actor{Username: "system", Permissions: []string{PermissionAll}}
}

func (a Actor) Can(permission string) bool {
	for _, p := range a.Permissions {
		if p == PermissionAll || p == permission {
			return true
		}
	}
	return false
}

// CanAny reports whether the actor holds at least one of required. An
// empty list is open to everyone.
func (a Actor) CanAny(required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if a.Can(r) {
			return true
		}
	}
	return false
}
