package auth

// Scopes granted to console users and API clients.
const (
	ScopeLeadsRead  = "leads:read"
	ScopeLeadsWrite = "leads:write"
)

// Role is a console user's role within a workspace.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleCoach  Role = "coach"
	RoleViewer Role = "viewer"
)

// Scopes returns the scopes a session for this role carries.
func (r Role) Scopes() map[string]struct{} {
	switch r {
	case RoleOwner, RoleCoach:
		return map[string]struct{}{ScopeLeadsRead: {}, ScopeLeadsWrite: {}}
	case RoleViewer:
		return map[string]struct{}{ScopeLeadsRead: {}}
	}
	return map[string]struct{}{}
}
