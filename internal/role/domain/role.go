package domain

// Role is a named role assigned to a user. SystemID is empty for roles not owned by any system.
type Role struct {
	ID       string
	SystemID string
	Name     string
}

// ModuleGrant is the access level a role holds on one permission module of a system.
type ModuleGrant struct {
	RoleID      string
	ModuleID    string
	BitPosition int
	Level       int
}

// ForSystem returns the roles owned by systemID, preserving order.
func ForSystem(roles []*Role, systemID string) []*Role {
	out := make([]*Role, 0, len(roles))
	for _, r := range roles {
		if r != nil && r.SystemID != "" && r.SystemID == systemID {
			out = append(out, r)
		}
	}
	return out
}

// Names returns the role names in order, skipping duplicates.
func Names(roles []*Role) []string {
	seen := make(map[string]bool, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r == nil || seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		out = append(out, r.Name)
	}
	return out
}

// IDs returns the role ids in order.
func IDs(roles []*Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r != nil {
			out = append(out, r.ID)
		}
	}
	return out
}

// SystemIDs returns the distinct owning system ids, in first-seen order.
func SystemIDs(roles []*Role) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range roles {
		if r == nil || r.SystemID == "" || seen[r.SystemID] {
			continue
		}
		seen[r.SystemID] = true
		out = append(out, r.SystemID)
	}
	return out
}
