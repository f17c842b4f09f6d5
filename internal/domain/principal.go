package domain

// ACL pseudo principals stored in the acl_read field of every document.
const (
	PseudoAll           = "pseudo:all"
	PseudoAuthenticated = "pseudo:authenticated"
)

// Principal is the identity a query runs as.
type Principal struct {
	ID     string
	Groups []string
	// Root principals bypass ACL filtering.
	Root bool
}

// Anonymous returns the principal used for queries without a token.
func Anonymous() Principal {
	return Principal{}
}

// IsAnonymous reports whether p carries no identity.
func (p Principal) IsAnonymous() bool {
	return p.ID == "" && !p.Root
}

// Identities returns the ACL identities p may read as.
func (p Principal) Identities() []string {
	if p.IsAnonymous() {
		return []string{PseudoAll}
	}
	ids := make([]string, 0, 3+len(p.Groups))
	ids = append(ids, PseudoAll, PseudoAuthenticated)
	if p.ID != "" {
		ids = append(ids, UserIdentity(p.ID))
	}
	for _, g := range p.Groups {
		if g != "" {
			ids = append(ids, GroupIdentity(g))
		}
	}
	return ids
}

// UserIdentity formats the ACL identity of a user.
func UserIdentity(id string) string { return "u:" + id }

// GroupIdentity formats the ACL identity of a group.
func GroupIdentity(name string) string { return "g:" + name }
