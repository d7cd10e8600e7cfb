package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/wampkit/wampkit/auth"
	"github.com/wampkit/wampkit/wamp"
)

// Manifest is the static realm configuration:
//
//	[[realm]]
//	name = "realm1"
//
//	[[realm.role]]
//	name = "frontend"
//
//	[[realm.role.grant]]
//	prefix = "com.myapp."
//	subscribe = true
//	publish = true
type Manifest struct {
	Realms []RealmConfig `toml:"realm"`
}

// RealmConfig declares one realm and the grants of the roles acting in
// it.
type RealmConfig struct {
	Name  wamp.URI     `toml:"name"`
	Roles []RoleConfig `toml:"role"`
}

// RoleConfig names a role and its URI-prefix grants.
type RoleConfig struct {
	Name   string        `toml:"name"`
	Grants []GrantConfig `toml:"grant"`
}

// GrantConfig is one URI-prefix permission entry.
type GrantConfig struct {
	Prefix    wamp.URI `toml:"prefix"`
	Subscribe bool     `toml:"subscribe"`
	Publish   bool     `toml:"publish"`
	Register  bool     `toml:"register"`
	Call      bool     `toml:"call"`
	Disclose  bool     `toml:"disclose"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &m, nil
}

// Validate checks realm names and uniqueness.
func (m *Manifest) Validate() error {
	seen := make(map[wamp.URI]bool, len(m.Realms))
	for _, r := range m.Realms {
		if !wamp.ValidURI(r.Name) {
			return fmt.Errorf("invalid realm name %q", r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate realm %q", r.Name)
		}
		seen[r.Name] = true
		for _, role := range r.Roles {
			if role.Name == "" {
				return fmt.Errorf("realm %q: role with empty name", r.Name)
			}
		}
	}
	return nil
}

// RealmNames lists the declared realms.
func (m *Manifest) RealmNames() []wamp.URI {
	names := make([]wamp.URI, 0, len(m.Realms))
	for _, r := range m.Realms {
		names = append(names, r.Name)
	}
	return names
}

// Authorizer builds a role authorizer from the manifest's grants. Role
// names are shared across realms; a role's grants are the union of its
// entries in every realm.
func (m *Manifest) Authorizer() auth.Authorizer {
	grants := make(map[string][]auth.Grant)
	for _, r := range m.Realms {
		for _, role := range r.Roles {
			for _, g := range role.Grants {
				grants[role.Name] = append(grants[role.Name], auth.Grant{
					Prefix:    g.Prefix,
					Subscribe: g.Subscribe,
					Publish:   g.Publish,
					Register:  g.Register,
					Call:      g.Call,
					Disclose:  g.Disclose,
				})
			}
		}
	}
	if len(grants) == 0 {
		return auth.AllowAll()
	}
	return auth.NewRoleAuthorizer(grants)
}
