package rbac

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

// SeedFile is the YAML description of the baseline permissions and roles.
type SeedFile struct {
	Permissions []SeedPermission `yaml:"permissions"`
	Roles       []SeedRole       `yaml:"roles"`
}

// SeedPermission describes one permission by name.
type SeedPermission struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Resource    string `yaml:"resource"`
	Action      string `yaml:"action"`
	Category    string `yaml:"category"`
}

// SeedRole describes one role. Permissions are referenced by name.
type SeedRole struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	System      bool     `yaml:"system"`
	Permissions []string `yaml:"permissions"`
}

// SeedResult counts what a seed run changed.
type SeedResult struct {
	PermissionsCreated int `json:"permissionsCreated"`
	RolesCreated       int `json:"rolesCreated"`
	MembershipsAdded   int `json:"membershipsAdded"`
}

// LoadSeedFile reads a seed file from disk.
func LoadSeedFile(path string) (*SeedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return ParseSeed(f)
}

// ParseSeed decodes a seed document. Unknown keys are rejected.
func ParseSeed(r io.Reader) (*SeedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed SeedFile
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &seed, nil
}

// Seeder applies seed files. Runs are idempotent: existing permissions and
// roles are matched by name and left as they are, except that missing role
// memberships are added.
type Seeder struct {
	permissions PermissionRepository
	roles       RoleRepository
	settings
}

// NewSeeder creates a seeder.
func NewSeeder(permissions PermissionRepository, roles RoleRepository, opts ...Option) *Seeder {
	return &Seeder{permissions: permissions, roles: roles, settings: newSettings(opts)}
}

// Apply creates what is missing from seed and then checks that the default
// role exists.
func (s *Seeder) Apply(ctx context.Context, seed *SeedFile) (SeedResult, error) {
	var res SeedResult
	byName := make(map[string]string, len(seed.Permissions))

	for _, sp := range seed.Permissions {
		p, err := s.permissions.FindByName(ctx, sp.Name)
		if apperrors.IsNotFound(err) {
			p, err = s.permissions.Create(ctx, model.Permission{
				Name:        sp.Name,
				Description: sp.Description,
				Resource:    sp.Resource,
				Action:      sp.Action,
				Category:    model.Category(sp.Category),
			})
			if err == nil {
				res.PermissionsCreated++
			}
		}
		if err != nil {
			return res, fmt.Errorf("permission %q: %w", sp.Name, err)
		}
		byName[p.Name] = p.ID
	}

	for _, sr := range seed.Roles {
		permissionIDs, err := s.resolveNames(ctx, byName, sr.Permissions)
		if err != nil {
			return res, fmt.Errorf("role %q: %w", sr.Name, err)
		}

		role, err := s.roles.FindByName(ctx, sr.Name)
		switch {
		case apperrors.IsNotFound(err):
			if _, err := s.roles.Create(ctx, model.Role{
				Name:        sr.Name,
				Description: sr.Description,
				Permissions: permissionIDs,
				IsSystem:    sr.System,
			}); err != nil {
				return res, fmt.Errorf("role %q: %w", sr.Name, err)
			}
			res.RolesCreated++
		case err != nil:
			return res, fmt.Errorf("role %q: %w", sr.Name, err)
		default:
			var missing []string
			for _, id := range permissionIDs {
				if !role.HasPermission(id) {
					missing = append(missing, id)
				}
			}
			if len(missing) == 0 {
				continue
			}
			if _, err := s.roles.AddPermissionsToRole(ctx, role.ID, missing); err != nil {
				return res, fmt.Errorf("role %q: %w", sr.Name, err)
			}
			res.MembershipsAdded += len(missing)
		}
	}

	if _, err := s.roles.GetDefaultRole(ctx); err != nil {
		return res, fmt.Errorf("default role %q missing after seeding: %w", model.DefaultRoleName, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"permissions_created": res.PermissionsCreated,
		"roles_created":       res.RolesCreated,
		"memberships_added":   res.MembershipsAdded,
	}).Info("rbac seed applied")
	return res, nil
}

// resolveNames maps permission names to ids, looking up names the seed
// file itself did not declare.
func (s *Seeder) resolveNames(ctx context.Context, byName map[string]string, names []string) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		id, ok := byName[name]
		if !ok {
			p, err := s.permissions.FindByName(ctx, name)
			if err != nil {
				return nil, err
			}
			id = p.ID
			byName[name] = id
		}
		ids = append(ids, id)
	}
	return ids, nil
}
