package agents

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/squadworks/squad/pkg/models"
)

//go:embed profiles.yaml
var builtinProfiles []byte

var validate = validator.New()

// Catalog is a validated set of agent profiles keyed by role.
type Catalog struct {
	profiles []models.AgentProfile
}

type catalogFile struct {
	Agents []models.AgentProfile `yaml:"agents"`
}

// DefaultCatalog returns the built-in drafting and deployment profiles.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(builtinProfiles)
}

// LoadCatalog reads a YAML profile file from disk. An empty path returns the
// built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("agents: read %s: %w", path, err)
	}
	cat, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("agents: %s: %w", path, err)
	}
	return cat, nil
}

// ParseCatalog decodes and validates a YAML profile payload. Each role must
// be served by exactly one profile and names must be unique.
func ParseCatalog(data []byte) (*Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("agents: profile payload is empty")
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("agents: decode profiles: %w", err)
	}

	names := make(map[string]struct{}, len(file.Agents))
	roles := make(map[models.AgentRole]string, len(file.Agents))
	for i, p := range file.Agents {
		if err := validate.Struct(p); err != nil {
			return nil, fmt.Errorf("agents: profile %d (%q): %w", i, p.Name, err)
		}
		if _, dup := names[p.Name]; dup {
			return nil, fmt.Errorf("agents: duplicate profile name %q", p.Name)
		}
		names[p.Name] = struct{}{}
		if other, dup := roles[p.Role]; dup {
			return nil, fmt.Errorf("agents: role %q served by both %q and %q", p.Role, other, p.Name)
		}
		roles[p.Role] = p.Name
	}

	for _, role := range []models.AgentRole{models.AgentRoleDrafting, models.AgentRoleDeployment} {
		if _, ok := roles[role]; !ok {
			return nil, fmt.Errorf("agents: no profile for role %q", role)
		}
	}

	return &Catalog{profiles: file.Agents}, nil
}

// ForRole returns the profile serving role, with an empty model replaced by
// defaultModel.
func (c *Catalog) ForRole(role models.AgentRole, defaultModel string) (models.AgentProfile, error) {
	for _, p := range c.profiles {
		if p.Role != role {
			continue
		}
		if p.Model == "" {
			p.Model = defaultModel
		}
		return p, nil
	}
	return models.AgentProfile{}, fmt.Errorf("agents: no profile for role %q", role)
}

// Profiles returns a copy of every profile in file order.
func (c *Catalog) Profiles() []models.AgentProfile {
	out := make([]models.AgentProfile, len(c.profiles))
	copy(out, c.profiles)
	return out
}
