package gate

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/assessor/pkg/rbac"
)

// Feature is one gated element of the admin surface
type Feature struct {
	Name       string          `yaml:"name" json:"name"`
	Label      string          `yaml:"label" json:"label"`
	Permission rbac.Permission `yaml:"permission" json:"permission"`
}

// catalogFile is the on-disk YAML layout
type catalogFile struct {
	Version  string    `yaml:"version"`
	Features []Feature `yaml:"features"`
}

// DefaultFeatures is the built-in catalog
func DefaultFeatures() []Feature {
	return []Feature{
		{Name: "dashboard", Label: "Dashboard", Permission: rbac.PermViewDashboard},
		{Name: "candidates", Label: "Candidates", Permission: rbac.PermViewCandidates},
		{Name: "candidate_details", Label: "Candidate details", Permission: rbac.PermViewCandidateDetails},
		{Name: "tagging", Label: "Tag candidates", Permission: rbac.PermTagCandidates},
		{Name: "annotations", Label: "Annotate candidates", Permission: rbac.PermAnnotateCandidates},
		{Name: "compare", Label: "Compare candidates", Permission: rbac.PermCompareCandidates},
		{Name: "export", Label: "Export results", Permission: rbac.PermExportResults},
		{Name: "assessments", Label: "Manage assessments", Permission: rbac.PermManageAssessments},
		{Name: "users", Label: "Manage users", Permission: rbac.PermManageUsers},
		{Name: "roles", Label: "Manage roles", Permission: rbac.PermManageRoles},
		{Name: "impersonation", Label: "Log in as user", Permission: rbac.PermImpersonateUsers},
		{Name: "audit_log", Label: "Audit log", Permission: rbac.PermViewAuditLog},
		{Name: "take_assessment", Label: "Take assessment", Permission: rbac.PermTakeAssessment},
		{Name: "my_results", Label: "My results", Permission: rbac.PermViewOwnResults},
	}
}

// ParseFeatures decodes and validates a YAML catalog
func ParseFeatures(data []byte) ([]Feature, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse feature catalog: %w", err)
	}
	if err := Validate(file.Features); err != nil {
		return nil, err
	}
	return file.Features, nil
}

// LoadFeatures reads a YAML catalog from path
func LoadFeatures(path string) ([]Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature catalog: %w", err)
	}
	return ParseFeatures(data)
}

// Validate rejects empty catalogs, duplicate names and unknown permissions.
// An unknown permission would otherwise hide the feature from everyone.
func Validate(features []Feature) error {
	if len(features) == 0 {
		return fmt.Errorf("feature catalog is empty")
	}
	known := make(map[rbac.Permission]bool)
	for _, p := range rbac.AllPermissions() {
		known[p] = true
	}
	seen := make(map[string]bool, len(features))
	for i, f := range features {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("feature %d has no name", i)
		}
		if seen[name] {
			return fmt.Errorf("duplicate feature %q", name)
		}
		seen[name] = true
		if !known[f.Permission] {
			return fmt.Errorf("feature %q requires unknown permission %q", name, f.Permission)
		}
	}
	return nil
}
