package buildstep

import (
	"context"
	"fmt"

	"github.com/jkaninda/gitcreds/internal/credentials"
)

// DisplayName is how the host presents this extension in job configuration.
const DisplayName = "Git Credentials"

// SchemaField describes one entry of the job configuration form.
type SchemaField struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "bool" or "string".
	Description string `json:"description"`
}

// ConfigSchema is the static configuration schema the host consumes to
// render the job form. No runtime discovery — the schema never changes.
func ConfigSchema() []SchemaField {
	return []SchemaField{
		{Name: "enable_user_lookup", Type: "bool", Description: "Look up SSH keys owned by the user who started the build."},
		{Name: "fail_build_if_no_user_credential", Type: "bool", Description: "Mark the build failed when the user has no SSH keys."},
		{Name: "enable_system_lookup", Type: "bool", Description: "Look up the configured system SSH key."},
		{Name: "system_credential_id", Type: "string", Description: "ID of the system credential to use."},
	}
}

// Descriptor is the host-facing registration surface: applicability,
// schema, and the read-only credential listing for form population.
type Descriptor struct {
	store credentials.Store
}

// NewDescriptor creates a Descriptor over the credential store.
func NewDescriptor(store credentials.Store) *Descriptor {
	return &Descriptor{store: store}
}

// IsApplicable reports whether the extension applies to a job's SCM type.
// Only git checkouts consult GIT_SSH.
func (d *Descriptor) IsApplicable(scmType string) bool {
	return scmType == "GitSCM"
}

// ListSystemCredentials returns the system-scoped private-key credentials
// as UI options. Pure projection — no side effects, no key material.
func (d *Descriptor) ListSystemCredentials(ctx context.Context) ([]credentials.Option, error) {
	candidates, err := d.store.Lookup(ctx, credentials.KindSSHPrivateKey, credentials.System())
	if err != nil {
		return nil, fmt.Errorf("listing system credentials: %w", err)
	}
	options := make([]credentials.Option, 0, len(candidates))
	for _, cand := range candidates {
		options = append(options, credentials.Option{
			ID:           cand.ID,
			DisplayLabel: cand.DisplayLabel(),
		})
	}
	return options, nil
}
