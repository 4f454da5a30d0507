package credentials

import (
	"context"
	"io"
	"log/slog"
)

// Source adapts the credential store into the two lookup origins the
// selection policy draws from: the invoking user's own credentials and the
// statically configured system credentials.
//
// Both lookups are read-only and fail soft: absence of credentials — or a
// store error — yields an empty slice, never an error. Whether an empty
// result matters is the selection policy's call, not this layer's.
type Source struct {
	store  Store
	logger *slog.Logger
}

// NewSource creates a Source over the given store.
func NewSource(store Store, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Source{store: store, logger: logger}
}

// UserScoped returns the private-key credentials visible under the given
// impersonated access context, in store order.
func (s *Source) UserScoped(ctx context.Context, access AccessContext) []Candidate {
	return s.lookup(ctx, access, "user")
}

// SystemScoped returns all private-key credentials visible under the
// elevated system context, in store order.
func (s *Source) SystemScoped(ctx context.Context) []Candidate {
	return s.lookup(ctx, System(), "system")
}

func (s *Source) lookup(ctx context.Context, access AccessContext, scope string) []Candidate {
	candidates, err := s.store.Lookup(ctx, KindSSHPrivateKey, access)
	if err != nil {
		// Store failures surface to the operator log only; the build sees
		// the same thing as "no credentials".
		s.logger.Error("credential store lookup failed",
			slog.String("scope", scope),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return candidates
}
