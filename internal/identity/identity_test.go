package identity

import "testing"

func TestFromCause(t *testing.T) {
	tests := []struct {
		name  string
		cause *Cause
		want  string // expected UserID; "" means nil identity
	}{
		{"nil cause", nil, ""},
		{"timer cause", &Cause{Kind: CauseTimer}, ""},
		{"scm cause", &Cause{Kind: CauseSCM}, ""},
		{"user cause without id", &Cause{Kind: CauseUser}, ""},
		{"user cause", &Cause{Kind: CauseUser, UserID: "alice"}, "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := FromCause(tt.cause)
			if tt.want == "" {
				if id != nil {
					t.Fatalf("expected nil identity, got %+v", id)
				}
				return
			}
			if id == nil {
				t.Fatal("expected identity, got nil")
			}
			if id.UserID != tt.want {
				t.Errorf("got UserID=%q, want %q", id.UserID, tt.want)
			}
		})
	}
}

func TestImpersonate(t *testing.T) {
	id := &Identity{UserID: "alice"}
	access := id.Impersonate()
	if access.IsSystem() {
		t.Error("impersonated context must not be the system context")
	}
	if access.UserID() != "alice" {
		t.Errorf("got UserID=%q, want %q", access.UserID(), "alice")
	}
}
