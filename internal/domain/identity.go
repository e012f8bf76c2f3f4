package domain

// Identity is the authenticated user a session is scoped to.
// The zero value means "no identity".
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

func (i Identity) IsZero() bool { return i.ID == "" }

// Same reports whether both identities refer to the same user.
func (i Identity) Same(other Identity) bool { return i.ID == other.ID }

// TransitionKind enumerates session changes.
type TransitionKind string

const (
	SignedIn  TransitionKind = "signed_in"
	SignedOut TransitionKind = "signed_out"
)

// Transition is emitted by a SessionProvider whenever the identity changes.
type Transition struct {
	Kind     TransitionKind
	Identity Identity // zero for SignedOut
}
