package policy

// Store is the read/write surface every policy backend must satisfy.
// Reads must be lock-free and safe for concurrent use with Install.
type Store interface {
	// LookupAgent returns the agent spec for id from the current
	// snapshot, and whether it was found.
	LookupAgent(id string) (AgentSpec, bool)

	// Snapshot returns the documents currently installed, newest
	// install first is not guaranteed; callers must not mutate the
	// returned slice or its contents.
	Snapshot() []RuleDocument

	// Install replaces the current document set according to this
	// rule: a non-empty docs always replaces the prior set; an empty
	// docs replaces the prior set only if loadErr is nil (a directory
	// that is legitimately empty), and
	// is rejected (prior set kept, version unchanged) if loadErr is
	// non-nil (every file in the directory failed to parse). Install
	// returns an error only when the install was rejected.
	Install(docs []RuleDocument, loadErr error) error

	// Version returns the monotonically increasing generation number
	// bumped on every successful Install.
	Version() int64
}
