package store

// Stores is the top-level container for the storage backends.
type Stores struct {
	Gags    GagStore
	Members MemberStore

	// Close releases the backend. Nil for in-memory stores.
	Close func() error
}

// Durable reports whether the stores outlive the process.
func (s *Stores) Durable() bool {
	return s.Close != nil
}
