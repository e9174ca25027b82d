package elefante

import "time"

// Memory is the public representation of a stored memory. It is a curated
// view of internal/model.Memory for use in extension interfaces — no
// internal package imports, safe to use from outside the module.
type Memory struct {
	ID             string
	Content        string
	Domain         string
	MemoryType     string
	Concepts       []string
	SurfacesWhen   []string
	AuthorityScore float32
	Importance     float32
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int
	SupersededBy   *string
}
