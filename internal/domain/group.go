package domain

import "time"

// Grouping methods for synonym groups.
const (
	GroupMethodKeyword   = "keyword"
	GroupMethodEmbedding = "embedding"
	GroupMethodExplicit  = "explicit"
)

// SynonymGroup clusters markets that price the same underlying event.
type SynonymGroup struct {
	ID        int64
	Title     string
	Method    string
	Members   []string
	UpdatedAt time.Time
}
