package domain

// LinkType classifies a correlation link.
type LinkType string

const (
	LinkContact       LinkType = "contact"
	LinkLocation      LinkType = "location"
	LinkTime          LinkType = "time"
	LinkKeyword       LinkType = "keyword"
	LinkCrossPlatform LinkType = "cross_platform"
	LinkIdentifier    LinkType = "identifier"
)

// CorrelationLink ties records across conversations through a shared signal.
// Read-only once created. Links are symmetric: every participant's link set
// contains the same link.
type CorrelationLink struct {
	Type LinkType `json:"type"`

	// Key is the normalized shared signal (keyword, contact key, location
	// key, identifier, or platform pair).
	Key string `json:"key"`

	// Module is set for keyword and cross-platform links, which exist per
	// module; other link types span modules.
	Module ModuleName `json:"module,omitempty"`

	// RecordIDs are the participating records, sorted.
	RecordIDs []string `json:"recordIds"`

	// Conversations are the distinct conversation keys involved, sorted.
	Conversations []string `json:"conversations"`

	// Strength is the count of corroborating signals, not a probability.
	Strength int `json:"strength"`
}

// Involves reports whether the link references the given record.
func (l *CorrelationLink) Involves(recordID string) bool {
	for _, id := range l.RecordIDs {
		if id == recordID {
			return true
		}
	}
	return false
}
