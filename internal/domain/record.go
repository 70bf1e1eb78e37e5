package domain

import (
	"strings"
	"time"
)

// Record is a normalized communication event (message or call) independent
// of the source platform. Immutable once created; owned by the pipeline for
// the duration of a run.
type Record struct {
	// Core identifiers
	ID     string `json:"id"`
	CaseID string `json:"caseId"`

	// Kind distinguishes text messages from call log entries.
	Kind RecordKind `json:"kind"`

	// Source platform (e.g., "ios", "android", or an app identifier)
	Platform string `json:"platform"`

	// ConversationKey is the normalized contact/thread identifier.
	// All records sharing a key are processed in timestamp order.
	ConversationKey string `json:"conversationKey"`

	Direction Direction `json:"direction"`

	// Text content; empty for calls and media-only messages.
	Text string `json:"text"`

	// MediaRefs are opaque attachment references. Refs with a "loc:" or
	// "contact:" prefix carry normalized location/contact metadata used
	// for correlation.
	MediaRefs []string `json:"mediaRefs,omitempty"`

	// Deleted marks records recovered from deleted storage.
	Deleted bool `json:"deleted"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`
}

// RecordKind is the communication event type.
type RecordKind string

const (
	KindMessage RecordKind = "message"
	KindCall    RecordKind = "call"
)

// Direction of a communication event relative to the device owner.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
	DirectionUnknown  Direction = "unknown"
)

// Platform identifiers for first-party sources. App-specific platforms
// (e.g., "whatsapp", "telegram") are free-form.
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
)

// Validate checks the minimum fields required for scoring. A failing record
// is skipped and counted, never fatal to the run.
func (r *Record) Validate() error {
	if r.ID == "" {
		return &RecordError{RecordID: r.ID, Reason: "missing record id"}
	}
	if r.Timestamp.IsZero() {
		return &RecordError{RecordID: r.ID, Reason: "missing timestamp"}
	}
	if r.ConversationKey == "" {
		return &RecordError{RecordID: r.ID, Reason: "missing conversation key"}
	}
	return nil
}

// HasMedia reports whether the record carries at least one attachment ref
// that is not location/contact metadata.
func (r *Record) HasMedia() bool {
	for _, ref := range r.MediaRefs {
		if !strings.HasPrefix(ref, "loc:") && !strings.HasPrefix(ref, "contact:") {
			return true
		}
	}
	return false
}

// LocationKeys returns the normalized location keys attached to the record.
func (r *Record) LocationKeys() []string {
	var keys []string
	for _, ref := range r.MediaRefs {
		if k, ok := strings.CutPrefix(ref, "loc:"); ok && k != "" {
			keys = append(keys, strings.ToLower(k))
		}
	}
	return keys
}

// ContactKeys returns the normalized shared-contact keys attached to the record.
func (r *Record) ContactKeys() []string {
	var keys []string
	for _, ref := range r.MediaRefs {
		if k, ok := strings.CutPrefix(ref, "contact:"); ok && k != "" {
			keys = append(keys, strings.ToLower(k))
		}
	}
	return keys
}

// AnalyzeRequest is the API request payload for a scoring run.
type AnalyzeRequest struct {
	CaseID   string        `json:"caseId"`
	CaseName string        `json:"caseName,omitempty"`
	Examiner string        `json:"examiner,omitempty"`
	Records  []RecordInput `json:"records"`
}

// RecordInput is one normalized record as submitted by the extraction layer.
// Per-record validation happens in the pipeline, where a bad record is
// skipped and counted rather than failing the request.
type RecordInput struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind,omitempty"`
	Platform        string    `json:"platform"`
	ConversationKey string    `json:"conversationKey"`
	Direction       string    `json:"direction,omitempty"`
	Text            string    `json:"text,omitempty"`
	MediaRefs       []string  `json:"mediaRefs,omitempty"`
	Deleted         bool      `json:"deleted,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// ToRecords converts a request to domain records scoped to the case.
func (r *AnalyzeRequest) ToRecords() []Record {
	records := make([]Record, 0, len(r.Records))
	for _, in := range r.Records {
		kind := RecordKind(in.Kind)
		if kind != KindCall {
			kind = KindMessage
		}
		dir := Direction(in.Direction)
		if dir != DirectionIncoming && dir != DirectionOutgoing {
			dir = DirectionUnknown
		}
		records = append(records, Record{
			ID:              in.ID,
			CaseID:          r.CaseID,
			Kind:            kind,
			Platform:        in.Platform,
			ConversationKey: in.ConversationKey,
			Direction:       dir,
			Text:            in.Text,
			MediaRefs:       in.MediaRefs,
			Deleted:         in.Deleted,
			Timestamp:       in.Timestamp.UTC(),
		})
	}
	return records
}
