package domain

import "fmt"

// ConfigError reports a malformed rule book entry. Fatal at startup; a run
// never proceeds past catalog compilation with a bad config.
type ConfigError struct {
	Module ModuleName
	Field  string
	Detail string
}

func (e *ConfigError) Error() string {
	if e.Module == "" {
		return fmt.Sprintf("config: %s: %s", e.Field, e.Detail)
	}
	return fmt.Sprintf("config: module %s: %s: %s", e.Module, e.Field, e.Detail)
}

// RecordError reports a single malformed record. Recovered locally: the
// record is skipped and counted as a warning in the case summary.
type RecordError struct {
	RecordID string
	Reason   string
}

func (e *RecordError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("record: %s", e.Reason)
	}
	return fmt.Sprintf("record %s: %s", e.RecordID, e.Reason)
}
