package enums

import "fmt"

// NoteStatus maps to the note_status enum in Postgres.
type NoteStatus string

const (
	NoteStatusProcessing NoteStatus = "PROCESSING"
	NoteStatusCompleted  NoteStatus = "COMPLETED"
	NoteStatusFailed     NoteStatus = "FAILED"
)

var validNoteStatuses = []NoteStatus{
	NoteStatusProcessing,
	NoteStatusCompleted,
	NoteStatusFailed,
}

// IsValid reports whether the value matches the canonical note_status enum.
func (s NoteStatus) IsValid() bool {
	for _, candidate := range validNoteStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transition.
func (s NoteStatus) IsTerminal() bool {
	return s == NoteStatusCompleted || s == NoteStatusFailed
}

// ParseNoteStatus converts raw input into NoteStatus.
func ParseNoteStatus(value string) (NoteStatus, error) {
	for _, candidate := range validNoteStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid note status %q", value)
}
