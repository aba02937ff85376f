package notes

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mtuci/autonotes-backend/pkg/enums"
)

// NoteProcessingEvent is published to the recognition workers when a note is
// created. Paths are ordered the way the images were submitted.
type NoteProcessingEvent struct {
	NoteID uuid.UUID `json:"noteId"`
	Bucket string    `json:"bucket"`
	Paths  []string  `json:"paths"`
}

// NoteResultEvent is consumed from the results queue once a worker finishes.
// RecognizedText and SummaryText are set on success, ErrorMessage on failure.
type NoteResultEvent struct {
	NoteID         uuid.UUID `json:"noteId"`
	Status         string    `json:"status"`
	RecognizedText *string   `json:"recognizedText,omitempty"`
	SummaryText    *string   `json:"summaryText,omitempty"`
	ErrorMessage   *string   `json:"errorMessage,omitempty"`
}

// DecodeResultEvent parses and validates a raw result message. A non-nil
// error means the payload can never be processed and should be dead-lettered
// rather than retried.
func DecodeResultEvent(body []byte) (*NoteResultEvent, error) {
	var event NoteResultEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decoding result event: %w", err)
	}
	if event.NoteID == uuid.Nil {
		return nil, fmt.Errorf("result event is missing noteId")
	}
	status, err := enums.ParseNoteStatus(event.Status)
	if err != nil {
		return nil, fmt.Errorf("result event carries %w", err)
	}
	if !status.IsTerminal() {
		return nil, fmt.Errorf("result event status %q is not terminal", event.Status)
	}
	return &event, nil
}

// ResultStatus returns the parsed terminal status. Only meaningful after
// DecodeResultEvent has validated the event.
func (e *NoteResultEvent) ResultStatus() enums.NoteStatus {
	status, _ := enums.ParseNoteStatus(e.Status)
	return status
}
