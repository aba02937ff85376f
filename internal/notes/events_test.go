package notes

import (
	"testing"

	"github.com/google/uuid"

	"github.com/mtuci/autonotes-backend/pkg/enums"
)

func TestDecodeResultEvent(t *testing.T) {
	noteID := uuid.New()
	body := []byte(`{
		"noteId": "` + noteID.String() + `",
		"status": "COMPLETED",
		"recognizedText": "lecture text",
		"summaryText": "summary"
	}`)

	event, err := DecodeResultEvent(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.NoteID != noteID {
		t.Errorf("expected note %s, got %s", noteID, event.NoteID)
	}
	if event.ResultStatus() != enums.NoteStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", event.Status)
	}
	if event.RecognizedText == nil || *event.RecognizedText != "lecture text" {
		t.Errorf("unexpected recognized text: %v", event.RecognizedText)
	}
}

func TestDecodeResultEventFailure(t *testing.T) {
	noteID := uuid.New()
	body := []byte(`{"noteId": "` + noteID.String() + `", "status": "FAILED", "errorMessage": "blurred image"}`)

	event, err := DecodeResultEvent(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.ResultStatus() != enums.NoteStatusFailed {
		t.Errorf("expected FAILED, got %s", event.Status)
	}
	if event.ErrorMessage == nil || *event.ErrorMessage != "blurred image" {
		t.Errorf("unexpected error message: %v", event.ErrorMessage)
	}
}

func TestDecodeResultEventRejectsBadPayloads(t *testing.T) {
	cases := map[string][]byte{
		"malformed json":      []byte(`{not json`),
		"missing note id":     []byte(`{"status": "COMPLETED"}`),
		"unknown status":      []byte(`{"noteId": "` + uuid.NewString() + `", "status": "DONE"}`),
		"non-terminal status": []byte(`{"noteId": "` + uuid.NewString() + `", "status": "PROCESSING"}`),
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeResultEvent(body); err == nil {
				t.Fatal("expected decode error")
			}
		})
	}
}
