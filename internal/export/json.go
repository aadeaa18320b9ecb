package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Timborini/ticktacktoto-sub000/internal/format"
	"github.com/Timborini/ticktacktoto-sub000/internal/store"
)

type jsonEntry struct {
	TicketID       string `json:"ticketId"`
	Duration       string `json:"duration"`
	DurationMs     int64  `json:"durationMs"`
	Note           string `json:"note"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime,omitempty"`
	SessionID      string `json:"sessionId"`
	Status         string `json:"status"`
	SubmissionDate string `json:"submissionDate,omitempty"`
}

// WriteJSON writes sessions as an indented JSON array with RFC 3339
// timestamps.
func WriteJSON(w io.Writer, sessions []store.Session) error {
	entries := make([]jsonEntry, 0, len(sessions))
	for _, s := range sessions {
		entries = append(entries, jsonEntry{
			TicketID:       s.TicketID,
			Duration:       format.Duration(s.AccumulatedMs),
			DurationMs:     s.AccumulatedMs,
			Note:           s.Note,
			StartTime:      s.CreatedAt.Format(time.RFC3339),
			EndTime:        rfc3339(s.EndTime),
			SessionID:      s.ID,
			Status:         string(s.Status),
			SubmissionDate: rfc3339(s.SubmissionDate),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func rfc3339(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
