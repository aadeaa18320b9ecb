package export

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/Timborini/ticktacktoto-sub000/internal/format"
	"github.com/Timborini/ticktacktoto-sub000/internal/store"
)

var csvHeader = []string{
	"Ticket ID", "Duration", "Note", "Start Time", "Finish Time", "Session ID", "Status", "Submission Date",
}

// WriteCSV writes a header row and one row per session. Every field is quoted
// and formula-looking values are apostrophe-prefixed.
func WriteCSV(w io.Writer, sessions []store.Session, loc *time.Location) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintln(bw, format.CSVRow(csvHeader...)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, s := range sessions {
		created := s.CreatedAt
		row := format.CSVRow(
			s.TicketID,
			format.Duration(s.AccumulatedMs),
			s.Note,
			format.DateTime(&created, loc),
			format.DateTime(s.EndTime, loc),
			s.ID,
			string(s.Status),
			format.DateTime(s.SubmissionDate, loc),
		)
		if _, err := fmt.Fprintln(bw, row); err != nil {
			return fmt.Errorf("write csv row %s: %w", s.ID, err)
		}
	}

	return bw.Flush()
}
