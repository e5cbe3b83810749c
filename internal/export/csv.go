// Package export renders ticket lists as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/spec-kit/it-helpdesk/internal/domain"
)

// ContentType is the media type of the export.
const ContentType = "text/csv; charset=utf-8"

// Header is the fixed first row.
var Header = []string{"ID", "Title", "Description", "Status", "Priority", "Category", "Created At", "User"}

const createdAtLayout = "2006-01-02 15:04:05"

// FileName returns tickets_export_<date>.csv for the day of now.
func FileName(now time.Time) string {
	return fmt.Sprintf("tickets_export_%s.csv", now.Format(time.DateOnly))
}

// WriteTickets writes the header and one row per view, in order. Fields with
// commas, quotes or line breaks are quoted and embedded quotes doubled.
func WriteTickets(w io.Writer, views []domain.TicketView) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, v := range views {
		row := []string{
			v.ID,
			v.Title,
			v.Description,
			string(v.Status),
			string(v.Priority),
			v.Category,
			v.CreatedAt.UTC().Format(createdAtLayout),
			v.OwnerName(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write ticket %s: %w", v.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
