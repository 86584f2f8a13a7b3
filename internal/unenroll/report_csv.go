package unenroll

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/JonMunkholm/unenroll/internal/records"
)

// CSVReport writes one line per outcome: status and detail columns followed
// by the original row. The header is written with the first outcome, using
// that row's passthrough columns.
type CSVReport struct {
	w           *csv.Writer
	wroteHeader bool
	extra       []string
}

// NewCSVReport creates a CSVReport writing to w.
func NewCSVReport(w io.Writer) *CSVReport {
	return &CSVReport{w: csv.NewWriter(w)}
}

// Write implements OutcomeSink.
func (c *CSVReport) Write(o RowOutcome) error {
	if !c.wroteHeader {
		c.wroteHeader = true
		for _, f := range o.Row.Extra {
			c.extra = append(c.extra, f.Name)
		}
		header := []string{"status", "detail", "line", records.ColUsername, records.ColEmail, records.ColCourseID}
		header = append(header, c.extra...)
		if err := c.w.Write(header); err != nil {
			return fmt.Errorf("write report header: %w", err)
		}
	}

	detail := ""
	if o.Err != nil {
		detail = o.Err.Error()
	}

	line := []string{o.Kind.String(), detail, strconv.Itoa(o.Row.Line), o.Row.Username, o.Row.Email, o.Row.CourseID}
	for _, name := range c.extra {
		v, _ := o.Row.Field(name)
		line = append(line, v)
	}

	if err := c.w.Write(line); err != nil {
		return fmt.Errorf("write report line %d: %w", o.Row.Line, err)
	}
	return nil
}

// Flush implements OutcomeSink.
func (c *CSVReport) Flush() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}
