package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/srg/bleread/internal/logbook"
	"golang.org/x/term"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// entryRenderer prints log entries one per line: errors in red, results in
// bold green, subtexts faint.
type entryRenderer struct {
	out        io.Writer
	timestamps bool

	info, failure, result, subtext *color.Color
}

func newEntryRenderer(out io.Writer, colors, timestamps bool) *entryRenderer {
	r := &entryRenderer{
		out:        out,
		timestamps: timestamps,
		info:       color.New(color.Reset),
		failure:    color.New(color.FgRed),
		result:     color.New(color.FgGreen, color.Bold),
		subtext:    color.New(color.Faint),
	}
	for _, c := range []*color.Color{r.info, r.failure, r.result, r.subtext} {
		if colors {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

func (r *entryRenderer) Render(e logbook.Entry) {
	var line string
	if r.timestamps {
		line = e.Time.Format("15:04:05.000") + " "
	}

	switch {
	case e.IsError:
		line += r.failure.Sprint("error: " + e.Text)
	case e.IsHighlighted:
		line += r.result.Sprint(e.Text)
	default:
		line += r.info.Sprint(e.Text)
	}
	if e.Subtext != "" {
		line += " " + r.subtext.Sprint("("+e.Subtext+")")
	}
	fmt.Fprintln(r.out, line)
}

// jsonEntry is the --json form of a log entry.
type jsonEntry struct {
	ID          uint64    `json:"id"`
	Time        time.Time `json:"time"`
	Text        string    `json:"text"`
	Subtext     string    `json:"subtext,omitempty"`
	Error       bool      `json:"error,omitempty"`
	Highlighted bool      `json:"highlighted,omitempty"`
}

type jsonReport struct {
	Value   *string     `json:"value"`
	Error   string      `json:"error,omitempty"`
	Entries []jsonEntry `json:"entries"`
}

func writeJSONReport(out io.Writer, entries []logbook.Entry, cycleErr error) error {
	report := jsonReport{Entries: make([]jsonEntry, 0, len(entries))}
	for _, e := range entries {
		report.Entries = append(report.Entries, jsonEntry{
			ID:          e.ID,
			Time:        e.Time,
			Text:        e.Text,
			Subtext:     e.Subtext,
			Error:       e.IsError,
			Highlighted: e.IsHighlighted,
		})
		if e.IsHighlighted && report.Value == nil {
			v := e.Text
			report.Value = &v
		}
	}
	if cycleErr != nil {
		report.Error = FormatUserError(cycleErr)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
