// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package report renders run reports and history listings for the terminal
// or as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/toeirei/keysync/internal/history"
	"github.com/toeirei/keysync/internal/i18n"
	"github.com/toeirei/keysync/internal/model"
	"golang.org/x/term"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

const (
	colorSubtle    = lipgloss.Color("240")
	colorHighlight = lipgloss.Color("81")
	colorSpecial   = lipgloss.Color("208")
	colorError     = lipgloss.Color("196")
	colorSuccess   = lipgloss.Color("40")
)

var (
	titleStyle  = lipgloss.NewStyle().Foreground(colorHighlight).Bold(true)
	headerStyle = lipgloss.NewStyle().Foreground(colorHighlight).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	subtleStyle = lipgloss.NewStyle().Foreground(colorSubtle)
	borderStyle = lipgloss.NewStyle().Foreground(colorSubtle)

	kindColors = map[model.ActionKind]lipgloss.Color{
		model.ActionCreated:   colorSuccess,
		model.ActionUpdated:   colorHighlight,
		model.ActionUntouched: colorSubtle,
		model.ActionDeleted:   colorSpecial,
		model.ActionSkipped:   colorSubtle,
		model.ActionFailed:    colorError,
	}
)

// ValidFormat reports whether f names a supported output format.
func ValidFormat(f string) bool {
	return f == FormatText || f == FormatJSON
}

// Styled reports whether w is a terminal that should receive colors.
func Styled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Renderer writes reports in one format.
type Renderer struct {
	Format string
	// Color enables lipgloss styling in text output.
	Color bool
	// Verbose lists untouched principals in text output.
	Verbose bool
}

// New returns a Renderer for w, enabling color when w is a terminal.
func New(w io.Writer, format string) Renderer {
	return Renderer{Format: format, Color: Styled(w)}
}

// Report writes a run report.
func (r Renderer) Report(w io.Writer, rep *model.Report) error {
	if r.Format == FormatJSON {
		return writeJSON(w, rep)
	}
	if r.Format != FormatText {
		return fmt.Errorf("unknown output format %q", r.Format)
	}

	var b strings.Builder
	b.WriteString(r.style(titleStyle, i18n.T("report.title", map[string]any{"RunID": rep.RunID})))
	b.WriteString("\n")
	if rep.Source != "" {
		b.WriteString(i18n.T("report.source", map[string]any{"Source": rep.Source}) + "\n")
		b.WriteString(i18n.T("report.fetch", map[string]any{
			"Downloaded": len(rep.Fetch.Downloaded),
			"Deleted":    len(rep.Fetch.Deleted),
		}) + "\n")
	}
	if rep.UpsertSkipped {
		b.WriteString(r.style(subtleStyle, i18n.T("report.upsert_skipped")) + "\n")
	}
	if rep.DryRun {
		b.WriteString(r.style(lipgloss.NewStyle().Foreground(colorSpecial), i18n.T("report.dry_run")) + "\n")
	}

	rows, kinds := r.actionRows(rep)
	if len(rows) == 0 {
		b.WriteString(i18n.T("report.no_actions") + "\n")
	} else {
		t := r.table(i18n.T("report.col.principal"), i18n.T("report.col.action"), i18n.T("report.col.detail")).
			Rows(rows...)
		if r.Color {
			t = t.StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				if col == 1 && row >= 0 && row < len(rows) {
					if c, ok := kindColors[kinds[row]]; ok {
						return cellStyle.Foreground(c)
					}
				}
				return cellStyle
			})
		}
		b.WriteString(t.String() + "\n")
	}

	c := rep.Counts()
	b.WriteString(i18n.T("report.summary", map[string]any{
		"Created":   c[model.ActionCreated],
		"Updated":   c[model.ActionUpdated],
		"Deleted":   c[model.ActionDeleted],
		"Skipped":   c[model.ActionSkipped],
		"Failed":    c[model.ActionFailed],
		"Untouched": c[model.ActionUntouched],
	}) + "\n")
	if !rep.FinishedAt.IsZero() && !rep.StartedAt.IsZero() {
		d := rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond)
		b.WriteString(r.style(subtleStyle, i18n.T("report.duration", map[string]any{"Duration": d.String()})) + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// actionRows returns principal, localized kind and detail per action along
// with the raw kinds used for styling.
func (r Renderer) actionRows(rep *model.Report) ([][]string, []model.ActionKind) {
	var rows [][]string
	var kinds []model.ActionKind
	for _, a := range rep.Actions {
		if a.Kind == model.ActionUntouched && !r.Verbose {
			continue
		}
		detail := a.Reason
		if a.Err != nil {
			detail = a.ErrText()
		} else if detail == "" && len(a.Fingerprints) > 0 {
			detail = strings.Join(a.Fingerprints, ", ")
		}
		rows = append(rows, []string{a.Name, i18n.T("action." + string(a.Kind)), detail})
		kinds = append(kinds, a.Kind)
	}
	return rows, kinds
}

// Runs writes a history listing.
func (r Renderer) Runs(w io.Writer, runs []history.Run) error {
	if r.Format == FormatJSON {
		if runs == nil {
			runs = []history.Run{}
		}
		return writeJSON(w, runs)
	}
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, i18n.T("history.empty"))
		return err
	}
	var rows [][]string
	for _, run := range runs {
		changes := fmt.Sprintf("+%d ~%d -%d !%d", run.Created, run.Updated, run.Deleted, run.Failed)
		rows = append(rows, []string{
			run.ID,
			run.StartedAt.Local().Format(time.DateTime),
			run.Status,
			changes,
			run.Source,
		})
	}
	t := r.table(
		i18n.T("history.col.id"),
		i18n.T("history.col.started"),
		i18n.T("history.col.status"),
		i18n.T("history.col.changes"),
		i18n.T("history.col.source"),
	).Rows(rows...)
	if r.Color {
		t = t.StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 && row >= 0 && row < len(rows) {
				switch rows[row][2] {
				case history.StatusFailed:
					return cellStyle.Foreground(colorError)
				case history.StatusPartial:
					return cellStyle.Foreground(colorSpecial)
				}
			}
			return cellStyle
		})
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func (r Renderer) table(headers ...string) *table.Table {
	t := table.New().Headers(headers...)
	if r.Color {
		return t.Border(lipgloss.RoundedBorder()).BorderStyle(borderStyle)
	}
	return t.Border(lipgloss.NormalBorder()).StyleFunc(func(row, col int) lipgloss.Style {
		return cellStyle
	})
}

func (r Renderer) style(s lipgloss.Style, text string) string {
	if !r.Color {
		return text
	}
	return s.Render(text)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
