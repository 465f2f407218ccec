package app

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pterm/pterm"

	"github.com/TFMV/fedquery/pkg/errors"
	"github.com/TFMV/fedquery/pkg/models"
)

const (
	maxDisplayRows = 20
	maxCellWidth   = 20
)

var (
	titleStyle   = pterm.NewStyle(pterm.FgCyan, pterm.Bold)
	mutedStyle   = pterm.NewStyle(pterm.FgGray)
	cachedStyle  = pterm.NewStyle(pterm.FgYellow, pterm.Bold)
	errorStyle   = pterm.NewStyle(pterm.FgRed, pterm.Bold)
	successStyle = pterm.NewStyle(pterm.FgGreen)
)

// ExampleQuestions are shown in the REPL banner.
var ExampleQuestions = []string{
	"Show all students",
	"Students with more than 75% attendance",
	"Show all courses",
	"Courses taught by Dr. Smith",
	"List students in courses taught by Dr. Smith",
	"Explain the importance of attendance",
}

// Renderer prints outcomes as tables or narrative text.
type Renderer struct {
	out io.Writer
}

// NewRenderer creates a renderer writing to out.
func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// Banner prints the startup banner with the probe result of each backend.
func (r *Renderer) Banner(locations map[models.BackendID]string, probes map[models.BackendID]error) {
	fmt.Fprintln(r.out, titleStyle.Sprint("Federated Campus Query System"))
	for _, id := range []models.BackendID{models.BackendPrimary, models.BackendSecondary} {
		loc := locations[id]
		err, probed := probes[id]
		switch {
		case !probed:
			fmt.Fprintf(r.out, "  %s %s\n", string(id)+":", mutedStyle.Sprint(loc))
		case err != nil:
			fmt.Fprintf(r.out, "  %s %s %s\n", string(id)+":", loc, errorStyle.Sprint("unreachable: "+errors.GetMessage(err)))
		default:
			fmt.Fprintf(r.out, "  %s %s %s\n", string(id)+":", loc, successStyle.Sprint("connected"))
		}
	}

	items := make([]pterm.BulletListItem, 0, len(ExampleQuestions))
	for _, q := range ExampleQuestions {
		items = append(items, pterm.BulletListItem{Level: 0, Text: q})
	}
	list, err := pterm.DefaultBulletList.WithItems(items).Srender()
	if err == nil {
		fmt.Fprintln(r.out, "Try:")
		fmt.Fprint(r.out, list)
	}
	fmt.Fprintln(r.out, mutedStyle.Sprint("Type 'exit', 'quit' or 'q' to leave."))
}

// Outcome prints one answer.
func (r *Renderer) Outcome(o *models.Outcome, cached bool) {
	if o == nil {
		fmt.Fprintln(r.out, errorStyle.Sprint("Error:"), "no result")
		return
	}

	header := fmt.Sprintf("Plan: %s", o.Kind)
	if len(o.Backends) > 0 {
		names := make([]string, len(o.Backends))
		for i, b := range o.Backends {
			names[i] = string(b)
		}
		header += " (" + strings.Join(names, " + ") + ")"
	}
	if cached {
		header = cachedStyle.Sprint("CACHED") + " " + header
	}
	fmt.Fprintln(r.out, mutedStyle.Sprint(header))

	switch {
	case !o.Success:
		r.failure(o)
	case o.Kind == models.PlanGenerative:
		fmt.Fprintln(r.out, o.Answer)
	default:
		r.table(o)
	}
}

func (r *Renderer) failure(o *models.Outcome) {
	msg := "unknown error"
	if o.Error != nil {
		msg = o.Error.Message
	}
	fmt.Fprintln(r.out, errorStyle.Sprint("Error:"), msg)
	if o.SQL != "" {
		fmt.Fprintln(r.out, mutedStyle.Sprint("SQL:"), o.SQL)
	}
}

func (r *Renderer) table(o *models.Outcome) {
	if len(o.Rows) == 0 {
		if o.Message != "" {
			fmt.Fprintln(r.out, o.Message)
		} else {
			fmt.Fprintln(r.out, "No results found.")
		}
		return
	}

	columns := o.Columns
	if len(columns) == 0 {
		columns = sortedColumns(o.Rows[0])
	}

	shown := o.Rows
	if len(shown) > maxDisplayRows {
		shown = shown[:maxDisplayRows]
	}

	data := make(pterm.TableData, 0, len(shown)+1)
	data = append(data, columns)
	for _, row := range shown {
		line := make([]string, len(columns))
		for i, col := range columns {
			line[i] = formatCell(row[col])
		}
		data = append(data, line)
	}

	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		fmt.Fprintln(r.out, errorStyle.Sprint("Error:"), err)
		return
	}
	fmt.Fprintln(r.out, rendered)

	if extra := len(o.Rows) - len(shown); extra > 0 {
		fmt.Fprintf(r.out, "... and %d more rows\n", extra)
	}
	fmt.Fprintf(r.out, "Total: %d rows\n", len(o.Rows))
}

func formatCell(v interface{}) string {
	if v == nil {
		return "NULL"
	}
	s := fmt.Sprint(v)
	if runes := []rune(s); len(runes) > maxCellWidth {
		return string(runes[:maxCellWidth])
	}
	return s
}

func sortedColumns(row models.Row) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
