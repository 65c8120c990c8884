package askcmder

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/papercomputeco/verity/pkg/pipeline"
)

var (
	colorApprove = lipgloss.Color("#2CD7C7")
	colorRevise  = lipgloss.Color("#F4D03F")
	colorFail    = lipgloss.Color("#E74C3C")
)

// detailStyles renders the --details block. Styles are bound to the writer's
// renderer so color is only emitted to a terminal. Model output is printed
// unstyled since multi-line rendering would pad it.
type detailStyles struct {
	label   lipgloss.Style
	approve lipgloss.Style
	revise  lipgloss.Style
	fail    lipgloss.Style
}

func newDetailStyles(w io.Writer) detailStyles {
	r := lipgloss.NewRenderer(w)
	if f, ok := w.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		r.SetColorProfile(termenv.Ascii)
	}

	return detailStyles{
		label:   r.NewStyle().Bold(true),
		approve: r.NewStyle().Bold(true).Foreground(colorApprove),
		revise:  r.NewStyle().Bold(true).Foreground(colorRevise),
		fail:    r.NewStyle().Foreground(colorFail),
	}
}

func (s detailStyles) decision(v pipeline.Verdict) string {
	if v.Approved() {
		return s.approve.Render(string(v.Decision()))
	}
	return s.revise.Render(string(v.Decision()))
}

func (c *askCommander) printDetails(w io.Writer, res *pipeline.Result) {
	s := newDetailStyles(w)
	v := res.Verdict

	fmt.Fprintf(w, "%s %s\n", s.label.Render("verdict:"), s.decision(v))
	if v.FailedClosed() {
		fmt.Fprintln(w, s.fail.Render("fail-closed: validator output was not usable"))
	}
	for _, r := range v.Reasons() {
		fmt.Fprintf(w, "  - %s\n", r)
	}
	fmt.Fprintf(w, "%s\n%s\n", s.label.Render("draft:"), res.Draft)
	fmt.Fprintf(w, "%s\n%s\n", s.label.Render("raw validator output:"), v.RawOutput())
}
