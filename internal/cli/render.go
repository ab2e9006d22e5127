package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"nda-clarity/internal/domain"
)

func (a *app) renderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render REPORT.json",
		Short: "Render a saved analysis payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			report, err := domain.DecodeRiskReport(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if a.v.GetBool("json") {
				return a.printJSON(report.View())
			}
			renderReport(a.out, report)
			return nil
		},
	}
}

var toneColors = map[domain.Tone]text.Colors{
	domain.ToneDanger:   {text.FgRed, text.Bold},
	domain.ToneCaution:  {text.FgYellow},
	domain.TonePositive: {text.FgGreen},
	domain.ToneInfo:     {text.FgCyan},
}

func colorize(tone domain.Tone, s string) string {
	if c, ok := toneColors[tone]; ok {
		return c.Sprint(s)
	}
	return s
}

func renderReport(w io.Writer, report domain.RiskReport) {
	view := report.View()

	overview := table.NewWriter()
	overview.SetOutputMirror(w)
	overview.SetTitle("NDA Risk Report")
	overview.AppendRows([]table.Row{
		{"Overall score", view.ScoreLabel},
		{"Risk level", colorize(view.RiskTone, view.RiskLevel)},
		{"Critical issues", view.Summary.Critical},
		{"Warnings", view.Summary.Warnings},
		{"Positives", view.Summary.Positives},
		{"Estimated lawyer cost", view.EstimatedLawyerCost},
	})
	if view.Comparison != "" {
		overview.AppendRow(table.Row{"Compared to standard", view.Comparison})
	}
	overview.Render()

	renderIssues(w, "Critical issues", view.CriticalIssues)
	renderIssues(w, "Warnings", view.Warnings)

	if len(view.Positives) > 0 {
		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.SetTitle("Positives")
		tw.AppendHeader(table.Row{"Title", "Note"})
		for _, p := range view.Positives {
			tw.AppendRow(table.Row{colorize(domain.TonePositive, p.Title), p.Note})
		}
		tw.Render()
	}

	if len(view.Recommendations) > 0 {
		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.SetTitle("Recommendations")
		for _, rec := range view.Recommendations {
			tw.AppendRow(table.Row{rec.Number, rec.Text})
		}
		tw.Render()
	}

	if len(view.Defects) > 0 {
		fmt.Fprintf(w, "Some report fields could not be read: %v\n", view.Defects)
	}
	fmt.Fprintln(w, view.Disclaimer)
}

func renderIssues(w io.Writer, title string, issues []domain.IssueView) {
	if len(issues) == 0 {
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle(title)
	tw.AppendHeader(table.Row{"Severity", "Title", "Section", "Issue", "Recommendation"})
	for _, issue := range issues {
		tw.AppendRow(table.Row{
			colorize(issue.Tone, string(issue.Severity)),
			issue.Title,
			issue.Section,
			issue.Issue,
			issue.Recommendation,
		})
		if issue.LegalNote != "" {
			tw.AppendRow(table.Row{"", "", "", text.Italic.Sprint(issue.LegalNote), ""})
		}
	}
	tw.Render()
}
