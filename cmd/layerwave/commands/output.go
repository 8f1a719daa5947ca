package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/layerwave/layerwave/pkg/engine"
	"github.com/layerwave/layerwave/pkg/policy"
	"github.com/layerwave/layerwave/pkg/stores"
)

// Output formats for the plan command.
const (
	FormatJSON  = "json"
	FormatTable = "table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	manualStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderPlanTable prints one table per wave for operators.
func renderPlanTable(w io.Writer, plan *engine.Plan) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s target=%s ceiling=%s", headerStyle.Render("Plan "+plan.ID), plan.Target, plan.Ceiling)
	if plan.Bucket != "" {
		fmt.Fprintf(&b, " bucket=%s", plan.Bucket)
	}
	b.WriteString("\n")

	if len(plan.Waves) == 0 {
		b.WriteString(mutedStyle.Render("No upgrades required."))
		b.WriteString("\n")
	}

	for _, wave := range plan.Waves {
		fmt.Fprintf(&b, "\n%s %s\n", headerStyle.Render(fmt.Sprintf("Wave %d:", wave.Number)), wave.Description)

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("LAYER", "CURRENT", "NEXT", "RECIPE", "MANUAL", "GUIDE", "PRECHECK")

		for _, a := range wave.Actions {
			recipe := a.RecipeID
			if recipe == "" {
				recipe = "-"
			}
			manual := "no"
			if a.RequiresManual {
				manual = manualStyle.Render("yes")
			}
			guide := a.GuideID
			if guide == "" {
				guide = "-"
			}
			precheck := "-"
			if a.Precheck != nil {
				precheck = fmt.Sprintf("%s -> %s", a.Precheck.From, a.Precheck.To)
			}
			t.Row(a.Layer, a.Current.String(), a.Next.String(), recipe, manual, guide, precheck)
		}
		b.WriteString(t.String())
		b.WriteString("\n")
	}

	if len(plan.Unreachable) > 0 {
		fmt.Fprintf(&b, "\n%s %s\n", manualStyle.Render("Unreachable:"), strings.Join(plan.Unreachable, ", "))
	}
	if len(plan.Skipped) > 0 {
		fmt.Fprintf(&b, "%s %s\n", mutedStyle.Render("Skipped (no version):"), strings.Join(plan.Skipped, ", "))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// renderFindings prints policy findings, one per line.
func renderFindings(w io.Writer, result *policy.Result) {
	if result == nil {
		return
	}
	for _, v := range result.Violations {
		loc := ""
		if v.Wave > 0 {
			loc = fmt.Sprintf(" wave=%d", v.Wave)
		}
		if v.Layer != "" {
			loc += " layer=" + v.Layer
		}
		fmt.Fprintf(w, "[%s] %s:%s %s\n", strings.ToUpper(string(v.Severity)), v.Policy, loc, v.Message)
	}
	for _, name := range result.Failures {
		fmt.Fprintf(w, "[FAILED] %s: policy could not be evaluated\n", name)
	}
}

// renderReports prints the report listing.
func renderReports(w io.Writer, reports []*stores.PlanReport) error {
	if len(reports) == 0 {
		_, err := fmt.Fprintln(w, "No archived reports.")
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TARGET", "CEILING", "WAVES", "LAYERS", "MANUAL", "CREATED")
	for _, r := range reports {
		t.Row(r.ID, r.Target, r.Ceiling,
			fmt.Sprint(r.WaveCount), fmt.Sprint(r.LayerCount), fmt.Sprint(r.ManualCount),
			r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}
