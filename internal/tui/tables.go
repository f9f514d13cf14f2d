package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/switchml/switchio/pkg/job"
)

func lossColor(p job.Progress) lipgloss.Color {
	switch {
	case p.Complete:
		return lipgloss.Color("2")
	case p.Received == 0:
		return lipgloss.Color("8")
	default:
		return lipgloss.Color("3")
	}
}

func renderJobs(jobs []job.Progress, width int) string {
	if len(jobs) == 0 {
		return dimStyle.Render("  No jobs tracked.")
	}

	colKey := colWidth(width, 0.22)
	colSegs := colWidth(width, 0.20)
	colLoss := colWidth(width, 0.14)
	colWorkers := colWidth(width, 0.12)
	colAge := colWidth(width, 0.16)

	rows := []string{strings.Join([]string{
		headerCellStyle.Width(colKey).Render("NODE/JOB"),
		headerCellStyle.Width(colSegs).Render("SEGMENTS"),
		headerCellStyle.Width(colLoss).Render("LOSS"),
		headerCellStyle.Width(colWorkers).Render("WORKERS"),
		headerCellStyle.Width(colAge).Render("AGE"),
	}, "")}

	for i, p := range jobs {
		style := rowStyle
		if i%2 == 0 {
			style = altRowStyle
		}
		loss := lipgloss.NewStyle().
			Width(colLoss).
			Foreground(lossColor(p)).
			Render(fmt.Sprintf("%.1f%%", p.LossRatio*100))

		rows = append(rows, strings.Join([]string{
			style.Width(colKey).Render(truncate(p.Key.String(), colKey-1)),
			style.Width(colSegs).Render(fmt.Sprintf("%d/%d", p.Received, p.Total)),
			loss,
			style.Width(colWorkers).Render(fmt.Sprint(p.Workers)),
			style.Width(colAge).Render(p.Age.Truncate(time.Second).String()),
		}, ""))
	}
	return strings.Join(rows, "\n")
}

func renderCounters(counters map[string]int64, width int) string {
	if len(counters) == 0 {
		return dimStyle.Render("  No counters reported.")
	}
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)

	colName := colWidth(width, 0.40)
	colValue := colWidth(width, 0.20)
	rows := []string{strings.Join([]string{
		headerCellStyle.Width(colName).Render("COUNTER"),
		headerCellStyle.Width(colValue).Render("VALUE"),
	}, "")}
	for i, name := range names {
		style := rowStyle
		if i%2 == 0 {
			style = altRowStyle
		}
		rows = append(rows, strings.Join([]string{
			style.Width(colName).Render(truncate(name, colName-1)),
			style.Width(colValue).Render(fmt.Sprint(counters[name])),
		}, ""))
	}
	return strings.Join(rows, "\n")
}

func colWidth(totalWidth int, fraction float64) int {
	w := int(float64(totalWidth) * fraction)
	if w < 8 {
		w = 8
	}
	return w
}

// truncate shortens s to maxLen runes, ending in "…" when cut.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen == 1 {
		return string(runes[:1])
	}
	return string(runes[:maxLen-1]) + "…"
}
