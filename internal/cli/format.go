package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/photosync/photosync/internal/models"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.FgBlue, color.Bold)
	labelColor   = color.New(color.FgWhite, color.Bold)
	valueColor   = color.New(color.FgHiBlack)
)

func printSection(w io.Writer, title string) {
	_, _ = headerColor.Fprintf(w, "▸ %s\n", title)
}

func printLabelValue(w io.Writer, label string, value interface{}) {
	_, _ = labelColor.Fprintf(w, "  %-12s ", label+":")
	_, _ = valueColor.Fprintln(w, value)
}

// printResult writes a one-line verdict for a pass followed by its failures.
// summary is passed separately because a result decoded from the status API
// has lost its error.
func printResult(w io.Writer, summary string, result models.SyncResult) {
	switch result.Status {
	case models.RunCompleted:
		_, _ = successColor.Fprintf(w, "✓ %s\n", summary)
	case models.RunCompletedWithFailures, models.RunInterrupted, models.RunSkipped:
		_, _ = warningColor.Fprintf(w, "⚠ %s\n", summary)
	default:
		_, _ = errorColor.Fprintf(w, "✗ %s\n", summary)
	}

	if result.Status == models.RunSkipped {
		return
	}
	printLabelValue(w, "Watermark", fmt.Sprintf("%d → %d", result.PreviousWatermark, result.Watermark))
	printLabelValue(w, "Duration", result.Duration.Round(time.Millisecond))
	for _, f := range result.Failures {
		_, _ = errorColor.Fprintf(w, "    %s (%s): %s\n", f.Name, f.KindName, f.Error)
	}
}

func printStatus(w io.Writer, status models.SyncStatusResponse, live bool) {
	printSection(w, "PhotoSync agent")

	state := status.State
	if !live {
		state += " (agent not running)"
	}
	printLabelValue(w, "State", state)
	printLabelValue(w, "Watermark", formatWatermark(status.Watermark))
	printLabelValue(w, "Indexed", status.Indexed)
	printLabelValue(w, "Pending", status.Pending)

	if s := status.Stats; s != nil {
		printLabelValue(w, "Synced", s.PhotosSynced)
		if s.LastPhoto != "" {
			printLabelValue(w, "Last photo", s.LastPhoto)
		}
		if s.LastSyncAt != nil {
			printLabelValue(w, "Last sync", s.LastSyncAt.Local().Format("2006-01-02 15:04:05"))
		}
		if s.LastSummary != "" {
			printLabelValue(w, "Last result", s.LastSummary)
		}
	}
}

func formatWatermark(v int64) string {
	if v == 0 {
		return "0 (nothing synced yet)"
	}
	return fmt.Sprintf("%d (%s)", v, time.Unix(v, 0).Local().Format("2006-01-02 15:04:05"))
}
