package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/cloudscout/cloudscout/internal/incident"
)

// renderScanResult prints a human-readable summary of one scan cycle.
func renderScanResult(w io.Writer, res *incident.ScanResult) {
	fmt.Fprintf(w, "Scanned %d resource(s) in %s\n",
		len(res.Resources), res.Duration.Round(time.Millisecond))

	if len(res.Incidents) == 0 {
		fmt.Fprintln(w, "No incidents.")
	} else {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"ID", "SEVERITY", "RESOURCE", "FAMILY", "TITLE"})
		for _, inc := range res.Incidents {
			t.AppendRow(table.Row{inc.ID, inc.Severity, inc.Resource.ID, inc.Family, inc.Title})
		}
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 2, Align: text.AlignCenter},
			{Number: 5, WidthMax: 60},
		})
		t.Render()
	}

	if len(res.Errors) > 0 {
		fmt.Fprintf(w, "%d detector error(s):\n", len(res.Errors))
		for _, derr := range res.Errors {
			if derr.Kind != "" {
				fmt.Fprintf(w, "  %s/%s: [%s] %s\n", derr.Family, derr.Resource, derr.Kind, derr.Message)
				continue
			}
			fmt.Fprintf(w, "  %s/%s: %s\n", derr.Family, derr.Resource, derr.Message)
		}
	}
}
