package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

var reportColumns = []string{"scenario", "kind", "workers", "total ops", "value", "table", "cells", "growths", "elapsed", "ops/s"}

func renderReport(out io.Writer, results []*result) {
	lines := make([][]string, 0, len(results))
	for _, r := range results {
		total := int64(r.Scenario.Workers) * int64(r.Scenario.Ops)
		rate := 0.0
		if secs := r.Elapsed.Seconds(); secs > 0 {
			rate = float64(total) / secs
		}

		line := make([]string, 0, len(reportColumns))
		for _, c := range reportColumns {
			s := ""
			switch c {
			case "scenario":
				s = r.Scenario.Name
			case "kind":
				s = string(r.Scenario.Kind)
			case "workers":
				s = strconv.Itoa(r.Scenario.Workers)
			case "total ops":
				s = humanize.Comma(total)
			case "value":
				s = r.Value
			case "table":
				s = fmt.Sprintf("%d / %d", r.Stats.TableLen, r.Stats.MaxTableLen)
			case "cells":
				s = strconv.Itoa(r.Stats.Cells)
			case "growths":
				s = fmt.Sprint(r.Stats.TotalGrowths)
			case "elapsed":
				s = r.Elapsed.String()
			case "ops/s":
				s = humanize.CommafWithDigits(rate, 0)
			}
			line = append(line, s)
		}
		lines = append(lines, line)
	}

	fmt.Fprintln(out)
	w := tablewriter.NewWriter(out)
	w.SetHeader(reportColumns)
	w.AppendBulk(lines)
	w.Render()
}
