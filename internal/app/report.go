package app

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"stockSync/internal/domain"
	"stockSync/internal/ports"
)

// WriteReports prints one aligned row per report.
func WriteReports(out io.Writer, reports []Report) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSOURCE\tOUTCOME\tADDED\tLAST DATE\tCLOSE\tSMA20\tRSI14\tZONE\tDETAIL")
	for _, r := range reports {
		lastDate, lastClose, sma, rsi, zone := "-", "-", "-", "-", "-"
		if !r.LastDate.IsZero() {
			lastDate = r.LastDate.Format(domain.DateLayout)
		}
		if r.Summary != nil {
			lastClose = strconv.FormatFloat(r.Summary.LastClose, 'f', 2, 64)
			sma = formatOptional(r.Summary.SMA20)
			rsi = formatOptional(r.Summary.RSI14)
			if r.Summary.RSIZone != "" {
				zone = r.Summary.RSIZone
			}
		}
		detail := ""
		switch {
		case r.Fatal != nil:
			detail = r.Fatal.Error()
		case r.Err != nil:
			detail = r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Key, r.Source, r.OutcomeLabel(), r.Added, lastDate, lastClose, sma, rsi, zone, detail)
	}
	return w.Flush()
}

func formatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// WriteRunHistory prints audited runs, one row each, in the order given.
func WriteRunHistory(out io.Writer, runs []ports.SyncRun) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tKEY\tSOURCE\tOUTCOME\tADDED\tDURATION\tERROR")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.StartedAt.UTC().Format(time.RFC3339), r.Key, r.Source, r.Outcome, r.Added,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), r.Error)
	}
	return w.Flush()
}
