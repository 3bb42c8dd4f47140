package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	domain "github.com/oncallops/flare/pkg/types"
)

// tabWriter wraps tabwriter with error tracking.
type tabWriter struct {
	*tabwriter.Writer
	err error
}

func newTabWriter(w io.Writer) *tabWriter {
	return &tabWriter{Writer: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
}

func (tw *tabWriter) writef(format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.Writer, format, args...)
}

func (tw *tabWriter) finish() error {
	if tw.err != nil {
		return tw.err
	}
	return tw.Flush()
}

func printAlertTable(alerts []domain.Alert) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("ID\tRULE\tSEVERITY\tSTATUS\tTRIGGERED\tMESSAGE\n")
	for i := range alerts {
		a := &alerts[i]
		tw.writef("%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID,
			a.RuleID,
			a.Severity,
			a.Status,
			a.TriggeredAt.Format("2006-01-02 15:04:05"),
			truncate(a.Message, 50),
		)
	}
	return tw.finish()
}

func printAlertDetail(a *domain.Alert) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("ID:\t%s\n", a.ID)
	tw.writef("Rule:\t%s\n", a.RuleID)
	tw.writef("Fingerprint:\t%s\n", a.Fingerprint)
	tw.writef("Severity:\t%s\n", a.Severity)
	tw.writef("Status:\t%s\n", a.Status)
	tw.writef("Message:\t%s\n", a.Message)
	tw.writef("Triggered:\t%s\n", a.TriggeredAt.Format("2006-01-02 15:04:05"))
	tw.writef("Last seen:\t%s\n", a.LastSeenAt.Format("2006-01-02 15:04:05"))
	if a.AcknowledgedAt != nil {
		tw.writef("Acknowledged:\t%s by %s\n",
			a.AcknowledgedAt.Format("2006-01-02 15:04:05"), a.AcknowledgedBy)
	}
	if a.SnoozedUntil != nil {
		tw.writef("Snoozed until:\t%s\n", a.SnoozedUntil.Format("2006-01-02 15:04:05"))
	}
	if a.ResolvedAt != nil {
		tw.writef("Resolved:\t%s\n", a.ResolvedAt.Format("2006-01-02 15:04:05"))
	}
	for k, v := range a.Labels {
		tw.writef("Label %s:\t%s\n", k, v)
	}
	return tw.finish()
}

func printRuleTable(ruleList []domain.AlertRule) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("ID\tNAME\tSEVERITY\tENABLED\tCHANNELS\n")
	for i := range ruleList {
		r := &ruleList[i]
		tw.writef("%s\t%s\t%s\t%v\t%d\n",
			r.ID,
			truncate(r.Name, 30),
			r.Severity,
			r.Enabled,
			len(r.Channels),
		)
	}
	return tw.finish()
}

func printRuleDetail(r *domain.AlertRule) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("ID:\t%s\n", r.ID)
	tw.writef("Name:\t%s\n", r.Name)
	tw.writef("Severity:\t%s\n", r.Severity)
	tw.writef("Enabled:\t%v\n", r.Enabled)
	tw.writef("Template:\t%s\n", r.MessageTemplate)
	tw.writef("Channels:\t%v\n", r.Channels)
	if r.SuppressionDuration > 0 {
		tw.writef("Cooldown:\t%s\n", r.SuppressionDuration)
	}
	if r.Escalation != nil {
		for i, lvl := range r.Escalation.Levels {
			tw.writef("Escalation %d:\tafter %s to %v\n", i+1, lvl.Delay, lvl.Channels)
		}
	}
	return tw.finish()
}

func printStats(stats *domain.AlertStats) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("Total:\t%d\n", stats.Total)
	for _, status := range []domain.Status{
		domain.StatusPending,
		domain.StatusFiring,
		domain.StatusAcknowledged,
		domain.StatusSnoozed,
		domain.StatusResolved,
	} {
		if n, ok := stats.ByStatus[status]; ok {
			tw.writef("%s:\t%d\n", status, n)
		}
	}
	tw.writef("Mean time to ack:\t%s\n", stats.MeanTimeToAck)
	return tw.finish()
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
