// Package report renders the confirmed plant state as human-readable text
// for chat messages.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/logo-monitor/internal/logic"
)

// TimeLayout is day.month.year with a zero-padded 24-hour clock.
const TimeLayout = "02.01.2006 15:04:05"

const alertBanner = "⚠️ ACHTUNG: Anlage meldet eine Störung ⚠️"

// Format renders the state. Timestamps are printed in the location they
// carry; callers convert beforehand if needed.
func Format(s logic.ConfirmedState) string {
	var b strings.Builder
	if s.Status != logic.StatusOK {
		b.WriteString(alertBanner)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Status: %s\n", statusOrUnknown(s.Status))
	fmt.Fprintf(&b, "Leistung: %s\n", formatPower(s.Power))
	fmt.Fprintf(&b, "Zuletzt OK: %s\n", s.LastHealthyAt.Format(TimeLayout))
	fmt.Fprintf(&b, "Zuletzt Fehler: %s", s.LastFaultAt.Format(TimeLayout))
	return b.String()
}

// FormatEvent renders a push notification for a confirmed transition.
func FormatEvent(ev logic.Event) string {
	return Headline(ev.Type) + "\n\n" + Format(ev.State)
}

// Headline returns the one-line title for an event type.
func Headline(t logic.EventType) string {
	switch t {
	case logic.EventFaultConfirmed:
		return "🔴 Störung bestätigt"
	case logic.EventRecoveryConfirmed:
		return "🟢 Anlage wieder in Betrieb"
	default:
		return string(t)
	}
}

// HistoryEntry is one row of the transition log.
type HistoryEntry struct {
	Type       logic.EventType
	OccurredAt time.Time
	Power      float64
}

// FormatHistory renders the transition log, newest first as given.
func FormatHistory(entries []HistoryEntry) string {
	if len(entries) == 0 {
		return "Keine Ereignisse aufgezeichnet."
	}
	var b strings.Builder
	b.WriteString("Letzte Ereignisse:")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%s  %s (%s)", e.OccurredAt.Format(TimeLayout), Headline(e.Type), formatPower(e.Power))
	}
	return b.String()
}

func formatPower(kw float64) string {
	if kw < 0 {
		return "nicht lesbar"
	}
	return fmt.Sprintf("%.2f kW", kw)
}

func statusOrUnknown(s logic.StatusLabel) string {
	if s == "" {
		return string(logic.StatusUnknown)
	}
	return string(s)
}
