package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/betbot/traderelay/internal/domain"
	"github.com/betbot/traderelay/internal/ingest"
	"github.com/betbot/traderelay/internal/notify"
	"github.com/betbot/traderelay/internal/reconcile"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2"))

	skipStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("3"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	messageStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type replayStats struct {
	Lines    int
	Created  int
	Updated  int
	Closed   int
	NotFound int
	Failed   int
}

func (s replayStats) String() string {
	return fmt.Sprintf("%d events: %d created, %d updated, %d closed, %d not found, %d failed",
		s.Lines, s.Created, s.Updated, s.Closed, s.NotFound, s.Failed)
}

// replay reconciles every JSON line of in, in order. Blank lines and lines
// starting with # are skipped. A failed line is reported and replay goes on.
// When sent is non-nil the rendered message of each event is printed too.
func replay(ctx context.Context, in io.Reader, rec ingest.Reconciler, sent *notify.Recorder, w io.Writer) (replayStats, error) {
	var stats replayStats
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64<<10), 1<<20)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Lines++

		ev, err := ingest.Decode([]byte(line))
		if err != nil {
			stats.Failed++
			fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("line %d", lineNo))+" "+errStyle.Render(err.Error()))
			continue
		}

		before := 0
		if sent != nil {
			before = len(sent.Sent())
		}
		out, err := rec.Reconcile(ctx, ev)
		header := headerStyle.Render(fmt.Sprintf("line %d  %s #%d", lineNo, ev.Action, ev.OrderID))
		if err != nil {
			stats.Failed++
			fmt.Fprintln(w, header+" "+errStyle.Render(fmt.Sprintf("%s: %v", domain.KindOf(err), err)))
			continue
		}

		switch out.Kind {
		case reconcile.OutcomeCreated:
			stats.Created++
		case reconcile.OutcomeUpdated:
			stats.Updated++
		case reconcile.OutcomeClosed:
			stats.Closed++
		case reconcile.OutcomeNotFound:
			stats.NotFound++
			fmt.Fprintln(w, header+" "+skipStyle.Render("not_found"))
			continue
		}
		fmt.Fprintln(w, header+" "+okStyle.Render(fmt.Sprintf("%s message=%s record=%s", out.Kind, out.NotificationHandle, out.RecordHandle)))

		if sent != nil {
			if msgs := sent.Sent(); len(msgs) > before {
				m := msgs[len(msgs)-1]
				if m.ReplyTo != "" {
					fmt.Fprintln(w, skipStyle.Render("  reply to "+m.ReplyTo))
				}
				fmt.Fprintln(w, messageStyle.Render(m.Text))
			}
		}
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("read events: %w", err)
	}
	return stats, nil
}
