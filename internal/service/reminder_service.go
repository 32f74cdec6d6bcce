package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"list-manager/internal/model"
)

// ReminderService builds human-readable summaries for periodic notifications.
type ReminderService struct {
	lists *ListService
}

func NewReminderService(lists *ListService) *ReminderService {
	return &ReminderService{lists: lists}
}

// DailySummary lists the owner's open records, earliest due date first.
// It returns "" when nothing is open.
func (s *ReminderService) DailySummary(ctx context.Context, owner string, now time.Time) string {
	sess := s.lists.Open(ctx, owner)
	return Summary(sess.Schema(), sess.Items(), now)
}

// Summary renders the open records of c as Telegram HTML.
func Summary(schema *model.Schema, c model.Collection, now time.Time) string {
	var open []model.Record
	for _, rec := range c {
		if !schema.IsDone(rec.Text(schema.StatusField)) {
			open = append(open, rec)
		}
	}
	if len(open) == 0 {
		return ""
	}

	due := schema.DueField
	sort.SliceStable(open, func(i, j int) bool {
		di, iok := open[i].Date(due)
		dj, jok := open[j].Date(due)
		switch {
		case !iok && !jok:
			return open[i].CreatedAt.After(open[j].CreatedAt)
		case !iok:
			return false
		case !jok:
			return true
		default:
			return di.Before(dj)
		}
	})

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📋 <b>%s: daily report</b>\n", html.EscapeString(schema.Title)))
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("02.01.2006")))

	var overdue, soon int
	for _, rec := range open {
		line, state := formatDue(schema, rec, now)
		switch state {
		case dueOverdue:
			overdue++
		case dueSoon:
			soon++
		}
		builder.WriteString(line)
	}
	builder.WriteString(fmt.Sprintf("\nOpen: %d · overdue: %d · due within 48h: %d", len(open), overdue, soon))
	return strings.TrimSpace(builder.String())
}

type dueState int

const (
	dueNone dueState = iota
	dueLater
	dueSoon
	dueOverdue
)

func formatDue(schema *model.Schema, rec model.Record, now time.Time) (string, dueState) {
	var sb strings.Builder

	state := dueNone
	icon := "🟢"
	d, hasDue := rec.Date(schema.DueField)
	if hasDue {
		// a due date covers the whole day
		end := time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, now.Location())
		switch {
		case now.After(end):
			icon, state = "⚠️", dueOverdue
		case end.Sub(now) <= 48*time.Hour:
			icon, state = "⏳", dueSoon
		default:
			state = dueLater
		}
	}

	title := html.EscapeString(strings.TrimSpace(rec.Text(schema.TitleField().Name)))
	sb.WriteString(fmt.Sprintf("%s %s", icon, title))

	if status := rec.Text(schema.StatusField); status != "" {
		sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(status)))
	}

	if hasDue {
		if state == dueOverdue {
			sb.WriteString(fmt.Sprintf("\n   ⏰ %s, <b>overdue</b>", d.Format(model.DateLayout)))
		} else {
			today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
			daysLeft := int(d.Sub(today).Hours() / 24)
			sb.WriteString(fmt.Sprintf("\n   ⏰ %s · %d day(s) left", d.Format(model.DateLayout), daysLeft))
		}
	}

	sb.WriteByte('\n')
	return sb.String(), state
}
