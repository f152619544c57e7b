package bot

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
	"remindbot/pkg/tgui"
)

// remindFlag matches --every / --title anywhere in /remind text. Values may be quoted.
var remindFlag = regexp.MustCompile(`(?:^|\s)--(every|repeat|title)(?:=|\s+)("[^"]*"|'[^']*'|\S+)`)

type remindArgs struct {
	When  string
	Title string
	Every string
}

// parseRemind splits "/remind <when> | <title> [--every=X] [--title=Y]".
func parseRemind(text string) remindArgs {
	var out remindArgs
	rest := remindFlag.ReplaceAllStringFunc(text, func(m string) string {
		sub := remindFlag.FindStringSubmatch(m)
		val := sub[2]
		if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') {
			val = val[1 : len(val)-1]
		}
		switch sub[1] {
		case "title":
			out.Title = val
		default:
			out.Every = val
		}
		return " "
	})
	when, t, found := strings.Cut(rest, "|")
	out.When = strings.Join(strings.Fields(when), " ")
	if found && out.Title == "" {
		out.Title = strings.TrimSpace(t)
	}
	return out
}

func ownerOf(req *router.Request) string { return strconv.FormatInt(req.FromID, 10) }

// replyErr tells the user what went wrong. Only failures that are not the user's doing
// are returned to the router for logging.
func (b *Bot) replyErr(ctx context.Context, req *router.Request, err error) error {
	_ = req.Reply(ctx, userError(err), nil)
	if userFault(err) {
		return nil
	}
	return err
}

func (b *Bot) handleRemind(ctx context.Context, req *router.Request) error {
	args := parseRemind(req.ArgText)
	if args.When == "" {
		return req.ReplyHTML(ctx, tgui.JoinH("\n",
			tgui.B("When?"),
			tgui.Code("/remind tomorrow at 9am | stand-up"),
			tgui.Code("/remind in 2 hours | call mum --every=weekly"),
		), nil)
	}
	rec, err := reminder.ParseRecurrence(args.Every)
	if err != nil {
		return b.replyErr(ctx, req, err)
	}
	r, err := b.svc.Create(ctx, reminder.CreateRequest{
		OwnerID:     ownerOf(req),
		Destination: req.Chat.String(),
		RawTime:     args.When,
		Title:       args.Title,
		Recurrence:  rec,
	})
	if err != nil {
		return b.replyErr(ctx, req, err)
	}

	lines := []tgui.H{
		tgui.H("✅ ") + tgui.Esc("Reminder set for ") + b.when(r.FireAt),
		tgui.Esc(title(r)),
	}
	if r.Recurrence != reminder.None {
		lines = append(lines, tgui.I("repeats "+r.Recurrence.String()))
	}
	lines = append(lines, tgui.Esc("id: ")+tgui.Code(shortID(r.ID)))
	return req.ReplyHTML(ctx, tgui.JoinH("\n", lines...), cancelRow(r.ID, false))
}

func (b *Bot) handleList(ctx context.Context, req *router.Request) error {
	text, buttons, err := b.renderList(ctx, ownerOf(req))
	if err != nil {
		return b.replyErr(ctx, req, err)
	}
	return req.ReplyHTML(ctx, text, buttons)
}

// renderList draws the owner's pending reminders with one cancel button each.
func (b *Bot) renderList(ctx context.Context, owner string) (tgui.H, [][]kit.Button, error) {
	all, err := b.svc.List(ctx, owner)
	if err != nil {
		return "", nil, err
	}
	pending := slices.DeleteFunc(all, func(r reminder.Record) bool { return r.Terminal() })
	if len(pending) == 0 {
		return tgui.Esc("No pending reminders. Create one with /remind."), nil, nil
	}

	lines := []tgui.H{tgui.B(fmt.Sprintf("Pending reminders (%d)", len(pending)))}
	var rows [][]kit.Button
	for i, r := range pending {
		if i == maxListed {
			lines = append(lines, tgui.I(fmt.Sprintf("…and %d more", len(pending)-maxListed)))
			break
		}
		line := tgui.Esc(fmt.Sprintf("%d. ", i+1)) + tgui.Code(shortID(r.ID)) + " " + b.when(r.FireAt) +
			"\n    " + tgui.Esc(tgui.TruncRunes(title(r), 80))
		if r.Recurrence != reminder.None {
			line += " " + tgui.I("("+r.Recurrence.String()+")")
		}
		lines = append(lines, line)
		if btn, ok := cancelButton(fmt.Sprintf("✖ %d. %s", i+1, tgui.TruncRunes(title(r), 24)), r.ID, true); ok {
			rows = append(rows, []kit.Button{btn})
		}
	}
	return tgui.JoinH("\n", lines...), rows, nil
}

// resolveID expands a short id typed by the user. Full ids pass through.
func (b *Bot) resolveID(ctx context.Context, owner, token string) (string, error) {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return "", reminder.ErrNotFound
	}
	all, err := b.svc.List(ctx, owner)
	if err != nil {
		return "", err
	}
	var match string
	for _, r := range all {
		if r.ID == token {
			return r.ID, nil
		}
		if strings.HasSuffix(r.ID, token) {
			if match != "" {
				return "", fmt.Errorf("%w: id %q is ambiguous", reminder.ErrNotFound, token)
			}
			match = r.ID
		}
	}
	if match == "" {
		return "", reminder.ErrNotFound
	}
	return match, nil
}

func (b *Bot) handleSnooze(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 2 {
		return req.Reply(ctx, "Usage: /snooze <id> <duration>, e.g. /snooze 3f2a9c1d 30m", nil)
	}
	d, err := parseDur(strings.Join(req.Args[1:], ""))
	if err != nil {
		return req.Reply(ctx, "Invalid duration. Use 30m, 2h, 1d or 1h30m.", nil)
	}
	owner := ownerOf(req)
	id, err := b.resolveID(ctx, owner, req.Args[0])
	if err != nil {
		return b.replyErr(ctx, req, err)
	}
	r, err := b.svc.Snooze(ctx, id, owner, d)
	if err != nil {
		return b.replyErr(ctx, req, err)
	}
	return req.ReplyHTML(ctx, tgui.H("😴 ")+tgui.Esc(title(r)+" snoozed until ")+b.when(r.FireAt), nil)
}

func (b *Bot) handleCancel(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 1 {
		return req.Reply(ctx, "Usage: /cancel <id> (see /reminders)", nil)
	}
	owner := ownerOf(req)
	id, err := b.resolveID(ctx, owner, req.Args[0])
	if err != nil {
		return b.replyErr(ctx, req, err)
	}
	r, err := b.svc.Get(ctx, id, owner)
	if err != nil {
		return b.replyErr(ctx, req, err)
	}
	if err := b.svc.Cancel(ctx, id, owner); err != nil {
		return b.replyErr(ctx, req, err)
	}
	return req.ReplyHTML(ctx, tgui.H("🗑 ")+tgui.Esc("Cancelled: "+title(r)), nil)
}
