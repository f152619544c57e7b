package bot

import (
	"context"
	"errors"
	"strings"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
	"remindbot/pkg/tgui"
)

func messageRef(req *router.Request) (kit.MessageRef, bool) {
	cb := req.Update.Callback
	if cb == nil || cb.MessageID == 0 {
		return kit.MessageRef{}, false
	}
	return kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}, true
}

// answerErr sets the callback toast for err and returns err only if it needs logging.
func answerErr(req *router.Request, err error) error {
	if errors.Is(err, reminder.ErrNotFound) {
		req.Answer = "This reminder is gone or isn't yours."
	} else {
		req.Answer = userError(err)
	}
	if userFault(err) {
		return nil
	}
	return err
}

func (b *Bot) handleSnoozeButton(ctx context.Context, req *router.Request) error {
	id, raw, ok := strings.Cut(req.Payload, ":")
	if !ok || id == "" {
		req.Answer = "Invalid button."
		return nil
	}
	d, err := parseDur(raw)
	if err != nil {
		req.Answer = "Invalid button."
		return nil
	}
	r, err := b.svc.Snooze(ctx, id, ownerOf(req), d)
	if err != nil {
		return answerErr(req, err)
	}
	req.Answer = "Snoozed " + formatDur(d)

	if ref, ok := messageRef(req); ok {
		text := reminder.FireText(r) + "\n\n😴 Snoozed until " + b.whenPlain(r.FireAt)
		_ = req.Adapter.EditText(ctx, ref, text, &kit.SendOptions{Buttons: cancelRow(r.ID, false)})
	}
	return nil
}

func (b *Bot) handleCancelButton(ctx context.Context, req *router.Request) error {
	id, marker, _ := strings.Cut(req.Payload, ":")
	if id == "" {
		req.Answer = "Invalid button."
		return nil
	}
	owner := ownerOf(req)
	r, err := b.svc.Get(ctx, id, owner)
	if err != nil {
		return answerErr(req, err)
	}
	if err := b.svc.Cancel(ctx, id, owner); err != nil {
		return answerErr(req, err)
	}
	req.Answer = "Cancelled"

	ref, ok := messageRef(req)
	if !ok {
		return nil
	}
	if marker == listMarker {
		text, rows, err := b.renderList(ctx, owner)
		if err != nil {
			return err
		}
		return req.Adapter.EditText(ctx, ref, text.String(), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true, Buttons: rows})
	}
	text := tgui.H("🗑 ") + tgui.Esc("Cancelled: "+title(r))
	return req.Adapter.EditText(ctx, ref, text.String(), &kit.SendOptions{ParseMode: "HTML"})
}
