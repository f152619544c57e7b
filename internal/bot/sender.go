package bot

import (
	"context"
	"fmt"

	"remindbot/internal/notifier"
	kit "remindbot/internal/transport"
)

// Sender delivers notifier messages through a chat adapter. Text is sent as plain text
// so reminder titles never need escaping.
type Sender struct {
	adapter kit.Adapter
}

func NewSender(adapter kit.Adapter) *Sender { return &Sender{adapter: adapter} }

func (s *Sender) Send(ctx context.Context, m notifier.Message) error {
	to, err := kit.ParseChatTarget(m.Destination)
	if err != nil {
		return err
	}
	var opt *kit.SendOptions
	if rows := actionRows(m.Actions); len(rows) > 0 {
		opt = &kit.SendOptions{Buttons: rows}
	}
	if _, err := s.adapter.SendText(ctx, to, m.Text, opt); err != nil {
		return fmt.Errorf("send to %s: %w", m.Destination, err)
	}
	return nil
}
