package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/pigeon-chat/pigeon/internal/tui/client"
)

// MessageView displays messages for a single chat.
type MessageView struct {
	*tview.TextView
	chatName string
}

// NewMessageView creates a new message view.
func NewMessageView() *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{TextView: tv}
}

// SetChatName updates the title with the chat name.
func (mv *MessageView) SetChatName(name string) {
	mv.chatName = name
	mv.SetTitle(fmt.Sprintf(" %s ", name))
}

// Update refreshes the message view with new messages.
func (mv *MessageView) Update(msgs []client.Message, selfID string) {
	mv.Clear()

	for _, m := range msgs {
		sender := m.SenderName
		if sender == "" {
			sender = m.SenderID
		}
		if m.SenderID == selfID {
			sender = "You"
		}

		ts := formatTimestamp(m.SentAt)
		line := fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-]\n%s\n\n", sender, ts, sanitizeForTerminal(m.Body))
		_, _ = fmt.Fprint(mv, line)
	}

	mv.ScrollToEnd()
}
