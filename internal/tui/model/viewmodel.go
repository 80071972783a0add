package model

import (
	"context"
	"sync"
	"time"

	"github.com/pigeon-chat/pigeon/internal/tui/client"
)

// ViewModel caches daemon state for the UI and signals refreshes.
type ViewModel struct {
	mu sync.RWMutex

	client       *client.Client
	State        string
	Chats        []client.Chat
	Messages     []client.Message
	ActiveChatID string
	Flash        Flash

	refreshCh chan struct{}
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(c *client.Client) *ViewModel {
	return &ViewModel{
		client:    c,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadState fetches the daemon's current state.
func (vm *ViewModel) LoadState(ctx context.Context) error {
	state, err := vm.client.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.State = state
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadChats fetches the chat list.
func (vm *ViewModel) LoadChats(ctx context.Context) error {
	chats, err := vm.client.Chats(ctx, "")
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Chats = chats
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// OpenChat focuses a chat on the daemon and loads its history.
func (vm *ViewModel) OpenChat(ctx context.Context, chatID string) error {
	if err := vm.client.Focus(ctx, chatID); err != nil {
		return err
	}
	return vm.LoadMessages(ctx, chatID)
}

// CloseChat blurs the active conversation.
func (vm *ViewModel) CloseChat(ctx context.Context) {
	_ = vm.client.Blur(ctx)
	vm.mu.Lock()
	vm.ActiveChatID = ""
	vm.mu.Unlock()
}

// LoadMessages fetches messages for the given chat and marks it active.
func (vm *ViewModel) LoadMessages(ctx context.Context, chatID string) error {
	msgs, err := vm.client.Messages(ctx, chatID)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.ActiveChatID = chatID
	vm.Messages = msgs
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// SendText queues a message on the active chat.
func (vm *ViewModel) SendText(ctx context.Context, chatID, text string) error {
	if _, err := vm.client.Send(ctx, chatID, text); err != nil {
		return err
	}
	vm.Flash.Set("Message queued", 3*time.Second)
	vm.signalRefresh()
	return nil
}

// GetChats returns a snapshot of the current chat list.
func (vm *ViewModel) GetChats() []client.Chat {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Chats
}

// GetMessages returns a snapshot of the current messages.
func (vm *ViewModel) GetMessages() []client.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Messages
}

// GetState returns the last observed daemon state.
func (vm *ViewModel) GetState() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.State
}

// GetActiveChatID returns the chat the UI currently displays.
func (vm *ViewModel) GetActiveChatID() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.ActiveChatID
}
