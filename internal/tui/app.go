// Package tui is the terminal client for a running pigeond.
package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pigeon-chat/pigeon/internal/bus"
	"github.com/pigeon-chat/pigeon/internal/tui/client"
	"github.com/pigeon-chat/pigeon/internal/tui/keys"
	"github.com/pigeon-chat/pigeon/internal/tui/model"
	"github.com/pigeon-chat/pigeon/internal/tui/views"
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	vm        *model.ViewModel
	client    *client.Client
	registry  *keys.Registry
	statusBar *views.StatusBar
	chatList  *views.ChatList
	msgView   *views.MessageView
	composer  *views.Composer
	selfID    string
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *client.Client, profileName, selfID string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	vm := model.NewViewModel(c)

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        vm,
		client:    c,
		registry:  keys.NewRegistry(),
		statusBar: views.NewStatusBar(),
		chatList:  views.NewChatList(),
		msgView:   views.NewMessageView(),
		composer:  views.NewComposer(),
		selfID:    selfID,
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(profileName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.app.Stop() },
	})
	a.registry.AddGlobal("reload", &keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Description: "r:reload", Visible: true,
		Handler: func() { go a.reload() },
	})
}

func (a *App) setupCallbacks() {
	a.chatList.SetSelectedFunc(func(row, col int) {
		id := a.chatList.SelectedChat()
		if id != "" {
			a.openChat(id)
		}
	})

	a.composer.SetOnSend(func(text string) {
		chatID := a.vm.GetActiveChatID()
		if chatID == "" {
			return
		}
		go func() {
			if err := a.vm.SendText(a.ctx, chatID, text); err != nil {
				a.vm.Flash.Set("Send failed: "+err.Error(), 5*time.Second)
			}
			_ = a.vm.LoadMessages(a.ctx, chatID)
			a.app.QueueUpdateDraw(func() {
				a.msgView.Update(a.vm.GetMessages(), a.selfID)
				a.statusBar.SetFlash(a.vm.Flash.Get())
			})
		}()
	})
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("chats", a.chatList, true, true)
	a.pages.AddPage("chat", chatFlex, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape && currentPage == "chat" {
			go a.vm.CloseChat(a.ctx)
			a.pages.SwitchToPage("chats")
			a.app.SetFocus(a.chatList)
			return nil
		}

		// Let text input widgets handle all keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		// 'i' focuses the composer (only when not already in an input field).
		if currentPage == "chat" && event.Key() == tcell.KeyRune && event.Rune() == 'i' {
			a.app.SetFocus(a.composer.InputField)
			return nil
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}

		return event
	})
}

func (a *App) openChat(chatID string) {
	go func() {
		if err := a.vm.OpenChat(a.ctx, chatID); err != nil {
			a.vm.Flash.Set("Load failed: "+err.Error(), 5*time.Second)
			return
		}
		chatName := chatID
		for _, c := range a.vm.GetChats() {
			if c.ID == chatID {
				if c.Name != "" {
					chatName = c.Name
				}
				break
			}
		}
		a.app.QueueUpdateDraw(func() {
			a.msgView.SetChatName(chatName)
			a.msgView.Update(a.vm.GetMessages(), a.selfID)
			a.pages.SwitchToPage("chat")
			a.app.SetFocus(a.msgView)
		})
	}()
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		a.reload()
		a.startEventLoop()
	}()

	return a.app.Run()
}

// reload pulls fresh state from the daemon and redraws.
func (a *App) reload() {
	_ = a.vm.LoadState(a.ctx)
	_ = a.vm.LoadChats(a.ctx)
	if active := a.vm.GetActiveChatID(); active != "" {
		_ = a.vm.LoadMessages(a.ctx, active)
	}

	a.app.QueueUpdateDraw(func() {
		currentPage, _ := a.pages.GetFrontPage()
		if currentPage == "chats" {
			a.chatList.Update(a.vm.GetChats())
		} else {
			a.msgView.Update(a.vm.GetMessages(), a.selfID)
		}
		a.statusBar.SetState(a.vm.GetState())
		a.statusBar.SetFlash(a.vm.Flash.Get())
	})
}

// startEventLoop subscribes to the daemon's websocket stream and reloads
// on relevant events. A slow ticker covers dropped sockets and clock
// updates in the status bar.
func (a *App) startEventLoop() {
	events, err := a.client.Events(a.ctx)
	if err != nil {
		a.vm.Flash.Set("Event stream unavailable: "+err.Error(), 10*time.Second)
	}

	ticker := time.NewTicker(15 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case evt, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				switch evt.Kind {
				case bus.KindChatUpdated, bus.KindChatCreated, bus.KindChatRead,
					bus.KindMessageSent, bus.KindMessageFailed,
					bus.KindSyncRefreshed, bus.KindSyncDegraded, bus.KindStatusChanged:
					a.reload()
				}
			case <-ticker.C:
				a.reload()
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
