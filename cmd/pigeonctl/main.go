package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pigeon-chat/pigeon/internal/config"
	"github.com/pigeon-chat/pigeon/internal/profile"
	"github.com/pigeon-chat/pigeon/internal/tui/client"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	labelFlag := flag.String("label", "", "filter chats by label")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	c := client.New(cfg.Daemon.ListenAddr)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.Authenticate(ctx, cfg.UserID, cfg.Auth.BootstrapKey); err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot reach daemon for profile %q: %v\n", profileName, err)
		os.Exit(1)
	}

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "chats":
		cmdChats(ctx, c, *labelFlag, *jsonFlag)
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: pigeonctl messages <chat-id>")
			os.Exit(1)
		}
		cmdMessages(ctx, c, args[1], *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: pigeonctl send <chat-id> <body>")
			os.Exit(1)
		}
		cmdSend(ctx, c, args[1], strings.Join(args[2:], " "))
	case "mkchat":
		cmdMkchat(ctx, c, args[1:])
	case "labels":
		cmdLabels(ctx, c, args[1:], *jsonFlag)
	case "watch":
		cmdWatch(c)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: pigeonctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                          Show daemon state")
	fmt.Fprintln(os.Stderr, "  chats [--label <id>]            List chats")
	fmt.Fprintln(os.Stderr, "  messages <chat-id>              Show a chat's history")
	fmt.Fprintln(os.Stderr, "  send <chat-id> <body>           Queue a message")
	fmt.Fprintln(os.Stderr, "  mkchat direct <user-id>         Find or create a direct chat")
	fmt.Fprintln(os.Stderr, "  mkchat group <name> <user>...   Create a group chat")
	fmt.Fprintln(os.Stderr, "  labels list                     List labels")
	fmt.Fprintln(os.Stderr, "  labels create <name> [color]    Create a label")
	fmt.Fprintln(os.Stderr, "  labels assign <chat> <label>    Attach a label to a chat")
	fmt.Fprintln(os.Stderr, "  labels unassign <chat> <label>  Detach a label from a chat")
	fmt.Fprintln(os.Stderr, "  watch                           Stream daemon events")
}

func cmdStatus(ctx context.Context, c *client.Client, jsonOut bool) {
	state, err := c.Status(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(map[string]string{"state": state})
		return
	}
	fmt.Printf("State: %s\n", state)
}

func cmdChats(ctx context.Context, c *client.Client, label string, jsonOut bool) {
	chats, err := c.Chats(ctx, label)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(chats)
		return
	}
	for _, chat := range chats {
		marker := " "
		if chat.UnreadCount > 0 {
			marker = "*"
		}
		fmt.Printf("%s %-36s  %-20s  unread=%d  %s\n", marker, chat.ID, chat.Name, chat.UnreadCount, chat.LastMessage)
	}
}

func cmdMessages(ctx context.Context, c *client.Client, chatID string, jsonOut bool) {
	msgs, err := c.Messages(ctx, chatID)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	for _, m := range msgs {
		sender := m.SenderName
		if sender == "" {
			sender = m.SenderID
		}
		fmt.Printf("[%s] %s: %s\n", m.SentAt.Format("2006-01-02 15:04"), sender, m.Body)
	}
}

func cmdSend(ctx context.Context, c *client.Client, chatID, body string) {
	msgID, err := c.Send(ctx, chatID, body)
	if err != nil {
		fail(err)
	}
	fmt.Printf("queued %s\n", msgID)
}

func cmdMkchat(ctx context.Context, c *client.Client, args []string) {
	if len(args) >= 2 && args[0] == "direct" {
		chatID, err := c.CreateDirectChat(ctx, args[1], "")
		if err != nil {
			fail(err)
		}
		fmt.Println(chatID)
		return
	}
	if len(args) >= 3 && args[0] == "group" {
		chatID, err := c.CreateGroupChat(ctx, args[1], args[2:])
		if err != nil {
			fail(err)
		}
		fmt.Println(chatID)
		return
	}
	fmt.Fprintln(os.Stderr, "usage: pigeonctl mkchat direct <user-id> | mkchat group <name> <user>...")
	os.Exit(1)
}

func cmdLabels(ctx context.Context, c *client.Client, args []string, jsonOut bool) {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		labels, err := c.Labels(ctx)
		if err != nil {
			fail(err)
		}
		if jsonOut {
			outputJSON(labels)
			return
		}
		for _, l := range labels {
			fmt.Printf("%-36s  %-20s  %s\n", l.ID, l.Name, l.Color)
		}
	case "create":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: pigeonctl labels create <name> [color]")
			os.Exit(1)
		}
		color := ""
		if len(args) >= 3 {
			color = args[2]
		}
		l, err := c.CreateLabel(ctx, args[1], color)
		if err != nil {
			fail(err)
		}
		fmt.Println(l.ID)
	case "assign":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: pigeonctl labels assign <chat-id> <label-id>")
			os.Exit(1)
		}
		if err := c.AssignLabel(ctx, args[1], args[2]); err != nil {
			fail(err)
		}
	case "unassign":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: pigeonctl labels unassign <chat-id> <label-id>")
			os.Exit(1)
		}
		if err := c.UnassignLabel(ctx, args[1], args[2]); err != nil {
			fail(err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown labels command: %s\n", args[0])
		os.Exit(1)
	}
}

// cmdWatch streams daemon events to stdout until interrupted. It uses its
// own context so the stream is not bound by the command timeout.
func cmdWatch(c *client.Client) {
	ctx := context.Background()
	events, err := c.Events(ctx)
	if err != nil {
		fail(err)
	}
	for evt := range events {
		fmt.Printf("%s  %-24s  %s\n", evt.Timestamp.Format(time.RFC3339), evt.Kind, string(evt.Payload))
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
