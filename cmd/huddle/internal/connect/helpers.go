package connect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/tinyland-inc/huddle/cmd/huddle/internal"
	"github.com/tinyland-inc/huddle/pkg/api"
	"github.com/tinyland-inc/huddle/pkg/chat"
	"github.com/tinyland-inc/huddle/pkg/logger"
	"github.com/tinyland-inc/huddle/pkg/session"
	"github.com/tinyland-inc/huddle/pkg/wire"
)

func connectCmd(debug bool, channelID string) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	rest, err := api.NewClient(cfg.Server.URL, cfg.Server.Token)
	if err != nil {
		return err
	}

	sess := session.New(cfg, rest, session.NewTerminalNotifier())
	sess.Start()
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := sess.ReloadChannels(ctx); err != nil {
		logger.WarnCF("cli", "Could not load channel list", map[string]any{"error": err.Error()})
	}
	cancel()

	signals, unsubscribe := sess.Signals()
	defer unsubscribe()
	go func() {
		for sig := range signals {
			switch sig {
			case session.SignalPermissionsChangedByAdmin:
				fmt.Println("\n⚠ Your permissions were changed by an administrator. Please log in again.")
			case session.SignalChannelsUpdated:
				reloadCtx, reloadCancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := sess.ReloadChannels(reloadCtx); err == nil {
					fmt.Println("\n(channel list updated)")
				}
				reloadCancel()
			}
		}
	}()

	fmt.Printf("%s Connected to %s (Ctrl+C to exit)\n\n", internal.Logo, cfg.Server.URL)
	return replLoop(sess, rest, channelID)
}

// repl wraps the mutable REPL state so readline's keystroke listener
// and the command loop see the same open conversation.
type repl struct {
	sess *session.Session
	rest *api.Client

	mu   sync.Mutex
	conv *chat.Conversation
}

func (r *repl) current() *chat.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conv
}

func (r *repl) join(channelID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conv, err := chat.Open(ctx, r.sess, r.rest, channelID, chat.Options{})
	if err != nil {
		return err
	}

	r.mu.Lock()
	old := r.conv
	r.conv = conv
	r.mu.Unlock()
	if old != nil {
		old.Close()
	}

	for _, msg := range conv.Messages() {
		fmt.Printf("  [%s] %s: %s\n", msg.CreatedAt.Format("15:04"), msg.SenderName, msg.Content)
	}
	return nil
}

func (r *repl) leave() {
	r.mu.Lock()
	old := r.conv
	r.conv = nil
	r.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

func replLoop(sess *session.Session, rest *api.Client, initialChannel string) error {
	r := &repl{sess: sess, rest: rest}
	defer r.leave()

	// live event printing next to the conversation's own state merging
	unsubMsg := sess.On(wire.TypeNewMessage, func(frame wire.Frame) {
		var payload wire.NewMessage
		if err := frame.Payload(&payload); err != nil {
			return
		}
		conv := r.current()
		if conv == nil || payload.Message.ChannelID != conv.ChannelID() {
			return
		}
		fmt.Printf("\n%s %s: %s\n", internal.Logo, payload.Message.SenderName, payload.Message.Content)
	})
	defer unsubMsg()

	unsubTyping := sess.On(wire.TypeUserTyping, func(frame wire.Frame) {
		var payload wire.UserTyping
		if err := frame.Payload(&payload); err != nil || !payload.IsTyping {
			return
		}
		conv := r.current()
		if conv != nil && payload.ChannelID == conv.ChannelID() {
			fmt.Printf("\n(%s is typing...)\n", payload.UserName)
		}
	})
	defer unsubTyping()

	if initialChannel != "" {
		if err := r.join(initialChannel); err != nil {
			fmt.Printf("Error joining %s: %v\n", initialChannel, err)
		}
	}

	rlCfg := &readline.Config{
		Prompt:          fmt.Sprintf("%s > ", internal.Logo),
		HistoryFile:     filepath.Join(os.TempDir(), ".huddle_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	}
	// every keystroke counts as an input change for the typing signal
	rlCfg.SetListener(func(line []rune, pos int, key rune) ([]rune, int, bool) {
		if key != 0 {
			if conv := r.current(); conv != nil {
				conv.InputChanged()
			}
		}
		return line, pos, true
	})

	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		return fmt.Errorf("error initializing readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" || input == "/quit" {
			fmt.Println("Goodbye!")
			return nil
		}

		if strings.HasPrefix(input, "/") {
			r.handleCommand(input)
			continue
		}

		conv := r.current()
		if conv == nil {
			fmt.Println("No channel joined. Use /join <channel-id> first.")
			continue
		}

		sendCtx, sendCancel := context.WithTimeout(context.Background(), 10*time.Second)
		messageID, err := conv.Send(sendCtx, input, nil, nil)
		sendCancel()
		if err != nil {
			fmt.Printf("Send failed: %v\n", err)
			continue
		}
		logger.DebugCF("cli", "Message confirmed", map[string]any{"message_id": messageID})
	}
}

func (r *repl) handleCommand(input string) {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/channels":
		for _, ch := range r.sess.Channels() {
			unread := r.sess.UnreadCounts()[ch.ID]
			marker := " "
			if conv := r.current(); conv != nil && conv.ChannelID() == ch.ID {
				marker = "*"
			}
			fmt.Printf("%s %-24s %-12s unread: %d\n", marker, ch.Name, ch.ID, unread)
		}

	case "/join":
		if len(fields) < 2 {
			fmt.Println("Usage: /join <channel-id>")
			return
		}
		if err := r.join(fields[1]); err != nil {
			fmt.Printf("Error joining %s: %v\n", fields[1], err)
		}

	case "/leave":
		r.leave()

	case "/read":
		conv := r.current()
		if conv == nil {
			fmt.Println("No channel joined.")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.sess.MarkChannelRead(ctx, conv.ChannelID()); err != nil {
			fmt.Printf("Error marking read: %v\n", err)
		}

	case "/notifications":
		for _, n := range r.sess.Notifications() {
			state := " "
			if !n.Read {
				state = "•"
			}
			fmt.Printf("%s %s: %s\n", state, n.Title, n.Body)
		}
		fmt.Printf("Total unread: %d\n", r.sess.TotalUnread())

	default:
		fmt.Println("Commands: /channels /join <id> /leave /read /notifications /quit")
	}
}
