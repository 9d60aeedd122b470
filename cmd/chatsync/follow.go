package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"chatsync/internal/bus"
	"chatsync/internal/domain"
	"chatsync/internal/engine"
)

func newFollowCmd(configPath *string) *cobra.Command {
	var (
		platform string
		search   string
		limit    int
		readOnly bool
	)

	cmd := &cobra.Command{
		Use:   "follow [conversation-id]",
		Short: "Follow conversations in the terminal",
		Long: strings.TrimSpace(`
Print the conversation list and live notices as they arrive.

With a conversation id, open it, print its history and every new message.
Lines typed on stdin are sent to the open conversation unless --read-only is set.
`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cfg, log)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			f := &follower{sess: rt.sess, out: out, printed: make(map[string]bool), events: make(chan func(), 64)}
			unsub := f.subscribe(rt.sess.Bus())
			defer unsub()

			if err := rt.start(ctx); err != nil {
				return fmt.Errorf("start session: %w", err)
			}
			if platform != "" {
				if err := rt.sess.SetPlatformFilter(domain.Platform(platform)); err != nil {
					return err
				}
			}
			if search != "" {
				if err := rt.sess.SetSearch(search); err != nil {
					return err
				}
			}
			f.printList(limit)

			if len(args) == 1 {
				if err := rt.sess.Select(args[0]); err != nil {
					return err
				}
				if !readOnly {
					go f.readInput(cmd.InOrStdin(), args[0])
				}
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case fn := <-f.events:
					fn()
				}
			}
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "only list one platform (facebook, instagram, zalo, widget)")
	cmd.Flags().StringVar(&search, "search", "", "filter the list by customer name")
	cmd.Flags().IntVar(&limit, "limit", 20, "conversations to print")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "do not send stdin lines")
	return cmd
}

// follower renders bus traffic as terminal lines. Bus callbacks run on the
// session loop, so they only enqueue work for the command goroutine.
type follower struct {
	sess    *engine.Session
	out     io.Writer
	printed map[string]bool
	events  chan func()
}

func (f *follower) enqueue(fn func()) {
	select {
	case f.events <- fn:
	default:
	}
}

func (f *follower) subscribe(b *bus.Bus) func() {
	unsubs := []func(){
		b.Toast.Subscribe(func(v bus.Toast) {
			f.enqueue(func() { fmt.Fprintf(f.out, "[%s] %s\n", v.Level, v.Text) })
		}),
		b.Alert.Subscribe(func(v bus.Alert) {
			f.enqueue(func() { f.printAlert(v.ConvID) })
		}),
		b.AccessRequested.Subscribe(func(v bus.AccessRequested) {
			f.enqueue(func() { fmt.Fprintf(f.out, "! %s requests access to %s\n", v.RequesterName, v.ConvID) })
		}),
		b.ConnectionState.Subscribe(func(v bus.ConnectionState) {
			state := "disconnected"
			if v.Connected {
				state = "connected"
			}
			f.enqueue(func() { fmt.Fprintf(f.out, "-- push %s at %s\n", state, v.At.Format("15:04:05")) })
		}),
		b.TimelineChanged.Subscribe(func(bus.TimelineChanged) {
			f.enqueue(f.printTimeline)
		}),
		b.UnreadTotal.Subscribe(func(v bus.UnreadTotal) {
			f.enqueue(func() { fmt.Fprintf(f.out, "-- unread: %d\n", v.Total) })
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (f *follower) printList(limit int) {
	items, err := f.sess.Conversations()
	if err != nil {
		fmt.Fprintf(f.out, "list conversations: %v\n", err)
		return
	}
	for i, c := range items {
		if limit > 0 && i >= limit {
			break
		}
		mark := " "
		if c.IsUnread {
			mark = "*"
		}
		lock := ""
		if c.Locked && c.CurrentHandler != nil {
			lock = " [" + c.CurrentHandler.Name + "]"
		}
		fmt.Fprintf(f.out, "%s %-10s %-40s %s%s  %s\n", mark, c.Platform, c.ID, c.Name, lock, c.LastMessage)
	}
}

func (f *follower) printAlert(convID string) {
	c, err := f.sess.Conversation(convID)
	if err != nil {
		return
	}
	fmt.Fprintf(f.out, "* new message from %s (%s): %s\n", c.Name, c.Platform, c.LastMessage)
}

func (f *follower) printTimeline() {
	view, ok, err := f.sess.View()
	if err != nil || !ok {
		return
	}
	for _, m := range view.Messages {
		if m.Pending || f.printed[m.ID] {
			continue
		}
		f.printed[m.ID] = true
		who := view.Conversation.Name
		if m.Sender == domain.SenderUser {
			who = "you"
		}
		body := m.Preview()
		if m.Failed {
			body += " (failed: " + m.ErrorMessage + ")"
		}
		fmt.Fprintf(f.out, "%s %s: %s\n", m.Time, who, body)
	}
}

func (f *follower) readInput(in io.Reader, convID string) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if _, err := f.sess.SendText(convID, line); err != nil {
			f.enqueue(func() { fmt.Fprintf(f.out, "send: %v\n", err) })
		}
	}
}
