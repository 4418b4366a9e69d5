package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/wirelink/internal/client"
	"github.com/danmuck/wirelink/internal/messages"
	"github.com/danmuck/wirelink/internal/protocol/dispatch"
	"github.com/danmuck/wirelink/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func dialCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		name       string
		message    string
		plaintext  bool
	)

	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Connect to a server, send a greeting, and print replies",
		Long: `Connect to a wirelink server over TCP (host:port) or websocket
(ws:// or wss:// URL). Each connection sends a ping, an echo, and a chat
message, then logs every reply until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.DialAddr = addr
			}
			if plaintext {
				cfg.Session.Encryption = false
			}

			table, queue, err := replyRouter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			hooks := session.Hooks{
				Connected: func(s *session.Session) {
					greet(s, name, message)
				},
			}
			d, err := client.New(cfg.Client(), table, hooks)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go queue.Run(ctx, table)
			return d.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to TOML config")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Server address or websocket URL")
	cmd.Flags().StringVarP(&name, "name", "n", "wirectl", "Chat sender name")
	cmd.Flags().StringVarP(&message, "message", "m", "hello", "Chat and echo text")
	cmd.Flags().BoolVar(&plaintext, "plaintext", false, "Disable frame encryption")

	return cmd
}

func greet(s *session.Session, name, text string) {
	batch := make([][]byte, 0, 3)
	for _, m := range []messages.Message{
		messages.Ping{Nonce: s.ID(), SentAt: uint64(time.Now().UnixMilli())},
		messages.Echo{Data: []byte(text)},
		messages.Chat{From: name, Text: text},
	} {
		b, err := messages.Marshal(m)
		if err != nil {
			log.Error().Err(err).Str("message", messages.Name(m.Opcode())).Msg("marshal failed")
			return
		}
		batch = append(batch, b)
	}
	if err := s.SendBatch(batch); err != nil {
		log.Warn().Err(err).Uint64("session_id", s.ID()).Msg("greeting not sent")
	}
}

// replyRouter builds the reply table and diverts every decoded reply into a
// queue, so handlers run on the queue's consumer instead of the session's
// receive goroutine.
func replyRouter(out io.Writer) (*dispatch.Table, *dispatch.Queue, error) {
	table, err := clientTable(out)
	if err != nil {
		return nil, nil, err
	}
	queue := dispatch.NewQueue()
	table.SetCustomHandler(queue.CustomHandler())
	return table, queue, nil
}

func clientTable(out io.Writer) (*dispatch.Table, error) {
	t := dispatch.NewTable()
	if err := dispatch.Handle(t, messages.OpPong, "pong", messages.DecodePong,
		func(_ context.Context, s *session.Session, m messages.Pong) {
			rtt := time.Duration(uint64(time.Now().UnixMilli())-m.SentAt) * time.Millisecond
			log.Debug().Uint64("session_id", s.ID()).Dur("rtt", rtt).Msg("pong")
			fmt.Fprintf(out, "pong rtt=%s\n", rtt)
		}); err != nil {
		return nil, err
	}
	if err := dispatch.Handle(t, messages.OpEchoReply, "echo_reply", messages.DecodeEchoReply,
		func(_ context.Context, s *session.Session, m messages.EchoReply) {
			log.Debug().Uint64("session_id", s.ID()).Int("bytes", len(m.Data)).Msg("echo reply")
			fmt.Fprintf(out, "echo %s\n", m.Data)
		}); err != nil {
		return nil, err
	}
	if err := dispatch.Handle(t, messages.OpChat, "chat", messages.DecodeChat,
		func(_ context.Context, _ *session.Session, m messages.Chat) {
			fmt.Fprintf(out, "<%s> %s\n", m.From, m.Text)
		}); err != nil {
		return nil, err
	}
	return t, nil
}
