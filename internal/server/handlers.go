package server

import (
	"context"

	"github.com/danmuck/wirelink/internal/messages"
	"github.com/danmuck/wirelink/internal/protocol/dispatch"
	"github.com/danmuck/wirelink/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// NewTable builds the server side routes for the bundled message set: ping
// is answered with pong, echo with echo_reply, and chat is relayed to every
// live session in reg.
func NewTable(reg *Registry) (*dispatch.Table, error) {
	t := dispatch.NewTable()
	if err := dispatch.Handle(t, messages.OpPing, messages.Name(messages.OpPing), messages.DecodePing,
		func(_ context.Context, s *session.Session, m messages.Ping) {
			reply(s, messages.Pong(m))
		}); err != nil {
		return nil, err
	}
	if err := dispatch.Handle(t, messages.OpEcho, messages.Name(messages.OpEcho), messages.DecodeEcho,
		func(_ context.Context, s *session.Session, m messages.Echo) {
			reply(s, messages.EchoReply(m))
		}); err != nil {
		return nil, err
	}
	if err := dispatch.Handle(t, messages.OpChat, messages.Name(messages.OpChat), messages.DecodeChat,
		func(_ context.Context, s *session.Session, m messages.Chat) {
			n := reg.Broadcast(m.Opcode(), m.Payload())
			log.Debug().Uint64("session_id", s.ID()).Str("from", m.From).Int("delivered", n).Msg("chat relayed")
		}); err != nil {
		return nil, err
	}
	return t, nil
}

func reply(s *session.Session, m messages.Message) {
	if err := s.SendMessage(m.Opcode(), m.Payload()); err != nil {
		log.Debug().Err(err).Uint64("session_id", s.ID()).Str("message", messages.Name(m.Opcode())).Msg("reply dropped")
	}
}
