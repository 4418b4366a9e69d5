package dispatch

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/danmuck/wirelink/internal/protocol/frame"
	"github.com/danmuck/wirelink/internal/protocol/session"
	"github.com/danmuck/wirelink/internal/testutil/testlog"
)

type echo struct {
	Text string
}

func decodeEcho(b []byte) (echo, error) {
	if len(b) == 0 {
		return echo{}, errors.New("empty echo")
	}
	return echo{Text: string(b)}, nil
}

type number int

func decodeNumber(b []byte) (number, error) {
	n, err := strconv.Atoi(string(b))
	return number(n), err
}

func mustFrame(t *testing.T, opcode uint16, payload string) frame.Frame {
	t.Helper()
	b, err := frame.Encode(opcode, 0, 0, []byte(payload))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := frame.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return f
}

func TestHandleRejectsDuplicatesAndNil(t *testing.T) {
	testlog.Start(t)
	table := NewTable()
	noop := func(context.Context, *session.Session, echo) {}
	if err := Handle(table, 3, "echo", decodeEcho, noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Handle(table, 3, "echo2", decodeEcho, noop); !errors.Is(err, ErrDuplicateOpcode) {
		t.Fatalf("expected ErrDuplicateOpcode, got %v", err)
	}
	if err := Handle[echo](table, 4, "nil", nil, noop); !errors.Is(err, ErrNilRoute) {
		t.Fatalf("expected ErrNilRoute, got %v", err)
	}
	if ops := table.Opcodes(); len(ops) != 1 || ops[0] != 3 {
		t.Fatalf("unexpected opcodes %v", ops)
	}
	if name, ok := table.Name(3); !ok || name != "echo" {
		t.Fatalf("unexpected name=%q ok=%v", name, ok)
	}
}

func TestDispatchRoutesByOpcode(t *testing.T) {
	testlog.Start(t)
	table := NewTable()
	var echoes []string
	var numbers []number
	if err := Handle(table, 3, "echo", decodeEcho, func(_ context.Context, _ *session.Session, m echo) {
		echoes = append(echoes, m.Text)
	}); err != nil {
		t.Fatalf("register echo: %v", err)
	}
	if err := Handle(table, 9, "number", decodeNumber, func(_ context.Context, _ *session.Session, n number) {
		numbers = append(numbers, n)
	}); err != nil {
		t.Fatalf("register number: %v", err)
	}

	ctx := context.Background()
	table.Dispatch(ctx, nil, mustFrame(t, 3, "hello"))
	table.Dispatch(ctx, nil, mustFrame(t, 9, "42"))
	table.Dispatch(ctx, nil, mustFrame(t, 200, "ignored"))
	table.Dispatch(ctx, nil, mustFrame(t, 9, "not-a-number"))
	table.Dispatch(ctx, nil, mustFrame(t, 3, ""))

	if len(echoes) != 1 || echoes[0] != "hello" {
		t.Fatalf("unexpected echoes %v", echoes)
	}
	if len(numbers) != 1 || numbers[0] != 42 {
		t.Fatalf("unexpected numbers %v", numbers)
	}
}

func TestCustomHandlerOverridesRoutes(t *testing.T) {
	testlog.Start(t)
	table := NewTable()
	direct := 0
	if err := Handle(table, 3, "echo", decodeEcho, func(context.Context, *session.Session, echo) {
		direct++
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	var seen []uint16
	table.SetCustomHandler(func(_ context.Context, _ *session.Session, opcode uint16, msg any) {
		if _, ok := msg.(echo); !ok {
			t.Fatalf("custom handler got %T", msg)
		}
		seen = append(seen, opcode)
	})
	table.Dispatch(context.Background(), nil, mustFrame(t, 3, "x"))
	table.Dispatch(context.Background(), nil, mustFrame(t, 77, "x"))
	if direct != 0 || len(seen) != 1 || seen[0] != 3 {
		t.Fatalf("direct=%d seen=%v", direct, seen)
	}

	table.SetCustomHandler(nil)
	table.Dispatch(context.Background(), nil, mustFrame(t, 3, "x"))
	if direct != 1 {
		t.Fatalf("expected direct handling after reset, got %d", direct)
	}
}

func TestQueueDefersToConsumer(t *testing.T) {
	testlog.Start(t)
	table := NewTable()
	var handled []string
	if err := Handle(table, 3, "echo", decodeEcho, func(_ context.Context, _ *session.Session, m echo) {
		handled = append(handled, m.Text)
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	q := NewQueue()
	table.SetCustomHandler(q.CustomHandler())

	table.Dispatch(context.Background(), nil, mustFrame(t, 3, "one"))
	table.Dispatch(context.Background(), nil, mustFrame(t, 3, "two"))
	if len(handled) != 0 {
		t.Fatalf("queue should defer handling, handled=%v", handled)
	}
	if q.Len() != 2 {
		t.Fatalf("queue len=%d", q.Len())
	}
	select {
	case <-q.Ready():
	default:
		t.Fatalf("queue not signalled")
	}

	q.Push(Packet{Opcode: 55, Message: echo{Text: "orphan"}})
	if n := q.Drain(context.Background(), table); n != 2 {
		t.Fatalf("drain handled=%d want=2", n)
	}
	if len(handled) != 2 || handled[0] != "one" || handled[1] != "two" {
		t.Fatalf("unexpected order %v", handled)
	}
	if q.Len() != 0 || len(q.PopAll()) != 0 {
		t.Fatalf("queue not empty after drain")
	}
}

func TestInvokeSkipsMismatchedType(t *testing.T) {
	testlog.Start(t)
	table := NewTable()
	called := false
	if err := Handle(table, 3, "echo", decodeEcho, func(context.Context, *session.Session, echo) {
		called = true
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !table.Invoke(context.Background(), nil, 3, "wrong type") {
		t.Fatalf("invoke should report a route")
	}
	if called {
		t.Fatalf("handler ran with mismatched type")
	}
	if table.Invoke(context.Background(), nil, 4, echo{}) {
		t.Fatalf("invoke reported unknown route")
	}
}
