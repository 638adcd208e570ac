package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestLinkSendRecv(t *testing.T) {
	t.Parallel()

	in, err := Listen("test-in", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer in.Close()

	out, err := Dial("test-out", in.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer out.Close()

	want := []byte("hello over udp")
	if err := out.Send(want); err != nil {
		t.Fatalf("send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, _, err := in.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("recv = %q, want %q", got, want)
	}

	if s := in.Stats(); s.Packets != 1 || s.Bytes != uint64(len(want)) {
		t.Fatalf("inbound stats = %+v", s)
	}
	if !in.Up(time.Second) {
		t.Fatal("link should be up immediately after traffic")
	}
}

func TestLinkRecvHonoursContext(t *testing.T) {
	t.Parallel()

	in, err := Listen("idle", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer in.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := in.Recv(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("recv error = %v, want context.Canceled", err)
	}
}

func TestSenderRequiresRemote(t *testing.T) {
	t.Parallel()

	l, err := NewSender("reply")
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	defer l.Close()

	if err := l.Send([]byte("x")); !errors.Is(err, ErrNoRemote) {
		t.Fatalf("send error = %v, want ErrNoRemote", err)
	}

	in, err := Listen("sink", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer in.Close()

	l.SetRemote(in.LocalAddr().(*net.UDPAddr))
	if err := l.Send([]byte("x")); err != nil {
		t.Fatalf("send after SetRemote: %v", err)
	}
}

func TestLinkLiveness(t *testing.T) {
	t.Parallel()

	l, err := Listen("quiet", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	// Never carried traffic: down by definition.
	if l.Up(time.Hour) {
		t.Fatal("virgin link reported up")
	}
}

func TestLinkCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	l, err := Listen("closing", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := l.Send([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("send after close = %v, want ErrClosed", err)
	}
}
