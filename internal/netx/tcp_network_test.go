package netx

import (
	"context"
	"io"
	"testing"
	"time"
)

func TestTCPNetworkRoundTrip(t *testing.T) {
	srv := NewTCPNetwork()
	addr, err := srv.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	accepted := make(chan Conn, 1)
	go func() {
		c, err := srv.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := NewTCPNetwork().Dial(ctx, addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	s, ok := <-accepted
	if !ok {
		t.Fatal("accept failed")
	}
	defer s.Close()

	if _, err := c.Write([]byte("ping")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(s, buf); err != nil || string(buf) != "ping" {
		t.Fatalf("read %q, %v", buf, err)
	}

	// an expired read deadline unblocks the reader
	_ = s.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
	if _, err := s.Read(buf); err == nil {
		t.Fatal("expected deadline error")
	}
}

func TestAcceptAfterClose(t *testing.T) {
	n := NewTCPNetwork()
	if _, err := n.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	_ = n.Close()
	if _, err := n.Accept(); err == nil {
		t.Fatal("Accept after Close should fail")
	}
}
