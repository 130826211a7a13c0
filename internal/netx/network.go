package netx

import (
	"context"
	"io"
	"time"
)

type Addr string

type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() Addr
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

type Network interface {
	Listen(bindAddr string) (listenAddr Addr, err error)
	Accept() (Conn, error)
	Dial(ctx context.Context, addr Addr) (Conn, error)
	Close() error
}
