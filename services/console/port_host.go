// services/console/port_host.go
//go:build !rp2040 && !rp2350

package console

import (
	"context"
	"io"
	"os"
)

// NewPort returns a console port on stdin/stdout, so the same service
// runs in a plain terminal during development.
func NewPort() Port { return newStdioPort() }

type stdioPort struct {
	rx  chan []byte
	rem []byte
}

func newStdioPort() *stdioPort {
	p := &stdioPort{rx: make(chan []byte, 4)}
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				p.rx <- append([]byte(nil), buf[:n]...)
			}
			if err != nil {
				close(p.rx)
				return
			}
		}
	}()
	return p
}

func (p *stdioPort) Write(b []byte) (int, error) { return os.Stdout.Write(b) }

func (p *stdioPort) RecvSomeContext(ctx context.Context, buf []byte) (int, error) {
	if len(p.rem) > 0 {
		n := copy(buf, p.rem)
		p.rem = p.rem[n:]
		return n, nil
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case chunk, ok := <-p.rx:
		if !ok {
			return 0, io.EOF
		}
		n := copy(buf, chunk)
		if n < len(chunk) {
			p.rem = chunk[n:]
		}
		return n, nil
	}
}
