//go:build rp2040 || rp2350

// cmd/uart-test/main.go
//
// Echo test for the operator UART. Attach a terminal to UART0, type, and
// every byte comes straight back; line lengths go to the debug console.
// Uses the same Port the console service runs on, so a pass here means
// the console wiring is good.
package main

import (
	"context"
	"time"

	"ledbank-go/services/console"
)

func main() {
	time.Sleep(1500 * time.Millisecond)
	println("[uart] echo test on uart0")

	port := console.NewPort()
	_, _ = port.Write([]byte("uart-test: bytes echo back; LF reports line length\r\n"))

	ctx := context.Background()
	buf := make([]byte, 64)
	total := 0
	lineLen := 0
	for {
		n, err := port.RecvSomeContext(ctx, buf)
		if err != nil {
			println("[uart] read error; halting")
			return
		}
		if n == 0 {
			continue
		}
		_, _ = port.Write(buf[:n])
		total += n
		for _, c := range buf[:n] {
			if c == '\n' {
				println("[uart] line:", lineLen, "bytes; total:", total)
				lineLen = 0
				continue
			}
			lineLen++
		}
	}
}
