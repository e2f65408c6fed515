// services/console/port_rp2.go
//go:build rp2040 || rp2350

package console

import (
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

// NewPort configures UART0 on the board-default pins at 115200 8N1.
// uartx gives us the context-aware receive the stock machine UART lacks.
func NewPort() Port {
	u := uartx.UART0
	_ = u.Configure(uartx.UARTConfig{
		BaudRate: 115200,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	return u
}
