//go:build rp2040

package main

import (
	"machine"
	"time"

	"steppilot/core"
	"steppilot/protocol"
)

// Board wiring. The driver UART rides on UART1, STEP/DIR go to the PIO
// block, and DIAG is a plain input.
const (
	driverUARTTx = machine.GPIO8
	driverUARTRx = machine.GPIO9
	driverAddr   = 0

	stepPin = machine.GPIO10
	dirPin  = machine.GPIO11
	diagPin = machine.GPIO12

	statusLEDPin = machine.GPIO16
)

var (
	rxBuffer *protocol.RxBuffer
	led      *StatusLED
)

func main() {
	// Clear any watchdog state a previous boot left behind.
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	// machine.Serial is USB CDC on RP2040.
	machine.Serial.Configure(machine.UARTConfig{})

	core.SetDebugWriter(func(s string) {
		machine.Serial.Write([]byte("# " + s + "\r\n"))
	})

	led = NewStatusLED(statusLEDPin)

	driver := NewTMC2209(machine.UART1, driverUARTTx, driverUARTRx, driverAddr)

	stepDir, err := NewStepDirBackend(stepPin, dirPin, 0)
	if err == nil {
		driver.AttachStepDir(stepDir)
	}

	diag := diagPin
	diag.Configure(machine.PinConfig{Mode: machine.PinInput})

	clock := core.SystemClock()
	sup := core.NewSupervisor(driver, diag.Get, clock, core.DefaultConfig())

	rxBuffer = protocol.NewRxBuffer(256)
	console := &usbConsole{}
	go usbReaderLoop()

	loop := core.NewLoop(sup, console, clock, fatalHalt)

	console.Write(append([]byte(core.Banner), '\n'))
	for {
		loop.RunOnce()

		reading := sup.ReadStall()
		led.Show(sup.State().Moving, reading.Stalled())

		clock.Sleep(core.DefaultLoopInterval)
	}
}

// fatalHalt reports an unrecoverable encoding fault and never returns.
// Corrupted frames must not reach the host, so the loop dies here.
func fatalHalt(err error) {
	led.ShowFault()
	msg := []byte("# fatal: " + err.Error() + "\r\n")
	for {
		machine.Serial.Write(msg)
		time.Sleep(1 * time.Second)
	}
}

// usbConsole adapts USB CDC to the main loop's console interface. The
// reader goroutine fills rxBuffer; PollLine pops complete lines from it.
type usbConsole struct {
	scratch [protocol.MaxLineLen]byte
}

func (c *usbConsole) PollLine() ([]byte, bool) {
	n, ok := rxBuffer.NextLine(c.scratch[:])
	if !ok {
		return nil, false
	}
	return c.scratch[:n], true
}

func (c *usbConsole) Write(line []byte) error {
	_, err := machine.Serial.Write(line)
	return err
}

// usbReaderLoop continuously drains USB CDC into the receive ring so the
// cooperative main loop never blocks on input.
func usbReaderLoop() {
	for {
		if machine.Serial.Buffered() == 0 {
			time.Sleep(1 * time.Millisecond)
			continue
		}
		b, err := machine.Serial.ReadByte()
		if err != nil {
			time.Sleep(1 * time.Millisecond)
			continue
		}
		if rxBuffer.Write([]byte{b}) == 0 {
			// Ring full. Drop the byte and let the host retry the line.
			time.Sleep(10 * time.Millisecond)
		}
	}
}
