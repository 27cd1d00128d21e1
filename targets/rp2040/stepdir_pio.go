//go:build rp2040

package main

import (
	"machine"
	"time"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"steppilot/targets/steprate"
)

// StepDirBackend generates STEP/DIR pulse trains with a PIO state machine,
// used when the driver is switched off VACTUAL velocity mode. While active,
// a feeder goroutine converts the commanded velocity into batched pulse
// trains and keeps the TX FIFO topped up.
//
// Command word format:
//
//	Bits 0-15:  pulse count
//	Bits 16-23: delay cycles (inter-pulse spacing)
//	Bit 31:     direction
type StepDirBackend struct {
	pio       *rp2pio.PIO
	sm        rp2pio.StateMachine
	stepPin   machine.Pin
	dirPin    machine.Pin
	direction bool
	offset    uint8
	active    bool
	rate      int32 // steps per second magnitude; 0 pauses the feeder
}

func buildStepDirProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),
		asm.Out(rp2pio.OutDestX, 16).Encode(),
		asm.Out(rp2pio.OutDestY, 8).Encode(),
		asm.Out(rp2pio.OutDestPins, 1).Encode(),
		// step_loop:
		asm.Set(rp2pio.SetDestPins, 1).Delay(7).Encode(),
		asm.Set(rp2pio.SetDestPins, 0).Encode(),
		// delay_loop:
		asm.Jmp(6, rp2pio.JmpYNZeroDec).Encode(),
		asm.Jmp(4, rp2pio.JmpXNZeroDec).Encode(),
		// .wrap
	}
}

// Load at offset 0 so the jump targets in the program stay correct.
const stepDirPIOOrigin = 0

// NewStepDirBackend claims a state machine on PIO0 and loads the pulse
// program. The step and dir pins are handed to the PIO block.
func NewStepDirBackend(stepPin, dirPin machine.Pin, smNum uint8) (*StepDirBackend, error) {
	b := &StepDirBackend{
		pio:     rp2pio.PIO0,
		stepPin: stepPin,
		dirPin:  dirPin,
	}
	b.sm = b.pio.StateMachine(smNum)
	b.sm.TryClaim()

	program := buildStepDirProgram()
	offset, err := b.pio.AddProgram(program, stepDirPIOOrigin)
	if err != nil {
		return nil, err
	}
	b.offset = offset

	b.stepPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})
	b.dirPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(b.stepPin, 1)
	cfg.SetOutPins(b.dirPin, 1)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	cfg.SetClkDivIntFrac(1000, 0)

	b.sm.Init(offset, cfg)

	// Pin directions must be set after Init.
	b.sm.SetPindirsConsecutive(b.stepPin, 1, true)
	b.sm.SetPindirsConsecutive(b.dirPin, 1, true)
	b.sm.SetPinsConsecutive(b.stepPin, 1, false)
	b.sm.SetPinsConsecutive(b.dirPin, 1, false)

	return b, nil
}

// Activate enables the state machine and starts the feeder. Until
// activated the PIO leaves the step pin alone so VACTUAL mode owns the
// motor.
func (b *StepDirBackend) Activate() {
	if b.active {
		return
	}
	b.rate = 0
	b.sm.SetEnabled(true)
	b.active = true
	go b.feed()
}

// Active reports whether the backend currently owns pulse generation.
func (b *StepDirBackend) Active() bool {
	return b.active
}

// SetVelocity routes a signed velocity into the pulse generator. Zero
// pauses pulses without leaving step/dir mode.
func (b *StepDirBackend) SetVelocity(stepsPerSecond int32) {
	reverse, rate := steprate.SplitVelocity(stepsPerSecond)
	b.SetDirection(reverse)
	b.rate = rate
}

// SetDirection latches the direction for subsequently queued steps.
func (b *StepDirBackend) SetDirection(dir bool) {
	b.direction = dir
}

// QueueSteps queues a pulse train. Blocks briefly if the FIFO is full.
func (b *StepDirBackend) QueueSteps(count uint16, delayCycles uint8) {
	if !b.active {
		return
	}
	cmd := uint32(count) | (uint32(delayCycles) << 16)
	if b.direction {
		cmd |= 1 << 31
	}
	for b.sm.IsTxFIFOFull() {
	}
	b.sm.TxPut(cmd)
}

// feed keeps the TX FIFO stocked with pulse trains at the commanded rate.
// Runs on its own goroutine from Activate until Stop.
func (b *StepDirBackend) feed() {
	for b.active {
		rate := b.rate
		if rate == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		for b.sm.IsTxFIFOFull() {
			if !b.active {
				return
			}
			time.Sleep(time.Millisecond)
		}
		b.QueueSteps(steprate.BatchCount(rate), steprate.DelayTicks(rate))
	}
}

// Stop halts pulse generation, terminates the feeder, and clears any
// queued work.
func (b *StepDirBackend) Stop() {
	if !b.active {
		return
	}
	b.active = false
	b.rate = 0
	b.sm.SetEnabled(false)
	b.sm.ClearFIFOs()
	b.sm.Restart()
}
