package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/google/shlex"

	"steppilot/host/config"
	"steppilot/host/serial"
	"steppilot/host/stepper"
	"steppilot/protocol"
)

var (
	device  = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud    = flag.Int("baud", 115200, "Baud rate (ignored for USB CDC)")
	cfgPath = flag.String("config", "", "Optional YAML config file")
)

func main() {
	flag.Parse()

	serialCfg := serial.DefaultConfig(*device)
	serialCfg.Baud = *baud

	var motor config.MotorConfig
	if *cfgPath != "" {
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		serialCfg.Device = cfg.Serial.Device
		serialCfg.Baud = cfg.Serial.Baud
		serialCfg.ReadTimeout = cfg.Serial.ReadTimeoutMs
		motor = cfg.Motor
	}

	fmt.Printf("Connecting to supervisor on %s...\n", serialCfg.Device)
	client, err := stepper.Connect(serialCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()
	fmt.Println("Connected successfully!")

	if err := applyMotorDefaults(client, motor); err != nil {
		fmt.Fprintf(os.Stderr, "Error: motor setup failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts, err := shlex.Split(scanner.Text())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if len(parts) == 0 {
			continue
		}

		if parts[0] == "quit" || parts[0] == "exit" || parts[0] == "q" {
			fmt.Println("Goodbye!")
			return
		}

		if err := runCommand(client, parts[0], parts[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

// applyMotorDefaults pushes non-zero config values to the firmware right
// after connecting.
func applyMotorDefaults(client *stepper.Client, motor config.MotorConfig) error {
	type step struct {
		name string
		val  int
		send func(uint8) (protocol.Response, error)
	}
	steps := []step{
		{"run current", motor.RunCurrent, client.SetRunCurrent},
		{"hold current", motor.HoldCurrent, client.SetHoldCurrent},
		{"stallguard threshold", motor.StallGuardThreshold, client.SetStallGuardThreshold},
	}
	for _, s := range steps {
		if s.val == 0 {
			continue
		}
		resp, err := s.send(uint8(s.val))
		if err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("%s: %s", s.name, resp.Message)
		}
	}
	if motor.MicrostepsPerStep != 0 {
		resp, err := client.SetMicrostepsPerStep(uint16(motor.MicrostepsPerStep))
		if err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("microsteps: %s", resp.Message)
		}
	}
	return nil
}

func runCommand(client *stepper.Client, cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		printHelp()
		return nil

	case "enable":
		return report(client.Enable(true))
	case "disable":
		return report(client.Disable())
	case "hw-enable-pin":
		v, err := argUint8(args)
		if err != nil {
			return err
		}
		return report(client.SetHardwareEnablePin(v))
	case "hw-disabled":
		disabled, err := client.HardwareDisabled()
		if err != nil {
			return err
		}
		fmt.Printf("hardware disabled: %v\n", disabled)
		return nil

	case "analog-scaling":
		return report(client.EnableAnalogCurrentScaling())
	case "auto-scaling":
		on, err := argBool(args)
		if err != nil {
			return err
		}
		if on {
			return report(client.EnableAutomaticCurrentScaling())
		}
		return report(client.DisableAutomaticCurrentScaling())
	case "auto-gradient":
		return report(client.EnableAutomaticGradientAdaptation())

	case "pwm-offset":
		v, err := argUint8(args)
		if err != nil {
			return err
		}
		return report(client.SetPwmOffset(v))
	case "pwm-gradient":
		v, err := argUint8(args)
		if err != nil {
			return err
		}
		return report(client.SetPwmGradient(v))
	case "run-current":
		v, err := argUint8(args)
		if err != nil {
			return err
		}
		return report(client.SetRunCurrent(v))
	case "hold-current":
		v, err := argUint8(args)
		if err != nil {
			return err
		}
		return report(client.SetHoldCurrent(v))
	case "standstill-mode":
		v, err := argUint8(args)
		if err != nil {
			return err
		}
		return report(client.SetStandstillMode(v))
	case "sg-threshold":
		v, err := argUint8(args)
		if err != nil {
			return err
		}
		return report(client.SetStallGuardThreshold(v))
	case "microsteps":
		v, err := argInt(args)
		if err != nil {
			return err
		}
		return report(client.SetMicrostepsPerStep(uint16(v)))
	case "microsteps-exp":
		v, err := argUint8(args)
		if err != nil {
			return err
		}
		return report(client.SetMicrostepsPerStepPowerOfTwo(v))

	case "velocity":
		v, err := argInt(args)
		if err != nil {
			return err
		}
		return report(client.MoveAtVelocity(int32(v)))
	case "stop":
		return report(client.StopMoving())
	case "stepdir":
		return report(client.MoveUsingStepDirInterface())
	case "reply-delay":
		v, err := argUint8(args)
		if err != nil {
			return err
		}
		return report(client.SetReplyDelay(v))

	case "ping":
		ok, err := client.IsSetupAndCommunicating()
		if err != nil {
			return err
		}
		fmt.Printf("setup and communicating: %v\n", ok)
		return nil
	case "sg":
		sg, err := client.GetStallGuardResult()
		if err != nil {
			return err
		}
		fmt.Printf("stallguard result: %d\n", sg)
		return nil
	case "standstill":
		still, err := client.IsStandingStill()
		if err != nil {
			return err
		}
		fmt.Printf("standing still: %v\n", still)
		return nil
	case "status":
		s := client.LastStatus
		fmt.Printf("sg_result=%d diag=%v\n", s.SGResult, s.Diag)
		return nil

	case "home":
		forward := true
		if len(args) > 0 {
			switch args[0] {
			case "forward", "fwd":
			case "reverse", "rev":
				forward = false
			default:
				return fmt.Errorf("home direction must be 'forward' or 'reverse', got %q", args[0])
			}
		}
		fmt.Println("Homing (blocks until stall or timeout)...")
		return report(client.SensorlessHoming(forward))
	case "safe-current":
		return report(client.ResetToSafeCurrent())

	default:
		fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", cmd)
		return nil
	}
}

func report(resp protocol.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.Success {
		fmt.Printf("ok: %s\n", resp.Message)
	} else {
		fmt.Printf("failed: %s\n", resp.Message)
	}
	return nil
}

func argInt(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one numeric argument")
	}
	v, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", args[0])
	}
	return v, nil
}

func argUint8(args []string) (uint8, error) {
	v, err := argInt(args)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > 255 {
		return 0, fmt.Errorf("value out of range 0-255: %d", v)
	}
	return uint8(v), nil
}

func argBool(args []string) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("expected 'on' or 'off'")
	}
	switch args[0] {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected 'on' or 'off', got %q", args[0])
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  enable / disable        - Toggle the motor driver")
	fmt.Println("  hw-enable-pin <n>       - Assign the hardware enable pin")
	fmt.Println("  hw-disabled             - Check the hardware enable line")
	fmt.Println("  analog-scaling          - Enable analog current scaling")
	fmt.Println("  auto-scaling on|off     - Toggle automatic current scaling")
	fmt.Println("  auto-gradient           - Enable automatic gradient adaptation")
	fmt.Println("  pwm-offset <0-255>      - Set the PWM offset")
	fmt.Println("  pwm-gradient <0-255>    - Set the PWM gradient")
	fmt.Println("  run-current <0-100>     - Set run current percent")
	fmt.Println("  hold-current <0-100>    - Set hold current percent")
	fmt.Println("  standstill-mode <0-3>   - Set the standstill mode")
	fmt.Println("  sg-threshold <0-255>    - Set the StallGuard threshold")
	fmt.Println("  microsteps <1-64>       - Set microsteps per step (power of two)")
	fmt.Println("  microsteps-exp <0-6>    - Set microsteps as a power-of-two exponent")
	fmt.Println("  velocity <n>            - Move at signed velocity (0 stops)")
	fmt.Println("  stop                    - Stop motion and drop to safe current")
	fmt.Println("  stepdir                 - Switch to step/dir control")
	fmt.Println("  reply-delay <0-15>      - Set the UART reply delay")
	fmt.Println("  ping                    - Check driver communication")
	fmt.Println("  sg                      - Read the StallGuard result")
	fmt.Println("  standstill              - Check whether the motor is still")
	fmt.Println("  status                  - Print the last unsolicited status report")
	fmt.Println("  home [forward|reverse]  - Run sensorless homing")
	fmt.Println("  safe-current            - Reset to safe current settings")
	fmt.Println("  quit/exit/q             - Exit the program")
	fmt.Println()
}
