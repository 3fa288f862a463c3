// Command audiohelper is the native audio-capture helper. It speaks the
// captureproto line protocol on stdio and is supervised by the host
// application; it is never linked into the host process.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/itsukison/CueMeFinal-sub003/captureproto"
	"github.com/itsukison/CueMeFinal-sub003/helper"
)

// parseArgs resolves the helper command and options by hand. The
// selftest command is spelled "--selftest" on the wire, which the flag
// package would reject as an unknown flag, so commands are matched
// before anything is treated as an option.
func parseArgs(args []string) (command string, sampleRate int, err error) {
	command = captureproto.CmdStatus
	sampleRate = helper.DefaultSampleRate

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == captureproto.CmdStatus,
			arg == captureproto.CmdPermissions,
			arg == captureproto.CmdStartStream,
			arg == captureproto.CmdSelftest:
			command = arg
		case arg == "-rate" || arg == "--rate":
			i++
			if i >= len(args) {
				return "", 0, fmt.Errorf("missing value for %s", arg)
			}
			sampleRate, err = strconv.Atoi(args[i])
			if err != nil {
				return "", 0, fmt.Errorf("invalid sample rate %q", args[i])
			}
		case strings.HasPrefix(arg, "-rate=") || strings.HasPrefix(arg, "--rate="):
			value := arg[strings.Index(arg, "=")+1:]
			sampleRate, err = strconv.Atoi(value)
			if err != nil {
				return "", 0, fmt.Errorf("invalid sample rate %q", value)
			}
		default:
			return "", 0, fmt.Errorf("unknown argument %q", arg)
		}
	}
	return command, sampleRate, nil
}

func main() {
	// Diagnostics go to stderr; stdout carries only protocol lines.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	command, sampleRate, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := helper.Config{
		Out:        os.Stdout,
		In:         os.Stdin,
		SampleRate: sampleRate,
	}

	// Selftest must work without a capture backend.
	if command != captureproto.CmdSelftest {
		source, err := helper.NewSystemSource()
		if err != nil {
			slog.Warn("no system capture backend", "error", err)
		}
		prober, err := helper.NewSystemProber()
		if err != nil {
			slog.Warn("no capability prober", "error", err)
		}
		cfg.Source = source
		cfg.Prober = prober
	}

	h := helper.New(cfg)

	// OS interrupts converge on the same shutdown release as stdin
	// control lines.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		h.Interrupt()
	}()

	if err := h.Run(command); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
