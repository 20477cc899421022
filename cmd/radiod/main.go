// Command radiod runs the multichannel software-defined-radio receiver
// daemon core: radiod [-N name] [-p limit] [-v]...
// [-V] <config-path>.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"

	"github.com/cwsl/radiod-go/internal/radio"
	"github.com/cwsl/radiod-go/internal/radioerr"
	"github.com/cwsl/radiod-go/internal/supervisor"
)

// buildVersion is overridden at link time via -ldflags, following the
// teacher's pattern of reporting a build identity in its -V banner.
var buildVersion = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := flag.NewFlagSet("radiod", flag.ContinueOnError)
	name := flags.StringP("name", "N", "", "instance name")
	fftPlanLimit := flags.IntP("plan-limit", "p", 0, "FFT plan time limit in seconds")
	verbose := flags.CountP("verbose", "v", "increase logging verbosity; may be repeated")
	showVersion := flags.BoolP("version", "V", false, "print version and exit")
	dataDir := flags.String("data", "/usr/local/share/ka9q-radio", "distribution data directory")
	soDir := flags.String("library-dir", "/usr/local/lib/ka9q-radio", "dynamic driver library directory")
	dns := flags.Bool("dns", false, "attempt DNS resolution of multicast group names before hash synthesis")
	iface := flags.String("iface", "", "network interface for multicast traffic")

	flags.SetOutput(os.Stderr)
	if err := flags.Parse(args); err != nil {
		return radioerr.ExitUsage
	}

	if *showVersion {
		fmt.Printf("radiod-go %s\n", buildVersion)
		return radioerr.ExitOK
	}

	if flags.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: radiod [-N name] [-p fft-plan-limit-seconds] [-v]... [-V] <config-path>")
		return radioerr.ExitNoInput
	}
	configPath := flags.Arg(0)

	logger := log.New(os.Stderr)
	setLogLevel(logger, *verbose)

	sup := supervisor.New(logger, *verbose)
	sys := radio.New(logger, *name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = *fftPlanLimit // -p is accepted and parsed; its value is not passed on

	if err := radio.Run(ctx, sys, radio.Options{
		ConfigPath: configPath,
		DataDir:    *dataDir,
		SODir:      *soDir,
		DNS:        *dns,
		Iface:      *iface,
	}); err != nil {
		logger.Error("startup failed", "err", err)
		return exitCodeFor(err)
	}

	return sup.Run(ctx)
}

func setLogLevel(logger *log.Logger, verbosity int) {
	switch {
	case verbosity <= 0:
		logger.SetLevel(log.WarnLevel)
	case verbosity == 1:
		logger.SetLevel(log.InfoLevel)
	default:
		logger.SetLevel(log.DebugLevel)
	}
}

func exitCodeFor(err error) int {
	var re *radioerr.Error
	if e, ok := err.(*radioerr.Error); ok {
		re = e
	}
	if re == nil {
		return radioerr.ExitSoftware
	}
	switch re.Kind {
	case radioerr.ConfigLoad:
		return radioerr.ExitNoInput
	case radioerr.ConfigValidate:
		return radioerr.ExitUsage
	case radioerr.SocketOpen:
		return radioerr.ExitNoHost
	case radioerr.PresetMissing, radioerr.HardwareBind, radioerr.HardwareSetup:
		return radioerr.ExitUnavailable
	default:
		return radioerr.ExitSoftware
	}
}
