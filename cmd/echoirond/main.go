// Command echoirond demonstrates the full IPC stack end to end: a
// Service listening on a Unix socket with one echo method and one
// "ping" signal, and a Client that calls it. It exists for manual
// exercise of the stack, not as a CLI framework; flags are deliberately
// minimal.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Samsung/vasum-ipc/codec"
	"github.com/Samsung/vasum-ipc/ipc"
	"github.com/Samsung/vasum-ipc/xlog"
)

const (
	echoMethodID ipc.MethodID = 1
	pingSignalID ipc.MethodID = 2
)

func main() {
	mode := flag.String("mode", "service", "service|client")
	path := flag.String("path", "/tmp/echoirond.sock", "unix socket path")
	message := flag.String("message", "hello", "message to echo (client mode)")
	flag.Parse()

	logger := xlog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
		xlog.WithLevel(xlog.LevelDebug),
	)

	switch *mode {
	case "service":
		runService(*path, logger)
	case "client":
		runClient(*path, *message, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}
}

func runService(path string, logger *xlog.Logger) {
	svc, err := ipc.NewService(ipc.ServiceConfig{
		Path: path,
		Processor: ipc.Config{
			ByteOrder: codec.Local,
			Logger:    logger,
		},
	})
	if err != nil {
		fatal(err)
	}

	if err := ipc.SetMethodHandler[string, string](
		svc.Processor(), echoMethodID,
		func(r *codec.Reader) (string, error) { return r.ReadString() },
		func(w *codec.Writer, v string) error { return w.WriteString(v) },
		func(peer ipc.PeerID, in string, result *ipc.MethodResult) ipc.HandlerAction {
			logger.Info().Str(`peer`, peer.String()).Str(`message`, in).Log(`echo`)
			result.Set(in)
			return ipc.Continue
		},
	); err != nil {
		fatal(err)
	}

	if err := ipc.SetSignalHandler[string](
		svc.Processor(), pingSignalID,
		func(r *codec.Reader) (string, error) { return r.ReadString() },
		func(peer ipc.PeerID, in string) ipc.HandlerAction {
			logger.Info().Str(`peer`, peer.String()).Str(`ping`, in).Log(`received ping signal`)
			return ipc.Continue
		},
	); err != nil {
		fatal(err)
	}

	if err := svc.Start(); err != nil {
		fatal(err)
	}

	logger.Info().Str(`path`, path).Log(`echoirond service listening`)
	waitForSignal()
	svc.Stop(true)
}

func runClient(path, message string, logger *xlog.Logger) {
	cl, err := ipc.NewClient(ipc.ClientConfig{
		Path: path,
		Processor: ipc.Config{
			ByteOrder: codec.Local,
			Logger:    logger,
		},
	})
	if err != nil {
		fatal(err)
	}
	defer cl.Stop(true)

	v, err := cl.CallSync(
		echoMethodID,
		message,
		func(w *codec.Writer, data any) error { return w.WriteString(data.(string)) },
		func(r *codec.Reader) (any, error) { return r.ReadString() },
		3*time.Second,
	)
	if err != nil {
		fatal(err)
	}
	fmt.Println(v)
}

func waitForSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
