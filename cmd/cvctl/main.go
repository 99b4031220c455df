// cvctl submits guest programs to a running cvd.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cervus-dev/cervus/domain/entities"
	hosterrors "github.com/cervus-dev/cervus/domain/errors"
	"github.com/cervus-dev/cervus/infrastructure/control"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: cvctl [options] <load|run> <program.wasm> [args...]\n\n")
	fmt.Fprintf(os.Stderr, "Submits a guest program to cvd.\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  load   start a detached worker (privileged identity only)\n")
	fmt.Fprintf(os.Stderr, "  run    run attached to this terminal and exit with the guest's code\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
}

func main() {
	socket := flag.String("socket", entities.DefaultConfig().Socket, "Control socket path")
	executor := flag.Int("executor", int(entities.ExecutorHexagonE), "Executor kind")
	noStdio := flag.Bool("no-stdio", false, "Do not lend this terminal's streams to RUN")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 2 {
		usage()
		os.Exit(2)
	}
	cmd, path := flag.Arg(0), flag.Arg(1)

	code, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(code) == 0 {
		fmt.Fprintf(os.Stderr, "Error: %s is empty\n", path)
		os.Exit(1)
	}

	req := entities.Request{Executor: int32(*executor), Code: code} //nolint:gosec // G115: user-supplied kind
	for _, a := range flag.Args()[2:] {
		req.Args = append(req.Args, []byte(a))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	client := control.NewClient(*socket)

	switch cmd {
	case "load":
		id, err := client.Load(ctx, req)
		if err != nil {
			fail(err)
		}
		fmt.Printf("worker %d\n", id)
	case "run":
		stdio := control.ProcessStdio()
		if *noStdio {
			stdio = control.Stdio{}
		}
		exit, err := client.Run(ctx, req, stdio)
		if err != nil {
			fail(err)
		}
		os.Exit(int(exit & 0xff))
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if errors.Is(err, hosterrors.ErrPermissionDenied) {
		os.Exit(77)
	}
	os.Exit(1)
}
