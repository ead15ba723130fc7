package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/xtaci/sensorgw/internal/gatewaycfg"
	"github.com/xtaci/sensorgw/internal/orchestrator"
	"github.com/xtaci/sensorgw/internal/storagemgr"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	log.SetOutput(os.Stdout)
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "sensorgw"
	myApp.Usage = "multi-sensor telemetry gateway"
	myApp.Version = VERSION
	myApp.UsageText = "sensorgw <port>"
	myApp.Action = run

	if err := myApp.Run(os.Args); err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}

// run parses the single positional port argument, opens the listener and
// the durable store, and blocks until the gateway shuts down cleanly.
// It exits 0 on clean shutdown, -1 on usage or fatal setup error.
func run(c *cli.Context) error {
	port, err := parsePort(c.Args())
	if err != nil {
		return cli.NewExitError(err.Error(), -1)
	}
	cfg := gatewaycfg.Config{Port: port}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return errors.Wrap(err, "listen")
	}

	log.Printf("listening on port %d", cfg.Port)

	storage, err := storagemgr.Open(gatewaycfg.DBDriverName, gatewaycfg.DBPath, gatewaycfg.ClearUp)
	if err != nil {
		listener.Close()
		return errors.Wrap(err, "open storage")
	}
	defer storage.Close()

	o := orchestrator.New(listener, storage, gatewaycfg.IdleTimeout)
	if err := o.Run(); err != nil {
		return errors.Wrap(err, "orchestrator")
	}

	log.Println("clean shutdown")
	return nil
}

// parsePort validates the gateway's entire command-line surface: exactly
// one positional argument, a valid TCP port number.
func parsePort(args cli.Args) (int, error) {
	if len(args) != 1 {
		return 0, errors.New("usage: sensorgw <port>")
	}

	port, err := strconv.Atoi(args.Get(0))
	if err != nil {
		return 0, errors.Errorf("invalid port: %q", args.Get(0))
	}
	if port <= 0 || port > 65535 {
		return 0, errors.Errorf("port out of range: %d", port)
	}
	return port, nil
}
