package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.dedis.ch/peerpaste/internal/api"
	"go.dedis.ch/peerpaste/logging"
	"go.dedis.ch/peerpaste/peer"
	"go.dedis.ch/peerpaste/peer/impl"
	"go.dedis.ch/peerpaste/storage"
	"go.dedis.ch/peerpaste/transport/udp"
	"golang.org/x/xerrors"
)

func main() {
	defaults := peer.DefaultConfiguration()

	app := &cli.App{
		Name:  "peerpaste",
		Usage: "share pastes on a Chord ring",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   "127.0.0.1:0",
				Usage:   "UDP address to listen on",
				EnvVars: []string{"PEERPASTE_ADDR"},
			},
			&cli.StringFlag{
				Name:    "bootstrap",
				Usage:   "address of a ring member to join",
				EnvVars: []string{"PEERPASTE_BOOTSTRAP"},
			},
			&cli.BoolFlag{
				Name:    "create-ring",
				Usage:   "start a new ring instead of joining one",
				EnvVars: []string{"PEERPASTE_CREATE_RING"},
			},
			&cli.StringFlag{
				Name:    "storage",
				Usage:   "directory to persist pastes in, memory when empty",
				EnvVars: []string{"PEERPASTE_STORAGE"},
			},
			&cli.StringFlag{
				Name:    "advertise",
				Value:   defaults.AdvertisedIP,
				Usage:   "IP announced when listening on an unspecified address",
				EnvVars: []string{"PEERPASTE_ADVERTISE"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "trace, debug, info, warn or error",
				EnvVars: []string{"PEERPASTE_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "trace",
				Usage:   "log file for the vector clock of every datagram",
				EnvVars: []string{"PEERPASTE_TRACE"},
			},
			&cli.IntFlag{
				Name:    "workers",
				Value:   defaults.Workers,
				EnvVars: []string{"PEERPASTE_WORKERS"},
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Value:   defaults.TaskTimeout,
				Usage:   "lifetime of a request",
				EnvVars: []string{"PEERPASTE_TIMEOUT"},
			},
			&cli.DurationFlag{
				Name:    "stabilize",
				Value:   defaults.StabilizeInterval,
				EnvVars: []string{"PEERPASTE_STABILIZE_INTERVAL"},
			},
			&cli.DurationFlag{
				Name:    "check-predecessor",
				Value:   defaults.CheckPredecessorInterval,
				EnvVars: []string{"PEERPASTE_CHECK_PREDECESSOR_INTERVAL"},
			},
			&cli.DurationFlag{
				Name:    "broadcast",
				Usage:   "period of file list replication, 0 disables it",
				EnvVars: []string{"PEERPASTE_BROADCAST_INTERVAL"},
			},
			&cli.StringFlag{
				Name:    "http",
				Usage:   "address to serve the HTTP api on, disabled when empty",
				EnvVars: []string{"PEERPASTE_HTTP"},
			},
			&cli.BoolFlag{
				Name:    "no-shell",
				Usage:   "run until interrupted instead of reading commands",
				EnvVars: []string{"PEERPASTE_NO_SHELL"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if err := logging.SetLevel(c.String("log-level")); err != nil {
		return xerrors.Errorf("bad log level: %v", err)
	}

	var opts []udp.Option
	if path := c.String("trace"); path != "" {
		opts = append(opts, udp.WithVectorClock(c.String("addr"), path))
	}
	socket, err := udp.NewUDP(opts...).CreateSocket(c.String("addr"))
	if err != nil {
		return err
	}
	defer socket.Close()

	var store storage.Storage = storage.NewMemory()
	if dir := c.String("storage"); dir != "" {
		store, err = storage.NewPebble(dir)
		if err != nil {
			return err
		}
	}
	defer store.Close()

	conf := peer.DefaultConfiguration()
	conf.Socket = socket
	conf.Storage = store
	conf.Workers = c.Int("workers")
	conf.TaskTimeout = c.Duration("timeout")
	conf.StabilizeInterval = c.Duration("stabilize")
	conf.CheckPredecessorInterval = c.Duration("check-predecessor")
	conf.BroadcastInterval = c.Duration("broadcast")
	conf.AdvertisedIP = c.String("advertise")

	node, err := impl.NewPeer(conf)
	if err != nil {
		return err
	}
	if err := node.Start(); err != nil {
		return err
	}
	defer node.Stop()

	switch bootstrap := c.String("bootstrap"); {
	case c.Bool("create-ring"):
		node.CreateRing()
	case bootstrap != "":
		ctx, cancel := context.WithTimeout(c.Context, conf.TaskTimeout)
		err := node.Join(ctx, bootstrap)
		cancel()
		if err != nil {
			return xerrors.Errorf("failed to join %s: %w", bootstrap, err)
		}
	}

	fmt.Printf("listening on %s as %s\n", node.GetAddr(), node.Self().ID)

	if addr := c.String("http"); addr != "" {
		srv := api.New(addr, node, conf.TaskTimeout+time.Second, logging.Component("HTTP", addr))
		srv.Start()
		defer srv.Stop()
	}

	if c.Bool("no-shell") {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		return nil
	}

	sh := &shell{node: node, timeout: conf.TaskTimeout + time.Second, out: os.Stdout}
	return sh.run(os.Stdin)
}
