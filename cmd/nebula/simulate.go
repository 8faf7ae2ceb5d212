package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/user/nebula-blue/central"
	"github.com/user/nebula-blue/config"
	"github.com/user/nebula-blue/logger"
	"github.com/user/nebula-blue/peripheral"
	"github.com/user/nebula-blue/util"
	"github.com/user/nebula-blue/wire"
)

type simulateOptions struct {
	mtu      uint16
	command  string
	out      string
	timeout  time.Duration
	busyRate float64
	interval time.Duration
	slots    int
	seed     int64
	events   bool
}

func newSimulateCmd(cfg *config.Config) *cobra.Command {
	opts := simulateOptions{
		mtu:      wire.DefaultServerMaxMTU,
		command:  "START",
		timeout:  30 * time.Second,
		interval: wire.DefaultConnectionInterval,
		slots:    wire.DefaultBufferSlots,
	}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a peripheral and a central over the reference link and fetch one payload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return runSimulate(ctx, *cfg, opts, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.Uint16Var(&opts.mtu, "mtu", opts.mtu, "ATT MTU the central requests")
	f.StringVar(&opts.command, "command", opts.command, "command written to RX to begin")
	f.StringVarP(&opts.out, "out", "o", "", "where to write the received plaintext (default under the data dir)")
	f.DurationVar(&opts.timeout, "timeout", opts.timeout, "give up after this long")
	f.Float64Var(&opts.busyRate, "busy-rate", 0, "probability the controller refuses a notification")
	f.DurationVar(&opts.interval, "interval", opts.interval, "connection interval")
	f.IntVar(&opts.slots, "buffer-slots", opts.slots, "controller TX buffer depth")
	f.Int64Var(&opts.seed, "seed", 0, "seed the link simulator for a repeatable run")
	f.BoolVar(&opts.events, "events", false, "write a connection event log for the run")
	return cmd
}

func runSimulate(ctx context.Context, cfg config.Config, opts simulateOptions, stdout io.Writer) error {
	runID := uuid.New().String()
	prefix := "simulate"

	sim := wire.DefaultSimulationConfig()
	sim.BusyRate = opts.busyRate
	sim.ConnectionInterval = opts.interval
	sim.BufferSlots = opts.slots
	if opts.seed != 0 {
		sim.Deterministic = true
		sim.Seed = opts.seed
	}

	link, err := wire.NewLink(cfg.DeviceName, sim)
	if err != nil {
		return err
	}
	defer link.Close()

	if opts.events {
		cel, err := wire.NewConnectionEventLogger(link.HardwareID(), cfg.RunDir(runID))
		if err != nil {
			return err
		}
		link.SetEventLog(cel)
		logger.Info(prefix, "📝 connection events: %s", cel.Path())
	}

	builder, err := peripheral.NewBuilder(cfg, peripheral.NewSource(cfg))
	if err != nil {
		return err
	}
	dev := peripheral.New(link, builder, cfg.Transfer())
	dev.Start()
	defer dev.Close()

	ropts := central.Options{MTU: opts.mtu, Command: opts.command}
	if cfg.Encrypt {
		key, _, err := cfg.AEAD()
		if err != nil {
			return err
		}
		ropts.Key = &key
	}
	r := central.NewReceiver("central-"+runID[:8], ropts)
	if err := r.Attach(link); err != nil {
		return err
	}
	defer r.Close()

	res, err := r.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	out := opts.out
	if out == "" {
		out = filepath.Join(cfg.RunDir(runID), "payload"+res.Extension())
	}
	if _, err := util.EnsureDir(filepath.Dir(out)); err != nil {
		return err
	}
	if err := os.WriteFile(out, res.Plaintext, 0o644); err != nil {
		return err
	}
	if res.Descriptor.Encrypted {
		if err := os.WriteFile(out+".sealed", res.Payload, 0o644); err != nil {
			return err
		}
	}

	stats := dev.Scheduler().Stats()
	fmt.Fprintf(stdout, "run        %s\n", runID)
	fmt.Fprintf(stdout, "transfer   %s\n", res.Descriptor.TransferID)
	fmt.Fprintf(stdout, "mtu        %d (chunks of up to %d)\n", res.MTU, res.Descriptor.ChunkCapacity)
	fmt.Fprintf(stdout, "payload    %d bytes in %d notifications\n", len(res.Payload), res.Chunks)
	fmt.Fprintf(stdout, "content    %s\n", res.Descriptor.ContentType)
	if res.Descriptor.Encrypted {
		fmt.Fprintf(stdout, "encryption %s, %d bytes of plaintext\n", res.Descriptor.Algorithm, len(res.Plaintext))
	}
	fmt.Fprintf(stdout, "retries    %d busy refusals\n", stats.BusyRetries)
	fmt.Fprintf(stdout, "elapsed    %v\n", res.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(stdout, "written    %s\n", out)

	return nil
}
