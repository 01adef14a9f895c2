package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gregLibert/apdu-script/pkg/config"
	"github.com/gregLibert/apdu-script/pkg/iso7816"
	"github.com/gregLibert/apdu-script/pkg/logging"
	"github.com/gregLibert/apdu-script/pkg/pcsc"
	"github.com/gregLibert/apdu-script/pkg/runlog"
	"github.com/gregLibert/apdu-script/pkg/script"
	"github.com/pkg/browser"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli"
)

// errUnverified is returned when a verified run saw unexpected responses.
var errUnverified = errors.New("unexpected responses")

// loadConfig resolves the configuration: defaults, then the --config file, then flags.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.GlobalString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}

	if c.GlobalIsSet("log-level") {
		cfg.LogLevel = c.GlobalString("log-level")
	}
	if c.IsSet("reader") {
		cfg.Reader = c.String("reader")
	}
	if c.IsSet("protocol") {
		cfg.Protocol = c.String("protocol")
	}
	if c.IsSet("control-code") {
		code := c.Uint("control-code")
		if code > 0xFFFF {
			return config.Config{}, fmt.Errorf("control code %d out of range", code)
		}
		cfg.ControlCode = uint16(code)
	}
	if c.IsSet("log-dir") {
		cfg.LogDir = c.String("log-dir")
	}
	if c.IsSet("verify") {
		cfg.Verify = c.Bool("verify")
	}
	if c.IsSet("stop-on-mismatch") {
		cfg.StopOnMismatch = c.Bool("stop-on-mismatch")
	}
	if c.IsSet("describe-tlv") {
		cfg.DescribeTLV = c.Bool("describe-tlv")
	}
	if c.IsSet("data-encoding") {
		cfg.DataEncoding = c.String("data-encoding")
	}
	if c.IsSet("open-report") {
		cfg.OpenReport = c.Bool("open-report")
	}
	if c.IsSet("t0-get-response") {
		cfg.Transmit.T0GetResponse = c.Bool("t0-get-response")
	}
	if c.IsSet("t1-get-response") {
		cfg.Transmit.T1GetResponse = c.Bool("t1-get-response")
	}
	if c.IsSet("t1-strip-le") {
		cfg.Transmit.T1StripLe = c.Bool("t1-strip-le")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if _, err := logging.Init(c.App.Name, cfg.LogLevel); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openContext establishes PC/SC and loads the reader list.
func openContext() (pcsc.Context, *pcsc.Registry, error) {
	ctx, err := pcsc.Establish()
	if err != nil {
		return nil, nil, err
	}

	registry := pcsc.NewRegistry(ctx)
	if _, err := registry.Refresh(); err != nil {
		releaseContext(ctx)
		return nil, nil, err
	}
	return ctx, registry, nil
}

func releaseContext(ctx pcsc.Context) {
	if err := ctx.Release(); err != nil {
		log.Warn().Err(err).Msg("failed to release context")
	}
}

func readersCommand(c *cli.Context) error {
	if _, err := loadConfig(c); err != nil {
		return err
	}

	ctx, registry, err := openContext()
	if err != nil {
		return err
	}
	defer releaseContext(ctx)

	names := registry.Names()
	if len(names) == 0 {
		fmt.Println(pcsc.ErrNoReader)
		return nil
	}
	for i, name := range names {
		fmt.Printf("%d: %s\n", i, name)
	}
	return nil
}

func runCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	proto, err := pcsc.ParseProtocol(cfg.Protocol)
	if err != nil {
		return err
	}
	if proto == pcsc.ProtocolDirect {
		return fmt.Errorf("protocol direct has no APDU channel, use the control command")
	}

	opts := pcsc.TransmitOptions{
		T0GetResponse: cfg.Transmit.T0GetResponse,
		T1GetResponse: cfg.Transmit.T1GetResponse,
		T1StripLe:     cfg.Transmit.T1StripLe,
	}

	return runScript(c, cfg, proto, func(rl *runlog.Logger, conn *pcsc.Connection) (iso7816.Transmitter, error) {
		rl.Msg("Transmit Options")
		rl.Msg("- isT0GetResponse: %t", opts.T0GetResponse)
		rl.Msg("- isT1GetResponse: %t", opts.T1GetResponse)
		rl.Msg("- isT1StripLe: %t", opts.T1StripLe)
		return conn.APDUChannel(opts)
	})
}

func controlCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	return runScript(c, cfg, pcsc.ProtocolDirect, func(rl *runlog.Logger, conn *pcsc.Connection) (iso7816.Transmitter, error) {
		rl.Msg("Control Code: %d", cfg.ControlCode)
		return conn.ControlChannel(cfg.ControlCode), nil
	})
}

type channelFunc func(rl *runlog.Logger, conn *pcsc.Connection) (iso7816.Transmitter, error)

func runScript(c *cli.Context, cfg config.Config, proto pcsc.Protocol, channel channelFunc) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected one script file, got %d arguments", c.NArg())
	}
	path := c.Args().First()

	decoder, err := script.DataDecoder(cfg.DataEncoding)
	if err != nil {
		return err
	}

	rl := runlog.New(color.Output)
	if err := rl.OpenFile(cfg.LogDir, time.Now()); err != nil {
		rl.Msg("Error: Log file open failed")
		return err
	}
	defer func() {
		if err := rl.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close run log")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pctx, registry, err := openContext()
	if err != nil {
		logError(rl, err)
		return err
	}
	defer releaseContext(pctx)

	reader, err := registry.Resolve(cfg.Reader)
	if err != nil {
		rl.Msg("Error: Card terminal not selected")
		return err
	}

	rl.Msg("Connecting to the card (%s, %s)...", reader, proto)
	conn, err := pcsc.Connect(pctx, reader, proto)
	if err != nil {
		logError(rl, err)
		return err
	}
	defer func() {
		rl.Msg("Disconnecting the card (%s)...", reader)
		if err := conn.Close(); err != nil {
			logError(rl, err)
		}
	}()

	if conn.ATR != nil {
		rl.Msg("ATR:")
		rl.Buffer(conn.ATR)
		rl.Msg("Active Protocol: %s", conn.Protocol)
	}

	tx, err := channel(rl, conn)
	if err != nil {
		logError(rl, err)
		return err
	}

	runner := &script.Runner{
		Transmitter:    tx,
		Sink:           rl,
		Verify:         cfg.Verify,
		StopOnMismatch: cfg.StopOnMismatch,
		DescribeTLV:    cfg.DescribeTLV,
		Decoder:        decoder,
	}

	report, err := runner.RunFile(ctx, path)
	if report != nil {
		publishReport(rl, report, cfg.OpenReport)
	}
	if err != nil {
		return err
	}
	if cfg.Verify && !report.Passed() {
		return fmt.Errorf("%w: %d of %d", errUnverified, report.Mismatches, len(report.Results))
	}
	return nil
}

func publishReport(rl *runlog.Logger, report *script.Report, open bool) {
	url, ok := report.ReportURL()
	if !ok {
		return
	}

	rl.Msg("Report: %s", url)
	if !open {
		return
	}
	if err := browser.OpenURL(url); err != nil {
		log.Warn().Err(err).Msg("failed to open report in browser")
	}
}

func monitorCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	pctx, registry, err := openContext()
	if err != nil {
		return err
	}
	defer releaseContext(pctx)

	monitor := pcsc.NewMonitor(pctx, cfg.Monitor.PollInterval)

	selectors := c.StringSlice("reader")
	if len(selectors) == 0 {
		selectors = registry.Names()
	}
	for _, sel := range selectors {
		name, err := registry.Resolve(sel)
		if err != nil {
			return err
		}
		monitor.Watch(name)
	}
	if len(monitor.Watched()) == 0 {
		return pcsc.ErrNoReader
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rl := runlog.New(color.Output)
	for _, name := range monitor.Watched() {
		rl.Msg("Watching %s...", name)
	}

	return monitor.Run(ctx, func(ev pcsc.Event) {
		rl.Msg("%s", ev)
		if ev.Kind == pcsc.Inserted && len(ev.ATR) > 0 {
			rl.Msg("ATR:")
			rl.Buffer(ev.ATR)
		}
	})
}

// logError writes an error and its cause to the run log.
func logError(rl *runlog.Logger, err error) {
	rl.Msg("Error: %v", err)
	if cause := errors.Unwrap(err); cause != nil {
		rl.Msg("Cause: %v", cause)
	}
}
