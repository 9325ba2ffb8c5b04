package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/iwizard7/Quansheng-k5-flasher/internal/codec"
	"github.com/iwizard7/Quansheng-k5-flasher/internal/export"
	"github.com/iwizard7/Quansheng-k5-flasher/internal/logging"
	"github.com/iwizard7/Quansheng-k5-flasher/internal/radio"
	"github.com/iwizard7/Quansheng-k5-flasher/internal/server"
	"github.com/iwizard7/Quansheng-k5-flasher/internal/transport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	portPath := flag.String("port", "", "Serial port (overrides config)")
	baudRate := flag.Int("baud", 0, "Baud rate (overrides config)")
	demo := flag.Bool("demo", false, "Use the simulated radio instead of a serial port")
	verbose := flag.Bool("v", false, "Debug logging")
	listenAddr := flag.String("listen", "", "Override listen address for serve (e.g. :8080)")
	output := flag.String("o", "", "Output file (default: timestamped name in the export dir)")
	flag.Usage = usage
	flag.Parse()

	cfg := server.LoadConfig(*configPath)
	if *portPath != "" {
		cfg.Radio.PortPath = *portPath
	}
	if *baudRate > 0 {
		cfg.Radio.BaudRate = *baudRate
	}
	if *demo {
		cfg.Radio.Type = "sim"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}

	zl := newLogger(cfg.Logging)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		zl.Warn().Msgf("received %v, shutting down", sig)
		cancel()
	}()

	if err := run(ctx, zl, cfg, args[0], args[1:], *output); err != nil {
		zl.Error().Err(err).Msgf("%s failed", args[0])
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `k5flasher talks to Quansheng UV-K5 radios over a serial port.

Usage:
  k5flasher [flags] <command> [args]

Commands:
  ports                           list serial ports
  info                            read device identity and battery voltage
  battery                         read the battery voltage
  channels                        print the channel table
  export-channels                 save the channel table as CSV
  import-channels <file.csv>      write channels from a CSV file
  settings                        print device settings
  set <field> <value>             change one setting (frequency, txpower,
                                  autoscan, backlight, autobacklightoff)
  calibration backup              save all calibration blocks as JSON
  calibration backup-raw          save the battery calibration block as bytes
  calibration restore <file>      write a JSON calibration record back
  calibration restore-raw <file>  write a raw battery calibration block
  dump                            save the full EEPROM image
  flash <firmware.bin>            flash a firmware image over the bootloader
  serve                           run the HTTP/WebSocket monitor

Flags:
`)
	flag.PrintDefaults()
}

func newLogger(lc server.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zl := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	if lc.Format != "json" {
		zl = zl.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	return zl
}

func run(ctx context.Context, zl zerolog.Logger, cfg *server.Config, cmd string, args []string, output string) error {
	switch cmd {
	case "ports":
		return cmdPorts()
	case "serve":
		return cmdServe(ctx, zl, cfg)
	case "info", "battery", "channels", "export-channels", "import-channels",
		"settings", "set", "calibration", "dump", "flash":
		sess, err := openSession(zl, cfg)
		if err != nil {
			return err
		}
		defer sess.Close()
		return runDeviceCommand(ctx, cfg, sess, cmd, args, output)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runDeviceCommand(ctx context.Context, cfg *server.Config, sess *radio.Session, cmd string, args []string, output string) error {
	switch cmd {
	case "info":
		return cmdInfo(ctx, sess)
	case "battery":
		return cmdBattery(ctx, sess)
	case "channels":
		return cmdChannels(ctx, sess)
	case "export-channels":
		return cmdExportChannels(ctx, cfg, sess, output)
	case "import-channels":
		return cmdImportChannels(ctx, sess, args)
	case "settings":
		return cmdSettings(ctx, sess)
	case "set":
		return cmdSet(ctx, sess, args)
	case "calibration":
		return cmdCalibration(ctx, cfg, sess, args, output)
	case "dump":
		return cmdDump(ctx, cfg, sess, output)
	case "flash":
		return cmdFlash(ctx, sess, args)
	}
	return nil
}

func openTransport(cfg *server.Config) (transport.Transport, error) {
	if cfg.Radio.Type == "sim" {
		return transport.NewSim(), nil
	}
	return transport.Open(cfg.Transport())
}

func openSession(zl zerolog.Logger, cfg *server.Config) (*radio.Session, error) {
	tr, err := openTransport(cfg)
	if err != nil {
		return nil, err
	}
	opts := append(cfg.SessionOptions(), radio.WithLogger(logging.Zerolog(zl)))
	return radio.New(tr, opts...), nil
}

func cmdPorts() error {
	ports, err := transport.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range ports {
		if p.Description != "" {
			fmt.Printf("%-24s %s\n", p.Path, p.Description)
		} else {
			fmt.Println(p.Path)
		}
	}
	return nil
}

func cmdInfo(ctx context.Context, sess *radio.Session) error {
	info, err := sess.ReadDeviceInfo(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Model:      %s\n", info.Model)
	fmt.Printf("Firmware:   %s\n", info.FirmwareVersion)
	fmt.Printf("Bootloader: %s\n", info.BootloaderVersion)
	if info.BatteryVoltage > 0 {
		fmt.Printf("Battery:    %.2f V\n", info.BatteryVoltage)
	}
	return nil
}

func cmdBattery(ctx context.Context, sess *radio.Session) error {
	reading, err := sess.ReadBatteryVoltage(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Battery: %.3f V (ADC 0x%04X)\n", reading.Volts, reading.ADC)
	if !reading.Plausible {
		fmt.Println("warning: reading outside the plausible window, shown with the default conversion")
	}
	return nil
}

func cmdChannels(ctx context.Context, sess *radio.Session) error {
	chans, err := sess.ReadChannels(ctx)
	if err != nil {
		return err
	}
	if len(chans) == 0 {
		fmt.Println("no channels found")
		return nil
	}
	fmt.Printf("%-4s %-8s %-11s %-4s %-10s %-8s %-8s\n",
		"CH", "NAME", "FREQ MHZ", "PWR", "MODE", "RX TONE", "TX TONE")
	for _, ch := range chans {
		mode := "wide"
		if ch.Narrow {
			mode = "narrow"
		}
		if ch.Scrambler {
			mode += "+scr"
		}
		fmt.Printf("%-4d %-8s %-11.5f %-4d %-10s %-8s %-8s\n",
			ch.Index+1, ch.Name, ch.Frequency, ch.TxPower, mode, ch.RXTone, ch.TXTone)
	}
	return nil
}

func cmdExportChannels(ctx context.Context, cfg *server.Config, sess *radio.Session, output string) error {
	chans, err := sess.ReadChannels(ctx)
	if err != nil {
		return err
	}
	path := output
	if path == "" {
		if path, err = defaultExportPath(cfg, "uvk5_channels", ".csv"); err != nil {
			return err
		}
	}
	if err := export.SaveChannelsCSV(path, chans); err != nil {
		return err
	}
	fmt.Printf("exported %d channels to %s\n", len(chans), path)
	return nil
}

func cmdImportChannels(ctx context.Context, sess *radio.Session, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: k5flasher import-channels <file.csv>")
	}
	chans, err := export.LoadChannelsCSV(args[0])
	if err != nil {
		return err
	}
	if err := sess.WriteChannels(ctx, chans); err != nil {
		return err
	}
	fmt.Printf("wrote %d channels\n", len(chans))
	return nil
}

func cmdSettings(ctx context.Context, sess *radio.Session) error {
	s, err := sess.ReadSettings(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Default frequency:  %.5f MHz\n", s.DefaultFrequency)
	fmt.Printf("TX power:           %d\n", s.TxPower)
	fmt.Printf("Auto scan:          %v\n", s.AutoScan)
	fmt.Printf("Backlight:          %d%%\n", s.Backlight)
	fmt.Printf("Auto backlight off: %v\n", s.AutoBacklightOff)
	return nil
}

func cmdSet(ctx context.Context, sess *radio.Session, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: k5flasher set <frequency|txpower|autoscan|backlight|autobacklightoff> <value>")
	}
	s, err := sess.ReadSettings(ctx)
	if err != nil {
		return fmt.Errorf("read current settings: %w", err)
	}
	if err := applySetting(s, args[0], args[1]); err != nil {
		return err
	}
	if err := sess.WriteSettings(ctx, s); err != nil {
		return err
	}
	fmt.Printf("%s set to %s\n", strings.ToLower(args[0]), args[1])
	return nil
}

func applySetting(s *codec.Settings, field, value string) error {
	switch strings.ToLower(field) {
	case "frequency":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("bad frequency %q", value)
		}
		s.DefaultFrequency = f
	case "txpower":
		n, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return fmt.Errorf("bad tx power %q", value)
		}
		s.TxPower = uint8(n)
	case "autoscan":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("bad auto scan value %q", value)
		}
		s.AutoScan = b
	case "backlight":
		n, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return fmt.Errorf("bad backlight %q", value)
		}
		s.Backlight = uint8(n)
	case "autobacklightoff":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("bad auto backlight value %q", value)
		}
		s.AutoBacklightOff = b
	default:
		return fmt.Errorf("unknown setting %q", field)
	}
	return nil
}

func cmdCalibration(ctx context.Context, cfg *server.Config, sess *radio.Session, args []string, output string) error {
	if len(args) == 0 {
		return errors.New("usage: k5flasher calibration <backup|backup-raw|restore|restore-raw> [file]")
	}
	switch args[0] {
	case "backup":
		set, err := sess.ReadFullCalibration(ctx)
		if err != nil {
			return err
		}
		info, err := sess.ReadDeviceInfo(ctx)
		if err != nil {
			info = nil
		}
		path := output
		if path == "" {
			if path, err = defaultExportPath(cfg, "uvk5_calibration", ".json"); err != nil {
				return err
			}
		}
		if err := export.WriteCalibration(path, export.NewCalibrationRecord(set, info)); err != nil {
			return err
		}
		fmt.Printf("calibration saved to %s\n", path)
		return nil

	case "backup-raw":
		data, err := sess.ReadBatteryCalibration(ctx)
		if err != nil {
			return err
		}
		path := output
		if path == "" {
			if path, err = defaultExportPath(cfg, "uvk5_battery_cal", ".bin"); err != nil {
				return err
			}
		}
		if err := export.WriteRaw(path, data); err != nil {
			return err
		}
		fmt.Printf("battery calibration saved to %s\n", path)
		return nil

	case "restore":
		if len(args) != 2 {
			return errors.New("usage: k5flasher calibration restore <file.json>")
		}
		rec, err := export.ReadCalibration(args[1])
		if err != nil {
			return err
		}
		set, err := rec.Restore()
		if err != nil {
			return err
		}
		if err := sess.WriteFullCalibration(ctx, set); err != nil {
			return err
		}
		fmt.Println("calibration restored")
		return nil

	case "restore-raw":
		if len(args) != 2 {
			return errors.New("usage: k5flasher calibration restore-raw <file.bin>")
		}
		data, err := export.ReadRaw(args[1])
		if err != nil {
			return err
		}
		if err := sess.WriteBatteryCalibration(ctx, data); err != nil {
			return err
		}
		fmt.Println("battery calibration restored")
		return nil

	default:
		return fmt.Errorf("unknown calibration action %q", args[0])
	}
}

func cmdDump(ctx context.Context, cfg *server.Config, sess *radio.Session, output string) error {
	image, err := sess.DumpEEPROM(ctx)
	if err != nil {
		return err
	}
	path := output
	if path == "" {
		if path, err = defaultExportPath(cfg, "uvk5_eeprom", ".bin"); err != nil {
			return err
		}
	}
	if err := export.WriteRaw(path, image); err != nil {
		return err
	}
	fmt.Printf("dumped %d bytes to %s\n", len(image), path)
	return nil
}

func cmdFlash(ctx context.Context, sess *radio.Session, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: k5flasher flash <firmware.bin>")
	}
	image, err := export.ReadRaw(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("flashing %s (%d bytes)\n", args[0], len(image))
	return sess.FlashFirmware(ctx, image, printFlashProgress)
}

func printFlashProgress(p radio.FlashProgress) {
	switch p.Phase {
	case radio.PhaseProgramming:
		fmt.Printf("\rprogramming %d/%d blocks (%.0f%%)", p.CurrentBlock, p.TotalBlocks, p.Percentage)
	case radio.PhaseRebooting:
		fmt.Println("\nrebooting radio")
	case radio.PhaseComplete:
		fmt.Printf("flashed %d bytes in %s\n", p.TotalBytes, p.ElapsedTime.Round(time.Millisecond))
	default:
		fmt.Println(p.Phase)
	}
}

func defaultExportPath(cfg *server.Config, prefix, ext string) (string, error) {
	if err := os.MkdirAll(cfg.Export.Dir, 0755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	return export.TimestampedPath(cfg.Export.Dir, prefix, ext), nil
}

func cmdServe(ctx context.Context, zl zerolog.Logger, cfg *server.Config) error {
	tr := connectWithRetry(ctx, zl, cfg)
	if tr == nil {
		return ctx.Err()
	}
	opts := append(cfg.SessionOptions(), radio.WithLogger(logging.Zerolog(zl)))
	sess := radio.New(tr, opts...)
	defer sess.Close()

	srv := server.New(cfg, sess)
	if err := srv.Run(ctx); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// connectWithRetry opens the radio transport with exponential backoff.
// Starts at 1s, doubles each attempt up to 60s, keeps trying until the
// context is cancelled.
func connectWithRetry(ctx context.Context, zl zerolog.Logger, cfg *server.Config) transport.Transport {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		tr, err := openTransport(cfg)
		if err == nil {
			zl.Info().Str("port", cfg.Radio.PortPath).Int("attempt", attempt+1).Msg("radio port opened")
			return tr
		}
		attempt++
		zl.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("radio connect failed")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
