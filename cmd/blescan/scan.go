package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blescan/internal/eventbus"
	"github.com/srg/blescan/pkg/config"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Devices are listed in the order they were first seen, with their name, id,
signal strength and advertised services. With --watch every advertisement
and radio event is printed as it happens.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationP("duration", "d", 0, "Scan duration (default from config; --watch without it scans until Ctrl+C)")
	scanCmd.Flags().StringP("format", "f", "", "Output format (table, json)")
	scanCmd.Flags().BoolP("watch", "w", false, "Print events live while scanning")
	scanCmd.Flags().Bool("allow-duplicates", false, "Report every advertisement, not only the first per device")
}

// tableFormat resolves the --format flag against the configured output format.
func tableFormat(cmd *cobra.Command, cfg *config.Config, textName string) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = cfg.OutputFormat
	}
	switch format {
	case config.FormatText, textName:
		return textName, nil
	case config.FormatJSON:
		return config.FormatJSON, nil
	default:
		return "", fmt.Errorf("invalid format '%s': must be one of [%s json]", format, textName)
	}
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := tableFormat(cmd, cfg, "table")
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	watch, _ := cmd.Flags().GetBool("watch")
	duration := cfg.ScanDuration
	switch {
	case cmd.Flags().Changed("duration"):
		duration, _ = cmd.Flags().GetDuration("duration")
	case watch:
		duration = 0
	}
	if duration <= 0 && !watch {
		return fmt.Errorf("invalid duration %s: must be > 0 unless --watch is set", duration)
	}
	if cmd.Flags().Changed("allow-duplicates") {
		cfg.AllowDuplicates, _ = cmd.Flags().GetBool("allow-duplicates")
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer mgr.Close()

	out := cmd.OutOrStdout()
	if watch {
		colors := outputPalette(out)
		unsubscribe := mgr.Events().SubscribeAll(func(e eventbus.Event) {
			if line, ok := describeEvent(e, colors); ok {
				fmt.Fprintf(out, "%s %s\n", time.Now().Format("15:04:05.000"), line)
			}
		})
		defer unsubscribe()
	}

	scanCtx := ctx
	if duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	var progress *statusLine
	if !watch {
		progress = newStatusLine(cmd.ErrOrStderr(), "Scanning for BLE devices", duration)
		progress.Start()
	}

	mgr.StartScan()
	<-scanCtx.Done()
	mgr.StopScan()

	if progress != nil {
		progress.Stop()
	}
	if watch {
		// Ctrl+C ends watch mode; nothing more to print.
		return nil
	}

	peripherals := mgr.Peripherals()
	if format == config.FormatJSON {
		return renderPeripheralJSON(out, peripherals)
	}
	return renderPeripheralTable(out, peripherals, time.Now())
}
