package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blescan/pkg/config"
)

const disconnectTimeout = 3 * time.Second

// exploreCmd represents the explore command
var exploreCmd = &cobra.Command{
	Use:   "explore <device-id>",
	Short: "Connect to a device and print its GATT tree",
	Long: `Scan until the given device advertises, connect to it, discover every
service, characteristic and descriptor, read every readable value and print
the resulting tree with values in hex.

Discovery has no completion signal: it is considered done once nothing new
was discovered or read for --idle.`,
	Example: `  blescan explore AA:BB:CC:DD:EE:FF
  blescan explore AA:BB:CC:DD:EE:FF --idle 5s -f json`,
	Args: cobra.ExactArgs(1),
	RunE: runExplore,
}

func init() {
	exploreCmd.Flags().DurationP("timeout", "t", 0, "How long to scan for the device (default from config)")
	exploreCmd.Flags().Duration("idle", 0, "Quiet period that ends discovery (default from config)")
	exploreCmd.Flags().StringP("format", "f", "", "Output format (tree, json)")
}

func runExplore(cmd *cobra.Command, args []string) error {
	id := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := tableFormat(cmd, cfg, "tree")
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	timeout := cfg.ScanDuration
	if cmd.Flags().Changed("timeout") {
		timeout, _ = cmd.Flags().GetDuration("timeout")
	}
	idle := cfg.IdleTimeout
	if cmd.Flags().Changed("idle") {
		idle, _ = cmd.Flags().GetDuration("idle")
	}
	if timeout <= 0 || idle <= 0 {
		return fmt.Errorf("--timeout and --idle must be > 0")
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

	progress := newStatusLine(cmd.ErrOrStderr(), fmt.Sprintf("Exploring %s", id), 0)
	progress.SetPhase("scanning")
	progress.Start()
	defer progress.Stop()

	found, err := findPeripheral(ctx, mgr, id, timeout)
	if err != nil {
		return err
	}
	id = found.ID

	progress.SetPhase("connecting")
	if err := connect(ctx, mgr, id); err != nil {
		return err
	}
	defer disconnect(mgr, id, disconnectTimeout, logger)

	progress.SetPhase("discovering")
	if err := mgr.AwaitDiscoveryIdle(ctx, id, idle); err != nil {
		return err
	}

	tree, _ := mgr.Tree(id)
	peripheral, _ := mgr.Peripheral(id)
	progress.Stop()

	out := cmd.OutOrStdout()
	if format == config.FormatJSON {
		return renderTreeJSON(out, peripheral, tree)
	}
	return renderTree(out, peripheral, tree, outputPalette(out))
}
