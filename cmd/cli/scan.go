package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anstrom/pingscan/internal/config"
	"github.com/anstrom/pingscan/internal/errors"
	"github.com/anstrom/pingscan/internal/hostspec"
	"github.com/anstrom/pingscan/internal/logging"
	"github.com/anstrom/pingscan/internal/output"
	"github.com/anstrom/pingscan/internal/profiles"
	"github.com/anstrom/pingscan/internal/results"
	"github.com/anstrom/pingscan/internal/scan"
	"github.com/anstrom/pingscan/internal/services"
)

var (
	scanICMP     bool
	scanTCP      string
	scanUDP      string
	scanTimeout  time.Duration
	scanWorkers  int
	scanOutput   string
	scanProgress time.Duration
	scanProfile  string
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <hostspec>",
	Short: "Probe hosts over ICMP, TCP and UDP",
	Long: `Scan every address of a host specification over the selected protocols
and report per-port and per-host state.

A host specification is a comma-separated list of addresses, hostnames and
CIDR blocks. Without --icmp, --tcp, --udp or --profile the services from the
config file are scanned, or every protocol with its default ports if none are
configured. See 'pingscan profiles' for the available profiles.
Interrupting the scan with Ctrl-C stops it and prints the partial results.`,
	Example: `  pingscan scan 192.168.1.0/24 --icmp
  pingscan scan 10.0.0.1,10.0.0.2 --tcp 22,80,443 --udp 53
  pingscan scan example.com --tcp 1-1024 --timeout 500ms --output json
  pingscan scan 10.0.0.0/16 --icmp --workers 1024 --progress 2s
  pingscan scan 10.0.0.0/24 --profile web`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().BoolVar(&scanICMP, "icmp", false, "Send ICMP echo requests")
	scanCmd.Flags().StringVar(&scanTCP, "tcp", "", "TCP ports to connect to, e.g. '22,80,8000-8100' ('default' for the defaults)")
	scanCmd.Flags().StringVar(&scanUDP, "udp", "", "UDP ports to probe, e.g. '53,123' ('default' for the defaults)")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "Per-probe timeout (default from config, 2s)")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 0, "Maximum probes in flight (default from config)")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", string(output.FormatTable), "Output format: table, json or yaml")
	scanCmd.Flags().DurationVar(&scanProgress, "progress", 0, "Print progress to stderr at this interval")
	scanCmd.Flags().StringVar(&scanProfile, "profile", "", "Scan profile supplying services and timeout")
}

func runScan(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(scanOutput)
	if err != nil {
		return errors.WrapScanError(errors.CodeValidation, "invalid --output", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var requested map[services.Protocol][]int
	if cmd.Flags().Changed("profile") {
		requested, err = profileServices(cmd, cfg)
	} else {
		requested, err = requestedServices(cmd, cfg)
	}
	if err != nil {
		return err
	}
	applyScanFlags(cmd, cfg)

	addresses, err := hostspec.ExpandLimit(args[0], cfg.Scanning.MaxAddresses)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scanner, err := scan.New(addresses, requested, newRegistry(),
		scan.WithTimeout(cfg.Scanning.Timeout),
		scan.WithWorkers(cfg.Scanning.Workers),
		scan.WithLogger(logging.Default()),
		scan.WithContext(ctx),
	)
	if err != nil {
		return err
	}

	scanner.Start()
	snap := waitWithProgress(scanner, cmd.ErrOrStderr(), scanProgress)

	if err := output.WriteSnapshot(cmd.OutOrStdout(), format, snap); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	if scanner.Status() == scan.StatusStopped {
		return errors.NewScanError(errors.CodeCanceled, "scan interrupted; results are partial")
	}
	return nil
}

// applyScanFlags lets --timeout and --workers override the configuration.
func applyScanFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("timeout") && scanTimeout > 0 {
		cfg.Scanning.Timeout = scanTimeout
	}
	if cmd.Flags().Changed("workers") && scanWorkers > 0 {
		cfg.Scanning.Workers = scanWorkers
	}
}

// profileServices resolves --profile, which also sets the timeout when the
// profile has one. It cannot be combined with protocol flags.
func profileServices(cmd *cobra.Command, cfg *config.Config) (map[services.Protocol][]int, error) {
	if scanICMP || cmd.Flags().Changed("tcp") || cmd.Flags().Changed("udp") {
		return nil, errors.NewScanError(errors.CodeValidation, "--profile cannot be combined with --icmp, --tcp or --udp")
	}

	catalog, err := profiles.FromConfig(cfg.Profiles)
	if err != nil {
		return nil, err
	}
	p, err := catalog.Get(scanProfile)
	if err != nil {
		return nil, errors.WrapScanError(errors.CodeValidation, "invalid --profile", err)
	}
	if p.Timeout > 0 {
		cfg.Scanning.Timeout = p.Timeout
	}

	requested, err := p.Request()
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "invalid profile "+p.Name, err)
	}
	return requested, nil
}

// requestedServices builds the protocol/port request from the flags, or from
// the config file when no protocol flag is given.
func requestedServices(cmd *cobra.Command, cfg *config.Config) (map[services.Protocol][]int, error) {
	specs := map[string]string{}
	if scanICMP {
		specs[string(services.ICMP)] = ""
	}
	if cmd.Flags().Changed("tcp") {
		specs[string(services.TCP)] = portFlag(scanTCP)
	}
	if cmd.Flags().Changed("udp") {
		specs[string(services.UDP)] = portFlag(scanUDP)
	}

	if len(specs) == 0 {
		requested, err := cfg.ServiceRequest()
		if err != nil {
			return nil, errors.WrapConfigError(errors.CodeConfiguration, "invalid scanning.services", err)
		}
		return requested, nil
	}

	requested, err := services.ParseRequest(specs)
	if err != nil {
		return nil, errors.WrapScanError(errors.CodeValidation, "invalid port specification", err)
	}
	return requested, nil
}

func portFlag(v string) string {
	if v == "default" {
		return ""
	}
	return v
}

// waitWithProgress waits for the scan to finish, printing progress lines to
// w every interval when interval is positive. It returns the final snapshot.
func waitWithProgress(scanner *scan.Scanner, w io.Writer, interval time.Duration) *results.Snapshot {
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

	loop:
		for {
			select {
			case <-scanner.Done():
				break loop
			case <-ticker.C:
				printProgress(w, scanner.Results())
			}
		}
	}

	// An interrupt stops the scan through its context; Wait still returns
	// only once every probe has wound down.
	_ = scanner.Wait(context.Background())
	return scanner.Results()
}

func printProgress(w io.Writer, snap *results.Snapshot) {
	if snap == nil {
		return
	}
	p := snap.Progress()
	s := snap.Summary()
	fmt.Fprintf(w, "progress: %d/%d probes, %d up, %d down, %d unknown\n",
		p.Completed, p.Total, s.Up, s.Down, s.Unknown)
}
