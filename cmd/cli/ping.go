package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anstrom/pingscan/internal/errors"
	"github.com/anstrom/pingscan/internal/hostspec"
	"github.com/anstrom/pingscan/internal/logging"
	"github.com/anstrom/pingscan/internal/output"
	"github.com/anstrom/pingscan/internal/scan"
	"github.com/anstrom/pingscan/internal/services"
)

var (
	pingProtocol string
	pingPort     int
	pingTimeout  time.Duration
	pingOutput   string
)

var pingCmd = &cobra.Command{
	Use:   "ping <hostspec>",
	Short: "Check whether hosts answer on one protocol and port",
	Long: `Ping sends a single probe to every address of a host specification and
reports which addresses answered. ICMP sends an echo request, TCP opens a
connection (port 80 by default) and UDP sends a datagram (port 53 by default).`,
	Example: `  pingscan ping 192.168.1.0/24
  pingscan ping db1,db2 --protocol tcp --port 5432
  pingscan ping 10.0.0.53 --protocol udp`,
	Args: cobra.ExactArgs(1),
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)

	pingCmd.Flags().StringVarP(&pingProtocol, "protocol", "p", string(services.ICMP), "Protocol: icmp, tcp or udp")
	pingCmd.Flags().IntVar(&pingPort, "port", 0, "Port for tcp and udp (default 80 for tcp, 53 for udp)")
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 0, "Per-probe timeout (default from config, 2s)")
	pingCmd.Flags().StringVarP(&pingOutput, "output", "o", string(output.FormatTable), "Output format: table, json or yaml")
}

func runPing(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(pingOutput)
	if err != nil {
		return errors.WrapScanError(errors.CodeValidation, "invalid --output", err)
	}
	protocol, err := services.ParseProtocol(pingProtocol)
	if err != nil {
		return errors.WrapScanError(errors.CodeValidation, "invalid --protocol", err)
	}
	if pingPort < 0 || pingPort > 65535 {
		return errors.NewScanError(errors.CodeValidation, fmt.Sprintf("invalid --port %d", pingPort))
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("timeout") && pingTimeout > 0 {
		cfg.Scanning.Timeout = pingTimeout
	}

	addresses, err := hostspec.ExpandLimit(args[0], cfg.Scanning.MaxAddresses)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pinger, err := scan.NewPinger(addresses, protocol, pingPort, newRegistry(),
		scan.WithTimeout(cfg.Scanning.Timeout),
		scan.WithWorkers(cfg.Scanning.Workers),
		scan.WithLogger(logging.Default()),
	)
	if err != nil {
		return err
	}

	pings, runErr := pinger.Run(ctx)
	if err := output.WritePings(cmd.OutOrStdout(), format, pings); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	if runErr != nil {
		return errors.WrapScanError(errors.CodeCanceled, "ping interrupted; results are partial", runErr)
	}

	for _, p := range pings {
		if p.Succeeded {
			return nil
		}
	}
	return errors.NewScanError(errors.CodeUnknown, "no address answered")
}
