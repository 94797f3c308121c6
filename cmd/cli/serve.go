package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anstrom/pingscan/internal/config"
	"github.com/anstrom/pingscan/internal/daemon"
	"github.com/anstrom/pingscan/internal/errors"
	"github.com/anstrom/pingscan/internal/logging"
)

var (
	serveListen string
	servePort   int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and scheduled scans",
	Long: `Serve starts the HTTP API and runs the scans listed under schedules in
the config file. Scans submitted through the API are queued and run by a
fixed number of workers; their progress can be polled or streamed over a
WebSocket. Prometheus metrics are exposed on /metrics. With daemon.pid_file
set, serve refuses to start while another instance holds the file. Send
SIGUSR1 to log the engine status.`,
	Example: `  pingscan serve
  pingscan serve --config /etc/pingscan.yaml --listen 0.0.0.0 --port 9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveListen, "listen", "", "API listen address (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "API port (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen") {
		cfg.API.ListenAddr = serveListen
	}
	if cmd.Flags().Changed("port") {
		cfg.API.Port = servePort
	}
	if !cfg.IsAPIEnabled() && len(cfg.Schedules) == 0 {
		return errors.NewConfigError(errors.CodeConfiguration, "nothing to serve: the API is disabled and no schedules are configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg)
}

// serve runs the daemon until ctx is done.
func serve(ctx context.Context, cfg *config.Config) error {
	d, err := daemon.New(cfg, newRegistry(), logging.Default())
	if err != nil {
		return err
	}
	return d.Run(ctx)
}
