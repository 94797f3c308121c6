package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anstrom/pingscan/internal/errors"
	"github.com/anstrom/pingscan/internal/output"
	"github.com/anstrom/pingscan/internal/profiles"
)

var profilesOutput string

var profilesCmd = &cobra.Command{
	Use:     "profiles [name]",
	Aliases: []string{"profile"},
	Short:   "List scan profiles",
	Long: `Profiles lists the scan profiles usable with 'pingscan scan --profile',
the profile field of scheduled scans and the API. Built-in profiles are
always available; more can be defined under profiles in the config file.
With a name, only that profile is shown.`,
	Example: `  pingscan profiles
  pingscan profiles web -o yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProfiles,
}

func init() {
	rootCmd.AddCommand(profilesCmd)

	profilesCmd.Flags().StringVarP(&profilesOutput, "output", "o", string(output.FormatTable), "Output format: table, json or yaml")
}

func runProfiles(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(profilesOutput)
	if err != nil {
		return errors.WrapScanError(errors.CodeValidation, "invalid --output", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	catalog, err := profiles.FromConfig(cfg.Profiles)
	if err != nil {
		return err
	}

	list := catalog.GetAll()
	if len(args) == 1 {
		p, err := catalog.Get(args[0])
		if err != nil {
			return err
		}
		list = []*profiles.Profile{p}
	}

	if err := output.WriteProfiles(cmd.OutOrStdout(), format, list); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return nil
}
