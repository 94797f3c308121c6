package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/pingscan/internal/auth"
	"github.com/anstrom/pingscan/internal/config"
	"github.com/anstrom/pingscan/internal/errors"
	"github.com/anstrom/pingscan/internal/output"
)

var (
	apiKeyName      string
	apiKeyExpiresIn time.Duration
	apiKeyOutput    string
)

// apiKeyCmd represents the apikey command group
var apiKeyCmd = &cobra.Command{
	Use:     "apikey",
	Aliases: []string{"apikeys", "key"},
	Short:   "Create API keys for the HTTP API",
	Long: `Create API keys for clients of the HTTP API.

Keys are not stored by pingscan. generate prints the key once, together with
the bcrypt hash to add under api.auth.keys in the config file. Clients send
the key in the X-API-Key header.`,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

var apiKeyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new API key",
	Example: `  pingscan apikey generate --name dashboard
  pingscan apikey generate --name ci --expires-in 720h -o json`,
	Args: cobra.NoArgs,
	RunE: runAPIKeyGenerate,
}

var apiKeyHashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Hash an existing API key read from stdin",
	Long: `Hash reads an API key from standard input and prints the config entry
that accepts it, e.g. to rotate the bcrypt cost of an existing key.`,
	Example: `  echo "$PINGSCAN_API_KEY" | pingscan apikey hash --name ci`,
	Args:    cobra.NoArgs,
	RunE:    runAPIKeyHash,
}

func init() {
	rootCmd.AddCommand(apiKeyCmd)
	apiKeyCmd.AddCommand(apiKeyGenerateCmd, apiKeyHashCmd)

	apiKeyGenerateCmd.Flags().StringVar(&apiKeyName, "name", "", "Name identifying the client (required)")
	apiKeyGenerateCmd.Flags().DurationVar(&apiKeyExpiresIn, "expires-in", 0, "Lifetime of the key, e.g. 720h (default never)")
	apiKeyGenerateCmd.Flags().StringVarP(&apiKeyOutput, "output", "o", string(output.FormatYAML), "Output format: yaml or json")
	_ = apiKeyGenerateCmd.MarkFlagRequired("name")

	apiKeyHashCmd.Flags().StringVar(&apiKeyName, "name", "", "Name identifying the client (required)")
	_ = apiKeyHashCmd.MarkFlagRequired("name")
}

func runAPIKeyGenerate(cmd *cobra.Command, _ []string) error {
	format, err := output.ParseFormat(apiKeyOutput)
	if err != nil || format == output.FormatTable {
		return errors.NewScanError(errors.CodeValidation, fmt.Sprintf("invalid --output %q (use yaml or json)", apiKeyOutput))
	}

	generated, err := auth.GenerateKey(apiKeyName, apiKeyExpiresIn)
	if err != nil {
		return errors.WrapScanError(errors.CodeValidation, "cannot generate API key", err)
	}

	out := cmd.OutOrStdout()
	if format == output.FormatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(generated)
	}

	fmt.Fprintf(out, "# API key %q (%s). It is shown only once.\n", generated.Name, generated.Prefix)
	fmt.Fprintf(out, "# Clients send it as: X-API-Key: %s\n", generated.Key)
	fmt.Fprintln(out, "# Add the entry below under api.auth.keys:")
	return writeKeyEntry(out, config.APIKeyConfig{
		Name:      generated.Name,
		Hash:      generated.Hash,
		ExpiresAt: generated.ExpiresAt,
	})
}

func runAPIKeyHash(cmd *cobra.Command, _ []string) error {
	key, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.NewScanError(errors.CodeValidation, "no API key on stdin")
	}

	hash, err := auth.HashKey(key)
	if err != nil {
		return errors.WrapScanError(errors.CodeValidation, "cannot hash API key", err)
	}
	return writeKeyEntry(cmd.OutOrStdout(), config.APIKeyConfig{Name: apiKeyName, Hash: hash})
}

func writeKeyEntry(w io.Writer, entry config.APIKeyConfig) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode([]config.APIKeyConfig{entry}); err != nil {
		return err
	}
	return enc.Close()
}
