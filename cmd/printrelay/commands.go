package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/printrelay/internal/auth"
	"github.com/nerrad567/printrelay/internal/infrastructure/config"
	"github.com/nerrad567/printrelay/internal/infrastructure/secrets"
)

// credentialsKeyEnv holds the AES key for encrypted config values.
const credentialsKeyEnv = "PRINTRELAY_CREDENTIALS_KEY"

var (
	jsonOutput   bool
	tokenSubject string
	tokenTTL     time.Duration
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build date. Use --json for machine-readable output.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printVersion(cmd.OutOrStdout(), jsonOutput)
	},
}

var encryptSecretCmd = &cobra.Command{
	Use:   "encrypt-secret [value]",
	Short: "Encrypt a credential for the config file",
	Long: `Encrypts a value (an MQTT password or InfluxDB token) with the key in
` + credentialsKeyEnv + ` (64 hex characters, e.g. from "openssl rand -hex 32").
Paste the output into the config file; the service decrypts it at startup
with the same key.

The value is read from stdin when no argument is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := secretValue(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		out, err := encryptSecret(os.Getenv(credentialsKeyEnv), value)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token",
	Long: `Signs an operator token with security.jwt.secret from the config file
(or PRINTRELAY_JWT_SECRET). Clients send it as "Authorization: Bearer <token>".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(getConfigPath())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		token, err := issueToken(cfg.Security.JWT.Secret, tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "output version info as JSON")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "token subject, shown in API logs")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", auth.DefaultTokenTTL, "token lifetime")
}

func printVersion(w io.Writer, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": date,
		})
	}
	_, err := fmt.Fprintf(w, "printrelay %s (commit %s, built %s)\n", version, commit, date)
	return err
}

// secretValue returns the single argument, or the first line of stdin.
func secretValue(in io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading value: %w", err)
	}
	value := strings.TrimRight(line, "\r\n")
	if value == "" {
		return "", errors.New("no value to encrypt")
	}
	return value, nil
}

func encryptSecret(key, value string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%s is not set", credentialsKeyEnv)
	}
	cipher, err := secrets.NewCipher(key)
	if err != nil {
		return "", err
	}
	return cipher.Encrypt(value)
}

func issueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("security.jwt.secret is not set, API authentication is disabled")
	}
	return auth.GenerateToken(subject, secret, ttl)
}
