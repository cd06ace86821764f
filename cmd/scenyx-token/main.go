// Command scenyx-token mints a development token for the scene gateway.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/Vasu1712/scenyx-narrator/internal/auth"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	var (
		userID      string
		storyteller bool
		ttl         time.Duration
		secret      string
	)
	flagSet := pflag.NewFlagSet("scenyx-token", pflag.ContinueOnError)
	flagSet.StringVarP(&userID, "user", "u", "", "user id to put in the token (required)")
	flagSet.BoolVar(&storyteller, "storyteller", false, "grant the storyteller role")
	flagSet.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	flagSet.StringVar(&secret, "secret", os.Getenv("SCENYX_AUTH_SECRET"), "signing secret (default $SCENYX_AUTH_SECRET)")
	flagSet.SetOutput(io.Discard)

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(stdout, "Usage: scenyx-token --user <id> [flags]\n\n%s", flagSet.FlagUsages())
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if userID == "" {
		return errors.New("--user is required")
	}
	if ttl <= 0 {
		return errors.New("--ttl must be positive")
	}

	authn, err := auth.NewAuthenticator(secret)
	if err != nil {
		return err
	}
	token, err := authn.Issue(userID, storyteller, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, token)
	return err
}
