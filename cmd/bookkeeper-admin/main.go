// Command bookkeeper-admin seeds demo data and hashes operator passwords.
//
//	bookkeeper-admin seed [-transactions 120] [-days 30] [-reset]
//	bookkeeper-admin hash-password [-password secret]
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"bookkeeper/internal/auth"
	"bookkeeper/internal/backend"
	"bookkeeper/internal/cli"
	"bookkeeper/internal/log"
	"bookkeeper/internal/services"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cli.LoadEnvFile()
	logger := cli.SetupLogger("admin")

	var err error
	switch os.Args[1] {
	case "seed":
		err = runSeed(logger, os.Args[2:])
	case "hash-password":
		err = runHashPassword(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("Command failed", "command", os.Args[1], log.FieldError, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: bookkeeper-admin <seed|hash-password> [flags]")
}

func runSeed(logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	transactions := fs.Int("transactions", 120, "number of random transactions")
	days := fs.Int("days", 30, "spread transactions over this many days back from today")
	reset := fs.Bool("reset", false, "delete existing data first")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := cli.LoadAndValidateConfig(logger)
	ctx, stop := cli.SignalContext(logger)
	defer stop()

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendConfig)
	if err != nil {
		return err
	}
	defer result.Cleanup()

	svc := services.NewLedgerService(result.Store, result.Events, logger, services.Options{})
	res, err := cli.Seed(ctx, svc, cli.SeedOptions{
		Transactions: *transactions,
		Days:         *days,
		Reset:        *reset,
	})
	if err != nil {
		return err
	}
	logger.Info("Seed data created",
		"backend", cfg.DataBackend,
		"locations", res.Locations,
		"accounts", res.Accounts,
		"transactions", res.Transactions)
	return nil
}

func runHashPassword(args []string) error {
	fs := flag.NewFlagSet("hash-password", flag.ExitOnError)
	password := fs.String("password", "", "password to hash (read from stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pw := *password
	if pw == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		pw = strings.TrimRight(line, "\r\n")
	}

	hash, err := auth.HashPassword(pw)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
