package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"vlhub/hub/internal/store"
)

// RunCLI handles subcommand execution. Returns true if a subcommand was handled.
func RunCLI(args []string, dbPath string) bool {
	if len(args) == 0 {
		return false
	}

	subcmd := args[0]
	switch subcmd {
	case "version":
		fmt.Printf("verlihub %s\n", Version)
		return true
	case "status":
		return cliStatus(dbPath)
	case "bans":
		return cliBans(args[1:], dbPath)
	case "settings":
		return cliSettings(args[1:], dbPath)
	case "backup":
		return cliBackup(args[1:], dbPath)
	default:
		return false
	}
}

func openStoreOrExit(dbPath string) *store.Store {
	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	return st
}

func cliStatus(dbPath string) bool {
	st := openStoreOrExit(dbPath)
	defer st.Close()

	ctx := context.Background()
	bans, err := st.ListBans(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("Bans on file: %d\n", len(bans))
	fmt.Printf("Version: %s\n", Version)
	return true
}

func cliBans(args []string, dbPath string) bool {
	st := openStoreOrExit(dbPath)
	defer st.Close()

	ctx := context.Background()

	if len(args) == 0 || args[0] == "list" {
		bans, err := st.ListBans(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if len(bans) == 0 {
			fmt.Println("No bans on file.")
			return true
		}
		for _, b := range bans {
			fmt.Printf("  [kind=%d] nick=%q ip=%q reason=%q op=%q\n", b.Kind, b.Nick, b.IP, b.Reason, b.OpNick)
		}
		return true
	}

	if args[0] == "unban" && len(args) > 2 {
		ip, nick := args[1], args[2]
		op := "cli"
		if err := st.Unban(ctx, ip, nick, op, "removed via cli"); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Unbanned ip=%q nick=%q\n", ip, nick)
		return true
	}

	fmt.Fprintf(os.Stderr, "Usage: server bans [list|unban <ip> <nick>]\n")
	os.Exit(1)
	return true
}

func cliSettings(args []string, dbPath string) bool {
	st := openStoreOrExit(dbPath)
	defer st.Close()

	ctx := context.Background()
	file := "hub"
	if len(args) > 1 {
		file = args[1]
	}

	if len(args) == 0 || args[0] == "list" {
		settings, err := st.GetConfig(ctx, file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(settings, "", "  ")
		fmt.Println(string(out))
		return true
	}

	if args[0] == "set" && len(args) > 3 {
		file, key, value := args[1], args[2], args[3]
		if err := st.SetConfig(ctx, file, key, value); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Set %s/%s = %s\n", file, key, value)
		return true
	}

	fmt.Fprintf(os.Stderr, "Usage: server settings [list [file]|set <file> <key> <value>]\n")
	os.Exit(1)
	return true
}

func cliBackup(args []string, dbPath string) bool {
	st := openStoreOrExit(dbPath)
	defer st.Close()

	outPath := "verlihub-backup.db"
	if len(args) > 0 {
		outPath = args[0]
	}

	if err := st.Backup(context.Background(), outPath); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Database backed up to %s\n", outPath)
	return true
}
