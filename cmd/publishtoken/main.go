package main

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"media-publisher/internal/database"
)

const (
	// Default timeout for database operations
	defaultTimeout = 30 * time.Second
	// Default database directory path
	defaultDatabaseDir = "/database"
	// generatedTokenBytes is the entropy of generated tokens
	generatedTokenBytes = 24
)

// tokenStore is the part of the database the commands need.
type tokenStore interface {
	SetAPIToken(ctx context.Context, token string) error
	APITokenConfigured(ctx context.Context) (bool, error)
	ClearAPIToken(ctx context.Context) error
}

// readSecret reads one secret after printing prompt. Replaced in tests.
var readSecret = readSecretFromStdin

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	databaseDir := os.Getenv("DATABASE_DIR")
	if databaseDir == "" {
		databaseDir = defaultDatabaseDir
	}
	dbPath := filepath.Join(databaseDir, "media.db")

	db, err := database.New(ctx, dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to database: %v\n", err)
		fmt.Fprintf(os.Stderr, "Make sure DATABASE_DIR is set correctly (current: %s)\n", databaseDir)
		os.Exit(1)
	}

	code := run(ctx, db, os.Args[1], os.Stdout, os.Stderr)
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
	os.Exit(code)
}

// run executes command and returns the process exit code.
func run(ctx context.Context, store tokenStore, command string, out, errOut io.Writer) int {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	switch command {
	case "set":
		return setToken(ctx, store, out, errOut)
	case "generate":
		return generateToken(ctx, store, out, errOut)
	case "status":
		return showStatus(ctx, store, out, errOut)
	case "clear":
		if err := store.ClearAPIToken(ctx); err != nil {
			fmt.Fprintf(errOut, "Error: Failed to clear token: %v\n", err)
			return 1
		}
		fmt.Fprintln(out, "API token cleared. The publish API is now open.")
		return 0
	default:
		fmt.Fprintf(errOut, "Unknown command: %s\n", sanitizeCommand(command))
		printUsage(out)
		return 1
	}
}

// sanitizeCommand replaces everything outside [a-zA-Z0-9_-] with '_' so
// arbitrary input is never echoed to the terminal.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Media Publisher API Token Management")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: publishtoken <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  set       - Set the API token (prompted)")
	fmt.Fprintln(w, "  generate  - Generate and set a random API token")
	fmt.Fprintln(w, "  status    - Check if an API token is configured")
	fmt.Fprintln(w, "  clear     - Remove the API token")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  DATABASE_DIR - Path to database directory (default: %s)\n", defaultDatabaseDir)
}

func setToken(ctx context.Context, store tokenStore, out, errOut io.Writer) int {
	token, err := readSecret(out, "API Token: ")
	if err != nil {
		fmt.Fprintf(errOut, "Error reading token: %v\n", err)
		return 1
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		confirm, err := readSecret(out, "Confirm Token: ")
		if err != nil {
			fmt.Fprintf(errOut, "Error reading token: %v\n", err)
			return 1
		}
		if !bytes.Equal(token, confirm) {
			fmt.Fprintln(errOut, "Error: Tokens do not match")
			return 1
		}
	}

	if err := validateToken(token); err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return 1
	}

	if err := store.SetAPIToken(ctx, string(token)); err != nil {
		fmt.Fprintf(errOut, "Error: Failed to store token: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, "API token updated successfully.")
	return 0
}

func validateToken(token []byte) error {
	if len(token) < database.MinTokenLength {
		return fmt.Errorf("token must be at least %d characters", database.MinTokenLength)
	}
	if bytes.ContainsAny(token, " \t\r\n") {
		return errors.New("token must not contain whitespace")
	}
	return nil
}

func generateToken(ctx context.Context, store tokenStore, out, errOut io.Writer) int {
	buf := make([]byte, generatedTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		fmt.Fprintf(errOut, "Error: Failed to generate token: %v\n", err)
		return 1
	}
	token := hex.EncodeToString(buf)

	if err := store.SetAPIToken(ctx, token); err != nil {
		fmt.Fprintf(errOut, "Error: Failed to store token: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, "Generated API token (shown once):")
	fmt.Fprintln(out, token)
	return 0
}

func showStatus(ctx context.Context, store tokenStore, out, errOut io.Writer) int {
	configured, err := store.APITokenConfigured(ctx)
	if err != nil {
		fmt.Fprintf(errOut, "Error: Failed to read token status: %v\n", err)
		return 1
	}
	if configured {
		fmt.Fprintln(out, "Status: API token is configured")
	} else {
		fmt.Fprintln(out, "Status: No API token configured (publish API is open)")
	}
	return 0
}

// readSecretFromStdin prompts without echo on a terminal and reads a single
// line otherwise.
func readSecretFromStdin(out io.Writer, prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(out, prompt)
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		return secret, err
	}

	line, err := bufio.NewReader(os.Stdin).ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}
