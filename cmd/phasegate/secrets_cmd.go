package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"phasegate/pkg/config"
)

func cmdSecrets(args []string) int {
	if len(args) < 1 || args[0] != "encrypt" {
		return usageError("secrets requires the encrypt subcommand")
	}

	var root string
	fs := flag.NewFlagSet("secrets encrypt", flag.ContinueOnError)
	fs.StringVar(&root, "root", ".", "Workspace root directory")
	if err := fs.Parse(args[1:]); err != nil {
		return exitUsage
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return fail("failed to resolve root %s: %v", root, err)
	}

	secrets, err := promptSecrets()
	if err != nil {
		return fail("%v", err)
	}
	if len(secrets) == 0 {
		return fail("no secrets entered, nothing to encrypt")
	}

	passphrase, err := promptNewPassphrase()
	if err != nil {
		return fail("%v", err)
	}

	// EncryptSecretsFile takes the project root and writes under its
	// .phasegate state directory, the same path the Infrastructure
	// checksum scope hashes.
	if err := config.EncryptSecretsFile(abs, passphrase, secrets); err != nil {
		return fail("failed to write secrets file: %v", err)
	}
	fmt.Printf("Encrypted %d secret(s) to %s\n", len(secrets),
		filepath.Join(abs, config.ProjectConfigDir, config.SecretsFileName))
	return exitOK
}

// promptSecrets reads NAME=value pairs from stdin until a blank line.
func promptSecrets() (map[string]string, error) {
	fmt.Fprintln(os.Stderr, "Enter secrets as NAME=value, one per line; finish with a blank line:")
	secrets := make(map[string]string)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid entry %q, expected NAME=value", line)
		}
		secrets[strings.TrimSpace(name)] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read secrets: %w", err)
	}
	return secrets, nil
}

func promptNewPassphrase() (string, error) {
	fmt.Fprint(os.Stderr, "New passphrase: ")
	first, err := term.ReadPassword(syscall.Stdin)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	fmt.Fprint(os.Stderr, "Confirm passphrase: ")
	second, err := term.ReadPassword(syscall.Stdin)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passphrases do not match")
	}
	if len(first) < 8 {
		return "", fmt.Errorf("passphrase must be at least 8 characters")
	}
	return string(first), nil
}
