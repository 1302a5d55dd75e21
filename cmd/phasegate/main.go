// phasegate is the CLI for the phase-gated workflow orchestrator: lock
// management, drift detection, and multi-phase orchestration.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/term"

	"phasegate/pkg/audit"
	"phasegate/pkg/checksum"
	"phasegate/pkg/config"
	"phasegate/pkg/lock"
	"phasegate/pkg/logx"
	"phasegate/pkg/phase"
)

const version = "1.0.0"

// Exit codes shared by every subcommand.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage()
		return exitUsage
	}

	switch args[0] {
	case "lock":
		return cmdLock(args[1:])
	case "drift":
		return cmdDrift(args[1:])
	case "orchestrate":
		return cmdOrchestrate(args[1:])
	case "audit":
		return cmdAudit(args[1:])
	case "secrets":
		return cmdSecrets(args[1:])
	case "version":
		fmt.Printf("phasegate %s\n", version)
		return exitOK
	case "help", "-h", "--help":
		printUsage()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		printUsage()
		return exitUsage
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "phasegate - phase-gated workflow orchestrator\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  phasegate lock create --wave N --phase P [--checks JSON] [--root DIR]\n")
	fmt.Fprintf(os.Stderr, "  phasegate lock validate --wave N --phase P [--root DIR]\n")
	fmt.Fprintf(os.Stderr, "  phasegate lock invalidate --wave N --phase P [--reason TEXT] [--cascade] [--root DIR]\n")
	fmt.Fprintf(os.Stderr, "  phasegate lock status [--wave N] [--json] [--root DIR]\n")
	fmt.Fprintf(os.Stderr, "  phasegate drift check --wave N [--phase P] [--root DIR]\n")
	fmt.Fprintf(os.Stderr, "  phasegate drift auto-fix --wave N [--root DIR]\n")
	fmt.Fprintf(os.Stderr, "  phasegate orchestrate --wave N {--run-all|--up-to P|--from P|--phase P}\n")
	fmt.Fprintf(os.Stderr, "                        [--dry-run] [--force] [--status-addr ADDR] [--root DIR]\n")
	fmt.Fprintf(os.Stderr, "  phasegate audit list --wave N [--root DIR]\n")
	fmt.Fprintf(os.Stderr, "  phasegate secrets encrypt [--root DIR]\n")
	fmt.Fprintf(os.Stderr, "  phasegate version\n\n")
	fmt.Fprintf(os.Stderr, "Phases: prevalidation (-1), stories (0), infrastructure (1),\n")
	fmt.Fprintf(os.Stderr, "        smoketest (2), development (3), qamerge (4)\n")
}

// deps bundles the wired core components for one invocation.
type deps struct {
	root     string
	graph    *phase.Graph
	provider *checksum.Provider
	store    *lock.Store
	auditLog *audit.Log
	logger   *logx.Logger
}

// bootstrap loads config and secrets and wires the core components. The
// audit log is attached best-effort: a broken audit database degrades to a
// warning, not a refusal to operate on locks.
func bootstrap(root string, needConfig bool) (*deps, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}

	logger := logx.NewLogger("cli")

	graph := phase.NewGraph()
	if err := config.Load(abs); err != nil {
		if needConfig {
			return nil, fmt.Errorf("failed to load project config: %w", err)
		}
		logger.Debug("project config not loaded: %v", err)
	} else if cfg, err := config.Get(); err == nil {
		inactive, err := cfg.InactivePhaseList()
		if err != nil {
			return nil, err
		}
		graph = phase.NewGraphWithInactive(inactive...)
	}

	if err := loadSecrets(abs); err != nil {
		return nil, err
	}

	provider := checksum.NewProvider()
	store := lock.NewStore(abs, graph, provider)

	d := &deps{
		root:     abs,
		graph:    graph,
		provider: provider,
		store:    store,
		logger:   logger,
	}

	auditLog, err := audit.Open(auditPath(abs))
	if err != nil {
		logger.Warn("audit history unavailable: %v", err)
	} else {
		d.auditLog = auditLog
		store.SetAuditSink(auditLog)
	}
	return d, nil
}

func (d *deps) close() {
	if d.auditLog != nil {
		_ = d.auditLog.Close()
	}
}

func auditPath(root string) string {
	return filepath.Join(root, config.ProjectConfigDir, "audit.db")
}

func breakerPath(root string) string {
	return filepath.Join(root, config.ProjectConfigDir, "breaker.json")
}

// loadSecrets decrypts the credentials file into memory when present. The
// passphrase comes from PHASEGATE_PASSPHRASE or an interactive prompt.
// The secrets helpers take the project root and resolve the state directory
// themselves, so the on-disk path is the one the Infrastructure checksum
// scope hashes.
func loadSecrets(root string) error {
	if !config.SecretsFileExists(root) {
		return nil
	}

	passphrase := os.Getenv("PHASEGATE_PASSPHRASE")
	if passphrase == "" {
		if !term.IsTerminal(syscall.Stdin) {
			// Headless run without a passphrase: credential checks will
			// fail individually instead of blocking every command.
			return nil
		}
		fmt.Fprint(os.Stderr, "Passphrase for secrets file: ")
		raw, err := term.ReadPassword(syscall.Stdin)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to read passphrase: %w", err)
		}
		passphrase = string(raw)
	}

	secrets, err := config.DecryptSecretsFile(root, passphrase)
	if err != nil {
		return fmt.Errorf("failed to decrypt secrets file: %w", err)
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}

func parsePhaseFlag(raw string) (phase.Phase, error) {
	return phase.Parse(raw)
}

func fail(format string, args ...any) int {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	return exitFailure
}

func usageError(format string, args ...any) int {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n\n", args...)
	printUsage()
	return exitUsage
}
