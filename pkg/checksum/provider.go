// Package checksum computes deterministic content hashes over the files a
// phase's correctness depends on. A lock stores the hash current at
// validation time; drift detection recomputes it later and compares.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"phasegate/pkg/config"
	"phasegate/pkg/phase"
)

// NoInput is the well-known sentinel returned when a phase's entire input
// set is absent. An empty input is a valid, hashable state, distinct from a
// read error.
const NoInput = "no-input"

// Provider computes phase checksums. Pure read-only filesystem access; a
// Provider never writes anything.
type Provider struct{}

// NewProvider creates a checksum provider.
func NewProvider() *Provider {
	return &Provider{}
}

// StoriesDir returns the story directory for a wave under root.
func StoriesDir(root string, wave int) string {
	return filepath.Join(root, "stories", fmt.Sprintf("wave-%d", wave))
}

// SignalsDir returns the agent signal directory for a wave under root.
func SignalsDir(root string, wave int) string {
	return filepath.Join(root, "signals", fmt.Sprintf("wave-%d", wave))
}

// ApprovalPath returns the QA approval file for a wave under root.
func ApprovalPath(root string, wave int) string {
	return filepath.Join(root, "qa", fmt.Sprintf("wave-%d", wave), "approval.json")
}

// Compute hashes the input scope of the given phase for the given wave.
// Deterministic: the in-scope files are sorted by path before hashing, so
// filesystem listing order never changes the result.
func (p *Provider) Compute(wave int, ph phase.Phase, root string) (string, error) {
	files, err := p.scopeFiles(wave, ph, root)
	if err != nil {
		return "", err
	}
	return hashFiles(root, files)
}

// scopeFiles enumerates the files whose content defines the phase's
// validated state. Paths that do not exist are allowed here and filtered
// during hashing.
func (p *Provider) scopeFiles(wave int, ph phase.Phase, root string) ([]string, error) {
	switch ph {
	case phase.PreValidation:
		return []string{config.ConfigPath(root)}, nil

	case phase.Stories:
		return globAll(StoriesDir(root, wave), "*.yaml", "*.yml")

	case phase.Infrastructure:
		return []string{
			config.ConfigPath(root),
			filepath.Join(root, config.ProjectConfigDir, config.SecretsFileName),
		}, nil

	case phase.SmokeTest:
		return sourceFiles(root)

	case phase.Development:
		return globAll(SignalsDir(root, wave), "*.json")

	case phase.QAMerge:
		return []string{ApprovalPath(root, wave)}, nil

	default:
		return nil, fmt.Errorf("no checksum scope defined for phase %s", ph)
	}
}

func globAll(dir string, patterns ...string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("bad glob pattern %q: %w", pattern, err)
		}
		files = append(files, matches...)
	}
	return files, nil
}

// skipDirs are subtrees excluded from the smoke-test source scope: state
// owned by other phases, VCS metadata, and dependency caches.
var skipDirs = map[string]bool{
	config.ProjectConfigDir: true,
	".git":                  true,
	"node_modules":          true,
	"vendor":                true,
	"stories":               true,
	"signals":               true,
	"qa":                    true,
}

var sourceExtensions = map[string]bool{
	".go": true, ".js": true, ".ts": true, ".py": true, ".sh": true,
}

var manifestNames = map[string]bool{
	"go.mod": true, "go.sum": true, "Makefile": true, "makefile": true,
	"package.json": true, "package-lock.json": true,
	"pyproject.toml": true, "requirements.txt": true,
}

// sourceFiles walks the workspace collecting build-relevant files for the
// smoke-test scope.
func sourceFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if manifestNames[name] || sourceExtensions[strings.ToLower(filepath.Ext(name))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk workspace: %w", err)
	}
	return files, nil
}

// hashFiles hashes path+content pairs in sorted path order. Returns NoInput
// when none of the candidate files exist. Files that vanish between
// enumeration and read are treated as absent; any other read error is
// surfaced.
func hashFiles(root string, candidates []string) (string, error) {
	sort.Strings(candidates)

	h := sha256.New()
	hashed := 0
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}

		// Bind content to its workspace-relative path so renames change
		// the hash, and keep the digest independent of the absolute root.
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		h.Write([]byte(filepath.ToSlash(rel)))
		h.Write([]byte{0})
		h.Write(data)
		h.Write([]byte{0})
		hashed++
	}

	if hashed == 0 {
		return NoInput, nil
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
