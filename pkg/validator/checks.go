package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"phasegate/pkg/build"
	"phasegate/pkg/checksum"
	"phasegate/pkg/config"
	"phasegate/pkg/phase"
	"phasegate/pkg/stories"
)

const probeTimeout = 10 * time.Second

// checksFor builds the check set for a phase. Checks close over the runner's
// workspace root and read config lazily so a stale singleton never leaks
// into a run.
func (r *Runner) checksFor(wave int, ph phase.Phase) []Check {
	switch ph {
	case phase.PreValidation:
		return r.preValidationChecks()
	case phase.Stories:
		return r.storyChecks(wave)
	case phase.Infrastructure:
		return r.infraChecks()
	case phase.SmokeTest:
		return r.smokeChecks()
	case phase.Development:
		return r.developmentChecks(wave)
	case phase.QAMerge:
		return r.qaChecks(wave)
	default:
		return []Check{{
			Name:     "unknown-phase",
			Critical: true,
			Run: func(context.Context) (Status, string) {
				return StatusFail, fmt.Sprintf("no checks defined for phase %s", ph)
			},
		}}
	}
}

// preValidationChecks gate the whole pipeline on workspace sanity.
func (r *Runner) preValidationChecks() []Check {
	return []Check{
		{
			Name:     "config-parses",
			Critical: true,
			Run: func(context.Context) (Status, string) {
				if _, err := config.LoadFromFile(config.ConfigPath(r.root)); err != nil {
					return StatusFail, err.Error()
				}
				return StatusPass, ""
			},
		},
		{
			Name:     "workspace-layout",
			Critical: true,
			Run: func(context.Context) (Status, string) {
				info, err := os.Stat(r.root)
				if err != nil || !info.IsDir() {
					return StatusFail, fmt.Sprintf("workspace root %s is not a directory", r.root)
				}
				return StatusPass, ""
			},
		},
		{
			Name:     "lock-dir-writable",
			Critical: true,
			Run: func(context.Context) (Status, string) {
				dir := filepath.Join(r.root, config.ProjectConfigDir, "locks")
				if err := os.MkdirAll(dir, 0700); err != nil {
					return StatusFail, err.Error()
				}
				probe, err := os.CreateTemp(dir, ".write-probe-*")
				if err != nil {
					return StatusFail, err.Error()
				}
				name := probe.Name()
				_ = probe.Close()
				_ = os.Remove(name)
				return StatusPass, ""
			},
		},
	}
}

// storyChecks validate the wave's story files against the schema.
func (r *Runner) storyChecks(wave int) []Check {
	return []Check{{
		Name:     "story-schema",
		Critical: true,
		Run: func(context.Context) (Status, string) {
			set, err := stories.LoadDir(checksum.StoriesDir(r.root, wave))
			if err != nil {
				return StatusFail, err.Error()
			}
			result := stories.Validate(set)
			if !result.Passed {
				return StatusFail, strings.Join(result.Blocking, "; ")
			}
			return StatusPass, fmt.Sprintf("%d stories valid", len(set))
		},
	}}
}

// infraChecks probe configured endpoints and verify credentials exist.
// Each probe is its own check so one slow endpoint never hides the others.
func (r *Runner) infraChecks() []Check {
	cfg, err := config.Get()
	if err != nil {
		return []Check{{
			Name:     "config-loaded",
			Critical: true,
			Run:      func(context.Context) (Status, string) { return StatusFail, err.Error() },
		}}
	}
	if cfg.Infra == nil {
		return []Check{{
			Name: "infrastructure-configured",
			Run: func(context.Context) (Status, string) {
				return StatusSkip, "no infrastructure section in config"
			},
		}}
	}

	var checks []Check
	for _, probe := range cfg.Infra.Probes {
		probe := probe
		checks = append(checks, Check{
			Name:     "probe-" + probe.Name,
			Critical: probe.Critical,
			Timeout:  probeTimeout,
			Run: func(ctx context.Context) (Status, string) {
				return runProbe(ctx, probe.URL)
			},
		})
	}
	for _, cred := range cfg.Infra.RequiredCredentials {
		cred := cred
		checks = append(checks, Check{
			Name:     "credential-" + cred,
			Critical: true,
			Run: func(context.Context) (Status, string) {
				if !config.HasSecret(cred) {
					return StatusFail, fmt.Sprintf("credential %s not available", cred)
				}
				return StatusPass, ""
			},
		})
	}
	return checks
}

func runProbe(ctx context.Context, url string) (Status, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusFail, err.Error()
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return StatusFail, err.Error()
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return StatusFail, fmt.Sprintf("endpoint returned %s", resp.Status)
	}
	return StatusPass, resp.Status
}

// smokeChecks run build, lint, and test through the detected backend.
func (r *Runner) smokeChecks() []Check {
	timeout := 10 * time.Minute
	backendName := ""
	if cfg, err := config.Get(); err == nil && cfg.Smoke != nil {
		if cfg.Smoke.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.Smoke.TimeoutSeconds) * time.Second
		}
		backendName = cfg.Smoke.Backend
	}

	backend, err := r.detectBackend(backendName)
	if err != nil {
		return []Check{{
			Name:     "backend-detect",
			Critical: true,
			Run:      func(context.Context) (Status, string) { return StatusFail, err.Error() },
		}}
	}

	step := func(name string, fn func(context.Context, build.Executor, string, io.Writer) error) Check {
		return Check{
			Name:     name,
			Critical: true,
			Timeout:  timeout,
			Run: func(ctx context.Context) (Status, string) {
				var out strings.Builder
				if err := fn(ctx, r.exec, r.root, &out); err != nil {
					return StatusFail, tail(out.String(), 2048)
				}
				return StatusPass, ""
			},
		}
	}
	return []Check{
		step("build-"+backend.Name(), backend.Build),
		step("lint-"+backend.Name(), backend.Lint),
		step("test-"+backend.Name(), backend.Test),
	}
}

func (r *Runner) detectBackend(forced string) (build.Backend, error) {
	if forced == "" {
		return r.registry.Detect(r.root)
	}
	for _, b := range []build.Backend{build.NewGoBackend(), build.NewNodeBackend(), build.NewMakeBackend(), build.NewNullBackend()} {
		if b.Name() == forced {
			return b, nil
		}
	}
	return nil, fmt.Errorf("unknown build backend %q", forced)
}

// tail returns the last n bytes of s, for failure details.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// agentSignal mirrors one completion file under signals/wave-N/.
type agentSignal struct {
	Agent string `json:"agent"`
	Done  bool   `json:"done"`
}

// developmentChecks verify every expected agent has signaled done.
func (r *Runner) developmentChecks(wave int) []Check {
	return []Check{{
		Name:     "agent-signals",
		Critical: true,
		Run: func(context.Context) (Status, string) {
			cfg, err := config.Get()
			if err != nil {
				return StatusFail, err.Error()
			}
			var expected []string
			if cfg.Development != nil {
				expected = cfg.Development.ExpectedAgents
			}
			if len(expected) == 0 {
				return StatusSkip, "no expected agents configured"
			}

			done, err := readSignals(checksum.SignalsDir(r.root, wave))
			if err != nil {
				return StatusFail, err.Error()
			}
			var missing []string
			for _, agent := range expected {
				if !done[agent] {
					missing = append(missing, agent)
				}
			}
			if len(missing) > 0 {
				sort.Strings(missing)
				return StatusFail, "agents not done: " + strings.Join(missing, ", ")
			}
			return StatusPass, fmt.Sprintf("%d agents done", len(expected))
		},
	}}
}

func readSignals(dir string) (map[string]bool, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool)
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read signal %s: %w", path, err)
		}
		var sig agentSignal
		if err := json.Unmarshal(data, &sig); err != nil {
			return nil, fmt.Errorf("malformed signal %s: %w", path, err)
		}
		if sig.Agent != "" && sig.Done {
			done[sig.Agent] = true
		}
	}
	return done, nil
}

// qaApproval mirrors qa/wave-N/approval.json.
type qaApproval struct {
	Approved bool   `json:"approved"`
	Approver string `json:"approver"`
}

// qaChecks require an explicit recorded approval.
func (r *Runner) qaChecks(wave int) []Check {
	return []Check{{
		Name:     "qa-approval",
		Critical: true,
		Run: func(context.Context) (Status, string) {
			path := checksum.ApprovalPath(r.root, wave)
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					return StatusFail, "no QA approval recorded"
				}
				return StatusFail, err.Error()
			}
			var approval qaApproval
			if err := json.Unmarshal(data, &approval); err != nil {
				return StatusFail, fmt.Sprintf("malformed approval file: %v", err)
			}
			if !approval.Approved {
				return StatusFail, "QA approval was explicitly rejected"
			}
			if approval.Approver == "" {
				return StatusFail, "approval is missing approver identity"
			}
			if cfg, err := config.Get(); err == nil && cfg.QA != nil && len(cfg.QA.Approvers) > 0 {
				allowed := false
				for _, a := range cfg.QA.Approvers {
					if a == approval.Approver {
						allowed = true
						break
					}
				}
				if !allowed {
					return StatusFail, fmt.Sprintf("approver %q is not in the allowed list", approval.Approver)
				}
			}
			return StatusPass, "approved by " + approval.Approver
		},
	}}
}
