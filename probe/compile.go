package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"
)

const (
	// DefaultTimeoutSeconds bounds a compilation check when the caller gives none.
	DefaultTimeoutSeconds = 300
	// DefaultCommand is the compiler-feedback executable resolved from PATH.
	DefaultCommand = "ghcid"
	// DefaultKillGrace is how long Wait keeps draining output after the
	// process is gone or killed.
	DefaultKillGrace = 2 * time.Second

	messageCompileSuccess = "Compilation successful - no errors found"
	messageCompileFailure = "Compilation failed - errors detected"
)

// DefaultArgs loads the project into a REPL session once.
var DefaultArgs = []string{"-c", "cabal repl"}

// CompileCheckResult is the outcome of one feedback process run that exited
// on its own before the deadline.
type CompileCheckResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

// ProberConfig configures a Prober.
type ProberConfig struct {
	Command string
	Args    []string
	Env     map[string]string

	// DefaultTimeoutSeconds applies when Check receives a non-positive timeout.
	DefaultTimeoutSeconds int
	// KillGrace bounds output draining after exit or termination.
	KillGrace time.Duration
	// CollapseLocatorErrors reports every locator failure as NO_MANIFEST
	// instead of propagating its own code.
	CollapseLocatorErrors bool

	Locator *Locator
	Logger  *slog.Logger
}

// Prober runs the compiler-feedback process against a project directory.
type Prober struct {
	command        string
	args           []string
	env            map[string]string
	defaultTimeout int
	killGrace      time.Duration
	collapse       bool
	locator        *Locator
	logger         *slog.Logger
}

// NewProber creates a prober from config.
func NewProber(cfg ProberConfig) (*Prober, error) {
	command := strings.TrimSpace(cfg.Command)
	if command == "" {
		return nil, errors.New("probe: feedback command is required")
	}
	args := cfg.Args
	if args == nil {
		args = DefaultArgs
	}
	defaultTimeout := cfg.DefaultTimeoutSeconds
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeoutSeconds
	}
	killGrace := cfg.KillGrace
	if killGrace <= 0 {
		killGrace = DefaultKillGrace
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	locator := cfg.Locator
	if locator == nil {
		locator = NewLocator(LocatorConfig{Logger: logger})
	}

	return &Prober{
		command:        command,
		args:           slices.Clone(args),
		env:            cfg.Env,
		defaultTimeout: defaultTimeout,
		killGrace:      killGrace,
		collapse:       cfg.CollapseLocatorErrors,
		locator:        locator,
		logger:         logger,
	}, nil
}

// Locator returns the locator used for precondition checks.
func (p *Prober) Locator() *Locator {
	return p.locator
}

// DefaultTimeout returns the timeout applied to calls that give none.
func (p *Prober) DefaultTimeout() int {
	return p.defaultTimeout
}

// Check locates the manifest under path and runs the feedback process there,
// bounded by timeoutSeconds (the configured default when <= 0). A process
// that exits on its own yields a result whether or not it succeeded; every
// other outcome is a *ProbeError. The process never outlives the call.
func (p *Prober) Check(ctx context.Context, path string, timeoutSeconds int) (CompileCheckResult, error) {
	if timeoutSeconds <= 0 {
		timeoutSeconds = p.defaultTimeout
	}

	start := time.Now()
	result, manifest, err := p.check(ctx, path, timeoutSeconds)

	observation := CheckObservation{
		Path:           path,
		ManifestPath:   manifest,
		Command:        p.commandLine(),
		TimeoutSeconds: timeoutSeconds,
		DurationMS:     elapsedMS(start),
		Success:        err == nil && result.Success,
		ErrorCode:      ErrorCode(err),
		StartedAt:      start.UTC(),
	}
	if err != nil {
		observation.Message = err.Error()
	} else {
		observation.Message = result.Message
		observation.ExitCode = result.ExitCode
	}
	emitCheckObservation(observation)

	if err != nil {
		return CompileCheckResult{}, err
	}
	return result, nil
}

func (p *Prober) check(ctx context.Context, path string, timeoutSeconds int) (CompileCheckResult, string, error) {
	if err := statExists(path); err != nil {
		p.logger.Debug("compilation check rejected", "path", path, "error", err)
		return CompileCheckResult{}, "", err
	}

	// Reported through the check observation only.
	located, _, err := p.locator.locate(ctx, path)
	if err != nil {
		if p.collapse || HasCode(err, ErrorCodeNoManifest) {
			return CompileCheckResult{}, "", newNoManifest(path)
		}
		return CompileCheckResult{}, "", err
	}

	result, err := p.run(ctx, path, timeoutSeconds)
	return result, located.ManifestPath, err
}

func (p *Prober) run(parent context.Context, dir string, timeoutSeconds int) (CompileCheckResult, error) {
	runCtx, cancel := context.WithTimeout(parent, time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	// #nosec G204 -- command/args come from operator configuration, not the client.
	cmd := exec.CommandContext(runCtx, p.command, p.args...)
	cmd.Dir = dir
	if len(p.env) > 0 {
		cmd.Env = append(os.Environ(), flattenEnv(p.env)...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = p.killGrace
	configureProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		p.logger.Error("feedback process launch failed",
			"command", p.commandLine(),
			"dir", dir,
			"error", err,
		)
		return CompileCheckResult{}, newIOError(fmt.Errorf("launch %s: %w", p.command, err))
	}
	// Reap anything the process left in its group, whichever way we leave.
	defer func() {
		_ = killProcessGroup(cmd.Process)
	}()

	p.logger.Info("feedback process started",
		"command", p.commandLine(),
		"dir", dir,
		"pid", cmd.Process.Pid,
		"timeout_seconds", timeoutSeconds,
	)

	waitErr := cmd.Wait()
	if waitErr != nil && runCtx.Err() != nil {
		if parentErr := parent.Err(); parentErr != nil {
			p.logger.Warn("feedback process abandoned by caller",
				"dir", dir,
				"pid", cmd.Process.Pid,
				"error", parentErr,
			)
			return CompileCheckResult{}, newIOError(parentErr)
		}
		p.logger.Warn("feedback process timed out",
			"dir", dir,
			"pid", cmd.Process.Pid,
			"timeout_seconds", timeoutSeconds,
		)
		return CompileCheckResult{}, newTimeout(timeoutSeconds, runCtx.Err())
	}

	if errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success() {
		// The process exited cleanly; a leftover child kept its output open.
		p.logger.Warn("feedback process output held open after exit",
			"dir", dir,
			"pid", cmd.Process.Pid,
		)
		waitErr = nil
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		p.logger.Error("feedback process output could not be collected",
			"dir", dir,
			"pid", cmd.Process.Pid,
			"error", waitErr,
		)
		return CompileCheckResult{}, newIOError(waitErr)
	}

	result := CompileCheckResult{
		Success: waitErr == nil,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	if code := cmd.ProcessState.ExitCode(); code >= 0 {
		result.ExitCode = &code
	}
	if result.Success {
		result.Message = messageCompileSuccess
	} else {
		result.Message = messageCompileFailure
	}

	p.logger.Info("feedback process exited",
		"dir", dir,
		"pid", cmd.Process.Pid,
		"success", result.Success,
		"exit_code", cmd.ProcessState.ExitCode(),
	)
	return result, nil
}

func (p *Prober) commandLine() string {
	parts := make([]string, 0, len(p.args)+1)
	parts = append(parts, p.command)
	for _, arg := range p.args {
		if strings.ContainsAny(arg, " \t") {
			arg = fmt.Sprintf("%q", arg)
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}

func flattenEnv(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	out := make([]string, 0, len(values))
	for _, key := range keys {
		out = append(out, key+"="+values[key])
	}
	return out
}
