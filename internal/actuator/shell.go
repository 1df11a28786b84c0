// Package actuator drives the physical arm through external commands.
package actuator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"candlebot/internal/mission"
)

const defaultWaitDelay = 2 * time.Second

type ShellConfig struct {
	Commands map[mission.PhaseKind]string
	SafeStop string
	Dir      string
	Env      []string
	// WaitDelay bounds how long a command may linger after the interrupt
	// before it is killed.
	WaitDelay time.Duration
}

// Shell runs one shell command per phase and streams its output into the log
// under the "robot" field.
type Shell struct {
	cfg ShellConfig
	log zerolog.Logger
}

func NewShell(cfg ShellConfig, logger zerolog.Logger) (*Shell, error) {
	for _, kind := range []mission.PhaseKind{mission.PhasePlace, mission.PhaseActivate, mission.PhaseRetract} {
		if strings.TrimSpace(cfg.Commands[kind]) == "" {
			return nil, fmt.Errorf("no command configured for phase %s", kind)
		}
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = defaultWaitDelay
	}
	return &Shell{cfg: cfg, log: logger.With().Str("component", "actuator").Logger()}, nil
}

// Execute runs the command for kind. When ctx is cancelled the process gets
// an interrupt and Execute returns ctx.Err() once it has exited.
func (s *Shell) Execute(ctx context.Context, kind mission.PhaseKind) error {
	line, ok := s.cfg.Commands[kind]
	if !ok {
		return fmt.Errorf("no command configured for phase %s", kind)
	}
	err := s.run(ctx, kind, line)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("%s command failed: %w", kind, err)
	}
	return nil
}

// SafeStop runs the configured safe-stop command, if any.
func (s *Shell) SafeStop(ctx context.Context, kind mission.PhaseKind) error {
	if s.cfg.SafeStop == "" {
		return nil
	}
	if err := s.run(ctx, kind, s.cfg.SafeStop); err != nil {
		return fmt.Errorf("safe stop command failed: %w", err)
	}
	return nil
}

func (s *Shell) run(ctx context.Context, kind mission.PhaseKind, line string) error {
	cmd := shellCommand(ctx, line)
	cmd.Dir = s.cfg.Dir
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	cmd.Env = append(cmd.Env, "CANDLEBOT_PHASE="+string(kind))
	cmd.WaitDelay = s.cfg.WaitDelay
	stopGroup := configureProcess(cmd)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	log := s.log.With().Str("phase", string(kind)).Logger()
	streamed := make(chan struct{})
	go func() {
		defer close(streamed)
		scanner := bufio.NewScanner(pr)
		for scanner.Scan() {
			log.Info().Str("robot", scanner.Text()).Msg("output")
		}
		// Drain so the writer never blocks on a long line.
		_, _ = io.Copy(io.Discard, pr)
	}()

	log.Debug().Str("command", line).Msg("starting command")
	err := cmd.Start()
	if err == nil {
		err = cmd.Wait()
		// Children of the shell may outlive it; nothing from this command
		// keeps moving once a cancelled run returns.
		if ctx.Err() != nil {
			stopGroup()
		}
	}
	pw.Close()
	<-streamed

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		log.Warn().Int("exit_code", exitErr.ExitCode()).Msg("command exited")
	}
	return err
}

func shellCommand(ctx context.Context, line string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/c", line)
	}
	return exec.CommandContext(ctx, "sh", "-c", line)
}
