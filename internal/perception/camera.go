package perception

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Camera returns one JPEG frame per call.
type Camera interface {
	Capture(ctx context.Context) ([]byte, error)
}

// CommandCamera runs a capture command such as
// "fswebcam -q --no-banner -r 1280x720 -". When Output is set the frame is
// read from that file after the command exits, otherwise from stdout.
type CommandCamera struct {
	Command string
	Output  string
}

func (c CommandCamera) Capture(ctx context.Context) ([]byte, error) {
	if c.Command == "" {
		return nil, errors.New("camera: no capture command")
	}
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/c", c.Command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", c.Command)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("camera command: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	if c.Output != "" {
		return readFrame(c.Output)
	}
	if stdout.Len() == 0 {
		return nil, errors.New("camera command produced no image")
	}
	return stdout.Bytes(), nil
}

// FileCamera re-reads a still image that something else keeps up to date.
type FileCamera struct {
	Path string
}

func (c FileCamera) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readFrame(c.Path)
}

func readFrame(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("read frame: %s is empty", path)
	}
	return b, nil
}
