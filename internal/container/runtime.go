// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package container runs the external tools used for OCR (pdftoppm and
// tesseract) and container-image text backends. Tools run either from PATH
// or inside a docker/podman image with the working directory mounted.
package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// WorkMount is where a Toolchain mounts its working directory inside an
// image.
const WorkMount = "/work"

// Job describes one container invocation. Empty Mount fields mount nothing;
// Args follow the image name on the command line.
type Job struct {
	Image     string
	MountHost string
	Args      []string
}

// Runtime runs jobs with docker or podman.
type Runtime interface {
	// Name is the runtime binary, "docker" or "podman".
	Name() string

	// ImageExists fails when image is not present locally.
	ImageExists(image string) error

	// Run executes job, piping stdin into the container and its stdout
	// into stdout.
	Run(ctx context.Context, job Job, stdin io.Reader, stdout io.Writer) error
}

// command is one process invocation handed to a shell.
type command struct {
	dir    string
	name   string
	args   []string
	stdin  io.Reader
	stdout io.Writer
}

func (c command) String() string {
	return strings.TrimSpace(c.name + " " + strings.Join(c.args, " "))
}

// shell starts processes. Tests replace it.
type shell interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, c command) error
}

type osShell struct{}

func (osShell) LookPath(file string) (string, error) { return exec.LookPath(file) }

// Run folds the process's stderr into the returned error.
func (osShell) Run(ctx context.Context, c command) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	cmd.Dir = c.dir
	cmd.Stdin = c.stdin
	cmd.Stdout = c.stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return fmt.Errorf("%w: %s", err, msg)
	}
	return err
}

var hostShell shell = osShell{}

// engine is a container CLI. Docker and podman differ only in how they
// answer "is this image here".
type engine struct {
	bin        string
	imageProbe []string
	sh         shell
}

// engines lists the supported CLIs in order of preference.
var engines = []struct {
	bin        string
	imageProbe []string
}{
	{"docker", []string{"image", "inspect"}},
	{"podman", []string{"image", "exists"}},
}

func newEngine(sh shell, bin string) *engine {
	for _, e := range engines {
		if e.bin == bin {
			return &engine{bin: e.bin, imageProbe: e.imageProbe, sh: sh}
		}
	}
	return nil
}

func (e *engine) Name() string { return e.bin }

func (e *engine) usable() bool {
	if _, err := e.sh.LookPath(e.bin); err != nil {
		return false
	}
	return e.sh.Run(context.Background(), command{name: e.bin, args: []string{"info"}, stdout: io.Discard}) == nil
}

func (e *engine) ImageExists(image string) error {
	probe := command{name: e.bin, args: append(append([]string(nil), e.imageProbe...), image), stdout: io.Discard}
	if err := e.sh.Run(context.Background(), probe); err != nil {
		return fmt.Errorf("image %s not found in %s: %w", image, e.bin, err)
	}
	return nil
}

func (e *engine) Run(ctx context.Context, job Job, stdin io.Reader, stdout io.Writer) error {
	args := []string{"run", "--rm", "-i"}
	if job.MountHost != "" {
		args = append(args, "-v", job.MountHost+":"+WorkMount, "-w", WorkMount)
	}
	args = append(args, job.Image)
	args = append(args, job.Args...)

	c := command{name: e.bin, args: args, stdin: stdin, stdout: stdout}
	if err := e.sh.Run(ctx, c); err != nil {
		return fmt.Errorf("%s container %s: %w", e.bin, job.Image, err)
	}
	return nil
}

// DetectRuntime returns the first usable engine, docker before podman.
func DetectRuntime() (Runtime, error) {
	return detectRuntime(hostShell)
}

func detectRuntime(sh shell) (Runtime, error) {
	names := make([]string, 0, len(engines))
	for _, e := range engines {
		if eng := newEngine(sh, e.bin); eng.usable() {
			return eng, nil
		}
		names = append(names, e.bin)
	}
	return nil, fmt.Errorf("no container runtime available: tried %s", strings.Join(names, ", "))
}
