// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package container

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Toolchain runs a named command-line tool inside a working directory.
// File arguments are relative to that directory so the same call works
// natively and inside an image.
type Toolchain interface {
	// Name is "native" or the container runtime name.
	Name() string

	Run(ctx context.Context, workDir, tool string, args []string, stdout io.Writer) error
}

type nativeToolchain struct {
	sh shell
}

func (n *nativeToolchain) Name() string { return "native" }

func (n *nativeToolchain) Run(ctx context.Context, workDir, tool string, args []string, stdout io.Writer) error {
	if err := n.sh.Run(ctx, command{dir: workDir, name: tool, args: args, stdout: stdout}); err != nil {
		return fmt.Errorf("running %s: %w", tool, err)
	}
	return nil
}

type imageToolchain struct {
	rt    Runtime
	image string
}

func (c *imageToolchain) Name() string { return c.rt.Name() }

func (c *imageToolchain) Run(ctx context.Context, workDir, tool string, args []string, stdout io.Writer) error {
	job := Job{Image: c.image, MountHost: workDir, Args: append([]string{tool}, args...)}
	return c.rt.Run(ctx, job, nil, stdout)
}

// DetectToolchain returns a native toolchain when every tool is on PATH.
// Otherwise it falls back to running image with docker or podman. An empty
// image disables the fallback.
func DetectToolchain(tools []string, image string) (Toolchain, error) {
	return detectToolchain(hostShell, tools, image)
}

func detectToolchain(sh shell, tools []string, image string) (Toolchain, error) {
	var missing []string
	for _, tool := range tools {
		if _, err := sh.LookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if len(missing) == 0 {
		return &nativeToolchain{sh: sh}, nil
	}
	if image == "" {
		return nil, fmt.Errorf("tools not on PATH: %s", strings.Join(missing, ", "))
	}

	rt, err := detectRuntime(sh)
	if err != nil {
		return nil, fmt.Errorf("tools not on PATH (%s): %w", strings.Join(missing, ", "), err)
	}
	if err := rt.ImageExists(image); err != nil {
		return nil, err
	}
	return &imageToolchain{rt: rt, image: image}, nil
}
