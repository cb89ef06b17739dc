// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package container

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeShell answers LookPath from onPath. Commands listed in succeed
// return nil; anything else goes to handle, or fails when handle is nil.
type fakeShell struct {
	onPath  []string
	succeed []string
	handle  func(c command) error
	calls   []command
}

func (f *fakeShell) LookPath(file string) (string, error) {
	for _, p := range f.onPath {
		if p == file {
			return "/usr/bin/" + file, nil
		}
	}
	return "", errors.New("not found: " + file)
}

func (f *fakeShell) Run(_ context.Context, c command) error {
	f.calls = append(f.calls, c)
	for _, s := range f.succeed {
		if s == c.String() {
			return nil
		}
	}
	if f.handle != nil {
		return f.handle(c)
	}
	return errors.New("exit status 1")
}

func TestDetectRuntimePrefersDocker(t *testing.T) {
	tests := []struct {
		name    string
		sh      *fakeShell
		want    string
		wantErr bool
	}{
		{"docker", &fakeShell{onPath: []string{"docker"}, succeed: []string{"docker info"}}, "docker", false},
		{"podman only", &fakeShell{onPath: []string{"podman"}, succeed: []string{"podman info"}}, "podman", false},
		{"docker daemon down", &fakeShell{onPath: []string{"docker", "podman"}, succeed: []string{"podman info"}}, "podman", false},
		{"both", &fakeShell{onPath: []string{"docker", "podman"}, succeed: []string{"docker info", "podman info"}}, "docker", false},
		{"podman binary missing", &fakeShell{succeed: []string{"podman info"}}, "", true},
		{"none", &fakeShell{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, err := detectRuntime(tt.sh)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "tried docker, podman")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rt.Name())
		})
	}
}

func TestImageExistsUsesEngineProbe(t *testing.T) {
	docker := newEngine(&fakeShell{succeed: []string{"docker image inspect slr-ocr:latest"}}, "docker")
	assert.NoError(t, docker.ImageExists("slr-ocr:latest"))

	podman := newEngine(&fakeShell{succeed: []string{"podman image exists slr-ocr:latest"}}, "podman")
	assert.NoError(t, podman.ImageExists("slr-ocr:latest"))

	err := newEngine(&fakeShell{}, "podman").ImageExists("slr-ocr:latest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slr-ocr:latest")
	assert.Contains(t, err.Error(), "podman")
}

func TestNewEngineUnknownBinary(t *testing.T) {
	assert.Nil(t, newEngine(&fakeShell{}, "nerdctl"))
}

func TestEngineRunCommandLine(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		want string
	}{
		{
			name: "stdin only",
			job:  Job{Image: "markitdown:latest"},
			want: "docker run --rm -i markitdown:latest",
		},
		{
			name: "mounted work dir",
			job:  Job{Image: "slr-ocr:latest", MountHost: "/tmp/ocr", Args: []string{"tesseract", "page-1.png", "stdout"}},
			want: "docker run --rm -i -v /tmp/ocr:/work -w /work slr-ocr:latest tesseract page-1.png stdout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sh := &fakeShell{handle: func(command) error { return nil }}
			require.NoError(t, newEngine(sh, "docker").Run(context.Background(), tt.job, nil, io.Discard))
			require.Len(t, sh.calls, 1)
			assert.Equal(t, tt.want, sh.calls[0].String())
		})
	}
}

func TestEngineRunPipesStreams(t *testing.T) {
	sh := &fakeShell{handle: func(c command) error {
		data, err := io.ReadAll(c.stdin)
		if err != nil {
			return err
		}
		_, err = c.stdout.Write([]byte("text of " + string(data)))
		return err
	}}
	var out bytes.Buffer
	err := newEngine(sh, "podman").Run(context.Background(), Job{Image: "markitdown:latest"}, strings.NewReader("paper.pdf"), &out)
	require.NoError(t, err)
	assert.Equal(t, "text of paper.pdf", out.String())
}

func TestEngineRunWrapsFailure(t *testing.T) {
	sh := &fakeShell{handle: func(command) error { return errors.New("exit status 125") }}
	err := newEngine(sh, "docker").Run(context.Background(), Job{Image: "slr-ocr:latest"}, nil, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docker container slr-ocr:latest")
	assert.Contains(t, err.Error(), "exit status 125")
}

func TestDetectToolchain(t *testing.T) {
	tools := []string{"pdftoppm", "tesseract"}
	tests := []struct {
		name     string
		sh       *fakeShell
		image    string
		wantName string
		wantErr  string
	}{
		{
			name:     "native",
			sh:       &fakeShell{onPath: []string{"pdftoppm", "tesseract"}},
			image:    "slr-ocr:latest",
			wantName: "native",
		},
		{
			name: "image fallback",
			sh: &fakeShell{
				onPath:  []string{"pdftoppm", "docker"},
				succeed: []string{"docker info", "docker image inspect slr-ocr:latest"},
			},
			image:    "slr-ocr:latest",
			wantName: "docker",
		},
		{
			name:    "fallback disabled",
			sh:      &fakeShell{onPath: []string{"pdftoppm"}},
			wantErr: "tools not on PATH: tesseract",
		},
		{
			name: "image not pulled",
			sh: &fakeShell{
				onPath:  []string{"podman"},
				succeed: []string{"podman info"},
			},
			image:   "slr-ocr:latest",
			wantErr: "image slr-ocr:latest not found in podman",
		},
		{
			name:    "no runtime",
			sh:      &fakeShell{},
			image:   "slr-ocr:latest",
			wantErr: "no container runtime available",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, err := detectToolchain(tt.sh, tools, tt.image)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, tc.Name())
		})
	}
}

func TestNativeToolchainRunsInWorkDir(t *testing.T) {
	sh := &fakeShell{handle: func(c command) error {
		_, err := c.stdout.Write([]byte(c.String()))
		return err
	}}
	var out bytes.Buffer
	tc := &nativeToolchain{sh: sh}
	require.NoError(t, tc.Run(context.Background(), "/tmp/ocr", "tesseract", []string{"page-1.png", "stdout"}, &out))

	require.Len(t, sh.calls, 1)
	assert.Equal(t, "/tmp/ocr", sh.calls[0].dir)
	assert.Equal(t, "tesseract page-1.png stdout", out.String())
}

func TestImageToolchainMountsWorkDir(t *testing.T) {
	sh := &fakeShell{handle: func(command) error { return nil }}
	tc := &imageToolchain{rt: newEngine(sh, "podman"), image: "slr-ocr:latest"}
	require.NoError(t, tc.Run(context.Background(), "/tmp/ocr", "pdftoppm", []string{"-r", "300", "in.pdf", "page"}, io.Discard))

	require.Len(t, sh.calls, 1)
	assert.Equal(t, "podman run --rm -i -v /tmp/ocr:/work -w /work slr-ocr:latest pdftoppm -r 300 in.pdf page", sh.calls[0].String())
	assert.Equal(t, "podman", tc.Name())
}
