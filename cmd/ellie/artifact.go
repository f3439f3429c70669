package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/ellie/manifest"
	"github.com/chazu/ellie/pkg/bytecode"
)

// artifactPath picks the artifact from the first argument, falling back to
// the manifest entry. The remaining arguments are returned.
func (c *cli) artifactPath(args []string) (string, []string, error) {
	if len(args) > 0 {
		return args[0], args[1:], nil
	}
	if entry := c.m.EntryPath(); entry != "" {
		return entry, nil, nil
	}
	return "", nil, fmt.Errorf("no artifact given and no [project] entry in %s", manifest.FileName)
}

// readArtifact decodes a rendered binary (by its magic) or a CBOR artifact.
// Binaries carry no debug info.
func readArtifact(path string) (*bytecode.Program, *bytecode.DebugInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if bytes.HasPrefix(data, bytecode.BinaryMagic) {
		p, err := bytecode.UnmarshalProgram(data)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		return p, nil, nil
	}
	a, err := bytecode.UnmarshalArtifact(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return a.Program, a.Debug, nil
}

// lockKey is the path recorded in the lock file: relative to the project
// directory when the artifact lives inside it.
func (c *cli) lockKey(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if rel, err := filepath.Rel(c.m.Dir, abs); err == nil && rel != ".." &&
		!strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(rel)
	}
	return abs
}

// load reads the artifact, checks its architecture against the manifest
// and, with -verify, checks it against the lock.
func (c *cli) load(path string) (*bytecode.Program, *bytecode.DebugInfo, error) {
	p, debug, err := readArtifact(path)
	if err != nil {
		return nil, nil, err
	}
	if c.fromFile {
		want, err := c.m.Architecture()
		if err != nil {
			return nil, nil, err
		}
		if p.Arch != want {
			return nil, nil, fmt.Errorf("%s is built for %s but %s wants %s", path, p.Arch, manifest.FileName, want)
		}
	}
	if c.verify {
		lf, err := manifest.ReadLock(c.m.LockFilePath())
		if err != nil {
			return nil, nil, err
		}
		if lf.Find(c.lockKey(path)) == nil {
			return nil, nil, fmt.Errorf("%s is not pinned in %s", path, c.m.LockFilePath())
		}
		if err := lf.Verify(c.lockKey(path), p, debug); err != nil {
			return nil, nil, err
		}
	}
	return p, debug, nil
}
