package manifest

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/ellie/pkg/bytecode"
)

// LockFile pins the digests of assembled artifacts so a host can refuse to
// run one that changed since it was recorded.
type LockFile struct {
	Artifacts []LockedArtifact `toml:"artifact"`
}

// LockedArtifact is one pinned artifact. Path is relative to the project
// directory.
type LockedArtifact struct {
	Path         string `toml:"path"`
	Digest       string `toml:"digest"`
	Architecture int    `toml:"architecture"`
}

// ReadLock parses a lock file. A missing file is not an error: it returns
// nil, nil.
func ReadLock(path string) (*LockFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var lf LockFile
	if err := toml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return &lf, nil
}

// WriteLock writes lf to path, creating its directory. Entries are sorted by
// path.
func WriteLock(path string, lf *LockFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	slices.SortFunc(lf.Artifacts, func(a, b LockedArtifact) int { return strings.Compare(a.Path, b.Path) })

	var sb strings.Builder
	sb.WriteString("# Generated by ellie lock. Do not edit.\n\n")
	if err := toml.NewEncoder(&sb).Encode(lf); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

// Find returns the entry for path, or nil.
func (lf *LockFile) Find(path string) *LockedArtifact {
	if lf == nil {
		return nil
	}
	for i := range lf.Artifacts {
		if lf.Artifacts[i].Path == path {
			return &lf.Artifacts[i]
		}
	}
	return nil
}

// Pin records the digest of p and debug under path, replacing an older
// entry.
func (lf *LockFile) Pin(path string, p *bytecode.Program, debug *bytecode.DebugInfo) (*LockedArtifact, error) {
	sum, err := bytecode.ArtifactDigest(p, debug)
	if err != nil {
		return nil, err
	}
	entry := LockedArtifact{Path: path, Digest: hex.EncodeToString(sum[:]), Architecture: int(p.Arch)}
	if old := lf.Find(path); old != nil {
		*old = entry
		return old, nil
	}
	lf.Artifacts = append(lf.Artifacts, entry)
	return &lf.Artifacts[len(lf.Artifacts)-1], nil
}

// Verify checks p and debug against the entry for path. An unpinned path
// passes.
func (lf *LockFile) Verify(path string, p *bytecode.Program, debug *bytecode.DebugInfo) error {
	entry := lf.Find(path)
	if entry == nil {
		return nil
	}
	sum, err := bytecode.ArtifactDigest(p, debug)
	if err != nil {
		return err
	}
	if got := hex.EncodeToString(sum[:]); got != entry.Digest {
		return fmt.Errorf("%s: digest %s does not match the locked %s", path, got[:12], shorten(entry.Digest))
	}
	if int(p.Arch) != entry.Architecture {
		return fmt.Errorf("%s: architecture %s does not match the locked b%d", path, p.Arch, entry.Architecture)
	}
	return nil
}

func shorten(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
