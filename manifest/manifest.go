// Package manifest handles ellie.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"github.com/tliron/commonlog"

	"github.com/chazu/ellie/pkg/bytecode"
	"github.com/chazu/ellie/vm"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "ellie.toml"

var log = commonlog.GetLogger("ellie.manifest")

// Manifest represents an ellie.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	VM      VMConfig    `toml:"vm"`
	Debug   DebugConfig `toml:"debug"`
	Log     LogConfig   `toml:"log"`

	// Dir is the directory containing the ellie.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
	// Entry is the assembled artifact to run, relative to Dir.
	Entry string `toml:"entry"`
}

// VMConfig sets the target architecture and the thread ceilings. Zero
// ceilings keep the VM defaults.
type VMConfig struct {
	Architecture int `toml:"architecture"`
	CallDepth    int `toml:"call-depth"`
	FrameSlots   int `toml:"frame-slots"`
	StackSlots   int `toml:"stack-slots"`
	ProgramSize  int `toml:"program-size"`
	ObjectSlots  int `toml:"object-slots"`
}

// DebugConfig controls debug info handling.
type DebugConfig struct {
	// Emit attaches source locations to panic reports when the artifact
	// carries debug info.
	Emit bool `toml:"emit"`
	// Format is "text" (the .eig table) or "yaml".
	Format string `toml:"format"`
}

// LogConfig configures the commonlog backend.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the manifest used when no ellie.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.VM.Architecture == 0 {
		m.VM.Architecture = 64
	}
	if m.Debug.Format == "" {
		m.Debug.Format = "text"
	}
}

// Load parses an ellie.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		log.Warningf("%s: unknown key %s", path, key)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	log.Debugf("loaded %s", path)
	return &m, nil
}

// FindAndLoad walks up from startDir to find an ellie.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Validate reports every invalid setting at once.
func (m *Manifest) Validate() error {
	var errs *multierror.Error
	if _, err := bytecode.ParseArchitecture(m.VM.Architecture); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("vm.architecture: %w", err))
	}
	for _, c := range []struct {
		key string
		n   int
	}{
		{"vm.call-depth", m.VM.CallDepth},
		{"vm.frame-slots", m.VM.FrameSlots},
		{"vm.stack-slots", m.VM.StackSlots},
		{"vm.program-size", m.VM.ProgramSize},
		{"vm.object-slots", m.VM.ObjectSlots},
	} {
		if c.n < 0 {
			errs = multierror.Append(errs, fmt.Errorf("%s: must not be negative, got %d", c.key, c.n))
		}
	}
	switch m.Debug.Format {
	case "text", "yaml":
	default:
		errs = multierror.Append(errs, fmt.Errorf("debug.format: want text or yaml, got %q", m.Debug.Format))
	}
	if m.Log.Verbosity < 0 {
		errs = multierror.Append(errs, fmt.Errorf("log.verbosity: must not be negative, got %d", m.Log.Verbosity))
	}
	return errs.ErrorOrNil()
}

// Architecture returns the configured target architecture.
func (m *Manifest) Architecture() (bytecode.Architecture, error) {
	return bytecode.ParseArchitecture(m.VM.Architecture)
}

// Limits returns the VM defaults overridden by the non-zero [vm] ceilings.
func (m *Manifest) Limits() vm.Limits {
	l := vm.DefaultLimits()
	if m.VM.CallDepth > 0 {
		l.CallDepth = m.VM.CallDepth
	}
	if m.VM.FrameSlots > 0 {
		l.FrameSlots = m.VM.FrameSlots
	}
	if m.VM.StackSlots > 0 {
		l.StackSlots = m.VM.StackSlots
	}
	if m.VM.ProgramSize > 0 {
		l.ProgramSize = m.VM.ProgramSize
	}
	if m.VM.ObjectSlots > 0 {
		l.ObjectSlots = m.VM.ObjectSlots
	}
	return l
}

// EntryPath returns the absolute path of the entry artifact, or "" when no
// entry is configured.
func (m *Manifest) EntryPath() string {
	if m.Project.Entry == "" {
		return ""
	}
	if filepath.IsAbs(m.Project.Entry) {
		return m.Project.Entry
	}
	return filepath.Join(m.Dir, m.Project.Entry)
}

// LogFilePath returns the log file path resolved against Dir, or "" for
// stderr.
func (m *Manifest) LogFilePath() string {
	if m.Log.File == "" || filepath.IsAbs(m.Log.File) {
		return m.Log.File
	}
	return filepath.Join(m.Dir, m.Log.File)
}

// LockFilePath returns the path to .ellie/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".ellie", "lock.toml")
}
