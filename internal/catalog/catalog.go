// Package catalog loads the compiler catalog from its on-disk YAML
// form into an internal/compiler.Registry, and watches the file for
// changes so an operator can add or update compilers without a restart.
package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/wandbox-go/cattleshed/internal/compiler"
)

// switchDoc and traitDoc mirror the on-disk YAML shape; SwitchOrder is
// taken from the order of the switches sequence in the file — traitDoc
// keeps switches as an ordered slice instead of a map so that order
// survives decoding.
type switchDoc struct {
	Name  string   `yaml:"name"`
	Flags []string `yaml:"flags"`
}

type traitDoc struct {
	Name           string                  `yaml:"name"`
	Language       string                  `yaml:"language"`
	DisplayName    string                  `yaml:"display_name"`
	CompileCommand []string                `yaml:"compile_command"`
	RunCommand     []string                `yaml:"run_command"`
	SourceSuffix   string                  `yaml:"source_suffix"`
	VersionCommand []string                `yaml:"version_command"`
	Displayable    bool                    `yaml:"displayable"`
	Switches       []switchDoc             `yaml:"switches"`
	Limits         compiler.ResourceLimits `yaml:"limits"`
}

type document struct {
	Compilers []traitDoc `yaml:"compilers"`
}

// toTraits converts the on-disk doc into CompilerTrait values, backfilling
// a trait's zero-valued Limits with defaultLimits (a trait that sets its
// own limits keeps them untouched).
func toTraits(doc document, defaultLimits compiler.ResourceLimits) []compiler.CompilerTrait {
	traits := make([]compiler.CompilerTrait, 0, len(doc.Compilers))
	for _, td := range doc.Compilers {
		switches := make(map[string]compiler.Switch, len(td.Switches))
		order := make([]string, 0, len(td.Switches))
		for _, sw := range td.Switches {
			switches[sw.Name] = compiler.Switch{Flags: sw.Flags}
			order = append(order, sw.Name)
		}
		limits := td.Limits
		if limits == (compiler.ResourceLimits{}) {
			limits = defaultLimits
		}
		traits = append(traits, compiler.CompilerTrait{
			Name:           td.Name,
			Language:       td.Language,
			DisplayName:    td.DisplayName,
			CompileCommand: td.CompileCommand,
			RunCommand:     td.RunCommand,
			SourceSuffix:   td.SourceSuffix,
			VersionCommand: td.VersionCommand,
			Displayable:    td.Displayable,
			Switches:       switches,
			SwitchOrder:    order,
			Limits:         limits,
		})
	}
	return traits
}

// Load reads and parses the YAML catalog at path into a fresh
// *compiler.StaticRegistry, backfilling defaultLimits onto any trait
// that does not set its own limits.
func Load(path string, defaultLimits compiler.ResourceLimits) (*compiler.StaticRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return compiler.NewStaticRegistry(toTraits(doc, defaultLimits)), nil
}

// Watcher holds the currently active registry and hot-swaps it whenever
// the backing file changes. It implements compiler.Registry by always
// delegating to the current snapshot, so Session callers never observe
// a reload — they just see traits update between lookups.
type Watcher struct {
	path          string
	defaultLimits compiler.ResourceLimits
	log           *slog.Logger
	current       atomic.Pointer[compiler.StaticRegistry]
}

// NewWatcher loads path once and begins watching it, reloading on write
// and create events; other events (such as a rename) do not reload.
// Reload errors are logged and the previous registry is kept in place.
// defaultLimits is reapplied on every (re)load, per Load.
func NewWatcher(path string, defaultLimits compiler.ResourceLimits, log *slog.Logger) (*Watcher, error) {
	reg, err := Load(path, defaultLimits)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, defaultLimits: defaultLimits, log: log}
	w.current.Store(reg)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("catalog: new watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("catalog: watch %s: %w", path, err)
	}
	go w.loop(fsw)
	return w, nil
}

func (w *Watcher) loop(fsw *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.reload()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("catalog watch error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	reg, err := Load(w.path, w.defaultLimits)
	if err != nil {
		w.log.Warn("catalog reload failed, keeping previous registry", "error", err)
		return
	}
	w.current.Store(reg)
	w.log.Info("catalog reloaded", "path", w.path)
}

func (w *Watcher) Lookup(name string) (compiler.CompilerTrait, error) {
	return w.current.Load().Lookup(name)
}

func (w *Watcher) Displayable() []compiler.CompilerTrait {
	return w.current.Load().Displayable()
}
