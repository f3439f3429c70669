package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/ellie/manifest"
	"github.com/chazu/ellie/pkg/bytecode"
	"github.com/chazu/ellie/vm"
)

// handleRun processes the `ellie run` subcommand.
// Usage:
//
//	ellie run app.eia                  # run main; an int result is the exit code
//	ellie -call 1234 run app.eia 3 4   # call a function by hash
func (c *cli) handleRun(ctx context.Context, args []string) error {
	path, rest, err := c.artifactPath(args)
	if err != nil {
		return err
	}
	p, debug, err := c.load(path)
	if err != nil {
		return err
	}
	iso, err := newIsolate(c)
	if err != nil {
		return err
	}
	lp, err := iso.Load(p)
	if err != nil {
		return err
	}
	th, err := iso.NewThread(lp)
	if err != nil {
		return err
	}
	defer th.Close()

	if c.call != "" {
		h, err := strconv.ParseUint(c.call, 0, 64)
		if err != nil {
			return fmt.Errorf("-call: %w", err)
		}
		vals := make([]bytecode.Value, len(rest))
		for i, a := range rest {
			vals[i] = parseArg(a)
		}
		if err := th.PrepareCall(h, vals...); err != nil {
			return err
		}
	} else if err := th.PrepareMain(); err != nil {
		return err
	}

	if c.trace {
		th.SetTrace(func(frame *vm.Stack, in bytecode.Instruction) {
			fmt.Fprintf(c.stderr, "%s %s\n", faint(fmt.Sprintf("%5d %08x", frame.Pos, frame.ID)), in)
		})
	}

	v, err := th.Run(ctx)
	if err != nil {
		if th.Panic() != nil {
			c.reportPanic(th.Panic(), debug)
			return exitError{code: 3}
		}
		return err
	}
	stats := th.Stats()
	log.Infof("%s: %d steps, %d calls", path, stats.Steps, stats.Pushes-1)

	if !v.IsVoid() {
		fmt.Fprintln(c.stdout, v)
	}
	if n, ok := v.AsInt(); ok && c.call == "" && n != 0 {
		return exitError{code: int(n & 0xff)}
	}
	return nil
}

// parseArg reads a command line argument as the narrowest scalar it spells.
func parseArg(s string) bytecode.Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return bytecode.Int(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return bytecode.Double(f)
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return bytecode.Bool(b)
	}
	return bytecode.String(s)
}

func (c *cli) reportPanic(p *vm.ExecuterPanic, debug *bytecode.DebugInfo) {
	fmt.Fprintf(c.stderr, "%s %s\n", red("panic:"), p)
	if c.m.Debug.Emit {
		if loc := locate(debug, p.Pos); loc != "" {
			fmt.Fprintf(c.stderr, "  at %s\n", loc)
		}
	}
	if p.CodeLocation != "" {
		fmt.Fprintf(c.stderr, "  %s\n", faint("raised by "+p.CodeLocation))
	}
}

// locate names the innermost routine or class covering pos.
func locate(debug *bytecode.DebugInfo, pos int) string {
	for _, h := range debug.At(pos) {
		switch h.Kind {
		case bytecode.DebugVariable, bytecode.DebugParameter, bytecode.DebugSelf:
			continue
		}
		return fmt.Sprintf("%s:%d:%d in %s %s", h.Module, h.Pos.StartLine, h.Pos.StartCol, h.Kind, h.Name)
	}
	return ""
}

// handleDis processes the `ellie dis` subcommand.
func (c *cli) handleDis(args []string) error {
	path, _, err := c.artifactPath(args)
	if err != nil {
		return err
	}
	p, debug, err := c.load(path)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(c.stdout, p.DisassembleWith(debug))
	return err
}

// handleDebugInfo processes the `ellie debug-info` subcommand.
func (c *cli) handleDebugInfo(args []string) error {
	path, _, err := c.artifactPath(args)
	if err != nil {
		return err
	}
	_, debug, err := c.load(path)
	if err != nil {
		return err
	}
	if debug == nil {
		return fmt.Errorf("%s carries no debug info", path)
	}
	switch c.format {
	case "yaml":
		return debug.WriteYAML(c.stdout)
	case "text", "":
		_, err := fmt.Fprint(c.stdout, debug.Render())
		return err
	}
	return fmt.Errorf("unknown debug-info format %q", c.format)
}

// handleDebug processes the `ellie debug` subcommand. It runs main, and at
// every -break function prints the stack before continuing.
func (c *cli) handleDebug(ctx context.Context, args []string) error {
	path, _, err := c.artifactPath(args)
	if err != nil {
		return err
	}
	p, debug, err := c.load(path)
	if err != nil {
		return err
	}
	iso, err := newIsolate(c)
	if err != nil {
		return err
	}
	d := vm.NewDebugger(iso)
	if err := d.Load(p, debug); err != nil {
		return err
	}
	defer d.Thread().Close()
	for _, name := range c.breaks {
		loc, err := d.BreakAtFunction(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "%s %s at %d\n", yellow("breakpoint"), name, loc)
	}

	v, err := d.Run(ctx)
	for {
		c.printEvents(d)
		if d.Thread().State() != vm.AtBreakpoint {
			break
		}
		c.printStack(d.InspectStack())
		v, err = d.Continue(ctx)
	}
	var panicked *vm.ExecuterPanic
	if errors.As(err, &panicked) {
		c.reportPanic(panicked, debug)
		return exitError{code: 3}
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s %s\n", green("result"), v)
	return nil
}

func (c *cli) printEvents(d *vm.Debugger) {
	for {
		select {
		case ev := <-d.Events():
			line := fmt.Sprintf("%s %s at %d", ev.Type, ev.Reason, ev.Pos)
			if ev.Location != nil {
				line += fmt.Sprintf(" (%s:%d %s)", ev.Location.Module, ev.Location.Line, ev.Location.Function)
			}
			if ev.Type == "exception" {
				line = red(line)
			}
			fmt.Fprintln(c.stdout, line)
		default:
			return
		}
	}
}

func (c *cli) printStack(frames []vm.StackFrame) {
	for _, f := range frames {
		name := fmt.Sprintf("%08x", f.ID)
		if f.Location != nil {
			name = f.Location.Function
		}
		fmt.Fprintf(c.stdout, "  #%d %s pos=%d\n", f.Depth, name, f.Pos)
		for _, group := range [][]vm.Variable{f.Args, f.Locals} {
			if len(group) == 0 {
				continue
			}
			parts := make([]string, len(group))
			for i, v := range group {
				parts[i] = fmt.Sprintf("%s=%s", v.Name, v.Value)
			}
			fmt.Fprintf(c.stdout, "     %s\n", strings.Join(parts, " "))
		}
	}
}

// handleLock processes the `ellie lock` subcommand.
func (c *cli) handleLock(args []string) error {
	path, _, err := c.artifactPath(args)
	if err != nil {
		return err
	}
	p, debug, err := readArtifact(path)
	if err != nil {
		return err
	}
	lf, err := manifest.ReadLock(c.m.LockFilePath())
	if err != nil {
		return err
	}
	if lf == nil {
		lf = &manifest.LockFile{}
	}
	entry, err := lf.Pin(c.lockKey(path), p, debug)
	if err != nil {
		return err
	}
	if err := manifest.WriteLock(c.m.LockFilePath(), lf); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s %s %s\n", green("locked"), entry.Path, entry.Digest[:12])
	return nil
}
