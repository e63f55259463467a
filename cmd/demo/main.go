// Command demo runs a small end-to-end session: compile a patch, execute
// a handful of frames, hot-swap in a resized patch without losing
// animation state, and print a per-block table of the compiled program's
// debug index (block, label, value slots) to the terminal.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sarchlab/akita/v4/monitoring"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"

	"github.com/fieldgraph/engine/eventbus"
	"github.com/fieldgraph/engine/patchfixture"
	"github.com/fieldgraph/engine/registry"
	"github.com/fieldgraph/engine/registry/stdblocks"
	"github.com/fieldgraph/engine/session"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	reg := registry.New()
	stdblocks.Register(reg)

	monitor := monitoring.NewMonitor()

	sess, err := session.NewBuilder().
		WithRegistry(reg).
		WithOps(stdblocks.Ops()).
		WithFreq(60 * sim.Hz).
		WithMonitor(monitor).
		WithLogger(logger).
		Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "demo: build session:", err)
		atexit.Exit(1)
		return
	}

	sess.Bus().Subscribe(eventbus.HookPosCompileEnd, func(item any) {
		if ev, ok := item.(eventbus.CompileEnd); ok {
			logger.Info("compile finished", slog.String("status", string(ev.Status)), slog.Float64("ms", ev.DurationMs))
		}
	})
	sess.Bus().Subscribe(eventbus.HookPosDomainChanged, func(item any) {
		if ev, ok := item.(eventbus.DomainChanged); ok {
			logger.Info("domain resized",
				slog.String("instance", ev.InstanceID), slog.Int("old", ev.OldCount), slog.Int("new", ev.NewCount))
		}
	})

	patch, err := patchfixture.GoldenRing(12)
	if err != nil {
		fmt.Fprintln(os.Stderr, "demo: load patch:", err)
		atexit.Exit(1)
		return
	}

	snap, err := sess.Compile(patch)
	if err != nil {
		fmt.Fprintln(os.Stderr, "demo: compile:", err)
		atexit.Exit(1)
		return
	}
	if !snap.BackendReady {
		for _, d := range snap.Diagnostics {
			fmt.Fprintln(os.Stderr, "demo:", d.String())
		}
		atexit.Exit(1)
		return
	}

	dumpProgram(sess)

	for i := 0; i < 30; i++ {
		if _, err := sess.Execute(); err != nil {
			fmt.Fprintln(os.Stderr, "demo: execute:", err)
			atexit.Exit(1)
		}
	}

	resized, err := patchfixture.GoldenRing(24)
	if err != nil {
		fmt.Fprintln(os.Stderr, "demo: load resized patch:", err)
		atexit.Exit(1)
		return
	}
	if _, err := sess.Compile(resized); err != nil {
		fmt.Fprintln(os.Stderr, "demo: recompile:", err)
		atexit.Exit(1)
		return
	}

	for i := 0; i < 30; i++ {
		if _, err := sess.Execute(); err != nil {
			fmt.Fprintln(os.Stderr, "demo: execute after hot-swap:", err)
			atexit.Exit(1)
		}
	}

	fmt.Println("demo complete:", sess.Clock().FrameIndex(), "frames executed")
	atexit.Exit(0)
}

// dumpProgram renders a one-row-per-block summary of the compiled debug
// index, the same table-per-run habit as the donor's core.PrintState.
func dumpProgram(sess *session.Session) {
	idx := sess.Index()
	prog := sess.Runtime().Program
	if idx == nil || prog == nil {
		return
	}

	t := table.NewWriter()
	t.SetTitle("Compiled Program")
	t.AppendHeader(table.Row{"Block", "Label", "Value Slots"})
	for block := range prog.Debug.DisplayNames {
		slots := idx.SlotsFor(block)
		t.AppendRow(table.Row{string(block), idx.Label(block), fmt.Sprint(slots)})
	}
	fmt.Println(t.Render())
}
