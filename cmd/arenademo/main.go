// SPDX-License-Identifier: Apache-2.0

// Command arenademo exercises the arena primitives end to end and prints a
// short summary of what each scenario observed.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/term"

	arena "github.com/wundergraph/go-scopearena"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#90EE90"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))
)

type config struct {
	size      uintptr
	alignment uintptr
	objects   int
	heap      string
	report    bool
}

func main() {
	var (
		size      = flag.Uint64("size", 1<<20, "Arena size in bytes")
		alignment = flag.Uint64("alignment", 16, "Block alignment (power of two)")
		objects   = flag.Int("objects", 100, "Objects per scenario")
		heap      = flag.String("heap", "go", "Backing heap: go or mmap")
		report    = flag.Bool("report", false, "Print the allocation tracker report (debug builds)")
		verbose   = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = logger.Sync() }()
		arena.SetLogger(logger)
	}

	cfg := config{
		size:      uintptr(*size),
		alignment: uintptr(*alignment),
		objects:   *objects,
		heap:      *heap,
		report:    *report,
	}
	if err := run(cfg, newPrinter(term.IsTerminal(int(os.Stdout.Fd())))); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config, p *printer) (err error) {
	h, err := selectHeap(cfg.heap)
	if err != nil {
		return err
	}
	if cfg.objects < 0 {
		return errors.Newf("objects must not be negative, got %d", cfg.objects)
	}

	// Block setup panics with a wrapped sentinel on bad flags.
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = errors.Wrap(e, "arena setup failed")
				return
			}
			panic(r)
		}
	}()

	block := arena.NewAlignedBlock(cfg.size, cfg.alignment, arena.WithHeap(h))
	defer block.Release()
	alloc := arena.NewLinearAllocatorFromBlock(block)

	p.title("arenademo")
	p.field("heap", cfg.heap)
	p.field("block", fmt.Sprintf("%d bytes @ %#x, alignment %d", block.Size(), uintptr(block.Pointer()), block.Alignment()))

	failed := 0
	for _, s := range scenarios {
		serr := runScenario(s, alloc, cfg.objects)
		if serr != nil {
			failed++
		}
		p.result(s.name, serr)
	}
	p.field("peak", fmt.Sprintf("%d of %d bytes", alloc.Peak(), alloc.Cap()))

	if cfg.report {
		trackerScenario(p)
	}
	if failed > 0 {
		return errors.Newf("%d of %d scenarios failed", failed, len(scenarios))
	}
	return nil
}

// runScenario turns a fatal arena condition inside s into an error so the
// remaining scenarios still run.
func runScenario(s scenario, a *arena.LinearAllocator, n int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok {
				panic(r)
			}
			err = e
		}
	}()
	return s.run(a, n)
}

func selectHeap(name string) (arena.Heap, error) {
	switch name {
	case "go":
		return arena.GoHeap{}, nil
	case "mmap":
		return arena.NewMmapHeap(), nil
	default:
		return nil, errors.Newf("unknown heap %q (want go or mmap)", name)
	}
}

type printer struct {
	styled bool
}

func newPrinter(styled bool) *printer {
	return &printer{styled: styled}
}

func (p *printer) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *printer) title(text string) {
	fmt.Println(p.render(titleStyle, text))
}

func (p *printer) field(label, value string) {
	fmt.Printf("%s %s\n", p.render(labelStyle, label+":"), value)
}

func (p *printer) result(name string, err error) {
	if err != nil {
		fmt.Printf("%s %s: %v\n", p.render(failStyle, "FAIL"), name, err)
		return
	}
	fmt.Printf("%s %s\n", p.render(okStyle, "ok"), name)
}
