// Command rv32run executes a bare RISC-V32 ELF binary against the rv32
// execution core (§6 "CLI surface").
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/vex32/rv32core/pkg/driver"
	"github.com/vex32/rv32core/pkg/guestmem"
	"github.com/vex32/rv32core/pkg/loader"
	"github.com/vex32/rv32core/pkg/rv32"
)

const (
	memSize     = 256 << 20
	cycleBudget = ^uint64(0)
)

func main() {
	log.SetFlags(0)
	trace := flag.Bool("t", false, "trace executed instructions")
	gdbstub := flag.Bool("g", false, "enable gdbstub (if built)")
	dumpFile := flag.String("d", "", "dump all x-registers and pc as JSON to FILE ('-' for stdout) on exit")
	sigFile := flag.String("a", "", "dump architectural test signature range as hex words to FILE")
	quiet := flag.Bool("q", false, "suppress ordinary stdout")
	allowMisalign := flag.Bool("m", false, "allow misaligned load/store")
	flag.Usage = usage
	flag.Parse()

	if *gdbstub {
		log.Fatal("unsupported: gdbstub is an external collaborator, not part of this core")
	}
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	raw, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	img, err := loader.Parse(raw)
	if err != nil {
		log.Fatal(err)
	}

	var stdout *quietWriter
	if *quiet {
		stdout = &quietWriter{discard: true}
	} else {
		stdout = &quietWriter{}
	}
	sys := guestmem.NewNewlibSyscalls(stdout, os.Stderr, heapStart(img))

	mem := guestmem.New(memSize, *allowMisalign, sys)
	if err := img.CopyInto(mem.Bytes()); err != nil {
		log.Fatal(err)
	}

	sp := loader.SetupStack(mem.Bytes(), uint32(memSize), flag.Args(), os.Environ())

	cpu := rv32.NewCpu(mem)
	cpu.PC = img.Entry
	cpu.X[2] = sp // x2 = sp

	d := driver.New(cpu, 14)
	if err := d.EnableJIT(4<<20, 2); err != nil {
		log.Printf("rv32run: JIT disabled, falling back to interpreter: %v", err)
	}

	if *trace {
		runTraced(d, cycleBudget)
	} else {
		d.Run(cycleBudget)
	}

	if *dumpFile != "" {
		if err := dumpRegisters(*dumpFile, cpu); err != nil {
			log.Fatal(err)
		}
	}
	if *sigFile != "" {
		if err := dumpSignature(*sigFile, mem, raw); err != nil {
			log.Fatal(err)
		}
	}

	d.Close()
	os.Exit(sys.ExitCode)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: rv32run [-t] [-g] [-d FILE|-] [-a FILE] [-q] [-m] <elf> [args...]")
	flag.PrintDefaults()
}

// runTraced runs the step loop one block at a time, logging the PC of each
// executed block (§6 "-t trace executed instructions").
func runTraced(d *driver.Driver, budget uint64) {
	for !d.Cpu.Halt && d.Cpu.Cycle < budget {
		pc := d.Cpu.PC
		d.Run(d.Cpu.Cycle + 1)
		log.Printf("rv32run: pc=%#08x cycle=%d", pc, d.Cpu.Cycle)
	}
}

// heapStart places the brk heap just past the highest PT_LOAD segment,
// page-aligned.
func heapStart(img *loader.Image) uint32 {
	var top uint32
	for _, seg := range img.Segments {
		if end := seg.VAddr + seg.MemSize; end > top {
			top = end
		}
	}
	return (top + 0xfff) &^ 0xfff
}

func dumpRegisters(path string, cpu *rv32.Cpu) error {
	type dump struct {
		PC uint32     `json:"pc"`
		X  [32]uint32 `json:"x"`
	}
	b, err := json.MarshalIndent(dump{PC: cpu.PC, X: cpu.X}, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err := os.Stdout.Write(append(b, '\n'))
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// dumpSignature writes the architectural test signature range
// (begin_signature..end_signature) as hex words, one per line, resolved
// from the two symbols of the same name in the loaded ELF — §6 "-a FILE".
func dumpSignature(path string, mem *guestmem.Memory, rawELF []byte) error {
	syms, err := loader.Symbols(rawELF)
	if err != nil {
		return fmt.Errorf("rv32run: -a: %w", err)
	}
	begin, ok := syms["begin_signature"]
	if !ok {
		return fmt.Errorf("rv32run: -a: no begin_signature symbol in binary")
	}
	end, ok := syms["end_signature"]
	if !ok {
		return fmt.Errorf("rv32run: -a: no end_signature symbol in binary")
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for addr := begin; addr+4 <= end; addr += 4 {
		w, err := mem.ReadW(addr)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(f, "%08x\n", w); err != nil {
			return err
		}
	}
	return nil
}

// quietWriter discards writes when -q is set, otherwise forwards to stdout.
type quietWriter struct {
	discard bool
}

func (w *quietWriter) Write(p []byte) (int, error) {
	if w.discard {
		return len(p), nil
	}
	return os.Stdout.Write(p)
}
