// Command rvoo is the command-line driver for the out-of-order RISC-V
// subset simulator: it assembles a named program, seeds the initial
// machine state from its arguments, runs it to completion against the
// out-of-order core, checks the result against the non-speculative
// reference interpreter, and reports the out-of-order core's performance
// counters.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sarchlab/rvoo/asm"
	"github.com/sarchlab/rvoo/config"
	"github.com/sarchlab/rvoo/core"
	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/memsys"
	"github.com/sarchlab/rvoo/program"
	"github.com/sarchlab/rvoo/refcpu"
)

// fileLoadAddr is the fixed address a0-as-path loads a file's bytes to.
const fileLoadAddr = 0x10000

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: rvoo <asm-name> [a0] [a1]")
		os.Exit(1)
	}

	// A panic here is one of the simulator's own structural-invariant
	// checks firing (an unimplemented opcode, a tag the pipeline expected
	// to find and didn't, and similar programmer-error conditions per
	// spec.md's error handling design) rather than a recoverable
	// simulation event. Recovering at the top level turns it into a
	// diagnostic and a non-zero exit code instead of a raw stack trace;
	// it does not attempt to continue the run.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "rvoo: internal error: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "rvoo: %v\n", err)
		os.Exit(1)
	}
}

func run(name string, extra []string) error {
	asmPath := fmt.Sprintf("asm/%s.asm", name)
	src, err := os.ReadFile(asmPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", asmPath, err)
	}

	parsed, err := asm.Parse(string(src))
	if err != nil {
		return err
	}

	prog, err := program.Load(parsed.Insts, parsed.Labels)
	if err != nil {
		return err
	}

	regs := map[inst.ArchReg]uint32{}
	preload := map[uint32][]byte{}
	if err := applyArgs(extra, regs, preload); err != nil {
		return err
	}

	cfg := config.Default()

	oooMem := memsys.NewMemory()
	for addr, data := range preload {
		oooMem.LoadBytes(addr, data)
	}
	ooo := core.New(cfg, prog, oooMem, core.WithInitialRegs(regs))

	refMem := memsys.NewMemory()
	for addr, data := range preload {
		refMem.LoadBytes(addr, data)
	}
	var refOpts []refcpu.Option
	refOpts = append(refOpts, refcpu.WithInitialRegs(regs))
	if _, verbose := os.LookupEnv("VERBOSE"); verbose {
		refOpts = append(refOpts, refcpu.WithVerbose(os.Stdout))
	}
	ref := refcpu.New(prog, refMem, refOpts...)

	if err := ref.Run(cfg.MaxCycles); err != nil {
		return fmt.Errorf("reference interpreter: %w", err)
	}

	_, singleStep := os.LookupEnv("SINGLE_STEP")

	start := time.Now()
	if err := runOOO(ooo, singleStep, cfg.MaxCycles); err != nil {
		return err
	}
	elapsed := time.Since(start)

	if err := checkAgainstReference(ooo, ref); err != nil {
		return fmt.Errorf("out-of-order core diverged from reference interpreter: %w", err)
	}

	printStats(ooo, elapsed)
	return nil
}

// applyArgs interprets the CLI's optional positional arguments per the
// external interface contract: a0 is either a decimal integer or a
// filesystem path whose bytes are staged at a fixed load address (with a0
// receiving that address and a1 the byte count); a1, if a0 was numeric,
// is itself a decimal integer.
func applyArgs(extra []string, regs map[inst.ArchReg]uint32, preload map[uint32][]byte) error {
	if len(extra) == 0 {
		return nil
	}

	if v, err := strconv.ParseInt(extra[0], 0, 64); err == nil {
		regs[inst.A0] = uint32(v)
	} else {
		data, rerr := os.ReadFile(extra[0])
		if rerr != nil {
			return fmt.Errorf("a0 %q is neither a valid integer nor a readable file: %w", extra[0], rerr)
		}
		preload[fileLoadAddr] = data
		regs[inst.A0] = fileLoadAddr
		regs[inst.A1] = uint32(len(data))
		return nil
	}

	if len(extra) > 1 {
		v, err := strconv.ParseInt(extra[1], 0, 64)
		if err != nil {
			return fmt.Errorf("a1 %q is not a valid integer: %w", extra[1], err)
		}
		regs[inst.A1] = uint32(v)
	}

	return nil
}

func runOOO(p *core.Pipeline, singleStep bool, maxCycles uint64) error {
	if !singleStep {
		return p.Run()
	}

	in := bufio.NewReader(os.Stdin)

	for p.Cycle() < maxCycles {
		if p.Halted() {
			return nil
		}
		p.Tick()
		dumpPipelineState(p)
		fmt.Print("(single-step; press enter to continue) ")
		if _, err := in.ReadString('\n'); err != nil {
			return fmt.Errorf("single-step: reading stdin: %w", err)
		}
	}

	if p.Halted() {
		return nil
	}
	return fmt.Errorf("core: exceeded max cycles (%d) without halting", maxCycles)
}

func dumpPipelineState(p *core.Pipeline) {
	fmt.Printf("cycle=%d pc=0x%08x halted=%v\n", p.Cycle(), p.PC(), p.Halted())
	regs := p.Regs()
	for r := inst.ArchReg(0); r < inst.NumArchRegs; r++ {
		fmt.Printf("  %-4s = 0x%08x\n", r, regs[r])
	}
}

func checkAgainstReference(ooo *core.Pipeline, ref *refcpu.CPU) error {
	oooRegs, refRegs := ooo.Regs(), ref.Regs()
	for r := inst.ArchReg(0); r < inst.NumArchRegs; r++ {
		if oooRegs[r] != refRegs[r] {
			return fmt.Errorf("register %s: out-of-order=%#x reference=%#x", r, oooRegs[r], refRegs[r])
		}
	}

	if addr, a, b, mismatch := memsys.FirstDiff(ooo.Mem(), ref.Mem()); mismatch {
		return fmt.Errorf("memory byte %#x: out-of-order=%#x reference=%#x", addr, a, b)
	}

	return nil
}

func printStats(p *core.Pipeline, elapsed time.Duration) {
	s := p.Stats()

	fmt.Printf("cycles:              %d\n", s.Cycles)
	fmt.Printf("instructions retired: %d (%d fused)\n", s.InstsRetired, s.FusedRetired)
	fmt.Printf("ipc:                  %.3f\n", s.IPC())
	fmt.Println()
	fmt.Println("stalls:")
	fmt.Printf("  rob:       %d\n", s.StallROB)
	fmt.Printf("  rs:        %d\n", s.StallRS)
	fmt.Printf("  lsq:       %d\n", s.StallLSQ)
	fmt.Printf("  phys-reg:  %d\n", s.StallPhysReg)
	fmt.Printf("  fetch:     %d\n", s.StallFetch)
	fmt.Println()
	fmt.Println("mispredicts:")
	fmt.Printf("  direct:    %d\n", s.DirectMispredicts)
	fmt.Printf("  indirect:  %d\n", s.IndirectMispredicts)
	fmt.Printf("  mem-order: %d\n", s.MemOrderMispredicts)
	fmt.Println()

	h := p.Hierarchy()
	fmt.Println("cache:")
	printLevel("l1", h.L1().Stats())
	printLevel("l2", h.L2().Stats())
	printLevel("l3", h.L3().Stats())
	fmt.Println()

	fmt.Println("execution unit utilization:")
	for kind, frac := range p.ExecutionUnits().Utilization() {
		fmt.Printf("  %-11s %5.1f%%\n", kind.String()+":", frac*100)
	}
	fmt.Println()

	fmt.Printf("wall clock: %s\n", elapsed)
}

func printLevel(name string, s memsys.Statistics) {
	total := s.Hits + s.Misses
	rate := 0.0
	if total > 0 {
		rate = 100 * float64(s.Hits) / float64(total)
	}
	fmt.Printf("  %-3s hits=%d misses=%d hit-rate=%.1f%%\n", name, s.Hits, s.Misses, rate)
}
