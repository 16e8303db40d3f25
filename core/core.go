// Package core wires fetch-decode, rename, issue/execute, writeback, and
// commit into the six-stage out-of-order pipeline, ticking them in reverse
// order each cycle so a stage's output this cycle is its consumer's input
// next cycle.
package core

import (
	"fmt"

	"github.com/sarchlab/rvoo/branchpred"
	"github.com/sarchlab/rvoo/config"
	"github.com/sarchlab/rvoo/eu"
	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/lsq"
	"github.com/sarchlab/rvoo/memsys"
	"github.com/sarchlab/rvoo/program"
	"github.com/sarchlab/rvoo/regfile"
	"github.com/sarchlab/rvoo/rename"
	"github.com/sarchlab/rvoo/rob"
	"github.com/sarchlab/rvoo/rs"
)

// Stats tallies the pipeline's running performance counters.
type Stats struct {
	Cycles       uint64
	InstsRetired uint64
	FusedRetired uint64

	StallROB     uint64
	StallRS      uint64
	StallLSQ     uint64
	StallPhysReg uint64
	StallFetch   uint64

	DirectMispredicts   uint64
	IndirectMispredicts uint64
	MemOrderMispredicts uint64
}

// IPC returns retired instructions per elapsed cycle, or 0 before any cycle
// has elapsed.
func (s Stats) IPC() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.InstsRetired) / float64(s.Cycles)
}

// branchRec is the speculative context recorded at rename time for a
// control-flow instruction, so writeback can tell whether the prediction
// made at fetch was right.
type branchRec struct {
	pc inst.Addr

	// direct branches
	predictedTaken bool
	takenTarget    inst.Addr
	notTakenTarget inst.Addr

	// indirect jumps
	predictedPC inst.Addr
	predKnown   bool
}

// fetched is one instruction that has been fetched and decoded but not yet
// renamed; it is the one-cycle latch between stageFetchDecode and
// stageRename.
type fetched struct {
	tag       inst.Tag
	pc        inst.Addr
	in        inst.PCInst
	fusedKind inst.FusedKind
}

type redirect struct {
	cut    inst.Tag
	target inst.Addr
}

// Pipeline is the six-stage out-of-order core.
type Pipeline struct {
	cfg  *config.Config
	prog *program.Store
	mem  *memsys.Memory
	hier *memsys.Hierarchy

	rf   *regfile.RegFile
	pred *branchpred.Predictor
	rob  *rob.ROB
	rs   *rs.RS
	lsq  *lsq.LSQ
	eus  *eu.Pool

	pc          inst.Addr
	pcKnown     bool
	haltFetched bool
	halted      bool

	nextTag inst.Tag

	pending []fetched

	watermarkAfter map[inst.Tag]int
	branchInfo     map[inst.Tag]*branchRec
	fusedTag       map[inst.Tag]inst.FusedKind
	pcByTag        map[inst.Tag]inst.Addr

	cycle uint64
	stats Stats
}

// Option configures a Pipeline at construction.
type Option func(*Pipeline)

// WithInitialRegs seeds the architectural register file before fetch
// starts. The zero register always reads zero regardless of what is
// passed.
func WithInitialRegs(regs map[inst.ArchReg]uint32) Option {
	return func(p *Pipeline) {
		for r, v := range regs {
			if r == inst.Zero {
				continue
			}
			p.rf.Write(p.rf.Lookup(r), v)
		}
	}
}

// WithEntry sets the initial program counter (default 0).
func WithEntry(pc inst.Addr) Option {
	return func(p *Pipeline) {
		p.pc = pc
	}
}

// New builds a Pipeline executing prog against mem, sized and tuned by cfg.
func New(cfg *config.Config, prog *program.Store, mem *memsys.Memory, opts ...Option) *Pipeline {
	hier := memsys.NewHierarchy(mem, cfg.HierarchyConfig())
	lq := lsq.New(cfg.LoadQueueCapacity, cfg.StoreQueueCapacity, cfg.Speculation())

	p := &Pipeline{
		cfg:  cfg,
		prog: prog,
		mem:  mem,
		hier: hier,

		rf: regfile.New(cfg.NumPhysRegs),
		pred: branchpred.New(branchpred.Config{
			BHTSize:  cfg.BHTSize,
			BTBSize:  cfg.BTBSize,
			BTBWays:  cfg.BTBWays,
			RASDepth: cfg.RASDepth,
		}),
		rob: rob.New(cfg.ROBCapacity),
		rs:  rs.New(cfg.RSCapacity),
		lsq: lq,
		eus: eu.NewPool(eu.Config{
			AluUnits:       cfg.AluUnits,
			LoadStoreUnits: cfg.LoadStoreUnits,
			BranchUnits:    cfg.BranchUnits,
			SpecialUnits:   cfg.SpecialUnits,
			Concurrency:    cfg.EuConcurrency,
		}, hier, lq),

		pcKnown: true,

		watermarkAfter: make(map[inst.Tag]int),
		branchInfo:     make(map[inst.Tag]*branchRec),
		fusedTag:       make(map[inst.Tag]inst.FusedKind),
		pcByTag:        make(map[inst.Tag]inst.Addr),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Halted reports whether the pipeline has committed a Halt.
func (p *Pipeline) Halted() bool { return p.halted }

// Cycle returns the number of cycles elapsed so far.
func (p *Pipeline) Cycle() uint64 { return p.cycle }

// Stats returns a snapshot of the pipeline's running statistics.
func (p *Pipeline) Stats() Stats {
	s := p.stats
	s.Cycles = p.cycle
	return s
}

// Predictor exposes the branch predictor, for statistics reporting.
func (p *Pipeline) Predictor() *branchpred.Predictor { return p.pred }

// Hierarchy exposes the memory hierarchy, for statistics reporting.
func (p *Pipeline) Hierarchy() *memsys.Hierarchy { return p.hier }

// ExecutionUnits exposes the execution-unit pool, for utilization
// reporting.
func (p *Pipeline) ExecutionUnits() *eu.Pool { return p.eus }

// Reg reads one architectural register's current committed-or-speculative
// value directly from the physical register it is currently mapped to.
func (p *Pipeline) Reg(r inst.ArchReg) uint32 {
	v, _ := p.rf.Read(p.rf.Lookup(r))
	return v
}

// Regs returns every architectural register's current value.
func (p *Pipeline) Regs() [inst.NumArchRegs]uint32 {
	var out [inst.NumArchRegs]uint32
	for r := inst.ArchReg(0); r < inst.NumArchRegs; r++ {
		out[r] = p.Reg(r)
	}
	return out
}

// Mem exposes the backing main memory.
func (p *Pipeline) Mem() *memsys.Memory { return p.mem }

// PC returns the current fetch program counter.
func (p *Pipeline) PC() inst.Addr { return p.pc }

// Run ticks the pipeline until it halts or cfg.MaxCycles elapses without
// halting, whichever comes first.
func (p *Pipeline) Run() error {
	for p.cycle < p.cfg.MaxCycles {
		if p.halted {
			return nil
		}
		p.Tick()
	}

	if p.halted {
		return nil
	}

	return fmt.Errorf("core: exceeded max cycles (%d) without halting", p.cfg.MaxCycles)
}

// Tick advances the pipeline by exactly one cycle.
func (p *Pipeline) Tick() {
	p.cycle++

	p.eus.Advance()

	p.stageCommit()

	redirects := p.stageWriteback()
	p.stageIssueExecute()

	if r, ok := earliest(redirects); ok {
		p.applyRedirect(r)
	}

	p.stageRename()
	p.stageFetchDecode()
}

// earliest returns the redirect with the smallest cut tag, i.e. the oldest
// misprediction in program order; applying only it is sufficient, since
// every younger misprediction this cycle lies within the range it squashes.
func earliest(rs []redirect) (redirect, bool) {
	if len(rs) == 0 {
		return redirect{}, false
	}

	best := rs[0]
	for _, r := range rs[1:] {
		if r.cut < best.cut {
			best = r
		}
	}
	return best, true
}

func (p *Pipeline) applyRedirect(r redirect) {
	wm, ok := p.watermarkAfter[r.cut]
	if !ok {
		panic(fmt.Sprintf("core: no rename watermark recorded for squash cut tag %d", r.cut))
	}

	p.rf.RestoreTo(wm)
	p.rs.KillTagsAfter(r.cut)
	p.lsq.KillTagsAfter(r.cut)
	p.eus.KillTagsAfter(r.cut)
	p.rob.KillTagsAfter(r.cut)

	for tag := range p.watermarkAfter {
		if tag > r.cut {
			delete(p.watermarkAfter, tag)
		}
	}
	for tag := range p.branchInfo {
		if tag > r.cut {
			delete(p.branchInfo, tag)
		}
	}
	for tag := range p.fusedTag {
		if tag > r.cut {
			delete(p.fusedTag, tag)
		}
	}
	for tag := range p.pcByTag {
		if tag > r.cut {
			delete(p.pcByTag, tag)
		}
	}

	p.nextTag = r.cut + 1
	p.pending = nil
	p.pc = r.target
	p.pcKnown = true
	p.haltFetched = false
}
