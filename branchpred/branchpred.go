// Package branchpred implements direct (conditional-branch direction) and
// indirect (register-target) branch prediction, plus a return-address
// stack for call/return pairs.
package branchpred

import "github.com/sarchlab/rvoo/inst"

// Config sizes the predictor tables.
type Config struct {
	// BHTSize is the number of entries in the direct-branch history table.
	BHTSize int
	// BTBSize is the total number of entries across the indirect BTB.
	BTBSize int
	// BTBWays is the set associativity of the BTB.
	BTBWays int
	// RASDepth is the maximum depth of the return-address stack.
	RASDepth int
}

// DefaultConfig mirrors a modest, realistic predictor.
func DefaultConfig() Config {
	return Config{BHTSize: 1024, BTBSize: 256, BTBWays: 4, RASDepth: 16}
}

type bhtEntry struct {
	counter uint8 // 2-bit saturating counter, 0..3; >=2 means predict taken
	seen    bool
}

type btbWay struct {
	valid  bool
	tag    inst.Addr
	target inst.Addr
	lru    uint64
}

// Stats tallies predictor accuracy.
type Stats struct {
	DirectPredictions   uint64
	DirectMispredicts   uint64
	IndirectPredictions uint64
	IndirectMispredicts uint64
	BTBHits             uint64
	BTBMisses           uint64
}

// Predictor is the combined direct + indirect + RAS branch predictor.
type Predictor struct {
	cfg Config

	bht []bhtEntry

	btbSets    int
	btbWays    [][]btbWay
	lruCounter uint64

	ras []inst.Addr

	stats Stats
}

// New creates a Predictor with the given configuration.
func New(cfg Config) *Predictor {
	if cfg.BTBWays <= 0 {
		cfg.BTBWays = 1
	}

	sets := cfg.BTBSize / cfg.BTBWays
	if sets <= 0 {
		sets = 1
	}

	ways := make([][]btbWay, sets)
	for i := range ways {
		ways[i] = make([]btbWay, cfg.BTBWays)
	}

	return &Predictor{
		cfg:     cfg,
		bht:     make([]bhtEntry, cfg.BHTSize),
		btbSets: sets,
		btbWays: ways,
	}
}

func (p *Predictor) bhtIndex(pc inst.Addr) int {
	return int(pc/4) % len(p.bht)
}

// PredictDirect predicts whether a conditional branch at pc, whose
// statically-known target is target, will be taken. A never-seen entry
// falls back to the backwards-taken/forwards-not-taken (BTFNT) heuristic;
// a seen entry uses its 2-bit saturating counter.
func (p *Predictor) PredictDirect(pc, target inst.Addr) bool {
	p.stats.DirectPredictions++

	e := p.bht[p.bhtIndex(pc)]
	if !e.seen {
		return target < pc
	}

	return e.counter >= 2
}

// UpdateDirect records the actual outcome of a conditional branch,
// adjusting its saturating counter and counting a misprediction if the
// prior prediction (recomputed here) was wrong.
func (p *Predictor) UpdateDirect(pc, target inst.Addr, taken bool) {
	idx := p.bhtIndex(pc)
	e := p.bht[idx]

	predicted := target < pc
	if e.seen {
		predicted = e.counter >= 2
	}
	if predicted != taken {
		p.stats.DirectMispredicts++
	}

	if taken {
		if e.counter < 3 {
			e.counter++
		}
	} else {
		if e.counter > 0 {
			e.counter--
		}
	}
	e.seen = true

	p.bht[idx] = e
}

func (p *Predictor) btbSet(pc inst.Addr) int {
	return int(pc/4) % p.btbSets
}

// PredictIndirect predicts the target of a register-computed jump (jalr).
// Returns known=false if the BTB has no entry for pc.
func (p *Predictor) PredictIndirect(pc inst.Addr) (target inst.Addr, known bool) {
	p.stats.IndirectPredictions++

	set := p.btbWays[p.btbSet(pc)]
	for i := range set {
		if set[i].valid && set[i].tag == pc {
			p.stats.BTBHits++
			p.lruCounter++
			set[i].lru = p.lruCounter
			return set[i].target, true
		}
	}

	p.stats.BTBMisses++
	return 0, false
}

// UpdateIndirect records the actual target of a register-computed jump,
// inserting or refreshing its BTB entry, and counts a misprediction if a
// prior prediction (if any) was wrong.
func (p *Predictor) UpdateIndirect(pc, actualTarget inst.Addr, predicted inst.Addr, wasKnown bool) {
	if !wasKnown || predicted != actualTarget {
		p.stats.IndirectMispredicts++
	}

	set := p.btbWays[p.btbSet(pc)]
	p.lruCounter++

	for i := range set {
		if set[i].valid && set[i].tag == pc {
			set[i].target = actualTarget
			set[i].lru = p.lruCounter
			return
		}
	}

	victim := 0
	oldest := set[0].lru
	for i, w := range set {
		if !w.valid {
			victim = i
			break
		}
		if w.lru < oldest {
			oldest = w.lru
			victim = i
		}
	}

	set[victim] = btbWay{valid: true, tag: pc, target: actualTarget, lru: p.lruCounter}
}

// PushRAS records a call's return address (pc of the call plus the
// instruction width).
func (p *Predictor) PushRAS(returnAddr inst.Addr) {
	if len(p.ras) >= p.cfg.RASDepth {
		p.ras = p.ras[1:]
	}
	p.ras = append(p.ras, returnAddr)
}

// PopRAS returns the predicted return address for a ret, if the stack is
// non-empty.
func (p *Predictor) PopRAS() (inst.Addr, bool) {
	if len(p.ras) == 0 {
		return 0, false
	}

	addr := p.ras[len(p.ras)-1]
	p.ras = p.ras[:len(p.ras)-1]

	return addr, true
}

// Stats returns the predictor's running accuracy counters.
func (p *Predictor) Stats() Stats {
	return p.stats
}

// Reset clears all predictor state.
func (p *Predictor) Reset() {
	for i := range p.bht {
		p.bht[i] = bhtEntry{}
	}
	for s := range p.btbWays {
		for w := range p.btbWays[s] {
			p.btbWays[s][w] = btbWay{}
		}
	}
	p.ras = nil
	p.stats = Stats{}
}
