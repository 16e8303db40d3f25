// Package asm parses the textual RV32IM-subset assembly dialect described
// in the system's external interface contract into a label-indexed
// instruction stream that program.Load can resolve to absolute addresses.
//
// This package is intentionally kept small: it is satellite code around the
// out-of-order core, the way the teacher's own loader/elf.go is satellite
// code around its pipeline.
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sarchlab/rvoo/inst"
	"github.com/sarchlab/rvoo/program"
)

// ParseError describes a syntax problem at a specific source line.
// Assembly source is one-indexed, matching how a user would read the file.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("asm: line %d: %s", e.Line, e.Msg)
}

func errf(line int, format string, args ...any) error {
	return &ParseError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// Program is the parsed result: a label-resolved-lazily instruction stream
// (jump targets are still inst.Label strings) plus every label's address.
type Program struct {
	Insts  []inst.LabeledInst
	Labels map[inst.Label]inst.Addr
}

var labelBody = func() func(string) bool {
	isValid := func(r rune) bool {
		return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') ||
			(r >= '0' && r <= '9') || r == '_' || r == '.'
	}
	return func(s string) bool {
		if s == "" {
			return false
		}
		for _, r := range s {
			if !isValid(r) {
				return false
			}
		}
		return true
	}
}()

// Parse reads one complete assembly source file and returns its decoded
// instruction stream and label table. Every mnemonic, register name,
// immediate and memory reference is validated; the first error aborts
// parsing with no partial program returned, per the "no partial program" load
// policy.
func Parse(src string) (*Program, error) {
	p := &Program{Labels: make(map[inst.Label]inst.Addr)}

	pc := inst.Addr(0)
	for i, raw := range strings.Split(src, "\n") {
		lineNo := i + 1
		line := stripComment(raw)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasSuffix(line, ":") {
			body := strings.TrimSuffix(line, ":")
			if !labelBody(body) {
				return nil, errf(lineNo, "malformed label %q", line)
			}
			if _, exists := p.Labels[inst.Label(body)]; exists {
				return nil, errf(lineNo, "duplicate label %q", body)
			}
			p.Labels[inst.Label(body)] = pc
			continue
		}

		expanded, err := parseLine(lineNo, line)
		if err != nil {
			return nil, err
		}

		p.Insts = append(p.Insts, expanded...)
		pc += inst.Addr(len(expanded) * program.InstSize)
	}

	return p, nil
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		return line[:i]
	}
	return line
}

func parseLine(lineNo int, line string) ([]inst.LabeledInst, error) {
	fields := strings.SplitN(line, " ", 2)
	mnemonic := strings.ToLower(strings.TrimSpace(fields[0]))

	var operandStr string
	if len(fields) > 1 {
		operandStr = fields[1]
	}

	operands := splitOperands(operandStr)

	if b, ok := builders[mnemonic]; ok {
		return b(lineNo, operands)
	}

	return nil, errf(lineNo, "unknown mnemonic %q", mnemonic)
}

func splitOperands(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}

	return out
}

func want(lineNo int, mnemonic string, operands []string, n int) error {
	if len(operands) != n {
		return errf(lineNo, "%s expects %d operand(s), got %d", mnemonic, n, len(operands))
	}
	return nil
}

func parseReg(lineNo int, s string) (inst.ArchReg, error) {
	r, ok := inst.ArchRegByName(strings.ToLower(s))
	if !ok {
		return 0, errf(lineNo, "invalid register %q", s)
	}
	return r, nil
}

// parseImm accepts decimal, 0x-prefixed hex, and negative forms, rejecting
// anything that fits a 32-bit word neither as a signed nor as an unsigned
// value (that is, outside -2^31..2^32-1).
func parseImm(lineNo int, s string) (inst.Immediate, error) {
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, errf(lineNo, "malformed immediate %q", s)
	}
	if v < -(1<<31) || v > (1<<32)-1 {
		return 0, errf(lineNo, "immediate %q out of 32-bit range", s)
	}
	return inst.Immediate(int32(v)), nil
}

// parseMemRef parses the `offset(reg)` syntax used by loads, stores, and
// jalr.
func parseMemRef(lineNo int, s string) (inst.ArchReg, inst.Immediate, error) {
	open := strings.IndexByte(s, '(')
	close := strings.IndexByte(s, ')')
	if open < 0 || close < 0 || close < open {
		return 0, 0, errf(lineNo, "malformed memory reference %q (want offset(reg))", s)
	}

	offStr := strings.TrimSpace(s[:open])
	regStr := strings.TrimSpace(s[open+1 : close])

	var off inst.Immediate
	if offStr != "" {
		var err error
		off, err = parseImm(lineNo, offStr)
		if err != nil {
			return 0, 0, err
		}
	}

	reg, err := parseReg(lineNo, regStr)
	if err != nil {
		return 0, 0, err
	}

	return reg, off, nil
}

func label(s string) inst.Label { return inst.Label(s) }

type builder func(lineNo int, operands []string) ([]inst.LabeledInst, error)

func rType(op inst.Op) builder {
	return func(lineNo int, ops []string) ([]inst.LabeledInst, error) {
		if err := want(lineNo, op.String(), ops, 3); err != nil {
			return nil, err
		}
		rd, err := parseReg(lineNo, ops[0])
		if err != nil {
			return nil, err
		}
		rs1, err := parseReg(lineNo, ops[1])
		if err != nil {
			return nil, err
		}
		rs2, err := parseReg(lineNo, ops[2])
		if err != nil {
			return nil, err
		}
		return one(inst.LabeledInst{Op: op, Dst: rd, Src1: rs1, Src2: rs2}), nil
	}
}

func iType(op inst.Op) builder {
	return func(lineNo int, ops []string) ([]inst.LabeledInst, error) {
		if err := want(lineNo, op.String(), ops, 3); err != nil {
			return nil, err
		}
		rd, err := parseReg(lineNo, ops[0])
		if err != nil {
			return nil, err
		}
		rs1, err := parseReg(lineNo, ops[1])
		if err != nil {
			return nil, err
		}
		imm, err := parseImm(lineNo, ops[2])
		if err != nil {
			return nil, err
		}
		return one(inst.LabeledInst{Op: op, Dst: rd, Src1: rs1, Imm: imm}), nil
	}
}

func loadType(op inst.Op, size inst.AccessSize) builder {
	return func(lineNo int, ops []string) ([]inst.LabeledInst, error) {
		if err := want(lineNo, op.String(), ops, 2); err != nil {
			return nil, err
		}
		rd, err := parseReg(lineNo, ops[0])
		if err != nil {
			return nil, err
		}
		base, off, err := parseMemRef(lineNo, ops[1])
		if err != nil {
			return nil, err
		}
		return one(inst.LabeledInst{
			Op: op, Dst: rd, Size: size,
			Mem: inst.MemRef[inst.ArchReg]{Base: base, Offset: off},
		}), nil
	}
}

func storeType(op inst.Op, size inst.AccessSize) builder {
	return func(lineNo int, ops []string) ([]inst.LabeledInst, error) {
		if err := want(lineNo, op.String(), ops, 2); err != nil {
			return nil, err
		}
		rs2, err := parseReg(lineNo, ops[0])
		if err != nil {
			return nil, err
		}
		base, off, err := parseMemRef(lineNo, ops[1])
		if err != nil {
			return nil, err
		}
		return one(inst.LabeledInst{
			Op: op, Src1: rs2, Src2: inst.Zero, Size: size,
			Mem: inst.MemRef[inst.ArchReg]{Base: base, Offset: off},
		}), nil
	}
}

func branchType(op inst.Op) builder {
	return func(lineNo int, ops []string) ([]inst.LabeledInst, error) {
		if err := want(lineNo, op.String(), ops, 3); err != nil {
			return nil, err
		}
		rs1, err := parseReg(lineNo, ops[0])
		if err != nil {
			return nil, err
		}
		rs2, err := parseReg(lineNo, ops[1])
		if err != nil {
			return nil, err
		}
		return one(inst.LabeledInst{Op: op, Src1: rs1, Src2: rs2, Jump: label(ops[2])}), nil
	}
}

func one(in inst.LabeledInst) []inst.LabeledInst { return []inst.LabeledInst{in} }

var builders map[string]builder

func init() {
	builders = map[string]builder{
		"lb":  loadType(inst.OpLB, inst.Byte),
		"lh":  loadType(inst.OpLH, inst.HalfWord),
		"lw":  loadType(inst.OpLW, inst.Word),
		"lbu": loadType(inst.OpLBU, inst.Byte),
		"lhu": loadType(inst.OpLHU, inst.HalfWord),

		"sb": storeType(inst.OpSB, inst.Byte),
		"sh": storeType(inst.OpSH, inst.HalfWord),
		"sw": storeType(inst.OpSW, inst.Word),

		"add": rType(inst.OpADD), "sub": rType(inst.OpSUB),
		"and": rType(inst.OpAND), "or": rType(inst.OpOR), "xor": rType(inst.OpXOR),
		"sll": rType(inst.OpSLL), "srl": rType(inst.OpSRL), "sra": rType(inst.OpSRA),
		"slt": rType(inst.OpSLT), "sltu": rType(inst.OpSLTU),

		"addi": iType(inst.OpADDI), "andi": iType(inst.OpANDI), "ori": iType(inst.OpORI),
		"xori": iType(inst.OpXORI), "slli": iType(inst.OpSLLI), "srli": iType(inst.OpSRLI),
		"srai": iType(inst.OpSRAI), "slti": iType(inst.OpSLTI), "sltiu": iType(inst.OpSLTIU),

		"mul": rType(inst.OpMUL), "div": rType(inst.OpDIV), "divu": rType(inst.OpDIVU),
		"rem": rType(inst.OpREM), "remu": rType(inst.OpREMU),

		"beq": branchType(inst.OpBEQ), "bne": branchType(inst.OpBNE),
		"blt": branchType(inst.OpBLT), "bge": branchType(inst.OpBGE),
		"bltu": branchType(inst.OpBLTU), "bgeu": branchType(inst.OpBGEU),

		"jal":  buildJAL,
		"jalr": buildJALR,

		"lui":   buildUpper(inst.OpLUI),
		"auipc": buildUpper(inst.OpAUIPC),

		"halt": buildHalt,

		// Pseudo-ops.
		"li":   buildLI,
		"mv":   buildMV,
		"nop":  buildNOP,
		"j":    buildJ,
		"call": buildCall,
		"ret":  buildRet,
	}
}

func buildJAL(lineNo int, ops []string) ([]inst.LabeledInst, error) {
	if len(ops) != 2 {
		return nil, errf(lineNo, "jal expects 2 operand(s) (rd, label), got %d", len(ops))
	}
	rd, err := parseReg(lineNo, ops[0])
	if err != nil {
		return nil, err
	}
	return one(inst.LabeledInst{Op: inst.OpJAL, Dst: rd, Jump: label(ops[1])}), nil
}

func buildJALR(lineNo int, ops []string) ([]inst.LabeledInst, error) {
	if err := want(lineNo, "jalr", ops, 2); err != nil {
		return nil, err
	}
	rd, err := parseReg(lineNo, ops[0])
	if err != nil {
		return nil, err
	}
	base, off, err := parseMemRef(lineNo, ops[1])
	if err != nil {
		return nil, err
	}
	return one(inst.LabeledInst{Op: inst.OpJALR, Dst: rd, Src1: base, Imm: off}), nil
}

func buildUpper(op inst.Op) builder {
	return func(lineNo int, ops []string) ([]inst.LabeledInst, error) {
		if err := want(lineNo, op.String(), ops, 2); err != nil {
			return nil, err
		}
		rd, err := parseReg(lineNo, ops[0])
		if err != nil {
			return nil, err
		}
		imm, err := parseImm(lineNo, ops[1])
		if err != nil {
			return nil, err
		}
		return one(inst.LabeledInst{Op: op, Dst: rd, Imm: imm << 12}), nil
	}
}

func buildHalt(lineNo int, ops []string) ([]inst.LabeledInst, error) {
	if err := want(lineNo, "halt", ops, 0); err != nil {
		return nil, err
	}
	return one(inst.LabeledInst{Op: inst.OpHALT}), nil
}

func buildNOP(lineNo int, ops []string) ([]inst.LabeledInst, error) {
	if err := want(lineNo, "nop", ops, 0); err != nil {
		return nil, err
	}
	return one(inst.LabeledInst{Op: inst.OpADDI, Dst: inst.Zero, Src1: inst.Zero}), nil
}

func buildMV(lineNo int, ops []string) ([]inst.LabeledInst, error) {
	if err := want(lineNo, "mv", ops, 2); err != nil {
		return nil, err
	}
	rd, err := parseReg(lineNo, ops[0])
	if err != nil {
		return nil, err
	}
	rs, err := parseReg(lineNo, ops[1])
	if err != nil {
		return nil, err
	}
	return one(inst.LabeledInst{Op: inst.OpADDI, Dst: rd, Src1: rs}), nil
}

func buildJ(lineNo int, ops []string) ([]inst.LabeledInst, error) {
	if err := want(lineNo, "j", ops, 1); err != nil {
		return nil, err
	}
	return one(inst.LabeledInst{Op: inst.OpJAL, Dst: inst.Zero, Jump: label(ops[0])}), nil
}

func buildCall(lineNo int, ops []string) ([]inst.LabeledInst, error) {
	if err := want(lineNo, "call", ops, 1); err != nil {
		return nil, err
	}
	return one(inst.LabeledInst{Op: inst.OpJAL, Dst: inst.RA, Jump: label(ops[0])}), nil
}

func buildRet(lineNo int, ops []string) ([]inst.LabeledInst, error) {
	if err := want(lineNo, "ret", ops, 0); err != nil {
		return nil, err
	}
	return one(inst.LabeledInst{Op: inst.OpJALR, Dst: inst.Zero, Src1: inst.RA}), nil
}

// buildLI expands `li rd, imm` to a single addi when imm fits a signed
// 12-bit field, else to the standard lui+addi sequence (upper bits adjusted
// for the sign of the low 12 bits), exactly as a real RV32I assembler would.
func buildLI(lineNo int, ops []string) ([]inst.LabeledInst, error) {
	if err := want(lineNo, "li", ops, 2); err != nil {
		return nil, err
	}
	rd, err := parseReg(lineNo, ops[0])
	if err != nil {
		return nil, err
	}
	imm, err := parseImm(lineNo, ops[1])
	if err != nil {
		return nil, err
	}

	if imm >= -2048 && imm <= 2047 {
		return one(inst.LabeledInst{Op: inst.OpADDI, Dst: rd, Src1: inst.Zero, Imm: imm}), nil
	}

	v := int32(imm)
	low := v & 0xFFF
	if low >= 0x800 {
		low -= 0x1000
	}
	upper := (v - low) & ^0xFFF

	return []inst.LabeledInst{
		{Op: inst.OpLUI, Dst: rd, Imm: inst.Immediate(upper)},
		{Op: inst.OpADDI, Dst: rd, Src1: rd, Imm: inst.Immediate(low)},
	}, nil
}
