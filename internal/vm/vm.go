package vm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/plotnik-lang/plotnik/internal/bytecode"
)

// Config bounds one run's resource consumption (spec.md §5 "cancellation
// and timeouts ... enforced by fuel only").
type Config struct {
	ExecFuel       int
	RecursionLimit int
}

// DefaultConfig mirrors the teacher's cache/config defaults of "generous
// but bounded"; callers normally get these from internal/plotnikconfig.
var DefaultConfig = Config{ExecFuel: 10_000_000, RecursionLimit: 4096}

type frame struct {
	returnAddr bytecode.StepAddr
	savedDepth uint32
}

type checkpoint struct {
	descendantIndex int
	effectWatermark int
	frameIndex      int
	recursionDepth  int
	ip              bytecode.StepAddr
	skipPolicy      *SkipPolicy
	suppressDepth   int
	matchedNode     Node
	hasMatchedNode  bool
}

// Error is a fatal VM failure (spec.md §7): fuel/recursion exhaustion, or
// exhausting every checkpoint without an Accept (NoMatch).
type Error struct {
	Kind string
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("vm: %s: %s", e.Kind, e.Msg) }

func fail(kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Tracer is an optional instrumentation hook a caller can attach to observe
// VM execution step by step (e.g. for a `plotnikc run --trace` CLI mode);
// it has no effect on VM semantics. Supplements spec.md with a debugging
// aid the original crate exposes only via ad hoc eprintln!.
type Tracer interface {
	OnStep(ip bytecode.StepAddr, instr bytecode.Instruction)
	OnBacktrack(toIP bytecode.StepAddr)
	OnAccept(effectCount int)
}

// VM executes one compiled module's transitions against one Cursor,
// producing an effect log (spec.md §4.6).
type VM struct {
	module *bytecode.Module
	cursor Cursor
	source []byte
	cfg    Config
	tracer Tracer

	frames       []frame
	currentFrame int // -1 denotes an empty frame stack

	checkpoints []checkpoint

	effects []RuntimeEffect

	matchedNode    Node
	hasMatchedNode bool

	suppressDepth  int
	recursionDepth int
	execFuel       int

	entrypointTarget bytecode.StepAddr

	// skipNavOnNextCall is the "one-shot flag" spec.md §4.6.3 describes:
	// set when backtracking resumes a Call retry, so the resumed Call does
	// not re-navigate (its original navigation already happened) and only
	// tries the new sibling the retry advanced to.
	skipNavOnNextCall bool
}

// New constructs a VM ready to run entry points of module against cursor.
func New(module *bytecode.Module, cursor Cursor, source []byte, cfg Config) *VM {
	return &VM{
		module:       module,
		cursor:       cursor,
		source:       source,
		cfg:          cfg,
		currentFrame: -1,
		execFuel:     cfg.ExecFuel,
	}
}

func (v *VM) SetTracer(t Tracer) { v.tracer = t }

// Run executes starting at entry, returning the resulting effect log. The
// entry is also recorded as the Trampoline target for this run (spec.md
// §4.6.1 "entrypoint_target").
func (v *VM) Run(entry bytecode.StepAddr) ([]RuntimeEffect, error) {
	v.entrypointTarget = entry
	ip := entry

	for {
		if v.execFuel <= 0 {
			return nil, fail("ExecFuelExhausted", "ran out of execution fuel at ip#%d", ip)
		}
		v.execFuel--

		instr, err := bytecode.Decode(v.module.Transitions, ip)
		if err != nil {
			return nil, fail("Decode", "%v", err)
		}
		if v.tracer != nil {
			v.tracer.OnStep(ip, instr)
		}

		switch instr.Op {
		case bytecode.OpReturn:
			next, accept, ok := v.execReturn()
			if accept {
				if v.tracer != nil {
					v.tracer.OnAccept(len(v.effects))
				}
				return v.effects, nil
			}
			if !ok {
				newIP, berr := v.backtrack()
				if berr != nil {
					return nil, berr
				}
				ip = newIP
				continue
			}
			ip = next

		case bytecode.OpCall:
			next, ok, err := v.execCall(instr.Call)
			if err != nil {
				return nil, err
			}
			if !ok {
				newIP, berr := v.backtrack()
				if berr != nil {
					return nil, berr
				}
				ip = newIP
				continue
			}
			ip = next

		case bytecode.OpTrampoline:
			next, err := v.execTrampoline(instr.Trampoline)
			if err != nil {
				return nil, err
			}
			ip = next

		default:
			next, ok := v.execMatch(instr.Match)
			if !ok {
				newIP, berr := v.backtrack()
				if berr != nil {
					return nil, berr
				}
				ip = newIP
				continue
			}
			ip = next
		}
	}
}

func (v *VM) emit(e RuntimeEffect) {
	if v.suppressDepth > 0 {
		return
	}
	v.effects = append(v.effects, e)
}

func (v *VM) runEffects(effs []bytecode.Effect) {
	for _, e := range effs {
		switch e.Op {
		case bytecode.EffSuppressBegin:
			v.suppressDepth++
		case bytecode.EffSuppressEnd:
			if v.suppressDepth > 0 {
				v.suppressDepth--
			}
		case bytecode.EffNode:
			v.emitCurrent(false)
		case bytecode.EffText:
			v.emitCurrent(true)
		case bytecode.EffClear:
			v.hasMatchedNode = false
			v.emit(RuntimeEffect{Op: e.Op, Operand: e.Operand})
		default:
			v.emit(RuntimeEffect{Op: e.Op, Operand: e.Operand})
		}
	}
}

func (v *VM) emitCurrent(asText bool) {
	if !v.hasMatchedNode {
		v.emit(RuntimeEffect{Op: bytecode.EffNull})
		return
	}
	ref := NodeRef{
		Valid: true,
		Kind:  v.matchedNode.KindID(),
		Named: v.matchedNode.IsNamed(),
		Start: v.matchedNode.StartByte(),
		End:   v.matchedNode.EndByte(),
	}
	if asText {
		v.emit(RuntimeEffect{Op: bytecode.EffText, Node: ref})
	} else {
		v.emit(RuntimeEffect{Op: bytecode.EffNode, Node: ref})
	}
}

// execMatch implements spec.md §4.6.2's Match handling: run pre-effects,
// navigate (unless epsilon), search for a matching node under the reported
// SkipPolicy, run post-effects, then branch to successors.
func (v *VM) execMatch(m *bytecode.MatchInstr) (bytecode.StepAddr, bool) {
	v.runEffects(m.PreEffects)

	if m.Nav == bytecode.NavEpsilon {
		v.runEffects(m.PostEffects)
		return v.branch(m.Successors)
	}

	v.hasMatchedNode = false

	policy, ok := v.cursor.Navigate(m.Nav, m.UpCount)
	if !ok {
		return 0, false
	}

	for {
		if !v.cursor.ContinueSearch(policy) {
			return 0, false
		}
		n := v.cursor.Node()
		if v.nodeMatches(n, m) {
			v.matchedNode = n
			v.hasMatchedNode = true
			break
		}
		if policy == SkipExact {
			return 0, false
		}
		if !v.cursor.GotoNextSibling() {
			return 0, false
		}
	}

	v.runEffects(m.PostEffects)
	return v.branch(m.Successors)
}

func (v *VM) nodeMatches(n Node, m *bytecode.MatchInstr) bool {
	switch m.NodeKind {
	case bytecode.NodeNamed:
		if !n.IsNamed() {
			return false
		}
		if m.HasKindID && n.KindID() != m.KindID {
			return false
		}
	case bytecode.NodeAnonymous:
		if n.IsNamed() {
			return false
		}
		if m.HasKindID && n.KindID() != m.KindID {
			return false
		}
	}

	field, hasField := v.cursor.FieldID()
	if m.HasField {
		if !hasField || field != m.FieldID {
			return false
		}
	}
	for _, neg := range m.NegFields {
		if hasField && field == neg {
			return false
		}
	}

	if m.Predicate != nil && !v.testPredicate(n, *m.Predicate) {
		return false
	}
	return true
}

func (v *VM) testPredicate(n Node, p bytecode.Predicate) bool {
	text := n.Text(v.source)
	switch p.Op {
	case bytecode.PredEq:
		return text == v.module.Strings.Lookup(p.Value)
	case bytecode.PredNeq:
		return text != v.module.Strings.Lookup(p.Value)
	case bytecode.PredStartsWith:
		return strings.HasPrefix(text, v.module.Strings.Lookup(p.Value))
	case bytecode.PredEndsWith:
		return strings.HasSuffix(text, v.module.Strings.Lookup(p.Value))
	case bytecode.PredContains:
		return strings.Contains(text, v.module.Strings.Lookup(p.Value))
	case bytecode.PredRegexMatch, bytecode.PredRegexNotMatch:
		re, err := regexp.Compile(v.module.Regexes.Lookup(p.Value))
		if err != nil {
			return false
		}
		matched := re.MatchString(text)
		if p.Op == bytecode.PredRegexNotMatch {
			return !matched
		}
		return matched
	default:
		return false
	}
}

// branch pushes checkpoints for every successor after the first, in
// reverse priority order (spec.md §4.6.3), so a later backtrack tries them
// left-to-right, then jumps to the first successor. An empty successor
// list is not an accept: it fails the attempt and the caller backtracks,
// so a run accepts only through Return. internal/graph never emits a
// Match without successors.
func (v *VM) branch(successors []bytecode.StepAddr) (bytecode.StepAddr, bool) {
	if len(successors) == 0 {
		return 0, false
	}
	for i := len(successors) - 1; i >= 1; i-- {
		v.pushCheckpoint(successors[i], nil)
	}
	return successors[0], true
}

func (v *VM) pushCheckpoint(ip bytecode.StepAddr, policy *SkipPolicy) {
	v.checkpoints = append(v.checkpoints, checkpoint{
		descendantIndex: v.cursor.DescendantIndex(),
		effectWatermark: len(v.effects),
		frameIndex:      v.currentFrame,
		recursionDepth:  v.recursionDepth,
		ip:              ip,
		skipPolicy:      policy,
		suppressDepth:   v.suppressDepth,
		matchedNode:     v.matchedNode,
		hasMatchedNode:  v.hasMatchedNode,
	})
}

// execCall implements spec.md §4.6.2's Call handling: navigate, push a
// frame, bump recursion depth, jump to the target. The frame also doubles
// as a retry checkpoint so a failed callee can be retried against the next
// sibling.
func (v *VM) execCall(c *bytecode.CallInstr) (bytecode.StepAddr, bool, error) {
	var policy SkipPolicy
	if v.skipNavOnNextCall {
		v.skipNavOnNextCall = false
		policy = SkipExact
	} else {
		var ok bool
		policy, ok = v.cursor.Navigate(c.Nav, 0)
		if !ok {
			return 0, false, nil
		}
		if c.HasField {
			field, has := v.cursor.FieldID()
			if !has || field != c.FieldID {
				return 0, false, nil
			}
		}
	}

	if v.recursionDepth >= v.cfg.RecursionLimit {
		return 0, false, fail("RecursionLimitExceeded", "recursion depth %d at ip#%d", v.recursionDepth, c.Target)
	}

	p := policy
	v.pushCheckpoint(c.Next, &p)

	v.frames = append(v.frames, frame{returnAddr: c.Next, savedDepth: v.cursor.Depth()})
	v.currentFrame = len(v.frames) - 1
	v.recursionDepth++

	return c.Target, true, nil
}

// execTrampoline implements spec.md §4.6.2: behaves like Call but always
// targets the run's entrypoint. internal/graph never emits Trampoline
// (recursive def references compile to Call); the VM still executes it.
func (v *VM) execTrampoline(t *bytecode.TrampolineInstr) (bytecode.StepAddr, error) {
	if v.recursionDepth >= v.cfg.RecursionLimit {
		return 0, fail("RecursionLimitExceeded", "recursion depth %d at trampoline", v.recursionDepth)
	}
	v.frames = append(v.frames, frame{returnAddr: t.Next, savedDepth: v.cursor.Depth()})
	v.currentFrame = len(v.frames) - 1
	v.recursionDepth++
	return v.entrypointTarget, nil
}

// execReturn implements spec.md §4.6.2's Return handling. ok is false only
// when the frame stack is corrupt (never expected from a well-formed
// module); accept is true once the frame stack empties, signaling the run
// is done.
func (v *VM) execReturn() (next bytecode.StepAddr, accept bool, ok bool) {
	if v.currentFrame == -1 {
		return 0, true, true
	}
	f := v.frames[v.currentFrame]
	parent := v.findParentFrame(v.currentFrame)

	v.recursionDepth--
	v.truncateFrames(v.currentFrame)
	v.currentFrame = parent

	for v.cursor.Depth() > f.savedDepth {
		if !v.cursor.GotoParent() {
			break
		}
	}

	return f.returnAddr, false, true
}

// findParentFrame locates the frame index to resume as "current" after
// popping idx. Plotnik's frame arena is a flat append-only log rather than
// an explicit parent-linked tree, so the parent is simply the nearest
// living frame below idx; truncateFrames keeps the arena exactly as deep
// as the highest still-referenced frame (spec.md §5 "frame memory is
// O(max live depth)").
func (v *VM) findParentFrame(idx int) int {
	if idx == 0 {
		return -1
	}
	return idx - 1
}

// truncateFrames amortizes arena compaction per spec.md §4.6.1/§5: keep
// frames up to max(current, highest index referenced by a live checkpoint).
func (v *VM) truncateFrames(poppedIdx int) {
	high := poppedIdx - 1
	for _, cp := range v.checkpoints {
		if cp.frameIndex > high {
			high = cp.frameIndex
		}
	}
	if high < -1 {
		high = -1
	}
	if high+1 < len(v.frames) {
		v.frames = v.frames[:high+1]
	}
}

// backtrack implements spec.md §4.6.3: pop a checkpoint, restore cursor,
// effect log, frame index, recursion depth, and suppress depth. If the
// popped checkpoint carries a SkipPolicy (it was a Call retry point) and
// that policy is not Exact, advance to the next sibling and arm the
// one-shot no-navigate flag so the resumed Call only retries the new
// sibling instead of re-navigating.
func (v *VM) backtrack() (bytecode.StepAddr, error) {
	if len(v.checkpoints) == 0 {
		return 0, fail("NoMatch", "exhausted all checkpoints")
	}
	cp := v.checkpoints[len(v.checkpoints)-1]
	v.checkpoints = v.checkpoints[:len(v.checkpoints)-1]

	v.cursor.GotoDescendant(cp.descendantIndex)
	v.effects = v.effects[:cp.effectWatermark]
	v.currentFrame = cp.frameIndex
	v.recursionDepth = cp.recursionDepth
	v.suppressDepth = cp.suppressDepth
	v.matchedNode = cp.matchedNode
	v.hasMatchedNode = cp.hasMatchedNode
	v.truncateFrames(cp.frameIndex)

	if cp.skipPolicy != nil && *cp.skipPolicy != SkipExact {
		if !v.cursor.GotoNextSibling() {
			return v.backtrack()
		}
		v.skipNavOnNextCall = true
	}

	if v.tracer != nil {
		v.tracer.OnBacktrack(cp.ip)
	}
	return cp.ip, nil
}
