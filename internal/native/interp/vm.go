package interp

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"zkvmc/internal/native"
)

// Config bounds one execution.
type Config struct {
	Calldata    []byte
	Constructor bool
	// Immutables is the committed immutables space of a deployed contract.
	Immutables []byte
	MaxHeap    uint64
	MaxStack   uint64
	MaxSteps   uint64
	MaxDepth   int
}

const (
	DefaultMaxHeap  = 1 << 22
	DefaultMaxStack = 1 << 20
	DefaultMaxSteps = 50_000_000
	DefaultMaxDepth = 4096
)

// Result is the outcome of a run. A trap is a result, not an error.
type Result struct {
	Exit       native.ExitKind
	Trapped    bool
	Reason     string
	Output     []byte
	Immutables []byte
	Steps      uint64
}

// Success reports a return, stop or deploy exit.
func (r *Result) Success() bool {
	return !r.Trapped && r.Exit != native.ExitRevert
}

// Frame is one near-call activation.
type Frame struct {
	Func      *native.Func
	BB        native.BlockID
	IP        int
	Values    []uint256.Int
	stackBase uint64
	retDsts   []native.ValueID
}

// VM interprets a native module.
type VM struct {
	Module *native.Module
	Host   Host
	Stack  []Frame
	Halted bool

	cfg        Config
	heap       []byte
	stackMem   []byte
	sp         uint64
	returnData []byte
	immutables []byte
	globals    []uint256.Int
	steps      uint64
	result     *Result
}

type trapError struct{ reason string }

func (e *trapError) Error() string { return "trap: " + e.reason }

func trapf(format string, args ...any) error {
	return &trapError{reason: fmt.Sprintf(format, args...)}
}

// New prepares a VM positioned at the module entry.
func New(m *native.Module, host Host, cfg Config) (*VM, error) {
	if cfg.MaxHeap == 0 {
		cfg.MaxHeap = DefaultMaxHeap
	}
	if cfg.MaxStack == 0 {
		cfg.MaxStack = DefaultMaxStack
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	entry := m.Func(m.Entry)
	if entry == nil {
		return nil, errors.New("interp: module has no entry function")
	}
	if len(entry.Params) != 0 {
		return nil, fmt.Errorf("interp: entry %s takes parameters", entry.Name)
	}
	vm := &VM{
		Module:     m,
		Host:       host,
		cfg:        cfg,
		immutables: append([]byte(nil), cfg.Immutables...),
		globals:    make([]uint256.Int, len(m.Globals)),
	}
	vm.Stack = append(vm.Stack, vm.newFrame(entry, nil))
	return vm, nil
}

// Run executes m to completion.
func Run(m *native.Module, host Host, cfg Config) (*Result, error) {
	vm, err := New(m, host, cfg)
	if err != nil {
		return nil, err
	}
	return vm.Run()
}

// Run steps until the contract exits or traps.
func (vm *VM) Run() (*Result, error) {
	for !vm.Halted {
		if err := vm.Step(); err != nil {
			return nil, err
		}
	}
	return vm.result, nil
}

func (vm *VM) newFrame(f *native.Func, retDsts []native.ValueID) Frame {
	return Frame{
		Func:      f,
		BB:        f.Entry,
		Values:    make([]uint256.Int, len(f.Values)),
		stackBase: vm.sp,
		retDsts:   retDsts,
	}
}

// Step executes one instruction or terminator. Traps halt the VM with a
// trapped result; the returned error reports malformed modules only.
func (vm *VM) Step() error {
	if vm.Halted {
		return nil
	}
	vm.steps++
	var err error
	if vm.steps > vm.cfg.MaxSteps {
		err = trapf("step limit %d exceeded", vm.cfg.MaxSteps)
	} else {
		frame := &vm.Stack[len(vm.Stack)-1]
		blk := &frame.Func.Blocks[frame.BB]
		if frame.IP >= len(blk.Instrs) {
			err = vm.execTerm(frame, &blk.Term)
		} else {
			in := &blk.Instrs[frame.IP]
			frame.IP++
			err = vm.execInstr(frame, in)
		}
	}
	var trap *trapError
	if errors.As(err, &trap) {
		vm.halt(&Result{Trapped: true, Reason: trap.reason})
		return nil
	}
	return err
}

func (vm *VM) halt(r *Result) {
	r.Steps = vm.steps
	if r.Immutables == nil && len(vm.immutables) > 0 {
		r.Immutables = append([]byte(nil), vm.immutables...)
	}
	vm.result = r
	vm.Halted = true
}

func (vm *VM) get(frame *Frame, o native.Operand) *uint256.Int {
	if o.IsConst() {
		return o.Const
	}
	return &frame.Values[o.Value]
}

func (vm *VM) set(frame *Frame, dst native.ValueID, v *uint256.Int) {
	frame.Values[dst].Set(v)
}

func (vm *VM) execInstr(frame *Frame, in *native.Instr) error {
	arg := func(i int) *uint256.Int { return vm.get(frame, in.Args[i]) }
	if in.Op.IsPure() {
		args := make([]*uint256.Int, len(in.Args))
		for i := range in.Args {
			args[i] = arg(i)
		}
		z, ok := native.Eval(in.Op, args)
		if !ok {
			return fmt.Errorf("interp: malformed %s", in.Op)
		}
		vm.set(frame, in.Dst, z)
		return nil
	}
	var z uint256.Int
	switch in.Op {
	case native.OpNop:
		return nil
	case native.OpKeccak:
		data, err := vm.read(in.Space, arg(0), arg(1))
		if err != nil {
			return err
		}
		z.SetBytes32(crypto.Keccak256(data))
	case native.OpAlloca:
		p, err := vm.alloca(arg(0))
		if err != nil {
			return err
		}
		z.SetUint64(p)
	case native.OpLoad:
		data, err := vm.read(in.Space, arg(0), uint256.NewInt(32))
		if err != nil {
			return err
		}
		z.SetBytes32(data)
	case native.OpStore:
		b := arg(1).Bytes32()
		return vm.write(in.Space, arg(0), b[:])
	case native.OpStore8:
		return vm.write(in.Space, arg(0), []byte{byte(arg(1).Uint64())})
	case native.OpCopy:
		data, err := vm.read(in.Src, arg(1), arg(2))
		if err != nil {
			return err
		}
		return vm.write(in.Space, arg(0), data)
	case native.OpSize:
		switch in.Space {
		case native.SpaceCalldata:
			z.SetUint64(uint64(len(vm.cfg.Calldata)))
		case native.SpaceReturnData:
			z.SetUint64(uint64(len(vm.returnData)))
		}
	case native.OpSLoad:
		z.Set(vm.Host.SLoad(arg(0)))
	case native.OpSStore:
		vm.Host.SStore(new(uint256.Int).Set(arg(0)), new(uint256.Int).Set(arg(1)))
		return nil
	case native.OpTLoad:
		z.Set(vm.Host.TLoad(arg(0)))
	case native.OpTStore:
		vm.Host.TStore(new(uint256.Int).Set(arg(0)), new(uint256.Int).Set(arg(1)))
		return nil
	case native.OpContext:
		if in.Ctx == native.CtxIsConstructor {
			if vm.cfg.Constructor {
				z.SetOne()
			}
		} else {
			z.Set(vm.Host.Context(in.Ctx))
		}
	case native.OpGlobalGet:
		z.Set(&vm.globals[in.Glob])
	case native.OpGlobalSet:
		vm.globals[in.Glob].Set(arg(0))
		return nil
	case native.OpCall:
		return vm.call(frame, in)
	case native.OpFarCall:
		return vm.farCall(frame, in)
	case native.OpLinkSym:
		v, ok := vm.Host.LinkSym(in.Sym)
		if !ok {
			return trapf("unresolved linker symbol %s", in.Sym)
		}
		z.Set(v)
	case native.OpLog:
		data, err := vm.read(in.Space, arg(0), arg(1))
		if err != nil {
			return err
		}
		topics := make([]*uint256.Int, 0, len(in.Args)-2)
		for i := 2; i < len(in.Args); i++ {
			topics = append(topics, new(uint256.Int).Set(arg(i)))
		}
		vm.Host.Log(topics, data)
		return nil
	default:
		return fmt.Errorf("interp: unsupported op %s", in.Op)
	}
	if in.Dst != native.NoValueID {
		vm.set(frame, in.Dst, &z)
	}
	return nil
}

func (vm *VM) call(frame *Frame, in *native.Instr) error {
	callee := vm.Module.Func(in.Callee)
	if callee == nil {
		return fmt.Errorf("interp: call of unknown function %d", in.Callee)
	}
	if len(vm.Stack) >= vm.cfg.MaxDepth {
		return trapf("call depth %d exceeded", vm.cfg.MaxDepth)
	}
	next := vm.newFrame(callee, in.Dsts)
	for i, p := range callee.Params {
		next.Values[p].Set(vm.get(frame, in.Args[i]))
	}
	vm.Stack = append(vm.Stack, next)
	return nil
}

func (vm *VM) farCall(frame *Frame, in *native.Instr) error {
	arg := func(i int) *uint256.Int { return vm.get(frame, in.Args[i]) }
	input, err := vm.read(in.Space, arg(2), arg(3))
	if err != nil {
		return err
	}
	req := FarCallRequest{
		Desc:    in.Far,
		Address: new(uint256.Int).Set(arg(0)),
		Gas:     new(uint256.Int).Set(arg(1)),
		Input:   input,
	}
	for i := 4; i < len(in.Args); i++ {
		req.Extra = append(req.Extra, new(uint256.Int).Set(arg(i)))
	}
	res := vm.Host.FarCall(req)
	vm.returnData = append([]byte(nil), res.Output...)
	var z uint256.Int
	if res.OK {
		z.SetOne()
	}
	vm.set(frame, in.Dst, &z)
	return nil
}

func (vm *VM) execTerm(frame *Frame, t *native.Terminator) error {
	switch t.Kind {
	case native.TermGoto:
		vm.jump(frame, t.Goto.Target)
	case native.TermIf:
		if !vm.get(frame, t.If.Cond).IsZero() {
			vm.jump(frame, t.If.Then)
		} else {
			vm.jump(frame, t.If.Else)
		}
	case native.TermSwitch:
		v := vm.get(frame, t.Switch.Value)
		target := t.Switch.Default
		for _, c := range t.Switch.Cases {
			if c.Value.Eq(v) {
				target = c.Target
				break
			}
		}
		vm.jump(frame, target)
	case native.TermReturn:
		vals := make([]uint256.Int, len(t.Return.Values))
		for i, o := range t.Return.Values {
			vals[i].Set(vm.get(frame, o))
		}
		dsts := frame.retDsts
		vm.sp = frame.stackBase
		vm.Stack = vm.Stack[:len(vm.Stack)-1]
		if len(vm.Stack) == 0 {
			vm.halt(&Result{Exit: native.ExitStop})
			return nil
		}
		caller := &vm.Stack[len(vm.Stack)-1]
		for i, d := range dsts {
			caller.Values[d].Set(&vals[i])
		}
	case native.TermExit:
		r := &Result{Exit: t.Exit.Kind}
		switch t.Exit.Kind {
		case native.ExitReturn, native.ExitRevert:
			out, err := vm.read(t.Exit.Space, vm.get(frame, t.Exit.Ptr), vm.get(frame, t.Exit.Len))
			if err != nil {
				return err
			}
			r.Output = out
		case native.ExitDeploy:
			r.Output = append([]byte(nil), vm.immutables...)
			r.Immutables = r.Output
		}
		vm.halt(r)
	case native.TermTrap:
		reason := t.Trap.Reason
		if reason == "" {
			reason = "trap"
		}
		return &trapError{reason: reason}
	case native.TermUnreachable:
		return &trapError{reason: "unreachable"}
	default:
		return fmt.Errorf("interp: %s: unterminated block bb%d", frame.Func.Name, frame.BB)
	}
	return nil
}

func (vm *VM) jump(frame *Frame, target native.BlockID) {
	frame.BB = target
	frame.IP = 0
}
