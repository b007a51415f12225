package interp

import (
	"github.com/holiman/uint256"

	"zkvmc/internal/native"
)

func (vm *VM) bounds(off, n *uint256.Int, limit uint64) (uint64, uint64, error) {
	if !n.IsUint64() || !off.IsUint64() {
		return 0, 0, trapf("memory access out of range")
	}
	o, l := off.Uint64(), n.Uint64()
	if l > limit || o > limit-l {
		return 0, 0, trapf("memory access [%d, +%d) beyond limit %d", o, l, limit)
	}
	return o, l, nil
}

// read returns n bytes at off. Bytes past the end of a space read as zero;
// heap and stack accesses are bounded by their limits.
func (vm *VM) read(space native.Space, off, n *uint256.Int) ([]byte, error) {
	if n.IsZero() {
		return []byte{}, nil
	}
	var src []byte
	limit := vm.cfg.MaxHeap
	switch space {
	case native.SpaceHeap:
		src = vm.heap
	case native.SpaceStack:
		src, limit = vm.stackMem[:vm.sp], vm.sp
	case native.SpaceCalldata:
		src = vm.cfg.Calldata
	case native.SpaceReturnData:
		src = vm.returnData
		if !off.IsUint64() || !n.IsUint64() || off.Uint64()+n.Uint64() > uint64(len(src)) || off.Uint64()+n.Uint64() < off.Uint64() {
			return nil, trapf("return data access out of range")
		}
	case native.SpaceImmutables:
		src = vm.immutables
	default:
		return nil, trapf("read from %s", space)
	}
	o, l, err := vm.bounds(off, n, limit)
	if err != nil {
		return nil, err
	}
	out := make([]byte, l)
	if o < uint64(len(src)) {
		copy(out, src[o:])
	}
	return out, nil
}

func (vm *VM) write(space native.Space, off *uint256.Int, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	n := uint256.NewInt(uint64(len(data)))
	switch space {
	case native.SpaceHeap:
		o, l, err := vm.bounds(off, n, vm.cfg.MaxHeap)
		if err != nil {
			return err
		}
		vm.heap = grow(vm.heap, o+l)
		copy(vm.heap[o:], data)
	case native.SpaceStack:
		o, _, err := vm.bounds(off, n, vm.sp)
		if err != nil {
			return err
		}
		copy(vm.stackMem[o:], data)
	case native.SpaceImmutables:
		o, l, err := vm.bounds(off, n, vm.cfg.MaxHeap)
		if err != nil {
			return err
		}
		vm.immutables = grow(vm.immutables, o+l)
		copy(vm.immutables[o:], data)
	default:
		return trapf("write to read-only space %s", space)
	}
	return nil
}

func (vm *VM) alloca(words *uint256.Int) (uint64, error) {
	if !words.IsUint64() || words.Uint64() > vm.cfg.MaxStack/32 {
		return 0, trapf("stack allocation too large")
	}
	size := words.Uint64() * 32
	if vm.sp+size > vm.cfg.MaxStack {
		return 0, trapf("stack overflow")
	}
	p := vm.sp
	vm.sp += size
	vm.stackMem = grow(vm.stackMem, vm.sp)
	clear(vm.stackMem[p:vm.sp])
	return p, nil
}

func grow(b []byte, n uint64) []byte {
	if uint64(len(b)) >= n {
		return b
	}
	if uint64(cap(b)) >= n {
		return b[:n]
	}
	out := make([]byte, n, n+n/2)
	copy(out, b)
	return out
}
