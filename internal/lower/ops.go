package lower

import (
	"strings"

	"zkvmc/internal/diag"
	"zkvmc/internal/native"
	"zkvmc/internal/source"
)

func one(v native.Operand) []native.Operand { return []native.Operand{v} }

// evm lowers an EVM opcode with evaluated operands in stack order (args[0]
// is the top of the stack). It returns the opcode's results, or none when
// the opcode was rejected; terminating opcodes leave the builder in a
// terminated block.
func (c *Context) evm(name string, args []native.Operand, sp source.Span) []native.Operand {
	b := c.B
	if c.reject(name, sp) {
		return nil
	}
	if v, ok := c.arith(name, args); ok {
		return one(v)
	}
	if _, ok := systemGetters[name]; ok {
		return one(c.getter(name, args))
	}
	switch name {
	case "pop", "jumpdest":
		return nil
	case "keccak256", "sha3":
		return one(c.keccak(args[0], args[1]))

	case "mload":
		return one(c.mload(args[0]))
	case "mstore":
		c.mstore(args[0], args[1])
		return nil
	case "mstore8":
		c.mstore8(args[0], args[1])
		return nil
	case "msize":
		return one(c.msize())
	case "mcopy":
		c.mcopy(args[0], args[1], args[2])
		return nil

	case "sload":
		return one(b.SLoad(args[0]))
	case "sstore":
		b.SStore(args[0], args[1])
		return nil
	case "tload":
		return one(b.TLoad(args[0]))
	case "tstore":
		b.TStore(args[0], args[1])
		return nil

	case "calldataload":
		return one(c.calldataLoad(args[0]))
	case "calldatasize":
		return one(b.Size(native.SpaceCalldata))
	case "calldatacopy":
		c.copyIn(native.SpaceCalldata, args[0], args[1], args[2])
		return nil
	case "returndatasize":
		return one(b.Size(native.SpaceReturnData))
	case "returndatacopy":
		c.copyIn(native.SpaceReturnData, args[0], args[1], args[2])
		return nil
	case "codesize":
		return one(c.codeSize(sp))
	case "codecopy":
		c.codeCopy(args[0], args[1], args[2], dataRef{}, sp)
		return nil

	case "address":
		return one(b.Context(native.CtxAddress))
	case "caller":
		return one(b.Context(native.CtxCaller))
	case "callvalue":
		return one(b.Context(native.CtxCallValue))
	case "gas":
		return one(b.Context(native.CtxGasLeft))

	case "call":
		return one(c.call(native.FarNormal, args[0], args[1], args[2], args[3], args[4], args[5], args[6]))
	case "staticcall":
		return one(c.call(native.FarStatic, args[0], args[1], zero(), args[2], args[3], args[4], args[5]))
	case "delegatecall":
		return one(c.call(native.FarDelegate, args[0], args[1], zero(), args[2], args[3], args[4], args[5]))
	case "create":
		return one(c.create(args[0], args[1], args[2], nil))
	case "create2":
		salt := args[3]
		return one(c.create(args[0], args[1], args[2], &salt))

	case "log0", "log1", "log2", "log3", "log4":
		c.log(args[0], args[1], args[2:])
		return nil

	case "stop":
		c.exit(native.ExitStop, native.Operand{}, native.Operand{})
		return nil
	case "return":
		c.exit(native.ExitReturn, args[0], args[1])
		return nil
	case "revert":
		c.exit(native.ExitRevert, args[0], args[1])
		return nil
	case "invalid":
		b.Trap("invalid")
		return nil
	}
	c.errorf(diag.UNSOpcode, sp, "%s has no lowering for the target", strings.ToUpper(name))
	b.Trap(name)
	return nil
}

// fit pads results of a rejected construct with zeros so that lowering can
// continue and report further problems.
func fit(results []native.Operand, n int) []native.Operand {
	for len(results) < n {
		results = append(results, zero())
	}
	return results[:n]
}
