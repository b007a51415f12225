package yul

import (
	"strconv"
	"strings"
)

// Builtin describes an EVM-dialect builtin function.
type Builtin struct {
	Name    string
	Args    int
	Returns int
	// Terminates is set for builtins that end execution of the current frame.
	Terminates bool
	// LiteralArg is the index of an argument that must be a string literal, or -1.
	LiteralArg int
}

func b(name string, args, rets int) Builtin {
	return Builtin{Name: name, Args: args, Returns: rets, LiteralArg: -1}
}

func term(name string, args int) Builtin {
	return Builtin{Name: name, Args: args, Terminates: true, LiteralArg: -1}
}

func lit(name string, args, rets, idx int) Builtin {
	return Builtin{Name: name, Args: args, Returns: rets, LiteralArg: idx}
}

var builtins = func() map[string]Builtin {
	list := []Builtin{
		term("stop", 0), term("return", 2), term("revert", 2), term("invalid", 0), term("selfdestruct", 1),
		b("add", 2, 1), b("sub", 2, 1), b("mul", 2, 1), b("div", 2, 1), b("sdiv", 2, 1),
		b("mod", 2, 1), b("smod", 2, 1), b("exp", 2, 1), b("not", 1, 1),
		b("lt", 2, 1), b("gt", 2, 1), b("slt", 2, 1), b("sgt", 2, 1), b("eq", 2, 1), b("iszero", 1, 1),
		b("and", 2, 1), b("or", 2, 1), b("xor", 2, 1), b("byte", 2, 1),
		b("shl", 2, 1), b("shr", 2, 1), b("sar", 2, 1),
		b("addmod", 3, 1), b("mulmod", 3, 1), b("signextend", 2, 1), b("keccak256", 2, 1),
		b("pc", 0, 1), b("pop", 1, 0),
		b("mload", 1, 1), b("mstore", 2, 0), b("mstore8", 2, 0), b("msize", 0, 1), b("mcopy", 3, 0),
		b("sload", 1, 1), b("sstore", 2, 0), b("tload", 1, 1), b("tstore", 2, 0),
		b("gas", 0, 1), b("address", 0, 1), b("balance", 1, 1), b("selfbalance", 0, 1),
		b("caller", 0, 1), b("callvalue", 0, 1),
		b("calldataload", 1, 1), b("calldatasize", 0, 1), b("calldatacopy", 3, 0),
		b("codesize", 0, 1), b("codecopy", 3, 0),
		b("extcodesize", 1, 1), b("extcodecopy", 4, 0), b("extcodehash", 1, 1),
		b("returndatasize", 0, 1), b("returndatacopy", 3, 0),
		b("create", 3, 1), b("create2", 4, 1),
		b("call", 7, 1), b("callcode", 7, 1), b("delegatecall", 6, 1), b("staticcall", 6, 1),
		b("log0", 2, 0), b("log1", 3, 0), b("log2", 4, 0), b("log3", 5, 0), b("log4", 6, 0),
		b("chainid", 0, 1), b("basefee", 0, 1), b("blobbasefee", 0, 1), b("blobhash", 1, 1),
		b("origin", 0, 1), b("gasprice", 0, 1), b("blockhash", 1, 1), b("coinbase", 0, 1),
		b("timestamp", 0, 1), b("number", 0, 1), b("difficulty", 0, 1), b("prevrandao", 0, 1),
		b("gaslimit", 0, 1),
		lit("datasize", 1, 1, 0), lit("dataoffset", 1, 1, 0), b("datacopy", 3, 0),
		lit("setimmutable", 3, 0, 1), lit("loadimmutable", 1, 1, 0),
		lit("linkersymbol", 1, 1, 0), b("memoryguard", 1, 1),
	}
	m := make(map[string]Builtin, len(list))
	for _, bi := range list {
		m[bi.Name] = bi
	}
	return m
}()

// LookupBuiltin resolves a builtin by name. verbatim_<n>i_<m>o is recognised
// with its arity so that validation can check it; lowering rejects it.
func LookupBuiltin(name string) (Builtin, bool) {
	if bi, ok := builtins[name]; ok {
		return bi, true
	}
	if rest, ok := strings.CutPrefix(name, "verbatim_"); ok {
		in, out, found := strings.Cut(rest, "i_")
		if !found || !strings.HasSuffix(out, "o") {
			return Builtin{}, false
		}
		n, err1 := strconv.Atoi(in)
		m, err2 := strconv.Atoi(strings.TrimSuffix(out, "o"))
		if err1 != nil || err2 != nil {
			return Builtin{}, false
		}
		// первый аргумент verbatim: байткод литералом
		return Builtin{Name: name, Args: n + 1, Returns: m, LiteralArg: 0}, true
	}
	return Builtin{}, false
}
