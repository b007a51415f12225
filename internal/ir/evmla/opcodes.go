package evmla

import (
	"strconv"
	"strings"
)

// OpInfo is the stack effect of an instruction.
type OpInfo struct {
	In, Out    int
	Terminates bool
}

var opcodes = map[string]OpInfo{
	"STOP":       {0, 0, true},
	"ADD":        {2, 1, false},
	"MUL":        {2, 1, false},
	"SUB":        {2, 1, false},
	"DIV":        {2, 1, false},
	"SDIV":       {2, 1, false},
	"MOD":        {2, 1, false},
	"SMOD":       {2, 1, false},
	"ADDMOD":     {3, 1, false},
	"MULMOD":     {3, 1, false},
	"EXP":        {2, 1, false},
	"SIGNEXTEND": {2, 1, false},
	"LT":         {2, 1, false},
	"GT":         {2, 1, false},
	"SLT":        {2, 1, false},
	"SGT":        {2, 1, false},
	"EQ":         {2, 1, false},
	"ISZERO":     {1, 1, false},
	"AND":        {2, 1, false},
	"OR":         {2, 1, false},
	"XOR":        {2, 1, false},
	"NOT":        {1, 1, false},
	"BYTE":       {2, 1, false},
	"SHL":        {2, 1, false},
	"SHR":        {2, 1, false},
	"SAR":        {2, 1, false},
	"KECCAK256":  {2, 1, false},
	"SHA3":       {2, 1, false},

	"ADDRESS":        {0, 1, false},
	"BALANCE":        {1, 1, false},
	"ORIGIN":         {0, 1, false},
	"CALLER":         {0, 1, false},
	"CALLVALUE":      {0, 1, false},
	"CALLDATALOAD":   {1, 1, false},
	"CALLDATASIZE":   {0, 1, false},
	"CALLDATACOPY":   {3, 0, false},
	"CODESIZE":       {0, 1, false},
	"CODECOPY":       {3, 0, false},
	"GASPRICE":       {0, 1, false},
	"EXTCODESIZE":    {1, 1, false},
	"EXTCODECOPY":    {4, 0, false},
	"RETURNDATASIZE": {0, 1, false},
	"RETURNDATACOPY": {3, 0, false},
	"EXTCODEHASH":    {1, 1, false},
	"BLOCKHASH":      {1, 1, false},
	"COINBASE":       {0, 1, false},
	"TIMESTAMP":      {0, 1, false},
	"NUMBER":         {0, 1, false},
	"DIFFICULTY":     {0, 1, false},
	"PREVRANDAO":     {0, 1, false},
	"GASLIMIT":       {0, 1, false},
	"CHAINID":        {0, 1, false},
	"SELFBALANCE":    {0, 1, false},
	"BASEFEE":        {0, 1, false},
	"BLOBHASH":       {1, 1, false},
	"BLOBBASEFEE":    {0, 1, false},

	"POP":      {1, 0, false},
	"MLOAD":    {1, 1, false},
	"MSTORE":   {2, 0, false},
	"MSTORE8":  {2, 0, false},
	"SLOAD":    {1, 1, false},
	"SSTORE":   {2, 0, false},
	"TLOAD":    {1, 1, false},
	"TSTORE":   {2, 0, false},
	"MCOPY":    {3, 0, false},
	"JUMP":     {1, 0, false},
	"JUMPI":    {2, 0, false},
	"PC":       {0, 1, false},
	"MSIZE":    {0, 1, false},
	"GAS":      {0, 1, false},
	"JUMPDEST": {0, 0, false},

	"LOG0": {2, 0, false},
	"LOG1": {3, 0, false},
	"LOG2": {4, 0, false},
	"LOG3": {5, 0, false},
	"LOG4": {6, 0, false},

	"CREATE":       {3, 1, false},
	"CALL":         {7, 1, false},
	"CALLCODE":     {7, 1, false},
	"RETURN":       {2, 0, true},
	"DELEGATECALL": {6, 1, false},
	"CREATE2":      {4, 1, false},
	"STATICCALL":   {6, 1, false},
	"REVERT":       {2, 0, true},
	"INVALID":      {0, 0, true},
	"SELFDESTRUCT": {1, 0, true},

	NameTag:               {0, 0, false},
	NamePush:              {0, 1, false},
	"PUSH0":               {0, 1, false},
	NamePushTag:           {0, 1, false},
	NamePushData:          {0, 1, false},
	NamePushDataSize:      {0, 1, false},
	NamePushLib:           {0, 1, false},
	NamePushDeployAddress: {0, 1, false},
	NamePushSize:          {0, 1, false},
	NamePushImmutable:     {0, 1, false},
	NameAssignImmutable:   {2, 0, false},
	NamePushDataBlob:      {0, 1, false},
}

// Lookup returns the stack effect of name. DUPn and SWAPn are reported with
// their full depth as In and Out; PUSHn aliases PUSH.
func Lookup(name string) (OpInfo, bool) {
	if info, ok := opcodes[name]; ok {
		return info, true
	}
	if n, ok := indexed(name, "DUP", 16); ok {
		return OpInfo{In: n, Out: n + 1}, true
	}
	if n, ok := indexed(name, "SWAP", 16); ok {
		return OpInfo{In: n + 1, Out: n + 1}, true
	}
	if _, ok := indexed(name, "PUSH", 32); ok {
		return OpInfo{Out: 1}, true
	}
	return OpInfo{}, false
}

// DupDepth returns n for DUPn.
func DupDepth(name string) (int, bool) { return indexed(name, "DUP", 16) }

// SwapDepth returns n for SWAPn.
func SwapDepth(name string) (int, bool) { return indexed(name, "SWAP", 16) }

func indexed(name, prefix string, max int) (int, bool) {
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(name[len(prefix):])
	if err != nil || n < 1 || n > max {
		return 0, false
	}
	return n, true
}
