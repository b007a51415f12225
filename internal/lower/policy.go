package lower

import (
	"fmt"
	"sort"

	"zkvmc/internal/diag"
	"zkvmc/internal/project"
	"zkvmc/internal/source"
)

// Action is what the lowering does with an opcode that has no native
// counterpart.
type Action uint8

const (
	// ActionEmulate lowers to a sequence of native instructions or a system
	// contract call.
	ActionEmulate Action = iota
	// ActionError rejects the construct.
	ActionError
	// ActionSuppressible rejects the construct unless the build settings
	// suppress its kind; then it lowers to a trap with a warning.
	ActionSuppressible
)

func (a Action) String() string {
	switch a {
	case ActionError:
		return "error"
	case ActionSuppressible:
		return "suppressible"
	default:
		return "emulate"
	}
}

// Policy documents the lowering of one opcode.
type Policy struct {
	Action Action
	Code   diag.Code
	// Kind is the settings key that suppresses the error.
	Kind string
	Note string
}

// Policies is keyed by lower-case opcode / builtin name.
var Policies = map[string]Policy{
	"selfdestruct": {ActionSuppressible, diag.UNSSelfDestruct, project.SuppressSelfDestruct,
		"the target VM cannot destroy accounts"},
	"callcode": {ActionSuppressible, diag.UNSCallCode, project.SuppressCallCode,
		"no far call mode runs foreign code in the caller's storage with the caller's value"},
	"extcodecopy": {ActionSuppressible, diag.UNSExtCodeCopy, project.SuppressExtCodeCopy,
		"contract code is not addressable memory"},
	"pc": {ActionSuppressible, diag.UNSProgramCounter, project.SuppressPC,
		"native code has no EVM program counter"},
	"blobhash":    {ActionSuppressible, diag.UNSBlob, project.SuppressBlob, "blob transactions are not available"},
	"blobbasefee": {ActionSuppressible, diag.UNSBlob, project.SuppressBlob, "blob transactions are not available"},
	"verbatim":    {ActionError, diag.UNSBuiltin, "", "raw EVM bytecode cannot run on the target VM"},
	"push data":   {ActionError, diag.UNSDataBlob, "", "raw data sections are not part of native code"},
	"runtime codecopy": {ActionError, diag.UNSRuntimeCode, "",
		"runtime code is not readable; only factory dependency hashes are"},
	"runtime codesize": {ActionError, diag.UNSRuntimeCode, "", "runtime code is not readable"},

	"create":      {ActionEmulate, 0, "", "far call to the deployer, address computed by the deployer"},
	"create2":     {ActionEmulate, 0, "", "far call to the deployer, address computed inline"},
	"msize":       {ActionEmulate, 0, "", "tracked heap high-water mark"},
	"gas":         {ActionEmulate, 0, "", "ergs left"},
	"codesize":    {ActionEmulate, 0, "", "deploy code: constructor argument size"},
	"codecopy":    {ActionEmulate, 0, "", "deploy code: constructor arguments; dependency offsets: code hash"},
	"byte":        {ActionEmulate, 0, "", "shift and mask"},
	"signextend":  {ActionEmulate, 0, "", "shift pair"},
	"chainid":     {ActionEmulate, 0, "", "system context"},
	"origin":      {ActionEmulate, 0, "", "system context"},
	"gasprice":    {ActionEmulate, 0, "", "system context"},
	"coinbase":    {ActionEmulate, 0, "", "system context"},
	"timestamp":   {ActionEmulate, 0, "", "system context"},
	"number":      {ActionEmulate, 0, "", "system context"},
	"difficulty":  {ActionEmulate, 0, "", "system context"},
	"prevrandao":  {ActionEmulate, 0, "", "system context"},
	"gaslimit":    {ActionEmulate, 0, "", "system context"},
	"basefee":     {ActionEmulate, 0, "", "system context"},
	"blockhash":   {ActionEmulate, 0, "", "system context"},
	"balance":     {ActionEmulate, 0, "", "eth token contract"},
	"selfbalance": {ActionEmulate, 0, "", "eth token contract"},
	"extcodesize": {ActionEmulate, 0, "", "account code storage"},
	"extcodehash": {ActionEmulate, 0, "", "account code storage"},
}

// PolicyNames returns the policy keys sorted.
func PolicyNames() []string {
	out := make([]string, 0, len(Policies))
	for k := range Policies {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// reject applies a non-emulating policy. It reports the diagnostic and
// terminates the current block with a trap; the caller stops lowering the
// construct. It returns false for emulated opcodes.
func (c *Context) reject(name string, sp source.Span) bool {
	p, ok := Policies[name]
	if !ok || p.Action == ActionEmulate {
		return false
	}
	if p.Action == ActionSuppressible && c.Settings.Suppresses(p.Kind) {
		c.warnf(diag.UNSSuppressed, sp, "%s lowered to a trap (%s suppressed): %s", name, p.Kind, p.Note)
		c.B.Trap(name)
		return true
	}
	msg := fmt.Sprintf("%s is not supported by the target: %s", name, p.Note)
	if p.Action == ActionSuppressible {
		msg += fmt.Sprintf(" (suppress with %q)", p.Kind)
	}
	c.errorf(p.Code, sp, "%s", msg)
	c.B.Trap(name)
	return true
}
