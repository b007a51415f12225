package lower

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// System contract addresses.
const (
	AddrAccountCodeStorage = 0x8002
	AddrDeployer           = 0x8006
	AddrMsgValueSimulator  = 0x8009
	AddrEthToken           = 0x800a
	AddrSystemContext      = 0x800b
)

const (
	// ErgsCap bounds the gas forwarded by far calls; the VM passes ergs in a
	// 32-bit register.
	ErgsCap = 1<<32 - 1
	// MaxRecursionDepth is the runtime guard of recursive functions.
	MaxRecursionDepth = 1024
	// DependencyDataSize is datasize() of a factory dependency: its code hash.
	DependencyDataSize = 32
	// create2Scratch is the stack scratch of the CREATE2 address formula:
	// word 0 holds 0xff||this right aligned, so hashing starts at byte 11.
	create2Scratch       = 3
	create2ScratchOffset = 11
	create2PreimageLen   = 1 + 20 + 32 + 32
)

const (
	globalMsize = "msize"
	globalDepth = "depth"
)

// Selector returns the 4-byte ABI selector of signature as a word.
func Selector(signature string) *uint256.Int {
	h := crypto.Keccak256([]byte(signature))
	return uint256.NewInt(uint64(binary.BigEndian.Uint32(h[:4])))
}

// systemGetter maps EVM environment opcodes onto system contract views.
type systemGetter struct {
	Addr      uint64
	Signature string
}

var systemGetters = map[string]systemGetter{
	"chainid":     {AddrSystemContext, "chainId()"},
	"origin":      {AddrSystemContext, "origin()"},
	"gasprice":    {AddrSystemContext, "gasPrice()"},
	"coinbase":    {AddrSystemContext, "coinbase()"},
	"timestamp":   {AddrSystemContext, "getBlockTimestamp()"},
	"number":      {AddrSystemContext, "getBlockNumber()"},
	"difficulty":  {AddrSystemContext, "difficulty()"},
	"prevrandao":  {AddrSystemContext, "difficulty()"},
	"gaslimit":    {AddrSystemContext, "gasLimit()"},
	"basefee":     {AddrSystemContext, "baseFee()"},
	"blockhash":   {AddrSystemContext, "getBlockHashEVM(uint256)"},
	"balance":     {AddrEthToken, "balanceOf(uint256)"},
	"selfbalance": {AddrEthToken, "balanceOf(uint256)"},
	"extcodesize": {AddrAccountCodeStorage, "getCodeSize(uint256)"},
	"extcodehash": {AddrAccountCodeStorage, "getCodeHash(uint256)"},
}

const (
	sigCreate  = "create(bytes32,bytes32,bytes)"
	sigCreate2 = "create2(bytes32,bytes32,bytes)"
)
