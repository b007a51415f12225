package diag

import (
	"fmt"
)

type Code uint16

// Category groups codes by the error taxonomy of the backend.
type Category uint8

const (
	CatUnknown Category = iota
	CatValidation
	CatUnsupported
	CatLinking
	CatAssembler
	CatResource
	CatAdvisory
	CatProject
)

func (c Category) String() string {
	switch c {
	case CatValidation:
		return "validation"
	case CatUnsupported:
		return "unsupported"
	case CatLinking:
		return "linking"
	case CatAssembler:
		return "assembler"
	case CatResource:
		return "resource"
	case CatAdvisory:
		return "advisory"
	case CatProject:
		return "project"
	}
	return "unknown"
}

const (
	UnknownCode Code = 0

	// Валидация входного IR
	IRVInfo                  Code = 1000
	IRVMalformedInput        Code = 1001
	IRVUndefinedIdentifier   Code = 1002
	IRVDuplicateDeclaration  Code = 1003
	IRVArityMismatch         Code = 1004
	IRVMisplacedControl      Code = 1005
	IRVDuplicateCase         Code = 1006
	IRVUndefinedTag          Code = 1007
	IRVDuplicateTag          Code = 1008
	IRVStackUnderflow        Code = 1009
	IRVInvalidJump           Code = 1010
	IRVUnknownInstruction    Code = 1011
	IRVUnknownObject         Code = 1012
	IRVImmutableBeforeWrite  Code = 1013
	IRVImmutableInRuntime    Code = 1014
	IRVInvalidLiteral        Code = 1015
	IRVMissingRuntime        Code = 1016
	IRVFunctionInForInit     Code = 1017
	IRVUnknownImmutable      Code = 1018
	IRVStackMismatch         Code = 1019

	// Конструкции, которые целевая VM не поддерживает
	UNSInfo           Code = 2000
	UNSOpcode         Code = 2001
	UNSBuiltin        Code = 2002
	UNSRuntimeCode    Code = 2003
	UNSCallCode       Code = 2004
	UNSSelfDestruct   Code = 2005
	UNSExtCodeCopy    Code = 2006
	UNSProgramCounter Code = 2007
	UNSBlob           Code = 2008
	UNSDataBlob       Code = 2009
	UNSSuppressed     Code = 2010

	// Линковка
	LNKInfo               Code = 3000
	LNKLibraryCycle       Code = 3001
	LNKMissingLibrary     Code = 3002
	LNKMissingDependency  Code = 3003
	LNKAmbiguousImmutable Code = 3004
	LNKInvalidAddress     Code = 3005
	LNKDuplicateUnit      Code = 3006

	// Ассемблер
	ASMInfo            Code = 4000
	ASMSyntax          Code = 4001
	ASMUnknownMnemonic Code = 4002
	ASMBadOperand      Code = 4003
	ASMUndefinedLabel  Code = 4004
	ASMMalformedModule Code = 4005

	// Ресурсы
	RESInfo          Code = 5000
	RESStackTooDeep  Code = 5001
	RESCodeTooLarge  Code = 5002
	RESCloneBudget   Code = 5003
	RESFrameTooLarge Code = 5004
	RESConstantPool  Code = 5005

	// Предупреждения
	ADVInfo                  Code = 6000
	ADVUnboundedRecursion    Code = 6001
	ADVUnresolvedPlaceholder Code = 6002

	// Проект и конфигурация
	PRJInfo              Code = 7000
	PRJManifest          Code = 7001
	PRJDuplicateContract Code = 7002
	PRJUnknownContract   Code = 7003
	PRJBadSettings       Code = 7004
	PRJIO                Code = 7005
	PRJTimings           Code = 7006
)

var codeDescription = map[Code]string{
	UnknownCode:              "Unknown error",
	IRVInfo:                  "IR validation information",
	IRVMalformedInput:        "Malformed IR input",
	IRVUndefinedIdentifier:   "Undefined identifier",
	IRVDuplicateDeclaration:  "Duplicate declaration",
	IRVArityMismatch:         "Arity mismatch",
	IRVMisplacedControl:      "Control statement outside of its construct",
	IRVDuplicateCase:         "Duplicate switch case",
	IRVUndefinedTag:          "Jump to undefined tag",
	IRVDuplicateTag:          "Duplicate tag",
	IRVStackUnderflow:        "Stack underflow",
	IRVInvalidJump:           "Jump target is not a tag",
	IRVUnknownInstruction:    "Unknown instruction",
	IRVUnknownObject:         "Unknown object reference",
	IRVImmutableBeforeWrite:  "Immutable read before write",
	IRVImmutableInRuntime:    "Immutable assigned in runtime code",
	IRVInvalidLiteral:        "Invalid literal",
	IRVMissingRuntime:        "Missing runtime code",
	IRVFunctionInForInit:     "Function definition in for-loop init",
	IRVUnknownImmutable:      "Unknown immutable",
	IRVStackMismatch:         "Inconsistent stack height at join",
	UNSInfo:                  "Unsupported construct information",
	UNSOpcode:                "Unsupported opcode",
	UNSBuiltin:               "Unsupported builtin",
	UNSRuntimeCode:           "Runtime code access is not supported",
	UNSCallCode:              "CALLCODE is not supported",
	UNSSelfDestruct:          "SELFDESTRUCT is not supported",
	UNSExtCodeCopy:           "EXTCODECOPY is not supported",
	UNSProgramCounter:        "PC is not supported",
	UNSBlob:                  "Blob opcodes are not supported",
	UNSDataBlob:              "Raw data blobs are not supported",
	UNSSuppressed:            "Unsupported construct lowered to a trap",
	LNKInfo:                  "Linking information",
	LNKLibraryCycle:          "Library dependency cycle",
	LNKMissingLibrary:        "Missing library address",
	LNKMissingDependency:     "Missing factory dependency",
	LNKAmbiguousImmutable:    "Ambiguous immutable assignment",
	LNKInvalidAddress:        "Invalid library address",
	LNKDuplicateUnit:         "Duplicate unit",
	ASMInfo:                  "Assembler information",
	ASMSyntax:                "Assembly syntax error",
	ASMUnknownMnemonic:       "Unknown mnemonic",
	ASMBadOperand:            "Bad operand",
	ASMUndefinedLabel:        "Undefined label",
	ASMMalformedModule:       "Malformed native module",
	RESInfo:                  "Resource information",
	RESStackTooDeep:          "Stack too deep",
	RESCodeTooLarge:          "Code too large",
	RESCloneBudget:           "Block clone budget exhausted",
	RESFrameTooLarge:         "Frame too large",
	RESConstantPool:          "Constant pool overflow",
	ADVInfo:                  "Advisory information",
	ADVUnboundedRecursion:    "Unbounded recursion",
	ADVUnresolvedPlaceholder: "Unresolved library placeholder",
	PRJInfo:                  "Project information",
	PRJManifest:              "Invalid project manifest",
	PRJDuplicateContract:     "Duplicate contract",
	PRJUnknownContract:       "Unknown contract",
	PRJBadSettings:           "Invalid settings",
	PRJIO:                    "I/O error",
	PRJTimings:               "Pipeline timings",
}

func (c Code) Category() Category {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return CatValidation
	case ic >= 2000 && ic < 3000:
		return CatUnsupported
	case ic >= 3000 && ic < 4000:
		return CatLinking
	case ic >= 4000 && ic < 5000:
		return CatAssembler
	case ic >= 5000 && ic < 6000:
		return CatResource
	case ic >= 6000 && ic < 7000:
		return CatAdvisory
	case ic >= 7000 && ic < 8000:
		return CatProject
	}
	return CatUnknown
}

func (c Code) ID() string {
	prefix := "E"
	switch c.Category() {
	case CatValidation:
		prefix = "IRV"
	case CatUnsupported:
		prefix = "UNS"
	case CatLinking:
		prefix = "LNK"
	case CatAssembler:
		prefix = "ASM"
	case CatResource:
		prefix = "RES"
	case CatAdvisory:
		prefix = "ADV"
	case CatProject:
		prefix = "PRJ"
	}
	return fmt.Sprintf("%s%04d", prefix, int(c))
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
