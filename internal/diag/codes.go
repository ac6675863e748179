package diag

import (
	"fmt"
)

type Code uint16

const (
	// Неизвестная ошибка
	UnknownCode Code = 0

	// Ошибки входного typed IR
	TirInfo           Code = 1000
	TirSyntax         Code = 1001
	TirUnknownType    Code = 1002
	TirUnknownVar     Code = 1003
	TirUnknownBlock   Code = 1004
	TirBadInstr       Code = 1005
	TirDuplicateName  Code = 1006
	TirBadOwnership   Code = 1007
	TirBadFBIPMode    Code = 1008
	TirInvalidFunc    Code = 1009
	TirDuplicateFunc  Code = 1010
	TirUnknownField   Code = 1011
	TirUnknownVariant Code = 1012
	TirTypeMismatch   Code = 1013
	TirArity          Code = 1014

	// FBIP
	FbipInfo        Code = 2000
	FbipMissedReuse Code = 2001
	FbipNotInPlace  Code = 2002

	// Наблюдаемость
	ObsInfo    Code = 6000
	ObsTimings Code = 6001

	// Внутренние дефекты компилятора
	ArcInternal          Code = 9000
	ArcOwnershipCycle    Code = 9001
	ArcInvalidIR         Code = 9002
	ArcEliminationFailed Code = 9003
	ArcReuseFailed       Code = 9004
)

var (
	codeDescription = map[Code]string{
		UnknownCode:          "Unknown error",
		TirInfo:              "Typed IR information",
		TirSyntax:            "Malformed typed IR document",
		TirUnknownType:       "Unknown type",
		TirUnknownVar:        "Unknown variable",
		TirUnknownBlock:      "Unknown block",
		TirBadInstr:          "Malformed instruction",
		TirDuplicateName:     "Duplicate name",
		TirBadOwnership:      "Invalid ownership marker",
		TirBadFBIPMode:       "Invalid fbip marker",
		TirInvalidFunc:       "Function fails IR validation",
		TirDuplicateFunc:     "Duplicate function",
		TirUnknownField:      "Unknown field",
		TirUnknownVariant:    "Unknown enum variant",
		TirTypeMismatch:      "Type mismatch",
		TirArity:             "Wrong number of arguments",
		FbipInfo:             "FBIP information",
		FbipMissedReuse:      "Missed reuse opportunity",
		FbipNotInPlace:       "Function is not FBIP",
		ObsInfo:              "Observability information",
		ObsTimings:           "Pipeline timings",
		ArcInternal:          "Internal compiler error",
		ArcOwnershipCycle:    "Cyclic ownership chain",
		ArcInvalidIR:         "Pass produced invalid ARC IR",
		ArcEliminationFailed: "RC elimination failed",
		ArcReuseFailed:       "Reset/reuse expansion failed",
	}
)

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("TIR%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("FBP%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("OBS%04d", ic)
	case ic >= 9000 && ic < 10000:
		return fmt.Sprintf("ARC%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

// Internal reports whether the code belongs to the compiler-defect range.
func (c Code) Internal() bool {
	return c >= ArcInternal && c < 10000
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
