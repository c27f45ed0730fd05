package codegen

import (
	"fmt"
	"go/token"
	"go/types"
	"regexp"
	"strings"
	"unicode"
)

var fixedArraySuffix = regexp.MustCompile(`\[\d+\]$`)

const (
	addressType = "address"
	boolType    = "bool"
	stringType  = "string"
	bytesType   = "bytes"
)

// GoTypeName returns the Go type go-ethereum decodes a Solidity type to.
func GoTypeName(solidityType string) string {
	// Handle arrays first (before checking the base type)
	if base, ok := strings.CutSuffix(solidityType, "[]"); ok {
		return "[]" + GoTypeName(base)
	}
	if suffix := fixedArraySuffix.FindString(solidityType); suffix != "" {
		// Fixed-size arrays decode to Go arrays
		base := strings.TrimSuffix(solidityType, suffix)
		size := strings.Trim(suffix, "[]")
		return "[" + size + "]" + GoTypeName(base)
	}

	switch {
	case solidityType == addressType:
		return "common.Address"
	case solidityType == boolType:
		return boolType
	case solidityType == stringType:
		return stringType
	case solidityType == bytesType:
		return "[]byte"
	case solidityType == "bytes32":
		return "common.Hash"
	case strings.HasPrefix(solidityType, bytesType):
		return "[" + strings.TrimPrefix(solidityType, bytesType) + "]byte"
	case isIntType(solidityType):
		if !nativeIntSizes[intSize(solidityType)] {
			return "*big.Int"
		}
		return solidityType
	default:
		return "any"
	}
}

// ParamGoType is GoTypeName for an event parameter: indexed dynamic values only carry
// their hash.
func ParamGoType(param EventParam) string {
	if param.Indexed && isDynamicType(param.Type) {
		return "common.Hash"
	}

	return GoTypeName(param.Type)
}

// Accessor returns the writer.Event method that yields the decoded value of param, or ""
// when the value is read from Event.Args as is.
//
// Indexed dynamic values (string, bytes, arrays) only carry their keccak hash in the log
// and decode as common.Hash, so they are always read raw.
func Accessor(param EventParam) string {
	typ := param.Type
	if param.Indexed && isDynamicType(typ) {
		return ""
	}

	switch {
	case typ == addressType:
		return "Address"
	case typ == "address[]":
		return "Addresses"
	case typ == boolType:
		return "Bool"
	case typ == stringType:
		return "Text"
	case typ == "bytes32":
		return "Bytes32"
	case typ == "uint8":
		return "Uint8"
	case typ == "uint64":
		return "Uint64"
	case isIntType(typ):
		if nativeIntSizes[intSize(typ)] {
			// (u)int16, (u)int32, int8 and int64 decode to their Go counterpart
			return ""
		}
		return "BigInt"
	default:
		return ""
	}
}

// StoreStatement returns the Go statement that writes the decoded value held in varName
// to field key of entity e.
func StoreStatement(param EventParam, key, varName string) string {
	switch Accessor(param) {
	case "Address", "Bytes32":
		return fmt.Sprintf("e.SetString(%q, %s.Hex())", key, varName)
	case "Text":
		return fmt.Sprintf("e.SetString(%q, %s)", key, varName)
	case "Bool":
		return fmt.Sprintf("e.SetBool(%q, %s)", key, varName)
	case "Uint8":
		return fmt.Sprintf("e.SetUint64(%q, uint64(%s))", key, varName)
	case "Uint64":
		return fmt.Sprintf("e.SetUint64(%q, %s)", key, varName)
	case "BigInt":
		return fmt.Sprintf("e.SetBigInt(%q, %s)", key, varName)
	default:
		return fmt.Sprintf("e.Set(%q, %s)", key, varName)
	}
}

// reservedNames are taken inside a generated writer.
var reservedNames = map[string]bool{
	"ctx": true, "wc": true, "e": true, "err": true, "id": true, "w": true,
}

// VarName returns a Go identifier for a decoded parameter that does not clash with
// keywords, predeclared identifiers or the writer's own variables.
func VarName(param EventParam) string {
	name := param.Name
	if name == "" {
		return "arg"
	}
	name = strings.ToLower(name[:1]) + name[1:]
	if token.IsKeyword(name) || reservedNames[name] || types.Universe.Lookup(name) != nil {
		return name + "Arg"
	}

	return name
}

var nativeIntSizes = map[string]bool{"8": true, "16": true, "32": true, "64": true}

func isIntType(typ string) bool {
	return typ == "uint" || typ == "int" || intBits(typ) > 0
}

func intSize(typ string) string {
	return strings.TrimPrefix(strings.TrimPrefix(typ, "u"), "int")
}

func isDynamicType(typ string) bool {
	return typ == stringType || typ == bytesType || strings.HasSuffix(typ, "]")
}

// ToSnakeCase converts a string from camelCase or PascalCase to snake_case. Runs of
// capitals are kept together: "tokenID" becomes "token_id".
func ToSnakeCase(s string) string {
	runes := []rune(s)
	result := make([]rune, 0, len(runes)+len(runes))
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				result = append(result, '_')
			}
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// ToPascalCase converts a string to PascalCase.
func ToPascalCase(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})

	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
		}
	}

	return strings.Join(parts, "")
}

// ToLowerCamelCase converts a string to lowerCamelCase.
func ToLowerCamelCase(s string) string {
	pascal := ToPascalCase(s)
	if len(pascal) == 0 {
		return pascal
	}
	return strings.ToLower(pascal[:1]) + pascal[1:]
}
