package db

import (
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

func init() {
	meddler.Register("address", hexMeddler[common.Address]{decode: common.HexToAddress})
	meddler.Register("hash", hexMeddler[common.Hash]{decode: common.HexToHash})
}

// hexValue is a fixed size chain value stored as its 0x prefixed hex string.
type hexValue interface {
	comparable
	Hex() string
}

// hexMeddler converts T and *T to and from hex text columns. NULL reads as the zero value or nil.
type hexMeddler[T hexValue] struct {
	decode func(string) T
}

func (h hexMeddler[T]) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new(sql.NullString), nil
}

func (h hexMeddler[T]) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	switch ptr := fieldAddr.(type) {
	case **T:
		if !ns.Valid {
			*ptr = nil
			return nil
		}
		v := h.decode(ns.String)
		*ptr = &v
	case *T:
		var zero T
		if !ns.Valid {
			*ptr = zero
			return nil
		}
		*ptr = h.decode(ns.String)
	default:
		var zero T
		return fmt.Errorf("expected *%T or **%T, got %T", zero, zero, fieldAddr)
	}

	return nil
}

func (h hexMeddler[T]) PreWrite(field interface{}) (saveValue interface{}, err error) {
	switch v := field.(type) {
	case *T:
		if v == nil {
			return nil, nil
		}
		return (*v).Hex(), nil
	case T:
		return v.Hex(), nil
	default:
		var zero T
		return nil, fmt.Errorf("expected %T or *%T, got %T", zero, zero, field)
	}
}
