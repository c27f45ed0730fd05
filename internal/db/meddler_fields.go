package db

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/russross/meddler"
)

func init() {
	// Register custom meddler converter for entity field maps
	meddler.Register("fields", FieldsMeddler{})
}

// FieldsMeddler stores a map[string]any as a JSON object. Numbers are decoded as
// json.Number so large integers keep their exact value.
type FieldsMeddler struct{}

func (f FieldsMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new(sql.NullString), nil
}

func (f FieldsMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	ptr, ok := fieldAddr.(*map[string]any)
	if !ok {
		return fmt.Errorf("expected *map[string]any, got %T", fieldAddr)
	}

	fields, err := DecodeFields([]byte(ns.String))
	if err != nil {
		return err
	}
	*ptr = fields

	return nil
}

func (f FieldsMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	fields, ok := field.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected map[string]any, got %T", field)
	}

	return EncodeFields(fields)
}

// EncodeFields encodes entity fields as a JSON object. A nil map encodes as "{}".
func EncodeFields(fields map[string]any) (string, error) {
	if fields == nil {
		return "{}", nil
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode fields: %w", err)
	}

	return string(data), nil
}

// DecodeFields decodes a JSON object of entity fields. An empty input yields an empty map.
func DecodeFields(data []byte) (map[string]any, error) {
	fields := make(map[string]any)
	if len(bytes.TrimSpace(data)) == 0 {
		return fields, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}

	return fields, nil
}
