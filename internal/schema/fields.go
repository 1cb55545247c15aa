// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

/*
fields.go - Declarative Field Schema

A FieldType is a closed tagged union over the value kinds the analytic
store can represent. Metric declarations are built from these and converted
into column descriptors with Convert; the conversion is exhaustive, and any
kind outside the closed set fails with a ConfigurationError at startup
rather than silently dropping data at write time.

Columns are store-agnostic (kind + mode + nested fields); the database
layer maps them onto concrete column types.
*/
package schema

import (
	"fmt"
)

// Kind is the closed set of field kinds supported by the store mapping.
type Kind int

const (
	KindBool Kind = iota
	KindInteger
	KindFloat
	KindString
	KindTimestamp
	KindDate
	KindTime
	KindRecord
	// KindJSON is the semi-structured fallback for unions and maps that
	// have no first-class column representation.
	KindJSON

	// kindInvalid is the zero of an uninitialized FieldType; conversion
	// rejects it.
	kindInvalid Kind = -1
)

// Mode describes column multiplicity.
type Mode int

const (
	ModeRequired Mode = iota
	ModeNullable
	ModeRepeated
)

// FieldType is one declared value type. Construct through the factory
// functions; the zero value is invalid.
type FieldType struct {
	kind     Kind
	valid    bool
	optional bool
	repeated bool
	elem     *FieldType
	fields   []NamedField
	enum     []string
}

// NamedField pairs a field name with its declared type inside a record.
type NamedField struct {
	Name string
	Type FieldType
}

func Bool() FieldType      { return FieldType{kind: KindBool, valid: true} }
func Integer() FieldType   { return FieldType{kind: KindInteger, valid: true} }
func Float() FieldType     { return FieldType{kind: KindFloat, valid: true} }
func String() FieldType    { return FieldType{kind: KindString, valid: true} }
func Timestamp() FieldType { return FieldType{kind: KindTimestamp, valid: true} }
func Date() FieldType      { return FieldType{kind: KindDate, valid: true} }
func TimeOfDay() FieldType { return FieldType{kind: KindTime, valid: true} }

// Enum declares a closed string set. Stored as a plain string column; the
// allowed values ride along on the derived column for consumers that want
// to check incoming data against the declaration.
func Enum(values ...string) FieldType {
	return FieldType{kind: KindString, valid: true, enum: values}
}

// JSON declares a semi-structured value (union, map, free-form object).
func JSON() FieldType { return FieldType{kind: KindJSON, valid: true} }

// Record declares a nested structure with named fields.
func Record(fields ...NamedField) FieldType {
	return FieldType{kind: KindRecord, valid: true, fields: fields}
}

// Optional wraps a type as nullable.
func Optional(t FieldType) FieldType {
	t.optional = true
	return t
}

// Repeated wraps a type as an array of itself.
func Repeated(t FieldType) FieldType {
	elem := t
	return FieldType{kind: elem.kind, valid: elem.valid, repeated: true, elem: &elem, fields: elem.fields, enum: elem.enum}
}

// Column is the store-agnostic column descriptor derived from a FieldType.
// Enum is non-nil only for columns declared as a closed string set.
type Column struct {
	Name   string
	Kind   Kind
	Mode   Mode
	Fields []Column
	Enum   []string
}

// ConfigurationError marks an invalid declared schema. It is fatal at
// startup: a schema the store cannot represent must never reach a write.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("schema configuration error: field %q: %s", e.Field, e.Reason)
}

// Convert derives column descriptors from named field declarations.
func Convert(fields []NamedField) ([]Column, error) {
	columns := make([]Column, 0, len(fields))
	for _, f := range fields {
		col, err := convertField(f.Name, f.Type)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	return columns, nil
}

// convertField maps one declared type onto a column. The switch is
// exhaustive over Kind; anything else is a ConfigurationError.
func convertField(name string, t FieldType) (Column, error) {
	if !t.valid {
		return Column{}, &ConfigurationError{Field: name, Reason: "uninitialized field type"}
	}

	mode := ModeRequired
	if t.optional {
		mode = ModeNullable
	}
	if t.repeated {
		// Repeated wins over nullable: a nullable array is just an empty one.
		mode = ModeRepeated
	}

	switch t.kind {
	case KindBool, KindInteger, KindFloat, KindString, KindTimestamp, KindDate, KindTime, KindJSON:
		return Column{Name: name, Kind: t.kind, Mode: mode, Enum: t.enum}, nil
	case KindRecord:
		nested, err := Convert(t.fields)
		if err != nil {
			return Column{}, err
		}
		return Column{Name: name, Kind: KindRecord, Mode: mode, Fields: nested}, nil
	default:
		return Column{}, &ConfigurationError{Field: name, Reason: fmt.Sprintf("unsupported field kind %d", t.kind)}
	}
}

// String names the kind for logs and errors.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	case KindRecord:
		return "record"
	case KindJSON:
		return "json"
	default:
		return "invalid"
	}
}
