// Package permission packs per-module access levels into a single integer claim.
//
// Each module owns a 3-bit field at offset 3*BitPosition holding a level 0-7.
// Positions are unbounded, so values are carried as *big.Int.
package permission

import (
	"math/big"
	"strings"
)

// FieldWidth is the number of bits each module occupies.
const FieldWidth = 3

const levelMask = 0b111

// Entry is one module grant to encode. Entries missing either field are skipped.
type Entry struct {
	BitPosition *int
	Level       *int
}

// Descriptor identifies a module to decode.
type Descriptor struct {
	ID          string
	BitPosition int
}

// Result is the decoded level for one Descriptor.
type Result struct {
	ID    string
	Level int
}

// NewEntry returns an Entry with both fields set.
func NewEntry(bitPosition, level int) Entry {
	return Entry{BitPosition: &bitPosition, Level: &level}
}

// Encode ORs each entry's level, masked to 3 bits, into a running total
// shifted by 3*BitPosition. Levels above 7 are truncated, not rejected.
func Encode(entries []Entry) *big.Int {
	total := new(big.Int)
	field := new(big.Int)
	for _, e := range entries {
		if e.BitPosition == nil || e.Level == nil || *e.BitPosition < 0 {
			continue
		}
		field.SetInt64(int64(*e.Level & levelMask))
		field.Lsh(field, uint(FieldWidth*(*e.BitPosition)))
		total.Or(total, field)
	}
	return total
}

// Decode extracts each descriptor's level from raw. A raw value that does not
// parse as a non-negative integer, including "", decodes as 0.
func Decode(descriptors []Descriptor, raw string) []Result {
	out := make([]Result, 0, len(descriptors))
	if len(descriptors) == 0 {
		return out
	}
	total := Parse(raw)
	mask := big.NewInt(levelMask)
	field := new(big.Int)
	for _, d := range descriptors {
		level := 0
		if d.BitPosition >= 0 {
			field.Rsh(total, uint(FieldWidth*d.BitPosition))
			field.And(field, mask)
			level = int(field.Int64())
		}
		out = append(out, Result{ID: d.ID, Level: level})
	}
	return out
}

// Parse reads a decimal claim value. Invalid or negative input yields 0.
func Parse(raw string) *big.Int {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || v.Sign() < 0 {
		return new(big.Int)
	}
	return v
}

// Merge ORs the given values together; used to combine grants of several roles
// within one system. Nil values are ignored.
func Merge(values ...*big.Int) *big.Int {
	total := new(big.Int)
	for _, v := range values {
		if v != nil {
			total.Or(total, v)
		}
	}
	return total
}

// Format renders v as the decimal string carried in the claim.
func Format(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// ClaimName returns the claim key carrying the encoded value for a system.
func ClaimName(systemCode string) string {
	return "Access:" + systemCode
}
