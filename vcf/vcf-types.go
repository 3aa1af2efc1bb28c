// gatk-go: a Go implementation of the GATK4 GenotypeGVCFs joint genotyping stage.
// Copyright (c) 2023 sunboy0523.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/sunboy0523/gatk/blob/master/LICENSE.txt>.

package vcf

import (
	"log"

	"github.com/sunboy0523/gatk/internal"
	"github.com/sunboy0523/gatk/utils"
)

// The supported VCF file format version.
const (
	FileFormatVersion           = "VCFv4.2"
	FileFormatVersionLine       = "##fileformat=VCFv4.2"
	fileFormatVersionLinePrefix = "##fileformat=VCFv4."
)

// DefaultHeaderColumns for VCF files. Sample columns follow FORMAT.
var DefaultHeaderColumns = []string{"CHROM", "POS", "ID", "REF", "ALT", "QUAL", "FILTER", "INFO", "FORMAT"}

// Type is an enumeration type for different VCF field types
type Type uint

// The different VCF field types
const (
	InvalidType Type = iota
	Integer          // represented as int (not int32, since that's the same as rune in Go)
	Float            // represented as float64 (parsing as float32 seems problematic in some cases in Go)
	Flag             // represented as bool with fixed value true
	Character        // represented as rune
	String           // represented as string
)

// Constants for format information Number entries. NumberA declares
// one value per alternate allele, NumberR one value per allele
// including the reference, NumberG one value per possible genotype.
const (
	NumberA int32 = -1 * (1 + iota)
	NumberR
	NumberG
	NumberDot
	InvalidNumber
)

// Commonly used VCF entries.
var (
	END  = utils.Intern("END")
	GT   = utils.Intern("GT")
	PASS = utils.Intern("PASS")
)

const (
	// NonRef is the symbolic alternate allele that represents
	// unspecified non-reference evidence in GVCF records.
	NonRef = "<NON_REF>"

	// SpanDel is the allele that represents a spanning deletion.
	SpanDel = "*"
)

// NoCall marks an uncalled allele in a genotype's GT vector.
const NoCall int32 = -1

type (
	// MetaInformation in VCF files.
	MetaInformation struct {
		ID          utils.Symbol
		Description string // "" if not present
		Fields      utils.StringMap
	}

	// FormatInformation describes an INFO or FORMAT field: its
	// declared cardinality (Number) and value type.
	FormatInformation struct {
		ID          utils.Symbol
		Description string // "" if not present
		Number      int32  // > InvalidNumber
		Type        Type
		Fields      utils.StringMap
	}

	// Header section of a VCF file.
	Header struct {
		FileFormat string
		Infos      []*FormatInformation
		Formats    []*FormatInformation
		Meta       map[string][]interface{} // string or *MetaInformation
		Columns    []string
	}

	// Genotype is the per-sample information of a VCF record. The
	// ploidy of the call is the length of GT; GT entries are indices
	// into the record's allele list (0 is the reference allele), or
	// NoCall. Data holds the remaining FORMAT fields.
	Genotype struct {
		Phased bool
		GT     []int32        // NoCall for unknown entries
		Data   utils.SmallMap // values are nil (for missing entry), int, float64, rune, string, or []interface{}
	}

	// Variant is one record of a VCF file. The allele list is Ref
	// followed by Alt, in order; GenotypeData holds one Genotype per
	// sample, in the sample order of the header columns.
	Variant struct {
		Chrom          string
		Pos            int32    // < 0 if unknown
		ID             []string // nil/empty if missing
		Ref            string
		Alt            []string       // nil/empty if missing
		Qual           interface{}    // float64, or nil if missing
		Filter         []utils.Symbol // nil/empty if missing
		Info           utils.SmallMap // values are int, float64, bool, rune, string, or []interface{}
		GenotypeFormat []utils.Symbol
		GenotypeData   []Genotype
	}

	// Vcf represents the full contents of a VCF file.
	Vcf struct {
		Header   *Header
		Variants []*Variant
	}
)

// NewMetaInformation creates an empty instance.
func NewMetaInformation() *MetaInformation {
	return &MetaInformation{Fields: make(utils.StringMap)}
}

// NewFormatInformation creates an empty instance.
func NewFormatInformation() *FormatInformation {
	return &FormatInformation{Number: InvalidNumber, Fields: make(utils.StringMap)}
}

// NewHeader creates an empty instance.
func NewHeader() *Header {
	return &Header{
		FileFormat: FileFormatVersionLine,
		Meta:       make(map[string][]interface{}),
		Columns:    DefaultHeaderColumns,
	}
}

// FindInfo returns the INFO meta-information declared for the given
// field name, or nil if the header does not declare it.
func (header *Header) FindInfo(id utils.Symbol) *FormatInformation {
	for _, info := range header.Infos {
		if info.ID == id {
			return info
		}
	}
	return nil
}

// FindFormat returns the FORMAT meta-information declared for the
// given field name, or nil if the header does not declare it.
func (header *Header) FindFormat(id utils.Symbol) *FormatInformation {
	for _, format := range header.Formats {
		if format.ID == id {
			return format
		}
	}
	return nil
}

// Samples returns the sample names of the header, in column order.
func (header *Header) Samples() []string {
	if len(header.Columns) <= len(DefaultHeaderColumns) {
		return nil
	}
	return header.Columns[len(DefaultHeaderColumns):]
}

// Start returns the start position of a VCF record in the reference.
func (v *Variant) Start() int32 {
	return v.Pos
}

// End returns the end position of a VCF record in the reference,
// determined either by the END field or len(v.Ref)
func (v *Variant) End() int32 {
	if end, ok := v.Info.Get(END); ok {
		switch e := end.(type) {
		case int:
			return int32(e)
		case string:
			i := internal.ParseInt(e, 10, 32)
			v.Info.Set(END, int(i))
			return int32(i)
		default:
			log.Panicf("invalid END value %v", end)
		}
	}
	return v.Pos - 1 + int32(len(v.Ref))
}

// SetEnd sets the end position of a VCF record in the reference by
// setting the END field. If the end position can be calculated from
// the start position and the length of Ref, delete the END field.
func (v *Variant) SetEnd(value int32) {
	if value == v.Pos-1+int32(len(v.Ref)) {
		v.Info, _ = v.Info.Delete(END)
	} else {
		v.Info.Set(END, int(value))
	}
}

// Pass determines whether the variant passed all filters.
func (v *Variant) Pass() bool {
	return len(v.Filter) == 1 && v.Filter[0] == PASS
}

// NAlleles returns the number of alleles of the record, including the
// reference allele.
func (v *Variant) NAlleles() int {
	return 1 + len(v.Alt)
}

// Allele returns the allele with the given index; index 0 is the
// reference allele.
func (v *Variant) Allele(index int) string {
	if index == 0 {
		return v.Ref
	}
	return v.Alt[index-1]
}

// AlleleIndex returns the index of the given allele in the record's
// allele list, or -1 if the allele is not present. The reference
// allele has index 0.
func (v *Variant) AlleleIndex(allele string) int {
	if allele == v.Ref {
		return 0
	}
	for i, a := range v.Alt {
		if a == allele {
			return i + 1
		}
	}
	return -1
}

// IsVariant determines whether the record has at least one alternate
// allele.
func (v *Variant) IsVariant() bool {
	return len(v.Alt) > 0
}

// IsSymbolicAllele determines whether the given allele is a symbolic
// allele like <NON_REF>, a spanning deletion, or a breakend.
func IsSymbolicAllele(a string) bool {
	if len(a) > 1 && (a[0] == '<' || a[len(a)-1] == '>') {
		return true
	}
	if a == SpanDel {
		return true
	}
	for i := 0; i < len(a); i++ {
		if a[i] == '[' || a[i] == ']' || a[i] == '.' {
			return true
		}
	}
	return false
}

// IsCalled determines whether at least one allele of the genotype is
// called.
func (g *Genotype) IsCalled() bool {
	for _, a := range g.GT {
		if a >= 0 {
			return true
		}
	}
	return false
}

// IsNoCall determines whether no allele of the genotype is called.
func (g *Genotype) IsNoCall() bool {
	return !g.IsCalled()
}

// IsHomRef determines whether the genotype is called and carries only
// reference alleles.
func (g *Genotype) IsHomRef() bool {
	if len(g.GT) == 0 {
		return false
	}
	for _, a := range g.GT {
		if a != 0 {
			return false
		}
	}
	return true
}

// IsHomVar determines whether the genotype is called and carries
// multiple copies of the same alternate allele.
func (g *Genotype) IsHomVar() bool {
	if len(g.GT) == 0 || g.GT[0] <= 0 {
		return false
	}
	for _, a := range g.GT[1:] {
		if a != g.GT[0] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the genotype whose GT vector and attribute
// map can be modified without affecting the original.
func (g *Genotype) Clone() Genotype {
	gt := make([]int32, len(g.GT))
	copy(gt, g.GT)
	return Genotype{
		Phased: g.Phased,
		GT:     gt,
		Data:   g.Data.Clone(),
	}
}
