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

package genotyper

import (
	"testing"

	"github.com/sunboy0523/gatk/utils"
	"github.com/sunboy0523/gatk/vcf"
)

func TestExtendAllele(t *testing.T) {
	if extendAllele("G", "A", "AT") != "GT" {
		t.Error("allele extension failed")
	}
	if extendAllele("G", "A", "A") != "G" {
		t.Error("allele extension identity failed")
	}
	if extendAllele(vcf.NonRef, "A", "AT") != vcf.NonRef {
		t.Error("symbolic allele extension failed")
	}
}

func stringsEqual(xs []string, expected ...string) bool {
	if len(xs) != len(expected) {
		return false
	}
	for i, x := range xs {
		if x != expected[i] {
			return false
		}
	}
	return true
}

func TestUnionAlleles(t *testing.T) {
	vc1 := &vcf.Variant{Chrom: "chr1", Pos: 100, Ref: "A", Alt: []string{"G", vcf.NonRef}}
	vc2 := &vcf.Variant{Chrom: "chr1", Pos: 100, Ref: "AT", Alt: []string{"A", vcf.NonRef}}
	merged := unionAlleles([]*vcf.Variant{vc1, vc2}, nil, "AT")
	if !stringsEqual(merged, "AT", "GT", "A", vcf.NonRef) {
		t.Error("allele union failed")
	}
	// a spanning deletion contributes its allele
	spanning := &vcf.Variant{Chrom: "chr1", Pos: 90, Ref: "TTTTTTTTTTTA", Alt: []string{"T"}}
	merged = unionAlleles([]*vcf.Variant{vc1}, []*vcf.Variant{spanning}, "A")
	if !stringsEqual(merged, "A", "G", vcf.SpanDel, vcf.NonRef) {
		t.Error("spanning deletion union failed")
	}
}

func TestStrictMapping(t *testing.T) {
	mapping := strictMapping(
		[]string{"AT", "GT", vcf.NonRef},
		[]string{"AT", "GT", "A", vcf.NonRef})
	if !intsEqual(mapping, 0, 1, -1, 2) {
		t.Error("strict allele mapping failed")
	}
}

func TestRemapGenotype(t *testing.T) {
	hdr := testHeader()
	source := &vcf.Variant{Chrom: "chr1", Pos: 100, Ref: "A", Alt: []string{"G", vcf.NonRef}}
	g := vcf.Genotype{
		GT: []int32{vcf.NoCall, vcf.NoCall},
		Data: utils.SmallMap{
			{Key: DP, Value: 20},
			{Key: AD, Value: []interface{}{10, 5, 0}},
			{Key: PL, Value: []interface{}{50, 0, 90, 51, 91, 120}},
		},
	}
	merged := []string{"AT", "GT", "A", vcf.NonRef}
	ng := remapGenotype(hdr, &g, source, merged)
	ad, _ := ng.Data.Get(AD)
	if !valuesEqual(ad.([]interface{}), 10, 5, 0, 0) {
		t.Error("AD remap failed")
	}
	// pairs with the missing allele fall back to the non-reference entries
	pl, _ := ng.Data.Get(PL)
	if !valuesEqual(pl.([]interface{}), 50, 0, 90, 51, 91, 120, 51, 91, 120, 120) {
		t.Error("PL remap failed")
	}
	if dp, _ := ng.Data.Get(DP); dp != 20 {
		t.Error("DP remap passthrough failed")
	}
}

func TestRemapGenotypeWithoutNonRef(t *testing.T) {
	hdr := testHeader()
	source := &vcf.Variant{Chrom: "chr1", Pos: 100, Ref: "A", Alt: []string{"G"}}
	g := vcf.Genotype{
		GT:   []int32{0, 1},
		Data: utils.SmallMap{{Key: PL, Value: []interface{}{50, 0, 90}}},
	}
	merged := []string{"A", "G", "T"}
	ng := remapGenotype(hdr, &g, source, merged)
	// no non-reference fallback, so the likelihoods disappear
	if pl, _ := ng.Data.Get(PL); pl != nil {
		t.Error("PL drop without non-reference allele failed")
	}
	if !gtEqual(ng.GT, 0, 1) {
		t.Error("GT remap failed")
	}
}

func TestMerge(t *testing.T) {
	merger := &ReferenceConfidenceMerger{Hdr: testHeader()}
	loc := Locus{Chrom: "chr1", Start: 100, End: 100}
	starting := &vcf.Variant{
		Chrom: "chr1", Pos: 100, Ref: "A", Alt: []string{"G", vcf.NonRef},
		Info: utils.SmallMap{
			{Key: DP, Value: 20},
			{Key: RAW_MQandDP, Value: []interface{}{72000, 20}},
		},
		GenotypeData: []vcf.Genotype{{
			GT: []int32{vcf.NoCall, vcf.NoCall},
			Data: utils.SmallMap{
				{Key: DP, Value: 20},
				{Key: PL, Value: []interface{}{50, 0, 90, 51, 91, 120}},
			},
		}},
	}
	spanning := &vcf.Variant{
		Chrom: "chr1", Pos: 95, Ref: "TTTTTTA", Alt: []string{"T", vcf.NonRef},
		Info: utils.SmallMap{
			{Key: DP, Value: 10},
			{Key: RAW_MQandDP, Value: []interface{}{14400, 10}},
		},
		GenotypeData: []vcf.Genotype{{
			GT: []int32{vcf.NoCall, vcf.NoCall},
			Data: utils.SmallMap{
				{Key: DP, Value: 10},
				{Key: PL, Value: []interface{}{60, 0, 70, 61, 71, 130}},
			},
		}},
	}
	result := merger.Merge([]*vcf.Variant{spanning, starting}, loc, 'A')
	if result == nil {
		t.Fatal("merge failed")
	}
	if result.Chrom != "chr1" || result.Pos != 100 {
		t.Error("merged position failed")
	}
	if !allelesEqual(result, "A", "G", vcf.SpanDel, vcf.NonRef) {
		t.Error("merged alleles failed")
	}
	if dp, _ := result.Info.Get(DP); dp != 30 {
		t.Error("merged depth failed")
	}
	raw, _ := result.Info.Get(RAW_MQandDP)
	if !valuesEqual(raw.([]interface{}), 86400, 30) {
		t.Error("merged raw MQ failed")
	}
	// the genotypes come from the record starting at the locus
	pl, _ := result.GenotypeData[0].Data.Get(PL)
	if !valuesEqual(pl.([]interface{}), 50, 0, 90, 51, 91, 120, 51, 91, 120, 120) {
		t.Error("merged PL failed")
	}
}

func TestMergeNoCoverage(t *testing.T) {
	merger := &ReferenceConfidenceMerger{Hdr: testHeader()}
	loc := Locus{Chrom: "chr1", Start: 100, End: 100}
	candidate := &vcf.Variant{Chrom: "chr1", Pos: 90, Ref: "T"}
	if merger.Merge([]*vcf.Variant{candidate}, loc, 'A') != nil {
		t.Error("merge without coverage failed")
	}
}
