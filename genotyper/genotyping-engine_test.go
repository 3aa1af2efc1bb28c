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

func TestGlIndex(t *testing.T) {
	expected := []int{0, 1, 2, 3, 4, 5}
	actual := []int{
		glIndex(0, 0), glIndex(0, 1), glIndex(1, 1),
		glIndex(0, 2), glIndex(1, 2), glIndex(2, 2),
	}
	if !intsEqual(actual, expected...) {
		t.Error("genotype likelihood indexing failed")
	}
}

func TestBestDiploidGenotype(t *testing.T) {
	j, k, gq := bestDiploidGenotype([]int{50, 0, 90}, 2, -1)
	if j != 0 || k != 1 || gq != 50 {
		t.Error("best genotype het failed")
	}
	j, k, gq = bestDiploidGenotype([]int{0, 30, 100}, 2, -1)
	if j != 0 || k != 0 || gq != 30 {
		t.Error("best genotype hom ref failed")
	}
	// genotype quality is capped
	_, _, gq = bestDiploidGenotype([]int{500, 0, 900}, 2, -1)
	if gq != maxGenotypeQual {
		t.Error("genotype quality cap failed")
	}
	// genotypes involving the excluded allele do not compete
	j, k, gq = bestDiploidGenotype([]int{50, 0, 90, 10, 2, 0}, 3, 2)
	if j != 0 || k != 1 || gq != 50 {
		t.Error("best genotype exclusion failed")
	}
}

func TestSubsetPL(t *testing.T) {
	// alleles [REF, A1, A2], drop A1
	pl := subsetPL([]int{0, 10, 20, 30, 40, 50}, []int{0, 2})
	if !valuesEqual(pl, 0, 30, 50) {
		t.Error("PL subset failed")
	}
	// out of range likelihood vector
	if subsetPL([]int{0, 10, 20}, []int{0, 2}) != nil {
		t.Error("PL subset bounds failed")
	}
}

func TestCalculateGenotypes(t *testing.T) {
	engine := NewGenotypingEngine(30, false)
	vc := &vcf.Variant{
		Chrom: "chr1", Pos: 100, Ref: "A", Alt: []string{"G", vcf.NonRef},
		Info:  utils.SmallMap{{Key: DP, Value: 38}},
		GenotypeData: []vcf.Genotype{
			{
				GT: []int32{vcf.NoCall, vcf.NoCall},
				Data: utils.SmallMap{
					{Key: DP, Value: 20},
					{Key: PL, Value: []interface{}{50, 0, 90, 51, 91, 120}},
				},
			},
			{
				GT: []int32{vcf.NoCall, vcf.NoCall},
				Data: utils.SmallMap{
					{Key: DP, Value: 18},
					{Key: PL, Value: []interface{}{0, 30, 100, 40, 110, 130}},
				},
			},
		},
	}
	result := engine.CalculateGenotypes(vc)
	if result == nil {
		t.Fatal("calculate genotypes failed")
	}
	if !allelesEqual(result, "A", "G") {
		t.Error("uncalled allele drop failed")
	}
	if result.Qual != 50.0 {
		t.Error("site quality failed")
	}
	if result.Filter != nil {
		t.Error("passing site filter failed")
	}
	if !gtEqual(result.GenotypeData[0].GT, 0, 1) || !gtEqual(result.GenotypeData[1].GT, 0, 0) {
		t.Error("genotype assignment failed")
	}
	if gq, _ := result.GenotypeData[0].Data.Get(GQ); gq != 50 {
		t.Error("genotype quality assignment failed")
	}
	pl, _ := result.GenotypeData[0].Data.Get(PL)
	if !valuesEqual(pl.([]interface{}), 50, 0, 90) {
		t.Error("likelihood subset failed")
	}
	mleac, _ := result.Info.Get(MLEAC)
	if !valuesEqual(mleac.([]interface{}), 1) {
		t.Error("MLEAC failed")
	}
	mleaf, _ := result.Info.Get(MLEAF)
	if !valuesEqual(mleaf.([]interface{}), 0.25) {
		t.Error("MLEAF failed")
	}
	// the input record is untouched
	if !gtEqual(vc.GenotypeData[0].GT, vcf.NoCall, vcf.NoCall) {
		t.Error("calculate genotypes modified its input")
	}
}

func TestCalculateGenotypesMonomorphic(t *testing.T) {
	vc := &vcf.Variant{
		Chrom: "chr1", Pos: 100, Ref: "A", Alt: []string{vcf.NonRef},
		GenotypeData: []vcf.Genotype{{
			GT: []int32{vcf.NoCall, vcf.NoCall},
			Data: utils.SmallMap{
				{Key: PL, Value: []interface{}{0, 30, 100}},
			},
		}},
	}
	if NewGenotypingEngine(30, false).CalculateGenotypes(vc) != nil {
		t.Error("monomorphic rejection failed")
	}
	result := NewGenotypingEngine(30, true).CalculateGenotypes(vc)
	if result == nil {
		t.Fatal("forced monomorphic output failed")
	}
	if len(result.Alt) != 0 {
		t.Error("forced monomorphic alleles failed")
	}
	if len(result.Filter) != 1 || result.Filter[0] != LowQual {
		t.Error("low quality filter failed")
	}
}

func TestCalculateGenotypesWithoutLikelihoods(t *testing.T) {
	engine := NewGenotypingEngine(30, false)
	vc := &vcf.Variant{
		Chrom: "chr1", Pos: 100, Ref: "A", Alt: []string{"G"},
		GenotypeData: []vcf.Genotype{
			{
				GT: []int32{vcf.NoCall, vcf.NoCall},
				Data: utils.SmallMap{
					{Key: PL, Value: []interface{}{90, 0, 50}},
				},
			},
			{
				GT:   []int32{0, 0},
				Data: utils.SmallMap{{Key: DP, Value: 10}},
			},
		},
	}
	result := engine.CalculateGenotypes(vc)
	if result == nil {
		t.Fatal("calculate genotypes without likelihoods failed")
	}
	// samples without likelihood data stay no-calls
	if !gtEqual(result.GenotypeData[1].GT, vcf.NoCall, vcf.NoCall) {
		t.Error("no-call assignment without likelihoods failed")
	}
	if !gtEqual(result.GenotypeData[0].GT, 0, 1) {
		t.Error("genotype assignment with likelihoods failed")
	}
}
