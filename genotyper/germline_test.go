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

func TestIsPolymorphicInSamples(t *testing.T) {
	vc := &vcf.Variant{
		Ref: "A", Alt: []string{"G"},
		GenotypeData: []vcf.Genotype{{GT: []int32{0, 0}}, {GT: []int32{0, 1}}},
	}
	if !isPolymorphicInSamples(vc) {
		t.Error("polymorphic in samples failed")
	}
	vc.GenotypeData[1].GT = []int32{0, 0}
	if isPolymorphicInSamples(vc) {
		t.Error("monomorphic in samples failed")
	}
	if isPolymorphicInSamples(&vcf.Variant{Ref: "A"}) {
		t.Error("polymorphic without alt failed")
	}
}

func TestRegenotypeVC(t *testing.T) {
	engine := testEngine(6, false)
	vc := &vcf.Variant{
		Chrom: "chr1", Pos: 100, Ref: "A", Alt: []string{"G", vcf.NonRef},
		Info: utils.SmallMap{
			{Key: DP, Value: 38},
			{Key: RAW_MQandDP, Value: []interface{}{136800, 38}},
		},
		GenotypeData: []vcf.Genotype{
			{
				GT: []int32{vcf.NoCall, vcf.NoCall},
				Data: utils.SmallMap{
					{Key: DP, Value: 20},
					{Key: AD, Value: []interface{}{10, 10, 0}},
					{Key: PL, Value: []interface{}{50, 0, 90, 51, 91, 120}},
					{Key: SB, Value: []interface{}{5, 5, 5, 5}},
				},
			},
			{
				GT: []int32{vcf.NoCall, vcf.NoCall},
				Data: utils.SmallMap{
					{Key: DP, Value: 18},
					{Key: AD, Value: []interface{}{18, 0, 0}},
					{Key: PL, Value: []interface{}{0, 30, 100, 40, 110, 130}},
				},
			},
		},
	}
	result := engine.regenotypeVC(vc, nil)
	if result == nil {
		t.Fatal("regenotype failed")
	}
	if !allelesEqual(result, "A", "G") {
		t.Error("regenotyped alleles failed")
	}
	if result.Qual != 50.0 {
		t.Error("regenotyped quality failed")
	}
	if !gtEqual(result.GenotypeData[0].GT, 0, 1) || !gtEqual(result.GenotypeData[1].GT, 0, 0) {
		t.Error("regenotyped genotypes failed")
	}
	ad, _ := result.GenotypeData[0].Data.Get(AD)
	if !valuesEqual(ad.([]interface{}), 10, 10) {
		t.Error("regenotyped AD subset failed")
	}
	pl, _ := result.GenotypeData[0].Data.Get(PL)
	if !valuesEqual(pl.([]interface{}), 50, 0, 90) {
		t.Error("regenotyped PL subset failed")
	}
	if _, ok := result.GenotypeData[0].Data.Get(SB); ok {
		t.Error("regenotyped SB removal failed")
	}
	if an, _ := result.Info.Get(AN); an != 4 {
		t.Error("regenotyped AN failed")
	}
	ac, _ := result.Info.Get(AC)
	if !valuesEqual(ac.([]interface{}), 1) {
		t.Error("regenotyped AC failed")
	}
	af, _ := result.Info.Get(AF)
	if !valuesEqual(af.([]interface{}), 0.25) {
		t.Error("regenotyped AF failed")
	}
	if dp, _ := result.Info.Get(DP); dp != 38 {
		t.Error("regenotyped DP failed")
	}
	mleac, _ := result.Info.Get(MLEAC)
	if !valuesEqual(mleac.([]interface{}), 1) {
		t.Error("regenotyped MLEAC failed")
	}
	if mq, _ := result.Info.Get(MQ); mq != 60.0 {
		t.Error("regenotyped MQ failed")
	}
	if _, ok := result.Info.Get(RAW_MQandDP); ok {
		t.Error("raw MQ removal failed")
	}
	if eh, _ := result.Info.Get(ExcessHet); eh != 3.01 {
		t.Error("regenotyped ExcessHet failed")
	}
	if qd, _ := result.Info.Get(QD); qd != 2.5 {
		t.Error("regenotyped QD failed")
	}
}

func TestRegenotypeVCNonVariant(t *testing.T) {
	engine := testEngine(6, false)
	vc := &vcf.Variant{
		Chrom: "chr1", Pos: 100, Ref: "A",
		Info:         utils.SmallMap{{Key: DP, Value: 25}},
		GenotypeData: []vcf.Genotype{{GT: []int32{0, 0}}},
	}
	if engine.regenotypeVC(vc, nil) != nil {
		t.Error("non-variant rejection failed")
	}

	noDepth := &vcf.Variant{
		Chrom: "chr1", Pos: 100, Ref: "A", Alt: []string{"G"},
		GenotypeData: []vcf.Genotype{{GT: []int32{vcf.NoCall, vcf.NoCall}}},
	}
	if engine.regenotypeVC(noDepth, nil) != nil {
		t.Error("zero depth rejection failed")
	}
}

func TestRegenotypeVCHomRefSite(t *testing.T) {
	engine := testEngine(6, true)
	vc := &vcf.Variant{
		Chrom: "chr1", Pos: 100, Ref: "A",
		Info: utils.SmallMap{
			{Key: DP, Value: 25},
			{Key: RAW_MQandDP, Value: []interface{}{90000, 25}},
		},
		GenotypeData: []vcf.Genotype{
			{
				GT: []int32{0, 0},
				Data: utils.SmallMap{
					{Key: DP, Value: 15},
					{Key: MIN_DP, Value: 12},
					{Key: GQ, Value: 45},
				},
			},
			{
				GT: []int32{0, 0},
				Data: utils.SmallMap{
					{Key: DP, Value: 10},
					{Key: GQ, Value: 0},
				},
			},
		},
	}
	result := engine.regenotypeVC(vc, nil)
	if result == nil {
		t.Fatal("hom ref site output failed")
	}
	if !gtEqual(result.GenotypeData[0].GT, 0, 0) {
		t.Error("hom ref site genotype failed")
	}
	if rgq, _ := result.GenotypeData[0].Data.Get(RGQ); rgq != 45 {
		t.Error("hom ref site RGQ failed")
	}
	if dp, _ := result.GenotypeData[0].Data.Get(DP); dp != 12 {
		t.Error("hom ref site MIN_DP relocation failed")
	}
	if !gtEqual(result.GenotypeData[1].GT, vcf.NoCall, vcf.NoCall) {
		t.Error("hom ref site no-call failed")
	}
	if _, ok := result.GenotypeData[1].Data.Get(DP); ok {
		t.Error("hom ref site no-call DP removal failed")
	}
	if mq, _ := result.Info.Get(MQ); mq != 60.0 {
		t.Error("hom ref site MQ failed")
	}
	// genotype-derived annotations are not recomputed at hom ref sites
	if _, ok := result.Info.Get(AN); ok {
		t.Error("hom ref site AN suppression failed")
	}
}

func TestRegenotypeVCMatchKnownID(t *testing.T) {
	engine := testEngine(6, false)
	vc := &vcf.Variant{
		Chrom: "chr1", Pos: 100, Ref: "A", Alt: []string{"G", vcf.NonRef},
		Info:  utils.SmallMap{{Key: DP, Value: 20}},
		GenotypeData: []vcf.Genotype{{
			GT: []int32{vcf.NoCall, vcf.NoCall},
			Data: utils.SmallMap{
				{Key: DP, Value: 20},
				{Key: PL, Value: []interface{}{50, 0, 90, 51, 91, 120}},
			},
		}},
	}
	features := &FeatureContext{Known: []*vcf.Variant{{
		Chrom: "chr1", Pos: 100, ID: []string{"rs123"}, Ref: "A", Alt: []string{"G"},
	}}}
	result := engine.regenotypeVC(vc, features)
	if result == nil {
		t.Fatal("regenotype with features failed")
	}
	if len(result.ID) != 1 || result.ID[0] != "rs123" {
		t.Error("known variant ID match failed")
	}
}
