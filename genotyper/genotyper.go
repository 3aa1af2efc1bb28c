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

// Package genotyper re-derives final per-site genotype calls from
// merged multi-sample reference-confidence records. It reconciles the
// population-based germline calling model and the threshold-based
// somatic calling model, keeps allele lists, genotype arrays, and
// per-allele annotation arrays mutually consistent while alleles are
// added, dropped, or reordered, and normalizes per-sample FORMAT
// fields for downstream interpretation.
package genotyper

import (
	"log"

	"github.com/sunboy0523/gatk/internal"
	"github.com/sunboy0523/gatk/utils"
	"github.com/sunboy0523/gatk/vcf"
)

var (
	// DP represents depth in VCF files.
	DP = utils.Intern("DP")
	// AD represents allelic depths in VCF files.
	AD = utils.Intern("AD")
	// GQ represents genotype quality in VCF files.
	GQ = utils.Intern("GQ")
	// PL represents likelihoods for genotypes in VCF files.
	PL = utils.Intern("PL")
	// MIN_DP represents minimum depths in GVCF blocks in VCF files.
	MIN_DP = utils.Intern("MIN_DP")
	// SB represents per-sample component strand bias counts in VCF files.
	SB = utils.Intern("SB")
	// RGQ represents the unconditional reference genotype confidence in VCF files.
	RGQ = utils.Intern("RGQ")
	// SQ represents somatic quality in VCF files.
	SQ = utils.Intern("SQ")
	// TLOD represents the tumor log 10 odds that an allele is present in a sample in VCF files.
	TLOD = utils.Intern("TLOD")
	// AF represents allele fractions (FORMAT) or allele frequencies (INFO) in VCF files.
	AF = utils.Intern("AF")

	// PGT represents physical phasing information relative to the reference in VCF files.
	PGT = utils.Intern("PGT")
	// PID represents the physical phasing group identifier in VCF files.
	PID = utils.Intern("PID")
	// PS represents the phase set in VCF files.
	PS = utils.Intern("PS")

	// AC represents allele count in genotypes for each ALT allele in VCF files.
	AC = utils.Intern("AC")
	// AN represents total number of alleles in called genotypes in VCF files.
	AN = utils.Intern("AN")
	// MLEAC represents the maximum likelihood expectation for the allele count in VCF files.
	MLEAC = utils.Intern("MLEAC")
	// MLEAF represents the maximum likelihood expectation for the allele frequency in VCF files.
	MLEAF = utils.Intern("MLEAF")
	// NDA represents the number of alternate alleles discovered at a site in VCF files.
	NDA = utils.Intern("NDA")
	// ASQual represents the allele-specific quality approximation in VCF files.
	ASQual = utils.Intern("AS_QUAL")

	// MQ represents root mean square of mapping quality in VCF files.
	MQ = utils.Intern("MQ")
	// RAW_MQandDP represents raw squared mapping quality and depth in VCF files.
	RAW_MQandDP = utils.Intern("RAW_MQandDP")
	// ExcessHet represents excess heterozygosity in VCF files.
	ExcessHet = utils.Intern("ExcessHet")
	// QD represents variant confidence/quality by depth in VCF files.
	QD = utils.Intern("QD")
	// BaseQRankSum represents rank sum test of alt vs ref base qualities in VCF files.
	BaseQRankSum = utils.Intern("BaseQRankSum")
	// MQRankSum represents rank sum test of alt vs ref read mapping qualities in VCF files.
	MQRankSum = utils.Intern("MQRankSum")
	// ReadPosRankSum represents rank sum test of alt vs ref read position bias in VCF files.
	ReadPosRankSum = utils.Intern("ReadPosRankSum")

	// LowQual marks low quality variants in VCF files.
	LowQual = utils.Intern("LowQual")
)

// phasedHomVarGT is the canonical PGT value for a genotype where both
// haplotypes carry the variant.
const phasedHomVarGT = "1|1"

const maxGenotypeQual = 99

type (
	// A Locus is the genomic position or interval under evaluation.
	Locus struct {
		Chrom      string
		Start, End int32
	}

	// A ReferenceContext carries the reference information that was
	// pre-fetched for a locus by the caller.
	ReferenceContext struct {
		Base byte
	}

	// A FeatureContext carries known variant records overlapping the
	// locus, pre-fetched by the caller.
	FeatureContext struct {
		Known []*vcf.Variant
	}

	// A Merger combines candidate reference-confidence records into
	// one record per locus, with alleles unioned consistently across
	// samples.
	Merger interface {
		Merge(candidates []*vcf.Variant, loc Locus, refBase byte) *vcf.Variant
	}

	// A GermlineGenotyper assigns genotypes and a site quality from
	// per-sample genotype likelihoods. It returns nil when no
	// confident call can be made.
	GermlineGenotyper interface {
		CalculateGenotypes(vc *vcf.Variant) *vcf.Variant
	}

	// An Annotator recomputes and finalizes statistical annotations
	// for a record. It is a stateless external service; all context
	// is passed per call. The keep predicate selects which annotation
	// keys are recomputed for a call; nil keeps all of them.
	Annotator interface {
		AnnotateContext(vc *vcf.Variant, features *FeatureContext, keep func(utils.Symbol) bool) *vcf.Variant
		FinalizeAnnotations(vc, original *vcf.Variant) *vcf.Variant
	}

	// An Engine re-genotypes merged reference-confidence records, one
	// locus at a time. All mutable state is input-scoped, so separate
	// loci can be processed on separate goroutines with separate
	// Engine invocations.
	Engine struct {
		hdr                *vcf.Header
		genotypingEngine   GermlineGenotyper
		forceOutputEngine  GermlineGenotyper
		annotations        Annotator
		includeNonVariants bool
		keepSB             bool
		maxAltAlleles      int
	}
)

// NewEngine creates an engine for re-genotyping merged
// reference-confidence records against the given header.
func NewEngine(hdr *vcf.Header, standardConfidenceForCalling float64, maxAltAlleles int, includeNonVariants, keepSB bool) *Engine {
	return &Engine{
		hdr:                hdr,
		genotypingEngine:   NewGenotypingEngine(standardConfidenceForCalling, false),
		forceOutputEngine:  NewGenotypingEngine(standardConfidenceForCalling, true),
		annotations:        NewAnnotations(hdr),
		includeNonVariants: includeNonVariants,
		keepSB:             keepSB,
		maxAltAlleles:      maxAltAlleles,
	}
}

// attrInt coerces an attribute value that is declared as a number to
// an int. Values that are neither numbers nor numeric strings are a
// data error.
func attrInt(value interface{}) int {
	switch v := value.(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		return int(internal.ParseInt(v, 10, 64))
	default:
		log.Panicf("expected a number or a numeric string but found %v", value)
		return 0
	}
}

func attrFloat(value interface{}) float64 {
	switch v := value.(type) {
	case int:
		return float64(v)
	case float64:
		return v
	case string:
		return internal.ParseFloat(v, 64)
	default:
		log.Panicf("expected a number or a numeric string but found %v", value)
		return 0
	}
}

// asFloats coerces a possibly-scalar attribute value to a vector of
// floats. Missing entries default to 0.
func asFloats(value interface{}) []float64 {
	switch v := value.(type) {
	case []interface{}:
		result := make([]float64, len(v))
		for i, entry := range v {
			if entry != nil {
				result[i] = attrFloat(entry)
			}
		}
		return result
	case nil:
		return nil
	default:
		return []float64{attrFloat(v)}
	}
}

// asInts coerces a possibly-scalar attribute value to a vector of
// ints. Missing entries default to 0.
func asInts(value interface{}) []int {
	switch v := value.(type) {
	case []interface{}:
		result := make([]int, len(v))
		for i, entry := range v {
			if entry != nil {
				result[i] = attrInt(entry)
			}
		}
		return result
	case nil:
		return nil
	default:
		return []int{attrInt(v)}
	}
}

// genotypeDP returns the depth of a genotype, or 0 if it has none.
func genotypeDP(g *vcf.Genotype) (int, bool) {
	if value, ok := g.Data.Get(DP); ok && value != nil {
		return attrInt(value), true
	}
	return 0, false
}

// genotypeGQ returns the genotype quality of a genotype, or 0 if it
// has none.
func genotypeGQ(g *vcf.Genotype) (int, bool) {
	if value, ok := g.Data.Get(GQ); ok && value != nil {
		return attrInt(value), true
	}
	return 0, false
}

// infoDP returns the total depth recorded in the INFO fields of a
// record, or 0 if there is none.
func infoDP(vc *vcf.Variant) int {
	if value, ok := vc.Info.Get(DP); ok && value != nil {
		return attrInt(value)
	}
	return 0
}

func minInt(x, y int) int {
	if x < y {
		return x
	}
	return y
}

func minFloat(x, y float64) float64 {
	if x < y {
		return x
	}
	return y
}
