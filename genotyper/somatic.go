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
	"github.com/sunboy0523/gatk/utils"
	"github.com/sunboy0523/gatk/vcf"
)

// regenotypeSomaticVC re-derives the final genotype calls of a merged
// somatic record under the threshold-based somatic model. It returns
// nil when the site turns out monomorphic and non-variant sites are
// not wanted.
func (engine *Engine) regenotypeSomaticVC(originalVC *vcf.Variant, tlodThreshold, sqThreshold, afTolerance float64) *vcf.Variant {
	if originalVC.IsVariant() && infoDP(originalVC) > 0 {
		return engine.callSomaticGenotypes(originalVC, tlodThreshold, sqThreshold, afTolerance)
	}
	if engine.includeNonVariants {
		return originalVC
	}
	return nil
}

// callSomaticGenotypes drops low quality alleles and calls somatic
// genotypes. The merge stage leaves somatic genotypes no-called; a
// sample calls an alternate allele when its somatic quality (or, when
// absent, its tumor log odds) exceeds the matching threshold, and
// calls the reference allele too unless the site is homoplasmic. The
// ploidy of the resulting call is the number of called alleles.
// Alleles whose per-cohort likelihood sum stays below the lower of
// the two thresholds are removed from the record afterwards, with a
// cap on the number of alternate alleles; removal renumbers every
// genotype and re-projects every allele-indexed FORMAT field.
func (engine *Engine) callSomaticGenotypes(vc *vcf.Variant, tlodThreshold, sqThreshold, afTolerance float64) *vcf.Variant {
	nAlleles := vc.NAlleles()
	perAlleleLikelihoodSums := make([]float64, nAlleles)
	newGenotypes := make([]vcf.Genotype, 0, len(vc.GenotypeData))

	for i := range vc.GenotypeData {
		g := vc.GenotypeData[i].Clone()
		likelihoodKey := TLOD
		threshold := tlodThreshold
		if hasAttr(&g, SQ) {
			likelihoodKey = SQ
			threshold = sqThreshold
		}
		var likelihoods, alleleFractions []float64
		if value, ok := g.Data.Get(likelihoodKey); ok {
			likelihoods = asFloats(value)
		}
		if value, ok := g.Data.Get(AF); ok {
			alleleFractions = asFloats(value)
		}
		afTotal := 0.0
		var calledAlleles []int32
		for a := 0; a < nAlleles-1; a++ {
			if a < len(alleleFractions) {
				afTotal += alleleFractions[a]
			}
			if a < len(likelihoods) && likelihoods[a] > threshold {
				calledAlleles = append(calledAlleles, int32(a+1))
				perAlleleLikelihoodSums[a+1] += likelihoods[a]
			}
		}
		// if the variant is not homoplasmic, the sample carries the
		// reference allele as well
		if afTotal < 1-afTolerance {
			if ad := asInts(attrOrNil(&g, AD)); len(ad) == 0 || ad[0] > 0 {
				calledAlleles = append([]int32{0}, calledAlleles...)
			}
		}
		g.GT = calledAlleles
		g.Phased = false
		newGenotypes = append(newGenotypes, g)
	}

	regenotyped := *vc
	regenotyped.GenotypeData = newGenotypes

	// all surviving alleles must pass the lower of the two thresholds,
	// since the likelihood sums can mix both quality kinds
	minThreshold := minFloat(tlodThreshold, sqThreshold)
	keepIndices := make([]int, 0, nAlleles)
	keepIndices = append(keepIndices, 0)
	for i := 1; i < nAlleles; i++ {
		if perAlleleLikelihoodSums[i] > minThreshold {
			keepIndices = append(keepIndices, i)
		}
	}

	if len(vc.Alt) > engine.maxAltAlleles {
		keepIndices = filterToMaxAlleles(engine.maxAltAlleles, keepIndices, perAlleleLikelihoodSums)
	}

	if len(keepIndices) == 1 {
		return nil
	}

	// if no alleles were dropped then we're done
	if len(keepIndices) == nAlleles {
		return &regenotyped
	}

	regenotyped.GenotypeData = subsetSomaticGenotypes(engine.hdr, newGenotypes, keepIndices)
	alt := make([]string, 0, len(keepIndices)-1)
	for _, index := range keepIndices[1:] {
		alt = append(alt, vc.Allele(index))
	}
	regenotyped.Alt = alt
	trimAlleles(&regenotyped)
	if isProperlyPolymorphic(&regenotyped) {
		return &regenotyped
	}
	return nil
}

// attrOrNil returns the value of a FORMAT field, or nil if the
// genotype does not carry it.
func attrOrNil(g *vcf.Genotype, key utils.Symbol) interface{} {
	value, _ := g.Data.Get(key)
	return value
}
