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

// isPolymorphicInSamples determines whether at least one sample
// genotype carries a called alternate allele.
func isPolymorphicInSamples(vc *vcf.Variant) bool {
	if !vc.IsVariant() {
		return false
	}
	for i := range vc.GenotypeData {
		for _, a := range vc.GenotypeData[i].GT {
			if a > 0 {
				return true
			}
		}
	}
	return false
}

func (engine *Engine) calculateGenotypes(vc *vcf.Variant, forceOutput bool) *vcf.Variant {
	if forceOutput {
		return engine.forceOutputEngine.CalculateGenotypes(vc)
	}
	return engine.genotypingEngine.CalculateGenotypes(vc)
}

// genotypingAttributes are the INFO fields produced by the genotyping
// model that must survive the carry-over of the pre-genotyping INFO
// fields.
var genotypingAttributes = []utils.Symbol{MLEAC, MLEAF, NDA, ASQual}

// addGenotypingAnnotations carries the INFO fields of the
// pre-genotyping record forward into the regenotyped record, then
// layers the genotyping model's own annotations back on top so they
// win over any stale values.
func addGenotypingAnnotations(originalAttributes utils.SmallMap, newVC *vcf.Variant) {
	attrs := originalAttributes.Clone()
	for _, key := range genotypingAttributes {
		if value, ok := newVC.Info.Get(key); ok {
			attrs.Set(key, value)
		}
	}
	newVC.Info = attrs
}

// homRefSiteAnnotations selects the annotations that are still
// meaningful at sites without an alternate allele: those finalized
// from raw data gathered upstream rather than computed from genotypes.
func homRefSiteAnnotations(key utils.Symbol) bool {
	switch key {
	case MQ, BaseQRankSum, MQRankSum, ReadPosRankSum:
		return true
	}
	return false
}

// regenotypeVC re-derives the final genotype calls of a merged
// reference-confidence record under the population-based germline
// model. It returns nil when the site turns out monomorphic and
// non-variant sites are not wanted.
func (engine *Engine) regenotypeVC(originalVC *vcf.Variant, features *FeatureContext) *vcf.Variant {
	result := originalVC

	// only re-genotype sites with alternate alleles and read data
	if originalVC.IsVariant() && infoDP(originalVC) > 0 {
		regenotyped := engine.calculateGenotypes(originalVC, engine.includeNonVariants)
		if regenotyped == nil {
			return nil
		}
		if !isProperlyPolymorphic(regenotyped) && !engine.includeNonVariants {
			return nil
		}
		// allele-keyed raw annotation data is finalized before the
		// alleles are reverse trimmed, so the keys still match
		addGenotypingAnnotations(originalVC.Info, regenotyped)
		regenotyped = engine.annotations.FinalizeAnnotations(regenotyped, originalVC)
		relevantIndices := relevantAlleleIndices(originalVC, regenotyped)
		reverseTrimAlleles(regenotyped)
		regenotyped.GenotypeData = subsetGenotypeFields(engine.hdr, regenotyped.GenotypeData, relevantIndices)
		result = regenotyped
	}

	// the order of the remaining actions differs between polymorphic
	// and monomorphic sites: polymorphic sites must send the strand
	// bias counts to the annotations before they are removed, while
	// monomorphic sites must create the hom-ref genotypes before the
	// annotations see them
	if isPolymorphicInSamples(result) && infoDP(result) > 0 {
		result.GenotypeData = assignNoCallsAnnotationExcludedGenotypes(result.GenotypeData)
		annotated := engine.annotations.AnnotateContext(result, features, nil)
		annotated.GenotypeData = cleanupGenotypeAnnotations(annotated, false, engine.keepSB)
		return annotated
	}
	if engine.includeNonVariants {
		result.GenotypeData = cleanupGenotypeAnnotations(result, true, false)
		return engine.annotations.AnnotateContext(result, features, homRefSiteAnnotations)
	}
	return nil
}
