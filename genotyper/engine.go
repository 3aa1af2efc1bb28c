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
	"log"
	"sort"

	"github.com/sunboy0523/gatk/utils"
	"github.com/sunboy0523/gatk/vcf"
)

// variantSubsetToProcess narrows the candidate records for a locus.
// When non-variant sites are included, the traversal is
// locus-by-locus: a candidate that starts exactly at the locus takes
// priority over the surrounding reference blocks. With a single input
// source there can never be more than one record starting at the same
// position.
func (engine *Engine) variantSubsetToProcess(loc Locus, variants []*vcf.Variant) []*vcf.Variant {
	if !engine.includeNonVariants {
		return variants
	}
	var matchingStart []*vcf.Variant
	for _, vc := range variants {
		if vc.Start() == loc.Start {
			matchingStart = append(matchingStart, vc)
		}
	}
	switch len(matchingStart) {
	case 0:
		return variants
	case 1:
		return matchingStart
	default:
		log.Panicf("variant input contains more than one variant starting at %v:%v", loc.Chrom, loc.Start)
		return nil
	}
}

// RecallLocus merges the candidate reference-confidence records that
// overlap a locus and re-derives the final genotype calls for it,
// under either the germline or the somatic calling model. It returns
// nil when the locus yields no record for the output.
func (engine *Engine) RecallLocus(loc Locus, variants []*vcf.Variant, ref *ReferenceContext, features *FeatureContext, merger Merger, somaticInput bool, tlodThreshold, sqThreshold, afTolerance float64) *vcf.Variant {
	variantsToProcess := engine.variantSubsetToProcess(loc, variants)
	mergedVC := merger.Merge(variantsToProcess, loc, ref.Base)
	if mergedVC == nil {
		return nil
	}
	var result *vcf.Variant
	if somaticInput {
		result = engine.regenotypeSomaticVC(mergedVC, tlodThreshold, sqThreshold, afTolerance)
	} else {
		result = engine.regenotypeVC(mergedVC, features)
	}
	if result != nil {
		updateGenotypeFormat(result)
	}
	return result
}

// updateGenotypeFormat recomputes the FORMAT column of a record from
// the FORMAT fields its genotypes actually carry, sorted, with GT
// first.
func updateGenotypeFormat(call *vcf.Variant) {
	seen := make(map[utils.Symbol]bool)
	keys := []utils.Symbol{vcf.GT}
	for i := range call.GenotypeData {
		for _, entry := range call.GenotypeData[i].Data {
			if !seen[entry.Key] {
				seen[entry.Key] = true
				keys = append(keys, entry.Key)
			}
		}
	}
	sort.Slice(keys[1:], func(i, j int) bool {
		return *keys[i+1] < *keys[j+1]
	})
	call.GenotypeFormat = keys
}
