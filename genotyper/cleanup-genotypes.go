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

// hasAttr determines whether a genotype carries a non-missing value
// for the given FORMAT field.
func hasAttr(g *vcf.Genotype, key utils.Symbol) bool {
	value, ok := g.Data.Get(key)
	return ok && value != nil
}

// cleanupGenotypeAnnotations normalizes the per-sample FORMAT fields
// of a record after genotyping. The minimum depth of a
// reference-confidence block replaces the depth, strand bias counts
// are dropped unless requested otherwise, physical phasing of
// genotypes homozygous for an alternate allele is rewritten to the
// canonical phased form, and allelic depths are synthesized when
// absent but depth is known. With createRefGTs set, the genotypes
// themselves are rewritten: samples with depth and a positive
// genotype quality become homozygous-reference calls and their
// quality moves to the unconditional reference genotype quality;
// samples without depth or confidence become bare no-calls with
// depth and quality cleared. Either way the now meaningless
// likelihoods are dropped.
func cleanupGenotypeAnnotations(vc *vcf.Variant, createRefGTs, keepSB bool) []vcf.Genotype {
	result := make([]vcf.Genotype, 0, len(vc.GenotypeData))
	for i := range vc.GenotypeData {
		g := vc.GenotypeData[i].Clone()
		depth, _ := genotypeDP(&g)
		if minDepth, ok := g.Data.Get(MIN_DP); ok && minDepth != nil {
			depth = attrInt(minDepth)
			g.Data.Set(DP, depth)
			g.Data, _ = g.Data.Delete(MIN_DP)
		}
		if !keepSB {
			g.Data, _ = g.Data.Delete(SB)
		}
		if g.IsHomVar() && hasAttr(&g, PGT) {
			g.Data.Set(PGT, phasedHomVarGT)
		}
		if !hasAttr(&g, AD) && vc.IsVariant() && depth > 0 {
			ad := make([]interface{}, vc.NAlleles())
			for j := range ad {
				ad[j] = 0
			}
			ad[0] = depth
			g.Data.Set(AD, ad)
		}
		if createRefGTs {
			// samples with zero depth or zero confidence stay no-calls
			if gq, hasGQ := genotypeGQ(&g); depth > 0 && hasGQ && gq > 0 {
				for j := range g.GT {
					g.GT[j] = 0
				}
				g.Phased = false
				g.Data, _ = g.Data.Delete(GQ)
				g.Data.Set(RGQ, gq)
			} else {
				for j := range g.GT {
					g.GT[j] = vcf.NoCall
				}
				g.Phased = false
				g.Data, _ = g.Data.Delete(GQ)
				g.Data, _ = g.Data.Delete(DP)
			}
			g.Data, _ = g.Data.Delete(PL)
		}
		result = append(result, g)
	}
	return result
}

// excludeFromAnnotations determines whether a genotype looks like it
// has no read data and should not contribute to site annotations.
func excludeFromAnnotations(g *vcf.Genotype) bool {
	if !g.IsHomRef() && !g.IsNoCall() {
		return false
	}
	if depth, ok := genotypeDP(g); ok && depth != 0 {
		return false
	}
	gq, ok := genotypeGQ(g)
	return ok && gq == 0
}

// assignNoCallsAnnotationExcludedGenotypes turns quality-0
// homozygous-reference genotypes without read data back into no-calls
// so they do not contribute to the site annotations. Excluded
// genotypes are replaced by modified copies; all others are shared
// with the input.
func assignNoCallsAnnotationExcludedGenotypes(genotypes []vcf.Genotype) []vcf.Genotype {
	result := make([]vcf.Genotype, len(genotypes))
	for i := range genotypes {
		g := genotypes[i]
		if excludeFromAnnotations(&g) {
			ng := g.Clone()
			for j := range ng.GT {
				ng.GT[j] = vcf.NoCall
			}
			ng.Phased = false
			result[i] = ng
		} else {
			result[i] = g
		}
	}
	return result
}
