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
	"gonum.org/v1/gonum/floats"

	"github.com/sunboy0523/gatk/utils"
	"github.com/sunboy0523/gatk/vcf"
)

// A minimalGenotypingEngine assigns diploid genotypes and a site
// quality from per-sample genotype likelihoods. With forceOutput set
// it emits a record even for sites that turn out monomorphic or fall
// below the calling confidence, marking the latter as low quality.
type minimalGenotypingEngine struct {
	standardConfidence float64
	forceOutput        bool
}

// NewGenotypingEngine creates a germline genotyper that calls sites
// whose quality reaches the given confidence.
func NewGenotypingEngine(standardConfidenceForCalling float64, forceOutput bool) GermlineGenotyper {
	return &minimalGenotypingEngine{
		standardConfidence: standardConfidenceForCalling,
		forceOutput:        forceOutput,
	}
}

// glIndex returns the index of the unordered diploid genotype made of
// alleles j and k (j <= k) in a genotype-indexed vector.
func glIndex(j, k int) int {
	return k*(k+1)/2 + j
}

// bestDiploidGenotype finds the most likely diploid genotype from a
// phred-scaled likelihood vector, excluding genotypes that involve
// the allele with index excluded (pass -1 to exclude none). It
// returns the two allele indices and the phred difference to the
// second-best genotype.
func bestDiploidGenotype(pl []int, nAlleles, excluded int) (j, k, gq int) {
	best, secondBest := -1, -1
	for bk := 0; bk < nAlleles; bk++ {
		if bk == excluded {
			continue
		}
		for bj := 0; bj <= bk; bj++ {
			if bj == excluded {
				continue
			}
			index := glIndex(bj, bk)
			if index >= len(pl) {
				continue
			}
			if best < 0 || pl[index] < pl[best] {
				secondBest = best
				best = index
				j, k = bj, bk
			} else if secondBest < 0 || pl[index] < pl[secondBest] {
				secondBest = index
			}
		}
	}
	if best < 0 {
		return -1, -1, 0
	}
	gq = 0
	if secondBest >= 0 {
		gq = minInt(pl[secondBest]-pl[best], maxGenotypeQual)
	}
	return j, k, gq
}

// subsetPL selects the likelihood entries for the unordered pairs of
// the surviving alleles, given the mapping from new to old allele
// indices.
func subsetPL(pl []int, relevantIndices []int) []interface{} {
	n := len(relevantIndices)
	result := make([]interface{}, 0, n*(n+1)/2)
	for k := 0; k < n; k++ {
		for j := 0; j <= k; j++ {
			index := glIndex(relevantIndices[j], relevantIndices[k])
			if index >= len(pl) {
				return nil
			}
			result = append(result, pl[index])
		}
	}
	return result
}

// CalculateGenotypes assigns the most likely diploid genotype to
// every sample with likelihood data, derives the site quality from
// the combined evidence against the all-reference site, estimates
// the allele counts and frequencies, and drops the alternate alleles
// that no sample calls. It returns nil when the site is monomorphic
// or below the calling confidence, unless output is forced.
func (engine *minimalGenotypingEngine) CalculateGenotypes(vc *vcf.Variant) *vcf.Variant {
	nAlleles := vc.NAlleles()
	excluded := vc.AlleleIndex(vcf.NonRef)

	genotypes := make([]vcf.Genotype, len(vc.GenotypeData))
	quals := make([]float64, 0, len(vc.GenotypeData))
	alleleCounts := make([]int, nAlleles)
	an := 0
	for s := range vc.GenotypeData {
		g := vc.GenotypeData[s].Clone()
		pl := asInts(attrOrNil(&g, PL))
		if len(pl) == 0 {
			for i := range g.GT {
				g.GT[i] = vcf.NoCall
			}
			genotypes[s] = g
			continue
		}
		j, k, gq := bestDiploidGenotype(pl, nAlleles, excluded)
		if j < 0 {
			for i := range g.GT {
				g.GT[i] = vcf.NoCall
			}
			genotypes[s] = g
			continue
		}
		g.GT = []int32{int32(j), int32(k)}
		g.Phased = false
		g.Data.Set(GQ, gq)
		genotypes[s] = g
		quals = append(quals, float64(pl[0]))
		alleleCounts[j]++
		alleleCounts[k]++
		an += 2
	}

	phredScaledConfidence := floats.Sum(quals)
	passes := phredScaledConfidence >= engine.standardConfidence

	// surviving alternate alleles are those some sample calls
	keepIndices := make([]int, 0, nAlleles)
	keepIndices = append(keepIndices, 0)
	for i := 1; i < nAlleles; i++ {
		if i != excluded && alleleCounts[i] > 0 {
			keepIndices = append(keepIndices, i)
		}
	}

	monomorphic := len(keepIndices) == 1
	if (monomorphic || !passes) && !engine.forceOutput {
		return nil
	}

	newIndices := make([]int32, nAlleles)
	for newIndex, oldIndex := range keepIndices {
		newIndices[oldIndex] = int32(newIndex)
	}
	mleac := make([]interface{}, 0, len(keepIndices)-1)
	mleaf := make([]interface{}, 0, len(keepIndices)-1)
	for _, index := range keepIndices[1:] {
		mleac = append(mleac, alleleCounts[index])
		if an > 0 {
			mleaf = append(mleaf, float64(alleleCounts[index])/float64(an))
		} else {
			mleaf = append(mleaf, 0.0)
		}
	}
	for s := range genotypes {
		g := &genotypes[s]
		for i, a := range g.GT {
			if a >= 0 {
				g.GT[i] = newIndices[a]
			}
		}
		if pl := asInts(attrOrNil(g, PL)); len(pl) > 0 && len(keepIndices) < nAlleles {
			g.Data.Set(PL, subsetPL(pl, keepIndices))
		}
	}

	result := *vc
	result.GenotypeData = genotypes
	result.Qual = phredScaledConfidence
	if !passes {
		result.Filter = []utils.Symbol{LowQual}
	} else {
		result.Filter = nil
	}
	alt := make([]string, 0, len(keepIndices)-1)
	for _, index := range keepIndices[1:] {
		alt = append(alt, vc.Allele(index))
	}
	result.Alt = alt
	result.Info = vc.Info.Clone()
	if len(mleac) > 0 {
		result.Info.Set(MLEAC, mleac)
		result.Info.Set(MLEAF, mleaf)
	}
	return &result
}
