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
	"math"

	"github.com/sunboy0523/gatk/utils"
	"github.com/sunboy0523/gatk/vcf"
)

// annotations recomputes site-level INFO annotations from genotypes
// and finalizes raw annotation data gathered upstream.
type annotations struct {
	hdr *vcf.Header
}

// NewAnnotations creates an annotator against the given header.
func NewAnnotations(hdr *vcf.Header) Annotator {
	return &annotations{hdr: hdr}
}

const maxQualByDepth = 35.0

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// chromosomeCounts tallies the called allele copies across samples.
func chromosomeCounts(vc *vcf.Variant) (ac []int, an int) {
	ac = make([]int, len(vc.Alt))
	for i := range vc.GenotypeData {
		for _, a := range vc.GenotypeData[i].GT {
			if a >= 0 {
				an++
				if a > 0 && int(a) <= len(ac) {
					ac[a-1]++
				}
			}
		}
	}
	return ac, an
}

// genotypeDepthSum sums the reported depths across samples, counting
// only genotypes the given predicate admits.
func genotypeDepthSum(vc *vcf.Variant, admit func(g *vcf.Genotype) bool) int {
	sum := 0
	for i := range vc.GenotypeData {
		g := &vc.GenotypeData[i]
		if admit != nil && !admit(g) {
			continue
		}
		if depth, ok := genotypeDP(g); ok {
			sum += depth
		}
	}
	return sum
}

// finalizeRawMQ turns the raw squared mapping quality and depth
// gathered upstream into the root mean square mapping quality and
// removes the raw data.
func finalizeRawMQ(vc *vcf.Variant) {
	value, ok := vc.Info.Get(RAW_MQandDP)
	if !ok || value == nil {
		return
	}
	raw := asFloats(value)
	vc.Info, _ = vc.Info.Delete(RAW_MQandDP)
	if len(raw) < 2 || raw[1] <= 0 {
		return
	}
	vc.Info.Set(MQ, round2(math.Sqrt(raw[0]/raw[1])))
}

// matchKnownID assigns the identifier of a known variant overlapping
// the locus when its position and reference allele match and it
// shares at least one alternate allele with the record.
func matchKnownID(vc *vcf.Variant, features *FeatureContext) {
	if features == nil || len(vc.ID) > 0 {
		return
	}
	for _, known := range features.Known {
		if known.Chrom != vc.Chrom || known.Pos != vc.Pos || known.Ref != vc.Ref || len(known.ID) == 0 {
			continue
		}
		for _, a := range vc.Alt {
			if known.AlleleIndex(a) > 0 {
				vc.ID = known.ID
				return
			}
		}
	}
}

// AnnotateContext recomputes the site annotations of a record from
// its genotypes. The keep predicate selects which annotation keys are
// recomputed; nil keeps all of them.
func (ann *annotations) AnnotateContext(vc *vcf.Variant, features *FeatureContext, keep func(key utils.Symbol) bool) *vcf.Variant {
	if keep == nil {
		keep = func(utils.Symbol) bool { return true }
	}
	if keep(AC) {
		ac, an := chromosomeCounts(vc)
		vc.Info.Set(AN, an)
		if len(ac) > 0 {
			acValues := make([]interface{}, len(ac))
			afValues := make([]interface{}, len(ac))
			for i, count := range ac {
				acValues[i] = count
				if an > 0 {
					afValues[i] = round2(float64(count) / float64(an))
				} else {
					afValues[i] = 0.0
				}
			}
			vc.Info.Set(AC, acValues)
			vc.Info.Set(AF, afValues)
		}
	}
	if keep(DP) {
		if depth := genotypeDepthSum(vc, nil); depth > 0 {
			vc.Info.Set(DP, depth)
		}
	}
	if keep(ExcessHet) && vc.IsVariant() && len(vc.GenotypeData) > 0 {
		vc.Info.Set(ExcessHet, round2(calculateExcessHet(vc)))
	}
	if keep(QD) && vc.IsVariant() {
		if qual, ok := vc.Qual.(float64); ok && qual > 0 {
			depth := genotypeDepthSum(vc, func(g *vcf.Genotype) bool {
				return g.IsCalled() && !g.IsHomRef()
			})
			if depth > 0 {
				vc.Info.Set(QD, round2(minFloat(qual/float64(depth), maxQualByDepth)))
			}
		}
	}
	if keep(MQ) {
		finalizeRawMQ(vc)
	}
	matchKnownID(vc, features)
	return vc
}

// FinalizeAnnotations finalizes the raw annotation data of a
// regenotyped record. The raw data was keyed on the pre-genotyping
// record's alleles, so this must run before the alleles are trimmed.
func (ann *annotations) FinalizeAnnotations(vc, original *vcf.Variant) *vcf.Variant {
	finalizeRawMQ(vc)
	return vc
}

// calculateExcessHet phred-scales the p-value of an exact test for
// an excess of heterozygous genotypes relative to Hardy-Weinberg
// expectations.
func calculateExcessHet(vc *vcf.Variant) float64 {
	refCount, hetCount, homCount := 0, 0, 0
	for i := range vc.GenotypeData {
		gt := vc.GenotypeData[i].GT
		if len(gt) != 2 || gt[0] < 0 || gt[1] < 0 {
			continue
		}
		switch {
		case gt[0] == 0 && gt[1] == 0:
			refCount++
		case gt[0] == gt[1]:
			homCount++
		default:
			hetCount++
		}
	}
	pval := exactTest(hetCount, refCount, homCount)
	if pval < 10e-60 {
		return phredScaledMinPValue
	}
	return -10 * math.Log10(pval)
}

const minNeededValue = 1.0e-16

var phredScaledMinPValue = -10 * math.Log10(minNeededValue)

// exactTest computes the right-tail p-value of observing the given
// number of heterozygous genotypes by an exact conditional test.
func exactTest(hetCount, refCount, homCount int) float64 {
	var obsHomR, obsHomC int
	if refCount < homCount {
		obsHomR, obsHomC = refCount, homCount
	} else {
		obsHomR, obsHomC = homCount, refCount
	}
	rareCopies := 2*obsHomR + hetCount

	if rareCopies <= 1 {
		return 0.5
	}

	n := hetCount + obsHomC + obsHomR

	probs := make([]float64, rareCopies+1)
	mid := rareCopies * (2*n - rareCopies) / (2*n - 1)
	if mid%2 != rareCopies%2 {
		mid++
	}
	probs[mid] = 1
	sum := 1.0
	curHets := mid
	curHomR := (rareCopies - mid) / 2
	curHomC := n - curHets - curHomR
	for curHets >= 2 {
		potentialProb := probs[curHets] * float64(curHets*(curHets-1)) / float64(4*(curHomR+1)*(curHomC+1))
		if potentialProb < minNeededValue {
			break
		}
		probs[curHets-2] = potentialProb
		sum += potentialProb
		curHets -= 2
		curHomR++
		curHomC++
	}

	curHets = mid
	curHomR = (rareCopies - mid) / 2
	curHomC = n - curHets - curHomR
	for curHets <= rareCopies-2 {
		potentialProb := probs[curHets] * 4 * float64(curHomR*curHomC) / float64((curHets+2)*(curHets+1))
		if potentialProb < minNeededValue {
			break
		}
		probs[curHets+2] = potentialProb
		sum += potentialProb
		curHets += 2
		curHomR--
		curHomC--
	}

	rightPval := probs[hetCount] / (2 * sum)
	if hetCount == rareCopies {
		return rightPval
	}
	var probSum float64
	for i := hetCount + 1; i < len(probs); i++ {
		probSum += probs[i]
	}
	return rightPval + probSum/sum
}
