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
	"github.com/exascience/pargo/parallel"

	"github.com/sunboy0523/gatk/vcf"
)

// A ReferenceConfidenceMerger combines the reference-confidence
// records that overlap a locus into one record with a unioned allele
// list. Candidate records already aggregate the full cohort; merging
// is needed when the traversal hands over a variant record together
// with surrounding reference blocks, or with a deletion spanning the
// locus from an earlier start position.
type ReferenceConfidenceMerger struct {
	Hdr *vcf.Header
}

// extendAllele rewrites an alternate allele expressed against a
// shorter reference allele so that it is expressed against the merged
// reference allele. Symbolic alleles are never rewritten.
func extendAllele(alt, oldRef, newRef string) string {
	if vcf.IsSymbolicAllele(alt) || len(oldRef) == len(newRef) {
		return alt
	}
	return alt + newRef[len(oldRef):]
}

// unionAlleles computes the merged allele list over the candidates
// that start at the locus, with the unspecified non-reference allele
// kept last, plus a spanning deletion allele when a candidate
// reaches over the locus from an earlier start.
func unionAlleles(starting, spanning []*vcf.Variant, ref string) []string {
	alt := []string{}
	nonRef := false
	addAllele := func(a string) {
		if a == vcf.NonRef {
			nonRef = true
			return
		}
		for _, known := range alt {
			if known == a {
				return
			}
		}
		alt = append(alt, a)
	}
	for _, vc := range starting {
		for _, a := range vc.Alt {
			addAllele(extendAllele(a, vc.Ref, ref))
		}
	}
	if len(spanning) > 0 {
		addAllele(vcf.SpanDel)
	}
	if nonRef {
		alt = append(alt, vcf.NonRef)
	}
	return append([]string{ref}, alt...)
}

// sourceAlleles returns the alleles of a source record spelled
// against the merged reference allele.
func sourceAlleles(source *vcf.Variant, mergedRef string) []string {
	alleles := make([]string, source.NAlleles())
	alleles[0] = mergedRef
	for i := 1; i < source.NAlleles(); i++ {
		alleles[i] = extendAllele(source.Allele(i), source.Ref, mergedRef)
	}
	return alleles
}

// strictMapping computes, for every allele of the merged record, its
// index in a source record, or -1 for alleles the source does not
// carry.
func strictMapping(source []string, merged []string) []int {
	mapping := make([]int, len(merged))
	for i, a := range merged {
		mapping[i] = -1
		for j, s := range source {
			if s == a {
				mapping[i] = j
				break
			}
		}
	}
	return mapping
}

// remapGenotype projects one sample's genotype from a source record
// into the merged allele index space. Per-allele values are filled
// with 0 for alleles the source does not carry; likelihoods for
// genotypes involving such alleles take the value of the
// corresponding non-reference genotype, or disappear when the source
// has no non-reference allele.
func remapGenotype(hdr *vcf.Header, g *vcf.Genotype, source *vcf.Variant, merged []string) vcf.Genotype {
	alleles := sourceAlleles(source, merged[0])
	strict := strictMapping(alleles, merged)
	nonRefIndex := source.AlleleIndex(vcf.NonRef)
	toSource := make([]int, len(strict))
	for i, index := range strict {
		if index < 0 {
			index = nonRefIndex
		}
		toSource[i] = index
	}
	toMerged := make([]int32, len(alleles))
	for i := range toMerged {
		toMerged[i] = vcf.NoCall
	}
	for mergedIndex, sourceIndex := range strict {
		if sourceIndex >= 0 {
			toMerged[sourceIndex] = int32(mergedIndex)
		}
	}

	ng := g.Clone()
	for i, a := range ng.GT {
		if a >= 0 {
			ng.GT[i] = toMerged[a]
		}
	}
	for j, entry := range ng.Data {
		declared := hdr.FindFormat(entry.Key)
		if declared == nil || entry.Value == nil {
			continue
		}
		switch declared.Number {
		case vcf.NumberR, vcf.NumberA:
			values := asList(entry.Value)
			offset := 0
			if declared.Number == vcf.NumberA {
				offset = 1
			}
			remapped := make([]interface{}, 0, len(merged)-offset)
			for i := offset; i < len(merged); i++ {
				if index := strict[i]; index >= offset && index-offset < len(values) {
					remapped = append(remapped, values[index-offset])
				} else {
					remapped = append(remapped, 0)
				}
			}
			ng.Data[j].Value = remapped
		case vcf.NumberG:
			ng.Data[j].Value = remapGenotypeIndexedValues(asList(entry.Value), toSource, len(merged))
		}
	}
	return ng
}

// remapGenotypeIndexedValues projects a diploid genotype-indexed
// vector (one value per unordered allele pair) into the merged index
// space. Pairs involving alleles the source does not carry read the
// value of the pair with the source's non-reference allele
// substituted; when the source has no non-reference allele the whole
// vector is dropped.
func remapGenotypeIndexedValues(values []interface{}, toSource []int, nAlleles int) interface{} {
	for _, index := range toSource {
		if index < 0 {
			return nil
		}
	}
	result := make([]interface{}, 0, nAlleles*(nAlleles+1)/2)
	for k := 0; k < nAlleles; k++ {
		for j := 0; j <= k; j++ {
			sj, sk := toSource[j], toSource[k]
			if sk < sj {
				sj, sk = sk, sj
			}
			index := glIndex(sj, sk)
			if index >= len(values) {
				return nil
			}
			result = append(result, values[index])
		}
	}
	return result
}

// Merge combines the candidate records overlapping a locus into one
// merged record positioned at the locus. It returns nil when no
// candidate covers the locus.
func (merger *ReferenceConfidenceMerger) Merge(candidates []*vcf.Variant, loc Locus, refBase byte) *vcf.Variant {
	var starting, spanning []*vcf.Variant
	for _, vc := range candidates {
		switch {
		case vc.Start() == loc.Start:
			starting = append(starting, vc)
		case vc.Start() < loc.Start && vc.End() >= loc.Start:
			spanning = append(spanning, vc)
		}
	}
	if len(starting) == 0 && len(spanning) == 0 {
		return nil
	}

	// the merged reference allele is the longest one among the
	// records starting at the locus
	ref := string([]byte{refBase})
	for _, vc := range starting {
		if len(vc.Ref) > len(ref) {
			ref = vc.Ref
		}
	}

	merged := unionAlleles(starting, spanning, ref)

	// reference blocks spanning the locus stand in for records
	// starting at it
	sources := starting
	if len(sources) == 0 {
		sources = spanning
	}
	primary := sources[0]

	nSamples := len(primary.GenotypeData)
	genotypes := make([]vcf.Genotype, nSamples)
	parallel.Range(0, nSamples, 0, func(low, high int) {
		for s := low; s < high; s++ {
			source := primary
			for _, vc := range sources[1:] {
				if s < len(vc.GenotypeData) && hasAttr(&vc.GenotypeData[s], PL) && !hasAttr(&source.GenotypeData[s], PL) {
					source = vc
				}
			}
			genotypes[s] = remapGenotype(merger.Hdr, &source.GenotypeData[s], source, merged)
		}
	})

	result := &vcf.Variant{
		Chrom:        loc.Chrom,
		Pos:          loc.Start,
		Ref:          merged[0],
		Alt:          merged[1:],
		GenotypeData: genotypes,
	}
	if len(starting) > 0 {
		result.ID = primary.ID
	}

	// depth and raw annotation data accumulate across the merged
	// records
	dp := 0
	var rawMQ []interface{}
	seen := map[*vcf.Variant]bool{}
	for _, vc := range append(starting, spanning...) {
		if seen[vc] {
			continue
		}
		seen[vc] = true
		dp += infoDP(vc)
		if value, ok := vc.Info.Get(RAW_MQandDP); ok && value != nil {
			entries := asList(value)
			if rawMQ == nil {
				rawMQ = append([]interface{}{}, entries...)
			} else {
				for i := range rawMQ {
					if i < len(entries) {
						rawMQ[i] = attrInt(rawMQ[i]) + attrInt(entries[i])
					}
				}
			}
		}
	}
	if dp > 0 {
		result.Info.Set(DP, dp)
	}
	if rawMQ != nil {
		result.Info.Set(RAW_MQandDP, rawMQ)
	}
	updateGenotypeFormat(result)
	return result
}
