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

	"github.com/willf/bitset"

	"github.com/sunboy0523/gatk/vcf"
)

// asList views a possibly-scalar attribute value as a value list.
func asList(value interface{}) []interface{} {
	switch v := value.(type) {
	case []interface{}:
		return v
	case nil:
		return nil
	default:
		return []interface{}{v}
	}
}

// subsetAlleleIndexedValues re-projects an allele-indexed value
// vector onto a surviving allele subset. relevantIndices holds, for
// every surviving allele, its index in the original allele list;
// index 0 is always the reference allele. Fields declared with one
// value per alternate allele drop the entries of removed alleles;
// fields declared with one value per allele additionally preserve the
// reference entry. Values of fields with any other declared
// cardinality pass through unchanged.
func subsetAlleleIndexedValues(number int32, values []interface{}, relevantIndices []int) []interface{} {
	switch number {
	case vcf.NumberA:
		result := make([]interface{}, 0, len(relevantIndices)-1)
		for _, index := range relevantIndices[1:] {
			if index < 1 || index-1 >= len(values) {
				log.Panicf("allele index %v out of range for a vector of %v values", index, len(values))
			}
			result = append(result, values[index-1])
		}
		return result
	case vcf.NumberR:
		result := make([]interface{}, 0, len(relevantIndices))
		for _, index := range relevantIndices {
			if index < 0 || index >= len(values) {
				log.Panicf("allele index %v out of range for a vector of %v values", index, len(values))
			}
			result = append(result, values[index])
		}
		return result
	default:
		return values
	}
}

// subsetGenotypeFields rewrites every allele-indexed FORMAT field of
// the given genotypes so that it is consistent with the surviving
// allele subset. The GT vectors are left alone; they are expected to
// be in the new index space already. A FORMAT field that is present
// in the data but not declared in the header is an inconsistent
// schema and a hard failure.
func subsetGenotypeFields(hdr *vcf.Header, genotypes []vcf.Genotype, relevantIndices []int) []vcf.Genotype {
	result := make([]vcf.Genotype, len(genotypes))
	for i := range genotypes {
		g := genotypes[i].Clone()
		for j, entry := range g.Data {
			declared := hdr.FindFormat(entry.Key)
			if declared == nil {
				log.Panicf("FORMAT field %v not declared in the VCF header during allele subsetting", *entry.Key)
			}
			if entry.Value == nil {
				continue
			}
			if declared.Number == 1 && declared.Type == vcf.Integer {
				continue
			}
			switch declared.Number {
			case vcf.NumberA, vcf.NumberR:
				g.Data[j].Value = subsetAlleleIndexedValues(declared.Number, asList(entry.Value), relevantIndices)
			}
		}
		result[i] = g
	}
	return result
}

// survivingAlleleSet returns the set of original allele indices that
// survive, for membership tests during genotype rewrites.
func survivingAlleleSet(relevantIndices []int) *bitset.BitSet {
	set := bitset.New(uint(len(relevantIndices)))
	for _, index := range relevantIndices {
		set.Set(uint(index))
	}
	return set
}

// subsetSomaticGenotypes rewrites somatic genotypes against a
// surviving allele subset: called alleles that were dropped disappear
// from the GT vector (reducing that sample's ploidy), surviving ones
// are renumbered, and every allele-indexed FORMAT field is
// re-projected like in subsetGenotypeFields.
func subsetSomaticGenotypes(hdr *vcf.Header, genotypes []vcf.Genotype, relevantIndices []int) []vcf.Genotype {
	surviving := survivingAlleleSet(relevantIndices)
	newIndices := make([]int32, 0, len(relevantIndices))
	maxOld := 0
	for _, index := range relevantIndices {
		if index > maxOld {
			maxOld = index
		}
	}
	newIndices = append(newIndices, make([]int32, maxOld+1)...)
	for newIndex, oldIndex := range relevantIndices {
		newIndices[oldIndex] = int32(newIndex)
	}
	result := subsetGenotypeFields(hdr, genotypes, relevantIndices)
	for i := range result {
		g := &result[i]
		newGT := g.GT[:0]
		for _, a := range g.GT {
			if a < 0 {
				newGT = append(newGT, a)
			} else if surviving.Test(uint(a)) {
				newGT = append(newGT, newIndices[a])
			}
		}
		g.GT = newGT
	}
	return result
}

// filterToMaxAlleles caps the number of retained alternate alleles.
// keepIndices holds the original indices of the surviving alleles,
// reference first; likelihoodSums scores every original allele. The
// maxAlt highest-scoring alternate alleles are retained, with ties
// broken in favor of earlier input order, and the result preserves
// the input order.
func filterToMaxAlleles(maxAlt int, keepIndices []int, likelihoodSums []float64) []int {
	alts := keepIndices[1:]
	if len(alts) <= maxAlt {
		return keepIndices
	}
	ranked := make([]int, len(alts))
	copy(ranked, alts)
	sort.SliceStable(ranked, func(i, j int) bool {
		return likelihoodSums[ranked[i]] > likelihoodSums[ranked[j]]
	})
	top := bitset.New(uint(len(likelihoodSums)))
	for _, index := range ranked[:maxAlt] {
		top.Set(uint(index))
	}
	result := make([]int, 0, maxAlt+1)
	result = append(result, keepIndices[0])
	for _, index := range alts {
		if top.Test(uint(index)) {
			result = append(result, index)
		}
	}
	return result
}

// relevantAlleleIndices computes, for every allele of the new record,
// its index in the original record's allele list.
func relevantAlleleIndices(original, updated *vcf.Variant) []int {
	indices := make([]int, 0, updated.NAlleles())
	for i := 0; i < updated.NAlleles(); i++ {
		indices = append(indices, original.AlleleIndex(updated.Allele(i)))
	}
	return indices
}
