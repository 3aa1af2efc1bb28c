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
	"github.com/sunboy0523/gatk/vcf"
)

// reverseTrimAlleles clips the common suffix of the reference allele
// and all non-symbolic alternate alleles, keeping at least one base
// per allele. The record is modified in place; the start position is
// unaffected.
func reverseTrimAlleles(call *vcf.Variant) {
	trim := len(call.Ref) - 1
	if trim < 1 {
		return
	}
	for _, a := range call.Alt {
		if vcf.IsSymbolicAllele(a) {
			continue
		}
		for i := 0; i <= trim; i++ {
			if i == len(a) {
				trim = i - 1
				break
			}
			if a[len(a)-i-1] != call.Ref[len(call.Ref)-i-1] {
				trim = i
				break
			}
		}
		if trim < 1 {
			return
		}
	}
	call.Ref = call.Ref[:len(call.Ref)-trim]
	for i, a := range call.Alt {
		if !vcf.IsSymbolicAllele(a) {
			call.Alt[i] = a[:len(a)-trim]
		}
	}
}

// forwardTrimAlleles clips the common prefix of the reference allele
// and all non-symbolic alternate alleles, keeping at least one base
// per allele, and moves the start position forward accordingly.
func forwardTrimAlleles(call *vcf.Variant) {
	trim := len(call.Ref) - 1
	if trim < 1 {
		return
	}
	for _, a := range call.Alt {
		if vcf.IsSymbolicAllele(a) {
			continue
		}
		for i := 0; i <= trim; i++ {
			if i == len(a) {
				trim = i - 1
				break
			}
			if a[i] != call.Ref[i] {
				trim = i
				break
			}
		}
		if trim < 1 {
			return
		}
	}
	call.Ref = call.Ref[trim:]
	for i, a := range call.Alt {
		if !vcf.IsSymbolicAllele(a) {
			call.Alt[i] = a[trim:]
		}
	}
	call.Pos += int32(trim)
}

// trimAlleles clips the common suffix and then the common prefix of
// the record's alleles.
func trimAlleles(call *vcf.Variant) {
	reverseTrimAlleles(call)
	forwardTrimAlleles(call)
}

// isProperlyPolymorphic determines whether a record represents an
// actual variant site: it has at least one alternate allele, and is
// not biallelic with a lone symbolic or spanning-deletion alternate.
func isProperlyPolymorphic(vc *vcf.Variant) bool {
	if vc == nil || len(vc.Alt) == 0 {
		return false
	}
	if len(vc.Alt) == 1 {
		return !vcf.IsSymbolicAllele(vc.Alt[0])
	}
	return true
}
