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

package vcf

import (
	"bufio"
	"strings"
	"testing"

	"github.com/sunboy0523/gatk/utils"
)

const testHeaderText = `##fileformat=VCFv4.2
##source=test
##INFO=<ID=DP,Number=1,Type=Integer,Description="Combined depth">
##INFO=<ID=END,Number=1,Type=Integer,Description="End position of the interval">
##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">
##FORMAT=<ID=DP,Number=1,Type=Integer,Description="Read depth">
##FORMAT=<ID=AD,Number=R,Type=Integer,Description="Allelic depths">
##FORMAT=<ID=PL,Number=G,Type=Integer,Description="Phred-scaled genotype likelihoods">
##FORMAT=<ID=GQ,Number=1,Type=Integer,Description="Genotype quality">
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	s1	s2
`

const (
	testVariantLine  = "chr1\t100\trs1\tA\tG,<NON_REF>\t50\t.\tDP=38\tGT:AD:DP:PL\t0/1:10,10,0:20:50,0,90,51,91,120\t0|0:18,0,0:18:0,30,100,40,110,130\n"
	testRefBlockLine = "chr1\t200\t.\tT\t<NON_REF>\t.\t.\tEND=300\tGT:DP:GQ\t0/0:20:60\t./.\n"
)

func parseTestHeader(t *testing.T) *Header {
	hdr, err := ParseHeader(bufio.NewReader(strings.NewReader(testHeaderText)))
	if err != nil {
		t.Fatal(err)
	}
	return hdr
}

func parseTestVariant(t *testing.T, hdr *Header, line string) *Variant {
	var sc StringScanner
	sc.Reset(strings.TrimSuffix(line, "\n"))
	variant := sc.ParseVariant(hdr.NewVariantParser())
	if sc.err != nil {
		t.Fatal(sc.err)
	}
	return variant
}

func TestParseHeader(t *testing.T) {
	hdr := parseTestHeader(t)
	if hdr.FileFormat != FileFormatVersionLine {
		t.Error("file format line failed")
	}
	if len(hdr.Infos) != 2 || len(hdr.Formats) != 5 {
		t.Error("header declarations failed")
	}
	ad := hdr.FindFormat(utils.Intern("AD"))
	if ad == nil || ad.Number != NumberR || ad.Type != Integer {
		t.Error("AD declaration failed")
	}
	pl := hdr.FindFormat(utils.Intern("PL"))
	if pl == nil || pl.Number != NumberG {
		t.Error("PL declaration failed")
	}
	samples := hdr.Samples()
	if len(samples) != 2 || samples[0] != "s1" || samples[1] != "s2" {
		t.Error("header samples failed")
	}
}

func TestParseVariant(t *testing.T) {
	hdr := parseTestHeader(t)
	variant := parseTestVariant(t, hdr, testVariantLine)
	if variant.Chrom != "chr1" || variant.Pos != 100 {
		t.Error("variant position failed")
	}
	if len(variant.ID) != 1 || variant.ID[0] != "rs1" {
		t.Error("variant ID failed")
	}
	if variant.Ref != "A" || len(variant.Alt) != 2 || variant.Alt[0] != "G" || variant.Alt[1] != NonRef {
		t.Error("variant alleles failed")
	}
	if variant.Qual != 50.0 {
		t.Error("variant quality failed")
	}
	if dp, _ := variant.Info.Get(utils.Intern("DP")); dp != 38 {
		t.Error("variant INFO failed")
	}
	g := &variant.GenotypeData[0]
	if len(g.GT) != 2 || g.GT[0] != 0 || g.GT[1] != 1 || g.Phased {
		t.Error("genotype GT failed")
	}
	if !variant.GenotypeData[1].Phased {
		t.Error("phased genotype failed")
	}
	pl, _ := g.Data.Get(utils.Intern("PL"))
	values := pl.([]interface{})
	if len(values) != 6 || values[0] != 50 || values[5] != 120 {
		t.Error("genotype PL failed")
	}
}

func TestVariantEnd(t *testing.T) {
	hdr := parseTestHeader(t)
	variant := parseTestVariant(t, hdr, testVariantLine)
	if variant.End() != 100 {
		t.Error("variant end failed")
	}
	block := parseTestVariant(t, hdr, testRefBlockLine)
	if block.End() != 300 {
		t.Error("reference block end failed")
	}
	block.SetEnd(200)
	if _, ok := block.Info.Get(END); ok {
		t.Error("redundant END removal failed")
	}
}

func TestFormatVariant(t *testing.T) {
	hdr := parseTestHeader(t)
	for _, line := range []string{testVariantLine, testRefBlockLine} {
		variant := parseTestVariant(t, hdr, line)
		out, err := variant.Format(nil)
		if err != nil {
			t.Fatal(err)
		}
		if string(out) != line {
			t.Errorf("variant format failed: %v", string(out))
		}
	}
}

func TestParseGT(t *testing.T) {
	gt, phased := parseGT("0/1")
	if len(gt) != 2 || gt[0] != 0 || gt[1] != 1 || phased {
		t.Error("GT parse failed")
	}
	gt, phased = parseGT("1|1")
	if len(gt) != 2 || gt[0] != 1 || gt[1] != 1 || !phased {
		t.Error("phased GT parse failed")
	}
	gt, _ = parseGT("./.")
	if len(gt) != 2 || gt[0] != NoCall || gt[1] != NoCall {
		t.Error("no-call GT parse failed")
	}
}

func TestIsSymbolicAllele(t *testing.T) {
	for _, a := range []string{NonRef, SpanDel, "<DEL>", "G[chr1:100["} {
		if !IsSymbolicAllele(a) {
			t.Error("symbolic allele detection failed")
		}
	}
	for _, a := range []string{"A", "AT", "G"} {
		if IsSymbolicAllele(a) {
			t.Error("concrete allele detection failed")
		}
	}
}

func TestGenotypePredicates(t *testing.T) {
	homRef := Genotype{GT: []int32{0, 0}}
	if !homRef.IsHomRef() || homRef.IsHomVar() || homRef.IsNoCall() {
		t.Error("hom ref predicates failed")
	}
	homVar := Genotype{GT: []int32{2, 2}}
	if !homVar.IsHomVar() || homVar.IsHomRef() {
		t.Error("hom var predicates failed")
	}
	noCall := Genotype{GT: []int32{NoCall, NoCall}}
	if !noCall.IsNoCall() || noCall.IsCalled() {
		t.Error("no-call predicates failed")
	}
	het := Genotype{GT: []int32{0, 1}}
	if !het.IsCalled() || het.IsHomRef() || het.IsHomVar() {
		t.Error("het predicates failed")
	}
}

func TestGenotypeClone(t *testing.T) {
	g := Genotype{
		GT:   []int32{0, 1},
		Data: utils.SmallMap{{Key: utils.Intern("DP"), Value: 20}},
	}
	ng := g.Clone()
	ng.GT[0] = NoCall
	ng.Data.Set(utils.Intern("DP"), 5)
	if g.GT[0] != 0 {
		t.Error("genotype clone GT failed")
	}
	if dp, _ := g.Data.Get(utils.Intern("DP")); dp != 20 {
		t.Error("genotype clone data failed")
	}
}
