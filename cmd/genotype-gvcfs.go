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

package cmd

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"

	"github.com/exascience/pargo/pipeline"
	"github.com/google/uuid"

	"github.com/sunboy0523/gatk/genotyper"
	"github.com/sunboy0523/gatk/utils"
	"github.com/sunboy0523/gatk/vcf"
)

// GenotypeGvcfsHelp is the help string for this command.
const GenotypeGvcfsHelp = "\ngenotype-gvcfs parameters:\n" +
	"gatk-go genotype-gvcfs vcf-file vcf-output-file\n" +
	"[--somatic]\n" +
	"[--include-non-variant-sites]\n" +
	"[--keep-sb]\n" +
	"[--standard-min-confidence-threshold-for-calling number]\n" +
	"[--max-alternate-alleles number]\n" +
	"[--tumor-lod-threshold number]\n" +
	"[--somatic-quality-threshold number]\n" +
	"[--allele-fraction-error number]\n" +
	"[--dbsnp file]\n" +
	"[--nr-of-threads number]\n" +
	"[--timed]\n" +
	"[--log-path path]\n" +
	"[--profile file]\n"

// GenotypeGvcfs implements the genotype-gvcfs command.
func GenotypeGvcfs() error {
	var flags flag.FlagSet

	var (
		somatic, includeNonVariants, keepSB, timed bool
		standardConfidence, tlod, sq, afTolerance  float64
		maxAltAlleles, nrOfThreads                 int
		dbsnpFile, logPath, profile                string
	)

	flags.BoolVar(&somatic, "somatic", false, "use the threshold-based somatic calling model")
	flags.BoolVar(&includeNonVariants, "include-non-variant-sites", false, "emit records for non-variant sites")
	flags.BoolVar(&keepSB, "keep-sb", false, "keep the per-sample strand bias counts in the output")
	flags.Float64Var(&standardConfidence, "standard-min-confidence-threshold-for-calling", 30, "minimum phred-scaled confidence at which variants should be called")
	flags.IntVar(&maxAltAlleles, "max-alternate-alleles", 6, "maximum number of alternate alleles to keep")
	flags.Float64Var(&tlod, "tumor-lod-threshold", 3.5, "tumor log 10 odds threshold for calling somatic alleles")
	flags.Float64Var(&sq, "somatic-quality-threshold", 3.5, "somatic quality threshold for calling somatic alleles")
	flags.Float64Var(&afTolerance, "allele-fraction-error", 0.001, "margin of error for determining a site is homoplasmic")
	flags.StringVar(&dbsnpFile, "dbsnp", "", "VCF file with known variants for ID annotation")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&logPath, "log-path", "", "path for the log file")
	flags.StringVar(&profile, "profile", "", "write a CPU profile per phase to the given file prefix")

	parseFlags(flags, 4, GenotypeGvcfsHelp)

	input := getFilename(os.Args[2], GenotypeGvcfsHelp)
	output := getFilename(os.Args[3], GenotypeGvcfsHelp)

	setLogOutput(logPath)

	sanityChecksFailed := !checkExist("", input) || !checkCreate("", output)
	if dbsnpFile != "" && !checkExist("--dbsnp", dbsnpFile) {
		sanityChecksFailed = true
	}
	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, GenotypeGvcfsHelp)
		os.Exit(1)
	}

	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
	}

	var command strings.Builder
	fmt.Fprint(&command, os.Args[0], " genotype-gvcfs ", input, " ", output)
	if somatic {
		fmt.Fprint(&command, " --somatic")
		fmt.Fprint(&command, " --tumor-lod-threshold ", tlod)
		fmt.Fprint(&command, " --somatic-quality-threshold ", sq)
		fmt.Fprint(&command, " --allele-fraction-error ", afTolerance)
	} else {
		fmt.Fprint(&command, " --standard-min-confidence-threshold-for-calling ", standardConfidence)
	}
	fmt.Fprint(&command, " --max-alternate-alleles ", maxAltAlleles)
	if includeNonVariants {
		fmt.Fprint(&command, " --include-non-variant-sites")
	}
	if keepSB {
		fmt.Fprint(&command, " --keep-sb")
	}
	if dbsnpFile != "" {
		fmt.Fprint(&command, " --dbsnp ", dbsnpFile)
	}
	if nrOfThreads > 0 {
		fmt.Fprint(&command, " --nr-of-threads ", nrOfThreads)
	}
	if timed {
		fmt.Fprint(&command, " --timed")
	}
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}
	commandLine := command.String()
	log.Println("Executing command:\n", commandLine)

	return runGenotypeGvcfs(input, output, dbsnpFile, commandLine, somatic, includeNonVariants, keepSB, timed, standardConfidence, tlod, sq, afTolerance, maxAltAlleles, profile)
}

// ensureInfo adds an INFO declaration to a header unless it is
// already present.
func ensureInfo(hdr *vcf.Header, id string, number int32, typ vcf.Type, description string) {
	sym := utils.Intern(id)
	if hdr.FindInfo(sym) != nil {
		return
	}
	info := vcf.NewFormatInformation()
	info.ID = sym
	info.Number = number
	info.Type = typ
	info.Description = description
	hdr.Infos = append(hdr.Infos, info)
}

// ensureFormat adds a FORMAT declaration to a header unless it is
// already present.
func ensureFormat(hdr *vcf.Header, id string, number int32, typ vcf.Type, description string) {
	sym := utils.Intern(id)
	if hdr.FindFormat(sym) != nil {
		return
	}
	format := vcf.NewFormatInformation()
	format.ID = sym
	format.Number = number
	format.Type = typ
	format.Description = description
	hdr.Formats = append(hdr.Formats, format)
}

// prepareOutputHeader rewrites the input header for the genotyped
// output: provenance meta lines including a unique run identifier,
// and declarations for the fields the engine can add.
func prepareOutputHeader(hdr *vcf.Header, commandLine string) {
	hdr.Meta["source"] = append(hdr.Meta["source"], utils.ProgramName+" GenotypeGVCFs")
	hdr.Meta[utils.ProgramName+"-run-id"] = append(hdr.Meta[utils.ProgramName+"-run-id"], uuid.New().String())
	hdr.Meta[utils.ProgramName+"-command-line"] = append(hdr.Meta[utils.ProgramName+"-command-line"], commandLine)

	lowQual := vcf.NewMetaInformation()
	lowQual.ID = utils.Intern("LowQual")
	lowQual.Description = "Low quality"
	present := false
	for _, meta := range hdr.Meta["FILTER"] {
		if mi, ok := meta.(*vcf.MetaInformation); ok && mi.ID == lowQual.ID {
			present = true
		}
	}
	if !present {
		hdr.Meta["FILTER"] = append(hdr.Meta["FILTER"], lowQual)
	}

	ensureFormat(hdr, "RGQ", 1, vcf.Integer, "Unconditional reference genotype confidence, encoded as a phred quality")
	ensureInfo(hdr, "AC", vcf.NumberA, vcf.Integer, "Allele count in genotypes, for each ALT allele, in the same order as listed")
	ensureInfo(hdr, "AF", vcf.NumberA, vcf.Float, "Allele Frequency, for each ALT allele, in the same order as listed")
	ensureInfo(hdr, "AN", 1, vcf.Integer, "Total number of alleles in called genotypes")
	ensureInfo(hdr, "MLEAC", vcf.NumberA, vcf.Integer, "Maximum likelihood expectation (MLE) for the allele counts")
	ensureInfo(hdr, "MLEAF", vcf.NumberA, vcf.Float, "Maximum likelihood expectation (MLE) for the allele frequency")
	ensureInfo(hdr, "ExcessHet", 1, vcf.Float, "Phred-scaled p-value for exact test of excess heterozygosity")
	ensureInfo(hdr, "QD", 1, vcf.Float, "Variant Confidence/Quality by Depth")
	ensureInfo(hdr, "MQ", 1, vcf.Float, "RMS Mapping Quality")
}

// A locusTask bundles everything one locus invocation needs.
type locusTask struct {
	loc        genotyper.Locus
	candidates []*vcf.Variant
	refBase    byte
	features   *genotyper.FeatureContext
}

type knownSiteKey struct {
	chrom string
	pos   int32
}

// buildLocusTasks groups the input records into per-locus work items.
// Records sharing a start position form one locus; a record reaching
// over a later start position stays a candidate for that locus as
// well, so spanning deletions are seen where they overlap.
func buildLocusTasks(variants []*vcf.Variant, knownSites map[knownSiteKey][]*vcf.Variant) []locusTask {
	var tasks []locusTask
	var active []*vcf.Variant
	for i := 0; i < len(variants); {
		chrom, start := variants[i].Chrom, variants[i].Pos
		j := i
		for j < len(variants) && variants[j].Chrom == chrom && variants[j].Pos == start {
			j++
		}
		spanning := active[:0]
		for _, vc := range active {
			if vc.Chrom == chrom && vc.End() >= start {
				spanning = append(spanning, vc)
			}
		}
		active = spanning
		candidates := make([]*vcf.Variant, 0, len(active)+j-i)
		candidates = append(append(candidates, active...), variants[i:j]...)
		var features *genotyper.FeatureContext
		if knownSites != nil {
			features = &genotyper.FeatureContext{Known: knownSites[knownSiteKey{chrom, start}]}
		}
		tasks = append(tasks, locusTask{
			loc:        genotyper.Locus{Chrom: chrom, Start: start, End: variants[i].End()},
			candidates: candidates,
			refBase:    variants[i].Ref[0],
			features:   features,
		})
		for _, vc := range variants[i:j] {
			if vc.IsVariant() && len(vc.Ref) > 1 {
				active = append(active, vc)
			}
		}
		i = j
	}
	return tasks
}

func runGenotypeGvcfs(input, output, dbsnpFile, commandLine string, somatic, includeNonVariants, keepSB, timed bool, standardConfidence, tlod, sq, afTolerance float64, maxAltAlleles int, profile string) (err error) {
	var vcfIn *vcf.Vcf
	var knownSites map[knownSiteKey][]*vcf.Variant
	phase := int64(1)
	timedRun(timed, profile, "Reading VCF into memory.", phase, func() {
		in, nerr := vcf.Open(input)
		if nerr != nil {
			err = nerr
			return
		}
		defer func() {
			if cerr := in.Close(); err == nil {
				err = cerr
			}
		}()
		vcfIn, err = vcf.ReadVcf(in)
	})
	if err != nil {
		return err
	}

	if dbsnpFile != "" {
		phase++
		timedRun(timed, profile, "Reading known sites into memory.", phase, func() {
			in, nerr := vcf.Open(dbsnpFile)
			if nerr != nil {
				err = nerr
				return
			}
			defer func() {
				if cerr := in.Close(); err == nil {
					err = cerr
				}
			}()
			dbsnp, nerr := vcf.ReadVcf(in)
			if nerr != nil {
				err = nerr
				return
			}
			knownSites = make(map[knownSiteKey][]*vcf.Variant)
			for _, vc := range dbsnp.Variants {
				key := knownSiteKey{vc.Chrom, vc.Pos}
				knownSites[key] = append(knownSites[key], vc)
			}
		})
		if err != nil {
			return err
		}
	}

	hdr := vcfIn.Header
	prepareOutputHeader(hdr, commandLine)
	engine := genotyper.NewEngine(hdr, standardConfidence, maxAltAlleles, includeNonVariants, keepSB)
	merger := &genotyper.ReferenceConfidenceMerger{Hdr: hdr}
	tasks := buildLocusTasks(vcfIn.Variants, knownSites)

	phase++
	timedRun(timed, profile, "Genotyping loci and writing output.", phase, func() {
		out, nerr := vcf.Create(output)
		if nerr != nil {
			err = nerr
			return
		}
		defer func() {
			if cerr := out.Close(); err == nil {
				err = cerr
			}
		}()
		if err = hdr.Format(out.Writer); err != nil {
			return
		}
		var p pipeline.Pipeline
		p.Source(tasks)
		p.Add(
			pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
				batch := data.([]locusTask)
				lines := make([][]byte, 0, len(batch))
				for _, task := range batch {
					call := engine.RecallLocus(task.loc, task.candidates, &genotyper.ReferenceContext{Base: task.refBase}, task.features, merger, somatic, tlod, sq, afTolerance)
					if call == nil {
						continue
					}
					line, ferr := call.Format(nil)
					if ferr != nil {
						p.SetErr(ferr)
						return lines
					}
					lines = append(lines, line)
				}
				return lines
			})),
			pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
				for _, line := range data.([][]byte) {
					if _, werr := out.Writer.Write(line); werr != nil {
						p.SetErr(werr)
						break
					}
				}
				return data
			})),
		)
		p.Run()
		err = p.Err()
	})
	return err
}
