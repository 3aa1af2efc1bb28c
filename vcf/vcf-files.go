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
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sunboy0523/gatk/utils"
)

const (
	idKey          = "ID"
	descriptionKey = "Description"
	numberKey      = "Number"
	typeKey        = "Type"
)

// ParseMetaField parses a key=value pair in a structured
// meta-information line. The value may be quoted.
func (sc *StringScanner) ParseMetaField() (key, value string) {
	sc.SkipSpace()
	key, found := sc.readUntilByte('=')
	if !found {
		if sc.err == nil {
			sc.err = fmt.Errorf("missing value in a VCF meta-information field: %v", sc.data)
		}
		return key, ""
	}
	if sc.index < len(sc.data) && sc.data[sc.index] == '"' {
		sc.index++
		value, found = sc.readUntilByte('"')
		if !found && sc.err == nil {
			sc.err = fmt.Errorf("unterminated string in a VCF meta-information line: %v", sc.data)
		}
		return key, value
	}
	value = sc.readUntilBytes([]byte{',', '>'})
	return key, value
}

// ParseMetaInformation parses a meta-information line, either a
// simple value or a structured ID=...,... entry between angle
// brackets.
func (sc *StringScanner) ParseMetaInformation() interface{} {
	if sc.err != nil {
		return nil
	}
	if sc.index >= len(sc.data) || sc.data[sc.index] != '<' {
		return sc.data[sc.index:]
	}
	sc.index++
	meta := NewMetaInformation()
	for {
		key, value := sc.ParseMetaField()
		switch key {
		case idKey:
			meta.ID = utils.Intern(value)
		case descriptionKey:
			meta.Description = value
		default:
			if !meta.Fields.SetUniqueEntry(key, value) {
				if sc.err == nil {
					sc.err = fmt.Errorf("duplicate field key %v in a VCF meta-information line: %v", key, sc.data)
				}
			}
		}
		sc.SkipSpace()
		if sc.index >= len(sc.data) {
			if sc.err == nil {
				sc.err = fmt.Errorf("invalid syntax in a VCF meta-information line: %v", sc.data)
			}
			return meta
		}
		if c := sc.data[sc.index]; c == ',' {
			sc.index++
		} else if c == '>' {
			sc.index++
			return meta
		} else if sc.err == nil {
			sc.err = fmt.Errorf("invalid syntax in a VCF meta-information line: %v", sc.data)
			return meta
		}
	}
}

// ParseFormatInformation parses an INFO or FORMAT meta-information
// line, recording the declared Number and Type.
func (sc *StringScanner) ParseFormatInformation() *FormatInformation {
	if sc.err != nil {
		return nil
	}
	if sc.index >= len(sc.data) || sc.data[sc.index] != '<' {
		sc.err = fmt.Errorf("missing open angle bracket in a VCF INFO/FORMAT meta-information line: %v", sc.data)
		return nil
	}
	sc.index++
	format := NewFormatInformation()
	for {
		key, value := sc.ParseMetaField()
		switch key {
		case idKey:
			format.ID = utils.Intern(value)
		case descriptionKey:
			format.Description = value
		case numberKey:
			switch value {
			case "a", "A":
				format.Number = NumberA
			case "r", "R":
				format.Number = NumberR
			case "g", "G":
				format.Number = NumberG
			case ".":
				format.Number = NumberDot
			default:
				n, err := strconv.ParseInt(value, 10, 32)
				if err != nil {
					if sc.err == nil {
						sc.err = err
					}
				} else {
					format.Number = int32(n)
				}
			}
		case typeKey:
			switch value {
			case "Integer":
				format.Type = Integer
			case "Float":
				format.Type = Float
			case "Flag":
				format.Type = Flag
			case "Character":
				format.Type = Character
			case "String":
				format.Type = String
			default:
				if sc.err == nil {
					sc.err = fmt.Errorf("unknown type in a VCF INFO/FORMAT meta-information line: %v", sc.data)
				}
			}
		default:
			if !format.Fields.SetUniqueEntry(key, value) {
				if sc.err == nil {
					sc.err = fmt.Errorf("duplicate field key %v in a VCF meta-information line: %v", key, sc.data)
				}
			}
		}
		sc.SkipSpace()
		if sc.index >= len(sc.data) {
			if sc.err == nil {
				sc.err = fmt.Errorf("invalid syntax in a VCF INFO/FORMAT meta-information line: %v", sc.data)
			}
			break
		}
		if c := sc.data[sc.index]; c == ',' {
			sc.index++
			continue
		} else if c == '>' {
			sc.index++
			break
		}
		if sc.err == nil {
			sc.err = fmt.Errorf("invalid syntax in a VCF INFO/FORMAT meta-information line: %v", sc.data)
		}
		break
	}
	if format.ID == nil && sc.err == nil {
		sc.err = fmt.Errorf("missing ID in a VCF INFO/FORMAT meta-information line: %v", sc.data)
	}
	if format.Number <= InvalidNumber && sc.err == nil {
		sc.err = fmt.Errorf("missing number entry in a VCF INFO/FORMAT meta-information line: %v", sc.data)
	}
	if format.Type == InvalidType && sc.err == nil {
		sc.err = fmt.Errorf("missing type in a VCF INFO/FORMAT meta-information line: %v", sc.data)
	}
	return format
}

func getLine(reader *bufio.Reader) (line string, err error) {
	line, err = reader.ReadString('\n')
	switch {
	case err == nil:
		line = strings.TrimSuffix(line[:len(line)-1], "\r")
	case err == io.EOF && line != "":
		err = nil
	}
	return
}

// ParseHeader parses a VCF header
func ParseHeader(reader *bufio.Reader) (hdr *Header, err error) {
	line, err := getLine(reader)
	if err != nil {
		return nil, err
	}
	if len(line) < len(fileFormatVersionLinePrefix) ||
		line[:len(fileFormatVersionLinePrefix)] != fileFormatVersionLinePrefix {
		return nil, errors.New("invalid first line in a VCF file")
	}
	hdr = NewHeader()
	hdr.FileFormat = line
	hdr.Columns = nil
	var sc StringScanner
	for {
		if data, e := reader.Peek(1); (e != nil) || (data[0] != '#') {
			return nil, errors.New("unexpected end of VCF header")
		}
		_, _ = reader.ReadByte()
		if data, e := reader.Peek(1); e != nil {
			return nil, errors.New("unexpected end of VCF header")
		} else if data[0] != '#' {
			break
		}
		_, _ = reader.ReadByte()
		line, err = getLine(reader)
		if err != nil {
			return nil, err
		}
		sc.Reset(line)
		if key, found := sc.readUntilByte('='); !found {
			return nil, errors.New("invalid syntax in a VCF header")
		} else if key == "fileformat" {
			return nil, errors.New("multiple file format meta-information lines in a VCF file")
		} else if key == "INFO" {
			hdr.Infos = append(hdr.Infos, sc.ParseFormatInformation())
		} else if key == "FORMAT" {
			hdr.Formats = append(hdr.Formats, sc.ParseFormatInformation())
		} else {
			hdr.Meta[key] = append(hdr.Meta[key], sc.ParseMetaInformation())
		}
		if sc.err != nil {
			return nil, sc.err
		}
	}
	line, err = getLine(reader)
	if err != nil {
		return nil, err
	}
	sc.Reset(line)
	for sc.Len() > 0 {
		column, _ := sc.readUntilByte('\t')
		hdr.Columns = append(hdr.Columns, column)
	}
	return hdr, nil
}

// A VariantParser parses VCF records against the INFO and FORMAT
// declarations of a header.
type VariantParser struct {
	Header *Header

	// NSamples is the number of sample columns to parse. Set it to 0
	// to skip genotype data.
	NSamples int
}

// NewVariantParser returns a VariantParser for all sample columns of
// the header.
func (header *Header) NewVariantParser() *VariantParser {
	return &VariantParser{Header: header, NSamples: len(header.Samples())}
}

func coerceValue(s string, typ Type) (interface{}, error) {
	if s == "." {
		return nil, nil
	}
	switch typ {
	case Integer:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return int(n), nil
	case Float:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return f, nil
	case Character:
		if len(s) != 1 {
			return nil, fmt.Errorf("invalid character value %v in a VCF file", s)
		}
		return rune(s[0]), nil
	default:
		return s, nil
	}
}

func parseTypedField(s string, format *FormatInformation) (interface{}, error) {
	if format.Number == 1 || format.Number == 0 {
		return coerceValue(s, format.Type)
	}
	entries := strings.Split(s, ",")
	if len(entries) == 1 && format.Number > InvalidNumber && format.Number >= 0 {
		return coerceValue(s, format.Type)
	}
	values := make([]interface{}, len(entries))
	for i, entry := range entries {
		value, err := coerceValue(entry, format.Type)
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

func (sc *StringScanner) doInfo(header *Header) (result utils.SmallMap) {
	field, _ := sc.readUntilByte('\t')
	if field == "." {
		return nil
	}
	for _, entry := range strings.Split(field, ";") {
		key := entry
		value := ""
		hasValue := false
		if eq := strings.IndexByte(entry, '='); eq >= 0 {
			key, value, hasValue = entry[:eq], entry[eq+1:], true
		}
		sym := utils.Intern(key)
		info := header.FindInfo(sym)
		if info == nil {
			if sc.err == nil {
				sc.err = fmt.Errorf("INFO field %v not declared in the VCF header", key)
			}
			return result
		}
		if !hasValue {
			if info.Type != Flag && sc.err == nil {
				sc.err = fmt.Errorf("missing value for INFO field %v in a VCF file", key)
			}
			result.Set(sym, true)
			continue
		}
		parsed, err := parseTypedField(value, info)
		if err != nil {
			if sc.err == nil {
				sc.err = err
			}
			return result
		}
		result.Set(sym, parsed)
	}
	return result
}

func parseGT(s string) (gt []int32, phased bool) {
	phased = strings.IndexByte(s, '|') >= 0
	for _, entry := range strings.FieldsFunc(s, func(r rune) bool {
		return r == '/' || r == '|'
	}) {
		if entry == "." {
			gt = append(gt, NoCall)
		} else {
			n, err := strconv.ParseInt(entry, 10, 32)
			if err != nil {
				return nil, false
			}
			gt = append(gt, int32(n))
		}
	}
	return gt, phased
}

func (sc *StringScanner) doGenotype(header *Header, format []utils.Symbol) (g Genotype) {
	field, _ := sc.readUntilByte('\t')
	entries := strings.Split(field, ":")
	for i, sym := range format {
		if i >= len(entries) {
			break
		}
		if sym == GT {
			g.GT, g.Phased = parseGT(entries[i])
			if g.GT == nil && sc.err == nil {
				sc.err = fmt.Errorf("invalid GT value %v in a VCF file", entries[i])
			}
			continue
		}
		if entries[i] == "." {
			continue
		}
		declared := header.FindFormat(sym)
		if declared == nil {
			if sc.err == nil {
				sc.err = fmt.Errorf("FORMAT field %v not declared in the VCF header", *sym)
			}
			return g
		}
		value, err := parseTypedField(entries[i], declared)
		if err != nil {
			if sc.err == nil {
				sc.err = err
			}
			return g
		}
		g.Data.Set(sym, value)
	}
	return g
}

// ParseVariant parses one VCF record line.
func (sc *StringScanner) ParseVariant(vp *VariantParser) *Variant {
	variant := &Variant{}
	variant.Chrom, _ = sc.readUntilByte('\t')
	if pos, _ := sc.readUntilByte('\t'); pos == "." {
		variant.Pos = -1
	} else {
		n, err := strconv.ParseInt(pos, 10, 32)
		if err != nil {
			if sc.err == nil {
				sc.err = err
			}
			return nil
		}
		variant.Pos = int32(n)
	}
	if id, _ := sc.readUntilByte('\t'); id != "." {
		variant.ID = strings.Split(id, ";")
	}
	variant.Ref, _ = sc.readUntilByte('\t')
	if alt, _ := sc.readUntilByte('\t'); alt != "." {
		variant.Alt = strings.Split(alt, ",")
	}
	if qual, _ := sc.readUntilByte('\t'); qual != "." {
		q, err := strconv.ParseFloat(qual, 64)
		if err != nil {
			if sc.err == nil {
				sc.err = err
			}
			return nil
		}
		variant.Qual = q
	}
	if filter, _ := sc.readUntilByte('\t'); filter != "." {
		for _, f := range strings.Split(filter, ";") {
			variant.Filter = append(variant.Filter, utils.Intern(f))
		}
	}
	variant.Info = sc.doInfo(vp.Header)
	if sc.err != nil || vp.NSamples == 0 || sc.Len() == 0 {
		return variant
	}
	format, _ := sc.readUntilByte('\t')
	for _, f := range strings.Split(format, ":") {
		variant.GenotypeFormat = append(variant.GenotypeFormat, utils.Intern(f))
	}
	variant.GenotypeData = make([]Genotype, 0, vp.NSamples)
	for s := 0; s < vp.NSamples; s++ {
		variant.GenotypeData = append(variant.GenotypeData, sc.doGenotype(vp.Header, variant.GenotypeFormat))
	}
	return variant
}

func formatStringList(out []byte, list []string, separator byte) []byte {
	if len(list) == 0 {
		return append(out, '.', '\t')
	}
	out = append(out, list[0]...)
	for _, entry := range list[1:] {
		out = append(append(out, separator), entry...)
	}
	return append(out, '\t')
}

func formatSymbolList(out []byte, list []utils.Symbol, separator byte) []byte {
	out = append(out, *list[0]...)
	for _, entry := range list[1:] {
		out = append(append(out, separator), *entry...)
	}
	return out
}

func formatValue(out []byte, value interface{}) ([]byte, error) {
	switch val := value.(type) {
	case nil:
		return append(out, '.'), nil
	case int:
		return strconv.AppendInt(out, int64(val), 10), nil
	case float64:
		return strconv.AppendFloat(out, val, 'f', -1, 64), nil
	case rune:
		return append(out, byte(val)), nil
	case string:
		return append(out, val...), nil
	default:
		return nil, fmt.Errorf("invalid value %v in a VCF record", value)
	}
}

func formatValueList(out []byte, value interface{}) ([]byte, error) {
	values, ok := value.([]interface{})
	if !ok {
		return formatValue(out, value)
	}
	if len(values) == 0 {
		return append(out, '.'), nil
	}
	out, err := formatValue(out, values[0])
	if err != nil {
		return nil, err
	}
	for _, v := range values[1:] {
		if out, err = formatValue(append(out, ','), v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func formatInfo(out []byte, info utils.SmallMap) ([]byte, error) {
	if len(info) == 0 {
		return append(out, '.'), nil
	}
	var err error
	for i, entry := range info {
		if i > 0 {
			out = append(out, ';')
		}
		out = append(out, *entry.Key...)
		if flag, ok := entry.Value.(bool); ok && flag {
			continue
		}
		out = append(out, '=')
		if out, err = formatValueList(out, entry.Value); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func formatGT(out []byte, g *Genotype) []byte {
	if len(g.GT) == 0 {
		return append(out, '.')
	}
	separator := byte('/')
	if g.Phased {
		separator = '|'
	}
	for i, a := range g.GT {
		if i > 0 {
			out = append(out, separator)
		}
		if a < 0 {
			out = append(out, '.')
		} else {
			out = strconv.AppendInt(out, int64(a), 10)
		}
	}
	return out
}

func formatGenotypeData(out []byte, format []utils.Symbol, g *Genotype) ([]byte, error) {
	pos := len(out)
	var err error
	for i, sym := range format {
		if i > 0 {
			out = append(out, ':')
		}
		if sym == GT {
			out = formatGT(out, g)
			pos = len(out)
			continue
		}
		value, ok := g.Data.Get(sym)
		if !ok || value == nil {
			out = append(out, '.')
			continue
		}
		if out, err = formatValueList(out, value); err != nil {
			return nil, err
		}
		pos = len(out)
	}
	// trailing missing fields are truncated
	return out[:pos], nil
}

// Format outputs a VCF record line
func (variant *Variant) Format(out []byte) ([]byte, error) {
	out = append(append(out, variant.Chrom...), '\t')
	if variant.Pos < 0 {
		out = append(out, '.', '\t')
	} else {
		out = append(strconv.AppendInt(out, int64(variant.Pos), 10), '\t')
	}
	out = formatStringList(out, variant.ID, ';')
	out = append(append(out, variant.Ref...), '\t')
	out = formatStringList(out, variant.Alt, ',')
	if value, ok := variant.Qual.(float64); ok {
		out = append(strconv.AppendFloat(out, value, 'f', -1, 64), '\t')
	} else {
		out = append(out, '.', '\t')
	}
	if len(variant.Filter) == 0 {
		out = append(out, '.', '\t')
	} else {
		out = append(formatSymbolList(out, variant.Filter, ';'), '\t')
	}
	var err error
	out, err = formatInfo(out, variant.Info)
	if err != nil {
		return nil, err
	}
	if len(variant.GenotypeFormat) > 0 {
		out = append(out, '\t')
		out = formatSymbolList(out, variant.GenotypeFormat, ':')
		for i := range variant.GenotypeData {
			out = append(out, '\t')
			out, err = formatGenotypeData(out, variant.GenotypeFormat, &variant.GenotypeData[i])
			if err != nil {
				return nil, err
			}
		}
	}
	return append(out, '\n'), nil
}

func needsQuotes(s string) bool {
	return strings.ContainsAny(s, " ,=<>")
}

func formatMetaField(out *bufio.Writer, key, value string) (err error) {
	if _, err = out.WriteString(key); err != nil {
		return err
	}
	if err = out.WriteByte('='); err != nil {
		return err
	}
	if needsQuotes(value) || key == descriptionKey {
		if err = out.WriteByte('"'); err != nil {
			return err
		}
		if _, err = out.WriteString(value); err != nil {
			return err
		}
		return out.WriteByte('"')
	}
	_, err = out.WriteString(value)
	return err
}

// FormatMetaInformation outputs a meta-information line value.
func FormatMetaInformation(out *bufio.Writer, meta interface{}) error {
	switch m := meta.(type) {
	case string:
		_, err := out.WriteString(m)
		return err
	case *MetaInformation:
		if err := out.WriteByte('<'); err != nil {
			return err
		}
		if err := formatMetaField(out, idKey, *m.ID); err != nil {
			return err
		}
		if m.Description != "" {
			if err := out.WriteByte(','); err != nil {
				return err
			}
			if err := formatMetaField(out, descriptionKey, m.Description); err != nil {
				return err
			}
		}
		for key, value := range m.Fields {
			if err := out.WriteByte(','); err != nil {
				return err
			}
			if err := formatMetaField(out, key, value); err != nil {
				return err
			}
		}
		return out.WriteByte('>')
	default:
		return fmt.Errorf("invalid meta-information %v in a VCF header", meta)
	}
}

func formatNumber(number int32) string {
	switch number {
	case NumberA:
		return "A"
	case NumberR:
		return "R"
	case NumberG:
		return "G"
	case NumberDot:
		return "."
	default:
		return strconv.FormatInt(int64(number), 10)
	}
}

func formatType(typ Type) string {
	switch typ {
	case Integer:
		return "Integer"
	case Float:
		return "Float"
	case Flag:
		return "Flag"
	case Character:
		return "Character"
	default:
		return "String"
	}
}

// FormatFormatInformation outputs an INFO or FORMAT meta-information
// line value.
func FormatFormatInformation(out *bufio.Writer, format *FormatInformation) (err error) {
	if err = out.WriteByte('<'); err != nil {
		return err
	}
	if err = formatMetaField(out, idKey, *format.ID); err != nil {
		return err
	}
	if _, err = out.WriteString(",Number=" + formatNumber(format.Number)); err != nil {
		return err
	}
	if _, err = out.WriteString(",Type=" + formatType(format.Type)); err != nil {
		return err
	}
	if err = out.WriteByte(','); err != nil {
		return err
	}
	if err = formatMetaField(out, descriptionKey, format.Description); err != nil {
		return err
	}
	for key, value := range format.Fields {
		if err = out.WriteByte(','); err != nil {
			return err
		}
		if err = formatMetaField(out, key, value); err != nil {
			return err
		}
	}
	return out.WriteByte('>')
}

// Format outputs a VCF header
func (header *Header) Format(out *bufio.Writer) (err error) {
	if _, err = out.WriteString(header.FileFormat); err != nil {
		return err
	}
	if err = out.WriteByte('\n'); err != nil {
		return err
	}
	for key, values := range header.Meta {
		for _, value := range values {
			if _, err = out.WriteString("##" + key + "="); err != nil {
				return err
			}
			if err = FormatMetaInformation(out, value); err != nil {
				return err
			}
			if err = out.WriteByte('\n'); err != nil {
				return err
			}
		}
	}
	for _, info := range header.Infos {
		if _, err = out.WriteString("##INFO="); err != nil {
			return err
		}
		if err = FormatFormatInformation(out, info); err != nil {
			return err
		}
		if err = out.WriteByte('\n'); err != nil {
			return err
		}
	}
	for _, format := range header.Formats {
		if _, err = out.WriteString("##FORMAT="); err != nil {
			return err
		}
		if err = FormatFormatInformation(out, format); err != nil {
			return err
		}
		if err = out.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err = out.WriteByte('#'); err != nil {
		return err
	}
	if _, err = out.WriteString(strings.Join(header.Columns, "\t")); err != nil {
		return err
	}
	return out.WriteByte('\n')
}

// The file extension for VCF files.
const VcfExt = ".vcf"

// InputFile represents a VCF file for input.
type InputFile struct {
	file *os.File
	*bufio.Reader
}

// OutputFile represents a VCF file for output.
type OutputFile struct {
	file *os.File
	*bufio.Writer
}

// Open opens a VCF file for input.
func Open(name string) (*InputFile, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return &InputFile{file: file, Reader: bufio.NewReader(file)}, nil
}

// Create opens a VCF file for output.
func Create(name string) (*OutputFile, error) {
	file, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	return &OutputFile{file: file, Writer: bufio.NewWriter(file)}, nil
}

// Close closes a VCF input file.
func (input *InputFile) Close() error {
	return input.file.Close()
}

// Close flushes and closes a VCF output file.
func (output *OutputFile) Close() error {
	if err := output.Writer.Flush(); err != nil {
		_ = output.file.Close()
		return err
	}
	return output.file.Close()
}

// ReadVcf reads a full VCF file into memory.
func ReadVcf(input *InputFile) (*Vcf, error) {
	hdr, err := ParseHeader(input.Reader)
	if err != nil {
		return nil, err
	}
	result := &Vcf{Header: hdr}
	vp := hdr.NewVariantParser()
	var sc StringScanner
	for {
		line, err := getLine(input.Reader)
		if err == io.EOF {
			return result, nil
		}
		if err != nil {
			return nil, err
		}
		if line == "" {
			return result, nil
		}
		sc.Reset(line)
		variant := sc.ParseVariant(vp)
		if sc.err != nil {
			return nil, sc.err
		}
		result.Variants = append(result.Variants, variant)
	}
}

// WriteVcf writes a full VCF file.
func WriteVcf(output *OutputFile, v *Vcf) error {
	if err := v.Header.Format(output.Writer); err != nil {
		return err
	}
	var buf []byte
	var err error
	for _, variant := range v.Variants {
		if buf, err = variant.Format(buf[:0]); err != nil {
			return err
		}
		if _, err = output.Writer.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
