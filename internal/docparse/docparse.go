// Package docparse extracts plain text from the document formats the
// chat tools hand to the model: plain text and Markdown directly,
// XLSX and DOCX via their zip+XML container format, and PDF via a
// best-effort scan of its content streams. None of the retrieved
// example repositories import a document-parsing library, so this is
// a from-scratch stdlib implementation rather than a port of one.
package docparse

import (
	"archive/zip"
	"bytes"
	"compress/zlib"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ParseFile reads path and returns its text content, joining cells or
// fields with delimiter where the format is tabular. delimiter is
// ignored for formats without a natural row/column structure.
func ParseFile(path, delimiter string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read %q: %w", path, err)
		}
		return string(data), nil
	case ".docx":
		return parseDocx(path)
	case ".xlsx":
		sheets, err := parseXlsxSheets(path, delimiter)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		for _, name := range xlsxSheetOrder(sheets) {
			b.WriteString(strings.Join(sheets[name], "\n"))
			b.WriteString("\n")
		}
		return b.String(), nil
	case ".pdf":
		return parsePDF(path)
	default:
		return "", fmt.Errorf("unsupported file type for parsing: %q", path)
	}
}

// GetXlsxSheetNames returns the sheet names of an XLSX workbook,
// sorted by name.
func GetXlsxSheetNames(path string) ([]string, error) {
	sheets, err := parseXlsxSheets(path, "\t")
	if err != nil {
		return nil, err
	}
	return xlsxSheetOrder(sheets), nil
}

// ParseXlsxSheetContent returns the rows of a single sheet, joined
// with delimiter. columnFilter, when non-empty, keeps only the
// 0-indexed columns listed.
func ParseXlsxSheetContent(path, sheetName, delimiter string, columnFilter []int) ([]string, error) {
	sheets, err := parseXlsxSheetsFiltered(path, delimiter, columnFilter)
	if err != nil {
		return nil, err
	}
	rows, ok := sheets[sheetName]
	if !ok {
		return nil, fmt.Errorf("sheet %q not found in %q", sheetName, path)
	}
	return rows, nil
}

func xlsxSheetOrder(sheets map[string][]string) []string {
	names := make([]string, 0, len(sheets))
	for name := range sheets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type xlsxWorkbook struct {
	Sheets struct {
		Sheet []struct {
			Name    string `xml:"name,attr"`
			SheetID string `xml:"sheetId,attr"`
			RID     string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
		} `xml:"sheet"`
	} `xml:"sheets"`
}

type xlsxRelationships struct {
	Relationship []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

type xlsxSheetData struct {
	Rows []struct {
		Cells []struct {
			Ref  string `xml:"r,attr"`
			Type string `xml:"t,attr"`
			V    string `xml:"v"`
			Is   struct {
				T string `xml:"t"`
			} `xml:"is"`
		} `xml:"c"`
	} `xml:"sheetData>row"`
}

type xlsxSST struct {
	Items []struct {
		T string `xml:"t"`
	} `xml:"si"`
}

func parseXlsxSheets(path, delimiter string) (map[string][]string, error) {
	return parseXlsxSheetsFiltered(path, delimiter, nil)
}

func parseXlsxSheetsFiltered(path, delimiter string, columnFilter []int) (map[string][]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx %q: %w", path, err)
	}
	defer r.Close()

	files := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		files[f.Name] = f
	}

	wbFile, ok := files["xl/workbook.xml"]
	if !ok {
		return nil, fmt.Errorf("%q is not a valid xlsx workbook", path)
	}
	var wb xlsxWorkbook
	if err := unmarshalZipEntry(wbFile, &wb); err != nil {
		return nil, fmt.Errorf("failed to parse workbook.xml in %q: %w", path, err)
	}

	relTargets := map[string]string{}
	if relFile, ok := files["xl/_rels/workbook.xml.rels"]; ok {
		var rels xlsxRelationships
		if err := unmarshalZipEntry(relFile, &rels); err == nil {
			for _, rel := range rels.Relationship {
				relTargets[rel.ID] = rel.Target
			}
		}
	}

	sharedStrings := []string{}
	if sstFile, ok := files["xl/sharedStrings.xml"]; ok {
		var sst xlsxSST
		if err := unmarshalZipEntry(sstFile, &sst); err == nil {
			for _, item := range sst.Items {
				sharedStrings = append(sharedStrings, item.T)
			}
		}
	}

	result := make(map[string][]string)
	for i, sheet := range wb.Sheets.Sheet {
		target := relTargets[sheet.RID]
		if target == "" {
			target = fmt.Sprintf("worksheets/sheet%d.xml", i+1)
		}
		sheetPath := "xl/" + strings.TrimPrefix(target, "/xl/")
		sheetFile, ok := files[sheetPath]
		if !ok {
			continue
		}

		var data xlsxSheetData
		if err := unmarshalZipEntry(sheetFile, &data); err != nil {
			continue
		}

		rows := make([]string, 0, len(data.Rows))
		for _, row := range data.Rows {
			values := make([]string, 0, len(row.Cells))
			for colIdx, cell := range row.Cells {
				if columnFilter != nil && !containsInt(columnFilter, colIdx) {
					continue
				}
				values = append(values, cellValue(cell.Type, cell.V, cell.Is.T, sharedStrings))
			}
			rows = append(rows, strings.Join(values, delimiter))
		}
		result[sheet.Name] = rows
	}
	return result, nil
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func cellValue(cellType, v, inlineStr string, sharedStrings []string) string {
	if cellType == "s" {
		idx, err := strconv.Atoi(v)
		if err == nil && idx >= 0 && idx < len(sharedStrings) {
			return sharedStrings[idx]
		}
		return ""
	}
	if cellType == "inlineStr" {
		return inlineStr
	}
	return v
}

func unmarshalZipEntry(f *zip.File, v interface{}) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}

type docxDocument struct {
	Body struct {
		Paragraphs []struct {
			Runs []struct {
				Text []struct {
					Value string `xml:",chardata"`
				} `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"body"`
}

func parseDocx(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open docx %q: %w", path, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != "word/document.xml" {
			continue
		}
		var doc docxDocument
		if err := unmarshalZipEntry(f, &doc); err != nil {
			return "", fmt.Errorf("failed to parse document.xml in %q: %w", path, err)
		}

		var b strings.Builder
		for _, p := range doc.Body.Paragraphs {
			for _, run := range p.Runs {
				for _, t := range run.Text {
					b.WriteString(t.Value)
				}
			}
			b.WriteString("\n")
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("%q has no word/document.xml part", path)
}

// tjTextPattern matches the literal-string operand of the Tj
// text-showing operator in an (already decompressed) PDF content
// stream. TJ array operands are not matched.
var tjTextPattern = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*Tj`)

// parsePDF extracts visible text by inflating each FlateDecode stream
// in the file and pulling the literal-string operands out of Tj
// operators. It does not understand PDF's glyph/encoding model, so
// output is a best-effort approximation rather than a faithful
// rendering of the page text.
func parsePDF(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %q: %w", path, err)
	}

	var b strings.Builder
	for _, stream := range extractPDFStreams(data) {
		inflated, err := inflate(stream)
		if err != nil {
			continue
		}
		for _, m := range tjTextPattern.FindAllSubmatch(inflated, -1) {
			b.Write(unescapePDFString(m[1]))
			b.WriteString(" ")
		}
		b.WriteString("\n")
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("no extractable text found in %q", path)
	}
	return text, nil
}

var streamMarker = []byte("stream")
var endstreamMarker = []byte("endstream")

func extractPDFStreams(data []byte) [][]byte {
	var streams [][]byte
	offset := 0
	for {
		start := bytes.Index(data[offset:], streamMarker)
		if start == -1 {
			break
		}
		start += offset + len(streamMarker)
		for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
			start++
		}
		end := bytes.Index(data[start:], endstreamMarker)
		if end == -1 {
			break
		}
		end += start
		streams = append(streams, data[start:end])
		offset = end + len(endstreamMarker)
	}
	return streams
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func unescapePDFString(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] == '\\' && i+1 < len(b) {
			i++
			switch b[i] {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			default:
				out = append(out, b[i])
			}
			continue
		}
		out = append(out, b[i])
	}
	return out
}
