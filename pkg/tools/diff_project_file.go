package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/docassistant/docassistant/internal/docparse"
	"github.com/docassistant/docassistant/internal/logger"
	"github.com/docassistant/docassistant/pkg/index"
	"github.com/docassistant/docassistant/pkg/session"
	"github.com/docassistant/docassistant/pkg/toolhost"
)

const (
	documentTypeReport    = "报告（说明书）"
	documentTypeManifest  = "材料清册"
	documentTypeEstimate  = "概算表"
)

var validDocumentTypes = map[string]bool{
	documentTypeReport:   true,
	documentTypeManifest: true,
	documentTypeEstimate: true,
}

type diffProjectFileArgs struct {
	RelativeFile1Path string `json:"relative_file1_path" jsonschema:"required,description=First file to compare\\, relative to the project files root."`
	RelativeFile2Path string `json:"relative_file2_path" jsonschema:"required,description=Second file to compare\\, relative to the project files root."`
	DocumentType      string `json:"document_type" jsonschema:"required,description=One of 报告（说明书）\\, 材料清册\\, 概算表."`
	SheetName         string `json:"sheet_name,omitempty" jsonschema:"description=Worksheet to compare when document_type is 概算表 and all_sheet is false."`
	AllSheet          bool   `json:"all_sheet,omitempty" jsonschema:"description=When document_type is 概算表\\, compare every sheet the two workbooks share."`
}

type diffFileResponse struct {
	Content      string   `json:"content"`
	Token1       string   `json:"token1,omitempty"`
	Token2       string   `json:"token2,omitempty"`
	FilePath1    string   `json:"file_path1,omitempty"`
	FilePath2    string   `json:"file_path2,omitempty"`
	DownloadURL1 string   `json:"download_url1,omitempty"`
	DownloadURL2 string   `json:"download_url2,omitempty"`
	UniqueTo1    []string `json:"sheets_only_in_file1,omitempty"`
	UniqueTo2    []string `json:"sheets_only_in_file2,omitempty"`
	Hint         string   `json:"hint"`
}

func registerDiffProjectFile(host *toolhost.Host, env *Env) {
	host.Register(
		"diffProjectFile",
		"Compares two project files of the same document type and returns a unified diff of their text content.",
		&diffProjectFileArgs{},
		func(ctx context.Context, username string, raw json.RawMessage) (string, error) {
			var args diffProjectFileArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return mustJSON(diffFileResponse{Hint: "invalid arguments: " + err.Error()}), nil
			}
			return diffProjectFile(ctx, env, username, args), nil
		},
	)
}

func diffProjectFile(ctx context.Context, env *Env, username string, args diffProjectFileArgs) string {
	if !validDocumentTypes[args.DocumentType] {
		return mustJSON(diffFileResponse{Hint: "unknown document type: " + args.DocumentType})
	}

	fs, ok := env.Files[index.DocTypeProject]
	if !ok {
		return mustJSON(diffFileResponse{Hint: "project file storage is not configured."})
	}
	if !fs.FileExists(args.RelativeFile1Path) || !fs.FileExists(args.RelativeFile2Path) {
		return mustJSON(diffFileResponse{Hint: "one or both files do not exist."})
	}

	ext1, ext2 := strings.ToLower(extOf(args.RelativeFile1Path)), strings.ToLower(extOf(args.RelativeFile2Path))
	if ext1 != ext2 {
		return mustJSON(diffFileResponse{Hint: "both files must share the same extension to be compared."})
	}

	abs1, err1 := fs.ResolvePath(args.RelativeFile1Path)
	abs2, err2 := fs.ResolvePath(args.RelativeFile2Path)
	if err1 != nil || err2 != nil {
		return mustJSON(diffFileResponse{Hint: "refused to read a path outside the project root."})
	}

	var content string
	var uniqueTo1, uniqueTo2 []string

	if args.DocumentType == documentTypeEstimate {
		if ext1 != ".xlsx" {
			return mustJSON(diffFileResponse{Hint: "概算表 comparisons require .xlsx files."})
		}
		c, u1, u2, err := diffEstimateSheets(abs1, abs2, args.SheetName, args.AllSheet)
		if err != nil {
			return mustJSON(diffFileResponse{Hint: "failed to compare workbooks: " + err.Error()})
		}
		content, uniqueTo1, uniqueTo2 = c, u1, u2
	} else {
		c, err := diffTextDocuments(abs1, abs2)
		if err != nil {
			return mustJSON(diffFileResponse{Hint: "failed to compare documents: " + err.Error()})
		}
		content = c
	}

	entry1, err := env.Sessions.OpenFile(ctx, username, args.RelativeFile1Path, session.DocTypeProject, true)
	if err != nil {
		logger.WarnCtx(ctx, "diffProjectFile failed to register first file", logger.Err(err))
	}
	entry2, err := env.Sessions.OpenFile(ctx, username, args.RelativeFile2Path, session.DocTypeProject, true)
	if err != nil {
		logger.WarnCtx(ctx, "diffProjectFile failed to register second file", logger.Err(err))
	}

	resp := diffFileResponse{
		Content:   content,
		FilePath1: args.RelativeFile1Path,
		FilePath2: args.RelativeFile2Path,
		UniqueTo1: uniqueTo1,
		UniqueTo2: uniqueTo2,
		Hint:      "diff computed between the two files.",
	}
	if entry1 != nil {
		resp.Token1 = entry1.Token
		resp.DownloadURL1 = downloadURL(entry1.Token, filepath.Base(args.RelativeFile1Path))
	}
	if entry2 != nil {
		resp.Token2 = entry2.Token
		resp.DownloadURL2 = downloadURL(entry2.Token, filepath.Base(args.RelativeFile2Path))
	}
	return mustJSON(resp)
}

func diffTextDocuments(abs1, abs2 string) (string, error) {
	text1, err := docparse.ParseFile(abs1, "\n")
	if err != nil {
		return "", err
	}
	text2, err := docparse.ParseFile(abs2, "\n")
	if err != nil {
		return "", err
	}
	return unifiedDiff(text1, text2, filepath.Base(abs1), filepath.Base(abs2))
}

func unifiedDiff(a, b, fromFile, toFile string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}

func diffEstimateSheets(abs1, abs2, sheetName string, allSheet bool) (string, []string, []string, error) {
	sheets1, err := docparse.GetXlsxSheetNames(abs1)
	if err != nil {
		return "", nil, nil, err
	}
	sheets2, err := docparse.GetXlsxSheetNames(abs2)
	if err != nil {
		return "", nil, nil, err
	}

	if !allSheet {
		if sheetName == "" {
			return "", nil, nil, fmt.Errorf("sheet_name is required when all_sheet is false")
		}
		rows1, err := docparse.ParseXlsxSheetContent(abs1, sheetName, "\t", nil)
		if err != nil {
			return "", nil, nil, err
		}
		rows2, err := docparse.ParseXlsxSheetContent(abs2, sheetName, "\t", nil)
		if err != nil {
			return "", nil, nil, err
		}
		content, err := unifiedDiff(strings.Join(rows1, "\n"), strings.Join(rows2, "\n"), sheetName+"#1", sheetName+"#2")
		return content, nil, nil, err
	}

	set1, set2 := toSet(sheets1), toSet(sheets2)
	common := make([]string, 0)
	for _, s := range sheets1 {
		if set2[s] {
			common = append(common, s)
		}
	}
	sort.Strings(common)

	var builder strings.Builder
	for _, sheet := range common {
		rows1, err := docparse.ParseXlsxSheetContent(abs1, sheet, "\t", nil)
		if err != nil {
			return "", nil, nil, err
		}
		rows2, err := docparse.ParseXlsxSheetContent(abs2, sheet, "\t", nil)
		if err != nil {
			return "", nil, nil, err
		}
		sheetDiff, err := unifiedDiff(strings.Join(rows1, "\n"), strings.Join(rows2, "\n"), sheet+"#1", sheet+"#2")
		if err != nil {
			return "", nil, nil, err
		}
		builder.WriteString("=== " + sheet + " ===\n")
		builder.WriteString(sheetDiff)
		builder.WriteString("\n")
	}

	uniqueTo1 := onlyIn(sheets1, set2)
	uniqueTo2 := onlyIn(sheets2, set1)
	return builder.String(), uniqueTo1, uniqueTo2, nil
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}

func onlyIn(items []string, other map[string]bool) []string {
	result := make([]string, 0)
	for _, i := range items {
		if !other[i] {
			result = append(result, i)
		}
	}
	sort.Strings(result)
	return result
}
