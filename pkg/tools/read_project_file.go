package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/docassistant/docassistant/internal/docparse"
	"github.com/docassistant/docassistant/internal/logger"
	"github.com/docassistant/docassistant/pkg/index"
	"github.com/docassistant/docassistant/pkg/session"
	"github.com/docassistant/docassistant/pkg/toolhost"
)

const (
	categoryOrdinary  = "普通文档"
	categoryDrawing   = "图纸图形文档"
	categorySpreadsheet = "概算书文档"
)

type readProjectFileArgs struct {
	RelativeFilePath string `json:"relative_file_path" jsonschema:"required,description=Path to the project file\\, relative to the project files root."`
	FileCategory     string `json:"file_category" jsonschema:"required,description=One of 普通文档 (ordinary document)\\, 图纸图形文档 (drawing)\\, 概算书文档 (spreadsheet)."`
	SheetName        string `json:"sheet_name,omitempty" jsonschema:"description=Worksheet name\\, required for 概算书文档 once the sheet list is known."`
}

type readFileResponse struct {
	Content     string   `json:"content"`
	Token       string   `json:"token,omitempty"`
	FilePath    string   `json:"file_path,omitempty"`
	DownloadURL string   `json:"download_url,omitempty"`
	Sheets      []string `json:"available_sheets,omitempty"`
	Hint        string   `json:"hint"`
}

func registerReadProjectFile(host *toolhost.Host, env *Env) {
	host.Register(
		"readProjectFile",
		"Reads a project file's content. Handles ordinary documents, drawings (metadata only) and spreadsheets (sheet-aware).",
		&readProjectFileArgs{},
		func(ctx context.Context, username string, raw json.RawMessage) (string, error) {
			var args readProjectFileArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return mustJSON(readFileResponse{Hint: "invalid arguments: " + err.Error()}), nil
			}
			return readProjectFile(ctx, env, username, args), nil
		},
	)
}

func readProjectFile(ctx context.Context, env *Env, username string, args readProjectFileArgs) string {
	fs, ok := env.Files[index.DocTypeProject]
	if !ok {
		return mustJSON(readFileResponse{Hint: "project file storage is not configured."})
	}
	if !fs.FileExists(args.RelativeFilePath) {
		return mustJSON(readFileResponse{Hint: "file not found: " + args.RelativeFilePath})
	}

	switch args.FileCategory {
	case categoryDrawing:
		return registerReadResult(ctx, env, username, args.RelativeFilePath, "", "drawing registered; use the download link to view it.")
	case categorySpreadsheet:
		return readSpreadsheet(ctx, env, username, args)
	case categoryOrdinary:
		return readOrdinaryDocument(ctx, env, fs, username, args.RelativeFilePath)
	default:
		return mustJSON(readFileResponse{Hint: "unknown file category: " + args.FileCategory})
	}
}

func readOrdinaryDocument(ctx context.Context, env *Env, fs filePathResolver, username, relPath string) string {
	absPath, err := fs.ResolvePath(relPath)
	if err != nil {
		return mustJSON(readFileResponse{Hint: "refused to read path outside the project root."})
	}
	content, err := docparse.ParseFile(absPath, "\n")
	if err != nil {
		logger.WarnCtx(ctx, "readProjectFile failed to parse document", logger.Path(relPath), logger.Err(err))
		return mustJSON(readFileResponse{Hint: "failed to read document: " + err.Error()})
	}
	content, truncated := truncate(content, env.Config.Chat.ModelContextWindow)
	hint := "document opened"
	if truncated {
		hint += "; content truncated to the model context window."
	}
	return registerReadResult(ctx, env, username, relPath, content, hint)
}

func readSpreadsheet(ctx context.Context, env *Env, username string, args readProjectFileArgs) string {
	fs := env.Files[index.DocTypeProject]
	absPath, err := fs.ResolvePath(args.RelativeFilePath)
	if err != nil {
		return mustJSON(readFileResponse{Hint: "refused to read path outside the project root."})
	}

	sheets, err := docparse.GetXlsxSheetNames(absPath)
	if err != nil {
		logger.WarnCtx(ctx, "readProjectFile failed to list sheets", logger.Path(args.RelativeFilePath), logger.Err(err))
		return mustJSON(readFileResponse{Hint: "failed to read workbook: " + err.Error()})
	}

	if args.SheetName == "" {
		return mustJSON(readFileResponse{Sheets: sheets, Hint: "specify sheet_name from available_sheets and call again."})
	}
	if !containsString(sheets, args.SheetName) {
		return mustJSON(readFileResponse{Sheets: sheets, Hint: "sheet " + args.SheetName + " not found; choose from available_sheets and retry."})
	}

	rows, err := docparse.ParseXlsxSheetContent(absPath, args.SheetName, "\t", nil)
	if err != nil {
		logger.WarnCtx(ctx, "readProjectFile failed to parse sheet", logger.Path(args.RelativeFilePath), logger.Err(err))
		return mustJSON(readFileResponse{Hint: "failed to read sheet: " + err.Error()})
	}
	content, truncated := truncate(strings.Join(rows, "\n"), env.Config.Chat.ModelContextWindow)
	hint := "sheet " + args.SheetName + " opened"
	if truncated {
		hint += "; content truncated to the model context window."
	}
	return registerReadResult(ctx, env, username, args.RelativeFilePath, content, hint)
}

func registerReadResult(ctx context.Context, env *Env, username, relPath, content, hint string) string {
	entry, err := env.Sessions.OpenFile(ctx, username, relPath, session.DocTypeProject, true)
	if err != nil {
		logger.WarnCtx(ctx, "readProjectFile failed to register opened file", logger.Err(err))
		return mustJSON(readFileResponse{Content: content, FilePath: relPath, Hint: hint})
	}
	return mustJSON(readFileResponse{
		Content:     content,
		Token:       entry.Token,
		FilePath:    relPath,
		DownloadURL: downloadURL(entry.Token, filepath.Base(relPath)),
		Hint:        hint,
	})
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// filePathResolver is the subset of fileservice.Service that document
// readers need; kept narrow so tests can substitute a stub.
type filePathResolver interface {
	ResolvePath(relPath string) (string, error)
}
