package tools

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/docassistant/docassistant/internal/docparse"
	"github.com/docassistant/docassistant/internal/logger"
	"github.com/docassistant/docassistant/pkg/embeddings"
	"github.com/docassistant/docassistant/pkg/index"
	"github.com/docassistant/docassistant/pkg/session"
	"github.com/docassistant/docassistant/pkg/toolhost"
)

// searchableSpecExts mirrors the extensions the model may actually ask
// to have opened and read, a subset of what IndexService records for
// the spec tree (images are indexed for listing but cannot be textified).
var searchableSpecExts = map[string]bool{
	".pdf": true, ".md": true, ".docx": true, ".txt": true, ".ofd": true, ".ceb": true,
}

type openSpecificationFilesArgs struct {
	QuerySpecFilename string `json:"query_spec_filename" jsonschema:"required,description=Filename or topic to search for\\, or /ALL to list every document in the category."`
	Category          string `json:"category" jsonschema:"required,description=Specification category to search within."`
	ReadFile          bool   `json:"read_file,omitempty" jsonschema:"description=If true and the best match is a confident one\\, parse and return its text content."`
	TopN              int    `json:"top_n,omitempty" jsonschema:"description=Number of ranked candidates to return when not reading a file. Defaults to 5."`
}

type specFile struct {
	Path       string  `json:"path"`
	Similarity float64 `json:"similarity,omitempty"`
}

type openSpecFilesResponse struct {
	Content      string     `json:"content,omitempty"`
	Token        string     `json:"token,omitempty"`
	FilePath     string     `json:"file_path,omitempty"`
	DownloadURL  string     `json:"download_url,omitempty"`
	Files        []specFile `json:"files,omitempty"`
	Similarity   float64    `json:"similarity,omitempty"`
	Hint         string     `json:"hint"`
}

func registerOpenSpecificationFiles(host *toolhost.Host, env *Env) {
	host.Register(
		"openSpecificationFiles",
		"Searches specification documents by name or topic within a category, optionally reading the best match's text content.",
		&openSpecificationFilesArgs{},
		func(ctx context.Context, username string, raw json.RawMessage) (string, error) {
			var args openSpecificationFilesArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return mustJSON(openSpecFilesResponse{Hint: "invalid arguments: " + err.Error()}), nil
			}
			return openSpecificationFiles(ctx, env, username, args), nil
		},
	)
}

func openSpecificationFiles(ctx context.Context, env *Env, username string, args openSpecificationFilesArgs) string {
	if !isKnownSpecCategory(env, args.Category) {
		return mustJSON(openSpecFilesResponse{Hint: "unknown specification category: " + args.Category})
	}

	docs, err := env.Index.QuerySpecsByCategory(ctx, args.Category)
	if err != nil {
		logger.ErrorCtx(ctx, "openSpecificationFiles index lookup failed", logger.Err(err))
		return mustJSON(openSpecFilesResponse{Hint: "internal error querying the document index."})
	}

	names := make([]string, 0, len(docs))
	for name, relPath := range docs {
		if searchableSpecExts[strings.ToLower(extOf(relPath))] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	if args.QuerySpecFilename == "/ALL" {
		files := make([]specFile, 0, len(names))
		for _, n := range names {
			files = append(files, specFile{Path: docs[n]})
		}
		return mustJSON(openSpecFilesResponse{Files: files, Hint: "all documents in category " + args.Category})
	}

	if len(names) == 0 {
		return mustJSON(openSpecFilesResponse{Hint: "no searchable documents found in category " + args.Category})
	}

	topN := args.TopN
	if topN <= 0 {
		topN = 5
	}

	var ranked []embeddings.Scored
	if env.embeddingsAvailable() {
		ranked, err = embeddings.RankByQuery(ctx, env.Embeddings, args.QuerySpecFilename, names, topN)
		if err != nil {
			logger.WarnCtx(ctx, "openSpecificationFiles embedding rank failed", logger.Err(err))
		}
	}
	if len(ranked) == 0 {
		ranked = substringRank(args.QuerySpecFilename, names, topN)
	}

	if len(ranked) == 0 {
		return mustJSON(openSpecFilesResponse{Hint: "no matching document found."})
	}

	if args.ReadFile && ranked[0].Score > 0.7 {
		return readAndRegisterSpec(ctx, env, username, ranked[0].Item, docs[ranked[0].Item], ranked[0].Score)
	}

	files := make([]specFile, 0, len(ranked))
	for _, r := range ranked {
		files = append(files, specFile{Path: docs[r.Item], Similarity: r.Score})
	}
	return mustJSON(openSpecFilesResponse{Files: files, Hint: "ranked candidates; ask to read one if a top match looks right."})
}

func readAndRegisterSpec(ctx context.Context, env *Env, username, docName, relPath string, similarity float64) string {
	fs, ok := env.Files[index.DocTypeSpec]
	if !ok {
		return mustJSON(openSpecFilesResponse{Hint: "specification file storage is not configured."})
	}
	absPath, err := fs.ResolvePath(relPath)
	if err != nil {
		return mustJSON(openSpecFilesResponse{Hint: "refused to read path outside the specification root."})
	}

	content, err := docparse.ParseFile(absPath, "\n")
	if err != nil {
		logger.WarnCtx(ctx, "openSpecificationFiles failed to parse document", logger.Path(relPath), logger.Err(err))
		return mustJSON(openSpecFilesResponse{Hint: "failed to read document: " + err.Error()})
	}

	limit := env.Config.Chat.ModelContextWindow
	content, truncated := truncate(content, limit)
	hint := "document opened for " + docName
	if truncated {
		hint += "; content truncated to the model context window."
	}

	entry, err := env.Sessions.OpenFile(ctx, username, relPath, session.DocTypeSpec, true)
	if err != nil {
		logger.WarnCtx(ctx, "openSpecificationFiles failed to register opened file", logger.Err(err))
		return mustJSON(openSpecFilesResponse{Content: content, FilePath: relPath, Similarity: similarity, Hint: hint})
	}

	return mustJSON(openSpecFilesResponse{
		Content:     content,
		Token:       entry.Token,
		FilePath:    relPath,
		DownloadURL: downloadURL(entry.Token, docName),
		Similarity:  similarity,
		Hint:        hint,
	})
}

func isKnownSpecCategory(env *Env, category string) bool {
	for _, c := range env.Config.Documents.SpecCategories {
		if c == category {
			return true
		}
	}
	return len(env.Config.Documents.SpecCategories) == 0
}

func substringRank(query string, candidates []string, topN int) []embeddings.Scored {
	matches := make([]embeddings.Scored, 0)
	for _, c := range candidates {
		if strings.Contains(c, query) {
			matches = append(matches, embeddings.Scored{Item: c, Score: 1})
		}
	}
	if len(matches) > topN {
		matches = matches[:topN]
	}
	return matches
}

func extOf(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ""
	}
	return path[idx:]
}
