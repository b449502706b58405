package tools

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/docassistant/docassistant/internal/logger"
	"github.com/docassistant/docassistant/pkg/embeddings"
	"github.com/docassistant/docassistant/pkg/index"
	"github.com/docassistant/docassistant/pkg/indexstore"
	"github.com/docassistant/docassistant/pkg/toolhost"
)

type queryProjectFilesArgs struct {
	ProjectName string `json:"project_name" jsonschema:"required,description=Project name keyword\\, fuzzy-matched by substring and embedding similarity\\, or /ALL to list every project."`
	Year        string `json:"year,omitempty" jsonschema:"description=Four-digit project year. Omit to search across every year."`
}

type queryProjectFilesResponse struct {
	ProjectName  any      `json:"project_name"`
	ProjectFiles []string `json:"project_files,omitempty"`
	Hint         string   `json:"hint"`
}

func registerQueryProjectFiles(host *toolhost.Host, env *Env) {
	host.Register(
		"queryProjectFiles",
		"Looks up project files by project name, optionally scoped to a year. Supports exact, substring and embedding-similarity matching.",
		&queryProjectFilesArgs{},
		func(ctx context.Context, username string, raw json.RawMessage) (string, error) {
			var args queryProjectFilesArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return mustJSON(queryProjectFilesResponse{ProjectName: "None", Hint: "invalid arguments: " + err.Error()}), nil
			}
			return queryProjectFiles(ctx, env, username, args), nil
		},
	)
}

func projectRows(ctx context.Context, env *Env, year string) ([]indexstore.Row, error) {
	docType := string(index.DocTypeProject)
	q := indexstore.Query{DocType: &docType}
	if year != "" {
		q.Year = &year
	}
	return env.Index.Find(ctx, q)
}

func distinctProjects(rows []indexstore.Row) ([]string, map[string]string) {
	seen := map[string]bool{}
	yearOf := map[string]string{}
	names := make([]string, 0)
	for _, row := range rows {
		if row.ProjectName == "" {
			continue
		}
		if !seen[row.ProjectName] {
			seen[row.ProjectName] = true
			names = append(names, row.ProjectName)
			yearOf[row.ProjectName] = row.Year
		}
	}
	sort.Strings(names)
	return names, yearOf
}

func queryProjectFiles(ctx context.Context, env *Env, username string, args queryProjectFilesArgs) string {
	rows, err := projectRows(ctx, env, args.Year)
	if err != nil {
		logger.ErrorCtx(ctx, "queryProjectFiles index lookup failed", logger.Err(err))
		return mustJSON(queryProjectFilesResponse{ProjectName: "None", Hint: "internal error querying the document index."})
	}

	allProjects, yearOf := distinctProjects(rows)

	if args.ProjectName == "/ALL" {
		return mustJSON(queryProjectFilesResponse{
			ProjectName: strings.Join(allProjects, "\n"),
			Hint:        "all projects in scope" + yearSuffix(args.Year),
		})
	}

	if resolved, ok := exactOrUniqueSubstring(args.ProjectName, allProjects); ok {
		return resolveProjectFiles(ctx, env, username, resolved, yearOf[resolved])
	}

	candidates := substringMatches(args.ProjectName, allProjects)
	if len(candidates) == 0 {
		candidates = allProjects
	}

	if !env.embeddingsAvailable() || len(candidates) == 0 {
		if len(candidates) > 1 {
			return mustJSON(queryProjectFilesResponse{ProjectName: candidates, Hint: "multiple possible projects found; embedding search is unavailable, please narrow the name."})
		}
		return mustJSON(queryProjectFilesResponse{ProjectName: "None", Hint: "no matching project found."})
	}

	scored, err := embeddings.RankByQuery(ctx, env.Embeddings, args.ProjectName, candidates, 3)
	if err != nil {
		logger.WarnCtx(ctx, "queryProjectFiles embedding rank failed", logger.Err(err))
		return mustJSON(queryProjectFilesResponse{ProjectName: candidates, Hint: "multiple possible projects found; please choose one."})
	}
	if len(scored) == 0 {
		return mustJSON(queryProjectFilesResponse{ProjectName: "None", Hint: "no matching project found."})
	}
	if scored[0].Score > 0.8 {
		return resolveProjectFiles(ctx, env, username, scored[0].Item, yearOf[scored[0].Item])
	}

	top := make([]string, 0, len(scored))
	for _, s := range scored {
		top = append(top, s.Item)
	}
	return mustJSON(queryProjectFilesResponse{ProjectName: top, Hint: "no exact match found; did you mean one of these projects?"})
}

func resolveProjectFiles(ctx context.Context, env *Env, username, projectName, year string) string {
	docType := string(index.DocTypeProject)
	q := indexstore.Query{DocType: &docType, ProjectName: &projectName}
	rows, err := env.Index.Find(ctx, q)
	if err != nil {
		return mustJSON(queryProjectFilesResponse{ProjectName: "None", Hint: "internal error querying the document index."})
	}

	files := make([]string, 0, len(rows))
	for _, row := range rows {
		files = append(files, row.RelativePath)
	}

	if _, err := env.Sessions.OpenDirectory(ctx, username, year+"/"+projectName, files); err != nil {
		logger.WarnCtx(ctx, "queryProjectFiles failed to register working directory", logger.Err(err))
	}

	return mustJSON(queryProjectFilesResponse{
		ProjectName:  projectName,
		ProjectFiles: files,
		Hint:         "file list may be long; no need to enumerate it back to the user unless asked.",
	})
}

func exactOrUniqueSubstring(query string, candidates []string) (string, bool) {
	for _, c := range candidates {
		if c == query {
			return c, true
		}
	}
	matches := substringMatches(query, candidates)
	if len(matches) == 1 {
		return matches[0], true
	}
	return "", false
}

func substringMatches(query string, candidates []string) []string {
	matches := make([]string, 0)
	for _, c := range candidates {
		if strings.Contains(c, query) {
			matches = append(matches, c)
		}
	}
	return matches
}

func yearSuffix(year string) string {
	if year == "" {
		return ""
	}
	return " for year " + year
}
