package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nguyenthenguyen/docx"

	"github.com/docassistant/docassistant/internal/logger"
	"github.com/docassistant/docassistant/pkg/fileservice"
	"github.com/docassistant/docassistant/pkg/index"
	"github.com/docassistant/docassistant/pkg/session"
	"github.com/docassistant/docassistant/pkg/toolhost"
)

const reviewDraftSubdir = "过程文件/评审意见草稿"

type writeReviewDocArgs struct {
	TemplateType string            `json:"template_type" jsonschema:"required,description=Name of the review template to use\\, matching a <template_type>.docx file under the template root."`
	ProjectName  string            `json:"project_name,omitempty" jsonschema:"description=Project the rendered document belongs to. Required unless get_manual is true."`
	Content      map[string]string `json:"content,omitempty" jsonschema:"description=Placeholder-to-value mapping used to render the template. Required unless get_manual is true."`
	GetManual    *bool             `json:"get_manual,omitempty" jsonschema:"description=When true (the default)\\, return the template's instruction text instead of rendering it."`
}

type writeReviewDocResponse struct {
	Content     string `json:"content"`
	Token       string `json:"token,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	Hint        string `json:"hint"`
}

func registerWriteReviewDoc(host *toolhost.Host, env *Env) {
	host.Register(
		"writeReviewDoc",
		"Fetches a review document template's instructions, or renders it against supplied content for a project.",
		&writeReviewDocArgs{},
		func(ctx context.Context, username string, raw json.RawMessage) (string, error) {
			var args writeReviewDocArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return mustJSON(writeReviewDocResponse{Hint: "invalid arguments: " + err.Error()}), nil
			}
			return writeReviewDoc(ctx, env, username, args), nil
		},
	)
}

func writeReviewDoc(ctx context.Context, env *Env, username string, args writeReviewDocArgs) string {
	getManual := args.GetManual == nil || *args.GetManual

	if getManual {
		manualPath, err := env.TemplateFiles.ResolvePath(args.TemplateType + ".txt")
		if err != nil {
			return mustJSON(writeReviewDocResponse{Hint: "invalid template_type: " + args.TemplateType})
		}
		data, err := os.ReadFile(manualPath)
		if err != nil {
			return mustJSON(writeReviewDocResponse{Hint: "no instructions found for template " + args.TemplateType})
		}
		return mustJSON(writeReviewDocResponse{Content: string(data), Hint: "instructions for template " + args.TemplateType})
	}

	if args.ProjectName == "" || len(args.Content) == 0 {
		return mustJSON(writeReviewDocResponse{Hint: "project_name and content are required when get_manual is false."})
	}

	templatePath, err := env.TemplateFiles.ResolvePath(args.TemplateType + ".docx")
	if err != nil {
		return mustJSON(writeReviewDocResponse{Hint: "invalid template_type: " + args.TemplateType})
	}
	if _, err := os.Stat(templatePath); err != nil {
		return mustJSON(writeReviewDocResponse{Hint: "unknown review template: " + args.TemplateType})
	}

	filename := args.ProjectName + "_" + args.TemplateType + ".docx"

	outputFS, relOutputDir := reviewOutputLocation(env, username)
	relPath := filepath.Join(relOutputDir, filename)
	outputPath, err := outputFS.ResolvePath(relPath)
	if err != nil {
		return mustJSON(writeReviewDocResponse{Hint: "invalid project_name or template_type."})
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		logger.ErrorCtx(ctx, "writeReviewDoc failed to create output directory", logger.Err(err))
		return mustJSON(writeReviewDocResponse{Hint: "failed to prepare output directory."})
	}

	if err := copyFile(templatePath, outputPath); err != nil {
		logger.ErrorCtx(ctx, "writeReviewDoc failed to copy template", logger.Err(err))
		return mustJSON(writeReviewDocResponse{Hint: "failed to copy template."})
	}

	if err := renderReviewTemplate(outputPath, args.Content); err != nil {
		logger.ErrorCtx(ctx, "writeReviewDoc failed to render template", logger.Err(err))
		return mustJSON(writeReviewDocResponse{Hint: "failed to render template: " + err.Error()})
	}

	entry, err := env.Sessions.OpenFile(ctx, username, relPath, session.DocTypeProject, true)
	if err != nil {
		logger.WarnCtx(ctx, "writeReviewDoc failed to register rendered file", logger.Err(err))
		return mustJSON(writeReviewDocResponse{FilePath: relPath, Hint: "document rendered at " + relPath})
	}

	return mustJSON(writeReviewDocResponse{
		FilePath:    relPath,
		Token:       entry.Token,
		DownloadURL: downloadURL(entry.Token, filename),
		Hint:        "document rendered successfully.",
	})
}

// reviewOutputLocation returns the FileService the rendered document
// should be written through, and the path relative to its root: the
// user's known project working directory when one is open, otherwise
// the configured default output root.
func reviewOutputLocation(env *Env, username string) (fs *fileservice.Service, rel string) {
	sess, err := env.Sessions.Get(username)
	if err == nil && sess.WorkingDirectory != nil && sess.WorkingDirectory.DirectoryPath != "" {
		if projectFS, ok := env.Files[index.DocTypeProject]; ok {
			return projectFS, filepath.Join(sess.WorkingDirectory.DirectoryPath, reviewDraftSubdir)
		}
	}
	return env.OutputFiles, username
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// renderReviewTemplate substitutes each content key (wrapped as
// {{key}}) for its value in the copied docx, then removes paragraphs
// written exactly as <w:p></w:p> or <w:p><w:pPr/></w:p>. A paragraph
// with attributes or with runs, including runs a substitution left
// empty, is kept.
func renderReviewTemplate(path string, content map[string]string) error {
	reader, err := docx.ReadDocxFile(path)
	if err != nil {
		return fmt.Errorf("open template: %w", err)
	}
	defer reader.Close()

	doc := reader.Editable()
	for key, value := range content {
		placeholder := "{{" + key + "}}"
		if err := doc.Replace(placeholder, value, -1); err != nil {
			return fmt.Errorf("substitute %s: %w", placeholder, err)
		}
	}
	removeEmptyParagraphs(doc)

	if err := doc.WriteToFile(path); err != nil {
		return fmt.Errorf("write rendered document: %w", err)
	}
	return nil
}

func removeEmptyParagraphs(doc *docx.Docx) {
	_ = doc.Replace("<w:p><w:pPr/></w:p>", "", -1)
	_ = doc.Replace("<w:p></w:p>", "", -1)
}
