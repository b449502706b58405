package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/docassistant/docassistant/internal/logger"
	"github.com/docassistant/docassistant/pkg/config"
	"github.com/docassistant/docassistant/pkg/toolhost"
)

type queryKnowledgeBaseArgs struct {
	Query           string `json:"query" jsonschema:"required,description=Natural-language question to search the knowledge base for."`
	KnowledgeBaseName string `json:"knowledge_base_name" jsonschema:"required,description=Name of the dataset to search."`
	TopK            int    `json:"top_k,omitempty" jsonschema:"description=Number of records to retrieve. Defaults to the configured value."`
}

type knowledgeBaseResponse struct {
	Content string `json:"content"`
	Hint    string `json:"hint"`
}

type difyDatasetList struct {
	Data []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"data"`
}

type difyRetrieveRequest struct {
	Query          string               `json:"query"`
	RetrievalModel difyRetrievalModel    `json:"retrieval_model"`
}

type difyRetrievalModel struct {
	SearchMethod          string `json:"search_method"`
	RerankingEnable        bool   `json:"reranking_enable"`
	RerankingModel         string `json:"reranking_model,omitempty"`
	TopK                   int    `json:"top_k"`
	ScoreThresholdEnabled  bool   `json:"score_threshold_enabled"`
}

type difyRetrieveResponse struct {
	Records []struct {
		Segment struct {
			Content  string `json:"content"`
			Document struct {
				Name string `json:"name"`
			} `json:"document"`
		} `json:"segment"`
		Score float64 `json:"score"`
	} `json:"records"`
}

func registerQueryKnowledgeBase(host *toolhost.Host, env *Env) {
	host.Register(
		"queryKnowledgeBase",
		"Retrieves relevant passages from an external vector knowledge base by semantic search.",
		&queryKnowledgeBaseArgs{},
		func(ctx context.Context, _ string, raw json.RawMessage) (string, error) {
			var args queryKnowledgeBaseArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return mustJSON(knowledgeBaseResponse{Hint: "invalid arguments: " + err.Error()}), nil
			}
			return queryKnowledgeBase(ctx, env, args), nil
		},
	)
}

func queryKnowledgeBase(ctx context.Context, env *Env, args queryKnowledgeBaseArgs) string {
	cfg := env.Config.KnowledgeBase
	if cfg.URL == "" {
		return mustJSON(knowledgeBaseResponse{Hint: "knowledge base is not configured."})
	}
	topK := args.TopK
	if topK <= 0 {
		topK = cfg.TopK
	}

	lookupCtx, cancelLookup := context.WithTimeout(ctx, 10*time.Second)
	datasetID, err := resolveDatasetID(lookupCtx, env, cfg.URL, cfg.APIKey, args.KnowledgeBaseName)
	cancelLookup()
	if err != nil {
		logger.WarnCtx(ctx, "queryKnowledgeBase dataset lookup failed", logger.Err(err))
		return mustJSON(knowledgeBaseResponse{Hint: "failed to find knowledge base " + args.KnowledgeBaseName})
	}

	retrieveCtx, cancelRetrieve := context.WithTimeout(ctx, 20*time.Second)
	records, err := retrieve(retrieveCtx, env, cfg, datasetID, args.Query, topK)
	cancelRetrieve()
	if err != nil {
		logger.WarnCtx(ctx, "queryKnowledgeBase retrieval failed", logger.Err(err))
		return mustJSON(knowledgeBaseResponse{Hint: "knowledge base retrieval failed: " + err.Error()})
	}
	if len(records.Records) == 0 {
		return mustJSON(knowledgeBaseResponse{Hint: "no relevant passages found."})
	}

	content := ""
	for i, r := range records.Records {
		content += fmt.Sprintf("检索结果 %d\n来自源文档：%s\n相似度分数：%.4f\n内容如下：%s\n\n",
			i+1, r.Segment.Document.Name, r.Score, r.Segment.Content)
	}
	return mustJSON(knowledgeBaseResponse{Content: content, Hint: "retrieved from " + args.KnowledgeBaseName})
}

func resolveDatasetID(ctx context.Context, env *Env, baseURL, apiKey, name string) (string, error) {
	reqURL := baseURL + "/datasets?keyword=" + url.QueryEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := env.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("dataset lookup returned status %d", resp.StatusCode)
	}

	var list difyDatasetList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", err
	}
	for _, d := range list.Data {
		if d.Name == name {
			return d.ID, nil
		}
	}
	if len(list.Data) > 0 {
		return list.Data[0].ID, nil
	}
	return "", fmt.Errorf("no dataset matching %q", name)
}

func retrieve(ctx context.Context, env *Env, cfg config.KnowledgeBaseConfig, datasetID, query string, topK int) (*difyRetrieveResponse, error) {
	payload := difyRetrieveRequest{
		Query: query,
		RetrievalModel: difyRetrievalModel{
			SearchMethod:          "semantic_search",
			RerankingEnable:       cfg.RerankEnable,
			RerankingModel:        cfg.RerankModel,
			TopK:                  topK,
			ScoreThresholdEnabled: false,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	reqURL := cfg.URL + "/datasets/" + datasetID + "/retrieve"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := env.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("retrieve returned status %d", resp.StatusCode)
	}

	var result difyRetrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}
