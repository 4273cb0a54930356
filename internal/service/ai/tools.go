package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// SharedFile is a local copy of a file shared under an access code.
type SharedFile struct {
	Path        string
	Name        string
	ContentType string
	Cleanup     func()
}

// FileSource opens the file stored under an access code.
type FileSource interface {
	OpenShared(ctx context.Context, code string) (*SharedFile, error)
}

// InitWebSearch returns the web_search tool, or nil if no provider is usable.
func InitWebSearch(ctx context.Context, logger *zap.Logger) tool.InvokableTool {
	googleTool := InitGooglesearch(ctx, logger)
	duckTool := InitDDGsearch(ctx, logger)
	if googleTool == nil && duckTool == nil {
		logger.Warn("web search tool disabled: no search providers available")
		return nil
	}

	ws := &webSearchTool{
		google:     googleTool,
		duck:       duckTool,
		httpClient: &http.Client{Timeout: WebSearchHTTPTimeout},
		logger:     logger,
	}

	info := &schema.ToolInfo{
		Name: "web_search",
		Desc: "Search the web for information; " +
			"automatically fallbacks to another provider if needed;" +
			"can search URL if needed.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "Natural language query or URL to search",
				Type:     schema.String,
				Required: true,
			},
		}),
	}

	return utils.NewTool(info, ws.run)
}

type webSearchTool struct {
	google     tool.InvokableTool
	duck       tool.InvokableTool
	httpClient *http.Client
	logger     *zap.Logger
}

type webSearchParams struct {
	Query string `json:"query"`
}

func (w *webSearchTool) run(ctx context.Context, params *webSearchParams) (string, error) {
	if params == nil {
		return "", errors.New("missing search parameters")
	}
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return "", errors.New("query must not be empty")
	}

	if looksLikeURL(query) {
		if content, err := w.fetchURL(ctx, query); err == nil {
			return content, nil
		} else {
			w.logger.Warn("web url loader failed", zap.Error(err))
		}
	}

	payloadBytes, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("marshal search params: %w", err)
	}
	payload := string(payloadBytes)

	if w.google != nil {
		if result, err := w.google.InvokableRun(ctx, payload); err == nil {
			return result, nil
		} else {
			w.logger.Warn("google search failed", zap.Error(err))
		}
	}

	if w.duck != nil {
		if result, err := w.duck.InvokableRun(ctx, payload); err == nil {
			return result, nil
		} else {
			w.logger.Warn("duckduckgo search failed", zap.Error(err))
		}
	}

	return "", errors.New("no search provider succeeded")
}

// shared file reader tool
type sharedFileReader struct {
	loader  *file.FileLoader
	files   FileSource
	limiter *toolRateLimiter
}

type sharedFileReaderParams struct {
	Code       string `json:"code"`
	ChunkIndex int    `json:"chunk_index,omitempty"`
	ChunkSize  int    `json:"chunk_size,omitempty"`
}

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".csv": true, ".json": true,
	".xml": true, ".log": true, ".html": true, ".htm": true, ".yaml": true, ".yml": true,
}

func initSharedFileReader(ctx context.Context, files FileSource, logger *zap.Logger) tool.InvokableTool {
	parserExt, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		logger.Warn("shared file reader disabled", zap.Error(err))
		return nil
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parserExt,
	})
	if err != nil {
		logger.Warn("shared file reader disabled", zap.Error(err))
		return nil
	}
	reader := &sharedFileReader{
		loader:  loader,
		files:   files,
		limiter: newToolRateLimiter(SharedFileRateLimit, SharedFileRateWindow),
	}
	info := &schema.ToolInfo{
		Name: "read_shared_file",
		Desc: "Read a text document that a user shared under a 6 character access code, in small chunks. " +
			"Provide the code (and optional chunk_index / chunk_size); limit 3 calls per minute per user.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"code": {
				Desc:     "Access code of the shared file.",
				Type:     schema.String,
				Required: true,
			},
			"chunk_index": {
				Desc:     "Zero-based chunk index to read, default 0.",
				Type:     schema.Integer,
				Required: false,
			},
			"chunk_size": {
				Desc:     "Number of characters per chunk (max 2000, default 1000).",
				Type:     schema.Integer,
				Required: false,
			},
		}),
	}
	return utils.NewTool(info, reader.run)
}

func (t *sharedFileReader) run(ctx context.Context, params *sharedFileReaderParams) (string, error) {
	if params == nil || strings.TrimSpace(params.Code) == "" {
		return "", errors.New("code is required")
	}
	code := strings.ToUpper(strings.TrimSpace(params.Code))
	key := "code:" + code
	if sender, ok := SenderFromContext(ctx); ok {
		key = "sender:" + sender
	}
	if !t.limiter.Allow(key) {
		return "", errors.New("shared file reader rate limit exceeded, please retry in a minute")
	}

	shared, err := t.files.OpenShared(ctx, code)
	if err != nil {
		return "", fmt.Errorf("open shared file: %w", err)
	}
	if shared.Cleanup != nil {
		defer shared.Cleanup()
	}
	if !isTextFile(shared.Name, shared.ContentType) {
		return "", fmt.Errorf("file %s is not a text document", shared.Name)
	}

	docs, err := t.loader.Load(ctx, document.Source{URI: shared.Path})
	if err != nil {
		return "", fmt.Errorf("load file: %w", err)
	}
	var builder strings.Builder
	for _, doc := range docs {
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			continue
		}
		builder.WriteString(content)
		builder.WriteString("\n\n")
	}
	text := strings.TrimSpace(builder.String())
	segment, chunk, total := chunkText(text, params.ChunkIndex, params.ChunkSize)
	if total == 0 {
		return fmt.Sprintf("File: %s has no readable text content.", shared.Name), nil
	}
	return fmt.Sprintf("File: %s\nChunk %d/%d\n\n%s", shared.Name, chunk+1, total, segment), nil
}

func isTextFile(name, contentType string) bool {
	if strings.HasPrefix(contentType, "text/") || contentType == "application/json" || contentType == "application/xml" {
		return true
	}
	return textExtensions[strings.ToLower(filepath.Ext(name))]
}

// InitDDGsearch Init DDG Search
func InitDDGsearch(ctx context.Context, logger *zap.Logger) tool.InvokableTool {
	duckConfig := &duckduckgo.Config{
		ToolName:   "web_search_ddg",
		ToolDesc:   "DuckDuckGo Search Tool (no token required)",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    10 * time.Second,
	}
	duckTool, err := duckduckgo.NewTextSearchTool(ctx, duckConfig)
	if err != nil {
		logger.Warn("duckduckgo search tool disabled", zap.Error(err))
		return nil
	}
	return duckTool
}

// InitGooglesearch Init Google Search
func InitGooglesearch(ctx context.Context, logger *zap.Logger) tool.InvokableTool {
	googleAPIKey := os.Getenv("GOOGLE_API_KEY")
	googleSearchEngineID := os.Getenv("GOOGLE_SEARCH_ENGINE_ID")
	if googleAPIKey == "" || googleSearchEngineID == "" {
		logger.Info("google search tool disabled: missing GOOGLE_API_KEY or GOOGLE_SEARCH_ENGINE_ID")
		return nil
	}
	googleTool, err := googlesearch.NewTool(ctx, &googlesearch.Config{
		ToolName:       "web_search_google",
		ToolDesc:       "Google Search Tool",
		APIKey:         googleAPIKey,
		SearchEngineID: googleSearchEngineID,
		Lang:           "en",
		Num:            5,
	})
	if err != nil {
		logger.Warn("google search tool disabled", zap.Error(err))
		return nil
	}
	return googleTool
}
