// Package kernel wires every domain service into a single runnable
// process: configuration, logging, metrics, the session table, the
// document index, file trees, the chat/tool surface and the HTTP server,
// in the order each depends on the last.
package kernel

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/docassistant/docassistant/internal/logger"
	"github.com/docassistant/docassistant/internal/telemetry"
	"github.com/docassistant/docassistant/pkg/api"
	"github.com/docassistant/docassistant/pkg/auth"
	"github.com/docassistant/docassistant/pkg/backup"
	"github.com/docassistant/docassistant/pkg/chat"
	"github.com/docassistant/docassistant/pkg/config"
	"github.com/docassistant/docassistant/pkg/embeddings"
	"github.com/docassistant/docassistant/pkg/fileservice"
	"github.com/docassistant/docassistant/pkg/index"
	"github.com/docassistant/docassistant/pkg/indexstore"
	"github.com/docassistant/docassistant/pkg/metrics"
	promMetrics "github.com/docassistant/docassistant/pkg/metrics/prometheus"
	"github.com/docassistant/docassistant/pkg/preview"
	"github.com/docassistant/docassistant/pkg/session"
	"github.com/docassistant/docassistant/pkg/streamproxy"
	"github.com/docassistant/docassistant/pkg/toolhost"
	"github.com/docassistant/docassistant/pkg/tools"
)

// Kernel holds every constructed collaborator plus the background
// goroutines (index watcher, session sweepers) started against them.
// Build one with New, then Run it until ctx is cancelled.
type Kernel struct {
	cfg *config.Config

	store        *indexstore.Store
	index        *index.Service
	sessions     *session.Manager
	fileRoots    map[session.DocType]*fileservice.Service
	backupUpload *backup.Uploader

	embeddingsAvailable bool

	apiServer         *api.Server
	telemetryShutdown func(context.Context) error
	profilingShutdown func() error

	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// New performs the full startup sequence against cfg: config is
// assumed already loaded and validated by the caller. Returns a
// Kernel ready for Run, or an error from any step along the way.
func New(ctx context.Context, cfg *config.Config, version string) (*Kernel, error) {
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	var embeddingsClient *embeddings.Client
	embeddingsAvailable := false
	if cfg.Embeddings.URL != "" {
		embeddingsClient = embeddings.New(embeddings.Config{
			URL:                cfg.Embeddings.URL,
			APIKey:             cfg.Embeddings.APIKey,
			Model:              cfg.Embeddings.Model,
			HealthCheckTimeout: cfg.Embeddings.HealthCheckTimeout,
		}, httpClient)

		healthCtx, cancel := context.WithTimeout(ctx, cfg.Embeddings.HealthCheckTimeout)
		embeddingsAvailable = embeddingsClient.HealthCheck(healthCtx)
		cancel()
	}
	if embeddingsAvailable {
		logger.Info("embeddings endpoint healthy, fuzzy ranking enabled")
	} else {
		logger.Info("embeddings endpoint unavailable, falling back to substring matching")
	}

	metrics.Init(cfg.Metrics.Enabled)

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "docassistant",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "docassistant",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		telemetryShutdown(ctx)
		return nil, fmt.Errorf("init profiling: %w", err)
	}

	sessions := session.New(session.Config{
		OverallInactivityTimeout: cfg.Session.OverallInactivityTimeout,
		DownloadLinkValidity:     cfg.Session.DownloadLinkValidity,
	})
	sessions.SetMetrics(promMetrics.NewSessionMetrics())

	store, err := indexstore.New(indexstore.Config{
		Type:       indexstore.DatabaseType(cfg.Index.StoreDriver),
		SQLitePath: cfg.Index.StorePath,
		Postgres: indexstore.PostgresConfig{
			Host:     cfg.Index.Postgres.Host,
			Port:     cfg.Index.Postgres.Port,
			User:     cfg.Index.Postgres.User,
			Password: cfg.Index.Postgres.Password,
			Database: cfg.Index.Postgres.Database,
			SSLMode:  cfg.Index.Postgres.SSLMode,
		},
		Truncate: cfg.Index.Persist == "rescan",
	})
	if err != nil {
		return nil, fmt.Errorf("open index store: %w", err)
	}

	indexSvc := index.New(store, index.Config{
		Roots: []index.Root{
			{DocType: index.DocTypeProject, Path: cfg.Documents.ProjectsRoot},
			{DocType: index.DocTypeSpec, Path: cfg.Documents.SpecRoot},
			{DocType: index.DocTypeManagement, Path: cfg.Documents.ManagementRoot},
		},
		Cooldown:       cfg.Index.WatcherCooldown,
		Persist:        cfg.Index.Persist,
		ScanCronHour:   cfg.Index.ScanCronHour,
		ScanCronMinute: cfg.Index.ScanCronMinute,
	})
	indexSvc.SetMetrics(promMetrics.NewIndexMetrics())
	if err := indexSvc.Start(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("start index service: %w", err)
	}

	backupUploader, err := backup.New(ctx, backup.Config{
		S3Bucket: cfg.Backup.S3Bucket,
		S3Region: cfg.Backup.S3Region,
	})
	if err != nil {
		indexSvc.Stop(ctx)
		store.Close()
		return nil, fmt.Errorf("construct backup uploader: %w", err)
	}

	fileRoots := map[session.DocType]*fileservice.Service{}
	rootDirs := map[session.DocType]string{
		session.DocTypeProject:    cfg.Documents.ProjectsRoot,
		session.DocTypeSpec:       cfg.Documents.SpecRoot,
		session.DocTypeManagement: cfg.Documents.ManagementRoot,
	}
	for docType, root := range rootDirs {
		svc, err := fileservice.New(fileservice.Config{RootDir: root, MaxConcurrentIO: 8, BackupUpload: backupUploader})
		if err != nil {
			indexSvc.Stop(ctx)
			store.Close()
			return nil, fmt.Errorf("construct file service for %s: %w", docType, err)
		}
		fileRoots[docType] = svc
	}

	templateFiles, err := fileservice.New(fileservice.Config{RootDir: cfg.Review.TemplateRoot, MaxConcurrentIO: 8})
	if err != nil {
		indexSvc.Stop(ctx)
		store.Close()
		return nil, fmt.Errorf("construct review template file service: %w", err)
	}
	outputFiles, err := fileservice.New(fileservice.Config{RootDir: cfg.Review.DefaultOutputRoot, MaxConcurrentIO: 8})
	if err != nil {
		indexSvc.Stop(ctx)
		store.Close()
		return nil, fmt.Errorf("construct review output file service: %w", err)
	}

	users, err := auth.LoadUsersDB(cfg.Auth.UsersDBPath)
	if err != nil {
		indexSvc.Stop(ctx)
		store.Close()
		return nil, fmt.Errorf("load users db: %w", err)
	}
	tokenAuth := auth.New(cfg.Auth.SessionSecret, sessions)

	toolHost := toolhost.New()
	toolHost.SetMetrics(promMetrics.NewToolMetrics())
	tools.RegisterAll(toolHost, &tools.Env{
		Sessions:      sessions,
		Index:         indexSvc,
		Files:         indexFileServiceMap(fileRoots),
		Embeddings:    embeddingsClient,
		Config:        cfg,
		TemplateFiles: templateFiles,
		OutputFiles:   outputFiles,
		EmbeddingsAvailable: func() bool {
			return embeddingsAvailable
		},
		HTTPClient: httpClient,
	})

	fileRootResolver := preview.FileRootResolver(func(docType session.DocType) (*fileservice.Service, bool) {
		svc, ok := fileRoots[docType]
		return svc, ok
	})

	previewProxy := preview.NewPreviewProxy(preview.PreviewConfig{
		BaseURL:     cfg.Preview.BaseURL,
		HTTPTimeout: cfg.Preview.HTTPTimeout,
	}, httpClient)

	downloadURLPrefix := cfg.Server.PublicBaseURL + "/download"
	callbackURL := cfg.Server.PublicBaseURL + "/onlyoffice/callback"
	editorBridge := preview.NewEditorBridge(preview.EditorConfig{
		JWTSecret: cfg.Editor.JWTSecret,
		JWTEnable: cfg.Editor.JWTEnable,
	}, sessions, fileRootResolver, httpClient, downloadURLPrefix, callbackURL)

	deps := &api.Deps{
		Auth:     tokenAuth,
		Users:    users,
		Sessions: sessions,
		Index:    indexSvc,
		Tools:    toolHost,

		Embeddings: embeddingsClient,

		FileRoots: fileRootResolver,

		ChatConfig: chat.Config{
			SystemPrompt:       cfg.Chat.SystemPrompt,
			OpenAIAPIBase:      cfg.Chat.OpenAIAPIBase,
			OpenAIAPIKey:       cfg.Chat.OpenAIAPIKey,
			OpenAIModel:        cfg.Chat.OpenAIModel,
			ModelContextWindow: cfg.Chat.ModelContextWindow,
			HistoryRoot:        cfg.Chat.HistoryRoot,
			MaxToolCallDepth:   cfg.Chat.MaxToolCallDepth,
		},
		StreamProxyConfig: streamproxy.Config{
			UpstreamURL: cfg.Chat.UpstreamChatURL,
			APIKey:      cfg.Chat.OpenAIAPIKey,
		},
		HTTPClient: httpClient,

		PreviewProxy: previewProxy,
		Editor:       editorBridge,

		SpecImagesDir: cfg.Documents.SpecRoot,

		DebugEndpointsEnabled: cfg.DebugEndpointsEnabled,

		Metrics:     promMetrics.NewAPIMetrics(),
		ChatMetrics: promMetrics.NewChatMetrics(),
	}

	apiServer := api.NewServer(cfg.Server, deps)

	return &Kernel{
		cfg:                 cfg,
		store:               store,
		index:               indexSvc,
		sessions:            sessions,
		fileRoots:           fileRoots,
		backupUpload:        backupUploader,
		embeddingsAvailable: embeddingsAvailable,
		apiServer:           apiServer,
		telemetryShutdown:   telemetryShutdown,
		profilingShutdown:   profilingShutdown,
		cleanupStop:         make(chan struct{}),
		cleanupDone:         make(chan struct{}),
	}, nil
}

// Run starts the background sweepers and blocks serving HTTP until ctx
// is cancelled, then shuts everything down in reverse dependency order.
func (k *Kernel) Run(ctx context.Context) error {
	go k.runSweepers(ctx)

	err := k.apiServer.Start(ctx)

	k.shutdown(ctx)

	return err
}

func (k *Kernel) shutdown(ctx context.Context) {
	close(k.cleanupStop)
	<-k.cleanupDone

	k.index.Stop(ctx)
	if err := k.store.Close(); err != nil {
		logger.Error("index store close error", "error", err)
	}

	if err := k.telemetryShutdown(ctx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}

	if err := k.profilingShutdown(); err != nil {
		logger.Error("profiling shutdown error", "error", err)
	}
}

// runSweepers drives the two periodic SessionManager maintenance
// tasks at the intervals the AppKernel scheduler owns: idle-session
// eviction every CleanupInterval, expired-token eviction at twice
// that interval.
func (k *Kernel) runSweepers(ctx context.Context) {
	defer close(k.cleanupDone)

	sessionTicker := time.NewTicker(k.cfg.Session.CleanupInterval)
	defer sessionTicker.Stop()

	tokenTicker := time.NewTicker(2 * k.cfg.Session.CleanupInterval)
	defer tokenTicker.Stop()

	for {
		select {
		case <-k.cleanupStop:
			return
		case <-sessionTicker.C:
			k.sessions.SweepInactiveSessions(ctx)
		case <-tokenTicker.C:
			k.sessions.SweepExpiredTokens()
		}
	}
}

func indexFileServiceMap(fileRoots map[session.DocType]*fileservice.Service) map[index.DocType]*fileservice.Service {
	out := make(map[index.DocType]*fileservice.Service, len(fileRoots))
	for docType, svc := range fileRoots {
		out[index.DocType(docType)] = svc
	}
	return out
}
