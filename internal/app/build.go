package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/analysis"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/complaint"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/config"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/httpapi"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/memory"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/observability"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/session"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Manager
	Analyzer     analysis.Analyzer
	Metrics      *observability.Metrics
	AnalysisMode string
	StoreMode    string

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	blobs, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("conversation store init failed: %w", err)
	}

	analyzer, err := analysis.NewAnalyzer(analysis.Config{
		Mode:    cfg.AnalysisMode,
		URL:     cfg.AnalysisURL,
		Timeout: cfg.AnalysisTimeout,
	})
	if err != nil {
		_ = blobs.Close()
		return nil, fmt.Errorf("analysis client init failed: %w", err)
	}

	analysisMode := analysis.ModeOf(analyzer)
	storeMode := memory.ModeOf(blobs)
	logger.Info("backends selected",
		zap.String("analysis_mode", analysisMode),
		zap.String("store_mode", storeMode),
	)

	sessions := session.NewManager(cfg.SessionInactivityTimeout, session.Dependencies{
		Persister: blobs,
		Analyzer:  analyzer,
		Materializer: complaint.Materializer{
			Keys:    cfg.ComplaintFormFields,
			FormURL: cfg.ComplaintFormURL,
		},
		Metrics: metrics,
		Logger:  logger.Named("session"),
	})
	sessions.SetEndedRetention(cfg.SessionEndedRetention)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.ObserveSessionEvent("expired", sessions.ActiveCount())
	})

	api := httpapi.New(cfg, sessions, metrics, httpapi.Options{
		AnalysisMode: analysisMode,
		StoreMode:    storeMode,
		Logger:       logger.Named("http"),
	})

	cleanup := func() error {
		sessions.Shutdown()
		return blobs.Close()
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Analyzer:     analyzer,
		Metrics:      metrics,
		AnalysisMode: analysisMode,
		StoreMode:    storeMode,
		Cleanup:      cleanup,
	}, nil
}
