package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kinescore/kinescore-agent/internal/analysis"
	"github.com/kinescore/kinescore-agent/internal/api"
	"github.com/kinescore/kinescore-agent/internal/catalog"
	"github.com/kinescore/kinescore-agent/internal/config"
	"github.com/kinescore/kinescore-agent/internal/db"
	"github.com/kinescore/kinescore-agent/internal/detector"
	"github.com/kinescore/kinescore-agent/internal/logging"
	"github.com/kinescore/kinescore-agent/internal/media"
	"github.com/kinescore/kinescore-agent/internal/report"
	"github.com/kinescore/kinescore-agent/internal/ui"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	// Optional .env for local development; missing file is fine.
	godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.ArtifactsDir(), 0755); err != nil {
		return fmt.Errorf("failed to create artifacts dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting kinescore agent", "version", config.Version, "data_dir", logging.SanitizePath(cfg.DataDir()))

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := catalog.NewRepository(database.Conn())

	deviceID, err := ensureDeviceID(cfg.DataDir())
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken := cfg.AuthToken()
	if authToken == "" {
		authToken, err = ensureAuthToken(cfg.DataDir())
		if err != nil {
			return fmt.Errorf("failed to ensure auth token: %w", err)
		}
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                   KINESCORE AGENT v" + config.Version + "                   ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	catalogSvc := catalog.NewService(repo, logger)

	detCfg := detector.Config{
		PythonPath:    cfg.DetectorPython(),
		ModuleName:    cfg.DetectorModule(),
		ArtifactsBase: cfg.ArtifactsDir(),
		DoctorTimeout: cfg.DetectorTimeoutDoctor(),
		PoseTimeout:   cfg.DetectorTimeoutPose(),
		Logger:        logger,
	}

	var detRunner detector.Runner
	var doctor *detector.CachedDoctor

	dr, err := detector.NewRunner(detCfg)
	if err != nil {
		logger.Warn("detector runner unavailable, analysis disabled", "error", err)
	} else {
		detRunner = dr
		doctor = detector.NewCachedDoctor(dr, logger)

		initCtx, initCancel := context.WithTimeout(context.Background(), detCfg.DoctorTimeout)
		defer initCancel()
		if caps, err := doctor.Refresh(initCtx); err != nil {
			logger.Warn("initial doctor probe failed", "error", err)
		} else {
			logger.Info("detector capabilities detected",
				"pose", caps.HasPose,
				"probe", caps.HasProbe,
				"deps", fmt.Sprintf("%d/%d", caps.Summary.Available, caps.Summary.Total),
			)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reportsDir := filepath.Join(cfg.ArtifactsDir(), "reports")
	runner := catalog.NewRunner(catalog.RunnerDeps{
		Repo:            repo,
		Detector:        detRunner,
		Doctor:          doctor,
		Prober:          media.NewFFprobe(cfg.FFprobePath(), logger),
		Limits:          media.DefaultLimits(),
		Analyzer:        analysis.New(analysis.DefaultConfig(), logger),
		Reports:         report.NewWriter(reportsDir, logger),
		CourseDistanceM: cfg.CourseDistanceM(),
		SampleFPS:       cfg.DetectorSampleFPS(),
		Logger:          logging.WithComponent(logger, "runner"),
	})
	go runner.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		AuthToken:      authToken,
		CatalogService: catalogSvc,
		Repository:     repo,
		Runner:         runner,
		Doctor:         doctor,
		Logger:         logging.WithComponent(logger, "api"),
		StartTime:      startTime,
		DeviceID:       deviceID,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			CatalogService: catalogSvc,
			Runner:         runner,
			Logger:         logging.WithComponent(logger, "tray"),
			OnScanFolder: func() error {
				logger.Info("scan folder requested from tray (folder picker not implemented in v0)")
				return nil
			},
			OnOpenReports: func() error {
				return openPath(reportsDir)
			},
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// ensureDeviceID reads the persistent device identity, generating one on
// first run.
func ensureDeviceID(dataDir string) (string, error) {
	return ensureSecret(filepath.Join(dataDir, "device_id"), 16)
}

// ensureAuthToken reads the persistent API token, generating one on first
// run. KINESCORE_AUTH_TOKEN overrides it without touching the file.
func ensureAuthToken(dataDir string) (string, error) {
	return ensureSecret(filepath.Join(dataDir, "auth_token"), 32)
}

func ensureSecret(path string, byteLen int) (string, error) {
	if data, err := os.ReadFile(path); err == nil {
		if v := strings.TrimSpace(string(data)); v != "" {
			return v, nil
		}
	}

	raw := make([]byte, byteLen)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	secret := hex.EncodeToString(raw)

	if err := os.WriteFile(path, []byte(secret+"\n"), 0600); err != nil {
		return "", err
	}
	return secret, nil
}

// openPath opens a directory in the platform file browser.
func openPath(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}
