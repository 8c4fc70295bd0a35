package ui

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"

	"github.com/kinescore/kinescore-agent/internal/catalog"
)

type Tray struct {
	catalogSvc catalog.CatalogService
	runner     *catalog.Runner
	logger     *slog.Logger

	statusItem *systray.MenuItem
	videosItem *systray.MenuItem
	pauseItem  *systray.MenuItem

	mu sync.Mutex

	onScanFolder  func() error
	onOpenReports func() error
	onQuit        func()
}

type TrayConfig struct {
	CatalogService catalog.CatalogService
	Runner         *catalog.Runner
	Logger         *slog.Logger
	OnScanFolder   func() error
	OnOpenReports  func() error
	OnQuit         func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		catalogSvc:    cfg.CatalogService,
		runner:        cfg.Runner,
		logger:        cfg.Logger,
		onScanFolder:  cfg.OnScanFolder,
		onOpenReports: cfg.OnOpenReports,
		onQuit:        cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Kinescore")
	systray.SetTooltip("Kinescore Agent")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current agent status")
	t.statusItem.Disable()

	t.videosItem = systray.AddMenuItem("Videos: 0", "Registered videos")
	t.videosItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause", "Pause analysis")

	scanItem := systray.AddMenuItem("Scan Folder...", "Register videos from a folder")
	reportsItem := systray.AddMenuItem("Open Reports", "Open the reports folder")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Kinescore Agent")

	go func() {
		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-scanItem.ClickedCh:
				t.handleScanFolder()
			case <-reportsItem.ClickedCh:
				t.handleOpenReports()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner == nil {
		return
	}

	if t.runner.IsPaused() {
		t.runner.Resume()
		t.pauseItem.SetTitle("Pause")
		t.statusItem.SetTitle("Status: Idle")
	} else {
		t.runner.Pause()
		t.pauseItem.SetTitle("Resume")
		t.statusItem.SetTitle("Status: Paused")
	}
}

func (t *Tray) handleScanFolder() {
	if t.onScanFolder != nil {
		if err := t.onScanFolder(); err != nil {
			t.logger.Error("failed to scan folder", "error", err)
		}
	}
}

func (t *Tray) handleOpenReports() {
	if t.onOpenReports != nil {
		if err := t.onOpenReports(); err != nil {
			t.logger.Error("failed to open reports folder", "error", err)
		}
	}
}

func (t *Tray) UpdateStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner != nil && t.runner.IsPaused() {
		return
	}
	t.statusItem.SetTitle("Status: " + status)
}

func (t *Tray) UpdateVideosCount(count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.videosItem.SetTitle(fmt.Sprintf("Videos: %d", count))
}

func (t *Tray) Quit() {
	systray.Quit()
}
