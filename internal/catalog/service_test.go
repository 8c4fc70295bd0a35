package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kinescore/kinescore-agent/internal/db"
)

func setupTestDB(t *testing.T) (*db.DB, Repository) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	repo := NewRepository(database.Conn())
	return database, repo
}

func writeVideoFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("video bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestService_RegisterVideo(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil)
	path := writeVideoFile(t, t.TempDir(), "squat.mp4")

	video, err := svc.RegisterVideo(context.Background(), path, "squat")
	if err != nil {
		t.Fatalf("RegisterVideo() error = %v", err)
	}

	if video.ID == "" {
		t.Error("video.ID is empty")
	}
	if video.Exercise != "squat" {
		t.Errorf("video.Exercise = %s, want squat", video.Exercise)
	}
	if video.Status != VideoStatusPending {
		t.Errorf("video.Status = %s, want %s", video.Status, VideoStatusPending)
	}
}

func TestService_RegisterVideo_DedupeByPath(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil)
	path := writeVideoFile(t, t.TempDir(), "jump.mov")
	ctx := context.Background()

	first, err := svc.RegisterVideo(ctx, path, "vertical_jump")
	if err != nil {
		t.Fatalf("first RegisterVideo() error = %v", err)
	}
	second, err := svc.RegisterVideo(ctx, path, "vertical_jump")
	if err != nil {
		t.Fatalf("second RegisterVideo() error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("duplicate registration created a new video: %s vs %s", first.ID, second.ID)
	}

	count, err := svc.CountVideos(ctx)
	if err != nil {
		t.Fatalf("CountVideos() error = %v", err)
	}
	if count != 1 {
		t.Errorf("CountVideos() = %d, want 1", count)
	}
}

func TestService_RegisterVideo_InvalidPath(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil)

	_, err := svc.RegisterVideo(context.Background(), "/nonexistent/clip.mp4", "squat")
	if err == nil {
		t.Error("RegisterVideo() should return error for nonexistent path")
	}
}

func TestService_RegisterVideo_RejectsNonVideo(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil)
	path := writeVideoFile(t, t.TempDir(), "notes.txt")

	_, err := svc.RegisterVideo(context.Background(), path, "squat")
	if err == nil {
		t.Error("RegisterVideo() should return error for non-video file")
	}
}

func TestService_RegisterVideo_RejectsDirectory(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil)

	_, err := svc.RegisterVideo(context.Background(), t.TempDir(), "squat")
	if err == nil {
		t.Error("RegisterVideo() should return error for directory")
	}
}

func TestService_ScanFolder(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil)
	dir := t.TempDir()
	writeVideoFile(t, dir, "a.mp4")
	writeVideoFile(t, dir, "b.mov")
	writeVideoFile(t, dir, "skip.txt")

	sub := filepath.Join(dir, ".hidden")
	os.MkdirAll(sub, 0755)
	writeVideoFile(t, sub, "c.mp4")

	ctx := context.Background()
	registered, err := svc.ScanFolder(ctx, dir, "squat")
	if err != nil {
		t.Fatalf("ScanFolder() error = %v", err)
	}
	if len(registered) != 2 {
		t.Errorf("registered %d videos, want 2 (hidden dir and non-video skipped)", len(registered))
	}

	jobs, err := repo.ListPendingJobs(ctx)
	if err != nil {
		t.Fatalf("ListPendingJobs() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("pending jobs = %d, want 2", len(jobs))
	}
}

func TestService_ScanFolder_Rescan(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil)
	dir := t.TempDir()
	writeVideoFile(t, dir, "a.mp4")
	ctx := context.Background()

	if _, err := svc.ScanFolder(ctx, dir, "squat"); err != nil {
		t.Fatalf("first ScanFolder() error = %v", err)
	}
	again, err := svc.ScanFolder(ctx, dir, "squat")
	if err != nil {
		t.Fatalf("second ScanFolder() error = %v", err)
	}
	if len(again) != 0 {
		t.Errorf("rescan registered %d videos, want 0", len(again))
	}
}

func TestService_EnqueueAnalysis_Dedupes(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil)
	path := writeVideoFile(t, t.TempDir(), "run.mp4")
	ctx := context.Background()

	video, err := svc.RegisterVideo(ctx, path, "shuttle_run")
	if err != nil {
		t.Fatalf("RegisterVideo() error = %v", err)
	}

	j1, err := svc.EnqueueAnalysis(ctx, video.ID)
	if err != nil {
		t.Fatalf("first EnqueueAnalysis() error = %v", err)
	}
	j2, err := svc.EnqueueAnalysis(ctx, video.ID)
	if err != nil {
		t.Fatalf("second EnqueueAnalysis() error = %v", err)
	}
	if j1.ID != j2.ID {
		t.Errorf("duplicate enqueue created a new job: %s vs %s", j1.ID, j2.ID)
	}
}

func TestService_EnqueueAnalysis_UnknownVideo(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil)

	_, err := svc.EnqueueAnalysis(context.Background(), "no-such-id")
	if err == nil {
		t.Error("EnqueueAnalysis() should fail for unknown video")
	}
}

func TestIsVideoFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"clip.mp4", true},
		{"clip.MOV", true},
		{"clip.webm", true},
		{"clip.txt", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := IsVideoFile(tt.name); got != tt.want {
			t.Errorf("IsVideoFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
