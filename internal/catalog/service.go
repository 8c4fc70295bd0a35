package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CatalogService is the API surface for registering videos and queueing
// their analysis.
type CatalogService interface {
	RegisterVideo(ctx context.Context, path, exercise string) (*Video, error)
	ScanFolder(ctx context.Context, dir, exercise string) ([]*Video, error)
	RemoveVideo(ctx context.Context, id string) error
	GetVideos(ctx context.Context) ([]*Video, error)
	GetVideo(ctx context.Context, id string) (*Video, error)
	CountVideos(ctx context.Context) (int, error)
	EnqueueAnalysis(ctx context.Context, videoID string) (*Job, error)
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// RegisterVideo adds one recording to the catalog. Registering a path that
// already exists returns the existing entry instead of a duplicate.
func (s *Service) RegisterVideo(ctx context.Context, path, exercise string) (*Video, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("video does not exist: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a video")
	}
	if !IsVideoFile(absPath) {
		return nil, fmt.Errorf("unsupported video format %q", filepath.Ext(absPath))
	}

	existing, err := s.repo.GetVideoByPath(ctx, absPath)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	video := &Video{
		ID:        NewID(),
		Path:      absPath,
		Exercise:  exercise,
		SizeBytes: info.Size(),
		Status:    VideoStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateVideo(ctx, video); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("video registered", "video_id", video.ID, "exercise", exercise)
	}
	return video, nil
}

// ScanFolder registers every supported video file under dir with the given
// exercise and queues analysis for the new ones. Hidden directories are
// skipped.
func (s *Service) ScanFolder(ctx context.Context, dir, exercise string) ([]*Video, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("folder does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory")
	}

	var paths []string
	err = filepath.WalkDir(absDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if !d.IsDir() && IsVideoFile(d.Name()) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var registered []*Video
	for _, p := range paths {
		select {
		case <-ctx.Done():
			return registered, ctx.Err()
		default:
		}

		existing, err := s.repo.GetVideoByPath(ctx, p)
		if err != nil {
			return registered, err
		}
		if existing != nil {
			continue
		}

		v, err := s.RegisterVideo(ctx, p, exercise)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("failed to register video", "path", filepath.Base(p), "error", err)
			}
			continue
		}
		if _, err := s.EnqueueAnalysis(ctx, v.ID); err != nil {
			if s.logger != nil {
				s.logger.Warn("failed to enqueue analysis", "video_id", v.ID, "error", err)
			}
		}
		registered = append(registered, v)
	}

	if s.logger != nil {
		s.logger.Info("folder scan complete", "found", len(paths), "registered", len(registered))
	}
	return registered, nil
}

func (s *Service) RemoveVideo(ctx context.Context, id string) error {
	return s.repo.DeleteVideo(ctx, id)
}

func (s *Service) GetVideos(ctx context.Context) ([]*Video, error) {
	return s.repo.ListVideos(ctx)
}

func (s *Service) GetVideo(ctx context.Context, id string) (*Video, error) {
	return s.repo.GetVideo(ctx, id)
}

func (s *Service) CountVideos(ctx context.Context) (int, error) {
	return s.repo.CountVideos(ctx)
}

// EnqueueAnalysis creates a pending analyze job for the video. An already
// pending or running job for the same video is returned instead of
// queueing a duplicate.
func (s *Service) EnqueueAnalysis(ctx context.Context, videoID string) (*Job, error) {
	video, err := s.repo.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, fmt.Errorf("video not found")
	}

	pending, err := s.repo.ListPendingJobs(ctx)
	if err != nil {
		return nil, err
	}
	for _, j := range pending {
		if j.Type == JobTypeAnalyze && j.VideoID == videoID {
			return j, nil
		}
	}

	now := time.Now()
	job := &Job{
		ID:        NewID(),
		Type:      JobTypeAnalyze,
		VideoID:   videoID,
		Status:    JobStatusPending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("analyze job created", "job_id", job.ID, "video_id", videoID)
	}
	return job, nil
}
