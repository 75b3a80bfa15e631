package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/ff-menu/ff-menu/internal/catalog"
	jobmetrics "github.com/ff-menu/ff-menu/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBlobDelete removes an uploaded image from the bucket.
	TaskBlobDelete = "blob:delete"
	// TaskMenuWarmup rebuilds the cached public menu.
	TaskMenuWarmup = "menu:warmup"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// BlobDeletePayload names the image to delete.
type BlobDeletePayload struct {
	URL string `json:"url"`
}

// NewBlobDeleteTask constructs an Asynq task.
func NewBlobDeleteTask(imageURL string) (*asynq.Task, error) {
	data, err := json.Marshal(BlobDeletePayload{URL: imageURL})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBlobDelete, data), nil
}

// NewMenuWarmupTask constructs the periodic warmup task.
func NewMenuWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskMenuWarmup, nil)
}

// ImageRemover deletes an image by public URL.
type ImageRemover interface {
	RemoveImage(ctx context.Context, imageURL string) error
}

// BlobDeleteJob processes TaskBlobDelete tasks.
type BlobDeleteJob struct {
	Images  ImageRemover
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle deletes the image referenced by the task payload.
func (j *BlobDeleteJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Images == nil {
		return errors.New("blob delete: handler not configured")
	}
	var payload BlobDeletePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || strings.TrimSpace(payload.URL) == "" {
		return asynq.SkipRetry
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskBlobDelete)
	defer func() { err = tracker.End(err) }()

	if err := j.Images.RemoveImage(ctx, payload.URL); err != nil {
		loggerOrDefault(j.Logger).Warn("blob delete failed", slog.String("url", payload.URL), slog.Any("error", err))
		return err
	}
	return nil
}

// MenuWarmer rebuilds the public menu.
type MenuWarmer interface {
	Menu(ctx context.Context) ([]catalog.MenuSection, error)
}

// MenuWarmupJob keeps the menu cache populated.
type MenuWarmupJob struct {
	Menu    MenuWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle loads the menu through the cache.
func (j *MenuWarmupJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Menu == nil {
		return errors.New("menu warmup: handler not configured")
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskMenuWarmup)
	defer func() { err = tracker.End(err) }()

	menu, err := j.Menu.Menu(ctx)
	if err != nil {
		loggerOrDefault(j.Logger).Error("menu warmup failed", slog.Any("error", err))
		return err
	}
	loggerOrDefault(j.Logger).Debug("menu warmed", slog.Int("categories", len(menu)))
	return nil
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m == nil {
		return defaultJobMetrics
	}
	return m
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
