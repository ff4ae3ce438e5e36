package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/resoul/shortsgen/config"
	"github.com/resoul/shortsgen/models"
	"github.com/sirupsen/logrus"
)

// A task needs at least this many scene clips to be worth rendering.
const minSceneClips = 3

// sceneContextWords is how many script words around a scene's time offset
// feed into its search query.
const sceneContextWords = 7

// Storage is the slice of StorageService the processor needs.
type Storage interface {
	UploadVideo(ctx context.Context, localPath, channel, platform string) (string, error)
	UploadFetched(ctx context.Context, localPath, taskID, format string) (string, error)
}

// Processor renders the videos of a task: it resolves the narration audio,
// fetches background clips, drives the media tools, uploads results and
// fires the completion callback.
type Processor struct {
	runner   ToolRunner
	storage  Storage
	clips    ClipFetcher
	notifier *Notifier
	tasks    *TaskStore
	metrics  *Metrics
	maxClips int
	client   *http.Client
}

func NewProcessor(
	runner ToolRunner,
	storage Storage,
	clips ClipFetcher,
	notifier *Notifier,
	tasks *TaskStore,
	metrics *Metrics,
	cfg config.ClipsConfig,
) *Processor {
	return &Processor{
		runner:   runner,
		storage:  storage,
		clips:    clips,
		notifier: notifier,
		tasks:    tasks,
		metrics:  metrics,
		maxClips: cfg.MaxClips,
		client:   &http.Client{Timeout: downloadTimeout},
	}
}

func (p *Processor) Handle(ctx context.Context, task *models.Task) {
	startTime := time.Now()

	log := logrus.WithFields(logrus.Fields{
		"task_id": task.ID,
		"kind":    task.Kind,
		"channel": task.ChannelName,
	})
	log.Info("Processing task started")

	p.metrics.ActiveTasks.Inc()
	defer p.metrics.ActiveTasks.Dec()

	p.tasks.MarkProcessing(task.ID)

	var err error
	switch task.Kind {
	case models.TaskKindFetch:
		err = p.processFetch(ctx, task)
	default:
		err = p.processGenerate(ctx, task)
	}

	if err != nil {
		log.WithError(err).WithField("duration", time.Since(startTime)).Error("Task processing failed")
		p.Fail(task, err)
		return
	}

	p.metrics.TasksTotal.WithLabelValues("completed").Inc()
	p.metrics.TaskDuration.Observe(time.Since(startTime).Seconds())
	log.WithField("duration", time.Since(startTime)).Info("Task processing completed")
}

// Fail marks the task failed and delivers the failure callback. Also called
// by the worker pool when a job panics.
func (p *Processor) Fail(task *models.Task, err error) {
	errType, op := classify(err)
	p.metrics.TasksTotal.WithLabelValues("failed").Inc()
	p.metrics.TasksFailed.WithLabelValues(string(errType), op).Inc()

	p.tasks.MarkFailed(task.ID, err.Error())

	payload := models.WebhookPayload{
		Status:      "failed",
		TaskID:      task.ID,
		RowNumber:   task.RowNumber,
		SheetID:     task.SheetID,
		ChannelName: task.ChannelName,
		Error:       err.Error(),
	}
	if nerr := p.notifier.Notify(context.Background(), task.WebhookURL, payload); nerr != nil {
		logrus.WithError(nerr).WithField("task_id", task.ID).Warn("Failure callback could not be delivered")
	}
}

func (p *Processor) processGenerate(ctx context.Context, task *models.Task) error {
	videoURLs := make(map[string]string)

	for _, video := range task.Videos {
		if ctx.Err() != nil {
			break
		}

		url, err := p.renderVideo(ctx, task, video)
		if err != nil {
			// One platform failing does not abort the others.
			logrus.WithError(err).WithFields(logrus.Fields{
				"task_id":  task.ID,
				"platform": video.Platform,
			}).Error("Video rendering failed")
			continue
		}

		videoURLs[video.Platform] = url
		p.metrics.VideosRendered.WithLabelValues(video.Platform).Inc()
	}

	if ctx.Err() != nil {
		return newJobError(ErrTypeTimeout, task.ID, "render", ctx.Err())
	}
	if len(videoURLs) == 0 {
		return newJobError(ErrTypeTool, task.ID, "render", errors.New("no videos rendered"))
	}

	p.tasks.MarkCompleted(task.ID, videoURLs)
	p.notifyCompleted(task, videoURLs)
	return nil
}

func (p *Processor) notifyCompleted(task *models.Task, videoURLs map[string]string) {
	videos := make([]models.WebhookVideo, 0, len(models.Platforms))
	for _, platform := range models.Platforms {
		videos = append(videos, models.WebhookVideo{
			Platform: platform,
			VideoURL: videoURLs[platform],
		})
	}

	payload := models.WebhookPayload{
		Status:      "completed",
		TaskID:      task.ID,
		RowNumber:   task.RowNumber,
		SheetID:     task.SheetID,
		ChannelName: task.ChannelName,
		Videos:      videos,
	}
	if err := p.notifier.Notify(context.Background(), task.WebhookURL, payload); err != nil {
		logrus.WithError(err).WithField("task_id", task.ID).Warn("Completion callback could not be delivered")
	}
}

func (p *Processor) renderVideo(ctx context.Context, task *models.Task, video models.VideoSpec) (string, error) {
	log := logrus.WithFields(logrus.Fields{
		"task_id":  task.ID,
		"platform": video.Platform,
	})

	tmpDir, err := os.MkdirTemp("", "shortsgen-")
	if err != nil {
		return "", newJobError(ErrTypeSystem, task.ID, "workspace", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			logrus.WithError(err).Warn("Failed to cleanup temp directory")
		}
	}()

	audioPath := filepath.Join(tmpDir, "audio.mp3")
	if err := p.resolveAudio(ctx, video.AudioURL, audioPath); err != nil {
		return "", newJobError(ErrTypeProvider, task.ID, "audio", err)
	}

	audioDuration, err := p.runner.Probe(ctx, audioPath)
	if err != nil {
		return "", p.toolError(task, "probe", err)
	}
	log.WithField("audio_duration", audioDuration).Debug("Audio resolved")

	clips, err := p.fetchSceneClips(ctx, video, audioDuration)
	if err != nil {
		if ctx.Err() != nil {
			return "", newJobError(ErrTypeTimeout, task.ID, "clips", ctx.Err())
		}
		return "", newJobError(ErrTypeProvider, task.ID, "clips", err)
	}

	normalized, err := p.normalizeClips(ctx, task, tmpDir, clips)
	if err != nil {
		return "", err
	}

	finalPath := filepath.Join(tmpDir, "final.mp4")
	if err := p.assembleVideo(ctx, task, tmpDir, normalized, audioPath, audioDuration, finalPath); err != nil {
		return "", err
	}

	uploadStart := time.Now()
	videoURL, err := p.storage.UploadVideo(ctx, finalPath, task.ChannelName, video.Platform)
	if err != nil {
		return "", newJobError(ErrTypeStorage, task.ID, "upload", err)
	}
	p.metrics.UploadDuration.Observe(time.Since(uploadStart).Seconds())
	if stat, serr := os.Stat(finalPath); serr == nil {
		p.metrics.VideoSizeBytes.Observe(float64(stat.Size()))
	}

	log.WithField("url", videoURL).Info("Video rendered")
	return videoURL, nil
}

// resolveAudio writes the narration audio to destPath, accepting either a
// base64 data URL or a plain HTTP URL.
func (p *Processor) resolveAudio(ctx context.Context, audioURL, destPath string) error {
	if audioURL == "" {
		return errors.New("audio_url is empty")
	}

	if strings.HasPrefix(audioURL, "data:audio") {
		payload := audioURL
		if idx := strings.Index(audioURL, ","); idx >= 0 {
			payload = audioURL[idx+1:]
		}
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return fmt.Errorf("decode base64 audio: %w", err)
		}
		return os.WriteFile(destPath, decoded, 0o644)
	}

	fetchStart := time.Now()
	if err := downloadToFile(ctx, p.client, audioURL, destPath); err != nil {
		return fmt.Errorf("download audio: %w", err)
	}
	p.metrics.FetchDuration.Observe(time.Since(fetchStart).Seconds())
	return nil
}

// fetchSceneClips plans one scene per clip slot and fetches a stock clip for
// each, using the script words around the scene's time offset as context.
func (p *Processor) fetchSceneClips(ctx context.Context, video models.VideoSpec, audioDuration float64) ([]string, error) {
	scriptWords := strings.Fields(strings.ToLower(video.Script))

	wordsPerSecond := 2.5
	if audioDuration > 0 {
		wordsPerSecond = float64(len(scriptWords)) / audioDuration
	}

	clips := make([]string, 0, p.maxClips)
	for i := 0; i < p.maxClips; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		wordIndex := int(float64(i) * audioDuration / float64(p.maxClips) * wordsPerSecond)
		sceneContext := ""
		if wordIndex < len(scriptWords) {
			end := min(wordIndex+sceneContextWords, len(scriptWords))
			sceneContext = strings.Join(scriptWords[wordIndex:end], " ")
		}

		query := BuildQuery(video.VideoTitle, video.Keywords, video.Description, video.Script, sceneContext)

		fetchStart := time.Now()
		clipPath, err := p.clips.FetchClip(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logrus.WithError(err).WithField("scene", i+1).Warn("No clip for scene")
			continue
		}
		p.metrics.FetchDuration.Observe(time.Since(fetchStart).Seconds())

		clips = append(clips, clipPath)
	}

	if len(clips) < minSceneClips {
		return nil, fmt.Errorf("too few clips fetched: %d/%d", len(clips), p.maxClips)
	}
	return clips, nil
}

// normalizeClips converts each fetched clip to 1080x1920@30 without audio.
// Clips that fail to convert or come out suspiciously small are skipped.
func (p *Processor) normalizeClips(ctx context.Context, task *models.Task, tmpDir string, clips []string) ([]string, error) {
	normalized := make([]string, 0, len(clips))

	for i, clipPath := range clips {
		outPath := filepath.Join(tmpDir, fmt.Sprintf("norm_%02d.mp4", i))

		encodeStart := time.Now()
		err := p.runner.Transcode(ctx,
			"-i", clipPath,
			"-vf", "scale=1080:1920:force_original_aspect_ratio=increase,crop=1080:1920,fps=30",
			"-c:v", "libx264", "-preset", "fast", "-crf", "23",
			"-an",
			outPath,
		)
		os.Remove(clipPath)
		if err != nil {
			if ctx.Err() != nil {
				return nil, newJobError(ErrTypeTimeout, task.ID, "normalize", ctx.Err())
			}
			logrus.WithError(err).WithField("clip", i).Warn("Skipping clip that failed to normalize")
			continue
		}
		p.metrics.FFmpegDuration.Observe(time.Since(encodeStart).Seconds())

		if stat, serr := os.Stat(outPath); serr != nil || stat.Size() <= 1000 {
			logrus.WithField("clip", i).Warn("Skipping undersized normalized clip")
			continue
		}
		normalized = append(normalized, outPath)
	}

	if len(normalized) == 0 {
		return nil, newJobError(ErrTypeTool, task.ID, "normalize", errors.New("no clips survived normalization"))
	}
	return normalized, nil
}

// assembleVideo concatenates the normalized clips (looping them when they
// are shorter than the narration), trims to the audio duration and merges
// the audio track in.
func (p *Processor) assembleVideo(ctx context.Context, task *models.Task, tmpDir string, normalized []string, audioPath string, audioDuration float64, outPath string) error {
	totalDuration := 0.0
	for _, path := range normalized {
		duration, err := p.runner.Probe(ctx, path)
		if err != nil {
			return p.toolError(task, "probe", err)
		}
		totalDuration += duration
	}

	var list strings.Builder
	writeEntries := func() {
		for _, path := range normalized {
			fmt.Fprintf(&list, "file '%s'\n", path)
		}
	}
	if totalDuration > 0 && totalDuration < audioDuration && len(normalized) > 1 {
		loops := int(math.Ceil(audioDuration / totalDuration))
		for l := 0; l < loops; l++ {
			writeEntries()
		}
	} else {
		writeEntries()
	}

	listPath := filepath.Join(tmpDir, "concat.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return newJobError(ErrTypeSystem, task.ID, "concat", err)
	}

	concatPath := filepath.Join(tmpDir, "looped.mp4")
	encodeStart := time.Now()
	if err := p.runner.Transcode(ctx,
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-vf", "fps=30,format=yuv420p",
		"-c:v", "libx264", "-preset", "fast", "-crf", "23",
		"-t", strconv.FormatFloat(audioDuration, 'f', 3, 64),
		concatPath,
	); err != nil {
		return p.toolError(task, "concat", err)
	}
	p.metrics.FFmpegDuration.Observe(time.Since(encodeStart).Seconds())

	encodeStart = time.Now()
	if err := p.runner.Transcode(ctx,
		"-i", concatPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac", "-b:a", "192k",
		"-shortest",
		outPath,
	); err != nil {
		return p.toolError(task, "merge", err)
	}
	p.metrics.FFmpegDuration.Observe(time.Since(encodeStart).Seconds())

	return nil
}

// processFetch downloads the target URL with the downloader binary,
// converts it to the requested container when needed and uploads the result.
func (p *Processor) processFetch(ctx context.Context, task *models.Task) error {
	tmpDir, err := os.MkdirTemp("", "shortsgen-fetch-")
	if err != nil {
		return newJobError(ErrTypeSystem, task.ID, "workspace", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			logrus.WithError(err).Warn("Failed to cleanup temp directory")
		}
	}()

	format := strings.ToLower(strings.TrimPrefix(task.Fetch.Format, "."))
	if format == "" {
		format = "mp4"
	}

	downloadPath := filepath.Join(tmpDir, "source.mp4")
	fetchStart := time.Now()
	if err := p.runner.FetchMedia(ctx, task.Fetch.URL, downloadPath); err != nil {
		return p.toolError(task, "fetch", err)
	}
	p.metrics.FetchDuration.Observe(time.Since(fetchStart).Seconds())

	artifactPath := downloadPath
	if format != "mp4" {
		convertedPath := filepath.Join(tmpDir, "output."+format)
		encodeStart := time.Now()
		if err := p.runner.Transcode(ctx, "-i", downloadPath, convertedPath); err != nil {
			return p.toolError(task, "convert", err)
		}
		p.metrics.FFmpegDuration.Observe(time.Since(encodeStart).Seconds())
		artifactPath = convertedPath
	}

	uploadStart := time.Now()
	artifactURL, err := p.storage.UploadFetched(ctx, artifactPath, task.ID, format)
	if err != nil {
		return newJobError(ErrTypeStorage, task.ID, "upload", err)
	}
	p.metrics.UploadDuration.Observe(time.Since(uploadStart).Seconds())
	if stat, serr := os.Stat(artifactPath); serr == nil {
		p.metrics.VideoSizeBytes.Observe(float64(stat.Size()))
	}

	p.tasks.MarkCompleted(task.ID, map[string]string{"download": artifactURL})

	payload := models.WebhookPayload{
		Status: "completed",
		TaskID: task.ID,
		Videos: []models.WebhookVideo{{Platform: "download", VideoURL: artifactURL}},
	}
	if nerr := p.notifier.Notify(context.Background(), task.WebhookURL, payload); nerr != nil {
		logrus.WithError(nerr).WithField("task_id", task.ID).Warn("Completion callback could not be delivered")
	}
	return nil
}

func (p *Processor) toolError(task *models.Task, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newJobError(ErrTypeTimeout, task.ID, op, err)
	}
	return newJobError(ErrTypeTool, task.ID, op, err)
}
