package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/resoul/shortsgen/models"
	"github.com/sirupsen/logrus"
)

type fetchRequest struct {
	URL                string `json:"url"`
	Format             string `json:"format"`
	WebhookCallbackURL string `json:"webhook_callback_url"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// generate accepts a four-video generation job in either of the two payload
// formats the sheet automation produces: an object keyed by platform, or an
// array under "videos".
func (s *Server) generate(c echo.Context) error {
	var raw map[string]json.RawMessage
	if err := c.Bind(&raw); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid JSON body")
	}

	var req models.GenerateRequest
	var err error
	switch {
	case raw["youtube_shorts"] != nil:
		req, err = parseKeyedRequest(raw)
	case raw["videos"] != nil:
		err = bindArrayRequest(raw, &req)
	default:
		return errorResponse(c, http.StatusBadRequest, "unsupported payload format")
	}
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, err.Error())
	}

	if len(req.Videos) != len(models.Platforms) {
		return errorResponse(c, http.StatusBadRequest,
			fmt.Sprintf("expected %d videos, got %d", len(models.Platforms), len(req.Videos)))
	}

	task := models.NewGenerateTask(req)
	return s.accept(c, task)
}

// fetch accepts a media fetch job: download a target URL with the
// downloader binary and deliver it in the requested format.
func (s *Server) fetch(c echo.Context) error {
	var req fetchRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid JSON body")
	}
	if req.URL == "" {
		return errorResponse(c, http.StatusBadRequest, "url is required")
	}

	task := models.NewFetchTask(models.FetchSpec{URL: req.URL, Format: req.Format}, req.WebhookCallbackURL)
	return s.accept(c, task)
}

func (s *Server) taskStatus(c echo.Context) error {
	task, ok := s.tasks.Get(c.Param("id"))
	if !ok {
		return errorResponse(c, http.StatusNotFound, "task not found")
	}
	return c.JSON(http.StatusOK, task)
}

func (s *Server) accept(c echo.Context, task *models.Task) error {
	s.tasks.Add(task)

	if err := s.pool.Submit(task); err != nil {
		s.tasks.MarkFailed(task.ID, err.Error())
		return errorResponse(c, http.StatusServiceUnavailable, "all workers busy, try again later")
	}

	logrus.WithFields(logrus.Fields{
		"task_id": task.ID,
		"kind":    task.Kind,
		"channel": task.ChannelName,
	}).Info("Task accepted")

	return c.JSON(http.StatusAccepted, echo.Map{
		"task_id":        task.ID,
		"status":         "processing",
		"estimated_time": "3-5 minutes",
		"success":        true,
	})
}

// parseKeyedRequest handles the object format, where each platform video
// sits under its own top-level key and the channel metadata rides on the
// first video.
func parseKeyedRequest(raw map[string]json.RawMessage) (models.GenerateRequest, error) {
	var req models.GenerateRequest

	for _, platform := range models.Platforms {
		data, ok := raw[platform]
		if !ok {
			continue
		}

		var video models.VideoSpec
		if err := json.Unmarshal(data, &video); err != nil {
			return req, fmt.Errorf("invalid %s entry: %v", platform, err)
		}
		video.Platform = platform
		req.Videos = append(req.Videos, video)
	}

	if len(req.Videos) > 0 {
		req.ChannelName = req.Videos[0].ChannelName
		req.RowNumber = req.Videos[0].RowNumber
	}
	return req, nil
}

func bindArrayRequest(raw map[string]json.RawMessage, req *models.GenerateRequest) error {
	body, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, req); err != nil {
		return fmt.Errorf("invalid videos payload: %v", err)
	}
	for i := range req.Videos {
		if req.Videos[i].Platform == "" && i < len(models.Platforms) {
			req.Videos[i].Platform = models.Platforms[i]
		}
	}
	return nil
}

func errorResponse(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"error": msg, "success": false})
}
