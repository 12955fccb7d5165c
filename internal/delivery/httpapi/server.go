package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"yt_archiver/config"
	"yt_archiver/internal/delivery/cron"
	"yt_archiver/internal/domain"
	"yt_archiver/internal/usecase"
)

const (
	defaultVideoLimit = 50
	maxVideoLimit     = 500
)

// SchedulerControl is the part of the scheduler exposed over HTTP
type SchedulerControl interface {
	Start() error
	Stop()
	Status() cron.Status
	TriggerChannel(ctx context.Context, channelID int64) (int, error)
}

// Server exposes a REST API for channel management, downloads and the scheduler.
type Server struct {
	cfg       *config.Config
	channels  *usecase.ChannelManager
	downloads *usecase.DownloadManager
	scheduler SchedulerControl
	handler   http.Handler
	server    *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(cfg *config.Config, channels *usecase.ChannelManager, downloads *usecase.DownloadManager, scheduler SchedulerControl) *Server {
	s := &Server{
		cfg:       cfg,
		channels:  channels,
		downloads: downloads,
		scheduler: scheduler,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("GET /api/channels", s.listChannels)
	mux.HandleFunc("POST /api/channels", s.createChannel)
	mux.HandleFunc("GET /api/channels/{id}", s.getChannel)
	mux.HandleFunc("PUT /api/channels/{id}", s.updateChannel)
	mux.HandleFunc("DELETE /api/channels/{id}", s.deleteChannel)
	mux.HandleFunc("POST /api/channels/{id}/enumerate", s.startEnumeration)
	mux.HandleFunc("GET /api/channels/{id}/playlists", s.listPlaylists)
	mux.HandleFunc("GET /api/channels/{id}/videos", s.listChannelVideos)
	mux.HandleFunc("POST /api/channels/{id}/download", s.downloadChannel)

	mux.HandleFunc("GET /api/jobs/{id}", s.getJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.cancelJob)

	mux.HandleFunc("PUT /api/playlists/{id}", s.updatePlaylist)
	mux.HandleFunc("GET /api/playlists/{id}/videos", s.listPlaylistVideos)
	mux.HandleFunc("POST /api/playlists/{id}/download", s.downloadPlaylist)

	mux.HandleFunc("GET /api/videos", s.listVideos)
	mux.HandleFunc("GET /api/videos/{id}", s.getVideo)
	mux.HandleFunc("POST /api/videos/retry-failed", s.retryFailed)
	mux.HandleFunc("POST /api/videos/{id}/redownload", s.redownload)

	mux.HandleFunc("POST /api/download/video", s.downloadVideo)
	mux.HandleFunc("GET /api/download/status", s.downloadStatus)

	mux.HandleFunc("POST /api/scheduler/start", s.startScheduler)
	mux.HandleFunc("POST /api/scheduler/stop", s.stopScheduler)
	mux.HandleFunc("GET /api/scheduler/status", s.schedulerStatus)
	mux.HandleFunc("POST /api/scheduler/trigger/{channelId}", s.triggerChannel)

	mux.HandleFunc("GET /api/profiles", s.listProfiles)
	mux.HandleFunc("POST /api/profiles", s.createProfile)
	mux.HandleFunc("GET /api/profiles/{id}", s.getProfile)
	mux.HandleFunc("PUT /api/profiles/{id}", s.updateProfile)
	mux.HandleFunc("DELETE /api/profiles/{id}", s.deleteProfile)

	var handler http.Handler = mux
	if cfg.BasicAuthEnabled() {
		handler = basicAuth(cfg.BasicAuthUsername, cfg.BasicAuthPassword, handler)
	} else {
		log.Warn("basic authentication is disabled, the API is open to anyone who can reach it")
	}
	s.handler = loggingMiddleware(handler)
	s.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves HTTP requests until Shutdown is called.
func (s *Server) ListenAndServe() error {
	if s.cfg.ServerPort == "" {
		return errors.New("server port is not configured")
	}
	log.Infof("HTTP API server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http api server stopped")
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.channels.ListChannels()
	if err != nil {
		respondErr(w, err)
		return
	}

	resp := make([]*channelResponse, 0, len(channels))
	for _, channel := range channels {
		resp = append(resp, toChannelResponse(channel))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) createChannel(w http.ResponseWriter, r *http.Request) {
	payload := channelPayload{
		Enabled:              true,
		RescrapeIntervalDays: domain.DefaultRescrapeIntervalDays,
		DownloadMetadata:     true,
		EmbedMetadata:        true,
		DownloadThumbnail:    true,
		EmbedThumbnail:       true,
		SponsorBlockMode:     string(domain.SponsorBlockMark),
	}
	if !decode(w, r, &payload) {
		return
	}

	channel := &domain.Channel{}
	payload.apply(channel)
	created, err := s.channels.CreateChannel(channel)
	if err != nil {
		respondErr(w, err)
		return
	}

	resp := createChannelResponse{channelResponse: *toChannelResponse(created)}
	job, err := s.channels.StartEnumeration(created.ID)
	if err != nil {
		log.WithError(err).WithField("channel_id", created.ID).Warn("failed to start playlist enumeration for new channel")
	} else {
		resp.EnumerationJobID = job.ID
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) getChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	channel, err := s.channels.GetChannel(id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toChannelResponse(channel))
}

// updateChannel overlays the request body on the stored channel, so omitted fields keep their values.
func (s *Server) updateChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	channel, err := s.channels.GetChannel(id)
	if err != nil {
		respondErr(w, err)
		return
	}

	payload := toChannelPayload(channel)
	if !decode(w, r, &payload) {
		return
	}
	payload.apply(channel)

	updated, err := s.channels.UpdateChannel(channel)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toChannelResponse(updated))
}

func (s *Server) deleteChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.channels.DeleteChannel(id); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) startEnumeration(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	job, err := s.channels.StartEnumeration(id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.channels.Job(r.PathValue("id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.channels.CancelJob(r.PathValue("id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) listPlaylists(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	playlists, err := s.channels.ListPlaylists(id)
	if err != nil {
		respondErr(w, err)
		return
	}

	resp := make([]*playlistResponse, 0, len(playlists))
	for _, playlist := range playlists {
		resp = append(resp, toPlaylistResponse(playlist))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) updatePlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var payload struct {
		Enabled *bool `json:"enabled"`
	}
	if !decode(w, r, &payload) {
		return
	}
	if payload.Enabled == nil {
		respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	playlist, err := s.channels.SetPlaylistEnabled(id, *payload.Enabled)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toPlaylistResponse(playlist))
}

func (s *Server) listChannelVideos(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	videos, err := s.channels.ListChannelVideos(id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondVideos(w, videos)
}

func (s *Server) listPlaylistVideos(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	videos, err := s.channels.ListPlaylistVideos(id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondVideos(w, videos)
}

// listVideos returns recent videos of one status; without a status it returns the per-status counts.
func (s *Server) listVideos(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	status := query.Get("status")
	if status == "" {
		counts, err := s.channels.CountVideos()
		if err != nil {
			respondErr(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"counts": counts})
		return
	}

	limit := queryInt(query.Get("limit"), defaultVideoLimit)
	if limit > maxVideoLimit {
		limit = maxVideoLimit
	}
	offset := queryInt(query.Get("offset"), 0)

	videos, err := s.channels.ListVideosByStatus(domain.VideoStatus(status), limit, offset)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondVideos(w, videos)
}

func (s *Server) getVideo(w http.ResponseWriter, r *http.Request) {
	video, err := s.channels.GetVideo(r.PathValue("id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toVideoResponse(video))
}

func (s *Server) downloadPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	queued, err := s.downloads.EnqueuePlaylist(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}

// downloadChannel reports partial playlist failures next to the queued count.
func (s *Server) downloadChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	queued, err := s.downloads.EnqueueChannel(r.Context(), id)
	if err != nil && queued == 0 {
		respondErr(w, err)
		return
	}

	resp := map[string]any{"queued": queued}
	if err != nil {
		resp["error"] = err.Error()
	}
	respondJSON(w, http.StatusAccepted, resp)
}

func (s *Server) downloadVideo(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		URL       string `json:"url"`
		ChannelID *int64 `json:"channel_id"`
	}
	if !decode(w, r, &payload) {
		return
	}
	payload.URL = strings.TrimSpace(payload.URL)
	if payload.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	video, err := s.downloads.EnqueueSingleVideo(r.Context(), payload.URL, payload.ChannelID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, toVideoResponse(video))
}

func (s *Server) downloadStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.channels.CountVideos()
	if err != nil {
		respondErr(w, err)
		return
	}

	resp := map[string]any{
		"queue":  s.downloads.Status(),
		"counts": counts,
	}
	if err := s.downloads.Err(); err != nil {
		resp["persistence_error"] = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) retryFailed(w http.ResponseWriter, r *http.Request) {
	queued, err := s.downloads.RetryFailed()
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}

func (s *Server) redownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.downloads.Redownload(id); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "video_id": id})
}

func (s *Server) startScheduler(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.Start(); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) stopScheduler(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Stop()
	respondJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) schedulerStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) triggerChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "channelId")
	if !ok {
		return
	}
	queued, err := s.scheduler.TriggerChannel(r.Context(), id)
	if err != nil && queued == 0 {
		respondErr(w, err)
		return
	}

	resp := map[string]any{"channel_id": id, "queued": queued}
	if err != nil {
		resp["error"] = err.Error()
	}
	respondJSON(w, http.StatusAccepted, resp)
}

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.channels.ListProfiles()
	if err != nil {
		respondErr(w, err)
		return
	}

	resp := make([]*profileResponse, 0, len(profiles))
	for _, profile := range profiles {
		resp = append(resp, toProfileResponse(profile))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	var payload profilePayload
	if !decode(w, r, &payload) {
		return
	}

	profile := &domain.Profile{}
	payload.apply(profile)
	created, err := s.channels.CreateProfile(profile)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toProfileResponse(created))
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	profile, err := s.channels.GetProfile(id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toProfileResponse(profile))
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	profile, err := s.channels.GetProfile(id)
	if err != nil {
		respondErr(w, err)
		return
	}

	payload := toProfilePayload(profile)
	if !decode(w, r, &payload) {
		return
	}
	payload.apply(profile)

	updated, err := s.channels.UpdateProfile(profile)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toProfileResponse(updated))
}

func (s *Server) deleteProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.channels.DeleteProfile(id); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func respondVideos(w http.ResponseWriter, videos []*domain.Video) {
	resp := make([]*videoResponse, 0, len(videos))
	for _, video := range videos {
		resp = append(resp, toVideoResponse(video))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"videos": resp,
		"count":  len(resp),
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps domain errors to status codes.
func respondErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrNotEnabled),
		errors.Is(err, domain.ErrNoEnabledPlaylists):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	default:
		var adapterErr *domain.AdapterError
		if errors.As(err, &adapterErr) {
			status = http.StatusBadGateway
		}
	}
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
	}
	respondError(w, status, err.Error())
}

func basicAuth(username, password string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="yt archiver"`)
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Debug("http request")
	})
}
