package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driving"
)

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// ReadyResponse reports each backing service.
// @Description Readiness status with per-dependency results
type ReadyResponse struct {
	Status string            `json:"status" example:"ready"`
	Checks map[string]string `json:"checks,omitempty"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// CompleteBody is the code/state pair the frontend forwards after the callback.
// @Description OAuth completion parameters
type CompleteBody struct {
	Code  string `json:"code" example:"AQT..."`
	State string `json:"state" example:"Zk3c..."`
}

// EnqueuePublishBody is a multi-platform publish job.
// @Description Multi-platform publish job
type EnqueuePublishBody struct {
	Platforms []string `json:"platforms" example:"twitter,linkedin"`
	domain.PublishRequest
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}

// EnqueuePublishResponse carries the id to poll.
// @Description Accepted publish job
type EnqueuePublishResponse struct {
	TaskID string `json:"task_id" example:"6f1c..."`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings the configured database, cache and queue
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := ReadyResponse{Status: "ready", Checks: map[string]string{}}
	status := http.StatusOK
	for name, p := range s.probes {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// OAuth endpoints

// handleOAuthAuthorize godoc
// @Summary      Start OAuth flow
// @Description  Issues a single-use state and returns the vendor consent URL
// @Tags         OAuth
// @Produce      json
// @Security     BearerAuth
// @Param        platform      path   string  true   "Platform"  Enums(twitter, linkedin, facebook, instagram, tiktok, youtube)
// @Param        redirect_uri  query  string  false  "Callback URL override"
// @Success      200  {object}  driving.AuthorizeResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse  "Unsupported platform"
// @Failure      503  {object}  ErrorResponse  "Platform not configured"
// @Router       /oauth/{platform}/authorize [get]
func (s *Server) handleOAuthAuthorize(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}
	resp, err := s.oauth.Authorize(r.Context(), driving.AuthorizeRequest{
		UserID:      userID(r),
		Platform:    platform,
		RedirectURI: r.URL.Query().Get("redirect_uri"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleOAuthCallback godoc
// @Summary      Vendor callback
// @Description  Forwards the vendor's code and state (or error) to the frontend, which then calls /complete
// @Tags         OAuth
// @Param        platform  path   string  true   "Platform"
// @Param        code      query  string  false  "Authorization code"
// @Param        state     query  string  false  "State token"
// @Param        error     query  string  false  "Vendor error"
// @Success      302
// @Router       /oauth/{platform}/callback [get]
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	out := url.Values{}
	if vendorErr := q.Get("error"); vendorErr != "" {
		out.Set("error", vendorErr)
		if desc := q.Get("error_description"); desc != "" {
			out.Set("error_description", desc)
		}
	} else {
		out.Set("code", q.Get("code"))
		out.Set("state", q.Get("state"))
	}
	target := strings.TrimRight(s.frontendURL, "/") + "/oauth/" + string(platform) + "/callback?" + out.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

// handleOAuthComplete godoc
// @Summary      Complete OAuth flow
// @Description  Verifies the state, exchanges the code and stores the connection
// @Tags         OAuth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        platform  path  string        true  "Platform"
// @Param        request   body  CompleteBody  true  "Code and state"
// @Success      200  {object}  domain.ConnectionSummary
// @Failure      400  {object}  ErrorResponse  "Invalid state or missing code"
// @Failure      502  {object}  ErrorResponse  "Vendor rejected the exchange"
// @Router       /oauth/{platform}/complete [post]
func (s *Server) handleOAuthComplete(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}
	var body CompleteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	summary, err := s.oauth.Complete(r.Context(), driving.CompleteRequest{
		UserID:   userID(r),
		Platform: platform,
		Code:     body.Code,
		State:    body.State,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleOAuthStatus godoc
// @Summary      Connection status
// @Tags         OAuth
// @Produce      json
// @Security     BearerAuth
// @Param        platform  path  string  true  "Platform"
// @Success      200  {object}  domain.ConnectionSummary
// @Router       /oauth/{platform}/status [get]
func (s *Server) handleOAuthStatus(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}
	summary, err := s.oauth.Status(r.Context(), userID(r), platform)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handlePost godoc
// @Summary      Publish a post
// @Description  Publishes text, a link or an image to one platform
// @Tags         Publish
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        platform  path  string                 true  "Platform"
// @Param        request   body  domain.PublishRequest  true  "Post content"
// @Success      200  {object}  domain.PublishResult
// @Failure      400  {object}  ErrorResponse  "Invalid content"
// @Failure      404  {object}  ErrorResponse  "Not connected"
// @Failure      409  {object}  ErrorResponse  "Reconnect required"
// @Failure      429  {object}  ErrorResponse  "Rate limited"
// @Router       /oauth/{platform}/post [post]
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	s.publishOne(w, r, domain.MediaNone)
}

// handleUpload godoc
// @Summary      Publish a video
// @Description  Publishes media to a video platform. Media mode defaults to VIDEO.
// @Tags         Publish
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        platform  path  string                 true  "Platform"
// @Param        request   body  domain.PublishRequest  true  "Upload metadata"
// @Success      200  {object}  domain.PublishResult
// @Router       /oauth/{platform}/upload [post]
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.publishOne(w, r, domain.MediaVideo)
}

func (s *Server) publishOne(w http.ResponseWriter, r *http.Request, defaultMode domain.MediaMode) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}
	var req domain.PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MediaMode == "" {
		req.MediaMode = defaultMode
	} else {
		req.MediaMode = domain.ParseMediaMode(string(req.MediaMode))
	}

	res, err := s.oauth.Publish(r.Context(), userID(r), platform, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleOAuthRefresh godoc
// @Summary      Refresh token
// @Description  Forces a refresh grant for the platform
// @Tags         OAuth
// @Produce      json
// @Security     BearerAuth
// @Param        platform  path  string  true  "Platform"
// @Success      200  {object}  domain.ConnectionSummary
// @Failure      409  {object}  ErrorResponse  "Reconnect required"
// @Router       /oauth/{platform}/refresh [post]
func (s *Server) handleOAuthRefresh(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}
	summary, err := s.oauth.Refresh(r.Context(), userID(r), platform)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleOAuthDisconnect godoc
// @Summary      Disconnect
// @Tags         OAuth
// @Produce      json
// @Security     BearerAuth
// @Param        platform  path  string  true  "Platform"
// @Success      200  {object}  StatusResponse
// @Router       /oauth/{platform}/disconnect [delete]
func (s *Server) handleOAuthDisconnect(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}
	if err := s.oauth.Disconnect(r.Context(), userID(r), platform); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "disconnected"})
}

// Connection health

// handleConnectionHealth godoc
// @Summary      Connection health
// @Description  Checks every platform with a live profile call
// @Tags         Health
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.HealthSummary
// @Router       /oauth/health [get]
func (s *Server) handleConnectionHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health.CheckAll(r.Context(), userID(r)))
}

// handleRefreshExpired godoc
// @Summary      Refresh expired tokens
// @Description  Refreshes every expired platform that has a refresh token
// @Tags         Health
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.RefreshReport
// @Router       /oauth/health/refresh [post]
func (s *Server) handleRefreshExpired(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health.RefreshExpired(r.Context(), userID(r)))
}

// Background publishing

// handleEnqueuePublish godoc
// @Summary      Queue a multi-platform post
// @Tags         Publish
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body  EnqueuePublishBody  true  "Publish job"
// @Success      202  {object}  EnqueuePublishResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      503  {object}  ErrorResponse  "No task queue"
// @Router       /api/v1/publish [post]
func (s *Server) handleEnqueuePublish(w http.ResponseWriter, r *http.Request) {
	var body EnqueuePublishBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	platforms := make([]domain.Platform, 0, len(body.Platforms))
	for _, name := range body.Platforms {
		p, err := domain.ParsePlatform(name)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		platforms = append(platforms, p)
	}
	body.PublishRequest.MediaMode = domain.ParseMediaMode(string(body.PublishRequest.MediaMode))

	task, err := s.publish.Enqueue(r.Context(), driving.EnqueuePublishRequest{
		UserID:       userID(r),
		Platforms:    platforms,
		Request:      body.PublishRequest,
		ScheduledFor: body.ScheduledFor,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, EnqueuePublishResponse{TaskID: task.ID})
}

// handleGetPublishJob godoc
// @Summary      Publish job status
// @Tags         Publish
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Task ID"
// @Success      200  {object}  domain.Task
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/publish/{id} [get]
func (s *Server) handleGetPublishJob(w http.ResponseWriter, r *http.Request) {
	task, err := s.publish.GetJob(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// pathPlatform parses the {platform} segment, writing a 404 when unknown.
func pathPlatform(w http.ResponseWriter, r *http.Request) (domain.Platform, bool) {
	p, err := domain.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		writeServiceError(w, err)
		return "", false
	}
	return p, true
}

func userID(r *http.Request) string {
	if a := GetAuthContext(r.Context()); a != nil {
		return a.UserID
	}
	return ""
}
