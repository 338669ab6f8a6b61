package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/domain"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/service/auth"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/store"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/ws"
)

// Router wires HTTP endpoints to the auth service and the per-session
// state stores.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	auth      auth.Service
	sessions  *store.Manager
	hub       *ws.Hub
	upgrader  websocket.Upgrader
	limiter   RateLimiter
	dbHealth  func(context.Context) error
	busHealth func(context.Context) error

	pumpMu     sync.Mutex
	pumps      map[*store.Store]struct{}
	pumpCtx    context.Context
	pumpCancel context.CancelFunc

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	rateLimitUserWrite = 60
	rateLimitUserRead  = 240
	rateLimitRealtime  = 30
	healthCheckTimeout = 2 * time.Second
	sseHeartbeat       = 25 * time.Second
	sseIdleLimit       = 15 * time.Minute
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, sessions *store.Manager, hub *ws.Hub, limiter RateLimiter, dbHealth, busHealth func(context.Context) error) *Router {
	pumpCtx, pumpCancel := context.WithCancel(context.Background())
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		auth:     authSvc,
		sessions: sessions,
		hub:      hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:    limiter,
		dbHealth:   dbHealth,
		busHealth:  busHealth,
		pumps:      make(map[*store.Store]struct{}),
		pumpCtx:    pumpCtx,
		pumpCancel: pumpCancel,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	r.pumpCancel()
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/auth/signup", r.audit(r.withRateLimit("/auth/signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP, r.handleSignup)))
	r.mux.HandleFunc("/auth/login", r.audit(r.withRateLimit("/auth/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/session/team", r.audit(r.handlerAuthRate("/session/team", rateLimitUserWrite, rateWindowDefault, r.handleSelectTeam)))
	r.mux.HandleFunc("/state/", r.audit(r.handlerAuthRate("/state/", rateLimitUserRead, rateWindowDefault, r.handleState)))
	r.mux.HandleFunc("/projects", r.audit(r.handlerAuthRate("/projects", rateLimitUserWrite, rateWindowDefault, r.handleProjects)))
	r.mux.HandleFunc("/projects/", r.audit(r.handlerAuthRate("/projects/", rateLimitUserWrite, rateWindowDefault, r.handleProjectSubroutes)))
	r.mux.HandleFunc("/tasks", r.audit(r.handlerAuthRate("/tasks", rateLimitUserWrite, rateWindowDefault, r.handleTasks)))
	r.mux.HandleFunc("/tasks/", r.audit(r.handlerAuthRate("/tasks/", rateLimitUserWrite, rateWindowDefault, r.handleTaskSubroutes)))
	r.mux.HandleFunc("/chat", r.audit(r.handlerAuthRate("/chat", rateLimitUserWrite, rateWindowDefault, r.handleChat)))
	r.mux.HandleFunc("/ws/state", r.audit(r.handlerAuthRate("/ws/state", rateLimitRealtime, rateWindowRealtime, r.handleStateWS)))
	r.mux.HandleFunc("/events", r.audit(r.handlerAuthRate("/events", rateLimitRealtime, rateWindowRealtime, r.handleEvents)))
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
		Phone       string `json:"phone"`
		Role        string `json:"role"`
		TeamName    string `json:"team_name"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.Signup(req.Context(), auth.SignupInput{
		Email:       payload.Email,
		Password:    payload.Password,
		DisplayName: payload.DisplayName,
		Phone:       payload.Phone,
		Role:        domain.AccountRole(payload.Role),
		TeamName:    payload.TeamName,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user": map[string]any{
			"id":           user.ID,
			"email":        user.Email,
			"display_name": user.DisplayName,
			"role":         user.Role,
		},
		"tokens": tokens,
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":           user.ID,
			"email":        user.Email,
			"display_name": user.DisplayName,
			"role":         user.Role,
		},
		"tokens": tokens,
	})
}

// handleSelectTeam bootstraps or switches the session's team context.
// An empty team_id resolves the account's own active team.
func (r *Router) handleSelectTeam(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		TeamID string `json:"team_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	st, ok := r.session(w, req)
	if !ok {
		return
	}
	var err error
	if strings.TrimSpace(payload.TeamID) == "" {
		err = st.Activate(req.Context())
	} else {
		err = st.SelectTeam(req.Context(), payload.TeamID)
	}
	if err != nil {
		r.writeStoreError(w, err)
		return
	}
	response := map[string]any{"team_id": st.TeamID()}
	if member, ok := st.Member(); ok {
		response["member"] = member
	}
	writeJSON(w, http.StatusOK, response)
}

func (r *Router) handleState(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	st, ok := r.session(w, req)
	if !ok {
		return
	}
	collection := strings.TrimPrefix(req.URL.Path, "/state/")
	switch collection {
	case "members":
		writeJSON(w, http.StatusOK, st.Members())
	case "projects":
		writeJSON(w, http.StatusOK, st.Projects())
	case "tasks":
		writeJSON(w, http.StatusOK, st.Tasks())
	case "chat":
		writeJSON(w, http.StatusOK, st.ChatMessages())
	case "notices":
		writeJSON(w, http.StatusOK, st.Notices())
	default:
		r.notFound(w)
	}
}

func (r *Router) handleProjects(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload domain.Project
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	st, ok := r.session(w, req)
	if !ok {
		return
	}
	if err := st.AddProject(req.Context(), payload); err != nil {
		r.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st.Projects())
}

func (r *Router) handleProjectSubroutes(w http.ResponseWriter, req *http.Request) {
	projectID := strings.TrimPrefix(req.URL.Path, "/projects/")
	if projectID == "" || strings.Contains(projectID, "/") {
		r.notFound(w)
		return
	}
	st, ok := r.session(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodPut:
		var payload domain.Project
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		payload.ID = projectID
		if err := st.UpdateProject(req.Context(), payload); err != nil {
			r.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st.Projects())
	case http.MethodDelete:
		if err := st.DeleteProject(req.Context(), projectID); err != nil {
			r.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st.Projects())
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTasks(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload domain.Task
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	st, ok := r.session(w, req)
	if !ok {
		return
	}
	if err := st.AddTask(req.Context(), payload); err != nil {
		r.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st.Tasks())
}

func (r *Router) handleTaskSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/tasks/")
	parts := strings.Split(trimmed, "/")
	taskID := parts[0]
	if taskID == "" {
		r.notFound(w)
		return
	}
	st, ok := r.session(w, req)
	if !ok {
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "comments":
			r.handleTaskComment(w, req, st, taskID)
		case "timer":
			r.handleTaskTimer(w, req, st, taskID)
		default:
			r.notFound(w)
		}
		return
	}
	if len(parts) > 1 {
		r.notFound(w)
		return
	}
	switch req.Method {
	case http.MethodPut:
		var payload domain.Task
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		payload.ID = taskID
		if err := st.UpdateTask(req.Context(), payload); err != nil {
			r.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st.Tasks())
	case http.MethodDelete:
		if err := st.DeleteTask(req.Context(), taskID); err != nil {
			r.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st.Tasks())
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTaskComment(w http.ResponseWriter, req *http.Request, st *store.Store, taskID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := st.AddComment(req.Context(), taskID, payload.Text); err != nil {
		r.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st.Tasks())
}

func (r *Router) handleTaskTimer(w http.ResponseWriter, req *http.Request, st *store.Store, taskID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := st.ToggleTimer(req.Context(), taskID, payload.Note); err != nil {
		r.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st.Tasks())
}

func (r *Router) handleChat(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	st, ok := r.session(w, req)
	if !ok {
		return
	}
	if err := st.AddChatMessage(req.Context(), payload.Text); err != nil {
		r.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st.ChatMessages())
}

func (r *Router) handleStateWS(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for state websocket", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	st, ok := r.session(w, req)
	if !ok {
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	r.ensurePump(info.UserID, st)
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(info.UserID, client)
	go func() {
		defer func() {
			r.hub.Unregister(info.UserID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// handleEvents streams state change notifications as Server-Sent Events.
func (r *Router) handleEvents(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for event stream", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	st, ok := r.session(w, req)
	if !ok {
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	r.ensurePump(info.UserID, st)
	client := ws.NewSSEClient(w, flusher, r.logger)
	r.hub.Register(info.UserID, client)
	defer func() {
		r.hub.Unregister(info.UserID, client)
		client.Close()
	}()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			if time.Since(client.LastActivity()) > sseIdleLimit {
				r.logger.Info("dropping idle event stream", "user_id", info.UserID)
				return
			}
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	checks := map[string]func(context.Context) error{
		"database": r.dbHealth,
		"bus":      r.busHealth,
	}
	for name, check := range checks {
		if check == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		if err := check(ctx); err != nil {
			status = "degraded"
			components[name] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components[name] = map[string]any{"status": "up"}
		}
		cancel()
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// session resolves the caller's state store from the auth context.
func (r *Router) session(w http.ResponseWriter, req *http.Request) (*store.Store, bool) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return nil, false
	}
	st := r.sessions.Acquire(store.Principal{
		UserID:      info.UserID,
		DisplayName: info.DisplayName,
		Role:        info.Role,
	})
	return st, true
}

// ensurePump starts the event fan-out goroutine for a session once.
// The registry is keyed on the store, not the user: when an idle sweep
// closes a session and the user reconnects, the fresh store gets its
// own pump even if the old one is still winding down.
func (r *Router) ensurePump(userID string, st *store.Store) {
	r.pumpMu.Lock()
	defer r.pumpMu.Unlock()
	if _, running := r.pumps[st]; running {
		return
	}
	r.pumps[st] = struct{}{}
	go func() {
		ws.Pump(r.pumpCtx, r.hub, userID, st.Events(), r.logger)
		r.pumpMu.Lock()
		delete(r.pumps, st)
		r.pumpMu.Unlock()
	}()
}

func (r *Router) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrClosed):
		writeError(w, http.StatusConflict, "session closed")
	case errors.Is(err, store.ErrMutationFailed):
		writeError(w, http.StatusUnprocessableEntity, "mutation failed")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		route := routeLabel(req.URL.Path)
		r.recordRequestMetrics(req.Method, route, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		actor := "anonymous"
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

// routeLabel collapses entity IDs so metrics stay low-cardinality.
func routeLabel(path string) string {
	for _, prefix := range []string{"/projects/", "/tasks/", "/state/"} {
		if strings.HasPrefix(path, prefix) {
			rest := strings.TrimPrefix(path, prefix)
			if idx := strings.IndexRune(rest, '/'); idx >= 0 {
				return prefix + ":id" + rest[idx:]
			}
			if prefix == "/state/" {
				return path
			}
			return prefix + ":id"
		}
	}
	return path
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := sr.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
