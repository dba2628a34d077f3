package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/eduardohotta/cortex-sub000/internal/config"
	"github.com/eduardohotta/cortex-sub000/internal/pipeline"
	"github.com/eduardohotta/cortex-sub000/pkg/Logger"
	"github.com/eduardohotta/cortex-sub000/pkg/audio"
)

type Dependencies struct {
	Coordinator *pipeline.Coordinator
	Capture     *audio.Capture
	Logger      *Logger.Logger
	Configs     *config.Settings
}

func NewServerDependencies(
	coordinator *pipeline.Coordinator,
	capture *audio.Capture,
	logger *Logger.Logger,
	configs *config.Settings,
) Dependencies {
	return Dependencies{
		Coordinator: coordinator,
		Capture:     capture,
		Logger:      logger,
		Configs:     configs,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // local UI only
}

type askRequest struct {
	Question string `json:"question"`
}

type definitionRequest struct {
	Term string `json:"term"`
}

// RoutesManager holds the event subscribers: every /events websocket gets a
// copy of the coordinator's outward stream.
type RoutesManager struct {
	deps Dependencies

	mu      sync.Mutex
	clients map[uuid.UUID]*wsClient
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(ev pipeline.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(ev)
}

func NewRoutesManager(deps Dependencies) *RoutesManager {
	return &RoutesManager{
		deps:    deps,
		clients: make(map[uuid.UUID]*wsClient),
	}
}

func InitializeRoutes(ctx context.Context, r *gin.Engine, dep Dependencies) {
	r.GET("/", func(ctx *gin.Context) { ctx.JSON(200, gin.H{"message": "Server healthy"}) })
	r.GET("/health", func(ctx *gin.Context) { ctx.JSON(200, gin.H{"status": "ok"}) })

	rm := NewRoutesManager(dep)
	go rm.broadcastLoop(ctx)

	r.GET("/devices", rm.handleDevices)
	r.POST("/capture/start", rm.handleCaptureStart)
	r.POST("/capture/stop", rm.handleCaptureStop)
	r.GET("/transcript", rm.handleTranscript)
	r.DELETE("/transcript", rm.handleTranscriptClear)
	r.POST("/ask", rm.handleAsk)
	r.POST("/abort", rm.handleAbort)
	r.POST("/definition", rm.handleDefinition)
	r.GET("/keys", rm.handleKeys)
	r.GET("/history", rm.handleHistory)
	r.DELETE("/history", rm.handleHistoryClear)
	r.GET("/events", rm.handleEvents)
}

// broadcastLoop fans the coordinator's events out to every connected client.
func (rm *RoutesManager) broadcastLoop(ctx context.Context) {
	events := rm.deps.Coordinator.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			rm.mu.Lock()
			for id, client := range rm.clients {
				if err := client.write(ev); err != nil {
					rm.deps.Logger.Debugf("dropping events client %s: %v", id, err)
					client.conn.Close()
					delete(rm.clients, id)
				}
			}
			rm.mu.Unlock()
		}
	}
}

func (rm *RoutesManager) handleDevices(c *gin.Context) {
	devices := rm.deps.Capture.EnumerateDevices(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

func (rm *RoutesManager) handleCaptureStart(c *gin.Context) {
	if err := rm.deps.Coordinator.StartCapture(context.Background()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"capturing": true})
}

func (rm *RoutesManager) handleCaptureStop(c *gin.Context) {
	rm.deps.Coordinator.StopCapture()
	c.JSON(http.StatusOK, gin.H{"capturing": false})
}

func (rm *RoutesManager) handleTranscript(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"transcript": rm.deps.Coordinator.Transcript(),
		"tokens":     rm.deps.Coordinator.TokenEstimate(),
	})
}

func (rm *RoutesManager) handleTranscriptClear(c *gin.Context) {
	rm.deps.Coordinator.ClearTranscript()
	c.JSON(http.StatusOK, gin.H{"transcript": ""})
}

func (rm *RoutesManager) handleAsk(c *gin.Context) {
	var req askRequest
	_ = c.ShouldBindJSON(&req) // body optional, transcript buffer is the default

	answer, err := rm.deps.Coordinator.Ask(c.Request.Context(), req.Question)
	if err != nil {
		status := http.StatusInternalServerError
		if err == pipeline.ErrEmptyTranscript {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

func (rm *RoutesManager) handleAbort(c *gin.Context) {
	rm.deps.Coordinator.Abort()
	c.JSON(http.StatusOK, gin.H{"aborted": true})
}

func (rm *RoutesManager) handleDefinition(c *gin.Context) {
	var req definitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "term is required"})
		return
	}
	answer, err := rm.deps.Coordinator.AskDefinition(c.Request.Context(), req.Term)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"definition": answer})
}

func (rm *RoutesManager) handleKeys(c *gin.Context) {
	c.JSON(http.StatusOK, rm.deps.Coordinator.KeyStatus())
}

func (rm *RoutesManager) handleHistory(c *gin.Context) {
	store := rm.deps.Coordinator.History()
	c.JSON(http.StatusOK, gin.H{
		"turns": store.RecentHistory(store.Len()),
		"count": store.Len(),
	})
}

func (rm *RoutesManager) handleHistoryClear(c *gin.Context) {
	if err := rm.deps.Coordinator.History().Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": 0})
}

func (rm *RoutesManager) handleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		rm.deps.Logger.Errorf("ws upgrade failed: %v", err)
		return
	}

	id := uuid.New()
	client := &wsClient{conn: conn}
	rm.mu.Lock()
	rm.clients[id] = client
	rm.mu.Unlock()
	rm.deps.Logger.Infof("events client connected: %s", id)

	defer func() {
		rm.mu.Lock()
		delete(rm.clients, id)
		rm.mu.Unlock()
		conn.Close()
		rm.deps.Logger.Infof("events client disconnected: %s", id)
	}()

	// drain reads so pings and close frames are processed
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
