// Package controlapi is the thin HTTP/IPC control surface described in
// spec §6 and SPEC_FULL.md §11: "thin adapters over the core
// operations", no web UI, no multi-tenant user model. Grounded on the
// teacher's internal/api + internal/auth packages, trimmed to a
// single operator token instead of a login/register flow.
package controlapi

import (
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"cardfarmd/internal/bot"
	"cardfarmd/internal/supervisor"
)

// Server owns the gin engine and the single operator token's signing
// secret.
type Server struct {
	sup         *supervisor.Supervisor
	jwtSecret   []byte
	processStart time.Time
	version     string
	engine      *gin.Engine
}

type claims struct {
	jwt.RegisteredClaims
}

// New builds the control surface. jwtSecret signs the one operator
// token minted by IssueOperatorToken (SPEC_FULL.md §11: "a single
// long-lived operator token minted at first boot").
func New(sup *supervisor.Supervisor, jwtSecret []byte, version string) *Server {
	s := &Server{sup: sup, jwtSecret: jwtSecret, processStart: time.Now(), version: version}
	s.engine = s.buildEngine()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

// IssueOperatorToken mints the single long-lived JWT the operator
// authenticates every request with.
func (s *Server) IssueOperatorToken(ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{jwt.RegisteredClaims{
		Subject:   "operator",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(s.jwtSecret)
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if raw == "" {
			raw = c.Query("token")
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		token, err := jwt.ParseWithClaims(raw, &claims{}, func(*jwt.Token) (any, error) {
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func (s *Server) buildEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.SetTrustedProxies(nil)

	api := r.Group("/api")
	api.Use(s.authMiddleware())

	api.GET("/status", s.handleStatus)
	api.POST("/config", s.handleConfigUpdate)
	api.POST("/exit", s.handleExit)
	api.POST("/restart", s.handleRestart)

	bots := api.Group("/bots/:name")
	bots.GET("/status", s.handleBotStatus)
	bots.POST("/start", s.handleBotStart)
	bots.POST("/stop", s.handleBotStop)
	bots.POST("/redeem", s.handleBotRedeem)

	return r
}

// handleStatus serves GET /api/status with variant, version,
// processStart, memoryKB and the number of registered bots. The daemon
// configuration is not included in the reply.
func (s *Server) handleStatus(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	c.JSON(http.StatusOK, gin.H{
		"variant":      "cardfarmd",
		"version":      s.version,
		"processStart": s.processStart,
		"memoryKB":      mem.Alloc / 1024,
		"bots":         len(s.sup.All()),
	})
}

// handleConfigUpdate is a thin adapter: it checks that the body is a
// JSON object and acknowledges receipt. The body is neither stored nor
// applied, now or on restart.
func (s *Server) handleConfigUpdate(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid config body"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "config received; not applied"})
}

func (s *Server) handleExit(c *gin.Context) {
	s.sup.ExitProcess()
	c.JSON(http.StatusOK, gin.H{"message": "exiting"})
}

func (s *Server) handleRestart(c *gin.Context) {
	s.sup.RestartProcess()
	c.JSON(http.StatusOK, gin.H{"message": "restarting"})
}

func (s *Server) lookupBot(c *gin.Context) *bot.Instance {
	inst := s.sup.Get(c.Param("name"))
	if inst == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
	}
	return inst
}

func (s *Server) handleBotStatus(c *gin.Context) {
	inst := s.lookupBot(c)
	if inst == nil {
		return
	}
	c.JSON(http.StatusOK, inst.Status())
}

func (s *Server) handleBotStart(c *gin.Context) {
	inst := s.lookupBot(c)
	if inst == nil {
		return
	}
	inst.Start()
	c.JSON(http.StatusOK, gin.H{"message": "started"})
}

func (s *Server) handleBotStop(c *gin.Context) {
	inst := s.lookupBot(c)
	if inst == nil {
		return
	}
	inst.Stop()
	c.JSON(http.StatusOK, gin.H{"message": "stopped"})
}

type redeemRequest struct {
	Keys string `json:"keys" binding:"required"`
}

func (s *Server) handleBotRedeem(c *gin.Context) {
	inst := s.lookupBot(c)
	if inst == nil {
		return
	}
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing keys"})
		return
	}
	reply := inst.Respond(c.Request.Context(), inst.OwnerForAPI(), req.Keys)
	if reply == nil {
		c.JSON(http.StatusOK, gin.H{"result": ""})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": *reply})
}
