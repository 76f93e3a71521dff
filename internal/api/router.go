package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/attendance/internal/api/handlers"
	"github.com/your-org/attendance/internal/api/ws"
	"github.com/your-org/attendance/internal/auth"
	"github.com/your-org/attendance/internal/gateway"
	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/recognition"
)

type RouterConfig struct {
	APIKey     string
	Identities handlers.IdentityReader
	Gateway    *gateway.Gateway
	Enroller   *gateway.Enroller
	Ledger     *ledger.Ledger
	Holder     *recognition.Holder
	// Requester queues rebuilds; Trainer, when set, trains inline instead.
	Requester gateway.TrainingRequester
	Trainer   *recognition.Trainer
	Hub       *ws.Hub
	Checks    map[string]handlers.Check
	StatsTTL  time.Duration
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "X-API-Key", handlers.OperatorHeader, requestIDHeader},
		ExposeHeaders:   []string{requestIDHeader, "Content-Disposition"},
		MaxAge:          12 * time.Hour,
	}))

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	// Marking
	attH := handlers.NewAttendanceHandler(cfg.Gateway, cfg.Ledger, cfg.StatsTTL)
	v1.POST("/attendance/recognize", attH.Recognize)
	v1.POST("/attendance/claim", attH.Claim)
	v1.POST("/attendance/manual", attH.Manual)

	// Enrollment
	identH := handlers.NewIdentityHandler(cfg.Identities, cfg.Enroller, cfg.Ledger)
	v1.POST("/identities", identH.Create)
	v1.GET("/identities", identH.List)
	v1.GET("/identities/:key", identH.Get)
	v1.GET("/identities/:key/info", identH.Info)
	v1.GET("/identities/:key/history", attH.History)
	v1.POST("/identities/:key/samples", identH.AddSample)

	// Reports
	v1.GET("/reports", attH.Report)
	v1.GET("/reports/export", attH.Export)
	v1.GET("/stats", attH.Stats)

	// Model
	modelH := handlers.NewModelHandler(cfg.Holder, cfg.Requester, cfg.Trainer)
	v1.GET("/model", modelH.Status)
	v1.POST("/model/train", modelH.Train)

	return r
}
