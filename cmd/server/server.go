package main

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/yourorg/psp-multisafepay/internal/basket"
	pspctx "github.com/yourorg/psp-multisafepay/internal/context"
	"github.com/yourorg/psp-multisafepay/internal/monitor"
	"github.com/yourorg/psp-multisafepay/internal/orchestrator"
	"github.com/yourorg/psp-multisafepay/internal/reporting"
)

const serviceName = "psp-multisafepay"

type itemPayload struct {
	ID         uint64            `json:"id"`
	EntityType string            `json:"entity_type"`
	Title      string            `json:"title"`
	Details    map[string]string `json:"details"`
}

func (p itemPayload) toItem() basket.Item {
	return basket.Item{ID: p.ID, EntityType: p.EntityType, Title: p.Title, Details: p.Details}
}

type basketPayload struct {
	Main  itemPayload   `json:"main"`
	Lines []itemPayload `json:"lines"`
}

// paymentRequest is the body of POST /payments.
type paymentRequest struct {
	InvoiceNumber string          `json:"invoice_number"`
	Gateway       string          `json:"gateway"`
	MethodID      uint64          `json:"method_id"`
	MethodTitle   string          `json:"method_title"`
	Buyer         itemPayload     `json:"buyer"`
	Baskets       []basketPayload `json:"baskets"`
}

func (r paymentRequest) groups() []basket.Group {
	groups := make([]basket.Group, 0, len(r.Baskets))
	for _, b := range r.Baskets {
		g := basket.Group{Main: b.Main.toItem()}
		for _, l := range b.Lines {
			g.Lines = append(g.Lines, l.toItem())
		}
		groups = append(groups, g)
	}
	return groups
}

type server struct {
	orc      *orchestrator.Orchestrator
	monitor  *monitor.ContractMonitor
	provider pspctx.ProviderSettings
	reporter *reporting.RetrospectiveReporter
	logger   *zap.Logger
	gatherer prometheus.Gatherer
}

func (s *server) method(gateway string, id uint64, title string) pspctx.PaymentMethodSettings {
	return pspctx.PaymentMethodSettings{
		ID:           id,
		Title:        title,
		ExternalName: gateway,
		Provider:     s.provider,
	}
}

func (s *server) createPaymentHandler(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	valid, validationErrors, err := s.monitor.Validate(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": monitor.FormatErrors(validationErrors)})
		return
	}

	var req paymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	method := s.method(req.Gateway, req.MethodID, req.MethodTitle)
	outcome := s.orc.InitiatePayment(c.Request.Context(), req.groups(), req.Buyer.toItem(), method, req.InvoiceNumber)
	c.JSON(http.StatusOK, outcome)
}

// webhookHandler always answers 200 so the PSP does not keep retrying;
// failures are visible in the outcome and the audit log.
func (s *server) webhookHandler(c *gin.Context) {
	outcome := s.orc.ReconcileStatus(c.Request.Context(), c.Request, s.method("", 0, ""))
	c.JSON(http.StatusOK, outcome)
}

func (s *server) auditHandler(c *gin.Context) {
	if s.reporter == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit trail is not available"})
		return
	}
	report, err := s.reporter.Report(c.Request.Context(), c.Param("invoice"))
	if err != nil {
		s.logger.Error("Failed to build audit report", zap.String("invoice_number", c.Param("invoice")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read audit trail"})
		return
	}
	if report.TotalExchanges == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no audit entries for " + c.Param("invoice")})
		return
	}
	c.JSON(http.StatusOK, report)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func setupRouter(s *server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(serviceName), requestLogger(s.logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "environment": s.orc.Environment().String()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	router.POST("/payments", s.createPaymentHandler)
	router.GET("/payments/:invoice/audit", s.auditHandler)
	router.GET("/webhooks/multisafepay", s.webhookHandler)
	router.POST("/webhooks/multisafepay", s.webhookHandler)
	return router
}
