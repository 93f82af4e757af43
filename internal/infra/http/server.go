package http

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"log"
	"net/http"
	"time"

	"veritip/internal/config"
	"veritip/internal/domain"
	"veritip/internal/infra/cachemem"
	"veritip/internal/infra/certificate"
	"veritip/internal/infra/db"
	"veritip/internal/infra/hashtree"
	"veritip/internal/infra/ledger"
	"veritip/internal/infra/policyopa"
	"veritip/internal/infra/ratelimit"
	"veritip/internal/usecase"

	"github.com/gin-gonic/gin"
)

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine

	verifyUC *usecase.VerifyCertifiedTip
	receipts usecase.ReceiptRepository

	defaultLabels []string

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

func NewServer(cfg config.Config, store *db.Store) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, store: store, r: r}
	s.initDeps()
	s.routes()
	return s
}

type ServerDeps struct {
	Verify      *usecase.VerifyCertifiedTip
	Receipts    usecase.ReceiptRepository
	Labels      []string
	RateLimiter domain.RateLimiter
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:           cfg,
		r:             r,
		verifyUC:      deps.Verify,
		receipts:      deps.Receipts,
		defaultLabels: deps.Labels,
	}
	if s.receipts == nil && s.verifyUC != nil {
		s.receipts = s.verifyUC.Receipts
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initDeps() {
	s.defaultLabels = s.cfg.TipLabels

	rootKey, err := base64.StdEncoding.DecodeString(s.cfg.RootKeyBase64)
	if err != nil {
		log.Printf("invalid ROOT_KEY_BASE64: %v", err)
	}
	serviceID, err := hex.DecodeString(s.cfg.ServiceIDHex)
	if err != nil {
		log.Printf("invalid SERVICE_ID_HEX: %v", err)
	}

	verifier := certificate.NewVerifier(certificate.Ed25519Scheme{})
	verifier.MaxSkew = s.cfg.MaxCertSkew()

	var source usecase.TipSource
	if s.cfg.LedgerURL != "" {
		client, err := ledger.NewClient(s.cfg.LedgerURL, &http.Client{Timeout: 15 * time.Second})
		if err != nil {
			log.Printf("ledger client disabled: %v", err)
		} else {
			source = client
		}
	}

	var policy usecase.PolicyEngine
	if s.cfg.PolicyBundlePath != "" {
		engine, err := policyopa.NewEngineFromBundlePath(context.Background(), s.cfg.PolicyBundlePath, s.cfg.PolicyBundleID)
		if err != nil {
			log.Printf("policy bundle disabled: %v", err)
		} else {
			policy = engine
		}
	}

	var receipts usecase.ReceiptRepository
	if s.store != nil && s.store.DB != nil {
		repo := db.NewTipReceiptRepository(s.store.DB)
		receipts = repo
		s.receipts = repo
	}

	s.verifyUC = &usecase.VerifyCertifiedTip{
		Source:    source,
		Auth:      verifier,
		Trees:     &hashtree.Service{},
		Policy:    policy,
		Receipts:  receipts,
		Cache:     cachemem.New(),
		CacheTTL:  s.cfg.CacheTTL(),
		RootKey:   rootKey,
		ServiceID: serviceID,
	}

	s.initRateLimit(nil)
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			if limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, nil); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		dbMode := "no-db"
		if s.store != nil && s.store.DB != nil {
			dbMode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dbMode})
	})

	v1 := s.r.Group("/v1")
	{
		v1.POST("/verify", s.handleVerify)
		v1.GET("/tip", s.handleTip)
		v1.GET("/receipts/:receipt_id", s.handleGetReceipt)
	}

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}
