package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rykyfilipe/efactura-engine/api"
	"github.com/rykyfilipe/efactura-engine/config"
	"github.com/rykyfilipe/efactura-engine/einvoice"
	"github.com/rykyfilipe/efactura-engine/middleware"
	"github.com/rykyfilipe/efactura-engine/models"
	"github.com/rykyfilipe/efactura-engine/providers"
	"github.com/rykyfilipe/efactura-engine/security"
	"github.com/rykyfilipe/efactura-engine/services"
	"github.com/rykyfilipe/efactura-engine/stores"
	"github.com/rykyfilipe/efactura-engine/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorPurple = "\033[35m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func printBanner() {
	fmt.Printf("%s%s", colorCyan, colorBold)
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                                                              ║")
	fmt.Println("║  e-Factura Integration Engine                                ║")
	fmt.Println("║                                                              ║")
	fmt.Println("║  Electronic invoicing against the national tax authority     ║")
	fmt.Println("║                                                              ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Printf("%s", colorReset)
}

func printStep(step, message string) {
	fmt.Printf("%s[%s]%s %s%s%s\n", colorBlue, step, colorReset, colorBold, message, colorReset)
}

func printSuccess(message string) {
	fmt.Printf("%s✓%s %s\n", colorGreen, colorReset, message)
}

func printWarning(message string) {
	fmt.Printf("%s⚠%s %s\n", colorYellow, colorReset, message)
}

func printError(message string) {
	fmt.Printf("%s✗%s %s\n", colorRed, colorReset, message)
}

func printInfo(message string) {
	fmt.Printf("%sℹ%s %s\n", colorCyan, colorReset, message)
}

func main() {
	printBanner()
	fmt.Println()

	printStep("1/8", "Loading configuration...")
	cfg, err := config.LoadConfig()
	if err != nil {
		printError(fmt.Sprintf("Failed to load configuration: %v", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		printError(fmt.Sprintf("Configuration validation failed: %v", err))
		os.Exit(1)
	}
	printSuccess(fmt.Sprintf("Configuration loaded (%s environment, authority: %s)", cfg.Environment, cfg.ANAF.Environment))

	printStep("2/8", "Connecting to database...")
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		printError(fmt.Sprintf("Failed to connect to database: %v", err))
		os.Exit(1)
	}

	sqlDB, err := db.DB()
	if err != nil {
		printError(fmt.Sprintf("Failed to get database instance: %v", err))
		os.Exit(1)
	}
	defer sqlDB.Close()
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := db.AutoMigrate(
		&models.ClientCertificate{},
		&models.OAuthCredential{},
		&models.SubmissionRecord{},
		&models.AuditLog{},
		&models.ErrorLog{},
	); err != nil {
		printError(fmt.Sprintf("Failed to run migrations: %v", err))
		os.Exit(1)
	}
	printSuccess(fmt.Sprintf("Connected to PostgreSQL at %s:%d", cfg.Database.Host, cfg.Database.Port))

	printStep("3/8", "Initializing security components...")
	encryptionKey, err := cfg.Security.DecodedEncryptionKey()
	if err != nil {
		if cfg.Environment == "production" {
			printError(fmt.Sprintf("Encryption key is required in production: %v", err))
			os.Exit(1)
		}
		printWarning("No encryption key configured, generating an ephemeral one (sandbox only)")
		encryptionKey, err = security.GenerateEncryptionKey()
		if err != nil {
			printError(fmt.Sprintf("Failed to generate encryption key: %v", err))
			os.Exit(1)
		}
	}

	fieldCipher, err := security.CreateFieldCipher(encryptionKey)
	if err != nil {
		printError(fmt.Sprintf("Failed to initialize encryption: %v", err))
		os.Exit(1)
	}

	jwtManager := security.CreateJWTManager(cfg.Security.JWTSecret, "efactura", "efactura-api")

	apiRateLimiter := security.CreateTieredRateLimiter(map[string]security.RateLimitConfig{
		"default": {RequestsPerSecond: cfg.RateLimit.APIRequestsPerSecond, Burst: cfg.RateLimit.APIBurst},
	})

	quotaLimiter := security.CreateQuotaLimiter(cfg.RateLimit.Window, cfg.RateLimit.Quota)
	printSuccess("Security components initialized")

	printStep("4/8", "Initializing authority provider...")
	anafProvider := providers.CreateANAFProvider(cfg.ANAF)
	provider := providers.CreateWrapper(anafProvider, "anaf")
	printSuccess("Authority provider initialized")
	printInfo(fmt.Sprintf("  • OAuth endpoint: %s", cfg.ANAF.TokenURL))
	printInfo(fmt.Sprintf("  • API base:       %s", cfg.ANAF.APIBaseURL))

	printStep("5/8", "Initializing stores...")
	certificateStore := stores.CreateCertificateStore(db)
	credentialStore := stores.CreateCredentialStore(db)
	submissionStore := stores.CreateSubmissionStore(db)
	auditStore := stores.CreateAuditStore(db)
	errorLogStore := stores.CreateErrorLogStore(db)
	printSuccess("Stores initialized")

	printStep("6/8", "Initializing services...")
	metrics := utils.CreateMetricsCollector()
	auditService := services.CreateAuditService(auditStore, errorLogStore)
	certificateService := services.CreateCertificateService(certificateStore, fieldCipher, auditService)
	oauthService := services.CreateOAuthService(cfg.ANAF, provider, credentialStore, certificateService, auditService, []byte(cfg.Security.JWTSecret))
	signatureService := services.CreateSignatureService(certificateService, einvoice.CreateXMLDSigSigner())
	submissionService := services.CreateSubmissionService(submissionStore, provider, oauthService, signatureService, quotaLimiter, auditService, metrics, cfg.Retry)
	printSuccess("Services initialized")

	printStep("7/8", "Setting up HTTP server...")
	certificateHandler := api.CreateCertificateHandler(certificateService)
	authHandler := api.CreateAuthHandler(oauthService)
	submissionHandler := api.CreateSubmissionHandler(submissionService)
	auditHandler := api.CreateAuditHandler(auditService)
	healthHandler := api.CreateHealthHandler(db, submissionService, metrics)

	router := mux.NewRouter()

	authMiddleware := middleware.CreateAuthMiddleware(jwtManager, apiRateLimiter)

	router.Use(middleware.LoggingMiddleware)
	router.Use(middleware.SecurityHeadersMiddleware)
	router.Use(middleware.CORSMiddleware)
	router.Use(middleware.RecoveryMiddleware)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authMiddleware.JWTMiddleware)
	apiRouter.Use(authMiddleware.RateLimitMiddleware)

	apiRouter.HandleFunc("/health", healthHandler.HandleHealth).Methods("GET")
	apiRouter.HandleFunc("/metrics", healthHandler.HandleMetrics).Methods("GET")

	apiRouter.HandleFunc("/certificates", certificateHandler.HandleUpload).Methods("POST")
	apiRouter.HandleFunc("/certificates", certificateHandler.HandleList).Methods("GET")
	apiRouter.HandleFunc("/certificates/validate", certificateHandler.HandleValidate).Methods("GET")
	apiRouter.HandleFunc("/certificates/validate", certificateHandler.HandleValidateContainer).Methods("POST")
	apiRouter.HandleFunc("/certificates", certificateHandler.HandleRevoke).Methods("DELETE")

	apiRouter.HandleFunc("/auth/url", authHandler.HandleAuthorizeURL).Methods("GET")
	apiRouter.HandleFunc("/auth/callback", authHandler.HandleCallback).Methods("GET")
	apiRouter.HandleFunc("/auth/status", authHandler.HandleStatus).Methods("GET")
	apiRouter.HandleFunc("/auth/client-credentials", authHandler.HandleClientCredentials).Methods("POST")

	apiRouter.HandleFunc("/submissions", submissionHandler.HandleSubmit).Methods("POST")
	apiRouter.HandleFunc("/submissions", submissionHandler.HandleList).Methods("GET")
	apiRouter.HandleFunc("/submissions/{id}", submissionHandler.HandleGet).Methods("GET")
	apiRouter.HandleFunc("/submissions/{id}/status", submissionHandler.HandleCheckStatus).Methods("POST")
	apiRouter.HandleFunc("/submissions/{id}/download", submissionHandler.HandleDownload).Methods("GET")

	apiRouter.HandleFunc("/audit/actions", auditHandler.HandleListActions).Methods("GET")
	apiRouter.HandleFunc("/audit/errors", auditHandler.HandleListErrors).Methods("GET")

	server := &http.Server{
		Addr:           ":" + cfg.Server.Port,
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}
	printSuccess("HTTP server configured")

	printStep("8/8", "Starting...")
	fmt.Println()
	fmt.Printf("%s%se-Factura engine is ready%s\n", colorGreen, colorBold, colorReset)
	fmt.Println()
	fmt.Printf("%s%sAPI Endpoints:%s\n", colorPurple, colorBold, colorReset)
	fmt.Printf("  %s•%s Health:       %shttp://localhost:%s/api/v1/health%s\n", colorCyan, colorReset, colorYellow, cfg.Server.Port, colorReset)
	fmt.Printf("  %s•%s Certificates: %shttp://localhost:%s/api/v1/certificates%s\n", colorCyan, colorReset, colorYellow, cfg.Server.Port, colorReset)
	fmt.Printf("  %s•%s OAuth:        %shttp://localhost:%s/api/v1/auth/url%s\n", colorCyan, colorReset, colorYellow, cfg.Server.Port, colorReset)
	fmt.Printf("  %s•%s Submissions:  %shttp://localhost:%s/api/v1/submissions%s\n", colorCyan, colorReset, colorYellow, cfg.Server.Port, colorReset)
	fmt.Println()
	fmt.Printf("%s%sPress Ctrl+C to stop the server%s\n", colorYellow, colorBold, colorReset)
	fmt.Println()

	go func() {
		printInfo(fmt.Sprintf("Starting HTTP server on port %s...", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			printError(fmt.Sprintf("Server failed to start: %v", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println()
	printWarning("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		printError(fmt.Sprintf("Server forced to shutdown: %v", err))
		os.Exit(1)
	}

	provider.Close()
	quotaLimiter.Close()
	apiRateLimiter.Close()

	printSuccess("Server stopped gracefully")
}
