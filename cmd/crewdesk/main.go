package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tobiasvance/crewdesk/internal/backup"
	"github.com/tobiasvance/crewdesk/internal/database"
	"github.com/tobiasvance/crewdesk/internal/logging"
	"github.com/tobiasvance/crewdesk/internal/push"
	"github.com/tobiasvance/crewdesk/internal/server"
)

func main() {
	logger := logging.Setup(os.Getenv("CREWDESK_LOG_LEVEL"))

	port := os.Getenv("CREWDESK_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("CREWDESK_DB_PATH")
	if dbPath == "" {
		dbPath = "crewdesk.db"
	}

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	backupCfg := backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("CREWDESK_BACKUP_S3_ENDPOINT"),
			Bucket:    os.Getenv("CREWDESK_BACKUP_S3_BUCKET"),
			Region:    os.Getenv("CREWDESK_BACKUP_S3_REGION"),
			AccessKey: os.Getenv("CREWDESK_BACKUP_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("CREWDESK_BACKUP_S3_SECRET_KEY"),
		},
		DBPath:        dbPath,
		Passphrase:    os.Getenv("CREWDESK_BACKUP_PASSPHRASE"),
		ScheduleHour:  envInt("CREWDESK_BACKUP_HOUR", 3),
		RetentionDays: envInt("CREWDESK_BACKUP_RETENTION_DAYS", 30),
	}

	pushCfg := push.Config{
		VAPIDPublicKey:  os.Getenv("CREWDESK_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("CREWDESK_VAPID_PRIVATE_KEY"),
	}

	srv := server.New(db, backupCfg, pushCfg, logger)

	// Realign shift counters with assignment rows before serving traffic.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Service().Reconcile(ctx); err != nil {
		logger.Error("reconcile counters", "error", err)
		os.Exit(1)
	}

	srv.Start(ctx)
	defer srv.Stop()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("Crewdesk running at http://localhost:%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
