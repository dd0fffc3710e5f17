package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lms-auth/internal/config"
	"lms-auth/internal/factory"
	"lms-auth/internal/handler"
	"lms-auth/internal/otp"
	"lms-auth/internal/util"
)

func main() {
	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()

	router := setupRouter(f)

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// The OTP manager exposes only SweepExpired; the recurring schedule is
	// owned here, at the composition root.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go runOTPSweep(sweepCtx, f.OTPManager(), cfg)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Fatal("Server failed to start", util.ErrorField(err))
		}
	}()

	util.Info("Server started successfully",
		util.String("environment", cfg.Environment),
		util.String("address", server.Addr),
	)

	waitForShutdown(f, stopSweep, server)
}

// setupRouter creates the HTTP router with all handlers using Chi.
func setupRouter(f *factory.Factory) http.Handler {
	authService := f.ServiceFactory().AuthService()
	authHandler := handler.NewAuthHandler(authService, f.Config(), util.Get())
	return handler.NewRouter(authHandler, util.Get())
}

// runOTPSweep purges expired OTP records on a fixed interval. Overlapping
// runs would be harmless (deletion is idempotent) but cannot happen here:
// each tick runs to completion before the next is consumed.
func runOTPSweep(ctx context.Context, manager *otp.Manager, cfg *config.Config) {
	ticker := time.NewTicker(cfg.OTP.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			removed, err := manager.SweepExpired(sweepCtx, cfg.OTP.ExpiryWindow)
			cancel()
			if err != nil {
				util.Error("OTP sweep failed", util.ErrorField(err))
				continue
			}
			if removed > 0 {
				util.Info("OTP sweep removed expired records", util.Int("removed", removed))
			}
		}
	}
}

func waitForShutdown(f *factory.Factory, stopSweep context.CancelFunc, server *http.Server) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-signalChan
	util.Info("Received shutdown signal", util.String("signal", sig.String()))

	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
	} else {
		util.Info("Server shutdown completed")
	}

	f.Close()
}
