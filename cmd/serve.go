package cmd

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jobboard/internal/dispatch"
	"github.com/spigell/jobboard/internal/httpapi"
	"github.com/spigell/jobboard/internal/intake"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the evaluation workers",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 0, "port to listen on (overrides server.port and PORT)")
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func serve() {
	ctx := context.Background()

	c, err := setup(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer c.close()

	logger := c.logger
	config := c.config

	logger.Info("starting the jobboard", zap.String("version", version))

	if !viper.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	uploads, err := intake.New(config.Uploads.Dir, int64(config.Uploads.MaxSizeMB)<<20, logger.Named("intake"))
	if err != nil {
		logger.Fatal("preparing the upload directory", zap.Error(err))
	}

	dispatcher, err := newDispatcher(config, c.orchestrator.Run, logger)
	if err != nil {
		logger.Fatal("creating the dispatcher", zap.Error(err))
	}
	if q, ok := dispatcher.(*dispatch.Queue); ok {
		if err := q.Consume(); err != nil {
			logger.Fatal("consuming the evaluation queue", zap.Error(err))
		}
	}

	var recoverLater *time.Timer
	if config.Server.RecoverOnStart {
		recoverUnfinished := func() {
			if _, err := c.orchestrator.Recover(ctx, dispatcher); err != nil {
				logger.Error("recovering unfinished evaluations", zap.Error(err))
			}
		}
		recoverUnfinished()
		// Claims left by a process that died moments ago are still within their lease.
		recoverLater = time.AfterFunc(c.orchestrator.ClaimLease(), recoverUnfinished)
	}

	deps := httpapi.Deps{
		Jobs:         c.store,
		Applications: c.store,
		Intake:       uploads,
		Dispatcher:   dispatcher,
		Reevaluator:  c.orchestrator,
		Threshold:    c.orchestrator.Threshold(),
		FrontendURL:  config.Server.FrontendURL,
		Logger:       logger.Named("http"),
	}
	if c.client != nil {
		deps.Prober = c.client
	}

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(config.Server.Port),
		Handler: httpapi.NewRouter(deps),
	}

	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.Bool("ai_configured", c.evaluator.Available()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
	if recoverLater != nil {
		recoverLater.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("evaluations interrupted, they will be recovered on next start", zap.Error(err))
	}
}
