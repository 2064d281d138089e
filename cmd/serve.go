package cmd

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/anidb/catalog"
	"github.com/luma/anidb/client"
	"github.com/luma/anidb/storage"
)

var httpAddr string

func init() {
	flags := ServeCmd.PersistentFlags()

	flags.StringVar(&httpAddr, "http-addr", "", "The address to listen to HTTP requests on")
}

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve catalog lookups over HTTP",
	Long: `Serve catalog lookups over HTTP

Keeps one logged in session open and answers

	GET /files/:size/:ed2k

from the cache or the API server. Every request still honours the server's
rate limit, so lookups of uncached files are slow.

Usage
	anidb serve --http-addr 127.0.0.1:7362

`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()

		conf, log, err := loadEnv(ctx)
		if err != nil {
			return err
		}
		defer log.Sync()

		if err := requireCredentials(conf); err != nil {
			return err
		}

		if httpAddr != "" {
			conf.HTTPAddr = httpAddr
		}

		cache := storage.NewInmemoryStore()
		defer cache.Close()

		if conf.CacheFile != "" {
			if err := storage.LoadFile(cache, conf.CacheFile); err != nil {
				return err
			}

			defer func() {
				err = multierr.Append(err, storage.SaveFile(cache, conf.CacheFile))
			}()
		}

		conn := client.New(conf.ClientOptions(log.Named("client")))
		session := catalog.NewSession(conn,
			catalog.Credentials{User: conf.User, Pass: conf.Pass},
			conf.Encoding,
			log.Named("session"))

		if err := session.Start(ctx); err != nil {
			return err
		}

		router := setupRouter(conf.DebugHTTP, log)
		NewAPI(conn, catalog.NewResolver(session, cache, log.Named("resolver")), log).Routes(router)

		s := &http.Server{
			Addr:    conf.HTTPAddr,
			Handler: router,
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		log.Info("Listening",
			zap.Any("config", conf.Redacted()),
			zap.String("httpAddr", conf.HTTPAddr))

		// Listen for the interrupt signal.
		<-ctx.Done()

		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := teardownContext()
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := session.Stop(shutdownCtx); err != nil {
			log.Error("Session did not stop cleanly", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Log all requests but health checks, RFC3339 with UTC time format.
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}

// API exposes a logged in client over HTTP.
type API struct {
	conn     *client.Conn
	resolver *catalog.Resolver

	log *zap.Logger
}

func NewAPI(conn *client.Conn, resolver *catalog.Resolver, log *zap.Logger) *API {
	return &API{conn: conn, resolver: resolver, log: log}
}

func (a *API) Routes(r *gin.Engine) {
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.GET("/health", a.health)
	r.GET("/anidb/ping", a.ping)
	r.GET("/files/:size/:ed2k", a.lookup)
}

func (a *API) health(c *gin.Context) {
	reason, banned := a.conn.Banned()

	status := http.StatusOK
	if banned || a.conn.State() != client.StateAuthenticated {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"state":     a.conn.State().String(),
		"banned":    banned,
		"banReason": reason,
	})
}

func (a *API) ping(c *gin.Context) {
	start := time.Now()

	if err := a.conn.Ping(c.Request.Context()); err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"latency": time.Since(start).String()})
}

func (a *API) lookup(c *gin.Context) {
	size, err := strconv.ParseInt(c.Param("size"), 10, 64)
	if err != nil || size < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "size must be a non-negative integer"})
		return
	}

	ed2k := c.Param("ed2k")
	if !isED2K(ed2k) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ed2k must be 32 hex digits"})
		return
	}

	fields, err := a.resolver.Lookup(c.Request.Context(), catalog.Identity{Size: size, ED2K: ed2k})
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, fields)
}

func (a *API) fail(c *gin.Context, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		a.log.Warn("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

// httpStatus maps client errors onto HTTP statuses.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, client.ErrNotFound):
		return http.StatusNotFound

	case client.IsBanned(err),
		errors.Is(err, client.ErrNotConnected),
		errors.Is(err, client.ErrNotAuthenticated),
		errors.Is(err, client.ErrSessionRejected):
		return http.StatusServiceUnavailable

	case errors.Is(err, client.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	default:
		return http.StatusBadGateway
	}
}

func isED2K(s string) bool {
	if len(s) != 32 {
		return false
	}

	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}

	return true
}
