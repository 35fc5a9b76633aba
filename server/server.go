package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dbguardian/dbguardian/config"
	"github.com/dbguardian/dbguardian/log"
	"github.com/dbguardian/dbguardian/metrics"
	"github.com/dbguardian/dbguardian/router"
)

type ApiServer struct {
	config *config.GuardianConfig
	svr    *http.Server
}

func NewApiServer(config *config.GuardianConfig) *ApiServer {
	server := &ApiServer{}
	server.config = config
	return server
}

func (server *ApiServer) Start() error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// add log middleware
	r.Use(ginLoggerToFile())

	// http://127.0.0.1:8816/debug/pprof/
	if server.config.Server.Pprof {
		pprof.Register(r)
	}

	metrics.Register()
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	groupApi := r.Group("/api")
	groupV1 := groupApi.Group("/v1")
	router.InitRouterV1(groupV1)

	bind := fmt.Sprintf("%s:%d", server.config.Server.Ip, server.config.Server.Port)
	server.svr = &http.Server{
		Addr:         bind,
		WriteTimeout: time.Second * 300,
		ReadTimeout:  time.Second * 300,
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}

	go func() {
		if err := server.svr.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger.Fatalf("start http server fail: %s", err.Error())
		}
	}()

	return nil
}

func (server *ApiServer) Stop() error {
	waitTimeout := time.Duration(time.Second * 10)
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	return server.svr.Shutdown(ctx)
}

func ginLoggerToFile() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latencyTime := time.Since(startTime)
		reqMethod := c.Request.Method
		reqUri := c.Request.RequestURI
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		if statusCode < http.StatusBadRequest {
			log.Logger.Infof("| %3d | %13v | %15s | %s | %s",
				statusCode,
				latencyTime,
				clientIP,
				reqMethod,
				reqUri,
			)
		} else {
			log.Logger.Errorf("| %3d | %13v | %15s | %s | %s",
				statusCode,
				latencyTime,
				clientIP,
				reqMethod,
				reqUri,
			)
		}
	}
}
