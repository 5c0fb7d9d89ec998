// README: Entry point; loads config, wires module services, starts the HTTP server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"gatehouse/internal/config"
	httptransport "gatehouse/internal/http"
	"gatehouse/internal/infra"
	"gatehouse/internal/modules/lock"
	"gatehouse/internal/modules/membership"
	"gatehouse/internal/modules/policy"
	"gatehouse/internal/modules/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	policyStore := policy.NewStore(dbPool)

	membershipStore := membership.NewStore(dbPool)
	membershipSvc := membership.NewService(membershipStore, policyStore)

	lockCoordinator := lock.NewCoordinator(lock.NewRedisStore(redisClient), cfg.Lock.TTL)

	sessionStore := session.NewStore(dbPool)
	sessionSvc := session.NewService(sessionStore, policyStore, membershipSvc, lockCoordinator)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Session:       sessionSvc,
		Membership:    membershipSvc,
		Policies:      policyStore,
		Locks:         lockCoordinator,
		JWTSecret:     cfg.Auth.JWTSecret,
		RatePerSecond: cfg.Rate.PerSecond,
		RateBurst:     cfg.Rate.Burst,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	log.Printf("gatehouse listening on %s", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
