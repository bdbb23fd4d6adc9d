package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"aerofarm/internal/config"
	"aerofarm/internal/db"
	"aerofarm/internal/engine"
	"aerofarm/internal/mqtt"
	"aerofarm/internal/redis"
	"aerofarm/internal/scheduler"
	"aerofarm/internal/sensors"
	"aerofarm/internal/taskqueue"
	"aerofarm/internal/utils"
	"aerofarm/internal/web"

	"github.com/pion/mdns/v2"
	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger := utils.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.NewDB(ctx, cfg.DBURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to DB")
	}
	defer database.Close()

	redisClient := redis.NewClient(cfg.RedisAddr)
	defer redisClient.Close()

	mqttClient, err := mqtt.NewClient(cfg.MQTTBroker, cfg.MQTTClientID)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to MQTT broker")
	}
	defer mqttClient.Disconnect(250)

	tasks := taskqueue.NewClient(cfg.RedisAddr)
	defer tasks.Close()

	worker := taskqueue.NewWorker(cfg.RedisAddr, database, logger)
	go func() {
		if err := worker.Run(); err != nil {
			logger.Fatal().Err(err).Msg("task worker failed")
		}
	}()

	sched := scheduler.New(tasks, logger)
	if err := sched.AddRetentionJob(cfg.Retention); err != nil {
		logger.Fatal().Err(err).Msg("invalid retention cron spec")
	}
	sched.Start()

	snapshots := sensors.NewSnapshotCache(redisClient, database, cfg.SnapshotTTL, logger)

	ingestor := sensors.NewIngestor(database, snapshots, tasks, cfg.Alerts, logger)
	if err := ingestor.Start(mqttClient); err != nil {
		logger.Fatal().Err(err).Msg("failed to subscribe to sensor readings")
	}

	publisher := mqtt.NewPublisher(mqttClient, cfg.Engine.DispatchTimeout)
	dispatcher := engine.NewDispatcher(publisher, database, logger)
	evaluator := engine.NewEvaluator(engine.Policy{
		ScheduleWindow:       cfg.Engine.ScheduleWindow,
		ScheduleRefireGuard:  cfg.Engine.ScheduleRefireGuard,
		ThresholdCooldown:    cfg.Engine.ThresholdCooldown,
		TimerDefaultInterval: cfg.Engine.TimerDefaultInterval,
		TimerMinSpacing:      cfg.Engine.TimerMinSpacing,
	})

	eng := engine.New(database, snapshots, evaluator, dispatcher, engine.Options{
		CycleInterval:   cfg.Engine.CycleInterval,
		StartupDelay:    cfg.Engine.StartupDelay,
		DispatchTimeout: cfg.Engine.DispatchTimeout,
	}, logger)

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := eng.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("engine exited with error")
		}
	}()

	webServer := web.NewServer(database)
	go func() {
		if err := webServer.Start(cfg.HTTPAddr); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	go startMDNSServer(cfg.MDNSLocalName, logger)

	<-ctx.Done()

	<-engineDone
	if err := webServer.Shutdown(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown failed")
	}
	sched.Stop()
	worker.Stop()
	logger.Info().Msg("shutdown complete")
}

// startMDNSServer advertises the controller on the LAN so devices can find
// the broker without static configuration.
func startMDNSServer(localName string, logger zerolog.Logger) {
	addr4, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddressIPv4)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to resolve UDP4 address for mDNS")
		return
	}

	addr6, err := net.ResolveUDPAddr("udp6", mdns.DefaultAddressIPv6)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to resolve UDP6 address for mDNS")
		return
	}

	l4, err := net.ListenUDP("udp4", addr4)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to listen on UDP4 for mDNS")
		return
	}

	l6, err := net.ListenUDP("udp6", addr6)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to listen on UDP6 for mDNS")
		return
	}

	_, err = mdns.Server(ipv4.NewPacketConn(l4), ipv6.NewPacketConn(l6), &mdns.Config{
		LocalNames: []string{localName},
	})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to start mDNS server")
	}
}
