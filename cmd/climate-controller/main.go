package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/climate-controller/db"
	"github.com/thatsimonsguy/climate-controller/internal/api"
	"github.com/thatsimonsguy/climate-controller/internal/broker"
	"github.com/thatsimonsguy/climate-controller/internal/config"
	"github.com/thatsimonsguy/climate-controller/internal/controllers/unitcontroller"
	"github.com/thatsimonsguy/climate-controller/internal/datadog"
	"github.com/thatsimonsguy/climate-controller/internal/entity"
	"github.com/thatsimonsguy/climate-controller/internal/eventloop"
	"github.com/thatsimonsguy/climate-controller/internal/hass"
	"github.com/thatsimonsguy/climate-controller/internal/logging"
	"github.com/thatsimonsguy/climate-controller/internal/metrics"
	"github.com/thatsimonsguy/climate-controller/internal/mqtt"
	"github.com/thatsimonsguy/climate-controller/internal/notifications"
	"github.com/thatsimonsguy/climate-controller/internal/orchestrator"
	"github.com/thatsimonsguy/climate-controller/internal/relay"
	"github.com/thatsimonsguy/climate-controller/internal/status"
	"github.com/thatsimonsguy/climate-controller/system/shutdown"
)

func main() {
	rt, err := config.LoadRuntime()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid runtime configuration")
	}

	climate, err := config.LoadClimate(rt.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", rt.ConfigFile).Msg("Invalid climate configuration")
	}

	logging.Init(climate.LogLevel(rt.Level()), rt.LogFile)

	log.Info().
		Str("config", rt.ConfigFile).
		Str("db", rt.DBPath).
		Str("broker", rt.Broker).
		Msg("Starting climate controller")

	if rt.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED - relay lines are not driven")
	}

	var closers []io.Closer

	conn, err := db.Open(rt.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	store := db.NewStore(conn)

	cache := entity.NewCache(store)
	if records, err := store.LoadEntityStates(); err != nil {
		log.Warn().Err(err).Msg("Failed to load stored entity states, starting cold")
	} else {
		cache.Load(records)
		log.Info().Int("entities", cache.Len()).Msg("Entity cache warmed from database")
	}

	var dd *datadog.Client
	if rt.EnableDatadog {
		dd, err = datadog.New(rt.DDAgentAddr, rt.DDNamespace, rt.DDTags)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	m := metrics.New(reg, dd)

	tracker := status.NewTracker(time.Now())
	notifier := notifications.New(rt.NtfyTopic, "")

	bank, err := relay.NewBank(climate.Relays, relay.OpenLine, rt.SafeMode)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to request relay lines")
	}

	hassClient := hass.New(rt.HassAddress, rt.HassToken)
	commander := &relay.Commander{Bank: bank, Next: hassClient}

	if rt.EmbeddedBroker != "" {
		b, err := broker.Start(rt.EmbeddedBroker)
		if err != nil {
			shutdown.ShutdownWithError(err, "Failed to start embedded broker", nil, bank, conn)
		}
		closers = append(closers, b)
	}

	loop := eventloop.New(256)
	var orch *orchestrator.Orchestrator

	mqttClient, err := mqtt.NewRealClient(mqtt.Options{
		Broker:            rt.Broker,
		ClientID:          rt.ClientID,
		StatestreamPrefix: rt.StatestreamPrefix,
		StatusPrefix:      rt.StatusPrefix,
		OnReconnect: func() {
			go loop.Post(func() { orch.RecomputeAll() })
		},
	})
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to connect to MQTT broker", nil, bank, append([]io.Closer{conn}, closers...)...)
	}
	// closed in reverse order of creation
	closers = append([]io.Closer{mqttClient}, closers...)
	tracker.SetConnectionCheck(mqttClient.IsConnected)

	orch = orchestrator.New(climate, orchestrator.Deps{
		Cache:     cache,
		Commander: commander,
		Scheduler: loop,
		Observers: []unitcontroller.Observer{tracker, m, store, mqttClient, notifier},
	})

	tracker.SetRejected(orch.Rejected())
	if len(orch.Rejected()) > 0 && notifier != nil {
		go func() {
			msg := errors.Join(orch.Rejected()...).Error()
			if err := notifier.Send("Climate units rejected", msg); err != nil {
				log.Warn().Err(err).Msg("Failed to send notification")
			}
		}()
	}
	if len(orch.Units()) == 0 {
		log.Warn().Msg("No valid climate units configured")
	}

	if n, err := db.PruneEntityStates(conn, orch.Entities()); err != nil {
		log.Warn().Err(err).Msg("Failed to prune stored entity states")
	} else if n > 0 {
		log.Info().Int64("removed", n).Msg("Pruned stale entity states")
	}

	primeEntities(hassClient, cache, orch.Entities())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go loop.Run(ctx)
	loop.Post(orch.Start)

	subscribeStatestream(mqttClient, loop, orch)

	if rt.HTTPAddr != "" {
		srv := api.NewServer(tracker, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := srv.Start(rt.HTTPAddr); err != nil {
				log.Error().Err(err).Msg("REST API server stopped")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	<-loop.Done()

	// the loop has stopped, controllers can be stopped from here
	closers = append(closers, dd, conn)
	shutdown.Shutdown(orch.Stop, bank, closers...)
	os.Exit(0)
}

// subscribeStatestream feeds every statestream message into the event loop.
func subscribeStatestream(client mqtt.Client, loop *eventloop.Loop, orch *orchestrator.Orchestrator) {
	if err := client.Subscribe(func(entityID, raw string) {
		loop.Post(func() { orch.HandleStateChange(entityID, raw) })
	}); err != nil {
		log.Error().Err(err).Msg("Failed to subscribe to statestream")
	}
}

// primeEntities reads the current state of every routed entity so that
// controllers start from real values instead of the warm start.
func primeEntities(client *hass.Client, cache *entity.Cache, ids []string) {
	var primed int
	for _, id := range ids {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		st, err := client.GetState(ctx, id)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("entity", id).Msg("Failed to read initial entity state")
			continue
		}
		cache.Update(id, st.State)
		primed++
	}
	log.Info().Int("primed", primed).Int("entities", len(ids)).Msg("Initial entity states loaded")
}
