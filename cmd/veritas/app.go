package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"

	"veritas/internal/admin"
	"veritas/internal/attestation"
	attstore "veritas/internal/attestation/store"
	compliancehandler "veritas/internal/compliance/handler"
	compliancemetrics "veritas/internal/compliance/metrics"
	complmodels "veritas/internal/compliance/models"
	complianceservice "veritas/internal/compliance/service"
	compliancestore "veritas/internal/compliance/store"
	consensushandler "veritas/internal/consensus/handler"
	consensusmetrics "veritas/internal/consensus/metrics"
	"veritas/internal/consensus/policy"
	consensusservice "veritas/internal/consensus/service"
	consensusstore "veritas/internal/consensus/store"
	jwttoken "veritas/internal/jwt_token"
	oraclehandler "veritas/internal/oracle/handler"
	oraclemetrics "veritas/internal/oracle/metrics"
	oraclemodels "veritas/internal/oracle/models"
	oracleservice "veritas/internal/oracle/service"
	oraclestore "veritas/internal/oracle/store"
	"veritas/internal/platform/config"
	httpmetrics "veritas/internal/platform/metrics"
	"veritas/internal/platform/postgres"
	"veritas/internal/platform/redis"
	"veritas/internal/sweeper"
	httptransport "veritas/internal/transport/http"
	"veritas/pkg/domain"
	"veritas/pkg/platform/access"
	audit "veritas/pkg/platform/audit"
	"veritas/pkg/platform/audit/publisher"
	"veritas/pkg/platform/audit/store/fallback"
	kafkasink "veritas/pkg/platform/audit/store/kafka"
	"veritas/pkg/platform/audit/store/memory"
	auditoutbox "veritas/pkg/platform/audit/store/postgres"
	"veritas/pkg/platform/audit/worker"
	"veritas/pkg/platform/circuit"
	"veritas/pkg/platform/tx"
)

// app is the wired process: the API handler plus the background loops
// that run next to it.
type app struct {
	router  http.Handler
	sweeper *sweeper.Sweeper
	relay   *worker.Worker
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// stores groups the backends selected by cfg.Storage.
type stores struct {
	oracles      oracleservice.Store
	queries      consensusservice.Store
	lists        complianceservice.Store
	attestations complianceservice.AttestationLog
	audit        audit.Store
	outbox       *auditoutbox.Store
	db           *sql.DB
	health       map[string]httptransport.HealthCheck
}

func buildApp(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	adminAddr, err := domain.ParseAddress(cfg.AdminAddress)
	if err != nil {
		return nil, fmt.Errorf("admin address: %w", err)
	}

	st, err := openStores(ctx, cfg, a, logger)
	if err != nil {
		return nil, err
	}

	auditSink := st.audit
	if st.outbox == nil && len(cfg.Audit.KafkaBrokers) > 0 {
		client, err := kafkasink.NewClient(cfg.Audit.KafkaBrokers, "veritas")
		if err != nil {
			return nil, fmt.Errorf("kafka client: %w", err)
		}
		a.closers = append(a.closers, closeKafka(client))
		auditSink = fallback.New(kafkasink.NewSink(client, cfg.Audit.Topic), st.audit,
			circuit.New("kafka-audit"), logger)
	}
	if st.outbox != nil && len(cfg.Audit.KafkaBrokers) > 0 {
		client, err := kafkasink.NewClient(cfg.Audit.KafkaBrokers, "veritas-relay")
		if err != nil {
			return nil, fmt.Errorf("kafka client: %w", err)
		}
		a.closers = append(a.closers, closeKafka(client))
		a.relay = worker.NewWorker(st.outbox, kafkasink.NewSink(client, cfg.Audit.Topic), cfg.Audit.RelayInterval, logger)
	}

	failed := promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "veritas_audit_publish_failures_total",
		Help: "Audit events the sink rejected",
	})
	auditPub := publisher.NewPublisher(auditSink,
		publisher.WithLogger(logger),
		publisher.WithFailureCounter(failed),
	)
	a.closers = append(a.closers, auditPub.Close)

	coord := tx.New(tx.WithDB(st.db))
	ctrl, err := access.New(adminAddr, access.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	registry, err := oracleservice.New(st.oracles, ctrl,
		oracleservice.WithLogger(logger),
		oracleservice.WithAuditPublisher(auditPub),
		oracleservice.WithMetrics(oraclemetrics.NewWith(reg)),
		oracleservice.WithLimits(oraclemodels.Limits{
			MinReputation: cfg.Registry.MinReputation,
			MaxReputation: cfg.Registry.MaxReputation,
			DefaultWeight: cfg.Registry.DefaultWeight,
			MaxOracles:    cfg.Registry.MaxOracles,
		}),
		oracleservice.WithTx(coord),
	)
	if err != nil {
		return nil, err
	}

	consensus, err := consensusservice.New(st.queries, registry, attestation.NewVerifier(cfg.ChainID, registry), ctrl,
		consensusservice.WithLogger(logger),
		consensusservice.WithAuditPublisher(auditPub),
		consensusservice.WithMetrics(consensusmetrics.NewWith(reg)),
		consensusservice.WithTx(coord),
		consensusservice.WithCountPolicy(policy.NewCount(cfg.Consensus.CountThreshold)),
		consensusservice.WithWeightedPolicy(policy.NewWeighted(
			cfg.Consensus.WeightedThresholdPercent, cfg.Consensus.MinOracles, cfg.Consensus.QueryExpiry)),
		consensusservice.WithTracer(otel.Tracer("veritas/consensus")),
	)
	if err != nil {
		return nil, err
	}

	lists, err := complianceservice.New(st.lists, consensus, registry, st.attestations, ctrl,
		complianceservice.WithLogger(logger),
		complianceservice.WithAuditPublisher(auditPub),
		complianceservice.WithMetrics(compliancemetrics.NewWith(reg)),
		complianceservice.WithTx(coord),
		complianceservice.WithDurations(complmodels.Durations{
			Whitelist: cfg.Lists.WhitelistDuration,
			Low:       cfg.Lists.LowDuration,
			Medium:    cfg.Lists.MediumDuration,
			High:      cfg.Lists.HighDuration,
			Critical:  cfg.Lists.CriticalDuration,
			Emergency: cfg.Lists.EmergencyDuration,
		}),
	)
	if err != nil {
		return nil, err
	}

	jwt := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	a.router = httptransport.NewRouter(httptransport.Options{
		Modules: []httptransport.Module{
			oraclehandler.New(registry, logger),
			consensushandler.New(consensus, logger),
			compliancehandler.New(lists, consensus, logger),
			admin.New(ctrl, coord, logger),
		},
		Validator: jwttoken.NewJWTServiceAdapter(jwt),
		Metrics:   httpmetrics.NewWith(reg),
		Health:    st.health,
		Logger:    logger,
	})

	if cfg.Sweeper.Enabled {
		a.sweeper = sweeper.New(consensus, lists, cfg.Sweeper.Interval, cfg.Sweeper.Batch, sweeper.WithLogger(logger))
	}
	return a, nil
}

func openStores(ctx context.Context, cfg *config.Config, a *app, logger *slog.Logger) (*stores, error) {
	st := &stores{health: map[string]httptransport.HealthCheck{}}

	switch cfg.Storage {
	case config.StoragePostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := postgres.Migrate(db); err != nil {
			return nil, err
		}
		pool, err := postgres.OpenPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closePool(pool))

		st.db = db
		st.oracles = oraclestore.NewPostgres(db)
		st.lists = compliancestore.NewPostgres(db)
		st.attestations = attstore.NewPostgres(pool)
		st.outbox = auditoutbox.New(db)
		st.audit = st.outbox
		st.health["postgres"] = db.PingContext
		logger.InfoContext(ctx, "using postgres storage")
	default:
		st.oracles = oraclestore.NewInMemory()
		st.lists = compliancestore.NewInMemory()
		st.attestations = attstore.NewInMemory()
		st.audit = memory.NewInMemoryStore()
	}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client != nil {
		a.closers = append(a.closers, client.Close)
		st.queries = consensusstore.NewRedis(client.Client, client.Prefix)
		st.health["redis"] = client.Health
		logger.InfoContext(ctx, "using redis query store")
	} else {
		st.queries = consensusstore.NewInMemory()
	}
	return st, nil
}

func closeKafka(client *kgo.Client) func() error {
	return func() error {
		client.Close()
		return nil
	}
}

func closePool(pool *pgxpool.Pool) func() error {
	return func() error {
		pool.Close()
		return nil
	}
}
