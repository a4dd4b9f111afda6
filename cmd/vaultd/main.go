/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeops-vault/vault/internal/api"
	"github.com/codeops-vault/vault/internal/audit"
	"github.com/codeops-vault/vault/internal/config"
	"github.com/codeops-vault/vault/internal/crypto/envelope"
	"github.com/codeops-vault/vault/internal/identity"
	"github.com/codeops-vault/vault/internal/lease"
	leasepg "github.com/codeops-vault/vault/internal/lease/postgres"
	"github.com/codeops-vault/vault/internal/metrics"
	"github.com/codeops-vault/vault/internal/policy"
	policypg "github.com/codeops-vault/vault/internal/policy/postgres"
	"github.com/codeops-vault/vault/internal/rotation"
	rotationpg "github.com/codeops-vault/vault/internal/rotation/postgres"
	"github.com/codeops-vault/vault/internal/scheduler"
	"github.com/codeops-vault/vault/internal/seal"
	"github.com/codeops-vault/vault/internal/seal/autounseal"
	"github.com/codeops-vault/vault/internal/secret"
	secretpg "github.com/codeops-vault/vault/internal/secret/postgres"
	storepg "github.com/codeops-vault/vault/internal/store/postgres"
	"github.com/codeops-vault/vault/internal/transit"
	transitpg "github.com/codeops-vault/vault/internal/transit/postgres"
	"github.com/codeops-vault/vault/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML config file (VAULT_* env vars always take precedence)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, syncLog, err := logging.NewLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer syncLog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresConn)
	if err != nil {
		return fmt.Errorf("creating postgres pool: %w", err)
	}
	defer pool.Close()

	migrator, err := storepg.NewMigrator(cfg.PostgresConn, log)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	_ = migrator.Close()
	log.V(1).Info("migrations complete")

	sealSvc, err := buildSealService(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("creating seal service: %w", err)
	}

	identityAdapter, err := identity.New(cfg.SigningKey)
	if err != nil {
		return fmt.Errorf("creating identity adapter: %w", err)
	}

	crypt := &lazyEngine{seal: sealSvc, log: log}

	secretSvc := secret.New(secretpg.New(pool), crypt, nil)
	transitSvc := transit.New(transitpg.New(pool), crypt, nil)

	leaseBackend := lease.NewNoopBackend()
	if cfg.ExecuteSQLLeases {
		leaseBackend = lease.NewSQLBackend()
	}
	leaseSvc := lease.New(leasepg.New(pool), secretSvc, crypt, leaseBackend, log, nil)

	rotationSvc := rotation.New(rotationpg.New(pool), secretSvc, log, nil)

	policyStore := policypg.New(pool)
	policyEval := policy.New(policyStore)

	auditMetrics := metrics.NewAuditMetrics()
	auditSink := audit.New(pool, log, auditMetrics, audit.Config{})
	defer func() { _ = auditSink.Close() }()

	sched := scheduler.New(rotationSvc, leaseSvc, log)
	sched.Start()
	defer sched.Stop()

	handler := api.NewRouter(api.Deps{
		Secrets:         secretSvc,
		Transit:         transitSvc,
		Leases:          leaseSvc,
		Rotation:        rotationSvc,
		PolicyStore:     policyStore,
		PolicyEvaluator: policyEval,
		Seal:            sealSvc,
		AuditSink:       auditSink,
		Identity:        identityAdapter,
		Log:             log,
	})

	apiSrv := &http.Server{Addr: cfg.APIAddr, Handler: handler}
	healthSrv := newHealthServer(cfg.HealthAddr, pool)
	metricsSrv := newMetricsServer(cfg.MetricsAddr)

	startHTTPServer(log, "api", cfg.APIAddr, apiSrv)
	startHTTPServer(log, "health", cfg.HealthAddr, healthSrv)
	startHTTPServer(log, "metrics", cfg.MetricsAddr, metricsSrv)

	log.Info("vaultd ready", "api", cfg.APIAddr, "health", cfg.HealthAddr, "metrics", cfg.MetricsAddr, "autoUnseal", cfg.AutoUnseal)

	<-ctx.Done()
	log.Info("shutting down")
	shutdownServers(log, apiSrv, healthSrv, metricsSrv)
	return nil
}

// buildSealService constructs the seal.Service, wiring a cloud-KMS
// auto-unseal provider when configured.
func buildSealService(ctx context.Context, cfg config.Config, log logr.Logger) (*seal.Service, error) {
	sealCfg := seal.Config{
		MasterKey:   []byte(cfg.MasterKey),
		TotalShares: cfg.TotalShares,
		Threshold:   cfg.Threshold,
		AutoUnseal:  cfg.AutoUnseal,
	}

	if cfg.AutoUnseal {
		km, err := autounseal.NewKeyManager(autounseal.KeyManagerConfig{
			Type:     autounseal.KeyManagerType(cfg.KMSType),
			KeyID:    cfg.KMSKeyID,
			VaultURL: cfg.KMSVaultURL,
		})
		if err != nil {
			return nil, fmt.Errorf("creating auto-unseal key manager: %w", err)
		}
		sealCfg.Provider = autounseal.NewProvider(km)
	}

	return seal.New(ctx, sealCfg, log)
}

// lazyEngine defers constructing the real envelope.Engine until the vault
// is first used for encryption: the master key is only available from
// seal.Service once UNSEALED, which happens after this process starts when
// Shamir reconstruction is in play. Handlers reach a domain service only
// through sealGateMiddleware, but the scheduler's sweeps do not, so resolve
// checks RequireUnsealed itself and returns the sealed error instead of
// letting MasterKey() panic.
type lazyEngine struct {
	seal *seal.Service
	log  logr.Logger

	engine *envelope.Engine
}

func (e *lazyEngine) resolve() (*envelope.Engine, error) {
	if err := e.seal.RequireUnsealed(); err != nil {
		return nil, err
	}
	if e.engine != nil {
		return e.engine, nil
	}
	eng, err := envelope.New(string(e.seal.MasterKey()), e.log)
	if err != nil {
		return nil, err
	}
	e.engine = eng
	return eng, nil
}

func (e *lazyEngine) Encrypt(plaintext []byte) (string, error) {
	eng, err := e.resolve()
	if err != nil {
		return "", err
	}
	return eng.Encrypt(plaintext)
}

func (e *lazyEngine) Decrypt(env string) ([]byte, error) {
	eng, err := e.resolve()
	if err != nil {
		return nil, err
	}
	return eng.Decrypt(env)
}

func (e *lazyEngine) EncryptWithKey(plaintext []byte, keyID string, keyBytes []byte) (string, error) {
	eng, err := e.resolve()
	if err != nil {
		return "", err
	}
	return eng.EncryptWithKey(plaintext, keyID, keyBytes)
}

func (e *lazyEngine) DecryptWithKey(env string, keyBytes []byte) ([]byte, error) {
	eng, err := e.resolve()
	if err != nil {
		return nil, err
	}
	return eng.DecryptWithKey(env, keyBytes)
}

func (e *lazyEngine) GenerateDataKey() ([]byte, error) {
	eng, err := e.resolve()
	if err != nil {
		return nil, err
	}
	return eng.GenerateDataKey()
}

func startHTTPServer(log logr.Logger, name, addr string, srv *http.Server) {
	go func() {
		log.Info("starting server", "server", name, "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "server error", "server", name)
		}
	}()
}

func shutdownServers(log logr.Logger, servers ...*http.Server) {
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutCtx); err != nil {
			log.Error(err, "server shutdown error", "addr", srv.Addr)
		}
	}
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}

func newHealthServer(addr string, pool *pgxpool.Pool) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("postgres unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{Addr: addr, Handler: mux}
}
