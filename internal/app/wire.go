package app

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/notarium/notarium/internal/accounting"
	"github.com/notarium/notarium/internal/accounting/reports"
	"github.com/notarium/notarium/internal/acts"
	"github.com/notarium/notarium/internal/shared"
)

// LedgerDeps carries the optional collaborators of the ledger service.
type LedgerDeps struct {
	Redis   *redis.Client
	Metrics accounting.MetricsPort
}

// NewLedgerService assembles the accounting service shared by the binaries.
func NewLedgerService(cfg *Config, pool *pgxpool.Pool, deps LedgerDeps) *accounting.Service {
	service := accounting.NewService(accounting.NewRepository(pool), shared.NewAuditLogger(pool), LedgerConfig(cfg))
	if deps.Redis != nil {
		service.WithReportCache(reports.NewCache(deps.Redis, cfg.ReportCacheTTL))
	}
	if deps.Metrics != nil {
		service.WithMetrics(deps.Metrics)
	}
	return service
}

// LedgerConfig translates runtime settings into posting behaviour.
func LedgerConfig(cfg *Config) accounting.ServiceConfig {
	if cfg == nil {
		return accounting.ServiceConfig{}
	}
	return accounting.ServiceConfig{
		MobileMoneyRoute: accounting.PaymentRoute(cfg.MobileMoneyRoute),
		InvoicePosting:   accounting.InvoicePosting(cfg.InvoicePosting),
	}
}

// NewSigner returns the signing provider selected by SIGNING_MODE.
func NewSigner(cfg *Config) (acts.SigningProvider, error) {
	if cfg == nil {
		return acts.PlaceholderSigner{}, nil
	}
	switch cfg.SigningMode {
	case "", "placeholder":
		return acts.PlaceholderSigner{}, nil
	case "digest":
		signer, err := acts.NewDigestSigner([]byte(cfg.SigningKey))
		if err != nil {
			return nil, err
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("app: unknown signing mode %q", cfg.SigningMode)
	}
}

// NewActsService assembles the act lifecycle service.
func NewActsService(cfg *Config, pool *pgxpool.Pool, metrics acts.MetricsPort) (*acts.Service, error) {
	signer, err := NewSigner(cfg)
	if err != nil {
		return nil, err
	}
	vault := acts.NewFSVault(cfg.ArchiveGeneratedDir, cfg.ArchiveVaultDir)
	service := acts.NewService(acts.NewRepository(pool), shared.NewAuditLogger(pool), signer, vault)
	if metrics != nil {
		service.WithMetrics(metrics)
	}
	return service, nil
}
