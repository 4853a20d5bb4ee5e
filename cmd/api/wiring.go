package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"call-relay/internal/audit"
	"call-relay/internal/callflow"
	"call-relay/internal/calls"
	"call-relay/internal/config"
	"call-relay/internal/telephony"
	"call-relay/pkg/logger"
	"call-relay/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// backends holds the stores the call flow writes to. Without Postgres runs
// live in memory; without Redis there is no cross-process in-flight gate.
type backends struct {
	store calls.RunStore
	audit *audit.Service
	gate  callflow.Gate

	db  *sql.DB
	rdb *redis.Client
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	log := logger.From(ctx)
	b := &backends{
		store: calls.NewMemoryStore(),
		audit: audit.NewService(audit.NewMemoryRepo()),
	}

	if cfg.DatabaseEnabled() {
		db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		b.db = db
		if err := calls.EnsureSchema(ctx, db); err != nil {
			b.Close()
			return nil, err
		}
		b.store = calls.NewPostgresStore(db)
		b.audit = audit.NewService(audit.NewPostgresRepo(db))
	} else {
		log.Warn("DB_HOST not set, call runs are kept in memory and will not resume after restart")
	}

	if cfg.RedisEnabled() {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			b.Close()
			return nil, err
		}
		b.rdb = rdb
		b.gate = utils.NewLeaseGate(rdb)
	}
	return b, nil
}

func (b *backends) Close() {
	if b.rdb != nil {
		_ = b.rdb.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}

func buildSMS(cfg config.Config) telephony.SMSSender {
	if !cfg.SMSEnabled() {
		return nil
	}
	return telephony.NewTwilioSMS(telephony.TwilioConfig{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		FromNumber: cfg.Twilio.FromNumber,
	})
}

func buildOrchestrator(cfg config.Config, b *backends) (*callflow.Orchestrator, error) {
	provider, err := telephony.NewBlandClient(telephony.BlandConfig{
		BaseURL:      cfg.Provider.BaseURL,
		APIKey:       cfg.Provider.APIKey,
		DispatchPath: cfg.Provider.DispatchPath,
		LogsPath:     cfg.Provider.LogsPath,
		Timeout:      cfg.Provider.Timeout,
		RPS:          cfg.Provider.RPS,
		Burst:        cfg.Provider.Burst,
	}, nil)
	if err != nil {
		return nil, err
	}

	var scriptText string
	if cfg.Flow.ScriptFile != "" {
		raw, err := os.ReadFile(cfg.Flow.ScriptFile)
		if err != nil {
			return nil, fmt.Errorf("read CALL_SCRIPT_FILE: %w", err)
		}
		scriptText = string(raw)
	}
	script, err := callflow.ParseScript(scriptText)
	if err != nil {
		return nil, err
	}

	phone := callflow.PhonePolicy{CountryCode: cfg.Flow.PhoneCountryCode, NationalDigits: cfg.Flow.PhoneNationalDigits}
	return callflow.New(callflow.Config{
		DispatchMaxAttempts: cfg.Flow.DispatchMaxAttempts,
		PollInterval:        cfg.Flow.PollInterval,
		PollMaxAttempts:     cfg.Flow.PollMaxAttempts,
		DefaultDestination:  cfg.Forward.URL,
		RequireCalendarID:   cfg.Flow.RequireCalendarID,
		InFlightTTL:         cfg.Flow.InFlightTTL,
	}, callflow.Deps{
		Dispatcher: &callflow.Dispatcher{
			Provider: provider,
			Phone:    phone,
			Options: callflow.DispatchOptions{
				Summarize: cfg.Provider.Summarize,
				Record:    cfg.Provider.Record,
				Voice:     cfg.Provider.Voice,
				From:      cfg.Provider.From,
			},
		},
		Poller:     &callflow.Poller{Provider: provider},
		Classifier: callflow.Classifier{MinAnswered: cfg.Flow.MinAnswered},
		Forwarder:  callflow.NewForwarder(cfg.Forward.Timeout),
		Script:     script,
		Store:      b.store,
		Gate:       b.gate,
		Recorder:   callflow.AuditAdapter{Audit: b.audit},
	})
}
