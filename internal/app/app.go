// Package app wires stores, services and publishers for every binary.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jmoiron/sqlx"

	"wager/internal/artifact"
	"wager/internal/auth"
	"wager/internal/config"
	"wager/internal/db"
	"wager/internal/handlers"
	"wager/internal/metrics"
	"wager/internal/notify"
	"wager/internal/scheduler"
	"wager/internal/services"
	"wager/internal/store"
	"wager/internal/websocket"
)

type App struct {
	Config   config.Config
	Policy   config.Policy
	Logger   *slog.Logger
	DB       *sqlx.DB
	TxRunner *db.SQLXTxRunner

	Accounts     *store.AccountStore
	Transactions *store.TransactionStore
	Admin        *store.AdminStore
	Transitions  *store.TransitionStore
	Outbox       *store.OutboxStore
	Artifacts    *artifact.FileStore

	Ledger   *services.LedgerService
	Matcher  *services.MatcherService
	Contests *services.ContestService
	Proofs   *services.ProofService
	Steals   *services.StealService
	Debts    *services.DebtService
	Sweeper  *services.Sweeper

	Hub   *websocket.Hub
	Relay *notify.Relay
}

// Build connects to the database and assembles the service graph. The caller
// owns the returned App and must Close it.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	artifacts, err := artifact.NewFileStore(cfg.ArtifactDir)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	signer, err := auth.NewGrantSigner(cfg.JWTSecret, cfg.ProofGrantTTL)
	if err != nil {
		return nil, fmt.Errorf("grant signer: %w", err)
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	runner := db.NewTxRunner(database)
	runner.OnRetry = func(attempt int, err error) {
		metrics.TxRetries.Inc()
		logger.Debug("retrying transaction", "attempt", attempt, "error", err)
	}

	a := &App{
		Config:       cfg,
		Policy:       policy,
		Logger:       logger,
		DB:           database,
		TxRunner:     runner,
		Accounts:     store.NewAccountStore(database),
		Transactions: store.NewTransactionStore(database),
		Admin:        store.NewAdminStore(database),
		Transitions:  store.NewTransitionStore(database),
		Outbox:       store.NewOutboxStore(database),
		Artifacts:    artifacts,
		Hub:          websocket.NewHub(),
	}
	stores := services.Stores{
		Accounts:     a.Accounts,
		Transactions: a.Transactions,
		Ledger:       store.NewLedgerStore(database),
		Propositions: store.NewPropositionStore(database),
		Contests:     store.NewContestStore(database),
		Proofs:       store.NewProofStore(database),
		Steals:       store.NewStealStore(database),
		Debts:        store.NewDebtStore(database),
		Outbox:       a.Outbox,
		Transitions:  a.Transitions,
	}

	a.Ledger = services.NewLedgerService(runner, stores.Accounts, stores.Transactions, stores.Ledger)
	a.Ledger.SetSeizurePolicy(services.NewRepoSeizurePolicy(stores.Debts, a.Ledger, policy.Debt))
	a.Proofs = services.NewProofService(runner, stores.Proofs, signer, artifacts, policy.Proof)
	a.Matcher = services.NewMatcherService(runner, stores, a.Ledger, policy.Contest)
	a.Contests = services.NewContestService(runner, stores, a.Ledger, a.Proofs)
	a.Steals = services.NewStealService(runner, stores, a.Ledger, nil, policy.Steal)
	a.Debts = services.NewDebtService(runner, stores, a.Ledger, policy.Debt)
	a.Sweeper = services.NewSweeper(logger, a.Matcher, a.Contests, a.Proofs, a.Steals, a.Debts)

	publisher, err := a.publisher(ctx)
	if err != nil {
		database.Close()
		return nil, err
	}
	a.Relay = notify.NewRelay(a.Outbox, publisher, logger)
	return a, nil
}

// publisher always delivers to live sockets and adds SQS when a queue is set.
func (a *App) publisher(ctx context.Context) (notify.Publisher, error) {
	hub := notify.HubPublisher{Hub: a.Hub}
	if a.Config.EventsQueueURL == "" {
		return hub, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	queue := notify.NewSQSPublisher(sqs.NewFromConfig(awsCfg), a.Config.EventsQueueURL)
	a.Logger.Info("publishing events to sqs", "queue_url", a.Config.EventsQueueURL)
	return notify.Fanout{hub, queue}, nil
}

// Handler builds the HTTP API over the wired services.
func (a *App) Handler() *handlers.Handler {
	return handlers.New(handlers.Deps{
		Config:       a.Config,
		Logger:       a.Logger,
		TxRunner:     a.TxRunner,
		Ledger:       a.Ledger,
		Transactions: a.Transactions,
		Matcher:      a.Matcher,
		Contests:     a.Contests,
		Proofs:       a.Proofs,
		Steals:       a.Steals,
		Debts:        a.Debts,
		Sweeps:       a.Sweeper,
		Admin:        a.Admin,
		Transitions:  a.Transitions,
		Hub:          a.Hub,
	})
}

func (a *App) Close() error {
	return a.DB.Close()
}

// relayInterval is how often committed events are pushed out.
const relayInterval = time.Second

// Schedule registers every sweep and the outbox relay as background tasks.
func (a *App) Schedule(s *scheduler.Scheduler) {
	for _, name := range a.Sweeper.Names() {
		s.AddTask("sweep:"+name, a.Config.SweepInterval, func(ctx context.Context) error {
			_, err := a.Sweeper.Run(ctx, name)
			return err
		})
	}
	s.AddTask("outbox-relay", relayInterval, a.Relay.Run)
}
