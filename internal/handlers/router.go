package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wager/internal/config"
	"wager/internal/db"
	"wager/internal/middleware"
	"wager/internal/store"
	"wager/internal/websocket"
)

const (
	RoleModerator = store.RoleModerator
	RoleTreasurer = store.RoleTreasurer
	RoleOperator  = store.RoleOperator
)

// Deps carries everything the API serves from.
type Deps struct {
	Config       config.Config
	Logger       *slog.Logger
	TxRunner     db.TxRunner
	Ledger       Ledger
	Transactions TransactionStore
	Matcher      Matcher
	Contests     Contests
	Proofs       Proofs
	Steals       Steals
	Debts        Debts
	Sweeps       Sweeps
	Admin        AdminStore
	Transitions  TransitionStore
	Hub          *websocket.Hub
}

type Handler struct {
	cfg          config.Config
	logger       *slog.Logger
	txRunner     db.TxRunner
	ledger       Ledger
	transactions TransactionStore
	matcher      Matcher
	contests     Contests
	proofs       Proofs
	steals       Steals
	debts        Debts
	sweeps       Sweeps
	admin        AdminStore
	transitions  TransitionStore
	hub          *websocket.Hub
	now          func() time.Time
}

func New(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:          deps.Config,
		logger:       logger,
		txRunner:     deps.TxRunner,
		ledger:       deps.Ledger,
		transactions: deps.Transactions,
		matcher:      deps.Matcher,
		contests:     deps.Contests,
		proofs:       deps.Proofs,
		steals:       deps.Steals,
		debts:        deps.Debts,
		sweeps:       deps.Sweeps,
		admin:        deps.Admin,
		transitions:  deps.Transitions,
		hub:          deps.Hub,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.NewStructuredLogger(h.logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.Origins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/proof-grants/{token}", h.OpenProofGrant)
	router.Get("/ws/events", h.WSEvents)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Use(middleware.Activity(h.ledger, h.logger))

		r.Get("/accounts/me", h.Me)
		r.Get("/accounts/me/transactions", h.MyTransactions)
		r.Get("/accounts/me/self-check", h.SelfCheck)

		r.Post("/propositions/{id}/votes", h.CastVote)

		r.Route("/contests/{id}", func(r chi.Router) {
			r.Post("/proof", h.SubmitProof)
			r.Post("/views", h.ViewProof)
			r.Post("/review", h.StartReview)
			r.Post("/dispute", h.Dispute)
			r.Post("/resolve", h.ResolveContest)
			r.Post("/forfeit", h.Forfeit)
		})

		r.Post("/steals", h.InitiateSteal)
		r.Route("/steals/{id}", func(r chi.Router) {
			r.Post("/minigame", h.CompleteMinigame)
			r.Post("/defend", h.Defend)
			r.Post("/resolve", h.ResolveSteal)
		})

		r.Post("/debts", h.Borrow)
		r.Post("/debts/{id}/repay", h.Repay)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.With(middleware.RequireAdmin(h.admin, RoleModerator)).Post("/propositions", h.AdminCreateProposition)
		r.With(middleware.RequireAdmin(h.admin, RoleModerator)).Post("/contests/{id}/resolve", h.AdminResolveContest)
		r.With(middleware.RequireAdmin(h.admin, RoleTreasurer)).Post("/allowances", h.GrantAllowance)
		r.With(middleware.RequireAdmin(h.admin, RoleTreasurer)).Get("/reconcile", h.Reconcile)
		r.With(middleware.RequireAdmin(h.admin, RoleTreasurer)).Get("/transitions", h.ListTransitions)
		r.With(middleware.RequireAdmin(h.admin, RoleOperator)).Post("/sweeps/{name}", h.RunSweep)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/promote", h.PromoteAdmin)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/roles/grant", h.GrantRole)
	})
	return router
}
