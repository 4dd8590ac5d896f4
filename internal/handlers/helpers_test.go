package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"wager/internal/auth"
	"wager/internal/config"
	"wager/internal/models"
	"wager/internal/services"
	"wager/internal/store"
	"wager/internal/websocket"
)

const testSecret = "secret"

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubLedger struct {
	accountFn   func(ctx context.Context, accountID string) (models.Account, error)
	replayFn    func(ctx context.Context, accountID string) (services.ReplayResult, error)
	reconcileFn func(ctx context.Context) ([]store.BalanceDrift, error)
	allowanceFn func(ctx context.Context, accountID string, amount int64) (int64, error)
}

func (s stubLedger) Account(ctx context.Context, accountID string) (models.Account, error) {
	if s.accountFn == nil {
		return models.Account{ID: accountID, IsActive: true}, nil
	}
	return s.accountFn(ctx, accountID)
}

func (s stubLedger) Replay(ctx context.Context, accountID string) (services.ReplayResult, error) {
	if s.replayFn == nil {
		return services.ReplayResult{AccountID: accountID, Consistent: true}, nil
	}
	return s.replayFn(ctx, accountID)
}

func (s stubLedger) Reconcile(ctx context.Context) ([]store.BalanceDrift, error) {
	if s.reconcileFn == nil {
		return nil, nil
	}
	return s.reconcileFn(ctx)
}

func (s stubLedger) GrantAllowance(ctx context.Context, accountID string, amount int64) (int64, error) {
	if s.allowanceFn == nil {
		return amount, nil
	}
	return s.allowanceFn(ctx, accountID, amount)
}

func (s stubLedger) Touch(context.Context, string, time.Time) error {
	return nil
}

type stubTransactionStore struct {
	listFn func(ctx context.Context, accountID, kind string, limit, offset int) ([]models.Transaction, error)
}

func (s stubTransactionStore) ListByAccount(ctx context.Context, accountID, kind string, limit, offset int) ([]models.Transaction, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, accountID, kind, limit, offset)
}

type stubMatcher struct {
	createFn func(ctx context.Context, req services.CreatePropositionRequest) (models.Proposition, error)
	voteFn   func(ctx context.Context, propositionID, participantID string, vote models.Vote) (services.MatchResult, error)
}

func (s stubMatcher) CreateProposition(ctx context.Context, req services.CreatePropositionRequest) (models.Proposition, error) {
	return s.createFn(ctx, req)
}

func (s stubMatcher) CastVote(ctx context.Context, propositionID, participantID string, vote models.Vote) (services.MatchResult, error) {
	return s.voteFn(ctx, propositionID, participantID, vote)
}

type stubContests struct {
	submitFn  func(ctx context.Context, req services.SubmitProofRequest) (models.Proof, error)
	viewFn    func(ctx context.Context, contestID, viewerID string) (services.ProofGrant, error)
	reviewFn  func(ctx context.Context, contestID, participantID string) (models.Contest, error)
	disputeFn func(ctx context.Context, contestID, disputerID, reason string) (models.Contest, error)
	resolveFn func(ctx context.Context, req services.ResolveRequest) (models.Contest, error)
	forfeitFn func(ctx context.Context, contestID, participantID string) (models.Contest, error)
}

func (s stubContests) SubmitProof(ctx context.Context, req services.SubmitProofRequest) (models.Proof, error) {
	return s.submitFn(ctx, req)
}

func (s stubContests) ViewProof(ctx context.Context, contestID, viewerID string) (services.ProofGrant, error) {
	return s.viewFn(ctx, contestID, viewerID)
}

func (s stubContests) StartReview(ctx context.Context, contestID, participantID string) (models.Contest, error) {
	return s.reviewFn(ctx, contestID, participantID)
}

func (s stubContests) Dispute(ctx context.Context, contestID, disputerID, reason string) (models.Contest, error) {
	return s.disputeFn(ctx, contestID, disputerID, reason)
}

func (s stubContests) Resolve(ctx context.Context, req services.ResolveRequest) (models.Contest, error) {
	return s.resolveFn(ctx, req)
}

func (s stubContests) Forfeit(ctx context.Context, contestID, participantID string) (models.Contest, error) {
	return s.forfeitFn(ctx, contestID, participantID)
}

type stubProofs struct {
	openFn func(ctx context.Context, token string) (io.ReadCloser, models.Proof, error)
}

func (s stubProofs) OpenGrant(ctx context.Context, token string) (io.ReadCloser, models.Proof, error) {
	return s.openFn(ctx, token)
}

type stubSteals struct {
	getFn      func(ctx context.Context, stealID string) (models.StealAttempt, error)
	initiateFn func(ctx context.Context, attackerID, targetID string, now time.Time) (models.StealAttempt, error)
	minigameFn func(ctx context.Context, stealID, attackerID string, passed bool, now time.Time) (models.StealAttempt, error)
	defendFn   func(ctx context.Context, stealID, defenderID string, now time.Time) (models.StealAttempt, error)
	resolveFn  func(ctx context.Context, stealID string, now time.Time) (models.StealAttempt, error)
}

func (s stubSteals) Get(ctx context.Context, stealID string) (models.StealAttempt, error) {
	return s.getFn(ctx, stealID)
}

func (s stubSteals) InitiateSteal(ctx context.Context, attackerID, targetID string, now time.Time) (models.StealAttempt, error) {
	return s.initiateFn(ctx, attackerID, targetID, now)
}

func (s stubSteals) CompleteMinigame(ctx context.Context, stealID, attackerID string, passed bool, now time.Time) (models.StealAttempt, error) {
	return s.minigameFn(ctx, stealID, attackerID, passed, now)
}

func (s stubSteals) Defend(ctx context.Context, stealID, defenderID string, now time.Time) (models.StealAttempt, error) {
	return s.defendFn(ctx, stealID, defenderID, now)
}

func (s stubSteals) ResolveSteal(ctx context.Context, stealID string, now time.Time) (models.StealAttempt, error) {
	return s.resolveFn(ctx, stealID, now)
}

type stubDebts struct {
	borrowFn func(ctx context.Context, borrowerID string, amount int64, now time.Time) (models.Debt, error)
	repayFn  func(ctx context.Context, debtID, borrowerID string, amount int64) (models.Debt, error)
}

func (s stubDebts) Borrow(ctx context.Context, borrowerID string, amount int64, now time.Time) (models.Debt, error) {
	return s.borrowFn(ctx, borrowerID, amount, now)
}

func (s stubDebts) Repay(ctx context.Context, debtID, borrowerID string, amount int64) (models.Debt, error) {
	return s.repayFn(ctx, debtID, borrowerID, amount)
}

type stubSweeps struct {
	runFn func(ctx context.Context, name string) (int, error)
}

func (s stubSweeps) Run(ctx context.Context, name string) (int, error) {
	return s.runFn(ctx, name)
}

func (s stubSweeps) Names() []string {
	return []string{services.SweepExpireContests}
}

type stubAdminStore struct {
	isAdminFn     func(ctx context.Context, accountID string) (bool, bool, error)
	hasRoleFn     func(ctx context.Context, accountID, role string) (bool, error)
	createAdminFn func(ctx context.Context, tx store.Execer, accountID string, isSuper bool, createdBy *string) error
	grantRoleFn   func(ctx context.Context, tx store.Execer, adminAccountID, role string) error
}

func (s stubAdminStore) IsAdmin(ctx context.Context, accountID string) (bool, bool, error) {
	if s.isAdminFn == nil {
		return false, false, nil
	}
	return s.isAdminFn(ctx, accountID)
}

func (s stubAdminStore) HasRole(ctx context.Context, accountID, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return false, nil
	}
	return s.hasRoleFn(ctx, accountID, role)
}

func (s stubAdminStore) CreateAdmin(ctx context.Context, tx store.Execer, accountID string, isSuper bool, createdBy *string) error {
	if s.createAdminFn == nil {
		return nil
	}
	return s.createAdminFn(ctx, tx, accountID, isSuper, createdBy)
}

func (s stubAdminStore) GrantRole(ctx context.Context, tx store.Execer, adminAccountID, role string) error {
	if s.grantRoleFn == nil {
		return nil
	}
	return s.grantRoleFn(ctx, tx, adminAccountID, role)
}

type stubTransitionStore struct {
	recorded []store.Transition
	listFn   func(ctx context.Context, limit, offset int) ([]store.Transition, error)
}

func (s *stubTransitionStore) Record(_ context.Context, _ store.Execer, entry store.Transition) (bool, error) {
	s.recorded = append(s.recorded, entry)
	return true, nil
}

func (s *stubTransitionStore) List(ctx context.Context, limit, offset int) ([]store.Transition, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

// operatorAdmin is an admin store where acc-admin holds every role and
// acc-root is a super admin.
func operatorAdmin() stubAdminStore {
	return stubAdminStore{
		isAdminFn: func(_ context.Context, accountID string) (bool, bool, error) {
			return accountID == "acc-admin" || accountID == "acc-root", accountID == "acc-root", nil
		},
		hasRoleFn: func(_ context.Context, accountID, _ string) (bool, error) {
			return accountID == "acc-admin", nil
		},
	}
}

func newTestHandler(deps Deps) *Handler {
	deps.Config = config.Config{JWTSecret: testSecret, AllowedOrigins: "*"}
	deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if deps.TxRunner == nil {
		deps.TxRunner = fakeTxRunner{}
	}
	if deps.Ledger == nil {
		deps.Ledger = stubLedger{}
	}
	if deps.Admin == nil {
		deps.Admin = stubAdminStore{}
	}
	if deps.Transitions == nil {
		deps.Transitions = &stubTransitionStore{}
	}
	if deps.Hub == nil {
		deps.Hub = websocket.NewHub()
	}
	return New(deps)
}

// serve sends a request through the full router, authenticated as
// accountID unless it is empty.
func serve(t *testing.T, handler *Handler, method, path, accountID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if accountID != "" {
		token, err := auth.GenerateToken(testSecret, accountID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(dest); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	decodeBody(t, rr, &payload)
	return payload["error"]
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
}
