package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mmeshcher/topup-system/internal/model"
	"github.com/mmeshcher/topup-system/internal/provider"
	"github.com/mmeshcher/topup-system/internal/repository"
)

type stubRepo struct {
	mu sync.Mutex

	createUserID  int64
	createUserErr error

	createdDeposit *model.Deposit
	depositErr     error

	getDeposit    *model.Deposit
	getDepositErr error

	deposits    []model.Deposit
	depositsErr error

	decidedDeposit  *model.Deposit
	decideErr       error
	decideCalledID  int64
	decideCalledDec model.DepositDecision

	balance    int64
	balanceErr error

	createdPurchase *model.Purchase
	purchaseErr     error

	purchases    []model.Purchase
	purchasesErr error

	forFulfillment []model.Purchase

	statusUpdates map[string]model.PurchaseStatus
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, username string) (int64, error) {
	return s.createUserID, s.createUserErr
}

func (s *stubRepo) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return nil, repository.ErrUserNotFound
}

func (s *stubRepo) GetBalance(ctx context.Context, userID int64) (int64, error) {
	return s.balance, s.balanceErr
}

func (s *stubRepo) CreateDeposit(ctx context.Context, userID, amount int64, method model.PaymentMethod, reference string) (*model.Deposit, error) {
	if s.depositErr != nil {
		return nil, s.depositErr
	}
	if s.createdDeposit != nil {
		return s.createdDeposit, nil
	}
	return &model.Deposit{
		ID:        1,
		UserID:    userID,
		Amount:    amount,
		Method:    method,
		Reference: reference,
		Status:    model.DepositStatusPending,
	}, nil
}

func (s *stubRepo) GetDeposit(ctx context.Context, id int64) (*model.Deposit, error) {
	return s.getDeposit, s.getDepositErr
}

func (s *stubRepo) GetDepositsByUser(ctx context.Context, userID int64) ([]model.Deposit, error) {
	return s.deposits, s.depositsErr
}

func (s *stubRepo) GetDeposits(ctx context.Context, status *model.DepositStatus) ([]model.Deposit, error) {
	return s.deposits, s.depositsErr
}

func (s *stubRepo) DecideDeposit(ctx context.Context, id int64, decision model.DepositDecision) (*model.Deposit, error) {
	s.decideCalledID = id
	s.decideCalledDec = decision
	return s.decidedDeposit, s.decideErr
}

func (s *stubRepo) CreatePurchase(ctx context.Context, p *model.Purchase) (*model.Purchase, error) {
	if s.purchaseErr != nil {
		return nil, s.purchaseErr
	}
	s.createdPurchase = p
	created := *p
	created.ID = 1
	created.Status = model.PurchaseStatusPending
	return &created, nil
}

func (s *stubRepo) GetPurchasesByUser(ctx context.Context, userID int64) ([]model.Purchase, error) {
	return s.purchases, s.purchasesErr
}

func (s *stubRepo) GetPurchases(ctx context.Context, username string) ([]model.Purchase, error) {
	return s.purchases, s.purchasesErr
}

func (s *stubRepo) GetPurchasesForFulfillment(ctx context.Context, limit int) ([]model.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.forFulfillment
	s.forFulfillment = nil
	return res, nil
}

func (s *stubRepo) UpdatePurchaseStatus(ctx context.Context, orderID string, status model.PurchaseStatus, providerOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusUpdates == nil {
		s.statusUpdates = make(map[string]model.PurchaseStatus)
	}
	s.statusUpdates[orderID] = status
	return nil
}

func TestCreateDeposit_AmountBelowMinimum(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, 10000)

	_, err := svc.CreateDeposit(context.Background(), 1, 9999, "BCA", "")
	if !errors.Is(err, ErrAmountTooSmall) {
		t.Fatalf("expected ErrAmountTooSmall, got %v", err)
	}
}

func TestCreateDeposit_UnknownMethod(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, 10000)

	_, err := svc.CreateDeposit(context.Background(), 1, 50000, "Bitcoin", "")
	if !errors.Is(err, ErrInvalidMethod) {
		t.Fatalf("expected ErrInvalidMethod, got %v", err)
	}
}

func TestCreateDeposit_Pending(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, 10000)

	d, err := svc.CreateDeposit(context.Background(), 1, 50000, "BCA", "REF1")
	if err != nil {
		t.Fatalf("CreateDeposit error: %v", err)
	}
	if d.Status != model.DepositStatusPending {
		t.Fatalf("status = %s, want Pending", d.Status)
	}
	if d.Amount != 50000 || d.Method != model.PaymentMethodBCA || d.Reference != "REF1" {
		t.Fatalf("unexpected deposit: %+v", d)
	}
}

func TestDecideDeposit_UnknownDecision(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, 10000)

	_, err := svc.DecideDeposit(context.Background(), 1, "maybe")
	if !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision, got %v", err)
	}
}

func TestDecideDeposit_PropagatesFinalized(t *testing.T) {
	repo := &stubRepo{decideErr: repository.ErrDepositFinalized}
	svc := NewService(repo, nil, 10000)

	_, err := svc.DecideDeposit(context.Background(), 7, "approve")
	if !errors.Is(err, repository.ErrDepositFinalized) {
		t.Fatalf("expected ErrDepositFinalized, got %v", err)
	}
	if repo.decideCalledID != 7 || repo.decideCalledDec != model.DecisionApprove {
		t.Fatalf("repo called with id=%d decision=%s", repo.decideCalledID, repo.decideCalledDec)
	}
}

func TestDecideDeposit_PropagatesNotFound(t *testing.T) {
	repo := &stubRepo{decideErr: repository.ErrDepositNotFound}
	svc := NewService(repo, nil, 10000)

	_, err := svc.DecideDeposit(context.Background(), 99, "reject")
	if !errors.Is(err, repository.ErrDepositNotFound) {
		t.Fatalf("expected ErrDepositNotFound, got %v", err)
	}
}

func TestListDeposits_UnknownStatusFilter(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, 10000)

	_, err := svc.ListDeposits(context.Background(), "Frozen")
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestCreatePurchase_GeneratesOrderID(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil, 10000)

	p, err := svc.CreatePurchase(context.Background(), 1, PurchaseInput{
		Service:  "86 Diamonds",
		Price:    15000,
		TargetID: "123456789",
		Zone:     "2001",
		Type:     "game",
	})
	if err != nil {
		t.Fatalf("CreatePurchase error: %v", err)
	}
	if p.OrderID == "" {
		t.Fatalf("order id was not generated")
	}
	if repo.createdPurchase.OrderID != p.OrderID {
		t.Fatalf("repo got order id %q, returned %q", repo.createdPurchase.OrderID, p.OrderID)
	}
}

func TestCreatePurchase_InvalidOrderID(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, 10000)

	_, err := svc.CreatePurchase(context.Background(), 1, PurchaseInput{
		OrderID:  "bad id!",
		Service:  "Netflix 1 Bulan",
		Price:    45000,
		TargetID: "user@example.com",
		Type:     "subscription",
	})
	if !errors.Is(err, ErrInvalidOrderID) {
		t.Fatalf("expected ErrInvalidOrderID, got %v", err)
	}
}

func TestCreatePurchase_UnknownType(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, 10000)

	_, err := svc.CreatePurchase(context.Background(), 1, PurchaseInput{
		OrderID:  "ORD-0001",
		Service:  "86 Diamonds",
		Price:    15000,
		TargetID: "123456789",
		Type:     "lootbox",
	})
	if !errors.Is(err, ErrInvalidPurchaseType) {
		t.Fatalf("expected ErrInvalidPurchaseType, got %v", err)
	}
}

func TestCreatePurchase_NonPositivePrice(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, 10000)

	_, err := svc.CreatePurchase(context.Background(), 1, PurchaseInput{
		OrderID:  "ORD-0002",
		Service:  "86 Diamonds",
		Price:    0,
		TargetID: "123456789",
		Type:     "game",
	})
	if !errors.Is(err, ErrInvalidPurchase) {
		t.Fatalf("expected ErrInvalidPurchase, got %v", err)
	}
}

func TestCreatePurchase_PropagatesInsufficientBalance(t *testing.T) {
	repo := &stubRepo{purchaseErr: repository.ErrInsufficientBalance}
	svc := NewService(repo, nil, 10000)

	_, err := svc.CreatePurchase(context.Background(), 1, PurchaseInput{
		OrderID:  "ORD-0003",
		Service:  "86 Diamonds",
		Price:    15000,
		TargetID: "123456789",
		Type:     "game",
	})
	if !errors.Is(err, repository.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestProvisionUser_InvalidUsername(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, 10000)

	_, err := svc.ProvisionUser(context.Background(), "BadName")
	if !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}
}

func TestStartFulfillmentUpdates_NoClient(t *testing.T) {
	svc := &Service{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})

	go func() {
		svc.StartFulfillmentUpdates(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("StartFulfillmentUpdates did not return without client")
	}
}

func TestProcessFulfillmentBatch_UpdatesStatuses(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var state provider.OrderState
		switch r.URL.Path {
		case "/api/orders/ORD-OK":
			state = provider.OrderState{Order: "ORD-OK", Status: "SUCCESS", ProviderOrderID: "VIP-1"}
		case "/api/orders/ORD-BAD":
			state = provider.OrderState{Order: "ORD-BAD", Status: "FAILED"}
		default:
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(state)
	}))
	defer ts.Close()

	repo := &stubRepo{
		forFulfillment: []model.Purchase{
			{OrderID: "ORD-OK", Status: model.PurchaseStatusPending},
			{OrderID: "ORD-BAD", Status: model.PurchaseStatusPending},
			{OrderID: "ORD-WAIT", Status: model.PurchaseStatusPending},
		},
	}
	svc := NewService(repo, provider.NewClient(ts.URL), 10000)

	svc.processFulfillmentBatch(context.Background())

	if got := repo.statusUpdates["ORD-OK"]; got != model.PurchaseStatusSuccess {
		t.Fatalf("ORD-OK status = %s, want Success", got)
	}
	if got := repo.statusUpdates["ORD-BAD"]; got != model.PurchaseStatusFailed {
		t.Fatalf("ORD-BAD status = %s, want Failed", got)
	}
	if _, ok := repo.statusUpdates["ORD-WAIT"]; ok {
		t.Fatalf("ORD-WAIT must not be updated on 204 response")
	}
}
