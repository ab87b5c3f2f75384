// Package handler содержит HTTP-обработчики API сервиса пополнений.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/topup-system/internal/middleware"
	"github.com/mmeshcher/topup-system/internal/model"
	"github.com/mmeshcher/topup-system/internal/repository"
	"github.com/mmeshcher/topup-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	ProvisionUser(ctx context.Context, username string) (int64, error)
	GetUser(ctx context.Context, username string) (*model.User, error)
	CreateDeposit(ctx context.Context, userID, amount int64, method, reference string) (*model.Deposit, error)
	GetDeposit(ctx context.Context, id int64) (*model.Deposit, error)
	DepositHistory(ctx context.Context, userID int64) ([]model.Deposit, error)
	ListDeposits(ctx context.Context, statusFilter string) ([]model.Deposit, error)
	DecideDeposit(ctx context.Context, id int64, decision string) (*model.Deposit, error)
	GetBalance(ctx context.Context, userID int64) (int64, error)
	CreatePurchase(ctx context.Context, userID int64, in service.PurchaseInput) (*model.Purchase, error)
	PurchaseHistory(ctx context.Context, userID int64) ([]model.Purchase, error)
	ListPurchases(ctx context.Context, username string) ([]model.Purchase, error)
}

// Handler реализует HTTP-обработчики API сервиса пополнений.
type Handler struct {
	service         Service
	logger          *zap.Logger
	authMiddleware  *middleware.AuthMiddleware
	adminMiddleware *middleware.AdminMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, admin *middleware.AdminMiddleware) *Handler {
	return &Handler{
		service:         s,
		logger:          logger,
		authMiddleware:  auth,
		adminMiddleware: admin,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type depositRequest struct {
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
	Reference string `json:"reference,omitempty"`
}

type depositResponse struct {
	ID        int64  `json:"id"`
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
	Reference string `json:"reference,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toDepositResponse(d *model.Deposit) depositResponse {
	return depositResponse{
		ID:        d.ID,
		Amount:    d.Amount,
		Method:    string(d.Method),
		Reference: d.Reference,
		Status:    string(d.Status),
		CreatedAt: d.CreatedAt.Format(time.RFC3339),
		UpdatedAt: d.UpdatedAt.Format(time.RFC3339),
	}
}

// CreateDeposit принимает заявку на пополнение от текущего пользователя.
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	d, err := h.service.CreateDeposit(r.Context(), userID, req.Amount, req.Method, req.Reference)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAmountTooSmall), errors.Is(err, service.ErrInvalidReference):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, service.ErrInvalidMethod):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, repository.ErrUserNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("create deposit error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, toDepositResponse(d))
}

// GetDeposits возвращает историю заявок текущего пользователя.
func (h *Handler) GetDeposits(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	deposits, err := h.service.DepositHistory(r.Context(), userID)
	if err != nil {
		h.logger.Error("get deposits error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(deposits) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]depositResponse, 0, len(deposits))
	for i := range deposits {
		resp = append(resp, toDepositResponse(&deposits[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

// GetBalance возвращает баланс текущего пользователя в минорных единицах.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get balance error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}

type purchaseRequest struct {
	OrderID  string `json:"order_id,omitempty"`
	Service  string `json:"service"`
	Price    int64  `json:"price"`
	TargetID string `json:"target_id"`
	Zone     string `json:"zone,omitempty"`
	Type     string `json:"type"`
}

type purchaseResponse struct {
	ID              int64  `json:"id"`
	OrderID         string `json:"order_id"`
	Service         string `json:"service"`
	Price           int64  `json:"price"`
	TargetID        string `json:"target_id"`
	Zone            string `json:"zone,omitempty"`
	Type            string `json:"type"`
	Status          string `json:"status"`
	ProviderOrderID string `json:"provider_order_id,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func toPurchaseResponse(p *model.Purchase) purchaseResponse {
	return purchaseResponse{
		ID:              p.ID,
		OrderID:         p.OrderID,
		Service:         p.Service,
		Price:           p.Price,
		TargetID:        p.TargetID,
		Zone:            p.Zone,
		Type:            string(p.Type),
		Status:          string(p.Status),
		ProviderOrderID: p.ProviderOrderID,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       p.UpdatedAt.Format(time.RFC3339),
	}
}

// CreatePurchase создаёт покупку за счёт баланса текущего пользователя.
func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p, err := h.service.CreatePurchase(r.Context(), userID, service.PurchaseInput{
		OrderID:  req.OrderID,
		Service:  req.Service,
		Price:    req.Price,
		TargetID: req.TargetID,
		Zone:     req.Zone,
		Type:     req.Type,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidOrderID), errors.Is(err, service.ErrInvalidPurchaseType):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, service.ErrInvalidPurchase):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrInsufficientBalance):
			http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
		case errors.Is(err, repository.ErrOrderExists):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		case errors.Is(err, repository.ErrUserNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("create purchase error", zap.Error(err),
				zap.Int64("userID", userID), zap.String("order", req.OrderID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, toPurchaseResponse(p))
}

// GetPurchases возвращает историю покупок текущего пользователя.
func (h *Handler) GetPurchases(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	purchases, err := h.service.PurchaseHistory(r.Context(), userID)
	if err != nil {
		h.logger.Error("get purchases error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(purchases) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]purchaseResponse, 0, len(purchases))
	for i := range purchases {
		resp = append(resp, toPurchaseResponse(&purchases[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

type provisionRequest struct {
	Username string `json:"username"`
}

type provisionResponse struct {
	ID    int64  `json:"id"`
	Token string `json:"token"`
}

// ProvisionUser создаёт аккаунт пользователя и возвращает токен доступа для него.
func (h *Handler) ProvisionUser(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.ProvisionUser(r.Context(), req.Username)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidUsername):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrUserExists):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("provision user error", zap.Error(err), zap.String("username", req.Username))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, provisionResponse{
		ID:    id,
		Token: h.authMiddleware.IssueToken(id),
	})
}

type userResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Balance   int64  `json:"balance"`
	CreatedAt string `json:"created_at"`
}

// AdminGetUser возвращает аккаунт пользователя с текущим балансом.
func (h *Handler) AdminGetUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	u, err := h.service.GetUser(r.Context(), username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get user error", zap.Error(err), zap.String("username", username))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Balance:   u.Balance,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	})
}

// AdminListDeposits возвращает заявки на пополнение для административной проверки.
func (h *Handler) AdminListDeposits(w http.ResponseWriter, r *http.Request) {
	deposits, err := h.service.ListDeposits(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("list deposits error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(deposits) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]depositResponse, 0, len(deposits))
	for i := range deposits {
		resp = append(resp, toDepositResponse(&deposits[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// AdminGetDeposit возвращает одну заявку по идентификатору.
func (h *Handler) AdminGetDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	d, err := h.service.GetDeposit(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrDepositNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get deposit error", zap.Error(err), zap.Int64("depositID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toDepositResponse(d))
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

// DecideDeposit применяет решение администратора к заявке на пополнение.
// Повторное решение по уже обработанной заявке возвращает 409 и не меняет баланс.
func (h *Handler) DecideDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	d, err := h.service.DecideDeposit(r.Context(), id, req.Decision)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidDecision):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrDepositNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrDepositFinalized):
			http.Error(w, "deposit already processed", http.StatusConflict)
		default:
			h.logger.Error("decide deposit error", zap.Error(err),
				zap.Int64("depositID", id), zap.String("decision", req.Decision))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, toDepositResponse(d))
}

// AdminListPurchases возвращает покупки для административной проверки.
func (h *Handler) AdminListPurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := h.service.ListPurchases(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		h.logger.Error("list purchases error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(purchases) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]purchaseResponse, 0, len(purchases))
	for i := range purchases {
		resp = append(resp, toPurchaseResponse(&purchases[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}
