// Package service реализует бизнес-логику сервиса пополнений.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/topup-system/internal/metrics"
	"github.com/mmeshcher/topup-system/internal/model"
	"github.com/mmeshcher/topup-system/internal/provider"
	"github.com/mmeshcher/topup-system/internal/validation"
)

// ErrAmountTooSmall возвращается для заявки на сумму ниже настроенного минимума.
var (
	ErrAmountTooSmall = errors.New("deposit amount below minimum")
	// ErrInvalidMethod возвращается для канала оплаты вне допустимого набора.
	ErrInvalidMethod = errors.New("unknown payment method")
	// ErrInvalidReference возвращается для слишком длинного платёжного референса.
	ErrInvalidReference = errors.New("payment reference too long")
	// ErrInvalidDecision возвращается для решения вне набора approve/reject/cancel.
	ErrInvalidDecision = errors.New("unknown decision")
	// ErrInvalidStatus возвращается для неизвестного статуса в фильтре заявок.
	ErrInvalidStatus = errors.New("unknown deposit status")
	// ErrInvalidOrderID возвращается для идентификатора заказа недопустимого формата.
	ErrInvalidOrderID = errors.New("invalid order id")
	// ErrInvalidPurchaseType возвращается для типа покупки вне допустимого набора.
	ErrInvalidPurchaseType = errors.New("unknown purchase type")
	// ErrInvalidPurchase возвращается для некорректных полей запроса на покупку.
	ErrInvalidPurchase = errors.New("invalid purchase request")
	// ErrInvalidUsername возвращается для имени пользователя недопустимого формата.
	ErrInvalidUsername = errors.New("invalid username")
)

const maxReferenceLen = 255

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, username string) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetBalance(ctx context.Context, userID int64) (int64, error)
	CreateDeposit(ctx context.Context, userID, amount int64, method model.PaymentMethod, reference string) (*model.Deposit, error)
	GetDeposit(ctx context.Context, id int64) (*model.Deposit, error)
	GetDepositsByUser(ctx context.Context, userID int64) ([]model.Deposit, error)
	GetDeposits(ctx context.Context, status *model.DepositStatus) ([]model.Deposit, error)
	DecideDeposit(ctx context.Context, id int64, decision model.DepositDecision) (*model.Deposit, error)
	CreatePurchase(ctx context.Context, p *model.Purchase) (*model.Purchase, error)
	GetPurchasesByUser(ctx context.Context, userID int64) ([]model.Purchase, error)
	GetPurchases(ctx context.Context, username string) ([]model.Purchase, error)
	GetPurchasesForFulfillment(ctx context.Context, limit int) ([]model.Purchase, error)
	UpdatePurchaseStatus(ctx context.Context, orderID string, status model.PurchaseStatus, providerOrderID string) error
}

// Service содержит бизнес-логику сервиса пополнений.
type Service struct {
	repo           Repository
	providerClient *provider.Client
	minDeposit     int64
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом провайдера.
func NewService(repo Repository, providerClient *provider.Client, minDeposit int64) *Service {
	return &Service{
		repo:           repo,
		providerClient: providerClient,
		minDeposit:     minDeposit,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// ProvisionUser создаёт аккаунт пользователя с нулевым балансом.
func (s *Service) ProvisionUser(ctx context.Context, username string) (int64, error) {
	if !validation.IsValidUsername(username) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}
	return s.repo.CreateUser(ctx, username)
}

// GetUser возвращает аккаунт пользователя по имени.
func (s *Service) GetUser(ctx context.Context, username string) (*model.User, error) {
	return s.repo.GetUserByUsername(ctx, username)
}

// CreateDeposit принимает заявку пользователя на пополнение баланса.
func (s *Service) CreateDeposit(ctx context.Context, userID, amount int64, method, reference string) (*model.Deposit, error) {
	if amount < s.minDeposit {
		return nil, fmt.Errorf("%w: got %d, minimum %d", ErrAmountTooSmall, amount, s.minDeposit)
	}

	m, ok := model.ParsePaymentMethod(method)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}

	if len(reference) > maxReferenceLen {
		return nil, ErrInvalidReference
	}

	d, err := s.repo.CreateDeposit(ctx, userID, amount, m, reference)
	if err != nil {
		return nil, err
	}

	metrics.DepositsCreated.Inc()
	return d, nil
}

// GetDeposit возвращает заявку на пополнение по идентификатору.
func (s *Service) GetDeposit(ctx context.Context, id int64) (*model.Deposit, error) {
	return s.repo.GetDeposit(ctx, id)
}

// DepositHistory возвращает историю заявок пользователя, новые записи первыми.
func (s *Service) DepositHistory(ctx context.Context, userID int64) ([]model.Deposit, error) {
	return s.repo.GetDepositsByUser(ctx, userID)
}

// ListDeposits возвращает заявки для административной проверки.
// Непустой фильтр должен быть известным статусом заявки.
func (s *Service) ListDeposits(ctx context.Context, statusFilter string) ([]model.Deposit, error) {
	if statusFilter == "" {
		return s.repo.GetDeposits(ctx, nil)
	}

	status, ok := model.ParseDepositStatus(statusFilter)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, statusFilter)
	}

	return s.repo.GetDeposits(ctx, &status)
}

// DecideDeposit применяет решение администратора к заявке на пополнение.
func (s *Service) DecideDeposit(ctx context.Context, id int64, decision string) (*model.Deposit, error) {
	dec, ok := model.ParseDepositDecision(decision)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	d, err := s.repo.DecideDeposit(ctx, id, dec)
	if err != nil {
		return nil, err
	}

	metrics.DepositDecisions.WithLabelValues(string(dec)).Inc()
	return d, nil
}

// GetBalance возвращает текущий баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, userID int64) (int64, error) {
	return s.repo.GetBalance(ctx, userID)
}

// PurchaseInput описывает поля запроса пользователя на покупку.
type PurchaseInput struct {
	OrderID  string
	Service  string
	Price    int64
	TargetID string
	Zone     string
	Type     string
}

// CreatePurchase создаёт покупку, списывая её стоимость с баланса пользователя.
// Пустой OrderID заменяется сгенерированным идентификатором.
func (s *Service) CreatePurchase(ctx context.Context, userID int64, in PurchaseInput) (*model.Purchase, error) {
	orderID := in.OrderID
	if orderID == "" {
		orderID = uuid.NewString()
	} else if !validation.IsValidOrderID(orderID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrderID, in.OrderID)
	}

	ptype, ok := model.ParsePurchaseType(in.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPurchaseType, in.Type)
	}

	if in.Price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidPurchase)
	}
	if in.Service == "" {
		return nil, fmt.Errorf("%w: service is required", ErrInvalidPurchase)
	}
	if in.TargetID == "" {
		return nil, fmt.Errorf("%w: target id is required", ErrInvalidPurchase)
	}

	p, err := s.repo.CreatePurchase(ctx, &model.Purchase{
		OrderID:  orderID,
		UserID:   userID,
		Service:  in.Service,
		Price:    in.Price,
		TargetID: in.TargetID,
		Zone:     in.Zone,
		Type:     ptype,
	})
	if err != nil {
		return nil, err
	}

	metrics.PurchasesCreated.Inc()
	return p, nil
}

// PurchaseHistory возвращает историю покупок пользователя, новые записи первыми.
func (s *Service) PurchaseHistory(ctx context.Context, userID int64) ([]model.Purchase, error) {
	return s.repo.GetPurchasesByUser(ctx, userID)
}

// ListPurchases возвращает покупки для административной проверки,
// при необходимости отфильтрованные по имени пользователя.
func (s *Service) ListPurchases(ctx context.Context, username string) ([]model.Purchase, error) {
	return s.repo.GetPurchases(ctx, username)
}

// StartFulfillmentUpdates запускает фоновый процесс обновления статусов покупок
// из внешней системы исполнения заказов.
func (s *Service) StartFulfillmentUpdates(ctx context.Context) {
	if s.providerClient == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processFulfillmentBatch(ctx)
			}
		}
	}()
}

func (s *Service) processFulfillmentBatch(ctx context.Context) {
	purchases, err := s.repo.GetPurchasesForFulfillment(ctx, 100)
	if err != nil {
		return
	}

	for _, p := range purchases {
		state, statusCode, retryAfter, err := s.providerClient.GetOrderState(ctx, p.OrderID)
		if err != nil {
			continue
		}

		if statusCode == 0 {
			continue
		}

		if statusCode == 429 {
			if retryAfter > 0 {
				timer := time.NewTimer(retryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			continue
		}

		if state == nil {
			continue
		}

		var status model.PurchaseStatus

		switch state.Status {
		case "REGISTERED", "PROCESSING":
			// Заказ ещё в работе: запоминаем идентификатор провайдера, статус не меняем.
			if state.ProviderOrderID != "" && p.ProviderOrderID == "" {
				_ = s.repo.UpdatePurchaseStatus(ctx, p.OrderID, p.Status, state.ProviderOrderID)
			}
			continue
		case "SUCCESS":
			status = model.PurchaseStatusSuccess
		case "FAILED":
			status = model.PurchaseStatusFailed
		default:
			continue
		}

		_ = s.repo.UpdatePurchaseStatus(ctx, p.OrderID, status, state.ProviderOrderID)
	}
}
