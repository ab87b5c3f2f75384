// Package model содержит доменные сущности сервиса цифровых пополнений.
package model

import "time"

// User представляет аккаунт пользователя витрины с балансом в минорных единицах.
type User struct {
	ID        int64
	Username  string
	Balance   int64
	CreatedAt time.Time
}

// DepositStatus описывает статус заявки на пополнение баланса.
type DepositStatus string

const (
	DepositStatusPending  DepositStatus = "Pending"
	DepositStatusSuccess  DepositStatus = "Success"
	DepositStatusFailed   DepositStatus = "Failed"
	DepositStatusCanceled DepositStatus = "Canceled"
)

// IsTerminal сообщает, является ли статус конечным: из конечного статуса переходов нет.
func (s DepositStatus) IsTerminal() bool {
	return s == DepositStatusSuccess || s == DepositStatusFailed || s == DepositStatusCanceled
}

// ParseDepositStatus разбирает строковое представление статуса заявки.
func ParseDepositStatus(s string) (DepositStatus, bool) {
	switch DepositStatus(s) {
	case DepositStatusPending, DepositStatusSuccess, DepositStatusFailed, DepositStatusCanceled:
		return DepositStatus(s), true
	}
	return "", false
}

// PaymentMethod описывает канал оплаты заявки на пополнение.
type PaymentMethod string

const (
	PaymentMethodBCA   PaymentMethod = "BCA"
	PaymentMethodBRI   PaymentMethod = "BRI"
	PaymentMethodOVO   PaymentMethod = "OVO"
	PaymentMethodDana  PaymentMethod = "DANA"
	PaymentMethodQRIS  PaymentMethod = "QRIS"
	PaymentMethodGoPay PaymentMethod = "GoPay"
)

// ParsePaymentMethod разбирает канал оплаты из запроса пользователя.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch PaymentMethod(s) {
	case PaymentMethodBCA, PaymentMethodBRI, PaymentMethodOVO,
		PaymentMethodDana, PaymentMethodQRIS, PaymentMethodGoPay:
		return PaymentMethod(s), true
	}
	return "", false
}

// Deposit описывает заявку пользователя на пополнение баланса.
type Deposit struct {
	ID        int64
	UserID    int64
	Amount    int64
	Method    PaymentMethod
	Reference string
	Status    DepositStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DepositDecision описывает решение администратора по заявке на пополнение.
type DepositDecision string

const (
	DecisionApprove DepositDecision = "approve"
	DecisionReject  DepositDecision = "reject"
	DecisionCancel  DepositDecision = "cancel"
)

// ParseDepositDecision разбирает решение администратора из запроса.
func ParseDepositDecision(s string) (DepositDecision, bool) {
	switch DepositDecision(s) {
	case DecisionApprove, DecisionReject, DecisionCancel:
		return DepositDecision(s), true
	}
	return "", false
}

// TerminalStatus возвращает конечный статус заявки для данного решения.
func (d DepositDecision) TerminalStatus() DepositStatus {
	switch d {
	case DecisionApprove:
		return DepositStatusSuccess
	case DecisionReject:
		return DepositStatusFailed
	default:
		return DepositStatusCanceled
	}
}

// PurchaseStatus описывает статус покупки цифрового товара.
type PurchaseStatus string

const (
	PurchaseStatusPending  PurchaseStatus = "Pending"
	PurchaseStatusSuccess  PurchaseStatus = "Success"
	PurchaseStatusFailed   PurchaseStatus = "Failed"
	PurchaseStatusCanceled PurchaseStatus = "Canceled"
)

// PurchaseType описывает тип покупаемого товара.
type PurchaseType string

const (
	PurchaseTypeGame         PurchaseType = "game"
	PurchaseTypeVoucher      PurchaseType = "voucher"
	PurchaseTypeSubscription PurchaseType = "subscription"
)

// ParsePurchaseType разбирает тип покупки из запроса пользователя.
func ParsePurchaseType(s string) (PurchaseType, bool) {
	switch PurchaseType(s) {
	case PurchaseTypeGame, PurchaseTypeVoucher, PurchaseTypeSubscription:
		return PurchaseType(s), true
	}
	return "", false
}

// Purchase описывает покупку цифрового товара за счёт баланса пользователя.
type Purchase struct {
	ID              int64
	OrderID         string
	UserID          int64
	Service         string
	Price           int64
	TargetID        string
	Zone            string
	Type            PurchaseType
	Status          PurchaseStatus
	ProviderOrderID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
