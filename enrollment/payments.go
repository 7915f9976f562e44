/*
payments.go - Payment application against approved invoices

PURPOSE:
  Records settled payments and recomputes the invoice's paid/balance/
  payment_status triple. Payments are facts, not requests: gateway
  integration lives elsewhere, this ledger only applies money that has
  already changed hands.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: Payment rows are never updated or deleted.
  2. FRESH READ: The balance check runs against the invoice row as read
     inside the transaction, never a stale in-memory copy. The store's
     unit of work serializes writers, so check and update are atomic
     with respect to concurrent payments - a losing payment re-reads
     the updated balance and may then fail with OverpaymentError.
  3. NO PARTIAL ACCEPTANCE: A payment that exceeds the balance is
     rejected whole; the balance never goes negative.
  4. DERIVED STATUS: payment_status is recomputed from
     (amount_paid, total_amount) on every write, never assigned ad hoc.
*/
package enrollment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/warp/enrollment-engine/billing"
)

// PaymentLedger applies payments to approved invoices.
type PaymentLedger struct {
	Store billing.TxStore
	Clock billing.Clock
}

func NewPaymentLedger(store billing.TxStore) *PaymentLedger {
	return &PaymentLedger{Store: store, Clock: billing.NowUTC}
}

// PaymentResult is the settlement state after a payment lands.
type PaymentResult struct {
	PaymentID     billing.PaymentID
	Balance       billing.Money
	PaymentStatus billing.PaymentStatus
}

// RecordPayment applies one settled payment to an invoice.
func (l *PaymentLedger) RecordPayment(ctx context.Context, invoiceID billing.InvoiceID, amount billing.Money, method, reference, receivedBy string) (*PaymentResult, error) {
	if !amount.IsPositive() {
		return nil, &billing.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if method == "" {
		return nil, &billing.ValidationError{Field: "method", Message: "required"}
	}

	var result PaymentResult
	err := l.Store.WithTx(ctx, func(tx billing.Store) error {
		invoice, err := getInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.WorkflowStatus != billing.WorkflowApproved {
			return &billing.StateTransitionError{
				InvoiceID: invoiceID, Operation: "record payment on", Status: invoice.WorkflowStatus,
			}
		}
		if amount.GreaterThan(invoice.Balance) {
			return &billing.OverpaymentError{
				InvoiceID: invoiceID, Balance: invoice.Balance, Requested: amount,
			}
		}

		payment := billing.Payment{
			ID:         billing.PaymentID(uuid.NewString()),
			InvoiceID:  invoiceID,
			StudentID:  invoice.StudentID,
			Amount:     amount,
			Method:     method,
			Reference:  reference,
			ReceivedBy: receivedBy,
			CreatedAt:  l.Clock(),
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return fmt.Errorf("%w: inserting payment: %v", billing.ErrPersistence, err)
		}

		invoice.AmountPaid = invoice.AmountPaid.Add(amount)
		invoice.Balance = invoice.TotalAmount.Sub(invoice.AmountPaid)
		invoice.PaymentStatus = billing.DerivePaymentStatus(invoice.AmountPaid, invoice.TotalAmount)
		if err := tx.UpdateInvoice(ctx, *invoice); err != nil {
			return fmt.Errorf("%w: updating invoice: %v", billing.ErrPersistence, err)
		}

		result = PaymentResult{
			PaymentID:     payment.ID,
			Balance:       invoice.Balance,
			PaymentStatus: invoice.PaymentStatus,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Payments returns the full payment history for an invoice,
// chronologically.
func (l *PaymentLedger) Payments(ctx context.Context, invoiceID billing.InvoiceID) ([]billing.Payment, error) {
	invoice, err := l.Store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading invoice: %v", billing.ErrPersistence, err)
	}
	if invoice == nil {
		return nil, &billing.NotFoundError{Kind: "invoice", ID: string(invoiceID)}
	}
	payments, err := l.Store.PaymentsForInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading payments: %v", billing.ErrPersistence, err)
	}
	return payments, nil
}
