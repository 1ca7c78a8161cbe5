package accounting

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/notarium/notarium/internal/numbering"
)

const defaultDocumentLimit = 50

// lookupRef resolves an account number into a handle of category C.
func lookupRef[C CategoryTag](ctx context.Context, tx TxRepository, number string) (AccountRef[C], error) {
	acc, err := tx.GetAccountByNumber(ctx, number)
	if err != nil {
		return AccountRef[C]{}, err
	}
	return NewAccountRef[C](acc)
}

func (s *Service) receiptRoute(mode PaymentMode) (string, JournalCode) {
	switch mode {
	case PaymentCash:
		return AccountTrustCash, JournalCash
	case PaymentMobile:
		if s.cfg.MobileMoneyRoute == RouteCash {
			return AccountTrustCash, JournalCash
		}
	}
	return AccountTrustBank, JournalBank
}

func (s *Service) settlementRoute(mode PaymentMode) (string, JournalCode) {
	switch mode {
	case PaymentCash:
		return AccountOfficeCash, JournalCash
	case PaymentMobile:
		if s.cfg.MobileMoneyRoute == RouteCash {
			return AccountOfficeCash, JournalCash
		}
	}
	return AccountOfficeBank, JournalBank
}

// CreateReceipt numbers a receipt and posts debit treasury / credit client
// funds on the trust side, all in one transaction.
func (s *Service) CreateReceipt(ctx context.Context, in ReceiptInput) (Receipt, error) {
	in.Purpose = strings.TrimSpace(in.Purpose)
	if err := in.Validate(); err != nil {
		return Receipt{}, err
	}
	amount := in.Amount.Round(2)
	var (
		receipt Receipt
		entry   Entry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.ReserveNumber(ctx, numbering.ReceiptKey(), 1)
		if err != nil {
			return err
		}
		number := numbering.FormatReceipt(seq)

		treasuryNumber, journal := s.receiptRoute(in.Mode)
		treasury, err := lookupRef[ClientTrust](ctx, tx, treasuryNumber)
		if err != nil {
			return err
		}
		funds, err := lookupRef[ClientTrust](ctx, tx, AccountClientFunds)
		if err != nil {
			return err
		}
		lines := newPosting[ClientTrust]().
			debit(treasury, amount).
			credit(funds, amount).
			build()

		entry, err = s.insertPosted(ctx, tx, EntryInput{
			Date:           in.Date,
			Label:          fmt.Sprintf("Reçu %s - %s", number, in.Purpose),
			Journal:        journal,
			Lines:          lines,
			CaseID:         in.CaseID,
			DocumentNumber: number,
			AuthorID:       in.AuthorID,
		}, EntryKindNormal, nil)
		if err != nil {
			return err
		}
		receipt, err = tx.InsertReceipt(ctx, Receipt{
			Number:     number,
			Sequence:   seq,
			Date:       in.Date,
			CaseID:     in.CaseID,
			ClientID:   in.ClientID,
			Amount:     amount,
			Mode:       in.Mode,
			PaymentRef: in.PaymentRef,
			Purpose:    in.Purpose,
			EntryID:    entry.ID,
			CreatedBy:  in.AuthorID,
		})
		return err
	})
	if err != nil {
		return Receipt{}, err
	}
	s.afterPosting(ctx, entry)
	if s.metrics != nil {
		s.metrics.RecordDocument("receipt")
	}
	s.record(ctx, in.AuthorID, "receipt.create", "receipt", receipt.ID, map[string]any{
		"number":   receipt.Number,
		"amount":   receipt.Amount.StringFixed(2),
		"entry_id": receipt.EntryID,
	})
	return receipt, nil
}

// GetReceipt fetches a receipt by id.
func (s *Service) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	var receipt Receipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		receipt, err = tx.GetReceipt(ctx, id)
		return err
	})
	return receipt, err
}

// ListReceipts returns receipts, most recent first.
func (s *Service) ListReceipts(ctx context.Context, filter DocumentFilter) ([]Receipt, error) {
	filter = normalizeDocumentFilter(filter)
	var receipts []Receipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		receipts, err = tx.ListReceipts(ctx, filter)
		return err
	})
	return receipts, err
}

// CreateInvoice numbers an invoice with total = pretax + tax. With on-issue
// posting enabled it also books receivable against fees and tax.
func (s *Service) CreateInvoice(ctx context.Context, in InvoiceInput) (Invoice, error) {
	in.Description = strings.TrimSpace(in.Description)
	if err := in.Validate(); err != nil {
		return Invoice{}, err
	}
	pretax := in.Pretax.Round(2)
	tax := in.Tax.Round(2)
	total := pretax.Add(tax)

	var (
		invoice Invoice
		entry   *Entry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.ReserveNumber(ctx, numbering.InvoiceKey(), 1)
		if err != nil {
			return err
		}
		number := numbering.FormatInvoice(seq)

		var entryID *int64
		if s.cfg.InvoicePosting == InvoicePostingOnIssue {
			posted, err := s.postInvoiceIssue(ctx, tx, in, number, pretax, tax, total)
			if err != nil {
				return err
			}
			entry = &posted
			entryID = &posted.ID
		}
		invoice, err = tx.InsertInvoice(ctx, Invoice{
			Number:      number,
			Sequence:    seq,
			IssueDate:   in.IssueDate,
			DueDate:     in.DueDate,
			CaseID:      in.CaseID,
			ClientID:    in.ClientID,
			Pretax:      pretax,
			Tax:         tax,
			Total:       total,
			Status:      InvoiceUnpaid,
			Description: in.Description,
			EntryID:     entryID,
			CreatedBy:   in.AuthorID,
		})
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	if entry != nil {
		s.afterPosting(ctx, *entry)
	}
	if s.metrics != nil {
		s.metrics.RecordDocument("invoice")
	}
	s.record(ctx, in.AuthorID, "invoice.create", "invoice", invoice.ID, map[string]any{
		"number": invoice.Number,
		"total":  invoice.Total.StringFixed(2),
	})
	return invoice, nil
}

func (s *Service) postInvoiceIssue(ctx context.Context, tx TxRepository, in InvoiceInput, number string, pretax, tax, total decimal.Decimal) (Entry, error) {
	receivable, err := lookupRef[Office](ctx, tx, AccountReceivable)
	if err != nil {
		return Entry{}, err
	}
	fees, err := lookupRef[Office](ctx, tx, AccountFees)
	if err != nil {
		return Entry{}, err
	}
	vat, err := lookupRef[Office](ctx, tx, AccountTax)
	if err != nil {
		return Entry{}, err
	}
	lines := newPosting[Office]().
		debit(receivable, total).
		credit(fees, pretax).
		credit(vat, tax).
		build()
	return s.insertPosted(ctx, tx, EntryInput{
		Date:           in.IssueDate,
		Label:          fmt.Sprintf("Facture %s - %s", number, in.Description),
		Journal:        JournalSales,
		Lines:          lines,
		CaseID:         in.CaseID,
		DocumentNumber: number,
		AuthorID:       in.AuthorID,
	}, EntryKindNormal, nil)
}

// MarkInvoicePaid settles an unpaid invoice. Invoices booked on issue also
// get a settlement entry clearing the receivable.
func (s *Service) MarkInvoicePaid(ctx context.Context, invoiceID int64, in PaymentInput) (Invoice, error) {
	if in.Mode == "" {
		in.Mode = PaymentTransfer
	}
	if !validPaymentMode(in.Mode) {
		return Invoice{}, ErrInvalidPaymentMode
	}
	var (
		invoice Invoice
		entry   *Entry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != InvoiceUnpaid {
			return fmt.Errorf("%w: %s to %s", ErrInvalidInvoiceStatus, inv.Status, InvoicePaid)
		}
		date := in.Date
		if date.IsZero() {
			date = s.now()
		}
		if inv.EntryID != nil {
			treasuryNumber, journal := s.settlementRoute(in.Mode)
			treasury, err := lookupRef[Office](ctx, tx, treasuryNumber)
			if err != nil {
				return err
			}
			receivable, err := lookupRef[Office](ctx, tx, AccountReceivable)
			if err != nil {
				return err
			}
			posted, err := s.insertPosted(ctx, tx, EntryInput{
				Date:           date,
				Label:          fmt.Sprintf("Règlement facture %s", inv.Number),
				Journal:        journal,
				Lines:          newPosting[Office]().debit(treasury, inv.Total).credit(receivable, inv.Total).build(),
				CaseID:         inv.CaseID,
				DocumentNumber: inv.Number,
				AuthorID:       in.ActorID,
			}, EntryKindNormal, nil)
			if err != nil {
				return err
			}
			entry = &posted
			inv.PaymentEntryID = &posted.ID
		}
		inv.Status = InvoicePaid
		inv.PaidAt = &date
		if err := tx.UpdateInvoiceStatus(ctx, inv); err != nil {
			return err
		}
		invoice = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	if entry != nil {
		s.afterPosting(ctx, *entry)
	}
	s.record(ctx, in.ActorID, "invoice.pay", "invoice", invoice.ID, map[string]any{"mode": string(in.Mode)})
	return invoice, nil
}

// CancelInvoice voids an unpaid invoice, reversing its issue entry if any.
func (s *Service) CancelInvoice(ctx context.Context, invoiceID, actorID int64) (Invoice, error) {
	var (
		invoice  Invoice
		reversal *Entry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != InvoiceUnpaid {
			return fmt.Errorf("%w: %s to %s", ErrInvalidInvoiceStatus, inv.Status, InvoiceCancelled)
		}
		if inv.EntryID != nil {
			original, err := tx.GetEntryForUpdate(ctx, *inv.EntryID)
			if err != nil {
				return err
			}
			rev, err := s.reverse(ctx, tx, original, ReverseInput{
				EntryID: original.ID,
				ActorID: actorID,
				Label:   fmt.Sprintf("Annulation facture %s", inv.Number),
			})
			if err != nil {
				return err
			}
			reversal = &rev
		}
		inv.Status = InvoiceCancelled
		if err := tx.UpdateInvoiceStatus(ctx, inv); err != nil {
			return err
		}
		invoice = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	if reversal != nil {
		s.afterPosting(ctx, *reversal)
	}
	s.record(ctx, actorID, "invoice.cancel", "invoice", invoice.ID, nil)
	return invoice, nil
}

// GetInvoice fetches an invoice by id.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	var invoice Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		invoice, err = tx.GetInvoice(ctx, id)
		return err
	})
	return invoice, err
}

// ListInvoices returns invoices, most recent first.
func (s *Service) ListInvoices(ctx context.Context, filter DocumentFilter) ([]Invoice, error) {
	filter = normalizeDocumentFilter(filter)
	var invoices []Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		invoices, err = tx.ListInvoices(ctx, filter)
		return err
	})
	return invoices, err
}

func normalizeDocumentFilter(filter DocumentFilter) DocumentFilter {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = defaultDocumentLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return filter
}
