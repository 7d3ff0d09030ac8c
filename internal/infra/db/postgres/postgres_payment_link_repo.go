package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-billing/internal/domain"
	"course-billing/internal/domain/model"
	"course-billing/internal/domain/ports/repository"
	"course-billing/internal/infra/security"
)

var _ repository.PaymentLinkRepository = (*paymentLinkRepo)(nil)

// paymentLinkRepo stores payment links and their payment attempts. Payer
// contact info is PII and is encrypted at rest; everything else is plaintext.
type paymentLinkRepo struct {
	pool   *pgxpool.Pool
	crypto *security.EncryptionService
}

func NewPaymentLinkRepo(pool *pgxpool.Pool, crypto *security.EncryptionService) *paymentLinkRepo {
	return &paymentLinkRepo{pool: pool, crypto: crypto}
}

const linkColumns = `id, code, amount, description, allow_sbp, allow_card, allow_tpay, requires_auth, usage_type, max_uses, current_uses, expires_at, status, created_by, created_at, updated_at`

func (r *paymentLinkRepo) Save(ctx context.Context, tx repository.Tx, l *model.PaymentLink) error {
	const q = `
INSERT INTO payment_links (id, code, amount, description, allow_sbp, allow_card, allow_tpay, requires_auth, usage_type, max_uses, current_uses, expires_at, status, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (id) DO UPDATE SET
  description=$4, allow_sbp=$5, allow_card=$6, allow_tpay=$7, requires_auth=$8, max_uses=$10, expires_at=$12, status=$13, updated_at=NOW();`

	_, err := execSQL(ctx, r.pool, tx, q,
		l.ID, l.Code, l.Amount, l.Description, l.AllowSBP, l.AllowCard, l.AllowTPay, l.RequiresAuth,
		l.UsageType, l.MaxUses, l.CurrentUses, l.ExpiresAt, l.Status, l.CreatedBy, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentLinkRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.PaymentLink, error) {
	const q = `SELECT ` + linkColumns + ` FROM payment_links WHERE code=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return nil, err
	}
	return scanLink(row)
}

func (r *paymentLinkRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentLink, error) {
	const q = `SELECT ` + linkColumns + ` FROM payment_links WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanLink(row)
}

func (r *paymentLinkRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.PaymentLink, error) {
	const q = `SELECT ` + linkColumns + ` FROM payment_links ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.PaymentLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func (r *paymentLinkRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.LinkStatus) error {
	const q = `UPDATE payment_links SET status=$2, updated_at=NOW() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, status)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IncrementUses bumps the counter and flips the link to exhausted in the same
// statement once the usage policy is satisfied, so two concurrent completions
// cannot overshoot the flip.
func (r *paymentLinkRepo) IncrementUses(ctx context.Context, tx repository.Tx, id string) error {
	const q = `
UPDATE payment_links SET
  current_uses = current_uses + 1,
  status = CASE
    WHEN status='active' AND (
      (usage_type='single' AND current_uses + 1 >= 1) OR
      (usage_type='limited' AND current_uses + 1 >= max_uses)
    ) THEN 'exhausted'
    ELSE status
  END,
  updated_at = NOW()
WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentLinkRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	const q = `DELETE FROM payment_links WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const linkPaymentColumns = `id, link_id, user_id, contact, contact_type, method, provider_payment_id, status, created_at, paid_at`

func (r *paymentLinkRepo) SavePayment(ctx context.Context, tx repository.Tx, p *model.LinkPayment) error {
	contact := p.Contact
	if contact != "" && r.crypto != nil {
		enc, err := r.crypto.Encrypt(contact)
		if err != nil {
			return domain.ErrOperationFailed
		}
		contact = enc
	}
	const q = `
INSERT INTO payment_link_payments (id, link_id, user_id, contact, contact_type, method, provider_payment_id, status, created_at, paid_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET provider_payment_id=$7, status=$8, paid_at=$10;`
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.LinkID, p.UserID, contact, p.ContactType, p.Method, nullIfEmpty(p.ProviderPaymentID), p.Status, p.CreatedAt, p.PaidAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentLinkRepo) FindPaymentByID(ctx context.Context, tx repository.Tx, id string) (*model.LinkPayment, error) {
	const q = `SELECT ` + linkPaymentColumns + ` FROM payment_link_payments WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return r.scanPayment(row)
}

func (r *paymentLinkRepo) ListPaymentsByLink(ctx context.Context, tx repository.Tx, linkID string) ([]*model.LinkPayment, error) {
	const q = `SELECT ` + linkPaymentColumns + ` FROM payment_link_payments WHERE link_id=$1 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, linkID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.LinkPayment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func (r *paymentLinkRepo) UpdatePayment(ctx context.Context, tx repository.Tx, id string, status model.LinkPaymentStatus, providerPaymentID string, paidAt *time.Time) error {
	const q = `UPDATE payment_link_payments SET status=$2, provider_payment_id=COALESCE($3, provider_payment_id), paid_at=COALESCE($4, paid_at) WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, status, nullIfEmpty(providerPaymentID), paidAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanLink(row pgx.Row) (*model.PaymentLink, error) {
	l := &model.PaymentLink{}
	if err := row.Scan(&l.ID, &l.Code, &l.Amount, &l.Description, &l.AllowSBP, &l.AllowCard, &l.AllowTPay, &l.RequiresAuth,
		&l.UsageType, &l.MaxUses, &l.CurrentUses, &l.ExpiresAt, &l.Status, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return l, nil
}

func (r *paymentLinkRepo) scanPayment(row pgx.Row) (*model.LinkPayment, error) {
	p := &model.LinkPayment{}
	var providerID *string
	if err := row.Scan(&p.ID, &p.LinkID, &p.UserID, &p.Contact, &p.ContactType, &p.Method, &providerID, &p.Status, &p.CreatedAt, &p.PaidAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if providerID != nil {
		p.ProviderPaymentID = *providerID
	}
	if p.Contact != "" && r.crypto != nil {
		plain, err := r.crypto.Decrypt(p.Contact)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		p.Contact = plain
	}
	return p, nil
}
