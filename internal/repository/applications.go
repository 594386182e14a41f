package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/churnistic/churnistic/internal/domain"
)

const applicationColumns = `
	id, user_id, card_id, status, applied_at, approved_at, closed_at,
	spend_progress, spend_deadline, bonus_earned_at, annual_fee_paid, notes
`

// CreateApplication inserts a new card application.
func (r *SQLRepository) CreateApplication(ctx context.Context, app *domain.CardApplication) error {
	if app.ID == "" || app.UserID == "" || app.CardID == "" {
		return fmt.Errorf("%w: application id, user id and card id are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO card_applications (
			id, user_id, card_id, status, applied_at, approved_at, closed_at,
			spend_progress, spend_deadline, bonus_earned_at, annual_fee_paid, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		app.ID, app.UserID, app.CardID, string(app.Status), app.AppliedAt,
		nullTime(app.ApprovedAt), nullTime(app.ClosedAt),
		app.SpendProgress, nullTime(app.SpendDeadline), nullTime(app.BonusEarnedAt),
		boolInt(app.AnnualFeePaid), app.Notes,
	)
	return err
}

// GetApplication retrieves an application owned by the given user.
// Applications belonging to other users are reported as not found.
func (r *SQLRepository) GetApplication(ctx context.Context, userID, appID string) (*domain.CardApplication, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM card_applications
		WHERE id = ? AND user_id = ?
	`, applicationColumns)

	app, err := scanApplication(r.db.QueryRowContext(ctx, r.rebind(query), appID, userID))
	if err != nil {
		return nil, err
	}
	return app, nil
}

// ListApplications retrieves a page of the user's applications, most recent
// first. The cursor is the id of the first row of the requested page; the
// returned NextCursor, when set, is the id to pass for the following page.
func (r *SQLRepository) ListApplications(ctx context.Context, userID string, limit int, cursor string) (*domain.ApplicationPage, error) {
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(`
		SELECT %s FROM card_applications
		WHERE user_id = ?
	`, applicationColumns)
	args := []any{userID}

	if cursor != "" {
		query += `
		AND (applied_at < (SELECT applied_at FROM card_applications WHERE id = ?)
		     OR (applied_at = (SELECT applied_at FROM card_applications WHERE id = ?) AND id <= ?))
		`
		args = append(args, cursor, cursor, cursor)
	}

	query += ` ORDER BY applied_at DESC, id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []*domain.CardApplication
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &domain.ApplicationPage{Items: apps}
	if len(apps) > limit {
		page.NextCursor = apps[limit].ID
		page.Items = apps[:limit]
	}

	return page, nil
}

// UpdateApplicationStatus applies a status transition to a user's application.
func (r *SQLRepository) UpdateApplicationStatus(ctx context.Context, userID, appID string, update domain.StatusUpdate) (*domain.CardApplication, error) {
	query := `
		UPDATE card_applications
		SET status = ?,
		    approved_at = COALESCE(?, approved_at),
		    closed_at = COALESCE(?, closed_at),
		    spend_deadline = COALESCE(?, spend_deadline),
		    notes = COALESCE(?, notes)
		WHERE id = ? AND user_id = ?
	`

	var notes any
	if update.Notes != nil {
		notes = *update.Notes
	}

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(update.Status),
		nullTime(update.ApprovedAt), nullTime(update.ClosedAt),
		nullTime(update.SpendDeadline), notes,
		appID, userID,
	)
	if err != nil {
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrNotFound
	}

	return r.GetApplication(ctx, userID, appID)
}

// AddSpend increments spend progress and marks the bonus earned the moment
// cumulative spend crosses the card's minimum. The stamp is a conditional
// UPDATE on bonus_earned_at IS NULL, so of any number of concurrent updates
// exactly one observes BonusEarned=true.
func (r *SQLRepository) AddSpend(ctx context.Context, userID, appID string, amount, minSpend float64, date time.Time) (*domain.SpendResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, r.rebind(`
		UPDATE card_applications
		SET spend_progress = spend_progress + ?
		WHERE id = ? AND user_id = ?
	`), amount, appID, userID)
	if err != nil {
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrNotFound
	}

	result, err = tx.ExecContext(ctx, r.rebind(`
		UPDATE card_applications
		SET bonus_earned_at = ?
		WHERE id = ? AND user_id = ? AND bonus_earned_at IS NULL AND spend_progress >= ?
	`), date.UTC(), appID, userID, minSpend)
	if err != nil {
		return nil, err
	}

	stamped, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	app, err := r.GetApplication(ctx, userID, appID)
	if err != nil {
		return nil, err
	}

	return &domain.SpendResult{
		Application: app,
		BonusEarned: stamped == 1,
	}, nil
}

// CountApplicationsSince counts a user's applications submitted on or after
// the given time, across all issuers.
func (r *SQLRepository) CountApplicationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM card_applications WHERE user_id = ? AND applied_at >= ?`

	var count int
	err := r.db.QueryRowContext(ctx, r.rebind(query), userID, since.UTC()).Scan(&count)
	return count, err
}

// CountIssuerApplications counts a user's approved or pending applications
// for cards of the given issuer, submitted on or after the given time.
func (r *SQLRepository) CountIssuerApplications(ctx context.Context, userID, issuer string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM card_applications a
		JOIN cards c ON c.id = a.card_id
		WHERE a.user_id = ? AND c.issuer = ?
		  AND a.status IN ('APPROVED', 'PENDING')
		  AND a.applied_at >= ?
	`

	var count int
	err := r.db.QueryRowContext(ctx, r.rebind(query), userID, issuer, since.UTC()).Scan(&count)
	return count, err
}

// LatestIssuerApplication returns the user's most recent application for any
// card of the given issuer, or nil if they never applied to one.
func (r *SQLRepository) LatestIssuerApplication(ctx context.Context, userID, issuer string) (*domain.CardApplication, error) {
	query := `
		SELECT a.id, a.user_id, a.card_id, a.status, a.applied_at, a.approved_at,
		       a.closed_at, a.spend_progress, a.spend_deadline, a.bonus_earned_at,
		       a.annual_fee_paid, a.notes
		FROM card_applications a
		JOIN cards c ON c.id = a.card_id
		WHERE a.user_id = ? AND c.issuer = ?
		ORDER BY a.applied_at DESC
		LIMIT 1
	`

	app, err := scanApplication(r.db.QueryRowContext(ctx, r.rebind(query), userID, issuer))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return app, nil
}

// LatestBonusEarned returns the user's application that most recently earned
// the bonus on the given card, or nil if the bonus was never earned.
func (r *SQLRepository) LatestBonusEarned(ctx context.Context, userID, cardID string) (*domain.CardApplication, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM card_applications
		WHERE user_id = ? AND card_id = ? AND bonus_earned_at IS NOT NULL
		ORDER BY bonus_earned_at DESC
		LIMIT 1
	`, applicationColumns)

	app, err := scanApplication(r.db.QueryRowContext(ctx, r.rebind(query), userID, cardID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return app, nil
}

// SaveRetentionOffer records an offer received on a user's application.
func (r *SQLRepository) SaveRetentionOffer(ctx context.Context, offer *domain.RetentionOffer) error {
	if offer.ID == "" || offer.ApplicationID == "" {
		return fmt.Errorf("%w: offer id and application id are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO retention_offers (
			id, application_id, card_id, offer_date, points_offered,
			statement_credit, spend_required, accepted, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var accepted any
	if offer.Accepted != nil {
		accepted = boolInt(*offer.Accepted)
	}

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		offer.ID, offer.ApplicationID, offer.CardID, offer.OfferDate,
		nullFloat(offer.PointsOffered), nullFloat(offer.StatementCredit),
		nullFloat(offer.SpendRequired), accepted, offer.Notes,
	)
	return err
}

// ListRetentionOffers retrieves all offers recorded on an application,
// most recent first.
func (r *SQLRepository) ListRetentionOffers(ctx context.Context, appID string) ([]*domain.RetentionOffer, error) {
	query := `
		SELECT id, application_id, card_id, offer_date, points_offered,
		       statement_credit, spend_required, accepted, notes
		FROM retention_offers
		WHERE application_id = ?
		ORDER BY offer_date DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []*domain.RetentionOffer
	for rows.Next() {
		var offer domain.RetentionOffer
		var points, credit, spend sql.NullFloat64
		var accepted sql.NullInt64
		var notes sql.NullString

		if err := rows.Scan(
			&offer.ID, &offer.ApplicationID, &offer.CardID, &offer.OfferDate,
			&points, &credit, &spend, &accepted, &notes,
		); err != nil {
			return nil, err
		}

		offer.PointsOffered = floatPtr(points)
		offer.StatementCredit = floatPtr(credit)
		offer.SpendRequired = floatPtr(spend)
		if accepted.Valid {
			v := accepted.Int64 == 1
			offer.Accepted = &v
		}
		offer.Notes = notes.String
		offers = append(offers, &offer)
	}

	return offers, rows.Err()
}

func scanApplication(row rowScanner) (*domain.CardApplication, error) {
	var app domain.CardApplication
	var status string
	var approvedAt, closedAt, spendDeadline, bonusEarnedAt sql.NullTime
	var feePaid int
	var notes sql.NullString

	err := row.Scan(
		&app.ID, &app.UserID, &app.CardID, &status, &app.AppliedAt,
		&approvedAt, &closedAt, &app.SpendProgress, &spendDeadline,
		&bonusEarnedAt, &feePaid, &notes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	app.Status = domain.CardStatus(status)
	app.ApprovedAt = timePtr(approvedAt)
	app.ClosedAt = timePtr(closedAt)
	app.SpendDeadline = timePtr(spendDeadline)
	app.BonusEarnedAt = timePtr(bonusEarnedAt)
	app.AnnualFeePaid = feePaid == 1
	app.Notes = notes.String

	return &app, nil
}
