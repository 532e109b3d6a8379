package pg

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"wasender/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// --- contacts ---

func (s *Store) InsertContact(ctx context.Context, in store.ContactInsert) error {
	b, _ := json.Marshal(in.CustomFields)
	_, err := s.DB.Exec(ctx, `
		INSERT INTO contacts (id, name, phone, email, tags, custom_fields, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
	`, in.ID, in.Name, in.Phone, nullIfEmpty(in.Email), in.Tags, b, in.Now)
	return err
}

func (s *Store) GetContact(ctx context.Context, id string) (store.Contact, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, name, phone, COALESCE(email,''), tags, custom_fields, created_at, updated_at
		FROM contacts WHERE id=$1
	`, id)
	c, err := scanContact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Contact{}, false, nil
		}
		return store.Contact{}, false, err
	}
	return c, true, nil
}

func (s *Store) ListContacts(ctx context.Context) ([]store.Contact, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, phone, COALESCE(email,''), tags, custom_fields, created_at, updated_at
		FROM contacts ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContacts(rows)
}

// ListContactsByIDs returns the contacts for the given ids in id order.
// Missing ids are simply absent from the result; callers that need all of
// them compare lengths.
func (s *Store) ListContactsByIDs(ctx context.Context, ids []string) ([]store.Contact, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, phone, COALESCE(email,''), tags, custom_fields, created_at, updated_at
		FROM contacts WHERE id = ANY($1) ORDER BY id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContacts(rows)
}

func (s *Store) UpdateContact(ctx context.Context, in store.ContactInsert) (bool, error) {
	b, _ := json.Marshal(in.CustomFields)
	ct, err := s.DB.Exec(ctx, `
		UPDATE contacts SET name=$2, phone=$3, email=$4, tags=$5, custom_fields=$6, updated_at=$7
		WHERE id=$1
	`, in.ID, in.Name, in.Phone, nullIfEmpty(in.Email), in.Tags, b, in.Now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// DeleteContact never touches messages; they carry their own copy of
// phone and rendered body.
func (s *Store) DeleteContact(ctx context.Context, id string) (bool, error) {
	ct, err := s.DB.Exec(ctx, `DELETE FROM contacts WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// --- templates ---

func (s *Store) InsertTemplate(ctx context.Context, in store.TemplateInsert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO templates (id, name, body, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$4)
	`, in.ID, in.Name, in.Body, in.Now)
	return err
}

func (s *Store) GetTemplate(ctx context.Context, id string) (store.Template, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, name, body, created_at, updated_at FROM templates WHERE id=$1
	`, id)
	var t store.Template
	err := row.Scan(&t.ID, &t.Name, &t.Body, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Template{}, false, nil
		}
		return store.Template{}, false, err
	}
	return t, true, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]store.Template, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, body, created_at, updated_at FROM templates ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Template
	for rows.Next() {
		var t store.Template
		if err := rows.Scan(&t.ID, &t.Name, &t.Body, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateTemplate(ctx context.Context, in store.TemplateInsert) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE templates SET name=$2, body=$3, updated_at=$4 WHERE id=$1
	`, in.ID, in.Name, in.Body, in.Now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) (bool, error) {
	ct, err := s.DB.Exec(ctx, `DELETE FROM templates WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// --- campaigns ---

// CreateCampaignWithMessages inserts the campaign and its full message set in
// one transaction. If anything fails partway no message rows survive.
func (s *Store) CreateCampaignWithMessages(ctx context.Context, c store.CampaignInsert, msgs []store.MessageInsert) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO campaigns (id, name, body, media_url, media_mime_type, status, scheduled_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, c.ID, c.Name, c.Body, nullIfEmpty(c.MediaURL), nullIfEmpty(c.MediaMimeType), c.Status, c.ScheduledAt, c.Now)
	if err != nil {
		return err
	}

	for _, m := range msgs {
		_, err = tx.Exec(ctx, `
			INSERT INTO messages (id, campaign_id, contact_id, phone, body, status, created_at)
			VALUES ($1,$2,$3,$4,$5,'pending',$6)
		`, m.ID, m.CampaignID, m.ContactID, m.Phone, m.Body, c.Now)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) GetCampaign(ctx context.Context, id string) (store.Campaign, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, name, body, COALESCE(media_url,''), COALESCE(media_mime_type,''),
		       status, scheduled_at, created_at, completed_at
		FROM campaigns WHERE id=$1
	`, id)
	var c store.Campaign
	err := row.Scan(&c.ID, &c.Name, &c.Body, &c.MediaURL, &c.MediaMimeType,
		&c.Status, &c.ScheduledAt, &c.CreatedAt, &c.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Campaign{}, false, nil
		}
		return store.Campaign{}, false, err
	}
	return c, true, nil
}

func (s *Store) ListCampaigns(ctx context.Context, status string) ([]store.Campaign, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, body, COALESCE(media_url,''), COALESCE(media_mime_type,''),
		       status, scheduled_at, created_at, completed_at
		FROM campaigns
		WHERE ($1 = '' OR status = $1)
		ORDER BY id DESC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCampaigns(rows)
}

// ListDueCampaigns returns scheduled campaigns whose time has arrived.
// Claiming them is a separate conditional step; a campaign listed here may
// already be gone by the time the scheduler tries.
func (s *Store) ListDueCampaigns(ctx context.Context, now time.Time) ([]store.Campaign, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, body, COALESCE(media_url,''), COALESCE(media_mime_type,''),
		       status, scheduled_at, created_at, completed_at
		FROM campaigns
		WHERE status='scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCampaigns(rows)
}

// ClaimCampaign is the atomic check-and-set on campaign status. Exactly one
// of any set of racing claimers observes RowsAffected > 0.
func (s *Store) ClaimCampaign(ctx context.Context, in store.CampaignClaim) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE campaigns SET status=$2 WHERE id=$1 AND status = ANY($3)
	`, in.ID, in.To, in.From)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// CompleteCampaign moves running -> completed and stamps completion time.
func (s *Store) CompleteCampaign(ctx context.Context, id string, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE campaigns SET status='completed', completed_at=$2
		WHERE id=$1 AND status='running'
	`, id, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) CampaignStats(ctx context.Context, id string) (store.CampaignStats, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT status, COUNT(*) FROM messages WHERE campaign_id=$1 GROUP BY status
	`, id)
	if err != nil {
		return store.CampaignStats{}, err
	}
	defer rows.Close()

	var st store.CampaignStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return store.CampaignStats{}, err
		}
		switch status {
		case "pending":
			st.Pending = count
		case "sent":
			st.Sent = count
		case "failed":
			st.Failed = count
		}
		st.Total += count
	}
	return st, rows.Err()
}

// DeleteCampaign cascades to the campaign's messages (FK ON DELETE CASCADE).
func (s *Store) DeleteCampaign(ctx context.Context, id string) (bool, error) {
	ct, err := s.DB.Exec(ctx, `DELETE FROM campaigns WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// --- messages ---

// ListPendingMessages returns a campaign's unattempted messages in insertion
// order (ids are ULIDs, so id order is creation order).
func (s *Store) ListPendingMessages(ctx context.Context, campaignID string) ([]store.Message, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, campaign_id, contact_id, phone, body, status, COALESCE(provider_msg_id,''),
		       COALESCE(last_error,''), sent_at, delivered_at, read_at, created_at
		FROM messages WHERE campaign_id=$1 AND status='pending' ORDER BY id
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *Store) ListMessages(ctx context.Context, campaignID string) ([]store.Message, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, campaign_id, contact_id, phone, body, status, COALESCE(provider_msg_id,''),
		       COALESCE(last_error,''), sent_at, delivered_at, read_at, created_at
		FROM messages WHERE campaign_id=$1 ORDER BY id
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *Store) GetMessage(ctx context.Context, id string) (store.Message, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, campaign_id, contact_id, phone, body, status, COALESCE(provider_msg_id,''),
		       COALESCE(last_error,''), sent_at, delivered_at, read_at, created_at
		FROM messages WHERE id=$1
	`, id)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Message{}, false, nil
		}
		return store.Message{}, false, err
	}
	return m, true, nil
}

// MarkMessageOutcome records the terminal status of one send attempt. The
// update is conditional on the row still being pending, so sent/failed never
// revert and an outcome is recorded at most once.
func (s *Store) MarkMessageOutcome(ctx context.Context, in store.MessageOutcome) (bool, error) {
	var ct pgconn.CommandTag
	var err error
	if in.Status == "sent" {
		ct, err = s.DB.Exec(ctx, `
			UPDATE messages SET status='sent', sent_at=$2, provider_msg_id=$3, last_error=NULL
			WHERE id=$1 AND status='pending'
		`, in.ID, in.Now, nullIfEmpty(in.ProviderMsgID))
	} else {
		ct, err = s.DB.Exec(ctx, `
			UPDATE messages SET status='failed', last_error=$2
			WHERE id=$1 AND status='pending'
		`, in.ID, nullIfEmpty(in.LastError))
	}
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// UpdateReceipt stamps delivered/read times only when the transport reports
// them; unset timestamps stay NULL.
func (s *Store) UpdateReceipt(ctx context.Context, in store.ReceiptUpdate) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE messages SET
			delivered_at = CASE WHEN $2 AND delivered_at IS NULL THEN $4 ELSE delivered_at END,
			read_at      = CASE WHEN $3 AND read_at IS NULL THEN $4 ELSE read_at END
		WHERE provider_msg_id=$1 AND status='sent'
	`, in.ProviderMsgID, in.Delivered, in.Read, in.Now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (store.Contact, error) {
	var c store.Contact
	var fieldsJSON []byte
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Tags, &fieldsJSON, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return store.Contact{}, err
	}
	_ = json.Unmarshal(fieldsJSON, &c.CustomFields)
	return c, nil
}

func collectContacts(rows pgx.Rows) ([]store.Contact, error) {
	var out []store.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func collectCampaigns(rows pgx.Rows) ([]store.Campaign, error) {
	var out []store.Campaign
	for rows.Next() {
		var c store.Campaign
		err := rows.Scan(&c.ID, &c.Name, &c.Body, &c.MediaURL, &c.MediaMimeType,
			&c.Status, &c.ScheduledAt, &c.CreatedAt, &c.CompletedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanMessage(row rowScanner) (store.Message, error) {
	var m store.Message
	err := row.Scan(&m.ID, &m.CampaignID, &m.ContactID, &m.Phone, &m.Body, &m.Status,
		&m.ProviderMsgID, &m.LastError, &m.SentAt, &m.DeliveredAt, &m.ReadAt, &m.CreatedAt)
	if err != nil {
		return store.Message{}, err
	}
	return m, nil
}

func collectMessages(rows pgx.Rows) ([]store.Message, error) {
	var out []store.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
