//go:build integration
// +build integration

package integration

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"wasender/internal/resolver"
	"wasender/internal/store"
	"wasender/internal/store/pg"
	"wasender/internal/util"
)

func seedContacts(t *testing.T, st *pg.Store, n int) []store.Contact {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	var out []store.Contact
	for i := 0; i < n; i++ {
		in := store.ContactInsert{
			ID:    util.NewContactID(),
			Name:  fmt.Sprintf("Contact %d", i),
			Phone: fmt.Sprintf("+55119999000%02d", i),
			Now:   now,
		}
		if err := st.InsertContact(ctx, in); err != nil {
			t.Fatalf("insert contact: %v", err)
		}
		out = append(out, store.Contact{ID: in.ID, Name: in.Name, Phone: in.Phone})
	}
	return out
}

func createCampaign(t *testing.T, st *pg.Store, contacts []store.Contact, status string) string {
	t.Helper()
	id := util.NewCampaignID()
	msgs, err := resolver.Resolve(id, "Hi {name}", contacts)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	err = st.CreateCampaignWithMessages(context.Background(), store.CampaignInsert{
		ID:     id,
		Name:   "it-campaign",
		Body:   "Hi {name}",
		Status: status,
		Now:    time.Now().UTC(),
	}, msgs)
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return id
}

func TestCampaignLifecycleRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()
	st := pg.New(db)

	contacts := seedContacts(t, st, 3)
	id := createCampaign(t, st, contacts, "draft")

	pending, err := st.ListPendingMessages(ctx, id)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d", len(pending))
	}
	if pending[0].Body != "Hi Contact 0" {
		t.Fatalf("body %q", pending[0].Body)
	}

	// Claim draft -> running; a second claim must lose.
	claim := store.CampaignClaim{ID: id, From: []string{"draft", "scheduled", "paused"}, To: "running"}
	won, err := st.ClaimCampaign(ctx, claim)
	if err != nil || !won {
		t.Fatalf("first claim: won=%v err=%v", won, err)
	}
	won, err = st.ClaimCampaign(ctx, claim)
	if err != nil || won {
		t.Fatalf("second claim must lose: won=%v err=%v", won, err)
	}

	// Record outcomes: two sent, one failed.
	now := time.Now().UTC()
	for i, m := range pending {
		out := store.MessageOutcome{ID: m.ID, Status: "sent", ProviderMsgID: fmt.Sprintf("wam_%d", i), Now: now}
		if i == 2 {
			out = store.MessageOutcome{ID: m.ID, Status: "failed", LastError: "channel not ready", Now: now}
		}
		ok, err := st.MarkMessageOutcome(ctx, out)
		if err != nil || !ok {
			t.Fatalf("mark outcome %d: ok=%v err=%v", i, ok, err)
		}
	}

	// An outcome is recorded at most once.
	ok, err := st.MarkMessageOutcome(ctx, store.MessageOutcome{ID: pending[0].ID, Status: "failed", LastError: "late", Now: now})
	if err != nil || ok {
		t.Fatalf("re-mark must be a no-op: ok=%v err=%v", ok, err)
	}

	stats, err := st.CampaignStats(ctx, id)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Sent != 2 || stats.Failed != 1 || stats.Pending != 0 {
		t.Fatalf("stats %+v", stats)
	}

	done, err := st.CompleteCampaign(ctx, id, time.Now().UTC())
	if err != nil || !done {
		t.Fatalf("complete: done=%v err=%v", done, err)
	}
	c, found, err := st.GetCampaign(ctx, id)
	if err != nil || !found {
		t.Fatalf("get campaign: found=%v err=%v", found, err)
	}
	if c.Status != "completed" || c.CompletedAt == nil {
		t.Fatalf("campaign %+v", c)
	}
}

func TestReceiptUpdateByProviderID(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()
	st := pg.New(db)

	contacts := seedContacts(t, st, 1)
	id := createCampaign(t, st, contacts, "running")
	pending, _ := st.ListPendingMessages(ctx, id)

	now := time.Now().UTC()
	if _, err := st.MarkMessageOutcome(ctx, store.MessageOutcome{
		ID: pending[0].ID, Status: "sent", ProviderMsgID: "wam_42", Now: now,
	}); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	ok, err := st.UpdateReceipt(ctx, store.ReceiptUpdate{ProviderMsgID: "wam_42", Delivered: true, Read: true, Now: now})
	if err != nil || !ok {
		t.Fatalf("receipt: ok=%v err=%v", ok, err)
	}

	m, found, err := st.GetMessage(ctx, pending[0].ID)
	if err != nil || !found {
		t.Fatalf("get message: found=%v err=%v", found, err)
	}
	if m.DeliveredAt == nil || m.ReadAt == nil {
		t.Fatalf("receipt timestamps not set: %+v", m)
	}

	// Unknown provider id matches nothing.
	ok, err = st.UpdateReceipt(ctx, store.ReceiptUpdate{ProviderMsgID: "wam_unknown", Delivered: true, Now: now})
	if err != nil || ok {
		t.Fatalf("unknown receipt: ok=%v err=%v", ok, err)
	}
}

func TestDueCampaignsListing(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()
	st := pg.New(db)

	contacts := seedContacts(t, st, 1)
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	dueID := util.NewCampaignID()
	msgs, _ := resolver.Resolve(dueID, "hi", contacts)
	if err := st.CreateCampaignWithMessages(ctx, store.CampaignInsert{
		ID: dueID, Name: "due", Body: "hi", Status: "scheduled", ScheduledAt: &past, Now: now,
	}, msgs); err != nil {
		t.Fatalf("create due: %v", err)
	}

	laterID := util.NewCampaignID()
	msgs, _ = resolver.Resolve(laterID, "hi", contacts)
	if err := st.CreateCampaignWithMessages(ctx, store.CampaignInsert{
		ID: laterID, Name: "later", Body: "hi", Status: "scheduled", ScheduledAt: &future, Now: now,
	}, msgs); err != nil {
		t.Fatalf("create later: %v", err)
	}

	due, err := st.ListDueCampaigns(ctx, now)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].ID != dueID {
		t.Fatalf("due %+v", due)
	}
}

func TestDeleteCampaignCascades(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()
	st := pg.New(db)

	contacts := seedContacts(t, st, 2)
	id := createCampaign(t, st, contacts, "draft")

	ok, err := st.DeleteCampaign(ctx, id)
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}

	var count int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE campaign_id=$1`, id).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected cascade delete, %d messages remain", count)
	}

	// Deleting a contact leaves message history intact.
	id2 := createCampaign(t, st, contacts, "draft")
	if _, err := st.DeleteContact(ctx, contacts[0].ID); err != nil {
		t.Fatalf("delete contact: %v", err)
	}
	msgs, err := st.ListMessages(ctx, id2)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages after contact delete, got %d", len(msgs))
	}
}

func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN not set")
	}

	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())
	admin, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect admin db: %v", err)
	}

	_, err = admin.Exec(context.Background(), "CREATE SCHEMA "+schema)
	if err != nil {
		admin.Close()
		t.Fatalf("create schema: %v", err)
	}

	dbDSN, err := withSearchPath(dsn, schema)
	if err != nil {
		admin.Close()
		t.Fatalf("build dsn: %v", err)
	}

	db, err := pgxpool.New(context.Background(), dbDSN)
	if err != nil {
		admin.Close()
		t.Fatalf("connect test db: %v", err)
	}

	sqlPath := filepath.Join("..", "..", "migrations", "001_init.sql")
	sqlBytes, err := os.ReadFile(sqlPath)
	if err != nil {
		db.Close()
		admin.Close()
		t.Fatalf("read migrations: %v", err)
	}

	if _, err := db.Exec(context.Background(), string(sqlBytes)); err != nil {
		db.Close()
		admin.Close()
		t.Fatalf("run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	}

	return db, cleanup
}

func withSearchPath(dsn, schema string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	q := u.Query()
	opts := q.Get("options")
	if opts != "" {
		opts = opts + " -c search_path=" + schema
	} else {
		opts = "-c search_path=" + schema
	}
	q.Set("options", opts)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
