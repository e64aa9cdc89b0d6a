package repository

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kitalumni/backend/internal/database"
	"github.com/kitalumni/backend/internal/domain"
)

// setupTestRepo migrates the database at TEST_DATABASE_URL and returns a
// repository over it. Tests skip when it is not set.
func setupTestRepo(t *testing.T) *PostgresRepository {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	if err := database.RunMigrations(url); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, `TRUNCATE device_tokens, chat_messages, connection_requests, user_connections, users`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	return NewPostgresRepository(pool)
}

func insertUser(t *testing.T, r *PostgresRepository, role domain.Role, name string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := r.db.QueryRow(context.Background(),
		`INSERT INTO users (role, username, email) VALUES ($1, $2, $3) RETURNING id`,
		role, name, name+"@example.com",
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}

func TestPostgres_AcceptIsSingleUse(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	student := insertUser(t, r, domain.RoleStudent, "sam")
	alum := insertUser(t, r, domain.RoleAlumni, "alex")
	now := time.Now()

	req, err := r.CreateRequest(ctx, domain.CreateRequestParams{
		FromID:    student,
		ToID:      alum,
		TokenHash: "0000000000000000000000000000000000000000000000000000000000000000",
		ExpiresAt: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	params := domain.ResolveRequestParams{TokenHash: req.TokenHash, FromID: student, ToID: alum, Now: now}

	var wg sync.WaitGroup
	results := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.AcceptRequest(ctx, params)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case !errors.Is(err, domain.ErrRequestNotFound):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}

	for _, pair := range [][2]uuid.UUID{{student, alum}, {alum, student}} {
		ok, err := r.AreConnected(ctx, pair[0], pair[1])
		if err != nil || !ok {
			t.Errorf("AreConnected(%s, %s) = %v, %v", pair[0], pair[1], ok, err)
		}
	}

	if err := r.RemoveConnection(ctx, alum, student); err != nil {
		t.Fatal(err)
	}
	if err := r.RemoveConnection(ctx, alum, student); err != nil {
		t.Errorf("second RemoveConnection: %v", err)
	}
}

func TestPostgres_ExpiredRequestNotResolvable(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	a := insertUser(t, r, domain.RoleStudent, "a")
	b := insertUser(t, r, domain.RoleAlumni, "b")
	now := time.Now()

	req, err := r.CreateRequest(ctx, domain.CreateRequestParams{
		FromID: a, ToID: b,
		TokenHash: "1111111111111111111111111111111111111111111111111111111111111111",
		ExpiresAt: now.Add(-time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.RejectRequest(ctx, domain.ResolveRequestParams{TokenHash: req.TokenHash, FromID: a, ToID: b, Now: now})
	if !errors.Is(err, domain.ErrRequestNotFound) {
		t.Fatalf("error = %v, want ErrRequestNotFound", err)
	}

	pending, err := r.HasPendingRequest(ctx, a, b, now)
	if err != nil || pending {
		t.Errorf("HasPendingRequest = %v, %v", pending, err)
	}

	n, err := r.DeleteStaleRequests(ctx, now)
	if err != nil || n != 1 {
		t.Errorf("DeleteStaleRequests = %d, %v", n, err)
	}
}

func TestPostgres_SelfRequestRejectedBySchema(t *testing.T) {
	r := setupTestRepo(t)
	a := insertUser(t, r, domain.RoleStudent, "solo")

	_, err := r.CreateRequest(context.Background(), domain.CreateRequestParams{
		FromID: a, ToID: a,
		TokenHash: "2222222222222222222222222222222222222222222222222222222222222222",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err == nil {
		t.Fatal("self request was stored")
	}
}

func TestPostgres_ChatHistory(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	a := insertUser(t, r, domain.RoleStudent, "ann")
	b := insertUser(t, r, domain.RoleAlumni, "ben")
	c := insertUser(t, r, domain.RoleAlumni, "cat")

	first, err := r.CreateMessage(ctx, a, b, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateMessage(ctx, b, a, "hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateMessage(ctx, a, c, "other thread"); err != nil {
		t.Fatal(err)
	}

	if _, err := r.UpdateMessageBody(ctx, first.ID, b, "hijack"); !errors.Is(err, domain.ErrMessageNotFound) {
		t.Errorf("non-sender update error = %v", err)
	}
	edited, err := r.UpdateMessageBody(ctx, first.ID, a, "hi there")
	if err != nil || edited.EditedAt == nil {
		t.Fatalf("UpdateMessageBody = %+v, %v", edited, err)
	}

	history, err := r.GetHistory(ctx, b, a)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Body != "hi there" {
		t.Errorf("history = %+v", history)
	}

	if err := r.DeleteMessage(ctx, first.ID, a); err != nil {
		t.Fatal(err)
	}
	if err := r.DeleteMessage(ctx, first.ID, a); !errors.Is(err, domain.ErrMessageNotFound) {
		t.Errorf("second delete error = %v", err)
	}
}

func TestPostgres_CrossedAcceptsKeepOneEdgePair(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	a := insertUser(t, r, domain.RoleStudent, "kim")
	b := insertUser(t, r, domain.RoleAlumni, "lee")
	now := time.Now()

	hashes := map[[2]uuid.UUID]string{
		{a, b}: "1111111111111111111111111111111111111111111111111111111111111111",
		{b, a}: "2222222222222222222222222222222222222222222222222222222222222222",
	}
	for pair, hash := range hashes {
		if _, err := r.CreateRequest(ctx, domain.CreateRequestParams{
			FromID: pair[0], ToID: pair[1], TokenHash: hash, ExpiresAt: now.Add(time.Hour),
		}); err != nil {
			t.Fatalf("CreateRequest: %v", err)
		}
	}
	for pair, hash := range hashes {
		params := domain.ResolveRequestParams{TokenHash: hash, FromID: pair[0], ToID: pair[1], Now: now}
		if _, err := r.AcceptRequest(ctx, params); err != nil {
			t.Fatalf("AcceptRequest(%v): %v", pair, err)
		}
	}

	for _, id := range []uuid.UUID{a, b} {
		conns, err := r.ListConnections(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if len(conns) != 1 {
			t.Errorf("ListConnections = %d entries, want 1", len(conns))
		}
	}
}

func TestPostgres_HistoryKeepsInsertionOrderOnEqualTimestamps(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	a := insertUser(t, r, domain.RoleStudent, "ann")
	b := insertUser(t, r, domain.RoleAlumni, "ben")

	// One statement, so every row gets the same NOW().
	_, err := r.db.Exec(ctx, `
		INSERT INTO chat_messages (sender_id, receiver_id, body)
		VALUES ($1, $2, '1'), ($2, $1, '2'), ($1, $2, '3'), ($2, $1, '4'), ($1, $2, '5'),
		       ($1, $2, '6'), ($2, $1, '7'), ($1, $2, '8'), ($2, $1, '9'), ($1, $2, '10')`,
		a, b,
	)
	if err != nil {
		t.Fatal(err)
	}

	history, err := r.GetHistory(ctx, a, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 10 {
		t.Fatalf("len(history) = %d, want 10", len(history))
	}
	for i, msg := range history {
		if want := strconv.Itoa(i + 1); msg.Body != want {
			t.Fatalf("history[%d].Body = %q, want %q", i, msg.Body, want)
		}
	}
}

func TestPostgres_Presence(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	a := insertUser(t, r, domain.RoleAlumni, "pat")

	if err := r.SetOnline(ctx, a, true); err != nil {
		t.Fatal(err)
	}
	if err := r.ResetPresence(ctx); err != nil {
		t.Fatal(err)
	}
	u, err := r.GetUserByID(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if u.IsOnline {
		t.Error("ResetPresence left user online")
	}
}
