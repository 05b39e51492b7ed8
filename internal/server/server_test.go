package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"kudosbot/internal/db"
	"kudosbot/internal/domain"
	"kudosbot/internal/events"
	"kudosbot/internal/ledger"
	"kudosbot/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	ledger ledger.Ledger
	client *http.Client
	close  func()
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	l := ledger.Ledger{DB: conn}
	handler, err := New(Config{
		Ledger:   l,
		Events:   events.Writer{DB: conn},
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		ledger: l,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.close)
	return ts
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func get(t *testing.T, ts *testServer, path, token string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func seedAward(t *testing.T, l ledger.Ledger, id, awardee string, at time.Time) {
	t.Helper()
	a := domain.Award{
		ID:                    id,
		SubmissionID:          "s1",
		SubmissionAuthor:      "op",
		AwardedCommentID:      id + "-awarded",
		AwardedCommentAuthor:  awardee,
		AwardingCommentID:     id + "-awarding",
		AwardingCommentAuthor: "alice",
		AwardingCommentTime:   float64(at.Unix()),
	}
	tx, err := l.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := l.RecordAward(context.Background(), tx, a); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	ts := newTestServer(t)
	res, data := get(t, ts, "/v0/health", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, data)
	}
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	ts := newTestServer(t)
	res, _ := get(t, ts, "/v0/awards", "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", res.StatusCode)
	}
	res, _ = get(t, ts, "/v0/awards", "not-a-jwt")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: status %d, want 401", res.StatusCode)
	}
}

func TestListAwardsWithFilters(t *testing.T) {
	ts := newTestServer(t)
	march := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	april := time.Date(2024, time.April, 10, 0, 0, 0, 0, time.UTC)
	seedAward(t, ts.ledger, "a1", "bob", march)
	seedAward(t, ts.ledger, "a2", "carol", april)
	token := signToken(t, "tester")

	res, data := get(t, ts, "/v0/awards", token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	var body struct {
		Awards []domain.Award `json:"awards"`
		Total  int            `json:"total"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Total != 2 {
		t.Fatalf("total = %d, want 2", body.Total)
	}

	res, data = get(t, ts, "/v0/awards?year=2024&month=3", token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Total != 1 || body.Awards[0].AwardedCommentAuthor != "bob" {
		t.Fatalf("march filter: %+v", body)
	}

	res, _ = get(t, ts, "/v0/awards?year=2024", token)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("year without month: status %d, want 400", res.StatusCode)
	}
}

func TestScoreboard(t *testing.T) {
	ts := newTestServer(t)
	now := time.Now().UTC()
	seedAward(t, ts.ledger, "a1", "bob", now.Add(-2*time.Hour))
	seedAward(t, ts.ledger, "a2", "bob", now.Add(-1*time.Hour))
	seedAward(t, ts.ledger, "a3", "carol", now)
	token := signToken(t, "tester")

	res, data := get(t, ts, "/v0/scoreboard?limit=1", token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	var body struct {
		Leaders []struct {
			Awardee string `json:"awardee"`
			Awards  int    `json:"awards"`
		} `json:"leaders"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Leaders) != 1 || body.Leaders[0].Awardee != "bob" || body.Leaders[0].Awards != 2 {
		t.Fatalf("unexpected scoreboard: %+v", body.Leaders)
	}
}

func TestGetDisposition(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, "tester")

	res, _ := get(t, ts, "/v0/dispositions/nope", token)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", res.StatusCode)
	}

	entry := domain.DispositionLog{CommentID: "c1", Dispo: domain.Confirmed, ReplyID: "r1", CommentTime: 1000}
	err := inTx(t, ts.ledger.DB, func(tx *sql.Tx) error {
		return ts.ledger.UpsertDispositionLog(context.Background(), tx, entry)
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	res, data := get(t, ts, "/v0/dispositions/c1", token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	var body struct {
		Dispo   string `json:"dispo"`
		ReplyID string `json:"reply_id"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Dispo != "confirmed" || body.ReplyID != "r1" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func inTx(t *testing.T, conn *sql.DB, fn func(tx *sql.Tx) error) error {
	t.Helper()
	tx, err := conn.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
