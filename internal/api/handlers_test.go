package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dallylee/pt-authority-hub-landing/internal/auth"
	"github.com/dallylee/pt-authority-hub-landing/internal/cache"
	"github.com/dallylee/pt-authority-hub-landing/internal/domain"
	"github.com/dallylee/pt-authority-hub-landing/internal/logger"
	"github.com/dallylee/pt-authority-hub-landing/internal/notify"
	"github.com/dallylee/pt-authority-hub-landing/internal/reviews"
	"github.com/dallylee/pt-authority-hub-landing/internal/signing"
	"github.com/dallylee/pt-authority-hub-landing/internal/storage"
	"github.com/dallylee/pt-authority-hub-landing/internal/triage"
)

const testWorkspace = "ws-1"

var jwtConfig = auth.Config{Secret: "jwt-secret", Issuer: "pt-authority-hub"}

type fixture struct {
	t       *testing.T
	repo    *memRepo
	objects *memObjects
	mailer  *recordingMailer
	links   *stubLinks
	signer  *signing.Signer
	reviews *stubReviews
	handler *Handler
	server  http.Handler
}

func newFixture(t *testing.T, mutate ...func(*Config, *Deps)) *fixture {
	t.Helper()
	signer, err := signing.NewSigner("download-secret")
	require.NoError(t, err)

	f := &fixture{
		t:       t,
		repo:    newMemRepo(),
		objects: &memObjects{items: map[string]memObject{}},
		mailer:  &recordingMailer{},
		links:   &stubLinks{},
		signer:  signer,
		reviews: &stubReviews{resp: reviews.Response{Status: reviews.StatusFallback, Data: reviews.Fallback()}},
	}

	cfg := Config{
		WorkspaceID:        testWorkspace,
		PublicBaseURL:      "https://hub.example.com",
		CORSAllowedOrigin:  "https://www.example.com",
		UploadMaxBytes:     1024,
		UploadAllowedTypes: []string{"application/pdf", "image/jpeg", "image/png", "text/csv"},
		SpotsRemaining:     3,
	}
	deps := Deps{
		Leads:   domain.NewService(f.repo, f.mailer, logger.NewTest(t)),
		Links:   f.links,
		Objects: f.objects,
		Signer:  signer,
		Mailer:  f.mailer,
		Reviews: f.reviews,
		Log:     logger.NewTest(t),
	}
	for _, m := range mutate {
		m(&cfg, &deps)
	}

	f.handler = NewHandler(cfg, deps)
	f.server = f.handler.Routes(auth.NewMiddleware(jwtConfig, rejectSessions{}, testWorkspace))
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.server.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) bearer(scopes ...string) string {
	token, err := auth.Issue(jwtConfig, "coach", testWorkspace, scopes, time.Hour)
	require.NoError(f.t, err)
	return "Bearer " + token
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rr := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestIngestLeadStoresAndReturnsTriage(t *testing.T) {
	f := newFixture(t)

	rr := f.do(jsonRequest(http.MethodPost, "/api/leads/ingest", `{
		"email": "sam@example.com",
		"first_name": "Sam",
		"consent": true,
		"start_timing": "This Week",
		"monthly_investment": "£600+",
		"time_commitment_weekly": "5+ hours",
		"training_days_current": "6+ days",
		"coaching_preference": "Online"
	}`))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Len(t, resp.LeadToken, 64)
	assert.Equal(t, "HOT", resp.Segment)
	assert.NotEmpty(t, resp.Bottleneck)
	assert.NotNil(t, resp.Reasons)

	stored, ok := f.repo.leads[resp.LeadID]
	require.True(t, ok)
	assert.Equal(t, "Sam", stored.FirstName)
	assert.Equal(t, domain.HashToken(resp.LeadToken), stored.LeadTokenHash)
}

func TestIngestLeadAliasRoute(t *testing.T) {
	f := newFixture(t)
	rr := f.do(jsonRequest(http.MethodPost, "/api/lead", `{"email":"a@b.co","consent":"yes"}`))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Len(t, f.repo.leads, 1)
}

func TestIngestLeadValidation(t *testing.T) {
	cases := map[string]string{
		"missing email":   `{"consent":true}`,
		"email without @": `{"email":"nope","consent":true}`,
		"missing consent": `{"email":"a@b.co"}`,
		"consent false":   `{"email":"a@b.co","consent":false}`,
		"consent no":      `{"email":"a@b.co","consent":"no"}`,
		"answer not text": `{"email":"a@b.co","consent":true,"main_goal":7}`,
		"not json":        `email=a@b.co`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			rr := f.do(jsonRequest(http.MethodPost, "/api/leads/ingest", body))
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.Empty(t, f.repo.leads)
		})
	}
}

func TestIngestLeadHoneypot(t *testing.T) {
	f := newFixture(t)
	rr := f.do(jsonRequest(http.MethodPost, "/api/leads/ingest", `{"email":"bot@spam.io","consent":"on","company":"Acme"}`))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "Spam filtered", body["message"])
	assert.Empty(t, f.repo.leads)
}

func TestIngestLeadPersistenceFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.createErr = errors.New("db down")

	rr := f.do(jsonRequest(http.MethodPost, "/api/leads/ingest", `{"email":"a@b.co","consent":true}`))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "db down")
}

type uploadForm struct {
	fields      map[string]string
	fileName    string
	contentType string
	content     string
}

func multipartRequest(t *testing.T, form uploadForm) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range form.fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if form.fileName != "" {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, form.fileName))
		h.Set("Content-Type", form.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = io.WriteString(part, form.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadStoresLinksAndNotifies(t *testing.T) {
	f := newFixture(t)
	leadID := "6f1c9f5e-3b7a-4f8e-9a51-0c2d4e6f8a10"
	f.repo.leads[leadID] = domain.LeadAggregate{ID: leadID, WorkspaceID: testWorkspace, LeadTokenHash: domain.HashToken("lead-token")}

	rr := f.do(multipartRequest(t, uploadForm{
		fields: map[string]string{
			"email":     "sam@example.com",
			"consent":   "true",
			"leadId":    leadID,
			"leadToken": "lead-token",
		},
		fileName:    "my log.csv",
		contentType: "text/csv",
		content:     "day,sets\n1,5\n",
	}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "sent", resp.EmailNotice)
	assert.Equal(t, "my log.csv", resp.OriginalName)
	assert.Equal(t, int64(13), resp.Size)
	now := time.Now().UTC()
	assert.True(t, strings.HasPrefix(resp.Key, fmt.Sprintf("uploads/%04d/%02d/%s/", now.Year(), now.Month(), leadID)), resp.Key)
	assert.True(t, strings.HasSuffix(resp.Key, "_my_log.csv"))

	obj, ok := f.objects.items[resp.Key]
	require.True(t, ok)
	assert.Equal(t, leadID, obj.info.LeadID)
	assert.Equal(t, "sam@example.com", obj.info.Email)

	require.Len(t, f.repo.uploads, 1)
	assert.Equal(t, leadID, f.repo.uploads[0].LeadID)

	require.Len(t, f.mailer.uploads, 1)
	link := f.mailer.uploads[0].DownloadURL
	require.True(t, strings.HasPrefix(link, "https://hub.example.com/api/download?t="), link)

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	dl := f.do(httptest.NewRequest(http.MethodGet, parsed.RequestURI(), nil))
	require.Equal(t, http.StatusOK, dl.Code, dl.Body.String())
	assert.Equal(t, "day,sets\n1,5\n", dl.Body.String())
	assert.Equal(t, "text/csv", dl.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="my log.csv"`, dl.Header().Get("Content-Disposition"))
	assert.Equal(t, "private, no-cache", dl.Header().Get("Cache-Control"))
}

func TestUploadWithUnknownTokenIsUnlinked(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("ses down")

	rr := f.do(multipartRequest(t, uploadForm{
		fields:      map[string]string{"email": "sam@example.com", "consent": "true", "leadToken": "forged"},
		fileName:    "plan.pdf",
		contentType: "application/pdf",
		content:     "%PDF",
	}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp.EmailNotice)
	assert.Contains(t, resp.Key, "/unknown/")
	require.Len(t, f.repo.uploads, 1)
	assert.Empty(t, f.repo.uploads[0].LeadID)
}

func TestUploadRejections(t *testing.T) {
	valid := map[string]string{"email": "sam@example.com", "consent": "true"}
	cases := []struct {
		name   string
		form   uploadForm
		detail string
	}{
		{"no file", uploadForm{fields: valid}, "No file provided"},
		{"bad email", uploadForm{fields: map[string]string{"email": "sam", "consent": "true"}, fileName: "a.csv", contentType: "text/csv", content: "x"}, "Invalid email"},
		{"no consent", uploadForm{fields: map[string]string{"email": "sam@example.com"}, fileName: "a.csv", contentType: "text/csv", content: "x"}, "Consent required"},
		{"bad type", uploadForm{fields: valid, fileName: "a.exe", contentType: "application/x-msdownload", content: "x"}, "File type not allowed"},
		{"too large", uploadForm{fields: valid, fileName: "a.csv", contentType: "text/csv", content: strings.Repeat("x", 2048)}, "File too large"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			rr := f.do(multipartRequest(t, tc.form))
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.Contains(t, decode(t, rr)["detail"], tc.detail)
			assert.Empty(t, f.objects.items)
		})
	}
}

func TestDownloadRejections(t *testing.T) {
	f := newFixture(t)

	rr := f.do(httptest.NewRequest(http.MethodGet, "/api/download", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(httptest.NewRequest(http.MethodGet, "/api/download?t=garbage", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	token, err := f.signer.Sign("uploads/2026/01/unknown/missing.csv", time.Hour)
	require.NoError(t, err)
	rr = f.do(httptest.NewRequest(http.MethodGet, "/api/download?t="+url.QueryEscape(token), nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRequestLink(t *testing.T) {
	f := newFixture(t)

	rr := f.do(jsonRequest(http.MethodPost, "/api/auth/request-link", `{"email":"not-an-email"}`))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(jsonRequest(http.MethodPost, "/api/auth/request-link", `{"email":" Coach@Example.com "}`))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, linkSentMessage, decode(t, rr)["message"])
	assert.Equal(t, "coach@example.com", f.links.requested)
	assert.Equal(t, "https://hub.example.com", f.links.baseURL)

	f.links.requestErr = errors.New("ses down")
	rr = f.do(jsonRequest(http.MethodPost, "/api/auth/request-link", `{"email":"coach@example.com"}`))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestConsumeLink(t *testing.T) {
	f := newFixture(t)

	rr := f.do(httptest.NewRequest(http.MethodGet, "/api/auth/consume", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	for _, sentinel := range []error{auth.ErrInvalidLink, auth.ErrLinkUsed, auth.ErrLinkExpired, auth.ErrUserNotFound} {
		f.links.consumeErr = sentinel
		rr = f.do(httptest.NewRequest(http.MethodGet, "/api/auth/consume?token=abc", nil))
		require.Equal(t, http.StatusForbidden, rr.Code, sentinel.Error())
	}

	f.links.consumeErr = nil
	f.links.session = auth.Session{Token: "session-token", UserID: "u-1", ExpiresAt: time.Now().Add(auth.SessionTTL)}
	rr = f.do(httptest.NewRequest(http.MethodGet, "/api/auth/consume?token=abc", nil))
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/pt", rr.Header().Get("Location"))

	cookie := rr.Header().Get("Set-Cookie")
	assert.Contains(t, cookie, "pt_session=session-token")
	assert.Contains(t, cookie, "Max-Age=604800")
	assert.Contains(t, cookie, "HttpOnly")
	assert.Contains(t, cookie, "Secure")
	assert.Contains(t, cookie, "SameSite=Lax")
}

func TestLogoutClearsCookie(t *testing.T) {
	f := newFixture(t)
	rr := f.do(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/pt/login", rr.Header().Get("Location"))
	assert.Contains(t, rr.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestSpotsDefaultAndOverride(t *testing.T) {
	f := newFixture(t)
	rr := f.do(httptest.NewRequest(http.MethodGet, "/api/spots", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "no-cache", rr.Header().Get("Cache-Control"))
	body := decode(t, rr)
	assert.Equal(t, float64(3), body["spotsRemaining"])
	assert.Equal(t, "Limited Monthly Capacity", body["message"])

	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set(SpotsKey, "1"))
	f = newFixture(t, func(_ *Config, d *Deps) {
		d.Spots = cache.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	})
	body = decode(t, f.do(httptest.NewRequest(http.MethodGet, "/api/spots", nil)))
	assert.Equal(t, float64(1), body["spotsRemaining"])
	assert.Equal(t, "High Demand: Secure your spot now", body["message"])
}

func TestReviewsCacheHeaderOnlyWhenOK(t *testing.T) {
	f := newFixture(t)
	rr := f.do(httptest.NewRequest(http.MethodGet, "/api/reviews", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Cache-Control"))
	assert.Equal(t, "fallback", decode(t, rr)["status"])

	f.reviews.resp = reviews.Response{Status: reviews.StatusOK, Data: reviews.Data{Rating: 5, UserRatingsTotal: 10}}
	rr = f.do(httptest.NewRequest(http.MethodGet, "/api/reviews", nil))
	assert.Equal(t, "public, max-age=43200", rr.Header().Get("Cache-Control"))
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/leads/ingest", nil)
	req.Header.Set("Origin", "https://www.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	rr := f.do(req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://www.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestConsoleRequiresAuthAndScope(t *testing.T) {
	f := newFixture(t)

	rr := f.do(httptest.NewRequest(http.MethodGet, "/api/pt/leads", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := jsonRequest(http.MethodPatch, "/api/pt/leads/6f1c9f5e-3b7a-4f8e-9a51-0c2d4e6f8a10", `{"notes":"x"}`)
	req.Header.Set("Authorization", f.bearer(auth.ScopeLeadsRead))
	rr = f.do(req)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestConsoleListAndGetLead(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	ids := []string{
		"6f1c9f5e-3b7a-4f8e-9a51-0c2d4e6f8a10",
		"7a2d0a6f-4c8b-4a9f-8b62-1d3e5f7a9b21",
	}
	for i, id := range ids {
		f.repo.leads[id] = domain.LeadAggregate{
			ID:          id,
			WorkspaceID: testWorkspace,
			Email:       fmt.Sprintf("lead%d@example.com", i),
			Triage:      triage.Triage(triage.LeadAnswers{}),
			Status:      domain.LeadStatusNew,
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		}
	}
	f.repo.uploads = []domain.Upload{{ID: "u-1", LeadID: ids[0], FileName: "log.csv", StorageKey: "uploads/k", SizeBytes: 10}}

	req := httptest.NewRequest(http.MethodGet, "/api/pt/leads?limit=1", nil)
	req.Header.Set("Authorization", f.bearer(auth.ScopeLeadsRead))
	rr := f.do(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var list ListLeadsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Leads, 1)
	assert.Equal(t, ids[1], list.Leads[0].ID)
	assert.NotEmpty(t, list.NextCursor)
	assert.Equal(t, 1, f.repo.lastLimit)

	req = httptest.NewRequest(http.MethodGet, "/api/pt/leads/"+ids[0], nil)
	req.Header.Set("Authorization", f.bearer(auth.ScopeLeadsRead))
	rr = f.do(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var detail struct {
		Lead    LeadView     `json:"lead"`
		Uploads []UploadView `json:"uploads"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &detail))
	assert.Equal(t, "lead0@example.com", detail.Lead.ClientEmail)
	require.Len(t, detail.Uploads, 1)
	require.True(t, strings.HasPrefix(detail.Uploads[0].DownloadURL, "/api/download?t="))

	token, err := url.QueryUnescape(strings.TrimPrefix(detail.Uploads[0].DownloadURL, "/api/download?t="))
	require.NoError(t, err)
	key, err := f.signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "uploads/k", key)

	for _, missing := range []string{"9b3e1b7a-5d9c-4bae-9c73-2e4f6a8b0c32", "not-a-uuid"} {
		req = httptest.NewRequest(http.MethodGet, "/api/pt/leads/"+missing, nil)
		req.Header.Set("Authorization", f.bearer(auth.ScopeLeadsRead))
		assert.Equal(t, http.StatusNotFound, f.do(req).Code, missing)
	}
}

func TestConsoleUpdateLead(t *testing.T) {
	f := newFixture(t)
	id := "6f1c9f5e-3b7a-4f8e-9a51-0c2d4e6f8a10"
	f.repo.leads[id] = domain.LeadAggregate{ID: id, WorkspaceID: testWorkspace, Status: domain.LeadStatusNew}

	cases := []struct {
		name string
		path string
		body string
		want int
	}{
		{"empty patch", id, `{}`, http.StatusBadRequest},
		{"bad status", id, `{"status":"MAYBE"}`, http.StatusBadRequest},
		{"unknown lead", "9b3e1b7a-5d9c-4bae-9c73-2e4f6a8b0c32", `{"notes":"x"}`, http.StatusNotFound},
		{"ok", id, `{"notes":"Called Tuesday","status":"REVIEWING"}`, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := jsonRequest(http.MethodPatch, "/api/pt/leads/"+tc.path, tc.body)
			req.Header.Set("Authorization", f.bearer(auth.ScopeLeadsRead, auth.ScopeLeadsWrite))
			rr := f.do(req)
			require.Equal(t, tc.want, rr.Code, rr.Body.String())
		})
	}

	assert.Equal(t, "Called Tuesday", f.repo.leads[id].InternalNotes)
	assert.Equal(t, domain.LeadStatusReviewing, f.repo.leads[id].Status)
}

func TestConsoleSendAnalysis(t *testing.T) {
	f := newFixture(t)
	id := "6f1c9f5e-3b7a-4f8e-9a51-0c2d4e6f8a10"
	f.repo.leads[id] = domain.LeadAggregate{ID: id, WorkspaceID: testWorkspace, Email: "sam@example.com", FirstName: "Sam"}
	authz := f.bearer(auth.ScopeLeadsWrite)

	req := jsonRequest(http.MethodPost, "/api/pt/leads/"+id+"/send-analysis", `{"draft":"  "}`)
	req.Header.Set("Authorization", authz)
	require.Equal(t, http.StatusBadRequest, f.do(req).Code)

	req = jsonRequest(http.MethodPost, "/api/pt/leads/"+id+"/send-analysis", `{"draft":"Your plan"}`)
	req.Header.Set("Authorization", authz)
	rr := f.do(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Analysis sent to sam@example.com", decode(t, rr)["message"])
	require.Len(t, f.mailer.analyses, 1)
	assert.NotNil(t, f.repo.leads[id].AnalysisSentAt)

	f.mailer.err = errors.New("ses down")
	req = jsonRequest(http.MethodPost, "/api/pt/leads/"+id+"/send-analysis", `{"draft":"Again"}`)
	req.Header.Set("Authorization", authz)
	rr = f.do(req)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to send email", decode(t, rr)["detail"])
}

type memRepo struct {
	mu        sync.Mutex
	leads     map[string]domain.LeadAggregate
	uploads   []domain.Upload
	createErr error
	lastLimit int
}

func newMemRepo() *memRepo {
	return &memRepo{leads: map[string]domain.LeadAggregate{}}
}

func (m *memRepo) Create(_ context.Context, lead domain.LeadAggregate) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads[lead.ID] = lead
	return nil
}

func (m *memRepo) Get(_ context.Context, _, leadID string) (*domain.LeadAggregate, error) {
	lead, ok := m.leads[leadID]
	if !ok {
		return nil, nil
	}
	return &lead, nil
}

func (m *memRepo) List(_ context.Context, _ string, _ *domain.Cursor, limit int) ([]domain.LeadAggregate, *domain.Cursor, error) {
	m.lastLimit = limit
	all := make([]domain.LeadAggregate, 0, len(m.leads))
	for _, l := range m.leads {
		all = append(all, l)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if len(all) <= limit {
		return all, nil, nil
	}
	last := all[limit-1]
	return all[:limit], &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
}

func (m *memRepo) Update(_ context.Context, _, leadID string, patch domain.LeadPatch) (bool, error) {
	lead, ok := m.leads[leadID]
	if !ok {
		return false, nil
	}
	if patch.Notes != nil {
		lead.InternalNotes = *patch.Notes
	}
	if patch.Status != nil {
		lead.Status = *patch.Status
	}
	m.leads[leadID] = lead
	return true, nil
}

func (m *memRepo) FindByTokenHash(_ context.Context, _, tokenHash string) (string, error) {
	for id, lead := range m.leads {
		if lead.LeadTokenHash == tokenHash {
			return id, nil
		}
	}
	return "", nil
}

func (m *memRepo) CreateUpload(_ context.Context, upload domain.Upload) error {
	m.uploads = append(m.uploads, upload)
	return nil
}

func (m *memRepo) ListUploads(_ context.Context, _, leadID string) ([]domain.Upload, error) {
	var out []domain.Upload
	for _, u := range m.uploads {
		if u.LeadID == leadID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memRepo) MarkAnalysisSent(_ context.Context, _, leadID, draft string, sentAt time.Time) error {
	lead := m.leads[leadID]
	lead.AnalysisDraft = draft
	lead.AnalysisSentAt = &sentAt
	lead.Status = domain.LeadStatusAnalysisSent
	m.leads[leadID] = lead
	return nil
}

func (m *memRepo) BookingLink(context.Context, string) (string, error) {
	return "", nil
}

type memObject struct {
	data []byte
	info storage.ObjectInfo
}

type memObjects struct {
	items map[string]memObject
}

func (m *memObjects) Put(_ context.Context, key string, body io.Reader, _ int64, info storage.ObjectInfo) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	info.Size = int64(len(data))
	m.items[key] = memObject{data: data, info: info}
	return nil
}

func (m *memObjects) Get(_ context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	obj, ok := m.items[key]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.info, nil
}

type recordingMailer struct {
	uploads  []notify.UploadEmail
	analyses []notify.AnalysisEmail
	err      error
}

func (r *recordingMailer) SendUploadReceived(_ context.Context, msg notify.UploadEmail) error {
	if r.err != nil {
		return r.err
	}
	r.uploads = append(r.uploads, msg)
	return nil
}

func (r *recordingMailer) SendAnalysis(_ context.Context, msg notify.AnalysisEmail) error {
	if r.err != nil {
		return r.err
	}
	r.analyses = append(r.analyses, msg)
	return nil
}

type stubLinks struct {
	requested  string
	baseURL    string
	requestErr error
	session    auth.Session
	consumeErr error
}

func (s *stubLinks) RequestLink(_ context.Context, _, email, baseURL string) error {
	s.requested = email
	s.baseURL = baseURL
	return s.requestErr
}

func (s *stubLinks) Consume(context.Context, string, string) (auth.Session, error) {
	if s.consumeErr != nil {
		return auth.Session{}, s.consumeErr
	}
	return s.session, nil
}

type stubReviews struct {
	resp reviews.Response
}

func (s *stubReviews) Get(context.Context) reviews.Response {
	return s.resp
}

type rejectSessions struct{}

func (rejectSessions) Authenticate(context.Context, string, string) (*auth.Claims, error) {
	return nil, auth.ErrInvalidToken
}
