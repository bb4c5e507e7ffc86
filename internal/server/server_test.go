package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"certhub/internal/app"
	"certhub/internal/auth"
	"certhub/internal/recaptcha"
	"certhub/internal/registry"
	"certhub/internal/session"
	"certhub/internal/storage"
)

// fakeObjectStore keeps blobs in memory so handler tests run without MinIO.
type fakeObjectStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{blobs: make(map[string][]byte)}
}

func (f *fakeObjectStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = data
	return nil
}

func (f *fakeObjectStore) Get(_ context.Context, key string) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[key]
	if !ok {
		return nil, 0, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, key)
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	a := app.New(registry.New(), newFakeObjectStore(), "certhub-certificates")
	return New(Config{
		App:        a,
		Gate:       auth.NewGate("admin", "s3cret"),
		Sessions:   session.NewMemoryStore(time.Hour),
		Recaptcha:  recaptcha.NewClient(""),
		SessionTTL: time.Hour,
	})
}

func doJSON(t *testing.T, s *Server, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, s *Server) *http.Cookie {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "admin",
		"password": "s3cret",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookie && c.Value != "" {
			return c
		}
	}
	t.Fatalf("login response carries no session cookie")
	return nil
}

func uploadPDF(t *testing.T, s *Server, cookie *http.Cookie, name string, data []byte) map[string]any {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/certificates/upload", map[string]string{
		"title":          "AWS Cert",
		"credentialLink": "https://example.com/cred",
		"fileName":       name,
		"fileData":       base64.StdEncoding.EncodeToString(data),
	}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var view map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return view
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "admin",
		"password": "wrong",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success || resp.Message != "Invalid credentials" {
		t.Fatalf("unexpected failure body: %+v", resp)
	}
}

func TestLoginIssuesSessionAndStatusReflectsIt(t *testing.T) {
	s := newTestServer(t)
	cookie := login(t, s)

	rec := doJSON(t, s, http.MethodGet, "/api/auth/status", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rec.Code)
	}
	var status struct {
		Authenticated bool    `json:"authenticated"`
		Username      *string `json:"username"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.Authenticated || status.Username == nil || *status.Username != "admin" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestStatusWithoutSession(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/auth/status", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status struct {
		Authenticated bool    `json:"authenticated"`
		Username      *string `json:"username"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Authenticated || status.Username != nil {
		t.Fatalf("expected anonymous status, got %+v", status)
	}
}

func TestManagementEndpointsRequireSession(t *testing.T) {
	s := newTestServer(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/certificates"},
		{http.MethodPost, "/api/certificates/upload"},
		{http.MethodGet, "/api/certificates/1"},
		{http.MethodPut, "/api/certificates/1"},
		{http.MethodDelete, "/api/certificates/1"},
		{http.MethodGet, "/api/certificates/1/download"},
	} {
		rec := doJSON(t, s, tc.method, tc.path, nil, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestRevokedSessionIsRejected(t *testing.T) {
	a := app.New(registry.New(), newFakeObjectStore(), "b")
	sessions := session.NewMemoryStore(time.Hour)
	s := New(Config{
		App:        a,
		Gate:       auth.NewGate("admin", "s3cret"),
		Sessions:   sessions,
		Recaptcha:  recaptcha.NewClient(""),
		SessionTTL: time.Hour,
	})

	token, err := sessions.Create("admin")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := sessions.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}

	rec := doJSON(t, s, http.MethodGet, "/api/certificates", nil, &http.Cookie{Name: auth.SessionCookie, Value: token})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for dead session, got %d", rec.Code)
	}
}

func TestUploadPDFScenario(t *testing.T) {
	s := newTestServer(t)
	cookie := login(t, s)

	view := uploadPDF(t, s, cookie, "cert.pdf", []byte("0123456789"))
	if view["fileType"] != "application/pdf" {
		t.Fatalf("expected application/pdf, got %v", view["fileType"])
	}
	if view["fileSize"].(float64) != 10 {
		t.Fatalf("expected fileSize 10, got %v", view["fileSize"])
	}
	shareableID, _ := view["shareableId"].(string)
	if shareableID == "" {
		t.Fatalf("expected shareable id in view")
	}
	if view["shareableUrl"] != "/view/"+shareableID {
		t.Fatalf("unexpected shareableUrl %v", view["shareableUrl"])
	}
}

func TestUploadRejectsDisallowedType(t *testing.T) {
	s := newTestServer(t)
	cookie := login(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/certificates/upload", map[string]string{
		"title":    "Nope",
		"fileName": "cert.exe",
		"fileData": base64.StdEncoding.EncodeToString([]byte("mz")),
	}, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Only PDF and JPEG files are allowed") {
		t.Fatalf("unexpected message: %s", rec.Body.String())
	}
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	s := newTestServer(t)
	cookie := login(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/certificates/upload", map[string]string{
		"title":    "Huge",
		"fileName": "cert.pdf",
		"fileData": base64.StdEncoding.EncodeToString(make([]byte, 16<<20)),
	}, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "File size exceeds 15MB limit") {
		t.Fatalf("unexpected message: %s", rec.Body.String())
	}
}

func TestListAndGetAndUpdate(t *testing.T) {
	s := newTestServer(t)
	cookie := login(t, s)
	view := uploadPDF(t, s, cookie, "cert.pdf", []byte("data"))
	id := int64(view["id"].(float64))

	rec := doJSON(t, s, http.MethodGet, "/api/certificates", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var views []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 certificate, got %d", len(views))
	}

	rec = doJSON(t, s, http.MethodPut, "/api/certificates/"+itoa(id), map[string]string{
		"title":          "Renamed",
		"credentialLink": "https://example.com/new",
	}, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var updated map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if updated["title"] != "Renamed" {
		t.Fatalf("expected renamed title, got %v", updated["title"])
	}
	if updated["shareableId"] != view["shareableId"] {
		t.Fatalf("shareable id must never change on update")
	}
}

func TestDeleteCertificate(t *testing.T) {
	s := newTestServer(t)
	cookie := login(t, s)
	view := uploadPDF(t, s, cookie, "cert.pdf", []byte("data"))
	id := itoa(int64(view["id"].(float64)))

	rec := doJSON(t, s, http.MethodDelete, "/api/certificates/"+id, nil, cookie)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodGet, "/api/certificates/"+id, nil, cookie)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodDelete, "/api/certificates/"+id, nil, cookie)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on repeat delete, got %d", rec.Code)
	}
	shareableID, _ := view["shareableId"].(string)
	rec = doJSON(t, s, http.MethodGet, "/api/public/certificate/"+shareableID, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected public lookup to 404 after delete, got %d", rec.Code)
	}
}

func TestPreviewAndDownloadDispositions(t *testing.T) {
	s := newTestServer(t)
	cookie := login(t, s)
	payload := []byte("%PDF-1.4 fake")
	view := uploadPDF(t, s, cookie, "cert.pdf", payload)
	id := itoa(int64(view["id"].(float64)))

	rec := doJSON(t, s, http.MethodGet, "/api/certificates/"+id+"/preview", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("preview: expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(got, "inline;") {
		t.Fatalf("expected inline disposition, got %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), payload) {
		t.Fatalf("preview body mismatch")
	}

	rec = doJSON(t, s, http.MethodGet, "/api/certificates/"+id+"/download", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("download: expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(got, "attachment;") {
		t.Fatalf("expected attachment disposition, got %q", got)
	}
}

func TestPublicShareLink(t *testing.T) {
	s := newTestServer(t)
	cookie := login(t, s)
	payload := []byte("shared bytes")
	view := uploadPDF(t, s, cookie, "cert.pdf", payload)
	shareableID, _ := view["shareableId"].(string)

	// Metadata without any session.
	rec := doJSON(t, s, http.MethodGet, "/api/public/certificate/"+shareableID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("public get: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/public/certificate/"+shareableID+"/download", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("public download: expected 200, got %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), payload) {
		t.Fatalf("public download body mismatch")
	}
}

func TestPublicUnknownShareableID(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/public/certificate/no-such-id", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Certificate not found") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestLogoutClearsAllSessions(t *testing.T) {
	s := newTestServer(t)
	first := login(t, s)
	second := login(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/auth/logout", nil, second)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Logged out successfully") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	// Logout is store-wide: the other session dies too.
	rec = doJSON(t, s, http.MethodGet, "/api/certificates", nil, first)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestViewLandingPage(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/view/some-shareable-id", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected html, got %q", ct)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
