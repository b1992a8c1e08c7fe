package routes

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoscribe/internal/api/handlers"
	"github.com/yoockh/yoscribe/internal/models"
	"github.com/yoockh/yoscribe/internal/providers/stt"
	"github.com/yoockh/yoscribe/internal/repositories/auditlog"
	"github.com/yoockh/yoscribe/internal/services"
	"github.com/yoockh/yoscribe/internal/storage"
	"github.com/yoockh/yoscribe/internal/utils"
)

const (
	userPass  = "user-pass"
	adminPass = "admin-pass"
)

type stubProvider struct {
	text string
	srt  string
	err  error
}

func (p stubProvider) Transcribe(_ context.Context, req stt.Request) (*stt.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	if req.Format == models.FormatSubtitle {
		return &stt.Result{Format: req.Format, Content: p.srt}, nil
	}
	return &stt.Result{Format: req.Format, Content: p.text}, nil
}

func (stubProvider) Close() error { return nil }

type testEnv struct {
	router       *gin.Engine
	audit        *auditlog.Store
	artifactsDir string
}

func newEnv(t *testing.T, p stt.Provider, maxBytes int64) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logrus.New()
	log.SetOutput(io.Discard)

	artifacts, err := storage.NewArtifactStore(t.TempDir())
	if err != nil {
		t.Fatalf("artifacts: %v", err)
	}
	audit, err := auditlog.Open(t.TempDir())
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	auth, err := services.NewAuthService([]string{userPass}, adminPass, []byte("test-secret"), time.Minute)
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	auditSvc := services.NewAuditService(audit, nil, log)
	transcribe := services.NewTranscriptionService(auth, artifacts, p, audit, "zh", log)

	r := gin.New()
	RegisterRoutes(r, Deps{
		Transcribe:     handlers.NewTranscribeHandler(transcribe, maxBytes),
		Auth:           handlers.NewAuthHandler(auth, auditSvc),
		Admin:          handlers.NewAdminHandler(auditSvc),
		AuthService:    auth,
		AllowedOrigins: []string{"*"},
	})
	return &testEnv{router: r, audit: audit, artifactsDir: artifacts.Dir()}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) entries(t *testing.T) []models.AuditEntry {
	t.Helper()
	got, err := e.audit.ListAll(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return got
}

func (e *testEnv) artifactCount(t *testing.T) int {
	t.Helper()
	ents, err := os.ReadDir(e.artifactsDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	return len(ents)
}

func transcribeRequest(t *testing.T, fields map[string]string, filename string, audio []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("field: %v", err)
		}
	}
	if audio != nil {
		fw, err := mw.CreateFormFile("audio", filename)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		_, _ = fw.Write(audio)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/transcribe", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func formRequest(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestIndex(t *testing.T) {
	env := newEnv(t, stubProvider{}, 0)
	w := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || w.Body.String() != "Whisper Transcriber API is running." {
		t.Fatalf("unexpected liveness response %d %q", w.Code, w.Body.String())
	}
}

func TestTranscribe_Text(t *testing.T) {
	env := newEnv(t, stubProvider{text: "你好"}, 0)

	w := env.do(transcribeRequest(t, map[string]string{"password": userPass, "format": "txt"}, "a.mp3", []byte("audio")))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decodeBody(t, w)["text"]; got != "你好" {
		t.Errorf("unexpected text %q", got)
	}

	got := env.entries(t)
	if len(got) != 1 || got[0].Status != "success" || got[0].Format != "txt" || got[0].Filename != "a.mp3" {
		t.Fatalf("unexpected entries %+v", got)
	}
	if n := env.artifactCount(t); n != 0 {
		t.Errorf("expected no artifacts, got %d", n)
	}
}

func TestTranscribe_DefaultFormatIsText(t *testing.T) {
	env := newEnv(t, stubProvider{text: "plain"}, 0)
	w := env.do(transcribeRequest(t, map[string]string{"password": userPass}, "a.wav", []byte("audio")))
	if w.Code != http.StatusOK || decodeBody(t, w)["text"] != "plain" {
		t.Fatalf("expected text response, got %d %s", w.Code, w.Body.String())
	}
}

func TestTranscribe_Subtitle(t *testing.T) {
	srt := "1\n00:00:00,000 --> 00:00:01,200\n你好\n"
	env := newEnv(t, stubProvider{srt: srt}, 0)

	w := env.do(transcribeRequest(t, map[string]string{"password": userPass, "format": "srt"}, "talk.m4a", []byte("audio")))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != srt {
		t.Errorf("expected exact subtitle body, got %q", w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") || !strings.Contains(cd, "talk.srt") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/x-subrip") {
		t.Errorf("unexpected Content-Type %q", ct)
	}
	if n := env.artifactCount(t); n != 0 {
		t.Errorf("expected no artifacts, got %d", n)
	}
}

func TestTranscribe_Unauthorized(t *testing.T) {
	env := newEnv(t, stubProvider{text: "x"}, 0)

	w := env.do(transcribeRequest(t, map[string]string{"password": "wrong"}, "a.mp3", []byte("audio")))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if got := decodeBody(t, w)["error"]; got != "Unauthorized" {
		t.Errorf("unexpected error %q", got)
	}
	if n := len(env.entries(t)); n != 0 {
		t.Errorf("expected no entries, got %d", n)
	}
	if n := env.artifactCount(t); n != 0 {
		t.Errorf("expected no artifacts, got %d", n)
	}
}

func TestTranscribe_MissingAudio(t *testing.T) {
	env := newEnv(t, stubProvider{text: "x"}, 0)

	w := env.do(transcribeRequest(t, map[string]string{"password": userPass}, "", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if got := decodeBody(t, w)["error"]; got != "No audio file uploaded." {
		t.Errorf("unexpected error %q", got)
	}
	if n := len(env.entries(t)); n != 0 {
		t.Errorf("expected no entries, got %d", n)
	}
	if n := env.artifactCount(t); n != 0 {
		t.Errorf("expected no artifacts, got %d", n)
	}
}

func TestTranscribe_ProviderFailure(t *testing.T) {
	perr := utils.E(utils.CodeProviderFailure, "OpenAIWhisper.Transcribe", "quota exceeded", nil)
	env := newEnv(t, stubProvider{err: perr}, 0)

	w := env.do(transcribeRequest(t, map[string]string{"password": userPass}, "a.mp3", []byte("audio")))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if got := decodeBody(t, w)["error"]; got != "quota exceeded" {
		t.Errorf("unexpected error %q", got)
	}
	got := env.entries(t)
	if len(got) != 1 || got[0].Status != "quota exceeded" {
		t.Fatalf("unexpected entries %+v", got)
	}
	if n := env.artifactCount(t); n != 0 {
		t.Errorf("expected no artifacts, got %d", n)
	}
}

func TestTranscribe_TooLarge(t *testing.T) {
	env := newEnv(t, stubProvider{text: "x"}, 16)

	w := env.do(transcribeRequest(t, map[string]string{"password": userPass}, "a.mp3", bytes.Repeat([]byte("a"), 64)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if n := len(env.entries(t)); n != 0 {
		t.Errorf("expected no entries, got %d", n)
	}
}

func TestTranscribe_Concurrent(t *testing.T) {
	env := newEnv(t, stubProvider{text: "x", srt: "1\n00:00:00,000 --> 00:00:01,000\nx\n"}, 0)
	const n = 16

	reqs := make([]*http.Request, n)
	for i := range reqs {
		format := "txt"
		if i%2 == 0 {
			format = "srt"
		}
		reqs[i] = transcribeRequest(t, map[string]string{"password": userPass, "format": format}, fmt.Sprintf("f%d.mp3", i), []byte("audio"))
	}

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req *http.Request) {
			defer wg.Done()
			if w := env.do(req); w.Code != http.StatusOK {
				t.Errorf("request %d: status %d", i, w.Code)
			}
		}(i, req)
	}
	wg.Wait()

	if got := len(env.entries(t)); got != n {
		t.Errorf("expected %d entries, got %d", n, got)
	}
	var buf bytes.Buffer
	if err := env.audit.ExportCSV(context.Background(), &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != n+1 {
		t.Errorf("expected %d csv rows, got %d", n+1, len(rows))
	}
	if c := env.artifactCount(t); c != 0 {
		t.Errorf("expected no artifacts, got %d", c)
	}
}

func TestVerifyPassword(t *testing.T) {
	env := newEnv(t, stubProvider{}, 0)

	w := env.do(formRequest("/verify-password", url.Values{"password": {userPass}}))
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("expected 200 OK, got %d %q", w.Code, w.Body.String())
	}
	w = env.do(formRequest("/verify-password", url.Values{"password": {"nope"}}))
	if w.Code != http.StatusUnauthorized || w.Body.String() != "Unauthorized" {
		t.Errorf("expected 401 Unauthorized, got %d %q", w.Code, w.Body.String())
	}
	if n := len(env.entries(t)); n != 0 {
		t.Errorf("verify-password must not log, got %d entries", n)
	}
}

var tokenRe = regexp.MustCompile(`/download-csv\?auth=([A-Za-z0-9._-]+)`)

func TestAdminFlow(t *testing.T) {
	env := newEnv(t, stubProvider{text: "x"}, 0)
	env.do(transcribeRequest(t, map[string]string{"password": userPass}, "<script>x.mp3", []byte("audio")))

	w := env.do(formRequest("/admin-auth", url.Values{"password": {userPass}}))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("requester credential must not open the report, got %d", w.Code)
	}

	w = env.do(formRequest("/admin-auth", url.Values{"password": {adminPass}}))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	page := w.Body.String()
	if !strings.Contains(page, "Total: 1") {
		t.Errorf("report missing total: %s", page)
	}
	if strings.Contains(page, "<script>x.mp3") || !strings.Contains(page, "&lt;script&gt;x.mp3") {
		t.Errorf("filename must be escaped in the report")
	}
	if strings.Contains(page, adminPass) {
		t.Error("report must not embed the admin password")
	}

	m := tokenRe.FindStringSubmatch(page)
	if m == nil {
		t.Fatalf("no download link in report")
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/download-csv?auth="+m[1], nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(w.Body.String(), "user,filename,format,timestamp,status\n") {
		t.Errorf("unexpected csv %q", w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "audit_log.csv") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}

	req := httptest.NewRequest(http.MethodGet, "/download-csv", nil)
	req.Header.Set("Authorization", "Bearer "+m[1])
	if w := env.do(req); w.Code != http.StatusOK {
		t.Errorf("bearer token: expected 200, got %d", w.Code)
	}
}

func TestDownloadCSV_Unauthorized(t *testing.T) {
	env := newEnv(t, stubProvider{}, 0)
	for _, q := range []string{"", "?auth=", "?auth=" + adminPass, "?auth=not.a.token"} {
		w := env.do(httptest.NewRequest(http.MethodGet, "/download-csv"+q, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%q: expected 401, got %d", q, w.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newEnv(t, stubProvider{}, 0)
	req := httptest.NewRequest(http.MethodOptions, "/transcribe", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	w := env.do(req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("unexpected allow origin %q", got)
	}
}

func TestCORSConfig_Origins(t *testing.T) {
	cfg := corsConfig([]string{"https://a.example"})
	if cfg.AllowAllOrigins || len(cfg.AllowOrigins) != 1 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if !corsConfig(nil).AllowAllOrigins {
		t.Error("no origins should allow all")
	}
}
