package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/chrissnell/tmdtools/internal/datadir"
	"github.com/chrissnell/tmdtools/internal/trip"
)

func newTestController(t *testing.T) (*Controller, string) {
	t.Helper()
	dataDir := t.TempDir()
	var wg sync.WaitGroup
	c, err := NewController(context.Background(), &wg, dataDir, "127.0.0.1", 0, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c, dataDir
}

func register(t *testing.T, h http.Handler, appName, info string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"uid": {appName}, "info": {info}}
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, fields map[string]string, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("data", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHello(t *testing.T) {
	c, _ := newTestController(t)
	h := c.Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hello", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || got != Greeting {
		t.Errorf("body = %q (%v)", rec.Body.String(), err)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hello?format=msgpack", nil))
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-msgpack" {
		t.Errorf("content type = %q", ct)
	}
	got = ""
	if err := msgpack.Unmarshal(rec.Body.Bytes(), &got); err != nil || got != Greeting {
		t.Errorf("msgpack body = %q (%v)", got, err)
	}
}

func TestRegister(t *testing.T) {
	c, dataDir := newTestController(t)
	h := c.Router()

	rec := register(t, h, "pixel", `{"model": "Pixel 4", "sdk": 30}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp RegisterResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.UID) != 32 || strings.Contains(resp.UID, "-") {
		t.Errorf("uid = %q", resp.UID)
	}

	reg, err := datadir.LoadRegistry(filepath.Join(dataDir, datadir.UIDsFilename))
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	info, ok := reg.Get(resp.UID)
	if !ok {
		t.Fatalf("uid %s not persisted", resp.UID)
	}
	if info.AppName() != "pixel" || info["model"] != "Pixel 4" {
		t.Errorf("info = %v", info)
	}

	second := register(t, h, "pixel", `{}`)
	var resp2 RegisterResponse
	json.Unmarshal(second.Body.Bytes(), &resp2)
	if resp2.UID == "" || resp2.UID == resp.UID {
		t.Errorf("second uid = %q, first = %q", resp2.UID, resp.UID)
	}
}

func TestRegisterRejectsInvalidInfo(t *testing.T) {
	c, _ := newTestController(t)
	h := c.Router()

	for _, info := range []string{"not json", "[1, 2]", "null"} {
		rec := register(t, h, "pixel", info)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("info %q: status = %d", info, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"detail"`) {
			t.Errorf("info %q: body = %s", info, rec.Body.String())
		}
	}
}

func TestRegisterFailsWithoutEntropy(t *testing.T) {
	c, _ := newTestController(t)
	c.random = iotest.ErrReader(errors.New("no entropy"))

	rec := register(t, c.Router(), "pixel", `{}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if uids := c.registry.UIDs(); len(uids) != 0 {
		t.Errorf("registry = %v, want empty", uids)
	}
}

func TestUpload(t *testing.T) {
	c, dataDir := newTestController(t)
	h := c.Router()
	if err := c.registry.Put("abc123", datadir.Info{"app_name": "pixel"}); err != nil {
		t.Fatal(err)
	}

	req := uploadRequest(t, map[string]string{
		"mode": "bus", "start": "1600000000000", "end": "1600000600000", "uid": "abc123",
	}, "accelerometer.csv", "1600000000000,0,0,9.81\n")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	want := UploadResponse{Mode: "bus", Start: "2020-09-13 12:26:40.000000", End: "2020-09-13 12:36:40.000000"}
	if resp != want {
		t.Errorf("response = %+v, want %+v", resp, want)
	}

	path := filepath.Join(dataDir, "abc123", "bus_1600000000000_accelerometer_1600000600000.csv")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("stored file: %v", err)
	}
	if string(raw) != "1600000000000,0,0,9.81\n" {
		t.Errorf("stored content = %q", raw)
	}
	sf, ok := trip.ParseFilename(path)
	if !ok || sf.Mode != "bus" || sf.Sensor != trip.SensorAccelerometer {
		t.Errorf("stored file does not parse as a sensor file: %+v", sf)
	}

	entries, _ := os.ReadDir(filepath.Join(dataDir, "abc123"))
	if len(entries) != 1 {
		t.Errorf("user dir holds %d entries, want 1", len(entries))
	}
}

func TestUploadRejects(t *testing.T) {
	c, _ := newTestController(t)
	h := c.Router()
	c.registry.Put("abc123", datadir.Info{"app_name": "pixel"})

	valid := func() map[string]string {
		return map[string]string{"mode": "bus", "start": "1", "end": "2", "uid": "abc123"}
	}

	tests := []struct {
		name     string
		mutate   func(map[string]string)
		filename string
		want     int
	}{
		{"unknown uid", func(f map[string]string) { f["uid"] = "nobody" }, "gps.csv", http.StatusUnauthorized},
		{"bad start", func(f map[string]string) { f["start"] = "soon" }, "gps.csv", http.StatusUnprocessableEntity},
		{"missing file", func(map[string]string) {}, "", http.StatusUnprocessableEntity},
		{"mode with separator", func(f map[string]string) { f["mode"] = "../bus" }, "gps.csv", http.StatusUnprocessableEntity},
		{"mode with underscore", func(f map[string]string) { f["mode"] = "on_foot" }, "gps.csv", http.StatusUnprocessableEntity},
		{"sensor with underscore", func(map[string]string) {}, "linear_acc.csv", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := valid()
			tt.mutate(fields)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, uploadRequest(t, fields, tt.filename, "1,2,3\n"))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}
