package ingest

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chrissnell/tmdtools/internal/datadir"
)

// Greeting is the body of GET /hello.
const Greeting = "Server v1. Hello."

// TimestampLayout renders start/end in upload responses.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// tokenNamespace scopes the SHA1 uuids minted for new users.
var tokenNamespace = uuid.MustParse("6f0c2a53-6a55-4d8e-9f39-3c1d2b7f4a10")

// RegisterResponse is returned by POST /register.
type RegisterResponse struct {
	UID string `json:"uid"`
}

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	Mode  string `json:"mode"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Hello answers the app's connectivity check.
func (c *Controller) Hello(w http.ResponseWriter, r *http.Request) {
	c.formatter.WriteResponse(w, r, http.StatusOK, Greeting)
}

// Register mints a user id for the device described by the form fields uid
// (the app name) and info (a JSON object).
func (c *Controller) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		c.formatter.WriteError(w, r, http.StatusBadRequest, "invalid form")
		return
	}
	if _, ok := r.Form["info"]; !ok {
		c.formatter.WriteError(w, r, http.StatusUnprocessableEntity, "field required: info")
		return
	}
	appName := r.FormValue("uid")

	info := datadir.Info{}
	if err := json.Unmarshal([]byte(r.FormValue("info")), &info); err != nil || info == nil {
		c.formatter.WriteError(w, r, http.StatusUnprocessableEntity, "info must be a JSON object")
		return
	}
	info["app_name"] = appName

	token, err := c.mintToken(appName)
	if err != nil {
		c.logger.Errorf("unable to mint a token for %q: %v", appName, err)
		c.formatter.WriteError(w, r, http.StatusInternalServerError, "registration failed")
		return
	}
	uid, err := c.registry.Reserve(info, func(attempt int) string {
		if attempt == 0 {
			return token
		}
		return token + strconv.Itoa(attempt-1)
	})
	if err != nil {
		c.logger.Errorf("unable to save registration of %q: %v", appName, err)
		c.formatter.WriteError(w, r, http.StatusInternalServerError, "registration failed")
		return
	}

	c.logger.Infof("New registration: %s: %s", uid, appName)
	c.formatter.WriteResponse(w, r, http.StatusOK, RegisterResponse{UID: uid})
}

// mintToken derives a hex token from the app name, the current time and a
// random salt.
func (c *Controller) mintToken(appName string) (string, error) {
	if appName == "" {
		appName = "unknown"
	}
	salt := make([]byte, 16)
	if _, err := io.ReadFull(c.random, salt); err != nil {
		return "", fmt.Errorf("reading salt: %w", err)
	}
	name := fmt.Sprintf("%s|%d|%s", appName, c.now().UnixNano(), hex.EncodeToString(salt))
	return strings.ReplaceAll(uuid.NewSHA1(tokenNamespace, []byte(name)).String(), "-", ""), nil
}

// Upload stores one sensor recording of a registered user as
// <data>/<uid>/<mode>_<start>_<sensor>_<end>.csv, the sensor being the
// uploaded file's name.
func (c *Controller) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, c.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		c.formatter.WriteError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	mode := r.FormValue("mode")
	uid := r.FormValue("uid")
	start, errStart := strconv.ParseInt(r.FormValue("start"), 10, 64)
	end, errEnd := strconv.ParseInt(r.FormValue("end"), 10, 64)
	if errStart != nil || errEnd != nil {
		c.formatter.WriteError(w, r, http.StatusUnprocessableEntity, "start and end must be integers (milliseconds)")
		return
	}

	if !c.registry.Has(uid) {
		c.logger.Warnf("Unknown UID: `%s`", uid)
		c.formatter.WriteError(w, r, http.StatusUnauthorized, "Unknown UID")
		return
	}

	file, header, err := r.FormFile("data")
	if err != nil {
		c.formatter.WriteError(w, r, http.StatusUnprocessableEntity, "field required: data")
		return
	}
	defer file.Close()

	sensor := filepath.Base(header.Filename)
	sensor = strings.TrimSuffix(sensor, filepath.Ext(sensor))
	if !validNamePart(mode) || !validNamePart(sensor) {
		c.formatter.WriteError(w, r, http.StatusUnprocessableEntity, "mode and file name must be plain words")
		return
	}

	dest := filepath.Join(c.dataDir, uid, fmt.Sprintf("%s_%d_%s_%d.csv", mode, start, sensor, end))
	c.logger.Infof("Receiving data: %s", dest)
	if err := writeToDisk(file, dest); err != nil {
		c.logger.Errorf("unable to store %s: %v", dest, err)
		c.formatter.WriteError(w, r, http.StatusInternalServerError, "unable to store upload")
		return
	}

	c.formatter.WriteResponse(w, r, http.StatusOK, UploadResponse{
		Mode:  mode,
		Start: formatMillis(start),
		End:   formatMillis(end),
	})
}

// validNamePart rejects values that would escape the user directory or break
// the <mode>_<start>_<sensor>_<end> file name contract.
func validNamePart(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `_/\`+"\x00")
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(TimestampLayout)
}

func writeToDisk(src io.Reader, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
