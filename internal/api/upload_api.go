package api

import (
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	"github.com/tinywideclouds/go-push-relay/internal/metrics"
	"github.com/tinywideclouds/go-push-relay/internal/storage"
	"github.com/tinywideclouds/go-push-relay/internal/unwrap"
	"github.com/tinywideclouds/go-push-relay/pkg/push"
)

// EncryptedHeader must be a true boolean on raw encrypted uploads.
const EncryptedHeader = "X-Encrypted"

const uploadFormField = "file"

// multipartMemory is how much of a multipart form is buffered in memory
// before spilling to temporary files.
const multipartMemory = 8 << 20

type UploadAPI struct {
	Unwrapper      *unwrap.Unwrapper
	Store          push.FileStore
	MaxUploadBytes int64
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	Now            func() time.Time
}

func NewUploadAPI(unwrapper *unwrap.Unwrapper, store push.FileStore, maxUploadBytes int64, m *metrics.Metrics, logger *slog.Logger) *UploadAPI {
	return &UploadAPI{
		Unwrapper:      unwrapper,
		Store:          store,
		MaxUploadBytes: maxUploadBytes,
		Metrics:        m,
		Logger:         logger,
		Now:            time.Now,
	}
}

type uploadResponse struct {
	Message string `json:"message"`
	Path    string `json:"path"`
}

// DecryptFile handles a multipart upload whose "file" field holds the
// ciphertext. The plaintext is stored as a .txt file.
func (api *UploadAPI) DecryptFile(w http.ResponseWriter, r *http.Request) {
	if api.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, api.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil && isTooLarge(err) {
		writeError(w, &push.ValidationError{Reason: "Upload too large."})
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, _, err := r.FormFile(uploadFormField)
	if err != nil {
		api.Logger.Warn("DecryptFile: no file in request", "err", err)
		writeError(w, &push.ValidationError{Reason: "No file uploaded."})
		return
	}
	defer file.Close()

	ciphertext, err := io.ReadAll(file)
	if err != nil {
		api.Logger.Error("DecryptFile: failed to read upload", "err", err)
		writeError(w, &push.ValidationError{Reason: "Failed to read uploaded file."})
		return
	}

	plaintext, err := api.Unwrapper.Decrypt(ciphertext)
	if err != nil {
		api.Logger.Warn("DecryptFile: decryption failed", "bytes", len(ciphertext), "err", err)
		writeError(w, err)
		return
	}

	api.store(w, r, storage.ObjectName(storage.PrefixDecrypted, storage.ExtText, api.Now()), plaintext, "File decrypted successfully.")
}

// UploadEncrypted handles a raw encrypted body. The decrypted bytes are
// base64 text; the decoded file is stored with an extension taken from
// Content-Type.
func (api *UploadAPI) UploadEncrypted(w http.ResponseWriter, r *http.Request) {
	encrypted, err := strconv.ParseBool(strings.TrimSpace(r.Header.Get(EncryptedHeader)))
	if err != nil || !encrypted {
		writeError(w, &push.ValidationError{Reason: "Missing encryption header"})
		return
	}

	reader := io.Reader(r.Body)
	if api.MaxUploadBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, api.MaxUploadBytes)
	}
	ciphertext, err := io.ReadAll(reader)
	if err != nil {
		if isTooLarge(err) {
			writeError(w, &push.ValidationError{Reason: "Upload too large."})
			return
		}
		api.Logger.Error("UploadEncrypted: failed to read body", "err", err)
		writeError(w, &push.ValidationError{Reason: "Failed to read request body."})
		return
	}
	if len(ciphertext) == 0 {
		writeError(w, &push.ValidationError{Reason: "Empty request body."})
		return
	}

	plaintext, err := api.Unwrapper.Decrypt(ciphertext)
	if err != nil {
		api.Logger.Warn("UploadEncrypted: decryption failed", "bytes", len(ciphertext), "err", err)
		writeError(w, err)
		return
	}

	content, err := decodeBase64(plaintext)
	if err != nil {
		api.Logger.Warn("UploadEncrypted: decrypted payload is not base64", "err", err)
		writeError(w, &push.DecryptionError{Err: err})
		return
	}

	ext := storage.ExtensionFor(r.Header.Get("Content-Type"))
	api.store(w, r, storage.ObjectName(storage.PrefixUpload, ext, api.Now()), content, "File uploaded and decrypted successfully.")
}

func (api *UploadAPI) store(w http.ResponseWriter, r *http.Request, name string, data []byte, message string) {
	path, err := api.Store.Save(r.Context(), name, data)
	if err != nil {
		api.Logger.Error("Failed to save file", "name", name, "err", err)
		writeError(w, &push.StorageError{Err: err})
		return
	}
	api.Metrics.AddStoredBytes(len(data))
	api.Logger.Info("File saved", "path", path, "bytes", len(data))

	response.WriteJSON(w, http.StatusOK, uploadResponse{Message: message, Path: path})
}

func decodeBase64(b []byte) ([]byte, error) {
	s := strings.TrimSpace(string(b))
	out, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return out, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(s); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
