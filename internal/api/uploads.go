package api

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dallylee/pt-authority-hub-landing/internal/domain"
	"github.com/dallylee/pt-authority-hub-landing/internal/notify"
	"github.com/dallylee/pt-authority-hub-landing/internal/signing"
	"github.com/dallylee/pt-authority-hub-landing/internal/storage"
)

// multipartOverhead leaves room for form fields around the file part.
const multipartOverhead = 1 << 20

// UploadResponse describes a stored audit file.
type UploadResponse struct {
	OK           bool   `json:"ok"`
	Key          string `json:"key"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	ContentType  string `json:"contentType"`
	EmailNotice  string `json:"emailNotice"`
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tooLarge := fmt.Sprintf("File too large. Maximum size is %d MB", int(math.Round(float64(h.cfg.UploadMaxBytes)/1024/1024)))

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.UploadMaxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusBadRequest, "validation_failed", tooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "No file provided")
		return
	}
	defer file.Close()

	email := strings.TrimSpace(r.FormValue("email"))
	if !strings.Contains(email, "@") {
		writeError(w, http.StatusBadRequest, "validation_failed", "Invalid email")
		return
	}
	if r.FormValue("consent") != "true" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Consent required")
		return
	}
	if header.Size > h.cfg.UploadMaxBytes {
		writeError(w, http.StatusBadRequest, "validation_failed", tooLarge)
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !slices.Contains(h.cfg.UploadAllowedTypes, contentType) {
		writeError(w, http.StatusBadRequest, "validation_failed", "File type not allowed. Accepted: PDF, JPG, PNG, CSV")
		return
	}

	linkedLeadID, linked := h.leads.ResolveLeadToken(ctx, h.cfg.WorkspaceID, r.FormValue("leadToken"))
	if !linked && r.FormValue("leadToken") != "" {
		h.log.Warn("invalid lead token, upload will be unlinked", nil)
	}

	now := time.Now().UTC()
	key := storage.BuildKey(now, r.FormValue("leadId"), uuid.NewString(), header.Filename)
	if err := h.objects.Put(ctx, key, file, header.Size, storage.ObjectInfo{
		ContentType:  contentType,
		Size:         header.Size,
		Email:        email,
		LeadID:       linkedLeadID,
		OriginalName: header.Filename,
		UploadedAt:   now,
	}); err != nil {
		h.log.WithError(err).Error("store upload failed", map[string]interface{}{"key": key})
		writeError(w, http.StatusInternalServerError, "server_error", "Upload failed")
		return
	}

	if _, err := h.leads.RecordUpload(ctx, domain.UploadInput{
		WorkspaceID: h.cfg.WorkspaceID,
		LeadID:      linkedLeadID,
		FileName:    header.Filename,
		MimeType:    contentType,
		SizeBytes:   header.Size,
		StorageKey:  key,
	}); err != nil {
		h.log.WithError(err).Error("record upload failed", map[string]interface{}{"key": key})
	}

	emailNotice := "sent"
	if err := h.notifyUpload(r, key, email, contentType, header.Filename, header.Size, now); err != nil {
		h.log.WithError(err).Error("upload notification failed", map[string]interface{}{"key": key})
		emailNotice = "failed"
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		OK:           true,
		Key:          key,
		OriginalName: header.Filename,
		Size:         header.Size,
		ContentType:  contentType,
		EmailNotice:  emailNotice,
	})
}

func (h *Handler) notifyUpload(r *http.Request, key, email, contentType, name string, size int64, at time.Time) error {
	token, err := h.signer.Sign(key, signing.NotificationTTL)
	if err != nil {
		return err
	}
	return h.mailer.SendUploadReceived(r.Context(), notify.UploadEmail{
		Email:       email,
		LeadID:      r.FormValue("leadId"),
		FileName:    name,
		MimeType:    contentType,
		SizeBytes:   size,
		UploadedAt:  at,
		DownloadURL: downloadURL(h.cfg.PublicBaseURL, token),
	})
}

func downloadURL(base, token string) string {
	return base + "/api/download?t=" + url.QueryEscape(token)
}

var dispositionName = strings.NewReplacer(`"`, "_", `\`, "_", "\r", "", "\n", "")

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("t")
	if token == "" {
		writeError(w, http.StatusForbidden, "forbidden", "Missing token")
		return
	}
	key, err := h.signer.Verify(token)
	if err != nil {
		detail := "Invalid token"
		if errors.Is(err, signing.ErrExpiredToken) {
			detail = "Token expired"
		}
		writeError(w, http.StatusForbidden, "forbidden", detail)
		return
	}

	body, info, err := h.objects.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "File not found")
			return
		}
		h.log.WithError(err).Error("download failed", map[string]interface{}{"key": key})
		writeError(w, http.StatusInternalServerError, "server_error", "Download failed")
		return
	}
	defer body.Close()

	name := info.OriginalName
	if name == "" {
		name = "download"
	}
	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+dispositionName.Replace(name)+`"`)
	w.Header().Set("Cache-Control", "private, no-cache")
	if info.Size > 0 {
		w.Header().Set("Content-Length", fmt.Sprint(info.Size))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.log.WithError(err).Warn("download stream interrupted", map[string]interface{}{"key": key})
	}
}
