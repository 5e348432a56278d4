package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/toolscheap/toolscheap/internal/apperror"
	"github.com/toolscheap/toolscheap/internal/logger"
	"github.com/toolscheap/toolscheap/internal/storage"
)

// handleDownload streams a blob referenced by a signed URL. The signature
// alone authorizes the request; there is no session or database lookup.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	expires := r.URL.Query().Get("expires")
	token := r.URL.Query().Get("token")

	if key == "" || expires == "" || token == "" {
		apperror.WriteJSON(w, r, apperror.WithMessage(apperror.ErrBadRequest, "missing download parameters"))
		return
	}

	if err := s.Signer.Verify(key, expires, token, time.Now()); err != nil {
		switch {
		case errors.Is(err, storage.ErrSignatureExpired):
			apperror.WriteJSON(w, r, apperror.WrapWithMessage(err, "link_expired", "download link has expired", http.StatusForbidden))
		default:
			apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrForbidden))
		}
		return
	}

	reader, err := s.Storage.Download(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			apperror.WriteJSON(w, r, apperror.ErrNotFound)
			return
		}
		apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
		return
	}
	defer reader.Close()

	filename := path.Base(key)
	contentType := mime.TypeByExtension(path.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	if _, err := io.Copy(w, reader); err != nil {
		logger.FromContext(r.Context()).Warn("download interrupted", "key", key, "error", err)
	}
}
