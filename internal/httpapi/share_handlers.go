package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docucloud.org/internal/auth"
	"docucloud.org/internal/obs"
	"docucloud.org/internal/share"
)

type shareRequest struct {
	Permission  string `json:"permission"`
	ExpiresDays int    `json:"expiresDays,omitempty"`
	Password    string `json:"password,omitempty"`
}

type shareResponse struct {
	ShareURL  string     `json:"shareUrl"`
	ShareID   string     `json:"shareId"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type shareAccessResponse struct {
	DownloadURL  string    `json:"downloadUrl"`
	ExpiresAt    time.Time `json:"expiresAt"`
	WriteAllowed bool      `json:"writeAllowed"`
}

// handleDocumentResource serves PUT /documents/{id}/share.
func (a *API) handleDocumentResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/documents/")
	rest, ok := strings.CutSuffix(path, "/share")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	docID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	a.createShare(w, r, docID)
}

// handleShareResource serves DELETE /documents/shares/{id} and
// GET /documents/shares/{id}/access.
func (a *API) handleShareResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/documents/shares/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if rest, ok := strings.CutSuffix(path, "/access"); ok {
		if rest == "" || strings.Contains(rest, "/") {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.accessShare(w, r, rest)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	a.revokeShare(w, r, path)
}

func (a *API) createShare(w http.ResponseWriter, r *http.Request, docID int64) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req shareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perm, err := share.ParsePermission(req.Permission)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "permission must be READ or WRITE")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	result, err := a.gate.Create(ctx, docID, user.ID, perm, req.Password, req.ExpiresDays)
	if err != nil {
		handleShareError(w, r, err)
		return
	}
	obs.Log("info", "share_created", map[string]any{
		"request_id":  RequestIDFromContext(r.Context()),
		"user_id":     user.ID,
		"document_id": docID,
		"share_id":    result.ShareID,
	})
	writeJSON(w, http.StatusOK, shareResponse{
		ShareURL:  result.ShareURL,
		ShareID:   result.ShareID,
		ExpiresAt: result.ExpiresAt,
	})
}

func (a *API) revokeShare(w http.ResponseWriter, r *http.Request, shareID string) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()
	if err := a.gate.Revoke(ctx, shareID, user.ID); err != nil {
		handleShareError(w, r, err)
		return
	}
	obs.Log("info", "share_revoked", map[string]any{
		"request_id": RequestIDFromContext(r.Context()),
		"user_id":    user.ID,
		"share_id":   shareID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) accessShare(w http.ResponseWriter, r *http.Request, shareID string) {
	password := r.URL.Query().Get("password")

	ctx, cancel := requestContext(r)
	defer cancel()
	result, err := a.gate.Access(ctx, shareID, password)
	if err != nil {
		obs.ObserveShareAccess("rejected")
		handleShareError(w, r, err)
		return
	}
	obs.ObserveShareAccess("ok")
	obs.Log("info", "share_accessed", map[string]any{
		"request_id": RequestIDFromContext(r.Context()),
		"share_id":   shareID,
		"used_count": result.UsedCount,
	})
	writeJSON(w, http.StatusOK, shareAccessResponse{
		DownloadURL:  result.DownloadURL,
		ExpiresAt:    result.ExpiresAt,
		WriteAllowed: result.WriteAllowed,
	})
}

func handleShareError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, share.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid share request")
	case errors.Is(err, share.ErrOwnership):
		writeError(w, r, http.StatusForbidden, "not allowed for this document")
	case errors.Is(err, share.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "share link not found")
	case errors.Is(err, share.ErrExpired):
		writeError(w, r, http.StatusGone, "share link expired")
	case errors.Is(err, share.ErrPasswordIncorrect):
		writeError(w, r, http.StatusUnauthorized, "password required or incorrect")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
