package users

import (
	"encoding/base64"
	"io"
	"log"
	"net/http"
	"time"
)

// MaxAvatarBytes is the upload ceiling for avatar images.
const MaxAvatarBytes = 4_000_000

// UploadAvatar stores an avatar image for the caller. The image arrives as
// the "avatar" part of a multipart form and is stored inline as a data URL.
// Anything over MaxAvatarBytes, or an unreadable upload, is rejected with
// the upload error.
func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	user := h.loadCaller(w, r)
	if user == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxAvatarBytes+4096)
	if err := r.ParseMultipartForm(MaxAvatarBytes); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "Error uploading image")
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "Error uploading image")
		return
	}
	defer file.Close()

	if header.Size > MaxAvatarBytes {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "Error uploading image")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxAvatarBytes+1))
	if err != nil || len(data) > MaxAvatarBytes {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "Error uploading image")
		return
	}

	contentType := http.DetectContentType(data)
	switch contentType {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
	default:
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "Error uploading image")
		return
	}

	user.Avatar = "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
	user.UpdatedAt = time.Now().UTC()

	if err := h.storage.Users().Update(r.Context(), user); err != nil {
		log.Printf("upload avatar for %s error: %v", user.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonOK(w, user.Public())
}
