package httpapi

import (
	"net/http"

	"github.com/MrEthical07/couponauth"
	"github.com/MrEthical07/couponauth/middleware"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeMappedError(w, r, "register", err)
		return
	}

	session, err := h.service.Register(r.Context(), couponauth.RegisterRequest(req))
	if err != nil {
		h.writeMappedError(w, r, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, newTokenResponse(session.TokenPair, session.Account))
}

// login accepts the OAuth2 password form (username carries the email) and
// falls back to a JSON body.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if isJSON(r) {
		if err := decodeBody(w, r, &req); err != nil {
			h.writeMappedError(w, r, "login", err)
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			h.writeMappedError(w, r, "login", &couponauth.ValidationError{
				Fields: []couponauth.FieldError{{Field: "body", Reason: "is not a valid form"}},
			})
			return
		}
		req.Email = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	}

	pair, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeMappedError(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(*pair, nil))
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeMappedError(w, r, "refresh", err)
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeMappedError(w, r, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(*pair, nil))
}

// logout always answers 204 unless the store is unreachable. An unreadable
// body is treated as an unknown token.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = decodeBody(w, r, &req)

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		h.writeMappedError(w, r, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	acct, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		h.writeBearerError(w, r, &couponauth.AuthError{})
		return
	}

	if _, err := h.service.LogoutAll(r.Context(), acct.ID); err != nil {
		h.writeMappedError(w, r, "logout_all", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	acct, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		h.writeBearerError(w, r, &couponauth.AuthError{})
		return
	}

	var req changePasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeMappedError(w, r, "change_password", err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), acct.ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeMappedError(w, r, "change_password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	acct, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		h.writeBearerError(w, r, &couponauth.AuthError{})
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(acct))
}
