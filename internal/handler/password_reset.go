package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/shopfront/accounts/internal/service"
)

const (
	passwordResetDoneURL     = "/password-reset/done/"
	passwordResetCompleteURL = "/password-reset/complete/"
)

// PasswordResetPage renders the forgotten password form
func (h *Handler) PasswordResetPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pagePasswordResetForm, h.newPage(r))
}

// PasswordResetPost emails a reset link. The response is the same whether
// or not the address belongs to an account.
func (h *Handler) PasswordResetPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	data := h.newPage(r)
	data.Form = newForm(r.PostForm)
	form := passwordResetForm{Email: strings.TrimSpace(r.PostForm.Get("email"))}
	data.Form.Errors = validateForm(form)
	if data.Form.Errors.Any() {
		h.render(w, r, http.StatusOK, pagePasswordResetForm, data)
		return
	}

	if err := h.resets.RequestReset(r.Context(), form.Email, getClientIP(r), r.UserAgent()); err != nil {
		h.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, passwordResetDoneURL, http.StatusFound)
}

// PasswordResetDone confirms that a reset email is on its way
func (h *Handler) PasswordResetDone(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pagePasswordResetDone, h.newPage(r))
}

// PasswordResetConfirmPage renders the new password form for a valid link,
// or explains that the link is invalid
func (h *Handler) PasswordResetConfirmPage(w http.ResponseWriter, r *http.Request) {
	data := h.newPage(r)
	data.Action = r.URL.Path

	_, _, err := h.resets.ValidateLink(r.Context(), r.PathValue("uidb64"), r.PathValue("token"))
	if err != nil && !isLinkError(err) {
		h.serverError(w, r, err)
		return
	}
	data.ValidLink = err == nil
	h.render(w, r, http.StatusOK, pagePasswordResetConfirm, data)
}

// PasswordResetConfirmPost sets the new password
func (h *Handler) PasswordResetConfirmPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	uidb64, token := r.PathValue("uidb64"), r.PathValue("token")
	data := h.newPage(r)
	data.Action = r.URL.Path
	data.ValidLink = true

	form := bindSetPassword(r.PostForm)
	data.Form.Errors = validateForm(form)
	if data.Form.Errors.Any() {
		if _, _, err := h.resets.ValidateLink(r.Context(), uidb64, token); err != nil {
			data.ValidLink = false
		}
		h.render(w, r, http.StatusOK, pagePasswordResetConfirm, data)
		return
	}

	err := h.resets.ConfirmReset(r.Context(), service.ConfirmResetRequest{
		UIDB64:      uidb64,
		Token:       token,
		NewPassword: form.NewPassword1,
		IPAddress:   getClientIP(r),
		UserAgent:   r.UserAgent(),
	})
	switch {
	case err == nil:
		h.clearSessionCookie(w)
		http.Redirect(w, r, passwordResetCompleteURL, http.StatusFound)
		return
	case isLinkError(err):
		data.ValidLink = false
	case errors.Is(err, service.ErrPasswordTooWeak):
		data.Form.Errors.Add("new_password2", policyMessage(err))
	default:
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, pagePasswordResetConfirm, data)
}

// PasswordResetComplete tells the customer they can log in again
func (h *Handler) PasswordResetComplete(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pagePasswordResetComplete, h.newPage(r))
}

func isLinkError(err error) bool {
	return errors.Is(err, service.ErrInvalidToken) ||
		errors.Is(err, service.ErrResetTokenUsed) ||
		errors.Is(err, service.ErrResetTokenExpired)
}
