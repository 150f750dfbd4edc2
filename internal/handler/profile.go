package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/shopfront/accounts/internal/middleware"
	"github.com/shopfront/accounts/internal/service"
)

// Summary is the account landing page; it shows the profile
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, profileURL, http.StatusFound)
}

// Profile renders the customer's details
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pageProfile, h.newPage(r))
}

// ProfileEditPage renders the profile form filled with the current values
func (h *Handler) ProfileEditPage(w http.ResponseWriter, r *http.Request) {
	data := h.newPage(r)
	data.Form = newForm(url.Values{
		"first_name": {data.User.FirstName},
		"last_name":  {data.User.LastName},
		"email":      {data.User.Email},
	})
	h.render(w, r, http.StatusOK, pageProfileForm, data)
}

// ProfileEditPost saves the profile form
func (h *Handler) ProfileEditPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	data := h.newPage(r)
	data.Form = newForm(r.PostForm)
	form := bindProfile(r.PostForm)
	data.Form.Errors = validateForm(form)
	if data.Form.Errors.Any() {
		h.render(w, r, http.StatusOK, pageProfileForm, data)
		return
	}

	_, err := h.accounts.UpdateProfile(r.Context(), data.User.ID, service.ProfileUpdate{
		FirstName: form.FirstName,
		LastName:  form.LastName,
		Email:     form.Email,
		IPAddress: getClientIP(r),
		UserAgent: r.UserAgent(),
	})
	switch {
	case err == nil:
		http.Redirect(w, r, profileURL, http.StatusFound)
		return
	case errors.Is(err, service.ErrEmailAlreadyExists):
		data.Form.Errors.Add("email", "A user with this email address already exists")
	case errors.Is(err, service.ErrInvalidEmail):
		data.Form.Errors.Add("email", "Enter a valid email address.")
	default:
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, pageProfileForm, data)
}

// ProfileDeletePage asks for the password before deleting the account
func (h *Handler) ProfileDeletePage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pageProfileDelete, h.newPage(r))
}

// ProfileDeletePost deletes the account and logs out
func (h *Handler) ProfileDeletePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	data := h.newPage(r)
	form := deleteProfileForm{Password: r.PostForm.Get("password")}
	data.Form.Errors = validateForm(form)
	if data.Form.Errors.Any() {
		h.render(w, r, http.StatusOK, pageProfileDelete, data)
		return
	}

	err := h.accounts.DeleteAccount(r.Context(), data.User.ID, form.Password, getClientIP(r), r.UserAgent())
	switch {
	case err == nil:
		h.clearSessionCookie(w)
		http.Redirect(w, r, homeURL, http.StatusFound)
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		data.Form.Errors.Add("password", "You entered an incorrect password")
	default:
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, pageProfileDelete, data)
}

// ChangePasswordPage renders the change password form
func (h *Handler) ChangePasswordPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pageChangePassword, h.newPage(r))
}

// ChangePasswordPost replaces the password and keeps the current session
func (h *Handler) ChangePasswordPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	data := h.newPage(r)
	form := bindChangePassword(r.PostForm)
	data.Form.Errors = validateForm(form)
	if data.Form.Errors.Any() {
		h.render(w, r, http.StatusOK, pageChangePassword, data)
		return
	}

	var sessionID string
	if session := middleware.CurrentSession(r.Context()); session != nil {
		sessionID = session.ID
	}

	err := h.accounts.ChangePassword(r.Context(), service.ChangePasswordRequest{
		UserID:      data.User.ID,
		SessionID:   sessionID,
		OldPassword: form.OldPassword,
		NewPassword: form.NewPassword1,
		IPAddress:   getClientIP(r),
		UserAgent:   r.UserAgent(),
	})
	switch {
	case err == nil:
		http.Redirect(w, r, profileURL, http.StatusFound)
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		data.Form.Errors.Add("old_password", "Your old password was entered incorrectly. Please enter it again.")
	case errors.Is(err, service.ErrPasswordTooWeak):
		data.Form.Errors.Add("new_password2", policyMessage(err))
	default:
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, pageChangePassword, data)
}

// EmailList renders the customer's email history
func (h *Handler) EmailList(w http.ResponseWriter, r *http.Request) {
	data := h.newPage(r)
	emails, err := h.accounts.ListEmails(r.Context(), data.User.ID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	data.Emails = emails
	h.render(w, r, http.StatusOK, pageEmailList, data)
}

// EmailDetail renders one email from the history
func (h *Handler) EmailDetail(w http.ResponseWriter, r *http.Request) {
	data := h.newPage(r)
	e, err := h.accounts.GetEmail(r.Context(), data.User.ID, r.PathValue("id"))
	if errors.Is(err, service.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	data.Email = e
	h.render(w, r, http.StatusOK, pageEmailDetail, data)
}
