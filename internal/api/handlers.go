package api

import (
	"encoding/json"
	"net/http"

	"github.com/m3rciful/telelink/internal/domain"
	"github.com/m3rciful/telelink/internal/otp"
	"github.com/m3rciful/telelink/internal/recordstore"
)

// Handler serves the account-linking endpoints.
type Handler struct {
	issuer    *otp.Issuer
	verifier  *otp.Verifier
	confirmer *otp.Confirmer
	records   recordstore.LinkStore
}

// NewHandler wires the OTP services and the record store into the HTTP surface.
func NewHandler(issuer *otp.Issuer, verifier *otp.Verifier, confirmer *otp.Confirmer, records recordstore.LinkStore) *Handler {
	return &Handler{
		issuer:    issuer,
		verifier:  verifier,
		confirmer: confirmer,
		records:   records,
	}
}

// RequestOTP issues a fresh code for the website and returns the bot deep link.
func (h *Handler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req requestOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateStruct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.issuer.Issue(r.Context(), otp.IssueRequest{
		TelegramHandle: req.TelegramHandle,
		AccountID:      req.AccountID,
		Email:          req.Email,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requestOTPResponse{
		OTP:          res.Code,
		TelegramLink: res.DeepLink,
	})
}

// VerifyOTP answers the stateless cross-verification question. A negative
// answer is a 400 with verified:false, never an error envelope.
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ok, err := h.verifier.Verify(r.Context(), req.OTP, req.TelegramHandle)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusBadRequest, verifyOTPResponse{Verified: false})
		return
	}
	writeJSON(w, http.StatusOK, verifyOTPResponse{Verified: true})
}

// ConfirmLink finalizes a link on behalf of the bot after the user pressed Yes.
func (h *Handler) ConfirmLink(w http.ResponseWriter, r *http.Request) {
	var req confirmLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateStruct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.confirmer.Confirm(r.Context(), otp.ConfirmRequest{
		Code:             req.OTP,
		TelegramUserID:   req.TelegramUserID,
		TelegramUsername: req.TelegramUsername,
		Signature:        req.Signature,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageEnvelope{Message: "Verification successful"})
}

// UpdateUsername refreshes the stored Telegram username and reports the linked
// account id. The bot calls this on every /start.
func (h *Handler) UpdateUsername(w http.ResponseWriter, r *http.Request) {
	var req updateUsernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TelegramUserID == 0 || req.TelegramUsername == "" {
		writeJSON(w, http.StatusBadRequest, messageEnvelope{Message: "Missing telegram_user_id or telegram_username"})
		return
	}

	accountID, err := h.records.ResolveByTelegramID(r.Context(), req.TelegramUserID, req.TelegramUsername)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updateUsernameResponse{
		Message:          "Username updated",
		TelegramUsername: req.TelegramUsername,
		AccountID:        accountID,
	})
}

// Health answers liveness probes.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageEnvelope{Message: "ok"})
}

// writeDomainError maps the domain error taxonomy onto HTTP statuses and the
// envelope bodies the website and the bot expect.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch domain.CodeOf(err) {
	case domain.CodeValidation:
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.CodeInvalidSignature:
		writeError(w, http.StatusUnauthorized, "Invalid signature")
	case domain.CodeExpiredOrUnknownCode, domain.CodeMalformedPayload:
		writeError(w, http.StatusBadRequest, "Invalid or expired OTP")
	case domain.CodeNotFoundUser:
		writeJSON(w, http.StatusNotFound, messageEnvelope{
			Error: err.Error(),
			Code:  domain.CodeNotFoundUser,
		})
	case domain.CodeUpstreamUnavailable:
		writeError(w, http.StatusBadGateway, "upstream unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Wait blocks until background record patches finish. Used on shutdown.
func (h *Handler) Wait() {
	h.verifier.Wait()
}
