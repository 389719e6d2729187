package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/middleware"
)

// maxBodyBytes bounds request bodies; every payload here is a few fields.
const maxBodyBytes = 64 << 10

type handlers struct {
	engine *clinicauth.Engine
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type enrollRequest struct {
	Label  string `json:"label"`
	Issuer string `json:"issuer"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Health(r.Context())
	code := http.StatusOK
	if !status.RefreshStoreAvailable {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeValidation(w, "email and password are required")
		return
	}

	res, err := h.engine.Login(middleware.RequestContext(r), req.Email, req.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeValidation(w, "refreshToken is required")
		return
	}

	pair, err := h.engine.Refresh(middleware.RequestContext(r), req.RefreshToken)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// logout always answers {"revoked":true} once the store was reachable, so
// callers cannot probe which refresh tokens exist.
func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeValidation(w, "refreshToken is required")
		return
	}

	if _, err := h.engine.RevokeSession(middleware.RequestContext(r), req.RefreshToken); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

func (h *handlers) logoutAll(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	n, err := h.engine.RevokeAllSessions(r.Context(), p.Subject)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": true, "count": n})
}

func (h *handlers) verifyStepUp(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeValidation(w, "code is required")
		return
	}

	token, _ := middleware.BearerToken(r.Header.Get("Authorization"))
	pair, err := h.engine.CompleteStepUp(r.Context(), token, req.Code)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *handlers) enroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	p, _ := middleware.PrincipalFromContext(r.Context())
	enrollment, err := h.engine.EnrollStepUp(r.Context(), p.Subject, req.Label, req.Issuer)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollment)
}

func (h *handlers) confirmEnrollment(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeValidation(w, "code is required")
		return
	}

	p, _ := middleware.PrincipalFromContext(r.Context())
	pair, err := h.engine.VerifyStepUp(r.Context(), p.Subject, req.Code)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	state, err := h.engine.StepUpStatus(r.Context(), p.Subject)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *handlers) disable(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if err := h.engine.DisableStepUp(r.Context(), p.Subject); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clinicauth.StepUpState{})
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, p)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeValidation(w, "malformed JSON body")
		return false
	}
	return true
}

func writeValidation(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]map[string]string{
		"error": {"code": "VALIDATION_ERROR", "message": msg},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
