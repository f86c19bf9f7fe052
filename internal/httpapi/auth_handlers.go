package httpapi

import (
	"net/http"

	"qazna.org/authservice/internal/audit"
	"qazna.org/authservice/internal/auth"
	"qazna.org/authservice/internal/obs"
)

type principalResponse struct {
	UserID string        `json:"userId"`
	Email  string        `json:"email"`
	Role   auth.RoleName `json:"role"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if !a.bind(w, r, &req, map[string]any{"email": &req.Email}) {
		return
	}

	pair, err := a.svc.Login(r.Context(), req.Email, req.Password)
	obs.ObserveAuth("login", outcome(err))
	if err != nil {
		_ = audit.LogEvent(r.Context(), audit.LoginFailed, map[string]any{"email": req.Email})
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.LoginSucceeded, map[string]any{"email": req.Email})
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	values := map[string]any{
		"email":     &req.Email,
		"role":      &req.Role,
		"name":      &req.Name,
		"surname":   &req.Surname,
		"birthDate": &req.BirthDate,
	}
	if !a.bind(w, r, &req, values) {
		return
	}

	callerToken, ok := auth.TokenFromContext(r.Context())
	if !ok {
		callerToken, _ = extractBearerToken(r.Header.Get(authHeader))
	}
	err := a.svc.Register(r.Context(), auth.Registration{
		Email:       req.Email,
		Password:    req.Password,
		Role:        req.Role,
		CallerToken: callerToken,
		Profile: auth.Profile{
			Name:      req.Name,
			Surname:   req.Surname,
			BirthDate: req.BirthDate,
		},
	})
	obs.ObserveAuth("register", outcome(err))
	fields := map[string]any{"email": req.Email, "role": req.Role}
	if err != nil {
		fields["reason"] = outcome(err)
		_ = audit.LogEvent(r.Context(), audit.RegisterRejected, fields)
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.RegisterSucceeded, fields)
	w.WriteHeader(http.StatusCreated)
}

func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req tokenRequest
	if !a.bind(w, r, &req, nil) {
		return
	}
	info, err := a.svc.Validate(r.Context(), req.Token)
	obs.ObserveAuth("validate", outcome(err))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req tokenRequest
	if !a.bind(w, r, &req, nil) {
		return
	}
	pair, err := a.svc.Refresh(r.Context(), req.Token)
	obs.ObserveAuth("refresh", outcome(err))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.TokenRefreshed, nil)
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, err := auth.RequireRole(r.Context(), auth.RoleUser)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, principalResponse{UserID: p.UserID, Email: p.Email, Role: p.Role})
}

type validatable interface {
	Validate() error
}

// bind decodes and validates the body, writing the error response itself on failure.
// values holds pointers to submitted fields that may be echoed back as rejected values.
func (a *API) bind(w http.ResponseWriter, r *http.Request, dst validatable, values map[string]any) bool {
	if err := decodeJSON(r, dst); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	if err := dst.Validate(); err != nil {
		rejected := make(map[string]any, len(values))
		for k, v := range values {
			if s, ok := v.(*string); ok {
				rejected[k] = *s
			}
		}
		writeValidationErrors(w, fieldErrors(err, rejected))
		return false
	}
	return true
}

func outcome(err error) string {
	switch auth.KindOf(err) {
	case nil:
		if err != nil {
			return "error"
		}
		return "ok"
	case auth.ErrNotFound:
		return "not_found"
	case auth.ErrAlreadyExists:
		return "already_exists"
	case auth.ErrInvalid:
		return "invalid"
	case auth.ErrForbidden:
		return "forbidden"
	case auth.ErrUnauthenticated:
		return "unauthenticated"
	case auth.ErrDependencyUnavailable:
		return "dependency_unavailable"
	default:
		return "error"
	}
}
