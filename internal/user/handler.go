package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
)

// Handler exposes HTTP endpoints for user operations.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
	// debug puts the real error text into 500 responses.
	debug bool
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger, debug bool) *Handler {
	return &Handler{svc: svc, logger: logger, debug: debug}
}

// Envelope is the body of every user endpoint response.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    any         `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Errors  FieldErrors `json:"errors,omitempty"`
}

const (
	msgNotFound       = "Usuário não encontrado"
	msgValidation     = "Dados de validação inválidos"
	msgBadCredentials = "Credenciais inválidas"
	msgInternal       = "Internal server error"
)

// operation names a handler for logs and carries its 500 message.
type operation struct {
	name    string
	failure string
}

var (
	opList      = operation{"list users", "Erro interno do servidor ao buscar usuarios"}
	opShow      = operation{"show user", "Erro interno do servidor ao buscar usuário"}
	opStore     = operation{"create user", "Erro interno do servidor ao criar usuário"}
	opUpdate    = operation{"update user", "Erro interno do servidor ao atualizar usuário"}
	opDestroy   = operation{"delete user", "Erro interno do servidor ao deletar usuário"}
	opLogin     = operation{"login", "Erro interno do servidor ao fazer login"}
	opLogout    = operation{"logout", "Erro interno do servidor ao fazer logout"}
	opLogoutAll = operation{"logout all", "Erro interno do servidor ao fazer logout"}
)

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.List(r.Context())
	if err != nil {
		h.fail(w, opList, err)
		return
	}
	if users == nil {
		users = []entity.User{}
	}
	h.ok(w, http.StatusOK, "Lista de usuarios encontrados com sucesso", users)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.fail(w, opShow, ErrUserNotFound)
		return
	}
	u, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.fail(w, opShow, err, "id", id)
		return
	}
	h.ok(w, http.StatusOK, fmt.Sprintf("Usuario %d encontrado com sucesso", id), u)
}

// Store creates a user. It backs both the public registration route and the
// authenticated POST /users.
func (h *Handler) Store(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Create(r.Context(), DecodeInput(r.Body))
	if err != nil {
		h.fail(w, opStore, err)
		return
	}
	h.ok(w, http.StatusCreated, "Usuario criado com sucesso", u)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.fail(w, opUpdate, ErrUserNotFound)
		return
	}
	u, err := h.svc.Update(r.Context(), id, DecodeInput(r.Body))
	if err != nil {
		h.fail(w, opUpdate, err, "id", id)
		return
	}
	h.ok(w, http.StatusOK, "Usuario atualizado com sucesso", u)
}

func (h *Handler) Destroy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.fail(w, opDestroy, ErrUserNotFound)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.fail(w, opDestroy, err, "id", id)
		return
	}
	h.ok(w, http.StatusOK, fmt.Sprintf("Usuario %d deletado com sucesso", id), nil)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Login(r.Context(), DecodeInput(r.Body))
	if err != nil {
		h.fail(w, opLogin, err)
		return
	}
	h.ok(w, http.StatusOK, "Login realizado com sucesso", res)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	u, t, _ := CurrentUser(r.Context())
	if err := h.svc.Logout(r.Context(), t); err != nil {
		h.fail(w, opLogout, err, "id", u.ID)
		return
	}
	h.ok(w, http.StatusOK, "Logout realizado com sucesso", nil)
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	u, _, _ := CurrentUser(r.Context())
	if err := h.svc.LogoutAll(r.Context(), u); err != nil {
		h.fail(w, opLogoutAll, err, "id", u.ID)
		return
	}
	h.ok(w, http.StatusOK, "Logout de todos os dispositivos realizado com sucesso", nil)
}

// Me returns the authenticated user as a bare object.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, _, _ := CurrentUser(r.Context())
	h.writeJSON(w, http.StatusOK, u)
}

// Authenticate is the bearer token gate for protected routes.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			h.unauthenticated(w)
			return
		}
		u, t, err := h.svc.Authenticate(r.Context(), raw)
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				h.unauthenticated(w)
				return
			}
			h.logger.Errorw("authenticate failed", "err", err)
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Server Error"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), u, t)))
	})
}

func (h *Handler) unauthenticated(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthenticated."})
}

func (h *Handler) ok(w http.ResponseWriter, status int, msg string, data any) {
	h.writeJSON(w, status, Envelope{Success: true, Message: msg, Data: data})
}

// fail translates a service error into its response. Only unexpected errors
// are logged.
func (h *Handler) fail(w http.ResponseWriter, op operation, err error, keyvals ...any) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeJSON(w, http.StatusUnprocessableEntity, Envelope{Message: msgValidation, Errors: verr.Errors})
	case errors.Is(err, ErrUserNotFound):
		h.writeJSON(w, http.StatusNotFound, Envelope{Message: msgNotFound})
	case errors.Is(err, ErrBadCredentials):
		h.writeJSON(w, http.StatusUnauthorized, Envelope{Message: msgBadCredentials})
	default:
		h.logger.Errorw(op.name+" failed", append(keyvals, "err", err)...)
		detail := msgInternal
		if h.debug {
			detail = err.Error()
		}
		h.writeJSON(w, http.StatusInternalServerError, Envelope{Message: op.failure, Error: detail})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(auth[7:])
	return tok, tok != ""
}

type principalKey struct{}

type principal struct {
	user  *entity.User
	token *entity.AccessToken
}

func withPrincipal(ctx context.Context, u *entity.User, t *entity.AccessToken) context.Context {
	return context.WithValue(ctx, principalKey{}, principal{user: u, token: t})
}

// CurrentUser returns the user and token attached by Authenticate.
func CurrentUser(ctx context.Context) (*entity.User, *entity.AccessToken, bool) {
	p, ok := ctx.Value(principalKey{}).(principal)
	if !ok {
		return nil, nil, false
	}
	return p.user, p.token, true
}
