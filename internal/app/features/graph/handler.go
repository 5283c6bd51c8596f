// internal/app/features/graph/handler.go
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/features/addresses"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/features/cards"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/features/users"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/apperr"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auth"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/notify"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/ratelimit"
	"github.com/gorilla/websocket"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"go.uber.org/zap"
)

// maxBodyBytes caps a POST /graphql request body.
const maxBodyBytes = 1 << 20

// Deps are the collaborators of the GraphQL handler. Sessions may be nil,
// in which case login only returns the token. Logins is optional.
type Deps struct {
	Cards     *cards.Service
	Addresses *addresses.Service
	Users     *users.Service
	Bus       *notify.Bus
	Sessions  *auth.SessionManager
	Auth      *auth.Resolver
	Logins    *ratelimit.LoginLimiter
	Log       *zap.Logger
}

// Handler serves the GraphQL API over HTTP and websocket.
type Handler struct {
	cardSvc  *cards.Service
	addrs    *addresses.Service
	users    *users.Service
	bus      *notify.Bus
	sessions *auth.SessionManager
	auth     *auth.Resolver
	logins   *ratelimit.LoginLimiter
	log      *zap.Logger

	schema   graphql.Schema
	upgrader websocket.Upgrader
}

// NewHandler builds the schema and returns a ready Handler.
func NewHandler(d Deps) (*Handler, error) {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{
		cardSvc:  d.Cards,
		addrs:    d.Addresses,
		users:    d.Users,
		bus:      d.Bus,
		sessions: d.Sessions,
		auth:     d.Auth,
		logins:   d.Logins,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			Subprotocols:    []string{subprotocol},
		},
	}
	schema, err := h.buildSchema()
	if err != nil {
		return nil, fmt.Errorf("build graphql schema: %w", err)
	}
	h.schema = schema
	return h, nil
}

// Schema exposes the executable schema.
func (h *Handler) Schema() graphql.Schema { return h.schema }

type request struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

// ServeGraphQL handles POST /graphql.
//
// Field failures come back with status 200 and an errors array; each error
// carries extensions.code. A body that is not a GraphQL request gets 400.
func (h *Handler) ServeGraphQL(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		h.writeJSON(w, http.StatusBadRequest, &graphql.Result{
			Errors: []gqlerrors.FormattedError{codedFormatted("request body must be a JSON GraphQL request", apperr.KindValidation)},
		})
		return
	}

	ctx := withHTTP(r.Context(), w, r)
	res := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})
	finishErrors(res)
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, res *graphql.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		h.log.Warn("write graphql response failed", zap.Error(err))
	}
}

/*──────────────────────────────────────────────────────────────────────────────
  errors
──────────────────────────────────────────────────────────────────────────────*/

// codedError carries the apperr kind to the client as extensions.code.
type codedError struct {
	err  error
	kind apperr.Kind
}

func newCodedError(err error) *codedError {
	return &codedError{err: err, kind: apperr.KindOf(err)}
}

func (e *codedError) Error() string {
	if e.kind == apperr.KindInternal {
		return "internal error"
	}
	return e.err.Error()
}

func (e *codedError) Unwrap() error { return e.err }

// Extensions implements gqlerrors.ExtendedError.
func (e *codedError) Extensions() map[string]interface{} {
	ext := map[string]interface{}{"code": string(e.kind)}
	var ae *apperr.Error
	if errors.As(e.err, &ae) && ae.Field != "" {
		ext["field"] = ae.Field
	}
	return ext
}

func codedFormatted(message string, kind apperr.Kind) gqlerrors.FormattedError {
	return gqlerrors.FormattedError{
		Message:    message,
		Extensions: map[string]interface{}{"code": string(kind)},
	}
}

// finishErrors gives every error a code. Errors raised by the executor
// itself (syntax, unknown fields, bad variables) are validation errors.
func finishErrors(res *graphql.Result) {
	for i := range res.Errors {
		if res.Errors[i].Extensions == nil {
			res.Errors[i].Extensions = map[string]interface{}{}
		}
		if _, set := res.Errors[i].Extensions["code"]; !set {
			res.Errors[i].Extensions["code"] = string(apperr.KindValidation)
		}
	}
}

/*──────────────────────────────────────────────────────────────────────────────
  request plumbing
──────────────────────────────────────────────────────────────────────────────*/

type httpKey struct{}

type httpPair struct {
	w http.ResponseWriter
	r *http.Request
}

// withHTTP lets session resolvers (login, logout) set cookies.
func withHTTP(ctx context.Context, w http.ResponseWriter, r *http.Request) context.Context {
	return context.WithValue(ctx, httpKey{}, httpPair{w: w, r: r})
}

func httpFrom(ctx context.Context) (http.ResponseWriter, *http.Request, bool) {
	p, found := ctx.Value(httpKey{}).(httpPair)
	if !found {
		return nil, nil, false
	}
	return p.w, p.r, true
}
