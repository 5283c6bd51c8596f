package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auth"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemberPrincipal returns a principal with no roles in group.
func MemberPrincipal(group string) auth.Principal {
	return auth.Principal{
		UserID: primitive.NewObjectID(),
		Name:   "test member",
		Group:  group,
	}
}

// AdminPrincipal returns a group administrator.
func AdminPrincipal(group string) auth.Principal {
	p := MemberPrincipal(group)
	p.Name = "test admin"
	p.IsAdmin = true
	return p
}

// CardManagerPrincipal returns a principal allowed to manage cards in group.
func CardManagerPrincipal(group string) auth.Principal {
	p := MemberPrincipal(group)
	p.Name = "test cards"
	p.IsSCards = true
	return p
}

// AsPrincipal returns ctx carrying p, bypassing token resolution.
func AsPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return auth.WithPrincipal(ctx, p)
}

// WithPrincipal adds p to the request context.
func WithPrincipal(r *http.Request, p auth.Principal) *http.Request {
	return r.WithContext(auth.WithPrincipal(r.Context(), p))
}

// NewGraphQLRequest builds a POST /graphql request carrying query and vars.
func NewGraphQLRequest(query string, vars map[string]any) *http.Request {
	body, _ := json.Marshal(map[string]any{"query": query, "variables": vars})
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// ResponseRecorder wraps httptest.ResponseRecorder with helper methods.
type ResponseRecorder struct {
	*httptest.ResponseRecorder
}

// NewRecorder creates a new ResponseRecorder.
func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{httptest.NewRecorder()}
}

// AssertStatus checks the response status code.
func (r *ResponseRecorder) AssertStatus(t interface{ Errorf(string, ...any) }, expected int) {
	if r.Code != expected {
		t.Errorf("status code: got %d, want %d", r.Code, expected)
	}
}

// AssertContains checks if the response body contains the expected string.
func (r *ResponseRecorder) AssertContains(t interface{ Errorf(string, ...any) }, expected string) {
	if !strings.Contains(r.Body.String(), expected) {
		t.Errorf("response body does not contain %q", expected)
	}
}
