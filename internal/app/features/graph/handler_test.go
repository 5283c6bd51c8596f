package graph_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/features/addresses"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/features/cards"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/features/graph"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/features/users"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auth"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/notify"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/ratelimit"
	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"github.com/MacielDouglas/direcciones-sub001/internal/testutil"
	"github.com/MacielDouglas/direcciones-sub001/internal/testutil/memstore"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type env struct {
	h        *graph.Handler
	router   http.Handler
	bus      *notify.Bus
	tokens   *auth.TokenService
	users    *memstore.Users
	cardDB   *memstore.Cards
	addrDB   *memstore.Addresses
	sessions *auth.SessionManager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := zap.NewNop()

	e := &env{
		users:  memstore.NewUsers(),
		cardDB: memstore.NewCards(),
		addrDB: memstore.NewAddresses(),
	}
	e.bus = notify.New(e.cardDB, e.addrDB, log, notify.Options{})

	tokens, err := auth.NewTokenService(strings.Repeat("k", 32), time.Hour)
	require.NoError(t, err)
	e.tokens = tokens
	e.sessions, err = auth.NewSessionManager(strings.Repeat("s", 32), "direcciones-test", "", time.Hour, false, log)
	require.NoError(t, err)

	cardSvc := cards.NewService(cards.Deps{
		Cards:     e.cardDB,
		Addresses: e.addrDB,
		Users:     e.users,
		Notifier:  e.bus,
	})
	addrSvc := addresses.NewService(addresses.Deps{
		Addresses: e.addrDB,
		Cards:     e.cardDB,
		Users:     e.users,
		Txn:       &memstore.Transactor{},
		Notifier:  e.bus,
	})
	userSvc := users.NewService(users.Deps{
		Users:     e.users,
		Cards:     cardSvc,
		Passwords: auth.NewPasswordService(4),
		Tokens:    tokens,
	})
	resolver := auth.NewResolver(tokens, e.users, log)
	logins := ratelimit.NewLoginLimiter(100, 3)
	t.Cleanup(logins.Stop)

	e.h, err = graph.NewHandler(graph.Deps{
		Cards:     cardSvc,
		Addresses: addrSvc,
		Users:     userSvc,
		Bus:       e.bus,
		Sessions:  e.sessions,
		Auth:      resolver,
		Logins:    logins,
		Log:       log,
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(resolver.LoadPrincipal(e.sessions))
	r.Mount("/graphql", graph.Routes(e.h))
	e.router = r
	return e
}

// member stores a user of group with the given roles.
func (e *env) member(name, group string, roles ...string) models.User {
	u := testutil.NewUser(name, name+"@example.com", group)
	for _, r := range roles {
		switch r {
		case "admin":
			u.IsAdmin = true
		case "ss":
			u.IsSS = true
		case "scards":
			u.IsSCards = true
		}
	}
	return e.users.Put(u)
}

type gqlError struct {
	Message    string                 `json:"message"`
	Extensions map[string]interface{} `json:"extensions"`
}

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []gqlError                 `json:"errors"`
	rec    *testutil.ResponseRecorder
}

func (r gqlResponse) code() string {
	if len(r.Errors) == 0 {
		return ""
	}
	c, _ := r.Errors[0].Extensions["code"].(string)
	return c
}

// do posts query as u (nil for anonymous) and decodes the response.
func (e *env) do(t *testing.T, u *models.User, query string, vars map[string]any) gqlResponse {
	t.Helper()
	req := testutil.NewGraphQLRequest(query, vars)
	if u != nil {
		tok, err := e.tokens.Sign(auth.PrincipalFromUser(*u))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := testutil.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var out gqlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	out.rec = rec
	return out
}

func field(t *testing.T, r gqlResponse, name string, dst any) {
	t.Helper()
	require.Empty(t, r.Errors)
	raw, found := r.Data[name]
	require.True(t, found, "missing field %q", name)
	require.NoError(t, json.Unmarshal(raw, dst))
}

func TestRegisterLoginMe(t *testing.T) {
	e := newEnv(t)

	reg := e.do(t, nil, `mutation($n: String!, $e: String!, $p: String!) {
		register(name: $n, email: $e, password: $p) { success message user { id email group isAdmin } }
	}`, map[string]any{"n": "Ana", "e": "ANA@example.com", "p": "secret1"})

	var regOut struct {
		Success bool
		User    struct {
			ID      string
			Email   string
			Group   string
			IsAdmin bool
		}
	}
	field(t, reg, "register", &regOut)
	assert.True(t, regOut.Success)
	assert.Equal(t, "ana@example.com", regOut.User.Email)
	assert.Equal(t, models.DefaultGroup, regOut.User.Group)

	login := e.do(t, nil, `mutation { login(email: "ana@example.com", password: "secret1") { success token user { id } } }`, nil)
	var loginOut struct {
		Success bool
		Token   string
		User    struct{ ID string }
	}
	field(t, login, "login", &loginOut)
	assert.True(t, loginOut.Success)
	assert.NotEmpty(t, loginOut.Token)
	assert.Equal(t, regOut.User.ID, loginOut.User.ID)
	assert.Contains(t, login.rec.Header().Get("Set-Cookie"), "direcciones-test=")

	// The session cookie alone authenticates the next request.
	req := testutil.NewGraphQLRequest(`{ me { id } }`, nil)
	for _, c := range login.rec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := testutil.NewRecorder()
	e.router.ServeHTTP(rec, req)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, regOut.User.ID)
}

func TestLoginFailureIsUnauthorized(t *testing.T) {
	e := newEnv(t)
	res := e.do(t, nil, `mutation { login(email: "nobody@example.com", password: "whatever") { success } }`, nil)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "UNAUTHORIZED", res.code())
	assert.Equal(t, "invalid email or password", res.Errors[0].Message)
}

func TestLoginIsThrottledPerAccount(t *testing.T) {
	e := newEnv(t)
	bad := `mutation { login(email: "ana@example.com", password: "wrong") { success } }`
	for i := 0; i < 3; i++ {
		res := e.do(t, nil, bad, nil)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, "invalid email or password", res.Errors[0].Message)
	}

	res := e.do(t, nil, bad, nil)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "UNAUTHORIZED", res.code())
	assert.Contains(t, res.Errors[0].Message, "too many login attempts")
}

func TestLogoutIsIdempotent(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 2; i++ {
		res := e.do(t, nil, `mutation { logout { success message } }`, nil)
		var out struct{ Success bool }
		field(t, res, "logout", &out)
		assert.True(t, out.Success)
		assert.Contains(t, res.rec.Header().Get("Set-Cookie"), "Max-Age=0")
	}
}

func TestErrorCodes(t *testing.T) {
	e := newEnv(t)
	member := e.member("member", "g1")

	tests := []struct {
		name  string
		user  *models.User
		query string
		code  string
	}{
		{"anonymous read", nil, `{ cards { id } }`, "UNAUTHORIZED"},
		{"member cannot create cards", &member, `mutation { createCard { success } }`, "UNAUTHORIZED"},
		{"malformed id", &member, `{ card(id: "nope") { id } }`, "VALIDATION_ERROR"},
		{"unknown card", &member, `{ card(id: "` + primitive.NewObjectID().Hex() + `") { id } }`, "NOT_FOUND"},
		{"syntax error", &member, `{ cards { id `, "VALIDATION_ERROR"},
		{"unknown field", &member, `{ cards { password } }`, "VALIDATION_ERROR"},
		{"subscription over http", &member, `subscription { fullCard { id } }`, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.do(t, tt.user, tt.query, nil)
			require.NotEmpty(t, res.Errors)
			assert.Equal(t, tt.code, res.code())
		})
	}
}

func TestBadBodyIsRejected(t *testing.T) {
	e := newEnv(t)
	req := testutil.NewGraphQLRequest("", nil)
	rec := testutil.NewRecorder()
	e.router.ServeHTTP(rec, req)
	rec.AssertStatus(t, http.StatusBadRequest)
	rec.AssertContains(t, "VALIDATION_ERROR")
}

func TestCardLifecycle(t *testing.T) {
	e := newEnv(t)
	boss := e.member("boss", "g1", "ss")
	walker := e.member("walker", "g1")

	addr := e.do(t, &boss, `mutation($in: CreateAddressInput!) {
		createAddress(input: $in) { success address { id street } }
	}`, map[string]any{"in": map[string]any{
		"street": "  Calle Mayor ", "number": "12", "city": "Lima", "type": "house",
	}})
	var addrOut struct {
		Success bool
		Address struct{ ID, Street string }
	}
	field(t, addr, "createAddress", &addrOut)
	assert.Equal(t, "calle mayor", addrOut.Address.Street)

	created := e.do(t, &boss, `mutation { createCard { success message card { id number } } }`, nil)
	var cardOut struct {
		Success bool
		Message string
		Card    struct {
			ID     string
			Number int
		}
	}
	field(t, created, "createCard", &cardOut)
	assert.Equal(t, 1, cardOut.Card.Number)
	assert.Equal(t, "card 1 created", cardOut.Message)

	upd := e.do(t, &boss, `mutation($id: ID!, $s: [ID!]!) {
		updateCard(id: $id, street: $s) { success card { street addresses { id street } } }
	}`, map[string]any{"id": cardOut.Card.ID, "s": []string{addrOut.Address.ID}})
	var updOut struct {
		Card struct {
			Street    []string
			Addresses []struct{ ID, Street string }
		}
	}
	field(t, upd, "updateCard", &updOut)
	assert.Equal(t, []string{addrOut.Address.ID}, updOut.Card.Street)
	require.Len(t, updOut.Card.Addresses, 1)
	assert.Equal(t, "calle mayor", updOut.Card.Addresses[0].Street)

	assignQ := `mutation($ids: [ID!]!, $u: ID!) {
		assignCard(cardIds: $ids, userId: $u) { success message cards { number startDate endDate usersAssigned { userId } } }
	}`
	vars := map[string]any{"ids": []string{cardOut.Card.ID}, "u": walker.ID.Hex()}
	assigned := e.do(t, &boss, assignQ, vars)
	var assignOut struct {
		Message string
		Cards   []struct {
			Number        int
			StartDate     *string
			EndDate       *string
			UsersAssigned []struct{ UserID string }
		}
	}
	field(t, assigned, "assignCard", &assignOut)
	require.Len(t, assignOut.Cards, 1)
	assert.Equal(t, "card 1 assigned", assignOut.Message)
	assert.NotNil(t, assignOut.Cards[0].StartDate)
	assert.Nil(t, assignOut.Cards[0].EndDate)
	assert.Equal(t, walker.ID.Hex(), assignOut.Cards[0].UsersAssigned[0].UserID)

	again := e.do(t, &boss, assignQ, vars)
	assert.Equal(t, "CONFLICT", again.code())

	returned := e.do(t, &boss, `mutation($c: ID!, $u: ID!) {
		returnCard(cardId: $c, userId: $u) { success card { startDate usersAssigned { userId } assignedHistory { userId } } }
	}`, map[string]any{"c": cardOut.Card.ID, "u": walker.ID.Hex()})
	var retOut struct {
		Card struct {
			StartDate       *string
			UsersAssigned   []struct{ UserID string }
			AssignedHistory []struct{ UserID string }
		}
	}
	field(t, returned, "returnCard", &retOut)
	assert.Nil(t, retOut.Card.StartDate)
	assert.Empty(t, retOut.Card.UsersAssigned)
	require.Len(t, retOut.Card.AssignedHistory, 1)
	assert.Equal(t, walker.ID.Hex(), retOut.Card.AssignedHistory[0].UserID)

	list := e.do(t, &walker, `{ cards { number addresses { number } } }`, nil)
	var listOut []struct {
		Number    int
		Addresses []struct{ Number string }
	}
	field(t, list, "cards", &listOut)
	require.Len(t, listOut, 1)
	assert.Equal(t, "12", listOut[0].Addresses[0].Number)

	deleted := e.do(t, &boss, `mutation($id: ID!) { deleteCard(id: $id) { success } }`, map[string]any{"id": cardOut.Card.ID})
	var delOut struct{ Success bool }
	field(t, deleted, "deleteCard", &delOut)
	assert.True(t, delOut.Success)
	assert.Empty(t, e.cardDB.All())
}

func TestUpdateAddressWithoutChanges(t *testing.T) {
	e := newEnv(t)
	u := e.member("ana", "g1")
	a := testutil.NewAddress("calle uno", "1", "g1", u.ID)
	e.addrDB.Put(a)

	res := e.do(t, &u, `mutation($id: ID!) {
		updateAddress(id: $id, input: {street: "Calle Uno"}) { success message address { street } }
	}`, map[string]any{"id": a.ID.Hex()})
	var out struct {
		Success bool
		Message string
		Address struct{ Street string }
	}
	field(t, res, "updateAddress", &out)
	assert.False(t, out.Success)
	assert.Equal(t, "no changes", out.Message)
	assert.Equal(t, "calle uno", out.Address.Street)
}

func TestUserQueriesHidePassword(t *testing.T) {
	e := newEnv(t)
	u := e.member("ana", "g1")
	e.member("bea", "g1")
	e.member("outsider", "g2")

	res := e.do(t, &u, `{ getUsers { name } }`, nil)
	var out []struct{ Name string }
	field(t, res, "getUsers", &out)
	assert.Len(t, out, 2)

	leak := e.do(t, &u, `{ me { password } }`, nil)
	assert.Equal(t, "VALIDATION_ERROR", leak.code())
}

func TestAddCardComment(t *testing.T) {
	e := newEnv(t)
	u := e.member("ana", "g1")
	c := testutil.NewCard(1, "g1")
	e.cardDB.Put(c)

	res := e.do(t, &u, `mutation($c: ID!) {
		addCardComment(cardId: $c, text: "<b>closed</b> door") { success comment { text } }
	}`, map[string]any{"c": c.ID.Hex()})
	var out struct {
		Success bool
		Comment struct{ Text string }
	}
	field(t, res, "addCardComment", &out)
	assert.True(t, out.Success)
	assert.Equal(t, "closed door", out.Comment.Text)

	stored, _ := e.users.Get(u.ID)
	require.Len(t, stored.Comments, 1)
}

func TestSchemaBuilds(t *testing.T) {
	e := newEnv(t)
	s := e.h.Schema()
	require.NotNil(t, s.QueryType())
	require.NotNil(t, s.MutationType())
	require.NotNil(t, s.SubscriptionType())
	assert.NotNil(t, s.SubscriptionType().Fields()["fullCard"])
}
