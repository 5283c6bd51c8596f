// internal/app/features/graph/subscriptions.go
package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/policy/cardpolicy"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/apperr"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/auth"
	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/notify"
	"github.com/gorilla/websocket"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"go.uber.org/zap"
)

// subprotocol is the graphql-transport-ws websocket subprotocol.
const subprotocol = "graphql-transport-ws"

// rootSnapshotKey holds the group-filtered cards in the subscription root.
const rootSnapshotKey = "fullCard"

const (
	initTimeout = 10 * time.Second
	writeWait   = 10 * time.Second
)

// graphql-transport-ws message types.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

// graphql-transport-ws close codes.
const (
	closeBadRequest   = 4400
	closeUnauthorized = 4401
	closeInitTimeout  = 4408
	closeDuplicateSub = 4409
	closeTooManyInits = 4429
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// wsConn is one websocket client and its running subscriptions.
type wsConn struct {
	h    *Handler
	conn *websocket.Conn
	log  *zap.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	principal *auth.Principal
	acked     bool
	subs      map[string]context.CancelFunc
}

// ServeWS upgrades GET /graphql/ws and speaks graphql-transport-ws. The
// caller is the principal of the upgrade request, or the one resolved from
// a token in the connection_init payload.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	if conn.Subprotocol() != subprotocol {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseProtocolError, "unsupported subprotocol"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	c := &wsConn{
		h:    h,
		conn: conn,
		log:  h.log.With(zap.String("remote", r.RemoteAddr)),
		subs: make(map[string]context.CancelFunc),
	}
	if p, found := auth.PrincipalFrom(r.Context()); found {
		c.principal = &p
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer func() {
		cancel()
		_ = conn.Close()
	}()
	c.run(ctx)
}

func (c *wsConn) run(ctx context.Context) {
	initTimer := time.AfterFunc(initTimeout, func() {
		c.mu.Lock()
		acked := c.acked
		c.mu.Unlock()
		if !acked {
			c.close(closeInitTimeout, "Connection initialisation timeout")
		}
	})
	defer initTimer.Stop()

	for {
		var msg wsMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("websocket read ended", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case msgConnectionInit:
			if !c.init(ctx, msg.Payload) {
				return
			}
		case msgPing:
			c.send(wsMessage{Type: msgPong})
		case msgPong:
		case msgSubscribe:
			if !c.subscribe(ctx, msg) {
				return
			}
		case msgComplete:
			c.stop(msg.ID)
		default:
			c.close(closeBadRequest, "Invalid message received")
			return
		}
	}
}

// init acknowledges the connection. A token in the payload replaces the
// principal of the upgrade request.
func (c *wsConn) init(ctx context.Context, raw json.RawMessage) bool {
	c.mu.Lock()
	if c.acked {
		c.mu.Unlock()
		c.close(closeTooManyInits, "Too many initialisation requests")
		return false
	}
	c.mu.Unlock()

	if tok := initToken(raw); tok != "" && c.h.auth != nil {
		p, err := c.h.auth.Resolve(ctx, tok)
		if err != nil {
			c.close(closeUnauthorized, "Unauthorized")
			return false
		}
		c.mu.Lock()
		c.principal = &p
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.acked = true
	c.mu.Unlock()
	c.send(wsMessage{Type: msgConnectionAck})
	return true
}

// initToken accepts {"token": "..."} or {"authorization": "Bearer ..."}.
func initToken(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var p struct {
		Token         string `json:"token"`
		Authorization string `json:"authorization"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return ""
	}
	if p.Token != "" {
		return p.Token
	}
	return strings.TrimSpace(strings.TrimPrefix(p.Authorization, "Bearer "))
}

type subscribePayload struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

func (c *wsConn) subscribe(ctx context.Context, msg wsMessage) bool {
	c.mu.Lock()
	acked, p := c.acked, c.principal
	_, dup := c.subs[msg.ID]
	c.mu.Unlock()

	if !acked {
		c.close(closeUnauthorized, "Unauthorized")
		return false
	}
	if msg.ID == "" {
		c.close(closeBadRequest, "Subscribe message requires an id")
		return false
	}
	if dup {
		c.close(closeDuplicateSub, "Subscriber for "+msg.ID+" already exists")
		return false
	}

	var sp subscribePayload
	if err := json.Unmarshal(msg.Payload, &sp); err != nil || sp.Query == "" {
		c.sendError(msg.ID, apperr.Validation("query", "subscribe payload requires a query"))
		return true
	}
	if p == nil {
		c.sendError(msg.ID, apperr.Unauthorized("authentication required"))
		return true
	}
	if err := cardpolicy.CanRead(*p); err != nil {
		c.sendError(msg.ID, err)
		return true
	}
	if err := isSubscription(sp); err != nil {
		c.sendError(msg.ID, err)
		return true
	}

	subCtx, cancel := context.WithCancel(auth.WithPrincipal(ctx, *p))
	c.mu.Lock()
	c.subs[msg.ID] = cancel
	c.mu.Unlock()

	// Registered before returning so no snapshot published after the
	// subscribe message is missed.
	sub := c.h.bus.Subscribe(subCtx)
	go c.stream(subCtx, msg.ID, sub, *p, sp)
	return true
}

// stream forwards every bus snapshot, filtered to p's group, until the
// client completes the subscription or the connection closes. The
// subscriber is reloaded before each snapshot; once it is deleted, loses
// card access or changes group, the subscription ends with an error.
func (c *wsConn) stream(ctx context.Context, id string, sub *notify.Subscription, p auth.Principal, sp subscribePayload) {
	defer sub.Unsubscribe()
	c.log.Debug("subscription started", zap.String("id", id), zap.String("subscription", sub.ID()))

	for {
		select {
		case <-ctx.Done():
			return
		case snap, open := <-sub.C():
			if !open {
				if ctx.Err() == nil {
					c.send(wsMessage{ID: id, Type: msgComplete})
				}
				return
			}
			if err := c.recheck(ctx, p); err != nil {
				c.log.Debug("subscription revoked", zap.String("id", id), zap.Error(err))
				// Released before the error goes out so the client can reuse id.
				c.stop(id)
				c.sendError(id, err)
				return
			}
			res := graphql.Do(graphql.Params{
				Schema:         c.h.schema,
				RequestString:  sp.Query,
				VariableValues: sp.Variables,
				OperationName:  sp.OperationName,
				Context:        ctx,
				RootObject:     map[string]interface{}{rootSnapshotKey: snap.ForGroup(p.Group)},
			})
			finishErrors(res)
			body, err := json.Marshal(res)
			if err != nil {
				c.log.Error("encode subscription result failed", zap.Error(err))
				continue
			}
			c.send(wsMessage{ID: id, Type: msgNext, Payload: body})
		}
	}
}

// recheck reports why p may no longer receive snapshots of its group.
func (c *wsConn) recheck(ctx context.Context, p auth.Principal) error {
	fresh, err := c.h.auth.Refresh(ctx, p)
	if err != nil {
		return err
	}
	if err := cardpolicy.CanRead(fresh); err != nil {
		return err
	}
	if fresh.Group != p.Group {
		return apperr.Unauthorized("group changed; subscribe again")
	}
	return nil
}

// stop ends a subscription the client completed.
func (c *wsConn) stop(id string) {
	c.mu.Lock()
	cancel, found := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if found {
		cancel()
	}
}

func (c *wsConn) sendError(id string, err error) {
	ce := newCodedError(err)
	body, _ := json.Marshal([]gqlerrors.FormattedError{codedFormatted(ce.Error(), ce.kind)})
	c.send(wsMessage{ID: id, Type: msgError, Payload: body})
}

func (c *wsConn) send(msg wsMessage) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.log.Debug("websocket write failed", zap.String("type", msg.Type), zap.Error(err))
	}
}

func (c *wsConn) close(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	_ = c.conn.Close()
}

// isSubscription rejects documents whose selected operation is not a
// subscription.
func isSubscription(sp subscribePayload) error {
	doc, err := parser.Parse(parser.ParseParams{Source: sp.Query})
	if err != nil {
		return apperr.Validation("query", err.Error())
	}
	var ops []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		if op, is := def.(*ast.OperationDefinition); is {
			ops = append(ops, op)
		}
	}
	for _, op := range ops {
		named := op.Name != nil && op.Name.Value == sp.OperationName
		if (sp.OperationName == "" && len(ops) == 1) || named {
			if op.Operation != ast.OperationTypeSubscription {
				return apperr.Validation("query", "only subscription operations are accepted here")
			}
			return nil
		}
	}
	return apperr.Validation("operationName", "operation not found")
}
