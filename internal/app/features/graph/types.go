// internal/app/features/graph/types.go
package graph

import (
	"time"

	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
	"github.com/graphql-go/graphql"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Output objects resolve from plain maps built by the *Map helpers below,
// so the default resolver can read every field by name.

var assignmentType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Assignment",
	Fields: graphql.Fields{
		"userId": {Type: graphql.NewNonNull(graphql.ID)},
		"date":   {Type: graphql.NewNonNull(graphql.DateTime)},
	},
})

var addressType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Address",
	Fields: graphql.Fields{
		"id":           {Type: graphql.NewNonNull(graphql.ID)},
		"street":       {Type: graphql.NewNonNull(graphql.String)},
		"number":       {Type: graphql.NewNonNull(graphql.String)},
		"city":         {Type: graphql.NewNonNull(graphql.String)},
		"neighborhood": {Type: graphql.String},
		"gps":          {Type: graphql.String},
		"complement":   {Type: graphql.String},
		"photo":        {Type: graphql.String},
		"type":         {Type: graphql.NewNonNull(graphql.String)},
		"userId":       {Type: graphql.ID},
		"group":        {Type: graphql.NewNonNull(graphql.String)},
		"confirmed":    {Type: graphql.NewNonNull(graphql.Boolean)},
		"active":       {Type: graphql.NewNonNull(graphql.Boolean)},
		"visited":      {Type: graphql.NewNonNull(graphql.Boolean)},
		"createdAt":    {Type: graphql.DateTime},
		"updatedAt":    {Type: graphql.DateTime},
	},
})

var cardType = graphql.NewObject(graphql.ObjectConfig{
	Name:        "Card",
	Description: "A numbered card with its addresses resolved in street order.",
	Fields: graphql.Fields{
		"id":              {Type: graphql.NewNonNull(graphql.ID)},
		"number":          {Type: graphql.NewNonNull(graphql.Int)},
		"group":           {Type: graphql.NewNonNull(graphql.String)},
		"street":          {Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.ID)))},
		"addresses":       {Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(addressType)))},
		"startDate":       {Type: graphql.DateTime},
		"endDate":         {Type: graphql.DateTime},
		"usersAssigned":   {Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(assignmentType)))},
		"assignedHistory": {Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(assignmentType)))},
		"createdAt":       {Type: graphql.DateTime},
		"updatedAt":       {Type: graphql.DateTime},
	},
})

var cardRefType = graphql.NewObject(graphql.ObjectConfig{
	Name: "CardRef",
	Fields: graphql.Fields{
		"cardId":    {Type: graphql.NewNonNull(graphql.ID)},
		"date":      {Type: graphql.NewNonNull(graphql.DateTime)},
		"addresses": {Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.ID)))},
	},
})

var commentType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Comment",
	Fields: graphql.Fields{
		"cardId": {Type: graphql.NewNonNull(graphql.ID)},
		"text":   {Type: graphql.NewNonNull(graphql.String)},
		"date":   {Type: graphql.NewNonNull(graphql.DateTime)},
	},
})

// userType never exposes the password hash.
var userType = graphql.NewObject(graphql.ObjectConfig{
	Name: "User",
	Fields: graphql.Fields{
		"id":             {Type: graphql.NewNonNull(graphql.ID)},
		"name":           {Type: graphql.NewNonNull(graphql.String)},
		"email":          {Type: graphql.NewNonNull(graphql.String)},
		"profilePicture": {Type: graphql.String},
		"group":          {Type: graphql.NewNonNull(graphql.String)},
		"isAdmin":        {Type: graphql.NewNonNull(graphql.Boolean)},
		"isSS":           {Type: graphql.NewNonNull(graphql.Boolean)},
		"isSCards":       {Type: graphql.NewNonNull(graphql.Boolean)},
		"myCards":        {Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(cardRefType)))},
		"myTotalCards":   {Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(cardRefType)))},
		"comments":       {Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(commentType)))},
		"createdAt":      {Type: graphql.DateTime},
		"updatedAt":      {Type: graphql.DateTime},
	},
})

// payload builds a mutation result object {success, message, <extra>}.
func payload(name string, extra graphql.Fields) *graphql.Object {
	fields := graphql.Fields{
		"success": {Type: graphql.NewNonNull(graphql.Boolean)},
		"message": {Type: graphql.NewNonNull(graphql.String)},
	}
	for k, v := range extra {
		fields[k] = v
	}
	return graphql.NewObject(graphql.ObjectConfig{Name: name, Fields: fields})
}

var (
	resultPayload  = payload("MutationResult", nil)
	addressPayload = payload("AddressPayload", graphql.Fields{"address": {Type: addressType}})
	userPayload    = payload("UserPayload", graphql.Fields{"user": {Type: userType}})
	authPayload    = payload("AuthPayload", graphql.Fields{
		"token": {Type: graphql.String},
		"user":  {Type: userType},
	})
	deleteUserPayload = payload("DeleteUserPayload", graphql.Fields{"cardsReturned": {Type: graphql.NewNonNull(graphql.Int)}})
	cardPayload       = payload("CardPayload", graphql.Fields{"card": {Type: cardType}})
	cardsPayload      = payload("CardsPayload", graphql.Fields{"cards": {Type: graphql.NewList(graphql.NewNonNull(cardType))}})
	commentPayload    = payload("CommentPayload", graphql.Fields{"comment": {Type: commentType}})
)

var addressFilterInput = graphql.NewInputObject(graphql.InputObjectConfig{
	Name: "AddressFilter",
	Fields: graphql.InputObjectConfigFieldMap{
		"street": {Type: graphql.String},
		"city":   {Type: graphql.String},
		"type":   {Type: graphql.String},
	},
})

var createAddressInput = graphql.NewInputObject(graphql.InputObjectConfig{
	Name: "CreateAddressInput",
	Fields: graphql.InputObjectConfigFieldMap{
		"street":       {Type: graphql.NewNonNull(graphql.String)},
		"number":       {Type: graphql.NewNonNull(graphql.String)},
		"city":         {Type: graphql.NewNonNull(graphql.String)},
		"neighborhood": {Type: graphql.String},
		"gps":          {Type: graphql.String},
		"complement":   {Type: graphql.String},
		"photo":        {Type: graphql.String},
		"type":         {Type: graphql.NewNonNull(graphql.String)},
		"confirmed":    {Type: graphql.Boolean},
		"active":       {Type: graphql.Boolean},
		"visited":      {Type: graphql.Boolean},
	},
})

var updateAddressInput = graphql.NewInputObject(graphql.InputObjectConfig{
	Name: "UpdateAddressInput",
	Fields: graphql.InputObjectConfigFieldMap{
		"street":       {Type: graphql.String},
		"number":       {Type: graphql.String},
		"city":         {Type: graphql.String},
		"neighborhood": {Type: graphql.String},
		"gps":          {Type: graphql.String},
		"complement":   {Type: graphql.String},
		"photo":        {Type: graphql.String},
		"type":         {Type: graphql.String},
		"confirmed":    {Type: graphql.Boolean},
		"active":       {Type: graphql.Boolean},
		"visited":      {Type: graphql.Boolean},
	},
})

/*──────────────────────────────────────────────────────────────────────────────
  model → map
──────────────────────────────────────────────────────────────────────────────*/

func hexOrNil(id primitive.ObjectID) interface{} {
	if id.IsZero() {
		return nil
	}
	return id.Hex()
}

func timeOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func strOrNil(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func hexList(ids []primitive.ObjectID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Hex())
	}
	return out
}

func addressMap(a models.Address) map[string]interface{} {
	return map[string]interface{}{
		"id":           a.ID.Hex(),
		"street":       a.Street,
		"number":       a.Number,
		"city":         a.City,
		"neighborhood": a.Neighborhood,
		"gps":          strOrNil(a.GPS),
		"complement":   strOrNil(a.Complement),
		"photo":        a.Photo,
		"type":         a.Type,
		"userId":       hexOrNil(a.UserID),
		"group":        a.Group,
		"confirmed":    a.Confirmed,
		"active":       a.Active,
		"visited":      a.Visited,
		"createdAt":    a.CreatedAt,
		"updatedAt":    a.UpdatedAt,
	}
}

func addressList(list []models.Address) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(list))
	for _, a := range list {
		out = append(out, addressMap(a))
	}
	return out
}

func assignmentList(list []models.Assignment) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(list))
	for _, a := range list {
		out = append(out, map[string]interface{}{"userId": a.UserID.Hex(), "date": a.Date})
	}
	return out
}

func cardMap(fc models.FullCard) map[string]interface{} {
	return map[string]interface{}{
		"id":              fc.ID.Hex(),
		"number":          fc.Number,
		"group":           fc.Group,
		"street":          hexList(fc.Street),
		"addresses":       addressList(fc.Addresses),
		"startDate":       timeOrNil(fc.StartDate),
		"endDate":         timeOrNil(fc.EndDate),
		"usersAssigned":   assignmentList(fc.UsersAssigned),
		"assignedHistory": assignmentList(fc.AssignedHistory),
		"createdAt":       fc.CreatedAt,
		"updatedAt":       fc.UpdatedAt,
	}
}

func cardList(list []models.FullCard) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(list))
	for _, fc := range list {
		out = append(out, cardMap(fc))
	}
	return out
}

func cardRefList(list []models.CardRef) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(list))
	for _, r := range list {
		out = append(out, map[string]interface{}{
			"cardId":    r.CardID.Hex(),
			"date":      r.Date,
			"addresses": hexList(r.Addresses),
		})
	}
	return out
}

func commentMap(c models.Comment) map[string]interface{} {
	return map[string]interface{}{"cardId": c.CardID.Hex(), "text": c.Text, "date": c.Date}
}

func userMap(u models.User) map[string]interface{} {
	comments := make([]map[string]interface{}, 0, len(u.Comments))
	for _, c := range u.Comments {
		comments = append(comments, commentMap(c))
	}
	return map[string]interface{}{
		"id":             u.ID.Hex(),
		"name":           u.Name,
		"email":          u.Email,
		"profilePicture": u.ProfilePicture,
		"group":          u.Group,
		"isAdmin":        u.IsAdmin,
		"isSS":           u.IsSS,
		"isSCards":       u.IsSCards,
		"myCards":        cardRefList(u.MyCards),
		"myTotalCards":   cardRefList(u.MyTotalCards),
		"comments":       comments,
		"createdAt":      u.CreatedAt,
		"updatedAt":      u.UpdatedAt,
	}
}

func userList(list []models.User) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(list))
	for _, u := range list {
		out = append(out, userMap(u))
	}
	return out
}

func done(message string, extra map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{"success": true, "message": message}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

/*──────────────────────────────────────────────────────────────────────────────
  argument readers
──────────────────────────────────────────────────────────────────────────────*/

func argString(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func argOptString(m map[string]interface{}, key string) *string {
	s, ok := m[key].(string)
	if !ok {
		return nil
	}
	return &s
}

func argOptBool(m map[string]interface{}, key string) *bool {
	b, ok := m[key].(bool)
	if !ok {
		return nil
	}
	return &b
}

func argOptInt(m map[string]interface{}, key string) *int {
	n, ok := m[key].(int)
	if !ok {
		return nil
	}
	return &n
}

func argObject(m map[string]interface{}, key string) map[string]interface{} {
	o, _ := m[key].(map[string]interface{})
	if o == nil {
		return map[string]interface{}{}
	}
	return o
}

func argStrings(m map[string]interface{}, key string) []string {
	raw, _ := m[key].([]interface{})
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
