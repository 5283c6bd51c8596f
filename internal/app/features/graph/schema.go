// internal/app/features/graph/schema.go
package graph

import (
	"github.com/graphql-go/graphql"
)

func idArg() *graphql.ArgumentConfig {
	return &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)}
}

func strArg(required bool) *graphql.ArgumentConfig {
	if required {
		return &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)}
	}
	return &graphql.ArgumentConfig{Type: graphql.String}
}

// buildSchema wires every query, mutation and subscription field to h.
func (h *Handler) buildSchema() (graphql.Schema, error) {
	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"addresses": {
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(addressType))),
				Args: graphql.FieldConfigArgument{
					"filter": {Type: addressFilterInput},
					"skip":   {Type: graphql.Int},
					"limit":  {Type: graphql.Int},
				},
				Resolve: h.resolve("addresses", h.addresses),
			},
			"address": {
				Type:    addressType,
				Args:    graphql.FieldConfigArgument{"id": idArg()},
				Resolve: h.resolve("address", h.address),
			},
			"cards": {
				Type:    graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(cardType))),
				Resolve: h.resolve("cards", h.cards),
			},
			"card": {
				Type:    cardType,
				Args:    graphql.FieldConfigArgument{"id": idArg()},
				Resolve: h.resolve("card", h.card),
			},
			"getUsers": {
				Type:    graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(userType))),
				Resolve: h.resolve("getUsers", h.getUsers),
			},
			"user": {
				Type:    userType,
				Args:    graphql.FieldConfigArgument{"id": idArg()},
				Resolve: h.resolve("user", h.user),
			},
			"me": {
				Type:    userType,
				Resolve: h.resolve("me", h.me),
			},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createAddress": {
				Type:    addressPayload,
				Args:    graphql.FieldConfigArgument{"input": {Type: graphql.NewNonNull(createAddressInput)}},
				Resolve: h.resolve("createAddress", h.createAddress),
			},
			"updateAddress": {
				Type: addressPayload,
				Args: graphql.FieldConfigArgument{
					"id":    idArg(),
					"input": {Type: graphql.NewNonNull(updateAddressInput)},
				},
				Resolve: h.resolve("updateAddress", h.updateAddress),
			},
			"deleteAddress": {
				Type:    resultPayload,
				Args:    graphql.FieldConfigArgument{"id": idArg()},
				Resolve: h.resolve("deleteAddress", h.deleteAddress),
			},
			"register": {
				Type: userPayload,
				Args: graphql.FieldConfigArgument{
					"name":     strArg(true),
					"email":    strArg(true),
					"password": strArg(true),
				},
				Resolve: h.resolve("register", h.register),
			},
			"login": {
				Type: authPayload,
				Args: graphql.FieldConfigArgument{
					"email":    strArg(true),
					"password": strArg(true),
				},
				Resolve: h.resolve("login", h.login),
			},
			"logout": {
				Type:    resultPayload,
				Resolve: h.resolve("logout", h.logout),
			},
			"updateUser": {
				Type: userPayload,
				Args: graphql.FieldConfigArgument{
					"name":           strArg(false),
					"profilePicture": strArg(false),
				},
				Resolve: h.resolve("updateUser", h.updateUser),
			},
			"designateUser": {
				Type: userPayload,
				Args: graphql.FieldConfigArgument{
					"userId":   idArg(),
					"group":    strArg(false),
					"isAdmin":  {Type: graphql.Boolean},
					"isSS":     {Type: graphql.Boolean},
					"isSCards": {Type: graphql.Boolean},
				},
				Resolve: h.resolve("designateUser", h.designateUser),
			},
			"deleteUser": {
				Type:    deleteUserPayload,
				Args:    graphql.FieldConfigArgument{"userId": idArg()},
				Resolve: h.resolve("deleteUser", h.deleteUser),
			},
			"createCard": {
				Type:    cardPayload,
				Resolve: h.resolve("createCard", h.createCard),
			},
			"updateCard": {
				Type: cardPayload,
				Args: graphql.FieldConfigArgument{
					"id":     idArg(),
					"street": {Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.ID)))},
				},
				Resolve: h.resolve("updateCard", h.updateCard),
			},
			"assignCard": {
				Type: cardsPayload,
				Args: graphql.FieldConfigArgument{
					"cardIds": {Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.ID)))},
					"userId":  idArg(),
				},
				Resolve: h.resolve("assignCard", h.assignCard),
			},
			"returnCard": {
				Type: cardPayload,
				Args: graphql.FieldConfigArgument{
					"cardId": idArg(),
					"userId": idArg(),
				},
				Resolve: h.resolve("returnCard", h.returnCard),
			},
			"deleteCard": {
				Type:    resultPayload,
				Args:    graphql.FieldConfigArgument{"id": idArg()},
				Resolve: h.resolve("deleteCard", h.deleteCard),
			},
			"addCardComment": {
				Type: commentPayload,
				Args: graphql.FieldConfigArgument{
					"cardId": idArg(),
					"text":   strArg(true),
				},
				Resolve: h.resolve("addCardComment", h.addCardComment),
			},
		},
	})

	subscription := graphql.NewObject(graphql.ObjectConfig{
		Name: "Subscription",
		Fields: graphql.Fields{
			"fullCard": {
				Type:        graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(cardType))),
				Description: "Every card of the caller's group, sent after each card-affecting change.",
				Resolve:     h.resolve("fullCard", h.fullCard),
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:        query,
		Mutation:     mutation,
		Subscription: subscription,
	})
}
