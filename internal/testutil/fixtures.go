// Package testutil holds fixtures shared by package tests: a small blog
// schema, matching records, and deterministic id generation.
package testutil

import (
	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/schema"
)

// BlogRegistry returns the User/Post/Comment schema used across tests.
//
//	User  1─* Post  1─* Comment
func BlogRegistry() *schema.Registry {
	return schema.MustRegistry(
		schema.Entity{
			Name:    "User",
			Table:   "users",
			IDField: "id",
			Fields: map[string]schema.Field{
				"id":    {Type: schema.TypeID},
				"name":  {Type: schema.TypeString},
				"email": {Type: schema.TypeString},
				"age":   {Type: schema.TypeNumber},
				"admin": {Type: schema.TypeBool},
			},
			Relations: map[string]schema.Relation{
				"posts": {Entity: "Post", LocalKey: "id", ForeignKey: "authorId", Many: true},
			},
		},
		schema.Entity{
			Name:    "Post",
			Table:   "posts",
			IDField: "id",
			Fields: map[string]schema.Field{
				"id":        {Type: schema.TypeID},
				"authorId":  {Type: schema.TypeID, Column: "author_id"},
				"title":     {Type: schema.TypeString},
				"score":     {Type: schema.TypeNumber},
				"published": {Type: schema.TypeBool},
			},
			Relations: map[string]schema.Relation{
				"author":   {Entity: "User", LocalKey: "authorId", ForeignKey: "id"},
				"comments": {Entity: "Comment", LocalKey: "id", ForeignKey: "postId", Many: true},
			},
		},
		schema.Entity{
			Name:    "Comment",
			Table:   "comments",
			IDField: "id",
			Fields: map[string]schema.Field{
				"id":     {Type: schema.TypeID},
				"postId": {Type: schema.TypeID, Column: "post_id"},
				"body":   {Type: schema.TypeString},
			},
		},
	)
}

// Users returns the user records. age is null for "u4".
func Users() []query.Record {
	return []query.Record{
		{"id": "u1", "name": "Ann", "email": "ann@example.com", "age": 31, "admin": true},
		{"id": "u2", "name": "bob", "email": "bob@example.org", "age": 25, "admin": false},
		{"id": "u3", "name": "Cara", "email": "cara@example.com", "age": 42, "admin": false},
		{"id": "u4", "name": "dan", "email": nil, "age": nil, "admin": false},
	}
}

// Posts returns the post records keyed to Users by authorId. score is null for "p5".
func Posts() []query.Record {
	return []query.Record{
		{"id": "p1", "authorId": "u1", "title": "Go generics", "score": 10, "published": true},
		{"id": "p2", "authorId": "u1", "title": "SQL joins", "score": 7, "published": false},
		{"id": "p3", "authorId": "u2", "title": "Mongo pipelines", "score": 3, "published": true},
		{"id": "p4", "authorId": "u3", "title": "go modules", "score": 7, "published": true},
		{"id": "p5", "authorId": "u3", "title": "Drafts", "score": nil, "published": false},
	}
}

// UsersWithPosts returns Users with each user's posts embedded under "posts".
// Users without posts have no "posts" key.
func UsersWithPosts() []query.Record {
	posts := Posts()
	users := Users()
	for _, u := range users {
		var own []any
		for _, p := range posts {
			if p["authorId"] == u["id"] {
				own = append(own, p)
			}
		}
		if own != nil {
			u["posts"] = own
		}
	}
	return users
}

// IDs extracts the id field of every record, preserving order.
func IDs(records []query.Record) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r["id"]
	}
	return out
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
