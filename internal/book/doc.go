// Package book defines the loan record kept by the record store, the
// requests that mutate it, and the lending rules each request kind applies.
// Rules operate on a private copy of a record; nothing here talks to a store.
package book
