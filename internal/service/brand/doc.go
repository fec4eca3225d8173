// Package brand manages brands and their lists, and decides whether a
// user may act on a brand.
//
// Every brand-scoped API call goes through Authorize first. Repository
// implementations live in repository/postgres/ and repository/memory/.
package brand
