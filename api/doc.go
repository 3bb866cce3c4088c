// Package api is the REST client for the Ekiden gateway. It covers the
// public market-data endpoints, the bearer-authenticated user endpoints,
// and the signed-intent submission path. The session manager in the auth
// package uses it as its Transport for the authorization exchange.
package api
