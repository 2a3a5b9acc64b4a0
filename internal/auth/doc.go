// Package auth reads the identity carried by Arduino cloud access tokens.
//
// The broker authenticates a user session with the raw JWT as MQTT password
// and the user id as MQTT username. ParseClaims decodes the token locally so
// the client can pick the username and client id without a round trip to the
// users API. Signatures are not verified here; that is the broker's job.
package auth
