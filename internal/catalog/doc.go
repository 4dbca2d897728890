// Package catalog talks to the scientific catalog's REST API.
//
// A Client acquires bearer tokens from the login endpoint and posts raw
// metadata JSON to model endpoints with the token as an access_token query
// credential. Submit performs exactly one attempt; SubmitWithRetry repeats
// transport failures and 5xx responses at a fixed interval up to the
// configured number of tries. TokenSource hands out one token per run,
// either from a pre-provisioned token file or from a single login.
package catalog
