// Package hydrus is a small client for the Hydrus client API.
//
// Every call returns a Response envelope carrying a success flag, a message,
// the raw data and the HTTP status. Transport failures are folded into the
// envelope (Status 0) so callers treat all remote outcomes uniformly.
package hydrus
