package main

import "net/http"

// httpDoer is the client contract the integration helpers poll with.
type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}
