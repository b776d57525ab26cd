// Package testhelpers collects small test utilities shared across this
// module's package tests.
package testhelpers

import (
	"net/http"
	"net/http/httptest"
	"sync"
)

// NewTestServer returns an httptest.Server for the given handler func.
func NewTestServer(handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(handler))
}

// WaitGroupDoneOnce returns a function that calls wg.Done() only once,
// for tests driving a WaitGroup from more than one goroutine/branch.
func WaitGroupDoneOnce(wg *sync.WaitGroup) func() {
	once := sync.Once{}
	return func() { once.Do(wg.Done) }
}
