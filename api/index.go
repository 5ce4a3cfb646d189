package api

import (
	"net/http"
	"sync"

	"authgate/app"
	"authgate/internal/httpjson"
)

var (
	initOnce   sync.Once
	apiRuntime *app.Runtime
	initErr    error
)

// Handler is the serverless entry point. State lives for as long as the
// function instance does.
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(func() {
		apiRuntime, initErr = app.Build(app.Options{
			LoadDotEnv: app.EnvBoolOrDefault("LOAD_DOTENV", false),
		})
	})

	if initErr != nil {
		httpjson.Message(w, http.StatusInternalServerError, "Application bootstrap failed")
		return
	}

	apiRuntime.Handler.ServeHTTP(w, r)
}
