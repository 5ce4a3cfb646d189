package httpjson

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const maxJSONBodyBytes = 1 << 20

var ErrMalformedBody = errors.New("malformed json body")

// Decode reads the whole request body into dst. Any read or parse failure,
// including trailing data after the first JSON value, is reported as
// ErrMalformedBody.
func Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return ErrMalformedBody
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		return errors.Join(ErrMalformedBody, err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return ErrMalformedBody
	}

	return nil
}

func Write(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Message writes the {"message": ...} body every JSON failure response uses.
func Message(w http.ResponseWriter, status int, message string) {
	Write(w, status, map[string]string{"message": message})
}

func Text(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
