package character

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"authgate/internal/httpjson"
)

const minNameLength = 6

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) ListCharacters(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, h.repo.List(r.Context()))
}

func (h *Handler) GetCharacter(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	c, err := h.repo.Get(r.Context(), id)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	httpjson.Write(w, http.StatusOK, c)
}

func (h *Handler) CreateCharacter(w http.ResponseWriter, r *http.Request) {
	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	httpjson.Write(w, http.StatusCreated, h.repo.Create(r.Context(), input))
}

func (h *Handler) UpdateCharacter(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	c, err := h.repo.Update(r.Context(), id, input)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	httpjson.Write(w, http.StatusOK, c)
}

func (h *Handler) DeleteCharacter(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeRepoError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		httpjson.Message(w, http.StatusBadRequest, "Invalid character id")
		return 0, false
	}
	return id, true
}

func parseInput(w http.ResponseWriter, r *http.Request) (Input, bool) {
	var input Input
	if err := httpjson.Decode(w, r, &input); err != nil {
		httpjson.Message(w, http.StatusBadRequest, "Bad request")
		return Input{}, false
	}

	input.Name = strings.TrimSpace(input.Name)
	input.LastName = strings.TrimSpace(input.LastName)
	if utf8.RuneCountInString(input.Name) < minNameLength || utf8.RuneCountInString(input.LastName) < minNameLength {
		httpjson.Message(w, http.StatusBadRequest, "Bad request")
		return Input{}, false
	}

	return input, true
}

func writeRepoError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		httpjson.Message(w, http.StatusNotFound, "Character not found")
		return
	}
	httpjson.Message(w, http.StatusInternalServerError, "Internal server error")
}
