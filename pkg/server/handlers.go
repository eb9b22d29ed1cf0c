package server

import (
	"fmt"
	"net/http"
	"strconv"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.doc)
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, fmt.Errorf("invalid block index: %w", err))
		return
	}
	b, err := s.doc.Block(i)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, b)
}
