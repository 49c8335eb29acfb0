package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bookstore/inventory-service-go/internal/application"
	"github.com/bookstore/inventory-service-go/internal/domain"
)

// Server groups the deps for the HTTP layer.
type Server struct {
	ledger     domain.StockLedger
	reserveSvc *application.ReserveStockService
	logger     zerolog.Logger
}

func NewServer(
	ledger domain.StockLedger,
	reserveSvc *application.ReserveStockService,
	logger zerolog.Logger,
) *Server {
	return &Server{
		ledger:     ledger,
		reserveSvc: reserveSvc,
		logger:     logger.With().Str("component", "http").Logger(),
	}
}

// RegisterRoutes registers all HTTP routes on the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/stock/reserve", s.handleReserve)
	mux.HandleFunc("/api/stock/release", s.handleRelease)
	mux.HandleFunc("/api/stock/", s.handleGetStock)
	mux.HandleFunc("/swagger.json", s.handleSwaggerJson)
}

type healthResponse struct {
	Status string `json:"status"`
}

type stockResponse struct {
	BookID    uuid.UUID `json:"bookId"`
	OnHand    int       `json:"quantity"`
	Reserved  int       `json:"reserved"`
	Available int       `json:"available"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type reserveRequest struct {
	BookID   uuid.UUID `json:"bookId"`
	Quantity int       `json:"quantity"`
}

type reserveResponse struct {
	BookID             uuid.UUID `json:"bookId"`
	QuantityReserved   int       `json:"quantityReserved"`
	RemainingAvailable int       `json:"remainingAvailable"`
}

type releaseResponse struct {
	BookID             uuid.UUID `json:"bookId"`
	QuantityReleased   int       `json:"quantityReleased"`
	RemainingAvailable int       `json:"remainingAvailable"`
}

type conflictResponse struct {
	Error     string `json:"error"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// Handler GET /api/stock/{bookId}
func (s *Server) handleGetStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/stock/")
	if path == "" || path == r.URL.Path {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bookId is required"})
		return
	}
	bookID, err := uuid.Parse(path)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bookId is invalid"})
		return
	}

	rec, err := s.ledger.Get(r.Context(), bookID)
	if errors.Is(err, domain.ErrNotFound) {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "book not found in inventory"})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("stock lookup failed")
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	s.writeJSON(w, http.StatusOK, stockResponse{
		BookID:    rec.BookID,
		OnHand:    rec.OnHand,
		Reserved:  rec.Reserved,
		Available: rec.Available(),
		UpdatedAt: rec.UpdatedAt,
	})
}

// Handler POST /api/stock/reserve
func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	result, err := s.reserveSvc.Reserve(r.Context(), req.BookID, req.Quantity)
	if err != nil {
		s.writeReserveError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, reserveResponse{
		BookID:             result.BookID,
		QuantityReserved:   result.QuantityReserved,
		RemainingAvailable: result.RemainingAvailable,
	})
}

// Handler POST /api/stock/release
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	result, err := s.reserveSvc.Release(r.Context(), req.BookID, req.Quantity)
	if err != nil {
		s.writeReserveError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, releaseResponse{
		BookID:             result.BookID,
		QuantityReleased:   result.QuantityReleased,
		RemainingAvailable: result.RemainingAvailable,
	})
}

func (s *Server) writeReserveError(w http.ResponseWriter, err error) {
	var insErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &insErr):
		s.writeJSON(w, http.StatusConflict, conflictResponse{
			Error:     "insufficient stock",
			Available: insErr.Available,
			Requested: insErr.Requested,
		})
	case errors.Is(err, domain.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "book not found in inventory"})
	case errors.Is(err, domain.ErrInvalidQuantity):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "quantity must be positive"})
	default:
		s.logger.Error().Err(err).Msg("reservation failed")
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// Handler GET /swagger.json
func (s *Server) handleSwaggerJson(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(openAPISpec))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("writeJSON failed")
	}
}

// Minimal OpenAPI document served at /swagger.json.
const openAPISpec = `{
  "openapi": "3.0.0",
  "info": {
    "title": "Inventory Service API",
    "description": "Book stock management",
    "version": "1.0.0"
  },
  "paths": {
    "/health": {
      "get": {
        "summary": "Health check",
        "responses": {
          "200": {"description": "Service is healthy"}
        }
      }
    },
    "/api/stock/{bookId}": {
      "get": {
        "summary": "Get stock by book id",
        "parameters": [
          {"name": "bookId", "in": "path", "required": true, "schema": {"type": "string", "format": "uuid"}}
        ],
        "responses": {
          "200": {
            "description": "Stock found",
            "content": {"application/json": {"schema": {"$ref": "#/components/schemas/StockResponse"}}}
          },
          "404": {"description": "Book not found"}
        }
      }
    },
    "/api/stock/reserve": {
      "post": {
        "summary": "Reserve stock for a book",
        "requestBody": {
          "required": true,
          "content": {"application/json": {"schema": {"$ref": "#/components/schemas/ReserveRequest"}}}
        },
        "responses": {
          "200": {
            "description": "Stock reserved",
            "content": {"application/json": {"schema": {"$ref": "#/components/schemas/ReserveResponse"}}}
          },
          "404": {"description": "Book not found"},
          "409": {"description": "Insufficient stock"}
        }
      }
    },
    "/api/stock/release": {
      "post": {
        "summary": "Release previously reserved stock",
        "requestBody": {
          "required": true,
          "content": {"application/json": {"schema": {"$ref": "#/components/schemas/ReserveRequest"}}}
        },
        "responses": {
          "200": {"description": "Reservation released"},
          "404": {"description": "Book not found"}
        }
      }
    }
  },
  "components": {
    "schemas": {
      "StockResponse": {
        "type": "object",
        "properties": {
          "bookId": {"type": "string", "format": "uuid"},
          "quantity": {"type": "integer"},
          "reserved": {"type": "integer"},
          "available": {"type": "integer"},
          "updatedAt": {"type": "string", "format": "date-time"}
        }
      },
      "ReserveRequest": {
        "type": "object",
        "properties": {
          "bookId": {"type": "string", "format": "uuid"},
          "quantity": {"type": "integer"}
        }
      },
      "ReserveResponse": {
        "type": "object",
        "properties": {
          "bookId": {"type": "string", "format": "uuid"},
          "quantityReserved": {"type": "integer"},
          "remainingAvailable": {"type": "integer"}
        }
      }
    }
  }
}`
