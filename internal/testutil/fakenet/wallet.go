package fakenet

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"
)

// WalletService issues wallet ids for uuids and checks api credentials.
type WalletService struct {
	mu        sync.Mutex
	APIToken  string
	APISecret string
	UserID    int64
	wallets   map[string]int64
	nextID    int64
}

func NewWalletService(userID int64, apiToken, apiSecret string) *WalletService {
	return &WalletService{
		APIToken:  apiToken,
		APISecret: apiSecret,
		UserID:    userID,
		wallets:   make(map[string]int64),
		nextID:    100,
	}
}

func StartWalletService(t testing.TB, userID int64, apiToken, apiSecret string) (*WalletService, *httptest.Server) {
	t.Helper()
	svc := NewWalletService(userID, apiToken, apiSecret)
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return svc, srv
}

func (s *WalletService) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.auth)
	r.HandleFunc("/v1/wallet", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/v1/wallet/{uuid}", s.handleInfo).Methods(http.MethodGet).Queries("type", "uuid")
	return r
}

func (s *WalletService) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api_token") != s.APIToken || r.Header.Get("api_secret") != s.APISecret {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid api credentials"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *WalletService) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UUID string `json:"uuid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UUID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "uuid is required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[body.UUID]; ok {
		writeJSON(w, http.StatusConflict, map[string]any{"message": "wallet already exists"})
		return
	}
	s.nextID++
	s.wallets[body.UUID] = s.nextID
	writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"wallet_id": s.nextID}, "message": ""})
}

func (s *WalletService) handleInfo(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["uuid"]
	s.mu.Lock()
	walletID, ok := s.wallets[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "wallet not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "",
		"data": map[string]any{
			"wallet_id":  walletID,
			"zlins_dttm": "2024-01-02T03:04:05.000000Z",
			"zlupd_dttm": "2024-01-02T03:04:05.000000Z",
			"user": map[string]any{
				"id":           s.UserID,
				"uuid":         id,
				"typ":          "personal",
				"username":     "tester",
				"full_name":    "Test User",
				"email":        "tester@example.com",
				"is_active":    true,
				"mmitem_id":    1,
				"mmitem_code":  "FREE",
				"mmitem_title": "Free",
				"ficomp_id":    2,
				"ficomp_code":  "TC",
				"ficomp_title": "TransferChain",
			},
		},
	})
}

// Register adds a wallet without going through the API.
func (s *WalletService) Register(uuid string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.wallets[uuid] = s.nextID
	return s.nextID
}
