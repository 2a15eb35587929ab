// Package fakenet provides in-memory stand-ins for the read node, the wallet
// service and the file transport.
package fakenet

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"transferchain/go-sdk/internal/transaction"
	"transferchain/go-sdk/pkg/models"

	"github.com/gorilla/mux"
)

type storedTx struct {
	tx     models.Transaction
	height int64
}

// ReadNode indexes broadcast transactions by recipient and type.
type ReadNode struct {
	mu     sync.Mutex
	txs    []storedTx
	height int64

	// rejectBroadcast returns a non-empty message to refuse tx.
	rejectBroadcast func(tx models.Transaction) string
	// searchStatus, when non-zero, is returned as the HTTP status of every search.
	searchStatus int
	searches     int
}

func NewReadNode() *ReadNode {
	return &ReadNode{}
}

// StartReadNode serves a fresh ReadNode over HTTP for the duration of t.
func StartReadNode(t testing.TB) (*ReadNode, *httptest.Server) {
	t.Helper()
	node := NewReadNode()
	srv := httptest.NewServer(node.Handler())
	t.Cleanup(srv.Close)
	return node, srv
}

func (n *ReadNode) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/v1/broadcast", n.handleBroadcast).Methods(http.MethodPost)
	r.HandleFunc("/v1/tx_search/p", n.handleSearch).Methods(http.MethodPost)
	return r
}

type searchQuery struct {
	RecipientAddrs []string      `json:"recipient_addrs"`
	Height         int64         `json:"height"`
	HeightOperator string        `json:"height_operator"`
	Hashes         []string      `json:"hashes"`
	Type           models.TxType `json:"typ"`
	Limit          int           `json:"limit"`
	Offset         int           `json:"offset"`
	OrderBy        string        `json:"order_by"`
}

func (n *ReadNode) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var tx models.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"is_success": false, "error_message": err.Error()})
		return
	}
	if !transaction.Verify(tx) {
		writeJSON(w, http.StatusOK, map[string]any{"is_success": false, "error_message": "invalid signature"})
		return
	}
	n.mu.Lock()
	reject := n.rejectBroadcast
	n.mu.Unlock()
	if reject != nil {
		if msg := reject(tx); msg != "" {
			writeJSON(w, http.StatusOK, map[string]any{"is_success": false, "error_message": msg})
			return
		}
	}

	n.mu.Lock()
	n.height++
	n.txs = append(n.txs, storedTx{tx: tx, height: n.height})
	n.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"is_success": true, "result": map[string]string{"hash": tx.TxID}})
}

func (n *ReadNode) handleSearch(w http.ResponseWriter, r *http.Request) {
	var q searchQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"is_success": false, "error_message": err.Error()})
		return
	}
	n.mu.Lock()
	n.searches++
	if n.searchStatus != 0 {
		status := n.searchStatus
		n.mu.Unlock()
		writeJSON(w, status, map[string]any{"is_success": false, "error_message": http.StatusText(status)})
		return
	}
	matched := make([]storedTx, 0)
	for _, st := range n.txs {
		if matches(q, st) {
			matched = append(matched, st)
		}
	}
	n.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if q.OrderBy == "DESC" {
			return matched[i].height > matched[j].height
		}
		return matched[i].height < matched[j].height
	})
	total := len(matched)
	if q.Offset > len(matched) {
		q.Offset = len(matched)
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	records := make([]models.TxRecord, 0, len(matched))
	for _, st := range matched {
		records = append(records, transaction.Record(st.tx, st.height))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"is_success": true,
		"result":     map[string]any{"txs": records, "total_count": total},
	})
}

func matches(q searchQuery, st storedTx) bool {
	if q.Type != "" && st.tx.TxType != q.Type {
		return false
	}
	if len(q.RecipientAddrs) > 0 && !contains(q.RecipientAddrs, st.tx.RecipientAddress) {
		return false
	}
	if len(q.Hashes) > 0 && !contains(q.Hashes, st.tx.TxID) {
		return false
	}
	switch q.HeightOperator {
	case ">":
		return st.height > q.Height
	case "<":
		return st.height < q.Height
	case "<=":
		return st.height <= q.Height
	case "=", "==":
		return st.height == q.Height
	default:
		return st.height >= q.Height
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Transactions returns every accepted transaction of txType, oldest first.
// An empty type returns everything.
func (n *ReadNode) Transactions(txType models.TxType) []models.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.Transaction
	for _, st := range n.txs {
		if txType == "" || st.tx.TxType == txType {
			out = append(out, st.tx)
		}
	}
	return out
}

func (n *ReadNode) Searches() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.searches
}

func (n *ReadNode) SetRejectBroadcast(fn func(tx models.Transaction) string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rejectBroadcast = fn
}

func (n *ReadNode) SetSearchStatus(status int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.searchStatus = status
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
