package httpserver

import (
	"fmt"
	"net/http"
)

// ShareRequest is the JSON shape of a custodian key share submission. Share
// and signature bytes are hex-encoded.
type ShareRequest struct {
	Index     int    `json:"index"`
	Share     string `json:"share"`
	Signature string `json:"signature"`
}

// EscrowStatusResponse reports whether an archival key escrow is configured
// and whether enough custodian shares have been submitted to unlock it.
type EscrowStatusResponse struct {
	Enabled  bool `json:"enabled"`
	Unlocked bool `json:"unlocked"`
}

// HandleEscrowStatus reports the archival key escrow state.
//
// URL format: GET /api/escrow/status
func (h *Handler) HandleEscrowStatus(w http.ResponseWriter, r *http.Request) {
	resp := EscrowStatusResponse{}
	if h.escrow != nil {
		resp.Enabled = true
		resp.Unlocked = h.escrow.Unlocked()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleSubmitShare accepts a signed custodian share for the archival
// document key. Once enough valid shares arrive the escrow unlocks and
// archived documents become decryptable again.
//
// URL format: POST /api/escrow/shares
func (h *Handler) HandleSubmitShare(w http.ResponseWriter, r *http.Request) {
	if h.escrow == nil {
		http.Error(w, "key escrow is not configured", http.StatusNotFound)
		return
	}

	var req ShareRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		return
	}

	share, err := decodeHex(req.Share)
	if err != nil || len(share) == 0 {
		http.Error(w, fmt.Sprintf("invalid share encoding: %v", err), http.StatusBadRequest)
		return
	}

	signature, err := decodeHex(req.Signature)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid signature encoding: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.escrow.SubmitShare(req.Index, share, signature); err != nil {
		h.writeRejection(w, "submit_share", err)
		return
	}

	unlocked := h.escrow.Unlocked()
	if unlocked {
		h.log.Info("Archival key escrow unlocked")
	}

	h.writeJSON(w, http.StatusOK, EscrowStatusResponse{Enabled: true, Unlocked: unlocked})
}
