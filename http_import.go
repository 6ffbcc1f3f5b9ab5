package civic

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/eljojo/civic/utilities/keyring"
	"github.com/sirupsen/logrus"
)

// importWindow bounds how old (or how far in the future) a signed import
// request may be.
const importWindow = 5 * time.Minute

// RecordImportRequest is the request body for record import
type RecordImportRequest struct {
	Records   []Record `json:"records"`
	Timestamp int64    `json:"ts"`  // Unix timestamp for replay protection
	Signature string   `json:"sig"` // signed by the server identity
}

// SigningData is sha256(timestamp:record keys).
func (r RecordImportRequest) SigningData() []byte {
	hasher := sha256.New()
	hasher.Write([]byte(fmt.Sprintf("%d:", r.Timestamp)))
	for _, rec := range r.Records {
		hasher.Write([]byte(rec.Key))
	}
	return hasher.Sum(nil)
}

// Sign fills in Timestamp and Signature using kr.
func (r *RecordImportRequest) Sign(kr *keyring.Keyring) {
	r.Timestamp = time.Now().Unix()
	r.Signature = kr.SignRecord(r.SigningData())
}

// RecordImportResponse is the response for record import
type RecordImportResponse struct {
	Success    bool   `json:"success"`
	Imported   int    `json:"imported"`
	Duplicates int    `json:"duplicates"`
	Rejected   int    `json:"rejected"`
	Error      string `json:"error,omitempty"`
}

// verifyOwner checks the request was signed by the server identity recently.
func (s *Server) verifyOwner(req RecordImportRequest) error {
	age := time.Since(time.Unix(req.Timestamp, 0))
	if age > importWindow || age < -importWindow {
		return fmt.Errorf("timestamp too old or in future: %v", age)
	}
	if !keyring.Verify(s.cfg.Owner, req.SigningData(), req.Signature) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}

// httpRecordsImportHandler handles POST /api/records/import
// Lets the owner restore records from a backup.
func (s *Server) httpRecordsImportHandler(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ledger == nil || s.cfg.Owner == "" {
		sendImportError(w, "Import disabled", http.StatusNotFound)
		return
	}

	var req RecordImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendImportError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := s.verifyOwner(req); err != nil {
		logrus.Warnf("Owner auth failed: %v", err)
		sendImportError(w, "Authentication failed: "+err.Error(), http.StatusForbidden)
		return
	}

	logrus.Infof("📥 Importing %d records", len(req.Records))

	var resp RecordImportResponse
	for _, rec := range req.Records {
		added, err := s.cfg.Ledger.Append(rec)
		switch {
		case err != nil:
			resp.Rejected++
			logrus.WithError(err).Debug("rejected record")
		case added:
			resp.Imported++
		default:
			resp.Duplicates++
		}
	}
	resp.Success = true

	logrus.Infof("✅ Imported %d records (%d duplicates, %d rejected)", resp.Imported, resp.Duplicates, resp.Rejected)
	writeJSON(w, resp)
}

// sendImportError sends a JSON error response
func sendImportError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(RecordImportResponse{
		Success: false,
		Error:   message,
	})
}
