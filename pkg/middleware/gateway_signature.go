package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bookery/pkg/logger"
)

const SignatureHeader = "Gateway-Signature"

// GatewaySignatureVerification rejects webhook deliveries whose HMAC does not
// match or whose timestamp falls outside the tolerance window. The header
// carries "t=<unix_ts>,te=<hmac_hex>" (the gateway's live-mode field name
// "li" is accepted too); the MAC is computed over "<ts>.<rawBody>".
func GatewaySignatureVerification(secret string, tolerance time.Duration, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ts, mac, ok := parseSignatureHeader(r.Header.Get(SignatureHeader))
			if !ok {
				logAndReject(w, log, r, "Missing or malformed signature header")
				return
			}

			if skew := time.Since(time.Unix(ts, 0)); skew > tolerance || skew < -tolerance {
				logAndReject(w, log, r, "Signature timestamp outside tolerance window")
				return
			}

			body, err := readAndRestoreBody(r)
			if err != nil {
				logAndReject(w, log, r, "Failed to read request body")
				return
			}

			if !verifySignature(ts, body, mac, secret) {
				logAndReject(w, log, r, "Invalid webhook signature")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parseSignatureHeader(header string) (ts int64, mac string, ok bool) {
	if header == "" {
		return 0, "", false
	}

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, "", false
			}
			ts = parsed
		case "te", "li":
			mac = value
		}
	}

	return ts, mac, ts != 0 && mac != ""
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	return body, nil
}

func verifySignature(ts int64, body []byte, receivedMAC, secret string) bool {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(ts, 10)))
	h.Write([]byte("."))
	h.Write(body)
	expected := hex.EncodeToString(h.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(receivedMAC))
}

func logAndReject(w http.ResponseWriter, log *logger.Logger, r *http.Request, reason string) {
	requestID := ""
	if rid := r.Context().Value(RequestIDKey); rid != nil {
		if id, ok := rid.(string); ok {
			requestID = id
		}
	}

	log.Warn("Gateway webhook verification failed",
		"request_id", requestID,
		"reason", reason,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
}
