package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/iago/report-relay/internal/messaging"
	"github.com/sirupsen/logrus"
)

const (
	SignatureHeader = "X-Line-Signature"

	MaxWebhookBody = 1 << 20
)

// Signature rejects webhook calls whose X-Line-Signature does not match the
// body. An empty channel secret disables the check.
func Signature(channelSecret string, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if channelSecret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBody))
			if err != nil {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			if !messaging.VerifySignature(channelSecret, body, r.Header.Get(SignatureHeader)) {
				if logger != nil {
					logger.WithField("request_id", GetRequestID(r.Context())).Warn("webhook signature mismatch")
				}
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
