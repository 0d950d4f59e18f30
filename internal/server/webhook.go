package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

const (
	headerEvent     = "X-GitHub-Event"
	headerSignature = "X-Hub-Signature-256"
	headerDelivery  = "X-GitHub-Delivery"
	signaturePrefix = "sha256="
	maxWebhookBytes = 25 << 20
)

var errBadSignature = domain.NewError(errcodes.Unauthorized, "webhook signature mismatch") //nolint:gochecknoglobals

// verifySignature checks header against the HMAC-SHA256 of body in constant time.
func verifySignature(secret, body []byte, header string) error {
	hexSum, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return domain.NewError(errcodes.Unauthorized, "missing or malformed "+headerSignature)
	}
	got, err := hex.DecodeString(hexSum)
	if err != nil {
		return errBadSignature
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return errBadSignature
	}
	return nil
}

type webhookResponse struct {
	Status string `json:"status"`
	TaskId string `json:"task_id,omitempty"`
}

// PostWebhook authenticates a delivery before looking at its payload, then hands it to the router.
func (s *Server) PostWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(ctx, w, domain.WrapError(err, errcodes.ValidationError, "webhook payload too large"))
			return
		}
		writeError(ctx, w, domain.WrapError(err, errcodes.ValidationError, "failed to read webhook body"))
		return
	}

	if err := verifySignature(s.webhookSecret, body, r.Header.Get(headerSignature)); err != nil {
		logger(ctx).Warn("webhook rejected",
			slog.String("delivery", r.Header.Get(headerDelivery)),
			slog.Any("error", err),
		)
		writeError(ctx, w, err)
		return
	}

	name := r.Header.Get(headerEvent)
	if name == "" {
		writeError(ctx, w, domain.NewError(errcodes.ValidationError, "missing "+headerEvent))
		return
	}

	res, err := s.router.Route(ctx, name, body)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	if res.Ignored {
		writeJSON(ctx, w, http.StatusOK, webhookResponse{Status: "ignored"})
		return
	}
	writeJSON(ctx, w, http.StatusAccepted, webhookResponse{Status: "queued", TaskId: res.TaskId})
}
