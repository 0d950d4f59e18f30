package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/internal/domain/service"
	"github.com/int-code/git-sleuth/internal/metrics"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

// Prober polls a pull request until GitHub has computed its mergeability.
type Prober struct {
	client   *Client
	attempts int
	interval time.Duration
}

func NewProber(client *Client, attempts int, interval time.Duration) *Prober {
	return &Prober{
		client:   client,
		attempts: max(attempts, 1),
		interval: interval,
	}
}

// Probe makes at most attempts requests spaced by interval. A non-2xx response ends the probe
// at once with UpstreamError; mergeable staying null throughout is a TimeoutError.
func (p *Prober) Probe(ctx context.Context, req service.ProbeRequest) (entity.Mergeable, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", req.Owner, req.Repo, req.Number)

	for attempt := 1; attempt <= p.attempts; attempt++ {
		var pr struct {
			Mergeable *bool `json:"mergeable"`
		}
		if _, err := p.client.do(ctx, req.InstallationId, http.MethodGet, path, nil, &pr,
			http.StatusOK, http.StatusCreated, http.StatusAccepted); err != nil {
			metrics.ProbeOutcomes.WithLabelValues("error").Inc()
			if ctx.Err() != nil {
				return entity.MergeableUnknown, domain.WrapError(ctx.Err(), errcodes.CancellationError, "mergeability probe interrupted")
			}
			if !domain.HasCode(err, errcodes.UpstreamError) {
				err = domain.WrapError(err, errcodes.UpstreamError, "mergeability probe failed")
			}
			return entity.MergeableUnknown, err
		}

		if m := entity.MergeableFromPtr(pr.Mergeable); m.Known() {
			metrics.ProbeOutcomes.WithLabelValues(m.String()).Inc()
			logger(ctx).Info("mergeability probed",
				slog.String("mergeable", m.String()),
				slog.Int("attempt", attempt),
			)
			return m, nil
		}

		if attempt == p.attempts {
			break
		}
		logger(ctx).Debug("mergeability not computed yet", slog.Int("attempt", attempt))

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return entity.MergeableUnknown, domain.WrapError(ctx.Err(), errcodes.CancellationError, "mergeability probe interrupted")
		case <-timer.C:
		}
	}

	metrics.ProbeOutcomes.WithLabelValues("timeout").Inc()
	return entity.MergeableUnknown, domain.NewError(errcodes.TimeoutError,
		fmt.Sprintf("mergeability of %s/%s#%d not computed after %d attempts", req.Owner, req.Repo, req.Number, p.attempts))
}
