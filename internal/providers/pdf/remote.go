package pdf

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/smallbiznis/invoicedesk/internal/observability/tracing"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const maxRemoteDocumentBytes = 20 << 20

// RemoteRenderer delegates rendering to an HTTP render service.
type RemoteRenderer struct {
	baseURL string
	client  *retryablehttp.Client
}

type renderRequest struct {
	Kind   domain.InvoiceKind   `json:"kind"`
	Record domain.InvoiceRecord `json:"record"`
}

func NewRemoteRenderer(baseURL string, timeout time.Duration, log *zap.Logger) *RemoteRenderer {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = nil
	if log != nil {
		named := log.Named("pdf.remote")
		client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
			if attempt > 0 {
				named.Debug("retrying render request", zap.String("url", req.URL.String()), zap.Int("attempt", attempt))
			}
		}
	}

	return &RemoteRenderer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (r *RemoteRenderer) Render(ctx context.Context, kind domain.InvoiceKind, rec domain.InvoiceRecord) (Document, error) {
	body, err := json.Marshal(renderRequest{Kind: kind, Record: rec})
	if err != nil {
		return Document{}, domain.RenderError(err, "encode render request")
	}

	url := r.baseURL + "/render/" + strings.ToLower(string(kind))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return Document{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", ContentTypePDF)
	tracing.InjectContext(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := r.client.Do(req)
	if err != nil {
		return Document{}, errors.Wrap(err, "render service request")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteDocumentBytes))
	if err != nil {
		return Document{}, errors.Wrap(err, "read render service response")
	}
	if resp.StatusCode != http.StatusOK {
		return Document{}, errors.Newf("render service returned %d", resp.StatusCode)
	}
	if !bytes.HasPrefix(payload, []byte("%PDF")) {
		return Document{}, errors.New("render service returned a non-PDF body")
	}

	return Document{Bytes: payload, ContentType: ContentTypePDF, Status: domain.Succeeded()}, nil
}

// FallbackRenderer tries the primary renderer and falls back to the local
// one on any failure. It never asks for a new invoice number.
type FallbackRenderer struct {
	primary  Renderer
	fallback Renderer
	log      *zap.Logger
}

func NewFallbackRenderer(primary, fallback Renderer, log *zap.Logger) *FallbackRenderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &FallbackRenderer{primary: primary, fallback: fallback, log: log.Named("pdf.fallback")}
}

func (r *FallbackRenderer) Render(ctx context.Context, kind domain.InvoiceKind, rec domain.InvoiceRecord) (Document, error) {
	doc, err := r.primary.Render(ctx, kind, rec)
	if err == nil {
		return doc, nil
	}

	r.log.Warn("remote render failed, rendering locally",
		zap.String("kind", string(kind)),
		zap.String("invoice_no", rec.InvoiceNo),
		zap.Error(err),
	)

	doc, ferr := r.fallback.Render(ctx, kind, rec)
	if ferr != nil {
		return Document{}, ferr
	}
	if doc.Status.Outcome == domain.OutcomeSucceeded {
		doc.Status = domain.Degraded("rendered locally after remote render failure")
	}
	return doc, nil
}
