package pdf

import (
	"context"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/image"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	mconfig "github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/smallbiznis/invoicedesk/internal/clock"
	"github.com/smallbiznis/invoicedesk/internal/config"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/smallbiznis/invoicedesk/internal/observability/metrics"
	"go.uber.org/zap"
)

var (
	gray      = &props.Color{Red: 128, Green: 128, Blue: 128}
	dealerBlue = &props.Color{Red: 11, Green: 61, Blue: 145}
)

// MarotoRenderer draws documents locally. Missing logo files degrade the
// document instead of failing it.
type MarotoRenderer struct {
	profiles *config.DealerProfileHolder
	clock    clock.Clock
	log      *zap.Logger
	metrics  *metrics.SequenceMetrics
}

func NewMarotoRenderer(profiles *config.DealerProfileHolder, clk clock.Clock, log *zap.Logger, m *metrics.SequenceMetrics) *MarotoRenderer {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MarotoRenderer{profiles: profiles, clock: clk, log: log.Named("pdf"), metrics: m}
}

func (r *MarotoRenderer) Render(ctx context.Context, kind domain.InvoiceKind, rec domain.InvoiceRecord) (Document, error) {
	layout, err := BuildLayout(kind, rec, r.profiles.Get(), r.clock.Now())
	if err != nil {
		r.metrics.IncRender(string(kind), string(domain.OutcomeFailed))
		return Document{}, err
	}

	var missing []string
	layout.LogoPath, missing = checkAsset(layout.LogoPath, missing)
	layout.BrandLogoPath, missing = checkAsset(layout.BrandLogoPath, missing)

	out, err := draw(layout)
	if err != nil {
		r.metrics.IncRender(string(kind), string(domain.OutcomeFailed))
		return Document{}, domain.RenderError(err, "draw "+string(kind))
	}

	status := domain.Succeeded()
	if len(missing) > 0 {
		status = domain.Degraded("missing assets: " + strings.Join(missing, ", "))
		r.log.Warn("document rendered without assets",
			zap.String("kind", string(kind)),
			zap.String("invoice_no", rec.InvoiceNo),
			zap.Strings("missing", missing),
		)
	}
	r.metrics.IncRender(string(kind), string(status.Outcome))

	return Document{Bytes: out, ContentType: ContentTypePDF, Status: status}, nil
}

func checkAsset(path string, missing []string) (string, []string) {
	if path == "" {
		return "", missing
	}
	if _, err := os.Stat(path); err != nil {
		return "", append(missing, path)
	}
	return path, missing
}

func draw(l Layout) (out []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Newf("maroto panic: %v", rec)
		}
	}()

	cfg := mconfig.NewBuilder().
		WithLeftMargin(15).
		WithRightMargin(15).
		WithTopMargin(12).
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	if err := m.RegisterFooter(footerRows(l)...); err != nil {
		return nil, err
	}

	m.AddRows(letterhead(l)...)

	m.AddRow(12,
		text.NewCol(12, l.Title, props.Text{
			Size:  15,
			Style: fontstyle.Bold,
			Align: align.Center,
			Top:   2,
		}),
	)
	m.AddRow(8,
		col.New(6),
		text.NewCol(3, l.NumberLabel+":", props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
		text.NewCol(3, l.InvoiceNo, props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(6),
		text.NewCol(3, "Date:", props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
		text.NewCol(3, l.Date, props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
	)

	if len(l.Manufacturer) > 0 || len(l.Recipient) > 0 {
		height := float64(5*max(len(l.Manufacturer), len(l.Recipient)) + 4)
		m.AddRow(height,
			col.New(6).Add(stackedText(l.Manufacturer, 9)...),
			col.New(6).Add(stackedText(l.Recipient, 9)...),
		)
	}

	for _, section := range l.Sections {
		m.AddRows(sectionRows(section)...)
	}

	for _, note := range l.Notes {
		m.AddRow(6, text.NewCol(12, note, props.Text{Size: 9}))
	}

	m.AddRow(25)
	sigCols := make([]core.Col, 0, len(l.Signatures))
	size := 12 / max(len(l.Signatures), 1)
	for _, sig := range l.Signatures {
		sigCols = append(sigCols, col.New(size).Add(
			text.New("........................................", props.Text{Align: align.Center}),
			text.New(sig, props.Text{Top: 5, Style: fontstyle.Bold, Size: 9, Align: align.Center}),
		))
	}
	if len(sigCols) > 0 {
		m.AddRow(14, sigCols...)
	}

	if l.Closing != "" {
		m.AddRow(10, text.NewCol(12, l.Closing, props.Text{Style: fontstyle.Bold, Align: align.Center, Top: 3}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func letterhead(l Layout) []core.Row {
	left := col.New(3)
	if l.LogoPath != "" {
		left = image.NewFromFileCol(3, l.LogoPath, props.Rect{Center: false, Percent: 80})
	}
	right := col.New(3)
	if l.BrandLogoPath != "" {
		right = image.NewFromFileCol(3, l.BrandLogoPath, props.Rect{Center: true, Percent: 70})
	}

	return []core.Row{
		row.New(24).Add(
			left,
			col.New(6).Add(
				text.New(l.DealerName, props.Text{Size: 12, Style: fontstyle.Bold, Color: dealerBlue}),
				text.New(l.AuthorizedLine, props.Text{Top: 6, Size: 9, Color: gray}),
				text.New(l.DealerAddress, props.Text{Top: 11, Size: 9}),
			),
			right,
		),
		row.New(2).Add(line.NewCol(12)),
	}
}

func sectionRows(s Section) []core.Row {
	rows := []core.Row{
		row.New(9).Add(text.NewCol(12, s.Title, props.Text{Style: fontstyle.Bold, Size: 11, Top: 3})),
	}
	for _, ln := range s.Lines {
		style := fontstyle.Normal
		if ln.Emphasis {
			style = fontstyle.Bold
		}
		if ln.Label == "" {
			rows = append(rows, row.New(6).Add(text.NewCol(12, ln.Value, props.Text{Size: 10, Style: style})))
			continue
		}
		rows = append(rows, row.New(6).Add(
			text.NewCol(4, ln.Label, props.Text{Size: 10, Style: fontstyle.Bold}),
			text.NewCol(8, ln.Value, props.Text{Size: 10, Style: style}),
		))
	}
	return rows
}

func footerRows(l Layout) []core.Row {
	lines := append([]string{}, l.Footer...)
	lines = append(lines, l.GeneratedAt)

	rows := make([]core.Row, 0, len(lines))
	for _, s := range lines {
		if s == "" {
			continue
		}
		rows = append(rows, row.New(5).Add(text.NewCol(12, s, props.Text{Size: 8, Align: align.Center, Color: gray})))
	}
	return rows
}

func stackedText(lines []string, size float64) []core.Component {
	out := make([]core.Component, 0, len(lines))
	for i, s := range lines {
		out = append(out, text.New(s, props.Text{Top: float64(i * 5), Size: size}))
	}
	return out
}
