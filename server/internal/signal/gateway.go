package signal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/linepulse/linepulse/pkg/types"

	"github.com/linepulse/linepulse/server/internal/config"
	"github.com/linepulse/linepulse/server/internal/registry"
)

const gatewayTimeout = 10 * time.Second

// Metric families exposed by floor gateways, one gauge per sensor type and
// a small set of production counters. Every sample carries a "post" label.
const (
	metricSensorPrefix = "floor_sensor_" // + sensor type, e.g. floor_sensor_temperature

	metricItemsTotal    = "floor_production_items_total"
	metricDefectsTotal  = "floor_production_defects_total"
	metricEfficiencyPct = "floor_production_efficiency_pct"
	metricCycleSeconds  = "floor_production_cycle_seconds"
	metricStatus        = "floor_production_status" // 0 running, 1 degraded, 2 stopped
)

// gatewayFeed polls one floor gateway's Prometheus text exposition endpoint
// and maps labeled samples onto the registry's posts.
type gatewayFeed struct {
	id       string
	endpoint string
	client   *http.Client
	reg      *registry.Registry
	lines    []string // empty = all lines
	now      func() time.Time
}

// NewGateway builds a Feed that polls the configured gateway endpoint.
func NewGateway(cfg config.Feed, reg *registry.Registry) Feed {
	return &gatewayFeed{
		id:       cfg.ID,
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: gatewayTimeout},
		reg:      reg,
		lines:    cfg.Lines,
		now:      time.Now,
	}
}

func (g *gatewayFeed) ID() string { return g.id }

// Poll fetches and parses the gateway exposition. A fetch or parse failure is
// reported on the sample's Err so the source keeps the previous state.
func (g *gatewayFeed) Poll(ctx context.Context) (*FeedSample, error) {
	sample := &FeedSample{FeedID: g.id, At: g.now()}

	mfs, err := g.fetch(ctx)
	if err != nil {
		sample.Err = fmt.Errorf("gateway %q: %w", g.id, err)
		return sample, nil
	}

	for _, ln := range g.scopedLines() {
		for _, post := range g.reg.Posts(ln.ID) {
			g.collectPost(sample, ln.ID, post, mfs)
		}
	}
	return sample, nil
}

func (g *gatewayFeed) scopedLines() []*registry.Line {
	all := g.reg.Lines()
	if len(g.lines) == 0 {
		return all
	}
	var out []*registry.Line
	for _, ln := range all {
		for _, id := range g.lines {
			if ln.ID == id {
				out = append(out, ln)
				break
			}
		}
	}
	return out
}

func (g *gatewayFeed) collectPost(sample *FeedSample, lineID string, post *registry.Post, mfs map[string]*dto.MetricFamily) {
	at := sample.At

	for _, spec := range post.Sensors {
		fam := mfs[metricSensorPrefix+string(spec.Type)]
		value, ok := postValue(fam, post.ID)
		if !ok {
			continue // sensor not reported this cycle; previous reading stands
		}
		sample.Readings = append(sample.Readings, newReading(post, spec, value, at))
	}

	items, okItems := postValue(mfs[metricItemsTotal], post.ID)
	statusCode, okStatus := postValue(mfs[metricStatus], post.ID)
	if !okItems && !okStatus {
		return // gateway has no production data for this post
	}

	defects, _ := postValue(mfs[metricDefectsTotal], post.ID)
	efficiency, _ := postValue(mfs[metricEfficiencyPct], post.ID)
	cycle, _ := postValue(mfs[metricCycleSeconds], post.ID)
	status := statusFromCode(statusCode)

	sample.Production = append(sample.Production, types.ProductionUpdate{
		PostID:           post.ID,
		LineID:           lineID,
		At:               at,
		ItemsProduced:    int(items),
		DefectCount:      int(defects),
		EfficiencyPct:    efficiency,
		Status:           status,
		CycleTimeSeconds: cycle,
		OEE:              deriveOEE(status, efficiency, int(items), int(defects)),
	})
}

// fetch performs an HTTP GET to the gateway and parses the exposition text.
func (g *gatewayFeed) fetch(ctx context.Context) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseExposition(resp.Body)
}

// parseExposition decodes a Prometheus text exposition into metric families.
// A partial result with a non-fatal parse warning is still returned.
func parseExposition(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse exposition: %w", err)
	}
	return mfs, nil
}

// postValue extracts the sample carrying the given "post" label from a metric
// family. Returns false if the family is absent or has no sample for the post.
func postValue(mf *dto.MetricFamily, postID string) (float64, bool) {
	if mf == nil {
		return 0, false
	}
	for _, m := range mf.GetMetric() {
		if labelValue(m, "post") != postID {
			continue
		}
		switch {
		case m.Counter != nil:
			return m.Counter.GetValue(), true
		case m.Gauge != nil:
			return m.Gauge.GetValue(), true
		case m.Untyped != nil:
			return m.Untyped.GetValue(), true
		}
	}
	return 0, false
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
