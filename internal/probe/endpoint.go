package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pennyhq/penny/pkg/models"
)

// maxEndpointsChecked bounds the endpoint probe's work per run.
const maxEndpointsChecked = 5

// EndpointHealth checks whether the item's target integration (and any
// payload-referenced URLs) respond. An unreachable target is a strong
// hint that delivery would fail right now.
type EndpointHealth struct {
	// targets maps categories to their integration health URLs.
	targets map[models.Category]string
	client  *http.Client
}

// NewEndpointHealth creates the endpoint-health probe. targets maps
// categories to integration health URLs; empty entries are skipped.
func NewEndpointHealth(targets map[models.Category]string, client *http.Client) *EndpointHealth {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &EndpointHealth{targets: targets, client: client}
}

func (p *EndpointHealth) Name() string {
	return "endpoint-health"
}

func (p *EndpointHealth) Applicable(item *models.Item) bool {
	return len(p.urls(item)) > 0
}

func (p *EndpointHealth) Run(ctx context.Context, item *models.Item) (float64, string, error) {
	urls := p.urls(item)
	if len(urls) > maxEndpointsChecked {
		urls = urls[:maxEndpointsChecked]
	}

	healthy := 0
	for _, url := range urls {
		if p.check(ctx, url) {
			healthy++
		}
	}

	signal := float64(healthy) / float64(len(urls))
	detail := fmt.Sprintf("%d of %d endpoints healthy", healthy, len(urls))
	return signal, detail, nil
}

func (p *EndpointHealth) check(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 400
}

func (p *EndpointHealth) urls(item *models.Item) []string {
	var urls []string
	if target := p.targets[item.Category]; target != "" {
		urls = append(urls, target)
	}
	urls = append(urls, item.Payload.Strings("check_urls")...)
	urls = append(urls, item.Payload.Strings("api_endpoints")...)
	return urls
}
