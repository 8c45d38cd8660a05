package senderhub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/senderwatch/stats"
)

var domainDropdownProbes = []string{
	`[data-testid='domain-selector']`,
	`[aria-label='Select domain']`,
	`//button[@role='combobox']`,
	`//div[@role='combobox']`,
	`select[name='domain']`,
	`//button[contains(@class, 'domain')]`,
}

// collectDomainsJS lists the dropdown's option texts that look like domain
// names. Covers both native <select> options and ARIA listbox items.
const collectDomainsJS = `() => {
	const texts = new Set();
	const push = (t) => {
		t = (t || '').trim();
		if (t && t.includes('.') && !t.includes(' ')) texts.add(t);
	};
	for (const opt of document.querySelectorAll('select option')) push(opt.textContent);
	for (const item of document.querySelectorAll('[role="option"], [role="listbox"] li')) push(item.textContent);
	return JSON.stringify([...texts]);
}`

// selectDomainJS clicks the option whose trimmed text equals the domain.
// Returns whether a match was found.
const selectDomainJS = `(domain) => {
	for (const sel of document.querySelectorAll('select')) {
		for (const opt of sel.options) {
			if (opt.textContent.trim() === domain) {
				sel.value = opt.value;
				sel.dispatchEvent(new Event('change', { bubbles: true }));
				return true;
			}
		}
	}
	for (const item of document.querySelectorAll('[role="option"], [role="listbox"] li')) {
		if (item.textContent.trim() === domain) {
			item.click();
			return true;
		}
	}
	return false;
}`

// selectRangeJS clicks the time-range option labelled with the given day
// count ("Last 180 days", "180 days", "180d").
const selectRangeJS = `(days) => {
	const wanted = [days + ' days', days + 'd', 'Last ' + days + ' days'];
	const nodes = document.querySelectorAll('button, [role="option"], [role="menuitem"], option, li');
	for (const n of nodes) {
		const t = n.textContent.trim();
		if (wanted.some((w) => t === w || t.toLowerCase() === w.toLowerCase())) {
			n.click();
			return true;
		}
	}
	return false;
}`

// noDataJS reports whether the stats panel is in its empty state.
const noDataJS = `() => {
	const markers = ['no data', 'no data available', 'not enough data', 'no results'];
	const text = (document.body.innerText || '').toLowerCase();
	return markers.some((m) => text.includes(m));
}`

// collectMetricsJS scrapes the metric tiles as a label→value map plus the
// verification badge. Tiles are label/value pairs in small card elements;
// the scan pairs each short label with the nearest numeric-looking sibling.
const collectMetricsJS = `() => {
	const out = { verified: false, metrics: {} };
	if (/\bverified\b/i.test(document.body.innerText || '')) out.verified = true;
	const labels = ['delivered', 'delivered emails', 'delivery rate',
		'complaint rate', 'spam complaint rate', 'complaints',
		'added', 'status', 'trend'];
	const nodes = document.querySelectorAll('div, span, dt, th, h3, h4');
	for (const n of nodes) {
		const label = (n.textContent || '').trim().toLowerCase();
		if (!labels.includes(label)) continue;
		let holder = n.nextElementSibling;
		if (!holder && n.parentElement) holder = n.parentElement.nextElementSibling;
		if (!holder) continue;
		const value = (holder.textContent || '').trim();
		if (value && value.length < 64 && !(label in out.metrics)) out.metrics[label] = value;
	}
	return JSON.stringify(out);
}`

// pageMetrics is the decoded result of collectMetricsJS.
type pageMetrics struct {
	Verified bool              `json:"verified"`
	Metrics  map[string]string `json:"metrics"`
}

// LocateEntities enumerates the domains reachable from the account's
// dashboard dropdown.
func (c *Client) LocateEntities(ctx context.Context) ([]string, error) {
	sess := c.session()
	if sess == nil {
		return nil, fmt.Errorf("senderhub: locate domains: no session")
	}
	if err := sess.Navigate(ctx, c.cfg.BaseURL+"/dashboard/domains"); err != nil {
		return nil, fmt.Errorf("senderhub: locate domains: navigate: %w", err)
	}

	page, cancel, err := c.page(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	// Opening the dropdown is best-effort: a native <select> exposes its
	// options without a click.
	if el := firstVisible(page, domainDropdownProbes); el != nil {
		if err := click(el); err != nil {
			c.log.Debug("senderhub: dropdown click failed", "error", err)
		}
	}

	res, err := page.Eval(collectDomainsJS)
	if err != nil {
		return nil, fmt.Errorf("senderhub: locate domains: %w", err)
	}
	var domains []string
	if err := json.Unmarshal([]byte(res.Value.Str()), &domains); err != nil {
		return nil, fmt.Errorf("senderhub: locate domains: decode: %w", err)
	}
	c.log.Debug("senderhub: domains enumerated", "count", len(domains))
	return domains, nil
}

// Extract scrapes one domain's statistics. A no-data panel yields a valid
// HasData=false record, not an error.
func (c *Client) Extract(ctx context.Context, domain string) (*stats.Record, error) {
	page, cancel, err := c.page(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	if el := firstVisible(page, domainDropdownProbes); el != nil {
		if err := click(el); err != nil {
			c.log.Debug("senderhub: dropdown click failed", "domain", domain, "error", err)
		}
	}
	res, err := page.Eval(selectDomainJS, domain)
	if err != nil {
		return nil, fmt.Errorf("senderhub: select domain %s: %w", domain, err)
	}
	if !res.Value.Bool() {
		return nil, fmt.Errorf("senderhub: domain %s not found in selector", domain)
	}
	page.WaitLoad()

	timeRange := fmt.Sprintf("%d_days", c.cfg.InsightsRangeDays)
	if res, err := page.Eval(selectRangeJS, c.cfg.InsightsRangeDays); err != nil || !res.Value.Bool() {
		// The panel falls back to its default window; record it as such
		// rather than failing the domain.
		c.log.Debug("senderhub: range selection unavailable", "domain", domain)
		timeRange = "default"
	} else {
		page.WaitLoad()
	}

	now := time.Now()
	if res, err := page.Eval(noDataJS); err == nil && res.Value.Bool() {
		rec := stats.NoData(c.cfg.Account.Email, domain, now)
		rec.TimeRange = timeRange
		return rec, nil
	}

	res, err = page.Eval(collectMetricsJS)
	if err != nil {
		return nil, fmt.Errorf("senderhub: extract %s: %w", domain, err)
	}
	var pm pageMetrics
	if err := json.Unmarshal([]byte(res.Value.Str()), &pm); err != nil {
		return nil, fmt.Errorf("senderhub: extract %s: decode: %w", domain, err)
	}

	rec := buildRecord(c.cfg.Account.Email, domain, pm, now)
	rec.TimeRange = timeRange
	return rec, nil
}

// buildRecord interprets the raw label→value map into a typed record. Kept
// pure so the interpretation rules are testable without a browser.
func buildRecord(email, domain string, pm pageMetrics, at time.Time) *stats.Record {
	rec := &stats.Record{
		AccountEmail: email,
		Domain:       domain,
		CapturedAt:   at,
		Verified:     pm.Verified,
		Status:       "active",
		HasData:      true,
		Insights:     make(map[string]any, len(pm.Metrics)),
	}
	for k, v := range pm.Metrics {
		rec.Insights[k] = v
	}

	pick := func(keys ...string) (string, bool) {
		for _, k := range keys {
			if v, ok := pm.Metrics[k]; ok && v != "" {
				return v, true
			}
		}
		return "", false
	}

	if v, ok := pick("delivered", "delivered emails"); ok {
		if n, err := parseCount(v); err == nil {
			rec.DeliveredCount = stats.Int64(n)
		}
	}
	if v, ok := pick("delivery rate"); ok {
		rec.DeliveredPercentage = v
	}
	if v, ok := pick("complaint rate", "spam complaint rate"); ok {
		rec.ComplaintPercentage = v
		if f, err := parsePercent(v); err == nil {
			rec.ComplaintRate = stats.Float64(f)
		}
	}
	if v, ok := pick("trend"); ok {
		rec.ComplaintTrend = v
	}
	if v, ok := pick("added"); ok {
		rec.AddedDate = v
	}
	if v, ok := pick("status"); ok {
		rec.Status = strings.ToLower(v)
	}

	// A tile scan that found nothing numeric is indistinguishable from an
	// empty panel; treat it as no data.
	if rec.DeliveredCount == nil && rec.ComplaintRate == nil && len(pm.Metrics) == 0 {
		rec.HasData = false
	}
	return rec
}

// parseCount parses dashboard counter text: "12,345", "1.2K", "3.4M".
func parseCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty count")
	}

	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		mult, s = 1_000, s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		mult, s = 1_000_000, s[:len(s)-1]
	case strings.HasSuffix(s, "B"), strings.HasSuffix(s, "b"):
		mult, s = 1_000_000_000, s[:len(s)-1]
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", s, err)
	}
	return int64(f * float64(mult)), nil
}

// parsePercent parses dashboard rate text: "0.05%", "< 0.01%", "1.2 %".
// The "<" bound collapses to its bounding value.
func parsePercent(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	s = strings.TrimSpace(s)

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse percent %q: %w", s, err)
	}
	return f, nil
}
