package senderhub

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-rod/rod/lib/proto"
)

// Capture takes a full-page screenshot of the domain's stats view and
// writes it under the evidence directory. Capture failure never fails the
// extraction that requested it.
func (c *Client) Capture(ctx context.Context, domain string) (string, error) {
	if c.cfg.EvidenceDir == "" {
		return "", fmt.Errorf("senderhub: evidence capture disabled")
	}
	page, cancel, err := c.page(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	png, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", fmt.Errorf("senderhub: screenshot %s: %w", domain, err)
	}

	if err := os.MkdirAll(c.cfg.EvidenceDir, 0o755); err != nil {
		return "", fmt.Errorf("senderhub: evidence dir: %w", err)
	}
	path := filepath.Join(c.cfg.EvidenceDir, evidenceFileName(domain, c.cfg.InsightsRangeDays))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("senderhub: write evidence: %w", err)
	}
	return path, nil
}

// evidenceFileName builds the per-domain screenshot name, with path
// metacharacters in the domain flattened out.
func evidenceFileName(domain string, rangeDays int) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(domain)
	return fmt.Sprintf("%s_%d_days.png", safe, rangeDays)
}
