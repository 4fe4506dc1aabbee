package mailer

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var hrefPattern = regexp.MustCompile(`href="(https?://[^"]+)"`)

// injectTracking rewrites outbound links through the click-redirect endpoint
// and appends the open pixel. sendID is the email send record the callbacks
// correlate against.
func injectTracking(bodyHTML, baseURL, sendID string) string {
	tracked := hrefPattern.ReplaceAllStringFunc(bodyHTML, func(match string) string {
		target := hrefPattern.FindStringSubmatch(match)[1]

		return fmt.Sprintf(`href="%s/t/c/%s?url=%s"`, baseURL, sendID, url.QueryEscape(target))
	})

	pixel := fmt.Sprintf(`<img src="%s/t/o/%s" width="1" height="1" alt="" style="display:none"/>`, baseURL, sendID)

	if idx := strings.LastIndex(strings.ToLower(tracked), "</body>"); idx >= 0 {
		return tracked[:idx] + pixel + tracked[idx:]
	}

	return tracked + pixel
}
