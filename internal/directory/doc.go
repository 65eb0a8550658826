// Package directory drives a business-directory website through a browser
// session: it submits a keyword search, walks the paginated result list and
// enriches every listed company from its detail page.
//
// The Collector owns the long-lived search session; the Enricher opens one
// short-lived session per detail page from a browser.Factory. Selectors are
// configuration data because they follow the target site's markup.
package directory
