package extract

import (
	"context"

	"runharvest/internal/pagedriver"
)

const (
	consentBannerSelector = "#onetrust-banner-sdk"
	consentAcceptSelector = "#onetrust-accept-btn-handler"
)

// DismissConsent accepts the cookie consent banner if it shows up within the consent
// timeout. It reports whether the banner was dismissed, a missing banner is not an error.
func (e *Extractor) DismissConsent(ctx context.Context, page pagedriver.Page) bool {
	if _, err := page.WaitForSelector(ctx, consentBannerSelector, e.cfg.ConsentTimeout); err != nil {
		return false
	}
	accept, err := page.WaitForSelector(ctx, consentAcceptSelector, e.cfg.ConsentTimeout)
	if err != nil {
		e.tel.ReportWarning(report_consent, err)
		return false
	}
	if err := accept.Click(ctx); err != nil {
		e.tel.ReportWarning(report_consent, err)
		return false
	}
	e.tel.ReportDebug("accepted cookie consent")
	sleep(ctx, e.cfg.Settle)
	return true
}
