package telemetry

import (
	"context"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_http_request  = "http.request"
	report_http_status   = "http.status"
	report_http_failed   = "http.failed"
	report_http_requests = "http.requests"
)

type restyReporter struct {
	tel  API
	sent *atomic.Int64
}

type requestInfoKey struct{}

type requestInfo struct {
	seq     int64
	started time.Time
}

// InstrumentResty reports every request sent by client, error statuses as warnings and
// transport failures as broken. Query strings are left out of the reports.
func InstrumentResty(client *resty.Client, tel API) {
	r := restyReporter{tel: tel, sent: &atomic.Int64{}}
	client.OnBeforeRequest(r.before)
	client.OnAfterResponse(r.after)
	client.OnError(r.failed)
}

func withoutQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

func (r restyReporter) before(_ *resty.Client, req *resty.Request) error {
	seq := r.sent.Add(1)
	r.tel.ReportCount(report_http_requests, seq)
	r.tel.ReportDebug(report_http_request, seq, req.Method, withoutQuery(req.URL))
	req.SetContext(context.WithValue(req.Context(), requestInfoKey{}, requestInfo{
		seq:     seq,
		started: time.Now(),
	}))
	return nil
}

func (r restyReporter) after(_ *resty.Client, res *resty.Response) error {
	info, _ := res.Request.Context().Value(requestInfoKey{}).(requestInfo)
	elapsed := time.Since(info.started).Round(time.Millisecond).String()
	if res.IsError() {
		r.tel.ReportWarning(report_http_status, info.seq, res.Request.Method, withoutQuery(res.Request.URL), res.Status(), elapsed)
		return nil
	}
	r.tel.ReportDebug(report_http_status, info.seq, res.Status(), elapsed)
	return nil
}

func (r restyReporter) failed(req *resty.Request, err error) {
	info, _ := req.Context().Value(requestInfoKey{}).(requestInfo)
	r.tel.ReportBroken(report_http_failed, err, info.seq, req.Method, withoutQuery(req.URL))
}
