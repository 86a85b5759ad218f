package credential

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"runharvest/internal/assert"
	"runharvest/internal/telemetry"
	libtelemetry "runharvest/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	report_secret_get   = "secret-manager.get"
	report_secret_put   = "secret-manager.put"
	report_secret_parse = "secret-manager.parse"
)

const (
	DefaultSecretManagerURL = "https://secretmanager.googleapis.com/v1"
	cloudPlatformScope      = "https://www.googleapis.com/auth/cloud-platform"
)

type SecretManagerOptions struct {
	// BaseURL defaults to DefaultSecretManagerURL.
	BaseURL string
	Project string
	Secret  string
	// Version defaults to "latest".
	Version    string
	CookieName string
	// TokenSource defaults to the application default credentials.
	TokenSource oauth2.TokenSource
}

// SecretManager stores the cookie in a Google Cloud Secret Manager secret. The secret payload
// is a JSON object holding the cookie under its name.
type SecretManager struct {
	http   *resty.Client
	tokens oauth2.TokenSource
	opts   SecretManagerOptions
	tel    telemetry.API
}

type secretPayload struct {
	Data string `json:"data"`
}

type accessResponse struct {
	Name    string        `json:"name"`
	Payload secretPayload `json:"payload"`
}

type addVersionRequest struct {
	Payload secretPayload `json:"payload"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func NewSecretManager(ctx context.Context, opts SecretManagerOptions, tel telemetry.API) (*SecretManager, error) {
	assert.NotNil(tel, "telemetry")
	assert.NotEmptyStr(opts.Project, "secret project")
	assert.NotEmptyStr(opts.Secret, "secret name")

	if opts.BaseURL == "" {
		opts.BaseURL = DefaultSecretManagerURL
	}
	if opts.Version == "" {
		opts.Version = "latest"
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.TokenSource == nil {
		tokens, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("google default credentials: %w", err)
		}
		opts.TokenSource = tokens
	}

	tel = telemetry.NewScopedAPI("credential", tel)

	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetTimeout(time.Second * 15)
	client.SetHeader("accept", "application/json")
	client.SetError(&apiError{})
	libtelemetry.InstrumentResty(client, "runharvest/internal/credential")
	telemetry.InstrumentResty(client, tel)

	return &SecretManager{
		http:   client,
		tokens: oauth2.ReuseTokenSource(nil, opts.TokenSource),
		opts:   opts,
		tel:    tel,
	}, nil
}

func (s *SecretManager) request(ctx context.Context) (*resty.Request, error) {
	token, err := s.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("get access token: %w", err)
	}
	return s.http.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken), nil
}

func responseError(res *resty.Response) error {
	if apiErr, ok := res.Error().(*apiError); ok && apiErr.Error.Message != "" {
		return fmt.Errorf("secret manager: %s: %s", res.Status(), apiErr.Error.Message)
	}
	return fmt.Errorf("secret manager: %s", res.Status())
}

func (s *SecretManager) Get(ctx context.Context) (*RawCookie, error) {
	req, err := s.request(ctx)
	if err != nil {
		return nil, err
	}
	res, err := req.
		SetResult(&accessResponse{}).
		SetPathParams(map[string]string{
			"project": s.opts.Project,
			"secret":  s.opts.Secret,
			"version": s.opts.Version,
		}).
		Get("/projects/{project}/secrets/{secret}/versions/{version}:access")
	if err != nil {
		s.tel.ReportBroken(report_secret_get, err)
		return nil, err
	}
	if res.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		err := responseError(res)
		s.tel.ReportBroken(report_secret_get, err)
		return nil, err
	}

	access := res.Result().(*accessResponse)
	data, err := base64.StdEncoding.DecodeString(access.Payload.Data)
	if err != nil {
		s.tel.ReportWarning(report_secret_parse, fmt.Errorf("decode payload: %w", err))
		return nil, nil
	}
	return parsePayload(data, s.opts.CookieName, s.tel), nil
}

// parsePayload reads the cookie stored under name, a payload that is a single cookie object
// with that name is accepted as well. Anything else is reported and treated as a miss.
func parsePayload(data []byte, name string, tel telemetry.API) *RawCookie {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		tel.ReportWarning(report_secret_parse, fmt.Errorf("payload is not a json object: %w", err))
		return nil
	}

	if entry, ok := entries[name]; ok {
		var cookie RawCookie
		if err := json.Unmarshal(entry, &cookie); err != nil {
			tel.ReportWarning(report_secret_parse, fmt.Errorf("cookie %s: %w", name, err))
			return nil
		}
		if cookie.Name == "" {
			cookie.Name = name
		}
		return &cookie
	}

	var cookie RawCookie
	if err := json.Unmarshal(data, &cookie); err == nil && cookie.Name == name && cookie.Value != "" {
		return &cookie
	}
	return nil
}

func (s *SecretManager) Put(ctx context.Context, cookie RawCookie) error {
	data, err := json.Marshal(map[string]RawCookie{s.opts.CookieName: cookie})
	if err != nil {
		return err
	}
	req, err := s.request(ctx)
	if err != nil {
		return err
	}
	res, err := req.
		SetBody(addVersionRequest{
			Payload: secretPayload{Data: base64.StdEncoding.EncodeToString(data)},
		}).
		SetPathParams(map[string]string{
			"project": s.opts.Project,
			"secret":  s.opts.Secret,
		}).
		Post("/projects/{project}/secrets/{secret}:addVersion")
	if err != nil {
		s.tel.ReportBroken(report_secret_put, err)
		return err
	}
	if res.IsError() {
		err := responseError(res)
		s.tel.ReportBroken(report_secret_put, err)
		return err
	}
	return nil
}
