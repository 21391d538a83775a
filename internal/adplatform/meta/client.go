package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/autosem/autosem-backend/internal/adplatform"
	"github.com/autosem/autosem-backend/internal/pkg/ctxutil"
	"github.com/autosem/autosem-backend/internal/pkg/envutil"
	"github.com/autosem/autosem-backend/internal/pkg/errs"
	"github.com/autosem/autosem-backend/internal/pkg/httpx"
	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/repos"
	"github.com/autosem/autosem-backend/internal/types"
)

type Config struct {
	AppID       string
	AppSecret   string
	AccessToken string
	AdAccountID string
	PixelID     string
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
}

func ConfigFromEnv() Config {
	timeoutSec := envutil.Int("META_TIMEOUT_SECONDS", 30)
	maxRetries := envutil.Int("META_MAX_RETRIES", 4)

	return Config{
		AppID:       strings.TrimSpace(os.Getenv("META_APP_ID")),
		AppSecret:   strings.TrimSpace(os.Getenv("META_APP_SECRET")),
		AccessToken: strings.TrimSpace(os.Getenv("META_ACCESS_TOKEN")),
		AdAccountID: strings.TrimSpace(os.Getenv("META_AD_ACCOUNT_ID")),
		PixelID:     strings.TrimSpace(os.Getenv("META_PIXEL_ID")),
		BaseURL:     strings.TrimSpace(os.Getenv("META_BASE_URL")),
		Timeout:     time.Duration(timeoutSec) * time.Second,
		MaxRetries:  maxRetries,
	}
}

func NewFromEnv(log *logger.Logger, tokens repos.PlatformTokenRepo) (adplatform.Client, error) {
	return New(log, ConfigFromEnv(), tokens)
}

// New builds the Meta Graph API client. The tokens repo is optional: when
// present, a stored long-lived token takes precedence over the env token.
func New(log *logger.Logger, cfg Config, tokens repos.PlatformTokenRepo) (adplatform.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	cfg.AdAccountID = strings.TrimPrefix(strings.TrimSpace(cfg.AdAccountID), "act_")
	if cfg.AdAccountID == "" {
		return nil, fmt.Errorf("meta: %w: missing META_AD_ACCOUNT_ID", errs.ErrNotConfigured)
	}
	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)
	if cfg.AccessToken == "" && tokens == nil {
		return nil, fmt.Errorf("meta: %w: missing META_ACCESS_TOKEN", errs.ErrNotConfigured)
	}

	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://graph.facebook.com/v21.0"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 4
	}

	return &client{
		log:        log.With("client", "MetaClient"),
		cfg:        cfg,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	tokens     repos.PlatformTokenRepo
	httpClient *http.Client
	maxRetries int
}

func (c *client) Platform() types.Platform { return types.PlatformMeta }

func (c *client) accessToken(ctx context.Context) string {
	if c.tokens != nil {
		tok, err := c.tokens.GetByPlatform(ctx, nil, types.PlatformMeta)
		if err == nil && strings.TrimSpace(tok.AccessToken) != "" {
			if tok.ExpiresAt == nil || tok.ExpiresAt.After(time.Now()) {
				return strings.TrimSpace(tok.AccessToken)
			}
		}
	}
	return c.cfg.AccessToken
}

func (c *client) PauseCampaign(ctx context.Context, externalID string) error {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return fmt.Errorf("meta: campaign id required")
	}
	form := url.Values{}
	form.Set("status", "PAUSED")
	_, err := doForm[statusResponse](c, ctx, c.nodeURL(externalID), form)
	return err
}

func (c *client) SetCampaignBudget(ctx context.Context, externalID string, cents int64) error {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return fmt.Errorf("meta: campaign id required")
	}
	if cents <= 0 {
		return fmt.Errorf("meta: budget must be positive")
	}
	form := url.Values{}
	form.Set("daily_budget", strconv.FormatInt(cents, 10))
	_, err := doForm[statusResponse](c, ctx, c.nodeURL(externalID), form)
	return err
}

func (c *client) PauseAdSet(ctx context.Context, adSetID string) error {
	adSetID = strings.TrimSpace(adSetID)
	if adSetID == "" {
		return fmt.Errorf("meta: ad set id required")
	}
	form := url.Values{}
	form.Set("status", "PAUSED")
	_, err := doForm[statusResponse](c, ctx, c.nodeURL(adSetID), form)
	return err
}

func (c *client) SetAdSetBudget(ctx context.Context, adSetID string, cents int64) error {
	adSetID = strings.TrimSpace(adSetID)
	if adSetID == "" {
		return fmt.Errorf("meta: ad set id required")
	}
	if cents <= 0 {
		return fmt.Errorf("meta: budget must be positive")
	}
	form := url.Values{}
	form.Set("daily_budget", strconv.FormatInt(cents, 10))
	_, err := doForm[statusResponse](c, ctx, c.nodeURL(adSetID), form)
	return err
}

func (c *client) GetAdSetBudget(ctx context.Context, adSetID string) (int64, error) {
	adSetID = strings.TrimSpace(adSetID)
	if adSetID == "" {
		return 0, fmt.Errorf("meta: ad set id required")
	}
	params := url.Values{}
	params.Set("fields", "daily_budget")
	node, err := doGet[adSetNode](c, ctx, c.nodeURL(adSetID), params)
	if err != nil {
		return 0, err
	}
	return int64(node.DailyBudget), nil
}

func (c *client) GetAdInsights(ctx context.Context, adID string, since time.Time) (*adplatform.Insights, error) {
	adID = strings.TrimSpace(adID)
	if adID == "" {
		return nil, fmt.Errorf("meta: ad id required")
	}
	params := url.Values{}
	params.Set("fields", "impressions,clicks")
	params.Set("time_range", timeRange(since))
	resp, err := doGet[insightsResponse](c, ctx, c.nodeURL(adID)+"/insights", params)
	if err != nil {
		return nil, err
	}
	out := &adplatform.Insights{}
	for _, row := range resp.Data {
		out.Impressions += int64(row.Impressions)
		out.Clicks += int64(row.Clicks)
	}
	return out, nil
}

func (c *client) GetCampaignInsights(ctx context.Context, since time.Time) ([]adplatform.CampaignInsights, error) {
	params := url.Values{}
	params.Set("fields", "campaign_id,campaign_name,impressions,clicks,spend,actions,action_values")
	params.Set("level", "campaign")
	params.Set("time_range", timeRange(since))
	endpoint := fmt.Sprintf("%s/act_%s/insights", c.cfg.BaseURL, c.cfg.AdAccountID)
	resp, err := doGet[insightsResponse](c, ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	results := make([]adplatform.CampaignInsights, 0, len(resp.Data))
	for _, row := range resp.Data {
		ci := adplatform.CampaignInsights{
			CampaignID:   row.CampaignID,
			CampaignName: row.CampaignName,
			Impressions:  int64(row.Impressions),
			Clicks:       int64(row.Clicks),
			Spend:        float64(row.Spend),
		}
		for _, a := range row.Actions {
			if a.ActionType == "purchase" {
				ci.Conversions = a.valueInt()
			}
		}
		for _, av := range row.ActionValues {
			if av.ActionType == "purchase" {
				ci.Revenue = av.valueFloat()
			}
		}
		results = append(results, ci)
	}
	return results, nil
}

func (c *client) nodeURL(id string) string {
	return fmt.Sprintf("%s/%s", c.cfg.BaseURL, id)
}

// timeRange renders the Graph API time_range parameter from since until today.
func timeRange(since time.Time) string {
	if since.IsZero() {
		since = time.Now().AddDate(0, 0, -7)
	}
	return fmt.Sprintf(`{"since":"%s","until":"%s"}`,
		since.Format("2006-01-02"), time.Now().Format("2006-01-02"))
}

// ---------- wire types ----------

// flexInt tolerates the Graph API habit of quoting numeric fields.
type flexInt int64

func (f *flexInt) UnmarshalJSON(raw []byte) error {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("meta: bad integer %q", s)
	}
	*f = flexInt(v)
	return nil
}

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(raw []byte) error {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("meta: bad number %q", s)
	}
	*f = flexFloat(v)
	return nil
}

type statusResponse struct {
	Success bool   `json:"success,omitempty"`
	ID      string `json:"id,omitempty"`
}

type adSetNode struct {
	ID          string  `json:"id,omitempty"`
	DailyBudget flexInt `json:"daily_budget,omitempty"`
}

type insightsResponse struct {
	Data []insightsRow `json:"data"`
}

type insightsRow struct {
	CampaignID   string       `json:"campaign_id,omitempty"`
	CampaignName string       `json:"campaign_name,omitempty"`
	Impressions  flexInt      `json:"impressions,omitempty"`
	Clicks       flexInt      `json:"clicks,omitempty"`
	Spend        flexFloat    `json:"spend,omitempty"`
	Actions      []actionItem `json:"actions,omitempty"`
	ActionValues []actionItem `json:"action_values,omitempty"`
}

type actionItem struct {
	ActionType string `json:"action_type"`
	Value      string `json:"value"`
}

func (a actionItem) valueInt() int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(a.Value), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(strings.TrimSpace(a.Value), 64)
		if ferr != nil {
			return 0
		}
		return int64(f)
	}
	return v
}

func (a actionItem) valueFloat() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(a.Value), 64)
	if err != nil {
		return 0
	}
	return v
}

// ---------- HTTP / retry helpers ----------

type apiError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	FBTraceID    string `json:"fbtrace_id"`
}

type apiErrorEnvelope struct {
	Error *apiError `json:"error"`
}

type HTTPError struct {
	StatusCode int
	Body       string
	APIError   *apiError
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "meta: <nil error>"
	}
	if e.APIError != nil && strings.TrimSpace(e.APIError.Message) != "" {
		if e.APIError.Code != 0 {
			return fmt.Sprintf("meta http %d: %s (code=%d)", e.StatusCode, e.APIError.Message, e.APIError.Code)
		}
		return fmt.Sprintf("meta http %d: %s", e.StatusCode, e.APIError.Message)
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 4000 {
		msg = msg[:4000] + "..."
	}
	return fmt.Sprintf("meta http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func doForm[T any](c *client, ctx context.Context, urlStr string, form url.Values) (*T, error) {
	return doRetry[T](c, ctx, urlStr, func(ctx context.Context) (*T, *http.Response, error) {
		body := url.Values{}
		for k, vs := range form {
			body[k] = vs
		}
		body.Set("access_token", c.accessToken(ctx))
		return doOnce[T](c, ctx, "POST", urlStr, strings.NewReader(body.Encode()), "application/x-www-form-urlencoded")
	})
}

func doGet[T any](c *client, ctx context.Context, urlStr string, params url.Values) (*T, error) {
	return doRetry[T](c, ctx, urlStr, func(ctx context.Context) (*T, *http.Response, error) {
		q := url.Values{}
		for k, vs := range params {
			q[k] = vs
		}
		q.Set("access_token", c.accessToken(ctx))
		return doOnce[T](c, ctx, "GET", urlStr+"?"+q.Encode(), nil, "")
	})
}

func doRetry[T any](c *client, ctx context.Context, urlStr string, attempt func(ctx context.Context) (*T, *http.Response, error)) (*T, error) {
	backoff := 1 * time.Second

	for i := 0; i <= c.maxRetries; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		out, resp, err := attempt(ctx)
		if err == nil {
			return out, nil
		}

		if !httpx.IsRetryableError(err) || i == c.maxRetries {
			return nil, err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("Meta request retrying",
			"url", urlStr,
			"attempt", i+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return nil, fmt.Errorf("unreachable retry loop")
}

func doOnce[T any](c *client, ctx context.Context, method, urlStr string, body io.Reader, contentType string) (*T, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, urlStr, body)
	if err != nil {
		return nil, nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, resp, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env apiErrorEnvelope
		if json.Unmarshal(raw, &env) == nil && env.Error != nil && strings.TrimSpace(env.Error.Message) != "" {
			return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw), APIError: env.Error}
		}
		return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out T
	if len(raw) == 0 {
		return &out, resp, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, resp, fmt.Errorf("meta decode error: %w; raw=%s", err, string(raw))
	}
	return &out, resp, nil
}
