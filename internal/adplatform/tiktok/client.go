package tiktok

import (
	"bytes"
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
	"github.com/autosem/autosem-backend/internal/pkg/money"
	"github.com/autosem/autosem-backend/internal/repos"
	"github.com/autosem/autosem-backend/internal/types"
)

type Config struct {
	AccessToken  string
	AdvertiserID string
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
}

func ConfigFromEnv() Config {
	timeoutSec := envutil.Int("TIKTOK_TIMEOUT_SECONDS", 30)
	maxRetries := envutil.Int("TIKTOK_MAX_RETRIES", 4)

	return Config{
		AccessToken:  strings.TrimSpace(os.Getenv("TIKTOK_ACCESS_TOKEN")),
		AdvertiserID: strings.TrimSpace(os.Getenv("TIKTOK_ADVERTISER_ID")),
		BaseURL:      strings.TrimSpace(os.Getenv("TIKTOK_BASE_URL")),
		Timeout:      time.Duration(timeoutSec) * time.Second,
		MaxRetries:   maxRetries,
	}
}

func NewFromEnv(log *logger.Logger, tokens repos.PlatformTokenRepo) (adplatform.Client, error) {
	return New(log, ConfigFromEnv(), tokens)
}

func New(log *logger.Logger, cfg Config, tokens repos.PlatformTokenRepo) (adplatform.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	cfg.AdvertiserID = strings.TrimSpace(cfg.AdvertiserID)
	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)
	if cfg.AdvertiserID == "" && tokens == nil {
		return nil, fmt.Errorf("tiktok: %w: missing TIKTOK_ADVERTISER_ID", errs.ErrNotConfigured)
	}
	if cfg.AccessToken == "" && tokens == nil {
		return nil, fmt.Errorf("tiktok: %w: missing TIKTOK_ACCESS_TOKEN", errs.ErrNotConfigured)
	}

	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://business-api.tiktok.com/open_api/v1.3"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 4
	}

	return &client{
		log:        log.With("client", "TikTokClient"),
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

func (c *client) Platform() types.Platform { return types.PlatformTikTok }

// credentials resolves the access token and advertiser id, preferring the
// stored token row over env config.
func (c *client) credentials(ctx context.Context) (token, advertiserID string) {
	token = c.cfg.AccessToken
	advertiserID = c.cfg.AdvertiserID
	if c.tokens != nil {
		tok, err := c.tokens.GetByPlatform(ctx, nil, types.PlatformTikTok)
		if err == nil {
			if strings.TrimSpace(tok.AccessToken) != "" && (tok.ExpiresAt == nil || tok.ExpiresAt.After(time.Now())) {
				token = strings.TrimSpace(tok.AccessToken)
			}
			if strings.TrimSpace(tok.AccountID) != "" {
				advertiserID = strings.TrimSpace(tok.AccountID)
			}
		}
	}
	return token, advertiserID
}

func (c *client) PauseCampaign(ctx context.Context, externalID string) error {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return fmt.Errorf("tiktok: campaign id required")
	}
	_, advertiserID := c.credentials(ctx)
	payload := map[string]any{
		"advertiser_id":    advertiserID,
		"campaign_ids":     []string{externalID},
		"operation_status": "DISABLE",
	}
	_, err := doPost[json.RawMessage](c, ctx, "/campaign/status/update/", payload)
	return err
}

func (c *client) SetCampaignBudget(ctx context.Context, externalID string, cents int64) error {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return fmt.Errorf("tiktok: campaign id required")
	}
	if cents <= 0 {
		return fmt.Errorf("tiktok: budget must be positive")
	}
	_, advertiserID := c.credentials(ctx)
	payload := map[string]any{
		"advertiser_id": advertiserID,
		"campaign_id":   externalID,
		"budget":        money.CentsToDollars(cents),
	}
	_, err := doPost[json.RawMessage](c, ctx, "/campaign/update/", payload)
	return err
}

func (c *client) PauseAdSet(ctx context.Context, adSetID string) error {
	adSetID = strings.TrimSpace(adSetID)
	if adSetID == "" {
		return fmt.Errorf("tiktok: adgroup id required")
	}
	_, advertiserID := c.credentials(ctx)
	payload := map[string]any{
		"advertiser_id":    advertiserID,
		"adgroup_ids":      []string{adSetID},
		"operation_status": "DISABLE",
	}
	_, err := doPost[json.RawMessage](c, ctx, "/adgroup/status/update/", payload)
	return err
}

func (c *client) SetAdSetBudget(ctx context.Context, adSetID string, cents int64) error {
	adSetID = strings.TrimSpace(adSetID)
	if adSetID == "" {
		return fmt.Errorf("tiktok: adgroup id required")
	}
	if cents <= 0 {
		return fmt.Errorf("tiktok: budget must be positive")
	}
	_, advertiserID := c.credentials(ctx)
	payload := map[string]any{
		"advertiser_id": advertiserID,
		"adgroup_id":    adSetID,
		"budget":        money.CentsToDollars(cents),
	}
	_, err := doPost[json.RawMessage](c, ctx, "/adgroup/update/", payload)
	return err
}

func (c *client) GetAdSetBudget(ctx context.Context, adSetID string) (int64, error) {
	adSetID = strings.TrimSpace(adSetID)
	if adSetID == "" {
		return 0, fmt.Errorf("tiktok: adgroup id required")
	}
	_, advertiserID := c.credentials(ctx)
	params := url.Values{}
	params.Set("advertiser_id", advertiserID)
	params.Set("filtering", fmt.Sprintf(`{"adgroup_ids":["%s"]}`, adSetID))
	data, err := doGet[adGroupList](c, ctx, "/adgroup/get/", params)
	if err != nil {
		return 0, err
	}
	if len(data.List) == 0 {
		return 0, fmt.Errorf("tiktok: adgroup %s not found", adSetID)
	}
	return money.DollarsToCents(float64(data.List[0].Budget)), nil
}

func (c *client) GetAdInsights(ctx context.Context, adID string, since time.Time) (*adplatform.Insights, error) {
	adID = strings.TrimSpace(adID)
	if adID == "" {
		return nil, fmt.Errorf("tiktok: ad id required")
	}
	rows, err := c.report(ctx, "ad_id", fmt.Sprintf(`[{"field_name":"ad_ids","filter_type":"IN","filter_value":"[\"%s\"]"}]`, adID), since)
	if err != nil {
		return nil, err
	}
	out := &adplatform.Insights{}
	for _, row := range rows {
		out.Impressions += int64(row.Metrics.Impressions)
		out.Clicks += int64(row.Metrics.Clicks)
	}
	return out, nil
}

func (c *client) GetCampaignInsights(ctx context.Context, since time.Time) ([]adplatform.CampaignInsights, error) {
	rows, err := c.report(ctx, "campaign_id", "", since)
	if err != nil {
		return nil, err
	}

	results := make([]adplatform.CampaignInsights, 0, len(rows))
	for _, row := range rows {
		spend := float64(row.Metrics.Spend)
		ci := adplatform.CampaignInsights{
			CampaignID:   row.Dimensions.CampaignID,
			CampaignName: row.Metrics.CampaignName,
			Impressions:  int64(row.Metrics.Impressions),
			Clicks:       int64(row.Metrics.Clicks),
			Spend:        spend,
			Conversions:  int64(row.Metrics.Conversion),
			// The reporting API exposes purchase value as payment ROAS,
			// so revenue is reconstructed from spend.
			Revenue: spend * float64(row.Metrics.PaymentROAS),
		}
		results = append(results, ci)
	}
	return results, nil
}

func (c *client) report(ctx context.Context, dimension, filtering string, since time.Time) ([]reportRow, error) {
	_, advertiserID := c.credentials(ctx)
	if since.IsZero() {
		since = time.Now().AddDate(0, 0, -7)
	}

	params := url.Values{}
	params.Set("advertiser_id", advertiserID)
	params.Set("report_type", "BASIC")
	params.Set("data_level", "AUCTION_"+strings.ToUpper(strings.TrimSuffix(dimension, "_id")))
	params.Set("dimensions", fmt.Sprintf(`["%s"]`, dimension))
	params.Set("metrics", `["spend","impressions","clicks","conversion","complete_payment_roas","campaign_name"]`)
	params.Set("start_date", since.Format("2006-01-02"))
	params.Set("end_date", time.Now().Format("2006-01-02"))
	params.Set("page_size", "200")
	if filtering != "" {
		params.Set("filtering", filtering)
	}

	data, err := doGet[reportData](c, ctx, "/report/integrated/get/", params)
	if err != nil {
		return nil, err
	}
	return data.List, nil
}

// ---------- wire types ----------

type flexInt int64

func (f *flexInt) UnmarshalJSON(raw []byte) error {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fv, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("tiktok: bad integer %q", s)
		}
		*f = flexInt(fv)
		return nil
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
		return fmt.Errorf("tiktok: bad number %q", s)
	}
	*f = flexFloat(v)
	return nil
}

type adGroupList struct {
	List []struct {
		AdGroupID string    `json:"adgroup_id"`
		Budget    flexFloat `json:"budget"`
	} `json:"list"`
}

type reportData struct {
	List []reportRow `json:"list"`
}

type reportRow struct {
	Dimensions struct {
		CampaignID string `json:"campaign_id,omitempty"`
		AdID       string `json:"ad_id,omitempty"`
	} `json:"dimensions"`
	Metrics struct {
		CampaignName string    `json:"campaign_name,omitempty"`
		Spend        flexFloat `json:"spend,omitempty"`
		Impressions  flexInt   `json:"impressions,omitempty"`
		Clicks       flexInt   `json:"clicks,omitempty"`
		Conversion   flexInt   `json:"conversion,omitempty"`
		PaymentROAS  flexFloat `json:"complete_payment_roas,omitempty"`
	} `json:"metrics"`
}

// ---------- HTTP / retry helpers ----------

// envelope is the fixed TikTok response shape. A non-zero code is an API
// error even when the HTTP status is 200.
type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

type HTTPError struct {
	StatusCode int
	Code       int
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "tiktok: <nil error>"
	}
	if strings.TrimSpace(e.Message) != "" {
		return fmt.Sprintf("tiktok http %d: %s (code=%d)", e.StatusCode, e.Message, e.Code)
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 4000 {
		msg = msg[:4000] + "..."
	}
	return fmt.Sprintf("tiktok http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func doPost[T any](c *client, ctx context.Context, path string, payload any) (*T, error) {
	return doRetry[T](c, ctx, path, func(ctx context.Context) (*T, *http.Response, error) {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, err
		}
		return doOnce[T](c, ctx, "POST", c.cfg.BaseURL+path, bytes.NewReader(raw), "application/json")
	})
}

func doGet[T any](c *client, ctx context.Context, path string, params url.Values) (*T, error) {
	return doRetry[T](c, ctx, path, func(ctx context.Context) (*T, *http.Response, error) {
		return doOnce[T](c, ctx, "GET", c.cfg.BaseURL+path+"?"+params.Encode(), nil, "")
	})
}

func doRetry[T any](c *client, ctx context.Context, path string, attempt func(ctx context.Context) (*T, *http.Response, error)) (*T, error) {
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

		c.log.Warn("TikTok request retrying",
			"path", path,
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
	token, _ := c.credentials(ctx)
	req.Header.Set("Access-Token", token)

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
		return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, resp, fmt.Errorf("tiktok decode error: %w; raw=%s", err, string(raw))
	}
	if env.Code != 0 {
		return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Message, Body: string(raw)}
	}

	var out T
	if len(env.Data) == 0 {
		return &out, resp, nil
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return nil, resp, fmt.Errorf("tiktok decode error: %w; raw=%s", err, string(env.Data))
	}
	return &out, resp, nil
}
