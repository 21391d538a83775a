package googleads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
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

// centsToMicros converts integer cents to Google Ads micros (1 dollar = 1e6).
func centsToMicros(cents int64) int64 { return cents * 10_000 }

func microsToCents(micros int64) int64 { return micros / 10_000 }

type Config struct {
	DeveloperToken  string
	AccessToken     string
	CustomerID      string
	LoginCustomerID string
	BaseURL         string
	Timeout         time.Duration
	MaxRetries      int
}

func ConfigFromEnv() Config {
	timeoutSec := envutil.Int("GOOGLE_ADS_TIMEOUT_SECONDS", 30)
	maxRetries := envutil.Int("GOOGLE_ADS_MAX_RETRIES", 4)

	return Config{
		DeveloperToken:  strings.TrimSpace(os.Getenv("GOOGLE_ADS_DEVELOPER_TOKEN")),
		AccessToken:     strings.TrimSpace(os.Getenv("GOOGLE_ADS_ACCESS_TOKEN")),
		CustomerID:      strings.TrimSpace(os.Getenv("GOOGLE_ADS_CUSTOMER_ID")),
		LoginCustomerID: strings.TrimSpace(os.Getenv("GOOGLE_ADS_LOGIN_CUSTOMER_ID")),
		BaseURL:         strings.TrimSpace(os.Getenv("GOOGLE_ADS_BASE_URL")),
		Timeout:         time.Duration(timeoutSec) * time.Second,
		MaxRetries:      maxRetries,
	}
}

func NewFromEnv(log *logger.Logger, tokens repos.PlatformTokenRepo) (adplatform.Client, error) {
	return New(log, ConfigFromEnv(), tokens)
}

func New(log *logger.Logger, cfg Config, tokens repos.PlatformTokenRepo) (adplatform.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	cfg.CustomerID = strings.ReplaceAll(strings.TrimSpace(cfg.CustomerID), "-", "")
	if cfg.CustomerID == "" {
		return nil, fmt.Errorf("googleads: %w: missing GOOGLE_ADS_CUSTOMER_ID", errs.ErrNotConfigured)
	}
	cfg.DeveloperToken = strings.TrimSpace(cfg.DeveloperToken)
	if cfg.DeveloperToken == "" {
		return nil, fmt.Errorf("googleads: %w: missing GOOGLE_ADS_DEVELOPER_TOKEN", errs.ErrNotConfigured)
	}
	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)
	if cfg.AccessToken == "" && tokens == nil {
		return nil, fmt.Errorf("googleads: %w: missing GOOGLE_ADS_ACCESS_TOKEN", errs.ErrNotConfigured)
	}

	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://googleads.googleapis.com/v17"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 4
	}

	return &client{
		log:        log.With("client", "GoogleAdsClient"),
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

func (c *client) Platform() types.Platform { return types.PlatformGoogle }

func (c *client) accessToken(ctx context.Context) string {
	if c.tokens != nil {
		tok, err := c.tokens.GetByPlatform(ctx, nil, types.PlatformGoogle)
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
		return fmt.Errorf("googleads: campaign id required")
	}
	body := mutateRequest{
		Operations: []mutateOperation{{
			Update: &resourceUpdate{
				ResourceName: fmt.Sprintf("customers/%s/campaigns/%s", c.cfg.CustomerID, externalID),
				Status:       "PAUSED",
			},
			UpdateMask: "status",
		}},
	}
	endpoint := fmt.Sprintf("%s/customers/%s/campaigns:mutate", c.cfg.BaseURL, c.cfg.CustomerID)
	_, err := doJSON[mutateResponse](c, ctx, endpoint, body)
	return err
}

// SetCampaignBudget mutates the campaign's linked budget resource. Google
// keeps budgets separate from campaigns, so the budget resource name is
// looked up first.
func (c *client) SetCampaignBudget(ctx context.Context, externalID string, cents int64) error {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return fmt.Errorf("googleads: campaign id required")
	}
	if cents <= 0 {
		return fmt.Errorf("googleads: budget must be positive")
	}

	query := fmt.Sprintf(
		"SELECT campaign.campaign_budget FROM campaign WHERE campaign.id = %s",
		externalID,
	)
	rows, err := c.search(ctx, query)
	if err != nil {
		return err
	}
	if len(rows) == 0 || rows[0].Campaign == nil || rows[0].Campaign.CampaignBudget == "" {
		return fmt.Errorf("googleads: no budget resource for campaign %s", externalID)
	}

	body := mutateRequest{
		Operations: []mutateOperation{{
			Update: &resourceUpdate{
				ResourceName: rows[0].Campaign.CampaignBudget,
				AmountMicros: strconv.FormatInt(centsToMicros(cents), 10),
			},
			UpdateMask: "amount_micros",
		}},
	}
	endpoint := fmt.Sprintf("%s/customers/%s/campaignBudgets:mutate", c.cfg.BaseURL, c.cfg.CustomerID)
	_, err = doJSON[mutateResponse](c, ctx, endpoint, body)
	return err
}

func (c *client) PauseAdSet(ctx context.Context, adSetID string) error {
	adSetID = strings.TrimSpace(adSetID)
	if adSetID == "" {
		return fmt.Errorf("googleads: ad group id required")
	}
	body := mutateRequest{
		Operations: []mutateOperation{{
			Update: &resourceUpdate{
				ResourceName: fmt.Sprintf("customers/%s/adGroups/%s", c.cfg.CustomerID, adSetID),
				Status:       "PAUSED",
			},
			UpdateMask: "status",
		}},
	}
	endpoint := fmt.Sprintf("%s/customers/%s/adGroups:mutate", c.cfg.BaseURL, c.cfg.CustomerID)
	_, err := doJSON[mutateResponse](c, ctx, endpoint, body)
	return err
}

// Ad groups on Google carry bids rather than daily budgets, so the ad-set
// budget operations are not expressible here.
func (c *client) SetAdSetBudget(ctx context.Context, adSetID string, cents int64) error {
	return fmt.Errorf("googleads: ad group daily budgets not supported")
}

func (c *client) GetAdSetBudget(ctx context.Context, adSetID string) (int64, error) {
	return 0, fmt.Errorf("googleads: ad group daily budgets not supported")
}

func (c *client) GetAdInsights(ctx context.Context, adID string, since time.Time) (*adplatform.Insights, error) {
	adID = strings.TrimSpace(adID)
	if adID == "" {
		return nil, fmt.Errorf("googleads: ad id required")
	}
	query := fmt.Sprintf(
		"SELECT metrics.impressions, metrics.clicks FROM ad_group_ad WHERE ad_group_ad.ad.id = %s AND segments.date BETWEEN '%s' AND '%s'",
		adID, dateOf(since), dateOf(time.Now()),
	)
	rows, err := c.search(ctx, query)
	if err != nil {
		return nil, err
	}
	out := &adplatform.Insights{}
	for _, row := range rows {
		if row.Metrics == nil {
			continue
		}
		out.Impressions += int64(row.Metrics.Impressions)
		out.Clicks += int64(row.Metrics.Clicks)
	}
	return out, nil
}

func (c *client) GetCampaignInsights(ctx context.Context, since time.Time) ([]adplatform.CampaignInsights, error) {
	query := fmt.Sprintf(
		"SELECT campaign.id, campaign.name, metrics.impressions, metrics.clicks, metrics.cost_micros, metrics.conversions, metrics.conversions_value FROM campaign WHERE segments.date BETWEEN '%s' AND '%s'",
		dateOf(since), dateOf(time.Now()),
	)
	rows, err := c.search(ctx, query)
	if err != nil {
		return nil, err
	}

	results := make([]adplatform.CampaignInsights, 0, len(rows))
	for _, row := range rows {
		if row.Campaign == nil {
			continue
		}
		ci := adplatform.CampaignInsights{
			CampaignID:   row.Campaign.ID,
			CampaignName: row.Campaign.Name,
		}
		if row.Metrics != nil {
			ci.Impressions = int64(row.Metrics.Impressions)
			ci.Clicks = int64(row.Metrics.Clicks)
			ci.Spend = float64(microsToCents(int64(row.Metrics.CostMicros))) / 100
			ci.Conversions = int64(row.Metrics.Conversions)
			ci.Revenue = float64(row.Metrics.ConversionsValue)
		}
		results = append(results, ci)
	}
	return results, nil
}

func (c *client) search(ctx context.Context, query string) ([]searchRow, error) {
	endpoint := fmt.Sprintf("%s/customers/%s/googleAds:search", c.cfg.BaseURL, c.cfg.CustomerID)
	resp, err := doJSON[searchResponse](c, ctx, endpoint, searchRequest{Query: query})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func dateOf(t time.Time) string {
	if t.IsZero() {
		t = time.Now().AddDate(0, 0, -7)
	}
	return t.Format("2006-01-02")
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
		return fmt.Errorf("googleads: bad integer %q", s)
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
		return fmt.Errorf("googleads: bad number %q", s)
	}
	*f = flexFloat(v)
	return nil
}

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Results []searchRow `json:"results"`
}

type searchRow struct {
	Campaign *campaignNode `json:"campaign,omitempty"`
	Metrics  *metricsNode  `json:"metrics,omitempty"`
}

type campaignNode struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name,omitempty"`
	CampaignBudget string `json:"campaignBudget,omitempty"`
}

type metricsNode struct {
	Impressions      flexInt   `json:"impressions,omitempty"`
	Clicks           flexInt   `json:"clicks,omitempty"`
	CostMicros       flexInt   `json:"costMicros,omitempty"`
	Conversions      flexFloat `json:"conversions,omitempty"`
	ConversionsValue flexFloat `json:"conversionsValue,omitempty"`
}

type mutateRequest struct {
	Operations []mutateOperation `json:"operations"`
}

type mutateOperation struct {
	Update     *resourceUpdate `json:"update,omitempty"`
	UpdateMask string          `json:"updateMask,omitempty"`
}

type resourceUpdate struct {
	ResourceName string `json:"resourceName"`
	Status       string `json:"status,omitempty"`
	AmountMicros string `json:"amountMicros,omitempty"`
}

type mutateResponse struct {
	Results []struct {
		ResourceName string `json:"resourceName"`
	} `json:"results"`
}

// ---------- HTTP / retry helpers ----------

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
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
		return "googleads: <nil error>"
	}
	if e.APIError != nil && strings.TrimSpace(e.APIError.Message) != "" {
		return fmt.Sprintf("googleads http %d: %s (%s)", e.StatusCode, e.APIError.Message, e.APIError.Status)
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 4000 {
		msg = msg[:4000] + "..."
	}
	return fmt.Sprintf("googleads http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func doJSON[T any](c *client, ctx context.Context, urlStr string, payload any) (*T, error) {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		out, resp, err := doJSONOnce[T](c, ctx, urlStr, payload)
		if err == nil {
			return out, nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return nil, err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("Google Ads request retrying",
			"url", urlStr,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return nil, fmt.Errorf("unreachable retry loop")
}

func doJSONOnce[T any](c *client, ctx context.Context, urlStr string, payload any) (*T, *http.Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), "POST", urlStr, bytes.NewReader(raw))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken(ctx))
	req.Header.Set("developer-token", c.cfg.DeveloperToken)
	if c.cfg.LoginCustomerID != "" {
		req.Header.Set("login-customer-id", c.cfg.LoginCustomerID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, resp, err
	}

	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env apiErrorEnvelope
		if json.Unmarshal(body, &env) == nil && env.Error != nil && strings.TrimSpace(env.Error.Message) != "" {
			return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(body), APIError: env.Error}
		}
		return nil, resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out T
	if len(body) == 0 {
		return &out, resp, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, resp, fmt.Errorf("googleads decode error: %w; raw=%s", err, string(body))
	}
	return &out, resp, nil
}
