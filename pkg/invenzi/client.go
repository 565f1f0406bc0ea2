package invenzi

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/accessops/idsync/pkg/observability"
)

const (
	validityLayout = "2006-01-02T15:04:05"

	// Random credential number range used when a site does not issue
	// physical cards.
	minCardNumber = 1000
	maxCardNumber = 65534

	maxCardAttempts = 25
)

// Define static errors
var (
	// ErrCardNumberExhausted is returned when no free random card number was
	// found within the attempt budget
	ErrCardNumberExhausted = errors.New("failed to allocate a free card number")
)

// APIError reports an unexpected HTTP status from the W-Access API.
type APIError struct {
	StatusCode int
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("w-access api returned status %d for %s", e.StatusCode, e.Endpoint)
}

// ListOptions narrows GetAllCardholders.
type ListOptions struct {
	CHTypes       []int
	IncludeTables []string
}

// Client talks to the W-Access REST API. All requests carry basic auth and
// CallAction=false unless a call explicitly overrides it.
type Client struct {
	log        logrus.FieldLogger
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	pageLimit  int
}

// NewClient creates a W-Access API client
func NewClient(log logrus.FieldLogger, cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		log:        log.WithField("component", "invenzi"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		pageLimit:  cfg.PageLimit,
	}, nil
}

// apiCall performs one request. op is a low-cardinality label for metrics;
// endpoint may contain record IDs.
func (c *Client) apiCall(ctx context.Context, op, method, endpoint string, query url.Values, body, out any) error {
	if query == nil {
		query = url.Values{}
	}
	if query.Get("CallAction") == "" {
		query.Set("CallAction", "false")
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, query.Encode())

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordVendorRequest(op, "error")
		return fmt.Errorf("w-access api request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	observability.RecordVendorRequest(op, strconv.Itoa(resp.StatusCode))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	case http.StatusNoContent:
		return nil
	default:
		return &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint}
	}
}

// GetAllCardholders pages through every cardholder matching the options.
func (c *Client) GetAllCardholders(ctx context.Context, opts *ListOptions) ([]Cardholder, error) {
	query := url.Values{}
	if opts != nil {
		if len(opts.CHTypes) > 0 {
			query.Set("chType", joinInts(opts.CHTypes))
		}
		if len(opts.IncludeTables) > 0 {
			query.Set("IncludeTables", strings.Join(opts.IncludeTables, ","))
		}
	}

	all := make([]Cardholder, 0)
	offset := 0

	for {
		query.Set("limit", strconv.Itoa(c.pageLimit))
		query.Set("offset", strconv.Itoa(offset))

		var page []Cardholder
		if err := c.apiCall(ctx, "list_cardholders", http.MethodGet, "cardholders", query, nil, &page); err != nil {
			return nil, err
		}

		all = append(all, page...)

		if len(page) < c.pageLimit {
			break
		}
		offset += c.pageLimit
	}

	c.log.WithField("count", len(all)).Debug("Retrieved cardholders")

	return all, nil
}

// GetCardholderByID fetches one cardholder. Returns nil without error when
// the record does not exist.
func (c *Client) GetCardholderByID(ctx context.Context, chid int64) (*Cardholder, error) {
	var ch Cardholder
	err := c.apiCall(ctx, "get_cardholder", http.MethodGet, fmt.Sprintf("cardholders/%d", chid), nil, nil, &ch)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	return &ch, nil
}

// GetCardholderByIDNumber looks a cardholder up by its external identity
// number. Returns nil without error when no match exists; multiple matches
// log a warning and return the first.
func (c *Client) GetCardholderByIDNumber(ctx context.Context, idNumber string, includeTables []string) (*Cardholder, error) {
	query := url.Values{}
	query.Set("idNumber", idNumber)
	if len(includeTables) > 0 {
		query.Set("IncludeTables", strings.Join(includeTables, ","))
	}

	var matches []Cardholder
	if err := c.apiCall(ctx, "find_cardholder", http.MethodGet, "cardholders", query, nil, &matches); err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, nil
	}

	if len(matches) > 1 {
		c.log.WithField("id_number", idNumber).Warn("Multiple cardholders share IdNumber, using the first")
	}

	return &matches[0], nil
}

// CreateCardholder creates a cardholder, defaulting the fields the platform
// requires when the caller left them unset.
func (c *Client) CreateCardholder(ctx context.Context, ch *Cardholder) (*Cardholder, error) {
	applyRequiredDefaults(ch)

	var created Cardholder
	if err := c.apiCall(ctx, "create_cardholder", http.MethodPost, "cardholders", nil, ch, &created); err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"chid":      created.CHID,
		"id_number": created.IDNumber,
	}).Info("Created cardholder")

	return &created, nil
}

// UpdateCardholder updates a cardholder, repairing an expired end-validity
// first so the platform does not reject the write.
func (c *Client) UpdateCardholder(ctx context.Context, ch *Cardholder) error {
	repairEndValidity(ch)

	if err := c.apiCall(ctx, "update_cardholder", http.MethodPut, "cardholders", nil, ch, nil); err != nil {
		return err
	}

	c.log.WithField("chid", ch.CHID).Debug("Updated cardholder")

	return nil
}

// DeleteCardholder removes a cardholder record.
func (c *Client) DeleteCardholder(ctx context.Context, chid int64) error {
	return c.apiCall(ctx, "delete_cardholder", http.MethodDelete, fmt.Sprintf("cardholders/%d", chid), nil, nil, nil)
}

// CreateRandomCard allocates a virtual credential with a random free number.
func (c *Client) CreateRandomCard(ctx context.Context) (*Card, error) {
	endValidity := time.Now().AddDate(10, 0, 0).Format(validityLayout)

	for attempt := 0; attempt < maxCardAttempts; attempt++ {
		numberBig, err := rand.Int(rand.Reader, big.NewInt(maxCardNumber-minCardNumber+1))
		if err != nil {
			return nil, fmt.Errorf("failed to draw card number: %w", err)
		}
		number := minCardNumber + int(numberBig.Int64())

		card := &Card{
			CardNumber:              number,
			FacilityCode:            0,
			ClearCode:               fmt.Sprintf("CARD_%d", number),
			CardType:                0,
			CardState:               0,
			PartitionID:             0,
			CardEndValidityDateTime: endValidity,
		}

		var created Card
		err = c.apiCall(ctx, "create_card", http.MethodPost, "cards", nil, card, &created)
		if err == nil {
			c.log.WithField("card_number", number).Debug("Created random card")
			return &created, nil
		}

		// Number already taken: draw again. Anything else is fatal.
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			continue
		}
		return nil, err
	}

	return nil, ErrCardNumberExhausted
}

// AssignCard attaches a card to a cardholder. A nil card allocates a random
// credential first. Validity is stamped now through ten years out.
func (c *Client) AssignCard(ctx context.Context, chid int64, card *Card) (*Card, error) {
	if card == nil {
		created, err := c.CreateRandomCard(ctx)
		if err != nil {
			return nil, err
		}
		card = created
	}

	now := time.Now()
	card.CardStartValidityDateTime = now.Format(validityLayout)
	card.CardEndValidityDateTime = now.AddDate(10, 0, 0).Format(validityLayout)

	var assigned Card
	endpoint := fmt.Sprintf("cardholders/%d/cards", chid)
	if err := c.apiCall(ctx, "assign_card", http.MethodPost, endpoint, nil, card, &assigned); err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"chid":        chid,
		"card_number": assigned.CardNumber,
	}).Info("Assigned card to cardholder")

	return &assigned, nil
}

// AssignAccessLevels grants each access level to the cardholder.
func (c *Client) AssignAccessLevels(ctx context.Context, chid int64, levels []int) error {
	for _, level := range levels {
		endpoint := fmt.Sprintf("cardholders/%d/accesslevels/%d", chid, level)
		if err := c.apiCall(ctx, "assign_access_level", http.MethodPost, endpoint, nil, struct{}{}, nil); err != nil {
			return fmt.Errorf("failed to assign access level %d: %w", level, err)
		}

		c.log.WithFields(logrus.Fields{
			"chid":         chid,
			"access_level": level,
		}).Debug("Assigned access level")
	}

	return nil
}

// UploadPhoto stores a cardholder photo.
func (c *Client) UploadPhoto(ctx context.Context, chid int64, jpeg []byte) error {
	body := map[string]string{"Photo": base64.StdEncoding.EncodeToString(jpeg)}
	endpoint := fmt.Sprintf("cardholders/%d/photo", chid)

	return c.apiCall(ctx, "upload_photo", http.MethodPut, endpoint, nil, body, nil)
}

// EndVisit terminates a visitor's active visit.
func (c *Client) EndVisit(ctx context.Context, chid int64) error {
	endpoint := fmt.Sprintf("cardholders/%d/activeVisit", chid)

	return c.apiCall(ctx, "end_visit", http.MethodDelete, endpoint, nil, nil, nil)
}

// applyRequiredDefaults fills the fields the platform rejects when absent.
func applyRequiredDefaults(ch *Cardholder) {
	if ch.PartitionID == 0 {
		ch.PartitionID = 1
	}
	if ch.CHType == 0 {
		ch.CHType = 2
	}
	if ch.FirstName == "" {
		ch.FirstName = fmt.Sprintf("New Created User - %s", time.Now().Format(validityLayout))
	}
	if ch.CHEndValidityDateTime == "" {
		ch.CHEndValidityDateTime = time.Now().AddDate(10, 0, 0).Format(validityLayout)
	}
}

// repairEndValidity pushes an expired or unparseable end-validity ten years
// out.
func repairEndValidity(ch *Cardholder) {
	current, err := parseValidity(ch.CHEndValidityDateTime)
	if err != nil || current.Before(time.Now()) {
		ch.CHEndValidityDateTime = time.Now().AddDate(10, 0, 0).Format(validityLayout)
	}
}

func parseValidity(value string) (time.Time, error) {
	for _, layout := range []string{validityLayout, "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized validity format: %q", value)
}

func joinInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, strconv.Itoa(v))
	}

	return strings.Join(parts, ",")
}
