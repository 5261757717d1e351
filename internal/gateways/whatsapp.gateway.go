package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/callloop/postcall-gateway/pkg/logger"
	"github.com/valyala/fasthttp"
)

var (
	ErrMissingCredentials = errors.New("whatsapp credentials are incomplete")
)

const (
	DefaultGraphBaseURL = "https://graph.facebook.com/v18.0"

	defaultSendTimeout   = 30 * time.Second
	defaultHealthTimeout = 10 * time.Second
)

// Credentials identify one tenant's WhatsApp Business number. They are loaded
// per request from tenant settings, never cached in the client.
type Credentials struct {
	PhoneNumberID     string
	AccessToken       string
	BusinessAccountID string
}

func (c Credentials) valid() bool {
	return c.PhoneNumberID != "" && c.AccessToken != ""
}

// SendResult captures the outcome of a single message send. Success means the
// API accepted the message, not that it was delivered.
type SendResult struct {
	Success      bool
	MessageID    string
	ErrorCode    string
	ErrorMessage string
	RawResponse  json.RawMessage
}

// CatalogItem is one product entry in a catalog carousel.
type CatalogItem struct {
	Name        string
	Price       float64
	Description string
	ImageURL    string
	SKU         string
}

type WhatsAppConfig struct {
	BaseURL       string
	SendTimeout   time.Duration
	HealthTimeout time.Duration
	MaxConns      int
}

// WhatsAppClient talks to the WhatsApp Cloud API. A single client is shared
// across tenants; credentials are passed per call.
type WhatsAppClient struct {
	config WhatsAppConfig
	client *fasthttp.Client
}

func NewWhatsAppClient(config WhatsAppConfig) *WhatsAppClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultGraphBaseURL
	}
	if config.SendTimeout == 0 {
		config.SendTimeout = defaultSendTimeout
	}
	if config.HealthTimeout == 0 {
		config.HealthTimeout = defaultHealthTimeout
	}
	if config.MaxConns == 0 {
		config.MaxConns = 128
	}

	return &WhatsAppClient{
		config: config,
		client: &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.SendTimeout,
			WriteTimeout:        config.SendTimeout,
			MaxIdleConnDuration: 60 * time.Second,
		},
	}
}

// graph API payload shapes

type textPayload struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

type imagePayload struct {
	MessagingProduct string    `json:"messaging_product"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Image            imageBody `json:"image"`
}

type imageBody struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type documentPayload struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Document         documentBody `json:"document"`
}

type documentBody struct {
	Link     string `json:"link"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

type templatePayload struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Template         templateBody `json:"template"`
}

type templateBody struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []TemplateComponent `json:"components,omitempty"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

// TemplateComponent is one component of a template message, e.g. a body with
// positional text parameters.
type TemplateComponent struct {
	Type       string              `json:"type"`
	Parameters []TemplateParameter `json:"parameters,omitempty"`
}

type TemplateParameter struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type interactivePayload struct {
	MessagingProduct string          `json:"messaging_product"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Interactive      interactiveBody `json:"interactive"`
}

type interactiveBody struct {
	Type   string             `json:"type"`
	Body   textBody           `json:"body"`
	Action interactiveAction  `json:"action"`
	Footer *textBody          `json:"footer,omitempty"`
	Header *interactiveHeader `json:"header,omitempty"`
}

type interactiveHeader struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type interactiveAction struct {
	Button   string        `json:"button"`
	Sections []ListSection `json:"sections"`
}

// ListSection groups rows in an interactive list message.
type ListSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []ListRow `json:"rows"`
}

type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// SendText sends a plain text message.
func (c *WhatsAppClient) SendText(ctx context.Context, creds Credentials, to, body string) (*SendResult, error) {
	payload := textPayload{
		MessagingProduct: "whatsapp",
		To:               NormalizePhone(to),
		Type:             "text",
		Text:             textBody{Body: body},
	}
	return c.send(ctx, creds, payload)
}

// SendImage sends an image by URL with an optional caption.
func (c *WhatsAppClient) SendImage(ctx context.Context, creds Credentials, to, imageURL, caption string) (*SendResult, error) {
	payload := imagePayload{
		MessagingProduct: "whatsapp",
		To:               NormalizePhone(to),
		Type:             "image",
		Image:            imageBody{Link: imageURL, Caption: caption},
	}
	return c.send(ctx, creds, payload)
}

// SendDocument sends a document by URL.
func (c *WhatsAppClient) SendDocument(ctx context.Context, creds Credentials, to, documentURL, filename, caption string) (*SendResult, error) {
	payload := documentPayload{
		MessagingProduct: "whatsapp",
		To:               NormalizePhone(to),
		Type:             "document",
		Document:         documentBody{Link: documentURL, Filename: filename, Caption: caption},
	}
	return c.send(ctx, creds, payload)
}

// SendTemplate sends a pre-approved template message. Templates are the only
// message type the API accepts outside the 24-hour customer service window.
func (c *WhatsAppClient) SendTemplate(ctx context.Context, creds Credentials, to, name, languageCode string, components []TemplateComponent) (*SendResult, error) {
	payload := templatePayload{
		MessagingProduct: "whatsapp",
		To:               NormalizePhone(to),
		Type:             "template",
		Template: templateBody{
			Name:       name,
			Language:   templateLanguage{Code: languageCode},
			Components: components,
		},
	}
	return c.send(ctx, creds, payload)
}

// SendInteractiveList sends an interactive list message with a single button
// opening the given sections.
func (c *WhatsAppClient) SendInteractiveList(ctx context.Context, creds Credentials, to, body, button string, sections []ListSection) (*SendResult, error) {
	payload := interactivePayload{
		MessagingProduct: "whatsapp",
		To:               NormalizePhone(to),
		Type:             "interactive",
		Interactive: interactiveBody{
			Type:   "list",
			Body:   textBody{Body: body},
			Action: interactiveAction{Button: button, Sections: sections},
		},
	}
	return c.send(ctx, creds, payload)
}

// SendCatalogCarousel sends a header message, one message per product (image
// with caption when the product has an image, text otherwise) and a footer.
// It returns one result per message in send order and keeps going after
// individual failures.
func (c *WhatsAppClient) SendCatalogCarousel(ctx context.Context, creds Credentials, to, header, footer string, items []CatalogItem) ([]*SendResult, error) {
	var results []*SendResult

	if header != "" {
		res, err := c.SendText(ctx, creds, to, header)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}

	for i, item := range items {
		caption := FormatCatalogCaption(i+1, item)

		var res *SendResult
		var err error
		if item.ImageURL != "" {
			res, err = c.SendImage(ctx, creds, to, item.ImageURL, caption)
		} else {
			res, err = c.SendText(ctx, creds, to, caption)
		}
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}

	if footer != "" {
		res, err := c.SendText(ctx, creds, to, footer)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}

	return results, nil
}

// CheckHealth verifies the credentials by fetching the phone number resource.
func (c *WhatsAppClient) CheckHealth(ctx context.Context, creds Credentials) error {
	if !creds.valid() {
		return ErrMissingCredentials
	}

	url := fmt.Sprintf("%s/%s", c.config.BaseURL, creds.PhoneNumberID)
	_, statusCode, err := c.doRequest(ctx, creds, "GET", url, nil, c.config.HealthTimeout)
	if err != nil {
		return err
	}
	if statusCode != fasthttp.StatusOK {
		return fmt.Errorf("credential check failed with status %d", statusCode)
	}
	return nil
}

func (c *WhatsAppClient) send(ctx context.Context, creds Credentials, payload interface{}) (*SendResult, error) {
	if !creds.valid() {
		return nil, ErrMissingCredentials
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.config.BaseURL, creds.PhoneNumberID)

	startTime := time.Now()
	respBody, statusCode, err := c.doRequest(ctx, creds, "POST", url, body, c.config.SendTimeout)
	latency := time.Since(startTime).Milliseconds()

	if err != nil {
		logger.Warn("WhatsApp request failed", "error", err, "latency_ms", latency)
		return nil, err
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	result := &SendResult{
		RawResponse: json.RawMessage(respBody),
	}

	if statusCode == fasthttp.StatusOK && len(parsed.Messages) > 0 {
		result.Success = true
		result.MessageID = parsed.Messages[0].ID
		logger.Debug("WhatsApp message accepted", "message_id", result.MessageID, "latency_ms", latency)
		return result, nil
	}

	result.ErrorCode = fmt.Sprintf("HTTP_%d", statusCode)
	result.ErrorMessage = fmt.Sprintf("unexpected status code: %d", statusCode)
	if parsed.Error != nil {
		result.ErrorCode = fmt.Sprintf("%d", parsed.Error.Code)
		result.ErrorMessage = parsed.Error.Message
	}

	logger.Warn("WhatsApp send rejected", "status", statusCode, "error_code", result.ErrorCode, "error", result.ErrorMessage)

	return result, nil
}

func (c *WhatsAppClient) doRequest(ctx context.Context, creds Credentials, method, url string, body []byte, timeout time.Duration) ([]byte, int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(timeout)
	}

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())

	return result, resp.StatusCode(), nil
}

// NormalizePhone strips formatting characters so the API gets bare digits
// with an optional country code.
func NormalizePhone(phone string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "+", "", "(", "", ")", "")
	return replacer.Replace(strings.TrimSpace(phone))
}

// FormatCatalogCaption builds the per-product caption used in catalog sends.
func FormatCatalogCaption(position int, item CatalogItem) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*%d. %s*\n", position, item.Name)
	if item.Price > 0 {
		fmt.Fprintf(&b, "Price: %.2f\n", item.Price)
	} else {
		b.WriteString("Price: Contact for price\n")
	}
	if item.Description != "" {
		b.WriteString(item.Description)
		b.WriteString("\n")
	}
	if item.SKU != "" {
		fmt.Fprintf(&b, "SKU: %s", item.SKU)
	}

	return strings.TrimRight(b.String(), "\n")
}
