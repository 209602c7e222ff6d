// internal/channels/sms_providers.go
package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	awsclient "notification-pipeline/internal/common/aws"
	apperrors "notification-pipeline/internal/common/errors"
	commonhttp "notification-pipeline/internal/common/http"
	"notification-pipeline/internal/vault"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

const (
	ProviderTwilio    = "twilio"
	ProviderMsg91     = "msg91"
	ProviderVonage    = "vonage"
	ProviderTextlocal = "textlocal"
	ProviderCustom    = "custom"
	ProviderSNS       = "sns"
)

// Gateway base URLs. Overridable per provider for tests.
const (
	twilioBaseURL    = "https://api.twilio.com"
	msg91BaseURL     = "https://api.msg91.com"
	vonageBaseURL    = "https://rest.nexmo.com"
	textlocalBaseURL = "https://api.textlocal.in"
)

// DefaultSMSProviders returns every built-in adapter sharing one HTTP client.
func DefaultSMSProviders(client *commonhttp.Client, snsFactory SNSFactory, region string) []SMSProvider {
	return []SMSProvider{
		NewTwilioProvider(client, ""),
		NewMsg91Provider(client, ""),
		NewVonageProvider(client, ""),
		NewTextlocalProvider(client, ""),
		NewCustomWebhookProvider(client),
		NewSNSProvider(snsFactory, region),
	}
}

func decodeProviderConfig(provider string, values map[string]interface{}, out interface{}) error {
	if err := vault.Decode(values, out); err != nil {
		return apperrors.NewConfigurationError(provider+" credential is malformed", err)
	}
	return nil
}

func requireFields(provider string, fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return apperrors.NewConfigurationError(
			fmt.Sprintf("%s credential is missing %s", provider, strings.Join(missing, ", ")), nil)
	}
	return nil
}

func baseOr(base, fallback string) string {
	if base == "" {
		return fallback
	}
	return strings.TrimRight(base, "/")
}

// ==========================
// Twilio
// ==========================

type TwilioConfig struct {
	AccountSID string `mapstructure:"accountSid"`
	AuthToken  string `mapstructure:"authToken"`
	FromNumber string `mapstructure:"fromNumber"`
}

type twilioProvider struct {
	client  *commonhttp.Client
	baseURL string
}

func NewTwilioProvider(client *commonhttp.Client, baseURL string) SMSProvider {
	return &twilioProvider{client: client, baseURL: baseOr(baseURL, twilioBaseURL)}
}

func (p *twilioProvider) Name() string { return ProviderTwilio }

func (p *twilioProvider) Send(ctx context.Context, to, body string, values map[string]interface{}) error {
	var cfg TwilioConfig
	if err := decodeProviderConfig(ProviderTwilio, values, &cfg); err != nil {
		return err
	}
	if err := requireFields(ProviderTwilio, map[string]string{
		"accountSid": cfg.AccountSID, "authToken": cfg.AuthToken, "fromNumber": cfg.FromNumber,
	}); err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", p.baseURL, url.PathEscape(cfg.AccountSID))
	form := url.Values{"To": {to}, "From": {cfg.FromNumber}, "Body": {body}}
	_, err := p.client.PostForm(ctx, endpoint, form, cfg.AccountSID, cfg.AuthToken)
	return err
}

// ==========================
// MSG91
// ==========================

type Msg91Config struct {
	AuthKey  string `mapstructure:"authKey"`
	SenderID string `mapstructure:"senderId"`
	Route    string `mapstructure:"route"`
}

type msg91Provider struct {
	client  *commonhttp.Client
	baseURL string
}

func NewMsg91Provider(client *commonhttp.Client, baseURL string) SMSProvider {
	return &msg91Provider{client: client, baseURL: baseOr(baseURL, msg91BaseURL)}
}

func (p *msg91Provider) Name() string { return ProviderMsg91 }

func (p *msg91Provider) Send(ctx context.Context, to, body string, values map[string]interface{}) error {
	var cfg Msg91Config
	if err := decodeProviderConfig(ProviderMsg91, values, &cfg); err != nil {
		return err
	}
	if err := requireFields(ProviderMsg91, map[string]string{"authKey": cfg.AuthKey}); err != nil {
		return err
	}

	payload := map[string]string{
		"sender":  cfg.SenderID,
		"route":   cfg.Route,
		"mobiles": to,
		"body":    body,
	}
	_, err := p.client.PostJSON(ctx, p.baseURL+"/api/v5/flow/", map[string]string{"authkey": cfg.AuthKey}, payload)
	return err
}

// ==========================
// Vonage
// ==========================

type VonageConfig struct {
	APIKey     string `mapstructure:"apiKey"`
	APISecret  string `mapstructure:"apiSecret"`
	FromNumber string `mapstructure:"fromNumber"`
}

type vonageProvider struct {
	client  *commonhttp.Client
	baseURL string
}

func NewVonageProvider(client *commonhttp.Client, baseURL string) SMSProvider {
	return &vonageProvider{client: client, baseURL: baseOr(baseURL, vonageBaseURL)}
}

func (p *vonageProvider) Name() string { return ProviderVonage }

func (p *vonageProvider) Send(ctx context.Context, to, body string, values map[string]interface{}) error {
	var cfg VonageConfig
	if err := decodeProviderConfig(ProviderVonage, values, &cfg); err != nil {
		return err
	}
	if err := requireFields(ProviderVonage, map[string]string{
		"apiKey": cfg.APIKey, "apiSecret": cfg.APISecret,
	}); err != nil {
		return err
	}

	resp, err := p.client.PostJSON(ctx, p.baseURL+"/sms/json", nil, map[string]string{
		"api_key":    cfg.APIKey,
		"api_secret": cfg.APISecret,
		"from":       cfg.FromNumber,
		"to":         to,
		"text":       body,
	})
	if err != nil {
		return err
	}

	// Vonage answers 200 and reports per-message status in the body.
	var result struct {
		Messages []struct {
			Status    string `json:"status"`
			ErrorText string `json:"error-text"`
		} `json:"messages"`
	}
	if json.Unmarshal(resp.Body, &result) != nil {
		return nil
	}
	for _, m := range result.Messages {
		if m.Status != "" && m.Status != "0" {
			return fmt.Errorf("vonage status %s: %s", m.Status, m.ErrorText)
		}
	}
	return nil
}

// ==========================
// Textlocal
// ==========================

type TextlocalConfig struct {
	APIKey string `mapstructure:"apiKey"`
	Sender string `mapstructure:"sender"`
}

type textlocalProvider struct {
	client  *commonhttp.Client
	baseURL string
}

func NewTextlocalProvider(client *commonhttp.Client, baseURL string) SMSProvider {
	return &textlocalProvider{client: client, baseURL: baseOr(baseURL, textlocalBaseURL)}
}

func (p *textlocalProvider) Name() string { return ProviderTextlocal }

func (p *textlocalProvider) Send(ctx context.Context, to, body string, values map[string]interface{}) error {
	var cfg TextlocalConfig
	if err := decodeProviderConfig(ProviderTextlocal, values, &cfg); err != nil {
		return err
	}
	if err := requireFields(ProviderTextlocal, map[string]string{"apiKey": cfg.APIKey}); err != nil {
		return err
	}

	form := url.Values{
		"apikey":  {cfg.APIKey},
		"sender":  {cfg.Sender},
		"numbers": {to},
		"message": {body},
	}
	_, err := p.client.PostForm(ctx, p.baseURL+"/send/", form, "", "")
	return err
}

// ==========================
// Custom webhook
// ==========================

type CustomWebhookConfig struct {
	WebhookURL string            `mapstructure:"webhookUrl"`
	Headers    map[string]string `mapstructure:"headers"`
	Method     string            `mapstructure:"method"`
}

type customWebhookProvider struct {
	client *commonhttp.Client
}

func NewCustomWebhookProvider(client *commonhttp.Client) SMSProvider {
	return &customWebhookProvider{client: client}
}

func (p *customWebhookProvider) Name() string { return ProviderCustom }

func (p *customWebhookProvider) Send(ctx context.Context, to, body string, values map[string]interface{}) error {
	var cfg CustomWebhookConfig
	if err := decodeProviderConfig(ProviderCustom, values, &cfg); err != nil {
		return err
	}
	if err := requireFields(ProviderCustom, map[string]string{"webhookUrl": cfg.WebhookURL}); err != nil {
		return err
	}

	method := strings.ToUpper(cfg.Method)
	switch method {
	case "":
		method = http.MethodPost
	case http.MethodPost, http.MethodPut:
	default:
		return apperrors.NewConfigurationError("custom webhook method must be POST or PUT, got "+cfg.Method, nil)
	}

	_, err := p.client.SendJSON(ctx, method, cfg.WebhookURL, cfg.Headers, map[string]string{"to": to, "body": body})
	return err
}

// ==========================
// Amazon SNS
// ==========================

// SNSFactory builds an SNS client from tenant credentials.
type SNSFactory func(ctx context.Context, creds awsclient.StaticCredentials, defaultRegion string) (awsclient.SNSAPI, error)

// NewAWSSNSClient is the production SNSFactory.
func NewAWSSNSClient(ctx context.Context, creds awsclient.StaticCredentials, defaultRegion string) (awsclient.SNSAPI, error) {
	client, err := awsclient.NewSNSClient(ctx, creds, defaultRegion)
	if err != nil {
		return nil, err
	}
	return client, nil
}

type SNSConfig struct {
	awsclient.StaticCredentials `mapstructure:",squash"`
	SenderID                    string `mapstructure:"senderId"`
	SMSType                     string `mapstructure:"smsType"`
}

type snsProvider struct {
	factory SNSFactory
	region  string
}

func NewSNSProvider(factory SNSFactory, region string) SMSProvider {
	if factory == nil {
		factory = NewAWSSNSClient
	}
	return &snsProvider{factory: factory, region: region}
}

func (p *snsProvider) Name() string { return ProviderSNS }

func (p *snsProvider) Send(ctx context.Context, to, body string, values map[string]interface{}) error {
	var cfg SNSConfig
	if err := decodeProviderConfig(ProviderSNS, values, &cfg); err != nil {
		return err
	}

	client, err := p.factory(ctx, cfg.StaticCredentials, p.region)
	if err != nil {
		return apperrors.NewConfigurationError("failed to build SNS client", err)
	}

	attrs := map[string]snstypes.MessageAttributeValue{}
	if cfg.SenderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(cfg.SenderID),
		}
	}
	smsType := cfg.SMSType
	if smsType == "" {
		smsType = "Transactional"
	}
	attrs["AWS.SNS.SMS.SMSType"] = snstypes.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(smsType),
	}

	_, err = client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(to),
		Message:           aws.String(body),
		MessageAttributes: attrs,
	})
	return err
}
