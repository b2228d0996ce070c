package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	// BaseURL overrides the Twilio API root.
	BaseURL string
}

type twilioMessage struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type twilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
}

// TwilioDriver delivers the SMS channel through the Twilio Messages API.
type TwilioDriver struct {
	Base
	cfg    TwilioConfig
	client *resty.Client
}

func NewTwilioDriver(cfg TwilioConfig, logger zerolog.Logger, logEnabled bool) *TwilioDriver {
	if cfg.BaseURL == "" {
		cfg.BaseURL = twilioBaseURL
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(15*time.Second).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken).
		SetHeader("Accept", "application/json")

	return &TwilioDriver{
		Base:   NewBase("twilio", ChannelSMS, logger, logEnabled),
		cfg:    cfg,
		client: client,
	}
}

func (d *TwilioDriver) IsConfigured() bool {
	return d.cfg.AccountSID != "" && d.cfg.AuthToken != "" && d.cfg.From != ""
}

func (d *TwilioDriver) Send(ctx context.Context, to Recipient, msg Message) (Result, error) {
	if !d.IsConfigured() {
		return d.ErrorResponse("twilio driver is not configured", nil), fmt.Errorf("twilio: missing account sid, auth token or sender")
	}
	if to.Phone == "" {
		res := d.ErrorResponse("recipient has no phone number", nil)
		d.LogNotification(to, msg, res)
		return res, nil
	}

	var out twilioMessage
	var apiErr twilioError
	resp, err := d.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"To":   to.Phone,
			"From": d.cfg.From,
			"Body": msg.Body,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post(fmt.Sprintf("/Accounts/%s/Messages.json", d.cfg.AccountSID))

	var res Result
	switch {
	case err != nil:
		res = d.ErrorResponse(fmt.Sprintf("twilio request failed: %v", err), nil)
	case resp.IsError():
		res = d.ErrorResponse(fmt.Sprintf("twilio error %d: %s", apiErr.Code, apiErr.Message), map[string]interface{}{
			"status_code": resp.StatusCode(),
			"error_code":  apiErr.Code,
		})
	default:
		res = d.SuccessResponse("sms queued by twilio", map[string]interface{}{
			"sid":    out.SID,
			"status": out.Status,
		})
	}
	d.LogNotification(to, msg, res)
	return res, nil
}
