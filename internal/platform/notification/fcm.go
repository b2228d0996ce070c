package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const fcmDefaultEndpoint = "https://fcm.googleapis.com/fcm/send"

type FCMConfig struct {
	ServerKey string
	Endpoint  string
}

type fcmRequest struct {
	RegistrationIDs []string          `json:"registration_ids"`
	Priority        string            `json:"priority,omitempty"`
	Notification    fcmNotification   `json:"notification"`
	Data            map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmResponse struct {
	MulticastID  int64 `json:"multicast_id"`
	Success      int   `json:"success"`
	Failure      int   `json:"failure"`
	CanonicalIDs int   `json:"canonical_ids"`
}

// FCMDriver delivers the push channel through Firebase Cloud Messaging.
type FCMDriver struct {
	Base
	cfg    FCMConfig
	client *resty.Client
}

func NewFCMDriver(cfg FCMConfig, logger zerolog.Logger, logEnabled bool) *FCMDriver {
	if cfg.Endpoint == "" {
		cfg.Endpoint = fcmDefaultEndpoint
	}
	client := resty.New().
		SetTimeout(10*time.Second).
		SetHeader("Authorization", "key="+cfg.ServerKey).
		SetHeader("Content-Type", "application/json")

	return &FCMDriver{
		Base:   NewBase("fcm", ChannelPush, logger, logEnabled),
		cfg:    cfg,
		client: client,
	}
}

func (d *FCMDriver) IsConfigured() bool {
	return d.cfg.ServerKey != ""
}

func (d *FCMDriver) Send(ctx context.Context, to Recipient, msg Message) (Result, error) {
	if !d.IsConfigured() {
		return d.ErrorResponse("fcm driver is not configured", nil), fmt.Errorf("fcm: missing server key")
	}
	if len(to.PushTokens) == 0 {
		res := d.ErrorResponse("recipient has no registered devices", nil)
		d.LogNotification(to, msg, res)
		return res, nil
	}

	data := make(map[string]string, len(msg.Data))
	for k, v := range msg.Data {
		data[k] = fmt.Sprint(v)
	}
	priority := "normal"
	if p, ok := msg.Data["priority"].(string); ok && p == "high" {
		priority = "high"
	}

	var out fcmResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(fcmRequest{
			RegistrationIDs: to.PushTokens,
			Priority:        priority,
			Notification:    fcmNotification{Title: msg.Subject, Body: msg.Body},
			Data:            data,
		}).
		SetResult(&out).
		Post(d.cfg.Endpoint)

	var res Result
	switch {
	case err != nil:
		res = d.ErrorResponse(fmt.Sprintf("fcm request failed: %v", err), nil)
	case resp.IsError():
		res = d.ErrorResponse(fmt.Sprintf("fcm returned HTTP %d", resp.StatusCode()), map[string]interface{}{
			"status_code": resp.StatusCode(),
		})
	case out.Success == 0:
		res = d.ErrorResponse("fcm rejected every device token", map[string]interface{}{
			"failure": out.Failure,
		})
	default:
		res = d.SuccessResponse("push accepted by fcm", map[string]interface{}{
			"multicast_id": out.MulticastID,
			"success":      out.Success,
			"failure":      out.Failure,
		})
	}
	d.LogNotification(to, msg, res)
	return res, nil
}
