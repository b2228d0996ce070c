package notification

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"
	"github.com/rs/zerolog"
)

// postmarkSender is the slice of *postmark.Client used by PostmarkDriver.
type postmarkSender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

type PostmarkConfig struct {
	ServerToken  string
	AccountToken string
	From         string
	ReplyTo      string
}

// PostmarkDriver delivers the mail channel through Postmark.
type PostmarkDriver struct {
	Base
	client postmarkSender
	cfg    PostmarkConfig
}

func NewPostmarkDriver(cfg PostmarkConfig, logger zerolog.Logger, logEnabled bool) *PostmarkDriver {
	d := &PostmarkDriver{
		Base: NewBase("postmark", ChannelMail, logger, logEnabled),
		cfg:  cfg,
	}
	if cfg.ServerToken != "" {
		d.client = postmark.NewClient(cfg.ServerToken, cfg.AccountToken)
	}
	return d
}

func (d *PostmarkDriver) IsConfigured() bool {
	return d.client != nil && d.cfg.From != ""
}

func (d *PostmarkDriver) Send(ctx context.Context, to Recipient, msg Message) (Result, error) {
	if !d.IsConfigured() {
		return d.ErrorResponse("postmark driver is not configured", nil), fmt.Errorf("postmark: missing server token or sender address")
	}
	if to.Email == "" {
		res := d.ErrorResponse("recipient has no email address", nil)
		d.LogNotification(to, msg, res)
		return res, nil
	}

	resp, err := d.client.SendEmail(ctx, postmark.Email{
		From:       d.cfg.From,
		To:         to.Email,
		ReplyTo:    d.cfg.ReplyTo,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.HTML,
		TextBody:   msg.Body,
		TrackOpens: true,
	})

	var res Result
	switch {
	case err != nil:
		res = d.ErrorResponse(fmt.Sprintf("postmark request failed: %v", err), nil)
	case resp.ErrorCode > 0:
		res = d.ErrorResponse(fmt.Sprintf("postmark error %d: %s", resp.ErrorCode, resp.Message), map[string]interface{}{
			"error_code": resp.ErrorCode,
		})
	default:
		res = d.SuccessResponse("email accepted by postmark", map[string]interface{}{
			"message_id": resp.MessageID,
		})
	}
	d.LogNotification(to, msg, res)
	return res, nil
}
