package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/traderelay/internal/domain"
	"github.com/betbot/traderelay/pkg/httpclient"
	"github.com/betbot/traderelay/pkg/logger"
)

const DefaultTelegramBaseURL = "https://api.telegram.org"

type TelegramConfig struct {
	BaseURL   string
	Token     string
	ChatID    string
	ParseMode string
	// Timeout caps a single request; callers usually pass a tighter context deadline.
	Timeout time.Duration
}

// Telegram posts to the Bot API sendMessage method. Sends are never retried.
type Telegram struct {
	http      *httpclient.Client
	token     string
	chatID    string
	parseMode string
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: token is required")
	}
	if strings.TrimSpace(cfg.ChatID) == "" {
		return nil, errors.New("telegram: chat id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTelegramBaseURL
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	return &Telegram{
		http:      httpclient.NewClient(cfg.BaseURL, httpclient.Options{Timeout: cfg.Timeout, RetryCount: 0}),
		token:     cfg.Token,
		chatID:    cfg.ChatID,
		parseMode: cfg.ParseMode,
	}, nil
}

type sendMessageRequest struct {
	ChatID          string           `json:"chat_id"`
	Text            string           `json:"text"`
	ParseMode       string           `json:"parse_mode,omitempty"`
	ReplyParameters *replyParameters `json:"reply_parameters,omitempty"`
}

type replyParameters struct {
	MessageID                int64 `json:"message_id"`
	AllowSendingWithoutReply bool  `json:"allow_sending_without_reply"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

func (t *Telegram) Send(ctx context.Context, text, replyTo string) (string, error) {
	req := sendMessageRequest{ChatID: t.chatID, Text: text, ParseMode: t.parseMode}
	if replyTo != "" {
		id, err := strconv.ParseInt(replyTo, 10, 64)
		if err != nil {
			// a foreign handle cannot thread; deliver standalone
			logger.Warnf("telegram: reply anchor %q is not a message id, sending unthreaded", replyTo)
		} else {
			req.ReplyParameters = &replyParameters{MessageID: id, AllowSendingWithoutReply: true}
		}
	}

	resp, err := t.http.DoRequest(ctx, http.MethodPost, "/bot"+t.token+"/sendMessage",
		&httpclient.RequestOptions{Data: req}, nil)
	if err != nil {
		return "", t.fail(err)
	}

	var out apiResponse
	if jerr := json.Unmarshal(resp.Body(), &out); jerr != nil {
		if cerr := httpclient.CheckResponse(resp, nil); cerr != nil {
			return "", t.fail(cerr)
		}
		return "", t.fail(errors.Wrap(jerr, "decode response"))
	}
	if !out.OK || !resp.IsSuccess() {
		return "", t.fail(errors.Errorf("api error %d: %s", out.ErrorCode, out.Description))
	}
	if out.Result.MessageID == 0 {
		return "", t.fail(errors.New("response carried no message_id"))
	}
	return strconv.FormatInt(out.Result.MessageID, 10), nil
}

// fail wraps err as a NotificationError with the bot token scrubbed from URLs.
func (t *Telegram) fail(err error) error {
	msg := strings.ReplaceAll(err.Error(), t.token, "<token>")
	return domain.NewError(domain.KindNotificationError, "telegram: send", errors.New(msg))
}
