package fcm

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// FCM accepts at most this many tokens per multicast.
const maxBatchSize = 500

type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Client struct {
	msgClient multicastSender
	isStale   func(error) bool
	logger    *zap.Logger
}

func NewClient(ctx context.Context, logger *zap.Logger, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	} else {
		logger.Warn("No Firebase credentials file provided. FCM will utilize environment variable GOOGLE_APPLICATION_CREDENTIALS or default credentials.")
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return newClient(msgClient, logger), nil
}

func newClient(sender multicastSender, logger *zap.Logger) *Client {
	return &Client{
		msgClient: sender,
		isStale:   messaging.IsUnregistered,
		logger:    logger,
	}
}

// SendMulticast pushes one notification to every token. It returns the
// tokens FCM reports as no longer registered, and an error if any batch
// failed outright or no device accepted the message.
func (c *Client) SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]string, error) {
	var stale []string
	var sent, failed int
	var lastErr error

	for start := 0; start < len(tokens); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]

		resp, err := c.msgClient.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens: batch,
			Notification: &messaging.Notification{
				Title: title,
				Body:  body,
			},
			Data: data,
		})
		if err != nil {
			c.logger.Error("Failed to send FCM multicast", zap.Int("tokens", len(batch)), zap.Error(err))
			lastErr = err
			failed += len(batch)
			continue
		}

		for i, r := range resp.Responses {
			if r.Success {
				sent++
				continue
			}
			failed++
			lastErr = r.Error
			if c.isStale(r.Error) {
				stale = append(stale, batch[i])
			}
		}
	}

	if sent == 0 && failed > 0 {
		return stale, fmt.Errorf("fcm delivered to none of %d devices: %w", failed, lastErr)
	}
	if failed > 0 {
		c.logger.Debug("FCM multicast partially failed", zap.Int("sent", sent), zap.Int("failed", failed))
	}
	return stale, nil
}
