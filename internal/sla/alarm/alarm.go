// Package alarm delivers threshold alarms to operators over SNS and
// SES. Delivery is best effort; the caller logs failures and moves on.
package alarm

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"search-platform/internal/common/config"
	"search-platform/internal/common/logger"
)

// Notifier is the alarm delivery capability.
type Notifier interface {
	Alarm(ctx context.Context, subject, message string) error
}

// Nop discards alarms; used when no channel is configured.
type Nop struct{}

func (Nop) Alarm(context.Context, string, string) error { return nil }

// Multi fans one alarm out to every configured channel and returns the
// first delivery error.
type Multi []Notifier

func (m Multi) Alarm(ctx context.Context, subject, message string) error {
	var firstErr error
	for _, n := range m {
		if err := n.Alarm(ctx, subject, message); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SNSNotifier publishes alarms to a topic.
type SNSNotifier struct {
	client   *sns.Client
	topicARN string
}

func NewSNSNotifier(ctx context.Context, region, topicARN string) (*SNSNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &SNSNotifier{client: sns.NewFromConfig(cfg), topicARN: topicARN}, nil
}

func (n *SNSNotifier) Alarm(ctx context.Context, subject, message string) error {
	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	return err
}

// SESNotifier emails alarms to the operator list.
type SESNotifier struct {
	client    *ses.Client
	fromEmail string
	toEmails  []string
}

func NewSESNotifier(ctx context.Context, region, fromEmail string, toEmails []string) (*SESNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &SESNotifier{client: ses.NewFromConfig(cfg), fromEmail: fromEmail, toEmails: toEmails}, nil
}

func (n *SESNotifier) Alarm(ctx context.Context, subject, message string) error {
	_, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(n.fromEmail),
		Destination: &sestypes.Destination{
			ToAddresses: n.toEmails,
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(message)},
			},
		},
	})
	return err
}

// FromConfig builds the notifier stack the configuration enables.
func FromConfig(ctx context.Context, cfg config.AWSConfig, log logger.Logger) Notifier {
	var channels Multi

	if cfg.SNS.Enabled && cfg.SNS.TopicARN != "" {
		n, err := NewSNSNotifier(ctx, cfg.Region, cfg.SNS.TopicARN)
		if err != nil {
			log.Error("sns notifier init failed", map[string]interface{}{"error": err.Error()})
		} else {
			channels = append(channels, n)
		}
	}
	if cfg.SES.Enabled && cfg.SES.FromEmail != "" && len(cfg.SES.ToEmails) > 0 {
		n, err := NewSESNotifier(ctx, cfg.Region, cfg.SES.FromEmail, cfg.SES.ToEmails)
		if err != nil {
			log.Error("ses notifier init failed", map[string]interface{}{"error": err.Error()})
		} else {
			channels = append(channels, n)
		}
	}

	if len(channels) == 0 {
		log.Info("no alarm channels configured", map[string]interface{}{})
		return Nop{}
	}
	log.Info("alarm channels ready", map[string]interface{}{
		"channels": strings.Join(channelNames(cfg), ","),
	})
	return channels
}

func channelNames(cfg config.AWSConfig) []string {
	var names []string
	if cfg.SNS.Enabled {
		names = append(names, "sns")
	}
	if cfg.SES.Enabled {
		names = append(names, "ses")
	}
	return names
}
