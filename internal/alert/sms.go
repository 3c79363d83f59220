package alert

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI is the subset of the SNS client used for SMS alerts.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SMSAlerter texts the lead summary to the coach's phone.
type SMSAlerter struct {
	client SNSAPI
	number string
}

// NewSMSAlerter constructs an SMSAlerter for an E.164 phone number.
func NewSMSAlerter(client SNSAPI, number string) *SMSAlerter {
	return &SMSAlerter{client: client, number: number}
}

// Alert publishes the summary as a transactional SMS.
func (s *SMSAlerter) Alert(ctx context.Context, a LeadAlert) error {
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(s.number),
		Message:     aws.String(a.Summary()),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
		},
	})
	if err != nil {
		return fmt.Errorf("sms alert: %w", err)
	}
	return nil
}
