package notifier

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sns"
)

// AWSSNSPublisher implements SNSPublisher against a real SNS topic,
// using the SDK's normal credential chain rather than embedded static
// credentials.
type AWSSNSPublisher struct {
	client *sns.SNS
}

// NewAWSSNSPublisher builds a publisher for region using the default AWS
// credential chain (environment, shared config, instance role).
func NewAWSSNSPublisher(region string) (*AWSSNSPublisher, error) {
	sess, err := session.NewSession(aws.NewConfig().WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &AWSSNSPublisher{client: sns.New(sess)}, nil
}

// Publish sends message as a plain-text SNS notification to topicARN.
func (p *AWSSNSPublisher) Publish(topicARN, message string) error {
	_, err := p.client.Publish(&sns.PublishInput{
		TopicArn: aws.String(topicARN),
		Message:  aws.String(message),
	})
	return err
}
