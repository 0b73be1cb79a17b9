package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

const (
	// CloudWatch Logs limits.
	maxLogEventsPerRequest = 10000
	maxLogEventSize        = 256000 // 256 KB

	maxSequenceTokenRetries = 3
)

// cloudwatchAPI is the slice of the CloudWatch Logs client the exporter
// uses, so tests can substitute a stub.
type cloudwatchAPI interface {
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
}

// cloudwatchExporter delivers batches into AWS CloudWatch Logs for teams
// that keep telemetry inside their AWS account instead of (or alongside)
// the hosted ingestion API.
//
// Endpoint form: cloudwatch:///log/group/name?stream=my-stream. Region and
// credentials come from the standard AWS environment chain; TREEBEARD_AWS_*
// overrides are read from the query string for LocalStack-style testing
// (endpoint, access_key, secret_key, region).
type cloudwatchExporter struct {
	cfg           Config
	client        cloudwatchAPI
	logGroupName  string
	logStreamName string

	sequenceToken *string // CloudWatch requires sequence tokens for ordering
}

func newCloudWatchExporter(ctx context.Context, cfg Config, u *url.URL) (*cloudwatchExporter, error) {
	group := strings.TrimPrefix(u.Path, "/")
	if u.Host != "" {
		group = u.Host + u.Path
	}
	stream := u.Query().Get("stream")
	if group == "" {
		return nil, fmt.Errorf("cloudwatch endpoint is missing a log group")
	}
	if stream == "" {
		stream = cfg.ProjectName
	}

	awsCfg, err := buildAWSConfig(ctx,
		u.Query().Get("region"),
		u.Query().Get("endpoint"),
		u.Query().Get("access_key"),
		u.Query().Get("secret_key"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	e := &cloudwatchExporter{
		cfg:           cfg,
		client:        cloudwatchlogs.NewFromConfig(awsCfg),
		logGroupName:  group,
		logStreamName: stream,
	}

	if err := e.ensureLogGroupAndStream(ctx); err != nil {
		return nil, fmt.Errorf("failed to create log group/stream: %w", err)
	}
	return e, nil
}

func (e *cloudwatchExporter) Export(ctx context.Context, batch *Batch) error {
	events := make([]types.InputLogEvent, 0, len(batch.Logs)+len(batch.Objects))
	for _, entry := range batch.Logs {
		event, err := convertToLogEvent(entry)
		if err != nil {
			// Skip malformed entries but don't fail the entire batch.
			continue
		}
		events = append(events, event)
	}
	for _, obj := range batch.Objects {
		if data, err := json.Marshal(obj); err == nil {
			events = append(events, types.InputLogEvent{
				Message:   aws.String(string(data)),
				Timestamp: aws.Int64(obj.RegisteredAt),
			})
		}
	}
	if len(events) == 0 {
		return nil
	}

	// CloudWatch requires events ordered by timestamp.
	sort.Slice(events, func(i, j int) bool {
		return *events[i].Timestamp < *events[j].Timestamp
	})

	for i := 0; i < len(events); i += maxLogEventsPerRequest {
		end := i + maxLogEventsPerRequest
		if end > len(events) {
			end = len(events)
		}
		if err := e.putLogEvents(ctx, events[i:end]); err != nil {
			return &DeliveryError{Endpoint: e.cfg.Endpoint, Attempts: 1, Err: err}
		}
	}
	return nil
}

func (e *cloudwatchExporter) putLogEvents(ctx context.Context, events []types.InputLogEvent) error {
	for attempt := 0; ; attempt++ {
		output, err := e.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
			LogGroupName:  aws.String(e.logGroupName),
			LogStreamName: aws.String(e.logStreamName),
			LogEvents:     events,
			SequenceToken: e.sequenceToken,
		})
		if err == nil {
			e.sequenceToken = output.NextSequenceToken
			return nil
		}

		// Retry immediately with the token CloudWatch expected, a bounded
		// number of times.
		var invalidSeqErr *types.InvalidSequenceTokenException
		if errors.As(err, &invalidSeqErr) && invalidSeqErr.ExpectedSequenceToken != nil && attempt < maxSequenceTokenRetries {
			e.sequenceToken = invalidSeqErr.ExpectedSequenceToken
			continue
		}
		return err
	}
}

func convertToLogEvent(entry LogEntry) (types.InputLogEvent, error) {
	messageJSON, err := json.Marshal(entry)
	if err != nil {
		return types.InputLogEvent{}, fmt.Errorf("failed to marshal log entry: %w", err)
	}

	message := string(messageJSON)
	if len(message) > maxLogEventSize {
		message = message[:maxLogEventSize-3] + "..."
	}

	return types.InputLogEvent{
		Message:   aws.String(message),
		Timestamp: aws.Int64(entry.Timestamp),
	}, nil
}

func (e *cloudwatchExporter) ensureLogGroupAndStream(ctx context.Context) error {
	_, err := e.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(e.logGroupName),
	})
	if err != nil {
		var alreadyExists *types.ResourceAlreadyExistsException
		if !errors.As(err, &alreadyExists) {
			return fmt.Errorf("failed to create log group: %w", err)
		}
	}

	_, err = e.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(e.logGroupName),
		LogStreamName: aws.String(e.logStreamName),
	})
	if err != nil {
		var alreadyExists *types.ResourceAlreadyExistsException
		if !errors.As(err, &alreadyExists) {
			return fmt.Errorf("failed to create log stream: %w", err)
		}
	}
	return nil
}

func (e *cloudwatchExporter) Close(ctx context.Context) error { return nil }

func buildAWSConfig(ctx context.Context, region, endpoint, accessKeyID, secretAccessKey string) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	if accessKeyID != "" && secretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, err
	}

	// Endpoint override for LocalStack-style testing.
	if endpoint != "" {
		cfg.BaseEndpoint = aws.String(endpoint)
	}
	return cfg, nil
}
