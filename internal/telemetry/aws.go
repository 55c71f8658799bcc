package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cttypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/smithy-go"
)

// maxTrailEvents caps how many audit records one Events call will page
// through. Denial detection needs presence, not completeness, so a bounded
// window is enough.
const maxTrailEvents = 500

// deniedErrorCode is the audit-trail error code that marks a denied
// operation.
const deniedErrorCode = "AccessDenied"

// cwQuery maps a canonical metric to its CloudWatch coordinates.
type cwQuery struct {
	namespace string
	metric    string
	stat      cwtypes.Statistic
	dimension string
}

// cwQueries maps resource kind × canonical metric name to CloudWatch
// queries. Statistics follow what each detector consumes: peaks for
// saturation and timeouts, sums for counts.
var cwQueries = map[ResourceKind]map[string]cwQuery{
	KindInstance: {
		MetricCPUUtilization: {"AWS/EC2", "CPUUtilization", cwtypes.StatisticMaximum, "InstanceId"},
	},
	KindFunction: {
		MetricErrorCount: {"AWS/Lambda", "Errors", cwtypes.StatisticSum, "FunctionName"},
		MetricDurationMS: {"AWS/Lambda", "Duration", cwtypes.StatisticMaximum, "FunctionName"},
	},
	KindModel: {
		MetricTokenCount:  {"AWS/Bedrock", "InputTokenCount", cwtypes.StatisticSum, "ModelId"},
		MetricInvocations: {"AWS/Bedrock", "Invocations", cwtypes.StatisticSum, "ModelId"},
	},
}

// metricsAPI is the subset of the CloudWatch client the source uses.
// Abstracted so tests can inject a stub.
type metricsAPI interface {
	GetMetricStatistics(ctx context.Context, in *cloudwatch.GetMetricStatisticsInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// AWSSource reads metric statistics from CloudWatch and audit events from
// CloudTrail. Transient provider failures (throttling, timeouts) are retried
// with backoff before surfacing; permission and not-found failures surface
// immediately with their classification.
type AWSSource struct {
	metrics metricsAPI
	trail   cloudtrail.LookupEventsAPIClient
}

// NewAWSSource builds an AWSSource using the default credential chain for
// the given region (empty region defers to the environment).
func NewAWSSource(ctx context.Context, region string) (*AWSSource, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &AWSSource{
		metrics: cloudwatch.NewFromConfig(cfg),
		trail:   cloudtrail.NewFromConfig(cfg),
	}, nil
}

// NewAWSSourceFromClients wires pre-built clients. Used by tests.
func NewAWSSourceFromClients(metrics metricsAPI, trail cloudtrail.LookupEventsAPIClient) *AWSSource {
	return &AWSSource{metrics: metrics, trail: trail}
}

// Series implements Source via CloudWatch GetMetricStatistics.
func (s *AWSSource) Series(ctx context.Context, res Resource, metric string, win Window, period time.Duration) (*MetricSeries, error) {
	q, ok := cwQueries[res.Kind][metric]
	if !ok {
		return nil, &SourceError{
			Kind:     ErrorNotFound,
			Op:       "cloudwatch.GetMetricStatistics",
			Resource: res.ID,
			Err:      fmt.Errorf("no %s metric for kind %q", metric, res.Kind),
		}
	}

	in := &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(q.namespace),
		MetricName: aws.String(q.metric),
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(q.dimension), Value: aws.String(res.ID)},
		},
		StartTime:  aws.Time(win.Start),
		EndTime:    aws.Time(win.End),
		Period:     aws.Int32(int32(period / time.Second)),
		Statistics: []cwtypes.Statistic{q.stat},
	}

	var out *cloudwatch.GetMetricStatisticsOutput
	err := withRetry(ctx, "cloudwatch.GetMetricStatistics", func() error {
		var callErr error
		out, callErr = s.metrics.GetMetricStatistics(ctx, in)
		if callErr != nil {
			return classifyAWS("cloudwatch.GetMetricStatistics", res.ID, callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	series := &MetricSeries{Resource: res.ID, Metric: metric, Period: period}
	for _, dp := range out.Datapoints {
		v, ok := statValue(dp, q.stat)
		if !ok || dp.Timestamp == nil {
			continue
		}
		series.Points = append(series.Points, Point{Time: *dp.Timestamp, Value: v})
	}
	// CloudWatch returns datapoints in arbitrary order.
	sort.Slice(series.Points, func(i, j int) bool {
		return series.Points[i].Time.Before(series.Points[j].Time)
	})
	return series, nil
}

// Events implements Source via CloudTrail LookupEvents, filtered to denied
// operations plus a sample of allowed ones for context.
func (s *AWSSource) Events(ctx context.Context, res Resource, win Window) ([]AuditEvent, error) {
	in := &cloudtrail.LookupEventsInput{
		LookupAttributes: []cttypes.LookupAttribute{{
			AttributeKey:   cttypes.LookupAttributeKeyResourceName,
			AttributeValue: aws.String(res.ID),
		}},
		StartTime:  aws.Time(win.Start),
		EndTime:    aws.Time(win.End),
		MaxResults: aws.Int32(50),
	}

	var events []AuditEvent
	err := withRetry(ctx, "cloudtrail.LookupEvents", func() error {
		events = events[:0]
		pager := cloudtrail.NewLookupEventsPaginator(s.trail, in)
		for pager.HasMorePages() && len(events) < maxTrailEvents {
			page, callErr := pager.NextPage(ctx)
			if callErr != nil {
				return classifyAWS("cloudtrail.LookupEvents", res.ID, callErr)
			}
			for _, ev := range page.Events {
				ae, convErr := convertTrailEvent(res.ID, ev)
				if convErr != nil {
					return convErr
				}
				events = append(events, ae)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Time.Before(events[j].Time) })
	return events, nil
}

// trailPayload carries the fields of the raw CloudTrail record we read.
// The full record stays addressable through EventID.
type trailPayload struct {
	ErrorCode    string `json:"errorCode"`
	UserIdentity struct {
		Arn      string `json:"arn"`
		UserName string `json:"userName"`
	} `json:"userIdentity"`
}

func convertTrailEvent(resource string, ev cttypes.Event) (AuditEvent, error) {
	ae := AuditEvent{
		Resource: resource,
		Outcome:  OutcomeAllowed,
		EventID:  aws.ToString(ev.EventId),
		Actor:    aws.ToString(ev.Username),
	}
	ae.Operation = aws.ToString(ev.EventName)
	if ev.EventTime != nil {
		ae.Time = *ev.EventTime
	}

	if raw := aws.ToString(ev.CloudTrailEvent); raw != "" {
		var payload trailPayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return AuditEvent{}, &SourceError{
				Kind:     ErrorMalformed,
				Op:       "cloudtrail.LookupEvents",
				Resource: resource,
				Err:      fmt.Errorf("decode event %s: %w", ae.EventID, err),
			}
		}
		if payload.ErrorCode == deniedErrorCode {
			ae.Outcome = OutcomeDenied
		}
		if ae.Actor == "" {
			if payload.UserIdentity.UserName != "" {
				ae.Actor = payload.UserIdentity.UserName
			} else {
				ae.Actor = payload.UserIdentity.Arn
			}
		}
	}
	return ae, nil
}

// statValue pulls the requested statistic out of a datapoint.
func statValue(dp cwtypes.Datapoint, stat cwtypes.Statistic) (float64, bool) {
	switch stat {
	case cwtypes.StatisticMaximum:
		if dp.Maximum != nil {
			return *dp.Maximum, true
		}
	case cwtypes.StatisticSum:
		if dp.Sum != nil {
			return *dp.Sum, true
		}
	case cwtypes.StatisticAverage:
		if dp.Average != nil {
			return *dp.Average, true
		}
	}
	return 0, false
}

// classifyAWS maps a provider error onto the source error taxonomy. Unknown
// API errors default to transient so the retry loop gets a chance before the
// failure is recorded.
func classifyAWS(op, resource string, err error) error {
	kind := ErrorTransient

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation":
			kind = ErrorPermission
		case "ResourceNotFound", "ResourceNotFoundException", "InvalidParameterValue", "InvalidParameterCombination":
			kind = ErrorNotFound
		case "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequestsException", "ServiceUnavailable":
			kind = ErrorTransient
		case "SerializationException":
			kind = ErrorMalformed
		}
	}

	return &SourceError{Kind: kind, Op: op, Resource: resource, Err: err}
}
