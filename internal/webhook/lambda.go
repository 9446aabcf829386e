package webhook

import (
	"context"
	"errors"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"

	"echobot/internal/bot"
)

// Handle answers one API Gateway proxy event. Failures are reported through the
// status code; the returned error is always nil so the runtime never masks them as 502.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := h.logger.With(zap.String("request_id", requestID(ctx, req.RequestContext.RequestID)))

	secret := lookupHeader(req.Headers, SecretHeader)
	if secret == "" {
		secret = req.QueryStringParameters[secretQueryParam]
	}

	var status int
	body, err := decodeBody(req.Body, req.IsBase64Encoded)
	if err != nil {
		logger.Warn("Error decoding webhook body", zap.Error(err))
		status = statusFor(err)
	} else {
		status = h.process(ctx, logger, secret, body)
	}

	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       statusBody(status),
	}, nil
}

// HandleQueue dispatches a batch of queued updates in order. Malformed records are
// dropped since redelivery can't fix them; records whose dispatch failed are
// returned as batch item failures so only they are redelivered.
func (h *Handler) HandleQueue(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	logger := h.logger.With(zap.String("request_id", requestID(ctx, "")))

	var resp events.SQSEventResponse
	for _, record := range event.Records {
		recordLogger := logger.With(zap.String("message_id", record.MessageId))

		update, err := ParseUpdate([]byte(record.Body))
		if err != nil {
			recordLogger.Warn("Dropping malformed queued update", zap.Error(err))
			continue
		}

		if err := h.dispatcher.HandleUpdate(ctx, update); err != nil {
			recordLogger.Error("Failed to handle queued update", zap.Error(err), zap.Int("update_id", update.UpdateID))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			if errors.Is(err, bot.ErrStopped) || ctx.Err() != nil {
				resp.BatchItemFailures = append(resp.BatchItemFailures, remaining(event.Records, record.MessageId)...)
				break
			}
		}
	}

	logger.Info("Queue batch handled",
		zap.Int("records", len(event.Records)),
		zap.Int("failures", len(resp.BatchItemFailures)),
	)
	return resp, nil
}

// remaining lists the records after the one with messageID
func remaining(records []events.SQSMessage, messageID string) []events.SQSBatchItemFailure {
	var out []events.SQSBatchItemFailure
	found := false
	for _, record := range records {
		if found {
			out = append(out, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		if record.MessageId == messageID {
			found = true
		}
	}
	return out
}

// requestID prefers the Lambda invocation ID over the platform's
func requestID(ctx context.Context, fallback string) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return fallback
}
