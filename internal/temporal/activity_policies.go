package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	ActivityPolicyCreatePaymentIntent = "create_payment_intent"
	ActivityPolicyConfirmPayment      = "confirm_payment"
	ActivityPolicyRetrieveAnalysis    = "retrieve_analysis"
	ActivityPolicyRecordTransition    = "record_transition"
	ActivityPolicyDiscardUpload       = "discard_upload"
)

type activityPolicy struct {
	StartToCloseTimeout time.Duration
	RetryPolicy         temporal.RetryPolicy
}

// The three remote calls cost money or quota upstream and run exactly once
// per attempt; only local bookkeeping is retried.
var activityPolicies = map[string]activityPolicy{
	ActivityPolicyCreatePaymentIntent: {
		StartToCloseTimeout: time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	},
	ActivityPolicyConfirmPayment: {
		StartToCloseTimeout: time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	},
	ActivityPolicyRetrieveAnalysis: {
		StartToCloseTimeout: 3 * time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	},
	ActivityPolicyDiscardUpload: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	},
	ActivityPolicyRecordTransition: {
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	},
}

func ActivityOptionsFor(policyName string) (workflow.ActivityOptions, error) {
	policy, ok := activityPolicies[policyName]
	if !ok {
		return workflow.ActivityOptions{}, fmt.Errorf("unknown activity policy: %s", policyName)
	}

	retry := policy.RetryPolicy
	return workflow.ActivityOptions{
		StartToCloseTimeout: policy.StartToCloseTimeout,
		RetryPolicy:         &retry,
	}, nil
}

// mustActivityContext applies the named policy, replacing its timeout when
// timeout is positive.
func mustActivityContext(ctx workflow.Context, policyName string, timeout time.Duration) workflow.Context {
	ao, err := ActivityOptionsFor(policyName)
	if err != nil {
		panic(err)
	}
	if timeout > 0 {
		ao.StartToCloseTimeout = timeout
	}
	return workflow.WithActivityOptions(ctx, ao)
}
