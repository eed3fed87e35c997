package scenario

import (
	"context"
	"net/url"
	"time"

	"offerdex/internal/ledger"
	"offerdex/pkg/benchmark/client"
	"offerdex/pkg/benchmark/types"
	"offerdex/pkg/model"
)

// finish builds the result for an executed operation. The status code
// comes from the transport error when the node rejected the call.
func finish(opType string, start time.Time, okStatus int, err error) *types.OperationResult {
	result := &types.OperationResult{
		OperationType: opType,
		StartTime:     start,
		Duration:      time.Since(start),
		Success:       err == nil,
		Error:         err,
	}
	if err == nil {
		result.StatusCode = okStatus
	} else if httpErr, ok := client.AsHTTPError(err); ok {
		result.StatusCode = httpErr.StatusCode
	}
	return result
}

// SearchOperation runs one catalog search.
type SearchOperation struct {
	params url.Values
}

// NewSearchOperation creates a search operation with the given query.
func NewSearchOperation(params url.Values) *SearchOperation {
	return &SearchOperation{params: params}
}

func (o *SearchOperation) Type() string { return types.OpSearch }

func (o *SearchOperation) Execute(ctx context.Context, c types.Client) (*types.OperationResult, error) {
	start := time.Now()
	_, err := c.Search(ctx, o.params)
	return finish(o.Type(), start, 200, err), err
}

// GetOperation fetches one offering.
type GetOperation struct {
	provider model.ProviderPubkey
	key      model.OfferingKey
}

// NewGetOperation creates a direct-lookup operation.
func NewGetOperation(provider model.ProviderPubkey, key model.OfferingKey) *GetOperation {
	return &GetOperation{provider: provider, key: key}
}

func (o *GetOperation) Type() string { return types.OpGet }

func (o *GetOperation) Execute(ctx context.Context, c types.Client) (*types.OperationResult, error) {
	start := time.Now()
	_, err := c.GetOffering(ctx, o.provider, o.key)
	return finish(o.Type(), start, 200, err), err
}

// ListOperation lists one provider's offerings.
type ListOperation struct {
	provider model.ProviderPubkey
}

// NewListOperation creates a provider listing operation.
func NewListOperation(provider model.ProviderPubkey) *ListOperation {
	return &ListOperation{provider: provider}
}

func (o *ListOperation) Type() string { return types.OpList }

func (o *ListOperation) Execute(ctx context.Context, c types.Client) (*types.OperationResult, error) {
	start := time.Now()
	_, err := c.ListProvider(ctx, o.provider)
	return finish(o.Type(), start, 200, err), err
}

// PublishOperation submits one signed catalog record.
type PublishOperation struct {
	record ledger.Record
}

// NewPublishOperation creates a publish operation for a signed record.
func NewPublishOperation(record ledger.Record) *PublishOperation {
	return &PublishOperation{record: record}
}

func (o *PublishOperation) Type() string { return types.OpPublish }

func (o *PublishOperation) Execute(ctx context.Context, c types.Client) (*types.OperationResult, error) {
	start := time.Now()
	_, err := c.PublishCatalog(ctx, o.record)
	return finish(o.Type(), start, 200, err), err
}

// WithdrawOperation removes one offering.
type WithdrawOperation struct {
	provider model.ProviderPubkey
	key      model.OfferingKey
}

// NewWithdrawOperation creates a single-offering withdraw operation.
func NewWithdrawOperation(provider model.ProviderPubkey, key model.OfferingKey) *WithdrawOperation {
	return &WithdrawOperation{provider: provider, key: key}
}

func (o *WithdrawOperation) Type() string { return types.OpWithdraw }

func (o *WithdrawOperation) Execute(ctx context.Context, c types.Client) (*types.OperationResult, error) {
	start := time.Now()
	err := c.WithdrawOffering(ctx, o.provider, o.key)
	return finish(o.Type(), start, 200, err), err
}
