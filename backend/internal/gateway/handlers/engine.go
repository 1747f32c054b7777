package handlers

import (
	"context"

	"library_turnover/backend/internal/shared"
	"library_turnover/backend/internal/turnoverrpc"
	"library_turnover/backend/internal/wizard"
)

// RPCEngine drives wizard sessions through the turnover service
type RPCEngine struct {
	Client *turnoverrpc.TurnoverServiceClient
}

var _ wizard.Engine = RPCEngine{}

func (e RPCEngine) PrepareTurnover(ctx context.Context, account string) (shared.TurnoverPreparation, error) {
	resp, err := e.Client.PrepareTurnover(ctx, &turnoverrpc.AccountRequest{AccountID: account})
	if err != nil {
		return shared.TurnoverPreparation{}, err
	}
	return resp.Preparation, nil
}

func (e RPCEngine) ValidateTurnover(ctx context.Context, account string, cfg shared.TurnoverConfig) (shared.ValidationResult, error) {
	resp, err := e.Client.ValidateTurnover(ctx, &turnoverrpc.TurnoverRequest{AccountID: account, Config: cfg})
	if err != nil {
		return shared.ValidationResult{}, err
	}
	return resp.Result, nil
}

func (e RPCEngine) ExecuteTurnover(ctx context.Context, account string, cfg shared.TurnoverConfig) (shared.ExecutionResult, error) {
	resp, err := e.Client.ExecuteTurnover(ctx, &turnoverrpc.TurnoverRequest{AccountID: account, Config: cfg})
	if err != nil {
		return shared.ExecutionResult{}, err
	}
	return resp.Result, nil
}
