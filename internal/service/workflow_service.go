package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"workflow-dashboard/internal/client"
	"workflow-dashboard/internal/model"
)

// WorkflowAPI is the part of the n8n REST API the dashboard uses.
type WorkflowAPI interface {
	ListWorkflows(ctx context.Context, baseURL, apiKey string) ([]model.Workflow, error)
	SetWorkflowActive(ctx context.Context, baseURL, apiKey, workflowID string, active bool) (*model.Workflow, error)
}

// WorkflowService proxies workflow reads and toggles to a user's n8n instance.
type WorkflowService struct {
	accounts *AccountService
	api      WorkflowAPI
	logger   *zap.Logger
}

func NewWorkflowService(accounts *AccountService, api WorkflowAPI, logger *zap.Logger) *WorkflowService {
	return &WorkflowService{accounts: accounts, api: api, logger: logger}
}

func (s *WorkflowService) List(ctx context.Context, userID, accountID string) ([]model.Workflow, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, validationError("accountId is required")
	}
	account, key, err := s.accounts.credentials(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	workflows, err := s.api.ListWorkflows(ctx, account.BaseURL, key)
	if err != nil {
		return nil, s.upstreamError(err, account.ID)
	}
	return workflows, nil
}

type ToggleRequest struct {
	AccountID  string `json:"accountId"`
	WorkflowID string `json:"workflowId"`
	Active     *bool  `json:"active"`
}

func (s *WorkflowService) Toggle(ctx context.Context, userID string, req ToggleRequest) (*model.Workflow, error) {
	if strings.TrimSpace(req.AccountID) == "" || strings.TrimSpace(req.WorkflowID) == "" || req.Active == nil {
		return nil, validationError("accountId, workflowId and active are required")
	}
	account, key, err := s.accounts.credentials(ctx, userID, req.AccountID)
	if err != nil {
		return nil, err
	}

	wf, err := s.api.SetWorkflowActive(ctx, account.BaseURL, key, req.WorkflowID, *req.Active)
	if err != nil {
		return nil, s.upstreamError(err, account.ID)
	}

	s.logger.Info("Workflow toggled",
		zap.String("user_id", userID),
		zap.String("account_id", account.ID),
		zap.String("workflow_id", req.WorkflowID),
		zap.Bool("active", *req.Active))
	return wf, nil
}

// upstreamError passes n8n's own status and message through; transport
// failures become a bad gateway.
func (s *WorkflowService) upstreamError(err error, accountID string) *Error {
	s.logger.Warn("n8n call failed", zap.String("account_id", accountID), zap.Error(err))

	var n8nErr *client.N8NError
	if errors.As(err, &n8nErr) {
		e := publicError(reasonUpstreamRejected, err)
		e.Status = n8nErr.StatusCode
		if n8nErr.Body != "" {
			e.Message = fmt.Sprintf("n8n error: %s", n8nErr.Body)
		}
		return e
	}
	return publicError(reasonUpstreamUnreachable, err)
}
