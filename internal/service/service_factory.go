package service

import (
	"time"

	"go.uber.org/zap"

	"workflow-dashboard/internal/hashing"
	"workflow-dashboard/internal/mailer"
	"workflow-dashboard/internal/repository"
	"workflow-dashboard/internal/token"
)

// Dependencies is everything the services are built from.
type Dependencies struct {
	Store   repository.Store
	Tokens  *token.Manager
	Hasher  *hashing.Hasher
	Mailer  mailer.Sender
	Sealer  Sealer
	N8N     WorkflowAPI
	CodeTTL time.Duration
	Logger  *zap.Logger
}

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	deps Dependencies

	codeManager     *CodeManager
	authService     *AuthService
	accountService  *AccountService
	workflowService *WorkflowService
}

func NewServiceFactory(deps Dependencies) *ServiceFactory {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ServiceFactory{deps: deps}
}

func (f *ServiceFactory) CodeManager() *CodeManager {
	if f.codeManager == nil {
		f.codeManager = NewCodeManager(f.deps.Store, f.deps.CodeTTL, f.deps.Logger.Named("codes"))
	}
	return f.codeManager
}

// AuthService returns the auth service instance (singleton)
func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		f.authService = NewAuthService(
			f.deps.Store,
			f.CodeManager(),
			f.deps.Tokens,
			f.deps.Hasher,
			f.deps.Mailer,
			f.deps.Logger.Named("auth"),
		)
	}
	return f.authService
}

func (f *ServiceFactory) AccountService() *AccountService {
	if f.accountService == nil {
		f.accountService = NewAccountService(f.deps.Store, f.deps.Sealer, f.deps.Logger.Named("accounts"))
	}
	return f.accountService
}

func (f *ServiceFactory) WorkflowService() *WorkflowService {
	if f.workflowService == nil {
		f.workflowService = NewWorkflowService(f.AccountService(), f.deps.N8N, f.deps.Logger.Named("workflows"))
	}
	return f.workflowService
}
