package grpc

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/vault/ledger"
	"google.golang.org/protobuf/types/known/structpb"
)

// Billing calls come from the payment processor and name the user explicitly.

func (s *GRPCServer) purchase(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	user, err := requiredString(req, "user_id")
	if err != nil {
		return nil, err
	}
	expires, err := timeField(req, "expires_at")
	if err != nil {
		return nil, err
	}
	if expires == nil {
		return nil, fmt.Errorf("%w: expires_at is required", common.ErrorValidation)
	}
	grace, err := timeField(req, "grace_period_ends_at")
	if err != nil {
		return nil, err
	}

	sub, err := s.ledger.Purchase(ctx, ledger.PurchaseRequest{
		UserID:            user,
		Tier:              models.Tier(stringField(req, "tier")),
		ExpiresAt:         *expires,
		GracePeriodEndsAt: grace,
		ReceiptMode:       stringField(req, "receipt_mode"),
		ReceiptLabel:      stringField(req, "receipt_label"),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "purchase recorded", "user_id", user, "tier", sub.Tier)
	return newStruct(subscriptionValue(sub))
}

func (s *GRPCServer) changeTier(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	user, err := requiredString(req, "user_id")
	if err != nil {
		return nil, err
	}
	sub, err := s.ledger.ChangeTier(ctx, user, models.Tier(stringField(req, "tier")))
	if err != nil {
		return nil, err
	}
	return newStruct(subscriptionValue(sub))
}

func (s *GRPCServer) renew(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	user, err := requiredString(req, "user_id")
	if err != nil {
		return nil, err
	}
	expires, err := timeField(req, "expires_at")
	if err != nil {
		return nil, err
	}
	if expires == nil {
		return nil, fmt.Errorf("%w: expires_at is required", common.ErrorValidation)
	}
	sub, err := s.ledger.Renew(ctx, user, *expires)
	if err != nil {
		return nil, err
	}
	return newStruct(subscriptionValue(sub))
}

func (s *GRPCServer) cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	user, err := requiredString(req, "user_id")
	if err != nil {
		return nil, err
	}
	sub, err := s.ledger.Cancel(ctx, user)
	if err != nil {
		return nil, err
	}
	return newStruct(subscriptionValue(sub))
}
