package gateway

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-booking-backend/internal/domain"
	"github.com/sirosfoundation/go-booking-backend/internal/service"
	"github.com/sirosfoundation/go-booking-backend/pkg/protocol"
)

// handleNewBooking stores the booking and rebroadcasts the payload as sent
func (g *Gateway) handleNewBooking(ctx context.Context, c *client, env *protocol.Envelope) error {
	_, err := g.registry.Book(ctx, env.Data)
	if errors.Is(err, service.ErrUnknownUser) {
		return c.emit(protocol.EventAuthError, protocol.MessageAuthError)
	}
	if err != nil {
		return err
	}
	return g.broadcast(protocol.EventOrderUpdate, env.Data)
}

// handleConfirmOrder is silent when the order does not exist
func (g *Gateway) handleConfirmOrder(ctx context.Context, c *client, env *protocol.Envelope) error {
	id, err := domain.ParseOrderID(env.Data)
	if err != nil {
		c.logger.Debug("confirmOrder without a usable id", zap.Error(err))
		return nil
	}

	if _, err := g.registry.ConfirmOrder(ctx, id); err != nil {
		if errors.Is(err, service.ErrUnknownOrder) {
			c.logger.Debug("confirmOrder for unknown order", zap.String("order_id", id.String()))
			return nil
		}
		return err
	}
	return g.broadcast(protocol.EventOrderConfirmed, id)
}

// handleUpdatePaymentStatus is silent when the order does not exist
func (g *Gateway) handleUpdatePaymentStatus(ctx context.Context, c *client, env *protocol.Envelope) error {
	var update domain.PaymentUpdate
	if err := env.DecodeData(&update); err != nil {
		c.logger.Debug("Ignoring malformed payment update", zap.Error(err))
		return nil
	}

	order, err := g.registry.SetPaymentFlags(ctx, &update)
	if err != nil {
		if errors.Is(err, service.ErrUnknownOrder) {
			c.logger.Debug("updatePaymentStatus for unknown order", zap.String("order_id", update.OrderID.String()))
			return nil
		}
		return err
	}
	return g.broadcast(protocol.EventPaymentStatusUpdated, order.PaymentStatus())
}

func (g *Gateway) handleRegister(ctx context.Context, c *client, env *protocol.Envelope) error {
	var req domain.Registration
	if err := env.DecodeData(&req); err != nil {
		c.logger.Debug("Ignoring malformed registration", zap.Error(err))
		return nil
	}

	user, err := g.registry.Register(ctx, &req)
	if errors.Is(err, service.ErrEmailTaken) {
		return c.emit(protocol.EventRegisterError, protocol.MessageRegisterError)
	}
	if err != nil {
		return err
	}
	return c.emit(protocol.EventRegisterSuccess, user.Profile())
}

func (g *Gateway) handleLogin(ctx context.Context, c *client, env *protocol.Envelope) error {
	var creds domain.Credentials
	if err := env.DecodeData(&creds); err != nil {
		c.logger.Debug("Ignoring malformed login", zap.Error(err))
		return nil
	}

	user, err := g.registry.Login(ctx, &creds)
	if errors.Is(err, service.ErrInvalidCredentials) {
		return c.emit(protocol.EventLoginError, protocol.MessageLoginError)
	}
	if err != nil {
		return err
	}
	return c.emit(protocol.EventLoginSuccess, user.Profile())
}
